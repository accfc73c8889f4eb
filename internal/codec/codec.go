// Package codec converts entities to and from their stored document form.
//
// Extensions are written sorted by type identifier, each wrapped in an
// <ext type="..." version="..."> node whose single child is the XML payload of
// the extension. Properties are written sorted by key so that encoding the same
// entity always yields the same bytes.
package codec

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/rpattn/entitystore/internal/document"
	"github.com/rpattn/entitystore/internal/domain"
)

const (
	tagID             = "id"
	tagParentID       = "parentId"
	tagName           = "name"
	tagDescription    = "description"
	tagLastModifiedBy = "lastModifiedBy"
	tagLastModified   = "lastModified"
	tagProperties     = "properties"
	tagExtensions     = "extensions"
	tagExt            = "ext"
	attrType          = "type"
	attrVersion       = "version"
)

// TypeResolver maps legacy type names to current ones
type TypeResolver interface {
	ResolveType(name string) string
}

type identityResolver struct{}

func (identityResolver) ResolveType(name string) string { return name }

// Codec encodes and decodes entities
type Codec struct {
	extensions *ExtensionRegistry
	resolver   TypeResolver
	logger     *slog.Logger
}

// New creates a codec. A nil resolver only accepts current type names.
func New(extensions *ExtensionRegistry, resolver TypeResolver, logger *slog.Logger) *Codec {
	if extensions == nil {
		extensions = NewExtensionRegistry()
	}
	if resolver == nil {
		resolver = identityResolver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{extensions: extensions, resolver: resolver, logger: logger}
}

// Extensions returns the codec's extension registry
func (c *Codec) Extensions() *ExtensionRegistry {
	return c.extensions
}

// Encode builds the current-version document of e
func (c *Codec) Encode(e domain.Entity, t domain.EntityType) (*document.Document, error) {
	if e.Type != t.Name {
		return nil, fmt.Errorf("cannot encode %s entity as %s", e.Type, t.Name)
	}

	doc := document.New(t.Name)
	doc.SetVersion(t.ModelVersion)
	root := doc.Root()

	root.CreateElement(tagID).SetText(e.ID.String())
	if e.ParentID != nil {
		root.CreateElement(tagParentID).SetText(e.ParentID.String())
	}
	root.CreateElement(tagName).SetText(e.Name)
	if e.Description != "" {
		root.CreateElement(tagDescription).SetText(e.Description)
	}
	if e.LastModifiedBy != "" {
		root.CreateElement(tagLastModifiedBy).SetText(e.LastModifiedBy)
	}
	if !e.LastModified.IsZero() {
		root.CreateElement(tagLastModified).SetText(e.LastModified.UTC().Format(time.RFC3339Nano))
	}

	if len(e.Properties) > 0 {
		props := root.CreateElement(tagProperties)
		keys := make([]string, 0, len(e.Properties))
		for key := range e.Properties {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			props.CreateElement(key).SetText(e.Properties[key])
		}
	}

	if e.Extensions != nil && e.Extensions.Len() > 0 {
		exts := root.CreateElement(tagExtensions)
		for typeID, ext := range e.Extensions.All() {
			if err := c.encodeExtension(exts, typeID, ext); err != nil {
				return nil, err
			}
		}
	}
	return doc, nil
}

func (c *Codec) encodeExtension(parent *etree.Element, typeID string, ext domain.Extension) error {
	version, ok := c.extensions.Version(typeID)
	if !ok {
		return fmt.Errorf("extension type %s is not registered", typeID)
	}

	payload, err := xml.Marshal(ext)
	if err != nil {
		return fmt.Errorf("failed to encode extension %s: %w", typeID, err)
	}
	payloadDoc := etree.NewDocument()
	if err := payloadDoc.ReadFromBytes(payload); err != nil {
		return fmt.Errorf("failed to read encoded extension %s: %w", typeID, err)
	}

	el := parent.CreateElement(tagExt)
	el.CreateAttr(attrType, typeID)
	el.CreateAttr(attrVersion, strconv.Itoa(version))
	if payloadRoot := payloadDoc.Root(); payloadRoot != nil {
		el.AddChild(payloadRoot.Copy())
	}
	return nil
}

// Decode reads an entity of type t from a document that has already been
// migrated to the current model version. Extensions that are unknown, newer
// than registered or undecodable are dropped and logged.
func (c *Codec) Decode(doc *document.Document, t domain.EntityType) (domain.Entity, error) {
	root := doc.Root()
	if resolved := c.resolver.ResolveType(root.Tag); resolved != t.Name {
		return domain.Entity{}, &document.ParseError{Reason: fmt.Sprintf("root %q is not a %s document", root.Tag, t.Name)}
	}

	e := domain.Entity{
		Type:       t.Name,
		Properties: map[string]string{},
		Extensions: domain.NewExtensionsMap(),
	}

	idEl := root.SelectElement(tagID)
	if idEl == nil {
		return domain.Entity{}, &document.ParseError{Reason: "missing id"}
	}
	id, err := uuid.Parse(strings.TrimSpace(idEl.Text()))
	if err != nil {
		return domain.Entity{}, &document.ParseError{Reason: "invalid id", Err: err}
	}
	e.ID = id

	if el := root.SelectElement(tagParentID); el != nil {
		parentID, err := uuid.Parse(strings.TrimSpace(el.Text()))
		if err != nil {
			return domain.Entity{}, &document.ParseError{Reason: "invalid parentId", Err: err}
		}
		e.ParentID = &parentID
	}
	if el := root.SelectElement(tagName); el != nil {
		e.Name = el.Text()
	}
	if el := root.SelectElement(tagDescription); el != nil {
		e.Description = el.Text()
	}
	if el := root.SelectElement(tagLastModifiedBy); el != nil {
		e.LastModifiedBy = el.Text()
	}
	if el := root.SelectElement(tagLastModified); el != nil {
		at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(el.Text()))
		if err != nil {
			return domain.Entity{}, &document.ParseError{Reason: "invalid lastModified", Err: err}
		}
		e.LastModified = at.UTC()
	}

	if el := root.SelectElement(tagProperties); el != nil {
		for _, prop := range el.ChildElements() {
			e.Properties[prop.Tag] = prop.Text()
		}
	}

	if el := root.SelectElement(tagExtensions); el != nil {
		for _, extEl := range el.SelectElements(tagExt) {
			c.decodeExtension(e, extEl)
		}
	}
	return e, nil
}

func (c *Codec) decodeExtension(e domain.Entity, el *etree.Element) {
	storedType := el.SelectAttrValue(attrType, "")
	logger := c.logger.With(
		slog.String("entity_type", e.Type),
		slog.String("entity_id", e.ID.String()),
		slog.String("extension", storedType))

	def, ok := c.extensions.lookup(storedType)
	if !ok {
		logger.Warn("dropping unknown extension")
		return
	}

	version := 0
	if raw := el.SelectAttrValue(attrVersion, ""); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			logger.Warn("dropping extension with invalid version", slog.String("version", raw))
			return
		}
		version = v
	}
	if version > def.version {
		logger.Warn("dropping extension written by a newer version",
			slog.Int("stored_version", version),
			slog.Int("current_version", def.version))
		return
	}

	children := el.ChildElements()
	if len(children) != 1 {
		logger.Warn("dropping extension without a single payload node", slog.Int("payload_nodes", len(children)))
		return
	}
	payloadDoc := etree.NewDocument()
	payloadDoc.SetRoot(children[0].Copy())
	payload, err := payloadDoc.WriteToBytes()
	if err != nil {
		logger.Warn("dropping unreadable extension", slog.Any("error", err))
		return
	}

	ext, err := def.decode(payload)
	if err != nil {
		logger.Warn("dropping undecodable extension", slog.Any("error", err))
		return
	}
	if ext.ExtensionType() != def.typeID {
		logger.Warn("dropping extension decoded as a different type", slog.String("decoded_type", ext.ExtensionType()))
		return
	}
	if _, exists := e.Extensions.Get(def.typeID); exists {
		logger.Warn("duplicate extension, keeping the last one")
	}
	e.Extensions.Put(ext)
}
