// Package document provides the ordered node tree that persisted entities are
// parsed into. It is the unit of work for the migration engine and the codec.
package document

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// VersionTag is the tag of the model version marker node
const VersionTag = "modelVersion"

// ParseError reports persisted bytes that are not a well-formed document
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed document: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed document: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Document is an ordered tree of named nodes
type Document struct {
	doc *etree.Document
}

// New creates a document with an empty root element
func New(rootTag string) *Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.CreateElement(rootTag)
	return &Document{doc: doc}
}

// Parse reads a document from persisted bytes
func Parse(content []byte) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, &ParseError{Reason: "invalid xml", Err: err}
	}
	if doc.Root() == nil {
		return nil, &ParseError{Reason: "no root element"}
	}
	return &Document{doc: doc}, nil
}

// Bytes encodes the document deterministically
func (d *Document) Bytes() ([]byte, error) {
	out := d.doc.Copy()
	out.Indent(2)
	b, err := out.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return b, nil
}

// Root returns the root node
func (d *Document) Root() *etree.Element {
	return d.doc.Root()
}

// Copy returns a deep copy of the document
func (d *Document) Copy() *Document {
	return &Document{doc: d.doc.Copy()}
}

// RootTag returns the tag of the root node
func (d *Document) RootTag() string {
	return d.Root().Tag
}

// Version returns the stored model version. A missing marker means version 0.
func (d *Document) Version() (int, error) {
	marker := d.Root().SelectElement(VersionTag)
	if marker == nil {
		return 0, nil
	}
	raw := strings.TrimSpace(marker.Text())
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParseError{Reason: fmt.Sprintf("invalid %s %q", VersionTag, raw), Err: err}
	}
	if version < 0 {
		return 0, &ParseError{Reason: fmt.Sprintf("negative %s %d", VersionTag, version)}
	}
	return version, nil
}

// SetVersion writes the version marker, creating it as the first child when absent
func (d *Document) SetVersion(version int) {
	root := d.Root()
	marker := root.SelectElement(VersionTag)
	if marker == nil {
		marker = etree.NewElement(VersionTag)
		root.InsertChildAt(0, marker)
	}
	marker.SetText(strconv.Itoa(version))
}

// ErrNoParent is returned when an edit needs the parent of the root node
var ErrNoParent = errors.New("root node has no parent")

// Walk visits every element below (and including) the root in document order.
// Returning false from fn skips the element's children.
func Walk(el *etree.Element, fn func(*etree.Element) bool) {
	if !fn(el) {
		return
	}
	for _, child := range el.ChildElements() {
		Walk(child, fn)
	}
}

// FindAll returns every element with the given tag in the subtree, in document order
func (d *Document) FindAll(tag string) []*etree.Element {
	var found []*etree.Element
	Walk(d.Root(), func(el *etree.Element) bool {
		if el.Tag == tag {
			found = append(found, el)
		}
		return true
	})
	return found
}

// RenameRoot renames the root node when its tag equals from
func (d *Document) RenameRoot(from, to string) bool {
	root := d.Root()
	if root.Tag != from {
		return false
	}
	root.Tag = to
	return true
}

// RenameTag renames every node tagged from, returning the number renamed
func (d *Document) RenameTag(from, to string) int {
	matches := d.FindAll(from)
	for _, el := range matches {
		el.Tag = to
	}
	return len(matches)
}

// RemoveTag removes every node tagged tag throughout the tree, root excluded
func (d *Document) RemoveTag(tag string) int {
	removed := 0
	for _, el := range d.FindAll(tag) {
		parent := el.Parent()
		if parent == nil {
			continue
		}
		parent.RemoveChild(el)
		removed++
	}
	return removed
}

// UnwrapTag replaces every node tagged tag with its own children, keeping order
func (d *Document) UnwrapTag(tag string) int {
	unwrapped := 0
	for _, el := range d.FindAll(tag) {
		parent := el.Parent()
		if parent == nil {
			continue
		}
		index := el.Index()
		children := append([]etree.Token(nil), el.Child...)
		parent.RemoveChildAt(index)
		for offset, child := range children {
			parent.InsertChildAt(index+offset, child)
		}
		unwrapped++
	}
	return unwrapped
}

// Ensure returns the node at the slash separated path below the root,
// creating missing nodes on the way
func (d *Document) Ensure(path string) *etree.Element {
	current := d.Root()
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		next := current.SelectElement(part)
		if next == nil {
			next = current.CreateElement(part)
		}
		current = next
	}
	return current
}

// Lookup returns the node at the slash separated path below the root
func (d *Document) Lookup(path string) *etree.Element {
	current := d.Root()
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		current = current.SelectElement(part)
		if current == nil {
			return nil
		}
	}
	return current
}

// InsertDefault creates the node at path with value when it does not exist yet
func (d *Document) InsertDefault(path, value string) bool {
	if d.Lookup(path) != nil {
		return false
	}
	d.Ensure(path).SetText(value)
	return true
}

// RewriteText replaces the text of every node tagged tag for which rewrite reports a change
func (d *Document) RewriteText(tag string, rewrite func(string) (string, bool)) int {
	changed := 0
	for _, el := range d.FindAll(tag) {
		if next, ok := rewrite(el.Text()); ok {
			el.SetText(next)
			changed++
		}
	}
	return changed
}
