package codec

import (
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/entitystore/internal/document"
	"github.com/rpattn/entitystore/internal/domain"
)

type colorExt struct {
	XMLName xml.Name `xml:"color"`
	Value   string   `xml:"value"`
}

func (colorExt) ExtensionType() string { return "color" }

type sizeExt struct {
	XMLName xml.Name `xml:"size"`
	Width   int      `xml:"width,attr"`
}

func (sizeExt) ExtensionType() string { return "size" }

type aliases map[string]string

func (a aliases) ResolveType(name string) string {
	if current, ok := a[name]; ok {
		return current
	}
	return name
}

var widgetType = domain.EntityType{Name: "widget", Category: "widgets", ModelVersion: 4}

func newCodec(t *testing.T) *Codec {
	t.Helper()
	reg := NewExtensionRegistry()
	require.NoError(t, reg.Register("color", 2, XMLDecoder[colorExt](), "colour"))
	require.NoError(t, reg.Register("size", 1, XMLDecoder[sizeExt]()))
	return New(reg, aliases{"gadget": "widget"}, nil)
}

func sampleEntity() domain.Entity {
	parent := uuid.MustParse("9a4c8f5e-0d3b-4d8e-8f43-3f6b1b0d1a01")
	return domain.NewEntity("widget", "Sprocket").
		WithDescription("a small part").
		WithParent(parent).
		WithProperty("zeta", "last").
		WithProperty("alpha", "first").
		WithExtension(sizeExt{Width: 12}).
		WithExtension(colorExt{Value: "red"}).
		WithModification("alice", time.Date(2024, 3, 9, 10, 11, 12, 13, time.UTC))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := newCodec(t)
	original := sampleEntity()

	doc, err := c.Encode(original, widgetType)
	require.NoError(t, err)
	version, err := doc.Version()
	require.NoError(t, err)
	assert.Equal(t, 4, version)

	content, err := doc.Bytes()
	require.NoError(t, err)
	parsed, err := document.Parse(content)
	require.NoError(t, err)

	decoded, err := c.Decode(parsed, widgetType)
	require.NoError(t, err)
	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, original.ParentID, decoded.ParentID)
	assert.Equal(t, "Sprocket", decoded.Name)
	assert.Equal(t, "a small part", decoded.Description)
	assert.Equal(t, original.Properties, decoded.Properties)
	assert.Equal(t, "alice", decoded.LastModifiedBy)
	assert.True(t, original.LastModified.Equal(decoded.LastModified))
	assert.Equal(t, []string{"color", "size"}, decoded.Extensions.Types())

	color, ok := decoded.Extensions.Get("color")
	require.True(t, ok)
	assert.Equal(t, "red", color.(colorExt).Value)
	size, ok := domain.FindExtension[sizeExt](decoded.Extensions)
	require.True(t, ok)
	assert.Equal(t, 12, size.Width)
}

func TestEncodingIsDeterministic(t *testing.T) {
	c := newCodec(t)
	e := sampleEntity()

	first, err := c.Encode(e, widgetType)
	require.NoError(t, err)
	second, err := c.Encode(e, widgetType)
	require.NoError(t, err)

	a, err := first.Bytes()
	require.NoError(t, err)
	b, err := second.Bytes()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	text := string(a)
	assert.True(t, strings.HasPrefix(text, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Less(t, strings.Index(text, "<alpha>"), strings.Index(text, "<zeta>"))
	assert.Less(t, strings.Index(text, `type="color"`), strings.Index(text, `type="size"`))
	assert.Contains(t, text, `<ext type="color" version="2">`)
	assert.Less(t, strings.Index(text, "<modelVersion>"), strings.Index(text, "<id>"))
}

func TestEncodeRejectsUnregisteredExtension(t *testing.T) {
	c := New(NewExtensionRegistry(), nil, nil)
	_, err := c.Encode(sampleEntity(), widgetType)
	assert.ErrorContains(t, err, "not registered")

	_, err = c.Encode(domain.NewEntity("other", "x"), widgetType)
	assert.Error(t, err)
}

func TestDecodeLegacyNames(t *testing.T) {
	c := newCodec(t)
	doc, err := document.Parse([]byte(`<gadget>
  <modelVersion>4</modelVersion>
  <id>2f1d3c58-8a3e-4c55-9d0b-6d9f0e8f7a10</id>
  <name>Old</name>
  <extensions>
    <ext type="colour" version="1"><color><value>blue</value></color></ext>
  </extensions>
</gadget>`))
	require.NoError(t, err)

	e, err := c.Decode(doc, widgetType)
	require.NoError(t, err)
	assert.Equal(t, "widget", e.Type)
	color, ok := domain.FindExtension[colorExt](e.Extensions)
	require.True(t, ok)
	assert.Equal(t, "blue", color.Value)
}

func TestDecodeDropsBadExtensions(t *testing.T) {
	c := newCodec(t)
	doc, err := document.Parse([]byte(`<widget>
  <id>2f1d3c58-8a3e-4c55-9d0b-6d9f0e8f7a10</id>
  <name>W</name>
  <extensions>
    <ext type="unknown" version="1"><whatever/></ext>
    <ext type="color" version="3"><color><value>future</value></color></ext>
    <ext type="size" version="x"><size width="1"/></ext>
    <ext type="size" version="1"><size width="wide"/></ext>
    <ext type="size" version="1"></ext>
  </extensions>
</widget>`))
	require.NoError(t, err)

	e, err := c.Decode(doc, widgetType)
	require.NoError(t, err)
	assert.Zero(t, e.Extensions.Len())
	assert.Equal(t, "W", e.Name)
}

func TestDecodeErrors(t *testing.T) {
	c := newCodec(t)
	for name, content := range map[string]string{
		"wrong root":     `<project><id>2f1d3c58-8a3e-4c55-9d0b-6d9f0e8f7a10</id></project>`,
		"missing id":     `<widget><name>x</name></widget>`,
		"invalid id":     `<widget><id>nope</id></widget>`,
		"invalid parent": `<widget><id>2f1d3c58-8a3e-4c55-9d0b-6d9f0e8f7a10</id><parentId>x</parentId></widget>`,
		"invalid time":   `<widget><id>2f1d3c58-8a3e-4c55-9d0b-6d9f0e8f7a10</id><lastModified>yesterday</lastModified></widget>`,
	} {
		t.Run(name, func(t *testing.T) {
			doc, err := document.Parse([]byte(content))
			require.NoError(t, err)
			_, err = c.Decode(doc, widgetType)
			var pe *document.ParseError
			assert.True(t, errors.As(err, &pe), "got %v", err)
		})
	}
}

func TestExtensionRegistry(t *testing.T) {
	reg := NewExtensionRegistry()
	require.NoError(t, reg.Register("color", 1, XMLDecoder[colorExt](), "colour", "color"))

	assert.Error(t, reg.Register("color", 2, XMLDecoder[colorExt]()), "duplicate type")
	assert.Error(t, reg.Register("hue", 1, XMLDecoder[colorExt](), "colour"), "alias claimed twice")
	assert.Error(t, reg.Register("colour", 1, XMLDecoder[colorExt]()), "type shadowing an alias")
	assert.Error(t, reg.Register("", 1, XMLDecoder[colorExt]()))
	assert.Error(t, reg.Register("nodecoder", 1, nil))

	resolved, ok := reg.Resolve("colour")
	require.True(t, ok)
	assert.Equal(t, "color", resolved)
	_, ok = reg.Resolve("size")
	assert.False(t, ok)
	assert.Equal(t, []string{"color"}, reg.Types())
}
