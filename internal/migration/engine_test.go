package migration

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/entitystore/internal/document"
	"github.com/rpattn/entitystore/internal/domain"
)

var widgetType = domain.EntityType{
	Name:         "widget",
	Category:     "widgets",
	ModelVersion: 3,
	Aliases:      []string{"gadget"},
}

func widgetMigrations() []Migration {
	return []Migration{
		{EntityType: "widget", FromVersion: 0, Aliases: []string{"gadget"}, Transform: RenameRoot("gadget", "widget")},
		{EntityType: "widget", FromVersion: 1, Transform: RenameTag("desc", "description")},
		{EntityType: "widget", FromVersion: 2, Transform: InsertDefault("properties/active", "true")},
	}
}

func newWidgetEngine(t *testing.T) *Engine {
	t.Helper()
	registry := NewRegistry()
	registry.MustRegister(widgetMigrations()...)
	engine := NewEngine(registry, nil)
	require.NoError(t, engine.RegisterType(widgetType))
	return engine
}

func parse(t *testing.T, content string) *document.Document {
	t.Helper()
	doc, err := document.Parse([]byte(content))
	require.NoError(t, err)
	return doc
}

func encode(t *testing.T, doc *document.Document) string {
	t.Helper()
	b, err := doc.Bytes()
	require.NoError(t, err)
	return string(b)
}

func TestVerifyTotality(t *testing.T) {
	engine := newWidgetEngine(t)
	require.NoError(t, engine.Verify(widgetType))

	longer := widgetType
	longer.ModelVersion = 5
	err := engine.Verify(longer)
	require.Error(t, err)

	var gap *MigrationGapError
	require.True(t, errors.As(err, &gap))
	assert.Equal(t, 3, gap.Version)
	assert.Contains(t, err.Error(), "from model version 4")
}

func TestMigrateFromEveryStoredVersion(t *testing.T) {
	engine := newWidgetEngine(t)

	inputs := []string{
		`<gadget><desc>d</desc></gadget>`,
		`<widget><modelVersion>1</modelVersion><desc>d</desc></widget>`,
		`<widget><modelVersion>2</modelVersion><description>d</description></widget>`,
		`<widget><modelVersion>3</modelVersion><description>d</description><properties><active>true</active></properties></widget>`,
	}

	var outputs []string
	for stored, input := range inputs {
		t.Run(fmt.Sprintf("from_%d", stored), func(t *testing.T) {
			doc := parse(t, input)
			applied, err := engine.Migrate(doc, widgetType)
			require.NoError(t, err)
			assert.Equal(t, widgetType.ModelVersion-stored, applied)

			version, err := doc.Version()
			require.NoError(t, err)
			assert.Equal(t, widgetType.ModelVersion, version)
			assert.Equal(t, "widget", doc.RootTag())
			outputs = append(outputs, encode(t, doc))
		})
	}

	for _, out := range outputs[1:] {
		assert.Equal(t, outputs[0], out)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	engine := newWidgetEngine(t)

	doc := parse(t, `<gadget><desc>d</desc></gadget>`)
	_, err := engine.Migrate(doc, widgetType)
	require.NoError(t, err)
	once := encode(t, doc)

	applied, err := engine.Migrate(doc, widgetType)
	require.NoError(t, err)
	assert.Zero(t, applied)
	assert.Equal(t, once, encode(t, doc))

	// Every transform leaves an already migrated document untouched.
	for _, m := range widgetMigrations() {
		again := parse(t, once)
		require.NoError(t, m.Transform(again))
		assert.Equal(t, once, encode(t, again))
	}
}

func TestMigrateIsDeterministic(t *testing.T) {
	engine := newWidgetEngine(t)
	input := `<gadget><desc>d</desc><extra a="1"/></gadget>`

	first := parse(t, input)
	second := parse(t, input)
	_, err := engine.Migrate(first, widgetType)
	require.NoError(t, err)
	_, err = engine.Migrate(second, widgetType)
	require.NoError(t, err)

	assert.Equal(t, encode(t, first), encode(t, second))
}

func TestMigrateGapIsFatal(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(
		Migration{EntityType: "widget", FromVersion: 0, Transform: Noop},
		Migration{EntityType: "widget", FromVersion: 2, Transform: Noop},
	)
	engine := NewEngine(registry, nil)

	doc := parse(t, `<widget/>`)
	applied, err := engine.Migrate(doc, widgetType)

	var gap *MigrationGapError
	require.True(t, errors.As(err, &gap), "expected gap error, got %v", err)
	assert.Equal(t, "widget", gap.EntityType)
	assert.Equal(t, 1, gap.Version)
	assert.Equal(t, 1, applied)
}

func TestMigrateRejectsFutureVersion(t *testing.T) {
	engine := newWidgetEngine(t)
	doc := parse(t, `<widget><modelVersion>9</modelVersion></widget>`)

	_, err := engine.Migrate(doc, widgetType)
	var future *FutureVersionError
	require.True(t, errors.As(err, &future))
	assert.Equal(t, 9, future.StoredVersion)
}

func TestMigrateTransformFailure(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(Migration{EntityType: "widget", FromVersion: 0, Transform: RequireRoot("widget")})
	engine := NewEngine(registry, nil)

	single := widgetType
	single.ModelVersion = 1
	_, err := engine.Migrate(parse(t, `<other/>`), single)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unexpected root "other"`)
}

func TestRegistryRejectsAmbiguousKeys(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(Migration{EntityType: "widget", FromVersion: 0, Aliases: []string{"gadget"}, Transform: Noop}))

	assert.Error(t, registry.Register(Migration{EntityType: "widget", FromVersion: 0, Transform: Noop}))
	assert.Error(t, registry.Register(Migration{EntityType: "gadget", FromVersion: 0, Transform: Noop}))
	assert.Error(t, registry.Register(Migration{EntityType: "other", FromVersion: 4, Aliases: []string{"gadget"}, Transform: Noop}))
	assert.Error(t, registry.Register(Migration{EntityType: "widget", FromVersion: 1}))
}

func TestLookupThroughAlias(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Aliases().Add("gadget", "widget"))
	registry.MustRegister(Migration{EntityType: "gadget", FromVersion: 0, Transform: Noop})

	m, ok := registry.Lookup("widget", 0)
	require.True(t, ok)
	assert.Equal(t, "gadget", m.EntityType)

	assert.Equal(t, "widget", registry.Aliases().ResolveType("gadget"))
	assert.Equal(t, "widget", registry.Aliases().ResolveType("widget"))
	assert.Equal(t, []string{"gadget"}, registry.Aliases().AliasesOf("widget"))
}
