package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type labelsExt struct{ names []string }

func (labelsExt) ExtensionType() string { return "labels" }
func (l labelsExt) Issues() Issues {
	if len(l.names) == 0 {
		return Issues{{Severity: SeverityWarning, Field: "labels", Message: "empty"}}
	}
	return nil
}

type linksExt struct{}

func (linksExt) ExtensionType() string { return "links" }

func TestEntityWithersDoNotShareState(t *testing.T) {
	original := NewEntity("project", "alpha").WithProperty("color", "red")
	parent := uuid.New()

	changed := original.
		WithProperty("color", "blue").
		WithParent(parent).
		WithExtension(labelsExt{names: []string{"a"}})

	assert.Equal(t, "red", original.Properties["color"])
	assert.Nil(t, original.ParentID)
	assert.Equal(t, 0, original.Extensions.Len())

	assert.Equal(t, original.ID, changed.ID)
	assert.Equal(t, "blue", changed.Properties["color"])
	assert.True(t, changed.IsChildOf(parent))
	assert.Equal(t, 1, changed.Extensions.Len())

	cleared := changed.WithoutParent().WithoutExtension("labels").WithoutProperty("color")
	assert.Nil(t, cleared.ParentID)
	assert.Equal(t, 0, cleared.Extensions.Len())
	_, ok := cleared.Property("color")
	assert.False(t, ok)
}

func TestEntityCloneIsIndependent(t *testing.T) {
	original := NewEntity("project", "alpha").WithProperty("color", "red").WithParent(uuid.New())
	clone := original.Clone()

	clone.Properties["color"] = "blue"
	*clone.ParentID = uuid.Nil
	clone.Extensions.Put(linksExt{})

	assert.Equal(t, "red", original.Properties["color"])
	assert.NotEqual(t, uuid.Nil, *original.ParentID)
	assert.Equal(t, 0, original.Extensions.Len())
}

func TestExtensionsMapSingleInstancePerType(t *testing.T) {
	m := NewExtensionsMap()
	m.Put(labelsExt{names: []string{"a"}})
	m.Put(labelsExt{names: []string{"b"}})
	m.Put(linksExt{})

	require.Equal(t, 2, m.Len())
	ext, ok := m.Get("labels")
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, ext.(labelsExt).names)
}

func TestExtensionsMapSortedIteration(t *testing.T) {
	m := NewExtensionsMap(linksExt{}, labelsExt{})

	var order []string
	for typeID := range m.All() {
		order = append(order, typeID)
	}
	assert.Equal(t, []string{"labels", "links"}, order)
	assert.Equal(t, order, m.Types())
}

func TestFindExtensionByCapability(t *testing.T) {
	m := NewExtensionsMap(linksExt{}, labelsExt{})

	reporter, ok := FindExtension[IssueReporter](m)
	require.True(t, ok)
	assert.Len(t, reporter.Issues(), 1)

	_, ok = FindExtension[interface{ Missing() }](m)
	assert.False(t, ok)

	assert.Len(t, FindExtensions[Extension](m), 2)
}

func TestTypeRegistry(t *testing.T) {
	r := NewTypeRegistry()
	require.NoError(t, r.Register(EntityType{Name: "project", Category: "projects", ModelVersion: 2}))
	assert.Error(t, r.Register(EntityType{Name: "project", Category: "other"}))
	assert.Error(t, r.Register(EntityType{Name: "other", Category: "projects"}))
	assert.Error(t, r.Register(EntityType{Name: "", Category: "x"}))

	got, ok := r.Lookup("project")
	require.True(t, ok)
	assert.Equal(t, 2, got.ModelVersion)
	assert.Len(t, r.List(), 1)
}

func TestIssuesHasFatal(t *testing.T) {
	var issues Issues
	issues.Add(SeverityWarning, "name", "short")
	assert.False(t, issues.HasFatal())

	issues.Addf(SeverityFatal, "id", "missing %s", "id")
	assert.True(t, issues.HasFatal())

	err := &ValidationError{EntityType: "project", Issues: issues}
	assert.Contains(t, err.Error(), "FATAL: id: missing id")
	assert.NotContains(t, err.Error(), "WARNING")
}
