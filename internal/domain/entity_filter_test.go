package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityFilterMatches(t *testing.T) {
	e := NewEntity("project", "Core Platform").
		WithDescription("shared services").
		WithProperty("tier", "gold")

	yes, no := true, false
	cases := []struct {
		name   string
		filter EntityFilter
		want   bool
	}{
		{"zero value", EntityFilter{}, true},
		{"value", EntityFilter{PropertyFilters: []PropertyFilter{{Key: "tier", Value: "gold"}}}, true},
		{"wrong value", EntityFilter{PropertyFilters: []PropertyFilter{{Key: "tier", Value: "bronze"}}}, false},
		{"exists", EntityFilter{PropertyFilters: []PropertyFilter{{Key: "tier", Exists: &yes}}}, true},
		{"absent", EntityFilter{PropertyFilters: []PropertyFilter{{Key: "owner", Exists: &no}}}, true},
		{"absent but required", EntityFilter{PropertyFilters: []PropertyFilter{{Key: "owner", Exists: &yes}}}, false},
		{"in array", EntityFilter{PropertyFilters: []PropertyFilter{{Key: "tier", InArray: []string{"silver", "gold"}}}}, true},
		{"not in array", EntityFilter{PropertyFilters: []PropertyFilter{{Key: "tier", InArray: []string{"silver"}}}}, false},
		{"search name", EntityFilter{TextSearch: "platform"}, true},
		{"search description", EntityFilter{TextSearch: "SERVICES"}, true},
		{"search miss", EntityFilter{TextSearch: "billing"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter.Matches(e))
		})
	}
}

func TestParseEntitySort(t *testing.T) {
	s, err := ParseEntitySort("-property:tier")
	require.NoError(t, err)
	assert.Equal(t, EntitySort{Field: EntitySortFieldProperty, Direction: SortDirectionDesc, PropertyKey: "tier"}, s)

	s, err = ParseEntitySort("name")
	require.NoError(t, err)
	assert.Equal(t, SortDirectionAsc, s.Direction)

	_, err = ParseEntitySort("property:")
	assert.Error(t, err)
	_, err = ParseEntitySort("created_at")
	assert.Error(t, err)
}

func TestEntitySort(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewEntity("project", "beta").WithProperty("rank", "2").WithModification("u", base.Add(2*time.Hour))
	b := NewEntity("project", "alpha").WithProperty("rank", "3").WithModification("u", base)
	c := NewEntity("project", "gamma").WithProperty("rank", "1").WithModification("u", base.Add(time.Hour))

	names := func(es []Entity) []string {
		out := make([]string, len(es))
		for i, e := range es {
			out[i] = e.Name
		}
		return out
	}

	entities := []Entity{a, b, c}
	EntitySort{Field: EntitySortFieldName}.Sort(entities)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, names(entities))

	EntitySort{Field: EntitySortFieldLastModified, Direction: SortDirectionDesc}.Sort(entities)
	assert.Equal(t, []string{"beta", "gamma", "alpha"}, names(entities))

	EntitySort{Field: EntitySortFieldProperty, PropertyKey: "rank"}.Sort(entities)
	assert.Equal(t, []string{"gamma", "beta", "alpha"}, names(entities))
}
