package domain

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// SortDirection represents ordering direction for sortable fields.
type SortDirection string

const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// EntitySortField enumerates fields that can be sorted when listing entities.
type EntitySortField string

const (
	EntitySortFieldName         EntitySortField = "name"
	EntitySortFieldLastModified EntitySortField = "last_modified"
	EntitySortFieldProperty     EntitySortField = "property"
)

// EntitySort captures ordering preferences for entity listings.
type EntitySort struct {
	Field       EntitySortField
	Direction   SortDirection
	PropertyKey string
}

// ParseEntitySort reads "name", "last_modified" or "property:<key>",
// optionally prefixed with "-" for descending order
func ParseEntitySort(raw string) (EntitySort, error) {
	raw = strings.TrimSpace(raw)
	s := EntitySort{Direction: SortDirectionAsc}
	if rest, ok := strings.CutPrefix(raw, "-"); ok {
		s.Direction = SortDirectionDesc
		raw = rest
	}

	switch {
	case raw == string(EntitySortFieldName), raw == string(EntitySortFieldLastModified):
		s.Field = EntitySortField(raw)
	case strings.HasPrefix(raw, string(EntitySortFieldProperty)+":"):
		s.Field = EntitySortFieldProperty
		s.PropertyKey = strings.TrimPrefix(raw, string(EntitySortFieldProperty)+":")
		if s.PropertyKey == "" {
			return EntitySort{}, fmt.Errorf("sort by property requires a key")
		}
	default:
		return EntitySort{}, fmt.Errorf("unknown sort field %q", raw)
	}
	return s, nil
}

// Sort orders entities in place. Ties are broken by ID so the order is stable across runs.
func (s EntitySort) Sort(entities []Entity) {
	slices.SortStableFunc(entities, func(a, b Entity) int {
		var c int
		switch s.Field {
		case EntitySortFieldLastModified:
			c = a.LastModified.Compare(b.LastModified)
		case EntitySortFieldProperty:
			av, _ := a.Property(s.PropertyKey)
			bv, _ := b.Property(s.PropertyKey)
			c = cmp.Compare(av, bv)
		default:
			c = cmp.Compare(a.Name, b.Name)
		}
		if c == 0 {
			c = cmp.Compare(a.ID.String(), b.ID.String())
		}
		if s.Direction == SortDirectionDesc {
			return -c
		}
		return c
	})
}
