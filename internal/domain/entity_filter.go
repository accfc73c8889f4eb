package domain

import (
	"slices"
	"strings"
)

// EntityFilter represents filtering options for listing entities.
// The zero value matches everything.
type EntityFilter struct {
	PropertyFilters []PropertyFilter
	TextSearch      string
}

// PropertyFilter represents a property-level filter. Value, Exists and InArray
// are combined with AND when several are set.
type PropertyFilter struct {
	Key     string
	Value   string
	Exists  *bool
	InArray []string
}

// Matches reports whether e satisfies every property filter and contains
// the search text in its name or description, ignoring case
func (f EntityFilter) Matches(e Entity) bool {
	for _, pf := range f.PropertyFilters {
		if !pf.Matches(e) {
			return false
		}
	}
	if search := strings.TrimSpace(f.TextSearch); search != "" {
		search = strings.ToLower(search)
		if !strings.Contains(strings.ToLower(e.Name), search) &&
			!strings.Contains(strings.ToLower(e.Description), search) {
			return false
		}
	}
	return true
}

func (pf PropertyFilter) Matches(e Entity) bool {
	value, ok := e.Property(pf.Key)
	if pf.Exists != nil && ok != *pf.Exists {
		return false
	}
	if pf.Value != "" && (!ok || value != pf.Value) {
		return false
	}
	if len(pf.InArray) > 0 && (!ok || !slices.Contains(pf.InArray, value)) {
		return false
	}
	return true
}
