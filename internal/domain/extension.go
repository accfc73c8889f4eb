package domain

import (
	"iter"
	"sort"
	"sync"
)

// Extension is an independently typed sub-record attached to an entity.
// Concrete extensions are plain structs that encode to XML.
type Extension interface {
	ExtensionType() string
}

// ExtensionsMap holds at most one extension per type identifier.
// Iteration always follows the sorted type identifiers so repeated
// serialization of an unchanged entity yields identical bytes.
type ExtensionsMap struct {
	mu    sync.RWMutex
	items map[string]Extension
}

// NewExtensionsMap creates an empty map, optionally seeded with extensions
func NewExtensionsMap(exts ...Extension) *ExtensionsMap {
	m := &ExtensionsMap{items: make(map[string]Extension, len(exts))}
	for _, ext := range exts {
		m.items[ext.ExtensionType()] = ext
	}
	return m
}

// Put stores ext, replacing any extension with the same type identifier
func (m *ExtensionsMap) Put(ext Extension) {
	if ext == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]Extension)
	}
	m.items[ext.ExtensionType()] = ext
}

// Get returns the extension registered under typeID
func (m *ExtensionsMap) Get(typeID string) (Extension, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ext, ok := m.items[typeID]
	return ext, ok
}

// Delete removes the extension registered under typeID
func (m *ExtensionsMap) Delete(typeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[typeID]
	delete(m.items, typeID)
	return ok
}

// Len returns the number of extensions
func (m *ExtensionsMap) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Types returns the sorted type identifiers
func (m *ExtensionsMap) Types() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	types := make([]string, 0, len(m.items))
	for typeID := range m.items {
		types = append(types, typeID)
	}
	sort.Strings(types)
	return types
}

// All iterates over a snapshot of the extensions in type identifier order
func (m *ExtensionsMap) All() iter.Seq2[string, Extension] {
	return func(yield func(string, Extension) bool) {
		if m == nil {
			return
		}
		m.mu.RLock()
		snapshot := make(map[string]Extension, len(m.items))
		for k, v := range m.items {
			snapshot[k] = v
		}
		m.mu.RUnlock()

		keys := make([]string, 0, len(snapshot))
		for k := range snapshot {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !yield(k, snapshot[k]) {
				return
			}
		}
	}
}

// Clone returns an independent copy of the map. Extension values are shared.
func (m *ExtensionsMap) Clone() *ExtensionsMap {
	clone := NewExtensionsMap()
	if m == nil {
		return clone
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, v := range m.items {
		clone.items[k] = v
	}
	return clone
}

// FindExtension returns the first extension, in type identifier order,
// that implements capability C.
func FindExtension[C any](m *ExtensionsMap) (C, bool) {
	for _, ext := range m.All() {
		if c, ok := ext.(C); ok {
			return c, true
		}
	}
	var zero C
	return zero, false
}

// FindExtensions returns every extension implementing capability C in type identifier order
func FindExtensions[C any](m *ExtensionsMap) []C {
	var found []C
	for _, ext := range m.All() {
		if c, ok := ext.(C); ok {
			found = append(found, c)
		}
	}
	return found
}
