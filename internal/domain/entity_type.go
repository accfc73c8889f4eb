package domain

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// EntityType describes a kind of entity. The model version belongs to the
// type, not to instances, and only drives document migration.
type EntityType struct {
	Name         string
	Category     string // storage category
	ModelVersion int
	Aliases      []string // legacy type names
	// Validate reports type specific issues. Optional.
	Validate func(Entity) Issues
}

// TypeRegistry holds the known entity types
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]EntityType
}

// NewTypeRegistry creates an empty registry
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]EntityType)}
}

// Register adds an entity type. Names and categories must be unique.
func (r *TypeRegistry) Register(t EntityType) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("entity type name is required")
	}
	if strings.TrimSpace(t.Category) == "" {
		return fmt.Errorf("entity type %s requires a storage category", t.Name)
	}
	if t.ModelVersion < 0 {
		return fmt.Errorf("entity type %s has negative model version %d", t.Name, t.ModelVersion)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("entity type %s already registered", t.Name)
	}
	for _, existing := range r.types {
		if existing.Category == t.Category {
			return fmt.Errorf("storage category %s already used by entity type %s", t.Category, existing.Name)
		}
	}
	r.types[t.Name] = t
	return nil
}

// Lookup returns the entity type registered under name
func (r *TypeRegistry) Lookup(name string) (EntityType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// List returns all registered types sorted by name
func (r *TypeRegistry) List() []EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]EntityType, 0, len(r.types))
	for _, t := range r.types {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
