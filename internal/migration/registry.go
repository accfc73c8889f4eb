// Package migration upgrades stored documents to the current model version of
// their entity type by applying an ordered chain of registered transforms.
package migration

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rpattn/entitystore/internal/document"
)

// Transform edits a document from one model version to the next.
// It must only match the legacy structure it upgrades.
type Transform func(doc *document.Document) error

// Migration upgrades documents of one entity type from FromVersion to FromVersion+1
type Migration struct {
	EntityType  string
	FromVersion int
	// Aliases are legacy type names this migration additionally accepts
	Aliases     []string
	Description string
	Transform   Transform
}

// key identifies a migration by type-or-alias and source version
type key struct {
	typeName string
	from     int
}

// AliasTable maps legacy type names to their current names
type AliasTable struct {
	mu      sync.RWMutex
	aliases map[string]string
}

// NewAliasTable creates an empty alias table
func NewAliasTable() *AliasTable {
	return &AliasTable{aliases: make(map[string]string)}
}

// Add records legacy as an alias of current
func (a *AliasTable) Add(legacy, current string) error {
	legacy = strings.TrimSpace(legacy)
	if legacy == "" || legacy == current {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.aliases[legacy]; ok && existing != current {
		return fmt.Errorf("alias %s already maps to %s, cannot map to %s", legacy, existing, current)
	}
	if _, isCurrent := a.aliases[current]; isCurrent {
		return fmt.Errorf("type %s is itself a legacy alias", current)
	}
	a.aliases[legacy] = current
	return nil
}

// ResolveType returns the current name for name, which is name itself when it is not an alias
func (a *AliasTable) ResolveType(name string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if current, ok := a.aliases[name]; ok {
		return current
	}
	return name
}

// AliasesOf returns the sorted legacy names of current
func (a *AliasTable) AliasesOf(current string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []string
	for legacy, target := range a.aliases {
		if target == current {
			out = append(out, legacy)
		}
	}
	sort.Strings(out)
	return out
}

// Registry holds migrations uniquely keyed by (type-or-alias, fromVersion)
type Registry struct {
	mu         sync.RWMutex
	migrations map[key]Migration
	aliases    *AliasTable
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		migrations: make(map[key]Migration),
		aliases:    NewAliasTable(),
	}
}

// Aliases returns the alias table shared by lookups and type resolution
func (r *Registry) Aliases() *AliasTable {
	return r.aliases
}

// Register adds a migration. Two migrations may never share a key.
func (r *Registry) Register(m Migration) error {
	if strings.TrimSpace(m.EntityType) == "" {
		return fmt.Errorf("migration requires an entity type")
	}
	if m.FromVersion < 0 {
		return fmt.Errorf("migration for %s has negative source version %d", m.EntityType, m.FromVersion)
	}
	if m.Transform == nil {
		return fmt.Errorf("migration for %s from version %d has no transform", m.EntityType, m.FromVersion)
	}

	names := append([]string{m.EntityType}, m.Aliases...)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if existing, ok := r.migrations[key{typeName: name, from: m.FromVersion}]; ok {
			return fmt.Errorf("duplicate migration for %s from version %d (already registered for %s)", name, m.FromVersion, existing.EntityType)
		}
	}
	for _, alias := range m.Aliases {
		if err := r.aliases.Add(alias, m.EntityType); err != nil {
			return fmt.Errorf("failed to register migration alias: %w", err)
		}
	}
	for _, name := range names {
		r.migrations[key{typeName: name, from: m.FromVersion}] = m
	}
	return nil
}

// MustRegister registers every migration and panics on conflicts. Intended for static tables.
func (r *Registry) MustRegister(migrations ...Migration) {
	for _, m := range migrations {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
}

// Lookup finds the migration for entityType, or one of its legacy aliases, at version from
func (r *Registry) Lookup(entityType string, from int) (Migration, bool) {
	r.mu.RLock()
	m, ok := r.migrations[key{typeName: entityType, from: from}]
	r.mu.RUnlock()
	if ok {
		return m, true
	}

	for _, alias := range r.aliases.AliasesOf(entityType) {
		r.mu.RLock()
		m, ok = r.migrations[key{typeName: alias, from: from}]
		r.mu.RUnlock()
		if ok {
			return m, true
		}
	}
	return Migration{}, false
}
