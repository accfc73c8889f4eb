package migration

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/rpattn/entitystore/internal/document"
	"github.com/rpattn/entitystore/internal/domain"
)

// MigrationGapError reports a missing migration. The entity cannot be loaded until one is added.
type MigrationGapError struct {
	EntityType string
	Version    int
}

func (e *MigrationGapError) Error() string {
	return fmt.Sprintf("no migration registered for %s from model version %d", e.EntityType, e.Version)
}

// FutureVersionError reports a document written by a newer model than the running one
type FutureVersionError struct {
	EntityType     string
	StoredVersion  int
	CurrentVersion int
}

func (e *FutureVersionError) Error() string {
	return fmt.Sprintf("document for %s has model version %d, newer than current version %d", e.EntityType, e.StoredVersion, e.CurrentVersion)
}

// Engine applies registered migrations in order
type Engine struct {
	registry *Registry
	logger   *slog.Logger
}

// NewEngine creates an engine over registry
func NewEngine(registry *Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{registry: registry, logger: logger}
}

// Registry returns the engine's migration registry
func (e *Engine) Registry() *Registry {
	return e.registry
}

// RegisterType records the legacy aliases of an entity type in the alias table
func (e *Engine) RegisterType(t domain.EntityType) error {
	for _, alias := range t.Aliases {
		if err := e.registry.Aliases().Add(alias, t.Name); err != nil {
			return fmt.Errorf("failed to register alias for %s: %w", t.Name, err)
		}
	}
	return nil
}

// ResolveType maps a legacy type name to its current name
func (e *Engine) ResolveType(name string) string {
	return e.registry.Aliases().ResolveType(name)
}

// Migrate upgrades doc in place to the model version of t and returns the
// number of migrations applied. A document already at the current version is left untouched.
func (e *Engine) Migrate(doc *document.Document, t domain.EntityType) (int, error) {
	stored, err := doc.Version()
	if err != nil {
		return 0, err
	}
	if stored > t.ModelVersion {
		return 0, &FutureVersionError{EntityType: t.Name, StoredVersion: stored, CurrentVersion: t.ModelVersion}
	}

	applied := 0
	for version := stored; version < t.ModelVersion; version++ {
		m, ok := e.registry.Lookup(t.Name, version)
		if !ok {
			return applied, &MigrationGapError{EntityType: t.Name, Version: version}
		}
		if err := m.Transform(doc); err != nil {
			return applied, fmt.Errorf("failed to migrate %s from version %d: %w", t.Name, version, err)
		}
		doc.SetVersion(version + 1)
		applied++
	}

	if applied > 0 {
		e.logger.Debug("migrated document",
			slog.String("entity_type", t.Name),
			slog.Int("from_version", stored),
			slog.Int("to_version", t.ModelVersion))
	}
	return applied, nil
}

// Verify checks that every version in [0, ModelVersion) of every type has a migration.
// All gaps are reported together.
func (e *Engine) Verify(types ...domain.EntityType) error {
	var gaps []error
	for _, t := range types {
		for version := 0; version < t.ModelVersion; version++ {
			if _, ok := e.registry.Lookup(t.Name, version); !ok {
				gaps = append(gaps, &MigrationGapError{EntityType: t.Name, Version: version})
			}
		}
	}
	return errors.Join(gaps...)
}
