package catalog

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rpattn/entitystore/internal/codec"
	"github.com/rpattn/entitystore/internal/domain"
	"github.com/rpattn/entitystore/internal/migration"
	"github.com/rpattn/entitystore/internal/repository"
)

// Catalog bundles the registries a persistence service needs
type Catalog struct {
	Types      *domain.TypeRegistry
	Engine     *migration.Engine
	Extensions *codec.ExtensionRegistry
	Codec      *codec.Codec
}

// New builds registries holding every built-in type, extension and migration
// and checks that the migration chains are complete
func New(logger *slog.Logger) (*Catalog, error) {
	c := &Catalog{
		Types:      domain.NewTypeRegistry(),
		Engine:     migration.NewEngine(migration.NewRegistry(), logger),
		Extensions: codec.NewExtensionRegistry(),
	}
	if err := Register(c.Types, c.Engine, c.Extensions); err != nil {
		return nil, err
	}
	if err := c.Engine.Verify(Types()...); err != nil {
		return nil, fmt.Errorf("incomplete migration chain: %w", err)
	}
	c.Codec = codec.New(c.Extensions, c.Engine, logger)
	return c, nil
}

// Register adds the built-in types, extensions and migrations to the given registries
func Register(types *domain.TypeRegistry, engine *migration.Engine, extensions *codec.ExtensionRegistry) error {
	for _, t := range Types() {
		if err := types.Register(t); err != nil {
			return err
		}
		if err := engine.RegisterType(t); err != nil {
			return err
		}
	}

	for _, ms := range [][]migration.Migration{ProjectMigrations(), IssuesMigrations()} {
		for _, m := range ms {
			if err := engine.Registry().Register(m); err != nil {
				return err
			}
		}
	}

	if err := extensions.Register(LabelsExtension, 1, codec.XMLDecoder[Labels](), "tags"); err != nil {
		return err
	}
	return extensions.Register(LinksExtension, 1, codec.XMLDecoder[Links]())
}

// HasLabel accepts entities carrying a Labeled extension with label
func HasLabel(label string) repository.Predicate {
	return func(e domain.Entity) bool {
		for _, l := range domain.FindExtensions[Labeled](e.Extensions) {
			if l.HasLabel(label) {
				return true
			}
		}
		return false
	}
}

// ChildrenOf accepts entities whose parent is parentID
func ChildrenOf(parentID uuid.UUID) repository.Predicate {
	return func(e domain.Entity) bool {
		return e.IsChildOf(parentID)
	}
}
