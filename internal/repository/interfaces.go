package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/entitystore/internal/domain"
)

var (
	// ErrUnknownType is returned for entity types missing from the type registry
	ErrUnknownType = errors.New("unknown entity type")
	// ErrHistoryUnsupported is returned when the storage backend keeps no history
	ErrHistoryUnsupported = errors.New("storage backend does not keep history")
	// ErrHistoryEntryNotFound is returned by Diff for an unknown sequence number
	ErrHistoryEntryNotFound = errors.New("history entry not found")
)

// Predicate filters loaded entities. A nil predicate accepts everything.
type Predicate func(domain.Entity) bool

// ChangeEvent is published after an entity was written
type ChangeEvent struct {
	Type   string
	ID     uuid.UUID
	UserID string
	At     time.Time
}

// Listener receives change events on its own goroutine
type Listener func(ChangeEvent)

// UpgradeReport summarizes an Upgrade run
type UpgradeReport struct {
	Scanned  int
	Upgraded int
	Failed   int
}

// EntityRepository is the persistence service collaborators use to read and
// write typed entities
type EntityRepository interface {
	// Persist validates, encodes and stores e, archiving the previous version.
	// It returns the entity as stored, stamped with userID and the write time.
	Persist(ctx context.Context, e domain.Entity, userID string) (domain.Entity, error)
	// Load returns the entity, ok is false when nothing is stored under id
	Load(ctx context.Context, entityType string, id uuid.UUID) (domain.Entity, bool, error)
	// LoadMany loads several entities; missing ids are absent from the result
	LoadMany(ctx context.Context, entityType string, ids []uuid.UUID) (map[uuid.UUID]domain.Entity, error)
	// GetAll loads every entity of a type matching predicate, skipping unreadable ones
	GetAll(ctx context.Context, entityType string, predicate Predicate) ([]domain.Entity, error)
	// History lists archived versions of an entity, oldest first
	History(ctx context.Context, entityType string, id uuid.UUID) ([]domain.HistoryEntry, error)
	// Diff renders a unified diff from an archived version to the current one
	Diff(ctx context.Context, entityType string, id uuid.UUID, sequence uint64) (string, error)
	// Upgrade rewrites every stored document of a type that is below the current model version
	Upgrade(ctx context.Context, entityType string, userID string) (UpgradeReport, error)
	// Subscribe registers a change listener until cancel is called
	Subscribe(listener Listener) (cancel func())
}
