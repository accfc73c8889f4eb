package entityloader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/entitystore/internal/domain"
	"github.com/rpattn/entitystore/internal/repository"
)

// DefaultWait is how long the loader collects keys before dispatching a batch
const DefaultWait = 5 * time.Millisecond

// EntityLoader batches loads of one entity type
type EntityLoader struct {
	Loader     *dataloader.Loader
	entityType string
}

// NewEntityLoader creates a batching loader for entityType on top of repo
func NewEntityLoader(repo repository.EntityRepository, entityType string, opts ...dataloader.Option) *EntityLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))

		// Invalid keys fail individually, the rest of the batch still loads
		ids := make([]uuid.UUID, 0, len(keys))
		parsed := make([]uuid.UUID, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				results[i] = &dataloader.Result{Error: fmt.Errorf("invalid UUID %q: %w", k.String(), err)}
				continue
			}
			parsed[i] = id
			ids = append(ids, id)
		}

		entities, err := repo.LoadMany(ctx, entityType, ids)
		if err != nil {
			for i := range results {
				if results[i] == nil {
					results[i] = &dataloader.Result{Error: err}
				}
			}
			return results
		}

		// Build results in the same order as keys
		for i, id := range parsed {
			if results[i] != nil {
				continue
			}
			if e, ok := entities[id]; ok {
				results[i] = &dataloader.Result{Data: e}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	options := append([]dataloader.Option{dataloader.WithWait(DefaultWait)}, opts...)
	return &EntityLoader{
		Loader:     dataloader.NewBatchedLoader(batchFn, options...),
		entityType: entityType,
	}
}

// Load returns the entity with id, ok is false when it does not exist
func (l *EntityLoader) Load(ctx context.Context, id uuid.UUID) (domain.Entity, bool, error) {
	data, err := l.Loader.Load(ctx, dataloader.StringKey(id.String()))()
	if err != nil {
		return domain.Entity{}, false, err
	}
	if data == nil {
		return domain.Entity{}, false, nil
	}
	e, ok := data.(domain.Entity)
	if !ok {
		return domain.Entity{}, false, fmt.Errorf("unexpected %T in %s loader", data, l.entityType)
	}
	return e, true, nil
}

// Clear drops a memoized result, typically after the entity was persisted
func (l *EntityLoader) Clear(ctx context.Context, id uuid.UUID) {
	l.Loader.Clear(ctx, dataloader.StringKey(id.String()))
}

// ClearOnChange subscribes to repo and clears entries of this loader's type when they change
func (l *EntityLoader) ClearOnChange(repo repository.EntityRepository) (cancel func()) {
	return repo.Subscribe(func(e repository.ChangeEvent) {
		if e.Type == l.entityType {
			l.Clear(context.Background(), e.ID)
		}
	})
}
