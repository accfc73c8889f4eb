package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rpattn/entitystore/internal/cache"
	"github.com/rpattn/entitystore/internal/codec"
	"github.com/rpattn/entitystore/internal/document"
	"github.com/rpattn/entitystore/internal/domain"
	"github.com/rpattn/entitystore/internal/migration"
	"github.com/rpattn/entitystore/internal/schema/validator"
	"github.com/rpattn/entitystore/internal/storage"
)

// DefaultCacheCapacity is the entity cache size used when no cache is configured
const DefaultCacheCapacity = 512

var tracer = otel.Tracer("entitystore.repository")

// CacheKey addresses a cached entity
type CacheKey struct {
	Type string
	ID   uuid.UUID
}

// EntityCache caches decoded entities by type and id
type EntityCache = cache.Cache[CacheKey, domain.Entity]

// Config carries the collaborators of the persistence service
type Config struct {
	Types   *domain.TypeRegistry
	Backend storage.Backend
	Engine  *migration.Engine
	Codec   *codec.Codec
	// Cache is optional; an LRU cache of DefaultCacheCapacity entries is used when nil
	Cache *EntityCache
	// Logger is optional, defaults to slog.Default()
	Logger *slog.Logger
	// Registerer is optional; metrics are registered on it when set
	Registerer prometheus.Registerer
	// Clock is optional, defaults to time.Now
	Clock func() time.Time
}

// entityRepository implements EntityRepository
type entityRepository struct {
	types   *domain.TypeRegistry
	backend storage.Backend
	engine  *migration.Engine
	codec   *codec.Codec
	cache   *EntityCache
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	// fillMu orders cache fills against invalidations; writes counts
	// invalidations so a Load that read before a write does not fill.
	fillMu sync.Mutex
	writes uint64

	listenersMu  sync.RWMutex
	listeners    map[uint64]Listener
	nextListener uint64
}

// NewEntityRepository creates the persistence service
func NewEntityRepository(cfg Config) (EntityRepository, error) {
	if cfg.Types == nil || cfg.Backend == nil || cfg.Engine == nil || cfg.Codec == nil {
		return nil, fmt.Errorf("entity repository requires types, backend, engine and codec")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	entities := cfg.Cache
	if entities == nil {
		c, err := cache.New[CacheKey, domain.Entity, uint64](DefaultCacheCapacity, cache.NewLRU[CacheKey]())
		if err != nil {
			return nil, fmt.Errorf("failed to create entity cache: %w", err)
		}
		entities = c
	}

	metrics, err := NewMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register repository metrics: %w", err)
	}

	return &entityRepository{
		types:     cfg.Types,
		backend:   cfg.Backend,
		engine:    cfg.Engine,
		codec:     cfg.Codec,
		cache:     entities,
		logger:    logger,
		metrics:   metrics,
		now:       now,
		listeners: make(map[uint64]Listener),
	}, nil
}

// Persist validates, encodes and stores e
func (r *entityRepository) Persist(ctx context.Context, e domain.Entity, userID string) (domain.Entity, error) {
	ctx, span := tracer.Start(ctx, "repository.Persist", trace.WithAttributes(
		attribute.String("entity_type", e.Type),
		attribute.String("entity_id", e.ID.String()),
	))
	defer span.End()

	t, err := r.lookupType(e.Type)
	if err != nil {
		failSpan(span, err, "unknown entity type")
		return domain.Entity{}, err
	}
	logger := r.logger.With(slog.String("entity_type", t.Name), slog.String("entity_id", e.ID.String()))

	issues, err := validator.Check(e, t)
	if err != nil {
		r.metrics.recordPersist(t.Name, "invalid")
		logger.Info("rejected invalid entity", slog.Int("issues", len(issues)))
		failSpan(span, err, "validation failed")
		return domain.Entity{}, err
	}
	for _, issue := range issues {
		logger.Debug("validation issue", slog.String("severity", issue.Severity.String()), slog.String("field", issue.Field), slog.String("message", issue.Message))
	}

	at := r.now().UTC()
	stamped := e.WithModification(userID, at)
	doc, err := r.codec.Encode(stamped, t)
	if err != nil {
		r.metrics.recordPersist(t.Name, "error")
		failSpan(span, err, "encode failed")
		return domain.Entity{}, fmt.Errorf("failed to encode %s %s: %w", t.Name, e.ID, err)
	}
	content, err := doc.Bytes()
	if err != nil {
		r.metrics.recordPersist(t.Name, "error")
		failSpan(span, err, "encode failed")
		return domain.Entity{}, err
	}

	id := stamped.ID.String()
	if err := r.backend.Archive(ctx, t.Category, id); err != nil {
		r.metrics.recordPersist(t.Name, "error")
		failSpan(span, err, "archive failed")
		return domain.Entity{}, err
	}
	if err := r.backend.Write(ctx, t.Category, id, content); err != nil {
		r.metrics.recordPersist(t.Name, "error")
		failSpan(span, err, "write failed")
		return domain.Entity{}, err
	}

	if err := r.invalidate(CacheKey{Type: t.Name, ID: stamped.ID}); err != nil {
		logger.Warn("failed to invalidate cached entity", slog.Any("error", err))
	}
	r.metrics.recordPersist(t.Name, "ok")
	logger.Debug("persisted entity", slog.String("user_id", userID), slog.Int("bytes", len(content)))

	r.notify(ChangeEvent{Type: t.Name, ID: stamped.ID, UserID: userID, At: at})
	return stamped, nil
}

// Load returns a cached entity or reads, migrates and decodes the stored one
func (r *entityRepository) Load(ctx context.Context, entityType string, id uuid.UUID) (domain.Entity, bool, error) {
	ctx, span := tracer.Start(ctx, "repository.Load", trace.WithAttributes(
		attribute.String("entity_type", entityType),
		attribute.String("entity_id", id.String()),
	))
	defer span.End()

	t, err := r.lookupType(entityType)
	if err != nil {
		failSpan(span, err, "unknown entity type")
		return domain.Entity{}, false, err
	}

	key := CacheKey{Type: t.Name, ID: id}
	if cached, ok, err := r.cache.Get(key); err == nil && ok {
		r.metrics.recordLoad(t.Name, "hit")
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached.Clone(), true, nil
	}

	started := time.Now()
	defer r.metrics.observeLoad(t.Name, started)

	generation := r.writeGeneration()

	content, ok, err := r.backend.Read(ctx, t.Category, id.String())
	if err != nil {
		r.metrics.recordLoad(t.Name, "error")
		failSpan(span, err, "read failed")
		return domain.Entity{}, false, err
	}
	if !ok {
		r.metrics.recordLoad(t.Name, "not_found")
		return domain.Entity{}, false, nil
	}

	e, applied, err := r.decode(content, t)
	if err != nil {
		r.metrics.recordLoad(t.Name, "error")
		failSpan(span, err, "decode failed")
		return domain.Entity{}, false, err
	}
	if e.ID != id {
		err := &document.ParseError{Reason: fmt.Sprintf("document id %s stored under %s", e.ID, id)}
		r.metrics.recordLoad(t.Name, "error")
		failSpan(span, err, "id mismatch")
		return domain.Entity{}, false, err
	}
	r.metrics.recordMigrations(t.Name, applied)
	span.SetAttributes(attribute.Int("migrations_applied", applied))

	if err := r.fill(key, e, generation); err != nil {
		r.logger.Warn("failed to cache entity", slog.String("entity_type", t.Name), slog.String("entity_id", id.String()), slog.Any("error", err))
	}
	r.metrics.recordLoad(t.Name, "miss")
	return e, true, nil
}

func (r *entityRepository) invalidate(key CacheKey) error {
	r.fillMu.Lock()
	defer r.fillMu.Unlock()
	r.writes++
	_, err := r.cache.Delete(key)
	return err
}

func (r *entityRepository) writeGeneration() uint64 {
	r.fillMu.Lock()
	defer r.fillMu.Unlock()
	return r.writes
}

// fill caches a copy of e unless a write happened since generation was taken
func (r *entityRepository) fill(key CacheKey, e domain.Entity, generation uint64) error {
	r.fillMu.Lock()
	defer r.fillMu.Unlock()
	if r.writes != generation {
		return nil
	}
	return r.cache.Put(key, e.Clone())
}

// LoadMany loads each id; missing entities are left out of the result
func (r *entityRepository) LoadMany(ctx context.Context, entityType string, ids []uuid.UUID) (map[uuid.UUID]domain.Entity, error) {
	found := make(map[uuid.UUID]domain.Entity, len(ids))
	for _, id := range ids {
		if _, seen := found[id]; seen {
			continue
		}
		e, ok, err := r.Load(ctx, entityType, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s %s: %w", entityType, id, err)
		}
		if ok {
			found[id] = e
		}
	}
	return found, nil
}

// GetAll loads every entity of the type's category. Records that cannot be
// loaded are logged and skipped.
func (r *entityRepository) GetAll(ctx context.Context, entityType string, predicate Predicate) ([]domain.Entity, error) {
	ctx, span := tracer.Start(ctx, "repository.GetAll", trace.WithAttributes(attribute.String("entity_type", entityType)))
	defer span.End()

	t, err := r.lookupType(entityType)
	if err != nil {
		failSpan(span, err, "unknown entity type")
		return nil, err
	}

	keys, err := r.backend.Keys(ctx, t.Category)
	if err != nil {
		failSpan(span, err, "keys failed")
		return nil, err
	}

	entities := make([]domain.Entity, 0, len(keys))
	skipped := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			failSpan(span, err, "cancelled")
			return nil, err
		}

		id, err := uuid.Parse(key)
		if err != nil {
			skipped++
			r.metrics.recordSkipped(t.Name)
			r.logger.Warn("skipping record with invalid id", slog.String("entity_type", t.Name), slog.String("key", key))
			continue
		}

		e, ok, err := r.Load(ctx, t.Name, id)
		if err != nil {
			skipped++
			r.metrics.recordSkipped(t.Name)
			r.logger.Warn("skipping unreadable record",
				slog.String("entity_type", t.Name),
				slog.String("entity_id", key),
				slog.Any("error", err))
			continue
		}
		if !ok {
			continue
		}
		if predicate == nil || predicate(e) {
			entities = append(entities, e)
		}
	}

	span.SetAttributes(attribute.Int("entities", len(entities)), attribute.Int("skipped", skipped))
	return entities, nil
}

// History lists the archived versions of an entity
func (r *entityRepository) History(ctx context.Context, entityType string, id uuid.UUID) ([]domain.HistoryEntry, error) {
	t, err := r.lookupType(entityType)
	if err != nil {
		return nil, err
	}
	reader, ok := r.backend.(storage.HistoryReader)
	if !ok {
		return nil, ErrHistoryUnsupported
	}

	var entries []domain.HistoryEntry
	for entry, err := range reader.History(ctx, t.Category, id.String()) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Before(entries[j]) })
	return entries, nil
}

// Diff compares the archived version with the given sequence to the current document
func (r *entityRepository) Diff(ctx context.Context, entityType string, id uuid.UUID, sequence uint64) (string, error) {
	entries, err := r.History(ctx, entityType, id)
	if err != nil {
		return "", err
	}

	var base *domain.HistoryEntry
	for i := range entries {
		if entries[i].Sequence == sequence {
			base = &entries[i]
			break
		}
	}
	if base == nil {
		return "", fmt.Errorf("%w: %s %s sequence %d", ErrHistoryEntryNotFound, entityType, id, sequence)
	}

	t, _ := r.lookupType(entityType)
	current, _, err := r.backend.Read(ctx, t.Category, id.String())
	if err != nil {
		return "", err
	}
	return domain.DiffHistory(*base, current)
}

// Upgrade migrates and rewrites every stored document of the type that is
// below the current model version
func (r *entityRepository) Upgrade(ctx context.Context, entityType string, userID string) (UpgradeReport, error) {
	ctx, span := tracer.Start(ctx, "repository.Upgrade", trace.WithAttributes(attribute.String("entity_type", entityType)))
	defer span.End()

	var report UpgradeReport
	t, err := r.lookupType(entityType)
	if err != nil {
		failSpan(span, err, "unknown entity type")
		return report, err
	}

	keys, err := r.backend.Keys(ctx, t.Category)
	if err != nil {
		failSpan(span, err, "keys failed")
		return report, err
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		logger := r.logger.With(slog.String("entity_type", t.Name), slog.String("entity_id", key))

		content, ok, err := r.backend.Read(ctx, t.Category, key)
		if err != nil {
			return report, err
		}
		if !ok {
			continue
		}

		doc, err := document.Parse(content)
		var version int
		if err == nil {
			version, err = doc.Version()
		}
		if err != nil {
			report.Failed++
			logger.Warn("cannot upgrade unreadable record", slog.Any("error", err))
			continue
		}
		if version >= t.ModelVersion {
			continue
		}

		e, _, err := r.decode(content, t)
		if err == nil {
			_, err = r.Persist(ctx, e, userID)
		}
		if err != nil {
			report.Failed++
			logger.Warn("failed to upgrade record", slog.Int("stored_version", version), slog.Any("error", err))
			continue
		}
		report.Upgraded++
		logger.Info("upgraded record", slog.Int("from_version", version), slog.Int("to_version", t.ModelVersion))
	}
	return report, nil
}

// Subscribe registers listener for change events
func (r *entityRepository) Subscribe(listener Listener) func() {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	id := r.nextListener
	r.nextListener++
	r.listeners[id] = listener

	var once sync.Once
	return func() {
		once.Do(func() {
			r.listenersMu.Lock()
			defer r.listenersMu.Unlock()
			delete(r.listeners, id)
		})
	}
}

// notify delivers event to every listener on its own goroutine. Delivery is
// not guaranteed and listener panics are contained.
func (r *entityRepository) notify(event ChangeEvent) {
	r.listenersMu.RLock()
	listeners := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.listenersMu.RUnlock()

	for _, l := range listeners {
		go func(l Listener) {
			defer func() {
				if p := recover(); p != nil {
					r.metrics.recordListenerPanic()
					r.logger.Error("change listener panicked",
						slog.String("entity_type", event.Type),
						slog.String("entity_id", event.ID.String()),
						slog.Any("panic", p))
				}
			}()
			l(event)
		}(l)
	}
}

func (r *entityRepository) decode(content []byte, t domain.EntityType) (domain.Entity, int, error) {
	doc, err := document.Parse(content)
	if err != nil {
		return domain.Entity{}, 0, err
	}
	applied, err := r.engine.Migrate(doc, t)
	if err != nil {
		return domain.Entity{}, applied, err
	}
	e, err := r.codec.Decode(doc, t)
	if err != nil {
		return domain.Entity{}, applied, err
	}
	return e, applied, nil
}

// lookupType resolves current and legacy type names
func (r *entityRepository) lookupType(name string) (domain.EntityType, error) {
	if t, ok := r.types.Lookup(name); ok {
		return t, nil
	}
	if t, ok := r.types.Lookup(r.engine.ResolveType(name)); ok {
		return t, nil
	}
	return domain.EntityType{}, fmt.Errorf("%w: %s", ErrUnknownType, name)
}

func failSpan(span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}
