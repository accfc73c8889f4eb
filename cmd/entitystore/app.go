package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rpattn/entitystore/internal/cache"
	"github.com/rpattn/entitystore/internal/catalog"
	"github.com/rpattn/entitystore/internal/config"
	"github.com/rpattn/entitystore/internal/db"
	"github.com/rpattn/entitystore/internal/domain"
	"github.com/rpattn/entitystore/internal/repository"
	"github.com/rpattn/entitystore/internal/storage"
	"github.com/rpattn/entitystore/internal/storage/filestore"
	"github.com/rpattn/entitystore/internal/storage/sqlstore"
)

// app is the wired persistence service behind every command
type app struct {
	catalog *catalog.Catalog
	repo    repository.EntityRepository
	cache   *repository.EntityCache
	logger  *slog.Logger
	closers []func()
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*app, error) {
	c, err := catalog.New(logger)
	if err != nil {
		return nil, err
	}

	a := &app{catalog: c, logger: logger}
	backend, err := a.openBackend(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.cache, err = cache.NewWithPolicyName[repository.CacheKey, domain.Entity](
		cfg.Cache.Capacity, cfg.Cache.Policy,
		cache.WithMetrics[repository.CacheKey, domain.Entity](reg, "entitystore"),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.repo, err = repository.NewEntityRepository(repository.Config{
		Types:      c.Types,
		Backend:    backend,
		Engine:     c.Engine,
		Codec:      c.Codec,
		Cache:      a.cache,
		Logger:     logger,
		Registerer: reg,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openBackend(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverFile:
		a.logger.Debug("using file storage", slog.String("root", cfg.Storage.Root))
		return filestore.NewOnDisk(cfg.Storage.Root, filestore.WithLogger(a.logger))
	case config.DriverMemory:
		return filestore.NewInMemory(filestore.WithLogger(a.logger))
	case config.DriverSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { sqlDB.Close() })
		a.logger.Debug("using sqlite storage", slog.String("path", cfg.Storage.SQLitePath))
		return sqlstore.Open(sqlDB, db.DialectSQLite, sqlstore.WithLogger(a.logger))
	case config.DriverPostgres:
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		sqlDB := conn.SQL()
		a.closers = append(a.closers, conn.Close, func() { sqlDB.Close() })
		a.logger.Debug("using postgres storage", slog.String("url", cfg.Database.URL()))
		return sqlstore.Open(sqlDB, db.DialectPostgres, sqlstore.WithLogger(a.logger))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// Close releases backend connections, most recently opened first
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil

	if a.cache != nil {
		stats := a.cache.Stats()
		a.logger.Debug("entity cache",
			slog.Int64("hits", stats.Hits),
			slog.Int64("misses", stats.Misses),
			slog.Int64("evictions", stats.Evictions),
			slog.Float64("hit_ratio", stats.HitRatio()))
	}
}
