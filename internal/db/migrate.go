package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// RunMigrations applies the embedded schema migrations of dialect to sqlDB.
// An up to date schema is not an error. sqlDB stays open.
func RunMigrations(sqlDB *sql.DB, dialect Dialect, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	source, err := iofs.New(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		return fmt.Errorf("failed to read %s migrations: %w", dialect, err)
	}

	var driver database.Driver
	switch dialect {
	case DialectSQLite:
		driver, err = sqlitemigrate.WithInstance(sqlDB, &sqlitemigrate.Config{})
	case DialectPostgres:
		driver, err = pgxmigrate.WithInstance(sqlDB, &pgxmigrate.Config{})
	default:
		return fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	if err != nil {
		return fmt.Errorf("failed to prepare %s migration driver: %w", dialect, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(dialect), driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("database schema up to date", slog.String("dialect", string(dialect)))
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.Info("applied database migrations",
		slog.String("dialect", string(dialect)),
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty))
	return nil
}
