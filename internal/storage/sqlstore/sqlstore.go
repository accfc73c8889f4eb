// Package sqlstore keeps entity documents in a SQL database. SQLite and
// Postgres share one schema, applied by golang-migrate on Open.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/rpattn/entitystore/internal/db"
	"github.com/rpattn/entitystore/internal/domain"
	"github.com/rpattn/entitystore/internal/storage"
)

// Store is a storage.Backend on a database/sql handle
type Store struct {
	db      *sql.DB
	dialect db.Dialect
	now     func() time.Time
	logger  *slog.Logger
}

var (
	_ storage.Backend       = (*Store)(nil)
	_ storage.HistoryReader = (*Store)(nil)
)

// Option configures a Store
type Option func(*Store)

// WithClock overrides the timestamp source for updates and archived entries
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open migrates the schema of sqlDB and returns a store on it. The caller
// keeps ownership of sqlDB.
func Open(sqlDB *sql.DB, dialect db.Dialect, opts ...Option) (*Store, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	s := &Store{
		db:      sqlDB,
		dialect: dialect,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := db.RunMigrations(sqlDB, dialect, s.logger); err != nil {
		return nil, storage.NewError("open", "", "", err)
	}
	return s, nil
}

// Write upserts the document
func (s *Store) Write(ctx context.Context, category, id string, content []byte) error {
	if err := storage.ValidateKey("write", category, id); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO documents (category, id, content, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (category, id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`),
		category, id, content, s.now().UTC().UnixNano(),
	)
	if err != nil {
		return storage.NewError("write", category, id, err)
	}
	return nil
}

// Read returns the stored document, ok is false if there is none
func (s *Store) Read(ctx context.Context, category, id string) ([]byte, bool, error) {
	if err := storage.ValidateKey("read", category, id); err != nil {
		return nil, false, err
	}

	var content []byte
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT content FROM documents WHERE category = ? AND id = ?`),
		category, id,
	).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, storage.NewError("read", category, id, err)
	}
	return content, true, nil
}

// Archive copies the current document into document_history
func (s *Store) Archive(ctx context.Context, category, id string) error {
	if err := storage.ValidateKey("archive", category, id); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO document_history (category, id, content, archived_at)
		 SELECT category, id, content, CAST(? AS BIGINT) FROM documents WHERE category = ? AND id = ?`),
		s.now().UTC().UnixNano(), category, id,
	)
	if err != nil {
		return storage.NewError("archive", category, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("archived document", slog.String("category", category), slog.String("entity_id", id))
	}
	return nil
}

// Keys lists the ids stored in category
func (s *Store) Keys(ctx context.Context, category string) ([]string, error) {
	if err := storage.ValidateCategory("keys", category); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT id FROM documents WHERE category = ? ORDER BY id`), category)
	if err != nil {
		return nil, storage.NewError("keys", category, "", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storage.NewError("keys", category, "", err)
		}
		keys = append(keys, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewError("keys", category, "", err)
	}
	return keys, nil
}

// History returns archived snapshots oldest first. The query runs each time
// the sequence is ranged over.
func (s *Store) History(ctx context.Context, category, id string) iter.Seq2[domain.HistoryEntry, error] {
	return func(yield func(domain.HistoryEntry, error) bool) {
		entries, err := s.history(ctx, category, id)
		if err != nil {
			yield(domain.HistoryEntry{}, storage.NewError("history", category, id, err))
			return
		}
		for _, entry := range entries {
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func (s *Store) history(ctx context.Context, category, id string) ([]domain.HistoryEntry, error) {
	var (
		where []string
		args  []any
	)
	if category != "" {
		where = append(where, "category = ?")
		args = append(args, category)
		if id != "" {
			where = append(where, "id = ?")
			args = append(args, id)
		}
	}

	query := `SELECT seq, category, id, content, archived_at FROM document_history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY archived_at, seq"

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var (
			seq        int64
			cat, docID string
			content    []byte
			archivedAt int64
		)
		if err := rows.Scan(&seq, &cat, &docID, &content, &archivedAt); err != nil {
			return nil, err
		}
		entries = append(entries, domain.HistoryEntry{
			Identity:  cat + "/" + docID,
			Content:   content,
			CreatedAt: time.Unix(0, archivedAt).UTC(),
			Sequence:  uint64(seq),
		})
	}
	return entries, rows.Err()
}
