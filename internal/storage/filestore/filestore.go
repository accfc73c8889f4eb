// Package filestore stores entity documents as files on an afero filesystem,
// one file per entity at <category>/<id>.xml, with superseded versions kept by
// a historian next to them.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/rpattn/entitystore/internal/domain"
	"github.com/rpattn/entitystore/internal/historian"
	"github.com/rpattn/entitystore/internal/storage"
)

const fileExt = ".xml"

// Store is a storage.Backend on top of an afero filesystem
type Store struct {
	fs        afero.Fs
	historian *historian.Historian
	logger    *slog.Logger
}

var (
	_ storage.Backend       = (*Store)(nil)
	_ storage.HistoryReader = (*Store)(nil)
)

type options struct {
	logger     *slog.Logger
	historyDir string
	clock      func() time.Time
}

// Option configures a Store
type Option func(*options)

// WithLogger sets the logger used by the store and its historian
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHistoryDir places the history log in dir, relative to the store root
func WithHistoryDir(dir string) Option {
	return func(o *options) {
		o.historyDir = dir
	}
}

// WithClock overrides the timestamp source of archived entries
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// New opens a store rooted at root on fsys. An empty root uses fsys as is.
func New(fsys afero.Fs, root string, opts ...Option) (*Store, error) {
	o := options{logger: slog.Default(), historyDir: historian.DefaultDir}
	for _, opt := range opts {
		opt(&o)
	}

	if root != "" {
		if err := fsys.MkdirAll(root, 0o755); err != nil {
			return nil, storage.NewError("open", "", "", fmt.Errorf("failed to create store root: %w", err))
		}
		fsys = afero.NewBasePathFs(fsys, root)
	}

	hopts := []historian.Option{historian.WithLogger(o.logger)}
	if o.clock != nil {
		hopts = append(hopts, historian.WithClock(o.clock))
	}
	h, err := historian.New(fsys, o.historyDir, hopts...)
	if err != nil {
		return nil, storage.NewError("open", "", "", err)
	}

	return &Store{fs: fsys, historian: h, logger: o.logger}, nil
}

// NewOnDisk opens a store rooted at dir on the operating system filesystem
func NewOnDisk(dir string, opts ...Option) (*Store, error) {
	return New(afero.NewOsFs(), dir, opts...)
}

// NewInMemory returns a store backed by a fresh in-memory filesystem
func NewInMemory(opts ...Option) (*Store, error) {
	return New(afero.NewMemMapFs(), "", opts...)
}

// Write replaces the document via a temporary file and a rename
func (s *Store) Write(ctx context.Context, category, id string, content []byte) error {
	if err := s.validate("write", category, id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storage.NewError("write", category, id, err)
	}

	if err := s.fs.MkdirAll(category, 0o755); err != nil {
		return storage.NewError("write", category, id, err)
	}

	tmp, err := afero.TempFile(s.fs, category, "."+id+"-*.tmp")
	if err != nil {
		return storage.NewError("write", category, id, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return storage.NewError("write", category, id, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return storage.NewError("write", category, id, err)
	}
	if err := s.fs.Rename(tmpName, filename(category, id)); err != nil {
		_ = s.fs.Remove(tmpName)
		return storage.NewError("write", category, id, err)
	}

	s.logger.Debug("wrote document",
		slog.String("category", category),
		slog.String("entity_id", id),
		slog.Int("bytes", len(content)))
	return nil
}

// Read returns the stored document, ok is false if there is none
func (s *Store) Read(ctx context.Context, category, id string) ([]byte, bool, error) {
	if err := s.validate("read", category, id); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, storage.NewError("read", category, id, err)
	}

	content, err := afero.ReadFile(s.fs, filename(category, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, storage.NewError("read", category, id, err)
	}
	return content, true, nil
}

// Archive hands the current document to the historian
func (s *Store) Archive(ctx context.Context, category, id string) error {
	if err := s.validate("archive", category, id); err != nil {
		return err
	}
	return storage.NewError("archive", category, id, s.historian.Historize(ctx, filename(category, id)))
}

// Keys lists the ids stored in category
func (s *Store) Keys(ctx context.Context, category string) ([]string, error) {
	if err := storage.ValidateCategory("keys", category); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, storage.NewError("keys", category, "", err)
	}

	infos, err := afero.ReadDir(s.fs, category)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, storage.NewError("keys", category, "", err)
	}

	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// History returns archived snapshots. An empty id selects every entity of the
// category and an empty category selects the whole log.
func (s *Store) History(ctx context.Context, category, id string) iter.Seq2[domain.HistoryEntry, error] {
	var match func(string) bool
	switch {
	case category == "":
		match = func(string) bool { return true }
	case id == "":
		prefix := category + "/"
		match = func(identity string) bool { return strings.HasPrefix(identity, prefix) }
	default:
		want := historian.Identity(filename(category, id))
		match = func(identity string) bool { return identity == want }
	}

	entries := s.historian.Select(match)
	return func(yield func(domain.HistoryEntry, error) bool) {
		for entry, err := range entries {
			if err == nil {
				err = ctx.Err()
			}
			if err != nil {
				yield(domain.HistoryEntry{}, storage.NewError("history", category, id, err))
				return
			}
			entry.Identity = strings.TrimSuffix(entry.Identity, fileExt)
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func (s *Store) validate(op, category, id string) error {
	return storage.ValidateKey(op, category, id)
}

func filename(category, id string) string {
	return path.Join(category, id+fileExt)
}
