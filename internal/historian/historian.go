// Package historian keeps an append-only log of superseded file contents.
//
// Each archived version is stored as its own file under
// <dir>/<escaped identity>/<sequence>-<unix nanos>, next to and independent of
// the live file. A single lock serializes all writers of one log.
package historian

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"net/url"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/rpattn/entitystore/internal/domain"
)

// DefaultDir is the history directory used when none is configured
const DefaultDir = ".history"

// Historian archives file contents before they are overwritten
type Historian struct {
	fs     afero.Fs
	dir    string
	now    func() time.Time
	logger *slog.Logger

	mu  sync.Mutex
	seq uint64
}

// Option configures a Historian
type Option func(*Historian)

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(h *Historian) {
		h.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Historian) {
		h.logger = logger
	}
}

// New opens the history log stored in dir on fsys. The sequence counter
// resumes after the highest sequence already in the log.
func New(fsys afero.Fs, dir string, opts ...Option) (*Historian, error) {
	if dir == "" {
		dir = DefaultDir
	}
	h := &Historian{
		fs:     fsys,
		dir:    path.Clean(dir),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if err := h.fs.MkdirAll(h.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	refs, err := h.list(func(string) bool { return true })
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if ref.seq > h.seq {
			h.seq = ref.seq
		}
	}
	return h, nil
}

// Historize copies the current content of file into the history log under
// the identity file. A missing file is a no-op.
func (h *Historian) Historize(ctx context.Context, file string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	identity := Identity(file)

	h.mu.Lock()
	defer h.mu.Unlock()

	content, err := afero.ReadFile(h.fs, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s for history: %w", file, err)
	}

	entryDir := path.Join(h.dir, url.PathEscape(identity))
	if err := h.fs.MkdirAll(entryDir, 0o755); err != nil {
		return fmt.Errorf("failed to create history directory for %s: %w", identity, err)
	}

	seq := h.seq + 1
	at := h.now().UTC()
	name := path.Join(entryDir, fmt.Sprintf("%020d-%020d", seq, at.UnixNano()))
	if err := afero.WriteFile(h.fs, name, content, 0o644); err != nil {
		return fmt.Errorf("failed to write history entry for %s: %w", identity, err)
	}
	h.seq = seq

	h.logger.Debug("historized file",
		slog.String("identity", identity),
		slog.Uint64("sequence", seq),
		slog.Int("bytes", len(content)))
	return nil
}

// History returns the entries of one identity, oldest first. The sequence
// is lazy (content is read while iterating) and can be ranged over repeatedly.
func (h *Historian) History(identity string) iter.Seq2[domain.HistoryEntry, error] {
	identity = Identity(identity)
	return h.entries(func(id string) bool { return id == identity })
}

// All returns the entries of every identity, oldest first
func (h *Historian) All() iter.Seq2[domain.HistoryEntry, error] {
	return h.entries(func(string) bool { return true })
}

// Select returns the entries of every identity accepted by match, oldest first
func (h *Historian) Select(match func(identity string) bool) iter.Seq2[domain.HistoryEntry, error] {
	return h.entries(match)
}

// Identity normalizes a file path into a history identity
func Identity(file string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(file, "\\", "/")), "/")
}

type entryRef struct {
	identity string
	file     string
	seq      uint64
	at       time.Time
}

func (h *Historian) entries(match func(string) bool) iter.Seq2[domain.HistoryEntry, error] {
	return func(yield func(domain.HistoryEntry, error) bool) {
		refs, err := h.list(match)
		if err != nil {
			yield(domain.HistoryEntry{}, err)
			return
		}
		for _, ref := range refs {
			content, err := afero.ReadFile(h.fs, ref.file)
			if err != nil {
				if !yield(domain.HistoryEntry{}, fmt.Errorf("failed to read history entry %s: %w", ref.file, err)) {
					return
				}
				continue
			}
			entry := domain.HistoryEntry{
				Identity:  ref.identity,
				Content:   content,
				CreatedAt: ref.at,
				Sequence:  ref.seq,
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// list collects entry references without reading content
func (h *Historian) list(match func(string) bool) ([]entryRef, error) {
	dirs, err := afero.ReadDir(h.fs, h.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	var refs []entryRef
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		identity, err := url.PathUnescape(dir.Name())
		if err != nil || !match(identity) {
			continue
		}
		files, err := afero.ReadDir(h.fs, path.Join(h.dir, dir.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to list history of %s: %w", identity, err)
		}
		for _, file := range files {
			seq, at, ok := parseEntryName(file.Name())
			if !ok {
				continue
			}
			refs = append(refs, entryRef{
				identity: identity,
				file:     path.Join(h.dir, dir.Name(), file.Name()),
				seq:      seq,
				at:       at,
			})
		}
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].at.Equal(refs[j].at) {
			return refs[i].seq < refs[j].seq
		}
		return refs[i].at.Before(refs[j].at)
	})
	return refs, nil
}

func parseEntryName(name string) (uint64, time.Time, bool) {
	seqPart, nanosPart, found := strings.Cut(name, "-")
	if !found {
		return 0, time.Time{}, false
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	nanos, err := strconv.ParseInt(nanosPart, 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	return seq, time.Unix(0, nanos).UTC(), true
}
