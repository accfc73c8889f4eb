package filestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/entitystore/internal/domain"
	"github.com/rpattn/entitystore/internal/storage"
)

func newStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	store, err := New(fsys, "data")
	require.NoError(t, err)
	return store, fsys
}

func history(t *testing.T, store *Store, category, id string) []domain.HistoryEntry {
	t.Helper()
	var out []domain.HistoryEntry
	for entry, err := range store.History(context.Background(), category, id) {
		require.NoError(t, err)
		out = append(out, entry)
	}
	return out
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, fsys := newStore(t)

	_, ok, err := store.Read(ctx, "projects", "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Write(ctx, "projects", "a", []byte("<project/>")))
	content, ok, err := store.Read(ctx, "projects", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<project/>", string(content))

	onDisk, err := afero.ReadFile(fsys, "data/projects/a.xml")
	require.NoError(t, err)
	assert.Equal(t, "<project/>", string(onDisk))

	require.NoError(t, store.Write(ctx, "projects", "a", []byte("<project>2</project>")))
	content, _, err = store.Read(ctx, "projects", "a")
	require.NoError(t, err)
	assert.Equal(t, "<project>2</project>", string(content))
}

func TestKeysSortedAndFiltered(t *testing.T) {
	ctx := context.Background()
	store, fsys := newStore(t)

	keys, err := store.Keys(ctx, "projects")
	require.NoError(t, err)
	assert.Empty(t, keys)

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, store.Write(ctx, "projects", id, []byte(id)))
	}
	require.NoError(t, afero.WriteFile(fsys, "data/projects/notes.txt", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "data/projects/.d-1.tmp", []byte("x"), 0o644))
	require.NoError(t, store.Archive(ctx, "projects", "a"))

	keys, err = store.Keys(ctx, "projects")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestArchiveKeepsSnapshots(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	require.NoError(t, store.Archive(ctx, "projects", "a"), "archiving an absent document is a no-op")
	assert.Empty(t, history(t, store, "projects", "a"))

	for _, content := range []string{"v1", "v2", "v3"} {
		require.NoError(t, store.Archive(ctx, "projects", "a"))
		require.NoError(t, store.Write(ctx, "projects", "a", []byte(content)))
	}
	require.NoError(t, store.Archive(ctx, "issues", "b"))
	require.NoError(t, store.Write(ctx, "issues", "b", []byte("i1")))
	require.NoError(t, store.Archive(ctx, "issues", "b"))

	entries := history(t, store, "projects", "a")
	require.Len(t, entries, 2)
	assert.Equal(t, "v1", string(entries[0].Content))
	assert.Equal(t, "v2", string(entries[1].Content))
	assert.Equal(t, "projects/a", entries[0].Identity)

	assert.Len(t, history(t, store, "projects", ""), 2)
	assert.Len(t, history(t, store, "issues", ""), 1)
	assert.Len(t, history(t, store, "", ""), 3)
}

func TestInvalidKeys(t *testing.T) {
	ctx := context.Background()
	store, err := NewInMemory()
	require.NoError(t, err)

	for _, tc := range []struct{ category, id string }{
		{"projects", "../escape"},
		{"..", "a"},
		{".history", "a"},
		{"projects", ".hidden"},
		{"", "a"},
	} {
		err := store.Write(ctx, tc.category, tc.id, []byte("x"))
		assert.True(t, errors.Is(err, storage.ErrInvalidKey), "%s/%s", tc.category, tc.id)

		var se *storage.StorageError
		assert.True(t, errors.As(err, &se))
	}

	_, err = store.Keys(ctx, ".history")
	assert.True(t, errors.Is(err, storage.ErrInvalidKey))
}

func TestFailuresAreStorageErrors(t *testing.T) {
	_, err := New(afero.NewReadOnlyFs(afero.NewMemMapFs()), "data")
	require.Error(t, err)
	var se *storage.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "open", se.Op)
}

func TestCancelledContext(t *testing.T) {
	store, err := NewInMemory()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = store.Write(ctx, "projects", "a", []byte("x"))
	assert.True(t, errors.Is(err, context.Canceled))
	_, _, err = store.Read(ctx, "projects", "a")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestHistoryTimestampsFromClock(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2023, 7, 1, 8, 30, 0, 0, time.UTC)
	store, err := New(afero.NewMemMapFs(), "", WithClock(func() time.Time { return at }))
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "projects", "a", []byte("v1")))
	require.NoError(t, store.Archive(ctx, "projects", "a"))

	entries := history(t, store, "projects", "a")
	require.Len(t, entries, 1)
	assert.True(t, at.Equal(entries[0].CreatedAt))
}
