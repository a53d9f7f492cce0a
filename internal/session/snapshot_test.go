package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/finmail/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSession(id string) *Session {
	s := newSession(id, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC))
	s.State = StateReview
	s.EmailAccount = "me@example.com"
	s.Candidates = append(s.Candidates, record("A", 120))
	s.Confirmations["A"] = true
	s.Modifications["A"] = map[string]any{"amount": "150"}
	s.History = append(s.History, Modification{
		Timestamp: s.LastActivity,
		SourceID:  "A",
		Field:     "amount",
		OldValue:  "120",
		NewValue:  "150",
		Reason:    "user modified: 120 -> 150",
	})
	return s
}

func snapshotStores(t *testing.T) map[string]SnapshotStore {
	t.Helper()
	fileStore, err := NewFileSnapshotStore(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)
	db := testutil.SetupTestDB(t)
	return map[string]SnapshotStore{
		"file":   fileStore,
		"sqlite": NewSQLiteSnapshotStore(db.Storage.DB()),
	}
}

func TestSnapshotStores(t *testing.T) {
	for name, store := range snapshotStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Load(ctx, "s/1")
			require.ErrorIs(t, err, ErrSessionNotFound)

			require.NoError(t, store.Save(ctx, sampleSession("s/1")))
			updated := sampleSession("s/1")
			updated.State = StateCompleted
			require.NoError(t, store.Save(ctx, updated))
			require.NoError(t, store.Save(ctx, sampleSession("s2")))

			got, err := store.Load(ctx, "s/1")
			require.NoError(t, err)
			assert.Equal(t, StateCompleted, got.State)
			assert.Equal(t, "me@example.com", got.EmailAccount)
			require.Len(t, got.Candidates, 1)
			assert.Equal(t, "120", got.Candidates[0].Info.Amount.String())
			assert.True(t, got.Confirmations["A"])
			assert.Equal(t, "150", got.Modifications["A"]["amount"])
			require.Len(t, got.History, 1)
			assert.True(t, got.LastActivity.Equal(updated.LastActivity))

			all, err := store.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)

			require.NoError(t, store.Delete(ctx, "s/1"))
			require.NoError(t, store.Delete(ctx, "s/1"))
			_, err = store.Load(ctx, "s/1")
			require.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestFileSnapshotStore_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSnapshotStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSession("good")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".snapshot-123"), []byte("partial"), 0600))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].ID)
}

func TestFileSnapshotStore_LongIDs(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSnapshotStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	long := strings.Repeat("session-", 40)
	require.NoError(t, store.Save(ctx, sampleSession(long)))
	require.NoError(t, store.Save(ctx, sampleSession(long+"x")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.LessOrEqual(t, len(e.Name()), 255)
	}

	got, err := store.Load(ctx, long)
	require.NoError(t, err)
	assert.Equal(t, long, got.ID)

	require.NoError(t, store.Delete(ctx, long))
	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, long+"x", all[0].ID)
}

func TestManager_SQLiteSnapshots(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	store := NewSQLiteSnapshotStore(db.Storage.DB())

	m := NewManager(WithSnapshots(store))
	reviewSession(t, m, "s1", record("A", 5))

	snap, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StateReview, snap.State)
	require.Len(t, snap.Candidates, 1)

	require.NoError(t, m.Clear(ctx, "s1"))
	_, err = store.Load(ctx, "s1")
	require.ErrorIs(t, err, ErrSessionNotFound)
}
