package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/internal/storage/postgres"
	"github.com/scrypster/engram/pkg/types"
)

const testDimension = 3

// postgresTestDSN returns the DSN for the test database.
// If ENGRAM_TEST_POSTGRES_DSN is not set, tests are skipped.
func postgresTestDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("ENGRAM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ENGRAM_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh Store connected to the test database, wipes
// the tables, and registers cleanup.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	store, err := postgres.NewStore(postgresTestDSN(t), testDimension)
	require.NoError(t, err, "NewStore should succeed")
	require.NoError(t, store.TruncateForTest(context.Background()), "truncate tables")

	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func insertOne(t *testing.T, store *postgres.Store, id, owner, text string, vector []float32) {
	t.Helper()
	err := store.Insert(context.Background(),
		[]string{id},
		[][]float32{vector},
		[]types.Memory{{ID: id, OwnerID: owner, Text: text, Hash: "hash-" + id, CreatedAt: time.Now().UTC()}},
	)
	require.NoError(t, err, "insert %s", id)
}

func TestInsertAndGet(t *testing.T) {
	store := newTestStore(t)
	insertOne(t, store, "m1", "alice", "Lives in Boston", []float32{1, 0, 0})

	mem, err := store.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "Lives in Boston", mem.Text)
	assert.Equal(t, "alice", mem.OwnerID)
	assert.Nil(t, mem.UpdatedAt, "fresh memory should have nil updated_at")
}

func TestInsertArityMismatch(t *testing.T) {
	store := newTestStore(t)
	err := store.Insert(context.Background(),
		[]string{"a", "b"},
		[][]float32{{1, 0, 0}},
		[]types.Memory{{ID: "a", OwnerID: "o", Text: "x"}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSearchRanksAndScopes(t *testing.T) {
	store := newTestStore(t)
	insertOne(t, store, "m1", "alice", "about cats", []float32{1, 0, 0})
	insertOne(t, store, "m2", "alice", "about dogs", []float32{0, 1, 0})
	insertOne(t, store, "m3", "bob", "bob's cats", []float32{1, 0, 0})

	hits, err := store.Search(context.Background(), []float32{1, 0, 0}, "alice", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2, "search must not cross owners")
	assert.Equal(t, "m1", hits[0].Memory.ID)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score, "descending score order")
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6, "identical vector scores ~1")
}

func TestSearchLimitIsHardCap(t *testing.T) {
	store := newTestStore(t)
	insertOne(t, store, "m1", "alice", "one", []float32{1, 0, 0})
	insertOne(t, store, "m2", "alice", "two", []float32{0, 1, 0})

	hits, err := store.Search(context.Background(), []float32{1, 0, 0}, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestUpdateAndReadBack(t *testing.T) {
	store := newTestStore(t)
	insertOne(t, store, "m1", "alice", "Is a vegetarian", []float32{1, 0, 0})

	newText := "Is a vegan"
	newHash := "hash-vegan"
	err := store.Update(context.Background(), "m1", []float32{0, 1, 0},
		storage.UpdatePatch{Text: &newText, Hash: &newHash})
	require.NoError(t, err)

	mem, err := store.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "Is a vegan", mem.Text)
	assert.Equal(t, "hash-vegan", mem.Hash)
	assert.NotNil(t, mem.UpdatedAt)

	// Read-after-write: the replaced vector must already be searchable.
	hits, err := store.Search(context.Background(), []float32{0, 1, 0}, "alice", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestUpdateNotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.Update(context.Background(), "missing", []float32{1, 0, 0}, storage.UpdatePatch{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	insertOne(t, store, "m1", "alice", "gone soon", []float32{1, 0, 0})

	require.NoError(t, store.Delete(context.Background(), "m1"))
	_, err := store.Get(context.Background(), "m1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, store.Delete(context.Background(), "m1"), "repeat delete is a no-op")
}

func TestGetAllByOwnerNewestFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"m1", "m2", "m3"} {
		err := store.Insert(context.Background(),
			[]string{id},
			[][]float32{{float32(i), 0, 0}},
			[]types.Memory{{ID: id, OwnerID: "alice", Text: "t" + id, Hash: "h" + id,
				CreatedAt: base.Add(time.Duration(i) * time.Minute)}})
		require.NoError(t, err)
	}

	memories, err := store.GetAllByOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, memories, 3)
	assert.Equal(t, "m3", memories[0].ID)
	assert.Equal(t, "m1", memories[2].ID)
}

func TestFindByHashOwnerScoped(t *testing.T) {
	store := newTestStore(t)
	insertOne(t, store, "m1", "alice", "Lives in Boston", []float32{1, 0, 0})

	mem, err := store.FindByHash(context.Background(), "alice", "hash-m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", mem.ID)

	_, err = store.FindByHash(context.Background(), "bob", "hash-m1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHistoryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, store.Append(context.Background(), &types.HistoryEntry{
		ID: "h1", MemoryID: "m1", OwnerID: "alice",
		NewValue: types.StringPtr("Lives in Boston"),
		Event:    types.EventAdd, Timestamp: base,
	}))
	require.NoError(t, store.Append(context.Background(), &types.HistoryEntry{
		ID: "h2", MemoryID: "m1", OwnerID: "alice",
		PrevValue: types.StringPtr("Lives in Boston"),
		Event:     types.EventDelete, Timestamp: base.Add(time.Minute),
	}))

	entries, err := store.ByMemoryID(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, types.EventDelete, entries[0].Event, "newest first")
	assert.Nil(t, entries[0].NewValue)
	assert.NotNil(t, entries[1].NewValue)

	byOwner, err := store.ByOwner(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, byOwner, 2)
}

func TestAppendRejectsInvalidEntry(t *testing.T) {
	store := newTestStore(t)
	err := store.Append(context.Background(), &types.HistoryEntry{
		ID: "h1", MemoryID: "m1", OwnerID: "alice",
		Event: types.EventNone,
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput, "NONE never produces a history row")
}
