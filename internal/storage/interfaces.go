// Package storage provides the persistence contracts for the Engram memory
// system: a vector-indexed memory store scoped by owner and an append-only
// audit log of memory mutations.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. Three VectorStore
// backends ship with the system: sqlite (embedded, single writer), postgres
// (pgvector), and chromem (in-process, no external service).
package storage

import (
	"context"

	"github.com/scrypster/engram/pkg/types"
)

// VectorStore provides vector-indexed CRUD and k-NN search over memories.
// Every read and mutation is scoped to a single owner; no operation may
// return or touch another owner's rows. Mutations are synchronously visible:
// a search immediately following an insert, update, or delete observes the
// change.
type VectorStore interface {
	// Insert stores a batch of memories. The three slices must have equal
	// length (one vector and one payload per id) or ErrInvalidInput is
	// returned. Empty input is a no-op. On a partial-batch failure the
	// error names the entries that failed.
	Insert(ctx context.Context, ids []string, vectors [][]float32, payloads []types.Memory) error

	// Search returns up to limit memories belonging to ownerID, ranked by
	// cosine similarity to the query vector, descending. Limit is a hard
	// cap. An empty store yields an empty slice, not an error.
	Search(ctx context.Context, vector []float32, ownerID string, limit int) ([]SearchHit, error)

	// Update replaces the vector and merges patch into the payload of the
	// memory with the given id, refreshing updated_at.
	// Returns ErrNotFound if the memory doesn't exist.
	Update(ctx context.Context, id string, vector []float32, patch UpdatePatch) error

	// Delete removes a memory by id. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id string) error

	// Get retrieves a memory by id.
	// Returns ErrNotFound if the memory doesn't exist.
	Get(ctx context.Context, id string) (*types.Memory, error)

	// GetAllByOwner returns every memory belonging to ownerID, newest
	// first by created_at. An owner with no memories yields an empty slice.
	GetAllByOwner(ctx context.Context, ownerID string) ([]*types.Memory, error)

	// FindByHash returns the memory belonging to ownerID whose content
	// hash equals hash. Returns ErrNotFound when no such memory exists.
	// Used to keep duplicate inserts out without relying on k-NN recall.
	FindByHash(ctx context.Context, ownerID, hash string) (*types.Memory, error)

	// Close releases any resources held by the store.
	Close() error
}

// HistoryStore is the append-only audit log of memory mutations. Rows are
// never updated or deleted through this interface.
type HistoryStore interface {
	// Append validates the entry against its event's null-ness rules and
	// writes it. Returns ErrInvalidInput when validation fails.
	Append(ctx context.Context, entry *types.HistoryEntry) error

	// ByMemoryID returns all history rows for one memory, newest first.
	ByMemoryID(ctx context.Context, memoryID string) ([]*types.HistoryEntry, error)

	// ByOwner returns all history rows for one owner, newest first.
	ByOwner(ctx context.Context, ownerID string) ([]*types.HistoryEntry, error)
}
