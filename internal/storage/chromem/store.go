// Package chromem implements the storage contracts on chromem-go, a pure Go
// embedded vector database. Nothing touches disk, which makes this backend
// the default for tests and for running without external services.
//
// chromem-go has no lookup by id, so the store keeps a sidecar index of
// payloads guarded by a mutex. The collection holds the vectors and answers
// similarity queries; the sidecar answers Get, GetAllByOwner, and FindByHash.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Store implements storage.VectorStore and storage.HistoryStore in memory.
type Store struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection // keyed by owner
	memories    map[string]*types.Memory       // keyed by memory id
	history     []*types.HistoryEntry
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		memories:    make(map[string]*types.Memory),
	}
}

// collection returns the owner's collection, creating it on first use.
// Caller must hold mu.
func (s *Store) collection(ownerID string) (*chromem.Collection, error) {
	if col, ok := s.collections[ownerID]; ok {
		return col, nil
	}
	col, err := s.db.CreateCollection("owner_"+ownerID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	s.collections[ownerID] = col
	return col, nil
}

// Insert stores a batch of memories.
func (s *Store) Insert(ctx context.Context, ids []string, vectors [][]float32, payloads []types.Memory) error {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return fmt.Errorf("%w: ids/vectors/payloads length mismatch (%d/%d/%d)",
			storage.ErrInvalidInput, len(ids), len(vectors), len(payloads))
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []string
	for i, id := range ids {
		p := payloads[i]
		if id == "" || p.OwnerID == "" || p.Text == "" {
			return fmt.Errorf("%w: entry %d missing id, owner_id, or text", storage.ErrInvalidInput, i)
		}
		col, err := s.collection(p.OwnerID)
		if err != nil {
			return err
		}
		if err := col.AddDocument(ctx, chromem.Document{
			ID:        id,
			Content:   p.Text,
			Embedding: vectors[i],
		}); err != nil {
			failed = append(failed, id)
			continue
		}
		mem := p
		mem.ID = id
		mem.Embedding = vectors[i]
		if mem.CreatedAt.IsZero() {
			mem.CreatedAt = time.Now().UTC()
		}
		s.memories[id] = &mem
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to insert entries [%s]", strings.Join(failed, ", "))
	}
	return nil
}

// Search performs owner-scoped k-NN over the owner's collection.
func (s *Store) Search(ctx context.Context, vector []float32, ownerID string, limit int) ([]storage.SearchHit, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[ownerID]
	if !ok {
		return []storage.SearchHit{}, nil
	}

	// chromem rejects nResults larger than the collection, so clamp.
	n := limit
	if count := col.Count(); count < n {
		n = count
	}
	if n == 0 {
		return []storage.SearchHit{}, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	hits := make([]storage.SearchHit, 0, len(results))
	for _, result := range results {
		stored, ok := s.memories[result.ID]
		if !ok {
			continue
		}
		mem := *stored
		score := float64(result.Similarity)
		if score < 0 {
			score = 0
		}
		mem.Score = score
		hits = append(hits, storage.SearchHit{Memory: &mem, Score: score})
	}
	return hits, nil
}

// Update replaces the vector and merges the patch. chromem has no in-place
// update, so the document is removed and re-added under the same id.
func (s *Store) Update(ctx context.Context, id string, vector []float32, patch storage.UpdatePatch) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.memories[id]
	if !ok {
		return storage.ErrNotFound
	}
	col, err := s.collection(stored.OwnerID)
	if err != nil {
		return err
	}

	if patch.Text != nil {
		stored.Text = *patch.Text
	}
	if patch.Hash != nil {
		stored.Hash = *patch.Hash
	}
	stored.Embedding = vector
	now := time.Now().UTC()
	stored.UpdatedAt = &now

	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to replace document: %w", err)
	}
	if err := col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   stored.Text,
		Embedding: vector,
	}); err != nil {
		return fmt.Errorf("failed to re-add document: %w", err)
	}
	return nil
}

// Delete removes a memory by id. Absent ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.memories[id]
	if !ok {
		return nil
	}
	col, err := s.collection(stored.OwnerID)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	delete(s.memories, id)
	return nil
}

// Get retrieves a memory by id.
func (s *Store) Get(_ context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.memories[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	mem := *stored
	return &mem, nil
}

// GetAllByOwner returns every memory belonging to ownerID, newest first.
func (s *Store) GetAllByOwner(_ context.Context, ownerID string) ([]*types.Memory, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	memories := make([]*types.Memory, 0)
	for _, stored := range s.memories {
		if stored.OwnerID != ownerID {
			continue
		}
		mem := *stored
		memories = append(memories, &mem)
	}
	sort.Slice(memories, func(i, j int) bool {
		if !memories[i].CreatedAt.Equal(memories[j].CreatedAt) {
			return memories[i].CreatedAt.After(memories[j].CreatedAt)
		}
		return memories[i].ID < memories[j].ID
	})
	return memories, nil
}

// FindByHash returns the owner's memory with the given content hash.
func (s *Store) FindByHash(_ context.Context, ownerID, hash string) (*types.Memory, error) {
	if ownerID == "" || hash == "" {
		return nil, fmt.Errorf("%w: owner ID and hash are required", storage.ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, stored := range s.memories {
		if stored.OwnerID == ownerID && stored.Hash == hash {
			mem := *stored
			return &mem, nil
		}
	}
	return nil, storage.ErrNotFound
}

// Close is a no-op; everything lives in memory.
func (s *Store) Close() error {
	return nil
}

var _ storage.VectorStore = (*Store)(nil)
