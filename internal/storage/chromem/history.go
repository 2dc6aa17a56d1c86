package chromem

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Append validates the entry and records it in memory, generating an id when
// the entry carries none.
func (s *Store) Append(_ context.Context, entry *types.HistoryEntry) error {
	if entry == nil {
		return storage.ErrInvalidInput
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *entry
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}
	s.history = append(s.history, &stored)
	return nil
}

// ByMemoryID returns all history rows for one memory, newest first.
func (s *Store) ByMemoryID(_ context.Context, memoryID string) ([]*types.HistoryEntry, error) {
	if memoryID == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	return s.filterHistory(func(e *types.HistoryEntry) bool { return e.MemoryID == memoryID }), nil
}

// ByOwner returns all history rows for one owner, newest first.
func (s *Store) ByOwner(_ context.Context, ownerID string) ([]*types.HistoryEntry, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	return s.filterHistory(func(e *types.HistoryEntry) bool { return e.OwnerID == ownerID }), nil
}

func (s *Store) filterHistory(keep func(*types.HistoryEntry) bool) []*types.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Walk backwards so append order breaks timestamp ties newest-first.
	entries := make([]*types.HistoryEntry, 0)
	for i := len(s.history) - 1; i >= 0; i-- {
		if e := s.history[i]; keep(e) {
			copied := *e
			entries = append(entries, &copied)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries
}

var _ storage.HistoryStore = (*Store)(nil)
