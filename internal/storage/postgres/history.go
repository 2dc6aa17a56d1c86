package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Append validates the entry and writes one audit row, generating an id when
// the entry carries none.
func (s *Store) Append(ctx context.Context, entry *types.HistoryEntry) error {
	if entry == nil {
		return storage.ErrInvalidInput
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	timestamp := entry.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_history (id, memory_id, owner_id, prev_value, new_value, event, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, entry.MemoryID, entry.OwnerID, entry.PrevValue, entry.NewValue, entry.Event, timestamp)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// ByMemoryID returns all history rows for one memory, newest first.
func (s *Store) ByMemoryID(ctx context.Context, memoryID string) ([]*types.HistoryEntry, error) {
	if memoryID == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	return s.queryHistory(ctx, "memory_id", memoryID)
}

// ByOwner returns all history rows for one owner, newest first.
func (s *Store) ByOwner(ctx context.Context, ownerID string) ([]*types.HistoryEntry, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	return s.queryHistory(ctx, "owner_id", ownerID)
}

func (s *Store) queryHistory(ctx context.Context, column, value string) ([]*types.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory_id, owner_id, prev_value, new_value, event, created_at
		FROM memory_history WHERE `+column+` = $1
		ORDER BY created_at DESC, id DESC
	`, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := make([]*types.HistoryEntry, 0)
	for rows.Next() {
		var entry types.HistoryEntry
		var prev, next sql.NullString
		if err := rows.Scan(&entry.ID, &entry.MemoryID, &entry.OwnerID,
			&prev, &next, &entry.Event, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if prev.Valid {
			entry.PrevValue = &prev.String
		}
		if next.Valid {
			entry.NewValue = &next.String
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return entries, nil
}

var _ storage.HistoryStore = (*Store)(nil)
