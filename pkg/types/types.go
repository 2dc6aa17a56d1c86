// Package types defines the core data structures for the engram memory system:
// conversation messages, persisted memories, reconciliation actions, and the
// append-only history entries that audit every mutation.
package types

import (
	"errors"
	"fmt"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single conversation turn. Messages are ephemeral input owned
// by the caller; the system never persists them.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// MemoryEvent is the reconciliation decision for a single fact.
type MemoryEvent string

// Reconciliation events.
const (
	// EventAdd creates a new memory for a novel fact.
	EventAdd MemoryEvent = "ADD"

	// EventUpdate refines an existing memory with new text.
	EventUpdate MemoryEvent = "UPDATE"

	// EventDelete removes a memory that a fact directly contradicts.
	EventDelete MemoryEvent = "DELETE"

	// EventNone leaves the memory set untouched (fact already captured).
	EventNone MemoryEvent = "NONE"
)

// IsValidEvent reports whether e is one of the four reconciliation events.
func IsValidEvent(e MemoryEvent) bool {
	switch e {
	case EventAdd, EventUpdate, EventDelete, EventNone:
		return true
	}
	return false
}

// Memory is a persisted fact with its vector embedding, owned by a single
// user. Score is populated only on search results.
type Memory struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	OwnerID   string     `json:"owner_id"`
	Hash      string     `json:"hash,omitempty"` // normalized content hash for dedup
	Embedding []float32  `json:"embedding,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Score     float64    `json:"score,omitempty"`
}

// MemoryAction is the reconciliation engine's output for one fact.
// OldMemory carries the superseded text and is required for UPDATE only.
type MemoryAction struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	Event     MemoryEvent `json:"event"`
	OldMemory string      `json:"old_memory,omitempty"`
}

// Validate checks the structural invariants of a MemoryAction.
func (a MemoryAction) Validate() error {
	if !IsValidEvent(a.Event) {
		return fmt.Errorf("invalid event %q", a.Event)
	}
	if a.ID == "" {
		return errors.New("action ID is required")
	}
	if a.Event == EventUpdate && a.OldMemory == "" {
		return errors.New("UPDATE action requires old_memory")
	}
	if a.Event != EventUpdate && a.OldMemory != "" {
		return fmt.Errorf("%s action must not carry old_memory", a.Event)
	}
	return nil
}

// HistoryEntry is a single row in the append-only audit log. Rows are never
// updated or deleted by normal operation.
//
// Null-ness invariants per event:
//   - ADD:    PrevValue == nil, NewValue != nil
//   - UPDATE: both non-nil
//   - DELETE: PrevValue != nil, NewValue == nil
//
// NONE actions never produce a history entry.
type HistoryEntry struct {
	ID        string      `json:"id"`
	MemoryID  string      `json:"memory_id"`
	OwnerID   string      `json:"owner_id"`
	PrevValue *string     `json:"prev_value"`
	NewValue  *string     `json:"new_value"`
	Event     MemoryEvent `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
}

// Validate checks the null-ness invariants for the entry's event.
func (h HistoryEntry) Validate() error {
	if h.MemoryID == "" {
		return errors.New("history entry requires memory_id")
	}
	if h.OwnerID == "" {
		return errors.New("history entry requires owner_id")
	}
	switch h.Event {
	case EventAdd:
		if h.PrevValue != nil {
			return errors.New("ADD history entry must have null prev_value")
		}
		if h.NewValue == nil {
			return errors.New("ADD history entry requires new_value")
		}
	case EventUpdate:
		if h.PrevValue == nil || h.NewValue == nil {
			return errors.New("UPDATE history entry requires prev_value and new_value")
		}
	case EventDelete:
		if h.PrevValue == nil {
			return errors.New("DELETE history entry requires prev_value")
		}
		if h.NewValue != nil {
			return errors.New("DELETE history entry must have null new_value")
		}
	default:
		return fmt.Errorf("invalid history event %q", h.Event)
	}
	return nil
}

// StringPtr returns a pointer to s. Helper for building history entries.
func StringPtr(s string) *string {
	return &s
}
