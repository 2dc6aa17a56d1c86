package storage

import (
	"errors"

	"github.com/scrypster/engram/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// SearchHit pairs a stored memory with its similarity score for one query.
// Score is cosine similarity in [0, 1], higher is more similar.
type SearchHit struct {
	Memory *types.Memory
	Score  float64
}

// UpdatePatch holds the mutable payload fields of a memory for partial
// updates. Nil fields are left untouched.
type UpdatePatch struct {
	Text *string
	Hash *string
}
