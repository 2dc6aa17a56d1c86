// Package reconcile decides how each extracted fact should mutate the
// existing memory set: create it, fold it into an existing memory, retract a
// contradicted memory, or do nothing. The LLM-backed decider delegates the
// judgment call to the text-generation service under a strict contract of one
// action per fact; the rule-based decider is a deterministic fallback for
// running without a model.
package reconcile

import (
	"context"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Decider maps facts plus their retrieved candidate memories to exactly one
// MemoryAction per fact, in fact order.
type Decider interface {
	// Decide never returns fewer or more actions than facts. Candidates
	// with a score below threshold are ignored. An empty fact list yields
	// an empty action list.
	Decide(ctx context.Context, facts []string, candidates []storage.SearchHit, threshold float64) ([]types.MemoryAction, error)
}

// filterByThreshold keeps candidates at or above the similarity threshold,
// deduplicated by memory id (the same memory can surface for several facts).
func filterByThreshold(candidates []storage.SearchHit, threshold float64) []*types.Memory {
	seen := make(map[string]bool, len(candidates))
	kept := make([]*types.Memory, 0, len(candidates))
	for _, hit := range candidates {
		if hit.Score < threshold || hit.Memory == nil {
			continue
		}
		if seen[hit.Memory.ID] {
			continue
		}
		seen[hit.Memory.ID] = true
		kept = append(kept, hit.Memory)
	}
	return kept
}
