package reconcile

import (
	"context"

	"github.com/google/uuid"

	"github.com/scrypster/engram/internal/hashing"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// RuleDecider is a deterministic decider for running without a reasoning
// model: a fact whose content hash matches a candidate is NONE, everything
// else is ADD. It never updates or deletes.
type RuleDecider struct{}

// NewRuleDecider creates the rule-based decider.
func NewRuleDecider() *RuleDecider {
	return &RuleDecider{}
}

// Decide implements Decider.
func (d *RuleDecider) Decide(_ context.Context, facts []string, candidates []storage.SearchHit, threshold float64) ([]types.MemoryAction, error) {
	kept := filterByThreshold(candidates, threshold)
	byHash := make(map[string]*types.Memory, len(kept))
	for _, mem := range kept {
		byHash[mem.Hash] = mem
	}

	actions := make([]types.MemoryAction, len(facts))
	for i, fact := range facts {
		if mem, ok := byHash[hashing.ContentHash(fact)]; ok {
			actions[i] = types.MemoryAction{ID: mem.ID, Text: mem.Text, Event: types.EventNone}
			continue
		}
		actions[i] = types.MemoryAction{ID: uuid.NewString(), Text: fact, Event: types.EventAdd}
	}
	return actions, nil
}

var _ Decider = (*RuleDecider)(nil)
