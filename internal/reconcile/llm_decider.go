package reconcile

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// LLMDecider reconciles facts against candidates via the text-generation
// service. When the model's reply can't be trusted (unparseable, wrong
// cardinality) it fails open: every fact becomes an ADD. A spurious ADD is a
// recoverable duplicate; a spurious DELETE is data loss.
type LLMDecider struct {
	generator llm.TextGenerator
}

// NewLLMDecider creates a decider backed by the given text generator.
func NewLLMDecider(generator llm.TextGenerator) *LLMDecider {
	return &LLMDecider{generator: generator}
}

// Decide implements Decider.
func (d *LLMDecider) Decide(ctx context.Context, facts []string, candidates []storage.SearchHit, threshold float64) ([]types.MemoryAction, error) {
	if len(facts) == 0 {
		return []types.MemoryAction{}, nil
	}

	kept := filterByThreshold(candidates, threshold)

	// With nothing to reconcile against, every fact is trivially new.
	if len(kept) == 0 {
		return failOpen(facts), nil
	}

	existing := make([]types.Memory, len(kept))
	byID := make(map[string]*types.Memory, len(kept))
	for i, mem := range kept {
		existing[i] = *mem
		byID[mem.ID] = mem
	}

	prompt := llm.ReconciliationPrompt(facts, existing)
	response, err := d.generator.Complete(ctx, prompt)
	if err != nil {
		log.Printf("reconcile: completion failed, adding all facts: %v", err)
		return failOpen(facts), nil
	}

	parsed, err := llm.ParseMemoryActionsResponse(response)
	if err != nil {
		log.Printf("reconcile: unparseable response, adding all facts: %v", err)
		return failOpen(facts), nil
	}
	if len(parsed) != len(facts) {
		log.Printf("reconcile: model returned %d actions for %d facts, adding all facts",
			len(parsed), len(facts))
		return failOpen(facts), nil
	}

	actions := make([]types.MemoryAction, 0, len(parsed))
	for i, p := range parsed {
		actions = append(actions, d.resolve(p, facts[i], byID))
	}
	return actions, nil
}

// resolve turns one raw model decision into a valid MemoryAction. Decisions
// that reference memories the model was never shown are downgraded rather
// than trusted.
func (d *LLMDecider) resolve(p llm.MemoryActionResponse, fact string, byID map[string]*types.Memory) types.MemoryAction {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		text = fact
	}

	switch p.Event {
	case types.EventAdd:
		return types.MemoryAction{ID: uuid.NewString(), Text: text, Event: types.EventAdd}

	case types.EventUpdate:
		target, ok := byID[p.ID]
		if !ok {
			// The model sometimes echoes the old text instead of the id.
			target = matchByText(byID, p.OldMemory)
		}
		if target == nil {
			log.Printf("reconcile: UPDATE names unknown memory %q, adding instead", p.ID)
			return types.MemoryAction{ID: uuid.NewString(), Text: text, Event: types.EventAdd}
		}
		return types.MemoryAction{ID: target.ID, Text: text, Event: types.EventUpdate, OldMemory: target.Text}

	case types.EventDelete:
		target, ok := byID[p.ID]
		if !ok {
			target = matchByText(byID, p.Text)
		}
		if target == nil {
			// Never delete on a guess.
			log.Printf("reconcile: DELETE names unknown memory %q, ignoring", p.ID)
			return types.MemoryAction{ID: uuid.NewString(), Text: fact, Event: types.EventAdd}
		}
		return types.MemoryAction{ID: target.ID, Text: target.Text, Event: types.EventDelete}

	default: // types.EventNone
		if target, ok := byID[p.ID]; ok {
			return types.MemoryAction{ID: target.ID, Text: target.Text, Event: types.EventNone}
		}
		return types.MemoryAction{ID: uuid.NewString(), Text: fact, Event: types.EventNone}
	}
}

// matchByText finds a candidate whose text equals the given string, ignoring
// case and surrounding whitespace. Returns nil when there is no exact match.
func matchByText(byID map[string]*types.Memory, text string) *types.Memory {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil
	}
	for _, mem := range byID {
		if strings.ToLower(strings.TrimSpace(mem.Text)) == needle {
			return mem
		}
	}
	return nil
}

// failOpen returns one ADD per fact. Used whenever reconciliation can't rely
// on the model's judgment.
func failOpen(facts []string) []types.MemoryAction {
	actions := make([]types.MemoryAction, len(facts))
	for i, fact := range facts {
		actions[i] = types.MemoryAction{ID: uuid.NewString(), Text: fact, Event: types.EventAdd}
	}
	return actions
}

var _ Decider = (*LLMDecider)(nil)
