// Package engine wires extraction, embedding, search, reconciliation, and
// the audit log into the memory pipeline. One Orchestrator serves all owners;
// every operation is scoped by the owner id the caller supplies.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/extract"
	"github.com/scrypster/engram/internal/hashing"
	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/notify"
	"github.com/scrypster/engram/internal/reconcile"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// charsPerToken is the fixed ratio used to estimate token counts for the
// search token budget. Four characters per token is the usual rule of thumb
// for English prose.
const charsPerToken = 4

// Notifier receives a callback after every committed memory mutation.
// Implemented by notify.EventWriter. Failures are logged, never propagated;
// notification is strictly best-effort.
type Notifier interface {
	Notify(eventType, memoryID, ownerID string) error
}

// Orchestrator runs the memory pipeline: extract facts from a conversation,
// embed them, search the owner's existing memories, reconcile, and apply the
// resulting actions to the store and the audit log.
type Orchestrator struct {
	store     storage.VectorStore
	history   storage.HistoryStore
	extractor *extract.Extractor
	embedder  llm.EmbeddingGenerator
	decider   reconcile.Decider
	notifier  Notifier
	cfg       config.MemoryConfig
}

// New creates an Orchestrator. All dependencies except the notifier are
// required; use SetNotifier to attach one after construction.
func New(store storage.VectorStore, history storage.HistoryStore, extractor *extract.Extractor, embedder llm.EmbeddingGenerator, decider reconcile.Decider, cfg config.MemoryConfig) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: vector store is required")
	}
	if history == nil {
		return nil, fmt.Errorf("engine: history store is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("engine: extractor is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("engine: embedding generator is required")
	}
	if decider == nil {
		return nil, fmt.Errorf("engine: decider is required")
	}
	if cfg.RetrievalLimit <= 0 {
		return nil, fmt.Errorf("engine: retrieval limit must be positive, got %d", cfg.RetrievalLimit)
	}
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("engine: similarity threshold must be in [0,1], got %g", cfg.SimilarityThreshold)
	}
	return &Orchestrator{
		store:     store,
		history:   history,
		extractor: extractor,
		embedder:  embedder,
		decider:   decider,
		cfg:       cfg,
	}, nil
}

// SetNotifier attaches a mutation event sink. Pass nil to detach.
func (o *Orchestrator) SetNotifier(n Notifier) {
	o.notifier = n
}

// Add runs the full ingestion pipeline for one conversation and returns the
// ordered list of actions that were considered, including NONE actions that
// changed nothing. Actions are applied one at a time with no rollback: a
// store failure aborts the call, but actions committed before it stay
// committed. The returned slice holds everything applied up to the failure.
func (o *Orchestrator) Add(ctx context.Context, ownerID string, messages []types.Message) ([]types.MemoryAction, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("engine: %w: owner id is required", storage.ErrInvalidInput)
	}
	if !o.cfg.Enabled || !o.cfg.ExtractionEnabled {
		return []types.MemoryAction{}, nil
	}

	facts := o.extractor.Extract(ctx, messages)
	if len(facts) == 0 {
		return []types.MemoryAction{}, nil
	}

	// All embeddings are computed before any search, and all searches before
	// the single reconciliation call, so the decider sees one consistent
	// snapshot of the owner's memories.
	vectors, err := o.embedder.EmbedBatch(ctx, facts)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to embed facts: %w", err)
	}
	if len(vectors) != len(facts) {
		return nil, fmt.Errorf("engine: embedding count mismatch: %d facts, %d vectors", len(facts), len(vectors))
	}

	var candidates []storage.SearchHit
	for i, vec := range vectors {
		hits, err := o.store.Search(ctx, vec, ownerID, o.cfg.RetrievalLimit)
		if err != nil {
			return nil, fmt.Errorf("engine: candidate search for fact %d failed: %w", i, err)
		}
		candidates = append(candidates, hits...)
	}

	actions, err := o.decider.Decide(ctx, facts, candidates, o.cfg.SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("engine: reconciliation failed: %w", err)
	}

	return o.execute(ctx, ownerID, facts, vectors, actions)
}

// execute applies each action in order. seenHashes tracks content hashes
// inserted earlier in the same call so two identical facts in one batch
// produce one memory.
func (o *Orchestrator) execute(ctx context.Context, ownerID string, facts []string, vectors [][]float32, actions []types.MemoryAction) ([]types.MemoryAction, error) {
	applied := make([]types.MemoryAction, 0, len(actions))
	seenHashes := make(map[string]string)

	for i, action := range actions {
		switch action.Event {
		case types.EventAdd:
			done, err := o.applyAdd(ctx, ownerID, facts, vectors, i, &action, seenHashes)
			if err != nil {
				return applied, err
			}
			applied = append(applied, done)

		case types.EventUpdate:
			if err := o.applyUpdate(ctx, ownerID, facts, vectors, i, action); err != nil {
				return applied, err
			}
			applied = append(applied, action)

		case types.EventDelete:
			deleted, err := o.applyDelete(ctx, ownerID, action)
			if err != nil {
				return applied, err
			}
			if deleted {
				applied = append(applied, action)
			}

		case types.EventNone:
			applied = append(applied, action)

		default:
			log.Printf("engine: skipping action with unknown event %q", action.Event)
		}
	}
	return applied, nil
}

// applyAdd inserts a memory unless its content hash already exists for the
// owner, in which case the action degrades to NONE against the existing id.
func (o *Orchestrator) applyAdd(ctx context.Context, ownerID string, facts []string, vectors [][]float32, i int, action *types.MemoryAction, seenHashes map[string]string) (types.MemoryAction, error) {
	hash := hashing.ContentHash(action.Text)

	if existingID, ok := seenHashes[hash]; ok {
		return types.MemoryAction{ID: existingID, Text: action.Text, Event: types.EventNone}, nil
	}
	existing, err := o.store.FindByHash(ctx, ownerID, hash)
	if err == nil {
		return types.MemoryAction{ID: existing.ID, Text: action.Text, Event: types.EventNone}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return types.MemoryAction{}, fmt.Errorf("engine: hash lookup failed: %w", err)
	}

	vec, err := o.vectorFor(ctx, facts, vectors, i, action.Text)
	if err != nil {
		return types.MemoryAction{}, err
	}

	now := time.Now().UTC()
	mem := types.Memory{
		ID:        action.ID,
		Text:      action.Text,
		OwnerID:   ownerID,
		Hash:      hash,
		CreatedAt: now,
	}
	if err := o.store.Insert(ctx, []string{action.ID}, [][]float32{vec}, []types.Memory{mem}); err != nil {
		return types.MemoryAction{}, fmt.Errorf("engine: failed to insert memory: %w", err)
	}
	seenHashes[hash] = action.ID

	err = o.appendHistory(ctx, &types.HistoryEntry{
		MemoryID:  action.ID,
		OwnerID:   ownerID,
		PrevValue: nil,
		NewValue:  types.StringPtr(action.Text),
		Event:     types.EventAdd,
		Timestamp: now,
	})
	if err != nil {
		return types.MemoryAction{}, err
	}
	o.notify(notify.MemoryAdded, action.ID, ownerID)
	return *action, nil
}

func (o *Orchestrator) applyUpdate(ctx context.Context, ownerID string, facts []string, vectors [][]float32, i int, action types.MemoryAction) error {
	vec, err := o.vectorFor(ctx, facts, vectors, i, action.Text)
	if err != nil {
		return err
	}

	hash := hashing.ContentHash(action.Text)
	patch := storage.UpdatePatch{
		Text: types.StringPtr(action.Text),
		Hash: types.StringPtr(hash),
	}
	if err := o.store.Update(ctx, action.ID, vec, patch); err != nil {
		return fmt.Errorf("engine: failed to update memory %s: %w", action.ID, err)
	}

	err = o.appendHistory(ctx, &types.HistoryEntry{
		MemoryID:  action.ID,
		OwnerID:   ownerID,
		PrevValue: types.StringPtr(action.OldMemory),
		NewValue:  types.StringPtr(action.Text),
		Event:     types.EventUpdate,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	o.notify(notify.MemoryUpdated, action.ID, ownerID)
	return nil
}

// applyDelete removes the target memory. It reports whether the delete took
// effect so a target that was already gone stays out of the applied list.
func (o *Orchestrator) applyDelete(ctx context.Context, ownerID string, action types.MemoryAction) (bool, error) {
	mem, err := o.store.Get(ctx, action.ID)
	if errors.Is(err, storage.ErrNotFound) {
		// Already gone. Delete is idempotent and there is no prior text to
		// record, so no history row is written.
		log.Printf("engine: delete target %s not found, skipping", action.ID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("engine: failed to load memory %s before delete: %w", action.ID, err)
	}

	if err := o.store.Delete(ctx, action.ID); err != nil {
		return false, fmt.Errorf("engine: failed to delete memory %s: %w", action.ID, err)
	}

	err = o.appendHistory(ctx, &types.HistoryEntry{
		MemoryID:  action.ID,
		OwnerID:   ownerID,
		PrevValue: types.StringPtr(mem.Text),
		NewValue:  nil,
		Event:     types.EventDelete,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return false, err
	}
	o.notify(notify.MemoryDeleted, action.ID, ownerID)
	return true, nil
}

// vectorFor returns the embedding for an action's text. The fact embeddings
// computed up front are reused whenever the decider kept the fact verbatim;
// rephrased text is re-embedded so the stored vector matches the stored text.
func (o *Orchestrator) vectorFor(ctx context.Context, facts []string, vectors [][]float32, i int, text string) ([]float32, error) {
	if i < len(facts) && facts[i] == text {
		return vectors[i], nil
	}
	vec, err := o.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to embed rephrased text: %w", err)
	}
	return vec, nil
}

// Search embeds the query and returns the owner's nearest memories,
// descending by score. A limit of zero or less falls back to the configured
// retrieval limit. A positive tokenBudget greedily keeps ranked results until
// the next one would push the estimated token total past the budget; a memory
// is never partially included.
func (o *Orchestrator) Search(ctx context.Context, ownerID, query string, limit, tokenBudget int) ([]*types.Memory, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("engine: %w: owner id is required", storage.ErrInvalidInput)
	}
	if query == "" {
		return nil, fmt.Errorf("engine: %w: query is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = o.cfg.RetrievalLimit
	}

	vec, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to embed query: %w", err)
	}

	hits, err := o.store.Search(ctx, vec, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("engine: search failed: %w", err)
	}

	results := make([]*types.Memory, 0, len(hits))
	for _, hit := range hits {
		mem := *hit.Memory
		mem.Score = hit.Score
		results = append(results, &mem)
	}
	if tokenBudget > 0 {
		results = truncateToBudget(results, tokenBudget)
	}
	return results, nil
}

// truncateToBudget keeps results in rank order until the next one would
// exceed the budget.
func truncateToBudget(results []*types.Memory, budget int) []*types.Memory {
	kept := results[:0]
	used := 0
	for _, mem := range results {
		cost := estimateTokens(mem.Text)
		if used+cost > budget {
			break
		}
		used += cost
		kept = append(kept, mem)
	}
	return kept
}

func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// GetAll returns every memory for the owner, newest first.
func (o *Orchestrator) GetAll(ctx context.Context, ownerID string) ([]*types.Memory, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("engine: %w: owner id is required", storage.ErrInvalidInput)
	}
	return o.store.GetAllByOwner(ctx, ownerID)
}

// Delete removes one memory directly, without reconciliation, and records a
// DELETE history row. Returns storage.ErrNotFound when the id does not exist
// or belongs to a different owner.
func (o *Orchestrator) Delete(ctx context.Context, ownerID, memoryID string) error {
	if ownerID == "" || memoryID == "" {
		return fmt.Errorf("engine: %w: owner id and memory id are required", storage.ErrInvalidInput)
	}

	mem, err := o.store.Get(ctx, memoryID)
	if err != nil {
		return fmt.Errorf("engine: failed to load memory %s: %w", memoryID, err)
	}
	if mem.OwnerID != ownerID {
		// Don't leak another owner's memory ids.
		return fmt.Errorf("engine: memory %s: %w", memoryID, storage.ErrNotFound)
	}

	if err := o.store.Delete(ctx, memoryID); err != nil {
		return fmt.Errorf("engine: failed to delete memory %s: %w", memoryID, err)
	}

	err = o.appendHistory(ctx, &types.HistoryEntry{
		MemoryID:  memoryID,
		OwnerID:   ownerID,
		PrevValue: types.StringPtr(mem.Text),
		NewValue:  nil,
		Event:     types.EventDelete,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	o.notify(notify.MemoryDeleted, memoryID, ownerID)
	return nil
}

// History returns the audit rows for one memory, newest first. Rows survive
// deletion of the memory itself.
func (o *Orchestrator) History(ctx context.Context, memoryID string) ([]*types.HistoryEntry, error) {
	if memoryID == "" {
		return nil, fmt.Errorf("engine: %w: memory id is required", storage.ErrInvalidInput)
	}
	return o.history.ByMemoryID(ctx, memoryID)
}

// OwnerHistory returns the audit rows for every memory of one owner, newest
// first.
func (o *Orchestrator) OwnerHistory(ctx context.Context, ownerID string) ([]*types.HistoryEntry, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("engine: %w: owner id is required", storage.ErrInvalidInput)
	}
	return o.history.ByOwner(ctx, ownerID)
}

// appendHistory writes an audit row. The mutation it describes has already
// committed and is never unwound, but a failed append still surfaces to the
// caller so an incomplete audit trail is not silent.
func (o *Orchestrator) appendHistory(ctx context.Context, entry *types.HistoryEntry) error {
	if err := o.history.Append(ctx, entry); err != nil {
		return fmt.Errorf("engine: failed to append %s history for %s: %w", entry.Event, entry.MemoryID, err)
	}
	return nil
}

func (o *Orchestrator) notify(eventType, memoryID, ownerID string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(eventType, memoryID, ownerID); err != nil {
		log.Printf("engine: failed to write %s event for %s: %v", eventType, memoryID, err)
	}
}
