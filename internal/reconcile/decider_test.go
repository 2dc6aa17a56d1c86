package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/engram/internal/hashing"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

type scriptedGenerator struct {
	response string
	err      error
	prompt   string
	calls    int
}

func (g *scriptedGenerator) Complete(_ context.Context, prompt string) (string, error) {
	g.calls++
	g.prompt = prompt
	return g.response, g.err
}

func (g *scriptedGenerator) GetModel() string { return "scripted" }

func hit(id, text string, score float64) storage.SearchHit {
	return storage.SearchHit{
		Memory: &types.Memory{ID: id, Text: text, OwnerID: "alice", Hash: hashing.ContentHash(text)},
		Score:  score,
	}
}

func TestDecideNoFacts(t *testing.T) {
	d := NewLLMDecider(&scriptedGenerator{})
	actions, err := d.Decide(context.Background(), nil, nil, 0.7)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestDecideNoCandidatesSkipsModel(t *testing.T) {
	gen := &scriptedGenerator{}
	d := NewLLMDecider(gen)

	actions, err := d.Decide(context.Background(), []string{"Lives in Boston"}, nil, 0.7)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.EventAdd, actions[0].Event)
	assert.Equal(t, "Lives in Boston", actions[0].Text)
	assert.NotEmpty(t, actions[0].ID)
	assert.Zero(t, gen.calls, "no candidates means no reconciliation call")
}

func TestDecideThresholdFiltersCandidates(t *testing.T) {
	gen := &scriptedGenerator{response: `{"memory":[{"id":"x","text":"f","event":"ADD"}]}`}
	d := NewLLMDecider(gen)

	_, err := d.Decide(context.Background(), []string{"f"},
		[]storage.SearchHit{hit("m1", "barely related", 0.3)}, 0.7)
	require.NoError(t, err)
	assert.Zero(t, gen.calls, "below-threshold candidates behave like no candidates")
}

func TestDecideUpdate(t *testing.T) {
	gen := &scriptedGenerator{
		response: `{"memory":[{"id":"m1","text":"Is a vegan","event":"UPDATE","old_memory":"Is a vegetarian"}]}`,
	}
	d := NewLLMDecider(gen)

	actions, err := d.Decide(context.Background(), []string{"Is a vegan now"},
		[]storage.SearchHit{hit("m1", "Is a vegetarian", 0.9)}, 0.7)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.EventUpdate, actions[0].Event)
	assert.Equal(t, "m1", actions[0].ID)
	assert.Equal(t, "Is a vegan", actions[0].Text)
	assert.Equal(t, "Is a vegetarian", actions[0].OldMemory)
	require.NoError(t, actions[0].Validate())
}

func TestDecideUpdateUnknownIDResolvedByOldMemoryText(t *testing.T) {
	gen := &scriptedGenerator{
		response: `{"memory":[{"id":"made-up","text":"Is a vegan","event":"UPDATE","old_memory":"Is a vegetarian"}]}`,
	}
	d := NewLLMDecider(gen)

	actions, err := d.Decide(context.Background(), []string{"Is a vegan now"},
		[]storage.SearchHit{hit("m1", "Is a vegetarian", 0.9)}, 0.7)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.EventUpdate, actions[0].Event)
	assert.Equal(t, "m1", actions[0].ID, "old_memory text identifies the real candidate")
}

func TestDecideUpdateUnresolvableBecomesAdd(t *testing.T) {
	gen := &scriptedGenerator{
		response: `{"memory":[{"id":"made-up","text":"Is a vegan","event":"UPDATE","old_memory":"never seen"}]}`,
	}
	d := NewLLMDecider(gen)

	actions, err := d.Decide(context.Background(), []string{"Is a vegan now"},
		[]storage.SearchHit{hit("m1", "Is a vegetarian", 0.9)}, 0.7)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.EventAdd, actions[0].Event)
	assert.NotEqual(t, "m1", actions[0].ID)
}

func TestDecideDeleteUnknownIDNeverDeletes(t *testing.T) {
	gen := &scriptedGenerator{
		response: `{"memory":[{"id":"made-up","text":"something else","event":"DELETE"}]}`,
	}
	d := NewLLMDecider(gen)

	actions, err := d.Decide(context.Background(), []string{"Moved to Seattle"},
		[]storage.SearchHit{hit("m1", "Lives in Boston", 0.9)}, 0.7)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.EventAdd, actions[0].Event, "a guessed DELETE must not be trusted")
}

func TestDecideDeleteKnownID(t *testing.T) {
	gen := &scriptedGenerator{
		response: `{"memory":[{"id":"m1","text":"Lives in Boston","event":"DELETE"}]}`,
	}
	d := NewLLMDecider(gen)

	actions, err := d.Decide(context.Background(), []string{"No longer lives in Boston"},
		[]storage.SearchHit{hit("m1", "Lives in Boston", 0.9)}, 0.7)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.EventDelete, actions[0].Event)
	assert.Equal(t, "m1", actions[0].ID)
	require.NoError(t, actions[0].Validate())
}

func TestDecideCardinalityMismatchFailsOpen(t *testing.T) {
	// Two facts in, one action out: the whole reply is untrustworthy.
	gen := &scriptedGenerator{
		response: `{"memory":[{"id":"m1","text":"a","event":"NONE"}]}`,
	}
	d := NewLLMDecider(gen)

	facts := []string{"Lives in Boston", "Has two cats"}
	actions, err := d.Decide(context.Background(), facts,
		[]storage.SearchHit{hit("m1", "Lives in Boston", 0.9)}, 0.7)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	for i, action := range actions {
		assert.Equal(t, types.EventAdd, action.Event)
		assert.Equal(t, facts[i], action.Text)
	}
}

func TestDecideModelErrorFailsOpen(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("model down")}
	d := NewLLMDecider(gen)

	actions, err := d.Decide(context.Background(), []string{"Lives in Boston"},
		[]storage.SearchHit{hit("m1", "Is a vegetarian", 0.9)}, 0.7)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.EventAdd, actions[0].Event)
}

func TestDecideUnparseableFailsOpen(t *testing.T) {
	gen := &scriptedGenerator{response: "I think you should update the first one."}
	d := NewLLMDecider(gen)

	actions, err := d.Decide(context.Background(), []string{"Lives in Boston"},
		[]storage.SearchHit{hit("m1", "Is a vegetarian", 0.9)}, 0.7)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.EventAdd, actions[0].Event)
}

func TestDecidePromptCarriesCandidates(t *testing.T) {
	gen := &scriptedGenerator{response: `{"memory":[{"id":"m1","text":"x","event":"NONE"}]}`}
	d := NewLLMDecider(gen)

	_, err := d.Decide(context.Background(), []string{"Lives in Boston"},
		[]storage.SearchHit{hit("m1", "Lives in Boston", 0.95)}, 0.7)
	require.NoError(t, err)
	assert.True(t, strings.Contains(gen.prompt, "m1"), "candidate id missing from prompt")
	assert.True(t, strings.Contains(gen.prompt, "Lives in Boston"), "candidate text missing from prompt")
}

func TestRuleDeciderHashMatchIsNone(t *testing.T) {
	d := NewRuleDecider()
	actions, err := d.Decide(context.Background(),
		[]string{"Lives in Boston", "Has two cats"},
		[]storage.SearchHit{hit("m1", "Lives in Boston", 0.95)}, 0.7)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, types.EventNone, actions[0].Event)
	assert.Equal(t, "m1", actions[0].ID)
	assert.Equal(t, types.EventAdd, actions[1].Event)
}

func TestRuleDeciderNormalizedVariantsMatch(t *testing.T) {
	d := NewRuleDecider()
	actions, err := d.Decide(context.Background(),
		[]string{"lives in boston!"},
		[]storage.SearchHit{hit("m1", "Lives in Boston", 0.95)}, 0.7)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.EventNone, actions[0].Event, "case and punctuation variants share a hash")
}

func TestRuleDeciderNeverDeletes(t *testing.T) {
	d := NewRuleDecider()
	actions, err := d.Decide(context.Background(),
		[]string{"Moved to Seattle"},
		[]storage.SearchHit{hit("m1", "Lives in Boston", 0.99)}, 0.7)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.EventAdd, actions[0].Event)
}
