// Package extract distills long-term facts from conversation transcripts via
// the text-generation service. Extraction is best-effort: any failure along
// the way degrades to an empty fact list rather than an error, so a flaky
// model can never block the ingestion pipeline.
package extract

import (
	"context"
	"log"
	"strings"

	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/pkg/types"
)

// Options tunes which messages are considered for extraction.
type Options struct {
	// MaxMessages caps how many of the most recent messages are sent to
	// the model. Zero or negative means no cap.
	MaxMessages int

	// MinMessageLength drops messages shorter than this many runes before
	// extraction. Greetings and one-word acks carry no facts.
	MinMessageLength int

	// Temperature is the sampling temperature for the extraction prompt.
	// Zero keeps the generator's deterministic default. Ignored when the
	// generator does not accept a temperature.
	Temperature float64
}

// Extractor turns conversations into candidate facts.
type Extractor struct {
	generator llm.TextGenerator
	opts      Options
}

// New creates an Extractor backed by the given text generator.
func New(generator llm.TextGenerator, opts Options) *Extractor {
	return &Extractor{generator: generator, opts: opts}
}

// Extract returns the facts worth remembering from the conversation. System
// messages and short messages are filtered out first. On model or parse
// failure it logs and returns an empty slice, never an error.
func (e *Extractor) Extract(ctx context.Context, messages []types.Message) []string {
	filtered := e.filter(messages)
	if len(filtered) == 0 {
		return nil
	}

	prompt := llm.FactExtractionPrompt(filtered)
	response, err := e.complete(ctx, prompt)
	if err != nil {
		log.Printf("extract: completion failed: %v", err)
		return nil
	}

	facts, err := llm.ParseFactsResponse(response)
	if err != nil {
		log.Printf("extract: unparseable response: %v", err)
		return nil
	}
	return facts
}

// complete runs the prompt, applying the configured temperature when the
// generator supports one.
func (e *Extractor) complete(ctx context.Context, prompt string) (string, error) {
	if e.opts.Temperature > 0 {
		if tc, ok := e.generator.(llm.TemperatureCompleter); ok {
			return tc.CompleteWithTemperature(ctx, prompt, e.opts.Temperature)
		}
	}
	return e.generator.Complete(ctx, prompt)
}

// filter drops system messages and short messages, then keeps only the most
// recent MaxMessages in original order.
func (e *Extractor) filter(messages []types.Message) []types.Message {
	kept := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == types.RoleSystem {
			continue
		}
		if e.opts.MinMessageLength > 0 &&
			len([]rune(strings.TrimSpace(msg.Content))) < e.opts.MinMessageLength {
			continue
		}
		kept = append(kept, msg)
	}
	if e.opts.MaxMessages > 0 && len(kept) > e.opts.MaxMessages {
		kept = kept[len(kept)-e.opts.MaxMessages:]
	}
	return kept
}
