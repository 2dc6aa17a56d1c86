package llm

import "context"

// TextGenerator is the interface for LLM text completion. Extraction and
// reconciliation prompts both use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// TemperatureCompleter is implemented by text generators whose completion
// endpoint accepts a sampling temperature. Callers that want a non-default
// temperature should type-assert for it and fall back to Complete when the
// generator does not support one.
type TemperatureCompleter interface {
	CompleteWithTemperature(ctx context.Context, prompt string, temperature float64) (string, error)
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// EmbedBatch preserves input order and returns exactly one vector per input;
// it must be at least as efficient as calling Embed per item.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	GetModel() string
}
