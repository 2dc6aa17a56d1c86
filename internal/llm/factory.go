package llm

import (
	"fmt"

	"github.com/scrypster/engram/internal/config"
)

// NewTextGenerator creates the appropriate TextGenerator based on LLM config.
// The returned generator is rate limited when cfg.RequestsPerSecond > 0.
func NewTextGenerator(cfg config.LLMConfig) (TextGenerator, error) {
	var gen TextGenerator
	switch cfg.Provider {
	case "openai":
		gen = NewOpenAIClient(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel})
	case "anthropic":
		gen = NewAnthropicClient(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel})
	case "ollama", "":
		gen = NewOllamaClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.OllamaModel})
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
	return RateLimitTextGenerator(gen, cfg.RequestsPerSecond), nil
}

// NewEmbeddingGenerator creates the appropriate EmbeddingGenerator.
// Returns (nil, nil) for providers that don't support embeddings (Anthropic).
// dimension is the expected vector length; 0 disables the check.
func NewEmbeddingGenerator(cfg config.LLMConfig, dimension int) (EmbeddingGenerator, error) {
	var gen EmbeddingGenerator
	switch cfg.Provider {
	case "openai":
		model := cfg.EmbeddingModel
		if model == "" {
			model = "text-embedding-3-small"
		}
		gen = NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     model,
			Dimension: dimension,
		})
	case "ollama", "":
		model := cfg.EmbeddingModel
		if model == "" {
			model = "nomic-embed-text"
		}
		gen = NewOllamaClient(OllamaConfig{
			BaseURL:   cfg.OllamaURL,
			Model:     model,
			Dimension: dimension,
		})
	default:
		// Anthropic and others don't support embeddings
		return nil, nil
	}
	return RateLimitEmbeddingGenerator(gen, cfg.RequestsPerSecond), nil
}
