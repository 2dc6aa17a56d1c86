package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// rateLimitedTextGenerator wraps a TextGenerator with a token-bucket limiter
// so bursts of reconciliation calls don't trip upstream quotas.
type rateLimitedTextGenerator struct {
	inner   TextGenerator
	limiter *rate.Limiter
}

// RateLimitTextGenerator caps completions at reqPerSec with a burst of one.
// A non-positive reqPerSec returns inner unchanged.
func RateLimitTextGenerator(inner TextGenerator, reqPerSec float64) TextGenerator {
	if reqPerSec <= 0 {
		return inner
	}
	return &rateLimitedTextGenerator{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), 1),
	}
}

func (g *rateLimitedTextGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}
	return g.inner.Complete(ctx, prompt)
}

// CompleteWithTemperature forwards the temperature when the wrapped generator
// supports one, and degrades to a plain completion when it does not.
func (g *rateLimitedTextGenerator) CompleteWithTemperature(ctx context.Context, prompt string, temperature float64) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}
	if tc, ok := g.inner.(TemperatureCompleter); ok {
		return tc.CompleteWithTemperature(ctx, prompt, temperature)
	}
	return g.inner.Complete(ctx, prompt)
}

func (g *rateLimitedTextGenerator) GetModel() string {
	return g.inner.GetModel()
}

// rateLimitedEmbeddingGenerator applies the same limiting to embedding calls.
// A batch request consumes a single token regardless of size, which is how
// the upstream providers meter batch endpoints.
type rateLimitedEmbeddingGenerator struct {
	inner   EmbeddingGenerator
	limiter *rate.Limiter
}

// RateLimitEmbeddingGenerator caps embedding requests at reqPerSec.
// A non-positive reqPerSec returns inner unchanged.
func RateLimitEmbeddingGenerator(inner EmbeddingGenerator, reqPerSec float64) EmbeddingGenerator {
	if reqPerSec <= 0 {
		return inner
	}
	return &rateLimitedEmbeddingGenerator{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), 1),
	}
}

func (g *rateLimitedEmbeddingGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}
	return g.inner.Embed(ctx, text)
}

func (g *rateLimitedEmbeddingGenerator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}
	return g.inner.EmbedBatch(ctx, texts)
}

func (g *rateLimitedEmbeddingGenerator) GetModel() string {
	return g.inner.GetModel()
}

// Compile-time assertions.
var (
	_ TextGenerator        = (*rateLimitedTextGenerator)(nil)
	_ TemperatureCompleter = (*rateLimitedTextGenerator)(nil)
	_ EmbeddingGenerator   = (*rateLimitedEmbeddingGenerator)(nil)
)
