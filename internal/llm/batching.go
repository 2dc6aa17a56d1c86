package llm

import (
	"context"
	"fmt"
)

// batchLimitedEmbeddingGenerator splits oversized batch requests into chunks
// so a large ingestion never exceeds the provider's per-request input cap.
type batchLimitedEmbeddingGenerator struct {
	inner EmbeddingGenerator
	max   int
}

// BatchLimitEmbeddingGenerator caps the number of inputs sent per upstream
// batch request, preserving input order across chunks. A non-positive max
// returns inner unchanged.
func BatchLimitEmbeddingGenerator(inner EmbeddingGenerator, max int) EmbeddingGenerator {
	if max <= 0 {
		return inner
	}
	return &batchLimitedEmbeddingGenerator{inner: inner, max: max}
}

func (g *batchLimitedEmbeddingGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	return g.inner.Embed(ctx, text)
}

func (g *batchLimitedEmbeddingGenerator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= g.max {
		return g.inner.EmbedBatch(ctx, texts)
	}

	vecs := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.max {
		end := start + g.max
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := g.inner.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(chunk) != end-start {
			return nil, fmt.Errorf("embedding batch returned %d vectors for %d inputs", len(chunk), end-start)
		}
		vecs = append(vecs, chunk...)
	}
	return vecs, nil
}

func (g *batchLimitedEmbeddingGenerator) GetModel() string {
	return g.inner.GetModel()
}

// Compile-time assertion.
var _ EmbeddingGenerator = (*batchLimitedEmbeddingGenerator)(nil)
