package llm

import (
	"context"
	"testing"
	"time"
)

// countingEmbedder records how many texts were sent upstream.
type countingEmbedder struct {
	calls int
	texts []string
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.texts = append(c.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (c *countingEmbedder) GetModel() string { return "counting" }

func TestCachedEmbedHit(t *testing.T) {
	inner := &countingEmbedder{}
	gen, err := NewCachedEmbeddingGenerator(inner, time.Minute)
	if err != nil {
		t.Fatalf("failed to build cache: %v", err)
	}
	cached := gen.(*CachedEmbeddingGenerator)
	defer cached.Close()

	v1, err := cached.Embed(context.Background(), "lives in boston")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	cached.Wait()

	v2, err := cached.Embed(context.Background(), "lives in boston")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("upstream called %d times, want 1", inner.calls)
	}
	if v1[0] != v2[0] {
		t.Errorf("cached vector differs: %v vs %v", v1, v2)
	}
}

func TestCachedEmbedBatchPartialHit(t *testing.T) {
	inner := &countingEmbedder{}
	gen, err := NewCachedEmbeddingGenerator(inner, time.Minute)
	if err != nil {
		t.Fatalf("failed to build cache: %v", err)
	}
	cached := gen.(*CachedEmbeddingGenerator)
	defer cached.Close()

	if _, err := cached.Embed(context.Background(), "a"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	cached.Wait()

	vecs, err := cached.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	// First text was cached, only the misses go upstream.
	if len(inner.texts) != 3 { // 1 from Embed + 2 misses
		t.Errorf("upstream saw texts %v, want 3 total", inner.texts)
	}
	if vecs[1][0] != 2 || vecs[2][0] != 3 {
		t.Errorf("vectors out of position: %v", vecs)
	}
}

func TestCacheKeyNormalizesText(t *testing.T) {
	inner := &countingEmbedder{}
	gen, err := NewCachedEmbeddingGenerator(inner, time.Minute)
	if err != nil {
		t.Fatalf("failed to build cache: %v", err)
	}
	cached := gen.(*CachedEmbeddingGenerator)
	defer cached.Close()

	if _, err := cached.Embed(context.Background(), "Lives in Boston"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	cached.Wait()
	if _, err := cached.Embed(context.Background(), "lives in boston!"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("punctuation/case variants should share a cache entry, upstream called %d times", inner.calls)
	}
}

func TestZeroTTLDisablesCache(t *testing.T) {
	inner := &countingEmbedder{}
	gen, err := NewCachedEmbeddingGenerator(inner, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen != EmbeddingGenerator(inner) {
		t.Error("zero TTL should return the inner generator unwrapped")
	}
}
