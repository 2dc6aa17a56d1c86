package llm

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/scrypster/engram/internal/hashing"
)

// CachedEmbeddingGenerator wraps an EmbeddingGenerator with a TTL cache keyed
// by normalized content hash. Repeated embeds of the same text within the TTL
// skip the upstream call entirely. The cache is a performance layer only and
// never changes result semantics.
type CachedEmbeddingGenerator struct {
	inner EmbeddingGenerator
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCachedEmbeddingGenerator builds the cache decorator. A ttl of zero
// returns the inner generator unwrapped.
func NewCachedEmbeddingGenerator(inner EmbeddingGenerator, ttl time.Duration) (EmbeddingGenerator, error) {
	if ttl <= 0 {
		return inner, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedEmbeddingGenerator{
		inner: inner,
		cache: cache,
		ttl:   ttl,
	}, nil
}

// Embed returns a cached vector when the text was embedded recently,
// otherwise delegates upstream and caches the result.
func (c *CachedEmbeddingGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		return v.([]float32), nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(key, vec, 1, c.ttl)
	return vec, nil
}

// EmbedBatch serves what it can from cache and sends only the misses
// upstream in a single batch call. Output order matches input order.
func (c *CachedEmbeddingGenerator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if v, ok := c.cache.Get(c.cacheKey(text)); ok {
			out[i] = v.([]float32)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		vecs, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range vecs {
			out[missIdx[j]] = vec
			c.cache.SetWithTTL(c.cacheKey(missTexts[j]), vec, 1, c.ttl)
		}
	}

	return out, nil
}

// GetModel returns the wrapped generator's model name.
func (c *CachedEmbeddingGenerator) GetModel() string {
	return c.inner.GetModel()
}

// Close releases the cache's internal goroutines.
func (c *CachedEmbeddingGenerator) Close() {
	c.cache.Close()
}

// Wait blocks until pending cache writes are applied. Test hook.
func (c *CachedEmbeddingGenerator) Wait() {
	c.cache.Wait()
}

func (c *CachedEmbeddingGenerator) cacheKey(text string) string {
	return c.inner.GetModel() + ":" + hashing.ContentHash(text)
}

var _ EmbeddingGenerator = (*CachedEmbeddingGenerator)(nil)
