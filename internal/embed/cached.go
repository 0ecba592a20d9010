package embed

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultQueryCacheSize bounds the query-embedding cache. Interactive
// sessions repeat queries constantly (a user refining a search re-embeds
// the same text); 1000 vectors at 768 float32 dimensions is ~3MB.
const DefaultQueryCacheSize = 1000

// CachedEmbedder memoizes embeddings in a bounded LRU in front of any
// Embedder. It exists for the query path — a cache hit saves the
// hundreds-of-milliseconds provider round trip that otherwise dominates
// query latency. Indexing traffic mostly misses (chunk text rarely
// repeats) and just flows through.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with a cache of size entries; size <= 0
// uses DefaultQueryCacheSize.
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultQueryCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &CachedEmbedder{inner: inner, cache: cache}
}

// key scopes a cache entry by model so swapping providers can never serve
// a vector from the wrong embedding space. Query texts are short, so the
// raw text is a fine key; no digest needed.
func (c *CachedEmbedder) key(text string) string {
	return c.inner.ModelName() + "\x00" + text
}

// Embed serves from cache when it can, filling it when it can't.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if vec, hit := c.cache.Get(k); hit {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, vec)
	return vec, nil
}

// EmbedBatch serves each text from cache where possible and forwards only
// the misses to the inner embedder in one call, preserving input order in
// the result.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	var missTexts []string
	var missAt []int
	for i, text := range texts {
		if vec, hit := c.cache.Get(c.key(text)); hit {
			results[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missAt = append(missAt, i)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missAt {
		results[i] = fresh[j]
		c.cache.Add(c.key(texts[i]), fresh[j])
	}
	return results, nil
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

func (c *CachedEmbedder) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

func (c *CachedEmbedder) Close() error { return c.inner.Close() }
