package embed

import (
	"context"
	"time"
)

// CachedProvider wraps an embedding provider with an in-memory cache.
// Long-running processes (serve, watch, mcp) embed the same chunks and
// queries repeatedly; the cache short-circuits those round-trips.
type CachedProvider struct {
	inner Provider
	cache *EmbeddingCache
}

// WithCache wraps a Provider with a cache of up to cacheSize embeddings.
func WithCache(p Provider, cacheSize int) Provider {
	return &CachedProvider{
		inner: p,
		cache: NewEmbeddingCache(cacheSize, 0),
	}
}

// WithCacheAndTTL wraps a Provider with a cache whose entries expire after ttl.
func WithCacheAndTTL(p Provider, cacheSize int, ttl time.Duration) Provider {
	return &CachedProvider{
		inner: p,
		cache: NewEmbeddingCache(cacheSize, ttl),
	}
}

// NewCachedProvider creates a CachedProvider sharing an existing cache.
func NewCachedProvider(p Provider, cache *EmbeddingCache) *CachedProvider {
	return &CachedProvider{
		inner: p,
		cache: cache,
	}
}

// Embed generates an embedding for the given text, using the cache if possible.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, found := c.cache.Get(text); found {
		return cached, nil
	}

	embedding, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(text, embedding)
	return embedding, nil
}

// EmbedBatch generates embeddings for multiple texts, fetching only the
// texts missing from the cache.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	uncachedIndices := make([]int, 0, len(texts))
	uncachedTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if cached, found := c.cache.Get(text); found {
			results[i] = cached
		} else {
			uncachedIndices = append(uncachedIndices, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	newEmbeddings, err := c.inner.EmbedBatch(ctx, uncachedTexts)
	if err != nil {
		return nil, err
	}

	for i, idx := range uncachedIndices {
		results[idx] = newEmbeddings[i]
		c.cache.Set(uncachedTexts[i], newEmbeddings[i])
	}

	return results, nil
}

// Model returns the name of the underlying embedding model.
func (c *CachedProvider) Model() string {
	return c.inner.Model()
}

// Dimensions returns the dimensionality of the embedding vectors.
func (c *CachedProvider) Dimensions() int {
	return c.inner.Dimensions()
}

// Identity returns the identity of the underlying provider. Caching does
// not change which embedder produced the vectors.
func (c *CachedProvider) Identity() string {
	return c.inner.Identity()
}

// Ping checks if the underlying provider is available.
func (c *CachedProvider) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}

// CacheSize returns the number of cached embeddings.
func (c *CachedProvider) CacheSize() int {
	return c.cache.Size()
}

// ClearCache removes all cached embeddings.
func (c *CachedProvider) ClearCache() {
	c.cache.Clear()
}
