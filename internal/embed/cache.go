package embed

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

// EmbeddingCache is an in-memory cache for embedding vectors, keyed by a
// hash of the text. Eviction drops the oldest entries once maxSize is hit.
type EmbeddingCache struct {
	mu      sync.RWMutex
	entries map[string]cachedEmbedding
	maxSize int
	ttl     time.Duration
}

// cachedEmbedding holds a cached embedding with creation time.
type cachedEmbedding struct {
	vector    []float32
	createdAt time.Time
}

// NewEmbeddingCache creates a cache holding up to maxSize entries.
// ttl is the time-to-live for entries; zero means no expiration.
func NewEmbeddingCache(maxSize int, ttl time.Duration) *EmbeddingCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &EmbeddingCache{
		entries: make(map[string]cachedEmbedding),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Key generates the cache key for the given text using SHA256.
func (c *EmbeddingCache) Key(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Get retrieves an embedding from the cache. Returns a copy of the vector
// and true if found and not expired.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	key := c.Key(text)

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if c.ttl > 0 && time.Since(entry.createdAt) > c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}

	// Copy out so callers cannot mutate the cached vector.
	result := make([]float32, len(entry.vector))
	copy(result, entry.vector)
	return result, true
}

// Set stores an embedding in the cache, evicting old entries when full.
func (c *EmbeddingCache) Set(text string, vector []float32) {
	key := c.Key(text)

	vectorCopy := make([]float32, len(vector))
	copy(vectorCopy, vector)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = cachedEmbedding{
		vector:    vectorCopy,
		createdAt: time.Now(),
	}
}

// evictOldest removes the oldest 10% of entries, at least one.
// Must be called with the lock held.
func (c *EmbeddingCache) evictOldest() {
	toEvict := c.maxSize / 10
	if toEvict < 1 {
		toEvict = 1
	}

	type keyTime struct {
		key       string
		createdAt time.Time
	}
	entries := make([]keyTime, 0, len(c.entries))
	for k, v := range c.entries {
		entries = append(entries, keyTime{k, v.createdAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].createdAt.Before(entries[j].createdAt)
	})

	for i := 0; i < toEvict && i < len(entries); i++ {
		delete(c.entries, entries[i].key)
	}
}

// Size returns the current number of entries in the cache.
func (c *EmbeddingCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries from the cache.
func (c *EmbeddingCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedEmbedding)
}

// Cleanup removes expired entries and returns how many were removed.
// Useful for long-running processes with a TTL configured.
func (c *EmbeddingCache) Cleanup() int {
	if c.ttl <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.createdAt) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
