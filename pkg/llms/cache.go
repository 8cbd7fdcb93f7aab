package llms

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// CacheStats contains embedding cache performance statistics.
type CacheStats struct {
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	Size       int64     `json:"size"`
	MaxSize    int64     `json:"max_size"`
	LastAccess time.Time `json:"last_access"`
}

type cacheEntry struct {
	vector     []float32
	accessedAt time.Time
}

// CachingEmbedder wraps an embedder with an in-memory cache keyed by the
// text's digest. Identical texts hit the provider once; when the cache is
// full the least recently accessed entry is dropped.
type CachingEmbedder struct {
	inner      playbook.Embedder
	maxEntries int

	mu      sync.Mutex
	entries map[string]*cacheEntry
	stats   CacheStats
}

// NewCachingEmbedder wraps inner with a cache of up to maxEntries
// vectors. Non-positive maxEntries means unbounded.
func NewCachingEmbedder(inner playbook.Embedder, maxEntries int) *CachingEmbedder {
	return &CachingEmbedder{
		inner:      inner,
		maxEntries: maxEntries,
		entries:    make(map[string]*cacheEntry),
		stats:      CacheStats{MaxSize: int64(maxEntries)},
	}
}

// Embed returns the cached vector when available and delegates to the
// wrapped embedder otherwise. Provider failures are never cached.
func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		entry.accessedAt = time.Now()
		c.stats.Hits++
		c.stats.LastAccess = entry.accessedAt
		vector := entry.vector
		c.mu.Unlock()
		return vector, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = &cacheEntry{vector: vector, accessedAt: time.Now()}
	c.stats.Size = int64(len(c.entries))
	return vector, nil
}

// Stats returns a snapshot of the cache statistics.
func (c *CachingEmbedder) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Clear drops all cached vectors.
func (c *CachingEmbedder) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.stats.Size = 0
}

func (c *CachingEmbedder) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.accessedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.accessedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

var _ playbook.Embedder = (*CachingEmbedder)(nil)
