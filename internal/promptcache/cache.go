// Package promptcache caches prompt content keyed by task and schema
// hash. Repeated processing of an unchanged schema reuses the cached
// prompt instead of spending input tokens rebuilding it.
package promptcache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Defaults.
const (
	DefaultTTL        = 900 * time.Second
	DefaultMaxEntries = 256
)

type entry struct {
	content    string
	schemaHash string
	expiresAt  time.Time
	hitCount   int
}

// Stats reports cache effectiveness.
type Stats struct {
	Entries    int     `json:"entries"`
	Hits       int     `json:"hits"`
	Misses     int     `json:"misses"`
	HitRatePct float64 `json:"hit_rate_pct"`
}

// Cache is a TTL-bounded LRU prompt cache with schema-aware
// invalidation: an entry dies when it expires, when it is evicted, or
// when its schema's content hash changes.
type Cache struct {
	entries    *lru.Cache[string, *entry]
	defaultTTL time.Duration
	hits       int
	misses     int
	now        func() time.Time
}

// New creates a cache holding at most maxEntries prompts. Zero values
// fall back to the defaults.
func New(maxEntries int, defaultTTL time.Duration) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	backing, err := lru.New[string, *entry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create prompt cache: %w", err)
	}
	return &Cache{
		entries:    backing,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}, nil
}

// Get looks up cached prompt content. Expired entries count as misses
// and are dropped.
func (c *Cache) Get(task, schemaHash string) (string, bool) {
	key := cacheKey(task, schemaHash)
	e, ok := c.entries.Get(key)
	if !ok {
		c.misses++
		return "", false
	}
	if c.now().After(e.expiresAt) || e.schemaHash != schemaHash {
		c.entries.Remove(key)
		c.misses++
		return "", false
	}
	e.hitCount++
	c.hits++
	return e.content, true
}

// Put stores prompt content. A zero ttl uses the cache default.
func (c *Cache) Put(task, schemaHash, content string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.entries.Add(cacheKey(task, schemaHash), &entry{
		content:    content,
		schemaHash: schemaHash,
		expiresAt:  c.now().Add(ttl),
	})
}

// InvalidateSchema drops every entry for the schema hash and returns
// the number removed.
func (c *Cache) InvalidateSchema(schemaHash string) int {
	removed := 0
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Peek(key); ok && e.schemaHash == schemaHash {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Clear drops everything but keeps the hit/miss counters.
func (c *Cache) Clear() {
	c.entries.Purge()
}

// HitRate returns the hit percentage over all lookups.
func (c *Cache) HitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0.0
	}
	return 100.0 * float64(c.hits) / float64(total)
}

// Stats returns a snapshot of cache effectiveness.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:    c.entries.Len(),
		Hits:       c.hits,
		Misses:     c.misses,
		HitRatePct: c.HitRate(),
	}
}

func cacheKey(task, schemaHash string) string {
	if len(schemaHash) > 16 {
		schemaHash = schemaHash[:16]
	}
	return task + ":" + schemaHash
}
