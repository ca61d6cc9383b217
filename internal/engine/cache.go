// ABOUTME: Small TTL cache for computed load series, keyed by query
// ABOUTME: window and parameters, with an injectable clock for tests.
package engine

import (
	"sync"
	"time"

	"github.com/harperreed/pulse/internal/models"
)

// DefaultCacheTTL bounds how stale a served series can be.
const DefaultCacheTTL = 30 * time.Second

// Cache memoizes computed load series for a bounded lifetime.
// Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	series  []models.LoadPoint
	expires time.Time
}

// NewCache creates a cache with the given lifetime. Zero or negative
// ttl falls back to DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached series for key if it has not expired.
func (c *Cache) Get(key string) ([]models.LoadPoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.series, true
}

// Put stores a series under key, replacing any previous entry.
func (c *Cache) Put(key string, series []models.LoadPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{series: series, expires: c.now().Add(c.ttl)}
}

// Invalidate drops all entries. Call after any write that changes the
// underlying history.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
