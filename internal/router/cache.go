package router

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultCacheTTL is how long a Tier-2 result is reused.
	DefaultCacheTTL = 5 * time.Minute
	// DefaultCacheMaxEntries bounds the classifier cache.
	DefaultCacheMaxEntries = 1024
)

type cacheEntry struct {
	result    RoutingResult
	expiresAt time.Time
}

// classifierCache holds Tier-2 results keyed by normalized input. Entries
// expire after ttl; every miss sweeps all expired entries. The least recently
// used entry is evicted once maxEntries is reached.
type classifierCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries *lru.Cache[string, cacheEntry]
	now     func() time.Time
}

func newClassifierCache(ttl time.Duration, maxEntries int, now func() time.Time) *classifierCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	if now == nil {
		now = time.Now
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, cacheEntry](maxEntries)
	return &classifierCache{ttl: ttl, entries: entries, now: now}
}

// cacheKey normalizes input for cache lookups.
func cacheKey(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// get returns a live entry for key. A miss (absent or expired) triggers a
// sweep of every expired entry.
func (c *classifierCache) get(key string) (RoutingResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries.Get(key); ok && now.Before(e.expiresAt) {
		return e.result, true
	}
	c.sweepLocked(now)
	return RoutingResult{}, false
}

// put stores result under key. Concurrent writers for the same key are
// last-write-wins.
func (c *classifierCache) put(key string, result RoutingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, cacheEntry{result: result, expiresAt: c.now().Add(c.ttl)})
}

func (c *classifierCache) sweepLocked(now time.Time) int {
	removed := 0
	for _, k := range c.entries.Keys() {
		e, ok := c.entries.Peek(k)
		if ok && !now.Before(e.expiresAt) {
			c.entries.Remove(k)
			removed++
		}
	}
	return removed
}

func (c *classifierCache) len() int {
	return c.entries.Len()
}
