package branchfs

import (
	"strings"
	"sync"
	"time"
)

// Cache holds resolved entries and, optionally, recent negative lookups.
//
// Positive entries stay until they are invalidated so that every caller sees
// the same Entry (and the same path lock) for a path. Negative entries expire
// after their TTL.
type Cache struct {
	entries       map[string]*Entry
	negativeCache map[string]*negativeCacheEntry
	mu            sync.RWMutex
	negativeTTL   time.Duration
	maxNegative   int
	negative      bool
}

// negativeCacheEntry stores information about non-existent paths
type negativeCacheEntry struct {
	expires time.Time
}

// newCache creates a cache; negative caching is enabled when ttl > 0
func newCache(negativeTTL time.Duration, maxNegative int) *Cache {
	return &Cache{
		entries:       make(map[string]*Entry),
		negativeCache: make(map[string]*negativeCacheEntry),
		negativeTTL:   negativeTTL,
		maxNegative:   maxNegative,
		negative:      negativeTTL > 0 && maxNegative > 0,
	}
}

// get retrieves a cached entry
func (c *Cache) get(path string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	return e, ok
}

// putIfAbsent stores e unless another lookup won the race, and returns the
// entry that is now cached.
func (c *Cache) putIfAbsent(path string, e *Entry) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[path]; ok {
		return cur
	}
	c.entries[path] = e
	delete(c.negativeCache, path)
	return e
}

// isNegative checks if a path is in the negative cache (known not to exist)
func (c *Cache) isNegative(path string) bool {
	if !c.negative {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.negativeCache[path]
	if !ok {
		return false
	}
	return time.Now().Before(entry.expires)
}

// putNegative marks a path as non-existent in the cache
func (c *Cache) putNegative(path string) {
	if !c.negative {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.negativeCache) >= c.maxNegative {
		c.evictOldestNegative()
	}
	c.negativeCache[path] = &negativeCacheEntry{
		expires: time.Now().Add(c.negativeTTL),
	}
}

// invalidateTree removes a path and everything below it
func (c *Cache) invalidateTree(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for p := range c.entries {
		if underPath(p, prefix) {
			delete(c.entries, p)
		}
	}
	for p := range c.negativeCache {
		if underPath(p, prefix) {
			delete(c.negativeCache, p)
		}
	}
}

// invalidateChildren removes everything below dir but keeps dir itself
func (c *Cache) invalidateChildren(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for p := range c.entries {
		if p != dir && underPath(p, dir) {
			delete(c.entries, p)
		}
	}
	for p := range c.negativeCache {
		if p != dir && underPath(p, dir) {
			delete(c.negativeCache, p)
		}
	}
}

// clear removes all cache entries
func (c *Cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
	c.negativeCache = make(map[string]*negativeCacheEntry)
}

// evictOldestNegative removes the negative entry closest to expiry
func (c *Cache) evictOldestNegative() {
	var oldestPath string
	var oldestTime time.Time

	for path, entry := range c.negativeCache {
		if oldestPath == "" || entry.expires.Before(oldestTime) {
			oldestPath = path
			oldestTime = entry.expires
		}
	}

	if oldestPath != "" {
		delete(c.negativeCache, oldestPath)
	}
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CacheStats{
		Entries:           len(c.entries),
		NegativeEnabled:   c.negative,
		NegativeCacheSize: len(c.negativeCache),
		MaxNegative:       c.maxNegative,
		NegativeTTL:       c.negativeTTL,
	}
}

// CacheStats contains cache statistics
type CacheStats struct {
	Entries           int
	NegativeEnabled   bool
	NegativeCacheSize int
	MaxNegative       int
	NegativeTTL       time.Duration
}

// underPath reports whether p is prefix or lies below it.
func underPath(p, prefix string) bool {
	if prefix == "/" || p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}
