package pattern

import (
	"regexp"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheCapacity matches the stmtcache default (256); the objecthash
// hash cache defaults to 1000 entries.
const DefaultCacheCapacity = 256

// CacheStats reports hits/misses/size/capacity for monitoring.
type CacheStats struct {
	Hits     uint64
	Misses   uint64
	Size     int
	Capacity int
}

// HitRate returns Hits/(Hits+Misses), or 0 when the cache has never been
// queried.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is the bounded LRU of compiled patterns shared by every Matcher
// built with it: process-wide and mutable, bounded by capacity, eviction
// the sole mutation other than insertion.
type Cache struct {
	lru      *lru.Cache[string, *regexp.Regexp]
	capacity int
	hits     atomic.Uint64
	misses   atomic.Uint64
	mu       sync.Mutex
}

// NewCache builds a pattern compile cache bounded at capacity (defaults to
// DefaultCacheCapacity when capacity <= 0).
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	l, _ := lru.New[string, *regexp.Regexp](capacity)
	return &Cache{lru: l, capacity: capacity}
}

// Compile returns the compiled regex for p, consulting (and populating)
// the cache keyed by p.Raw.
func (c *Cache) Compile(p *Pattern) (*regexp.Regexp, error) {
	c.mu.Lock()
	if re, ok := c.lru.Get(p.Raw); ok {
		c.mu.Unlock()
		c.hits.Add(1)
		return re, nil
	}
	c.mu.Unlock()
	c.misses.Add(1)

	re, err := buildRegex(p)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lru.Add(p.Raw, re)
	c.mu.Unlock()
	return re, nil
}

// Stats reports the cache's current hit/miss/size counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	size := c.lru.Len()
	c.mu.Unlock()
	return CacheStats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Size:     size,
		Capacity: c.capacity,
	}
}

// Clear empties the cache without resetting its hit/miss counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
