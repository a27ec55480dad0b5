// Package stmtcache implements a bounded prepared-statement LRU:
// sqlite statements are relatively expensive to prepare and
// must be explicitly finalized (the go-sqlite3 driver holds a C-level
// handle per *sql.Stmt), so a capacity-bounded cache keyed by SQL text
// avoids re-preparing hot queries while still releasing cold ones on
// eviction.
package stmtcache

import (
	"container/list"
	"context"
	"database/sql"
	"sync"

	"actorfs/storage"
)

// Stats tracks hit ratio, evictions and total-created for monitoring.
type Stats struct {
	Hits         int64
	Misses       int64
	Evictions    int64
	TotalCreated int64
}

// HitRatio returns Hits/(Hits+Misses), or 0 with no lookups yet.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	query string
	stmt  *sql.Stmt
}

// Cache is a bounded LRU over prepared statements, keyed by SQL text.
// container/list backs the recency order directly (rather than going
// through hashicorp/golang-lru) because eviction must run a finalize hook
// -- stmt.Close -- on the evicted statement before the slot is reused, and
// the cache needs to return the *sql.Stmt it just evicted for that.
type Cache struct {
	mu       sync.Mutex
	db       storage.RowStore
	capacity int
	order    *list.List
	index    map[string]*list.Element
	stats    Stats
}

// New builds a Cache with the given capacity, backed by db for preparing
// statements. A non-positive capacity falls back to 256.
func New(db storage.RowStore, capacity int) *Cache {
	if capacity <= 0 {
		capacity = 256
	}
	return &Cache{
		db:       db,
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Prepare returns a cached *sql.Stmt for query, preparing and inserting it
// on a miss and evicting the least-recently-used entry (finalizing it via
// Close) if the cache is at capacity.
func (c *Cache) Prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	c.mu.Lock()
	if el, ok := c.index[query]; ok {
		c.order.MoveToFront(el)
		c.stats.Hits++
		stmt := el.Value.(*entry).stmt
		c.mu.Unlock()
		return stmt, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have raced us to prepare the same query while the
	// lock was released; keep theirs and finalize the redundant one.
	if el, ok := c.index[query]; ok {
		c.order.MoveToFront(el)
		_ = stmt.Close()
		return el.Value.(*entry).stmt, nil
	}

	c.stats.TotalCreated++
	if c.order.Len() >= c.capacity {
		c.evictOldestLocked()
	}

	el := c.order.PushFront(&entry{query: query, stmt: stmt})
	c.index[query] = el
	return stmt, nil
}

func (c *Cache) evictOldestLocked() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	e := oldest.Value.(*entry)
	_ = e.stmt.Close()
	c.order.Remove(oldest)
	delete(c.index, e.query)
	c.stats.Evictions++
}

// Stats returns a snapshot of the cache's hit/miss/eviction counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Len reports the number of currently cached statements.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear finalizes and removes every cached statement.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.order.Front(); el != nil; el = el.Next() {
		_ = el.Value.(*entry).stmt.Close()
	}
	c.order.Init()
	c.index = make(map[string]*list.Element)
}
