// Package watch implements the subscription core: a
// connection -> pattern -> subscription-entry map plus the JSON message
// protocol that drives it. A *websocket.Conn is used as the opaque
// per-connection handle; this package never reads or writes frames itself,
// only keys maps by connection identity.
package watch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"actorfs/errs"
	"actorfs/pattern"
)

// SubscribeOptions configures a single subscribe call.
type SubscribeOptions struct {
	Group string
}

// SubscriptionEntry is the per-(connection, pattern) bookkeeping record.
type SubscriptionEntry struct {
	Group     string
	CreatedAt int64
}

type subscription struct {
	entry   SubscriptionEntry
	matcher *pattern.Matcher
}

// Core holds every connection's subscriptions and the shared,
// process-wide pattern compile cache.
type Core struct {
	mu    sync.Mutex
	cache *pattern.Cache
	subs  map[*websocket.Conn]map[string]*subscription

	maxPerConnection int
	now              func() int64
}

// NewCore builds a subscription core. maxPerConnection <= 0 means no cap.
func NewCore(cache *pattern.Cache, maxPerConnection int, now func() int64) *Core {
	if now == nil {
		now = func() int64 { return 0 }
	}
	return &Core{
		cache:            cache,
		subs:             make(map[*websocket.Conn]map[string]*subscription),
		maxPerConnection: maxPerConnection,
		now:              now,
	}
}

// Subscribe registers ws for raw (normalized, de-duplicated). Returns
// false if raw is empty or already subscribed; errors if the pattern
// fails to parse or the per-connection cap is exceeded.
func (c *Core) Subscribe(ws *websocket.Conn, raw string, opts SubscribeOptions) (bool, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	byPattern, ok := c.subs[ws]
	if !ok {
		byPattern = make(map[string]*subscription)
		c.subs[ws] = byPattern
	}
	if _, exists := byPattern[normalized]; exists {
		return false, nil
	}
	if c.maxPerConnection > 0 && len(byPattern) >= c.maxPerConnection {
		return false, errs.New(errs.SubscriptionCap, normalized, fmt.Sprintf("limit %d", c.maxPerConnection))
	}

	m, err := pattern.NewMatcher(normalized, c.cache)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, errs.New(errs.InvalidPattern, normalized, "comment or blank pattern is not subscribable")
	}

	byPattern[normalized] = &subscription{
		entry:   SubscriptionEntry{Group: opts.Group, CreatedAt: c.now()},
		matcher: m,
	}
	return true, nil
}

// Unsubscribe removes raw from ws's subscriptions. Returns false if it was
// not present.
func (c *Core) Unsubscribe(ws *websocket.Conn, raw string) bool {
	normalized := strings.TrimSpace(raw)

	c.mu.Lock()
	defer c.mu.Unlock()

	byPattern, ok := c.subs[ws]
	if !ok {
		return false
	}
	if _, exists := byPattern[normalized]; !exists {
		return false
	}
	delete(byPattern, normalized)
	if len(byPattern) == 0 {
		delete(c.subs, ws)
	}
	return true
}

// UnsubscribeGroup removes every subscription ws holds under group,
// returning the count removed.
func (c *Core) UnsubscribeGroup(ws *websocket.Conn, group string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	byPattern, ok := c.subs[ws]
	if !ok {
		return 0
	}
	n := 0
	for raw, sub := range byPattern {
		if sub.entry.Group == group {
			delete(byPattern, raw)
			n++
		}
	}
	if len(byPattern) == 0 {
		delete(c.subs, ws)
	}
	return n
}

// RemoveConnection drops every subscription for ws, e.g. on socket close.
func (c *Core) RemoveConnection(ws *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, ws)
}

// GetSubscribersForPath scans every connection's compiled patterns and
// returns those whose regex matches path.
func (c *Core) GetSubscribersForPath(path string) ([]*websocket.Conn, error) {
	c.mu.Lock()
	type candidate struct {
		ws   *websocket.Conn
		subs map[string]*subscription
	}
	candidates := make([]candidate, 0, len(c.subs))
	for ws, byPattern := range c.subs {
		candidates = append(candidates, candidate{ws: ws, subs: byPattern})
	}
	c.mu.Unlock()

	var out []*websocket.Conn
	for _, cand := range candidates {
		matched, err := anyMatches(cand.subs, path)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, cand.ws)
		}
	}
	return out, nil
}

func anyMatches(byPattern map[string]*subscription, path string) (bool, error) {
	for _, sub := range byPattern {
		ok, err := sub.matcher.Match(path)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// GetMatchingPatterns returns the raw pattern strings ws holds that match
// path.
func (c *Core) GetMatchingPatterns(ws *websocket.Conn, path string) ([]string, error) {
	c.mu.Lock()
	byPattern, ok := c.subs[ws]
	snapshot := make(map[string]*subscription, len(byPattern))
	for k, v := range byPattern {
		snapshot[k] = v
	}
	c.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var out []string
	for raw, sub := range snapshot {
		matched, err := sub.matcher.Match(path)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, raw)
		}
	}
	return out, nil
}

// HasPattern reports whether any connection currently holds a pattern
// that matches path.
func (c *Core) HasPattern(path string) (bool, error) {
	subscribers, err := c.GetSubscribersForPath(path)
	if err != nil {
		return false, err
	}
	return len(subscribers) > 0, nil
}

// GetConnectionCount returns the number of connections with at least one
// active subscription.
func (c *Core) GetConnectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
