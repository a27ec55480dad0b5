package pattern

import (
	"regexp"
	"strings"
	"sync"
)

// Matcher is a single compiled pattern. Compilation is deferred until the
// first Match call, so building a large Set of matchers up front costs
// nothing beyond parsing.
type Matcher struct {
	pattern *Pattern
	cache   *Cache

	mu       sync.Mutex
	compiled *regexp.Regexp
}

// NewMatcher parses raw and returns a Matcher bound to cache. A blank line
// or comment yields a nil Matcher and a nil error.
func NewMatcher(raw string, cache *Cache) (*Matcher, error) {
	p, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	return &Matcher{pattern: p, cache: cache}, nil
}

// Pattern returns the parsed pattern backing this matcher.
func (m *Matcher) Pattern() *Pattern {
	return m.pattern
}

func (m *Matcher) ensureCompiled() (*regexp.Regexp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.compiled != nil {
		return m.compiled, nil
	}
	re, err := m.cache.Compile(m.pattern)
	if err != nil {
		return nil, err
	}
	m.compiled = re
	return re, nil
}

// Match reports whether path (normalized by stripping a leading "/")
// matches this pattern, compiling on first call.
func (m *Matcher) Match(path string) (bool, error) {
	re, err := m.ensureCompiled()
	if err != nil {
		return false, err
	}
	return re.MatchString(strings.TrimPrefix(path, "/")), nil
}

// Set is an ordered collection of matchers, applied gitignore-style: the
// last pattern that matches a path determines the outcome, so a later "!"
// (negated) pattern can re-include a path an earlier pattern excluded.
type Set struct {
	matchers []*Matcher
}

// NewSet parses each line in patterns, skipping blank lines and "#"
// comments, and returns the resulting Set.
func NewSet(cache *Cache, patterns ...string) (*Set, error) {
	var matchers []*Matcher
	for _, raw := range patterns {
		m, err := NewMatcher(raw, cache)
		if err != nil {
			return nil, err
		}
		if m == nil {
			continue
		}
		matchers = append(matchers, m)
	}
	return &Set{matchers: matchers}, nil
}

// Match reports whether path is matched by the set, honoring negation
// ordering.
func (s *Set) Match(path string) (bool, error) {
	matched := false
	for _, m := range s.matchers {
		ok, err := m.Match(path)
		if err != nil {
			return false, err
		}
		if ok {
			matched = !m.pattern.IsNegated
		}
	}
	return matched, nil
}

// Matchers exposes the set's underlying matchers, e.g. for
// getMatchingPatterns-style callers that need the raw pattern strings.
func (s *Set) Matchers() []*Matcher {
	return s.matchers
}
