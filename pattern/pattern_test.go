package pattern

import (
	"testing"

	gitignore "github.com/crackcomm/go-gitignore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSkipsBlankAndComment(t *testing.T) {
	p, err := Parse("")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = Parse("# a comment")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestParseFlags(t *testing.T) {
	p, err := Parse("!/build/*.log")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.IsNegated)
	assert.True(t, p.IsRooted)
	assert.False(t, p.IsDirectory)
	assert.Equal(t, []string{"build", "*.log"}, p.Segments)
}

func TestParseDirectoryOnly(t *testing.T) {
	p, err := Parse("node_modules/")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.IsDirectory)
	assert.Equal(t, []string{"node_modules"}, p.Segments)
}

func TestMatchSimpleGlob(t *testing.T) {
	cache := NewCache(8)
	m, err := NewMatcher("*.txt", cache)
	require.NoError(t, err)
	require.NotNil(t, m)

	ok, err := m.Match("notes.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Match("dir/notes.txt")
	require.NoError(t, err)
	assert.True(t, ok, "unrooted pattern matches at any depth")

	ok, err = m.Match("notes.md")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchDoubleStarAnyDepth(t *testing.T) {
	cache := NewCache(8)
	m, err := NewMatcher("src/**/*.go", cache)
	require.NoError(t, err)

	ok, err := m.Match("src/a.go")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Match("src/pkg/sub/a.go")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Match("other/a.go")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchCharacterClass(t *testing.T) {
	cache := NewCache(8)
	m, err := NewMatcher("file[0-9].txt", cache)
	require.NoError(t, err)

	ok, err := m.Match("file3.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Match("fileA.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchNegatedClass(t *testing.T) {
	cache := NewCache(8)
	m, err := NewMatcher("file[!0-9].txt", cache)
	require.NoError(t, err)

	ok, err := m.Match("fileA.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Match("file3.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchBraceAlternation(t *testing.T) {
	cache := NewCache(8)
	m, err := NewMatcher("*.{yml,yaml}", cache)
	require.NoError(t, err)

	for _, name := range []string{"a.yml", "a.yaml"} {
		ok, err := m.Match(name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}

	ok, err := m.Match("a.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetNegationOverridesEarlierExclude(t *testing.T) {
	cache := NewCache(8)
	set, err := NewSet(cache, "*.log", "!important.log")
	require.NoError(t, err)

	ok, err := set.Match("debug.log")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = set.Match("important.log")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheTracksHitsAndMisses(t *testing.T) {
	cache := NewCache(8)
	m1, err := NewMatcher("*.txt", cache)
	require.NoError(t, err)
	m2, err := NewMatcher("*.txt", cache)
	require.NoError(t, err)

	_, err = m1.Match("a.txt")
	require.NoError(t, err)
	_, err = m2.Match("b.txt")
	require.NoError(t, err)

	stats := cache.Stats()
	assert.EqualValues(t, 1, stats.Misses)
	assert.EqualValues(t, 1, stats.Hits)
	assert.Equal(t, 1, stats.Size)
	assert.InDelta(t, 0.5, stats.HitRate(), 0.001)
}

func TestCacheEvictsAtCapacity(t *testing.T) {
	cache := NewCache(2)
	patterns := []string{"*.a", "*.b", "*.c"}
	for _, raw := range patterns {
		m, err := NewMatcher(raw, cache)
		require.NoError(t, err)
		_, err = m.Match("x" + raw[1:])
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, cache.Stats().Size, 2)
}

// TestAgreesWithGitignoreOracle cross-checks a selection of patterns
// against github.com/crackcomm/go-gitignore as an independent reference
// implementation.
func TestAgreesWithGitignoreOracle(t *testing.T) {
	cases := []struct {
		patterns []string
		path     string
	}{
		{[]string{"*.log"}, "a.log"},
		{[]string{"*.log"}, "dir/a.log"},
		{[]string{"/build/*.log"}, "build/a.log"},
		{[]string{"/build/*.log"}, "other/build/a.log"},
		{[]string{"docs/**"}, "docs/a/b/c.md"},
		{[]string{"*.log", "!keep.log"}, "keep.log"},
	}

	cache := NewCache(16)
	for _, tc := range cases {
		set, err := NewSet(cache, tc.patterns...)
		require.NoError(t, err)
		got, err := set.Match(tc.path)
		require.NoError(t, err)

		oracle, err := gitignore.CompileIgnoreLines(tc.patterns...)
		require.NoError(t, err)
		want := oracle.MatchesPath(tc.path)

		assert.Equal(t, want, got, "patterns=%v path=%s", tc.patterns, tc.path)
	}
}
