package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already root", "/", "/"},
		{"relative gets leading slash", "a/b", "/a/b"},
		{"duplicate slashes collapsed", "/a//b///c", "/a/b/c"},
		{"trailing slash stripped", "/a/b/", "/a/b"},
		{"root trailing slash kept as root", "/", "/"},
		{"dot segments dropped", "/a/./b/.", "/a/b"},
		{"dotdot pops previous segment", "/a/b/../c", "/a/c"},
		{"dotdot past root clamps at root", "/../../etc", "/etc"},
		{"pure dotdot yields root", "/..", "/"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeEmptyFails(t *testing.T) {
	_, err := Normalize("")
	assert.Error(t, err)
}

func TestIsPathTraversal(t *testing.T) {
	root := "/app/data"

	escaping := []string{
		"../../../etc/passwd",
		"/app/../../../root",
		"..\\..\\windows",
		"../../../etc/passwd\x00.jpg",
		"%2e%2e/%2e%2e/etc/passwd",
	}
	for _, p := range escaping {
		t.Run(p, func(t *testing.T) {
			assert.True(t, IsPathTraversal(p, root), "expected traversal for %q", p)
		})
	}

	safe := []string{
		"/app/data/file.txt",
		"sub/dir/file.txt",
		"/app/data",
	}
	for _, p := range safe {
		t.Run(p, func(t *testing.T) {
			assert.False(t, IsPathTraversal(p, root), "expected no traversal for %q", p)
		})
	}
}

func TestIsSymlinkEscape(t *testing.T) {
	root := "/app/data"
	assert.True(t, IsSymlinkEscape("../../etc/passwd", "/app/data/link", root))
	assert.False(t, IsSymlinkEscape("sibling.txt", "/app/data/link", root))
}

func TestSanitizeSqlIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"my-table.name", "my_table_name"},
		{"9count", "sp_9count"},
		{"valid_name", "valid_name"},
	}
	for _, tc := range cases {
		got, err := SanitizeSqlIdentifier(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := SanitizeSqlIdentifier("!!!")
	assert.Error(t, err)
}

func TestGenerateSavepointName(t *testing.T) {
	assert.Equal(t, "sp_0", GenerateSavepointName(0))
	assert.Equal(t, "sp_42", GenerateSavepointName(42))
}
