package vfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actorfs/errs"
	"actorfs/metadata"
)

func TestMkdirNonRecursiveRequiresParent(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	err := fs.Mkdir(ctx, "/a/b", MkdirOptions{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ENOENT))
}

func TestMkdirDuplicateFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir(ctx, "/a", MkdirOptions{}))
	err := fs.Mkdir(ctx, "/a", MkdirOptions{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.EEXIST))
}

func TestMkdirRecursiveCreatesAncestors(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir(ctx, "/a/b/c", MkdirOptions{Recursive: true}))

	for _, p := range []string{"/a", "/a/b", "/a/b/c"} {
		entry, err := fs.lookup(ctx, p)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, metadata.TypeDirectory, entry.Type)
	}
}

func TestMkdirRecursiveNoopOnExistingDirectories(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir(ctx, "/a", MkdirOptions{}))
	require.NoError(t, fs.Mkdir(ctx, "/a/b", MkdirOptions{Recursive: true}))
}

func TestRmdirRequiresDirectory(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("x"), WriteOptions{})
	require.NoError(t, err)

	err = fs.Rmdir(ctx, "/a.txt", RmdirOptions{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ENOTDIR))
}

func TestRmdirNonEmptyFailsWithoutRecursive(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir(ctx, "/a", MkdirOptions{}))
	_, err := fs.WriteFile(ctx, "/a/x.txt", []byte("x"), WriteOptions{})
	require.NoError(t, err)

	err = fs.Rmdir(ctx, "/a", RmdirOptions{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ENOTEMPTY))
}

func TestRmdirRecursiveReleasesChildBlobs(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir(ctx, "/a", MkdirOptions{}))
	_, err := fs.WriteFile(ctx, "/a/x.txt", []byte("x"), WriteOptions{})
	require.NoError(t, err)
	entry, err := fs.lookup(ctx, "/a/x.txt")
	require.NoError(t, err)

	require.NoError(t, fs.Rmdir(ctx, "/a", RmdirOptions{Recursive: true}))

	exists, err := fs.Exists(ctx, "/a")
	require.NoError(t, err)
	assert.False(t, exists)

	blob, err := fs.meta.GetBlob(ctx, entry.BlobID.String)
	require.NoError(t, err)
	assert.EqualValues(t, 0, blob.RefCount)
}

func TestReaddirListsChildren(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir(ctx, "/a", MkdirOptions{}))
	_, err := fs.WriteFile(ctx, "/a/one.txt", []byte("1"), WriteOptions{})
	require.NoError(t, err)
	_, err = fs.WriteFile(ctx, "/a/two.txt", []byte("2"), WriteOptions{})
	require.NoError(t, err)

	entries, err := fs.Readdir(ctx, "/a", ReaddirOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "one.txt", entries[0].Name)
	assert.Equal(t, metadata.TypeFile, entries[0].Type)
}

func TestReaddirRecursiveDescendsSubdirectories(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir(ctx, "/a/b", MkdirOptions{Recursive: true}))
	_, err := fs.WriteFile(ctx, "/a/b/leaf.txt", []byte("x"), WriteOptions{})
	require.NoError(t, err)

	entries, err := fs.Readdir(ctx, "/a", ReaddirOptions{Recursive: true})
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "b")
	assert.Contains(t, names, "b/leaf.txt")
}

func TestReaddirMissingFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.Readdir(ctx, "/missing", ReaddirOptions{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ENOENT))
}
