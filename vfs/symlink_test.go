package vfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actorfs/errs"
)

func TestSymlinkAndReadlink(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Symlink(ctx, "/target.txt", "/link"))

	target, err := fs.Readlink(ctx, "/link")
	require.NoError(t, err)
	assert.Equal(t, "/target.txt", target)
}

func TestSymlinkExistingFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("x"), WriteOptions{})
	require.NoError(t, err)

	err = fs.Symlink(ctx, "/whatever", "/a.txt")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.EEXIST))
}

func TestReadlinkOnNonSymlinkFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("x"), WriteOptions{})
	require.NoError(t, err)

	_, err = fs.Readlink(ctx, "/a.txt")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.EINVAL))
}

func TestReadFileFollowsSymlinkOnce(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/target.txt", []byte("payload"), WriteOptions{})
	require.NoError(t, err)
	require.NoError(t, fs.Symlink(ctx, "/target.txt", "/link"))

	data, err := fs.ReadFile(ctx, "/link")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestRealpathResolvesChain(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/target.txt", []byte("payload"), WriteOptions{})
	require.NoError(t, err)
	require.NoError(t, fs.Symlink(ctx, "/target.txt", "/mid"))
	require.NoError(t, fs.Symlink(ctx, "/mid", "/link"))

	resolved, err := fs.Realpath(ctx, "/link")
	require.NoError(t, err)
	assert.Equal(t, "/target.txt", resolved)
}

func TestRealpathDetectsLoop(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Symlink(ctx, "/loop-b", "/loop-a"))
	require.NoError(t, fs.Symlink(ctx, "/loop-a", "/loop-b"))

	_, err := fs.Realpath(ctx, "/loop-a")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ELOOP))
}

func TestLinkSharesBlobAndBumpsRefcount(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("shared"), WriteOptions{})
	require.NoError(t, err)
	require.NoError(t, fs.Link(ctx, "/a.txt", "/b.txt"))

	a, err := fs.lookup(ctx, "/a.txt")
	require.NoError(t, err)
	b, err := fs.lookup(ctx, "/b.txt")
	require.NoError(t, err)
	assert.Equal(t, a.BlobID.String, b.BlobID.String)
	assert.EqualValues(t, 2, a.Nlink)
	assert.EqualValues(t, 2, b.Nlink)

	blob, err := fs.meta.GetBlob(ctx, a.BlobID.String)
	require.NoError(t, err)
	assert.EqualValues(t, 2, blob.RefCount)
}

func TestLinkDirectoryFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir(ctx, "/d", MkdirOptions{}))

	err := fs.Link(ctx, "/d", "/d2")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.EISDIR))
}

func TestLinkExistingDestinationFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("x"), WriteOptions{})
	require.NoError(t, err)
	_, err = fs.WriteFile(ctx, "/b.txt", []byte("y"), WriteOptions{})
	require.NoError(t, err)

	err = fs.Link(ctx, "/a.txt", "/b.txt")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.EEXIST))
}
