package vfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actorfs/errs"
)

func TestOpenExistingMaterializesBuffer(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("hello"), WriteOptions{})
	require.NoError(t, err)

	h, err := fs.Open(ctx, "/a.txt", OpenFlags{}, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(h.Bytes()))
}

func TestOpenMissingWithoutCreateFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.Open(ctx, "/missing.txt", OpenFlags{}, 0)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ENOENT))
}

func TestOpenMissingWithCreateMakesEmptyFile(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	h, err := fs.Open(ctx, "/a.txt", OpenFlags{Create: true}, 0o644)
	require.NoError(t, err)
	assert.Empty(t, h.Bytes())

	exists, err := fs.Exists(ctx, "/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOpenDirectoryFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir(ctx, "/d", MkdirOptions{}))

	_, err := fs.Open(ctx, "/d", OpenFlags{}, 0)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.EISDIR))
}

func TestHandleWriteAtGrowsBufferAndFlushesOnClose(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("hello"), WriteOptions{})
	require.NoError(t, err)

	h, err := fs.Open(ctx, "/a.txt", OpenFlags{}, 0)
	require.NoError(t, err)

	n, err := h.WriteAt([]byte("!!"), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "hello!!", string(h.Bytes()))

	require.NoError(t, h.Close(ctx))

	data, err := fs.ReadFile(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello!!", string(data))
}

func TestHandleTruncateShrinksAndPads(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("hello"), WriteOptions{})
	require.NoError(t, err)
	h, err := fs.Open(ctx, "/a.txt", OpenFlags{}, 0)
	require.NoError(t, err)

	require.NoError(t, h.Truncate(2))
	assert.Equal(t, "he", string(h.Bytes()))

	require.NoError(t, h.Truncate(4))
	assert.Len(t, h.Bytes(), 4)
}

func TestHandleReadAtOutOfBoundsFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("hi"), WriteOptions{})
	require.NoError(t, err)
	h, err := fs.Open(ctx, "/a.txt", OpenFlags{}, 0)
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = h.ReadAt(buf, 100)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.RangeOutOfBounds))
}

func TestHandleSyncIsNoOpWhenClean(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("hello"), WriteOptions{})
	require.NoError(t, err)
	entryBefore, err := fs.lookup(ctx, "/a.txt")
	require.NoError(t, err)

	h, err := fs.Open(ctx, "/a.txt", OpenFlags{}, 0)
	require.NoError(t, err)
	require.NoError(t, h.Sync(ctx))

	entryAfter, err := fs.lookup(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, entryBefore.BlobID.String, entryAfter.BlobID.String)
}
