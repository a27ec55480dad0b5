package vfs

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actorfs/blobtier"
	"actorfs/config"
	"actorfs/errs"
	"actorfs/metadata"
	"actorfs/pagestore"
	"actorfs/storage"
	"actorfs/stmtcache"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	db, err := storage.OpenSqlite(":memory:", storage.DefaultSqliteOptions())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stmts := stmtcache.New(db, 64)
	meta := metadata.New(db, stmts, zerolog.Nop())
	pages := pagestore.New(db)
	warm := storage.NewMemoryBucket("warm")
	blobs := blobtier.New(db, pages, warm, nil, config.Default(), zerolog.Nop())
	objects := storage.NewMemoryCASStorage()

	return New(meta, blobs, objects, zerolog.Nop())
}

func TestWriteThenReadFile(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	res, err := fs.WriteFile(ctx, "/a.txt", []byte("hello"), WriteOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 5, res.BytesWritten)
	assert.Equal(t, "hot", res.Tier)

	data, err := fs.ReadFile(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWriteFileMissingParentFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/no/such/dir/a.txt", []byte("x"), WriteOptions{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ENOENT))
}

func TestWriteFileExclusiveFlagRejectsExisting(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("one"), WriteOptions{})
	require.NoError(t, err)

	_, err = fs.WriteFile(ctx, "/a.txt", []byte("two"), WriteOptions{Flag: "wx"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.EEXIST))
}

func TestWriteFileOverwriteReleasesOldBlob(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("one"), WriteOptions{})
	require.NoError(t, err)
	entry, err := fs.lookup(ctx, "/a.txt")
	require.NoError(t, err)
	oldBlobID := entry.BlobID.String

	_, err = fs.WriteFile(ctx, "/a.txt", []byte("two"), WriteOptions{})
	require.NoError(t, err)

	blob, err := fs.meta.GetBlob(ctx, oldBlobID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, blob.RefCount)
}

func TestReadFileOnDirectoryFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir(ctx, "/d", MkdirOptions{}))
	_, err := fs.ReadFile(ctx, "/d")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.EISDIR))
}

func TestReadFileMissingFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.ReadFile(ctx, "/missing.txt")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ENOENT))
}

func TestAppendFileCreatesWhenMissing(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.AppendFile(ctx, "/a.txt", []byte("hello"))
	require.NoError(t, err)

	data, err := fs.ReadFile(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestAppendFileAppendsToExisting(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("hello "), WriteOptions{})
	require.NoError(t, err)
	_, err = fs.AppendFile(ctx, "/a.txt", []byte("world"))
	require.NoError(t, err)

	data, err := fs.ReadFile(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestCopyFileDedupsSameContent(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/src.txt", []byte("shared"), WriteOptions{})
	require.NoError(t, err)
	_, err = fs.CopyFile(ctx, "/src.txt", "/dest.txt")
	require.NoError(t, err)

	src, err := fs.lookup(ctx, "/src.txt")
	require.NoError(t, err)
	dest, err := fs.lookup(ctx, "/dest.txt")
	require.NoError(t, err)
	assert.Equal(t, src.BlobID.String, dest.BlobID.String)

	blob, err := fs.meta.GetBlob(ctx, src.BlobID.String)
	require.NoError(t, err)
	assert.EqualValues(t, 2, blob.RefCount)
}

func TestUnlinkRemovesEntryAndReleasesBlob(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("x"), WriteOptions{})
	require.NoError(t, err)
	entry, err := fs.lookup(ctx, "/a.txt")
	require.NoError(t, err)

	require.NoError(t, fs.Unlink(ctx, "/a.txt"))

	exists, err := fs.Exists(ctx, "/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	blob, err := fs.meta.GetBlob(ctx, entry.BlobID.String)
	require.NoError(t, err)
	assert.EqualValues(t, 0, blob.RefCount)
}

func TestUnlinkDirectoryFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir(ctx, "/d", MkdirOptions{}))

	err := fs.Unlink(ctx, "/d")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.EISDIR))
}

func TestRenameMovesEntry(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, err := fs.WriteFile(ctx, "/a.txt", []byte("x"), WriteOptions{})
	require.NoError(t, err)
	require.NoError(t, fs.Rename(ctx, "/a.txt", "/b.txt"))

	exists, err := fs.Exists(ctx, "/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	data, err := fs.ReadFile(ctx, "/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestRenameCascadesDirectoryChildren(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir(ctx, "/dir", MkdirOptions{}))
	_, err := fs.WriteFile(ctx, "/dir/child.txt", []byte("x"), WriteOptions{})
	require.NoError(t, err)

	require.NoError(t, fs.Rename(ctx, "/dir", "/moved"))

	data, err := fs.ReadFile(ctx, "/moved/child.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	exists, err := fs.Exists(ctx, "/dir/child.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRenameOntoNonEmptyDirectoryFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir(ctx, "/a", MkdirOptions{}))
	require.NoError(t, fs.Mkdir(ctx, "/b", MkdirOptions{}))
	_, err := fs.WriteFile(ctx, "/b/x.txt", []byte("x"), WriteOptions{})
	require.NoError(t, err)

	err = fs.Rename(ctx, "/a", "/b")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ENOTEMPTY))
}

func TestRenameMissingSourceFails(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	err := fs.Rename(ctx, "/missing.txt", "/b.txt")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ENOENT))
}

func TestAccessIsExistenceProbe(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	ok, err := fs.Access(ctx, "/missing.txt", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = fs.WriteFile(ctx, "/a.txt", []byte("x"), WriteOptions{})
	require.NoError(t, err)
	ok, err = fs.Access(ctx, "/a.txt", 0)
	require.NoError(t, err)
	assert.True(t, ok)
}
