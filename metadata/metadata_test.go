package metadata

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actorfs/errs"
	"actorfs/storage"
	"actorfs/stmtcache"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSqlite(":memory:", storage.DefaultSqliteOptions())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, stmtcache.New(db, 64), zerolog.Nop())
}

func TestRootIsCreatedImplicitly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	root, err := s.GetByPath(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, TypeDirectory, root.Type)
	assert.Equal(t, "/", root.Path)
}

func TestCreateEntryUnderMissingParentFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateEntry(ctx, NewEntryParams{Path: "/a/b", Type: TypeFile, Mode: 0o644})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ENOENT))
}

func TestCreateAndGetEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e, err := s.CreateEntry(ctx, NewEntryParams{Path: "/a.txt", Type: TypeFile, Mode: 0o644, Size: 5, BlobID: "blob-aaa"})
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", e.Path)
	assert.True(t, e.BlobID.Valid)
	assert.Equal(t, "blob-aaa", e.BlobID.String)

	got, err := s.GetByPath(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
}

func TestCreateEntryDuplicatePathFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateEntry(ctx, NewEntryParams{Path: "/dup", Type: TypeFile, Mode: 0o644})
	require.NoError(t, err)
	_, err = s.CreateEntry(ctx, NewEntryParams{Path: "/dup", Type: TypeFile, Mode: 0o644})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.EEXIST))
}

func TestGetChildren(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	dir, err := s.CreateEntry(ctx, NewEntryParams{Path: "/dir", Type: TypeDirectory, Mode: 0o755})
	require.NoError(t, err)
	_, err = s.CreateEntry(ctx, NewEntryParams{Path: "/dir/a", Type: TypeFile, Mode: 0o644})
	require.NoError(t, err)
	_, err = s.CreateEntry(ctx, NewEntryParams{Path: "/dir/b", Type: TypeFile, Mode: 0o644})
	require.NoError(t, err)

	children, err := s.GetChildren(ctx, dir.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "a", children[0].Name)
	assert.Equal(t, "b", children[1].Name)
}

func TestUpdateEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e, err := s.CreateEntry(ctx, NewEntryParams{Path: "/f", Type: TypeFile, Mode: 0o644})
	require.NoError(t, err)

	newSize := int64(42)
	newMode := uint32(0o600)
	require.NoError(t, s.UpdateEntry(ctx, e.ID, EntryPatch{Size: &newSize, Mode: &newMode}))

	got, err := s.GetByPath(ctx, "/f")
	require.NoError(t, err)
	assert.EqualValues(t, 42, got.Size)
	assert.EqualValues(t, 0o600, got.Mode)
}

func TestDeleteEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e, err := s.CreateEntry(ctx, NewEntryParams{Path: "/g", Type: TypeFile, Mode: 0o644})
	require.NoError(t, err)
	require.NoError(t, s.DeleteEntry(ctx, e.ID))

	_, err = s.GetByPath(ctx, "/g")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ENOENT))
}

func TestRegisterBlobDedupIncrementsRefCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	b1, err := s.RegisterBlob(ctx, "blob-x", "hot", "sum1", 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, b1.RefCount)

	b2, err := s.RegisterBlob(ctx, "blob-x", "hot", "sum1", 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, b2.RefCount)
}

func TestIncrementBlobRefCountAndGCSweep(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.RegisterBlob(ctx, "blob-y", "hot", "sum", 10)
	require.NoError(t, err)

	require.NoError(t, s.IncrementBlobRefCount(ctx, "blob-y", -1))
	b, err := s.GetBlob(ctx, "blob-y")
	require.NoError(t, err)
	assert.EqualValues(t, 0, b.RefCount)

	swept, err := s.GCSweep(ctx, 10)
	require.NoError(t, err)
	assert.Contains(t, swept, "blob-y")

	gone, err := s.GetBlob(ctx, "blob-y")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestGCSweepLeavesLiveBlobsAlone(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.RegisterBlob(ctx, "blob-z", "hot", "sum", 10)
	require.NoError(t, err)

	swept, err := s.GCSweep(ctx, 10)
	require.NoError(t, err)
	assert.NotContains(t, swept, "blob-z")
}
