package branch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actorfs/errs"
)

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	s := newTestStore(t)
	write := func(_ context.Context, data []byte) (string, int64, error) {
		return hashOf(data), int64(len(data)), nil
	}
	return NewManager(s, write)
}

// TestCOWOverlayCopiesFromParent: a write on a child branch for a path
// that exists on the parent returns
// copiedFromParent=true/previousHash=<parent-hash>, commit persists the new
// block under the child, and the parent's view is untouched.
func TestCOWOverlayCopiesFromParent(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	_, err := m.store.Create(ctx, "feature", MainBranch, "")
	require.NoError(t, err)

	mainOv, err := m.Overlay(ctx, MainBranch)
	require.NoError(t, err)
	_, err = mainOv.InterceptWrite(ctx, "/a", []byte("original"))
	require.NoError(t, err)
	_, err = m.Commit(ctx, MainBranch, "c-main-1")
	require.NoError(t, err)

	featureOv, err := m.Overlay(ctx, "feature")
	require.NoError(t, err)
	wr, err := featureOv.InterceptWrite(ctx, "/a", []byte("changed-on-feature"))
	require.NoError(t, err)
	assert.True(t, wr.CopiedFromParent)
	assert.Equal(t, hashOf([]byte("original")), wr.PreviousHash)

	_, err = m.Commit(ctx, "feature", "c-feature-1")
	require.NoError(t, err)

	mainInfo, found, err := mainOv.GetBlockInfo(ctx, "/a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, hashOf([]byte("original")), mainInfo.Hash)

	featureInfo, found, err := featureOv.GetBlockInfo(ctx, "/a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, hashOf([]byte("changed-on-feature")), featureInfo.Hash)
}

// TestCOWOverlayTombstone: markDeleted on a child branch hides a
// parent-visible path while the parent still reads it.
func TestCOWOverlayTombstone(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	_, err := m.store.Create(ctx, "feature", MainBranch, "")
	require.NoError(t, err)

	mainOv, err := m.Overlay(ctx, MainBranch)
	require.NoError(t, err)
	_, err = mainOv.InterceptWrite(ctx, "/b", []byte("exists-on-main"))
	require.NoError(t, err)
	_, err = m.Commit(ctx, MainBranch, "c-main-1")
	require.NoError(t, err)

	featureOv, err := m.Overlay(ctx, "feature")
	require.NoError(t, err)
	deleted, err := featureOv.MarkDeleted(ctx, "/b")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, found, err := featureOv.GetBlockInfo(ctx, "/b")
	require.NoError(t, err)
	assert.False(t, found)

	mainInfo, found, err := mainOv.GetBlockInfo(ctx, "/b")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, hashOf([]byte("exists-on-main")), mainInfo.Hash)
}

func TestMarkDeletedUnknownPathReturnsFalse(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ov := NewOverlay(MainBranch, "", s.ResolveParentBlock, func(_ context.Context, data []byte) (string, int64, error) {
		return hashOf(data), int64(len(data)), nil
	})

	deleted, err := ov.MarkDeleted(ctx, "/nope")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDiscardPathRevertsToParent(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	_, err := m.store.Create(ctx, "feature", MainBranch, "")
	require.NoError(t, err)

	mainOv, err := m.Overlay(ctx, MainBranch)
	require.NoError(t, err)
	_, err = mainOv.InterceptWrite(ctx, "/c", []byte("v1"))
	require.NoError(t, err)
	_, err = m.Commit(ctx, MainBranch, "c1")
	require.NoError(t, err)

	featureOv, err := m.Overlay(ctx, "feature")
	require.NoError(t, err)
	_, err = featureOv.InterceptWrite(ctx, "/c", []byte("v2"))
	require.NoError(t, err)
	assert.Equal(t, 1, featureOv.DirtyCount())

	assert.True(t, featureOv.DiscardPath("/c"))
	assert.Equal(t, 0, featureOv.DirtyCount())

	info, found, err := featureOv.GetBlockInfo(ctx, "/c")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, hashOf([]byte("v1")), info.Hash)
}

func TestDiscardAllReturnsCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ov := NewOverlay(MainBranch, "", s.ResolveParentBlock, func(_ context.Context, data []byte) (string, int64, error) {
		return hashOf(data), int64(len(data)), nil
	})

	_, err := ov.InterceptWrite(ctx, "/x", []byte("1"))
	require.NoError(t, err)
	_, err = ov.InterceptWrite(ctx, "/y", []byte("2"))
	require.NoError(t, err)

	assert.Equal(t, 2, ov.DiscardAll())
	assert.Equal(t, 0, ov.DirtyCount())
}

func TestManagerOverlayUnknownBranchFails(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	_, err := m.Overlay(ctx, "ghost")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.BranchNotFound))
}

func TestManagerCommitBumpsCommitCount(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	ov, err := m.Overlay(ctx, MainBranch)
	require.NoError(t, err)
	_, err = ov.InterceptWrite(ctx, "/z", []byte("data"))
	require.NoError(t, err)

	res, err := m.Commit(ctx, MainBranch, "head-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.PathsCommitted)
	assert.Equal(t, "head-1", res.HeadCommit)

	b, err := m.store.Get(ctx, MainBranch)
	require.NoError(t, err)
	assert.EqualValues(t, 1, b.CommitCount)
	assert.Equal(t, "head-1", b.HeadCommit)
}
