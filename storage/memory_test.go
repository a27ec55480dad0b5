package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCASRoundTrip(t *testing.T) {
	ctx := context.Background()
	cas := NewMemoryCASStorage()

	ok, err := cas.Exists(ctx, "objects/ab/cdef")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cas.Write(ctx, "objects/ab/cdef", []byte("payload")))

	data, found, err := cas.Get(ctx, "objects/ab/cdef")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, cas.Delete(ctx, "objects/ab/cdef"))
	_, found, err = cas.Get(ctx, "objects/ab/cdef")
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cas.Delete(ctx, "objects/missing/missing"), "delete is idempotent")
}

func TestMemoryBucketPutGetHeadDelete(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBucket("bucket-a")

	_, err := b.Put(ctx, "k1", []byte("hello world"), ObjectMeta{Tier: "warm"})
	require.NoError(t, err)

	res, err := b.Get(ctx, "k1", nil)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "hello world", string(res.Data))
	assert.Equal(t, "warm", res.Meta.Tier)

	meta, found, err := b.Head(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "warm", meta.Tier)

	end := int64(5)
	ranged, err := b.Get(ctx, "k1", &ByteRange{Start: 0, End: &end})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(ranged.Data))

	require.NoError(t, b.Delete(ctx, "k1"))
	miss, err := b.Get(ctx, "k1", nil)
	require.NoError(t, err)
	assert.False(t, miss.Found)
}

func TestMemoryBucketList(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBucket("bucket-a")

	for _, k := range []string{"a/1", "a/2", "b/1"} {
		_, err := b.Put(ctx, k, []byte("x"), ObjectMeta{})
		require.NoError(t, err)
	}

	res, err := b.List(ctx, ListOptions{Prefix: "a/"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a/1", "a/2"}, res.Keys)
}
