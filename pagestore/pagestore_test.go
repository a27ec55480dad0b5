package pagestore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"actorfs/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSqlite(":memory:", storage.DefaultSqliteOptions())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestWriteReadPagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := bytes.Repeat([]byte("x"), PageSize+100)
	keys, err := s.WritePages(ctx, "blob-aaa", data)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	got, err := s.ReadPages(ctx, keys)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestWritePagesEmptyData(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	keys, err := s.WritePages(ctx, "blob-empty", nil)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	got, err := s.ReadPages(ctx, keys)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReadRangeWithinOnePage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := []byte("hello world, this is page data")
	keys, err := s.WritePages(ctx, "blob-bbb", data)
	require.NoError(t, err)

	got, err := s.ReadRange(ctx, keys, 6, 5)
	require.NoError(t, err)
	require.Equal(t, "world", string(got))
}

func TestReadRangeSpansPages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := bytes.Repeat([]byte("a"), PageSize)
	data = append(data, []byte("bcdef")...)
	keys, err := s.WritePages(ctx, "blob-ccc", data)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	got, err := s.ReadRange(ctx, keys, int64(PageSize-2), 7)
	require.NoError(t, err)
	require.Equal(t, "aabcdef", string(got))
}

func TestReadRangeFullSpanEqualsWholeBlob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := bytes.Repeat([]byte("z"), 3*1024)
	keys, err := s.WritePages(ctx, "blob-ddd", data)
	require.NoError(t, err)

	got, err := s.ReadRange(ctx, keys, 0, int64(len(data)))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestReadRangeZeroLength(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	keys, err := s.WritePages(ctx, "blob-eee", []byte("abc"))
	require.NoError(t, err)

	got, err := s.ReadRange(ctx, keys, 0, 0)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReadRangeOutOfBounds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	keys, err := s.WritePages(ctx, "blob-fff", []byte("abc"))
	require.NoError(t, err)

	_, err = s.ReadRange(ctx, keys, 10, 5)
	require.Error(t, err)
}

func TestUpdateRangeWithinOnePage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	keys, err := s.WritePages(ctx, "blob-ggg", []byte("hello world"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateRange(ctx, "blob-ggg", keys, 6, []byte("WORLD")))

	got, err := s.ReadPages(ctx, keys)
	require.NoError(t, err)
	require.Equal(t, "hello WORLD", string(got))
}

func TestUpdateRangeAcrossPages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	data := bytes.Repeat([]byte("a"), PageSize+10)
	keys, err := s.WritePages(ctx, "blob-hhh", data)
	require.NoError(t, err)

	patch := bytes.Repeat([]byte("B"), 20)
	require.NoError(t, s.UpdateRange(ctx, "blob-hhh", keys, int64(PageSize-5), patch))

	got, err := s.ReadPages(ctx, keys)
	require.NoError(t, err)
	require.Equal(t, patch, got[PageSize-5:PageSize-5+20])
}

func TestDeletePagesIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	keys, err := s.WritePages(ctx, "blob-iii", []byte("abc"))
	require.NoError(t, err)

	require.NoError(t, s.DeletePages(ctx, keys))
	require.NoError(t, s.DeletePages(ctx, keys), "delete is idempotent")

	_, err = s.ReadPages(ctx, keys)
	require.Error(t, err)
}

func TestSizeOf(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	data := bytes.Repeat([]byte("x"), PageSize+42)
	keys, err := s.WritePages(ctx, "blob-jjj", data)
	require.NoError(t, err)

	size, err := s.SizeOf(ctx, keys)
	require.NoError(t, err)
	require.EqualValues(t, len(data), size)
}
