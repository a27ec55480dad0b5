package objecthash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumKnownVectors(t *testing.T) {
	got, err := Sum(SHA1, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", got)
}

func TestStreamingMatchesOneShot(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	s, err := NewStreaming(SHA256)
	require.NoError(t, err)
	s.Update(data[:10])
	s.Update(data[10:])
	streamed := s.Finalize()
	assert.EqualValues(t, len(data), s.BytesProcessed())

	oneShot, err := Sum(SHA256, data)
	require.NoError(t, err)
	assert.Equal(t, oneShot, streamed)
}

func TestUnsupportedAlgorithm(t *testing.T) {
	_, err := Sum(Algorithm("md5"), []byte("x"))
	assert.Error(t, err)
}

func TestCacheRoundTrip(t *testing.T) {
	c, err := NewCache(4, true)
	require.NoError(t, err)

	data := []byte("duplicate content")
	first, err := c.ComputeHash(SHA256, data)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	second, err := c.ComputeHash(SHA256, data)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.Len(), "identical content should not grow the cache")

	third, err := c.ComputeHash(SHA1, data)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	assert.Equal(t, 1, c.Len(), "second algorithm for known content nests under the same fingerprint")
}

func TestCacheDisabledBypasses(t *testing.T) {
	c, err := NewCache(4, false)
	require.NoError(t, err)

	_, err = c.ComputeHash(SHA256, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCacheEviction(t *testing.T) {
	c, err := NewCache(2, true)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := c.ComputeHash(SHA256, []byte{byte(i)})
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, c.Len(), 2)
}
