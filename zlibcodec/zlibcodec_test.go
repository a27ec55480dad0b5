package zlibcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeated, repeated, repeated")

	compressed, err := Compress(data, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, IsZlibCompressed(compressed))

	out, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestDecompressTruncated(t *testing.T) {
	_, err := Decompress([]byte{0x78})
	assert.Error(t, err)
}

func TestDecompressBadHeader(t *testing.T) {
	_, err := Decompress([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
	assert.Error(t, err)
}

func TestCompressInvalidLevel(t *testing.T) {
	_, err := Compress([]byte("x"), Options{Level: 99, MemLevel: 8})
	assert.Error(t, err)
}

func TestCompressInvalidMemLevel(t *testing.T) {
	_, err := Compress([]byte("x"), Options{Level: 6, MemLevel: 20})
	assert.Error(t, err)
}

func TestIsZlibCompressedShortInput(t *testing.T) {
	assert.False(t, IsZlibCompressed([]byte{0x78}))
}
