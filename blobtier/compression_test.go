package blobtier

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actorfs/config"
)

func TestCompressorRoundTripAllCodecs(t *testing.T) {
	data := bytes.Repeat([]byte("compressible payload "), 200)

	for _, codec := range []Codec{CodecZstd, CodecBrotli, CodecGzip} {
		t.Run(string(codec), func(t *testing.T) {
			c := NewCompressor(codec, 0)

			out, err := c.compress(data)
			require.NoError(t, err)
			assert.Less(t, len(out), len(data))

			back, err := decompressWith(codec, out)
			require.NoError(t, err)
			assert.Equal(t, data, back)
		})
	}
}

func TestCompressorSkipPolicy(t *testing.T) {
	c := NewCompressor(CodecZstd, 1024)

	assert.True(t, c.shouldSkip(100, "text/plain"), "below min size")
	assert.True(t, c.shouldSkip(4096, "image/png"), "already-compressed MIME")
	assert.False(t, c.shouldSkip(4096, "text/plain"))
	assert.False(t, c.shouldSkip(4096, ""), "unknown content type compresses")

	var nilC *Compressor
	assert.True(t, nilC.shouldSkip(4096, "text/plain"))
	assert.True(t, NewCompressor(CodecNone, 0).shouldSkip(4096, ""))
}

func TestCodecTagRoundTrip(t *testing.T) {
	codec, orig := parseCodecTag("codec=zstd;orig=8192")
	assert.Equal(t, CodecZstd, codec)
	assert.Equal(t, 8192, orig)

	codec, orig = parseCodecTag("blob-abc123")
	assert.Equal(t, Codec(""), codec)
	assert.Equal(t, 0, orig)
}

func TestEngineCompressesBucketWrites(t *testing.T) {
	ctx := context.Background()
	opts := config.Default()
	opts.HotMaxSize = 10
	opts.ColdCompressionMinSize = 64
	e, warm := newTestEngine(t, opts)

	data := bytes.Repeat([]byte("abcdefgh"), 512)
	res, err := e.Put(ctx, "blob-comp", data, "", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, Warm, res.Tier)

	// The stored object is the compressed stream, tagged with the codec
	// and the original size.
	raw, err := warm.Get(ctx, "blob-comp", nil)
	require.NoError(t, err)
	require.True(t, raw.Found)
	assert.Less(t, len(raw.Data), len(data))
	codec, orig := parseCodecTag(raw.Meta.Encoding)
	assert.Equal(t, CodecZstd, codec)
	assert.Equal(t, len(data), orig)

	got, err := e.Get(ctx, "blob-comp")
	require.NoError(t, err)
	require.True(t, got.Found)
	assert.Equal(t, data, got.Data)

	stats := e.compressor.Stats()
	assert.EqualValues(t, 1, stats.Count)
	assert.Less(t, stats.Ratio(), 1.0)
}

func TestEngineRangeReadOfCompressedObject(t *testing.T) {
	ctx := context.Background()
	opts := config.Default()
	opts.HotMaxSize = 10
	opts.ColdCompressionMinSize = 64
	opts.AutoPromote = false
	e, _ := newTestEngine(t, opts)

	data := bytes.Repeat([]byte("0123456789"), 100)
	_, err := e.Put(ctx, "blob-range", data, "", "")
	require.NoError(t, err)

	end := int64(25)
	got, found, err := e.GetRange(ctx, "blob-range", 5, &end)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, data[5:25], got)
}

func TestEnginePreCompressedPayloadStoredRaw(t *testing.T) {
	ctx := context.Background()
	opts := config.Default()
	opts.HotMaxSize = 10
	opts.ColdCompressionMinSize = 64
	e, warm := newTestEngine(t, opts)

	data := bytes.Repeat([]byte{0xFF, 0x00, 0xAA}, 100)
	_, err := e.Put(ctx, "blob-img", data, "", "image/png")
	require.NoError(t, err)

	raw, err := warm.Get(ctx, "blob-img", nil)
	require.NoError(t, err)
	require.True(t, raw.Found)
	assert.Empty(t, raw.Meta.Encoding)
	assert.Equal(t, data, raw.Data)
}
