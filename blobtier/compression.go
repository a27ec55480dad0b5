package blobtier

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"actorfs/errs"
	"actorfs/storage"
)

// Codec names a bucket-payload compression algorithm.
type Codec string

const (
	CodecNone   Codec = "none"
	CodecZstd   Codec = "zstd"
	CodecBrotli Codec = "brotli"
	CodecGzip   Codec = "gzip"
)

// alreadyCompressedTypes is the well-known "don't bother" MIME set:
// payloads in these formats are already entropy-coded.
var alreadyCompressedTypes = map[string]bool{
	"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true,
	"video/mp4": true, "video/webm": true,
	"application/zip": true, "application/gzip": true, "application/x-7z-compressed": true,
	"audio/mpeg": true, "application/x-brotli": true,
}

// CompressionStats accumulates compression-ratio statistics across writes.
type CompressionStats struct {
	TotalOriginal   int64
	TotalCompressed int64
	Count           int64
}

// Ratio returns TotalCompressed/TotalOriginal, or 1 when nothing has run.
func (s CompressionStats) Ratio() float64 {
	if s.TotalOriginal == 0 {
		return 1
	}
	return float64(s.TotalCompressed) / float64(s.TotalOriginal)
}

// Compressor interposes between the tier engine and its buckets,
// compressing qualifying payloads on the way out and tracking ratio
// statistics. The engine attaches one automatically from
// config.Options.ColdCompression.
type Compressor struct {
	Codec   Codec
	MinSize int64
	stats   CompressionStats
}

// NewCompressor builds a Compressor using codec for payloads >= minSize.
func NewCompressor(codec Codec, minSize int64) *Compressor {
	return &Compressor{Codec: codec, MinSize: minSize}
}

// Stats returns the accumulated compression ratio statistics.
func (c *Compressor) Stats() CompressionStats { return c.stats }

func (c *Compressor) shouldSkip(size int64, contentType string) bool {
	if c == nil || c.Codec == "" || c.Codec == CodecNone {
		return true
	}
	if size < c.MinSize {
		return true
	}
	if alreadyCompressedTypes[strings.ToLower(contentType)] {
		return true
	}
	return false
}

func (c *Compressor) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch c.Codec {
	case CodecGzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, errs.Wrap(errs.CompressionFailed, "", err)
		}
		if err := w.Close(); err != nil {
			return nil, errs.Wrap(errs.CompressionFailed, "", err)
		}
	case CodecBrotli:
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, errs.Wrap(errs.CompressionFailed, "", err)
		}
		if err := w.Close(); err != nil {
			return nil, errs.Wrap(errs.CompressionFailed, "", err)
		}
	case CodecZstd:
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, errs.Wrap(errs.CompressionFailed, "", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, errs.Wrap(errs.CompressionFailed, "", err)
		}
		if err := w.Close(); err != nil {
			return nil, errs.Wrap(errs.CompressionFailed, "", err)
		}
	default:
		return nil, errs.New(errs.CompressionFailed, "", "unknown codec "+string(c.Codec))
	}
	return buf.Bytes(), nil
}

func decompressWith(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case CodecGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errs.Wrap(errs.DecompressionError, "", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errs.Wrap(errs.DecompressionError, "", err)
		}
		return out, nil
	case CodecBrotli:
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, errs.Wrap(errs.DecompressionError, "", err)
		}
		return out, nil
	case CodecZstd:
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errs.Wrap(errs.DecompressionError, "", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errs.Wrap(errs.DecompressionError, "", err)
		}
		return out, nil
	default:
		return data, nil
	}
}

// maybeCompress compresses data when a compressor is configured and the
// payload qualifies, returning the codec used ("" when skipped) and the
// original size for the persisted {codec, originalSize, compressedSize}
// record.
func (e *Engine) maybeCompress(data []byte, contentType string) ([]byte, Codec, int, error) {
	if e.compressor == nil || e.compressor.shouldSkip(int64(len(data)), contentType) {
		return data, "", 0, nil
	}
	out, err := e.compressor.compress(data)
	if err != nil {
		return nil, "", 0, err
	}
	e.compressor.stats.Count++
	e.compressor.stats.TotalOriginal += int64(len(data))
	e.compressor.stats.TotalCompressed += int64(len(out))
	return out, e.compressor.Codec, len(data), nil
}

// maybeDecompress reverses maybeCompress using the codec tag recorded in
// the object's Encoding metadata.
func (e *Engine) maybeDecompress(data []byte, meta storage.ObjectMeta) ([]byte, error) {
	codec, _ := parseCodecTag(meta.Encoding)
	if codec == "" {
		return data, nil
	}
	return decompressWith(codec, data)
}

func parseCodecTag(tag string) (Codec, int) {
	if !strings.HasPrefix(tag, "codec=") {
		return "", 0
	}
	parts := strings.Split(tag, ";")
	codec := Codec(strings.TrimPrefix(parts[0], "codec="))
	orig := 0
	if len(parts) > 1 && strings.HasPrefix(parts[1], "orig=") {
		orig, _ = strconv.Atoi(strings.TrimPrefix(parts[1], "orig="))
	}
	return codec, orig
}
