// Package zlibcodec implements the zlib-format compressor used for loose
// objects, wrapping klauspost/compress/zlib instead of the standard
// library's compress/zlib for the faster deflate implementation.
package zlibcodec

import (
	"bytes"
	"errors"
	"io"

	kflate "github.com/klauspost/compress/flate"
	kzlib "github.com/klauspost/compress/zlib"

	"actorfs/config"
	"actorfs/errs"
)

// validateStrategy checks that s names a known deflate strategy. The
// underlying engine tunes its matching heuristics from the level alone, so
// Strategy (and MemLevel below) are validated for compatibility with
// zlib-style callers and are otherwise inert.
func validateStrategy(s config.CompressionStrategy) error {
	switch s {
	case "", config.StrategyDefault, config.StrategyFiltered,
		config.StrategyHuffmanOnly, config.StrategyRLE, config.StrategyFixed:
		return nil
	default:
		return errs.New(errs.InvalidLevel, "", "unknown strategy "+string(s))
	}
}

// Options configures a single Compress call. Level drives the deflate
// engine; Strategy and MemLevel are bounds-checked only (see
// validateStrategy).
type Options struct {
	Level    int // 0-9 or kzlib.DefaultCompression (-1)
	Strategy config.CompressionStrategy
	MemLevel int // 1-9
}

// DefaultOptions returns level 6, default strategy, memLevel 8.
func DefaultOptions() Options {
	return Options{Level: 6, Strategy: config.StrategyDefault, MemLevel: 8}
}

func validate(opts Options) error {
	if opts.Level != kzlib.DefaultCompression && (opts.Level < 0 || opts.Level > 9) {
		return errs.New(errs.InvalidLevel, "", "level out of bounds [0,9]")
	}
	if opts.MemLevel < 1 || opts.MemLevel > 9 {
		return errs.New(errs.InvalidMemLevel, "", "memLevel out of bounds [1,9]")
	}
	return nil
}

// Compress produces a zlib-format stream (CMF, FLG, deflate stream,
// ADLER-32) for data under opts.
func Compress(data []byte, opts Options) ([]byte, error) {
	if err := validate(opts); err != nil {
		return nil, err
	}
	if err := validateStrategy(opts.Strategy); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := kzlib.NewWriterLevel(&buf, opts.Level)
	if err != nil {
		return nil, errs.Wrap(errs.CompressionFailed, "", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, errs.Wrap(errs.CompressionFailed, "", err)
	}
	if err := w.Close(); err != nil {
		return nil, errs.Wrap(errs.CompressionFailed, "", err)
	}
	return buf.Bytes(), nil
}

// IsZlibCompressed performs a header-only quick check: CMF low nibble must
// be 8 (deflate) and (CMF*256+FLG) mod 31 must be 0.
func IsZlibCompressed(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	cmf, flg := data[0], data[1]
	if cmf&0x0F != 8 {
		return false
	}
	return (int(cmf)*256+int(flg))%31 == 0
}

// Decompress inflates a zlib-format stream, classifying engine errors into
// the errs taxonomy.
func Decompress(data []byte) ([]byte, error) {
	if len(data) < 6 {
		return nil, errs.New(errs.TruncatedData, "", "zlib stream shorter than 6 bytes")
	}
	if !IsZlibCompressed(data) {
		return nil, errs.New(errs.InvalidZlibHeader, "", "bad CMF/FLG header")
	}

	r, err := kzlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, classifyReaderErr(err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, classifyReaderErr(err)
	}
	return out, nil
}

func classifyReaderErr(err error) error {
	var corrupt kflate.CorruptInputError
	switch {
	case errors.Is(err, kzlib.ErrHeader):
		return errs.Wrap(errs.InvalidZlibHeader, "", err)
	case errors.Is(err, kzlib.ErrChecksum):
		return errs.Wrap(errs.InvalidChecksum, "", err)
	case errors.As(err, &corrupt):
		return errs.Wrap(errs.CorruptedData, "", err)
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return errs.Wrap(errs.TruncatedData, "", err)
	default:
		return errs.Wrap(errs.DecompressionError, "", err)
	}
}
