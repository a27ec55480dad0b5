// Package cas implements the content-addressable object store:
// git-compatible header framing plus zlib compression, written at the
// two-level fanout path "objects/<hash[0:2]>/<hash[2:]>" through a
// CASStorage driver. Deduplication falls naturally out of content
// addressing: writing the same content twice produces the same hash, and
// PutObject skips the write when an object already exists at that path.
package cas

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"actorfs/config"
	"actorfs/errs"
	"actorfs/gitobject"
	"actorfs/objecthash"
	"actorfs/storage"
	"actorfs/zlibcodec"
)

// Store is the content-addressable object store.
type Store struct {
	backend    storage.CASStorage
	algo       objecthash.Algorithm
	hashCache  *objecthash.Cache
	compressOp zlibcodec.Options
	log        zerolog.Logger
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithAlgorithm overrides the default hash algorithm (SHA-1, for git
// parity).
func WithAlgorithm(algo objecthash.Algorithm) Option {
	return func(s *Store) { s.algo = algo }
}

// WithHashCache attaches a process-wide hash LRU cache.
func WithHashCache(c *objecthash.Cache) Option {
	return func(s *Store) { s.hashCache = c }
}

// WithCompression overrides the zlib compression parameters.
func WithCompression(opts zlibcodec.Options) Option {
	return func(s *Store) { s.compressOp = opts }
}

// WithLogger attaches a structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New builds a Store over backend, defaulting to SHA-1 (git parity), no
// hash cache, and the config package's default zlib parameters.
func New(backend storage.CASStorage, opts ...Option) *Store {
	s := &Store{
		backend:    backend,
		algo:       objecthash.SHA1,
		compressOp: zlibFromDefaults(config.Default()),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func zlibFromDefaults(o config.Options) zlibcodec.Options {
	return zlibcodec.Options{Level: o.CompressionLevel, Strategy: o.CompressionStrategy, MemLevel: o.CompressionMemLevel}
}

// objectPath implements the fanout mapping "objects/<hash[0:2]>/<hash[2:]>".
func objectPath(hash string) string {
	return fmt.Sprintf("objects/%s/%s", hash[:2], hash[2:])
}

// PutObject frames, hashes and compresses content under type t, writing it
// at its fanout path. If the path already exists the write is a no-op
// (content-addressed dedup).
func (s *Store) PutObject(ctx context.Context, content []byte, t gitobject.Type) (string, error) {
	if !t.Valid() {
		return "", errs.New(errs.InvalidType, "", "invalid object type "+string(t))
	}

	framed, err := gitobject.Frame(t, content)
	if err != nil {
		return "", err
	}

	hash, err := s.computeHash(framed)
	if err != nil {
		return "", err
	}

	path := objectPath(hash)
	exists, err := s.backend.Exists(ctx, path)
	if err != nil {
		return "", errs.Wrap(errs.EINVAL, path, err)
	}
	if exists {
		s.log.Debug().Str("hash", hash).Msg("cas: dedup hit")
		return hash, nil
	}

	compressed, err := zlibcodec.Compress(framed, s.compressOp)
	if err != nil {
		return "", err
	}
	if err := s.backend.Write(ctx, path, compressed); err != nil {
		return "", errs.Wrap(errs.EINVAL, path, err)
	}

	s.log.Info().Str("hash", hash).Str("type", string(t)).Int("size", len(content)).Msg("cas: object stored")
	return hash, nil
}

func (s *Store) computeHash(framed []byte) (string, error) {
	if s.hashCache != nil {
		return s.hashCache.ComputeHash(s.algo, framed)
	}
	return objecthash.Sum(s.algo, framed)
}

// GetObject reads and validates the object at hash, returning a parsed
// Object. A missing object returns (nil, nil) -- not found is not an error.
func (s *Store) GetObject(ctx context.Context, hash string) (*gitobject.Object, error) {
	if err := s.validateHash(hash); err != nil {
		return nil, err
	}

	path := objectPath(hash)
	compressed, found, err := s.backend.Get(ctx, path)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, path, err)
	}
	if !found {
		return nil, nil
	}

	framed, err := zlibcodec.Decompress(compressed)
	if err != nil {
		return nil, err
	}

	obj, err := gitobject.Parse(framed)
	if err != nil {
		return nil, errs.Wrap(errs.CorruptedObj, hash, err)
	}
	return obj, nil
}

// HasObject is an existence probe via the underlying storage driver.
func (s *Store) HasObject(ctx context.Context, hash string) (bool, error) {
	if err := s.validateHash(hash); err != nil {
		return false, err
	}
	return s.backend.Exists(ctx, objectPath(hash))
}

// DeleteObject is idempotent: deleting a missing object is not an error.
func (s *Store) DeleteObject(ctx context.Context, hash string) error {
	if err := s.validateHash(hash); err != nil {
		return err
	}
	return s.backend.Delete(ctx, objectPath(hash))
}

func (s *Store) validateHash(hash string) error {
	expected := objecthash.HexLen(s.algo)
	if expected == 0 || len(hash) != expected {
		return errs.New(errs.InvalidHash, hash, "wrong length for algorithm")
	}
	for _, r := range hash {
		if !isLowerHex(r) {
			return errs.New(errs.InvalidHash, hash, "non-hex character")
		}
	}
	return nil
}

func isLowerHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
}
