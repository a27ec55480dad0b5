// Package objecthash implements the streaming hasher and hash LRU cache:
// SHA-1/256/384/512 with an update/finalize streaming API, and a bounded
// LRU keyed by a fast fingerprint of the first kilobyte plus the content
// length.
package objecthash

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"lukechampine.com/blake3"

	"actorfs/errs"
)

// Algorithm identifies a supported digest.
type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
)

// HexLen returns the expected hex-digest length for algo, or 0 if unknown.
func HexLen(algo Algorithm) int {
	switch algo {
	case SHA1:
		return 40
	case SHA256:
		return 64
	case SHA384:
		return 96
	case SHA512:
		return 128
	default:
		return 0
	}
}

func newHasher(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, errs.New(errs.InvalidType, "", "unsupported hash algorithm "+string(algo))
	}
}

// Streaming is an update/finalize hasher: a plain value type, safe to use
// from a single goroutine at a time, so callers can pick any concurrency
// primitive around it.
type Streaming struct {
	algo  Algorithm
	h     hash.Hash
	bytes uint64
}

// NewStreaming starts a new streaming hash for algo.
func NewStreaming(algo Algorithm) (*Streaming, error) {
	h, err := newHasher(algo)
	if err != nil {
		return nil, err
	}
	return &Streaming{algo: algo, h: h}, nil
}

// Update folds more bytes into the running digest.
func (s *Streaming) Update(p []byte) {
	s.h.Write(p)
	s.bytes += uint64(len(p))
}

// Finalize returns the lowercase hex digest of everything written so far.
// The Streaming value must not be reused after Finalize.
func (s *Streaming) Finalize() string {
	return hex.EncodeToString(s.h.Sum(nil))
}

// BytesProcessed reports the number of bytes folded into the digest so far,
// for progress callbacks on long-running streams.
func (s *Streaming) BytesProcessed() uint64 {
	return s.bytes
}

// Sum computes algo over data in one shot without touching the LRU cache.
func Sum(algo Algorithm, data []byte) (string, error) {
	h, err := newHasher(algo)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// fingerprint is the LRU cache key: blake3 of the first KiB plus an 8-byte
// big-endian length suffix, so same-length-prefix collisions still land on
// distinct cache entries once the length diverges.
func fingerprint(data []byte) string {
	const prefixLen = 1024
	prefix := data
	if len(prefix) > prefixLen {
		prefix = prefix[:prefixLen]
	}

	var lenSuffix [8]byte
	binary.BigEndian.PutUint64(lenSuffix[:], uint64(len(data)))

	h := blake3.New(32, nil)
	h.Write(prefix)
	h.Write(lenSuffix[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Cache is the process-wide hash LRU: bounded by capacity, keyed by
// fingerprint, each entry holding a nested algorithm->hex map so the same
// content can be looked up under any previously-computed algorithm.
type Cache struct {
	mu      sync.Mutex
	enabled bool
	lru     *lru.Cache[string, map[Algorithm]string]
}

// NewCache builds a hash cache with the given capacity. enabled=false
// makes ComputeHash bypass the cache entirely.
func NewCache(maxSize int, enabled bool) (*Cache, error) {
	if maxSize <= 0 {
		maxSize = 1000
	}
	l, err := lru.New[string, map[Algorithm]string](maxSize)
	if err != nil {
		return nil, err
	}
	return &Cache{enabled: enabled, lru: l}, nil
}

// ComputeHash computes algo over data, consulting and populating the LRU
// cache when enabled.
func (c *Cache) ComputeHash(algo Algorithm, data []byte) (string, error) {
	if c == nil || !c.enabled {
		return Sum(algo, data)
	}

	key := fingerprint(data)

	c.mu.Lock()
	entry, ok := c.lru.Get(key)
	if ok {
		if hexDigest, ok := entry[algo]; ok {
			c.mu.Unlock()
			return hexDigest, nil
		}
	}
	c.mu.Unlock()

	hexDigest, err := Sum(algo, data)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	entry, ok = c.lru.Get(key)
	if !ok || entry == nil {
		entry = make(map[Algorithm]string, 1)
	}
	entry[algo] = hexDigest
	c.lru.Add(key, entry)
	c.mu.Unlock()

	return hexDigest, nil
}

// Len reports the number of distinct fingerprints currently cached.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Clear empties the cache; the process-wide instance is cleared explicitly
// via configuration hooks, never implicitly.
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.lru.Purge()
}
