// Package storage defines the external collaborator contracts: the CAS
// storage driver, the bucket driver and the embedded row store. actorfs's
// core packages depend only on these interfaces; concrete drivers
// (badger-backed CAS storage, an S3 bucket, an in-memory bucket for tests,
// a sqlite row store) live alongside them in this package.
package storage

import (
	"context"
	"database/sql"
	"time"
)

// CASStorage is the keyspace the content-addressable store writes loose
// objects into, addressed by the fanout path "<hash[0:2]>/<hash[2:]>" under
// a fixed "objects/" namespace.
type CASStorage interface {
	Write(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, bool, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
	Close() error
}

// ObjectMeta is the custom metadata a bucket object carries: x-tier,
// x-last-access, x-access-count, x-created-at, and the optional
// x-content-hash / x-original-path / x-encoding.
type ObjectMeta struct {
	Tier        string
	LastAccess  int64
	AccessCount int64
	CreatedAt   int64
	ContentHash string
	// OriginalPath records provenance (e.g. the owning blob id on an
	// evicted page); it never carries encoding information.
	OriginalPath string
	ContentType  string
	// Encoding is the tier engine's compression tag
	// ("codec=<name>;orig=<bytes>"); empty for raw payloads.
	Encoding string
}

// ByteRange is an inclusive-start, exclusive-or-open-end byte range for a
// ranged bucket read.
type ByteRange struct {
	Start int64
	End   *int64 // nil means "to EOF"
}

// PutResult is returned by a successful bucket Put.
type PutResult struct {
	ETag string
	Size int64
}

// GetResult is returned by a successful bucket Get; Data is nil and Found
// is false when the key does not exist (a bucket miss is not an error).
type GetResult struct {
	Found bool
	Data  []byte
	Meta  ObjectMeta
}

// ListOptions configures BucketDriver.List.
type ListOptions struct {
	Prefix string
	Limit  int
	Cursor string
}

// ListResult is the page of keys returned by BucketDriver.List.
type ListResult struct {
	Keys       []string
	Truncated  bool
	NextCursor string
}

// BucketDriver abstracts the external large-object bucket consumed by the
// tiered blob engine. A physical bucket may be reused across multiple
// logical tiers (aliasing); the driver itself is unaware of tiers, it only
// stores bytes plus metadata under a key.
type BucketDriver interface {
	Put(ctx context.Context, key string, data []byte, meta ObjectMeta) (PutResult, error)
	Get(ctx context.Context, key string, rng *ByteRange) (*GetResult, error)
	Head(ctx context.Context, key string) (*ObjectMeta, bool, error)
	Delete(ctx context.Context, keys ...string) error
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	// Identity distinguishes physically distinct buckets for the tier
	// engine's aliasing visited-set; two drivers backed by the same
	// physical bucket must return the same Identity().
	Identity() string
}

// RowStore is the embedded SQL-like row store consumed by the metadata
// store and the branch metadata store. It is a thin wrapper over *sql.DB
// so callers can swap the driver without touching call sites.
type RowStore interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// NowMillis returns the current time as Unix milliseconds, the timestamp
// unit used for every entity in the data model.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
