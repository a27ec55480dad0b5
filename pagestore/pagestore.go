// Package pagestore implements the 2 MiB page-chunking layer:
// large blobs held in the hot tier are split into
// fixed-size chunks, each held as one row in the embedded row store, because
// the billing model this engine targets charges per row operation
// regardless of payload size up to the page cap. The package only knows
// about byte chunks and page keys; tiering, access statistics and migration
// live one layer up in blobtier.
package pagestore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"actorfs/errs"
	"actorfs/storage"
)

// PageSize is the fixed chunk size pages are split into (2 MiB).
const PageSize = 2 << 20

// pageKey formats the "__page__<blob_id>:<chunk_index>" row key.
func pageKey(blobID string, index int) string {
	return fmt.Sprintf("__page__%s:%d", blobID, index)
}

// Store holds page bytes as rows in an embedded RowStore.
type Store struct {
	db    storage.RowStore
	mu    sync.Mutex // serializes schema creation; row ops go through the store's own locking
	ready bool
}

// New wraps db; the pages table is created lazily on first use.
func New(db storage.RowStore) *Store {
	return &Store{db: db}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	const ddl = `CREATE TABLE IF NOT EXISTS pages (
		page_key TEXT PRIMARY KEY,
		blob_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		data BLOB NOT NULL,
		size INTEGER NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errs.Wrap(errs.EINVAL, "", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_pages_blob ON pages(blob_id)`); err != nil {
		return errs.Wrap(errs.EINVAL, "", err)
	}
	s.ready = true
	return nil
}

// WritePages splits data into contiguous <=PageSize chunks and writes each
// as a distinct row, returning the ordered page keys.
func (s *Store) WritePages(ctx context.Context, blobID string, data []byte) ([]string, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	var keys []string
	for i := 0; i*PageSize < len(data) || (len(data) == 0 && i == 0); i++ {
		start := i * PageSize
		end := start + PageSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[start:end]
		if chunk == nil {
			chunk = []byte{}
		}
		key := pageKey(blobID, i)
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO pages(page_key, blob_id, chunk_index, data, size) VALUES (?, ?, ?, ?, ?)`,
			key, blobID, i, chunk, len(chunk)); err != nil {
			return nil, errs.Wrap(errs.EINVAL, key, err)
		}
		keys = append(keys, key)
		if len(data) == 0 {
			break
		}
	}
	return keys, nil
}

// WritePage writes a single known page row directly, bypassing the chunking
// in WritePages. Used to re-materialize one page reloaded from cold storage,
// where the caller already knows the page's key, owning blob and index.
func (s *Store) WritePage(ctx context.Context, key, blobID string, index int, data []byte) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pages(page_key, blob_id, chunk_index, data, size) VALUES (?, ?, ?, ?, ?)`,
		key, blobID, index, data, len(data)); err != nil {
		return errs.Wrap(errs.EINVAL, key, err)
	}
	return nil
}

// ReadPages reads keys and concatenates their bytes in order. Order is
// determined by the caller-supplied keys slice, not by chunk_index, so
// callers that already track page order (blobtier, metadata) control it.
func (s *Store) ReadPages(ctx context.Context, keys []string) ([]byte, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	chunks := make([][]byte, len(keys))
	for i, key := range keys {
		data, found, err := s.readOne(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errs.New(errs.MissingPage, key, "")
		}
		chunks[i] = data
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out, nil
}

func (s *Store) readOne(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM pages WHERE page_key = ?`, key).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, errs.Wrap(errs.EINVAL, key, err)
	}
	return data, true, nil
}

// ReadRange computes the minimal chunk span covering [offset, offset+length)
// and reads only those chunks. keys must be in blob order
// (index 0..N-1). length == 0 returns an empty slice without touching
// storage.
func (s *Store) ReadRange(ctx context.Context, keys []string, offset, length int64) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	if offset < 0 || length < 0 {
		return nil, errs.New(errs.RangeOutOfBounds, "", "negative offset or length")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	firstPage := int(offset / PageSize)
	lastPage := int((offset + length - 1) / PageSize)
	if firstPage < 0 || lastPage >= len(keys) {
		return nil, errs.New(errs.RangeOutOfBounds, "", "range exceeds page span")
	}

	var out []byte
	remaining := length
	pageOffset := offset % PageSize
	for i := firstPage; i <= lastPage; i++ {
		data, found, err := s.readOne(ctx, keys[i])
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errs.New(errs.MissingPage, keys[i], "")
		}
		start := int64(0)
		if i == firstPage {
			start = pageOffset
		}
		if start > int64(len(data)) {
			return nil, errs.New(errs.RangeOutOfBounds, keys[i], "offset beyond page size")
		}
		avail := int64(len(data)) - start
		take := avail
		if take > remaining {
			take = remaining
		}
		out = append(out, data[start:start+take]...)
		remaining -= take
		if remaining <= 0 {
			break
		}
	}
	if remaining > 0 {
		return nil, errs.New(errs.RangeOutOfBounds, "", "range extends past end of blob")
	}
	return out, nil
}

// UpdateRange performs a read-modify-write of the chunks touched by
// [offset, offset+len(data)), writing back only the chunks that changed.
func (s *Store) UpdateRange(ctx context.Context, blobID string, keys []string, offset int64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if offset < 0 {
		return errs.New(errs.RangeOutOfBounds, "", "negative offset")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	firstPage := int(offset / PageSize)
	lastPage := int((offset + int64(len(data)) - 1) / PageSize)
	if firstPage < 0 || lastPage >= len(keys) {
		return errs.New(errs.RangeOutOfBounds, "", "range exceeds page span")
	}

	written := 0
	for i := firstPage; i <= lastPage; i++ {
		key := keys[i]
		page, found, err := s.readOne(ctx, key)
		if err != nil {
			return err
		}
		if !found {
			return errs.New(errs.MissingPage, key, "")
		}
		pageStart := int64(i * PageSize)
		var localStart int64
		if i == firstPage {
			localStart = offset - pageStart
		}
		remainingInPage := int64(PageSize) - localStart
		remainingInData := int64(len(data) - written)
		n := remainingInPage
		if n > remainingInData {
			n = remainingInData
		}
		needed := int(localStart + n)
		if needed > len(page) {
			grown := make([]byte, needed)
			copy(grown, page)
			page = grown
		}
		copy(page[localStart:localStart+n], data[written:written+int(n)])
		written += int(n)

		if _, err := s.db.ExecContext(ctx,
			`UPDATE pages SET data = ?, size = ? WHERE page_key = ?`,
			page, len(page), key); err != nil {
			return errs.Wrap(errs.EINVAL, key, err)
		}
	}
	return nil
}

// DeletePages deletes every row named by keys. Deleting a missing key is
// not an error, matching the engine-wide idempotent-delete policy.
func (s *Store) DeletePages(ctx context.Context, keys []string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE page_key = ?`, key); err != nil {
			return errs.Wrap(errs.EINVAL, key, err)
		}
	}
	return nil
}

// SizeOf sums the stored size of keys, used to recover a chunked blob's
// overall size when no cached size is available.
func (s *Store) SizeOf(ctx context.Context, keys []string) (int64, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	var total int64
	for _, key := range keys {
		var size int64
		err := s.db.QueryRowContext(ctx, `SELECT size FROM pages WHERE page_key = ?`, key).Scan(&size)
		if err != nil {
			if err == sql.ErrNoRows {
				return 0, errs.New(errs.MissingPage, key, "")
			}
			return 0, errs.Wrap(errs.EINVAL, key, err)
		}
		total += size
	}
	return total, nil
}
