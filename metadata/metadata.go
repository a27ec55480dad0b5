// Package metadata implements the relational metadata model: entries
// (files/directories/symlinks), blobs and the per-page index, all backed
// by the embedded row store. Actual blob bytes
// live in the blob tier engine (package blobtier); this package owns only
// the path->blob_id mapping, refcounts, and per-page bookkeeping.
package metadata

import (
	"context"
	"database/sql"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"actorfs/errs"
	"actorfs/pathutil"
	"actorfs/storage"
	"actorfs/stmtcache"
)

// EntryType enumerates the POSIX node kinds.
type EntryType string

const (
	TypeFile      EntryType = "file"
	TypeDirectory EntryType = "directory"
	TypeSymlink   EntryType = "symlink"
)

// Entry is one row of the files table: a file, directory or symlink.
type Entry struct {
	ID         int64
	Path       string
	Name       string
	ParentID   sql.NullInt64
	Type       EntryType
	Mode       uint32
	UID        uint32
	GID        uint32
	Size       int64
	BlobID     sql.NullString
	LinkTarget sql.NullString
	Nlink      int64
	Atime      int64
	Mtime      int64
	Ctime      int64
	Birthtime  int64
}

// EntryPatch updates a subset of Entry's mutable fields; nil fields are
// left unchanged.
type EntryPatch struct {
	Mode       *uint32
	UID        *uint32
	GID        *uint32
	Size       *int64
	BlobID     *string // empty string clears the column to NULL
	Nlink      *int64
	Atime      *int64
	Mtime      *int64
	Ctime      *int64
}

// Blob is one row of the blobs table: a refcounted reference to
// content-addressed bytes. The bytes themselves are not stored here --
// they live in the blob tier engine under ID.
type Blob struct {
	ID        string
	Tier      string
	Size      int64
	Checksum  string
	RefCount  int64
	CreatedAt int64
}

// Store is the metadata store.
type Store struct {
	db        storage.RowStore
	stmts     *stmtcache.Cache
	log       zerolog.Logger
	ready     bool
	spCounter uint64
}

// New builds a Store over db, using stmts for prepared-statement reuse.
func New(db storage.RowStore, stmts *stmtcache.Cache, logger zerolog.Logger) *Store {
	return &Store{db: db, stmts: stmts, log: logger}
}

// StmtCache exposes the prepared-statement cache backing this store, so
// callers (the CLI's "stats" command, monitoring hooks) can report
// its hit ratio without the metadata package depending on a metrics sink
// itself.
func (s *Store) StmtCache() *stmtcache.Cache { return s.stmts }

func (s *Store) ensureSchema(ctx context.Context) error {
	if s.ready {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			parent_id INTEGER REFERENCES files(id),
			type TEXT NOT NULL CHECK(type IN ('file','directory','symlink')),
			mode INTEGER NOT NULL,
			uid INTEGER NOT NULL DEFAULT 0,
			gid INTEGER NOT NULL DEFAULT 0,
			size INTEGER NOT NULL DEFAULT 0,
			blob_id TEXT,
			link_target TEXT,
			nlink INTEGER NOT NULL DEFAULT 1,
			atime INTEGER NOT NULL,
			mtime INTEGER NOT NULL,
			ctime INTEGER NOT NULL,
			birthtime INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_files_path ON files(path)`,
		`CREATE INDEX IF NOT EXISTS idx_files_parent ON files(parent_id)`,
		`CREATE TABLE IF NOT EXISTS blobs (
			id TEXT PRIMARY KEY,
			size INTEGER NOT NULL,
			tier TEXT NOT NULL,
			checksum TEXT,
			ref_count INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_blobs_tier ON blobs(tier)`,
		`CREATE TABLE IF NOT EXISTS page_metadata (
			file_id INTEGER NOT NULL REFERENCES files(id),
			page_number INTEGER NOT NULL,
			page_key TEXT NOT NULL UNIQUE,
			tier TEXT NOT NULL CHECK(tier IN ('warm','cold')),
			size INTEGER NOT NULL,
			checksum TEXT,
			last_access_at INTEGER NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			compressed INTEGER NOT NULL DEFAULT 0,
			original_size INTEGER,
			PRIMARY KEY(file_id, page_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_page_tier ON page_metadata(tier)`,
		`CREATE INDEX IF NOT EXISTS idx_page_last_access ON page_metadata(last_access_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errs.Wrap(errs.EINVAL, "", err)
		}
	}

	// ready is flipped before the root probe so GetByPath (which itself
	// ensures the schema) does not recurse back in here.
	s.ready = true
	root, err := s.queryByPath(ctx, "/")
	if err == nil && root == nil {
		_, err = s.createRoot(ctx)
	}
	if err != nil {
		s.ready = false
		return err
	}
	return nil
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// GetByPath normalizes path and returns its entry, creating the root
// directory implicitly on first call.
func (s *Store) GetByPath(ctx context.Context, path string) (*Entry, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	norm, err := pathutil.Normalize(path)
	if err != nil {
		return nil, err
	}

	e, err := s.queryByPath(ctx, norm)
	if err != nil {
		return nil, err
	}
	if e != nil {
		return e, nil
	}
	if norm == "/" {
		return s.createRoot(ctx)
	}
	return nil, errs.New(errs.ENOENT, norm, "")
}

func (s *Store) createRoot(ctx context.Context) (*Entry, error) {
	now := storage.NowMillis()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO files(path, name, parent_id, type, mode, nlink, atime, mtime, ctime, birthtime)
		 VALUES ('/', '', NULL, 'directory', ?, 1, ?, ?, ?, ?)`,
		0o755, now, now, now, now)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, "/", err)
	}
	return s.queryByPath(ctx, "/")
}

const selectByPathQuery = `SELECT id, path, name, parent_id, type, mode, uid, gid, size, blob_id, link_target, nlink, atime, mtime, ctime, birthtime
	 FROM files WHERE path = ?`

// queryByPath is on the hottest lookup path in the store (every operation
// resolves a path before doing anything else), so it goes through the
// prepared-statement cache instead of a fresh Prepare/Close per call.
func (s *Store) queryByPath(ctx context.Context, path string) (*Entry, error) {
	stmt, err := s.stmts.Prepare(ctx, selectByPathQuery)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, path, err)
	}
	row := stmt.QueryRowContext(ctx, path)
	return scanEntry(row)
}

func scanEntry(row *sql.Row) (*Entry, error) {
	var e Entry
	var typ string
	err := row.Scan(&e.ID, &e.Path, &e.Name, &e.ParentID, &typ, &e.Mode, &e.UID, &e.GID, &e.Size,
		&e.BlobID, &e.LinkTarget, &e.Nlink, &e.Atime, &e.Mtime, &e.Ctime, &e.Birthtime)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Wrap(errs.EINVAL, "", err)
	}
	e.Type = EntryType(typ)
	return &e, nil
}

// GetChildren lists every entry whose parent_id is parentID.
func (s *Store) GetChildren(ctx context.Context, parentID int64) ([]*Entry, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, name, parent_id, type, mode, uid, gid, size, blob_id, link_target, nlink, atime, mtime, ctime, birthtime
		 FROM files WHERE parent_id = ? ORDER BY name`, parentID)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, "", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		var typ string
		if err := rows.Scan(&e.ID, &e.Path, &e.Name, &e.ParentID, &typ, &e.Mode, &e.UID, &e.GID, &e.Size,
			&e.BlobID, &e.LinkTarget, &e.Nlink, &e.Atime, &e.Mtime, &e.Ctime, &e.Birthtime); err != nil {
			return nil, errs.Wrap(errs.EINVAL, "", err)
		}
		e.Type = EntryType(typ)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// NewEntryParams is the argument struct for CreateEntry.
type NewEntryParams struct {
	Path       string
	Type       EntryType
	Mode       uint32
	UID        uint32
	GID        uint32
	Size       int64
	BlobID     string
	LinkTarget string
}

// CreateEntry inserts a new entry at path. Fails with ENOENT if the parent
// directory does not exist, EEXIST if path is already occupied.
func (s *Store) CreateEntry(ctx context.Context, p NewEntryParams) (*Entry, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	norm, err := pathutil.Normalize(p.Path)
	if err != nil {
		return nil, err
	}
	if existing, err := s.queryByPath(ctx, norm); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errs.New(errs.EEXIST, norm, "")
	}

	parentPath := pathutil.Dir(norm)
	var parentID sql.NullInt64
	if norm != "/" {
		parent, err := s.queryByPath(ctx, parentPath)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, errs.New(errs.ENOENT, parentPath, "")
		}
		if parent.Type != TypeDirectory {
			return nil, errs.New(errs.ENOTDIR, parentPath, "")
		}
		parentID = sql.NullInt64{Int64: parent.ID, Valid: true}
	}

	now := storage.NowMillis()
	var blobID sql.NullString
	if p.BlobID != "" {
		blobID = sql.NullString{String: p.BlobID, Valid: true}
	}
	var linkTarget sql.NullString
	if p.LinkTarget != "" {
		linkTarget = sql.NullString{String: p.LinkTarget, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO files(path, name, parent_id, type, mode, uid, gid, size, blob_id, link_target, nlink, atime, mtime, ctime, birthtime)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		norm, pathutil.Base(norm), parentID, string(p.Type), p.Mode, p.UID, p.GID, p.Size, blobID, linkTarget, now, now, now, now)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, norm, err)
	}
	return s.queryByPath(ctx, norm)
}

// UpdateEntry applies patch to the entry identified by id, bumping ctime.
func (s *Store) UpdateEntry(ctx context.Context, id int64, patch EntryPatch) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	now := storage.NowMillis()

	set := []string{"ctime = ?"}
	args := []any{now}
	if patch.Mode != nil {
		set = append(set, "mode = ?")
		args = append(args, *patch.Mode)
	}
	if patch.UID != nil {
		set = append(set, "uid = ?")
		args = append(args, *patch.UID)
	}
	if patch.GID != nil {
		set = append(set, "gid = ?")
		args = append(args, *patch.GID)
	}
	if patch.Size != nil {
		set = append(set, "size = ?")
		args = append(args, *patch.Size)
	}
	if patch.BlobID != nil {
		set = append(set, "blob_id = ?")
		if *patch.BlobID == "" {
			args = append(args, nil)
		} else {
			args = append(args, *patch.BlobID)
		}
	}
	if patch.Nlink != nil {
		set = append(set, "nlink = ?")
		args = append(args, *patch.Nlink)
	}
	if patch.Atime != nil {
		set = append(set, "atime = ?")
		args = append(args, *patch.Atime)
	}
	if patch.Mtime != nil {
		set = append(set, "mtime = ?")
		args = append(args, *patch.Mtime)
	}
	if patch.Ctime != nil {
		set[0] = "ctime = ?"
		args[0] = *patch.Ctime
	}

	query := "UPDATE files SET "
	for i, c := range set {
		if i > 0 {
			query += ", "
		}
		query += c
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errs.Wrap(errs.EINVAL, "", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.ENOENT, "", "no entry with that id")
	}
	return nil
}

// MoveEntry relocates the entry identified by id to newPath, updating its
// path/name/parent_id to match the new location. Used by the file layer's
// rename; callers are responsible for cascading the path change to any
// descendants via RenameSubtree when id is a directory.
func (s *Store) MoveEntry(ctx context.Context, id int64, newPath string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	norm, err := pathutil.Normalize(newPath)
	if err != nil {
		return err
	}

	var parentID sql.NullInt64
	if norm != "/" {
		parent, err := s.queryByPath(ctx, pathutil.Dir(norm))
		if err != nil {
			return err
		}
		if parent == nil {
			return errs.New(errs.ENOENT, pathutil.Dir(norm), "")
		}
		if parent.Type != TypeDirectory {
			return errs.New(errs.ENOTDIR, pathutil.Dir(norm), "")
		}
		parentID = sql.NullInt64{Int64: parent.ID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET path = ?, name = ?, parent_id = ?, ctime = ? WHERE id = ?`,
		norm, pathutil.Base(norm), parentID, storage.NowMillis(), id)
	if err != nil {
		return errs.Wrap(errs.EINVAL, norm, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.ENOENT, "", "no entry with that id")
	}
	return nil
}

// RenameSubtree rewrites the path column of every entry at or below
// oldPrefix to live under newPrefix instead, leaving parent_id untouched
// for everything but oldPrefix's own row (the file layer calls MoveEntry
// for that row separately). Needed because path is stored as a full
// string on every row rather than derived from the parent chain at read
// time. Returns the number of rows rewritten.
func (s *Store) RenameSubtree(ctx context.Context, oldPrefix, newPrefix string) (int, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path FROM files WHERE path = ? OR path LIKE ?`, oldPrefix, oldPrefix+"/%")
	if err != nil {
		return 0, errs.Wrap(errs.EINVAL, oldPrefix, err)
	}
	type match struct {
		id   int64
		path string
	}
	var matches []match
	for rows.Next() {
		var m match
		if err := rows.Scan(&m.id, &m.path); err != nil {
			rows.Close()
			return 0, errs.Wrap(errs.EINVAL, oldPrefix, err)
		}
		matches = append(matches, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, errs.Wrap(errs.EINVAL, oldPrefix, err)
	}

	now := storage.NowMillis()
	for _, m := range matches {
		newPath := newPrefix + strings.TrimPrefix(m.path, oldPrefix)
		if _, err := s.db.ExecContext(ctx,
			`UPDATE files SET path = ?, name = ?, ctime = ? WHERE id = ?`,
			newPath, pathutil.Base(newPath), now, m.id); err != nil {
			return 0, errs.Wrap(errs.EINVAL, newPath, err)
		}
	}
	return len(matches), nil
}

// UpdateBlobTier updates the cached tier column on a blob row to reflect a
// migration performed by the blob tier engine (the engine is the source of
// truth for where bytes physically live; this keeps the metadata store's
// view in sync after promote/demote).
func (s *Store) UpdateBlobTier(ctx context.Context, id, tier string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE blobs SET tier = ? WHERE id = ?`, tier, id)
	if err != nil {
		return errs.Wrap(errs.EINVAL, id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.ENOENT, id, "no such blob")
	}
	return nil
}

// DeleteEntry removes the entry at id.
func (s *Store) DeleteEntry(ctx context.Context, id int64) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(errs.EINVAL, "", err)
	}
	return nil
}

// RegisterBlob inserts a new blob record with ref_count 1, or increments
// ref_count if the blob id already exists (the dedup path).
func (s *Store) RegisterBlob(ctx context.Context, id, tier, checksum string, size int64) (*Blob, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	now := storage.NowMillis()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs(id, size, tier, checksum, ref_count, created_at) VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT(id) DO UPDATE SET ref_count = ref_count + 1`,
		id, size, tier, checksum, now)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, id, err)
	}
	return s.GetBlob(ctx, id)
}

// GetBlob fetches a blob record by id.
func (s *Store) GetBlob(ctx context.Context, id string) (*Blob, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var b Blob
	err := s.db.QueryRowContext(ctx,
		`SELECT id, size, tier, COALESCE(checksum, ''), ref_count, created_at FROM blobs WHERE id = ?`, id).
		Scan(&b.ID, &b.Size, &b.Tier, &b.Checksum, &b.RefCount, &b.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Wrap(errs.EINVAL, id, err)
	}
	return &b, nil
}

// IncrementBlobRefCount adjusts ref_count by delta (delta may be negative
// for unlink/overwrite). It never deletes the row -- zero or negative
// ref_count marks a blob eligible-for-GC, collected explicitly by GCSweep.
func (s *Store) IncrementBlobRefCount(ctx context.Context, id string, delta int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE blobs SET ref_count = ref_count + ? WHERE id = ?`, delta, id)
	if err != nil {
		return errs.Wrap(errs.EINVAL, id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.ENOENT, id, "no such blob")
	}
	return nil
}

// DeleteBlob removes the blob row unconditionally; callers are expected to
// have already driven ref_count to zero, or to be forcing a delete outside
// the refcount discipline (e.g. branch discard).
func (s *Store) DeleteBlob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(errs.EINVAL, id, err)
	}
	return nil
}

// GCSweep deletes every blob whose ref_count has reached zero, returning
// their ids so the caller can also purge the underlying bytes from the
// blob tier engine. This is an explicit, externally-triggered pass -- it
// is never run implicitly by RegisterBlob/IncrementBlobRefCount.
func (s *Store) GCSweep(ctx context.Context, limit int) ([]string, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM blobs WHERE ref_count <= 0 LIMIT ?`, limit)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, "", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errs.Wrap(errs.EINVAL, "", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.EINVAL, "", err)
	}

	for _, id := range ids {
		if err := s.DeleteBlob(ctx, id); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

// Tx is a metadata-store transaction scoped by a named SQL savepoint,
// handed to the
// callback passed to WithSavepoint. Its method set mirrors the subset of
// Store's multi-row operations a caller needs to sequence atomically;
// every statement below runs against the same *sql.Tx, so the sequence
// either all lands or none does.
type Tx struct {
	db *sql.Tx
}

func (t *Tx) getByPathRaw(ctx context.Context, path string) (*Entry, error) {
	row := t.db.QueryRowContext(ctx, selectByPathQuery, path)
	return scanEntry(row)
}

// GetByPath resolves path within the transaction, mirroring Store.GetByPath
// (minus the implicit root creation, which only matters before any entry
// exists and so never happens mid-transaction).
func (t *Tx) GetByPath(ctx context.Context, path string) (*Entry, error) {
	norm, err := pathutil.Normalize(path)
	if err != nil {
		return nil, err
	}
	e, err := t.getByPathRaw(ctx, norm)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, errs.New(errs.ENOENT, norm, "")
	}
	return e, nil
}

// GetChildren mirrors Store.GetChildren.
func (t *Tx) GetChildren(ctx context.Context, parentID int64) ([]*Entry, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, path, name, parent_id, type, mode, uid, gid, size, blob_id, link_target, nlink, atime, mtime, ctime, birthtime
		 FROM files WHERE parent_id = ? ORDER BY name`, parentID)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, "", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		var typ string
		if err := rows.Scan(&e.ID, &e.Path, &e.Name, &e.ParentID, &typ, &e.Mode, &e.UID, &e.GID, &e.Size,
			&e.BlobID, &e.LinkTarget, &e.Nlink, &e.Atime, &e.Mtime, &e.Ctime, &e.Birthtime); err != nil {
			return nil, errs.Wrap(errs.EINVAL, "", err)
		}
		e.Type = EntryType(typ)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// CreateEntry mirrors Store.CreateEntry.
func (t *Tx) CreateEntry(ctx context.Context, p NewEntryParams) (*Entry, error) {
	norm, err := pathutil.Normalize(p.Path)
	if err != nil {
		return nil, err
	}
	if existing, err := t.getByPathRaw(ctx, norm); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errs.New(errs.EEXIST, norm, "")
	}

	parentPath := pathutil.Dir(norm)
	var parentID sql.NullInt64
	if norm != "/" {
		parent, err := t.getByPathRaw(ctx, parentPath)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, errs.New(errs.ENOENT, parentPath, "")
		}
		if parent.Type != TypeDirectory {
			return nil, errs.New(errs.ENOTDIR, parentPath, "")
		}
		parentID = sql.NullInt64{Int64: parent.ID, Valid: true}
	}

	now := storage.NowMillis()
	var blobID sql.NullString
	if p.BlobID != "" {
		blobID = sql.NullString{String: p.BlobID, Valid: true}
	}
	var linkTarget sql.NullString
	if p.LinkTarget != "" {
		linkTarget = sql.NullString{String: p.LinkTarget, Valid: true}
	}

	_, err = t.db.ExecContext(ctx,
		`INSERT INTO files(path, name, parent_id, type, mode, uid, gid, size, blob_id, link_target, nlink, atime, mtime, ctime, birthtime)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		norm, pathutil.Base(norm), parentID, string(p.Type), p.Mode, p.UID, p.GID, p.Size, blobID, linkTarget, now, now, now, now)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, norm, err)
	}
	return t.getByPathRaw(ctx, norm)
}

// UpdateEntry mirrors Store.UpdateEntry.
func (t *Tx) UpdateEntry(ctx context.Context, id int64, patch EntryPatch) error {
	now := storage.NowMillis()

	set := []string{"ctime = ?"}
	args := []any{now}
	if patch.Mode != nil {
		set = append(set, "mode = ?")
		args = append(args, *patch.Mode)
	}
	if patch.UID != nil {
		set = append(set, "uid = ?")
		args = append(args, *patch.UID)
	}
	if patch.GID != nil {
		set = append(set, "gid = ?")
		args = append(args, *patch.GID)
	}
	if patch.Size != nil {
		set = append(set, "size = ?")
		args = append(args, *patch.Size)
	}
	if patch.BlobID != nil {
		set = append(set, "blob_id = ?")
		if *patch.BlobID == "" {
			args = append(args, nil)
		} else {
			args = append(args, *patch.BlobID)
		}
	}
	if patch.Nlink != nil {
		set = append(set, "nlink = ?")
		args = append(args, *patch.Nlink)
	}
	if patch.Atime != nil {
		set = append(set, "atime = ?")
		args = append(args, *patch.Atime)
	}
	if patch.Mtime != nil {
		set = append(set, "mtime = ?")
		args = append(args, *patch.Mtime)
	}
	if patch.Ctime != nil {
		set[0] = "ctime = ?"
		args[0] = *patch.Ctime
	}

	query := "UPDATE files SET "
	for i, c := range set {
		if i > 0 {
			query += ", "
		}
		query += c
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errs.Wrap(errs.EINVAL, "", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.ENOENT, "", "no entry with that id")
	}
	return nil
}

// DeleteEntry mirrors Store.DeleteEntry.
func (t *Tx) DeleteEntry(ctx context.Context, id int64) error {
	_, err := t.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(errs.EINVAL, "", err)
	}
	return nil
}

// MoveEntry mirrors Store.MoveEntry.
func (t *Tx) MoveEntry(ctx context.Context, id int64, newPath string) error {
	norm, err := pathutil.Normalize(newPath)
	if err != nil {
		return err
	}

	var parentID sql.NullInt64
	if norm != "/" {
		parent, err := t.getByPathRaw(ctx, pathutil.Dir(norm))
		if err != nil {
			return err
		}
		if parent == nil {
			return errs.New(errs.ENOENT, pathutil.Dir(norm), "")
		}
		if parent.Type != TypeDirectory {
			return errs.New(errs.ENOTDIR, pathutil.Dir(norm), "")
		}
		parentID = sql.NullInt64{Int64: parent.ID, Valid: true}
	}

	res, err := t.db.ExecContext(ctx,
		`UPDATE files SET path = ?, name = ?, parent_id = ?, ctime = ? WHERE id = ?`,
		norm, pathutil.Base(norm), parentID, storage.NowMillis(), id)
	if err != nil {
		return errs.Wrap(errs.EINVAL, norm, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.ENOENT, "", "no entry with that id")
	}
	return nil
}

// RenameSubtree mirrors Store.RenameSubtree.
func (t *Tx) RenameSubtree(ctx context.Context, oldPrefix, newPrefix string) (int, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, path FROM files WHERE path = ? OR path LIKE ?`, oldPrefix, oldPrefix+"/%")
	if err != nil {
		return 0, errs.Wrap(errs.EINVAL, oldPrefix, err)
	}
	type match struct {
		id   int64
		path string
	}
	var matches []match
	for rows.Next() {
		var m match
		if err := rows.Scan(&m.id, &m.path); err != nil {
			rows.Close()
			return 0, errs.Wrap(errs.EINVAL, oldPrefix, err)
		}
		matches = append(matches, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, errs.Wrap(errs.EINVAL, oldPrefix, err)
	}

	now := storage.NowMillis()
	for _, m := range matches {
		newPath := newPrefix + strings.TrimPrefix(m.path, oldPrefix)
		if _, err := t.db.ExecContext(ctx,
			`UPDATE files SET path = ?, name = ?, ctime = ? WHERE id = ?`,
			newPath, pathutil.Base(newPath), now, m.id); err != nil {
			return 0, errs.Wrap(errs.EINVAL, newPath, err)
		}
	}
	return len(matches), nil
}

// RegisterBlob mirrors Store.RegisterBlob.
func (t *Tx) RegisterBlob(ctx context.Context, id, tier, checksum string, size int64) (*Blob, error) {
	now := storage.NowMillis()
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO blobs(id, size, tier, checksum, ref_count, created_at) VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT(id) DO UPDATE SET ref_count = ref_count + 1`,
		id, size, tier, checksum, now)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, id, err)
	}
	row := t.db.QueryRowContext(ctx,
		`SELECT id, size, tier, COALESCE(checksum, ''), ref_count, created_at FROM blobs WHERE id = ?`, id)
	var b Blob
	if err := row.Scan(&b.ID, &b.Size, &b.Tier, &b.Checksum, &b.RefCount, &b.CreatedAt); err != nil {
		return nil, errs.Wrap(errs.EINVAL, id, err)
	}
	return &b, nil
}

// IncrementBlobRefCount mirrors Store.IncrementBlobRefCount.
func (t *Tx) IncrementBlobRefCount(ctx context.Context, id string, delta int64) error {
	if id == "" {
		return nil
	}
	res, err := t.db.ExecContext(ctx, `UPDATE blobs SET ref_count = ref_count + ? WHERE id = ?`, delta, id)
	if err != nil {
		return errs.Wrap(errs.EINVAL, id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.ENOENT, id, "no such blob")
	}
	return nil
}

// WithSavepoint runs fn inside a dedicated transaction scoped by a named SQL
// savepoint, so a multi-row sequence of metadata writes -- writeFile's
// blob-register-plus-entry-update, rename's move-plus-subtree-rewrite,
// rmdir --recursive's cascade of child deletes -- either all lands or none
// does. label identifies the calling operation in the savepoint name for
// diagnostics (e.g. "write_file"); it is run through
// pathutil.SanitizeSqlIdentifier before being embedded in the SQL. An
// error returned by fn rolls the savepoint back and propagates unchanged;
// a nil return releases the savepoint and commits.
func (s *Store) WithSavepoint(ctx context.Context, label string, fn func(ctx context.Context, tx *Tx) error) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.EINVAL, "", err)
	}

	safeLabel, err := pathutil.SanitizeSqlIdentifier(label)
	if err != nil {
		safeLabel = "op"
	}
	name := safeLabel + "_" + pathutil.GenerateSavepointName(atomic.AddUint64(&s.spCounter, 1))
	if _, err := sqlTx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		_ = sqlTx.Rollback()
		return errs.Wrap(errs.EINVAL, "", err)
	}

	if err := fn(ctx, &Tx{db: sqlTx}); err != nil {
		_, _ = sqlTx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
		_ = sqlTx.Rollback()
		return err
	}

	if _, err := sqlTx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		_ = sqlTx.Rollback()
		return errs.Wrap(errs.EINVAL, "", err)
	}
	return sqlTx.Commit()
}
