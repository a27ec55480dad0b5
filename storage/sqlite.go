package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"actorfs/errs"
)

// SqliteOptions configures a sqlite-backed RowStore: WAL journaling and a
// busy timeout by default so the single-actor cooperative scheduler never
// deadlocks on a held lock.
type SqliteOptions struct {
	JournalMode     string
	Synchronous     string
	BusyTimeout     time.Duration
	ForeignKeys     *bool
	CacheSize       int
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultSqliteOptions returns WAL/NORMAL/5s defaults.
func DefaultSqliteOptions() SqliteOptions {
	return SqliteOptions{
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		BusyTimeout: 5 * time.Second,
	}
}

type sqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens a sqlite database at path and applies the operational
// PRAGMAs from opts.
func OpenSqlite(path string, opts SqliteOptions) (RowStore, error) {
	if path == "" {
		return nil, errors.New("storage: empty sqlite path")
	}

	journal := opts.JournalMode
	if journal == "" {
		journal = "WAL"
	}
	sync := opts.Synchronous
	if sync == "" {
		sync = "NORMAL"
	}
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	} else {
		// sqlite only tolerates one writer; keep the pool small so retries
		// go through sqlite's own busy handler instead of Go's pool queue.
		db.SetMaxOpenConns(1)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode=%s", journal),
		fmt.Sprintf("PRAGMA synchronous=%s", sync),
		fmt.Sprintf("PRAGMA busy_timeout=%d", busy.Milliseconds()),
	}
	fk := true
	if opts.ForeignKeys != nil {
		fk = *opts.ForeignKeys
	}
	if fk {
		pragmas = append(pragmas, "PRAGMA foreign_keys=ON")
	} else {
		pragmas = append(pragmas, "PRAGMA foreign_keys=OFF")
	}
	if opts.CacheSize != 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size=%d", opts.CacheSize))
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqliteStore) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqliteStore) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqliteStore) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return s.db.PrepareContext(ctx, query)
}

func (s *sqliteStore) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, opts)
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// ErrNoRows re-exports sql.ErrNoRows so callers need not import database/sql
// just to check for it.
var ErrNoRows = sql.ErrNoRows

// ClassifyRowError turns sql.ErrNoRows into an ENOENT and wraps anything
// else as an opaque details error.
func ClassifyRowError(path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.New(errs.ENOENT, path, "")
	}
	return errs.Wrap(errs.EINVAL, path, err)
}
