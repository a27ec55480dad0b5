// Package branch implements git-like copy-on-write branching over the CAS:
// a durable branch-metadata store (this file) plus a per-active-branch
// in-memory overlay (overlay.go) that intercepts writes before they reach
// the metadata store.
package branch

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"actorfs/errs"
	"actorfs/storage"
)

// MainBranch is the name of the branch auto-created on first
// initialization; it is both default and protected.
const MainBranch = "main"

// Branch is one row of the branches table.
type Branch struct {
	Name         string
	ParentBranch sql.NullString
	ForkPoint    sql.NullString
	HeadCommit   string
	CreatedAt    int64
	UpdatedAt    int64
	IsDefault    bool
	IsProtected  bool
	IsArchived   bool
	CommitCount  int64
}

// Store is the durable branch-metadata store.
type Store struct {
	db    storage.RowStore
	ready bool
}

// New builds a Store over db.
func New(db storage.RowStore) *Store {
	return &Store{db: db}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if s.ready {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS branches (
			name TEXT PRIMARY KEY,
			parent_branch TEXT,
			fork_point TEXT,
			head_commit TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			is_default INTEGER NOT NULL DEFAULT 0,
			is_protected INTEGER NOT NULL DEFAULT 0,
			is_archived INTEGER NOT NULL DEFAULT 0,
			commit_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS branch_blocks (
			branch_name TEXT NOT NULL,
			path TEXT NOT NULL,
			hash TEXT NOT NULL,
			size INTEGER NOT NULL,
			modified_at INTEGER NOT NULL,
			PRIMARY KEY(branch_name, path)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errs.Wrap(errs.EINVAL, "", err)
		}
	}
	s.ready = true
	return s.ensureMainLocked(ctx)
}

func (s *Store) ensureMainLocked(ctx context.Context) error {
	existing, err := s.Get(ctx, MainBranch)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	now := storage.NowMillis()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO branches(name, parent_branch, fork_point, head_commit, created_at, updated_at, is_default, is_protected, is_archived, commit_count)
		 VALUES (?, NULL, NULL, '', ?, ?, 1, 1, 0, 0)`,
		MainBranch, now, now)
	if err != nil {
		return errs.Wrap(errs.EINVAL, MainBranch, err)
	}
	return nil
}

// Create inserts a new branch forking from parentBranch at forkPoint.
// Fails with BRANCH_ALREADY_EXISTS if name is taken.
func (s *Store) Create(ctx context.Context, name, parentBranch, forkPoint string) (*Branch, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if existing, err := s.Get(ctx, name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errs.New(errs.BranchExists, name, "")
	}

	now := storage.NowMillis()
	var parent, fork sql.NullString
	if parentBranch != "" {
		parent = sql.NullString{String: parentBranch, Valid: true}
	}
	if forkPoint != "" {
		fork = sql.NullString{String: forkPoint, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO branches(name, parent_branch, fork_point, head_commit, created_at, updated_at, is_default, is_protected, is_archived, commit_count)
		 VALUES (?, ?, ?, '', ?, ?, 0, 0, 0, 0)`,
		name, parent, fork, now, now)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, name, err)
	}
	return s.Get(ctx, name)
}

// Get fetches a branch by name; returns (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, name string) (*Branch, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT name, parent_branch, fork_point, head_commit, created_at, updated_at, is_default, is_protected, is_archived, commit_count
		 FROM branches WHERE name = ?`, name)
	return scanBranch(row)
}

func scanBranch(row *sql.Row) (*Branch, error) {
	var b Branch
	var isDefault, isProtected, isArchived int
	err := row.Scan(&b.Name, &b.ParentBranch, &b.ForkPoint, &b.HeadCommit, &b.CreatedAt, &b.UpdatedAt,
		&isDefault, &isProtected, &isArchived, &b.CommitCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Wrap(errs.EINVAL, "", err)
	}
	b.IsDefault = isDefault != 0
	b.IsProtected = isProtected != 0
	b.IsArchived = isArchived != 0
	return &b, nil
}

// BranchPatch updates a subset of a branch's mutable fields.
type BranchPatch struct {
	HeadCommit  *string
	CommitCount *int64
}

// Update applies patch to name.
func (s *Store) Update(ctx context.Context, name string, patch BranchPatch) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	set := []string{"updated_at = ?"}
	args := []any{storage.NowMillis()}
	if patch.HeadCommit != nil {
		set = append(set, "head_commit = ?")
		args = append(args, *patch.HeadCommit)
	}
	if patch.CommitCount != nil {
		set = append(set, "commit_count = ?")
		args = append(args, *patch.CommitCount)
	}
	query := "UPDATE branches SET "
	for i, c := range set {
		if i > 0 {
			query += ", "
		}
		query += c
	}
	query += " WHERE name = ?"
	args = append(args, name)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errs.Wrap(errs.EINVAL, name, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.BranchNotFound, name, "")
	}
	return nil
}

// Delete removes a branch. Rejects the default or protected branch.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	b, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	if b == nil {
		return errs.New(errs.BranchNotFound, name, "")
	}
	if b.IsDefault || b.IsProtected {
		return errs.New(errs.BranchDeleteForbidden, name, "")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM branches WHERE name = ?`, name); err != nil {
		return errs.Wrap(errs.EINVAL, name, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM branch_blocks WHERE branch_name = ?`, name); err != nil {
		return errs.Wrap(errs.EINVAL, name, err)
	}
	return nil
}

// ListOptions configures List.
type ListOptions struct {
	IncludeArchived bool
	ParentBranch    string
	Limit           int
	Offset          int
}

// List returns branches matching opts, ordered by name.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Branch, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	query := `SELECT name, parent_branch, fork_point, head_commit, created_at, updated_at, is_default, is_protected, is_archived, commit_count FROM branches WHERE 1=1`
	var args []any
	if !opts.IncludeArchived {
		query += ` AND is_archived = 0`
	}
	if opts.ParentBranch != "" {
		query += ` AND parent_branch = ?`
		args = append(args, opts.ParentBranch)
	}
	query += ` ORDER BY name`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, "", err)
	}
	defer rows.Close()

	var out []*Branch
	for rows.Next() {
		var b Branch
		var isDefault, isProtected, isArchived int
		if err := rows.Scan(&b.Name, &b.ParentBranch, &b.ForkPoint, &b.HeadCommit, &b.CreatedAt, &b.UpdatedAt,
			&isDefault, &isProtected, &isArchived, &b.CommitCount); err != nil {
			return nil, errs.Wrap(errs.EINVAL, "", err)
		}
		b.IsDefault = isDefault != 0
		b.IsProtected = isProtected != 0
		b.IsArchived = isArchived != 0
		out = append(out, &b)
	}
	return out, rows.Err()
}

// Rename renames oldName to newName atomically, rewriting any child branch
// whose parent_branch names oldName.
func (s *Store) Rename(ctx context.Context, oldName, newName string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if existing, err := s.Get(ctx, newName); err != nil {
		return err
	} else if existing != nil {
		return errs.New(errs.BranchExists, newName, "")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.EINVAL, oldName, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE branches SET name = ?, updated_at = ? WHERE name = ?`,
		newName, storage.NowMillis(), oldName); err != nil {
		return errs.Wrap(errs.EINVAL, oldName, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE branches SET parent_branch = ? WHERE parent_branch = ?`,
		newName, oldName); err != nil {
		return errs.Wrap(errs.EINVAL, oldName, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE branch_blocks SET branch_name = ? WHERE branch_name = ?`,
		newName, oldName); err != nil {
		return errs.Wrap(errs.EINVAL, oldName, err)
	}
	return tx.Commit()
}

// GetDefault returns the branch with is_default set.
func (s *Store) GetDefault(ctx context.Context) (*Branch, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT name, parent_branch, fork_point, head_commit, created_at, updated_at, is_default, is_protected, is_archived, commit_count
		 FROM branches WHERE is_default = 1`)
	return scanBranch(row)
}

// SetDefault atomically unsets the prior default and sets name as the new
// default.
func (s *Store) SetDefault(ctx context.Context, name string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.EINVAL, name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE branches SET is_default = 0 WHERE is_default = 1`); err != nil {
		return errs.Wrap(errs.EINVAL, name, err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE branches SET is_default = 1 WHERE name = ?`, name)
	if err != nil {
		return errs.Wrap(errs.EINVAL, name, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.BranchNotFound, name, "")
	}
	return tx.Commit()
}

// PersistBlock writes a single (branch, path) -> block record, used by the
// overlay's Commit.
func (s *Store) PersistBlock(ctx context.Context, branchName, path, hash string, size, modifiedAt int64) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO branch_blocks(branch_name, path, hash, size, modified_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(branch_name, path) DO UPDATE SET hash=excluded.hash, size=excluded.size, modified_at=excluded.modified_at`,
		branchName, path, hash, size, modifiedAt)
	if err != nil {
		return errs.Wrap(errs.EINVAL, path, err)
	}
	return nil
}

// GetBlock returns the committed block for (branchName, path), or found=false.
func (s *Store) GetBlock(ctx context.Context, branchName, path string) (hash string, size, modifiedAt int64, found bool, err error) {
	if err := s.ensureSchema(ctx); err != nil {
		return "", 0, 0, false, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT hash, size, modified_at FROM branch_blocks WHERE branch_name = ? AND path = ?`, branchName, path)
	scanErr := row.Scan(&hash, &size, &modifiedAt)
	if scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return "", 0, 0, false, nil
		}
		return "", 0, 0, false, errs.Wrap(errs.EINVAL, path, scanErr)
	}
	return hash, size, modifiedAt, true, nil
}

// ResolveParentBlock walks the branch -> parent_branch chain starting at
// parentBranch looking for path, returning the first block found together
// with the name of the branch it was found on.
func (s *Store) ResolveParentBlock(ctx context.Context, parentBranch, path string) (hash string, size, modifiedAt int64, foundOn string, found bool, err error) {
	current := parentBranch
	for current != "" {
		h, sz, mt, ok, rErr := s.GetBlock(ctx, current, path)
		if rErr != nil {
			return "", 0, 0, "", false, rErr
		}
		if ok {
			return h, sz, mt, current, true, nil
		}
		b, gErr := s.Get(ctx, current)
		if gErr != nil {
			return "", 0, 0, "", false, gErr
		}
		if b == nil || !b.ParentBranch.Valid {
			break
		}
		current = b.ParentBranch.String
	}
	return "", 0, 0, "", false, nil
}

// ArchivedBranch is the record written to cold storage by ArchiveBranch.
type ArchivedBranch struct {
	Branch    Branch `json:"branch"`
	Reason    string `json:"reason"`
	Actor     string `json:"actor"`
	ArchiveID string `json:"archive_id"`
}

// ArchiveBranch serializes the branch record to the bucket key
// "branches/archived/<name>.json" and flips is_archived. Each
// call is stamped with a fresh ArchiveID: a branch can be archived,
// restored and re-archived over its lifetime, and the name-keyed bucket
// object alone can't distinguish which archival event produced the copy an
// auditor is looking at.
func (s *Store) ArchiveBranch(ctx context.Context, name string, bucket storage.BucketDriver, reason, actor string) error {
	b, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	if b == nil {
		return errs.New(errs.BranchNotFound, name, "")
	}

	record := ArchivedBranch{Branch: *b, Reason: reason, Actor: actor, ArchiveID: uuid.New().String()}
	data, err := json.Marshal(record)
	if err != nil {
		return errs.Wrap(errs.EINVAL, name, err)
	}

	key := "branches/archived/" + name + ".json"
	if _, err := bucket.Put(ctx, key, data, storage.ObjectMeta{ContentType: "application/json", CreatedAt: storage.NowMillis()}); err != nil {
		return errs.Wrap(errs.EINVAL, key, err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE branches SET is_archived = 1, updated_at = ? WHERE name = ?`,
		storage.NowMillis(), name); err != nil {
		return errs.Wrap(errs.EINVAL, name, err)
	}
	return nil
}
