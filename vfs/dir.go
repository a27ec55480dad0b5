package vfs

import (
	"context"
	"strings"

	"actorfs/errs"
	"actorfs/metadata"
	"actorfs/pathutil"
)

// treeExecer is the subset of metadata.Store / metadata.Tx that rmdir
// --recursive's post-order cascade needs, so the same walk runs either
// directly against the store or inside a savepoint-scoped transaction.
type treeExecer interface {
	GetChildren(ctx context.Context, parentID int64) ([]*metadata.Entry, error)
	DeleteEntry(ctx context.Context, id int64) error
	IncrementBlobRefCount(ctx context.Context, id string, delta int64) error
}

// MkdirOptions configures mkdir.
type MkdirOptions struct {
	Recursive bool
	Mode      uint32 // defaults to 0o755
}

// Mkdir creates a directory. Non-recursive fails ENOENT on a missing
// parent or EEXIST on an occupied path; recursive walks segments creating
// each missing ancestor and is a no-op on ancestors that already exist as
// directories.
func (fs *FS) Mkdir(ctx context.Context, path string, opts MkdirOptions) error {
	norm, err := pathutil.Normalize(path)
	if err != nil {
		return err
	}
	mode := opts.Mode
	if mode == 0 {
		mode = 0o755
	}

	if !opts.Recursive {
		return fs.mkdirOne(ctx, norm, mode)
	}

	segments := strings.Split(strings.TrimPrefix(norm, "/"), "/")
	current := ""
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		current += "/" + seg
		existing, err := fs.lookup(ctx, current)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Type != metadata.TypeDirectory {
				return errs.New(errs.ENOTDIR, current, "")
			}
			continue
		}
		if err := fs.mkdirOne(ctx, current, mode); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FS) mkdirOne(ctx context.Context, norm string, mode uint32) error {
	existing, err := fs.lookup(ctx, norm)
	if err != nil {
		return err
	}
	if existing != nil {
		return errs.New(errs.EEXIST, norm, "")
	}
	parent, err := fs.lookup(ctx, pathutil.Dir(norm))
	if err != nil {
		return err
	}
	if parent == nil {
		return errs.New(errs.ENOENT, pathutil.Dir(norm), "")
	}
	if parent.Type != metadata.TypeDirectory {
		return errs.New(errs.ENOTDIR, pathutil.Dir(norm), "")
	}
	_, err = fs.meta.CreateEntry(ctx, metadata.NewEntryParams{
		Path: norm, Type: metadata.TypeDirectory, Mode: mode,
	})
	return err
}

// RmdirOptions configures rmdir.
type RmdirOptions struct {
	Recursive bool
}

// Rmdir removes a directory; non-recursive removal requires it to be
// empty.
func (fs *FS) Rmdir(ctx context.Context, path string, opts RmdirOptions) error {
	norm, err := pathutil.Normalize(path)
	if err != nil {
		return err
	}
	entry, err := fs.lookup(ctx, norm)
	if err != nil {
		return err
	}
	if entry == nil {
		return errs.New(errs.ENOENT, norm, "")
	}
	if entry.Type != metadata.TypeDirectory {
		return errs.New(errs.ENOTDIR, norm, "")
	}

	children, err := fs.meta.GetChildren(ctx, entry.ID)
	if err != nil {
		return err
	}
	if len(children) > 0 && !opts.Recursive {
		return errs.New(errs.ENOTEMPTY, norm, "")
	}
	if len(children) == 0 {
		return fs.meta.DeleteEntry(ctx, entry.ID)
	}

	// The post-order cascade touches one row per descendant plus the
	// directory itself; scope it under a single savepoint so a failure
	// partway through never leaves half the subtree deleted.
	return fs.meta.WithSavepoint(ctx, "rmdir", func(ctx context.Context, tx *metadata.Tx) error {
		for _, child := range children {
			if err := removeRecursive(ctx, tx, child); err != nil {
				return err
			}
		}
		return tx.DeleteEntry(ctx, entry.ID)
	})
}

// removeRecursive performs a post-order deletion of a subtree:
// descend into directories first, releasing blob references as each leaf
// is removed, then delete the now-empty directory itself. db is either the
// store itself or a savepoint-scoped transaction.
func removeRecursive(ctx context.Context, db treeExecer, entry *metadata.Entry) error {
	if entry.Type == metadata.TypeDirectory {
		children, err := db.GetChildren(ctx, entry.ID)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := removeRecursive(ctx, db, child); err != nil {
				return err
			}
		}
		return db.DeleteEntry(ctx, entry.ID)
	}
	if entry.BlobID.Valid {
		if err := db.IncrementBlobRefCount(ctx, entry.BlobID.String, -1); err != nil {
			return err
		}
	}
	return db.DeleteEntry(ctx, entry.ID)
}

// DirEntry is one row of a Readdir listing.
type DirEntry struct {
	// Name is the entry's bare name for a top-level listing, or its path
	// relative to the queried directory when ReaddirOptions.Recursive is
	// set.
	Name string
	Type metadata.EntryType
}

// ReaddirOptions configures readdir.
type ReaddirOptions struct {
	Recursive bool
}

// Readdir lists a directory's entries, optionally descending depth-first.
func (fs *FS) Readdir(ctx context.Context, path string, opts ReaddirOptions) ([]DirEntry, error) {
	norm, err := pathutil.Normalize(path)
	if err != nil {
		return nil, err
	}
	entry, err := fs.lookup(ctx, norm)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, errs.New(errs.ENOENT, norm, "")
	}
	if entry.Type != metadata.TypeDirectory {
		return nil, errs.New(errs.ENOTDIR, norm, "")
	}

	children, err := fs.meta.GetChildren(ctx, entry.ID)
	if err != nil {
		return nil, err
	}

	var out []DirEntry
	for _, child := range children {
		out = append(out, DirEntry{Name: child.Name, Type: child.Type})
		if opts.Recursive && child.Type == metadata.TypeDirectory {
			nested, err := fs.readdirRecursive(ctx, child)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		}
	}
	return out, nil
}

func (fs *FS) readdirRecursive(ctx context.Context, dir *metadata.Entry) ([]DirEntry, error) {
	children, err := fs.meta.GetChildren(ctx, dir.ID)
	if err != nil {
		return nil, err
	}
	var out []DirEntry
	for _, child := range children {
		out = append(out, DirEntry{Name: dir.Name + "/" + child.Name, Type: child.Type})
		if child.Type == metadata.TypeDirectory {
			nested, err := fs.readdirRecursive(ctx, child)
			if err != nil {
				return nil, err
			}
			for _, n := range nested {
				out = append(out, DirEntry{Name: dir.Name + "/" + n.Name, Type: n.Type})
			}
		}
	}
	return out, nil
}
