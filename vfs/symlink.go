package vfs

import (
	"context"

	"actorfs/errs"
	"actorfs/metadata"
	"actorfs/pathutil"
)

// Symlink creates a symlink entry pointing at target, with mode 0o777.
func (fs *FS) Symlink(ctx context.Context, target, path string) error {
	norm, err := pathutil.Normalize(path)
	if err != nil {
		return err
	}
	existing, err := fs.lookup(ctx, norm)
	if err != nil {
		return err
	}
	if existing != nil {
		return errs.New(errs.EEXIST, norm, "")
	}
	_, err = fs.meta.CreateEntry(ctx, metadata.NewEntryParams{
		Path: norm, Type: metadata.TypeSymlink, Mode: 0o777, LinkTarget: target,
	})
	return err
}

// Link creates a hard link: the new entry shares the source's
// blob_id (its refcount is bumped) and both entries' nlink is incremented
// to reflect the shared content. Hard-linking a directory is rejected.
func (fs *FS) Link(ctx context.Context, existingPath, newPath string) error {
	src, err := fs.lookup(ctx, existingPath)
	if err != nil {
		return err
	}
	if src == nil {
		return errs.New(errs.ENOENT, existingPath, "")
	}
	if src.Type == metadata.TypeDirectory {
		return errs.New(errs.EISDIR, existingPath, "")
	}

	newNorm, err := pathutil.Normalize(newPath)
	if err != nil {
		return err
	}
	if dest, err := fs.lookup(ctx, newNorm); err != nil {
		return err
	} else if dest != nil {
		return errs.New(errs.EEXIST, newNorm, "")
	}

	if src.BlobID.Valid {
		if _, err := fs.meta.RegisterBlob(ctx, src.BlobID.String, "", "", 0); err != nil {
			return err
		}
	}

	newNlink := src.Nlink + 1
	dest, err := fs.meta.CreateEntry(ctx, metadata.NewEntryParams{
		Path: newNorm, Type: src.Type, Mode: src.Mode, Size: src.Size, BlobID: src.BlobID.String,
	})
	if err != nil {
		return err
	}
	if err := fs.meta.UpdateEntry(ctx, src.ID, metadata.EntryPatch{Nlink: &newNlink}); err != nil {
		return err
	}
	return fs.meta.UpdateEntry(ctx, dest.ID, metadata.EntryPatch{Nlink: &newNlink})
}

// Readlink returns a symlink's target without resolving it.
func (fs *FS) Readlink(ctx context.Context, path string) (string, error) {
	entry, err := fs.lookup(ctx, path)
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", errs.New(errs.ENOENT, path, "")
	}
	if entry.Type != metadata.TypeSymlink {
		return "", errs.New(errs.EINVAL, path, "not a symlink")
	}
	return entry.LinkTarget.String, nil
}

// Realpath iteratively resolves symlinks, returning the final non-symlink
// path. Aborts with ELOOP after 40 hops.
func (fs *FS) Realpath(ctx context.Context, path string) (string, error) {
	norm, err := pathutil.Normalize(path)
	if err != nil {
		return "", err
	}

	current := norm
	for hop := 0; hop < maxSymlinkHops; hop++ {
		entry, err := fs.lookup(ctx, current)
		if err != nil {
			return "", err
		}
		if entry == nil {
			return "", errs.New(errs.ENOENT, norm, "")
		}
		if entry.Type != metadata.TypeSymlink {
			return current, nil
		}
		target := entry.LinkTarget.String
		if len(target) > 0 && target[0] == '/' {
			current = target
		} else {
			current, err = pathutil.Join(pathutil.Dir(current), target)
			if err != nil {
				return "", err
			}
		}
	}
	return "", errs.New(errs.ELOOP, norm, "more than 40 symlink hops")
}
