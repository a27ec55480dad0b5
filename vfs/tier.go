package vfs

import (
	"context"

	"actorfs/errs"
)

// GetTier reads the entry's blob_id and asks the
// blob engine which tier currently holds it. A zero-size file with no
// backing blob has no tier, reported as an empty string rather than an
// error.
func (fs *FS) GetTier(ctx context.Context, path string) (string, error) {
	entry, err := fs.lookup(ctx, path)
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", errs.New(errs.ENOENT, path, "")
	}
	if !entry.BlobID.Valid {
		return "", nil
	}
	meta, found, err := fs.blobs.Head(ctx, entry.BlobID.String)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errs.New(errs.ENOENT, path, "blob referenced by entry is missing")
	}
	return meta.Tier, nil
}

// Promote migrates the entry's blob toward hot. The blob tier engine keeps
// the blob's id stable across a migration (only its physical tier
// changes), so the entry's blob_id column needs no update afterward --
// only the metadata store's cached tier column on the blob row does.
func (fs *FS) Promote(ctx context.Context, path, target string) error {
	return fs.retier(ctx, path, target, true)
}

// Demote migrates the entry's blob toward cold.
func (fs *FS) Demote(ctx context.Context, path, target string) error {
	return fs.retier(ctx, path, target, false)
}

func (fs *FS) retier(ctx context.Context, path, target string, up bool) error {
	entry, err := fs.lookup(ctx, path)
	if err != nil {
		return err
	}
	if entry == nil {
		return errs.New(errs.ENOENT, path, "")
	}
	if !entry.BlobID.Valid {
		return errs.New(errs.EINVAL, path, "entry has no backing blob")
	}

	if up {
		res, err := fs.blobs.Promote(ctx, entry.BlobID.String, target)
		if err != nil {
			return err
		}
		return fs.meta.UpdateBlobTier(ctx, entry.BlobID.String, res.Tier)
	}
	res, err := fs.blobs.Demote(ctx, entry.BlobID.String, target)
	if err != nil {
		return err
	}
	return fs.meta.UpdateBlobTier(ctx, entry.BlobID.String, res.Tier)
}
