// Package vfs implements the POSIX file-layer surface: it resolves paths
// through the metadata store, routes bytes through a content-addressable
// store for hashing/dedup, and places blobs in the tiered blob engine by
// size. It orchestrates the metadata/blob-tier/CAS trio and owns no
// storage of its own.
package vfs

import (
	"context"

	"github.com/rs/zerolog"

	"actorfs/blobtier"
	"actorfs/cas"
	"actorfs/errs"
	"actorfs/gitobject"
	"actorfs/metadata"
	"actorfs/objecthash"
	"actorfs/pathutil"
	"actorfs/storage"
)

// maxSymlinkHops bounds both logical-read resolution and realpath; chains
// longer than this fail with ELOOP.
const maxSymlinkHops = 40

// blobIDPrefix is prepended to the content hash to form the value stored in
// files.blob_id ("blob-" followed by 64 lowercase hex characters).
const blobIDPrefix = "blob-"

// FS is the file layer. It wires a metadata store, a blob tier engine and a
// dedicated CAS instance together.
type FS struct {
	meta  *metadata.Store
	blobs *blobtier.Engine
	cas   *cas.Store
	log   zerolog.Logger
}

// New builds the file layer. objectBackend is the loose-object keyspace the
// file layer's own CAS instance writes into for hashing/dedup purposes --
// it is deliberately separate from whatever CASStorage a caller might use
// for git-object storage elsewhere, since the blob id format ("blob-" + 64
// hex) implies SHA-256 while cas.Store's own package default is SHA-1
// (kept for git parity by other callers).
func New(meta *metadata.Store, blobs *blobtier.Engine, objectBackend storage.CASStorage, logger zerolog.Logger) *FS {
	store := cas.New(objectBackend, cas.WithAlgorithm(objecthash.SHA256), cas.WithLogger(logger))
	return &FS{meta: meta, blobs: blobs, cas: store, log: logger}
}

// lookup resolves path to its entry without following symlinks, returning
// (nil, nil) when the path does not exist rather than an error -- callers
// that need ENOENT surfaced do so explicitly.
func (fs *FS) lookup(ctx context.Context, path string) (*metadata.Entry, error) {
	e, err := fs.meta.GetByPath(ctx, path)
	if err != nil {
		if errs.Is(err, errs.ENOENT) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// resolveLogical follows symlinks starting at path until it lands on a
// non-symlink entry; each link target is itself resolved by the same
// rules.
func (fs *FS) resolveLogical(ctx context.Context, path string) (*metadata.Entry, error) {
	norm, err := pathutil.Normalize(path)
	if err != nil {
		return nil, err
	}

	current := norm
	for hop := 0; hop < maxSymlinkHops; hop++ {
		e, err := fs.lookup(ctx, current)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, errs.New(errs.ENOENT, norm, "")
		}
		if e.Type != metadata.TypeSymlink {
			return e, nil
		}
		target := e.LinkTarget.String
		if len(target) > 0 && target[0] == '/' {
			current = target
		} else {
			current, err = pathutil.Join(pathutil.Dir(current), target)
			if err != nil {
				return nil, err
			}
		}
	}
	return nil, errs.New(errs.ELOOP, norm, "more than 40 symlink hops")
}

func blobHash(id string) string {
	return id[len(blobIDPrefix):]
}

// putContent hashes and CAS-stores data, returning the blob id.
func (fs *FS) putContent(ctx context.Context, data []byte) (string, error) {
	hash, err := fs.cas.PutObject(ctx, data, gitobject.Blob)
	if err != nil {
		return "", err
	}
	return blobIDPrefix + hash, nil
}

// releaseBlob decrements id's refcount by one; a zero/negative refcount is
// left for an explicit GC sweep to reclaim, per the metadata store's own
// contract -- the file layer never deletes blob bytes inline on unlink or
// overwrite.
func (fs *FS) releaseBlob(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return fs.meta.IncrementBlobRefCount(ctx, id, -1)
}

// WriteOptions configures writeFile.
type WriteOptions struct {
	Mode uint32 // defaults to 0o644 when creating a new entry
	Flag string // "", "wx" or "ax": the latter two fail EEXIST on an existing file
	Tier string // placement override; empty selects by size
}

// WriteResult is writeFile's return envelope.
type WriteResult struct {
	BytesWritten int64
	Tier         string
}

// WriteFile stores data at path, creating the entry or replacing its
// content.
func (fs *FS) WriteFile(ctx context.Context, path string, data []byte, opts WriteOptions) (WriteResult, error) {
	norm, err := pathutil.Normalize(path)
	if err != nil {
		return WriteResult{}, err
	}

	existing, err := fs.lookup(ctx, norm)
	if err != nil {
		return WriteResult{}, err
	}
	if existing != nil && existing.Type == metadata.TypeDirectory {
		return WriteResult{}, errs.New(errs.EISDIR, norm, "")
	}
	if existing != nil && (opts.Flag == "wx" || opts.Flag == "ax") {
		return WriteResult{}, errs.New(errs.EEXIST, norm, "")
	}
	if existing == nil {
		parent, err := fs.lookup(ctx, pathutil.Dir(norm))
		if err != nil {
			return WriteResult{}, err
		}
		if parent == nil {
			return WriteResult{}, errs.New(errs.ENOENT, pathutil.Dir(norm), "")
		}
		if parent.Type != metadata.TypeDirectory {
			return WriteResult{}, errs.New(errs.ENOTDIR, pathutil.Dir(norm), "")
		}
	}

	// An empty write has nothing to content-address: a zero-length file
	// keeps blob_id null rather than registering a degenerate empty blob.
	var blobID, tier, checksum string
	if len(data) > 0 {
		var err error
		blobID, err = fs.putContent(ctx, data)
		if err != nil {
			return WriteResult{}, err
		}
		checksum = blobHash(blobID)

		put, err := fs.blobs.Put(ctx, blobID, data, opts.Tier, "")
		if err != nil {
			return WriteResult{}, err
		}
		tier = put.Tier
	}

	// A rewrite of a path with unchanged content resolves to the same
	// content-addressed blob id it already holds: the entry's existing
	// reference already accounts for this path, so registering again
	// would bump ref_count with no corresponding release, leaking a
	// reference the blob can never shed.
	sameBlob := existing != nil && existing.BlobID.Valid && existing.BlobID.String == blobID
	size := int64(len(data))

	if existing != nil {
		oldBlobID := existing.BlobID.String
		err := fs.meta.WithSavepoint(ctx, "write_file", func(ctx context.Context, tx *metadata.Tx) error {
			if len(data) > 0 && !sameBlob {
				if _, err := tx.RegisterBlob(ctx, blobID, tier, checksum, size); err != nil {
					return err
				}
			}
			now := storage.NowMillis()
			patch := metadata.EntryPatch{Size: &size, BlobID: &blobID, Mtime: &now}
			if err := tx.UpdateEntry(ctx, existing.ID, patch); err != nil {
				return err
			}
			if existing.BlobID.Valid && oldBlobID != blobID {
				if err := tx.IncrementBlobRefCount(ctx, oldBlobID, -1); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return WriteResult{}, err
		}
		return WriteResult{BytesWritten: size, Tier: tier}, nil
	}

	mode := opts.Mode
	if mode == 0 {
		mode = 0o644
	}
	err = fs.meta.WithSavepoint(ctx, "write_file", func(ctx context.Context, tx *metadata.Tx) error {
		if len(data) > 0 {
			if _, err := tx.RegisterBlob(ctx, blobID, tier, checksum, size); err != nil {
				return err
			}
		}
		_, err := tx.CreateEntry(ctx, metadata.NewEntryParams{
			Path: norm, Type: metadata.TypeFile, Mode: mode, Size: size, BlobID: blobID,
		})
		return err
	})
	if err != nil {
		return WriteResult{}, err
	}
	return WriteResult{BytesWritten: size, Tier: tier}, nil
}

// ReadFile returns path's content, following symlinks.
func (fs *FS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	entry, err := fs.resolveLogical(ctx, path)
	if err != nil {
		return nil, err
	}
	if entry.Type == metadata.TypeDirectory {
		return nil, errs.New(errs.EISDIR, entry.Path, "")
	}
	if !entry.BlobID.Valid {
		return []byte{}, nil
	}
	res, err := fs.blobs.Get(ctx, entry.BlobID.String)
	if err != nil {
		return nil, err
	}
	if !res.Found {
		return nil, errs.New(errs.ENOENT, entry.Path, "blob referenced by entry is missing")
	}
	return res.Data, nil
}

// AppendFile performs a read-append-write, or a plain write when the file
// does not exist yet.
func (fs *FS) AppendFile(ctx context.Context, path string, data []byte) (WriteResult, error) {
	existing, err := fs.ReadFile(ctx, path)
	if err != nil {
		if errs.Is(err, errs.ENOENT) {
			return fs.WriteFile(ctx, path, data, WriteOptions{})
		}
		return WriteResult{}, err
	}
	combined := make([]byte, 0, len(existing)+len(data))
	combined = append(combined, existing...)
	combined = append(combined, data...)
	return fs.WriteFile(ctx, path, combined, WriteOptions{})
}

// CopyFile reads src and writes it to dest. The
// content-addressed write path means an identical-content copy is pure
// metadata work, since the CAS dedups and the file layer increments the
// existing blob's refcount rather than storing bytes twice.
func (fs *FS) CopyFile(ctx context.Context, src, dest string) (WriteResult, error) {
	data, err := fs.ReadFile(ctx, src)
	if err != nil {
		return WriteResult{}, err
	}
	return fs.WriteFile(ctx, dest, data, WriteOptions{})
}

// Unlink removes a file or symlink entry, releasing its blob reference.
func (fs *FS) Unlink(ctx context.Context, path string) error {
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
	if entry.Type == metadata.TypeDirectory {
		return errs.New(errs.EISDIR, norm, "")
	}
	if entry.BlobID.Valid {
		if err := fs.releaseBlob(ctx, entry.BlobID.String); err != nil {
			return err
		}
	}
	return fs.meta.DeleteEntry(ctx, entry.ID)
}

// Rename moves oldPath to newPath. Overwriting a non-empty directory is
// rejected with ENOTEMPTY; overwriting any other existing destination
// releases its blob reference first.
func (fs *FS) Rename(ctx context.Context, oldPath, newPath string) error {
	oldNorm, err := pathutil.Normalize(oldPath)
	if err != nil {
		return err
	}
	newNorm, err := pathutil.Normalize(newPath)
	if err != nil {
		return err
	}

	src, err := fs.lookup(ctx, oldNorm)
	if err != nil {
		return err
	}
	if src == nil {
		return errs.New(errs.ENOENT, oldNorm, "")
	}

	newParent, err := fs.lookup(ctx, pathutil.Dir(newNorm))
	if err != nil {
		return err
	}
	if newParent == nil {
		return errs.New(errs.ENOENT, pathutil.Dir(newNorm), "")
	}

	dest, err := fs.lookup(ctx, newNorm)
	if err != nil {
		return err
	}
	if dest != nil && dest.Type == metadata.TypeDirectory {
		children, err := fs.meta.GetChildren(ctx, dest.ID)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return errs.New(errs.ENOTEMPTY, newNorm, "")
		}
	}

	return fs.meta.WithSavepoint(ctx, "rename", func(ctx context.Context, tx *metadata.Tx) error {
		if dest != nil {
			if dest.BlobID.Valid {
				if err := tx.IncrementBlobRefCount(ctx, dest.BlobID.String, -1); err != nil {
					return err
				}
			}
			if err := tx.DeleteEntry(ctx, dest.ID); err != nil {
				return err
			}
		}

		if err := tx.MoveEntry(ctx, src.ID, newNorm); err != nil {
			return err
		}
		if src.Type == metadata.TypeDirectory {
			if _, err := tx.RenameSubtree(ctx, oldNorm, newNorm); err != nil {
				return err
			}
		}
		return nil
	})
}

// Exists reports whether path resolves to a live entry.
func (fs *FS) Exists(ctx context.Context, path string) (bool, error) {
	entry, err := fs.lookup(ctx, path)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// Access is a pure existence probe. Mode-bit enforcement is left to an
// external access-control collaborator.
func (fs *FS) Access(ctx context.Context, path string, _ uint32) (bool, error) {
	return fs.Exists(ctx, path)
}

