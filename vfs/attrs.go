package vfs

import (
	"context"

	"actorfs/errs"
	"actorfs/metadata"
)

// POSIX type bits for Stat.Mode's upper bits (S_IFMT family).
const (
	ModeDir     uint32 = 0o040000
	ModeFile    uint32 = 0o100000
	ModeSymlink uint32 = 0o120000
)

// Stat is the attribute record returned by Stat/Lstat.
type Stat struct {
	Type      metadata.EntryType
	Mode      uint32 // type bits | permission bits
	Size      int64
	Blocks    int64
	Nlink     int64
	UID       uint32
	GID       uint32
	Atime     int64
	Mtime     int64
	Ctime     int64
	Birthtime int64
}

func typeBits(t metadata.EntryType) uint32 {
	switch t {
	case metadata.TypeDirectory:
		return ModeDir
	case metadata.TypeSymlink:
		return ModeSymlink
	default:
		return ModeFile
	}
}

func statFromEntry(e *metadata.Entry) *Stat {
	return &Stat{
		Type:      e.Type,
		Mode:      typeBits(e.Type) | (e.Mode &^ 0o170000),
		Size:      e.Size,
		Blocks:    (e.Size + 511) / 512,
		Nlink:     e.Nlink,
		UID:       e.UID,
		GID:       e.GID,
		Atime:     e.Atime,
		Mtime:     e.Mtime,
		Ctime:     e.Ctime,
		Birthtime: e.Birthtime,
	}
}

// Stat returns path's attributes, following symlinks.
func (fs *FS) Stat(ctx context.Context, path string) (*Stat, error) {
	entry, err := fs.resolveLogical(ctx, path)
	if err != nil {
		return nil, err
	}
	return statFromEntry(entry), nil
}

// Lstat returns path's attributes without following symlinks.
func (fs *FS) Lstat(ctx context.Context, path string) (*Stat, error) {
	entry, err := fs.lookup(ctx, path)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, errs.New(errs.ENOENT, path, "")
	}
	return statFromEntry(entry), nil
}

// Chmod updates path's permission bits.
func (fs *FS) Chmod(ctx context.Context, path string, mode uint32) error {
	entry, err := fs.lookup(ctx, path)
	if err != nil {
		return err
	}
	if entry == nil {
		return errs.New(errs.ENOENT, path, "")
	}
	perm := mode & 0o7777
	return fs.meta.UpdateEntry(ctx, entry.ID, metadata.EntryPatch{Mode: &perm})
}

// Chown updates path's owner and group ids.
func (fs *FS) Chown(ctx context.Context, path string, uid, gid uint32) error {
	entry, err := fs.lookup(ctx, path)
	if err != nil {
		return err
	}
	if entry == nil {
		return errs.New(errs.ENOENT, path, "")
	}
	return fs.meta.UpdateEntry(ctx, entry.ID, metadata.EntryPatch{UID: &uid, GID: &gid})
}

// Utimes updates path's access and modification times.
func (fs *FS) Utimes(ctx context.Context, path string, atime, mtime int64) error {
	entry, err := fs.lookup(ctx, path)
	if err != nil {
		return err
	}
	if entry == nil {
		return errs.New(errs.ENOENT, path, "")
	}
	return fs.meta.UpdateEntry(ctx, entry.ID, metadata.EntryPatch{Atime: &atime, Mtime: &mtime})
}
