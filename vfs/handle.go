package vfs

import (
	"context"
	"sync"

	"actorfs/errs"
	"actorfs/metadata"
)

// OpenFlags selects open's create/truncate behavior. The zero value opens
// an existing file for read/write without truncating.
type OpenFlags struct {
	Create   bool // create the file if missing
	Truncate bool // start with an empty buffer even if the file exists
}

// Handle is the in-memory buffer Open returns: reads and writes mutate the
// buffer, and Close/Sync flush it back through WriteFile.
type Handle struct {
	fs    *FS
	path  string
	mu    sync.Mutex
	buf   []byte
	dirty bool
}

// Open materializes path's current content into an in-memory Handle.
func (fs *FS) Open(ctx context.Context, path string, flags OpenFlags, mode uint32) (*Handle, error) {
	existing, err := fs.lookup(ctx, path)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if !flags.Create {
			return nil, errs.New(errs.ENOENT, path, "")
		}
		if _, err := fs.WriteFile(ctx, path, nil, WriteOptions{Mode: mode}); err != nil {
			return nil, err
		}
		return &Handle{fs: fs, path: path}, nil
	}
	if existing.Type == metadata.TypeDirectory {
		return nil, errs.New(errs.EISDIR, path, "")
	}

	if flags.Truncate {
		return &Handle{fs: fs, path: path, dirty: true}, nil
	}

	data, err := fs.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Handle{fs: fs, path: path, buf: data}, nil
}

// ReadAt copies len(p) bytes starting at off into p, POSIX-pread style.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if off < 0 || off > int64(len(h.buf)) {
		return 0, errs.New(errs.RangeOutOfBounds, h.path, "")
	}
	n := copy(p, h.buf[off:])
	return n, nil
}

// WriteAt writes p into the buffer at off, growing it if necessary.
func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if off < 0 {
		return 0, errs.New(errs.EINVAL, h.path, "negative offset")
	}
	end := off + int64(len(p))
	if end > int64(len(h.buf)) {
		grown := make([]byte, end)
		copy(grown, h.buf)
		h.buf = grown
	}
	copy(h.buf[off:end], p)
	h.dirty = true
	return len(p), nil
}

// Bytes returns a snapshot of the handle's current buffer.
func (h *Handle) Bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]byte, len(h.buf))
	copy(out, h.buf)
	return out
}

// Truncate implements the handle's truncate(len): slices or zero-pads the
// buffer to length.
func (h *Handle) Truncate(length int64) error {
	if length < 0 {
		return errs.New(errs.EINVAL, h.path, "negative length")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if int64(len(h.buf)) >= length {
		h.buf = h.buf[:length]
	} else {
		grown := make([]byte, length)
		copy(grown, h.buf)
		h.buf = grown
	}
	h.dirty = true
	return nil
}

// Sync flushes the buffer to storage via writeFile without closing the
// handle.
func (h *Handle) Sync(ctx context.Context) error {
	h.mu.Lock()
	buf := make([]byte, len(h.buf))
	copy(buf, h.buf)
	dirty := h.dirty
	h.mu.Unlock()

	if !dirty {
		return nil
	}
	if _, err := h.fs.WriteFile(ctx, h.path, buf, WriteOptions{}); err != nil {
		return err
	}
	h.mu.Lock()
	h.dirty = false
	h.mu.Unlock()
	return nil
}

// Close flushes any unwritten changes and releases the handle. The handle
// must not be used after Close.
func (h *Handle) Close(ctx context.Context) error {
	return h.Sync(ctx)
}

// Stat delegates to the owning FS's stat for this handle's path.
func (h *Handle) Stat(ctx context.Context) (*Stat, error) {
	return h.fs.Stat(ctx, h.path)
}

// Chmod delegates to the owning FS's chmod for this handle's path.
func (h *Handle) Chmod(ctx context.Context, mode uint32) error {
	return h.fs.Chmod(ctx, h.path, mode)
}

// Chown delegates to the owning FS's chown for this handle's path.
func (h *Handle) Chown(ctx context.Context, uid, gid uint32) error {
	return h.fs.Chown(ctx, h.path, uid, gid)
}
