package branch

import (
	"context"
	"sort"
	"sync"

	"actorfs/clock"
	"actorfs/errs"
	"actorfs/storage"
)

// BlockInfo describes the block resolved for a path on some branch, either
// owned by the overlay or inherited (copy-on-write) from a parent branch.
type BlockInfo struct {
	Hash       string
	Size       int64
	IsOwned    bool
	IsDeleted  bool
	ModifiedAt int64
	Seq        uint64 // overlay-local logical clock tick, tie-breaks same-millisecond writes
	Source     string // branch name the block was actually found on
}

// ContentWriter persists raw content to the CAS and returns its hash. The
// overlay never touches bytes directly; it only tracks which hash owns
// which path.
type ContentWriter func(ctx context.Context, data []byte) (hash string, size int64, err error)

// ParentResolver looks up the nearest ancestor block for a path, walking
// the branch parent chain. Backed by Store.ResolveParentBlock in
// production; swappable in tests.
type ParentResolver func(ctx context.Context, parentBranch, path string) (hash string, size, modifiedAt int64, foundOn string, found bool, err error)

// WriteResult is returned by InterceptWrite.
type WriteResult struct {
	Hash             string
	Size             int64
	CopiedFromParent bool
	PreviousHash     string
}

// CommitResult summarizes a Commit call.
type CommitResult struct {
	PathsCommitted int
	HeadCommit     string
}

// Overlay is the transient, per-active-branch copy-on-write layer:
// writes land here first (owned_blocks/dirty_paths), and reads
// fall through to the parent branch chain until a write makes a path
// locally owned. A tombstone is recorded as an owned block with an empty
// hash so a deleted file does not resurrect from the parent.
type Overlay struct {
	mu             sync.Mutex
	branchName     string
	parentBranch   string
	ownedBlocks    map[string]BlockInfo
	dirtyPaths     map[string]bool
	previousHashes map[string]string
	resolveParent  ParentResolver
	writeContent   ContentWriter
	clock          *clock.LogicalClock
}

// NewOverlay builds an overlay for branchName, forked from parentBranch
// (empty for the root/main branch). Each overlay owns its own logical
// clock: ModifiedAt alone (millisecond wall-clock) cannot order two writes
// to the same path that land in the same millisecond, so every owned
// block also carries a tick from this clock.
func NewOverlay(branchName, parentBranch string, resolve ParentResolver, write ContentWriter) *Overlay {
	return &Overlay{
		branchName:     branchName,
		parentBranch:   parentBranch,
		ownedBlocks:    make(map[string]BlockInfo),
		dirtyPaths:     make(map[string]bool),
		previousHashes: make(map[string]string),
		resolveParent:  resolve,
		writeContent:   write,
		clock:          clock.NewLogicalClock(),
	}
}

// InterceptWrite records data as the new owner of path. If path was not
// previously owned by this overlay, the prior content (from the parent
// chain, if any) is recorded in previousHashes and CopiedFromParent is set
// — the overlay never mutates the parent's blocks, it only shadows them.
func (o *Overlay) InterceptWrite(ctx context.Context, path string, data []byte) (*WriteResult, error) {
	hash, size, err := o.writeContent(ctx, data)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	result := &WriteResult{Hash: hash, Size: size}
	if existing, owned := o.ownedBlocks[path]; owned {
		o.previousHashes[path] = existing.Hash
		result.PreviousHash = existing.Hash
	} else if prevHash, _, _, _, found, rErr := o.resolveParent(ctx, o.parentBranch, path); rErr == nil && found {
		o.previousHashes[path] = prevHash
		result.CopiedFromParent = true
		result.PreviousHash = prevHash
	}

	o.ownedBlocks[path] = BlockInfo{Hash: hash, Size: size, IsOwned: true, ModifiedAt: storage.NowMillis(), Seq: o.clock.Tick(), Source: o.branchName}
	o.dirtyPaths[path] = true
	return result, nil
}

// MarkDeleted records a tombstone for path: an owned, empty-hash block that
// hides whatever the parent chain would otherwise resolve to. Returns
// false if path was neither owned locally nor visible through the parent
// chain (nothing to delete).
func (o *Overlay) MarkDeleted(ctx context.Context, path string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	existing, owned := o.ownedBlocks[path]
	if owned && existing.IsDeleted {
		return false, nil
	}

	if !owned {
		_, _, _, _, found, err := o.resolveParent(ctx, o.parentBranch, path)
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}
	}

	o.ownedBlocks[path] = BlockInfo{IsOwned: true, IsDeleted: true, ModifiedAt: storage.NowMillis(), Seq: o.clock.Tick(), Source: o.branchName}
	o.dirtyPaths[path] = true
	return true, nil
}

// GetBlockInfo resolves path against the overlay first, falling through to
// the parent chain. Returns found=false (no error) when the path is
// neither owned nor visible through any ancestor.
func (o *Overlay) GetBlockInfo(ctx context.Context, path string) (*BlockInfo, bool, error) {
	o.mu.Lock()
	owned, isOwned := o.ownedBlocks[path]
	o.mu.Unlock()

	if isOwned {
		if owned.IsDeleted {
			return nil, false, nil
		}
		return &owned, true, nil
	}

	hash, size, modifiedAt, foundOn, found, err := o.resolveParent(ctx, o.parentBranch, path)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return &BlockInfo{Hash: hash, Size: size, IsOwned: false, ModifiedAt: modifiedAt, Source: foundOn}, true, nil
}

// Commit flushes every dirty path to persist via the supplied sink and
// clears the dirty set, leaving owned_blocks intact (committed paths stay
// locally owned — a subsequent read must still see this branch's version,
// not the parent's).
func (o *Overlay) Commit(ctx context.Context, persist func(ctx context.Context, path string, block BlockInfo) error) (*CommitResult, error) {
	o.mu.Lock()
	dirty := make([]string, 0, len(o.dirtyPaths))
	for p := range o.dirtyPaths {
		dirty = append(dirty, p)
	}
	blocks := make(map[string]BlockInfo, len(dirty))
	for _, p := range dirty {
		blocks[p] = o.ownedBlocks[p]
	}
	o.mu.Unlock()

	// Persist in Seq order so a crash mid-commit leaves a prefix of the
	// write history durable, never an out-of-order subset of it.
	sort.Slice(dirty, func(i, j int) bool {
		return clock.CompareClocks(blocks[dirty[i]].Seq, blocks[dirty[j]].Seq) < 0
	})

	for _, p := range dirty {
		if err := persist(ctx, p, blocks[p]); err != nil {
			return nil, errs.Wrap(errs.EINVAL, p, err)
		}
	}

	o.mu.Lock()
	for _, p := range dirty {
		delete(o.dirtyPaths, p)
	}
	o.mu.Unlock()

	return &CommitResult{PathsCommitted: len(dirty)}, nil
}

// DiscardPath drops any uncommitted write or tombstone for path, reverting
// reads to the parent chain. Returns false if path had no dirty state.
func (o *Overlay) DiscardPath(path string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.dirtyPaths[path] {
		return false
	}
	delete(o.dirtyPaths, path)
	delete(o.ownedBlocks, path)
	delete(o.previousHashes, path)
	return true
}

// DiscardAll drops every uncommitted write or tombstone, returning the
// count discarded.
func (o *Overlay) DiscardAll() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := len(o.dirtyPaths)
	for p := range o.dirtyPaths {
		delete(o.ownedBlocks, p)
		delete(o.previousHashes, p)
	}
	o.dirtyPaths = make(map[string]bool)
	return n
}

// DirtyCount reports how many paths have uncommitted changes.
func (o *Overlay) DirtyCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.dirtyPaths)
}

// ClockTime snapshots the overlay's logical clock, used to seed a child
// overlay forked from this one so Seq values stay causally ordered across
// branches.
func (o *Overlay) ClockTime() uint64 {
	return o.clock.Time()
}

// SeedClock advances this overlay's logical clock past remoteTime, called
// once at fork time against the parent branch's current clock reading.
func (o *Overlay) SeedClock(remoteTime uint64) {
	o.clock.Update(remoteTime)
}
