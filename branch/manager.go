package branch

import (
	"context"
	"sync"

	"actorfs/errs"
)

// Manager owns one Overlay per active branch and wires overlay commits
// through to the durable Store, keeping the transient per-branch state and
// the durable branch metadata split.
type Manager struct {
	store *Store
	write ContentWriter

	mu       sync.Mutex
	overlays map[string]*Overlay
}

// NewManager builds a Manager over store, using write to persist new
// content written through InterceptWrite.
func NewManager(store *Store, write ContentWriter) *Manager {
	return &Manager{store: store, write: write, overlays: make(map[string]*Overlay)}
}

// Overlay returns (creating if needed) the overlay for branchName.
func (m *Manager) Overlay(ctx context.Context, branchName string) (*Overlay, error) {
	m.mu.Lock()
	if ov, ok := m.overlays[branchName]; ok {
		m.mu.Unlock()
		return ov, nil
	}
	m.mu.Unlock()

	b, err := m.store.Get(ctx, branchName)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errs.New(errs.BranchNotFound, branchName, "")
	}
	parent := ""
	if b.ParentBranch.Valid {
		parent = b.ParentBranch.String
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ov, ok := m.overlays[branchName]; ok {
		return ov, nil
	}
	ov := NewOverlay(branchName, parent, m.store.ResolveParentBlock, m.write)
	// If the parent branch already has an active overlay, seed the new
	// overlay's clock past it so a fork never reuses a Seq the parent has
	// already ticked past.
	if parentOv, ok := m.overlays[parent]; ok {
		ov.SeedClock(parentOv.ClockTime())
	}
	m.overlays[branchName] = ov
	return ov, nil
}

// Commit flushes branchName's overlay to the durable store and bumps its
// commit_count/head_commit.
func (m *Manager) Commit(ctx context.Context, branchName, headCommit string) (*CommitResult, error) {
	ov, err := m.Overlay(ctx, branchName)
	if err != nil {
		return nil, err
	}

	result, err := ov.Commit(ctx, func(ctx context.Context, path string, block BlockInfo) error {
		return m.store.PersistBlock(ctx, branchName, path, block.Hash, block.Size, block.ModifiedAt)
	})
	if err != nil {
		return nil, err
	}
	if result.PathsCommitted == 0 {
		return result, nil
	}

	b, err := m.store.Get(ctx, branchName)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errs.New(errs.BranchNotFound, branchName, "")
	}
	newCount := b.CommitCount + 1
	head := headCommit
	if head == "" {
		head = b.HeadCommit
	}
	if err := m.store.Update(ctx, branchName, BranchPatch{HeadCommit: &head, CommitCount: &newCount}); err != nil {
		return nil, err
	}
	result.HeadCommit = head
	return result, nil
}

// DropOverlay discards a branch's in-memory overlay state (used after
// deleting or archiving a branch).
func (m *Manager) DropOverlay(branchName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overlays, branchName)
}
