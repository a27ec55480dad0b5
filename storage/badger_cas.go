package storage

import (
	"context"

	ds "github.com/ipfs/go-datastore"
	badger4 "github.com/ipfs/go-ds-badger4"
)

// badgerCAS adapts an ipfs/go-datastore-backed badger store to the narrow
// CASStorage contract. The full ds.Datastore surface (batching/txn/GC/TTL)
// is deliberately not exposed: loose objects are immutable and never touch
// the machinery a mutable keyspace would.
type badgerCAS struct {
	ds ds.Datastore
}

// NewBadgerCASStorage opens (or creates) a badger-backed CAS keyspace at
// dbPath. A nil opts uses badger4's defaults.
func NewBadgerCASStorage(dbPath string, opts *badger4.Options) (CASStorage, error) {
	store, err := badger4.NewDatastore(dbPath, opts)
	if err != nil {
		return nil, err
	}
	return &badgerCAS{ds: store}, nil
}

func (b *badgerCAS) Write(ctx context.Context, path string, data []byte) error {
	return b.ds.Put(ctx, ds.NewKey(path), data)
}

func (b *badgerCAS) Get(ctx context.Context, path string) ([]byte, bool, error) {
	data, err := b.ds.Get(ctx, ds.NewKey(path))
	if err != nil {
		if err == ds.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (b *badgerCAS) Exists(ctx context.Context, path string) (bool, error) {
	return b.ds.Has(ctx, ds.NewKey(path))
}

func (b *badgerCAS) Delete(ctx context.Context, path string) error {
	err := b.ds.Delete(ctx, ds.NewKey(path))
	if err == ds.ErrNotFound {
		return nil
	}
	return err
}

func (b *badgerCAS) Close() error {
	if closer, ok := b.ds.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
