package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"actorfs/errs"
)

// memoryCAS is a process-local CASStorage used by tests and the CLI demo
// when no badger path is configured.
type memoryCAS struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryCASStorage builds an in-memory CASStorage.
func NewMemoryCASStorage() CASStorage {
	return &memoryCAS{data: make(map[string][]byte)}
}

func (m *memoryCAS) Write(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[path] = cp
	return nil
}

func (m *memoryCAS) Get(_ context.Context, path string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[path]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *memoryCAS) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[path]
	return ok, nil
}

func (m *memoryCAS) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, path)
	return nil
}

func (m *memoryCAS) Close() error { return nil }

// memoryBucket is an in-memory BucketDriver for tests and for standing in
// as the "archive bucket" when none is configured. Two instances sharing
// an identity simulate one physical bucket aliased across tiers.
type memoryBucket struct {
	mu       sync.RWMutex
	identity string
	objects  map[string]memoryObject
}

type memoryObject struct {
	data []byte
	meta ObjectMeta
}

// NewMemoryBucket builds an in-memory bucket identified by identity (two
// drivers sharing the same identity simulate one physical bucket aliased
// across logical tiers).
func NewMemoryBucket(identity string) BucketDriver {
	return &memoryBucket{identity: identity, objects: make(map[string]memoryObject)}
}

func (b *memoryBucket) Identity() string { return b.identity }

func (b *memoryBucket) Put(_ context.Context, key string, data []byte, meta ObjectMeta) (PutResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.objects[key] = memoryObject{data: cp, meta: meta}
	return PutResult{ETag: fingerprintETag(cp), Size: int64(len(cp))}, nil
}

func (b *memoryBucket) Get(_ context.Context, key string, rng *ByteRange) (*GetResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key]
	if !ok {
		return &GetResult{Found: false}, nil
	}

	data := obj.data
	if rng != nil {
		start := rng.Start
		end := int64(len(data))
		if rng.End != nil {
			end = *rng.End
		}
		if start < 0 || start > int64(len(data)) || end > int64(len(data)) || start > end {
			return nil, errs.New(errs.RangeOutOfBounds, key, "")
		}
		data = data[start:end]
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return &GetResult{Found: true, Data: cp, Meta: obj.meta}, nil
}

func (b *memoryBucket) Head(_ context.Context, key string) (*ObjectMeta, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key]
	if !ok {
		return nil, false, nil
	}
	meta := obj.meta
	return &meta, true, nil
}

func (b *memoryBucket) Delete(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.objects, k)
	}
	return nil
}

func (b *memoryBucket) List(_ context.Context, opts ListOptions) (ListResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []string
	for k := range b.objects {
		if opts.Prefix != "" && !strings.HasPrefix(k, opts.Prefix) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if opts.Cursor != "" {
		start := len(keys)
		for i, k := range keys {
			if k > opts.Cursor {
				start = i
				break
			}
		}
		keys = keys[start:]
	}

	truncated := false
	if opts.Limit > 0 && len(keys) > opts.Limit {
		keys = keys[:opts.Limit]
		truncated = true
	}

	result := ListResult{Keys: keys, Truncated: truncated}
	if truncated {
		result.NextCursor = keys[len(keys)-1]
	}
	return result, nil
}

func fingerprintETag(data []byte) string {
	var sum uint64
	for i, b := range data {
		sum = sum*31 + uint64(b) + uint64(i)
	}
	return hexUint64(sum)
}

func hexUint64(n uint64) string {
	const digits = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n&0xF]
		n >>= 4
	}
	return string(buf[i:])
}

