package store

import (
	"context"
	"sync"
)

// MemoryBackend keeps values in process memory. A positive quota caps the
// total number of stored bytes.
type MemoryBackend struct {
	mu    sync.RWMutex
	data  map[string][]byte
	size  int
	quota int
}

func NewMemoryBackend(quota int) *MemoryBackend {
	return &MemoryBackend{
		data:  make(map[string][]byte),
		quota: quota,
	}
}

func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (b *MemoryBackend) Set(ctx context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	newSize := b.size - len(b.data[key]) + len(value)
	if b.quota > 0 && newSize > b.quota {
		return ErrQuotaExceeded
	}

	v := make([]byte, len(value))
	copy(v, value)
	b.data[key] = v
	b.size = newSize
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.size -= len(b.data[key])
	delete(b.data, key)
	return nil
}

// Size returns the number of stored bytes.
func (b *MemoryBackend) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}
