package tokenstore

import (
	"context"
	"sync"
)

// MemoryBackend is an in-memory Backend. Contents are lost when the process exits.
type MemoryBackend struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{m: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// PutAll stores every entry under one lock.
func (b *MemoryBackend) PutAll(ctx context.Context, entries map[string][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range entries {
		b.m[k] = append([]byte(nil), v...)
	}
	return nil
}

// Delete removes keys; missing keys are ignored.
func (b *MemoryBackend) Delete(ctx context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.m, k)
	}
	return nil
}

// Len returns the number of stored keys.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.m)
}
