package blob

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory blob store.
func NewMemory() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Upload stores a copy of the bytes under key.
func (m *MemoryStore) Upload(_ context.Context, key string, data []byte, _ string) (Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return Location{
		Path:      key,
		PublicURL: fmt.Sprintf("memory://%s", key),
	}, nil
}

// Get returns the stored bytes for key, if present.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// Len reports how many objects the store holds.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
