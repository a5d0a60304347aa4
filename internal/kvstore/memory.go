package kvstore

import (
	"context"
	"sync"
)

// Memory is a KVStore backed by an in-process map. It never expires or
// evicts anything on its own; whoever deletes cache entries is responsible
// for also deleting the keys this store holds for them.
type Memory struct {
	mu    sync.RWMutex
	items map[string]Record
}

// NewMemory creates an empty in-memory KVStore.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]Record)}
}

func (m *Memory) Get(ctx context.Context, key string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	out := make(Record, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make(Record, len(value))
	copy(stored, value)
	m.items[key] = stored
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

// Len reports how many keys are currently stored. Exposed for tests and
// demo instrumentation, not part of the KVStore interface.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

var _ KVStore = (*Memory)(nil)
