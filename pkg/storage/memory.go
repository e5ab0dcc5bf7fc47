package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryAdapter is a minimal in-memory Adapter intended for tests and
// examples. Reads are synchronous.
type MemoryAdapter struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{records: map[string][]byte{}}
}

func (m *MemoryAdapter) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	value, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(value), true, nil
}

func (m *MemoryAdapter) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.records[key] = cloneBytes(value)
	m.mu.Unlock()
	return nil
}

func (m *MemoryAdapter) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryAdapter) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.records))
	for key := range m.records {
		keys = append(keys, key)
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryAdapter) Clear(_ context.Context) error {
	m.mu.Lock()
	m.records = map[string][]byte{}
	m.mu.Unlock()
	return nil
}

func (m *MemoryAdapter) SyncReads() bool { return true }

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
