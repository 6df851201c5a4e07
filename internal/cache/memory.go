package cache

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/roach88/todosync/internal/model"
)

// MemoryStorage is an in-process Storage. Contents are lost on exit.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemoryStorage struct {
	mu         sync.Mutex
	order      []string
	partitions map[string]map[string]model.CachedResponse
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{partitions: make(map[string]map[string]model.CachedResponse)}
}

// OpenPartition creates the partition if it does not exist.
func (m *MemoryStorage) OpenPartition(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openLocked(name)
	return nil
}

// Partitions lists partition names in creation order.
func (m *MemoryStorage) Partitions(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out, nil
}

// DeletePartition removes a partition and its entries.
func (m *MemoryStorage) DeletePartition(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.partitions[name]; !ok {
		return false, nil
	}
	delete(m.partitions, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Get looks up one entry by exact key.
func (m *MemoryStorage) Get(_ context.Context, partition, key string) (model.CachedResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.partitions[partition]
	if !ok {
		return model.CachedResponse{}, false, nil
	}
	entry, ok := entries[key]
	if !ok {
		return model.CachedResponse{}, false, nil
	}
	return copyEntry(entry), true, nil
}

// Put writes an entry, creating the partition if needed.
func (m *MemoryStorage) Put(_ context.Context, entry model.CachedResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openLocked(entry.Partition)[entry.Key] = copyEntry(entry)
	return nil
}

// Entries lists every entry in a partition ordered by key.
func (m *MemoryStorage) Entries(_ context.Context, partition string) ([]model.CachedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.partitions[partition]
	out := make([]model.CachedResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStorage) openLocked(name string) map[string]model.CachedResponse {
	entries, ok := m.partitions[name]
	if !ok {
		entries = make(map[string]model.CachedResponse)
		m.partitions[name] = entries
		m.order = append(m.order, name)
	}
	return entries
}

func copyEntry(e model.CachedResponse) model.CachedResponse {
	e.Header = e.Header.Clone()
	e.Body = bytes.Clone(e.Body)
	return e
}
