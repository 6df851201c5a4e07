package queue

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/todosync/internal/model"
)

// MemoryStore is an in-process KVStore. Contents are lost on exit.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemoryStore struct {
	mu      sync.Mutex
	seq     int64
	actions map[string]model.PendingAction
}

var _ KVStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actions: make(map[string]model.PendingAction)}
}

// GetAll returns all actions ordered by EnqueuedAt, then insertion order.
func (m *MemoryStore) GetAll(_ context.Context) ([]model.PendingAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.PendingAction, 0, len(m.actions))
	for _, a := range m.actions {
		out = append(out, copyAction(a))
	}
	sortFIFO(out)
	return out, nil
}

// Put inserts or replaces an action, keeping the seq of a replaced action.
func (m *MemoryStore) Put(_ context.Context, action model.PendingAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.actions[action.ID]; ok {
		action.Seq = existing.Seq
	} else {
		m.seq++
		action.Seq = m.seq
	}
	m.actions[action.ID] = copyAction(action)
	return nil
}

// Delete removes an action. Unknown ids are ignored.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actions, id)
	return nil
}

func copyAction(a model.PendingAction) model.PendingAction {
	if a.Headers != nil {
		h := make(map[string]string, len(a.Headers))
		for k, v := range a.Headers {
			h[k] = v
		}
		a.Headers = h
	}
	return a
}

// sortFIFO orders actions by EnqueuedAt, ties broken by Seq.
func sortFIFO(actions []model.PendingAction) {
	sort.SliceStable(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
			return a.EnqueuedAt.Before(b.EnqueuedAt)
		}
		return a.Seq < b.Seq
	})
}
