package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/todosync/internal/model"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestAction creates a pending action enqueued offset seconds after testEpoch.
func createTestAction(id, method string, offset int) model.PendingAction {
	return model.PendingAction{
		ID:         id,
		URL:        "https://api.example.com/tasks",
		Method:     method,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       `{"title":"` + id + `"}`,
		EnqueuedAt: testEpoch.Add(time.Duration(offset) * time.Second),
	}
}
