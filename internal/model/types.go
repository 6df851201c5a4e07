package model

import (
	"net/http"
	"time"
)

// PendingAction is a mutation request queued while the network was unreachable.
// Records are replaced, never edited.
type PendingAction struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`

	// Seq breaks EnqueuedAt ties; assigned by the store on first write.
	Seq int64 `json:"seq,omitempty"`
}

// CachedResponse is a serialized HTTP response stored in a cache partition.
type CachedResponse struct {
	Partition string      `json:"partition"`
	Key       string      `json:"key"`
	Status    int         `json:"status"`
	Header    http.Header `json:"header,omitempty"`
	Body      []byte      `json:"body,omitempty"`
	StoredAt  time.Time   `json:"storedAt"`
}
