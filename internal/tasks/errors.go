package tasks

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/todosync/internal/model"
)

var (
	// ErrResourceNotFound means the endpoint answered 404.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrQueuedOffline means a mutation could not reach the server and was
	// stored for replay.
	ErrQueuedOffline = errors.New("request queued for sync")
)

// StatusError is a non-2xx response from the API.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Is reports 404 responses as ErrResourceNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrResourceNotFound && e.StatusCode == http.StatusNotFound
}

// TransportError means the request never produced a response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// QueuedError carries the pending action stored for an offline mutation.
type QueuedError struct {
	Action model.PendingAction
	Err    error
}

func (e *QueuedError) Error() string {
	return fmt.Sprintf("%s %s queued as %s: %v", e.Action.Method, e.Action.URL, e.Action.ID, e.Err)
}

func (e *QueuedError) Unwrap() []error {
	return []error{ErrQueuedOffline, e.Err}
}

// IsQueued reports whether err means the request was queued for replay.
func IsQueued(err error) bool {
	return errors.Is(err, ErrQueuedOffline)
}
