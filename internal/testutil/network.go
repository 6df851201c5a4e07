package testutil

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// ErrOffline is returned by Network while it is switched offline.
var ErrOffline = errors.New("testutil: network unreachable")

// Call records one request observed by Network.
type Call struct {
	Method string
	URL    string
	Header http.Header
	Body   string
}

// Network is a scripted http.RoundTripper standing in for the remote origins.
//
// While online each request is answered by Handler (or 200 with an empty body
// when Handler is nil). While offline every request fails with ErrOffline
// before reaching Handler, which is how a transport failure looks to callers.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Network struct {
	mu      sync.Mutex
	offline bool
	calls   []Call
	handler func(*http.Request) (*http.Response, error)
}

// NewNetwork creates an online network answering with handler.
func NewNetwork(handler func(*http.Request) (*http.Response, error)) *Network {
	return &Network{handler: handler}
}

// SetOffline switches transport failures on or off.
func (n *Network) SetOffline(offline bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = offline
}

// SetHandler replaces the responder.
func (n *Network) SetHandler(handler func(*http.Request) (*http.Response, error)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = handler
}

// Calls returns a copy of the recorded requests, including offline attempts.
func (n *Network) Calls() []Call {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Call, len(n.calls))
	copy(out, n.calls)
	return out
}

// Reset clears recorded calls.
func (n *Network) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = nil
}

// RoundTrip implements http.RoundTripper.
func (n *Network) RoundTrip(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("testutil: read request body: %w", err)
		}
		_ = req.Body.Close()
		body = string(data)
	}

	n.mu.Lock()
	n.calls = append(n.calls, Call{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	})
	offline := n.offline
	handler := n.handler
	n.mu.Unlock()

	if offline {
		return nil, ErrOffline
	}
	if handler == nil {
		return Respond(req, http.StatusOK, "", nil), nil
	}
	return handler(req)
}

// Respond builds a response for req with the given status, body and headers.
func Respond(req *http.Request, status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// JSON builds a 200 application/json response for req.
func JSON(req *http.Request, body string) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return Respond(req, http.StatusOK, body, h)
}
