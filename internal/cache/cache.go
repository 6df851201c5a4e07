package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/roach88/todosync/internal/clock"
	"github.com/roach88/todosync/internal/model"
)

// Storage persists named partitions of cached responses.
type Storage interface {
	OpenPartition(ctx context.Context, name string) error
	Partitions(ctx context.Context) ([]string, error)
	DeletePartition(ctx context.Context, name string) (bool, error)
	Get(ctx context.Context, partition, key string) (model.CachedResponse, bool, error)
	Put(ctx context.Context, entry model.CachedResponse) error
	Entries(ctx context.Context, partition string) ([]model.CachedResponse, error)
}

// Names holds the two active partition names for one deploy version.
type Names struct {
	Static  string `json:"static"`
	Dynamic string `json:"dynamic"`
}

// PartitionNames derives the active partition names for a version.
//
// Example: PartitionNames("todo", "v1") → todo-static-v1, todo-dynamic-v1
func PartitionNames(prefix, version string) Names {
	return Names{
		Static:  fmt.Sprintf("%s-static-%s", prefix, version),
		Dynamic: fmt.Sprintf("%s-dynamic-%s", prefix, version),
	}
}

// Has reports whether name is one of the active partitions.
func (n Names) Has(name string) bool {
	return name == n.Static || name == n.Dynamic
}

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Cache reads and writes the active partitions.
//
// Thread-safety: Cache holds no mutable state of its own; concurrency is
// delegated to Storage, which must make each operation atomic.
type Cache struct {
	storage Storage
	names   Names
	clock   clock.Clock
	logger  *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the clock used to stamp stored entries.
func WithClock(c clock.Clock) Option {
	return func(cc *Cache) {
		cc.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cc *Cache) {
		cc.logger = l
	}
}

// New creates a Cache over storage with the given active partitions.
func New(storage Storage, names Names, opts ...Option) *Cache {
	c := &Cache{
		storage: storage,
		names:   names,
		clock:   clock.Real{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Names returns the active partition names.
func (c *Cache) Names() Names {
	return c.names
}

// Match looks up an exact match for req in partition and rebuilds the stored
// response. The returned response is independent of the stored copy.
func (c *Cache) Match(ctx context.Context, partition string, req *http.Request) (*http.Response, bool, error) {
	key, err := model.CacheKey(req.Method, req.URL.String())
	if err != nil {
		return nil, false, fmt.Errorf("match: %w", err)
	}

	entry, ok, err := c.storage.Get(ctx, partition, key)
	if err != nil {
		return nil, false, fmt.Errorf("match: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	return ToResponse(entry, req), true, nil
}

// Store writes a response body for req into partition, replacing any previous
// entry for the same key.
func (c *Cache) Store(ctx context.Context, partition string, req *http.Request, status int, header http.Header, body []byte) error {
	key, err := model.CacheKey(req.Method, req.URL.String())
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	entry := model.CachedResponse{
		Partition: partition,
		Key:       key,
		Status:    status,
		Header:    header.Clone(),
		Body:      bytes.Clone(body),
		StoredAt:  c.clock.Now().UTC(),
	}
	if err := c.storage.Put(ctx, entry); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// Entries lists the entries of a partition.
func (c *Cache) Entries(ctx context.Context, partition string) ([]model.CachedResponse, error) {
	return c.storage.Entries(ctx, partition)
}

// Partitions lists every partition in storage, active or stale.
func (c *Cache) Partitions(ctx context.Context) ([]string, error) {
	return c.storage.Partitions(ctx)
}

// Install fetches every manifest path from origin and stores the responses in
// the static partition.
//
// Install is all-or-nothing: every asset must answer 200 before anything is
// written. A failed install leaves the static partition untouched.
func (c *Cache) Install(ctx context.Context, doer Doer, origin string, manifest []string) error {
	type fetched struct {
		req    *http.Request
		status int
		header http.Header
		body   []byte
	}

	base := strings.TrimSuffix(origin, "/")
	results := make([]fetched, 0, len(manifest))
	for _, path := range manifest {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
		if err != nil {
			return fmt.Errorf("install %s: %w", path, err)
		}

		resp, err := doer.Do(req)
		if err != nil {
			return fmt.Errorf("install %s: %w", path, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("install %s: read body: %w", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("install %s: unexpected status %d", path, resp.StatusCode)
		}

		results = append(results, fetched{req: req, status: resp.StatusCode, header: resp.Header, body: body})
	}

	if err := c.storage.OpenPartition(ctx, c.names.Static); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	for _, r := range results {
		if err := c.Store(ctx, c.names.Static, r.req, r.status, r.header, r.body); err != nil {
			return fmt.Errorf("install: %w", err)
		}
	}

	c.logger.Info("static assets cached", "partition", c.names.Static, "assets", len(results))
	return nil
}

// Activate deletes every partition that is not one of the active names and
// returns the deleted names. Activation is complete only when Activate returns
// nil; on error some stale partitions may remain and Activate should be retried.
func (c *Cache) Activate(ctx context.Context) ([]string, error) {
	names, err := c.storage.Partitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}

	var (
		deleted []string
		errs    []error
	)
	for _, name := range names {
		if c.names.Has(name) {
			continue
		}
		c.logger.Info("deleting stale cache partition", "partition", name)
		if _, err := c.storage.DeletePartition(ctx, name); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted = append(deleted, name)
	}
	if len(errs) > 0 {
		return deleted, fmt.Errorf("activate: %w", errors.Join(errs...))
	}

	return deleted, nil
}

// ToResponse rebuilds an *http.Response for req from a stored entry.
func ToResponse(entry model.CachedResponse, req *http.Request) *http.Response {
	header := entry.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", entry.Status, http.StatusText(entry.Status)),
		StatusCode:    entry.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(bytes.Clone(entry.Body))),
		ContentLength: int64(len(entry.Body)),
		Request:       req,
	}
}
