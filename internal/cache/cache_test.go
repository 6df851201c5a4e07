package cache

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/todosync/internal/store"
	"github.com/roach88/todosync/internal/testutil"
)

// storages runs each test against every Storage implementation.
func storages(t *testing.T) map[string]Storage {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"sqlite": s.Cache(),
	}
}

func mustRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestPartitionNames(t *testing.T) {
	names := PartitionNames("todo", "v1")
	assert.Equal(t, "todo-static-v1", names.Static)
	assert.Equal(t, "todo-dynamic-v1", names.Dynamic)
	assert.True(t, names.Has("todo-static-v1"))
	assert.True(t, names.Has("todo-dynamic-v1"))
	assert.False(t, names.Has("todo-static-v0"))
}

func TestCache_StoreMatch(t *testing.T) {
	for name, storage := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clk := testutil.NewFakeClock(time.Time{})
			c := New(storage, PartitionNames("todo", "v1"), WithClock(clk))

			req := mustRequest(t, http.MethodGet, "https://api.example.com/todos?page=1")
			header := http.Header{"Content-Type": []string{"application/json"}}
			require.NoError(t, c.Store(ctx, c.Names().Dynamic, req, http.StatusOK, header, []byte(`{"data":[]}`)))

			// Equivalent URL spelling hits the same entry
			again := mustRequest(t, http.MethodGet, "https://API.example.com:443/todos?page=1")
			resp, ok, err := c.Match(ctx, c.Names().Dynamic, again)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.Equal(t, `{"data":[]}`, readBody(t, resp))
			assert.Same(t, again, resp.Request)

			entries, err := c.Entries(ctx, c.Names().Dynamic)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.True(t, clk.Now().Equal(entries[0].StoredAt))
		})
	}
}

func TestCache_MatchMiss(t *testing.T) {
	for name, storage := range storages(t) {
		t.Run(name, func(t *testing.T) {
			c := New(storage, PartitionNames("todo", "v1"))

			_, ok, err := c.Match(context.Background(), c.Names().Static, mustRequest(t, http.MethodGet, "http://localhost/x"))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestCache_MethodIsPartOfKey(t *testing.T) {
	for name, storage := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := New(storage, PartitionNames("todo", "v1"))

			get := mustRequest(t, http.MethodGet, "https://api.example.com/todos")
			require.NoError(t, c.Store(ctx, c.Names().Dynamic, get, http.StatusOK, nil, []byte("x")))

			_, ok, err := c.Match(ctx, c.Names().Dynamic, mustRequest(t, http.MethodHead, "https://api.example.com/todos"))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestCache_MatchedBodyIsIndependent(t *testing.T) {
	for name, storage := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := New(storage, PartitionNames("todo", "v1"))
			req := mustRequest(t, http.MethodGet, "http://localhost/app.js")

			body := []byte("console.log(1)")
			require.NoError(t, c.Store(ctx, c.Names().Static, req, http.StatusOK, nil, body))
			body[0] = 'X'

			for i := 0; i < 2; i++ {
				resp, ok, err := c.Match(ctx, c.Names().Static, req)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, "console.log(1)", readBody(t, resp))
			}
		})
	}
}

func TestCache_InstallCachesManifest(t *testing.T) {
	for name, storage := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			network := testutil.NewNetwork(func(req *http.Request) (*http.Response, error) {
				return testutil.Respond(req, http.StatusOK, "asset:"+req.URL.Path, nil), nil
			})
			c := New(storage, PartitionNames("todo", "v1"))

			manifest := []string{"/", "/index.html", "manifest.json", "/vite.svg"}
			require.NoError(t, c.Install(ctx, &http.Client{Transport: network}, "http://localhost:5173/", manifest))

			assert.Len(t, network.Calls(), 4)
			network.SetOffline(true)

			resp, ok, err := c.Match(ctx, c.Names().Static, mustRequest(t, http.MethodGet, "http://localhost:5173/manifest.json"))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "asset:/manifest.json", readBody(t, resp))

			entries, err := c.Entries(ctx, c.Names().Static)
			require.NoError(t, err)
			assert.Len(t, entries, 4)
		})
	}
}

func TestCache_InstallIsAllOrNothing(t *testing.T) {
	for name, storage := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			network := testutil.NewNetwork(func(req *http.Request) (*http.Response, error) {
				if req.URL.Path == "/vite.svg" {
					return testutil.Respond(req, http.StatusNotFound, "", nil), nil
				}
				return testutil.Respond(req, http.StatusOK, "ok", nil), nil
			})
			c := New(storage, PartitionNames("todo", "v1"))

			err := c.Install(ctx, &http.Client{Transport: network}, "http://localhost:5173", []string{"/", "/vite.svg"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "unexpected status 404")

			entries, err := c.Entries(ctx, c.Names().Static)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestCache_InstallTransportFailure(t *testing.T) {
	network := testutil.NewNetwork(nil)
	network.SetOffline(true)
	c := New(NewMemoryStorage(), PartitionNames("todo", "v1"))

	err := c.Install(context.Background(), &http.Client{Transport: network}, "http://localhost:5173", []string{"/"})
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrOffline)
}

func TestCache_ActivateDeletesStalePartitions(t *testing.T) {
	for name, storage := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			req := mustRequest(t, http.MethodGet, "https://api.example.com/todos")

			old := New(storage, PartitionNames("todo", "v1"))
			require.NoError(t, old.Store(ctx, old.Names().Static, req, http.StatusOK, nil, []byte("old-static")))
			require.NoError(t, old.Store(ctx, old.Names().Dynamic, req, http.StatusOK, nil, []byte("old-dynamic")))
			require.NoError(t, storage.OpenPartition(ctx, "unrelated-cache"))

			current := New(storage, PartitionNames("todo", "v2"))
			require.NoError(t, current.Store(ctx, current.Names().Dynamic, req, http.StatusOK, nil, []byte("new")))

			deleted, err := current.Activate(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"todo-static-v1", "todo-dynamic-v1", "unrelated-cache"}, deleted)

			partitions, err := current.Partitions(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"todo-dynamic-v2"}, partitions)

			_, ok, err := current.Match(ctx, "todo-dynamic-v1", req)
			require.NoError(t, err)
			assert.False(t, ok, "stale generation must not be served")

			// Second activation has nothing left to do
			deleted, err = current.Activate(ctx)
			require.NoError(t, err)
			assert.Empty(t, deleted)
		})
	}
}
