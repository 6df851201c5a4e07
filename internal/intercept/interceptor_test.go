package intercept

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/todosync/internal/cache"
	"github.com/roach88/todosync/internal/model"
	"github.com/roach88/todosync/internal/testutil"
)

const (
	staticOrigin = "http://localhost:5173"
	apiOrigin    = "https://api.example.com"
)

type fixture struct {
	network *testutil.Network
	cache   *cache.Cache
	client  *http.Client
	icpt    *Interceptor
}

func newFixture(t *testing.T, storage cache.Storage, cfg Config) *fixture {
	t.Helper()
	if storage == nil {
		storage = cache.NewMemoryStorage()
	}
	if cfg.StaticOrigin == "" {
		cfg.StaticOrigin = staticOrigin
	}
	if cfg.APIOrigin == "" {
		cfg.APIOrigin = apiOrigin
	}

	network := testutil.NewNetwork(func(req *http.Request) (*http.Response, error) {
		return testutil.JSON(req, `{"path":"`+req.URL.Path+`"}`), nil
	})
	c := cache.New(storage, cache.PartitionNames("todo", "v1"))
	icpt, err := New(c, cfg, WithTransport(network))
	require.NoError(t, err)

	return &fixture{
		network: network,
		cache:   c,
		client:  &http.Client{Transport: icpt},
		icpt:    icpt,
	}
}

func (f *fixture) get(t *testing.T, url string) (*http.Response, string, error) {
	t.Helper()
	resp, err := f.client.Get(url)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body), nil
}

func TestStrategy(t *testing.T) {
	f := newFixture(t, nil, Config{})

	tests := []struct {
		method string
		url    string
		want   string
	}{
		{http.MethodGet, "http://localhost:5173/index.html", StrategyCacheFirst},
		{http.MethodGet, "HTTP://LOCALHOST:5173/", StrategyCacheFirst},
		{http.MethodGet, "https://api.example.com/todos", StrategyNetworkFirst},
		{http.MethodGet, "https://api.example.com:443/todos", StrategyNetworkFirst},
		{http.MethodPost, "https://api.example.com/todos", StrategyPassthrough},
		{http.MethodDelete, "https://api.example.com/todos/1", StrategyPassthrough},
		{http.MethodGet, "https://cdn.example.com/font.woff", StrategyPassthrough},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(tt.method, tt.url, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, f.icpt.Strategy(req), "%s %s", tt.method, tt.url)
	}
}

func TestNew_InvalidOrigin(t *testing.T) {
	c := cache.New(cache.NewMemoryStorage(), cache.PartitionNames("todo", "v1"))

	_, err := New(c, Config{StaticOrigin: "not a url", APIOrigin: apiOrigin})
	assert.Error(t, err)

	_, err = New(c, Config{StaticOrigin: staticOrigin, APIOrigin: "/relative"})
	assert.Error(t, err)
}

func TestAPI_OfflineServesCachedBodyByteForByte(t *testing.T) {
	f := newFixture(t, nil, Config{})
	payload := `{"data":[{"id":"1","title":"Learn React"}],"total":1}`
	f.network.SetHandler(func(req *http.Request) (*http.Response, error) {
		return testutil.JSON(req, payload), nil
	})

	_, online, err := f.get(t, apiOrigin+"/tasks?page=1")
	require.NoError(t, err)
	assert.Equal(t, payload, online)

	f.network.SetOffline(true)
	resp, offline, err := f.get(t, apiOrigin+"/tasks?page=1")
	require.NoError(t, err)
	assert.Equal(t, payload, offline)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get(HeaderOffline))
}

func TestAPI_MostRecentResponseWins(t *testing.T) {
	f := newFixture(t, nil, Config{})
	version := "1"
	f.network.SetHandler(func(req *http.Request) (*http.Response, error) {
		return testutil.JSON(req, `{"v":`+version+`}`), nil
	})

	_, _, err := f.get(t, apiOrigin+"/tasks")
	require.NoError(t, err)
	version = "2"
	_, _, err = f.get(t, apiOrigin+"/tasks")
	require.NoError(t, err)

	f.network.SetOffline(true)
	_, body, err := f.get(t, apiOrigin+"/tasks")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, body)
}

func TestAPI_NonOKNotCached(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.network.SetHandler(func(req *http.Request) (*http.Response, error) {
		return testutil.Respond(req, http.StatusInternalServerError, "boom", nil), nil
	})

	resp, body, err := f.get(t, apiOrigin+"/profile")
	require.NoError(t, err, "HTTP errors are not transport failures")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "boom", body)

	entries, err := f.cache.Entries(context.Background(), f.cache.Names().Dynamic)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAPI_OfflineFallbackForResourceMarker(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.network.SetOffline(true)

	resp, body, err := f.get(t, apiOrigin+"/todos?page=2")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "true", resp.Header.Get(HeaderOffline))

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, []any{}, payload["data"])
	assert.Equal(t, true, payload["offline"])
	assert.IsType(t, "", payload["message"])
	assert.Len(t, payload, 3)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "offline_fallback", []byte(body))
}

func TestAPI_OfflineMissWithoutMarkerFails(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.network.SetOffline(true)

	_, _, err := f.get(t, apiOrigin+"/profile")
	require.Error(t, err)
	assert.True(t, IsNetworkFailure(err))
	assert.ErrorIs(t, err, testutil.ErrOffline)

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.MethodGet, netErr.Method)
	assert.Equal(t, apiOrigin+"/profile", netErr.URL)
}

func TestAPI_ConfigurableMarkers(t *testing.T) {
	f := newFixture(t, nil, Config{ResourceMarkers: []string{"/projects"}})
	f.network.SetOffline(true)

	resp, _, err := f.get(t, apiOrigin+"/projects")
	require.NoError(t, err)
	assert.Equal(t, "true", resp.Header.Get(HeaderOffline))

	_, _, err = f.get(t, apiOrigin+"/todos")
	assert.True(t, IsNetworkFailure(err), "default markers replaced")
}

func TestAPI_EmptyMarkersDisableFallback(t *testing.T) {
	f := newFixture(t, nil, Config{ResourceMarkers: []string{}})
	f.network.SetOffline(true)

	_, _, err := f.get(t, apiOrigin+"/todos")
	assert.True(t, IsNetworkFailure(err))
}

func TestAPI_MutationsPassThrough(t *testing.T) {
	f := newFixture(t, nil, Config{})

	resp, err := f.client.Post(apiOrigin+"/tasks", "application/json", strings.NewReader(`{"title":"x"}`))
	require.NoError(t, err)
	resp.Body.Close()

	calls := f.network.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, `{"title":"x"}`, calls[0].Body)

	entries, err := f.cache.Entries(context.Background(), f.cache.Names().Dynamic)
	require.NoError(t, err)
	assert.Empty(t, entries, "mutations are never cached")

	f.network.SetOffline(true)
	_, err = f.client.Post(apiOrigin+"/todos", "application/json", strings.NewReader(`{}`))
	require.Error(t, err, "offline mutations get no synthetic fallback")
	assert.ErrorIs(t, err, testutil.ErrOffline)
}

func TestStatic_CacheFirst(t *testing.T) {
	f := newFixture(t, nil, Config{})
	ctx := context.Background()

	require.NoError(t, f.cache.Install(ctx, &http.Client{Transport: f.network}, staticOrigin, []string{"/", "/index.html"}))
	f.network.Reset()

	_, body, err := f.get(t, staticOrigin+"/index.html")
	require.NoError(t, err)
	assert.Equal(t, `{"path":"/index.html"}`, body)
	assert.Empty(t, f.network.Calls(), "cache hit must not touch the network")

	f.network.SetOffline(true)
	_, body, err = f.get(t, staticOrigin+"/")
	require.NoError(t, err)
	assert.Equal(t, `{"path":"/"}`, body)
}

func TestStatic_MissFetchesAndStores(t *testing.T) {
	f := newFixture(t, nil, Config{})

	_, body, err := f.get(t, staticOrigin+"/assets/app.js")
	require.NoError(t, err)
	assert.Equal(t, `{"path":"/assets/app.js"}`, body)
	assert.Len(t, f.network.Calls(), 1)

	_, body, err = f.get(t, staticOrigin+"/assets/app.js")
	require.NoError(t, err)
	assert.Equal(t, `{"path":"/assets/app.js"}`, body)
	assert.Len(t, f.network.Calls(), 1, "second request served from cache")
}

func TestStatic_MissOfflinePropagatesError(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.network.SetOffline(true)

	_, _, err := f.get(t, staticOrigin+"/todos/missing.js")
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrOffline)
	assert.False(t, IsNetworkFailure(err), "static assets get no fallback")
}

func TestStatic_NonOKNotStored(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.network.SetHandler(func(req *http.Request) (*http.Response, error) {
		return testutil.Respond(req, http.StatusNotFound, "nope", nil), nil
	})

	resp, _, err := f.get(t, staticOrigin+"/missing.png")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	entries, err := f.cache.Entries(context.Background(), f.cache.Names().Static)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOtherOriginPassesThrough(t *testing.T) {
	f := newFixture(t, nil, Config{})

	_, _, err := f.get(t, "https://cdn.example.com/lib.js")
	require.NoError(t, err)

	static, err := f.cache.Entries(context.Background(), f.cache.Names().Static)
	require.NoError(t, err)
	assert.Empty(t, static)
	dynamic, err := f.cache.Entries(context.Background(), f.cache.Names().Dynamic)
	require.NoError(t, err)
	assert.Empty(t, dynamic)
}

// failingStorage rejects every write.
type failingStorage struct {
	*cache.MemoryStorage
}

func (failingStorage) Put(context.Context, model.CachedResponse) error {
	return errors.New("disk full")
}

func TestCacheWriteFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t, failingStorage{cache.NewMemoryStorage()}, Config{})

	resp, body, err := f.get(t, apiOrigin+"/tasks")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"path":"/tasks"}`, body)

	_, body, err = f.get(t, staticOrigin+"/index.html")
	require.NoError(t, err)
	assert.Equal(t, `{"path":"/index.html"}`, body)
}

func TestDefaultTimeoutFallsBackToCache(t *testing.T) {
	f := newFixture(t, nil, Config{Timeout: 20 * time.Millisecond})
	_, _, err := f.get(t, apiOrigin+"/tasks")
	require.NoError(t, err)

	// Network now hangs until the request context ends
	f.network.SetHandler(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})

	_, body, err := f.get(t, apiOrigin+"/tasks")
	require.NoError(t, err)
	assert.Equal(t, `{"path":"/tasks"}`, body)
}

func TestCallerCancellationSkipsFallback(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.network.SetHandler(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiOrigin+"/todos", nil)
	require.NoError(t, err)
	cancel()

	_, err = f.client.Do(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
