package bgsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/todosync/internal/model"
	"github.com/roach88/todosync/internal/queue"
	"github.com/roach88/todosync/internal/testutil"
)

type countingReplayer struct {
	mu     sync.Mutex
	calls  int
	report queue.ReplayReport
	err    error
}

func (r *countingReplayer) ReplayAll(context.Context) (queue.ReplayReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.report, r.err
}

func (r *countingReplayer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestHandle_MatchingTag(t *testing.T) {
	network := testutil.NewNetwork(nil)
	q := queue.New(queue.NewMemoryStore(), &http.Client{Transport: network},
		queue.WithIDGenerator(queue.NewFixedGenerator("a-1")))
	_, err := q.Enqueue(context.Background(), model.PendingAction{
		URL:    "https://api.example.com/todos",
		Method: http.MethodPost,
		Body:   `{"title":"x"}`,
	})
	require.NoError(t, err)

	trigger := NewTrigger("", q, nil)
	assert.Equal(t, DefaultTag, trigger.Tag())

	report, err := trigger.Handle(context.Background(), "sync-todos")
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1"}, report.Succeeded)
	assert.Len(t, network.Calls(), 1)

	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHandle_UnknownTagIgnored(t *testing.T) {
	r := &countingReplayer{}
	trigger := NewTrigger(DefaultTag, r, nil)

	_, err := trigger.Handle(context.Background(), "sync-photos")
	assert.ErrorIs(t, err, ErrUnknownTag)
	assert.Zero(t, r.Calls())
}

func TestHandle_ReplayError(t *testing.T) {
	r := &countingReplayer{err: errors.New("db locked")}
	trigger := NewTrigger(DefaultTag, r, nil)

	_, err := trigger.Handle(context.Background(), DefaultTag)
	assert.ErrorContains(t, err, "db locked")
	assert.Equal(t, 1, r.Calls())
}

func TestHandler(t *testing.T) {
	r := &countingReplayer{report: queue.ReplayReport{
		Attempted: 2,
		Succeeded: []string{"a-1"},
		Failed:    []queue.FailedAction{{Action: model.PendingAction{ID: "a-2"}, Err: errors.New("500")}},
	}}
	srv := httptest.NewServer(NewTrigger(DefaultTag, r, nil).Handler())
	defer srv.Close()

	t.Run("post default tag", func(t *testing.T) {
		resp, err := http.Post(srv.URL, "text/plain", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body syncResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, DefaultTag, body.Tag)
		assert.Equal(t, 2, body.Attempted)
		assert.Equal(t, []string{"a-1"}, body.Succeeded)
		assert.Equal(t, []string{"a-2"}, body.Failed)
	})

	t.Run("unknown tag", func(t *testing.T) {
		before := r.Calls()
		resp, err := http.Post(srv.URL+"?tag=other", "text/plain", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, before, r.Calls())
	})

	t.Run("get rejected", func(t *testing.T) {
		resp, err := http.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestWatch_FiresOnReconnect(t *testing.T) {
	r := &countingReplayer{}
	trigger := NewTrigger(DefaultTag, r, nil)

	// offline, offline, online, online, offline, online, then stay online.
	states := []bool{false, false, true, true, false, true}
	var idx atomic.Int32
	probe := func(context.Context) bool {
		i := int(idx.Add(1)) - 1
		if i < len(states) {
			return states[i]
		}
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- trigger.Watch(ctx, probe, time.Millisecond) }()

	require.Eventually(t, func() bool { return idx.Load() > int32(len(states)+2) }, 2*time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 2, r.Calls())
}

func TestWatch_StartsOnline(t *testing.T) {
	r := &countingReplayer{}
	trigger := NewTrigger(DefaultTag, r, nil)

	var probes atomic.Int32
	probe := func(context.Context) bool {
		probes.Add(1)
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- trigger.Watch(ctx, probe, time.Millisecond) }()

	require.Eventually(t, func() bool { return probes.Load() > 3 }, 2*time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Zero(t, r.Calls())
}

func TestWatch_InvalidInterval(t *testing.T) {
	trigger := NewTrigger(DefaultTag, &countingReplayer{}, nil)
	err := trigger.Watch(context.Background(), func(context.Context) bool { return true }, 0)
	assert.Error(t, err)
}

func TestHTTPProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	probe := HTTPProbe(srv.Client(), srv.URL)
	assert.True(t, probe(context.Background()), "any response means reachable")

	srv.Close()
	assert.False(t, probe(context.Background()))

	network := testutil.NewNetwork(nil)
	network.SetOffline(true)
	assert.False(t, HTTPProbe(&http.Client{Transport: network}, "https://api.example.com/")(context.Background()))
}
