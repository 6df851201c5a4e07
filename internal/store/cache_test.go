package store

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/todosync/internal/model"
)

func testEntry(partition, key, body string) model.CachedResponse {
	return model.CachedResponse{
		Partition: partition,
		Key:       key,
		Status:    http.StatusOK,
		Header:    http.Header{"Content-Type": []string{"application/json"}},
		Body:      []byte(body),
		StoredAt:  testEpoch,
	}
}

func TestCache_PutGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := s.Cache()

	require.NoError(t, c.Put(ctx, testEntry("todo-dynamic-v1", "GET https://api.example.com/todos", `{"data":[1]}`)))

	got, ok, err := c.Get(ctx, "todo-dynamic-v1", "GET https://api.example.com/todos")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, got.Status)
	assert.Equal(t, `{"data":[1]}`, string(got.Body))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "GET https://api.example.com/todos", got.Key)
	assert.True(t, testEpoch.Equal(got.StoredAt))
}

func TestCache_GetMiss(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Cache().Get(ctx, "todo-dynamic-v1", "GET https://api.example.com/todos")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_PutOverwrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := s.Cache()
	key := "GET https://api.example.com/todos"

	require.NoError(t, c.Put(ctx, testEntry("p", key, "old")))
	require.NoError(t, c.Put(ctx, testEntry("p", key, "new")))

	got, ok, err := c.Get(ctx, "p", key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", string(got.Body))

	entries, err := c.Entries(ctx, "p")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCache_PartitionsAreIsolated(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := s.Cache()
	key := "GET http://localhost:5173/index.html"

	require.NoError(t, c.Put(ctx, testEntry("static", key, "<html>")))

	_, ok, err := c.Get(ctx, "dynamic", key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_DeletePartitionCascades(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := s.Cache()

	require.NoError(t, c.Put(ctx, testEntry("old", "GET https://a/1", "1")))
	require.NoError(t, c.Put(ctx, testEntry("old", "GET https://a/2", "2")))
	require.NoError(t, c.Put(ctx, testEntry("new", "GET https://a/1", "1")))

	deleted, err := c.DeletePartition(ctx, "old")
	require.NoError(t, err)
	assert.True(t, deleted)

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM cache_entries WHERE partition = 'old'").Scan(&count))
	assert.Equal(t, 0, count)

	names, err := c.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, names)

	deleted, err = c.DeletePartition(ctx, "old")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCache_OpenPartitionIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := s.Cache()

	require.NoError(t, c.OpenPartition(ctx, "todo-static-v1"))
	require.NoError(t, c.OpenPartition(ctx, "todo-static-v1"))

	names, err := c.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"todo-static-v1"}, names)

	entries, err := c.Entries(ctx, "todo-static-v1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
