package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/roach88/todosync/internal/model"
)

// Cache stores named response partitions.
// It satisfies cache.Storage.
type Cache struct {
	db *sql.DB
}

// OpenPartition creates the partition if it does not exist.
func (c *Cache) OpenPartition(ctx context.Context, name string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO cache_partitions (name, created_at) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("open partition %q: %w", name, err)
	}
	return nil
}

// Partitions lists partition names in creation order.
func (c *Cache) Partitions(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT name FROM cache_partitions ORDER BY created_at ASC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list partitions: scan: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	return names, nil
}

// DeletePartition removes a partition and all of its entries.
// Returns false if the partition did not exist.
func (c *Cache) DeletePartition(ctx context.Context, name string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM cache_partitions WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete partition %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete partition %q: %w", name, err)
	}
	return n > 0, nil
}

// Get looks up one entry by exact key.
func (c *Cache) Get(ctx context.Context, partition, key string) (model.CachedResponse, bool, error) {
	var (
		entry    = model.CachedResponse{Partition: partition}
		headers  string
		storedAt int64
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT cache_key, status, headers, body, stored_at
		FROM cache_entries
		WHERE partition = ? AND key_digest = ?
	`, partition, model.KeyDigest(key)).Scan(&entry.Key, &entry.Status, &headers, &entry.Body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CachedResponse{}, false, nil
	}
	if err != nil {
		return model.CachedResponse{}, false, fmt.Errorf("get cache entry: %w", err)
	}

	entry.Header, err = unmarshalHTTPHeader(headers)
	if err != nil {
		return model.CachedResponse{}, false, fmt.Errorf("get cache entry: %w", err)
	}
	entry.StoredAt = time.Unix(0, storedAt).UTC()
	return entry, true, nil
}

// Put writes an entry, replacing any previous entry for the same key.
// The partition is created if needed.
func (c *Cache) Put(ctx context.Context, entry model.CachedResponse) error {
	headers, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("put cache entry: marshal headers: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put cache entry: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cache_partitions (name, created_at) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, entry.Partition, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("put cache entry: open partition: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cache_entries (partition, key_digest, cache_key, status, headers, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(partition, key_digest) DO UPDATE SET
			cache_key = excluded.cache_key,
			status = excluded.status,
			headers = excluded.headers,
			body = excluded.body,
			stored_at = excluded.stored_at
	`,
		entry.Partition,
		model.KeyDigest(entry.Key),
		entry.Key,
		entry.Status,
		string(headers),
		entry.Body,
		entry.StoredAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put cache entry: commit: %w", err)
	}
	return nil
}

// Entries lists every entry in a partition ordered by key.
func (c *Cache) Entries(ctx context.Context, partition string) ([]model.CachedResponse, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT cache_key, status, headers, body, stored_at
		FROM cache_entries
		WHERE partition = ?
		ORDER BY cache_key ASC
	`, partition)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []model.CachedResponse
	for rows.Next() {
		var (
			entry    = model.CachedResponse{Partition: partition}
			headers  string
			storedAt int64
		)
		if err := rows.Scan(&entry.Key, &entry.Status, &headers, &entry.Body, &storedAt); err != nil {
			return nil, fmt.Errorf("list cache entries: scan: %w", err)
		}
		entry.Header, err = unmarshalHTTPHeader(headers)
		if err != nil {
			return nil, fmt.Errorf("list cache entries: %w", err)
		}
		entry.StoredAt = time.Unix(0, storedAt).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	return entries, nil
}

func unmarshalHTTPHeader(data string) (http.Header, error) {
	if data == "" || data == "null" || data == "{}" {
		return http.Header{}, nil
	}
	var h http.Header
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return nil, fmt.Errorf("unmarshal headers: %w", err)
	}
	return h, nil
}
