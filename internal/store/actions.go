package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/todosync/internal/model"
)

// Actions is the durable pending-action collection.
// It satisfies queue.KVStore.
type Actions struct {
	db *sql.DB
}

// GetAll returns every pending action in FIFO order.
func (a *Actions) GetAll(ctx context.Context) ([]model.PendingAction, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT seq, id, url, method, headers, body, enqueued_at
		FROM pending_actions
		ORDER BY enqueued_at ASC, seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("get pending actions: %w", err)
	}
	defer rows.Close()

	var actions []model.PendingAction
	for rows.Next() {
		var (
			action     model.PendingAction
			headers    string
			enqueuedAt int64
		)
		if err := rows.Scan(&action.Seq, &action.ID, &action.URL, &action.Method, &headers, &action.Body, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("get pending actions: scan: %w", err)
		}
		action.Headers, err = unmarshalHeaders(headers)
		if err != nil {
			return nil, fmt.Errorf("get pending actions: %w", err)
		}
		action.EnqueuedAt = time.Unix(0, enqueuedAt).UTC()
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get pending actions: %w", err)
	}

	return actions, nil
}

// Put inserts or replaces an action by id.
// A replaced action keeps its original seq so FIFO position is stable.
func (a *Actions) Put(ctx context.Context, action model.PendingAction) error {
	if action.ID == "" {
		return fmt.Errorf("put pending action: empty id")
	}

	headers, err := marshalHeaders(action.Headers)
	if err != nil {
		return fmt.Errorf("put pending action: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO pending_actions (id, url, method, headers, body, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			method = excluded.method,
			headers = excluded.headers,
			body = excluded.body,
			enqueued_at = excluded.enqueued_at
	`,
		action.ID,
		action.URL,
		action.Method,
		headers,
		action.Body,
		action.EnqueuedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("put pending action: %w", err)
	}

	return nil
}

// Delete removes an action by id. Deleting an unknown id is a no-op.
func (a *Actions) Delete(ctx context.Context, id string) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete pending action: %w", err)
	}
	return nil
}

// Count returns the number of pending actions.
func (a *Actions) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_actions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending actions: %w", err)
	}
	return n, nil
}

func marshalHeaders(h map[string]string) (string, error) {
	if len(h) == 0 {
		return "{}", nil
	}
	// json.Marshal sorts map keys, so equal header sets store identical text
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshal headers: %w", err)
	}
	return string(data), nil
}

func unmarshalHeaders(data string) (map[string]string, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var h map[string]string
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return nil, fmt.Errorf("unmarshal headers: %w", err)
	}
	return h, nil
}
