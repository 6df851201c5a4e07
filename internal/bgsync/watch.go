package bgsync

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// Probe reports whether the remote API is reachable.
type Probe func(ctx context.Context) bool

// HTTPProbe returns a Probe that issues a HEAD request to url. Any response,
// whatever its status, counts as online; only transport failures count as
// offline.
func HTTPProbe(client *http.Client, url string) Probe {
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return true
	}
}

// Watch polls probe every interval and fires the trigger each time
// connectivity goes from offline to online. The first probe only records the
// starting state. Watch returns ctx.Err() when ctx is done.
func (t *Trigger) Watch(ctx context.Context, probe Probe, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("watch: interval must be positive")
	}

	online := probe(ctx)
	t.logger.Debug("connectivity watch started", "online", online)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		now := probe(ctx)
		if now && !online {
			t.logger.Info("connectivity restored")
			if _, err := t.Handle(ctx, t.tag); err != nil {
				t.logger.Error("background sync failed", "error", err)
			}
		} else if !now && online {
			t.logger.Info("connectivity lost")
		}
		online = now
	}
}
