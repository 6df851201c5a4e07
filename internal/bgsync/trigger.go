package bgsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/roach88/todosync/internal/queue"
)

// DefaultTag is the sync tag that triggers a replay of pending actions.
const DefaultTag = "sync-todos"

// ErrUnknownTag is returned when a signal carries a tag this trigger does not own.
var ErrUnknownTag = errors.New("unknown sync tag")

// Replayer replays queued work. *queue.Queue satisfies it.
type Replayer interface {
	ReplayAll(ctx context.Context) (queue.ReplayReport, error)
}

// Trigger matches sync signals against its tag and runs replay.
type Trigger struct {
	tag      string
	replayer Replayer
	logger   *slog.Logger
}

// NewTrigger creates a trigger for tag. An empty tag means DefaultTag and a
// nil logger means slog.Default().
func NewTrigger(tag string, replayer Replayer, logger *slog.Logger) *Trigger {
	if tag == "" {
		tag = DefaultTag
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{tag: tag, replayer: replayer, logger: logger}
}

// Tag returns the tag this trigger responds to.
func (t *Trigger) Tag() string {
	return t.tag
}

// Handle runs a replay pass when tag matches. Other tags are ignored and
// reported with ErrUnknownTag.
func (t *Trigger) Handle(ctx context.Context, tag string) (queue.ReplayReport, error) {
	if tag != t.tag {
		t.logger.Debug("ignoring sync signal", "tag", tag)
		return queue.ReplayReport{}, fmt.Errorf("sync %q: %w", tag, ErrUnknownTag)
	}

	t.logger.Info("background sync", "tag", tag)
	report, err := t.replayer.ReplayAll(ctx)
	if err != nil {
		return report, fmt.Errorf("sync %q: %w", tag, err)
	}
	return report, nil
}

type syncResponse struct {
	Tag       string   `json:"tag"`
	Attempted int      `json:"attempted"`
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
}

// Handler exposes the trigger over HTTP. It accepts POST with the tag in the
// "tag" query parameter; a missing tag means the trigger's own tag.
func (t *Trigger) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		tag := r.URL.Query().Get("tag")
		if tag == "" {
			tag = t.tag
		}

		report, err := t.Handle(r.Context(), tag)
		switch {
		case errors.Is(err, ErrUnknownTag):
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		resp := syncResponse{
			Tag:       tag,
			Attempted: report.Attempted,
			Succeeded: report.Succeeded,
			Failed:    make([]string, 0, len(report.Failed)),
		}
		if resp.Succeeded == nil {
			resp.Succeeded = []string{}
		}
		for _, f := range report.Failed {
			resp.Failed = append(resp.Failed, f.Action.ID)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}
