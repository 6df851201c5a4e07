package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/todosync/internal/clock"
	"github.com/roach88/todosync/internal/model"
)

const tracerName = "github.com/roach88/todosync/internal/queue"

// ErrNotMutation is returned when enqueuing a method that is not a mutation.
var ErrNotMutation = errors.New("only POST, PUT, PATCH and DELETE requests can be queued")

// KVStore is the durable record store behind the queue.
// Each operation must be atomic at the record level.
type KVStore interface {
	GetAll(ctx context.Context) ([]model.PendingAction, error)
	Put(ctx context.Context, action model.PendingAction) error
	Delete(ctx context.Context, id string) error
}

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ReplayError reports a replayed action the server rejected.
type ReplayError struct {
	ActionID   string
	StatusCode int
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay %s: unexpected status %d", e.ActionID, e.StatusCode)
}

// FailedAction pairs an action with the reason its replay failed.
type FailedAction struct {
	Action model.PendingAction
	Err    error
}

// ReplayReport summarizes one replay pass.
type ReplayReport struct {
	Attempted int
	Succeeded []string
	Failed    []FailedAction
}

// Queue is the pending-action queue.
//
// Thread-safety: Queue is safe for concurrent use. ReplayAll calls that
// overlap share a single pass.
type Queue struct {
	store  KVStore
	doer   Doer
	clock  clock.Clock
	ids    IDGenerator
	logger *slog.Logger
	tracer trace.Tracer
	group  singleflight.Group

	passTimeout time.Duration
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock sets the clock used to stamp EnqueuedAt.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		q.clock = c
	}
}

// WithIDGenerator sets the id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(q *Queue) {
		q.ids = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// WithPassTimeout bounds one replay pass. Zero means no bound.
func WithPassTimeout(d time.Duration) Option {
	return func(q *Queue) {
		q.passTimeout = d
	}
}

// New creates a queue persisting to store and replaying through doer.
func New(store KVStore, doer Doer, opts ...Option) *Queue {
	q := &Queue{
		store:  store,
		doer:   doer,
		clock:  clock.Real{},
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// IsMutation reports whether method is one the queue accepts.
func IsMutation(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// NewAction captures req as a pending action. Only the first value of each
// header is kept. The id and enqueue time are assigned by Enqueue.
func NewAction(req *http.Request, body []byte) model.PendingAction {
	var headers map[string]string
	if len(req.Header) > 0 {
		headers = make(map[string]string, len(req.Header))
		for k := range req.Header {
			headers[k] = req.Header.Get(k)
		}
	}
	return model.PendingAction{
		URL:     req.URL.String(),
		Method:  req.Method,
		Headers: headers,
		Body:    string(body),
	}
}

// Enqueue persists action under a fresh id and returns the stored record.
// Any ID or EnqueuedAt set by the caller is replaced.
func (q *Queue) Enqueue(ctx context.Context, action model.PendingAction) (model.PendingAction, error) {
	if action.URL == "" {
		return model.PendingAction{}, fmt.Errorf("enqueue: empty url")
	}
	if !IsMutation(action.Method) {
		return model.PendingAction{}, fmt.Errorf("enqueue %s %s: %w", action.Method, action.URL, ErrNotMutation)
	}

	action.Method = strings.ToUpper(action.Method)
	action.ID = q.ids.Generate()
	action.EnqueuedAt = q.clock.Now().UTC()
	action.Seq = 0

	if err := q.store.Put(ctx, action); err != nil {
		return model.PendingAction{}, fmt.Errorf("enqueue: %w", err)
	}

	q.logger.Info("queued offline action", "id", action.ID, "method", action.Method, "url", action.URL)
	return action, nil
}

// ListAll returns every pending action in enqueue order.
func (q *Queue) ListAll(ctx context.Context) ([]model.PendingAction, error) {
	actions, err := q.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending actions: %w", err)
	}
	sortFIFO(actions)
	return actions, nil
}

// Len returns the number of pending actions.
func (q *Queue) Len(ctx context.Context) (int, error) {
	actions, err := q.store.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("count pending actions: %w", err)
	}
	return len(actions), nil
}

// Remove deletes an action by id. Removing an unknown id is a no-op.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if err := q.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

// ReplayAll sends every pending action, oldest first, removing each one the
// server accepts. Failed actions stay queued and do not stop the pass.
//
// Overlapping calls share one pass. The pass is detached from every caller's
// ctx and bounded only by the pass timeout, so a caller giving up does not
// cut short a pass another caller joined. A caller whose ctx ends returns
// ctx.Err() while the pass carries on.
//
// The returned error is non-nil only when the pass could not run (storage
// failure), hit the pass timeout, or the caller's ctx ended; per-action
// failures are in the report.
func (q *Queue) ReplayAll(ctx context.Context) (ReplayReport, error) {
	if err := ctx.Err(); err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}

	ch := q.group.DoChan("replay", func() (any, error) {
		passCtx := context.WithoutCancel(ctx)
		if q.passTimeout > 0 {
			var cancel context.CancelFunc
			passCtx, cancel = context.WithTimeout(passCtx, q.passTimeout)
			defer cancel()
		}
		return q.replay(passCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			q.logger.Debug("joined in-flight replay")
		}
		report, _ := res.Val.(ReplayReport)
		return report, res.Err
	case <-ctx.Done():
		return ReplayReport{}, fmt.Errorf("replay: %w", ctx.Err())
	}
}

func (q *Queue) replay(ctx context.Context) (ReplayReport, error) {
	ctx, span := q.tracer.Start(ctx, "queue.ReplayAll")
	defer span.End()

	var report ReplayReport

	actions, err := q.ListAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("replay: %w", err)
	}
	span.SetAttributes(attribute.Int("todosync.queue.pending", len(actions)))

	if len(actions) > 0 {
		q.logger.Info("replaying pending actions", "count", len(actions))
	}

	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return report, fmt.Errorf("replay: %w", err)
		}

		report.Attempted++
		if err := q.send(ctx, action); err != nil {
			q.logger.Error("failed to replay action", "id", action.ID, "method", action.Method, "url", action.URL, "error", err)
			report.Failed = append(report.Failed, FailedAction{Action: action, Err: err})
			continue
		}

		if err := q.store.Delete(ctx, action.ID); err != nil {
			err = fmt.Errorf("remove after replay: %w", err)
			q.logger.Error("failed to remove replayed action", "id", action.ID, "error", err)
			report.Failed = append(report.Failed, FailedAction{Action: action, Err: err})
			continue
		}
		report.Succeeded = append(report.Succeeded, action.ID)
	}

	span.SetAttributes(
		attribute.Int("todosync.queue.succeeded", len(report.Succeeded)),
		attribute.Int("todosync.queue.failed", len(report.Failed)),
	)
	if report.Attempted > 0 {
		q.logger.Info("replay finished", "succeeded", len(report.Succeeded), "failed", len(report.Failed))
	}
	return report, nil
}

func (q *Queue) send(ctx context.Context, action model.PendingAction) error {
	ctx, span := q.tracer.Start(ctx, "queue.replayAction", trace.WithAttributes(
		attribute.String("todosync.action.id", action.ID),
		attribute.String("http.request.method", action.Method),
		attribute.String("url.full", action.URL),
	))
	defer span.End()

	var body io.Reader
	if action.Body != "" {
		body = strings.NewReader(action.Body)
	}
	req, err := http.NewRequestWithContext(ctx, action.Method, action.URL, body)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range action.Headers {
		req.Header.Set(k, v)
	}

	resp, err := q.doer.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if !accepted(action.Method, resp.StatusCode) {
		err := &ReplayError{ActionID: action.ID, StatusCode: resp.StatusCode}
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// accepted reports whether a replay response lets the action leave the queue.
// A DELETE whose target is already gone has nothing left to do.
func accepted(method string, status int) bool {
	if status < 400 {
		return true
	}
	return method == http.MethodDelete && (status == http.StatusNotFound || status == http.StatusGone)
}
