package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/roach88/todosync/internal/model"
	"github.com/roach88/todosync/internal/queue"
)

// DefaultEndpoints are the candidate resource paths, tried in order.
var DefaultEndpoints = []string{"/tasks", "/todos"}

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Enqueuer stores mutations for later replay. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, action model.PendingAction) (model.PendingAction, error)
}

// Client talks to the task API.
type Client struct {
	base      *url.URL
	endpoints []string
	doer      Doer
	queue     Enqueuer
	token     string
	logger    *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEndpoints replaces the candidate resource paths.
func WithEndpoints(endpoints ...string) ClientOption {
	return func(c *Client) {
		c.endpoints = endpoints
	}
}

// WithQueue enables offline queuing of mutations.
func WithQueue(q Enqueuer) ClientOption {
	return func(c *Client) {
		c.queue = q
	}
}

// WithToken sends a bearer token with every request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, doer Doer, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("api base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api base url %q: must be absolute", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	c := &Client{
		base:      u,
		endpoints: DefaultEndpoints,
		doer:      doer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.endpoints) == 0 {
		return nil, errors.New("tasks client: no endpoints")
	}
	return c, nil
}

// List fetches one page. A server that returns a bare array is filtered and
// paginated locally.
func (c *Client) List(ctx context.Context, p ListParams) (Page, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("limit", strconv.Itoa(p.Limit))
	for k, v := range map[string]string{
		"search":   p.Search,
		"status":   p.Status,
		"category": p.Category,
		"priority": p.Priority,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}

	var raw json.RawMessage
	err := c.each(func(endpoint string) error {
		return c.do(ctx, http.MethodGet, endpoint, q, nil, &raw)
	})
	if err != nil {
		return Page{}, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var all []Task
		if err := json.Unmarshal(trimmed, &all); err != nil {
			return Page{}, fmt.Errorf("decode task list: %w", err)
		}
		return Paginate(Filter(all, p), p.Page, p.Limit), nil
	}

	var page Page
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return Page{}, fmt.Errorf("decode task page: %w", err)
	}
	if page.Data == nil {
		page.Data = []Task{}
	}
	return page, nil
}

// Get fetches one task.
func (c *Client) Get(ctx context.Context, id ID) (Task, error) {
	var t Task
	err := c.each(func(endpoint string) error {
		return c.do(ctx, http.MethodGet, endpoint+"/"+string(id), nil, nil, &t)
	})
	return t, err
}

// Create adds a task. When offline it returns a QueuedError.
func (c *Client) Create(ctx context.Context, t Task) (Task, error) {
	var created Task
	err := c.each(func(endpoint string) error {
		return c.do(ctx, http.MethodPost, endpoint, nil, t, &created)
	})
	return created, err
}

// Update applies patch to a task. When offline it returns a QueuedError.
func (c *Client) Update(ctx context.Context, id ID, patch Patch) (Task, error) {
	var updated Task
	err := c.each(func(endpoint string) error {
		return c.do(ctx, http.MethodPatch, endpoint+"/"+string(id), nil, patch, &updated)
	})
	return updated, err
}

// Delete removes a task. When offline it returns a QueuedError.
func (c *Client) Delete(ctx context.Context, id ID) error {
	return c.each(func(endpoint string) error {
		return c.do(ctx, http.MethodDelete, endpoint+"/"+string(id), nil, nil, nil)
	})
}

// each runs fn against each candidate endpoint until one answers with
// anything other than ErrResourceNotFound.
func (c *Client) each(fn func(endpoint string) error) error {
	var err error
	for _, endpoint := range c.endpoints {
		err = fn(endpoint)
		if !errors.Is(err, ErrResourceNotFound) {
			return err
		}
		c.logger.Debug("endpoint not found, trying next", "endpoint", endpoint)
	}
	return err
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	target := c.resolve(path, query)

	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", method, err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		if ctx.Err() == nil && c.queue != nil && queue.IsMutation(method) {
			return c.enqueue(ctx, req, body, err)
		}
		return &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: method, URL: target, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, target, err)
	}
	return nil
}

func (c *Client) enqueue(ctx context.Context, req *http.Request, body []byte, cause error) error {
	action, err := c.queue.Enqueue(ctx, queue.NewAction(req, body))
	if err != nil {
		return fmt.Errorf("%s %s: %w (queue: %v)", req.Method, req.URL, cause, err)
	}
	c.logger.Info("offline, request queued", "id", action.ID, "method", action.Method, "url", action.URL)
	return &QueuedError{Action: action, Err: cause}
}
