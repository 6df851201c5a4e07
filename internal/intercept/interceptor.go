package intercept

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/todosync/internal/cache"
	"github.com/roach88/todosync/internal/model"
)

const tracerName = "github.com/roach88/todosync/internal/intercept"

// Strategy names reported in logs and span attributes.
const (
	StrategyCacheFirst   = "cache-first"
	StrategyNetworkFirst = "network-first"
	StrategyPassthrough  = "passthrough"
)

// Config describes the origins the interceptor recognizes.
type Config struct {
	// StaticOrigin serves the application shell, e.g. "http://localhost:5173".
	StaticOrigin string

	// APIOrigin is the remote REST API, e.g. "https://api.oluwasetemi.dev".
	APIOrigin string

	// ResourceMarkers are path fragments whose offline GETs get the synthetic
	// payload. Nil means DefaultResourceMarkers; an empty slice disables it.
	ResourceMarkers []string

	// Timeout bounds a network attempt when the request has no deadline.
	// Zero disables the default timeout.
	Timeout time.Duration
}

// Interceptor routes requests through the cache partitions.
//
// Thread-safety: Interceptor is immutable after New and safe for concurrent use.
type Interceptor struct {
	next    http.RoundTripper
	cache   *cache.Cache
	static  string
	api     string
	markers []string
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
}

var _ http.RoundTripper = (*Interceptor)(nil)

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithTransport sets the transport used for real network attempts.
// Default: http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(i *Interceptor) {
		i.next = rt
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Interceptor) {
		i.logger = l
	}
}

// New creates an interceptor over c.
func New(c *cache.Cache, cfg Config, opts ...Option) (*Interceptor, error) {
	static, err := Origin(cfg.StaticOrigin)
	if err != nil {
		return nil, fmt.Errorf("static origin: %w", err)
	}
	api, err := Origin(cfg.APIOrigin)
	if err != nil {
		return nil, fmt.Errorf("api origin: %w", err)
	}

	markers := cfg.ResourceMarkers
	if markers == nil {
		markers = DefaultResourceMarkers
	}

	i := &Interceptor{
		next:    http.DefaultTransport,
		cache:   c,
		static:  static,
		api:     api,
		markers: append([]string(nil), markers...),
		timeout: cfg.Timeout,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Origin returns the normalized scheme://host[:port] of rawURL.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("origin %q: scheme and host required", rawURL)
	}
	return originOf(u)
}

func originOf(u *url.URL) (string, error) {
	normalized, err := model.NormalizeURL((&url.URL{Scheme: u.Scheme, Host: u.Host}).String())
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(normalized, "/"), nil
}

// Strategy reports which strategy applies to req.
func (i *Interceptor) Strategy(req *http.Request) string {
	origin, err := originOf(req.URL)
	if err != nil {
		return StrategyPassthrough
	}
	switch {
	case origin == i.api && req.Method == http.MethodGet:
		return StrategyNetworkFirst
	case origin == i.api:
		return StrategyPassthrough
	case origin == i.static:
		return StrategyCacheFirst
	default:
		return StrategyPassthrough
	}
}

// RoundTrip implements http.RoundTripper.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	strategy := i.Strategy(req)

	ctx, span := i.tracer.Start(req.Context(), "intercept.RoundTrip", trace.WithAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.full", req.URL.String()),
		attribute.String("todosync.strategy", strategy),
	))
	defer span.End()
	req = req.WithContext(ctx)

	var (
		resp *http.Response
		err  error
	)
	switch strategy {
	case StrategyCacheFirst:
		resp, err = i.cacheFirst(req, span)
	case StrategyNetworkFirst:
		resp, err = i.networkFirst(req, span)
	default:
		resp, err = i.send(req)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return resp, nil
}

func (i *Interceptor) cacheFirst(req *http.Request, span trace.Span) (*http.Response, error) {
	partition := i.cache.Names().Static

	if req.Method == http.MethodGet {
		cached, ok, err := i.cache.Match(req.Context(), partition, req)
		if err != nil {
			i.logger.Warn("static cache lookup failed", "url", req.URL.String(), "error", err)
		}
		if ok {
			span.SetAttributes(attribute.Bool("todosync.cache_hit", true))
			i.logger.Debug("served from static cache", "url", req.URL.String())
			return cached, nil
		}
	}

	resp, err := i.send(req)
	if err != nil {
		return nil, err
	}

	if req.Method == http.MethodGet && resp.StatusCode == http.StatusOK {
		if err := i.storeCopy(partition, req, resp); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (i *Interceptor) networkFirst(req *http.Request, span trace.Span) (*http.Response, error) {
	partition := i.cache.Names().Dynamic

	resp, err := i.send(req)
	if err == nil {
		if resp.StatusCode == http.StatusOK {
			if err := i.storeCopy(partition, req, resp); err != nil {
				return nil, err
			}
		}
		return resp, nil
	}

	// The caller gave up; a fallback would answer nobody.
	if req.Context().Err() != nil {
		return nil, err
	}

	i.logger.Debug("network attempt failed, trying cache", "url", req.URL.String(), "error", err)

	cached, ok, cerr := i.cache.Match(context.WithoutCancel(req.Context()), partition, req)
	if cerr != nil {
		i.logger.Warn("dynamic cache lookup failed", "url", req.URL.String(), "error", cerr)
	}
	if ok {
		span.SetAttributes(attribute.Bool("todosync.cache_hit", true))
		return cached, nil
	}

	if matchesMarker(req.URL.Path, i.markers) {
		span.SetAttributes(attribute.Bool("todosync.offline_fallback", true))
		i.logger.Info("serving offline fallback", "url", req.URL.String())
		return offlineResponse(req), nil
	}

	return nil, &NetworkError{Method: req.Method, URL: req.URL.String(), Err: err}
}

// send performs the network attempt, applying the default timeout when the
// request carries no deadline.
func (i *Interceptor) send(req *http.Request) (*http.Response, error) {
	if _, ok := req.Context().Deadline(); ok || i.timeout <= 0 {
		return i.next.RoundTrip(req)
	}

	ctx, cancel := context.WithTimeout(req.Context(), i.timeout)
	resp, err := i.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// storeCopy buffers resp's body, writes a copy into partition and rewinds the
// live response. Cache write failures are logged, never returned.
func (i *Interceptor) storeCopy(partition string, req *http.Request, resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))

	ctx := context.WithoutCancel(req.Context())
	if err := i.cache.Store(ctx, partition, req, resp.StatusCode, resp.Header, body); err != nil {
		i.logger.Warn("cache write failed", "partition", partition, "url", req.URL.String(), "error", err)
	}
	return nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
