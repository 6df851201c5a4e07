package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/roach88/todosync/internal/intercept"
	"github.com/roach88/todosync/internal/model"
	"github.com/roach88/todosync/internal/queue"
)

const (
	// DefaultAPIPrefix is the local path prefix routed to the API origin.
	DefaultAPIPrefix = "/api"

	// MaxBodyBytes bounds mutation bodies buffered for queuing.
	MaxBodyBytes = 10 << 20

	SyncPath   = "/_todosync/sync"
	StatusPath = "/_todosync/status"
)

// Enqueuer stores mutations for replay. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, action model.PendingAction) (model.PendingAction, error)
}

// StatusFunc reports proxy state for the status endpoint.
type StatusFunc func(ctx context.Context) (any, error)

// Config locates the upstream origins.
type Config struct {
	StaticOrigin string
	APIOrigin    string
	// APIPrefix defaults to DefaultAPIPrefix.
	APIPrefix string
}

// Server is the local caching proxy.
type Server struct {
	static    *url.URL
	api       *url.URL
	apiPrefix string
	transport http.RoundTripper
	queue     Enqueuer
	sync      http.Handler
	status    StatusFunc
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithSyncHandler mounts h at SyncPath.
func WithSyncHandler(h http.Handler) Option {
	return func(s *Server) {
		s.sync = h
	}
}

// WithStatus serves fn at StatusPath.
func WithStatus(fn StatusFunc) Option {
	return func(s *Server) {
		s.status = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates a proxy sending upstream requests through transport and
// queuing failed mutations on q.
func New(cfg Config, transport http.RoundTripper, q Enqueuer, opts ...Option) (*Server, error) {
	static, err := parseOrigin(cfg.StaticOrigin)
	if err != nil {
		return nil, fmt.Errorf("static origin: %w", err)
	}
	api, err := parseOrigin(cfg.APIOrigin)
	if err != nil {
		return nil, fmt.Errorf("api origin: %w", err)
	}
	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = DefaultAPIPrefix
	}
	if !strings.HasPrefix(prefix, "/") || strings.HasSuffix(prefix, "/") {
		return nil, fmt.Errorf("api prefix %q: must start and not end with /", prefix)
	}

	s := &Server{
		static:    static,
		api:       api,
		apiPrefix: prefix,
		transport: transport,
		queue:     q,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func parseOrigin(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute url", raw)
	}
	return u, nil
}

// Handler returns the proxy's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.sync != nil {
		mux.Handle(SyncPath, s.sync)
	}
	mux.HandleFunc(StatusPath, s.serveStatus)

	apiProxy := &httputil.ReverseProxy{
		Rewrite:      func(pr *httputil.ProxyRequest) { pr.SetURL(s.api) },
		Transport:    s.transport,
		ErrorHandler: s.apiError,
	}
	mux.Handle(s.apiPrefix+"/", bufferMutations(http.StripPrefix(s.apiPrefix, apiProxy)))

	mux.Handle("/", &httputil.ReverseProxy{
		Rewrite:      func(pr *httputil.ProxyRequest) { pr.SetURL(s.static) },
		Transport:    s.transport,
		ErrorHandler: s.staticError,
	})
	return mux
}

type bodyKey struct{}

// bufferMutations keeps a copy of mutation bodies so a failed forward can
// still be queued.
func bufferMutations(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !queue.IsMutation(r.Method) || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "read request body", http.StatusBadRequest)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), bodyKey{}, body))
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		next.ServeHTTP(w, r)
	})
}

type queuedResponse struct {
	Queued  bool   `json:"queued"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (s *Server) apiError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		s.logger.Debug("client went away", "method", r.Method, "path", r.URL.Path)
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	if queue.IsMutation(r.Method) && s.queue != nil {
		// r is the outbound request; its URL already points upstream.
		body, _ := r.Context().Value(bodyKey{}).([]byte)

		action, qerr := s.queue.Enqueue(r.Context(), queue.NewAction(r, body))
		if qerr == nil {
			writeJSON(w, http.StatusAccepted, queuedResponse{
				Queued:  true,
				ID:      action.ID,
				Message: intercept.OfflineMessage,
			})
			return
		}
		s.logger.Error("failed to queue offline request", "method", r.Method, "url", r.URL.String(), "error", qerr)
	}

	s.logger.Warn("api request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
}

func (s *Server) staticError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("static request failed", "path", r.URL.Path, "error", err)
	http.Error(w, "offline and not cached: "+r.URL.Path, http.StatusBadGateway)
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.status == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	v, err := s.status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
