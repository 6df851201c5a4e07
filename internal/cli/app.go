package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/roach88/todosync/internal/bgsync"
	"github.com/roach88/todosync/internal/cache"
	"github.com/roach88/todosync/internal/clock"
	"github.com/roach88/todosync/internal/config"
	"github.com/roach88/todosync/internal/intercept"
	"github.com/roach88/todosync/internal/queue"
	"github.com/roach88/todosync/internal/realtime"
	"github.com/roach88/todosync/internal/store"
	"github.com/roach88/todosync/internal/tasks"
)

// app wires the components for one command invocation.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	clock  clock.Clock

	store   *store.Store
	cache   *cache.Cache
	icpt    *intercept.Interceptor
	client  *http.Client // routed through the interceptor
	direct  *http.Client // bypasses the cache
	queue   *queue.Queue
	trigger *bgsync.Trigger
	tasks   *tasks.Client

	dialer realtime.Dialer
}

func openApp(opts *RootOptions) (*app, error) {
	logger := opts.Logger()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	ids := opts.IDGenerator
	if ids == nil {
		ids = queue.UUIDv7Generator{}
	}

	c := cache.New(st.Cache(), cache.PartitionNames(cfg.Cache.Prefix, cfg.Cache.Version),
		cache.WithClock(clk),
		cache.WithLogger(logger),
	)

	icpt, err := intercept.New(c, intercept.Config{
		StaticOrigin:    cfg.Static.Origin,
		APIOrigin:       cfg.API.BaseURL,
		ResourceMarkers: cfg.Cache.ResourceMarkers,
		Timeout:         cfg.Network.Timeout,
	}, intercept.WithTransport(transport), intercept.WithLogger(logger))
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to build interceptor", err)
	}

	client := &http.Client{Transport: icpt}
	direct := &http.Client{Transport: transport, Timeout: cfg.Network.Timeout}

	q := queue.New(st.Actions(), direct,
		queue.WithClock(clk),
		queue.WithIDGenerator(ids),
		queue.WithLogger(logger),
		queue.WithPassTimeout(cfg.Sync.ReplayTimeout),
	)

	tc, err := tasks.NewClient(cfg.API.BaseURL, client,
		tasks.WithEndpoints(cfg.API.Endpoints...),
		tasks.WithQueue(q),
		tasks.WithToken(cfg.API.Token),
		tasks.WithClientLogger(logger),
	)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to build task client", err)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = realtime.WebSocketDialer{}
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		clock:   clk,
		store:   st,
		cache:   c,
		icpt:    icpt,
		client:  client,
		direct:  direct,
		queue:   q,
		trigger: bgsync.NewTrigger(cfg.Sync.Tag, q, logger),
		tasks:   tc,
		dialer:  dialer,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) newRealtime() (*realtime.Manager, error) {
	m, err := realtime.NewManager(a.cfg.Realtime.URL, a.cfg.API.Token,
		realtime.WithDialer(a.dialer),
		realtime.WithClock(a.clock),
		realtime.WithReconnectDelay(a.cfg.Realtime.ReconnectDelay),
		realtime.WithMaxAttempts(a.cfg.Realtime.MaxAttempts),
		realtime.WithDialTimeout(a.cfg.Realtime.DialTimeout),
		realtime.WithLogger(a.logger),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid realtime config", err)
	}
	return m, nil
}

// statusReport is the payload of the proxy status endpoint.
type statusReport struct {
	Pending    int      `json:"pending"`
	Partitions []string `json:"partitions"`
	Realtime   string   `json:"realtime,omitempty"`
	Attempts   int      `json:"reconnectAttempts,omitempty"`
}

func (a *app) status(ctx context.Context, rt *realtime.Manager) (statusReport, error) {
	pending, err := a.queue.Len(ctx)
	if err != nil {
		return statusReport{}, err
	}
	partitions, err := a.cache.Partitions(ctx)
	if err != nil {
		return statusReport{}, err
	}
	if partitions == nil {
		partitions = []string{}
	}
	report := statusReport{Pending: pending, Partitions: partitions}
	if rt != nil {
		report.Realtime = rt.Status().String()
		report.Attempts = rt.Attempts()
	}
	return report, nil
}

// errorCode classifies err for JSON error output.
func errorCode(err error) string {
	var (
		validation *config.ValidationError
		transport  *tasks.TransportError
	)
	switch {
	case errors.As(err, &validation):
		return CodeConfig
	case errors.Is(err, tasks.ErrResourceNotFound):
		return CodeNotFound
	case intercept.IsNetworkFailure(err), errors.As(err, &transport):
		return CodeNetwork
	case errors.Is(err, errReplayIncomplete):
		return CodeReplay
	case errors.Is(err, errStore):
		return CodeStore
	default:
		return CodeUnknown
	}
}

var (
	errReplayIncomplete = errors.New("some actions are still queued")
	errStore            = errors.New("store")
)

func storeError(message string, err error) *ExitError {
	return WrapExitError(ExitCommandError, message, fmt.Errorf("%w: %w", errStore, err))
}
