package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/todosync/internal/bgsync"
	"github.com/roach88/todosync/internal/proxy"
)

// ProxyOptions holds flags for the proxy command.
type ProxyOptions struct {
	*RootOptions
	Listen   string
	NoWatch  bool
	Realtime bool

	// ready receives the bound address once the server is listening (tests).
	ready chan<- string
}

// NewProxyCommand creates the proxy command.
func NewProxyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProxyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serve the task app through the offline cache",
		Long: `Run a local HTTP proxy in front of the task app.

Static assets are served cache-first from the static origin. Requests under
/api go to the task API network-first, falling back to cached responses (or an
empty offline page for task listings) when the network is down. Task changes
made while offline are queued and answered with 202 Accepted.

While running, the proxy probes the API and replays the queue whenever
connectivity returns. POST /_todosync/sync fires a replay on demand and
GET /_todosync/status reports queue and cache state.

Example:
  todosync proxy --listen 127.0.0.1:8787
  todosync proxy --config todosync.yaml --realtime`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxy(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&opts.NoWatch, "no-watch", false, "disable the connectivity watch")
	cmd.Flags().BoolVar(&opts.Realtime, "realtime", false, "keep the realtime channel open and report it in status")

	return cmd
}

func runProxy(opts *ProxyOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd.Context(), a.logger)
	defer cancel()

	removed, err := a.cache.Activate(ctx)
	if err != nil {
		a.logger.Warn("cache activation incomplete", "error", err)
	} else if len(removed) > 0 {
		a.logger.Info("stale cache partitions removed", "partitions", removed)
	}

	rt, err := a.newRealtime()
	if err != nil {
		return err
	}
	if opts.Realtime {
		if err := rt.Connect(ctx, nil, func(err error) {
			a.logger.Warn("realtime error", "error", err)
		}); err != nil {
			a.logger.Warn("realtime connect failed", "error", err)
		}
		defer rt.Disconnect()
	} else {
		rt = nil
	}

	srv, err := proxy.New(proxy.Config{
		StaticOrigin: a.cfg.Static.Origin,
		APIOrigin:    a.cfg.API.BaseURL,
	}, a.icpt, a.queue,
		proxy.WithSyncHandler(a.trigger.Handler()),
		proxy.WithStatus(func(ctx context.Context) (any, error) {
			return a.status(ctx, rt)
		}),
		proxy.WithLogger(a.logger),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid proxy config", err)
	}

	listen := opts.Listen
	if listen == "" {
		listen = a.cfg.Proxy.Listen
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if !opts.NoWatch {
		probe := bgsync.HTTPProbe(a.direct, a.cfg.API.BaseURL)
		go func() {
			if err := a.trigger.Watch(ctx, probe, a.cfg.Sync.ProbeInterval); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("connectivity watch stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	addr := ln.Addr().String()
	a.logger.Info("proxy listening", "addr", addr, "static", a.cfg.Static.Origin, "api", a.cfg.API.BaseURL)
	fmt.Fprintf(cmd.OutOrStdout(), "Proxy listening on http://%s\n", addr)
	if opts.ready != nil {
		opts.ready <- addr
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "proxy server error", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("proxy shutdown", "error", err)
	}
	a.logger.Info("proxy stopped gracefully")
	return nil
}
