package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/todosync/internal/realtime"
	"github.com/roach88/todosync/internal/tasks"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Count int
}

// WatchEvent is one line of watch output in JSON mode.
type WatchEvent struct {
	Type string          `json:"type"`
	Task *tasks.Task     `json:"task,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print realtime task events",
		Long: `Connect to the realtime channel and print task events until interrupted.
The channel reconnects after a drop, up to realtime.max_attempts times.

Example:
  todosync watch
  todosync watch --format json --count 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 0, "exit after this many events (0 = run until interrupted)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.newRealtime()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context(), a.logger)
	defer cancel()

	out := cmd.OutOrStdout()
	var (
		mu        sync.Mutex
		seen      int
		exhausted bool
	)
	onMessage := func(msg realtime.Message) {
		mu.Lock()
		defer mu.Unlock()
		if opts.Count > 0 && seen >= opts.Count {
			return
		}
		printEvent(out, opts.Format, msg)
		seen++
		if opts.Count > 0 && seen >= opts.Count {
			cancel()
		}
	}
	onError := func(err error) {
		a.logger.Warn("realtime error", "error", err)
		if errors.Is(err, realtime.ErrReconnectExhausted) {
			mu.Lock()
			exhausted = true
			mu.Unlock()
			cancel()
		}
	}

	if err := m.Connect(ctx, onMessage, onError); err != nil {
		a.logger.Warn("realtime connect failed, retrying", "error", err)
	}
	defer m.Disconnect()

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	if exhausted {
		return WrapExitError(ExitFailure, "realtime channel closed", realtime.ErrReconnectExhausted)
	}
	return nil
}

func printEvent(w io.Writer, format string, msg realtime.Message) {
	ev, decodeErr := tasks.DecodeEvent(msg)

	if format == "json" {
		line := WatchEvent{Type: msg.Type, Data: msg.Data}
		if decodeErr == nil {
			line.Task = &ev.Task
			line.Data = nil
		}
		_ = json.NewEncoder(w).Encode(line)
		return
	}

	if decodeErr != nil {
		fmt.Fprintf(w, "%s %s\n", msg.Type, string(msg.Data))
		return
	}
	status := " "
	if ev.Task.Completed {
		status = "x"
	}
	fmt.Fprintf(w, "%s [%s] %s %s\n", ev.Type, status, ev.Task.ID, ev.Task.Title)
}
