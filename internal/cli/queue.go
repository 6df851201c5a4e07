package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/todosync/internal/model"
	"github.com/roach88/todosync/internal/queue"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay pending offline actions",
	}
	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueRemoveCommand(rootOpts))
	cmd.AddCommand(newQueueReplayCommand(rootOpts))
	return cmd
}

func newQueueListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List pending actions, oldest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			actions, err := a.queue.ListAll(commandContext(cmd.Context()))
			if err != nil {
				return storeError("failed to list actions", err)
			}
			if actions == nil {
				actions = []model.PendingAction{}
			}

			return newFormatter(opts, cmd).Success(actions, func(w io.Writer) {
				if len(actions) == 0 {
					fmt.Fprintln(w, "No pending actions.")
					return
				}
				for _, action := range actions {
					fmt.Fprintf(w, "%s  %s  %-6s %s\n",
						action.ID, action.EnqueuedAt.Format(time.RFC3339), action.Method, action.URL)
				}
			})
		},
	}
}

func newQueueRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <id>",
		Short:         "Drop a pending action without sending it",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.queue.Remove(commandContext(cmd.Context()), args[0]); err != nil {
				return storeError("failed to remove action", err)
			}
			return newFormatter(opts, cmd).Success(map[string]string{"removed": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Removed %s\n", args[0])
			})
		},
	}
}

// ReplayResult is the JSON payload of queue replay and sync.
type ReplayResult struct {
	Attempted int            `json:"attempted"`
	Succeeded []string       `json:"succeeded"`
	Failed    []ReplayFailed `json:"failed"`
}

// ReplayFailed describes one action left queued.
type ReplayFailed struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	URL    string `json:"url"`
	Error  string `json:"error"`
}

func newReplayResult(report queue.ReplayReport) ReplayResult {
	result := ReplayResult{
		Attempted: report.Attempted,
		Succeeded: report.Succeeded,
		Failed:    make([]ReplayFailed, 0, len(report.Failed)),
	}
	if result.Succeeded == nil {
		result.Succeeded = []string{}
	}
	for _, f := range report.Failed {
		result.Failed = append(result.Failed, ReplayFailed{
			ID:     f.Action.ID,
			Method: f.Action.Method,
			URL:    f.Action.URL,
			Error:  f.Err.Error(),
		})
	}
	return result
}

func writeReplayResult(opts *RootOptions, cmd *cobra.Command, report queue.ReplayReport) error {
	result := newReplayResult(report)
	if err := newFormatter(opts, cmd).Success(result, func(w io.Writer) {
		if result.Attempted == 0 {
			fmt.Fprintln(w, "Nothing to replay.")
			return
		}
		fmt.Fprintf(w, "Replayed %d of %d actions\n", len(result.Succeeded), result.Attempted)
		for _, f := range result.Failed {
			fmt.Fprintf(w, "  still queued: %s %s %s (%s)\n", f.ID, f.Method, f.URL, f.Error)
		}
	}); err != nil {
		return err
	}
	if len(result.Failed) > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d actions left queued", len(result.Failed)), errReplayIncomplete)
	}
	return nil
}

func newQueueReplayCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Send every pending action now",
		Long: `Send pending actions to the API in the order they were queued. Accepted
actions are removed; rejected or unreachable ones stay queued for the next
replay.

Exit codes:
  0 - Queue drained
  1 - Some actions are still queued
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.queue.ReplayAll(commandContext(cmd.Context()))
			if err != nil {
				return storeError("replay failed", err)
			}
			return writeReplayResult(opts, cmd, report)
		},
	}
}
