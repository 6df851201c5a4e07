package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/todosync/internal/bgsync"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [tag]",
		Short: "Fire a background sync signal",
		Long: `Deliver a background sync signal. When the tag matches sync.tag (default
"sync-todos") every pending action is replayed; other tags are ignored.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			tag := a.trigger.Tag()
			if len(args) == 1 {
				tag = args[0]
			}

			report, err := a.trigger.Handle(commandContext(cmd.Context()), tag)
			if errors.Is(err, bgsync.ErrUnknownTag) {
				return WrapExitError(ExitCommandError, "sync ignored", err)
			}
			if err != nil {
				return storeError("sync failed", err)
			}
			return writeReplayResult(rootOpts, cmd, report)
		},
	}
}
