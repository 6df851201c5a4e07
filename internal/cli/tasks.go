package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/todosync/internal/tasks"
)

// TasksListOptions holds flags for tasks list.
type TasksListOptions struct {
	*RootOptions
	Params tasks.ListParams
}

// NewTasksCommand creates the tasks command group.
func NewTasksCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Read tasks through the offline cache",
	}
	cmd.AddCommand(newTasksListCommand(rootOpts))
	return cmd
}

func newTasksListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TasksListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of tasks",
		Long: `List tasks from the API. When the API is unreachable the last cached page
is shown, or an empty offline page if nothing was cached.

Example:
  todosync tasks list --status incomplete --search milk
  todosync tasks list --page 2 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTasksList(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Params.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&opts.Params.Limit, "limit", tasks.DefaultLimit, "page size")
	cmd.Flags().StringVar(&opts.Params.Search, "search", "", "search title and description")
	cmd.Flags().StringVar(&opts.Params.Status, "status", "", "completed|incomplete")
	cmd.Flags().StringVar(&opts.Params.Category, "category", "", "filter by category")
	cmd.Flags().StringVar(&opts.Params.Priority, "priority", "", "filter by priority")

	return cmd
}

func runTasksList(opts *TasksListOptions, cmd *cobra.Command) error {
	switch opts.Params.Status {
	case "", tasks.StatusCompleted, tasks.StatusIncomplete:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q: must be completed or incomplete", opts.Params.Status))
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	page, err := a.tasks.List(commandContext(cmd.Context()), opts.Params)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list tasks", err)
	}

	return newFormatter(opts.RootOptions, cmd).Success(page, func(w io.Writer) {
		if page.Offline {
			fmt.Fprintln(w, page.Message)
		}
		if len(page.Data) == 0 {
			fmt.Fprintln(w, "No tasks.")
			return
		}
		for _, t := range page.Data {
			status := " "
			if t.Completed {
				status = "x"
			}
			fmt.Fprintf(w, "[%s] %-6s %s\n", status, t.ID, t.Title)
		}
		fmt.Fprintf(w, "Page %d of %d (%d tasks)\n", page.Page, page.TotalPages, page.Total)
	})
}
