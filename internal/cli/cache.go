package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cache partitions",
	}
	cmd.AddCommand(newCacheInstallCommand(rootOpts))
	cmd.AddCommand(newCacheActivateCommand(rootOpts))
	cmd.AddCommand(newCacheListCommand(rootOpts))
	return cmd
}

// CacheInstallResult is the JSON payload of cache install.
type CacheInstallResult struct {
	Partition string   `json:"partition"`
	Assets    []string `json:"assets"`
}

func newCacheInstallCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Pre-cache the static asset manifest",
		Long: `Fetch every path in static.manifest from the static origin and store the
responses in the current static partition. Nothing is stored unless every
asset answers 200.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd.Context())
			if err := a.cache.Install(ctx, a.direct, a.cfg.Static.Origin, a.cfg.Static.Manifest); err != nil {
				return WrapExitError(ExitFailure, "install failed", err)
			}

			result := CacheInstallResult{Partition: a.cache.Names().Static, Assets: a.cfg.Static.Manifest}
			return newFormatter(opts, cmd).Success(result, func(w io.Writer) {
				fmt.Fprintf(w, "Cached %d assets in %s\n", len(result.Assets), result.Partition)
			})
		},
	}
}

// CacheActivateResult is the JSON payload of cache activate.
type CacheActivateResult struct {
	Active  []string `json:"active"`
	Deleted []string `json:"deleted"`
}

func newCacheActivateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "activate",
		Short:         "Delete cache partitions from other versions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			deleted, err := a.cache.Activate(commandContext(cmd.Context()))
			if err != nil {
				return storeError("activation incomplete", err)
			}
			if deleted == nil {
				deleted = []string{}
			}

			names := a.cache.Names()
			result := CacheActivateResult{Active: []string{names.Static, names.Dynamic}, Deleted: deleted}
			return newFormatter(opts, cmd).Success(result, func(w io.Writer) {
				if len(deleted) == 0 {
					fmt.Fprintln(w, "No stale partitions.")
					return
				}
				for _, name := range deleted {
					fmt.Fprintf(w, "Deleted %s\n", name)
				}
			})
		},
	}
}

// CachePartition summarizes one partition for cache list.
type CachePartition struct {
	Name    string   `json:"name"`
	Active  bool     `json:"active"`
	Entries []string `json:"entries"`
}

func newCacheListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List cache partitions and their entries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd.Context())
			names, err := a.cache.Partitions(ctx)
			if err != nil {
				return storeError("failed to list partitions", err)
			}

			partitions := make([]CachePartition, 0, len(names))
			for _, name := range names {
				entries, err := a.cache.Entries(ctx, name)
				if err != nil {
					return storeError("failed to list entries", err)
				}
				p := CachePartition{Name: name, Active: a.cache.Names().Has(name), Entries: make([]string, 0, len(entries))}
				for _, e := range entries {
					p.Entries = append(p.Entries, e.Key)
				}
				partitions = append(partitions, p)
			}

			return newFormatter(opts, cmd).Success(partitions, func(w io.Writer) {
				if len(partitions) == 0 {
					fmt.Fprintln(w, "No cache partitions.")
					return
				}
				for _, p := range partitions {
					marker := ""
					if !p.Active {
						marker = " (stale)"
					}
					fmt.Fprintf(w, "%s%s: %d entries\n", p.Name, marker, len(p.Entries))
					for _, key := range p.Entries {
						fmt.Fprintf(w, "  %s\n", key)
					}
				}
			})
		},
	}
}
