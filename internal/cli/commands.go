package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcncl/river-ls/internal/parser"
	"github.com/mcncl/river-ls/internal/registry"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// Printing the version needs neither options nor a logger.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "river-ls %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", date)
		},
	}
}

func newWarmCacheCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "warm-cache",
		Short: "Build the schema for the configured version and write it to the cache",
		Long: `Builds the component schema for --schema-version from the configured
source and stores it in the cache directory, so that the server starts
without fetching documentation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.opts.NoCache {
				return fmt.Errorf("warm-cache cannot be used with --no-cache")
			}

			c := a.newCache()
			if c.Dir() == "" {
				return fmt.Errorf("warm-cache needs a cache directory; --source %s caches in memory only", a.opts.Source)
			}
			store, err := a.newStore(c)
			if err != nil {
				return err
			}
			defer store.Close()

			start := time.Now()
			snapshot, err := store.Rebuild(cmd.Context(), a.opts.SchemaVersion)
			if err != nil {
				return err
			}

			origin := "built"
			if snapshot.FromCache {
				origin = "already cached"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d components %s in %s (%s)\n",
				snapshot.Version, snapshot.Registry.Len(), origin, time.Since(start).Round(time.Millisecond), c.Dir())
			return nil
		},
	}
}

func newComponentsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "components",
		Short: "List the components the configured source yields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := a.newSource()
			if err != nil {
				return err
			}

			bundle, err := src.Fetch(cmd.Context(), a.opts.SchemaVersion)
			if err != nil {
				return err
			}

			schemas, err := parser.BuildRegistry(bundle.Shared, bundle.Components)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			if schemas.Len() == 0 {
				return fmt.Errorf("version %s: %w", a.opts.SchemaVersion, registry.ErrEmpty)
			}

			for _, name := range schemas.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
