// Package refresh implements the refresh command, which re-fetches stored
// questions through the REST lookup and rewrites them in update mode.
package refresh

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/north-cloud/so-ingestor/cmd/common"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/authors"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/reconcile"
	refreshpkg "github.com/jonesrussell/north-cloud/so-ingestor/internal/refresh"
)

// Command returns the refresh command for use in the root command.
func Command() *cobra.Command {
	var opts refreshpkg.Options

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-fetch stored questions and update their counts",
		Long: `Walk every stored question id in batches, look the questions up through the
Stack Exchange REST API and rewrite them in update mode. Questions no longer
returned upstream are left untouched and counted as skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := cmdcommon.NewCommandDeps(cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer func() { _ = deps.Logger.Sync() }()

			if validateErr := deps.Config.Store.Validate(); validateErr != nil {
				return validateErr
			}

			ctx := cmd.Context()
			st, err := cmdcommon.OpenStore(ctx, deps.Config.Store)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := st.Close(); closeErr != nil {
					deps.Logger.Warn("Failed to close store", logger.Error(closeErr))
				}
			}()

			api, err := cmdcommon.NewAPISource(deps.Config, deps.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = api.Close() }()

			rec := reconcile.New(st, authors.NewAggregator(st, deps.Logger), deps.Logger)
			stats, runErr := refreshpkg.New(api, st, rec, deps.Logger).Run(ctx, opts)

			cmdcommon.RenderRefreshStats(cmd.OutOrStdout(), stats, opts.DryRun)
			return runErr
		},
	}

	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", refreshpkg.DefaultBatchSize, "questions per lookup request (at most 100)")
	cmd.Flags().IntVar(&opts.MaxQuestions, "max-questions", 0, "refresh at most this many questions (0 = all)")
	cmd.Flags().DurationVar(&opts.Delay, "delay", time.Second, "wait between batches")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "look questions up without writing")

	return cmd
}
