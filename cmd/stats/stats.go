// Package stats implements the stats command, which reports what the store
// holds and optionally the newest run artifact.
package stats

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/north-cloud/so-ingestor/cmd/common"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/audit"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
)

// Report prints the store table and up to top authors.
func Report(ctx context.Context, w io.Writer, st store.Store, top int) error {
	stats, err := st.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store stats: %w", err)
	}
	authors, err := st.TopAuthors(ctx, top)
	if err != nil {
		return fmt.Errorf("failed to list top authors: %w", err)
	}
	cmdcommon.RenderStoreStats(w, stats, authors)
	return nil
}

// LastRun prints the newest artifact under dir. An empty dir is reported, not failed.
func LastRun(w io.Writer, dir string) error {
	path, err := audit.Latest(dir)
	if errors.Is(err, audit.ErrNoRuns) {
		color.New(color.FgHiBlack).Fprintf(w, "no run artifacts in %s\n", dir)
		return nil
	}
	if err != nil {
		return err
	}

	summary, err := audit.Read(path)
	if err != nil {
		return err
	}
	cmdcommon.RenderSummary(w, summary)
	cmdcommon.PrintStatus(w, summary, path)
	return nil
}

// Command returns the stats command for use in the root command.
func Command() *cobra.Command {
	var (
		top     int
		lastRun bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stored question and author counts",
		Long: `Print the number of stored questions and authors, the first and last
publication dates and the most active authors. With --last-run, also print
the newest run artifact from run.audit_dir.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := cmdcommon.NewCommandDeps(cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer func() { _ = deps.Logger.Sync() }()

			if validateErr := deps.Config.Store.Validate(); validateErr != nil {
				return validateErr
			}
			if top <= 0 {
				top = deps.Config.Analysis.TopAuthors
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

			out := cmd.OutOrStdout()
			if reportErr := Report(ctx, out, st, top); reportErr != nil {
				return reportErr
			}
			if lastRun {
				return LastRun(out, deps.Config.Run.AuditDir)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 0, "number of authors to list (default from analysis.top_authors)")
	cmd.Flags().BoolVar(&lastRun, "last-run", false, "also print the newest run artifact")

	return cmd
}
