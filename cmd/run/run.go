// Package run implements the run command: one fetch, reconcile and analysis pass.
package run

import (
	"fmt"

	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/north-cloud/so-ingestor/cmd/common"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/source"
)

// Overrides are the run flags layered over the configuration.
type Overrides struct {
	MaxQuestions  int
	Tags          []string
	UseAPI        bool
	Mode          string
	AnalysisScope string
	NoAnalysis    bool
}

// Apply writes the set overrides into cfg. Zero values leave cfg alone.
func (o Overrides) Apply(cfg *config.Config) error {
	if o.MaxQuestions > 0 {
		cfg.Source.MaxQuestions = o.MaxQuestions
	}
	if len(o.Tags) > 0 {
		cfg.Source.Tags = []string(domain.NewTags(o.Tags...))
	}
	if o.UseAPI {
		cfg.Source.Kind = source.KindAPI
	}
	if o.Mode != "" {
		mode, err := domain.ParseReconciliationMode(o.Mode)
		if err != nil {
			return err
		}
		cfg.Run.Mode = mode
	}
	if o.AnalysisScope != "" {
		sc, err := domain.ParseAnalysisScope(o.AnalysisScope)
		if err != nil {
			return err
		}
		cfg.Run.AnalysisScope = sc
	}
	if o.NoAnalysis {
		cfg.Run.AnalysisEnabled = false
	}
	return nil
}

// Command returns the run command for use in the root command.
func Command() *cobra.Command {
	var o Overrides

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, store and analyze recent questions",
		Long: `Fetch up to --max-questions recent questions from the configured source,
reconcile them into the store under --mode, then hand the analysis scope to the
configured analyzers.

Modes:
  upsert       insert new questions and replace existing ones
  update       replace existing questions only
  append-only  insert new questions only

Analysis scopes:
  all       analyze every stored question
  new-only  analyze only questions this run made new`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := cmdcommon.NewCommandDeps(cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer func() { _ = deps.Logger.Sync() }()

			if applyErr := o.Apply(deps.Config); applyErr != nil {
				return applyErr
			}
			if validateErr := deps.Config.Validate(); validateErr != nil {
				return validateErr
			}

			orch, err := cmdcommon.NewOrchestrator(cmd.Context(), deps, nil)
			if err != nil {
				return fmt.Errorf("failed to construct pipeline: %w", err)
			}

			summary, runErr := orch.Run(cmd.Context(), cmdcommon.NewRequest(deps.Config))
			out := cmd.OutOrStdout()
			if summary.RunID != "" {
				cmdcommon.RenderSummary(out, summary)
				cmdcommon.PrintStatus(out, summary, orch.AuditPath())
			}
			return runErr
		},
	}

	cmd.Flags().IntVar(&o.MaxQuestions, "max-questions", 0, "maximum number of questions to fetch (default from config)")
	cmd.Flags().StringSliceVar(&o.Tags, "tags", nil, "only fetch questions carrying all of these tags")
	cmd.Flags().BoolVar(&o.UseAPI, "use-api", false, "use the Stack Exchange REST API instead of listing pages")
	cmd.Flags().StringVar(&o.Mode, "mode", "", "reconciliation mode: upsert, update or append-only")
	cmd.Flags().StringVar(&o.AnalysisScope, "analysis-scope", "", "analysis scope: all or new-only")
	cmd.Flags().BoolVar(&o.NoAnalysis, "no-analysis", false, "skip the analysis handoff")

	return cmd
}
