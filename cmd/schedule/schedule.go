// Package schedule implements the schedule command, which repeats the run
// pipeline on a cron expression until interrupted.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/north-cloud/so-ingestor/cmd/common"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

// RunFunc performs one scheduled run.
type RunFunc func(ctx context.Context) error

// Scheduler fires a RunFunc on a cron schedule. Overlapping runs are skipped.
type Scheduler struct {
	cron *cron.Cron
	log  logger.Logger
}

// NewParser accepts standard five-field expressions and descriptors such as @hourly.
func NewParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// New schedules fn on spec. Each invocation gets ctx.
func New(ctx context.Context, spec string, fn RunFunc, log logger.Logger) (*Scheduler, error) {
	log = log.With(logger.Component("schedule"))
	cl := cronLogger{log: log}

	c := cron.New(
		cron.WithParser(NewParser()),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, func() {
		if err := fn(ctx); err != nil {
			log.Error("Scheduled run failed", logger.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, log: log}, nil
}

// Next is the next activation time.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Run starts the scheduler and blocks until ctx is done, then waits for a
// running job up to the shutdown timeout.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.Info("Scheduler started", logger.Time("next_run", s.Next()))

	<-ctx.Done()
	s.log.Info("Stopping scheduler")

	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(shutdownTimeout):
		s.log.Warn("Timed out waiting for running job", logger.Duration("timeout", shutdownTimeout))
	}
	return nil
}

// Command returns the schedule command for use in the root command.
func Command() *cobra.Command {
	var (
		spec   string
		runNow bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the ingestion pipeline on a cron schedule",
		Long: `Repeat the run pipeline on the configured cron expression (schedule.cron)
until interrupted. Every run gets its own source, store connection and audit
artifact; a run still in progress when the next one is due is not overlapped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := cmdcommon.NewCommandDeps(cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer func() { _ = deps.Logger.Sync() }()

			if validateErr := deps.Config.Validate(); validateErr != nil {
				return validateErr
			}
			if spec == "" {
				spec = deps.Config.Schedule.Cron
			}

			runOnce := runner(cmd, deps, metrics.NewRecorder(deps.Config.Metrics))
			ctx := cmd.Context()
			sched, err := New(ctx, spec, runOnce, deps.Logger)
			if err != nil {
				return err
			}

			if runNow {
				if runErr := runOnce(ctx); runErr != nil {
					deps.Logger.Error("Initial run failed", logger.Error(runErr))
				}
			}
			return sched.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "", "cron expression (default from schedule.cron)")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run once immediately before waiting for the schedule")

	return cmd
}

// runner builds a fresh orchestrator per invocation and logs the outcome
// through the logger carried by the run context.
func runner(cmd *cobra.Command, deps cmdcommon.CommandDeps, recorder *metrics.Recorder) RunFunc {
	return func(ctx context.Context) error {
		log := logger.FromContext(ctx)

		orch, err := cmdcommon.NewOrchestrator(ctx, deps, recorder)
		if err != nil {
			return err
		}
		summary, runErr := orch.Run(ctx, cmdcommon.NewRequest(deps.Config))
		if summary.RunID != "" {
			cmdcommon.PrintStatus(cmd.OutOrStdout(), summary, orch.AuditPath())
			log.Info("Scheduled run finished",
				logger.String("run_id", summary.RunID),
				logger.String("state", summary.State),
				logger.Int("stored", summary.Counts.Stored),
			)
		}
		return runErr
	}
}

