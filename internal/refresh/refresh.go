// Package refresh re-fetches stored questions by id and rewrites them
// through the update-only reconciliation path.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/authors"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/fetcher"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/reconcile"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
)

// DefaultBatchSize matches the REST lookup limit.
const DefaultBatchSize = 100

// Lookuper fetches the current state of questions by id.
type Lookuper interface {
	Lookup(ctx context.Context, ids []int64) ([]domain.Question, error)
}

// Options bound one refresh.
type Options struct {
	BatchSize    int
	MaxQuestions int
	Delay        time.Duration
	DryRun       bool
}

// Stats count what a refresh did.
type Stats struct {
	Processed int            `json:"processed"`
	Fetched   int            `json:"fetched"`
	Updated   int            `json:"updated"`
	Skipped   int            `json:"skipped"`
	Errors    int            `json:"errors"`
	Batches   int            `json:"batches"`
	Authors   authors.Counts `json:"authors"`
}

// Refresher walks the stored ids in batches.
type Refresher struct {
	lookup     Lookuper
	questions  store.QuestionStore
	reconciler *reconcile.Reconciler
	sleep      fetcher.Sleeper
	log        logger.Logger
}

// New creates a refresher writing through reconciler.
func New(lookup Lookuper, questions store.QuestionStore, reconciler *reconcile.Reconciler, log logger.Logger) *Refresher {
	return &Refresher{
		lookup:     lookup,
		questions:  questions,
		reconciler: reconciler,
		sleep:      fetcher.SleepContext,
		log:        log.With(logger.Component("refresh")),
	}
}

// WithSleeper replaces the inter-batch wait.
func (r *Refresher) WithSleeper(s fetcher.Sleeper) *Refresher {
	r.sleep = s
	return r
}

// Run refreshes every stored question, lowest id first. A failed lookup
// counts its batch as errors and moves on; cancellation stops the walk
// and returns the stats so far with the context error.
func (r *Refresher) Run(ctx context.Context, opts Options) (Stats, error) {
	var stats Stats
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	existing, err := r.questions.ExistingIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list stored questions: %w", err)
	}
	ids := existing.Sorted()
	if opts.MaxQuestions > 0 && len(ids) > opts.MaxQuestions {
		ids = ids[:opts.MaxQuestions]
	}

	r.log.Info("Starting refresh",
		logger.Int("questions", len(ids)),
		logger.Int("batch_size", opts.BatchSize),
		logger.Bool("dry_run", opts.DryRun),
	)

	for start := 0; start < len(ids); start += opts.BatchSize {
		if start > 0 && opts.Delay > 0 {
			if sleepErr := r.sleep(ctx, opts.Delay); sleepErr != nil {
				return stats, sleepErr
			}
		}

		batch := ids[start:min(start+opts.BatchSize, len(ids))]
		stats.Batches++
		stats.Processed += len(batch)

		if batchErr := r.refreshBatch(ctx, batch, existing, opts.DryRun, &stats); batchErr != nil {
			return stats, batchErr
		}
	}

	r.log.Info("Refresh complete",
		logger.Int("processed", stats.Processed),
		logger.Int("updated", stats.Updated),
		logger.Int("skipped", stats.Skipped),
		logger.Int("errors", stats.Errors),
	)
	return stats, nil
}

// refreshBatch only returns an error when the run must stop. Update-only
// writes never add ids, so the snapshot taken by Run stays valid.
func (r *Refresher) refreshBatch(ctx context.Context, batch []int64, existing domain.IDSet, dryRun bool, stats *Stats) error {
	questions, err := r.lookup.Lookup(ctx, batch)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		r.log.Warn("Batch lookup failed",
			logger.Int64("first_id", batch[0]),
			logger.Int("size", len(batch)),
			logger.Error(err),
		)
		stats.Errors += len(batch)
		return nil
	}

	stats.Fetched += len(questions)
	stats.Skipped += len(batch) - len(questions)
	if dryRun || len(questions) == 0 {
		return nil
	}

	out, err := r.reconciler.ReconcileAgainst(ctx, questions, domain.ModeUpdateOnly, existing)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("failed to write refreshed batch: %w", err)
	}

	stats.Updated += out.Stored
	stats.Skipped += out.Filtered
	stats.Errors += out.WriteErrors
	stats.Authors.New += out.Authors.New
	stats.Authors.Updated += out.Authors.Updated
	stats.Authors.Skipped += out.Authors.Skipped
	stats.Authors.Errors += out.Authors.Errors
	return nil
}
