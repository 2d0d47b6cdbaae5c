// Package reconcile persists a fetched batch under a reconciliation mode.
package reconcile

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/authors"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
)

// Outcome summarizes one reconciliation.
type Outcome struct {
	// Stored counts successful question writes.
	Stored int `json:"stored"`
	// WrittenIDs holds the ids written successfully.
	WrittenIDs domain.IDSet `json:"written_ids"`
	// PriorExisting is the existing-id snapshot taken before filtering.
	PriorExisting domain.IDSet `json:"-"`
	// Filtered counts records dropped by the mode.
	Filtered    int            `json:"filtered"`
	WriteErrors int            `json:"write_errors"`
	Inserted    int            `json:"inserted"`
	Replaced    int            `json:"replaced"`
	Drift       int            `json:"drift"`
	Authors     authors.Counts `json:"authors"`
}

// Reconciler writes question batches and feeds the author aggregate.
type Reconciler struct {
	questions store.QuestionStore
	authors   *authors.Aggregator
	log       logger.Logger
}

// New creates a reconciler. agg may be nil to skip author aggregation.
func New(questions store.QuestionStore, agg *authors.Aggregator, log logger.Logger) *Reconciler {
	return &Reconciler{questions: questions, authors: agg, log: log.With(logger.Component("reconcile"))}
}

// Select returns the records mode allows given the existing-id snapshot,
// in batch order, and the number dropped.
func Select(batch []domain.Question, mode domain.ReconciliationMode, existing domain.IDSet) ([]domain.Question, int) {
	out := make([]domain.Question, 0, len(batch))
	for _, q := range batch {
		switch mode {
		case domain.ModeUpdateOnly:
			if !existing.Has(q.ID) {
				continue
			}
		case domain.ModeAppendOnly:
			if existing.Has(q.ID) {
				continue
			}
		}
		out = append(out, q)
	}
	return out, len(batch) - len(out)
}

// Reconcile snapshots the stored ids, filters batch by mode and upserts each
// remaining record independently. A failed write is counted and skipped; only
// a snapshot failure or cancellation returns an error.
func (r *Reconciler) Reconcile(ctx context.Context, batch []domain.Question, mode domain.ReconciliationMode) (Outcome, error) {
	existing, err := r.questions.ExistingIDs(ctx)
	if err != nil {
		return Outcome{WrittenIDs: domain.NewIDSet()}, fmt.Errorf("reconcile: load existing ids: %w", err)
	}
	return r.ReconcileAgainst(ctx, batch, mode, existing)
}

// ReconcileAgainst is Reconcile with a snapshot the caller already holds.
// The snapshot is only read.
func (r *Reconciler) ReconcileAgainst(
	ctx context.Context,
	batch []domain.Question,
	mode domain.ReconciliationMode,
	existing domain.IDSet,
) (Outcome, error) {
	out := Outcome{WrittenIDs: domain.NewIDSet(), PriorExisting: existing}

	toWrite, filtered := Select(batch, mode, existing)
	out.Filtered = filtered

	r.log.Info("Reconciling batch",
		logger.String("mode", mode.String()),
		logger.Int("batch", len(batch)),
		logger.Int("existing", existing.Len()),
		logger.Int("to_write", len(toWrite)),
		logger.Int("filtered", filtered),
	)

	for _, q := range toWrite {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, fmt.Errorf("reconcile: interrupted after %d writes: %w", out.Stored, ctxErr)
		}
		r.write(ctx, q, mode, &out)
	}

	r.log.Info("Batch reconciled",
		logger.Int("stored", out.Stored),
		logger.Int("inserted", out.Inserted),
		logger.Int("replaced", out.Replaced),
		logger.Int("write_errors", out.WriteErrors),
		logger.Int("drift", out.Drift),
		logger.Int("new_authors", out.Authors.New),
		logger.Int("updated_authors", out.Authors.Updated),
	)
	return out, nil
}

func (r *Reconciler) write(ctx context.Context, q domain.Question, mode domain.ReconciliationMode, out *Outcome) {
	res, err := r.questions.UpsertQuestion(ctx, q)
	if err != nil {
		out.WriteErrors++
		r.log.Warn("Question write failed", logger.Int64("question_id", q.ID), logger.Error(err))
		return
	}

	out.Stored++
	out.WrittenIDs.Add(q.ID)
	if res.Inserted {
		out.Inserted++
	} else {
		out.Replaced++
	}

	if (mode == domain.ModeAppendOnly && !res.Inserted) || (mode == domain.ModeUpdateOnly && res.Inserted) {
		out.Drift++
		r.log.Warn("Write contradicts existing-id snapshot",
			logger.Int64("question_id", q.ID),
			logger.String("mode", mode.String()),
			logger.Bool("inserted", res.Inserted),
		)
	}

	if r.authors == nil {
		return
	}
	cl, err := r.authors.Record(ctx, q)
	if err != nil {
		out.Authors.Errors++
		r.log.Warn("Author write failed", logger.Int64("question_id", q.ID), logger.Error(err))
		return
	}
	out.Authors.Add(cl)
}
