// Package authors maintains the denormalized author aggregate.
package authors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
)

// Classification is what one author write did.
type Classification string

const (
	New     Classification = "new"
	Updated Classification = "updated"
	Skipped Classification = "skipped"
)

// Counts tallies classifications over a batch.
type Counts struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Add records one classification.
func (c *Counts) Add(cl Classification) {
	switch cl {
	case New:
		c.New++
	case Updated:
		c.Updated++
	case Skipped:
		c.Skipped++
	}
}

// Aggregator records authors of stored questions.
type Aggregator struct {
	store store.AuthorStore
	log   logger.Logger
	now   func() time.Time
}

// NewAggregator creates an aggregator writing to st.
func NewAggregator(st store.AuthorStore, log logger.Logger) *Aggregator {
	return &Aggregator{store: st, log: log.With(logger.Component("authors")), now: time.Now}
}

// WithClock overrides the clock used for first/last seen.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// RecordAuthor upserts the author keyed by name and increments its question
// count. New versus Updated comes from the write result, never a pre-read.
// Empty and sentinel names are skipped without touching the store.
func (a *Aggregator) RecordAuthor(ctx context.Context, name string, reputation int, profileURL string) (Classification, error) {
	if !domain.IsKnownAuthor(name) {
		return Skipped, nil
	}
	name = strings.TrimSpace(name)

	res, err := a.store.UpsertAuthor(ctx, store.AuthorWrite{
		Name:       name,
		Reputation: reputation,
		ProfileURL: profileURL,
		SeenAt:     a.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("record author %q: %w", name, err)
	}

	if res.Inserted {
		a.log.Debug("New author", logger.String("author", name))
		return New, nil
	}
	a.log.Debug("Author updated", logger.String("author", name), logger.Int("question_count", res.QuestionCount))
	return Updated, nil
}

// Record is RecordAuthor for the author fields of q.
func (a *Aggregator) Record(ctx context.Context, q domain.Question) (Classification, error) {
	if !q.HasKnownAuthor() {
		return Skipped, nil
	}
	return a.RecordAuthor(ctx, q.AuthorName, q.AuthorReputation, q.AuthorProfileURL)
}
