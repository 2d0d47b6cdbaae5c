// Package store defines the persistence contract consumed by reconciliation,
// author aggregation and analysis.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
)

// ErrNotFound is returned when a keyed lookup matches nothing.
var ErrNotFound = errors.New("not found")

// WriteResult reports what an upsert did.
type WriteResult struct {
	// Inserted is true when the write created the row rather than replacing it.
	Inserted bool
	// QuestionCount is the author counter after the write. Zero for question writes.
	QuestionCount int
}

// AuthorWrite carries the latest author values seen on a stored question.
type AuthorWrite struct {
	Name       string
	Reputation int
	ProfileURL string
	SeenAt     time.Time
}

// Stats summarizes what a store holds.
type Stats struct {
	Questions int64 `json:"questions"`
	Authors   int64 `json:"authors"`
	// EarliestPublication and LatestPublication are nil when no stored
	// question carries a publication date.
	EarliestPublication *time.Time `json:"earliest_publication,omitempty"`
	LatestPublication   *time.Time `json:"latest_publication,omitempty"`
}

// QuestionStore persists questions keyed by id.
type QuestionStore interface {
	// ExistingIDs returns the id projection of every stored question.
	ExistingIDs(ctx context.Context) (domain.IDSet, error)
	// FindByID returns ErrNotFound when id is not stored.
	FindByID(ctx context.Context, id int64) (*domain.Question, error)
	// FindByIDs returns the stored questions for ids. A nil slice means all.
	FindByIDs(ctx context.Context, ids []int64) ([]domain.Question, error)
	// UpsertQuestion inserts or fully replaces the document keyed by q.ID.
	UpsertQuestion(ctx context.Context, q domain.Question) (WriteResult, error)
	// DeleteAllQuestions removes every question and returns the count removed.
	DeleteAllQuestions(ctx context.Context) (int64, error)
}

// AuthorStore persists the author aggregate keyed by display name.
type AuthorStore interface {
	// UpsertAuthor creates the author or refreshes it, incrementing
	// question_count by one in the same write.
	UpsertAuthor(ctx context.Context, w AuthorWrite) (WriteResult, error)
	FindAuthor(ctx context.Context, name string) (*domain.Author, error)
	TopAuthors(ctx context.Context, limit int) ([]domain.Author, error)
	DeleteAllAuthors(ctx context.Context) (int64, error)
}

// Store is the full persistence surface owned by one run.
type Store interface {
	QuestionStore
	AuthorStore
	// Stats counts questions and authors and finds the publication range.
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
