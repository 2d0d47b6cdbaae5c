// Package source turns a page of an external record set into canonical
// questions. Two sources exist: the Stack Exchange REST API and the
// Stack Overflow question listing pages.
package source

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
)

// Query describes what a fetch wants.
type Query struct {
	// MaxCount is the number of records requested.
	MaxCount int
	// Tags filters results to questions carrying every tag.
	Tags []string
}

// PageKind is the outcome class of one page request.
type PageKind int

const (
	// PageSuccess carries items (possibly fewer than a full page).
	PageSuccess PageKind = iota
	// PageEmpty marks the end of the result set.
	PageEmpty
	// PageTransientError marks a timeout, reset or throttled request.
	PageTransientError
	// PagePermanentError marks a bad status or an unparseable payload.
	PagePermanentError
)

func (k PageKind) String() string {
	switch k {
	case PageSuccess:
		return "success"
	case PageEmpty:
		return "empty"
	case PageTransientError:
		return "transient_error"
	case PagePermanentError:
		return "permanent_error"
	default:
		return "unknown"
	}
}

// PageResult is the tagged result of one page request.
type PageResult struct {
	Kind PageKind
	// Page is the 1-based page number requested.
	Page  int
	Items []domain.Question
	// Skipped counts records on the page that failed extraction.
	Skipped int
	// Backoff is a source-requested minimum wait before the next request.
	Backoff time.Duration
	// Err is set for the error kinds.
	Err error
}

// Success builds a PageSuccess result.
func Success(page int, items []domain.Question, skipped int) PageResult {
	return PageResult{Kind: PageSuccess, Page: page, Items: items, Skipped: skipped}
}

// Empty builds a PageEmpty result.
func Empty(page int) PageResult {
	return PageResult{Kind: PageEmpty, Page: page}
}

// Failure builds an error result, picking the kind from err's classification.
func Failure(page int, err error) PageResult {
	kind := PagePermanentError
	if IsTransient(err) {
		kind = PageTransientError
	}
	return PageResult{Kind: kind, Page: page, Err: err}
}

// Cursor walks the pages of one query.
type Cursor interface {
	// NextPage requests the next page. It never returns a Go error; failures
	// are carried in the result.
	NextPage(ctx context.Context) PageResult
}

// Source opens cursors and owns the network session they share.
type Source interface {
	Name() string
	Open(q Query) Cursor
	// PageDelay is the wait the fetch engine applies after a successful page.
	PageDelay() time.Duration
	// Close releases the network session.
	Close() error
}
