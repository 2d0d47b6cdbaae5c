// Package fetcher drives a source across pages until a stop condition,
// throttling between pages and failing soft on page errors.
package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/source"
)

// StopReason records why the page loop ended.
type StopReason string

const (
	StopCountReached   StopReason = "count_reached"
	StopEndOfResults   StopReason = "end_of_results"
	StopTransientError StopReason = "transient_error"
	StopPermanentError StopReason = "permanent_error"
	StopMaxPages       StopReason = "max_pages"
	StopCancelled      StopReason = "cancelled"
)

// Result is the outcome of one fetch.
type Result struct {
	// Questions preserves source page order, first occurrence wins.
	Questions []domain.Question
	// Partial is true when the loop was cut short by an error or cancellation.
	Partial    bool
	StopReason StopReason
	// Pages counts successful pages.
	Pages      int
	Skipped    int
	Duplicates int
	// Err is the page error or context error that stopped the loop, if any.
	Err error
}

// IDs returns the fetched id set.
func (r Result) IDs() domain.IDSet {
	return domain.NewIDSet(domain.IDs(r.Questions)...)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option configures an Engine.
type Option func(*Engine)

// WithMaxPages bounds the number of successful pages. Zero means unbounded.
func WithMaxPages(n int) Option {
	return func(e *Engine) { e.maxPages = n }
}

// WithSleeper replaces the throttle wait.
func WithSleeper(s Sleeper) Option {
	return func(e *Engine) { e.sleep = s }
}

// Engine fetches questions from one source.
type Engine struct {
	src      source.Source
	log      logger.Logger
	maxPages int
	sleep    Sleeper
}

// New creates an engine over src.
func New(src source.Source, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		src:   src,
		log:   log.With(logger.Component("fetcher"), logger.String("source", src.Name())),
		sleep: SleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fetch walks pages until maxCount questions are collected, the source runs
// dry, a page fails or ctx is cancelled. Page failures never surface as a
// Go error: the accumulated questions are returned with Partial set.
func (e *Engine) Fetch(ctx context.Context, maxCount int, tags []string) Result {
	var res Result
	if maxCount <= 0 {
		res.StopReason = StopCountReached
		return res
	}

	cursor := e.src.Open(source.Query{MaxCount: maxCount, Tags: tags})
	seen := domain.NewIDSet()
	res.Questions = make([]domain.Question, 0, maxCount)

	for res.StopReason == "" {
		if err := ctx.Err(); err != nil {
			e.stopCancelled(&res, err)
			break
		}

		page := cursor.NextPage(ctx)
		switch page.Kind {
		case source.PageSuccess:
			e.accept(&res, seen, page)

			switch {
			case len(res.Questions) >= maxCount:
				res.StopReason = StopCountReached
			case e.maxPages > 0 && res.Pages >= e.maxPages:
				res.StopReason = StopMaxPages
			default:
				wait := max(e.src.PageDelay(), page.Backoff)
				if err := e.sleep(ctx, wait); err != nil {
					e.stopCancelled(&res, err)
				}
			}

		case source.PageEmpty:
			res.StopReason = StopEndOfResults

		case source.PageTransientError, source.PagePermanentError:
			if ctxErr := ctx.Err(); ctxErr != nil {
				e.stopCancelled(&res, ctxErr)
				break
			}
			e.stopOnError(&res, page)
		}
	}

	if len(res.Questions) > maxCount {
		res.Questions = res.Questions[:maxCount]
	}

	e.log.Info("Fetch finished",
		logger.Int("questions", len(res.Questions)),
		logger.Int("pages", res.Pages),
		logger.Int("skipped", res.Skipped),
		logger.Int("duplicates", res.Duplicates),
		logger.Bool("partial", res.Partial),
		logger.String("stop_reason", string(res.StopReason)),
	)
	return res
}

func (e *Engine) accept(res *Result, seen domain.IDSet, page source.PageResult) {
	res.Pages++
	res.Skipped += page.Skipped
	for _, q := range page.Items {
		if seen.Has(q.ID) {
			res.Duplicates++
			continue
		}
		seen.Add(q.ID)
		res.Questions = append(res.Questions, q)
	}
	e.log.Debug("Page accepted",
		logger.Int("page", page.Page),
		logger.Int("items", len(page.Items)),
		logger.Int("total", len(res.Questions)),
	)
}

func (e *Engine) stopOnError(res *Result, page source.PageResult) {
	res.Partial = true
	res.Err = page.Err
	res.StopReason = StopPermanentError
	if page.Kind == source.PageTransientError {
		res.StopReason = StopTransientError
	}

	fields := []logger.Field{
		logger.Int("page", page.Page),
		logger.Int("accumulated", len(res.Questions)),
		logger.String("stop_reason", string(res.StopReason)),
		logger.Error(page.Err),
	}

	var pe *source.PageError
	if errors.As(page.Err, &pe) && pe.Level == source.LevelWarn {
		e.log.Warn("Page failed, returning partial results", fields...)
		return
	}
	e.log.Error("Page failed, returning partial results", fields...)
}

func (e *Engine) stopCancelled(res *Result, err error) {
	res.Partial = true
	res.Err = err
	res.StopReason = StopCancelled
	e.log.Warn("Fetch cancelled", logger.Int("accumulated", len(res.Questions)), logger.Error(err))
}

// SleepContext waits for d, returning early with ctx's error.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
