// Package analysis defines the downstream stage that receives the scoped
// ids of a run, plus a statistical summary analyzer.
package analysis

//go:generate mockgen -destination=mocks/mock_analyzer.go -package=mocks github.com/jonesrussell/north-cloud/so-ingestor/internal/analysis Analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/execution"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
)

// Request selects the records to analyze.
type Request struct {
	// IDs restricts analysis to these ids. Nil means every stored record.
	IDs *domain.IDSet
	// Run is the execution summary as of dispatch.
	Run execution.Summary
}

// All reports whether the request covers every stored record.
func (r Request) All() bool { return r.IDs == nil }

// idList returns the id slice for store lookups, nil meaning all.
func (r Request) idList() []int64 {
	if r.IDs == nil {
		return nil
	}
	return r.IDs.Sorted()
}

// Result is opaque to the pipeline and recorded in the audit as is.
type Result map[string]any

// Analyzer consumes a scoped set of stored questions.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, req Request) (Result, error)
}

// Multi runs analyzers in order. A failing analyzer does not stop the others.
type Multi struct {
	analyzers []Analyzer
	log       logger.Logger
}

// NewMulti combines analyzers.
func NewMulti(log logger.Logger, analyzers ...Analyzer) *Multi {
	return &Multi{analyzers: analyzers, log: log.With(logger.Component("analysis"))}
}

// Name implements Analyzer.
func (m *Multi) Name() string { return "multi" }

// Len returns the number of analyzers.
func (m *Multi) Len() int { return len(m.analyzers) }

// Analyze collects the results keyed by analyzer name and joins the errors.
func (m *Multi) Analyze(ctx context.Context, req Request) (Result, error) {
	out := make(Result, len(m.analyzers))
	var errs []error
	for _, a := range m.analyzers {
		res, err := a.Analyze(ctx, req)
		if err != nil {
			m.log.Warn("Analyzer failed", logger.String("analyzer", a.Name()), logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", a.Name(), err))
			continue
		}
		out[a.Name()] = res
	}
	return out, errors.Join(errs...)
}
