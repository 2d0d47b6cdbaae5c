// Package execution holds the per-run accumulator threaded through every
// phase, and the frozen summary handed to downstream consumers.
package execution

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
)

// Phase names a timed part of a run.
type Phase string

const (
	PhaseFetch     Phase = "fetch"
	PhaseReconcile Phase = "reconcile"
	PhaseScope     Phase = "scope"
	PhaseAnalysis  Phase = "analysis"
)

// Params are the immutable inputs of a run.
type Params struct {
	Source        string
	Mode          domain.ReconciliationMode
	AnalysisScope domain.AnalysisScope
	Requested     int
	Tags          []string
}

// Counts are the numeric outcomes of a run.
type Counts struct {
	Fetched        int `json:"fetched"`
	Stored         int `json:"stored"`
	Filtered       int `json:"filtered"`
	Inserted       int `json:"inserted"`
	Replaced       int `json:"replaced"`
	WriteErrors    int `json:"write_errors"`
	Drift          int `json:"drift"`
	NewAuthors     int `json:"new_authors"`
	UpdatedAuthors int `json:"updated_authors"`
	SkippedAuthors int `json:"skipped_authors"`
	AuthorErrors   int `json:"author_errors"`
}

// FetchStats describe how the fetch loop ended.
type FetchStats struct {
	Partial    bool   `json:"partial"`
	StopReason string `json:"stop_reason"`
	Pages      int    `json:"pages"`
	Skipped    int    `json:"skipped"`
	Duplicates int    `json:"duplicates"`
	Error      string `json:"error,omitempty"`
}

// PhaseTiming is the wall-clock duration of one phase.
type PhaseTiming struct {
	Phase    Phase         `json:"phase"`
	Duration time.Duration `json:"-"`
	Millis   int64         `json:"duration_ms"`
}

// Context accumulates the state of one run. Mutations after Freeze are ignored.
type Context struct {
	mu sync.Mutex

	runID     string
	params    Params
	now       func() time.Time
	startedAt time.Time

	state       string
	states      []string
	phases      []PhaseTiming
	counts      Counts
	fetch       FetchStats
	scopeIDs    domain.IDSet
	dispatched  bool
	skipReason  string
	results     map[string]any
	analysisErr string
	runErr      string

	frozen  bool
	summary Summary
}

// Option configures a Context.
type Option func(*Context)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Context) { c.now = now }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(c *Context) { c.runID = id }
}

// NewContext starts a run accumulator with a fresh run id.
func NewContext(p Params, opts ...Option) *Context {
	c := &Context{
		runID:    uuid.NewString(),
		params:   p,
		now:      time.Now,
		scopeIDs: domain.NewIDSet(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.params.Tags = slices.Clone(p.Tags)
	c.startedAt = c.now().UTC()
	return c
}

// RunID identifies the run in logs, audits and metrics.
func (c *Context) RunID() string { return c.runID }

// Time starts timing phase and returns the function that stops it.
//
//	stop := ec.Time(execution.PhaseFetch)
//	defer stop()
func (c *Context) Time(phase Phase) func() {
	start := c.now()
	var once sync.Once
	return func() {
		once.Do(func() {
			d := c.now().Sub(start)
			c.update(func() {
				c.phases = append(c.phases, PhaseTiming{Phase: phase, Duration: d, Millis: d.Milliseconds()})
			})
		})
	}
}

// SetState records the current orchestrator state and appends it to the trail.
func (c *Context) SetState(state string) {
	c.update(func() {
		c.state = state
		c.states = append(c.states, state)
	})
}

// SetFetch records the fetch outcome and the fetched count.
func (c *Context) SetFetch(fetched int, stats FetchStats) {
	c.update(func() {
		c.counts.Fetched = fetched
		c.fetch = stats
	})
}

// MergeCounts overlays the reconcile counts, keeping Fetched.
func (c *Context) MergeCounts(counts Counts) {
	c.update(func() {
		fetched := c.counts.Fetched
		c.counts = counts
		c.counts.Fetched = fetched
	})
}

// SetScope records the computed scope set.
func (c *Context) SetScope(ids domain.IDSet) {
	c.update(func() { c.scopeIDs = ids.Clone() })
}

// SkipAnalysis records why analysis did not run.
func (c *Context) SkipAnalysis(reason string) {
	c.update(func() {
		c.dispatched = false
		c.skipReason = reason
	})
}

// RecordAnalysis records a dispatched analysis and its outcome.
func (c *Context) RecordAnalysis(results map[string]any, err error) {
	c.update(func() {
		c.dispatched = true
		c.results = maps.Clone(results)
		if err != nil {
			c.analysisErr = err.Error()
		}
	})
}

// Fail records the error that aborted the run.
func (c *Context) Fail(err error) {
	if err == nil {
		return
	}
	c.update(func() { c.runErr = err.Error() })
}

// Snapshot returns the summary as of now without freezing.
func (c *Context) Snapshot() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return c.summary
	}
	return c.build(c.now().UTC())
}

// Freeze stamps the finish time and returns the final summary. Later calls
// return the same summary.
func (c *Context) Freeze() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.frozen {
		c.summary = c.build(c.now().UTC())
		c.frozen = true
	}
	return c.summary
}

func (c *Context) update(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return
	}
	fn()
}

func (c *Context) build(finished time.Time) Summary {
	return Summary{
		RunID:              c.runID,
		State:              c.state,
		States:             slices.Clone(c.states),
		Source:             c.params.Source,
		Mode:               c.params.Mode,
		AnalysisScope:      c.params.AnalysisScope,
		Requested:          c.params.Requested,
		Tags:               slices.Clone(c.params.Tags),
		StartedAt:          c.startedAt,
		FinishedAt:         finished,
		Duration:           finished.Sub(c.startedAt),
		DurationMillis:     finished.Sub(c.startedAt).Milliseconds(),
		Phases:             slices.Clone(c.phases),
		Counts:             c.counts,
		Fetch:              c.fetch,
		ScopeIDs:           c.scopeIDs.Clone(),
		AnalysisDispatched: c.dispatched,
		AnalysisSkipReason: c.skipReason,
		AnalysisResults:    maps.Clone(c.results),
		AnalysisError:      c.analysisErr,
		Error:              c.runErr,
	}
}
