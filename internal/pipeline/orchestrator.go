// Package pipeline sequences one ingestion run: fetch, reconcile, scope,
// then the optional analysis handoff, with teardown and an audit artifact
// on every exit path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/analysis"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/audit"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/authors"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/execution"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/fetcher"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/metrics"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/reconcile"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/scope"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/source"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
)

// Skip reasons recorded when analysis does not run.
const (
	ReasonAnalysisDisabled = "analysis disabled"
	ReasonNoAnalyzer       = "no analyzer configured"
	ReasonEmptyScope       = "no new questions in scope"
)

const metricsPushTimeout = 10 * time.Second

// ErrAlreadyRun is returned by a second Run; the first one released the source and store.
var ErrAlreadyRun = errors.New("pipeline: orchestrator already ran")

// Request carries the externally supplied inputs of a run.
type Request struct {
	MaxCount        int
	Tags            []string
	Mode            domain.ReconciliationMode
	Scope           domain.AnalysisScope
	AnalysisEnabled bool
}

// Validate rejects unknown enum values.
func (r Request) Validate() error {
	if _, err := domain.ParseReconciliationMode(string(r.Mode)); err != nil {
		return err
	}
	if _, err := domain.ParseAnalysisScope(string(r.Scope)); err != nil {
		return err
	}
	return nil
}

// Deps are the collaborators owned by one run. Analyzer, Audit and Metrics are optional.
type Deps struct {
	Source         source.Source
	Store          store.Store
	Analyzer       analysis.Analyzer
	Audit          *audit.Writer
	Metrics        *metrics.Recorder
	Logger         logger.Logger
	FetchOptions   []fetcher.Option
	ContextOptions []execution.Option
}

// Orchestrator runs the pipeline once. Source and store are closed when Run returns.
type Orchestrator struct {
	deps      Deps
	log       logger.Logger
	ran       bool
	auditPath string
}

// New creates an orchestrator over deps.
func New(deps Deps) *Orchestrator {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Orchestrator{deps: deps, log: log.With(logger.Component("pipeline"))}
}

// AuditPath is the artifact written by the last Run, if any.
func (o *Orchestrator) AuditPath() string { return o.auditPath }

// Run executes one ingestion. Partial fetches, isolated write errors and
// analysis failures are recorded in the summary; fetch and reconcile phase
// failures abort the run and are returned after teardown.
func (o *Orchestrator) Run(ctx context.Context, req Request) (execution.Summary, error) {
	if o.ran {
		return execution.Summary{}, ErrAlreadyRun
	}
	o.ran = true

	if req.Mode == "" {
		req.Mode = domain.ModeUpsert
	}
	if req.Scope == "" {
		req.Scope = domain.ScopeAll
	}

	ec := execution.NewContext(execution.Params{
		Source:        o.deps.Source.Name(),
		Mode:          req.Mode,
		AnalysisScope: req.Scope,
		Requested:     req.MaxCount,
		Tags:          req.Tags,
	}, o.deps.ContextOptions...)

	log := o.log.With(logger.String("run_id", ec.RunID()))
	m := newMachine(func(s State) {
		ec.SetState(string(s))
		log.Debug("Pipeline state", logger.String("state", string(s)))
	})

	log.Info("Run started",
		logger.String("source", o.deps.Source.Name()),
		logger.String("mode", req.Mode.String()),
		logger.String("analysis_scope", req.Scope.String()),
		logger.Int("max_count", req.MaxCount),
		logger.Strings("tags", req.Tags),
	)

	runErr := req.Validate()
	if runErr == nil {
		runErr = o.execute(ctx, req, ec, m, log)
	}
	if runErr == nil {
		runErr = m.to(StateFinalized)
	}

	o.teardown(log)

	if runErr != nil {
		failedIn := m.state
		m.fail()
		ec.Fail(runErr)
		log.Error("Run failed", logger.String("state", string(failedIn)), logger.Error(runErr))
	}

	summary := ec.Freeze()
	o.finish(ctx, summary, log)

	if runErr == nil {
		log.Info("Run finalized",
			logger.Int("fetched", summary.Counts.Fetched),
			logger.Int("stored", summary.Counts.Stored),
			logger.Int("scope", summary.ScopeIDs.Len()),
			logger.Bool("partial", summary.Fetch.Partial),
			logger.Duration("duration", summary.Duration),
		)
	}
	return summary, runErr
}

func (o *Orchestrator) execute(ctx context.Context, req Request, ec *execution.Context, m *machine, log logger.Logger) error {
	if err := m.to(StateFetching); err != nil {
		return err
	}
	stop := ec.Time(execution.PhaseFetch)
	fetched := fetcher.New(o.deps.Source, log, o.deps.FetchOptions...).Fetch(ctx, req.MaxCount, req.Tags)
	stop()

	stats := execution.FetchStats{
		Partial:    fetched.Partial,
		StopReason: string(fetched.StopReason),
		Pages:      fetched.Pages,
		Skipped:    fetched.Skipped,
		Duplicates: fetched.Duplicates,
	}
	if fetched.Err != nil {
		stats.Error = fetched.Err.Error()
	}
	ec.SetFetch(len(fetched.Questions), stats)

	if err := m.to(StateReconciling); err != nil {
		return err
	}
	stop = ec.Time(execution.PhaseReconcile)
	agg := authors.NewAggregator(o.deps.Store, log)
	out, err := reconcile.New(o.deps.Store, agg, log).Reconcile(ctx, fetched.Questions, req.Mode)
	stop()
	ec.MergeCounts(countsFrom(out))
	if err != nil {
		return err
	}

	if err = m.to(StateScopeComputed); err != nil {
		return err
	}
	stop = ec.Time(execution.PhaseScope)
	ids := scope.Compute(req.Mode, fetched.IDs(), out.WrittenIDs, out.PriorExisting)
	stop()
	ec.SetScope(ids)
	if missing := scope.Unwritten(ids, out.WrittenIDs); missing.Len() > 0 {
		log.Warn("Scope holds ids that were not written", logger.Int("count", missing.Len()), logger.Int64s("ids", missing.Sorted()))
	}

	reason := o.skipReason(req, ids)
	if reason != "" {
		if err = m.to(StateAnalysisSkipped); err != nil {
			return err
		}
		ec.SkipAnalysis(reason)
		log.Info("Analysis skipped", logger.String("reason", reason))
		return nil
	}

	if err = m.to(StateAnalysisDispatched); err != nil {
		return err
	}
	o.dispatch(ctx, req, ids, ec, log)
	return nil
}

func (o *Orchestrator) skipReason(req Request, ids domain.IDSet) string {
	switch {
	case !req.AnalysisEnabled:
		return ReasonAnalysisDisabled
	case o.deps.Analyzer == nil:
		return ReasonNoAnalyzer
	case req.Scope == domain.ScopeNewOnly && ids.Len() == 0:
		return fmt.Sprintf("%s (mode %s)", ReasonEmptyScope, req.Mode)
	default:
		return ""
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, req Request, ids domain.IDSet, ec *execution.Context, log logger.Logger) {
	areq := analysis.Request{Run: ec.Snapshot()}
	if req.Scope == domain.ScopeNewOnly {
		scoped := ids.Clone()
		areq.IDs = &scoped
	}

	stop := ec.Time(execution.PhaseAnalysis)
	res, err := o.deps.Analyzer.Analyze(ctx, areq)
	stop()

	ec.RecordAnalysis(res, err)
	if err != nil {
		log.Warn("Analysis failed", logger.String("analyzer", o.deps.Analyzer.Name()), logger.Error(err))
		return
	}
	log.Info("Analysis completed", logger.String("analyzer", o.deps.Analyzer.Name()), logger.Bool("all", areq.All()))
}

// teardown closes the source, then the store. Failures are logged only.
func (o *Orchestrator) teardown(log logger.Logger) {
	if err := o.deps.Source.Close(); err != nil {
		log.Warn("Failed to close source", logger.Error(err))
	}
	if err := o.deps.Store.Close(); err != nil {
		log.Warn("Failed to close store", logger.Error(err))
	}
}

func (o *Orchestrator) finish(ctx context.Context, summary execution.Summary, log logger.Logger) {
	if o.deps.Audit != nil {
		path, err := o.deps.Audit.Write(summary)
		if err != nil {
			log.Warn("Failed to write audit artifact", logger.Error(err))
		} else {
			o.auditPath = path
			log.Info("Audit artifact written", logger.String("path", path))
		}
	}

	if o.deps.Metrics == nil {
		return
	}
	o.deps.Metrics.Observe(summary)
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsPushTimeout)
	defer cancel()
	if err := o.deps.Metrics.Push(pushCtx); err != nil {
		log.Warn("Failed to push metrics", logger.Error(err))
	}
}

func countsFrom(out reconcile.Outcome) execution.Counts {
	return execution.Counts{
		Stored:         out.Stored,
		Filtered:       out.Filtered,
		Inserted:       out.Inserted,
		Replaced:       out.Replaced,
		WriteErrors:    out.WriteErrors,
		Drift:          out.Drift,
		NewAuthors:     out.Authors.New,
		UpdatedAuthors: out.Authors.Updated,
		SkippedAuthors: out.Authors.Skipped,
		AuthorErrors:   out.Authors.Errors,
	}
}
