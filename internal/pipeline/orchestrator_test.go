package pipeline_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/analysis"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/analysis/mocks"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/audit"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/execution"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/fetcher"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/metrics"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/pipeline"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/source"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store/memory"
)

type fakeSource struct {
	mu       sync.Mutex
	pages    []source.PageResult
	calls    int
	closed   bool
	closeErr error
}

func (s *fakeSource) Name() string             { return "fake" }
func (s *fakeSource) PageDelay() time.Duration { return 0 }
func (s *fakeSource) Open(source.Query) source.Cursor {
	return s
}

func (s *fakeSource) NextPage(context.Context) source.PageResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls > len(s.pages) {
		return source.Empty(s.calls)
	}
	res := s.pages[s.calls-1]
	res.Page = s.calls
	return res
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

type closingStore struct {
	*memory.Store
	snapshotErr error
	closeErr    error
}

func (c *closingStore) ExistingIDs(ctx context.Context) (domain.IDSet, error) {
	if c.snapshotErr != nil {
		return nil, c.snapshotErr
	}
	return c.Store.ExistingIDs(ctx)
}

func (c *closingStore) Close() error {
	_ = c.Store.Close()
	return c.closeErr
}

func page(ids ...int64) source.PageResult {
	qs := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		qs = append(qs, domain.Question{ID: id, Title: "q", AuthorName: "alice"})
	}
	return source.Success(0, qs, 0)
}

type fixture struct {
	src     *fakeSource
	store   *closingStore
	auditW  *audit.Writer
	metrics *metrics.Recorder
}

func newFixture(t *testing.T, pages ...source.PageResult) *fixture {
	t.Helper()
	return &fixture{
		src:     &fakeSource{pages: pages},
		store:   &closingStore{Store: memory.New()},
		auditW:  audit.NewWriter(t.TempDir()),
		metrics: metrics.NewRecorder(metrics.Config{}),
	}
}

func (f *fixture) orchestrator(a analysis.Analyzer) *pipeline.Orchestrator {
	return pipeline.New(pipeline.Deps{
		Source:       f.src,
		Store:        f.store,
		Analyzer:     a,
		Audit:        f.auditW,
		Metrics:      f.metrics,
		Logger:       logger.NewNop(),
		FetchOptions: []fetcher.Option{fetcher.WithSleeper(func(context.Context, time.Duration) error { return nil })},
	})
}

func TestRun_ScopeGatedSkipNeverCallsAnalyzer(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	analyzer := mocks.NewMockAnalyzer(ctrl)
	analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Times(0)
	analyzer.EXPECT().Name().Return("mock").AnyTimes()

	f := newFixture(t, page(1, 2))
	f.store.Seed(domain.Question{ID: 1}, domain.Question{ID: 2})

	o := f.orchestrator(analyzer)
	sum, err := o.Run(context.Background(), pipeline.Request{
		MaxCount:        10,
		Mode:            domain.ModeAppendOnly,
		Scope:           domain.ScopeNewOnly,
		AnalysisEnabled: true,
	})
	require.NoError(t, err)

	assert.Equal(t, string(pipeline.StateFinalized), sum.State)
	assert.Contains(t, sum.States, string(pipeline.StateAnalysisSkipped))
	assert.NotEmpty(t, sum.AnalysisSkipReason)
	assert.Contains(t, sum.AnalysisSkipReason, pipeline.ReasonEmptyScope)
	assert.False(t, sum.AnalysisDispatched)
	assert.Zero(t, sum.Counts.Stored)
	assert.Equal(t, 2, sum.Counts.Filtered)

	require.NotEmpty(t, o.AuditPath())
	written, err := audit.Read(o.AuditPath())
	require.NoError(t, err)
	assert.Equal(t, sum.AnalysisSkipReason, written.AnalysisSkipReason)

	assert.True(t, f.src.closed)
	assert.True(t, f.store.Closed())
}

func TestRun_UpdateOnlyDispatchesScopedIDs(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	var got analysis.Request
	analyzer := mocks.NewMockAnalyzer(ctrl)
	analyzer.EXPECT().Name().Return("mock").AnyTimes()
	analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req analysis.Request) (analysis.Result, error) {
			got = req
			return analysis.Result{"ok": true}, nil
		}).Times(1)

	f := newFixture(t, page(101, 102, 103))
	f.store.Seed(domain.Question{ID: 101})

	sum, err := f.orchestrator(analyzer).Run(context.Background(), pipeline.Request{
		MaxCount:        3,
		Mode:            domain.ModeUpdateOnly,
		Scope:           domain.ScopeNewOnly,
		AnalysisEnabled: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Counts.Stored)
	assert.Equal(t, []int64{101}, sum.ScopeIDs.Sorted())
	require.NotNil(t, got.IDs)
	assert.Equal(t, []int64{101}, got.IDs.Sorted())
	assert.Equal(t, sum.RunID, got.Run.RunID)
	assert.True(t, sum.AnalysisDispatched)
	assert.Equal(t, map[string]any{"ok": true}, sum.AnalysisResults)
	assert.Equal(t, 1, sum.Counts.NewAuthors)
}

func TestRun_ScopeAllPassesNilIDs(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	analyzer := mocks.NewMockAnalyzer(ctrl)
	analyzer.EXPECT().Name().Return("mock").AnyTimes()
	analyzer.EXPECT().Analyze(gomock.Any(), gomock.Cond(func(req analysis.Request) bool {
		return req.IDs == nil
	})).Return(analysis.Result{}, nil).Times(1)

	f := newFixture(t, page(1))
	sum, err := f.orchestrator(analyzer).Run(context.Background(), pipeline.Request{
		MaxCount: 5, Mode: domain.ModeUpsert, Scope: domain.ScopeAll, AnalysisEnabled: true,
	})
	require.NoError(t, err)
	assert.True(t, sum.AnalysisDispatched)
}

func TestRun_PartialFetchStillFinalizes(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		page(1, 2, 3),
		source.Failure(0, source.ClassifyNetworkError(context.DeadlineExceeded, "page2")),
	)

	sum, err := f.orchestrator(nil).Run(context.Background(), pipeline.Request{
		MaxCount: 10, Mode: domain.ModeUpsert, Scope: domain.ScopeAll, AnalysisEnabled: true,
	})
	require.NoError(t, err)

	assert.Equal(t, string(pipeline.StateFinalized), sum.State)
	assert.True(t, sum.Fetch.Partial)
	assert.Equal(t, string(fetcher.StopTransientError), sum.Fetch.StopReason)
	assert.NotEmpty(t, sum.Fetch.Error)
	assert.Equal(t, 3, sum.Counts.Stored)
	assert.Equal(t, pipeline.ReasonNoAnalyzer, sum.AnalysisSkipReason)
	require.Len(t, sum.Phases, 3)
	assert.Equal(t, execution.PhaseFetch, sum.Phases[0].Phase)
}

func TestRun_AnalysisDisabled(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	analyzer := mocks.NewMockAnalyzer(ctrl)

	f := newFixture(t, page(1))
	sum, err := f.orchestrator(analyzer).Run(context.Background(), pipeline.Request{
		MaxCount: 5, Mode: domain.ModeUpsert, Scope: domain.ScopeNewOnly, AnalysisEnabled: false,
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.ReasonAnalysisDisabled, sum.AnalysisSkipReason)
}

func TestRun_AnalysisErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	analyzer := mocks.NewMockAnalyzer(ctrl)
	analyzer.EXPECT().Name().Return("mock").AnyTimes()
	analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, errors.New("index unavailable"))

	f := newFixture(t, page(1))
	sum, err := f.orchestrator(analyzer).Run(context.Background(), pipeline.Request{
		MaxCount: 5, Mode: domain.ModeUpsert, Scope: domain.ScopeAll, AnalysisEnabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "index unavailable", sum.AnalysisError)
	assert.Equal(t, string(pipeline.StateFinalized), sum.State)
}

func TestRun_SnapshotFailureFailsRunAfterTeardown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, page(1))
	f.store.snapshotErr = errors.New("connection refused")
	f.store.closeErr = errors.New("close failed")
	f.src.closeErr = errors.New("browser gone")

	o := f.orchestrator(nil)
	sum, err := o.Run(context.Background(), pipeline.Request{
		MaxCount: 5, Mode: domain.ModeAppendOnly, Scope: domain.ScopeAll, AnalysisEnabled: true,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, f.store.snapshotErr, "teardown errors must not mask the original")
	assert.Equal(t, string(pipeline.StateFailed), sum.State)
	assert.True(t, sum.Failed())
	assert.Equal(t, 1, sum.Counts.Fetched)
	assert.True(t, f.src.closed)
	assert.True(t, f.store.Closed())

	require.GreaterOrEqual(t, len(sum.States), 2)
	assert.Equal(t, string(pipeline.StateReconciling), sum.States[len(sum.States)-2])

	written, readErr := audit.Read(o.AuditPath())
	require.NoError(t, readErr)
	assert.Equal(t, string(pipeline.StateFailed), written.State)
	assert.Equal(t, sum.States, written.States)
	assert.Equal(t, string(pipeline.StateInit), written.States[0])
	assert.Contains(t, written.Error, "connection refused")

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Runs.WithLabelValues("Failed", "append-only")), 0)
}

func TestRun_TeardownErrorsAreSwallowed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, page(1))
	f.store.closeErr = errors.New("close failed")
	f.src.closeErr = errors.New("browser gone")

	sum, err := f.orchestrator(nil).Run(context.Background(), pipeline.Request{
		MaxCount: 5, Mode: domain.ModeUpsert, Scope: domain.ScopeAll,
	})
	require.NoError(t, err)
	assert.Equal(t, string(pipeline.StateFinalized), sum.State)
}

func TestRun_InvalidModeFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, page(1))
	sum, err := f.orchestrator(nil).Run(context.Background(), pipeline.Request{
		MaxCount: 5, Mode: "sideways", Scope: domain.ScopeAll,
	})
	require.Error(t, err)
	assert.Equal(t, string(pipeline.StateFailed), sum.State)
	assert.Zero(t, f.src.calls)
	assert.True(t, f.src.closed)
}

func TestRun_OnlyOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, page(1))
	o := f.orchestrator(nil)
	_, err := o.Run(context.Background(), pipeline.Request{MaxCount: 1})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), pipeline.Request{MaxCount: 1})
	assert.ErrorIs(t, err, pipeline.ErrAlreadyRun)
}

func TestRun_AuditFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, page(1))
	file := t.TempDir() + "/blocked"
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	f.auditW = audit.NewWriter(file + "/runs")

	o := f.orchestrator(nil)
	_, err := o.Run(context.Background(), pipeline.Request{MaxCount: 1})
	require.NoError(t, err)
	assert.Empty(t, o.AuditPath())
}
