package common_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonesrussell/north-cloud/so-ingestor/cmd/common"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/analysis"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/database"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/execution"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/refresh"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/source"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store/memory"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestCommandDeps_Validate(t *testing.T) {
	assert.ErrorIs(t, common.CommandDeps{}.Validate(), common.ErrLoggerRequired)
	assert.ErrorIs(t, common.CommandDeps{Logger: logger.NewNop()}.Validate(), common.ErrConfigRequired)
	assert.NoError(t, common.CommandDeps{Logger: logger.NewNop(), Config: &config.Config{}}.Validate())
}

func TestNewCommandDeps_StoresLoggerOnContext(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	var (
		deps   common.CommandDeps
		ctxLog logger.Logger
	)
	cmd := &cobra.Command{
		Use: "deps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			deps, err = common.NewCommandDeps(cmd)
			ctxLog = logger.FromContext(cmd.Context())
			return err
		},
	}
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	require.NotNil(t, deps.Logger)
	assert.Same(t, deps.Logger, ctxLog)
}

func TestOpenStore_LogsThroughContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.WithContext(context.Background(), logger.NewFromZap(zap.New(core)))

	_, err := common.OpenStore(ctx, database.Config{Driver: database.DriverMemory})
	require.NoError(t, err)

	entries := logs.FilterMessage("Using in-memory store").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "store", entries[0].ContextMap()["component"])
	assert.Equal(t, database.DriverMemory, entries[0].ContextMap()["driver"])
}

func TestOpenStore_Memory(t *testing.T) {
	st, err := common.OpenStore(context.Background(), database.Config{Driver: database.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, st)
}

func TestOpenStore_SQLite(t *testing.T) {
	st, err := common.OpenStore(context.Background(), database.Config{
		Driver: database.DriverSQLite,
		SQLite: database.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ids, err := st.ExistingIDs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, ids.Len())
}

func TestNewSource_ByKind(t *testing.T) {
	cfg := loadConfig(t)

	cfg.Source.Kind = source.KindAPI
	src, err := common.NewSource(cfg, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, source.KindAPI, src.Name())

	cfg.Source.Kind = source.KindHTML
	src, err = common.NewSource(cfg, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, source.KindHTML, src.Name())
	require.NoError(t, src.Close())

	cfg.Source.Kind = "rss"
	_, err = common.NewSource(cfg, logger.NewNop())
	require.Error(t, err)
}

func TestNewAnalyzer_AddsIndexerWhenEnabled(t *testing.T) {
	cfg := loadConfig(t)
	st := memory.New()

	a, err := common.NewAnalyzer(cfg, st, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, a.(*analysis.Multi).Len())

	cfg.Elasticsearch.Enabled = true
	a, err = common.NewAnalyzer(cfg, st, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, a.(*analysis.Multi).Len())
}

func TestNewRequest(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Source.Tags = []string{"go"}
	cfg.Run.Mode = domain.ModeAppendOnly

	req := common.NewRequest(cfg)
	assert.Equal(t, cfg.Source.MaxQuestions, req.MaxCount)
	assert.Equal(t, []string{"go"}, req.Tags)
	assert.Equal(t, domain.ModeAppendOnly, req.Mode)
	require.NoError(t, req.Validate())
}

func TestRenderSummary(t *testing.T) {
	earliest := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	s := execution.Summary{
		RunID:              "run-1",
		State:              "Finalized",
		Mode:               domain.ModeUpsert,
		Counts:             execution.Counts{Fetched: 3, Stored: 2, WriteErrors: 1},
		Fetch:              execution.FetchStats{StopReason: "count_reached"},
		ScopeIDs:           domain.NewIDSet(1, 2),
		AnalysisDispatched: true,
		Phases:             []execution.PhaseTiming{{Phase: execution.PhaseFetch, Duration: time.Second}},
		AnalysisResults: map[string]any{
			"summary": analysis.Result{"stats": analysis.Stats{
				Questions: 2,
				TopTags:   []analysis.TagCount{{Tag: "golang", Count: 2}},
				Earliest:  &earliest,
				Latest:    &earliest,
			}},
		},
	}

	var out bytes.Buffer
	common.RenderSummary(&out, s)
	assert.Contains(t, out.String(), "run-1")
	assert.Contains(t, out.String(), "count_reached")
	assert.Contains(t, out.String(), "golang")
	assert.Contains(t, out.String(), "2025-01-02")
	assert.NotContains(t, out.String(), "States")

	out.Reset()
	s.States = []string{"Init", "Fetching"}
	common.RenderSummary(&out, s)
	assert.Contains(t, out.String(), "Init > Fetching")

	out.Reset()
	common.PrintStatus(&out, s, "output/runs/x.json")
	assert.Contains(t, out.String(), "finished with gaps")
	assert.Contains(t, out.String(), "output/runs/x.json")

	out.Reset()
	s.Error = "boom"
	common.PrintStatus(&out, s, "")
	assert.Contains(t, out.String(), "failed: boom")
}

func TestRenderRefreshStats(t *testing.T) {
	var out bytes.Buffer
	common.RenderRefreshStats(&out, refresh.Stats{Processed: 5, Updated: 4}, true)
	assert.Contains(t, out.String(), "dry run")
	assert.Contains(t, out.String(), "Processed")
}

func TestRenderStoreStats(t *testing.T) {
	first := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	last := first.Add(48 * time.Hour)

	var out bytes.Buffer
	common.RenderStoreStats(&out, store.Stats{
		Questions:           12,
		Authors:             3,
		EarliestPublication: &first,
		LatestPublication:   &last,
	}, []domain.Author{{Name: "alice", QuestionCount: 5, Reputation: 900, LastSeen: last}})

	got := out.String()
	assert.Contains(t, got, "12")
	assert.Contains(t, got, "2025-01-02 03:04:05")
	assert.Contains(t, got, "2025-01-04 03:04:05")
	assert.Contains(t, got, "alice")

	out.Reset()
	common.RenderStoreStats(&out, store.Stats{}, nil)
	assert.NotContains(t, out.String(), "First published")
	assert.NotContains(t, out.String(), "Top authors")
}
