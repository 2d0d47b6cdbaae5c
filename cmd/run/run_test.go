package run_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/so-ingestor/cmd/run"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/audit"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/source"
)

func TestOverrides_Apply(t *testing.T) {
	cfg := &config.Config{}
	cfg.Source.Kind = source.KindHTML
	cfg.Source.MaxQuestions = 100
	cfg.Run.Mode = domain.ModeUpsert
	cfg.Run.AnalysisScope = domain.ScopeAll
	cfg.Run.AnalysisEnabled = true

	err := run.Overrides{
		MaxQuestions:  5,
		Tags:          []string{"go", " go", "rust"},
		UseAPI:        true,
		Mode:          "append-only",
		AnalysisScope: "new-only",
		NoAnalysis:    true,
	}.Apply(cfg)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Source.MaxQuestions)
	assert.Equal(t, []string{"go", "rust"}, cfg.Source.Tags)
	assert.Equal(t, source.KindAPI, cfg.Source.Kind)
	assert.Equal(t, domain.ModeAppendOnly, cfg.Run.Mode)
	assert.Equal(t, domain.ScopeNewOnly, cfg.Run.AnalysisScope)
	assert.False(t, cfg.Run.AnalysisEnabled)
}

func TestOverrides_ZeroValuesKeepConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Source.MaxQuestions = 7
	cfg.Run.Mode = domain.ModeUpdateOnly
	cfg.Run.AnalysisEnabled = true

	require.NoError(t, run.Overrides{}.Apply(cfg))
	assert.Equal(t, 7, cfg.Source.MaxQuestions)
	assert.Equal(t, domain.ModeUpdateOnly, cfg.Run.Mode)
	assert.True(t, cfg.Run.AnalysisEnabled)
}

func TestOverrides_RejectsUnknownMode(t *testing.T) {
	cfg := &config.Config{}
	require.Error(t, run.Overrides{Mode: "merge"}.Apply(cfg))
	require.Error(t, run.Overrides{AnalysisScope: "some"}.Apply(cfg))
}

const questionsPage = `{
	"items": [
		{"question_id": 11, "title": "first", "link": "https://stackoverflow.com/questions/11",
		 "tags": ["go"], "owner": {"display_name": "alice", "reputation": 10}, "creation_date": 1754476792},
		{"question_id": 12, "title": "second", "link": "https://stackoverflow.com/questions/12",
		 "tags": ["go", "sql"], "owner": {"display_name": "bob", "reputation": 20}, "creation_date": 1754476800}
	],
	"has_more": false,
	"quota_remaining": 100
}`

func TestCommand_RunsPipelineAgainstAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(questionsPage))
	}))
	t.Cleanup(srv.Close)

	auditDir := t.TempDir()
	t.Setenv("API_BASE_URL", srv.URL)
	t.Setenv("API_REQUEST_DELAY", "1ms")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("RUN_AUDIT_DIR", auditDir)
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := run.Command()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--use-api", "--max-questions", "10", "--mode", "upsert"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "Finalized")
	assert.Contains(t, out.String(), "stored 2 questions")

	entries, err := os.ReadDir(auditDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	summary, err := audit.Read(filepath.Join(auditDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "Finalized", summary.State)
	assert.Equal(t, 2, summary.Counts.Inserted)
	assert.True(t, summary.AnalysisDispatched)
}
