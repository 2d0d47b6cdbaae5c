package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/database"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/source"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, source.KindHTML, cfg.Source.Kind)
	assert.Equal(t, 100, cfg.Source.MaxQuestions)
	assert.Empty(t, cfg.Source.Tags)
	assert.Equal(t, domain.ModeUpsert, cfg.Run.Mode)
	assert.Equal(t, domain.ScopeAll, cfg.Run.AnalysisScope)
	assert.True(t, cfg.Run.AnalysisEnabled)
	assert.Equal(t, "output/runs", cfg.Run.AuditDir)
	assert.Equal(t, 100*time.Millisecond, cfg.API.RequestDelay)
	assert.Equal(t, 100, cfg.API.PageSize)
	assert.Equal(t, 3*time.Second, cfg.HTML.MinDelay)
	assert.Equal(t, 8*time.Second, cfg.HTML.MaxDelay)
	assert.True(t, cfg.HTML.Headless)
	assert.Equal(t, database.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "0 */6 * * *", cfg.Schedule.Cron)
	assert.Equal(t, "info", cfg.Logger.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
source:
  kind: api
  tags: [python, go, python]
  max_questions: 250
html:
  min_delay: 1s
  max_delay: 2s
  max_pages: 3
  loader: browser
run:
  mode: append-only
  analysis_scope: new-only
  analysis_enabled: false
store:
  driver: memory
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, source.KindAPI, cfg.Source.Kind)
	assert.Equal(t, []string{"python", "go"}, cfg.Source.Tags)
	assert.Equal(t, 250, cfg.Source.MaxQuestions)
	assert.Equal(t, time.Second, cfg.HTML.MinDelay)
	assert.Equal(t, 2*time.Second, cfg.HTML.MaxDelay)
	assert.Equal(t, 3, cfg.HTML.MaxPages)
	assert.Equal(t, source.LoaderBrowser, cfg.HTML.Loader)
	assert.Equal(t, domain.ModeAppendOnly, cfg.Run.Mode)
	assert.Equal(t, domain.ScopeNewOnly, cfg.Run.AnalysisScope)
	assert.False(t, cfg.Run.AnalysisEnabled)
	assert.Equal(t, database.DriverMemory, cfg.Store.Driver)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("STACKOVERFLOW_API_KEY", "secret")
	t.Setenv("SO_SCRAPER_USER_AGENT", "test-agent/1.0")
	t.Setenv("SO_SCRAPER_HEADLESS", "false")
	t.Setenv("SOURCE_TAGS", "rust, go,rust")
	t.Setenv("RUN_MODE", "update")
	t.Setenv("APP_DEBUG", "true")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.API.Key)
	assert.Equal(t, "test-agent/1.0", cfg.HTML.UserAgent)
	assert.False(t, cfg.HTML.Headless)
	assert.Equal(t, []string{"rust", "go"}, cfg.Source.Tags)
	assert.Equal(t, domain.ModeUpdateOnly, cfg.Run.Mode)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "source:\n  max_questions: 10\n")
	t.Setenv("SOURCE_MAX_QUESTIONS", "42")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Source.MaxQuestions)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidMode(t *testing.T) {
	path := writeConfig(t, "run:\n  mode: sideways\n")
	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sideways")
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *config.Config {
		t.Helper()
		cfg, err := config.Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown source kind", func(c *config.Config) { c.Source.Kind = "rss" }},
		{"zero max questions", func(c *config.Config) { c.Source.MaxQuestions = 0 }},
		{"page size above cap", func(c *config.Config) { c.API.PageSize = 101 }},
		{"min delay above max", func(c *config.Config) { c.HTML.MinDelay = 10 * time.Second }},
		{"unknown loader", func(c *config.Config) { c.HTML.Loader = "curl" }},
		{"negative max pages", func(c *config.Config) { c.HTML.MaxPages = -1 }},
		{"unknown store driver", func(c *config.Config) { c.Store.Driver = "mongo" }},
		{"unknown summary format", func(c *config.Config) { c.Run.SummaryFormat = "rtf" }},
		{"unknown mode", func(c *config.Config) { c.Run.Mode = "merge" }},
		{"unknown scope", func(c *config.Config) { c.Run.AnalysisScope = "some" }},
		{"elasticsearch without addresses", func(c *config.Config) {
			c.Elasticsearch.Enabled = true
			c.Elasticsearch.Addresses = nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrInvalid)
		})
	}
}
