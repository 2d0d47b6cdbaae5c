// Package config loads the ingestor configuration from an optional YAML file,
// a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/analysis"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/database"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/metrics"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/search"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/source"
)

const (
	defaultAppName      = "so-ingestor"
	defaultMaxQuestions = 100
	defaultAuditDir     = "output/runs"
	defaultCron         = "0 */6 * * *"
	defaultSQLitePath   = "so_ingestor.db"
	defaultESIndex      = "so_questions"
	defaultESBatchSize  = 500
	defaultMetricsJob   = "so_ingestor"
	defaultTopTags      = 20
	defaultTopAuthors   = 10
	environmentDev      = "development"
	maxAPIPageSize      = 100
	configFileName      = "config"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// AppConfig describes the process.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// SourceConfig selects the record source and the default query.
type SourceConfig struct {
	Kind         string   `mapstructure:"kind"`
	Tags         []string `mapstructure:"tags"`
	MaxQuestions int      `mapstructure:"max_questions"`
}

// HTMLConfig is the listing-page source plus the fetch page cap.
type HTMLConfig struct {
	source.HTMLConfig `mapstructure:",squash"`
	MaxPages          int `mapstructure:"max_pages"`
}

// RunConfig holds the per-run defaults the CLI can override.
type RunConfig struct {
	Mode            domain.ReconciliationMode `mapstructure:"mode"`
	AnalysisScope   domain.AnalysisScope      `mapstructure:"analysis_scope"`
	AnalysisEnabled bool                      `mapstructure:"analysis_enabled"`
	AuditDir        string                    `mapstructure:"audit_dir"`
	SummaryFormat   string                    `mapstructure:"summary_format"`
}

// ScheduleConfig configures the schedule command.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// Config is the full application configuration.
type Config struct {
	App           AppConfig              `mapstructure:"app"`
	Logger        logger.Config          `mapstructure:"logger"`
	Source        SourceConfig           `mapstructure:"source"`
	API           source.APIConfig       `mapstructure:"api"`
	HTML          HTMLConfig             `mapstructure:"html"`
	Store         database.Config        `mapstructure:"store"`
	Run           RunConfig              `mapstructure:"run"`
	Analysis      analysis.SummaryConfig `mapstructure:"analysis"`
	Elasticsearch search.Config          `mapstructure:"elasticsearch"`
	Metrics       metrics.Config         `mapstructure:"metrics"`
	Schedule      ScheduleConfig         `mapstructure:"schedule"`
}

// Load reads .env, then path (or ./config.yaml when path is empty), then the
// environment. A missing default config file is not an error; a missing
// explicit one is.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.applyEnvironment()
	cfg.Source.Tags = []string(domain.NewTags(cfg.Source.Tags...))
	return &cfg, nil
}

// applyEnvironment mirrors app.debug and app.environment onto the logger.
func (c *Config) applyEnvironment() {
	if c.App.Debug {
		c.Logger.Level = "debug"
	}
	if c.App.Environment == environmentDev {
		c.Logger.Development = true
	}
	c.Logger.SetDefaults()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app", map[string]any{
		"name":        defaultAppName,
		"environment": "production",
		"debug":       false,
	})
	v.SetDefault("logger", map[string]any{
		"level":        logger.DefaultLevel,
		"format":       logger.DefaultFormat,
		"development":  false,
		"output_paths": []string{"stdout"},
	})
	v.SetDefault("source", map[string]any{
		"kind":          source.KindHTML,
		"tags":          []string{},
		"max_questions": defaultMaxQuestions,
	})
	v.SetDefault("api", map[string]any{
		"base_url":       "https://api.stackexchange.com/2.3",
		"key":            "",
		"site":           "stackoverflow",
		"sort":           "creation",
		"order":          "desc",
		"filter":         "withbody",
		"page_size":      maxAPIPageSize,
		"request_delay":  "100ms",
		"timeout":        "30s",
		"summary_length": source.DefaultSummaryLength,
	})
	v.SetDefault("html", map[string]any{
		"base_url":      "https://stackoverflow.com",
		"sort":          "newest",
		"loader":        source.LoaderHTTP,
		"user_agent":    "",
		"min_delay":     "3s",
		"max_delay":     "8s",
		"max_pages":     0,
		"timeout":       "30s",
		"max_body_size": 0,
		"remote_url":    "",
		"headless":      true,
	})
	v.SetDefault("store", map[string]any{
		"driver": database.DriverSQLite,
		"postgres": map[string]any{
			"host":     "localhost",
			"port":     "5432",
			"user":     "postgres",
			"password": "",
			"dbname":   "so_ingestor",
			"sslmode":  "disable",
		},
		"sqlite": map[string]any{
			"path": defaultSQLitePath,
		},
	})
	v.SetDefault("run", map[string]any{
		"mode":             string(domain.ModeUpsert),
		"analysis_scope":   string(domain.ScopeAll),
		"analysis_enabled": true,
		"audit_dir":        defaultAuditDir,
		"summary_format":   source.SummaryText,
	})
	v.SetDefault("analysis", map[string]any{
		"top_tags":    defaultTopTags,
		"top_authors": defaultTopAuthors,
	})
	v.SetDefault("elasticsearch", map[string]any{
		"enabled":    false,
		"addresses":  []string{"http://127.0.0.1:9200"},
		"username":   "",
		"password":   "",
		"index":      defaultESIndex,
		"batch_size": defaultESBatchSize,
	})
	v.SetDefault("metrics", map[string]any{
		"pushgateway_url": "",
		"job":             defaultMetricsJob,
	})
	v.SetDefault("schedule", map[string]any{
		"cron": defaultCron,
	})
}

// bindEnv binds the variable names used by existing deployments.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"app.environment":         {"APP_ENV"},
		"app.debug":               {"APP_DEBUG"},
		"logger.level":            {"LOG_LEVEL"},
		"logger.format":           {"LOG_FORMAT"},
		"api.key":                 {"STACKOVERFLOW_API_KEY", "API_KEY"},
		"html.user_agent":         {"SO_SCRAPER_USER_AGENT"},
		"html.headless":           {"SO_SCRAPER_HEADLESS"},
		"store.postgres.host":     {"POSTGRES_HOST"},
		"store.postgres.port":     {"POSTGRES_PORT"},
		"store.postgres.user":     {"POSTGRES_USER"},
		"store.postgres.password": {"POSTGRES_PASSWORD"},
		"store.postgres.dbname":   {"POSTGRES_DB"},
		"elasticsearch.addresses": {"ELASTICSEARCH_HOSTS", "ELASTICSEARCH_ADDRESSES"},
		"elasticsearch.password":  {"ELASTIC_PASSWORD", "ELASTICSEARCH_PASSWORD"},
		"metrics.pushgateway_url": {"PUSHGATEWAY_URL"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", strings.Join(envs, ","), err)
		}
	}
	return nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case source.KindAPI, source.KindHTML:
	default:
		return fmt.Errorf("%w: source.kind %q", ErrInvalid, c.Source.Kind)
	}
	if c.Source.MaxQuestions <= 0 {
		return fmt.Errorf("%w: source.max_questions must be positive, got %d", ErrInvalid, c.Source.MaxQuestions)
	}
	if c.API.PageSize < 1 || c.API.PageSize > maxAPIPageSize {
		return fmt.Errorf("%w: api.page_size must be within 1..%d, got %d", ErrInvalid, maxAPIPageSize, c.API.PageSize)
	}
	if c.HTML.MinDelay > c.HTML.MaxDelay {
		return fmt.Errorf("%w: html.min_delay %s exceeds html.max_delay %s", ErrInvalid, c.HTML.MinDelay, c.HTML.MaxDelay)
	}
	switch c.HTML.Loader {
	case source.LoaderHTTP, source.LoaderBrowser:
	default:
		return fmt.Errorf("%w: html.loader %q", ErrInvalid, c.HTML.Loader)
	}
	if c.HTML.MaxPages < 0 {
		return fmt.Errorf("%w: html.max_pages must not be negative", ErrInvalid)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := domain.ParseReconciliationMode(string(c.Run.Mode)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := domain.ParseAnalysisScope(string(c.Run.AnalysisScope)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch c.Run.SummaryFormat {
	case source.SummaryText, source.SummaryMarkdown:
	default:
		return fmt.Errorf("%w: run.summary_format %q", ErrInvalid, c.Run.SummaryFormat)
	}
	if c.Elasticsearch.Enabled && len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("%w: elasticsearch.addresses is required when enabled", ErrInvalid)
	}
	return nil
}
