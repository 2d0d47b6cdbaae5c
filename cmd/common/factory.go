package common

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/analysis"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/audit"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/database"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/fetcher"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/metrics"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/pipeline"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/search"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/source"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store/memory"
)

// OpenStore opens the configured store, logging through the logger carried
// by ctx. The memory driver lives only as long as the returned value.
func OpenStore(ctx context.Context, cfg database.Config) (store.Store, error) {
	log := logger.FromContext(ctx).With(logger.Component("store"), logger.String("driver", cfg.Driver))

	if cfg.Driver == database.DriverMemory {
		log.Debug("Using in-memory store")
		return memory.New(), nil
	}
	st, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Error("Failed to open store", logger.Error(err))
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Driver, err)
	}
	log.Debug("Store opened")
	return st, nil
}

// NewAPISource builds the REST source with the configured summary format.
func NewAPISource(cfg *config.Config, log logger.Logger) (*source.APISource, error) {
	summarize, err := source.NewSummarizer(cfg.Run.SummaryFormat, cfg.API.SummaryLength)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: cfg.API.WithDefaults().Timeout}
	return source.NewAPISource(cfg.API, client, summarize, log), nil
}

// NewSource builds the configured record source.
func NewSource(cfg *config.Config, log logger.Logger) (source.Source, error) {
	switch cfg.Source.Kind {
	case source.KindAPI:
		src, err := NewAPISource(cfg, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	case source.KindHTML:
		var loader source.PageLoader
		switch cfg.HTML.Loader {
		case source.LoaderBrowser:
			loader = source.NewBrowserLoader(cfg.HTML.HTMLConfig, log)
		default:
			loader = source.NewCollyLoader(cfg.HTML.HTMLConfig)
		}
		return source.NewHTMLSource(cfg.HTML.HTMLConfig, loader, log), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

// NewAnalyzer builds the analysis chain: the summary analyzer, then the
// search indexer when Elasticsearch is enabled.
func NewAnalyzer(cfg *config.Config, st store.Store, log logger.Logger) (analysis.Analyzer, error) {
	analyzers := []analysis.Analyzer{analysis.NewSummary(st, st, cfg.Analysis, log)}

	if cfg.Elasticsearch.Enabled {
		client, err := search.NewClient(cfg.Elasticsearch, nil)
		if err != nil {
			return nil, err
		}
		analyzers = append(analyzers, search.NewIndexer(client, st, cfg.Elasticsearch, log))
	}

	multi := analysis.NewMulti(log, analyzers...)
	log.Debug("Analysis chain built", logger.Int("analyzers", multi.Len()))
	return multi, nil
}

// NewRequest turns the run section of cfg into a pipeline request.
func NewRequest(cfg *config.Config) pipeline.Request {
	return pipeline.Request{
		MaxCount:        cfg.Source.MaxQuestions,
		Tags:            cfg.Source.Tags,
		Mode:            cfg.Run.Mode,
		Scope:           cfg.Run.AnalysisScope,
		AnalysisEnabled: cfg.Run.AnalysisEnabled,
	}
}

// NewOrchestrator wires a single-use orchestrator with a fresh source and
// store. recorder may be shared across runs.
func NewOrchestrator(ctx context.Context, deps CommandDeps, recorder *metrics.Recorder) (*pipeline.Orchestrator, error) {
	cfg := deps.Config

	st, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	src, err := NewSource(cfg, deps.Logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	analyzer, err := NewAnalyzer(cfg, st, deps.Logger)
	if err != nil {
		_ = src.Close()
		_ = st.Close()
		return nil, err
	}

	var fetchOpts []fetcher.Option
	if cfg.Source.Kind == source.KindHTML && cfg.HTML.MaxPages > 0 {
		fetchOpts = append(fetchOpts, fetcher.WithMaxPages(cfg.HTML.MaxPages))
	}

	if recorder == nil {
		recorder = metrics.NewRecorder(cfg.Metrics)
	}

	return pipeline.New(pipeline.Deps{
		Source:       src,
		Store:        st,
		Analyzer:     analyzer,
		Audit:        audit.NewWriter(cfg.Run.AuditDir),
		Metrics:      recorder,
		Logger:       deps.Logger,
		FetchOptions: fetchOpts,
	}), nil
}
