// Package metrics exposes run outcomes as Prometheus metrics and pushes
// them to a Pushgateway when one is configured.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/execution"
)

const namespace = "so_ingestor"

// Config configures the push target.
type Config struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Recorder holds the run metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry
	cfg      Config

	Runs            *prometheus.CounterVec
	QuestionsFetch  prometheus.Counter
	QuestionsStored prometheus.Counter
	WriteErrors     prometheus.Counter
	Drift           prometheus.Counter
	AuthorsByKind   *prometheus.CounterVec
	PartialFetches  *prometheus.CounterVec
	PhaseDuration   *prometheus.HistogramVec
	ScopeSize       prometheus.Gauge
	LastRunSeconds  prometheus.Gauge
	LastSuccess     prometheus.Gauge
}

// NewRecorder registers the run metrics on a fresh registry.
func NewRecorder(cfg Config) *Recorder {
	if cfg.Job == "" {
		cfg.Job = namespace
	}
	reg := prometheus.NewRegistry()
	r := &Recorder{registry: reg, cfg: cfg}
	initRunMetrics(r, promauto.With(reg))
	initPhaseMetrics(r, promauto.With(reg))
	return r
}

func initRunMetrics(r *Recorder, f promauto.Factory) {
	r.Runs = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Ingestion runs by terminal state",
	}, []string{"state", "mode"})

	r.QuestionsFetch = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "questions_fetched_total",
		Help:      "Questions returned by the fetch engine",
	})

	r.QuestionsStored = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "questions_stored_total",
		Help:      "Questions written to the store",
	})

	r.WriteErrors = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "write_errors_total",
		Help:      "Question writes that failed",
	})

	r.Drift = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_drift_total",
		Help:      "Writes whose result contradicted the existing-id snapshot",
	})

	r.AuthorsByKind = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authors_total",
		Help:      "Author aggregate writes by classification",
	}, []string{"kind"})

	r.PartialFetches = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "partial_fetches_total",
		Help:      "Fetches cut short, by stop reason",
	}, []string{"reason"})

	r.ScopeSize = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_scope_size",
		Help:      "Size of the scope set of the last run",
	})

	r.LastRunSeconds = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Finish time of the last run",
	})

	r.LastSuccess = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_success",
		Help:      "1 if the last run finalized, 0 if it failed",
	})
}

func initPhaseMetrics(r *Recorder, f promauto.Factory) {
	r.PhaseDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "phase_duration_seconds",
		Help:      "Wall-clock duration of each run phase",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"phase"})
}

// Registry exposes the private registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Observe records a finished run.
func (r *Recorder) Observe(s execution.Summary) {
	r.Runs.WithLabelValues(s.State, s.Mode.String()).Inc()
	r.QuestionsFetch.Add(float64(s.Counts.Fetched))
	r.QuestionsStored.Add(float64(s.Counts.Stored))
	r.WriteErrors.Add(float64(s.Counts.WriteErrors))
	r.Drift.Add(float64(s.Counts.Drift))
	r.AuthorsByKind.WithLabelValues("new").Add(float64(s.Counts.NewAuthors))
	r.AuthorsByKind.WithLabelValues("updated").Add(float64(s.Counts.UpdatedAuthors))
	r.AuthorsByKind.WithLabelValues("error").Add(float64(s.Counts.AuthorErrors))
	if s.Fetch.Partial {
		r.PartialFetches.WithLabelValues(s.Fetch.StopReason).Inc()
	}
	for _, p := range s.Phases {
		r.PhaseDuration.WithLabelValues(string(p.Phase)).Observe(p.Duration.Seconds())
	}
	r.ScopeSize.Set(float64(s.ScopeIDs.Len()))
	r.LastRunSeconds.Set(float64(s.FinishedAt.Unix()))
	if s.Failed() {
		r.LastSuccess.Set(0)
	} else {
		r.LastSuccess.Set(1)
	}
}

// Enabled reports whether a Pushgateway is configured.
func (r *Recorder) Enabled() bool { return r.cfg.PushgatewayURL != "" }

// Push sends the registry to the Pushgateway. It is a no-op when none is configured.
func (r *Recorder) Push(ctx context.Context) error {
	if !r.Enabled() {
		return nil
	}
	if err := push.New(r.cfg.PushgatewayURL, r.cfg.Job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
