package execution

import (
	"time"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
)

// Summary is an immutable copy of a run's execution context.
type Summary struct {
	RunID          string                    `json:"run_id"`
	State          string                    `json:"state"`
	States         []string                  `json:"states"`
	Source         string                    `json:"source"`
	Mode           domain.ReconciliationMode `json:"mode"`
	AnalysisScope  domain.AnalysisScope      `json:"analysis_scope"`
	Requested      int                       `json:"requested"`
	Tags           []string                  `json:"tags"`
	StartedAt      time.Time                 `json:"started_at"`
	FinishedAt     time.Time                 `json:"finished_at"`
	Duration       time.Duration             `json:"-"`
	DurationMillis int64                     `json:"duration_ms"`
	Phases         []PhaseTiming             `json:"phases"`
	Counts         Counts                    `json:"counts"`
	Fetch          FetchStats                `json:"fetch"`
	ScopeIDs       domain.IDSet              `json:"scope_ids"`

	AnalysisDispatched bool           `json:"analysis_dispatched"`
	AnalysisSkipReason string         `json:"analysis_skip_reason,omitempty"`
	AnalysisResults    map[string]any `json:"analysis_results,omitempty"`
	AnalysisError      string         `json:"analysis_error,omitempty"`

	Error string `json:"error,omitempty"`
}

// PhaseDuration returns the recorded duration of phase, or zero.
func (s Summary) PhaseDuration(phase Phase) time.Duration {
	var total time.Duration
	for _, p := range s.Phases {
		if p.Phase == phase {
			total += p.Duration
		}
	}
	return total
}

// Failed reports whether the run aborted.
func (s Summary) Failed() bool { return s.Error != "" }
