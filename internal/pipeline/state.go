package pipeline

import "fmt"

// State is an orchestrator state.
type State string

const (
	StateInit               State = "Init"
	StateFetching           State = "Fetching"
	StateReconciling        State = "Reconciling"
	StateScopeComputed      State = "ScopeComputed"
	StateAnalysisDispatched State = "AnalysisDispatched"
	StateAnalysisSkipped    State = "AnalysisSkipped"
	StateFinalized          State = "Finalized"
	StateFailed             State = "Failed"
)

var validTransitions = map[State][]State{
	StateInit:               {StateFetching, StateFailed},
	StateFetching:           {StateReconciling, StateFailed},
	StateReconciling:        {StateScopeComputed, StateFailed},
	StateScopeComputed:      {StateAnalysisDispatched, StateAnalysisSkipped, StateFailed},
	StateAnalysisDispatched: {StateFinalized, StateFailed},
	StateAnalysisSkipped:    {StateFinalized, StateFailed},
	// Terminal states
	StateFinalized: {},
	StateFailed:    {},
}

// ValidateStateTransition checks if a state transition is valid.
func ValidateStateTransition(from, to State) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid state transition from %s to %s", from, to)
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateFailed
}

type machine struct {
	state   State
	onEnter func(State)
}

func newMachine(onEnter func(State)) *machine {
	m := &machine{state: StateInit, onEnter: onEnter}
	if onEnter != nil {
		onEnter(StateInit)
	}
	return m
}

func (m *machine) to(next State) error {
	if err := ValidateStateTransition(m.state, next); err != nil {
		return err
	}
	m.state = next
	if m.onEnter != nil {
		m.onEnter(next)
	}
	return nil
}

// fail moves to Failed from any non-terminal state.
func (m *machine) fail() {
	if m.state.Terminal() {
		return
	}
	_ = m.to(StateFailed)
}
