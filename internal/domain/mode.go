package domain

import "fmt"

// ReconciliationMode governs which fetched records are persisted.
type ReconciliationMode string

const (
	// ModeUpsert writes every fetched record, inserting or replacing by id.
	ModeUpsert ReconciliationMode = "upsert"
	// ModeUpdateOnly writes only records whose id is already stored.
	ModeUpdateOnly ReconciliationMode = "update"
	// ModeAppendOnly writes only records whose id is not yet stored.
	ModeAppendOnly ReconciliationMode = "append-only"
)

// ParseReconciliationMode parses the external mode name.
func ParseReconciliationMode(s string) (ReconciliationMode, error) {
	switch m := ReconciliationMode(s); m {
	case ModeUpsert, ModeUpdateOnly, ModeAppendOnly:
		return m, nil
	case "":
		return ModeUpsert, nil
	default:
		return "", fmt.Errorf("invalid reconciliation mode %q (want upsert, update or append-only)", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ReconciliationMode) UnmarshalText(text []byte) error {
	parsed, err := ParseReconciliationMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m ReconciliationMode) String() string { return string(m) }

// AnalysisScope selects which records the downstream analysis receives.
type AnalysisScope string

const (
	// ScopeAll analyzes every stored record.
	ScopeAll AnalysisScope = "all"
	// ScopeNewOnly analyzes only the ids computed by the scope tracker.
	ScopeNewOnly AnalysisScope = "new-only"
)

// ParseAnalysisScope parses the external scope name.
func ParseAnalysisScope(s string) (AnalysisScope, error) {
	switch sc := AnalysisScope(s); sc {
	case ScopeAll, ScopeNewOnly:
		return sc, nil
	case "":
		return ScopeAll, nil
	default:
		return "", fmt.Errorf("invalid analysis scope %q (want all or new-only)", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *AnalysisScope) UnmarshalText(text []byte) error {
	parsed, err := ParseAnalysisScope(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s AnalysisScope) String() string { return string(s) }
