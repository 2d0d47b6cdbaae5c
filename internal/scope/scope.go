// Package scope computes the ids a run hands to downstream analysis.
package scope

import "github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"

// Compute returns the newly affected ids for mode.
//
//	append-only: fetched \ prior   (the ids inserted)
//	update:      fetched ∩ prior   (the ids updated)
//	upsert:      fetched           (every fetched id, inserts and replaces alike)
//
// Upsert deliberately over-approximates: a replaced record counts as new for
// new-only analysis. written is not consulted; see Unwritten.
func Compute(mode domain.ReconciliationMode, fetched, written, prior domain.IDSet) domain.IDSet {
	switch mode {
	case domain.ModeAppendOnly:
		return fetched.Difference(prior)
	case domain.ModeUpdateOnly:
		return fetched.Intersect(prior)
	case domain.ModeUpsert:
		return fetched.Clone()
	default:
		return domain.NewIDSet()
	}
}

// Unwritten returns the scope ids that were not actually written, for
// example because their write failed.
func Unwritten(scope, written domain.IDSet) domain.IDSet {
	return scope.Difference(written)
}
