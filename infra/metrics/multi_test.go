package metrics

import (
	"testing"

	coremetrics "github.com/quayside/berthd/core/metrics"
)

// recordingSink implements every recorder and counts calls.
type recordingSink struct {
	solves     int
	conflicts  int
	occupancy  int
	commits    int
	suggestion int
}

func (r *recordingSink) RecordSolve([]coremetrics.SolveRecord) error { r.solves++; return nil }
func (r *recordingSink) RecordConflicts([]coremetrics.ConflictTransition) error {
	r.conflicts++
	return nil
}
func (r *recordingSink) RecordSuggestion(coremetrics.SuggestionRecord) error {
	r.suggestion++
	return nil
}
func (r *recordingSink) RecordOccupancy([]coremetrics.OccupancyRecord) error {
	r.occupancy++
	return nil
}
func (r *recordingSink) RecordCommit(uint64, int) error { r.commits++; return nil }

// solveOnlySink implements only the base Sink interface.
type solveOnlySink struct{ solves int }

func (s *solveOnlySink) RecordSolve([]coremetrics.SolveRecord) error { s.solves++; return nil }

func TestMultiSinkFansOut(t *testing.T) {
	full := &recordingSink{}
	base := &solveOnlySink{}
	m := NewMultiSink(full, base)

	if err := m.RecordSolve(nil); err != nil {
		t.Fatalf("solve: %v", err)
	}
	if err := m.RecordConflicts(nil); err != nil {
		t.Fatalf("conflicts: %v", err)
	}
	if err := m.RecordOccupancy(nil); err != nil {
		t.Fatalf("occupancy: %v", err)
	}
	if err := m.RecordCommit(1, 0); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := m.RecordSuggestion(coremetrics.SuggestionRecord{}); err != nil {
		t.Fatalf("suggestion: %v", err)
	}

	if full.solves != 1 || full.conflicts != 1 || full.occupancy != 1 || full.commits != 1 || full.suggestion != 1 {
		t.Fatalf("full sink missed records: %+v", full)
	}
	if base.solves != 1 {
		t.Fatalf("base sink must still receive solves: %+v", base)
	}
}
