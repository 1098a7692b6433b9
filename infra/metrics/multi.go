package metrics

import coremetrics "github.com/quayside/berthd/core/metrics"

// MultiSink fans records out to multiple sinks. Recorders beyond the base
// Sink interface are forwarded only to sinks that implement them.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSolve forwards to all sinks, returning the first error encountered.
func (m *MultiSink) RecordSolve(recs []coremetrics.SolveRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordSolve(recs); err != nil {
			return err
		}
	}
	return nil
}

// RecordConflicts forwards conflict transitions.
func (m *MultiSink) RecordConflicts(ts []coremetrics.ConflictTransition) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.ConflictRecorder); ok {
			if err := rec.RecordConflicts(ts); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSuggestion forwards suggestion records.
func (m *MultiSink) RecordSuggestion(rec coremetrics.SuggestionRecord) error {
	for _, s := range m.Sinks {
		if sr, ok := s.(coremetrics.SuggestionRecorder); ok {
			if err := sr.RecordSuggestion(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordOccupancy forwards occupancy gauges.
func (m *MultiSink) RecordOccupancy(recs []coremetrics.OccupancyRecord) error {
	for _, s := range m.Sinks {
		if or, ok := s.(coremetrics.OccupancyRecorder); ok {
			if err := or.RecordOccupancy(recs); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordCommit forwards committed versions.
func (m *MultiSink) RecordCommit(version uint64, schedules int) error {
	for _, s := range m.Sinks {
		if cr, ok := s.(coremetrics.CommitRecorder); ok {
			if err := cr.RecordCommit(version, schedules); err != nil {
				return err
			}
		}
	}
	return nil
}
