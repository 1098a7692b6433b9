package metrics

import "time"

// SolveRecord captures one optimizer run for observability purposes.
type SolveRecord struct {
	Trigger    string
	Assigned   int
	Unassigned int
	Objective  float64
	Duration   time.Duration
	Escalated  bool
	Partial    bool
	Time       time.Time
}

// Sink records solve results.
type Sink interface {
	RecordSolve(records []SolveRecord) error
}

// ConflictTransition captures a conflict opening or closing.
type ConflictTransition struct {
	Kind     string
	Severity int
	Opened   bool
	Time     time.Time
}

// ConflictRecorder records conflict transitions.
type ConflictRecorder interface {
	RecordConflicts(ts []ConflictTransition) error
}

// SuggestionRecord captures one suggestion request.
type SuggestionRecord struct {
	VesselID   string
	Candidates int
	Latency    time.Duration
	Time       time.Time
}

// SuggestionRecorder records suggestion requests.
type SuggestionRecorder interface {
	RecordSuggestion(rec SuggestionRecord) error
}

// OccupancyRecord is the scheduled utilisation of one berth over the
// reporting horizon, as a fraction of its hours.
type OccupancyRecord struct {
	BerthID  string
	Fraction float64
	Time     time.Time
}

// OccupancyRecorder records berth occupancy gauges.
type OccupancyRecorder interface {
	RecordOccupancy(recs []OccupancyRecord) error
}

// CommitRecorder records committed snapshot versions.
type CommitRecorder interface {
	RecordCommit(version uint64, schedules int) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordSolve([]SolveRecord) error            { return nil }
func (NopSink) RecordConflicts([]ConflictTransition) error { return nil }
func (NopSink) RecordSuggestion(SuggestionRecord) error    { return nil }
func (NopSink) RecordOccupancy([]OccupancyRecord) error    { return nil }
func (NopSink) RecordCommit(uint64, int) error             { return nil }
