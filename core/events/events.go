package events

import (
	"time"

	"github.com/quayside/berthd/core/model"
)

// CommitEvent is published after a schedule batch is applied atomically.
type CommitEvent struct {
	Version   uint64
	Schedules []model.Schedule
	At        time.Time
}

// TriggerEvent is published when a disruption trigger is accepted into the
// reoptimization queue.
type TriggerEvent struct {
	VesselID string
	Kind     string
	At       time.Time
}

// SolveEvent is emitted when the optimizer chooses a strategy.
// Action can be "lp_attempt", "lp_failure", "greedy_fallback" or "escalate".
type SolveEvent struct {
	Action string
	Err    error
}

// ConflictEvent is published when the detector opens or closes conflicts.
type ConflictEvent struct {
	Opened []model.Conflict
	Closed []model.Conflict
}
