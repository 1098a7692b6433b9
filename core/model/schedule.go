package model

import "time"

// ScheduleStatus is the lifecycle state of a berth call.
type ScheduleStatus int

const (
	StatusScheduled ScheduleStatus = iota
	StatusApproaching
	StatusBerthed
	StatusDeparted
	StatusCancelled
)

// String returns a human-readable representation of the status.
func (s ScheduleStatus) String() string {
	switch s {
	case StatusScheduled:
		return "scheduled"
	case StatusApproaching:
		return "approaching"
	case StatusBerthed:
		return "berthed"
	case StatusDeparted:
		return "departed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Schedule assigns a vessel to a berth for a window. At most one active
// schedule exists per vessel; windows of non-cancelled schedules on one berth
// never overlap unless ConflictTolerated is set.
type Schedule struct {
	ID       string `json:"id"`
	VesselID string `json:"vessel_id"`
	BerthID  string `json:"berth_id"`
	Window   Window `json:"window"`

	PredictedETA time.Time `json:"predicted_eta,omitempty"`
	ATA          time.Time `json:"ata,omitempty"`
	ATB          time.Time `json:"atb,omitempty"`
	ATD          time.Time `json:"atd,omitempty"`

	Status ScheduleStatus `json:"status"`
	// ConflictTolerated marks an overlap an operator chose to live with.
	ConflictTolerated bool `json:"conflict_tolerated,omitempty"`
	// TidalWaiver records that the draft exceeds the berth's static limit
	// and the call relies on a verified high-tide window.
	TidalWaiver bool `json:"tidal_waiver,omitempty"`
}

// Terminal reports whether the schedule is immutable history.
func (s Schedule) Terminal() bool {
	return s.Status == StatusDeparted || s.Status == StatusCancelled
}

// Active reports whether the schedule still occupies its berth window.
func (s Schedule) Active() bool { return !s.Terminal() }

// Reassignable reports whether the engine may still move the call. Berthed
// vessels are physically committed to their berth.
func (s Schedule) Reassignable() bool {
	return s.Status == StatusScheduled || s.Status == StatusApproaching
}
