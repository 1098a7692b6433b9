package model

import (
	"fmt"
	"time"
)

// PriorityClass ranks vessels for berth assignment. Lower is more urgent.
type PriorityClass int

const (
	PriorityHigh   PriorityClass = 1
	PriorityMedium PriorityClass = 2
	PriorityLow    PriorityClass = 3
)

// String returns a human-readable representation of the priority class.
func (p PriorityClass) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Weight maps the class to a multiplier used by scoring and the unassigned
// penalty: high 3, medium 2, low 1.
func (p PriorityClass) Weight() float64 {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

// CargoProfile describes the cargo carried on a visit and the resources its
// handling requires at the quay.
type CargoProfile struct {
	Kind     string               `json:"kind"`
	Tonnage  float64              `json:"tonnage"`
	Required map[ResourceType]int `json:"required"`
}

// Vessel is one vessel visit. Immutable once intake has created it; only
// PredictedETA is refreshed from the external arrival feed.
type Vessel struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	LOA      float64       `json:"loa_m"`
	Beam     float64       `json:"beam_m"`
	Draft    float64       `json:"draft_m"`
	Cargo    CargoProfile  `json:"cargo"`
	Priority PriorityClass `json:"priority"`

	ETA          time.Time     `json:"eta"`
	PredictedETA time.Time     `json:"predicted_eta"`
	ServiceTime  time.Duration `json:"service_time"`
}

// Validate checks that the vessel envelope is sound.
func (v Vessel) Validate() error {
	if v.LOA <= 0 || v.Beam <= 0 || v.Draft <= 0 {
		return fmt.Errorf("vessel %s: dimensions must be positive", v.ID)
	}
	if v.ServiceTime <= 0 {
		return fmt.Errorf("vessel %s: service time must be positive", v.ID)
	}
	return nil
}

// BestETA returns the predicted ETA when one is known, the declared ETA
// otherwise.
func (v Vessel) BestETA() time.Time {
	if !v.PredictedETA.IsZero() {
		return v.PredictedETA
	}
	return v.ETA
}

// RequiredResources returns the resource demand of the visit. The returned
// map is the cargo profile's; callers must not mutate it.
func (v Vessel) RequiredResources() map[ResourceType]int {
	return v.Cargo.Required
}
