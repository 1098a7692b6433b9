package model

import "fmt"

// BerthStatus is the operational state of a berth.
type BerthStatus int

const (
	BerthAvailable BerthStatus = iota
	BerthOccupied
	BerthMaintenance
)

// String returns a human-readable representation of the berth status.
func (s BerthStatus) String() string {
	switch s {
	case BerthAvailable:
		return "available"
	case BerthOccupied:
		return "occupied"
	case BerthMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// Berth is a physical mooring location with fixed dimensional limits.
// Mutated only by maintenance windows and schedule commits.
type Berth struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	MaxLOA   float64 `json:"max_loa_m"`
	MaxBeam  float64 `json:"max_beam_m"`
	MaxDraft float64 `json:"max_draft_m"`
	Length   float64 `json:"length_m"`

	Status      BerthStatus `json:"status"`
	Maintenance []Window    `json:"maintenance,omitempty"`
}

// Accommodates reports whether the vessel fits the berth's static envelope.
// The draft check here ignores tide; the validator qualifies it.
func (b Berth) Accommodates(v Vessel) bool {
	return v.LOA <= b.MaxLOA && v.Beam <= b.MaxBeam
}

// MaintenanceDuring returns the first maintenance window overlapping w.
func (b Berth) MaintenanceDuring(w Window) (Window, bool) {
	for _, m := range b.Maintenance {
		if m.Overlaps(w) {
			return m, true
		}
	}
	return Window{}, false
}

// Validate checks that the berth limits are sound.
func (b Berth) Validate() error {
	if b.MaxLOA <= 0 || b.MaxBeam <= 0 || b.MaxDraft <= 0 {
		return fmt.Errorf("berth %s: limits must be positive", b.ID)
	}
	return nil
}
