package validate

import (
	"fmt"

	"github.com/quayside/berthd/core/model"
)

// ViolationKind enumerates the closed set of constraint violations.
type ViolationKind int

const (
	ViolationDimension ViolationKind = iota
	ViolationTidal
	ViolationOverlap
	ViolationMaintenance
	ViolationResource
)

// String returns a human-readable representation of the violation kind.
func (k ViolationKind) String() string {
	switch k {
	case ViolationDimension:
		return "dimension"
	case ViolationTidal:
		return "tidal"
	case ViolationOverlap:
		return "overlap"
	case ViolationMaintenance:
		return "maintenance"
	case ViolationResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Violation is one failed constraint check. Each kind carries its own typed
// payload; infeasibility is data, never an error.
type Violation interface {
	Kind() ViolationKind
	// Hard reports whether the violation is non-waivable.
	Hard() bool
	Detail() string
}

// DimensionViolation reports a static envelope breach (LOA or beam).
type DimensionViolation struct {
	Axis        string
	VesselValue float64
	BerthLimit  float64
}

func (DimensionViolation) Kind() ViolationKind { return ViolationDimension }
func (DimensionViolation) Hard() bool          { return true }
func (v DimensionViolation) Detail() string {
	return fmt.Sprintf("%s %.1fm exceeds berth limit %.1fm", v.Axis, v.VesselValue, v.BerthLimit)
}

// TidalViolation reports a draft exceeding the berth's static limit. Waivable
// when a usable high-tide window exists within the configured lookahead.
type TidalViolation struct {
	Draft       float64
	StaticLimit float64
	HighTide    model.Window
	Waivable    bool
}

func (TidalViolation) Kind() ViolationKind { return ViolationTidal }
func (v TidalViolation) Hard() bool        { return !v.Waivable }
func (v TidalViolation) Detail() string {
	if v.Waivable {
		return fmt.Sprintf("draft %.1fm exceeds static limit %.1fm; high tide window %s available", v.Draft, v.StaticLimit, v.HighTide)
	}
	return fmt.Sprintf("draft %.1fm exceeds static limit %.1fm with no usable tide window", v.Draft, v.StaticLimit)
}

// OverlapViolation reports a window collision with an existing schedule.
type OverlapViolation struct {
	OtherScheduleID string
	Overlap         model.Window
}

func (OverlapViolation) Kind() ViolationKind { return ViolationOverlap }
func (OverlapViolation) Hard() bool          { return true }
func (v OverlapViolation) Detail() string {
	return fmt.Sprintf("window collides with schedule %s over %s", v.OtherScheduleID, v.Overlap)
}

// MaintenanceViolation reports a berth maintenance interval inside the window.
type MaintenanceViolation struct {
	Window model.Window
}

func (MaintenanceViolation) Kind() ViolationKind { return ViolationMaintenance }
func (MaintenanceViolation) Hard() bool          { return true }
func (v MaintenanceViolation) Detail() string {
	return fmt.Sprintf("berth under maintenance during %s", v.Window)
}

// ResourceViolation reports insufficient free capacity of one resource type.
type ResourceViolation struct {
	Type     model.ResourceType
	Required int
	Free     int
}

func (ResourceViolation) Kind() ViolationKind { return ViolationResource }
func (ResourceViolation) Hard() bool          { return true }
func (v ResourceViolation) Detail() string {
	return fmt.Sprintf("%s: need %d, %d free in window", v.Type, v.Required, v.Free)
}
