package validate

import (
	"time"

	"github.com/quayside/berthd/core/model"
	"github.com/quayside/berthd/core/state"
)

// Config holds validation policy knobs.
type Config struct {
	// TidalLookahead bounds the search for a high-tide window that could
	// waive a static draft breach.
	TidalLookaheadHours int `json:"tidal_lookahead_hours"`
	// UKCMarginM is the required under-keel clearance margin in metres.
	UKCMarginM float64 `json:"ukc_margin_m"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.TidalLookaheadHours == 0 {
		c.TidalLookaheadHours = 24
	}
	if c.UKCMarginM == 0 {
		c.UKCMarginM = 0.5
	}
}

// Result is the outcome of a feasibility check.
type Result struct {
	Feasible   bool
	Violations []Violation
}

// Waivable reports whether the only violations are soft tidal ones, meaning
// the triple may be committed with an explicit tidal waiver.
func (r Result) Waivable() bool {
	if r.Feasible || len(r.Violations) == 0 {
		return false
	}
	for _, v := range r.Violations {
		if v.Hard() {
			return false
		}
	}
	return true
}

// Validator is a pure predicate over snapshot state. It never mutates.
type Validator struct {
	cfg Config
}

// New creates a Validator.
func New(cfg Config) *Validator {
	cfg.SetDefaults()
	return &Validator{cfg: cfg}
}

// Check determines whether the vessel can occupy the berth over the window
// given the snapshot's schedules and allocations. Checks run in order:
// dimensional, temporal, operational, resource. Hard dimensional failures
// short-circuit; everything else accumulates.
func (vd *Validator) Check(snap *state.Snapshot, vessel model.Vessel, berth model.Berth, w model.Window) Result {
	var vs []Violation

	if vessel.LOA > berth.MaxLOA {
		vs = append(vs, DimensionViolation{Axis: "LOA", VesselValue: vessel.LOA, BerthLimit: berth.MaxLOA})
	}
	if vessel.Beam > berth.MaxBeam {
		vs = append(vs, DimensionViolation{Axis: "beam", VesselValue: vessel.Beam, BerthLimit: berth.MaxBeam})
	}
	if len(vs) > 0 {
		return Result{Feasible: false, Violations: vs}
	}

	if vessel.Draft > berth.MaxDraft {
		vs = append(vs, vd.tidalCheck(snap, vessel, berth, w))
	}

	for _, other := range snap.SchedulesOnBerth(berth.ID) {
		if other.VesselID == vessel.ID {
			continue // reassigning the vessel's own call
		}
		if ov, ok := w.Intersect(other.Window); ok {
			vs = append(vs, OverlapViolation{OtherScheduleID: other.ID, Overlap: ov})
		}
	}

	if berth.Status == model.BerthMaintenance {
		vs = append(vs, MaintenanceViolation{Window: w})
	} else if mw, ok := berth.MaintenanceDuring(w); ok {
		vs = append(vs, MaintenanceViolation{Window: mw})
	}

	vs = append(vs, vd.resourceCheck(snap, vessel, w)...)

	// A result with only waivable tidal violations is not feasible as-is;
	// Waivable() tells callers a commit with an explicit waiver would be.
	return Result{Feasible: len(vs) == 0, Violations: vs}
}

// tidalCheck qualifies a static draft breach against the tide table. The
// breach is soft when the water depth at arrival, or a high-tide window
// within the lookahead, covers the draft plus the UKC margin.
func (vd *Validator) tidalCheck(snap *state.Snapshot, vessel model.Vessel, berth model.Berth, w model.Window) Violation {
	needed := vessel.Draft + vd.cfg.UKCMarginM - berth.MaxDraft
	if snap.Tides.HeightAt(w.Start) >= needed {
		return TidalViolation{
			Draft:       vessel.Draft,
			StaticLimit: berth.MaxDraft,
			HighTide:    model.Window{Start: w.Start, End: w.Start.Add(time.Hour)},
			Waivable:    true,
		}
	}
	lookahead := time.Duration(vd.cfg.TidalLookaheadHours) * time.Hour
	if hw, ok := snap.Tides.NextWindowAbove(needed, w.Start, lookahead); ok {
		return TidalViolation{Draft: vessel.Draft, StaticLimit: berth.MaxDraft, HighTide: hw, Waivable: true}
	}
	return TidalViolation{Draft: vessel.Draft, StaticLimit: berth.MaxDraft, Waivable: false}
}

// resourceCheck verifies that every required resource type has enough free
// capacity throughout the window.
func (vd *Validator) resourceCheck(snap *state.Snapshot, vessel model.Vessel, w model.Window) []Violation {
	var vs []Violation
	for _, rt := range orderedTypes(vessel.RequiredResources()) {
		required := vessel.RequiredResources()[rt]
		if required <= 0 {
			continue
		}
		free := FreeCapacity(snap, rt, w)
		if free < required {
			vs = append(vs, ResourceViolation{Type: rt, Required: required, Free: free})
		}
	}
	return vs
}

// FreeCapacity returns the minimum free capacity of a resource type over the
// window: total capacity of available units minus the peak concurrently
// allocated quantity intersecting the window. The peak is taken over the
// pooled allocations of all units; per-unit peaks at disjoint times must not
// stack.
func FreeCapacity(snap *state.Snapshot, rt model.ResourceType, w model.Window) int {
	total := 0
	var allocs []model.ResourceAllocation
	for _, unit := range snap.ResourcesOfType(rt) {
		total += unit.Capacity
		allocs = append(allocs, snap.AllocationsForResource(unit.ID)...)
	}
	return total - peakInWindow(allocs, w)
}

func peakInWindow(allocs []model.ResourceAllocation, w model.Window) int {
	type edge struct {
		at    time.Time
		delta int
	}
	var edges []edge
	for _, a := range allocs {
		ov, ok := a.Window.Intersect(w)
		if !ok {
			continue
		}
		edges = append(edges, edge{ov.Start, a.Quantity}, edge{ov.End, -a.Quantity})
	}
	if len(edges) == 0 {
		return 0
	}
	// Insertion-sort scale inputs; windows per unit stay small.
	for i := 1; i < len(edges); i++ {
		for j := i; j > 0; j-- {
			ei, ej := edges[j], edges[j-1]
			if ei.at.Before(ej.at) || (ei.at.Equal(ej.at) && ei.delta < ej.delta) {
				edges[j], edges[j-1] = ej, ei
			} else {
				break
			}
		}
	}
	cur, peak := 0, 0
	for _, e := range edges {
		cur += e.delta
		if cur > peak {
			peak = cur
		}
	}
	return peak
}

func orderedTypes(req map[model.ResourceType]int) []model.ResourceType {
	out := make([]model.ResourceType, 0, len(req))
	for rt := range req {
		out = append(out, rt)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
