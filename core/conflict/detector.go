package conflict

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/quayside/berthd/core/logger"
	"github.com/quayside/berthd/core/model"
	"github.com/quayside/berthd/core/state"
	"github.com/quayside/berthd/core/suggest"
)

// Config holds detection policy.
type Config struct {
	// WindowHours is how far ahead of the reference time to scan.
	WindowHours int `json:"window_hours"`
	// UKCMarginM is the under-keel clearance margin used when re-checking
	// tidal waivers against the current tide table.
	UKCMarginM float64 `json:"ukc_margin_m"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.WindowHours == 0 {
		c.WindowHours = 48
	}
	if c.UKCMarginM == 0 {
		c.UKCMarginM = 0.5
	}
}

// Detector scans a snapshot for schedule conflicts. Detection is a pure read:
// it never mutates state, and two runs over the same snapshot produce the
// same conflicts in the same order (surrogate IDs aside; identity is Key).
type Detector struct {
	cfg Config
	sug *suggest.Suggester
	log logger.Logger
}

// New creates a Detector. The suggester probes whether a conflicted vessel
// has an alternative berth, which marks the conflict auto-resolvable.
func New(cfg Config, sug *suggest.Suggester, log logger.Logger) *Detector {
	cfg.SetDefaults()
	return &Detector{cfg: cfg, sug: sug, log: log}
}

// Detect returns all conflicts among schedules active within
// [now, now+WindowHours). Tolerated overlaps are skipped.
func (d *Detector) Detect(snap *state.Snapshot, now time.Time) []model.Conflict {
	scan := model.Window{Start: now, End: now.Add(time.Duration(d.cfg.WindowHours) * time.Hour)}

	var out []model.Conflict
	out = append(out, d.berthConflicts(snap, scan)...)
	out = append(out, d.resourceConflicts(snap, scan)...)
	out = append(out, d.tidalConflicts(snap, scan)...)

	for i := range out {
		out[i].ID = "CNF-" + uuid.NewString()
		out[i].Status = model.ConflictDetected
		out[i].DetectedAt = now
		out[i].AutoResolvable = d.autoResolvable(snap, out[i])
	}
	model.SortConflicts(out)
	if len(out) > 0 {
		d.log.Infof("detected %d conflicts in the next %dh", len(out), d.cfg.WindowHours)
	}
	return out
}

// berthConflicts finds pairwise window collisions and priority inversions on
// each berth.
func (d *Detector) berthConflicts(snap *state.Snapshot, scan model.Window) []model.Conflict {
	var out []model.Conflict
	for _, berth := range snap.SortedBerths() {
		scheds := inScan(snap.SchedulesOnBerth(berth.ID), scan)
		for i := 0; i < len(scheds); i++ {
			for j := i + 1; j < len(scheds); j++ {
				a, b := scheds[i], scheds[j]
				ov, ok := a.Window.Intersect(b.Window)
				if ok && !a.ConflictTolerated && !b.ConflictTolerated {
					out = append(out, model.Conflict{
						Kind:            model.BerthOverlap,
						Severity:        overlapSeverity(ov.Duration()),
						ScheduleID:      a.ID,
						OtherScheduleID: b.ID,
						Detail: fmt.Sprintf("schedules %s and %s overlap on berth %s for %s",
							a.ID, b.ID, berth.ID, ov.Duration()),
					})
				}
				out = append(out, d.priorityInversion(snap, berth, a, b)...)
			}
		}
	}
	return out
}

// priorityInversion flags a higher-priority vessel waiting past its ETA
// behind a lower-priority call on the same berth.
func (d *Detector) priorityInversion(snap *state.Snapshot, berth model.Berth, a, b model.Schedule) []model.Conflict {
	// a starts first: SchedulesOnBerth is sorted by window start.
	va, aok := snap.Vessels[a.VesselID]
	vb, bok := snap.Vessels[b.VesselID]
	if !aok || !bok {
		return nil
	}
	if vb.Priority >= va.Priority {
		return nil
	}
	if vb.BestETA().After(a.Window.Start) {
		return nil
	}
	return []model.Conflict{{
		Kind:            model.PriorityViolation,
		Severity:        model.SeverityLow,
		ScheduleID:      b.ID,
		OtherScheduleID: a.ID,
		Detail: fmt.Sprintf("%s-priority vessel %s waits behind %s-priority vessel %s on berth %s",
			vb.Priority, vb.ID, va.Priority, va.ID, berth.ID),
	}}
}

// resourceConflicts re-checks each schedule's resource demand against what
// the pool can still supply, excluding the schedule's own allocations.
func (d *Detector) resourceConflicts(snap *state.Snapshot, scan model.Window) []model.Conflict {
	var out []model.Conflict
	for _, sc := range snap.SortedSchedules() {
		if !sc.Active() || !sc.Window.Overlaps(scan) {
			continue
		}
		vessel, ok := snap.Vessels[sc.VesselID]
		if !ok {
			continue
		}
		required := vessel.RequiredResources()
		for _, rt := range sortedTypes(required) {
			need := required[rt]
			if need <= 0 {
				continue
			}
			free := freeExcluding(snap, rt, sc.Window, sc.ID)
			if free >= need {
				continue
			}
			out = append(out, model.Conflict{
				Kind:       model.ResourceUnavailable,
				Severity:   model.SeverityHigh,
				ScheduleID: sc.ID,
				Detail: fmt.Sprintf("schedule %s needs %d %s, only %d free during %s",
					sc.ID, need, rt, free, sc.Window),
			})
		}
	}
	return out
}

// tidalConflicts re-validates every draft-limited schedule against the
// current tide table. A waiver granted on stale predictions that no longer
// hold is itself the conflict.
func (d *Detector) tidalConflicts(snap *state.Snapshot, scan model.Window) []model.Conflict {
	var out []model.Conflict
	for _, sc := range snap.SortedSchedules() {
		if !sc.Active() || !sc.Window.Overlaps(scan) {
			continue
		}
		vessel, vok := snap.Vessels[sc.VesselID]
		berth, bok := snap.Berths[sc.BerthID]
		if !vok || !bok || vessel.Draft <= berth.MaxDraft {
			continue
		}
		needed := vessel.Draft + d.cfg.UKCMarginM - berth.MaxDraft
		height := snap.Tides.HeightAt(sc.Window.Start)
		if sc.TidalWaiver && height >= needed {
			continue
		}
		detail := fmt.Sprintf("draft %.1fm needs %.1fm of tide at %s, predicted %.1fm",
			vessel.Draft, needed, sc.Window.Start.Format(time.RFC3339), height)
		if !sc.TidalWaiver {
			detail = fmt.Sprintf("draft %.1fm exceeds berth %s limit %.1fm with no tidal waiver",
				vessel.Draft, berth.ID, berth.MaxDraft)
		}
		out = append(out, model.Conflict{
			Kind:       model.TidalConstraint,
			Severity:   model.SeverityHigh,
			ScheduleID: sc.ID,
			Detail:     detail,
		})
	}
	return out
}

// autoResolvable probes whether any involved vessel has at least one
// alternative feasible berth window right now. Moving either side of a
// pairwise conflict clears it.
func (d *Detector) autoResolvable(snap *state.Snapshot, c model.Conflict) bool {
	if d.sug == nil {
		return false
	}
	for _, sid := range []string{c.ScheduleID, c.OtherScheduleID} {
		sc, ok := snap.Schedules[sid]
		if !ok {
			continue
		}
		res, err := d.sug.Suggest(snap, sc.VesselID, time.Time{}, 1)
		if err == nil && len(res.Candidates) > 0 {
			return true
		}
	}
	return false
}

// overlapSeverity scales with how much of the two calls collide.
func overlapSeverity(d time.Duration) model.ConflictSeverity {
	switch {
	case d >= 4*time.Hour:
		return model.SeverityCritical
	case d >= 2*time.Hour:
		return model.SeverityHigh
	case d >= 30*time.Minute:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func inScan(scheds []model.Schedule, scan model.Window) []model.Schedule {
	out := scheds[:0:0]
	for _, sc := range scheds {
		if sc.Active() && sc.Window.Overlaps(scan) {
			out = append(out, sc)
		}
	}
	return out
}

// freeExcluding is the minimum spare capacity of rt across w, ignoring
// allocations held by the given schedule.
func freeExcluding(snap *state.Snapshot, rt model.ResourceType, w model.Window, scheduleID string) int {
	total := 0
	for _, u := range snap.ResourcesOfType(rt) {
		if u.Available {
			total += u.Capacity
		}
	}
	type edge struct {
		at    time.Time
		delta int
	}
	var edges []edge
	for _, u := range snap.ResourcesOfType(rt) {
		for _, a := range snap.AllocationsForResource(u.ID) {
			if a.ScheduleID == scheduleID {
				continue
			}
			ov, ok := a.Window.Intersect(w)
			if !ok {
				continue
			}
			edges = append(edges, edge{ov.Start, a.Quantity}, edge{ov.End, -a.Quantity})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].at.Equal(edges[j].at) {
			return edges[i].at.Before(edges[j].at)
		}
		return edges[i].delta < edges[j].delta
	})
	cur, peak := 0, 0
	for _, e := range edges {
		cur += e.delta
		if cur > peak {
			peak = cur
		}
	}
	return total - peak
}

func sortedTypes(m map[model.ResourceType]int) []model.ResourceType {
	out := make([]model.ResourceType, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
