package state

import (
	"sort"

	"github.com/quayside/berthd/core/model"
)

// Snapshot is one immutable version of the port's scheduling state. Readers
// hold a *Snapshot and never observe partially committed writes; every commit
// produces a new version.
type Snapshot struct {
	Version uint64

	Vessels     map[string]model.Vessel
	Berths      map[string]model.Berth
	Resources   map[string]model.ResourceUnit
	Schedules   map[string]model.Schedule
	Allocations map[string]model.ResourceAllocation
	Conflicts   map[string]model.Conflict
	Tides       model.TideTable
}

// NewSnapshot returns an empty version-zero snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Vessels:     make(map[string]model.Vessel),
		Berths:      make(map[string]model.Berth),
		Resources:   make(map[string]model.ResourceUnit),
		Schedules:   make(map[string]model.Schedule),
		Allocations: make(map[string]model.ResourceAllocation),
		Conflicts:   make(map[string]model.Conflict),
	}
}

// Clone deep-copies the snapshot. What-if simulations mutate clones freely.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		Version:     s.Version,
		Vessels:     make(map[string]model.Vessel, len(s.Vessels)),
		Berths:      make(map[string]model.Berth, len(s.Berths)),
		Resources:   make(map[string]model.ResourceUnit, len(s.Resources)),
		Schedules:   make(map[string]model.Schedule, len(s.Schedules)),
		Allocations: make(map[string]model.ResourceAllocation, len(s.Allocations)),
		Conflicts:   make(map[string]model.Conflict, len(s.Conflicts)),
		Tides:       model.TideTable{Points: append([]model.TidePoint(nil), s.Tides.Points...)},
	}
	for k, v := range s.Vessels {
		if v.Cargo.Required != nil {
			req := make(map[model.ResourceType]int, len(v.Cargo.Required))
			for rt, q := range v.Cargo.Required {
				req[rt] = q
			}
			v.Cargo.Required = req
		}
		c.Vessels[k] = v
	}
	for k, b := range s.Berths {
		b.Maintenance = append([]model.Window(nil), b.Maintenance...)
		c.Berths[k] = b
	}
	for k, v := range s.Resources {
		c.Resources[k] = v
	}
	for k, v := range s.Schedules {
		c.Schedules[k] = v
	}
	for k, v := range s.Allocations {
		c.Allocations[k] = v
	}
	for k, v := range s.Conflicts {
		c.Conflicts[k] = v
	}
	return c
}

// SchedulesOnBerth returns the non-cancelled schedules on a berth sorted by
// window start, then ID for determinism.
func (s *Snapshot) SchedulesOnBerth(berthID string) []model.Schedule {
	var out []model.Schedule
	for _, sc := range s.Schedules {
		if sc.BerthID == berthID && sc.Status != model.StatusCancelled {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Window.Start.Equal(out[j].Window.Start) {
			return out[i].Window.Start.Before(out[j].Window.Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ActiveScheduleForVessel returns the vessel's single active schedule.
func (s *Snapshot) ActiveScheduleForVessel(vesselID string) (model.Schedule, bool) {
	for _, sc := range s.Schedules {
		if sc.VesselID == vesselID && sc.Active() {
			return sc, true
		}
	}
	return model.Schedule{}, false
}

// AllocationsForResource returns allocations of a resource unit sorted by
// window start.
func (s *Snapshot) AllocationsForResource(resourceID string) []model.ResourceAllocation {
	var out []model.ResourceAllocation
	for _, a := range s.Allocations {
		if a.ResourceID == resourceID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Window.Start.Equal(out[j].Window.Start) {
			return out[i].Window.Start.Before(out[j].Window.Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AllocationsForSchedule returns allocations bound to a schedule.
func (s *Snapshot) AllocationsForSchedule(scheduleID string) []model.ResourceAllocation {
	var out []model.ResourceAllocation
	for _, a := range s.Allocations {
		if a.ScheduleID == scheduleID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SortedBerths returns all berths ordered by ID for deterministic iteration.
func (s *Snapshot) SortedBerths() []model.Berth {
	out := make([]model.Berth, 0, len(s.Berths))
	for _, b := range s.Berths {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SortedSchedules returns all schedules ordered by ID.
func (s *Snapshot) SortedSchedules() []model.Schedule {
	out := make([]model.Schedule, 0, len(s.Schedules))
	for _, sc := range s.Schedules {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ResourcesOfType returns available resource units of one type sorted by ID.
func (s *Snapshot) ResourcesOfType(t model.ResourceType) []model.ResourceUnit {
	var out []model.ResourceUnit
	for _, r := range s.Resources {
		if r.Type == t && r.Available {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
