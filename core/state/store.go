package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quayside/berthd/core/events"
	"github.com/quayside/berthd/core/model"
	"github.com/quayside/berthd/internal/eventbus"
)

// ErrStaleState rejects a commit built against a snapshot that has since
// been superseded. The caller must rebuild against fresh state and retry.
var ErrStaleState = errors.New("state: commit base is stale")

// ErrIntegrity rejects a commit that would break a schedule invariant. The
// prior state is left untouched.
var ErrIntegrity = errors.New("state: integrity violation")

// Commit is an atomic batch of mutations against a specific base version.
type Commit struct {
	Base uint64

	Schedules         []model.Schedule
	Allocations       []model.ResourceAllocation
	RemoveAllocations []string

	Conflicts      []model.Conflict
	CloseConflicts []string

	Vessels   []model.Vessel
	Berths    []model.Berth
	Resources []model.ResourceUnit
}

// Store holds the current snapshot and serializes committing writers behind
// a single lock. Readers take Snapshot() and run lock-free against the
// returned version.
type Store struct {
	mu       sync.RWMutex
	commitMu sync.Mutex
	cur      *Snapshot
	bus      eventbus.EventBus
}

// NewStore creates a store seeded with the given snapshot. A nil snapshot
// starts empty; a nil bus disables event publication.
func NewStore(initial *Snapshot, bus eventbus.EventBus) *Store {
	if initial == nil {
		initial = NewSnapshot()
	}
	return &Store{cur: initial, bus: bus}
}

// Snapshot returns the current immutable version.
func (st *Store) Snapshot() *Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.cur
}

// Apply validates and applies the commit atomically, returning the new
// snapshot. Returns ErrStaleState when the base version no longer matches
// and ErrIntegrity when the result would violate an invariant.
func (st *Store) Apply(c Commit) (*Snapshot, error) {
	st.commitMu.Lock()
	defer st.commitMu.Unlock()

	cur := st.Snapshot()
	if c.Base != cur.Version {
		return nil, fmt.Errorf("%w: base %d, current %d", ErrStaleState, c.Base, cur.Version)
	}

	next := cur.Clone()
	next.Version = cur.Version + 1

	for _, v := range c.Vessels {
		next.Vessels[v.ID] = v
	}
	for _, b := range c.Berths {
		next.Berths[b.ID] = b
	}
	for _, r := range c.Resources {
		next.Resources[r.ID] = r
	}
	for _, sc := range c.Schedules {
		if prev, ok := next.Schedules[sc.ID]; ok && prev.Terminal() {
			return nil, fmt.Errorf("%w: schedule %s is terminal (%s)", ErrIntegrity, sc.ID, prev.Status)
		}
		next.Schedules[sc.ID] = sc
	}
	for _, id := range c.RemoveAllocations {
		delete(next.Allocations, id)
	}
	for _, a := range c.Allocations {
		next.Allocations[a.ID] = a
	}
	for _, cf := range c.Conflicts {
		next.Conflicts[cf.ID] = cf
	}
	for _, id := range c.CloseConflicts {
		if cf, ok := next.Conflicts[id]; ok {
			cf.Status = model.ConflictResolved
			next.Conflicts[id] = cf
		}
	}

	if err := verify(next); err != nil {
		return nil, err
	}

	st.mu.Lock()
	st.cur = next
	st.mu.Unlock()

	if st.bus != nil {
		st.bus.Publish(events.CommitEvent{Version: next.Version, Schedules: c.Schedules, At: time.Now()})
	}
	return next, nil
}

// verify re-checks the structural invariants a commit must preserve: per-berth
// no-overlap, dimensional safety, one active schedule per vessel, and resource
// capacity.
func verify(s *Snapshot) error {
	activeByVessel := make(map[string]string)
	for _, sc := range s.Schedules {
		if !sc.Active() {
			continue
		}
		if other, ok := activeByVessel[sc.VesselID]; ok {
			return fmt.Errorf("%w: vessel %s has active schedules %s and %s", ErrIntegrity, sc.VesselID, other, sc.ID)
		}
		activeByVessel[sc.VesselID] = sc.ID

		v, vok := s.Vessels[sc.VesselID]
		b, bok := s.Berths[sc.BerthID]
		if !vok || !bok {
			return fmt.Errorf("%w: schedule %s references unknown vessel or berth", ErrIntegrity, sc.ID)
		}
		if v.LOA > b.MaxLOA || v.Beam > b.MaxBeam {
			return fmt.Errorf("%w: vessel %s exceeds berth %s envelope", ErrIntegrity, v.ID, b.ID)
		}
		if v.Draft > b.MaxDraft && !sc.TidalWaiver {
			return fmt.Errorf("%w: vessel %s draft %.1fm exceeds berth %s limit without tidal waiver", ErrIntegrity, v.ID, v.Draft, b.ID)
		}
	}

	// An overlap is acceptable only when tolerated or tracked by an open
	// conflict record. Silent overlaps are rejected.
	tracked := make(map[string]bool)
	for _, cf := range s.Conflicts {
		if cf.Kind == model.BerthOverlap && cf.Status != model.ConflictResolved {
			tracked[cf.ScheduleID+"|"+cf.OtherScheduleID] = true
			tracked[cf.OtherScheduleID+"|"+cf.ScheduleID] = true
		}
	}
	byBerth := make(map[string][]model.Schedule)
	for _, sc := range s.Schedules {
		if sc.Status == model.StatusCancelled {
			continue
		}
		byBerth[sc.BerthID] = append(byBerth[sc.BerthID], sc)
	}
	for berthID, list := range byBerth {
		sort.Slice(list, func(i, j int) bool { return list[i].Window.Start.Before(list[j].Window.Start) })
		// A long schedule can span several later ones, so every earlier
		// schedule still open at b's start must be checked, not just the
		// adjacent one.
		for i := 1; i < len(list); i++ {
			b := list[i]
			for j := 0; j < i; j++ {
				a := list[j]
				if !a.Window.Overlaps(b.Window) {
					continue
				}
				if !a.ConflictTolerated && !b.ConflictTolerated && !tracked[a.ID+"|"+b.ID] {
					return fmt.Errorf("%w: schedules %s and %s overlap on berth %s", ErrIntegrity, a.ID, b.ID, berthID)
				}
			}
		}
	}

	for id, r := range s.Resources {
		if peak := peakAllocated(s.AllocationsForResource(id)); peak > r.Capacity {
			return fmt.Errorf("%w: resource %s overcommitted (%d > %d)", ErrIntegrity, id, peak, r.Capacity)
		}
	}
	return nil
}

// peakAllocated computes the maximum concurrently allocated quantity via a
// boundary sweep.
func peakAllocated(allocs []model.ResourceAllocation) int {
	type edge struct {
		at    time.Time
		delta int
	}
	var edges []edge
	for _, a := range allocs {
		edges = append(edges, edge{a.Window.Start, a.Quantity}, edge{a.Window.End, -a.Quantity})
	}
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].at.Equal(edges[j].at) {
			return edges[i].at.Before(edges[j].at)
		}
		// Releases precede acquisitions at the same instant (half-open windows).
		return edges[i].delta < edges[j].delta
	})
	cur, peak := 0, 0
	for _, e := range edges {
		cur += e.delta
		if cur > peak {
			peak = cur
		}
	}
	return peak
}
