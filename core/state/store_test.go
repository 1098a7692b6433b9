package state

import (
	"errors"
	"testing"
	"time"

	"github.com/quayside/berthd/core/events"
	"github.com/quayside/berthd/core/model"
	"github.com/quayside/berthd/internal/eventbus"
)

func fixtureSnapshot() *Snapshot {
	s := NewSnapshot()
	s.Vessels["v1"] = model.Vessel{ID: "v1", LOA: 200, Beam: 30, Draft: 10, ServiceTime: 12 * time.Hour}
	s.Berths["b1"] = model.Berth{ID: "b1", MaxLOA: 350, MaxBeam: 50, MaxDraft: 18}
	s.Resources["crane-pool"] = model.ResourceUnit{ID: "crane-pool", Type: model.ResourceCrane, Capacity: 4, Available: true}
	return s
}

func window(h, d int) model.Window {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return model.Window{Start: base.Add(time.Duration(h) * time.Hour), End: base.Add(time.Duration(h+d) * time.Hour)}
}

func TestApplyCommitAndVersion(t *testing.T) {
	st := NewStore(fixtureSnapshot(), nil)
	snap := st.Snapshot()
	next, err := st.Apply(Commit{
		Base:      snap.Version,
		Schedules: []model.Schedule{{ID: "s1", VesselID: "v1", BerthID: "b1", Window: window(8, 12)}},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if next.Version != snap.Version+1 {
		t.Fatalf("expected version bump, got %d", next.Version)
	}
	if _, ok := snap.Schedules["s1"]; ok {
		t.Fatalf("old snapshot must be unchanged")
	}
}

func TestApplyStale(t *testing.T) {
	st := NewStore(fixtureSnapshot(), nil)
	base := st.Snapshot().Version
	if _, err := st.Apply(Commit{Base: base, Vessels: []model.Vessel{{ID: "v2", LOA: 100, Beam: 20, Draft: 8, ServiceTime: time.Hour}}}); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	_, err := st.Apply(Commit{Base: base})
	if !errors.Is(err, ErrStaleState) {
		t.Fatalf("expected ErrStaleState, got %v", err)
	}
}

func TestApplyRejectsOverlap(t *testing.T) {
	st := NewStore(fixtureSnapshot(), nil)
	snap := st.Snapshot()
	_, err := st.Apply(Commit{
		Base: snap.Version,
		Vessels: []model.Vessel{
			{ID: "v2", LOA: 150, Beam: 25, Draft: 9, ServiceTime: 6 * time.Hour},
		},
		Schedules: []model.Schedule{
			{ID: "s1", VesselID: "v1", BerthID: "b1", Window: window(8, 12)},
			{ID: "s2", VesselID: "v2", BerthID: "b1", Window: window(10, 6)},
		},
	})
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity for overlapping windows, got %v", err)
	}
	if st.Snapshot().Version != snap.Version {
		t.Fatalf("failed commit must not advance state")
	}
}

func TestApplyToleratedOverlap(t *testing.T) {
	st := NewStore(fixtureSnapshot(), nil)
	snap := st.Snapshot()
	_, err := st.Apply(Commit{
		Base:    snap.Version,
		Vessels: []model.Vessel{{ID: "v2", LOA: 150, Beam: 25, Draft: 9, ServiceTime: 6 * time.Hour}},
		Schedules: []model.Schedule{
			{ID: "s1", VesselID: "v1", BerthID: "b1", Window: window(8, 12)},
			{ID: "s2", VesselID: "v2", BerthID: "b1", Window: window(10, 6), ConflictTolerated: true},
		},
	})
	if err != nil {
		t.Fatalf("tolerated overlap should commit: %v", err)
	}
}

func TestApplyTrackedOverlap(t *testing.T) {
	st := NewStore(fixtureSnapshot(), nil)
	snap := st.Snapshot()
	_, err := st.Apply(Commit{
		Base:    snap.Version,
		Vessels: []model.Vessel{{ID: "v2", LOA: 150, Beam: 25, Draft: 9, ServiceTime: 6 * time.Hour}},
		Schedules: []model.Schedule{
			{ID: "s1", VesselID: "v1", BerthID: "b1", Window: window(8, 12)},
			{ID: "s2", VesselID: "v2", BerthID: "b1", Window: window(10, 6)},
		},
		Conflicts: []model.Conflict{{
			ID: "CNF-1", Kind: model.BerthOverlap, Severity: model.SeverityHigh,
			Status: model.ConflictDetected, ScheduleID: "s1", OtherScheduleID: "s2",
		}},
	})
	if err != nil {
		t.Fatalf("overlap with an open conflict record should commit: %v", err)
	}

	// Resolving the conflict without separating the calls turns the overlap
	// silent again, which the next commit rejects.
	_, err = st.Apply(Commit{Base: st.Snapshot().Version, CloseConflicts: []string{"CNF-1"}})
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity once the overlap is untracked, got %v", err)
	}
}

// A long schedule spanning a later, non-adjacent one must still be caught:
// sA [0,10) covers sC [5,6) even though the tolerated sB [1,2) sits between
// them in start order.
func TestApplyRejectsNonAdjacentOverlap(t *testing.T) {
	st := NewStore(fixtureSnapshot(), nil)
	snap := st.Snapshot()
	_, err := st.Apply(Commit{
		Base: snap.Version,
		Vessels: []model.Vessel{
			{ID: "v2", LOA: 150, Beam: 25, Draft: 9, ServiceTime: time.Hour},
			{ID: "v3", LOA: 150, Beam: 25, Draft: 9, ServiceTime: time.Hour},
		},
		Schedules: []model.Schedule{
			{ID: "sA", VesselID: "v1", BerthID: "b1", Window: window(0, 10)},
			{ID: "sB", VesselID: "v2", BerthID: "b1", Window: window(1, 1), ConflictTolerated: true},
			{ID: "sC", VesselID: "v3", BerthID: "b1", Window: window(5, 1)},
		},
	})
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity for the silent sA/sC overlap, got %v", err)
	}
}

func TestApplyRejectsDraftWithoutWaiver(t *testing.T) {
	st := NewStore(fixtureSnapshot(), nil)
	snap := st.Snapshot()
	commit := Commit{
		Base:      snap.Version,
		Vessels:   []model.Vessel{{ID: "deep", LOA: 300, Beam: 40, Draft: 19, ServiceTime: 8 * time.Hour}},
		Schedules: []model.Schedule{{ID: "sd", VesselID: "deep", BerthID: "b1", Window: window(0, 8)}},
	}
	if _, err := st.Apply(commit); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity for draft, got %v", err)
	}
	commit.Schedules[0].TidalWaiver = true
	if _, err := st.Apply(commit); err != nil {
		t.Fatalf("waivered draft should commit: %v", err)
	}
}

func TestApplyRejectsResourceOvercommit(t *testing.T) {
	st := NewStore(fixtureSnapshot(), nil)
	snap := st.Snapshot()
	_, err := st.Apply(Commit{
		Base:      snap.Version,
		Schedules: []model.Schedule{{ID: "s1", VesselID: "v1", BerthID: "b1", Window: window(8, 12)}},
		Allocations: []model.ResourceAllocation{
			{ID: "a1", ResourceID: "crane-pool", ScheduleID: "s1", Window: window(8, 6), Quantity: 3},
			{ID: "a2", ResourceID: "crane-pool", ScheduleID: "s1", Window: window(10, 6), Quantity: 2},
		},
	})
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity for overcommit, got %v", err)
	}
}

func TestApplyRejectsSecondActiveSchedule(t *testing.T) {
	st := NewStore(fixtureSnapshot(), nil)
	snap := st.Snapshot()
	if _, err := st.Apply(Commit{
		Base:      snap.Version,
		Schedules: []model.Schedule{{ID: "s1", VesselID: "v1", BerthID: "b1", Window: window(8, 12)}},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	_, err := st.Apply(Commit{
		Base:      st.Snapshot().Version,
		Schedules: []model.Schedule{{ID: "s2", VesselID: "v1", BerthID: "b1", Window: window(24, 12)}},
	})
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity for second active schedule, got %v", err)
	}
}

func TestApplyPublishesCommitEvent(t *testing.T) {
	bus := eventbus.New()
	ch := bus.Subscribe()
	st := NewStore(fixtureSnapshot(), bus)
	if _, err := st.Apply(Commit{
		Base:      st.Snapshot().Version,
		Schedules: []model.Schedule{{ID: "s1", VesselID: "v1", BerthID: "b1", Window: window(8, 12)}},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	ev, ok := (<-ch).(events.CommitEvent)
	if !ok || len(ev.Schedules) != 1 {
		t.Fatalf("expected CommitEvent with one schedule, got %#v", ev)
	}
}

func TestPeakAllocated(t *testing.T) {
	allocs := []model.ResourceAllocation{
		{ID: "a", Window: window(0, 4), Quantity: 2},
		{ID: "b", Window: window(4, 4), Quantity: 2},
		{ID: "c", Window: window(2, 4), Quantity: 1},
	}
	if got := peakAllocated(allocs); got != 3 {
		t.Fatalf("expected peak 3 (back-to-back windows must not stack), got %d", got)
	}
}
