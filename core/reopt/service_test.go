package reopt

import (
	"context"
	"testing"
	"time"

	"github.com/quayside/berthd/core/conflict"
	"github.com/quayside/berthd/core/events"
	"github.com/quayside/berthd/core/model"
	"github.com/quayside/berthd/core/optimize"
	"github.com/quayside/berthd/core/scoring"
	"github.com/quayside/berthd/core/state"
	"github.com/quayside/berthd/core/suggest"
	"github.com/quayside/berthd/core/validate"
	"github.com/quayside/berthd/internal/eventbus"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

var day = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func at(h int) time.Time { return day.Add(time.Duration(h) * time.Hour) }

func win(startHour, hours int) model.Window {
	return model.Window{Start: at(startHour), End: at(startHour + hours)}
}

func newService(snap *state.Snapshot, bus eventbus.EventBus) (*Service, *state.Store) {
	st := state.NewStore(snap, bus)
	val := validate.New(validate.Config{})
	scorer := scoring.New(scoring.DefaultWeights())
	opt := optimize.New(optimize.Config{SlotMinutes: 60, BudgetSeconds: 10}, val, scorer, nopLogger{}, bus)
	sug := suggest.New(suggest.Config{}, val, scorer, nopLogger{})
	det := conflict.New(conflict.Config{}, sug, nopLogger{})
	svc := New(Config{DebounceMS: 50}, st, opt, det, nopLogger{}, bus)
	svc.now = func() time.Time { return at(0) }
	return svc, st
}

func TestReoptimizeETAChangePullsCallForward(t *testing.T) {
	s := state.NewSnapshot()
	s.Berths["b1"] = model.Berth{ID: "b1", MaxLOA: 350, MaxBeam: 50, MaxDraft: 18}
	s.Vessels["v1"] = model.Vessel{ID: "v1", LOA: 200, Beam: 30, Draft: 10, Priority: model.PriorityHigh, ETA: at(10), ServiceTime: 8 * time.Hour}
	s.Schedules["s1"] = model.Schedule{ID: "s1", VesselID: "v1", BerthID: "b1", Window: win(10, 8), Status: model.StatusScheduled}

	svc, st := newService(s, nil)
	out, err := svc.Reoptimize(context.Background(), Trigger{VesselID: "v1", Kind: TriggerETAChange, NewETA: at(2)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Skipped || len(out.Result.Assignments) != 1 {
		t.Fatalf("expected one reassignment, got %+v", out)
	}

	cur := st.Snapshot()
	sc := cur.Schedules["s1"]
	if !sc.Window.Start.Equal(at(2)) {
		t.Fatalf("call should follow the earlier ETA, window starts %v", sc.Window.Start)
	}
	if cur.Vessels["v1"].PredictedETA != at(2) {
		t.Fatalf("predicted ETA not committed: %v", cur.Vessels["v1"].PredictedETA)
	}
	if out.Run.Trigger != string(TriggerETAChange) || out.Run.Assigned != 1 {
		t.Fatalf("bad audit record: %+v", out.Run)
	}
}

func TestReoptimizeSkipsJitter(t *testing.T) {
	s := state.NewSnapshot()
	s.Berths["b1"] = model.Berth{ID: "b1", MaxLOA: 350, MaxBeam: 50, MaxDraft: 18}
	s.Vessels["v1"] = model.Vessel{ID: "v1", LOA: 200, Beam: 30, Draft: 10, ETA: at(10), ServiceTime: 8 * time.Hour}

	svc, st := newService(s, nil)
	before := st.Snapshot().Version
	out, err := svc.Reoptimize(context.Background(), Trigger{VesselID: "v1", Kind: TriggerETAChange, NewETA: at(10).Add(5 * time.Minute)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Skipped {
		t.Fatalf("5-minute ETA move must be below the jitter threshold")
	}
	if st.Snapshot().Version != before {
		t.Fatalf("skipped trigger must not commit")
	}
}

func TestReoptimizeCancellationFreesNeighbour(t *testing.T) {
	s := state.NewSnapshot()
	s.Berths["b1"] = model.Berth{ID: "b1", MaxLOA: 350, MaxBeam: 50, MaxDraft: 18}
	s.Vessels["v1"] = model.Vessel{ID: "v1", LOA: 200, Beam: 30, Draft: 10, ETA: at(0), ServiceTime: 8 * time.Hour}
	s.Vessels["v2"] = model.Vessel{ID: "v2", LOA: 200, Beam: 30, Draft: 10, ETA: at(0), ServiceTime: 8 * time.Hour}
	s.Schedules["s1"] = model.Schedule{ID: "s1", VesselID: "v1", BerthID: "b1", Window: win(0, 8), Status: model.StatusScheduled}
	s.Schedules["s2"] = model.Schedule{ID: "s2", VesselID: "v2", BerthID: "b1", Window: win(8, 8), Status: model.StatusScheduled}

	svc, st := newService(s, nil)
	out, err := svc.Reoptimize(context.Background(), Trigger{VesselID: "v1", Kind: TriggerCancellation})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cur := st.Snapshot()
	if cur.Schedules["s1"].Status != model.StatusCancelled {
		t.Fatalf("cancelled call must stay cancelled: %v", cur.Schedules["s1"].Status)
	}
	if !cur.Schedules["s2"].Window.Start.Equal(at(0)) {
		t.Fatalf("neighbour should move into the freed slot, starts %v", cur.Schedules["s2"].Window.Start)
	}
	for _, sc := range out.Result.Assignments {
		if sc.VesselID == "v1" {
			t.Fatalf("a cancelled vessel must not be reassigned")
		}
	}
}

func TestReoptimizeResourceLossReplansAllocations(t *testing.T) {
	s := state.NewSnapshot()
	s.Berths["b1"] = model.Berth{ID: "b1", MaxLOA: 350, MaxBeam: 50, MaxDraft: 18}
	s.Resources["c1"] = model.ResourceUnit{ID: "c1", Type: model.ResourceCrane, Capacity: 2, Available: true}
	s.Resources["c2"] = model.ResourceUnit{ID: "c2", Type: model.ResourceCrane, Capacity: 2, Available: true}
	s.Vessels["v1"] = model.Vessel{ID: "v1", LOA: 200, Beam: 30, Draft: 10, ETA: at(0), ServiceTime: 8 * time.Hour,
		Cargo: model.CargoProfile{Required: map[model.ResourceType]int{model.ResourceCrane: 2}}}
	s.Schedules["s1"] = model.Schedule{ID: "s1", VesselID: "v1", BerthID: "b1", Window: win(0, 8), Status: model.StatusScheduled}
	s.Allocations["a1"] = model.ResourceAllocation{ID: "a1", ResourceID: "c1", ScheduleID: "s1", Window: win(0, 8), Quantity: 2}

	svc, st := newService(s, nil)
	if _, err := svc.Reoptimize(context.Background(), Trigger{Kind: TriggerResourceLoss, ResourceID: "c1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cur := st.Snapshot()
	if cur.Resources["c1"].Available {
		t.Fatalf("lost resource must be marked unavailable")
	}
	if _, ok := cur.Allocations["a1"]; ok {
		t.Fatalf("allocation on the lost unit must be removed")
	}
	var moved bool
	for _, a := range cur.Allocations {
		if a.ScheduleID == "s1" && a.ResourceID == "c2" && a.Quantity == 2 {
			moved = true
		}
	}
	if !moved {
		t.Fatalf("demand must be replanned onto the surviving unit: %+v", cur.Allocations)
	}
}

func TestReoptimizeEscalatesWhenRestrictedSolveStrands(t *testing.T) {
	bus := eventbus.New()
	ch := bus.Subscribe()

	s := state.NewSnapshot()
	s.Berths["b1"] = model.Berth{ID: "b1", MaxLOA: 350, MaxBeam: 50, MaxDraft: 18}
	s.Vessels["v1"] = model.Vessel{ID: "v1", LOA: 200, Beam: 30, Draft: 10, ETA: at(10), ServiceTime: 8 * time.Hour}
	s.Vessels["vb"] = model.Vessel{ID: "vb", LOA: 200, Beam: 30, Draft: 10, ETA: at(0), ServiceTime: 48 * time.Hour}
	// A moored vessel holds the only berth for the entire horizon.
	s.Schedules["sb"] = model.Schedule{ID: "sb", VesselID: "vb", BerthID: "b1", Window: win(0, 48), Status: model.StatusBerthed}

	svc, _ := newService(s, bus)
	out, err := svc.Reoptimize(context.Background(), Trigger{VesselID: "v1", Kind: TriggerETAChange, NewETA: at(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Run.Escalated || out.Run.Unassigned != 1 {
		t.Fatalf("stranded vessel must escalate: %+v", out.Run)
	}

	sawEscalate := false
	for len(ch) > 0 {
		if ev, ok := (<-ch).(events.SolveEvent); ok && ev.Action == "escalate" {
			sawEscalate = true
		}
	}
	if !sawEscalate {
		t.Fatalf("expected an escalate solve event")
	}
}

func TestQueueCoalescesTriggers(t *testing.T) {
	q := newQueue()
	q.push(Trigger{VesselID: "v1", Kind: TriggerETAChange, NewETA: at(1)})
	q.push(Trigger{VesselID: "v1", Kind: TriggerETAChange, NewETA: at(2)})
	q.push(Trigger{VesselID: "v2", Kind: TriggerETAChange, NewETA: at(3)})

	got := q.drain()
	if len(got) != 2 {
		t.Fatalf("expected 2 coalesced triggers, got %d", len(got))
	}
	if got[0].VesselID != "v1" || !got[0].NewETA.Equal(at(2)) {
		t.Fatalf("latest ETA must win: %+v", got[0])
	}
	if q.len() != 0 {
		t.Fatalf("drain must empty the queue")
	}
}

func TestQueueCancellationBeatsETAUpdate(t *testing.T) {
	q := newQueue()
	q.push(Trigger{VesselID: "v1", Kind: TriggerCancellation})
	q.push(Trigger{VesselID: "v1", Kind: TriggerETAChange, NewETA: at(2)})

	got := q.drain()
	if len(got) != 1 || got[0].Kind != TriggerCancellation {
		t.Fatalf("cancellation must survive coalescing: %+v", got)
	}
}

func TestRunConsumesDebouncedTriggers(t *testing.T) {
	bus := eventbus.New()
	ch := bus.Subscribe()

	s := state.NewSnapshot()
	s.Berths["b1"] = model.Berth{ID: "b1", MaxLOA: 350, MaxBeam: 50, MaxDraft: 18}
	s.Vessels["v1"] = model.Vessel{ID: "v1", LOA: 200, Beam: 30, Draft: 10, ETA: at(10), ServiceTime: 8 * time.Hour}
	s.Schedules["s1"] = model.Schedule{ID: "s1", VesselID: "v1", BerthID: "b1", Window: win(10, 8), Status: model.StatusScheduled}

	svc, st := newService(s, bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	svc.Enqueue(Trigger{VesselID: "v1", Kind: TriggerETAChange, NewETA: at(2)})
	svc.Enqueue(Trigger{VesselID: "v1", Kind: TriggerETAChange, NewETA: at(4)})

	deadline := time.After(10 * time.Second)
	for {
		cur := st.Snapshot()
		if sc, ok := cur.Schedules["s1"]; ok && sc.Window.Start.Equal(at(4)) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("debounced trigger was not processed")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Run should exit with the context error, got %v", err)
	}

	// Both triggers must have been accepted onto the bus.
	triggers := 0
	for len(ch) > 0 {
		if _, ok := (<-ch).(events.TriggerEvent); ok {
			triggers++
		}
	}
	if triggers != 2 {
		t.Fatalf("expected 2 trigger events, got %d", triggers)
	}
}
