package conflict

import (
	"testing"
	"time"

	"github.com/quayside/berthd/core/model"
	"github.com/quayside/berthd/core/scoring"
	"github.com/quayside/berthd/core/state"
	"github.com/quayside/berthd/core/suggest"
	"github.com/quayside/berthd/core/validate"
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

func newDetector(cfg Config) *Detector {
	sug := suggest.New(suggest.Config{}, validate.New(validate.Config{}), scoring.New(scoring.DefaultWeights()), nopLogger{})
	return New(cfg, sug, nopLogger{})
}

func baseSnapshot() *state.Snapshot {
	s := state.NewSnapshot()
	s.Berths["b1"] = model.Berth{ID: "b1", MaxLOA: 350, MaxBeam: 50, MaxDraft: 15}
	s.Berths["b2"] = model.Berth{ID: "b2", MaxLOA: 350, MaxBeam: 50, MaxDraft: 15}
	s.Vessels["v1"] = model.Vessel{ID: "v1", LOA: 200, Beam: 30, Draft: 10, Priority: model.PriorityMedium, ETA: at(0), ServiceTime: 8 * time.Hour}
	s.Vessels["v2"] = model.Vessel{ID: "v2", LOA: 200, Beam: 30, Draft: 10, Priority: model.PriorityMedium, ETA: at(0), ServiceTime: 8 * time.Hour}
	return s
}

func TestDetectBerthOverlapSeverity(t *testing.T) {
	cases := []struct {
		name    string
		overlap int // hours of collision
		want    model.ConflictSeverity
	}{
		{"four hours is critical", 4, model.SeverityCritical},
		{"two hours is high", 2, model.SeverityHigh},
		{"one hour is medium", 1, model.SeverityMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := baseSnapshot()
			s.Schedules["s1"] = model.Schedule{ID: "s1", VesselID: "v1", BerthID: "b1", Window: win(0, 8), Status: model.StatusScheduled}
			s.Schedules["s2"] = model.Schedule{ID: "s2", VesselID: "v2", BerthID: "b1", Window: win(8-tc.overlap, 8), Status: model.StatusScheduled}

			got := newDetector(Config{}).Detect(s, at(0))
			if len(got) != 1 {
				t.Fatalf("expected 1 conflict, got %d: %+v", len(got), got)
			}
			c := got[0]
			if c.Kind != model.BerthOverlap || c.Severity != tc.want {
				t.Fatalf("got kind %s severity %d, want overlap severity %d", c.Kind, c.Severity, tc.want)
			}
			if c.ScheduleID != "s1" || c.OtherScheduleID != "s2" {
				t.Fatalf("conflict must link both schedules, got %+v", c)
			}
		})
	}
}

func TestDetectSkipsToleratedOverlap(t *testing.T) {
	s := baseSnapshot()
	s.Schedules["s1"] = model.Schedule{ID: "s1", VesselID: "v1", BerthID: "b1", Window: win(0, 8), Status: model.StatusScheduled}
	s.Schedules["s2"] = model.Schedule{ID: "s2", VesselID: "v2", BerthID: "b1", Window: win(6, 8), Status: model.StatusScheduled, ConflictTolerated: true}

	if got := newDetector(Config{}).Detect(s, at(0)); len(got) != 0 {
		t.Fatalf("tolerated overlap must not be reported, got %+v", got)
	}
}

func TestDetectIgnoresOutsideWindow(t *testing.T) {
	s := baseSnapshot()
	s.Schedules["s1"] = model.Schedule{ID: "s1", VesselID: "v1", BerthID: "b1", Window: win(72, 8), Status: model.StatusScheduled}
	s.Schedules["s2"] = model.Schedule{ID: "s2", VesselID: "v2", BerthID: "b1", Window: win(74, 8), Status: model.StatusScheduled}

	if got := newDetector(Config{WindowHours: 48}).Detect(s, at(0)); len(got) != 0 {
		t.Fatalf("conflicts beyond the scan window must be ignored, got %+v", got)
	}
}

func TestDetectResourceShortfall(t *testing.T) {
	s := baseSnapshot()
	s.Resources["cranes"] = model.ResourceUnit{ID: "cranes", Type: model.ResourceCrane, Capacity: 3, Available: true}
	v := s.Vessels["v1"]
	v.Cargo.Required = map[model.ResourceType]int{model.ResourceCrane: 2}
	s.Vessels["v1"] = v
	s.Schedules["s1"] = model.Schedule{ID: "s1", VesselID: "v1", BerthID: "b1", Window: win(0, 8), Status: model.StatusScheduled}
	// Another schedule holds 2 of the 3 cranes over the same hours.
	s.Schedules["s2"] = model.Schedule{ID: "s2", VesselID: "v2", BerthID: "b2", Window: win(0, 8), Status: model.StatusScheduled}
	s.Allocations["a1"] = model.ResourceAllocation{ID: "a1", ResourceID: "cranes", ScheduleID: "s2", Window: win(0, 8), Quantity: 2}

	got := newDetector(Config{}).Detect(s, at(0))
	if len(got) != 1 || got[0].Kind != model.ResourceUnavailable {
		t.Fatalf("expected one resource conflict, got %+v", got)
	}
	if got[0].ScheduleID != "s1" || got[0].Severity != model.SeverityHigh {
		t.Fatalf("unexpected conflict: %+v", got[0])
	}
}

func TestDetectResourceOwnAllocationExcluded(t *testing.T) {
	s := baseSnapshot()
	s.Resources["cranes"] = model.ResourceUnit{ID: "cranes", Type: model.ResourceCrane, Capacity: 2, Available: true}
	v := s.Vessels["v1"]
	v.Cargo.Required = map[model.ResourceType]int{model.ResourceCrane: 2}
	s.Vessels["v1"] = v
	s.Schedules["s1"] = model.Schedule{ID: "s1", VesselID: "v1", BerthID: "b1", Window: win(0, 8), Status: model.StatusScheduled}
	s.Allocations["a1"] = model.ResourceAllocation{ID: "a1", ResourceID: "cranes", ScheduleID: "s1", Window: win(0, 8), Quantity: 2}

	if got := newDetector(Config{}).Detect(s, at(0)); len(got) != 0 {
		t.Fatalf("a schedule's own allocations are not contention, got %+v", got)
	}
}

func TestDetectTidalWaiverInvalidatedByForecast(t *testing.T) {
	s := baseSnapshot()
	v := s.Vessels["v1"]
	v.Draft = 16 // berth limit 15, needs 1.5m of tide with the default margin
	s.Vessels["v1"] = v
	s.Tides = model.TideTable{Points: []model.TidePoint{{Time: at(0), HeightM: 0.5}, {Time: at(12), HeightM: 0.5}}}
	s.Schedules["s1"] = model.Schedule{ID: "s1", VesselID: "v1", BerthID: "b1", Window: win(2, 8), Status: model.StatusScheduled, TidalWaiver: true}

	got := newDetector(Config{}).Detect(s, at(0))
	if len(got) != 1 || got[0].Kind != model.TidalConstraint {
		t.Fatalf("expected tidal conflict when forecast no longer covers the waiver, got %+v", got)
	}
}

func TestDetectTidalWaiverStillCovered(t *testing.T) {
	s := baseSnapshot()
	v := s.Vessels["v1"]
	v.Draft = 16
	s.Vessels["v1"] = v
	s.Tides = model.TideTable{Points: []model.TidePoint{{Time: at(0), HeightM: 2.0}, {Time: at(12), HeightM: 2.0}}}
	s.Schedules["s1"] = model.Schedule{ID: "s1", VesselID: "v1", BerthID: "b1", Window: win(2, 8), Status: model.StatusScheduled, TidalWaiver: true}

	if got := newDetector(Config{}).Detect(s, at(0)); len(got) != 0 {
		t.Fatalf("covered waiver must not conflict, got %+v", got)
	}
}

func TestDetectPriorityInversion(t *testing.T) {
	s := baseSnapshot()
	hi := s.Vessels["v2"]
	hi.Priority = model.PriorityHigh
	hi.ETA = at(0) // arrived, waiting behind the medium-priority call
	s.Vessels["v2"] = hi
	s.Schedules["s1"] = model.Schedule{ID: "s1", VesselID: "v1", BerthID: "b1", Window: win(0, 8), Status: model.StatusScheduled}
	s.Schedules["s2"] = model.Schedule{ID: "s2", VesselID: "v2", BerthID: "b1", Window: win(8, 8), Status: model.StatusScheduled}

	got := newDetector(Config{}).Detect(s, at(0))
	if len(got) != 1 || got[0].Kind != model.PriorityViolation {
		t.Fatalf("expected priority inversion, got %+v", got)
	}
	if got[0].ScheduleID != "s2" || got[0].OtherScheduleID != "s1" || got[0].Severity != model.SeverityLow {
		t.Fatalf("unexpected conflict: %+v", got[0])
	}
}

func TestDetectAutoResolvableWhenAlternativeExists(t *testing.T) {
	s := baseSnapshot()
	s.Schedules["s1"] = model.Schedule{ID: "s1", VesselID: "v1", BerthID: "b1", Window: win(0, 8), Status: model.StatusScheduled}
	s.Schedules["s2"] = model.Schedule{ID: "s2", VesselID: "v2", BerthID: "b1", Window: win(4, 8), Status: model.StatusScheduled}

	got := newDetector(Config{}).Detect(s, at(0))
	if len(got) != 1 {
		t.Fatalf("expected 1 conflict, got %+v", got)
	}
	// Berth b2 is wide open, so either vessel can move.
	if !got[0].AutoResolvable {
		t.Fatalf("conflict with a free alternative berth must be auto-resolvable: %+v", got[0])
	}
}

// Only the second vessel of the overlap can move: v1 is resource-starved
// everywhere while b2 is wide open for v2. Moving either side clears the
// conflict, so it must still count as auto-resolvable.
func TestDetectAutoResolvableViaOtherVessel(t *testing.T) {
	s := baseSnapshot()
	v := s.Vessels["v1"]
	v.Cargo.Required = map[model.ResourceType]int{model.ResourceCrane: 5}
	s.Vessels["v1"] = v
	s.Schedules["s1"] = model.Schedule{ID: "s1", VesselID: "v1", BerthID: "b1", Window: win(0, 8), Status: model.StatusScheduled}
	s.Schedules["s2"] = model.Schedule{ID: "s2", VesselID: "v2", BerthID: "b1", Window: win(4, 8), Status: model.StatusScheduled}

	got := newDetector(Config{}).Detect(s, at(0))
	var overlap *model.Conflict
	for i := range got {
		if got[i].Kind == model.BerthOverlap {
			overlap = &got[i]
		}
	}
	if overlap == nil {
		t.Fatalf("expected a berth overlap, got %+v", got)
	}
	if !overlap.AutoResolvable {
		t.Fatalf("v2 can move to b2, so the overlap must be auto-resolvable: %+v", *overlap)
	}
}

func TestDetectIdempotentContent(t *testing.T) {
	s := baseSnapshot()
	s.Schedules["s1"] = model.Schedule{ID: "s1", VesselID: "v1", BerthID: "b1", Window: win(0, 8), Status: model.StatusScheduled}
	s.Schedules["s2"] = model.Schedule{ID: "s2", VesselID: "v2", BerthID: "b1", Window: win(4, 8), Status: model.StatusScheduled}

	d := newDetector(Config{})
	a := d.Detect(s, at(0))
	b := d.Detect(s, at(0))
	if len(a) != len(b) {
		t.Fatalf("runs disagree: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Key() != b[i].Key() || a[i].Severity != b[i].Severity || a[i].Detail != b[i].Detail {
			t.Fatalf("run content differs at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}
