// Package scenario loads port fixtures from YAML into a schedule snapshot.
// Used by the one-shot CLI commands and as seed state for the daemon.
package scenario

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quayside/berthd/core/model"
	"github.com/quayside/berthd/core/state"
)

type File struct {
	Name      string       `yaml:"name"`
	Berths    []Berth      `yaml:"berths"`
	Vessels   []Vessel     `yaml:"vessels"`
	Resources []Resource   `yaml:"resources"`
	Schedules []Schedule   `yaml:"schedules"`
	Tides     []TidePoint  `yaml:"tides"`
	Allocs    []Allocation `yaml:"allocations"`
}

type Berth struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	MaxLOA      float64  `yaml:"max_loa_m"`
	MaxBeam     float64  `yaml:"max_beam_m"`
	MaxDraft    float64  `yaml:"max_draft_m"`
	Length      float64  `yaml:"length_m"`
	Maintenance []Window `yaml:"maintenance"`
}

type Vessel struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	LOA         float64        `yaml:"loa_m"`
	Beam        float64        `yaml:"beam_m"`
	Draft       float64        `yaml:"draft_m"`
	Priority    string         `yaml:"priority"`
	ETA         time.Time      `yaml:"eta"`
	ServiceTime string         `yaml:"service_time"`
	Cargo       Cargo          `yaml:"cargo"`
	Required    map[string]int `yaml:"required"`
}

type Cargo struct {
	Kind    string  `yaml:"kind"`
	Tonnage float64 `yaml:"tonnage"`
}

type Resource struct {
	ID          string `yaml:"id"`
	Type        string `yaml:"type"`
	Capacity    int    `yaml:"capacity"`
	Unavailable bool   `yaml:"unavailable"`
}

type Schedule struct {
	ID          string    `yaml:"id"`
	VesselID    string    `yaml:"vessel_id"`
	BerthID     string    `yaml:"berth_id"`
	Start       time.Time `yaml:"start"`
	End         time.Time `yaml:"end"`
	Status      string    `yaml:"status"`
	TidalWaiver bool      `yaml:"tidal_waiver"`
}

type Allocation struct {
	ID         string    `yaml:"id"`
	ResourceID string    `yaml:"resource_id"`
	ScheduleID string    `yaml:"schedule_id"`
	Start      time.Time `yaml:"start"`
	End        time.Time `yaml:"end"`
	Quantity   int       `yaml:"quantity"`
}

type Window struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

type TidePoint struct {
	Time    time.Time `yaml:"time"`
	HeightM float64   `yaml:"height_m"`
}

// Load reads a scenario file and builds the seed snapshot.
func Load(path string) (*state.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("scenario: parse %s: %w", path, err)
	}
	return f.Snapshot()
}

// Snapshot converts the parsed file into a snapshot, validating every entity
// and reference on the way.
func (f File) Snapshot() (*state.Snapshot, error) {
	snap := state.NewSnapshot()

	for _, b := range f.Berths {
		berth := model.Berth{
			ID: b.ID, Name: b.Name,
			MaxLOA: b.MaxLOA, MaxBeam: b.MaxBeam, MaxDraft: b.MaxDraft, Length: b.Length,
		}
		for _, m := range b.Maintenance {
			berth.Maintenance = append(berth.Maintenance, model.Window{Start: m.Start, End: m.End})
		}
		if err := berth.Validate(); err != nil {
			return nil, fmt.Errorf("scenario: %w", err)
		}
		snap.Berths[berth.ID] = berth
	}

	for _, v := range f.Vessels {
		prio, err := parsePriority(v.Priority)
		if err != nil {
			return nil, fmt.Errorf("scenario: vessel %s: %w", v.ID, err)
		}
		service, err := time.ParseDuration(v.ServiceTime)
		if err != nil {
			return nil, fmt.Errorf("scenario: vessel %s: service_time: %w", v.ID, err)
		}
		vessel := model.Vessel{
			ID: v.ID, Name: v.Name,
			LOA: v.LOA, Beam: v.Beam, Draft: v.Draft,
			Priority: prio, ETA: v.ETA, ServiceTime: service,
			Cargo: model.CargoProfile{Kind: v.Cargo.Kind, Tonnage: v.Cargo.Tonnage},
		}
		if len(v.Required) > 0 {
			vessel.Cargo.Required = make(map[model.ResourceType]int, len(v.Required))
			for rt, q := range v.Required {
				vessel.Cargo.Required[model.ResourceType(rt)] = q
			}
		}
		if err := vessel.Validate(); err != nil {
			return nil, fmt.Errorf("scenario: %w", err)
		}
		snap.Vessels[vessel.ID] = vessel
	}

	for _, r := range f.Resources {
		snap.Resources[r.ID] = model.ResourceUnit{
			ID: r.ID, Type: model.ResourceType(r.Type), Capacity: r.Capacity, Available: !r.Unavailable,
		}
	}

	for _, sc := range f.Schedules {
		status, err := parseStatus(sc.Status)
		if err != nil {
			return nil, fmt.Errorf("scenario: schedule %s: %w", sc.ID, err)
		}
		if _, ok := snap.Vessels[sc.VesselID]; !ok {
			return nil, fmt.Errorf("scenario: schedule %s references unknown vessel %s", sc.ID, sc.VesselID)
		}
		if _, ok := snap.Berths[sc.BerthID]; !ok {
			return nil, fmt.Errorf("scenario: schedule %s references unknown berth %s", sc.ID, sc.BerthID)
		}
		w := model.Window{Start: sc.Start, End: sc.End}
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("scenario: schedule %s: %w", sc.ID, err)
		}
		snap.Schedules[sc.ID] = model.Schedule{
			ID: sc.ID, VesselID: sc.VesselID, BerthID: sc.BerthID,
			Window: w, Status: status, TidalWaiver: sc.TidalWaiver,
		}
	}

	for _, a := range f.Allocs {
		if _, ok := snap.Resources[a.ResourceID]; !ok {
			return nil, fmt.Errorf("scenario: allocation %s references unknown resource %s", a.ID, a.ResourceID)
		}
		if _, ok := snap.Schedules[a.ScheduleID]; !ok {
			return nil, fmt.Errorf("scenario: allocation %s references unknown schedule %s", a.ID, a.ScheduleID)
		}
		snap.Allocations[a.ID] = model.ResourceAllocation{
			ID: a.ID, ResourceID: a.ResourceID, ScheduleID: a.ScheduleID,
			Window: model.Window{Start: a.Start, End: a.End}, Quantity: a.Quantity,
		}
	}

	for _, p := range f.Tides {
		snap.Tides.Points = append(snap.Tides.Points, model.TidePoint{Time: p.Time, HeightM: p.HeightM})
	}
	return snap, nil
}

func parsePriority(s string) (model.PriorityClass, error) {
	switch s {
	case "high":
		return model.PriorityHigh, nil
	case "medium", "":
		return model.PriorityMedium, nil
	case "low":
		return model.PriorityLow, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

func parseStatus(s string) (model.ScheduleStatus, error) {
	switch s {
	case "scheduled", "":
		return model.StatusScheduled, nil
	case "approaching":
		return model.StatusApproaching, nil
	case "berthed":
		return model.StatusBerthed, nil
	case "departed":
		return model.StatusDeparted, nil
	case "cancelled":
		return model.StatusCancelled, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}
