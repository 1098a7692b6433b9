package whatif

import (
	"context"
	"fmt"

	"github.com/quayside/berthd/core/conflict"
	"github.com/quayside/berthd/core/logger"
	"github.com/quayside/berthd/core/model"
	"github.com/quayside/berthd/core/optimize"
	"github.com/quayside/berthd/core/reopt"
	"github.com/quayside/berthd/core/state"
)

// Scenario is an ordered list of hypothetical disruptions to play against a
// copy of the live schedule.
type Scenario struct {
	Triggers []reopt.Trigger
}

// Move describes one schedule the scenario would relocate.
type Move struct {
	ScheduleID string       `json:"schedule_id"`
	VesselID   string       `json:"vessel_id"`
	FromBerth  string       `json:"from_berth"`
	ToBerth    string       `json:"to_berth"`
	From       model.Window `json:"from"`
	To         model.Window `json:"to"`
	Cancelled  bool         `json:"cancelled,omitempty"`
}

// Outcome is the projected effect of a scenario. Projected is a detached
// snapshot; nothing in it aliases live state.
type Outcome struct {
	Projected *state.Snapshot
	Runs      []model.OptimizationRun
	Opened    []model.Conflict
	Closed    []string
	Moves     []Move
}

// Simulator plays scenarios against detached copies of a snapshot. The live
// store is never touched; callers inspect the outcome and separately decide
// whether to enact the same triggers for real.
type Simulator struct {
	cfg reopt.Config
	opt *optimize.Optimizer
	det *conflict.Detector
	log logger.Logger
}

// New creates a Simulator reusing the live solver components. Both are pure
// with respect to the snapshots they are handed.
func New(cfg reopt.Config, opt *optimize.Optimizer, det *conflict.Detector, log logger.Logger) *Simulator {
	cfg.SetDefaults()
	return &Simulator{cfg: cfg, opt: opt, det: det, log: log}
}

// Simulate applies the scenario's triggers in order to a clone of base and
// reports the projected schedule, the conflict delta, and every move.
func (s *Simulator) Simulate(ctx context.Context, base *state.Snapshot, sc Scenario) (Outcome, error) {
	if len(sc.Triggers) == 0 {
		return Outcome{}, fmt.Errorf("whatif: scenario has no triggers")
	}

	detached := state.NewStore(base.Clone(), nil)
	svc := reopt.New(s.cfg, detached, s.opt, s.det, s.log, nil)

	out := Outcome{}
	for _, t := range sc.Triggers {
		res, err := svc.Reoptimize(ctx, t)
		if err != nil {
			return Outcome{}, fmt.Errorf("whatif: trigger %s/%s: %w", t.Kind, t.VesselID, err)
		}
		if res.Skipped {
			continue
		}
		out.Runs = append(out.Runs, res.Run)
		out.Opened = append(out.Opened, res.Opened...)
		out.Closed = append(out.Closed, res.Closed...)
	}

	out.Projected = detached.Snapshot()
	out.Moves = diffSchedules(base, out.Projected)
	s.log.Infof("whatif: %d triggers, %d moves, %d conflicts opened, %d closed",
		len(sc.Triggers), len(out.Moves), len(out.Opened), len(out.Closed))
	return out, nil
}

// diffSchedules lists schedules whose berth, window, or liveness changed
// between the two snapshots.
func diffSchedules(before, after *state.Snapshot) []Move {
	var moves []Move
	for _, cur := range after.SortedSchedules() {
		prev, existed := before.Schedules[cur.ID]
		switch {
		case !existed:
			moves = append(moves, Move{
				ScheduleID: cur.ID, VesselID: cur.VesselID,
				ToBerth: cur.BerthID, To: cur.Window,
			})
		case prev.Status != model.StatusCancelled && cur.Status == model.StatusCancelled:
			moves = append(moves, Move{
				ScheduleID: cur.ID, VesselID: cur.VesselID,
				FromBerth: prev.BerthID, From: prev.Window, Cancelled: true,
			})
		case prev.BerthID != cur.BerthID || !prev.Window.Start.Equal(cur.Window.Start) || !prev.Window.End.Equal(cur.Window.End):
			moves = append(moves, Move{
				ScheduleID: cur.ID, VesselID: cur.VesselID,
				FromBerth: prev.BerthID, ToBerth: cur.BerthID,
				From: prev.Window, To: cur.Window,
			})
		}
	}
	return moves
}
