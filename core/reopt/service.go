package reopt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/quayside/berthd/core/conflict"
	"github.com/quayside/berthd/core/events"
	"github.com/quayside/berthd/core/logger"
	"github.com/quayside/berthd/core/model"
	"github.com/quayside/berthd/core/optimize"
	"github.com/quayside/berthd/core/state"
	"github.com/quayside/berthd/internal/eventbus"
)

// Config holds reoptimization policy.
type Config struct {
	// DebounceMS is how long the queue waits after a trigger before solving,
	// coalescing bursts of ETA updates.
	DebounceMS int `json:"debounce_ms"`
	// ETAJitterMinutes drops ETA changes smaller than this.
	ETAJitterMinutes int `json:"eta_jitter_minutes"`
	// HorizonHours bounds the restricted solve.
	HorizonHours int `json:"horizon_hours"`
	// BerthBufferMinutes pads a disrupted call's window when collecting the
	// same-berth neighbours pulled into the solve.
	BerthBufferMinutes int `json:"berth_buffer_minutes"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.DebounceMS == 0 {
		c.DebounceMS = 3000
	}
	if c.ETAJitterMinutes == 0 {
		c.ETAJitterMinutes = 10
	}
	if c.HorizonHours == 0 {
		c.HorizonHours = 48
	}
	if c.BerthBufferMinutes == 0 {
		c.BerthBufferMinutes = 120
	}
}

// Outcome reports one reoptimization pass: what was reassigned, which
// conflicts it opened and closed, and the audit record.
type Outcome struct {
	Run     model.OptimizationRun
	Result  optimize.Result
	Opened  []model.Conflict
	Closed  []string
	Skipped bool
	Version uint64
}

// Service turns disruption triggers into scoped solves. A trigger first
// touches only its blast radius: the disrupted vessel, its same-berth
// neighbours within the buffer, and vessels contending for the same
// resources. If the restricted solve leaves vessels unassigned or hard
// conflicts open, the service escalates to a full-horizon solve.
type Service struct {
	cfg Config
	st  *state.Store
	opt *optimize.Optimizer
	det *conflict.Detector
	log logger.Logger
	bus eventbus.EventBus

	q      *queue
	now    func() time.Time
	notify func(Outcome)
}

// New creates a Service. bus may be nil.
func New(cfg Config, st *state.Store, opt *optimize.Optimizer, det *conflict.Detector, log logger.Logger, bus eventbus.EventBus) *Service {
	cfg.SetDefaults()
	return &Service{cfg: cfg, st: st, opt: opt, det: det, log: log, bus: bus, q: newQueue(), now: time.Now}
}

// Notify registers a callback invoked with every outcome the background Run
// loop produces. Synchronous callers get the outcome as a return value and
// are not notified.
func (s *Service) Notify(fn func(Outcome)) { s.notify = fn }

// Enqueue accepts a trigger for the debounced queue consumed by Run.
func (s *Service) Enqueue(t Trigger) {
	if t.At.IsZero() {
		t.At = s.now()
	}
	s.q.push(t)
	if s.bus != nil {
		s.bus.Publish(events.TriggerEvent{VesselID: t.VesselID, Kind: string(t.Kind), At: t.At})
	}
}

// Run consumes the queue until the context is cancelled. Each wakeup waits
// out the debounce interval so rapid ETA revisions collapse into one solve.
func (s *Service) Run(ctx context.Context) error {
	debounce := time.Duration(s.cfg.DebounceMS) * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.q.wake:
		}
		timer := time.NewTimer(debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		for _, t := range s.q.drain() {
			out, err := s.Reoptimize(ctx, t)
			if err != nil {
				s.log.Errorf("reoptimize %s (%s): %v", t.VesselID, t.Kind, err)
				continue
			}
			if s.notify != nil {
				s.notify(out)
			}
		}
	}
}

// Reoptimize handles one trigger synchronously: apply the trigger's facts,
// solve the blast radius, escalate if needed, and commit atomically. A stale
// commit is rebuilt against fresh state and retried once.
func (s *Service) Reoptimize(ctx context.Context, t Trigger) (Outcome, error) {
	started := s.now()

	pre := s.st.Snapshot()
	skip, err := s.applyFacts(pre, t)
	if err != nil {
		return Outcome{}, err
	}
	if skip {
		s.log.Debugf("trigger for %s below jitter threshold, skipped", t.VesselID)
		return Outcome{Skipped: true, Version: pre.Version}, nil
	}

	affected := s.blastRadius(pre, t)
	return s.solve(ctx, string(t.Kind), affected, started)
}

// Global runs a full-horizon solve over every movable vessel, including
// vessels awaiting their first assignment, and commits the result.
func (s *Service) Global(ctx context.Context) (Outcome, error) {
	snap := s.st.Snapshot()
	return s.solve(ctx, "global", s.allReassignable(snap, s.unscheduled(snap)), s.now())
}

// SolveScope solves exactly the given vessels and commits, labelling the
// audit record with the trigger.
func (s *Service) SolveScope(ctx context.Context, trigger string, vessels []string) (Outcome, error) {
	return s.solve(ctx, trigger, vessels, s.now())
}

// solve runs the scoped optimization and commits it atomically, escalating
// to the full movable fleet when the restricted result leaves vessels
// stranded or hard conflicts open. A stale commit is rebuilt against fresh
// state and retried once.
func (s *Service) solve(ctx context.Context, trigger string, affected []string, started time.Time) (Outcome, error) {
	horizon := model.Window{Start: started, End: started.Add(time.Duration(s.cfg.HorizonHours) * time.Hour)}

	for attempt := 0; ; attempt++ {
		snap := s.st.Snapshot()
		res := s.opt.Optimize(ctx, snap, horizon, affected)

		commit, opened, closed, escalate := s.stage(snap, res, started)
		if escalate {
			if s.bus != nil {
				s.bus.Publish(events.SolveEvent{Action: "escalate"})
			}
			s.log.Warnf("restricted %s solve insufficient, escalating to full horizon", trigger)
			full := s.opt.Optimize(ctx, snap, horizon, s.allReassignable(snap, affected))
			if better(full, res) {
				res = full
				commit, opened, closed, _ = s.stage(snap, res, started)
			}
		}

		next, err := s.st.Apply(commit)
		if errors.Is(err, state.ErrStaleState) && attempt == 0 {
			s.log.Warnf("commit base stale, rebuilding against fresh state")
			continue
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("reopt: commit: %w", err)
		}

		run := model.OptimizationRun{
			ID:         "RUN-" + uuid.NewString(),
			Trigger:    trigger,
			StartedAt:  started,
			Duration:   s.now().Sub(started),
			Horizon:    horizon,
			Vessels:    len(affected),
			Assigned:   len(res.Assignments),
			Unassigned: len(res.Unassigned),
			Objective:  res.Objective,
			ScoreDelta: res.ScoreDelta,
			Partial:    res.Partial,
			Escalated:  escalate,
			Outcome:    runOutcome(res),
		}
		s.log.Infof("solve %s: %d reassigned, %d unassigned, %d conflicts opened, %d closed (v%d)",
			trigger, run.Assigned, run.Unassigned, len(opened), len(closed), next.Version)
		return Outcome{Run: run, Result: res, Opened: opened, Closed: closed, Version: next.Version}, nil
	}
}

// applyFacts commits the trigger's underlying fact (the new ETA, the
// cancellation, the lost resource) before any solve, so the disruption is
// durable even if the solve fails. Reports skip for sub-jitter ETA moves.
// Retries once against fresh state when the base is stale.
func (s *Service) applyFacts(snap *state.Snapshot, t Trigger) (bool, error) {
	skip, err := s.applyFactsOnce(snap, t)
	if errors.Is(err, state.ErrStaleState) {
		return s.applyFactsOnce(s.st.Snapshot(), t)
	}
	return skip, err
}

func (s *Service) applyFactsOnce(snap *state.Snapshot, t Trigger) (bool, error) {
	c := state.Commit{Base: snap.Version}
	switch t.Kind {
	case TriggerETAChange:
		v, ok := snap.Vessels[t.VesselID]
		if !ok {
			return false, fmt.Errorf("reopt: unknown vessel %q", t.VesselID)
		}
		jitter := time.Duration(s.cfg.ETAJitterMinutes) * time.Minute
		if delta := t.NewETA.Sub(v.BestETA()); delta > -jitter && delta < jitter {
			return true, nil
		}
		v.PredictedETA = t.NewETA
		c.Vessels = append(c.Vessels, v)

	case TriggerCancellation:
		sc, ok := snap.ActiveScheduleForVessel(t.VesselID)
		if !ok {
			return true, nil // nothing scheduled, nothing to do
		}
		sc.Status = model.StatusCancelled
		c.Schedules = append(c.Schedules, sc)
		for _, a := range snap.AllocationsForSchedule(sc.ID) {
			c.RemoveAllocations = append(c.RemoveAllocations, a.ID)
		}

	case TriggerResourceLoss:
		r, ok := snap.Resources[t.ResourceID]
		if !ok {
			return false, fmt.Errorf("reopt: unknown resource %q", t.ResourceID)
		}
		r.Available = false
		c.Resources = append(c.Resources, r)

	default:
		return false, fmt.Errorf("reopt: unknown trigger kind %q", t.Kind)
	}

	if _, err := s.st.Apply(c); err != nil {
		if errors.Is(err, state.ErrStaleState) {
			return false, err
		}
		return false, fmt.Errorf("reopt: apply trigger facts: %w", err)
	}
	return false, nil
}

// blastRadius collects the vessels a disruption can plausibly touch: the
// disrupted vessel, same-berth neighbours within the buffer around its call,
// and vessels holding overlapping allocations of the resource types it needs.
// Computed on the pre-fact snapshot so a cancelled call still anchors its
// neighbourhood.
func (s *Service) blastRadius(pre *state.Snapshot, t Trigger) []string {
	buffer := time.Duration(s.cfg.BerthBufferMinutes) * time.Minute
	seen := make(map[string]bool)

	var anchors []model.Schedule
	switch t.Kind {
	case TriggerResourceLoss:
		if _, ok := pre.Resources[t.ResourceID]; !ok {
			return nil
		}
		for _, a := range pre.AllocationsForResource(t.ResourceID) {
			if sc, ok := pre.Schedules[a.ScheduleID]; ok && sc.Active() {
				anchors = append(anchors, sc)
				seen[sc.VesselID] = true
			}
		}
	default:
		seen[t.VesselID] = true
		if sc, ok := pre.ActiveScheduleForVessel(t.VesselID); ok {
			anchors = append(anchors, sc)
		}
	}

	for _, anchor := range anchors {
		probe := model.Window{Start: anchor.Window.Start.Add(-buffer), End: anchor.Window.End.Add(buffer)}
		for _, other := range pre.SchedulesOnBerth(anchor.BerthID) {
			if other.Active() && other.Window.Overlaps(probe) {
				seen[other.VesselID] = true
			}
		}
		if v, ok := pre.Vessels[anchor.VesselID]; ok {
			for rt, q := range v.RequiredResources() {
				if q <= 0 {
					continue
				}
				for _, unit := range pre.ResourcesOfType(rt) {
					for _, a := range pre.AllocationsForResource(unit.ID) {
						if !a.Window.Overlaps(probe) {
							continue
						}
						if sc, ok := pre.Schedules[a.ScheduleID]; ok && sc.Active() {
							seen[sc.VesselID] = true
						}
					}
				}
			}
		}
	}

	if t.Kind == TriggerCancellation {
		delete(seen, t.VesselID) // the departing vessel gets no new call
	}
	out := make([]string, 0, len(seen))
	for vid := range seen {
		out = append(out, vid)
	}
	sort.Strings(out)
	return out
}

// stage builds the commit for a solve result together with the conflict diff
// computed on a preview of the post-commit state. escalate reports whether
// the result leaves vessels stranded or hard conflicts open among the
// touched schedules.
func (s *Service) stage(snap *state.Snapshot, res optimize.Result, now time.Time) (state.Commit, []model.Conflict, []string, bool) {
	commit := state.Commit{Base: snap.Version, Schedules: res.Assignments}

	preview := snap.Clone()
	touched := make(map[string]bool, len(res.Assignments))
	for _, sc := range res.Assignments {
		preview.Schedules[sc.ID] = sc
		touched[sc.ID] = true
		for _, a := range snap.AllocationsForSchedule(sc.ID) {
			commit.RemoveAllocations = append(commit.RemoveAllocations, a.ID)
			delete(preview.Allocations, a.ID)
		}
	}
	allocs := planAllocations(preview, res.Assignments)
	commit.Allocations = allocs
	for _, a := range allocs {
		preview.Allocations[a.ID] = a
	}

	detected := s.det.Detect(preview, now)
	byKey := make(map[string]model.Conflict, len(detected))
	for _, c := range detected {
		byKey[c.Key()] = c
	}

	open := make(map[string]model.Conflict)
	for _, c := range preview.Conflicts {
		if c.Status == model.ConflictDetected {
			open[c.Key()] = c
		}
	}

	var opened []model.Conflict
	hard := false
	for _, c := range detected {
		if touched[c.ScheduleID] || touched[c.OtherScheduleID] {
			if c.Severity <= model.SeverityHigh {
				hard = true
			}
		}
		if _, known := open[c.Key()]; !known {
			opened = append(opened, c)
		}
	}
	var closed []string
	for key, c := range open {
		if _, still := byKey[key]; still {
			continue
		}
		if touched[c.ScheduleID] || touched[c.OtherScheduleID] || c.ScheduleID == "" {
			closed = append(closed, c.ID)
		}
	}
	sort.Strings(closed)

	commit.Conflicts = opened
	commit.CloseConflicts = closed

	escalate := hard || len(res.Unassigned) > 0
	return commit, opened, closed, escalate
}

// planAllocations binds each assignment's resource demand to concrete units,
// filling the least-loaded unit first. Demand that cannot be met is left
// unallocated for the detector to flag.
func planAllocations(preview *state.Snapshot, assignments []model.Schedule) []model.ResourceAllocation {
	sorted := append([]model.Schedule(nil), assignments...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Window.Start.Equal(sorted[j].Window.Start) {
			return sorted[i].Window.Start.Before(sorted[j].Window.Start)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var out []model.ResourceAllocation
	for _, sc := range sorted {
		vessel, ok := preview.Vessels[sc.VesselID]
		if !ok {
			continue
		}
		required := vessel.RequiredResources()
		types := make([]model.ResourceType, 0, len(required))
		for rt := range required {
			types = append(types, rt)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

		for _, rt := range types {
			need := required[rt]
			for _, unit := range preview.ResourcesOfType(rt) {
				if need <= 0 {
					break
				}
				free := unit.Capacity - peakOn(preview, unit.ID, sc.Window)
				if free <= 0 {
					continue
				}
				take := need
				if take > free {
					take = free
				}
				a := model.ResourceAllocation{
					ID:         "ALC-" + uuid.NewString(),
					ResourceID: unit.ID,
					ScheduleID: sc.ID,
					Window:     sc.Window,
					Quantity:   take,
				}
				out = append(out, a)
				preview.Allocations[a.ID] = a
				need -= take
			}
		}
	}
	return out
}

// peakOn is the unit's maximum concurrent allocation inside w.
func peakOn(snap *state.Snapshot, resourceID string, w model.Window) int {
	type edge struct {
		at    time.Time
		delta int
	}
	var edges []edge
	for _, a := range snap.AllocationsForResource(resourceID) {
		ov, ok := a.Window.Intersect(w)
		if !ok {
			continue
		}
		edges = append(edges, edge{ov.Start, a.Quantity}, edge{ov.End, -a.Quantity})
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
	return peak
}

// allReassignable widens the scope to every vessel whose call can still move,
// plus the vessels already in scope (some may have no schedule yet).
func (s *Service) allReassignable(snap *state.Snapshot, affected []string) []string {
	seen := make(map[string]bool, len(affected))
	for _, vid := range affected {
		seen[vid] = true
	}
	for _, sc := range snap.SortedSchedules() {
		if sc.Reassignable() {
			seen[sc.VesselID] = true
		}
	}
	out := make([]string, 0, len(seen))
	for vid := range seen {
		out = append(out, vid)
	}
	sort.Strings(out)
	return out
}

// unscheduled lists vessels with no schedule at all: fresh intake awaiting a
// first assignment. Vessels whose visit already ended keep their history and
// are never rescheduled.
func (s *Service) unscheduled(snap *state.Snapshot) []string {
	visited := make(map[string]bool)
	for _, sc := range snap.Schedules {
		visited[sc.VesselID] = true
	}
	var out []string
	for vid := range snap.Vessels {
		if !visited[vid] {
			out = append(out, vid)
		}
	}
	sort.Strings(out)
	return out
}

func better(a, b optimize.Result) bool {
	if len(a.Unassigned) != len(b.Unassigned) {
		return len(a.Unassigned) < len(b.Unassigned)
	}
	return a.Objective > b.Objective
}

func runOutcome(res optimize.Result) string {
	switch {
	case len(res.Unassigned) > 0:
		return "partial_assignment"
	case res.Partial:
		return "budget_exhausted"
	default:
		return "complete"
	}
}
