package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quayside/berthd/core/conflict"
	"github.com/quayside/berthd/core/events"
	"github.com/quayside/berthd/core/logger"
	coremetrics "github.com/quayside/berthd/core/metrics"
	"github.com/quayside/berthd/core/model"
	"github.com/quayside/berthd/core/optimize"
	"github.com/quayside/berthd/core/persist"
	"github.com/quayside/berthd/core/reopt"
	"github.com/quayside/berthd/core/state"
	"github.com/quayside/berthd/core/suggest"
	"github.com/quayside/berthd/core/whatif"
	"github.com/quayside/berthd/internal/eventbus"
)

// ResolveAction selects how ResolveConflict handles a conflict.
type ResolveAction string

const (
	// ResolveAuto reassigns the conflicted calls through a scoped solve.
	ResolveAuto ResolveAction = "auto"
	// ResolveAcknowledge keeps the schedule as is and marks the conflict
	// ignored; overlaps become tolerated.
	ResolveAcknowledge ResolveAction = "acknowledge"
)

// ErrUnknownConflict is returned when the conflict ID does not exist or is
// already closed.
var ErrUnknownConflict = errors.New("engine: unknown or closed conflict")

// ResolveResult reports one conflict resolution.
type ResolveResult struct {
	Conflict model.Conflict
	Outcome  reopt.Outcome
	Resolved bool
}

// Deps wires the engine. Journal and Metrics may be nil.
type Deps struct {
	Store     *state.Store
	Suggester *suggest.Suggester
	Optimizer *optimize.Optimizer
	Detector  *conflict.Detector
	Reopt     *reopt.Service
	Simulator *whatif.Simulator
	Journal   persist.Journal
	Metrics   coremetrics.Sink
	Log       logger.Logger
	Bus       eventbus.EventBus
}

// Engine is the single entry point for schedule reads and mutations. All
// mutations go through versioned commits; concurrent writers lose with a
// stale-state error and retry internally at most once.
type Engine struct {
	st  *state.Store
	sug *suggest.Suggester
	opt *optimize.Optimizer
	det *conflict.Detector
	re  *reopt.Service
	sim *whatif.Simulator
	jnl persist.Journal
	snk coremetrics.Sink
	log logger.Logger
	bus eventbus.EventBus
	now func() time.Time
}

// New creates an Engine.
func New(d Deps) *Engine {
	if d.Journal == nil {
		d.Journal = persist.NopJournal{}
	}
	if d.Metrics == nil {
		d.Metrics = coremetrics.NopSink{}
	}
	e := &Engine{
		st:  d.Store,
		sug: d.Suggester,
		opt: d.Optimizer,
		det: d.Detector,
		re:  d.Reopt,
		sim: d.Simulator,
		jnl: d.Journal,
		snk: d.Metrics,
		log: d.Log,
		bus: d.Bus,
		now: time.Now,
	}
	// Background solves must hit the journal and metrics like synchronous ones.
	e.re.Notify(func(out reopt.Outcome) { e.record(context.Background(), out) })
	return e
}

// Run consumes the debounced trigger queue until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error { return e.re.Run(ctx) }

// Snapshot returns the current schedule state.
func (e *Engine) Snapshot() *state.Snapshot { return e.st.Snapshot() }

// GetBerthSuggestions returns ranked berth candidates for a vessel. An empty
// candidate list with reasons is a normal outcome, not an error.
func (e *Engine) GetBerthSuggestions(vesselID string, preferredETA time.Time, topN int) (suggest.Result, error) {
	started := e.now()
	res, err := e.sug.Suggest(e.st.Snapshot(), vesselID, preferredETA, topN)
	if err != nil {
		return suggest.Result{}, err
	}
	if sr, ok := e.snk.(coremetrics.SuggestionRecorder); ok {
		_ = sr.RecordSuggestion(coremetrics.SuggestionRecord{
			VesselID:   vesselID,
			Candidates: len(res.Candidates),
			Latency:    e.now().Sub(started),
			Time:       started,
		})
	}
	return res, nil
}

// OptimizeGlobal solves the whole movable fleet over the full horizon and
// commits the result.
func (e *Engine) OptimizeGlobal(ctx context.Context) (reopt.Outcome, error) {
	out, err := e.re.Global(ctx)
	if err != nil {
		return reopt.Outcome{}, err
	}
	e.record(ctx, out)
	return out, nil
}

// Reoptimize handles one disruption trigger synchronously.
func (e *Engine) Reoptimize(ctx context.Context, t reopt.Trigger) (reopt.Outcome, error) {
	out, err := e.re.Reoptimize(ctx, t)
	if err != nil {
		return reopt.Outcome{}, err
	}
	e.record(ctx, out)
	return out, nil
}

// Enqueue accepts a trigger for the debounced background queue.
func (e *Engine) Enqueue(t reopt.Trigger) { e.re.Enqueue(t) }

// DetectConflicts runs detection over the current snapshot, commits the
// open/close diff, and returns all conflicts still open.
func (e *Engine) DetectConflicts(ctx context.Context) ([]model.Conflict, error) {
	now := e.now()
	for attempt := 0; ; attempt++ {
		snap := e.st.Snapshot()
		detected := e.det.Detect(snap, now)

		detectedKeys := make(map[string]model.Conflict, len(detected))
		for _, c := range detected {
			detectedKeys[c.Key()] = c
		}
		openKeys := make(map[string]model.Conflict)
		for _, c := range snap.Conflicts {
			if c.Status == model.ConflictDetected {
				openKeys[c.Key()] = c
			}
		}

		var opened []model.Conflict
		for _, c := range detected {
			if _, known := openKeys[c.Key()]; !known {
				opened = append(opened, c)
			}
		}
		var closed []string
		var closedConflicts []model.Conflict
		for key, c := range openKeys {
			if _, still := detectedKeys[key]; !still {
				closed = append(closed, c.ID)
				closedConflicts = append(closedConflicts, c)
			}
		}

		if len(opened) == 0 && len(closed) == 0 {
			return openConflicts(snap), nil
		}

		next, err := e.st.Apply(state.Commit{Base: snap.Version, Conflicts: opened, CloseConflicts: closed})
		if errors.Is(err, state.ErrStaleState) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("engine: commit conflict diff: %w", err)
		}

		if e.bus != nil {
			e.bus.Publish(events.ConflictEvent{Opened: opened, Closed: closedConflicts})
		}
		_ = e.jnl.AppendConflicts(ctx, next.Version, now, opened)
		if cr, ok := e.snk.(coremetrics.ConflictRecorder); ok {
			_ = cr.RecordConflicts(transitions(opened, closedConflicts, now))
		}
		return openConflicts(next), nil
	}
}

// ResolveConflict resolves one open conflict, either by reassigning the
// involved calls (auto) or by acknowledging it in place.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID string, action ResolveAction) (ResolveResult, error) {
	snap := e.st.Snapshot()
	cf, ok := snap.Conflicts[conflictID]
	if !ok || cf.Status != model.ConflictDetected {
		return ResolveResult{}, fmt.Errorf("%w: %s", ErrUnknownConflict, conflictID)
	}

	switch action {
	case ResolveAcknowledge:
		return e.acknowledge(snap, cf)
	case ResolveAuto:
		return e.autoResolve(ctx, snap, cf)
	default:
		return ResolveResult{}, fmt.Errorf("engine: unknown resolve action %q", action)
	}
}

// Simulate plays a what-if scenario against a detached copy of the current
// state. Live state is never touched.
func (e *Engine) Simulate(ctx context.Context, sc whatif.Scenario) (whatif.Outcome, error) {
	return e.sim.Simulate(ctx, e.st.Snapshot(), sc)
}

func (e *Engine) autoResolve(ctx context.Context, snap *state.Snapshot, cf model.Conflict) (ResolveResult, error) {
	var vessels []string
	seen := make(map[string]bool)
	for _, sid := range []string{cf.ScheduleID, cf.OtherScheduleID} {
		if sc, ok := snap.Schedules[sid]; ok && sc.Reassignable() && !seen[sc.VesselID] {
			vessels = append(vessels, sc.VesselID)
			seen[sc.VesselID] = true
		}
	}
	if len(vessels) == 0 {
		return ResolveResult{}, fmt.Errorf("engine: conflict %s has no movable schedules", cf.ID)
	}

	out, err := e.re.SolveScope(ctx, "conflict_resolution", vessels)
	if err != nil {
		return ResolveResult{}, err
	}
	e.record(ctx, out)

	cur, stillOpen := e.st.Snapshot().Conflicts[cf.ID]
	resolved := !stillOpen || cur.Status != model.ConflictDetected
	if !resolved {
		e.log.Warnf("conflict %s survived auto-resolution", cf.ID)
	}
	return ResolveResult{Conflict: cf, Outcome: out, Resolved: resolved}, nil
}

// acknowledge marks the conflict ignored. Overlap conflicts additionally set
// ConflictTolerated on both schedules so future commits accept the overlap.
func (e *Engine) acknowledge(snap *state.Snapshot, cf model.Conflict) (ResolveResult, error) {
	for attempt := 0; ; attempt++ {
		cf.Status = model.ConflictIgnored
		commit := state.Commit{Base: snap.Version, Conflicts: []model.Conflict{cf}}
		if cf.Kind == model.BerthOverlap {
			for _, sid := range []string{cf.ScheduleID, cf.OtherScheduleID} {
				if sc, ok := snap.Schedules[sid]; ok && !sc.Terminal() {
					sc.ConflictTolerated = true
					commit.Schedules = append(commit.Schedules, sc)
				}
			}
		}
		_, err := e.st.Apply(commit)
		if errors.Is(err, state.ErrStaleState) && attempt == 0 {
			snap = e.st.Snapshot()
			continue
		}
		if err != nil {
			return ResolveResult{}, fmt.Errorf("engine: acknowledge conflict: %w", err)
		}
		e.log.Infof("conflict %s acknowledged (%s)", cf.ID, cf.Kind)
		return ResolveResult{Conflict: cf, Resolved: true}, nil
	}
}

// record journals a committed solve and feeds the metrics sinks.
func (e *Engine) record(ctx context.Context, out reopt.Outcome) {
	if out.Skipped {
		return
	}
	now := e.now()
	_ = e.jnl.AppendRun(ctx, out.Run)
	_ = e.jnl.AppendCommit(ctx, persist.CommitRecord{
		Version:   out.Version,
		At:        now,
		Trigger:   out.Run.Trigger,
		Schedules: out.Result.Assignments,
	})
	_ = e.jnl.AppendConflicts(ctx, out.Version, now, out.Opened)

	_ = e.snk.RecordSolve([]coremetrics.SolveRecord{{
		Trigger:    out.Run.Trigger,
		Assigned:   out.Run.Assigned,
		Unassigned: out.Run.Unassigned,
		Objective:  out.Run.Objective,
		Duration:   out.Run.Duration,
		Escalated:  out.Run.Escalated,
		Partial:    out.Run.Partial,
		Time:       out.Run.StartedAt,
	}})
	if cr, ok := e.snk.(coremetrics.CommitRecorder); ok {
		_ = cr.RecordCommit(out.Version, len(out.Result.Assignments))
	}
	if cr, ok := e.snk.(coremetrics.ConflictRecorder); ok && len(out.Opened) > 0 {
		_ = cr.RecordConflicts(transitions(out.Opened, nil, now))
	}
	if or, ok := e.snk.(coremetrics.OccupancyRecorder); ok {
		_ = or.RecordOccupancy(occupancy(e.st.Snapshot(), now, 24*time.Hour))
	}

	if e.bus != nil && len(out.Opened) > 0 {
		e.bus.Publish(events.ConflictEvent{Opened: out.Opened})
	}
}

func openConflicts(snap *state.Snapshot) []model.Conflict {
	var out []model.Conflict
	for _, c := range snap.Conflicts {
		if c.Status == model.ConflictDetected {
			out = append(out, c)
		}
	}
	model.SortConflicts(out)
	return out
}

func transitions(opened, closed []model.Conflict, now time.Time) []coremetrics.ConflictTransition {
	out := make([]coremetrics.ConflictTransition, 0, len(opened)+len(closed))
	for _, c := range opened {
		out = append(out, coremetrics.ConflictTransition{
			Kind: c.Kind.String(), Severity: int(c.Severity), Opened: true, Time: now,
		})
	}
	for _, c := range closed {
		out = append(out, coremetrics.ConflictTransition{
			Kind: c.Kind.String(), Severity: int(c.Severity), Opened: false, Time: now,
		})
	}
	return out
}

// occupancy is the scheduled fraction of each berth over [now, now+span).
func occupancy(snap *state.Snapshot, now time.Time, span time.Duration) []coremetrics.OccupancyRecord {
	window := model.Window{Start: now, End: now.Add(span)}
	var out []coremetrics.OccupancyRecord
	for _, b := range snap.SortedBerths() {
		var busy time.Duration
		for _, sc := range snap.SchedulesOnBerth(b.ID) {
			if ov, ok := sc.Window.Intersect(window); ok {
				busy += ov.Duration()
			}
		}
		out = append(out, coremetrics.OccupancyRecord{
			BerthID:  b.ID,
			Fraction: busy.Seconds() / span.Seconds(),
			Time:     now,
		})
	}
	return out
}
