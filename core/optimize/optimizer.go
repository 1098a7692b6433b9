package optimize

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/quayside/berthd/core/events"
	"github.com/quayside/berthd/core/logger"
	"github.com/quayside/berthd/core/model"
	"github.com/quayside/berthd/core/scoring"
	"github.com/quayside/berthd/core/state"
	"github.com/quayside/berthd/core/validate"
	"github.com/quayside/berthd/internal/eventbus"
)

// Candidate is one scored (vessel, berth, window) triple.
type Candidate struct {
	VesselID string
	BerthID  string
	Window   model.Window
	Score    float64
	Waiver   bool
}

// Result is the outcome of one solve. Partial marks an incumbent returned
// because the wall-clock budget expired before the search completed.
// ScoreDelta is the total score of the new assignments minus the score the
// released schedules had before the solve.
type Result struct {
	Assignments []model.Schedule
	Unassigned  []string
	Objective   float64
	ScoreDelta  float64
	Partial     bool
}

// Optimizer solves the joint berth assignment problem over a horizon. The
// LP relaxation guides a rounding pass; a greedy construction serves both as
// fallback when the relaxation fails and as a competing incumbent. All
// schedules of vessels outside the requested set are pinned as hard
// constraints.
type Optimizer struct {
	cfg    Config
	val    *validate.Validator
	scorer scoring.Scorer
	log    logger.Logger
	bus    eventbus.EventBus
}

// New creates an Optimizer. bus may be nil.
func New(cfg Config, val *validate.Validator, scorer scoring.Scorer, log logger.Logger, bus eventbus.EventBus) *Optimizer {
	cfg.SetDefaults()
	return &Optimizer{cfg: cfg, val: val, scorer: scorer, log: log, bus: bus}
}

// Optimize assigns the given vessels within the horizon. Existing active
// schedules of those vessels are released and rebuilt; everything else stays
// fixed. The call respects the configured budget and any earlier context
// deadline, returning the best incumbent found.
func (o *Optimizer) Optimize(ctx context.Context, snap *state.Snapshot, horizon model.Window, vessels []string) Result {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.BudgetSeconds)*time.Second)
	defer cancel()

	work, released, vessels := o.release(snap, vessels)
	prevScore := o.scoreReleased(work, released)
	cands := o.buildCandidates(ctx, work, horizon, vessels)

	best := o.construct(work, horizon, vessels, cands, nil)
	if frac, err := o.relax(work, horizon, vessels, cands); err == nil && frac != nil {
		guided := o.construct(work, horizon, vessels, cands, frac)
		if guided.objective > best.objective {
			best = guided
		}
	}

	partial := o.improve(ctx, work, horizon, &best, cands)

	res := o.render(work, horizon, vessels, best, released, prevScore)
	res.Partial = partial || ctx.Err() != nil
	o.log.Infof("optimize: %d/%d vessels assigned, objective %.1f, partial=%v",
		len(res.Assignments), len(vessels), res.Objective, res.Partial)
	return res
}

// release clones the snapshot and removes the target vessels' active
// schedules and allocations so the search can reassign them. Vessels whose
// call is already berthed (or otherwise pinned) drop out of the solve; the
// released schedules are returned keyed by vessel for ID reuse.
func (o *Optimizer) release(snap *state.Snapshot, vessels []string) (*state.Snapshot, map[string]model.Schedule, []string) {
	work := snap.Clone()
	released := make(map[string]model.Schedule)
	eligible := make([]string, 0, len(vessels))
	for _, vid := range vessels {
		sc, ok := work.ActiveScheduleForVessel(vid)
		if ok && !sc.Reassignable() {
			continue
		}
		eligible = append(eligible, vid)
		if !ok {
			continue
		}
		released[vid] = sc
		delete(work.Schedules, sc.ID)
		for _, a := range work.AllocationsForSchedule(sc.ID) {
			delete(work.Allocations, a.ID)
		}
	}
	return work, released, eligible
}

// buildCandidates scans the slot grid per vessel and berth, keeping the best
// feasible windows per vessel.
func (o *Optimizer) buildCandidates(ctx context.Context, work *state.Snapshot, horizon model.Window, vessels []string) map[string][]Candidate {
	slot := time.Duration(o.cfg.SlotMinutes) * time.Minute
	perBerth := 4
	out := make(map[string][]Candidate, len(vessels))

	for _, vid := range o.orderVessels(work, vessels) {
		vessel, ok := work.Vessels[vid]
		if !ok {
			continue
		}
		var cands []Candidate
		for _, berth := range work.SortedBerths() {
			if !berth.Accommodates(vessel) {
				continue
			}
			found := 0
			start := alignUp(maxTime(horizon.Start, vessel.BestETA()), horizon.Start, slot)
			for ; found < perBerth && !start.Add(vessel.ServiceTime).After(horizon.End); start = start.Add(slot) {
				if ctx.Err() != nil {
					break
				}
				w := model.NewWindow(start, vessel.ServiceTime)
				res := o.val.Check(work, vessel, berth, w)
				if !res.Feasible && !res.Waivable() {
					continue
				}
				cands = append(cands, Candidate{
					VesselID: vid,
					BerthID:  berth.ID,
					Window:   w,
					Score:    o.scorer.Score(work, vessel, berth, w),
					Waiver:   res.Waivable(),
				})
				found++
			}
		}
		sort.Slice(cands, func(i, j int) bool {
			return scoring.Less(cands[i].Score, cands[i].Window, cands[i].BerthID,
				cands[j].Score, cands[j].Window, cands[j].BerthID)
		})
		if len(cands) > o.cfg.MaxCandidatesPerVessel {
			cands = cands[:o.cfg.MaxCandidatesPerVessel]
		}
		out[vid] = cands
	}
	return out
}

// relax builds and solves the fractional assignment LP.
func (o *Optimizer) relax(work *state.Snapshot, horizon model.Window, vessels []string, byVessel map[string][]Candidate) (map[*Candidate]float64, error) {
	if o.bus != nil {
		o.bus.Publish(events.SolveEvent{Action: "lp_attempt"})
	}
	var flat []*Candidate
	vesselRows := make(map[string][]int)
	for _, vid := range o.orderVessels(work, vessels) {
		list := byVessel[vid]
		for i := range list {
			vesselRows[vid] = append(vesselRows[vid], len(flat))
			flat = append(flat, &list[i])
		}
	}
	if len(flat) == 0 {
		return map[*Candidate]float64{}, nil
	}

	p := lpProblem{reward: make([]float64, len(flat))}
	for i, c := range flat {
		reward := c.Score
		if v, ok := work.Vessels[c.VesselID]; ok {
			reward += o.penalty(v, horizon)
		}
		p.reward[i] = reward
	}
	for _, vid := range o.orderVessels(work, vessels) {
		idx := vesselRows[vid]
		if len(idx) == 0 {
			continue
		}
		p.rows = append(p.rows, lpRow{vars: idx, coefs: ones(len(idx)), bound: 1})
	}
	p.rows = append(p.rows, o.slotRows(work, horizon, flat)...)

	x, err := lpSolve(p)
	if err != nil {
		if o.bus != nil {
			o.bus.Publish(events.SolveEvent{Action: "lp_failure", Err: err})
			o.bus.Publish(events.SolveEvent{Action: "greedy_fallback"})
		}
		o.log.Warnf("lp relaxation failed, keeping greedy incumbent: %v", err)
		return nil, err
	}
	frac := make(map[*Candidate]float64, len(flat))
	for i, c := range flat {
		frac[c] = x[i]
	}
	return frac, nil
}

// slotRows emits berth-exclusivity and resource-capacity rows for slots where
// candidates actually contend.
func (o *Optimizer) slotRows(work *state.Snapshot, horizon model.Window, flat []*Candidate) []lpRow {
	slot := time.Duration(o.cfg.SlotMinutes) * time.Minute
	var rows []lpRow
	for t := horizon.Start; t.Before(horizon.End); t = t.Add(slot) {
		sw := model.NewWindow(t, slot)

		byBerth := make(map[string][]int)
		byRes := make(map[model.ResourceType][]int)
		for i, c := range flat {
			if !c.Window.Overlaps(sw) {
				continue
			}
			byBerth[c.BerthID] = append(byBerth[c.BerthID], i)
			if v, ok := work.Vessels[c.VesselID]; ok {
				for rt, q := range v.RequiredResources() {
					if q > 0 {
						byRes[rt] = append(byRes[rt], i)
					}
				}
			}
		}
		for _, idx := range sortedRowKeys(byBerth) {
			vars := byBerth[idx]
			if len(vars) > 1 {
				rows = append(rows, lpRow{vars: vars, coefs: ones(len(vars)), bound: 1})
			}
		}
		for _, rt := range sortedResKeys(byRes) {
			vars := byRes[rt]
			free := validate.FreeCapacity(work, rt, sw)
			demand := 0
			coefs := make([]float64, len(vars))
			for k, i := range vars {
				q := work.Vessels[flat[i].VesselID].RequiredResources()[rt]
				coefs[k] = float64(q)
				demand += q
			}
			if demand > free {
				rows = append(rows, lpRow{vars: vars, coefs: coefs, bound: float64(free)})
			}
		}
	}
	return rows
}

// construct rounds the fractional solution into a feasible schedule, or runs
// a pure greedy pass when frac is nil.
func (o *Optimizer) construct(work *state.Snapshot, horizon model.Window, vessels []string, byVessel map[string][]Candidate, frac map[*Candidate]float64) solution {
	tr := newTracker(work)
	sol := solution{chosen: make(map[string]Candidate)}

	type ranked struct {
		c      *Candidate
		frac   float64
		reward float64
	}
	var all []ranked
	for _, vid := range o.orderVessels(work, vessels) {
		list := byVessel[vid]
		reward := 0.0
		if v, ok := work.Vessels[vid]; ok {
			reward = o.penalty(v, horizon)
		}
		for i := range list {
			f := 0.0
			if frac != nil {
				f = frac[&list[i]]
			}
			all = append(all, ranked{c: &list[i], frac: f, reward: list[i].Score + reward})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if frac != nil && all[i].frac != all[j].frac {
			return all[i].frac > all[j].frac
		}
		if all[i].reward != all[j].reward {
			return all[i].reward > all[j].reward
		}
		return scoring.Less(all[i].c.Score, all[i].c.Window, all[i].c.BerthID,
			all[j].c.Score, all[j].c.Window, all[j].c.BerthID)
	})

	for _, r := range all {
		c := r.c
		if _, done := sol.chosen[c.VesselID]; done {
			continue
		}
		vessel := work.Vessels[c.VesselID]
		if !tr.fits(*c, vessel) {
			continue
		}
		tr.add(*c, vessel)
		sol.chosen[c.VesselID] = *c
	}

	sol.objective = o.objective(work, horizon, vessels, sol.chosen)
	return sol
}

// improve extends the incumbent by scanning later slots for still-unassigned
// vessels until the deadline. Reports whether the budget expired mid-search.
func (o *Optimizer) improve(ctx context.Context, work *state.Snapshot, horizon model.Window, sol *solution, byVessel map[string][]Candidate) bool {
	slot := time.Duration(o.cfg.SlotMinutes) * time.Minute
	tr := newTracker(work)
	for _, c := range sol.chosen {
		tr.add(c, work.Vessels[c.VesselID])
	}

	vessels := make([]string, 0, len(byVessel))
	for vid := range byVessel {
		vessels = append(vessels, vid)
	}
	for _, vid := range o.orderVessels(work, vessels) {
		if _, done := sol.chosen[vid]; done {
			continue
		}
		vessel, ok := work.Vessels[vid]
		if !ok {
			continue
		}
		for _, berth := range work.SortedBerths() {
			if !berth.Accommodates(vessel) {
				continue
			}
			assigned := false
			start := alignUp(maxTime(horizon.Start, vessel.BestETA()), horizon.Start, slot)
			for ; !start.Add(vessel.ServiceTime).After(horizon.End); start = start.Add(slot) {
				select {
				case <-ctx.Done():
					return true
				default:
				}
				w := model.NewWindow(start, vessel.ServiceTime)
				res := o.val.Check(work, vessel, berth, w)
				if !res.Feasible && !res.Waivable() {
					continue
				}
				c := Candidate{VesselID: vid, BerthID: berth.ID, Window: w,
					Score: o.scorer.Score(work, vessel, berth, w), Waiver: res.Waivable()}
				if !tr.fits(c, vessel) {
					continue
				}
				tr.add(c, vessel)
				sol.chosen[vid] = c
				assigned = true
				break
			}
			if assigned {
				break
			}
		}
	}
	sol.objective = o.objective(work, horizon, vesselsOf(byVessel), sol.chosen)
	return false
}

// render turns the chosen candidates into schedules, reusing released IDs,
// and lists the vessels left unassigned.
func (o *Optimizer) render(work *state.Snapshot, horizon model.Window, vessels []string, sol solution, released map[string]model.Schedule, prevScore float64) Result {
	res := Result{Objective: o.objective(work, horizon, vessels, sol.chosen)}
	newScore := 0.0
	for _, c := range sol.chosen {
		newScore += c.Score
	}
	res.ScoreDelta = newScore - prevScore
	vids := make([]string, 0, len(sol.chosen))
	for vid := range sol.chosen {
		vids = append(vids, vid)
	}
	sort.Strings(vids)
	for _, vid := range vids {
		c := sol.chosen[vid]
		id := "SCH-" + uuid.NewString()
		status := model.StatusScheduled
		if prev, ok := released[vid]; ok {
			id = prev.ID
			status = prev.Status
		}
		res.Assignments = append(res.Assignments, model.Schedule{
			ID:           id,
			VesselID:     vid,
			BerthID:      c.BerthID,
			Window:       c.Window,
			PredictedETA: work.Vessels[vid].BestETA(),
			Status:       status,
			TidalWaiver:  c.Waiver,
		})
	}
	for _, vid := range o.orderVessels(work, vessels) {
		if _, ok := sol.chosen[vid]; !ok {
			res.Unassigned = append(res.Unassigned, vid)
		}
	}
	return res
}

// scoreReleased totals what the released schedules scored before the solve,
// evaluated on the working snapshot so the comparison matches how the new
// candidates are scored.
func (o *Optimizer) scoreReleased(work *state.Snapshot, released map[string]model.Schedule) float64 {
	total := 0.0
	for vid, sc := range released {
		v, vok := work.Vessels[vid]
		b, bok := work.Berths[sc.BerthID]
		if !vok || !bok {
			continue
		}
		total += o.scorer.Score(work, v, b, sc.Window)
	}
	return total
}

func (o *Optimizer) objective(work *state.Snapshot, horizon model.Window, vessels []string, chosen map[string]Candidate) float64 {
	obj := 0.0
	for _, c := range chosen {
		obj += c.Score
	}
	for _, vid := range vessels {
		if _, ok := chosen[vid]; ok {
			continue
		}
		if v, vok := work.Vessels[vid]; vok {
			obj -= o.penalty(v, horizon)
		}
	}
	return obj
}

// penalty is the objective cost of leaving a vessel unassigned:
// base × priority weight × hours already waited (at least one).
func (o *Optimizer) penalty(v model.Vessel, horizon model.Window) float64 {
	waited := horizon.Start.Sub(v.BestETA()).Hours()
	if waited < 1 {
		waited = 1
	}
	return o.cfg.UnassignedPenalty * v.Priority.Weight() * waited
}

// orderVessels sorts deterministically: priority class, best ETA, then ID.
func (o *Optimizer) orderVessels(work *state.Snapshot, vessels []string) []string {
	out := append([]string(nil), vessels...)
	sort.Slice(out, func(i, j int) bool {
		a, aok := work.Vessels[out[i]]
		b, bok := work.Vessels[out[j]]
		if !aok || !bok {
			return out[i] < out[j]
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.BestETA().Equal(b.BestETA()) {
			return a.BestETA().Before(b.BestETA())
		}
		return a.ID < b.ID
	})
	return out
}

type solution struct {
	chosen    map[string]Candidate
	objective float64
}

func vesselsOf(byVessel map[string][]Candidate) []string {
	out := make([]string, 0, len(byVessel))
	for vid := range byVessel {
		out = append(out, vid)
	}
	sort.Strings(out)
	return out
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// alignUp rounds t up to the slot grid anchored at origin.
func alignUp(t, origin time.Time, slot time.Duration) time.Time {
	if !t.After(origin) {
		return origin
	}
	off := t.Sub(origin)
	steps := off / slot
	if off%slot != 0 {
		steps++
	}
	return origin.Add(steps * slot)
}

func sortedRowKeys(m map[string][]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedResKeys(m map[model.ResourceType][]int) []model.ResourceType {
	out := make([]model.ResourceType, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
