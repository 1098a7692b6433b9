package suggest

import (
	"fmt"
	"sort"
	"time"

	"github.com/quayside/berthd/core/logger"
	"github.com/quayside/berthd/core/model"
	"github.com/quayside/berthd/core/scoring"
	"github.com/quayside/berthd/core/state"
	"github.com/quayside/berthd/core/validate"
)

// Config holds window-search policy for suggestions.
type Config struct {
	// StepMinutes is the slide increment of the window search.
	StepMinutes int `json:"step_minutes"`
	// HorizonHours bounds how far ahead of the preferred ETA to search.
	HorizonHours int `json:"horizon_hours"`
	// TopN is the default number of ranked candidates returned.
	TopN int `json:"top_n"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.StepMinutes == 0 {
		c.StepMinutes = 15
	}
	if c.HorizonHours == 0 {
		c.HorizonHours = 72
	}
	if c.TopN == 0 {
		c.TopN = 3
	}
}

// RankedBerth is one explainable berth recommendation.
type RankedBerth struct {
	Berth      model.Berth          `json:"berth"`
	Window     model.Window         `json:"window"`
	Score      float64              `json:"score"`
	Rationale  string               `json:"rationale"`
	Violations []validate.Violation `json:"-"`
	// TidalWaiver marks candidates that rely on a verified high-tide window.
	TidalWaiver bool `json:"tidal_waiver,omitempty"`
}

// Result carries the ranked candidates, or the aggregated reasons when no
// berth is feasible. An empty candidate list is a normal outcome.
type Result struct {
	Candidates []RankedBerth `json:"candidates"`
	Reasons    []string      `json:"reasons,omitempty"`
}

// Suggester produces ranked berth recommendations for a single vessel.
type Suggester struct {
	cfg    Config
	val    *validate.Validator
	scorer scoring.Scorer
	log    logger.Logger
}

// New creates a Suggester.
func New(cfg Config, val *validate.Validator, scorer scoring.Scorer, log logger.Logger) *Suggester {
	cfg.SetDefaults()
	return &Suggester{cfg: cfg, val: val, scorer: scorer, log: log}
}

// Suggest enumerates berths whose static limits accommodate the vessel and
// slides a window search forward from preferredETA (or the vessel's best
// known ETA when zero). The earliest feasible window per berth is taken as
// that berth's candidate; later windows on the same berth are assumed
// dominated for ranking purposes. Returns the top N by score.
func (s *Suggester) Suggest(snap *state.Snapshot, vesselID string, preferredETA time.Time, topN int) (Result, error) {
	vessel, ok := snap.Vessels[vesselID]
	if !ok {
		return Result{}, fmt.Errorf("suggest: unknown vessel %q", vesselID)
	}
	if topN <= 0 {
		topN = s.cfg.TopN
	}
	from := preferredETA
	if from.IsZero() {
		from = vessel.BestETA()
	}

	var (
		cands   []RankedBerth
		reasons []string
	)
	for _, berth := range snap.SortedBerths() {
		if !berth.Accommodates(vessel) {
			reasons = append(reasons, fmt.Sprintf("berth %s: static envelope too small", berth.ID))
			continue
		}
		cand, reason := s.earliestFeasible(snap, vessel, berth, from)
		if cand == nil {
			reasons = append(reasons, reason)
			continue
		}
		cands = append(cands, *cand)
	}

	sort.Slice(cands, func(i, j int) bool {
		return scoring.Less(cands[i].Score, cands[i].Window, cands[i].Berth.ID,
			cands[j].Score, cands[j].Window, cands[j].Berth.ID)
	})
	if len(cands) > topN {
		cands = cands[:topN]
	}
	if len(cands) == 0 {
		s.log.Infof("no feasible berth for vessel %s from %s", vesselID, from.Format(time.RFC3339))
		return Result{Reasons: reasons}, nil
	}
	return Result{Candidates: cands}, nil
}

// earliestFeasible slides the vessel's service window forward in fixed steps
// until the validator accepts, or the horizon is exhausted.
func (s *Suggester) earliestFeasible(snap *state.Snapshot, vessel model.Vessel, berth model.Berth, from time.Time) (*RankedBerth, string) {
	step := time.Duration(s.cfg.StepMinutes) * time.Minute
	horizon := from.Add(time.Duration(s.cfg.HorizonHours) * time.Hour)
	var lastResult validate.Result

	for start := from; !start.After(horizon); start = start.Add(step) {
		w := model.NewWindow(start, vessel.ServiceTime)
		res := s.val.Check(snap, vessel, berth, w)
		if res.Feasible || res.Waivable() {
			score, factors := s.scorer.Explain(snap, vessel, berth, w)
			return &RankedBerth{
				Berth:       berth,
				Window:      w,
				Score:       score,
				Rationale:   rationale(factors, s.scorer.W, res.Waivable()),
				Violations:  res.Violations,
				TidalWaiver: res.Waivable(),
			}, ""
		}
		lastResult = res
	}

	reason := fmt.Sprintf("berth %s: no feasible window within %dh", berth.ID, s.cfg.HorizonHours)
	if len(lastResult.Violations) > 0 {
		reason += " (" + lastResult.Violations[0].Detail() + ")"
	}
	return nil, reason
}

// rationale renders the dominant scoring factor as operator-readable text.
func rationale(f scoring.Factors, w scoring.Weights, waiver bool) string {
	var msg string
	switch f.Dominant(w) {
	case "utilization":
		msg = "packs tightly against adjacent calls, minimizing berth idle time"
	case "wait_time":
		msg = "minimal waiting after the vessel's predicted arrival"
	case "resource_efficiency":
		msg = "all required quay resources are free of contention"
	default:
		msg = "well suited to the vessel's priority class"
	}
	if waiver {
		msg += "; requires a high-tide window (tidal waiver)"
	}
	return msg
}
