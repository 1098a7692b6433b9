package scoring

import (
	"math"

	"github.com/quayside/berthd/core/model"
	"github.com/quayside/berthd/core/state"
	"github.com/quayside/berthd/core/validate"
)

// Weights tunes the scoring objective. Policy, not structure: loaded from
// configuration with these defaults.
type Weights struct {
	Utilization        float64 `json:"utilization"`
	WaitTime           float64 `json:"wait_time"`
	ResourceEfficiency float64 `json:"resource_efficiency"`
	PriorityFit        float64 `json:"priority_fit"`
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{Utilization: 0.3, WaitTime: 0.3, ResourceEfficiency: 0.2, PriorityFit: 0.2}
}

func (w Weights) sum() float64 {
	return w.Utilization + w.WaitTime + w.ResourceEfficiency + w.PriorityFit
}

// Factors are the normalized [0,1] components of one score, kept so callers
// can explain which factor dominated.
type Factors struct {
	Utilization        float64
	WaitTime           float64
	ResourceEfficiency float64
	PriorityFit        float64
}

// Dominant returns the name of the highest-weighted contribution.
func (f Factors) Dominant(w Weights) string {
	name := "utilization"
	best := f.Utilization * w.Utilization
	if c := f.WaitTime * w.WaitTime; c > best {
		name, best = "wait_time", c
	}
	if c := f.ResourceEfficiency * w.ResourceEfficiency; c > best {
		name, best = "resource_efficiency", c
	}
	if c := f.PriorityFit * w.PriorityFit; c > best {
		name = "priority_fit"
	}
	return name
}

// Scorer computes scores in [0,100] for validated (vessel, berth, window)
// triples.
type Scorer struct {
	W Weights
}

// New creates a Scorer; zero weights fall back to the defaults.
func New(w Weights) Scorer {
	if w.sum() == 0 {
		w = DefaultWeights()
	}
	return Scorer{W: w}
}

// Score returns the weighted score for the triple.
func (s Scorer) Score(snap *state.Snapshot, vessel model.Vessel, berth model.Berth, w model.Window) float64 {
	score, _ := s.Explain(snap, vessel, berth, w)
	return score
}

// Explain returns the score together with its factor breakdown.
func (s Scorer) Explain(snap *state.Snapshot, vessel model.Vessel, berth model.Berth, w model.Window) (float64, Factors) {
	f := Factors{
		Utilization:        s.utilization(snap, vessel, berth, w),
		WaitTime:           s.waitTime(vessel, w),
		ResourceEfficiency: s.resourceEfficiency(snap, vessel, w),
		PriorityFit:        s.priorityFit(vessel, w),
	}
	weighted := f.Utilization*s.W.Utilization +
		f.WaitTime*s.W.WaitTime +
		f.ResourceEfficiency*s.W.ResourceEfficiency +
		f.PriorityFit*s.W.PriorityFit
	score := 100 * weighted / s.W.sum()
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, f
}

// utilization rewards windows that pack tightly against adjacent bookings on
// the berth: the idle gap to the nearest neighbour decays the factor.
func (s Scorer) utilization(snap *state.Snapshot, vessel model.Vessel, berth model.Berth, w model.Window) float64 {
	gap := math.Inf(1)
	for _, other := range snap.SchedulesOnBerth(berth.ID) {
		if other.VesselID == vessel.ID {
			continue
		}
		if !other.Window.End.After(w.Start) {
			if g := w.Start.Sub(other.Window.End).Hours(); g < gap {
				gap = g
			}
		}
		if !other.Window.Start.Before(w.End) {
			if g := other.Window.Start.Sub(w.End).Hours(); g < gap {
				gap = g
			}
		}
	}
	if math.IsInf(gap, 1) {
		// Empty berth: neutral rather than punished.
		return 0.5
	}
	return math.Exp(-gap / 6.0)
}

// waitTime penalizes making the vessel wait past its predicted arrival.
func (s Scorer) waitTime(vessel model.Vessel, w model.Window) float64 {
	wait := w.Start.Sub(vessel.BestETA()).Hours()
	if wait <= 0 {
		return 1
	}
	return math.Exp(-wait / 6.0)
}

// resourceEfficiency is the fraction of required resource types whose demand
// is free of contention within the window.
func (s Scorer) resourceEfficiency(snap *state.Snapshot, vessel model.Vessel, w model.Window) float64 {
	req := vessel.RequiredResources()
	if len(req) == 0 {
		return 1
	}
	satisfied := 0
	for rt, qty := range req {
		if qty <= 0 || validate.FreeCapacity(snap, rt, w) >= qty {
			satisfied++
		}
	}
	return float64(satisfied) / float64(len(req))
}

// priorityFit grants high-priority vessels a bonus for early windows.
func (s Scorer) priorityFit(vessel model.Vessel, w model.Window) float64 {
	prio := vessel.Priority.Weight() / model.PriorityHigh.Weight()
	wait := w.Start.Sub(vessel.BestETA()).Hours()
	earliness := 1.0
	if wait > 0 {
		earliness = math.Exp(-wait / 12.0)
	}
	return prio * earliness
}

// Less orders two scored candidates: higher score first, ties broken by
// earliest window start, then lowest berth ID, for reproducible rankings.
func Less(scoreA float64, winA model.Window, berthA string, scoreB float64, winB model.Window, berthB string) bool {
	if scoreA != scoreB {
		return scoreA > scoreB
	}
	if !winA.Start.Equal(winB.Start) {
		return winA.Start.Before(winB.Start)
	}
	return berthA < berthB
}
