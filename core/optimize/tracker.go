package optimize

import (
	"sort"
	"time"

	"github.com/quayside/berthd/core/model"
	"github.com/quayside/berthd/core/state"
	"github.com/quayside/berthd/core/validate"
)

// tracker checks candidate compatibility against the candidates already
// chosen in this solve: berth windows must not collide and resource demand
// must fit the snapshot's remaining capacity.
type tracker struct {
	work      *state.Snapshot
	berthBusy map[string][]model.Window
	usage     map[model.ResourceType][]usageSpan
}

type usageSpan struct {
	w   model.Window
	qty int
}

func newTracker(work *state.Snapshot) *tracker {
	return &tracker{
		work:      work,
		berthBusy: make(map[string][]model.Window),
		usage:     make(map[model.ResourceType][]usageSpan),
	}
}

func (t *tracker) fits(c Candidate, vessel model.Vessel) bool {
	for _, w := range t.berthBusy[c.BerthID] {
		if w.Overlaps(c.Window) {
			return false
		}
	}
	for rt, q := range vessel.RequiredResources() {
		if q <= 0 {
			continue
		}
		free := validate.FreeCapacity(t.work, rt, c.Window) - t.peak(rt, c.Window)
		if free < q {
			return false
		}
	}
	return true
}

func (t *tracker) add(c Candidate, vessel model.Vessel) {
	t.berthBusy[c.BerthID] = append(t.berthBusy[c.BerthID], c.Window)
	for rt, q := range vessel.RequiredResources() {
		if q > 0 {
			t.usage[rt] = append(t.usage[rt], usageSpan{w: c.Window, qty: q})
		}
	}
}

// peak is the maximum concurrent quantity of rt consumed by already-chosen
// candidates within w.
func (t *tracker) peak(rt model.ResourceType, w model.Window) int {
	type edge struct {
		at    time.Time
		delta int
	}
	var edges []edge
	for _, u := range t.usage[rt] {
		ov, ok := u.w.Intersect(w)
		if !ok {
			continue
		}
		edges = append(edges, edge{ov.Start, u.qty}, edge{ov.End, -u.qty})
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
