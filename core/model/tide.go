package model

import "time"

// TidePoint is one sample of predicted tide height above chart datum.
type TidePoint struct {
	Time    time.Time `json:"time"`
	HeightM float64   `json:"height_m"`
}

// TideTable holds tide predictions sorted by time. Heights between samples
// are linearly interpolated.
type TideTable struct {
	Points []TidePoint `json:"points"`
}

// HeightAt returns the interpolated tide height at t. Outside the table's
// range the nearest sample is used; an empty table reads as zero.
func (tt TideTable) HeightAt(t time.Time) float64 {
	pts := tt.Points
	if len(pts) == 0 {
		return 0
	}
	if !t.After(pts[0].Time) {
		return pts[0].HeightM
	}
	last := pts[len(pts)-1]
	if !t.Before(last.Time) {
		return last.HeightM
	}
	for i := 1; i < len(pts); i++ {
		if t.Before(pts[i].Time) {
			prev, next := pts[i-1], pts[i]
			span := next.Time.Sub(prev.Time).Seconds()
			if span <= 0 {
				return prev.HeightM
			}
			frac := t.Sub(prev.Time).Seconds() / span
			return prev.HeightM + frac*(next.HeightM-prev.HeightM)
		}
	}
	return last.HeightM
}

// NextWindowAbove returns the first interval within [from, from+lookahead]
// where the interpolated height stays at or above min. The scan uses the
// table's own sample spacing, so short spikes between samples are ignored.
func (tt TideTable) NextWindowAbove(min float64, from time.Time, lookahead time.Duration) (Window, bool) {
	if len(tt.Points) == 0 {
		return Window{}, false
	}
	end := from.Add(lookahead)
	var start time.Time
	open := false
	step := tideScanStep(tt)
	for t := from; !t.After(end); t = t.Add(step) {
		if tt.HeightAt(t) >= min {
			if !open {
				start = t
				open = true
			}
		} else if open {
			return Window{Start: start, End: t}, true
		}
	}
	if open {
		return Window{Start: start, End: end}, true
	}
	return Window{}, false
}

func tideScanStep(tt TideTable) time.Duration {
	if len(tt.Points) < 2 {
		return 15 * time.Minute
	}
	step := tt.Points[1].Time.Sub(tt.Points[0].Time)
	if step <= 0 || step > time.Hour {
		return 15 * time.Minute
	}
	return step
}
