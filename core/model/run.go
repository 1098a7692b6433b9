package model

import "time"

// OptimizationRun is the audit record of one optimizer invocation. Never
// mutated after completion.
type OptimizationRun struct {
	ID        string        `json:"id"`
	Trigger   string        `json:"trigger"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Horizon    Window  `json:"horizon"`
	Vessels    int     `json:"vessels"`
	Assigned   int     `json:"assigned"`
	Unassigned int     `json:"unassigned"`
	Objective  float64 `json:"objective"`
	ScoreDelta float64 `json:"score_delta"`
	Partial    bool    `json:"partial"`
	Escalated  bool    `json:"escalated"`
	Outcome    string  `json:"outcome"`
}
