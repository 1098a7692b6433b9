package optimize

// Config defines solver policy. All values are tunable; defaults follow the
// operating assumptions of a mid-size terminal.
type Config struct {
	// SlotMinutes is the discretization of the planning horizon.
	SlotMinutes int `json:"slot_minutes"`
	// HorizonHours is the default rolling-horizon length.
	HorizonHours int `json:"horizon_hours"`
	// BudgetSeconds caps solver wall-clock time; the incumbent is returned
	// when it expires.
	BudgetSeconds int `json:"budget_seconds"`
	// UnassignedPenalty scales the objective cost of leaving a vessel out,
	// multiplied by priority weight and hours waited.
	UnassignedPenalty float64 `json:"unassigned_penalty"`
	// MaxCandidatesPerVessel bounds candidate generation per vessel.
	MaxCandidatesPerVessel int `json:"max_candidates_per_vessel"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.SlotMinutes == 0 {
		c.SlotMinutes = 15
	}
	if c.HorizonHours == 0 {
		c.HorizonHours = 72
	}
	if c.BudgetSeconds == 0 {
		c.BudgetSeconds = 30
	}
	if c.UnassignedPenalty == 0 {
		c.UnassignedPenalty = 25
	}
	if c.MaxCandidatesPerVessel == 0 {
		c.MaxCandidatesPerVessel = 8
	}
}
