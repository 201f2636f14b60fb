// Package schedule implements the resource-assignment scheduler: skill-based
// worker-to-task matching with multi-factor scoring, subtask affinity, and a
// best-effort rebalancing pass that redistributes load from overloaded to
// underloaded workers.
//
// A scheduling pass is pure with respect to its inputs: tasks, subtasks,
// priorities, and the worker roster are never mutated, and identical inputs
// produce identical assignments. All per-pass mutable state lives in the
// workload tracker, which is created fresh for each pass and discarded after
// assignments are emitted.
package schedule

// Weights are the scoring-factor weights. They should sum to roughly 1; the
// defaults follow the empirically tuned split: skill match dominates, role
// match second, the remaining factors nudge ties.
type Weights struct {
	Skill        float64 `mapstructure:"skill"`
	Role         float64 `mapstructure:"role"`
	Availability float64 `mapstructure:"availability"`
	Balance      float64 `mapstructure:"balance"`
	History      float64 `mapstructure:"history"`
	Specialty    float64 `mapstructure:"specialty"`
}

// Config carries every tunable of the scheduler. The rebalancing constants
// (recovery fraction, minimum match score) are empirically chosen, not
// proven optimal; they are configuration rather than invariants.
type Config struct {
	Weights Weights `mapstructure:"weights"`

	// CriticalCategories are skill categories weighted higher in matching
	// and protected from rebalancing moves.
	CriticalCategories []string `mapstructure:"critical_categories"`

	// CriticalBoost multiplies the contribution of matched critical skills.
	CriticalBoost float64 `mapstructure:"critical_boost"`

	// MissingCriticalPenalty scales the deduction for uncovered critical
	// skill requirements.
	MissingCriticalPenalty float64 `mapstructure:"missing_critical_penalty"`

	// SpecialtyCount is how many top skills form a worker's specialties.
	SpecialtyCount int `mapstructure:"specialty_count"`

	// SpreadThreshold triggers rebalancing when the standard deviation of
	// assigned hours exceeds this fraction of the mean.
	SpreadThreshold float64 `mapstructure:"spread_threshold"`

	// OverloadFactor marks a worker overloaded above mean*factor (scaled by
	// their allocation percentage).
	OverloadFactor float64 `mapstructure:"overload_factor"`

	// UnderloadFactor marks a worker underloaded below mean*factor when
	// they still have remaining capacity.
	UnderloadFactor float64 `mapstructure:"underload_factor"`

	// RecoveryFraction is the share of a worker's overload the rebalancer
	// attempts to move away.
	RecoveryFraction float64 `mapstructure:"recovery_fraction"`

	// MinMatchScore gates reassignment: a move only happens when the target
	// scores at least this well for the task.
	MinMatchScore float64 `mapstructure:"min_match_score"`

	// OverallocatedPct and UnderallocatedPct set the utilization flags in
	// the workload summary.
	OverallocatedPct  float64 `mapstructure:"overallocated_pct"`
	UnderallocatedPct float64 `mapstructure:"underallocated_pct"`
}

// DefaultConfig returns the standard scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Skill:        0.35,
			Role:         0.20,
			Availability: 0.15,
			Balance:      0.10,
			History:      0.10,
			Specialty:    0.10,
		},
		CriticalCategories: []string{
			"security", "architecture", "database", "performance", "testing", "devops", "api",
		},
		CriticalBoost:          1.5,
		MissingCriticalPenalty: 0.5,
		SpecialtyCount:         3,
		SpreadThreshold:        0.15,
		OverloadFactor:         1.2,
		UnderloadFactor:        0.8,
		RecoveryFraction:       0.8,
		MinMatchScore:          0.4,
		OverallocatedPct:       95,
		UnderallocatedPct:      50,
	}
}

// isCritical reports whether the given skill or category name belongs to a
// critical category. Matching is by substring in either direction so that
// "database migrations" matches "database".
func (c Config) isCritical(name string) bool {
	if name == "" {
		return false
	}
	for _, cat := range c.CriticalCategories {
		if containsFold(name, cat) || containsFold(cat, name) {
			return true
		}
	}
	return false
}
