package schedule

import (
	"strings"

	"github.com/Iron-Ham/planforge/internal/plan"
)

// scoreWorker computes the weighted suitability of a worker for a task.
// Factors, each in [0,1] before weighting:
//
//   - skill match: proficiency-weighted coverage of the task's required
//     skills, with critical categories boosted and missing critical
//     coverage penalized
//   - role match: the worker's role against the task's category
//   - availability: remaining capacity as a share of effective hours
//   - balance: how lightly loaded the worker is relative to the most
//     loaded worker in this pass
//   - history: familiarity from same-category work already assigned
//   - specialty: share of required skills among the worker's specialties
func (s *Scheduler) scoreWorker(t *Tracker, ws *workerState, task plan.Task) float64 {
	w := s.cfg.Weights

	score := w.Skill * s.skillMatch(ws.Profile, task)
	score += w.Role * roleMatch(ws.Worker.Role, task)
	score += w.Availability * availabilityRatio(ws)
	score += w.Balance * balanceScore(t, ws)
	score += w.History * historyScore(ws, task)
	score += w.Specialty * specialtyMatch(ws.Profile, task)
	return score
}

// skillMatch weights each matched required skill by the worker's proficiency,
// boosting critical-category matches, then deducts a penalty proportional to
// the share of critical requirements the worker cannot cover.
func (s *Scheduler) skillMatch(p Profile, task plan.Task) float64 {
	required := requiredSkills(task)
	if len(required) == 0 {
		// Nothing specific required: everyone matches moderately.
		return 0.5
	}

	var earned, possible float64
	var criticalTotal, criticalMissing int
	for _, skill := range required {
		weight := 1.0
		critical := s.cfg.isCritical(skill)
		if critical {
			weight = s.cfg.CriticalBoost
			criticalTotal++
		}
		possible += weight

		if prof, ok := p.Proficiency[skill]; ok && prof > 0 {
			earned += weight * prof
		} else if critical {
			criticalMissing++
		}
	}

	match := earned / possible
	if criticalTotal > 0 && criticalMissing > 0 {
		match -= s.cfg.MissingCriticalPenalty * float64(criticalMissing) / float64(criticalTotal)
	}
	return clamp01(match)
}

// roleMatch compares the worker's role with the task's category. An exact or
// substring match scores full; an empty category is neutral.
func roleMatch(role string, task plan.Task) float64 {
	if task.Category == "" || role == "" {
		return 0.5
	}
	if containsFold(task.Category, role) || containsFold(role, task.Category) {
		return 1
	}
	// Related pairings still count for something.
	related := map[string][]string{
		"backend":   {"api", "database", "architecture"},
		"frontend":  {"interface", "design"},
		"fullstack": {"api", "database", "interface", "backend", "frontend"},
		"qa":        {"testing"},
		"devops":    {"infrastructure", "deployment"},
	}
	for _, rel := range related[strings.ToLower(role)] {
		if containsFold(task.Category, rel) {
			return 0.75
		}
	}
	return 0
}

// availabilityRatio is the worker's remaining capacity share.
func availabilityRatio(ws *workerState) float64 {
	if ws.Effective <= 0 {
		return 0
	}
	return clamp01(ws.Remaining() / ws.Effective)
}

// balanceScore favors workers carrying less than the current maximum load,
// steering assignments toward an even spread.
func balanceScore(t *Tracker, ws *workerState) float64 {
	var maxAssigned float64
	for _, id := range t.order {
		if a := t.states[id].Assigned; a > maxAssigned {
			maxAssigned = a
		}
	}
	if maxAssigned <= 0 {
		return 1
	}
	return clamp01(1 - ws.Assigned/maxAssigned)
}

// historyScore rewards same-category work already assigned in this pass;
// it saturates quickly so familiarity never dominates skill.
func historyScore(ws *workerState, task plan.Task) float64 {
	if task.Category == "" {
		return 0
	}
	n := ws.categories[strings.ToLower(task.Category)]
	return float64(n) / float64(n+1)
}

// specialtyMatch is the share of required skills among the worker's
// specialties.
func specialtyMatch(p Profile, task plan.Task) float64 {
	required := requiredSkills(task)
	if len(required) == 0 {
		return 0
	}
	hits := 0
	for _, skill := range required {
		if p.HasSpecialty(skill) {
			hits++
		}
	}
	return float64(hits) / float64(len(required))
}

// requiredSkills normalizes a task's skill requirements, falling back to the
// category when none are declared.
func requiredSkills(task plan.Task) []string {
	var out []string
	for _, s := range task.RequiredSkills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 && task.Category != "" {
		out = append(out, strings.ToLower(task.Category))
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
