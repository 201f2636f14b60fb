package schedule

import (
	"math"
	"sort"

	"github.com/Iron-Ham/planforge/internal/plan"
)

// rebalance evens out the workload spread after the initial pass. It moves
// non-critical work from overloaded workers to underloaded ones; critical
// units never move. Moves are capacity-checked against the target, so the
// workload invariant holds throughout.
func (s *Scheduler) rebalance(t *Tracker, placed []assigned, priorities plan.PriorityMap, out *Assignments) {
	mean, spread := loadSpread(t)
	out.Summary.SpreadBefore = spread
	out.Summary.SpreadAfter = spread
	if mean <= 0 || spread <= s.cfg.SpreadThreshold*mean {
		return
	}
	out.Summary.Rebalanced = true
	s.logger.Info("rebalancing workload",
		"mean_hours", mean, "spread", spread, "threshold", s.cfg.SpreadThreshold*mean)

	byWorker := make(map[string][]assigned)
	childrenOf := make(map[string][]assigned)
	for _, a := range placed {
		byWorker[a.workerID] = append(byWorker[a.workerID], a)
		if a.subtask {
			childrenOf[a.parentID] = append(childrenOf[a.parentID], a)
		}
	}

	moved := make(map[string]bool)
	for _, sourceID := range t.order {
		source := t.states[sourceID]
		if source.Assigned <= s.cfg.OverloadFactor*mean*source.Worker.AllocationFactor() {
			continue
		}
		goal := s.cfg.RecoveryFraction * (source.Assigned - mean)
		recovered := s.moveTasks(t, sourceID, byWorker[sourceID], childrenOf, priorities, mean, goal, moved, out)
		if recovered < goal/2 {
			recovered += s.moveSubtasks(t, sourceID, byWorker[sourceID], priorities, mean, goal-recovered, moved, out)
		}
	}

	_, out.Summary.SpreadAfter = loadSpread(t)
}

// moveTasks relocates whole tasks off an overloaded worker until goal hours
// are recovered. Subtasks assigned to the same worker follow their parent.
func (s *Scheduler) moveTasks(t *Tracker, sourceID string, units []assigned, childrenOf map[string][]assigned, priorities plan.PriorityMap, mean, goal float64, moved map[string]bool, out *Assignments) float64 {
	recovered := 0.0
	for _, a := range movable(units, priorities, s.cfg) {
		if recovered >= goal {
			break
		}
		if a.subtask || moved[a.unit.ID] {
			continue
		}
		group := []assigned{a}
		hours := a.unit.EstimatedHours
		for _, child := range childrenOf[a.unit.ID] {
			if child.workerID == sourceID && !moved[child.unit.ID] {
				group = append(group, child)
				hours += child.unit.EstimatedHours
			}
		}
		targetID, ok := s.pickTarget(t, sourceID, a.unit, hours, mean)
		if !ok {
			continue
		}
		for _, m := range group {
			if s.move(t, m, targetID, out) {
				moved[m.unit.ID] = true
				recovered += m.unit.EstimatedHours
			}
		}
	}
	return recovered
}

// moveSubtasks is the finer-grained fallback when relocating whole tasks
// recovered less than half the goal.
func (s *Scheduler) moveSubtasks(t *Tracker, sourceID string, units []assigned, priorities plan.PriorityMap, mean, goal float64, moved map[string]bool, out *Assignments) float64 {
	recovered := 0.0
	for _, a := range movable(units, priorities, s.cfg) {
		if recovered >= goal {
			break
		}
		if !a.subtask || moved[a.unit.ID] {
			continue
		}
		targetID, ok := s.pickTarget(t, sourceID, a.unit, a.unit.EstimatedHours, mean)
		if !ok {
			continue
		}
		if s.move(t, a, targetID, out) {
			moved[a.unit.ID] = true
			recovered += a.unit.EstimatedHours
		}
	}
	return recovered
}

// pickTarget finds the best-scoring underloaded worker with room for hours.
// It returns false when no candidate clears the minimum match score.
func (s *Scheduler) pickTarget(t *Tracker, sourceID string, unit plan.Task, hours, mean float64) (string, bool) {
	bestID := ""
	bestScore := -1.0
	for _, id := range t.order {
		if id == sourceID {
			continue
		}
		ws := t.states[id]
		if ws.Assigned >= s.cfg.UnderloadFactor*mean || ws.Remaining() < hours {
			continue
		}
		score := s.scoreWorker(t, ws, unit)
		if score < s.cfg.MinMatchScore {
			continue
		}
		if score > bestScore {
			bestID, bestScore = id, score
		}
	}
	return bestID, bestID != ""
}

// move reassigns one unit, debiting the source before crediting the target.
// It reports whether the unit actually changed workers.
func (s *Scheduler) move(t *Tracker, a assigned, targetID string, out *Assignments) bool {
	t.Unassign(a.workerID, a.unit.ID, a.unit.EstimatedHours, a.subtask, a.unit.Category)
	if err := t.Assign(targetID, a.unit.ID, a.unit.EstimatedHours, a.subtask, a.unit.Category); err != nil {
		// Target filled up between the capacity check and the move; put it back.
		_ = t.Assign(a.workerID, a.unit.ID, a.unit.EstimatedHours, a.subtask, a.unit.Category)
		return false
	}
	name := workerName(t, targetID)
	if a.subtask {
		out.Subtasks[a.unit.ID] = name
	} else {
		out.Tasks[a.unit.ID] = name
	}
	s.logger.Debug("moved unit during rebalance",
		"unit", a.unit.ID, "from", a.workerID, "to", targetID, "hours", a.unit.EstimatedHours)
	return true
}

// movable filters out critical work and orders candidates largest first so
// the fewest moves recover the most hours.
func movable(units []assigned, priorities plan.PriorityMap, cfg Config) []assigned {
	out := make([]assigned, 0, len(units))
	for _, a := range units {
		if p := effectivePriority(a.unit, priorities); p == plan.PriorityCritical || p == plan.PriorityHigh {
			continue
		}
		if cfg.isCritical(a.unit.Category) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].unit.EstimatedHours != out[j].unit.EstimatedHours {
			return out[i].unit.EstimatedHours > out[j].unit.EstimatedHours
		}
		return out[i].unit.ID < out[j].unit.ID
	})
	return out
}

// loadSpread returns the mean and population standard deviation of assigned
// hours across the roster.
func loadSpread(t *Tracker) (mean, stddev float64) {
	if len(t.order) == 0 {
		return 0, 0
	}
	for _, id := range t.order {
		mean += t.states[id].Assigned
	}
	mean /= float64(len(t.order))
	var variance float64
	for _, id := range t.order {
		d := t.states[id].Assigned - mean
		variance += d * d
	}
	variance /= float64(len(t.order))
	return mean, math.Sqrt(variance)
}
