package schedule

import (
	"sort"

	"github.com/Iron-Ham/planforge/internal/logging"
	"github.com/Iron-Ham/planforge/internal/plan"
)

// Assignments is the scheduler's output: unit ID to worker name maps plus
// the workload summary.
type Assignments struct {
	Tasks    map[string]string `json:"tasks"`
	Subtasks map[string]string `json:"subtasks"`
	Summary  Summary           `json:"summary"`
}

// Summary reports per-worker utilization and the units that could not be
// placed. Unassigned work is a warning, not a failure.
type Summary struct {
	Workers            []plan.WorkerUtilization `json:"workers"`
	UnassignedTasks    []string                 `json:"unassigned_tasks,omitempty"`
	UnassignedSubtasks []string                 `json:"unassigned_subtasks,omitempty"`
	Rebalanced         bool                     `json:"rebalanced"`
	SpreadBefore       float64                  `json:"spread_before"`
	SpreadAfter        float64                  `json:"spread_after"`
}

// Scheduler runs scheduling passes. It is stateless between passes; all
// mutable state lives in the per-pass Tracker.
type Scheduler struct {
	cfg    Config
	logger *logging.Logger
}

// NewScheduler creates a Scheduler with the given configuration.
func NewScheduler(cfg Config, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Scheduler{cfg: cfg, logger: logger}
}

// assigned tracks one placed unit for the rebalancing pass.
type assigned struct {
	unit     plan.Task
	parentID string // set for subtasks
	workerID string
	subtask  bool
}

// Schedule produces assignments for the given tasks and subtasks against the
// worker roster. Inputs are never mutated; running the same inputs twice
// yields identical assignments.
func (s *Scheduler) Schedule(tasks []plan.Task, subtasks []plan.Subtask, priorities plan.PriorityMap, workers []plan.Worker) (*Assignments, error) {
	tracker, err := NewTracker(workers, s.cfg)
	if err != nil {
		return nil, err
	}

	out := &Assignments{
		Tasks:    make(map[string]string, len(tasks)),
		Subtasks: make(map[string]string, len(subtasks)),
	}
	var placed []assigned

	// Tasks first, highest priority first.
	for _, task := range sortUnits(tasks, priorities) {
		workerID, ok := s.pickWorker(tracker, task)
		if !ok {
			s.logger.Warn("no capacity for task, leaving unassigned",
				"task", task.ID, "hours", task.EstimatedHours)
			out.Summary.UnassignedTasks = append(out.Summary.UnassignedTasks, task.ID)
			continue
		}
		if err := tracker.Assign(workerID, task.ID, task.EstimatedHours, false, task.Category); err != nil {
			out.Summary.UnassignedTasks = append(out.Summary.UnassignedTasks, task.ID)
			continue
		}
		out.Tasks[task.ID] = workerName(tracker, workerID)
		placed = append(placed, assigned{unit: task, workerID: workerID})
	}

	// Subtasks keep their parent's assignee when capacity allows.
	taskAssignee := make(map[string]string, len(placed))
	for _, a := range placed {
		taskAssignee[a.unit.ID] = a.workerID
	}
	for _, st := range sortSubtasks(subtasks, priorities) {
		workerID, ok := s.pickSubtaskWorker(tracker, st, taskAssignee)
		if !ok {
			s.logger.Warn("no capacity for subtask, leaving unassigned",
				"subtask", st.ID, "parent", st.ParentTaskID)
			out.Summary.UnassignedSubtasks = append(out.Summary.UnassignedSubtasks, st.ID)
			continue
		}
		if err := tracker.Assign(workerID, st.ID, st.EstimatedHours, true, st.Category); err != nil {
			out.Summary.UnassignedSubtasks = append(out.Summary.UnassignedSubtasks, st.ID)
			continue
		}
		out.Subtasks[st.ID] = workerName(tracker, workerID)
		placed = append(placed, assigned{unit: st.Task, parentID: st.ParentTaskID, workerID: workerID, subtask: true})
	}

	// Best-effort rebalancing when the load spread is too wide.
	s.rebalance(tracker, placed, priorities, out)

	out.Summary.Workers = s.summarize(tracker)
	return out, nil
}

// pickWorker scores every worker with remaining capacity for the task and
// returns the best, deterministically tie-broken by roster order.
func (s *Scheduler) pickWorker(t *Tracker, task plan.Task) (string, bool) {
	bestID := ""
	bestScore := -1.0
	for _, id := range t.order {
		ws := t.states[id]
		if ws.Remaining() < task.EstimatedHours || ws.Remaining() <= 0 {
			continue
		}
		if score := s.scoreWorker(t, ws, task); score > bestScore {
			bestID, bestScore = id, score
		}
	}
	return bestID, bestID != ""
}

// pickSubtaskWorker prefers the parent task's assignee, falling back to the
// general scoring when the parent's worker lacks capacity (or the parent was
// never assigned).
func (s *Scheduler) pickSubtaskWorker(t *Tracker, st plan.Subtask, taskAssignee map[string]string) (string, bool) {
	if parentWorker, ok := taskAssignee[st.ParentTaskID]; ok {
		if ws := t.states[parentWorker]; ws != nil && ws.Remaining() >= st.EstimatedHours {
			return parentWorker, true
		}
	}
	return s.pickWorker(t, st.Task)
}

// sortUnits orders tasks by priority, then sprint hint, then estimated hours
// descending, then ID for a stable total order.
func sortUnits(tasks []plan.Task, priorities plan.PriorityMap) []plan.Task {
	out := make([]plan.Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := effectivePriority(out[i], priorities), effectivePriority(out[j], priorities)
		if pi.Rank() != pj.Rank() {
			return pi.Rank() < pj.Rank()
		}
		if out[i].Sprint != out[j].Sprint {
			return out[i].Sprint < out[j].Sprint
		}
		if out[i].EstimatedHours != out[j].EstimatedHours {
			return out[i].EstimatedHours > out[j].EstimatedHours
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// sortSubtasks applies the same ordering to subtasks.
func sortSubtasks(subtasks []plan.Subtask, priorities plan.PriorityMap) []plan.Subtask {
	out := make([]plan.Subtask, len(subtasks))
	copy(out, subtasks)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := effectivePriority(out[i].Task, priorities), effectivePriority(out[j].Task, priorities)
		if pi.Rank() != pj.Rank() {
			return pi.Rank() < pj.Rank()
		}
		if out[i].Sprint != out[j].Sprint {
			return out[i].Sprint < out[j].Sprint
		}
		if out[i].EstimatedHours != out[j].EstimatedHours {
			return out[i].EstimatedHours > out[j].EstimatedHours
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// effectivePriority resolves a unit's priority: the priority map wins, then
// the task's own declared priority, then Medium.
func effectivePriority(task plan.Task, priorities plan.PriorityMap) plan.Priority {
	if p, ok := priorities[task.ID]; ok && p.IsValid() {
		return p
	}
	if task.Priority.IsValid() {
		return task.Priority
	}
	return plan.PriorityMedium
}

// workerName resolves the display name assignments are keyed to.
func workerName(t *Tracker, workerID string) string {
	ws := t.states[workerID]
	if ws == nil {
		return workerID
	}
	if ws.Worker.Name != "" {
		return ws.Worker.Name
	}
	return workerID
}

// summarize builds the per-worker utilization rows in roster order.
func (s *Scheduler) summarize(t *Tracker) []plan.WorkerUtilization {
	out := make([]plan.WorkerUtilization, 0, len(t.order))
	for _, id := range t.order {
		ws := t.states[id]
		var pct float64
		if ws.Effective > 0 {
			pct = 100 * ws.Assigned / ws.Effective
		}
		out = append(out, plan.WorkerUtilization{
			WorkerID:       id,
			WorkerName:     workerName(t, id),
			AssignedHours:  ws.Assigned,
			EffectiveHours: ws.Effective,
			Utilization:    pct,
			Overallocated:  pct > s.cfg.OverallocatedPct,
			Underallocated: pct < s.cfg.UnderallocatedPct,
		})
	}
	return out
}
