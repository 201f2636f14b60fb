// Package plan defines the domain types shared across the Planforge
// pipeline: the project description and roster that feed a run, the tasks
// and priorities produced by the generation stages, the mutable pipeline
// state that accumulates stage outputs, and the compiled plan document.
package plan

import (
	"time"
)

// Priority is the urgency level of a task or subtask.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns the sort rank of the priority; lower sorts first.
// Unknown priorities rank below Low.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// IsValid returns true if this is a recognized priority value.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Skill is one named capability of a worker with a proficiency score in [0,1].
type Skill struct {
	Name        string  `json:"name" yaml:"name"`
	Proficiency float64 `json:"proficiency" yaml:"proficiency"`
}

// Worker describes one member of the project team. Workers are inputs to a
// scheduling pass and are immutable during it.
type Worker struct {
	ID     string  `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Role   string  `json:"role" yaml:"role"`
	Skills []Skill `json:"skills" yaml:"skills"`

	// WeeklyHours is the worker's nominal weekly availability.
	// Zero means the default full-time week.
	WeeklyHours float64 `json:"weekly_hours,omitempty" yaml:"weekly_hours,omitempty"`

	// Allocation is the fraction of WeeklyHours committed to this project.
	// Zero means fully allocated.
	Allocation float64 `json:"allocation,omitempty" yaml:"allocation,omitempty"`

	// TimeOffHours is deducted from the effective weekly hours.
	TimeOffHours float64 `json:"time_off_hours,omitempty" yaml:"time_off_hours,omitempty"`
}

// DefaultWeeklyHours is assumed when a worker record omits weekly hours.
const DefaultWeeklyHours = 40.0

// EffectiveHours returns the worker's usable weekly hours after applying the
// allocation percentage and time off. Absent overrides default to full
// availability. The result is never negative.
func (w Worker) EffectiveHours() float64 {
	hours := w.WeeklyHours
	if hours <= 0 {
		hours = DefaultWeeklyHours
	}
	alloc := w.Allocation
	if alloc <= 0 || alloc > 1 {
		alloc = 1
	}
	effective := hours*alloc - w.TimeOffHours
	if effective < 0 {
		return 0
	}
	return effective
}

// AllocationFactor returns the worker's allocation clamped to (0,1].
func (w Worker) AllocationFactor() float64 {
	if w.Allocation <= 0 || w.Allocation > 1 {
		return 1
	}
	return w.Allocation
}

// Task is one assignable unit of work produced by the breakdown stage.
type Task struct {
	ID             string   `json:"id" yaml:"id"`
	Title          string   `json:"title" yaml:"title"`
	Description    string   `json:"description,omitempty" yaml:"description,omitempty"`
	EstimatedHours float64  `json:"estimated_hours" yaml:"estimated_hours"`
	Priority       Priority `json:"priority,omitempty" yaml:"priority,omitempty"`
	Category       string   `json:"category,omitempty" yaml:"category,omitempty"`
	DependsOn      []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// Sprint is an ordering hint within a priority band.
	Sprint int `json:"sprint,omitempty" yaml:"sprint,omitempty"`

	// RequiredSkills names the skills the task calls for, used by the
	// scheduler's skill matching.
	RequiredSkills []string `json:"required_skills,omitempty" yaml:"required_skills,omitempty"`
}

// Subtask is a finer-grained unit under a parent task. Subtask hours are not
// required to sum to the parent's; the scheduler treats subtasks as
// independent assignable units.
type Subtask struct {
	Task         `yaml:",inline"`
	ParentTaskID string `json:"parent_task_id" yaml:"parent_task_id"`
}

// Project is the immutable input to a pipeline run.
type Project struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Timeline    string    `json:"timeline,omitempty" yaml:"timeline,omitempty"`
	TechStack   []string  `json:"tech_stack,omitempty" yaml:"tech_stack,omitempty"`
	Team        []Worker  `json:"team" yaml:"team"`
	CreatedAt   time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`

	// ProjectID pins the stable identifier. When empty, one is derived from
	// the name and creation time (see DeriveProjectID).
	ProjectID string `json:"project_id,omitempty" yaml:"project_id,omitempty"`
}

// Analysis is the output of the analysis stage.
type Analysis struct {
	Summary    string   `json:"summary"`
	Risks      []string `json:"risks,omitempty"`
	Phases     []string `json:"phases,omitempty"`
	Complexity string   `json:"complexity,omitempty"`
}

// Breakdown is the output of the breakdown stage.
type Breakdown struct {
	Tasks    []Task    `json:"tasks"`
	Subtasks []Subtask `json:"subtasks,omitempty"`
}

// PriorityMap assigns a priority level to each task or subtask ID.
// The priorities stage produces it; missing IDs default to Medium.
type PriorityMap map[string]Priority

// Get returns the priority for id, defaulting to Medium when absent.
func (m PriorityMap) Get(id string) Priority {
	if p, ok := m[id]; ok && p.IsValid() {
		return p
	}
	return PriorityMedium
}

// Document is the compiled plan: the final output slot of the pipeline.
type Document struct {
	ProjectID          string              `json:"project_id"`
	ProjectName        string              `json:"project_name"`
	Analysis           Analysis            `json:"analysis"`
	Tasks              []Task              `json:"tasks"`
	Subtasks           []Subtask           `json:"subtasks,omitempty"`
	Priorities         PriorityMap         `json:"priorities"`
	TaskAssignments    map[string]string   `json:"task_assignments"`
	SubtaskAssignments map[string]string   `json:"subtask_assignments"`
	WorkloadSummary    []WorkerUtilization `json:"workload_summary"`
	GeneratedAt        time.Time           `json:"generated_at"`
}

// WorkerUtilization is one row of the workload summary.
type WorkerUtilization struct {
	WorkerID       string  `json:"worker_id"`
	WorkerName     string  `json:"worker_name"`
	AssignedHours  float64 `json:"assigned_hours"`
	EffectiveHours float64 `json:"effective_hours"`
	Utilization    float64 `json:"utilization_pct"`
	Overallocated  bool    `json:"overallocated,omitempty"`
	Underallocated bool    `json:"underallocated,omitempty"`
}
