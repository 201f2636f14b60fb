package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	pferrors "github.com/Iron-Ham/planforge/internal/errors"
)

// projectFile is the on-disk YAML shape of a project description. Tasks and
// subtasks are optional: when present they pre-seed the breakdown stage
// (useful for re-planning an existing backlog), otherwise the generation
// stages produce them.
type projectFile struct {
	Project  Project   `yaml:"project"`
	Tasks    []Task    `yaml:"tasks,omitempty"`
	Subtasks []Subtask `yaml:"subtasks,omitempty"`
}

// Input bundles everything a pipeline run starts from.
type Input struct {
	Project  Project
	Tasks    []Task
	Subtasks []Subtask
}

// LoadInput reads and validates a project YAML file.
func LoadInput(path string) (*Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project file: %w", err)
	}
	return ParseInput(data)
}

// ParseInput parses and validates project YAML.
func ParseInput(data []byte) (*Input, error) {
	var pf projectFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse project file: %w", err)
	}

	if err := validateInput(&pf); err != nil {
		return nil, err
	}

	return &Input{
		Project:  pf.Project,
		Tasks:    pf.Tasks,
		Subtasks: pf.Subtasks,
	}, nil
}

// validateInput checks the structural invariants of a project file.
func validateInput(pf *projectFile) error {
	var errs []error

	if pf.Project.Name == "" {
		errs = append(errs, pferrors.NewValidationError("project.name", "is required"))
	}
	if len(pf.Project.Team) == 0 {
		errs = append(errs, pferrors.NewValidationError("project.team", "at least one worker is required"))
	}

	seenWorkers := make(map[string]bool)
	for i, w := range pf.Project.Team {
		field := fmt.Sprintf("project.team[%d]", i)
		if w.ID == "" {
			errs = append(errs, pferrors.NewValidationError(field+".id", "is required"))
		} else if seenWorkers[w.ID] {
			errs = append(errs, pferrors.NewValidationError(field+".id", "duplicate worker id "+w.ID))
		} else {
			seenWorkers[w.ID] = true
		}
		if w.WeeklyHours < 0 {
			errs = append(errs, pferrors.NewValidationError(field+".weekly_hours", "must be non-negative"))
		}
		if w.Allocation < 0 || w.Allocation > 1 {
			errs = append(errs, pferrors.NewValidationError(field+".allocation", "must be within [0,1]"))
		}
		for j, sk := range w.Skills {
			if sk.Proficiency < 0 || sk.Proficiency > 1 {
				errs = append(errs, pferrors.NewValidationError(
					fmt.Sprintf("%s.skills[%d].proficiency", field, j), "must be within [0,1]"))
			}
		}
	}

	seenTasks := make(map[string]bool)
	for i, t := range pf.Tasks {
		field := fmt.Sprintf("tasks[%d]", i)
		if t.ID == "" {
			errs = append(errs, pferrors.NewValidationError(field+".id", "is required"))
		} else if seenTasks[t.ID] {
			errs = append(errs, pferrors.NewValidationError(field+".id", "duplicate task id "+t.ID))
		} else {
			seenTasks[t.ID] = true
		}
		if t.EstimatedHours < 0 {
			errs = append(errs, pferrors.NewValidationError(field+".estimated_hours", "must be non-negative"))
		}
		if t.Priority != "" && !t.Priority.IsValid() {
			errs = append(errs, pferrors.NewValidationError(field+".priority", "unknown priority "+string(t.Priority)))
		}
	}

	for i, st := range pf.Subtasks {
		field := fmt.Sprintf("subtasks[%d]", i)
		if st.ID == "" {
			errs = append(errs, pferrors.NewValidationError(field+".id", "is required"))
		}
		if st.ParentTaskID == "" {
			errs = append(errs, pferrors.NewValidationError(field+".parent_task_id", "is required"))
		} else if len(seenTasks) > 0 && !seenTasks[st.ParentTaskID] {
			errs = append(errs, pferrors.NewValidationError(field+".parent_task_id", "references unknown task "+st.ParentTaskID))
		}
		if st.EstimatedHours < 0 {
			errs = append(errs, pferrors.NewValidationError(field+".estimated_hours", "must be non-negative"))
		}
	}

	return pferrors.Join(errs...)
}
