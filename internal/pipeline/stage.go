// Package pipeline coordinates staged, resumable execution of a project's
// planning run. Stages execute in declared order; each stage's output is
// persisted into the pipeline state and checkpointed so an interrupted run
// continues from the last completed stage.
package pipeline

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/planforge/internal/errors"
	"github.com/Iron-Ham/planforge/internal/plan"
	"github.com/Iron-Ham/planforge/internal/retry"
)

// Stage is one unit of pipeline work. Run receives the accumulated state and
// returns the stage's output, which the coordinator stores in the state slot
// named after the stage.
type Stage struct {
	// Name is the stage's unique identifier and output slot name.
	Name string

	// Inputs names the slots this stage reads. Every entry must name a
	// strictly earlier stage.
	Inputs []string

	// Retry optionally overrides the coordinator's retry policy for this
	// stage.
	Retry *retry.Policy

	// Run executes the stage. It must not mutate earlier slots; read them
	// through plan.Slot, which decodes a private copy.
	Run func(ctx context.Context, state *plan.PipelineState) (any, error)
}

// validateStages checks that the stage list forms a valid total order:
// non-empty unique names, a Run function per stage, and inputs that
// reference strictly earlier stages.
func validateStages(stages []Stage) error {
	if len(stages) == 0 {
		return errors.NewValidationError("stages", "at least one stage is required")
	}
	seen := make(map[string]int, len(stages))
	for i, st := range stages {
		if st.Name == "" {
			return errors.NewValidationError("stages", fmt.Sprintf("stage %d has no name", i))
		}
		if st.Run == nil {
			return errors.NewValidationError("stages", fmt.Sprintf("stage %q has no run function", st.Name))
		}
		if _, dup := seen[st.Name]; dup {
			return errors.NewValidationError("stages", fmt.Sprintf("duplicate stage name %q", st.Name))
		}
		for _, in := range st.Inputs {
			if _, ok := seen[in]; !ok {
				return errors.NewValidationError("stages",
					fmt.Sprintf("stage %q input %q does not name an earlier stage", st.Name, in))
			}
		}
		seen[st.Name] = i
	}
	return nil
}

// stageIndex returns the position of the named stage, or -1.
func stageIndex(stages []Stage, name string) int {
	for i, st := range stages {
		if st.Name == name {
			return i
		}
	}
	return -1
}
