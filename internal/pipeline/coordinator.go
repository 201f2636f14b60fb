package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/planforge/internal/checkpoint"
	"github.com/Iron-Ham/planforge/internal/errors"
	"github.com/Iron-Ham/planforge/internal/logging"
	"github.com/Iron-Ham/planforge/internal/plan"
	"github.com/Iron-Ham/planforge/internal/retry"
)

// Result is the outcome of one pipeline run or resume.
type Result struct {
	Success   bool
	ProjectID string

	// Plan is the compiled document when the run completed and a document
	// slot was configured.
	Plan *plan.Document

	// State is the final pipeline state, also persisted as the latest
	// checkpoint.
	State    *plan.PipelineState
	Metadata plan.RunMetadata

	// Failure details. A failed run is resumable from its last checkpoint.
	StageFailed string
	ErrorID     string
	Err         error
	Resumable   bool
}

// Coordinator drives the stage list against a checkpoint store. A single
// Coordinator serves many projects; per-project runs are serialized by an
// in-process registry.
type Coordinator struct {
	stages       []Stage
	store        checkpoint.Store
	exec         *retry.Executor
	reporter     *logging.Reporter
	logger       *logging.Logger
	registry     *runRegistry
	documentSlot string
	now          func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithExecutor replaces the default retry executor.
func WithExecutor(e *retry.Executor) CoordinatorOption {
	return func(c *Coordinator) { c.exec = e }
}

// WithReporter attaches an error reporter. Stage failures and checkpoint
// write problems are recorded through it.
func WithReporter(r *logging.Reporter) CoordinatorOption {
	return func(c *Coordinator) { c.reporter = r }
}

// WithLogger attaches a structured logger.
func WithLogger(l *logging.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// WithDocumentSlot names the slot holding the compiled document, decoded
// into Result.Plan on completion.
func WithDocumentSlot(slot string) CoordinatorOption {
	return func(c *Coordinator) { c.documentSlot = slot }
}

// NewCoordinator validates the stage list and builds a coordinator.
func NewCoordinator(stages []Stage, store checkpoint.Store, opts ...CoordinatorOption) (*Coordinator, error) {
	if err := validateStages(stages); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.NewValidationError("store", "checkpoint store is required")
	}
	c := &Coordinator{
		stages:   stages,
		store:    store,
		logger:   logging.NopLogger(),
		registry: newRunRegistry(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exec == nil {
		c.exec = retry.NewExecutor(retry.DefaultPolicy(), retry.WithLogger(c.logger))
	}
	return c, nil
}

// Run executes the pipeline for a project. When a resumable checkpoint
// already exists for the derived project ID, the run continues from it
// instead of starting over.
//
// Stage failures are reported in the Result, not the error; the error covers
// setup problems such as an already-active run (errors.ErrRunActive).
func (c *Coordinator) Run(ctx context.Context, project plan.Project) (*Result, error) {
	projectID := plan.DeriveProjectID(project)

	release, err := c.registry.acquire(projectID)
	if err != nil {
		return nil, err
	}
	defer release()

	resumable, err := c.store.HasResumable(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("check resumable state: %w", err)
	}
	if resumable {
		return c.resumeLocked(ctx, projectID)
	}

	state := plan.NewPipelineState(projectID, project)
	state.Status = plan.StatusProcessing
	state.Metadata.StartTime = c.now()
	c.logger.WithProject(projectID).Info("starting pipeline run",
		"project", project.Name, "stages", len(c.stages))
	return c.run(ctx, state, 0), nil
}

// Resume continues a previously checkpointed run. It fails with
// errors.ErrNoCheckpoint when the project has nothing to resume.
func (c *Coordinator) Resume(ctx context.Context, projectID string) (*Result, error) {
	release, err := c.registry.acquire(projectID)
	if err != nil {
		return nil, err
	}
	defer release()
	return c.resumeLocked(ctx, projectID)
}

// resumeLocked restores the latest checkpoint and continues execution,
// assuming the caller holds the project's run claim.
func (c *Coordinator) resumeLocked(ctx context.Context, projectID string) (*Result, error) {
	state, err := c.store.LoadLatest(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint for %s: %w", projectID, err)
	}
	if state.Status == plan.StatusCompleted {
		res := &Result{Success: true, ProjectID: projectID, State: state, Metadata: state.Metadata}
		if c.documentSlot != "" && state.HasValue(c.documentSlot) {
			if doc, err := plan.Slot[plan.Document](state, c.documentSlot); err == nil {
				res.Plan = &doc
			}
		}
		return res, nil
	}

	state.Status = plan.StatusResuming
	state.Metadata.ResumeCount++

	start := 0
	last := state.Metadata.LastStageCompleted
	if last != "" {
		if idx := stageIndex(c.stages, last); idx >= 0 {
			start = idx + 1
		} else {
			c.logger.WithProject(projectID).Warn("checkpoint references unknown stage, restarting from the beginning",
				"stage", last)
			state.Metadata.LastStageCompleted = ""
		}
	}

	c.logger.WithProject(projectID).Info("resuming pipeline run",
		"last_completed", last, "resume_count", state.Metadata.ResumeCount)
	state.Status = plan.StatusProcessing
	return c.run(ctx, state, start), nil
}

// run executes stages[start:] against the state and always returns a Result.
func (c *Coordinator) run(ctx context.Context, state *plan.PipelineState, start int) *Result {
	log := c.logger.WithProject(state.ProjectID)

	for i := start; i < len(c.stages); i++ {
		st := c.stages[i]
		if err := ctx.Err(); err != nil {
			return c.fail(ctx, state, st.Name,
				fmt.Errorf("%w: %w", errors.ErrPipelineAborted, err))
		}

		stageLog := log.WithStage(st.Name)
		stageLog.Info("stage starting", "index", i)

		startedAt := c.now()
		attempts := 0
		var out any
		op := func(ctx context.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.NewStageError(fmt.Sprintf("stage %s panicked: %v", st.Name, r), nil)
				}
			}()
			attempts++
			out, err = st.Run(ctx, state)
			return err
		}

		var runErr error
		if st.Retry != nil {
			runErr = c.exec.ExecuteWithPolicy(ctx, st.Name, *st.Retry, op)
		} else {
			runErr = c.exec.Execute(ctx, st.Name, op)
		}

		state.Metadata.StageTimings[st.Name] = plan.StageTiming{
			StartedAt: startedAt,
			Duration:  c.now().Sub(startedAt),
			Attempts:  attempts,
			Failed:    runErr != nil,
		}

		if runErr == nil && out != nil {
			if err := state.SetValue(st.Name, out); err != nil {
				runErr = errors.NewStageError(fmt.Sprintf("store output of stage %s", st.Name), err)
			}
		}
		if runErr != nil {
			return c.fail(ctx, state, st.Name, runErr)
		}

		state.Metadata.LastStageCompleted = st.Name
		c.save(ctx, state, st.Name)
		stageLog.Info("stage completed", "attempts", attempts,
			"duration", c.now().Sub(startedAt).String())
	}

	state.Status = plan.StatusCompleted
	state.Metadata.EndTime = c.now()
	c.save(ctx, state, c.stages[len(c.stages)-1].Name)
	log.Info("pipeline completed", "resume_count", state.Metadata.ResumeCount)

	res := &Result{
		Success:   true,
		ProjectID: state.ProjectID,
		State:     state,
		Metadata:  state.Metadata,
	}
	if c.documentSlot != "" && state.HasValue(c.documentSlot) {
		if doc, err := plan.Slot[plan.Document](state, c.documentSlot); err == nil {
			res.Plan = &doc
		}
	}
	return res
}

// fail records a terminal stage failure, writes the failure checkpoint, and
// builds the failure Result. The run stays resumable.
func (c *Coordinator) fail(ctx context.Context, state *plan.PipelineState, stageName string, cause error) *Result {
	errorID := ""
	if c.reporter != nil {
		errorID = c.reporter.LogError(cause, "stage "+stageName, map[string]any{
			"project_id": state.ProjectID,
			"stage":      stageName,
		})
	}
	state.RecordError(stageName, cause.Error(), errorID)
	state.Status = plan.StatusFailed
	state.Metadata.EndTime = c.now()
	c.save(ctx, state, stageName+checkpoint.FailedSuffix)

	c.logger.WithProject(state.ProjectID).Error("pipeline failed",
		"stage", stageName, "error", cause.Error(), "error_id", errorID)

	return &Result{
		ProjectID:   state.ProjectID,
		State:       state,
		Metadata:    state.Metadata,
		StageFailed: stageName,
		ErrorID:     errorID,
		Err:         cause,
		Resumable:   true,
	}
}

// save checkpoints the state. Persistence trouble here is reported, not
// fatal; the stage output already lives in memory and the run continues.
func (c *Coordinator) save(ctx context.Context, state *plan.PipelineState, stageName string) {
	if _, err := c.store.Save(ctx, state.ProjectID, state, stageName); err != nil {
		if c.reporter != nil {
			c.reporter.LogError(err, "checkpoint save", map[string]any{
				"project_id": state.ProjectID,
				"stage":      stageName,
			})
		}
		c.logger.WithProject(state.ProjectID).Warn("checkpoint save failed",
			"stage", stageName, "error", err.Error())
	}
}
