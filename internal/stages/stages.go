package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/planforge/internal/errors"
	"github.com/Iron-Ham/planforge/internal/gen"
	"github.com/Iron-Ham/planforge/internal/logging"
	"github.com/Iron-Ham/planforge/internal/pipeline"
	"github.com/Iron-Ham/planforge/internal/plan"
	"github.com/Iron-Ham/planforge/internal/schedule"
)

// Stage and slot names, in execution order.
const (
	StageAnalysis    = "analysis"
	StageBreakdown   = "breakdown"
	StagePriorities  = "priorities"
	StageAssignments = "assignments"
	StageCompile     = "compile"
)

// DefaultGenTimeout bounds a single generation call.
const DefaultGenTimeout = 5 * time.Minute

// Config wires the planning stages to their collaborators.
type Config struct {
	// Generator backs the analysis, breakdown and priorities stages.
	Generator gen.Generator

	// Parser decodes generator replies. Nil means the strict JSON parser.
	Parser Parser

	// Scheduler runs the assignments stage. Nil means a scheduler with
	// default configuration.
	Scheduler *schedule.Scheduler

	// GenTimeout bounds each generation call. Zero means DefaultGenTimeout.
	GenTimeout time.Duration

	// GenOptions is passed through to every generation call.
	GenOptions gen.Options

	// SeedTasks and SeedSubtasks, when present, replace the generated
	// breakdown: the run schedules the work the input already declares.
	SeedTasks    []plan.Task
	SeedSubtasks []plan.Subtask

	Logger *logging.Logger
}

func (c Config) withDefaults() Config {
	if c.Parser == nil {
		c.Parser = JSONParser{}
	}
	if c.Scheduler == nil {
		c.Scheduler = schedule.NewScheduler(schedule.DefaultConfig(), c.Logger)
	}
	if c.GenTimeout <= 0 {
		c.GenTimeout = DefaultGenTimeout
	}
	if c.Logger == nil {
		c.Logger = logging.NopLogger()
	}
	return c
}

// Pipeline returns the ordered planning stage set for the coordinator.
func Pipeline(cfg Config) ([]pipeline.Stage, error) {
	if cfg.Generator == nil && len(cfg.SeedTasks) == 0 {
		return nil, errors.NewValidationError("generator", "a generator is required unless tasks are pre-seeded")
	}
	cfg = cfg.withDefaults()
	return []pipeline.Stage{
		{Name: StageAnalysis, Run: cfg.runAnalysis},
		{Name: StageBreakdown, Inputs: []string{StageAnalysis}, Run: cfg.runBreakdown},
		{Name: StagePriorities, Inputs: []string{StageBreakdown}, Run: cfg.runPriorities},
		{Name: StageAssignments, Inputs: []string{StageBreakdown, StagePriorities}, Run: cfg.runAssignments},
		{Name: StageCompile, Inputs: []string{StageAnalysis, StageBreakdown, StagePriorities, StageAssignments}, Run: cfg.runCompile},
	}, nil
}

// generate runs one bounded generation call and decodes the reply into v.
func (c Config) generate(ctx context.Context, prompt string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.GenTimeout)
	defer cancel()

	reply, err := c.Generator.Generate(ctx, prompt, c.GenOptions)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded && !errors.Is(err, errors.ErrGenTimeout) {
			return errors.NewGenerationError("generation call timed out", errors.ErrGenTimeout)
		}
		return err
	}
	return c.Parser.Parse(reply, v)
}

func (c Config) runAnalysis(ctx context.Context, state *plan.PipelineState) (any, error) {
	if c.Generator == nil {
		// Seeded run without a backend: nothing to analyze with.
		return plan.Analysis{Summary: fmt.Sprintf("Plan for %s", state.Project.Name)}, nil
	}
	var analysis plan.Analysis
	if err := c.generate(ctx, analysisPrompt(state.Project), &analysis); err != nil {
		return nil, err
	}
	if analysis.Summary == "" {
		analysis.Summary = fmt.Sprintf("Plan for %s", state.Project.Name)
	}
	return analysis, nil
}

func (c Config) runBreakdown(ctx context.Context, state *plan.PipelineState) (any, error) {
	if len(c.SeedTasks) > 0 {
		c.Logger.WithStage(StageBreakdown).Info("using pre-seeded tasks",
			"tasks", len(c.SeedTasks), "subtasks", len(c.SeedSubtasks))
		return plan.Breakdown{Tasks: c.SeedTasks, Subtasks: c.SeedSubtasks}, nil
	}

	analysis, err := plan.Slot[plan.Analysis](state, StageAnalysis)
	if err != nil {
		return nil, err
	}
	var breakdown plan.Breakdown
	if err := c.generate(ctx, breakdownPrompt(state.Project, analysis), &breakdown); err != nil {
		return nil, err
	}
	if len(breakdown.Tasks) == 0 {
		return nil, errors.NewGenerationError("breakdown produced no tasks", errors.ErrGenEmptyResponse)
	}
	return breakdown, nil
}

func (c Config) runPriorities(ctx context.Context, state *plan.PipelineState) (any, error) {
	breakdown, err := plan.Slot[plan.Breakdown](state, StageBreakdown)
	if err != nil {
		return nil, err
	}
	units := make([]plan.Task, 0, len(breakdown.Tasks)+len(breakdown.Subtasks))
	units = append(units, breakdown.Tasks...)
	for _, st := range breakdown.Subtasks {
		units = append(units, st.Task)
	}
	ids := make([]string, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.ID)
	}

	var priorities plan.PriorityMap
	if c.Generator == nil {
		// Seeded runs without a backend fall back to declared priorities.
		priorities = make(plan.PriorityMap, len(units))
	} else {
		if err := c.generate(ctx, prioritiesPrompt(state.Project, ids), &priorities); err != nil {
			return nil, err
		}
	}

	// Invalid or missing entries fall back to the unit's own declaration,
	// then Medium. Subtasks get their own entries alongside tasks.
	out := make(plan.PriorityMap, len(units))
	for _, u := range units {
		if p, ok := priorities[u.ID]; ok && p.IsValid() {
			out[u.ID] = p
		} else if u.Priority.IsValid() {
			out[u.ID] = u.Priority
		} else {
			out[u.ID] = plan.PriorityMedium
		}
	}
	return out, nil
}

func (c Config) runAssignments(ctx context.Context, state *plan.PipelineState) (any, error) {
	breakdown, err := plan.Slot[plan.Breakdown](state, StageBreakdown)
	if err != nil {
		return nil, err
	}
	priorities, err := plan.Slot[plan.PriorityMap](state, StagePriorities)
	if err != nil {
		return nil, err
	}
	return c.Scheduler.Schedule(breakdown.Tasks, breakdown.Subtasks, priorities, state.Project.Team)
}

func (c Config) runCompile(ctx context.Context, state *plan.PipelineState) (any, error) {
	analysis, err := plan.Slot[plan.Analysis](state, StageAnalysis)
	if err != nil {
		return nil, err
	}
	breakdown, err := plan.Slot[plan.Breakdown](state, StageBreakdown)
	if err != nil {
		return nil, err
	}
	priorities, err := plan.Slot[plan.PriorityMap](state, StagePriorities)
	if err != nil {
		return nil, err
	}
	assignments, err := plan.Slot[schedule.Assignments](state, StageAssignments)
	if err != nil {
		return nil, err
	}

	return plan.Document{
		ProjectID:          state.ProjectID,
		ProjectName:        state.Project.Name,
		Analysis:           analysis,
		Tasks:              breakdown.Tasks,
		Subtasks:           breakdown.Subtasks,
		Priorities:         priorities,
		TaskAssignments:    assignments.Tasks,
		SubtaskAssignments: assignments.Subtasks,
		WorkloadSummary:    assignments.Summary.Workers,
		GeneratedAt:        time.Now().UTC(),
	}, nil
}
