package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Iron-Ham/planforge/internal/checkpoint"
	"github.com/Iron-Ham/planforge/internal/config"
	"github.com/Iron-Ham/planforge/internal/gen"
	"github.com/Iron-Ham/planforge/internal/logging"
	"github.com/Iron-Ham/planforge/internal/pipeline"
	"github.com/Iron-Ham/planforge/internal/plan"
	"github.com/Iron-Ham/planforge/internal/retry"
	"github.com/Iron-Ham/planforge/internal/schedule"
	"github.com/Iron-Ham/planforge/internal/stages"
)

// runtime bundles the wired collaborators a command needs.
type runtime struct {
	cfg      *config.Config
	logger   *logging.Logger
	reporter *logging.Reporter
	store    checkpoint.Store
}

// newRuntime wires the configured backends. Call close when done.
func newRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.LogDir(), cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	reporter := logging.NewReporter(cfg.LogDir(),
		logging.WithMinLevel(logging.ParseEventLevel(cfg.Logging.EventMinLevel)),
		logging.WithConsole(os.Stderr))

	store, err := buildStore(cfg)
	if err != nil {
		logger.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, logger: logger, reporter: reporter, store: store}, nil
}

func (r *runtime) close() {
	r.store.Close()
	r.logger.Close()
}

// buildStore selects the checkpoint backend from configuration.
func buildStore(cfg *config.Config) (checkpoint.Store, error) {
	switch cfg.Checkpoint.Backend {
	case "sqlite":
		return checkpoint.NewSQLiteStore(cfg.SQLitePath())
	default:
		return checkpoint.NewFileStore(cfg.CheckpointDir())
	}
}

// coordinator assembles the full pipeline for a run. Seed tasks, when given,
// bypass the generated breakdown.
func (r *runtime) coordinator(seedTasks []plan.Task, seedSubtasks []plan.Subtask) (*pipeline.Coordinator, error) {
	stageSet, err := stages.Pipeline(stages.Config{
		Generator:  gen.NewOffline(),
		Scheduler:  schedule.NewScheduler(r.cfg.Scheduler, r.logger),
		GenTimeout: time.Duration(r.cfg.Generation.RequestTimeoutSeconds) * time.Second,
		GenOptions: gen.Options{
			Temperature:     r.cfg.Generation.Temperature,
			MaxOutputTokens: r.cfg.Generation.MaxOutputTokens,
		},
		SeedTasks:    seedTasks,
		SeedSubtasks: seedSubtasks,
		Logger:       r.logger,
	})
	if err != nil {
		return nil, err
	}

	exec := retry.NewExecutor(retry.Policy{
		MaxRetries:    r.cfg.Retry.MaxRetries,
		InitialDelay:  time.Duration(r.cfg.Retry.InitialDelayMs) * time.Millisecond,
		BackoffFactor: r.cfg.Retry.BackoffFactor,
		MaxDelay:      time.Duration(r.cfg.Retry.MaxDelayMs) * time.Millisecond,
	}, retry.WithLogger(r.logger), retry.WithReporter(r.reporter))

	return pipeline.NewCoordinator(stageSet, r.store,
		pipeline.WithExecutor(exec),
		pipeline.WithReporter(r.reporter),
		pipeline.WithLogger(r.logger),
		pipeline.WithDocumentSlot(stages.StageCompile))
}
