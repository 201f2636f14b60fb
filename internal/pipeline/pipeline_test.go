package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/planforge/internal/checkpoint"
	"github.com/Iron-Ham/planforge/internal/errors"
	"github.com/Iron-Ham/planforge/internal/plan"
	"github.com/Iron-Ham/planforge/internal/retry"
)

// fastExecutor retries with millisecond delays so tests stay quick.
func fastExecutor() *retry.Executor {
	return retry.NewExecutor(retry.Policy{
		MaxRetries:    3,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 1.5,
		MaxDelay:      5 * time.Millisecond,
	})
}

func testStore(t *testing.T) checkpoint.Store {
	t.Helper()
	store, err := checkpoint.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testProject(id string) plan.Project {
	return plan.Project{ProjectID: id, Name: "Test Project"}
}

// constStage returns a stage whose output is a fixed string.
func constStage(name string, inputs ...string) Stage {
	return Stage{
		Name:   name,
		Inputs: inputs,
		Run: func(ctx context.Context, state *plan.PipelineState) (any, error) {
			return "output of " + name, nil
		},
	}
}

func TestValidateStages(t *testing.T) {
	run := func(ctx context.Context, state *plan.PipelineState) (any, error) { return nil, nil }
	tests := []struct {
		name    string
		stages  []Stage
		wantErr bool
	}{
		{"valid chain", []Stage{{Name: "a", Run: run}, {Name: "b", Inputs: []string{"a"}, Run: run}}, false},
		{"empty list", nil, true},
		{"missing name", []Stage{{Run: run}}, true},
		{"missing run", []Stage{{Name: "a"}}, true},
		{"duplicate name", []Stage{{Name: "a", Run: run}, {Name: "a", Run: run}}, true},
		{"forward input", []Stage{{Name: "a", Inputs: []string{"b"}, Run: run}, {Name: "b", Run: run}}, true},
		{"self input", []Stage{{Name: "a", Inputs: []string{"a"}, Run: run}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateStages(tt.stages)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateStages() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunCompletesAllStages(t *testing.T) {
	store := testStore(t)
	c, err := NewCoordinator([]Stage{
		constStage("a"),
		constStage("b", "a"),
		constStage("c", "a", "b"),
	}, store, WithExecutor(fastExecutor()))
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}

	res, err := c.Run(context.Background(), testProject("proj-run"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("Run() failed: %v", res.Err)
	}
	if res.State.Status != plan.StatusCompleted {
		t.Errorf("status = %v, want completed", res.State.Status)
	}
	for _, slot := range []string{"a", "b", "c"} {
		if !res.State.HasValue(slot) {
			t.Errorf("slot %q is empty after completion", slot)
		}
	}
	if res.Metadata.EndTime.IsZero() {
		t.Error("EndTime not set on completion")
	}
	if res.Metadata.LastStageCompleted != "c" {
		t.Errorf("LastStageCompleted = %q, want c", res.Metadata.LastStageCompleted)
	}

	state, err := store.LoadLatest(context.Background(), "proj-run")
	if err != nil {
		t.Fatalf("LoadLatest() error = %v", err)
	}
	if state.Status != plan.StatusCompleted {
		t.Errorf("persisted status = %v, want completed", state.Status)
	}
}

func TestRunRecoversFromTransientFailures(t *testing.T) {
	store := testStore(t)
	calls := 0
	flaky := Stage{
		Name: "flaky",
		Run: func(ctx context.Context, state *plan.PipelineState) (any, error) {
			calls++
			if calls <= 2 {
				return nil, errors.ErrGenUnavailable
			}
			return "ok", nil
		},
	}
	c, err := NewCoordinator([]Stage{constStage("a"), flaky}, store, WithExecutor(fastExecutor()))
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}

	res, err := c.Run(context.Background(), testProject("proj-flaky"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("Run() failed: %v", res.Err)
	}
	timing := res.Metadata.StageTimings["flaky"]
	if timing.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", timing.Attempts)
	}
	if timing.Failed {
		t.Error("timing marked failed after eventual success")
	}
	if res.Metadata.ResumeCount != 0 {
		t.Errorf("ResumeCount = %d, want 0 (in-run retries are not resumes)", res.Metadata.ResumeCount)
	}
}

func TestRunFatalFailureLeavesResumableCheckpoint(t *testing.T) {
	store := testStore(t)
	fatal := Stage{
		Name: "broken",
		Run: func(ctx context.Context, state *plan.PipelineState) (any, error) {
			return nil, errors.ErrGenModelNotFound
		},
	}
	c, err := NewCoordinator([]Stage{constStage("a"), fatal, constStage("c", "broken")}, store,
		WithExecutor(fastExecutor()))
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}

	res, err := c.Run(context.Background(), testProject("proj-fatal"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Success {
		t.Fatal("Run() reported success for a fatal stage")
	}
	if res.StageFailed != "broken" {
		t.Errorf("StageFailed = %q, want broken", res.StageFailed)
	}
	if !res.Resumable {
		t.Error("failed run should be resumable")
	}
	if !errors.Is(res.Err, errors.ErrGenModelNotFound) {
		t.Errorf("Err = %v, want ErrGenModelNotFound in chain", res.Err)
	}
	if res.State.Status != plan.StatusFailed {
		t.Errorf("status = %v, want failed", res.State.Status)
	}
	if len(res.State.ErrorLog) == 0 {
		t.Error("error log is empty after failure")
	}
	if timing := res.Metadata.StageTimings["broken"]; timing.Attempts != 1 || !timing.Failed {
		t.Errorf("timing = %+v, want 1 failed attempt", timing)
	}

	entries, err := store.List(context.Background(), "proj-fatal")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) == 0 || entries[0].StageName != "broken"+checkpoint.FailedSuffix {
		t.Errorf("latest checkpoint = %+v, want broken%s first", entries, checkpoint.FailedSuffix)
	}
	if _, err := store.LoadLatest(context.Background(), "proj-fatal"); err != nil {
		t.Errorf("failure checkpoint not loadable: %v", err)
	}
}

func TestResumeSkipsCompletedStages(t *testing.T) {
	store := testStore(t)
	counts := map[string]int{}
	var mu sync.Mutex
	counted := func(name string, fail *bool) Stage {
		return Stage{
			Name: name,
			Run: func(ctx context.Context, state *plan.PipelineState) (any, error) {
				mu.Lock()
				counts[name]++
				mu.Unlock()
				if fail != nil && *fail {
					return nil, errors.ErrGenModelNotFound
				}
				return name, nil
			},
		}
	}
	failing := true
	stages := []Stage{counted("a", nil), counted("b", nil), counted("c", &failing)}
	c, err := NewCoordinator(stages, store, WithExecutor(fastExecutor()))
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}

	res, err := c.Run(context.Background(), testProject("proj-resume"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Success || res.StageFailed != "c" {
		t.Fatalf("first run = %+v, want failure at c", res)
	}

	failing = false
	res, err = c.Resume(context.Background(), "proj-resume")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("Resume() failed: %v", res.Err)
	}
	if counts["a"] != 1 || counts["b"] != 1 {
		t.Errorf("earlier stages re-ran: counts = %v", counts)
	}
	if counts["c"] != 2 {
		t.Errorf("failed stage ran %d times, want 2", counts["c"])
	}
	if res.Metadata.ResumeCount != 1 {
		t.Errorf("ResumeCount = %d, want 1", res.Metadata.ResumeCount)
	}
}

func TestRunContinuesExistingCheckpoint(t *testing.T) {
	store := testStore(t)
	count := 0
	stages := []Stage{
		constStage("a"),
		{Name: "b", Run: func(ctx context.Context, state *plan.PipelineState) (any, error) {
			count++
			if count == 1 {
				return nil, errors.ErrGenModelNotFound
			}
			return "ok", nil
		}},
	}
	c, err := NewCoordinator(stages, store, WithExecutor(fastExecutor()))
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}

	project := testProject("proj-implicit")
	if res, err := c.Run(context.Background(), project); err != nil || res.Success {
		t.Fatalf("first run = (%+v, %v), want failure result", res, err)
	}
	// A second Run for the same project picks up the checkpoint.
	res, err := c.Run(context.Background(), project)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("second Run() failed: %v", res.Err)
	}
	if res.Metadata.ResumeCount != 1 {
		t.Errorf("ResumeCount = %d, want 1", res.Metadata.ResumeCount)
	}
}

func TestResumeUnknownStageRestarts(t *testing.T) {
	store := testStore(t)
	state := plan.NewPipelineState("proj-legacy", testProject("proj-legacy"))
	state.Status = plan.StatusFailed
	state.Metadata.LastStageCompleted = "retired-stage"
	if _, err := store.Save(context.Background(), "proj-legacy", state, "retired-stage"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	counts := map[string]int{}
	stage := func(name string) Stage {
		return Stage{Name: name, Run: func(ctx context.Context, state *plan.PipelineState) (any, error) {
			counts[name]++
			return name, nil
		}}
	}
	c, err := NewCoordinator([]Stage{stage("a"), stage("b")}, store, WithExecutor(fastExecutor()))
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}

	res, err := c.Resume(context.Background(), "proj-legacy")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("Resume() failed: %v", res.Err)
	}
	if counts["a"] != 1 || counts["b"] != 1 {
		t.Errorf("counts = %v, want every stage run once from the beginning", counts)
	}
}

func TestResumeWithoutCheckpoint(t *testing.T) {
	store := testStore(t)
	c, err := NewCoordinator([]Stage{constStage("a")}, store, WithExecutor(fastExecutor()))
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	if _, err := c.Resume(context.Background(), "proj-none"); !errors.Is(err, errors.ErrNoCheckpoint) {
		t.Errorf("Resume() error = %v, want ErrNoCheckpoint", err)
	}
}

func TestConcurrentRunRefused(t *testing.T) {
	store := testStore(t)
	started := make(chan struct{})
	release := make(chan struct{})
	blocking := Stage{
		Name: "block",
		Run: func(ctx context.Context, state *plan.PipelineState) (any, error) {
			close(started)
			<-release
			return "ok", nil
		},
	}
	c, err := NewCoordinator([]Stage{blocking}, store, WithExecutor(fastExecutor()))
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}

	project := testProject("proj-lock")
	done := make(chan *Result, 1)
	go func() {
		res, _ := c.Run(context.Background(), project)
		done <- res
	}()
	<-started

	if _, err := c.Run(context.Background(), project); !errors.Is(err, errors.ErrRunActive) {
		t.Errorf("concurrent Run() error = %v, want ErrRunActive", err)
	}

	close(release)
	if res := <-done; !res.Success {
		t.Fatalf("first run failed: %v", res.Err)
	}
	// The claim is released once the first run finishes.
	if res, err := c.Run(context.Background(), project); err != nil || !res.Success {
		t.Errorf("follow-up Run() = (%+v, %v), want success", res, err)
	}
}

func TestRunCancelledBetweenStages(t *testing.T) {
	store := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	stages := []Stage{
		{Name: "a", Run: func(ctx context.Context, state *plan.PipelineState) (any, error) {
			cancel()
			return "ok", nil
		}},
		constStage("b"),
	}
	c, err := NewCoordinator(stages, store, WithExecutor(fastExecutor()))
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}

	res, err := c.Run(ctx, testProject("proj-cancel"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Success {
		t.Fatal("Run() succeeded despite cancellation")
	}
	if !errors.Is(res.Err, errors.ErrPipelineAborted) {
		t.Errorf("Err = %v, want ErrPipelineAborted", res.Err)
	}
	if res.StageFailed != "b" {
		t.Errorf("StageFailed = %q, want b", res.StageFailed)
	}
	if !res.Resumable {
		t.Error("cancelled run should be resumable")
	}
}

func TestStagePanicBecomesFailure(t *testing.T) {
	store := testStore(t)
	stages := []Stage{
		{Name: "boom", Run: func(ctx context.Context, state *plan.PipelineState) (any, error) {
			panic("unexpected")
		}},
	}
	c, err := NewCoordinator(stages, store, WithExecutor(fastExecutor()))
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}

	res, err := c.Run(context.Background(), testProject("proj-panic"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Success || res.StageFailed != "boom" {
		t.Errorf("result = %+v, want failure at boom", res)
	}
}

func TestRunLockIdempotentRelease(t *testing.T) {
	reg := newRunRegistry()
	release, err := reg.acquire("p-1")
	if err != nil {
		t.Fatalf("acquire() error = %v", err)
	}
	release()
	release() // second call is a no-op

	if _, err := reg.acquire("p-1"); err != nil {
		t.Errorf("re-acquire after release error = %v", err)
	}
}
