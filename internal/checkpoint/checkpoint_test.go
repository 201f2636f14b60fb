package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/planforge/internal/errors"
	"github.com/Iron-Ham/planforge/internal/plan"
)

// storeFactories returns both backends so every contract test runs against
// each implementation.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "checkpoints.db"))
			if err != nil {
				t.Fatalf("NewSQLiteStore: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func sampleState(projectID, lastStage string) *plan.PipelineState {
	state := plan.NewPipelineState(projectID, plan.Project{Name: "X"})
	state.Status = plan.StatusProcessing
	state.Metadata.LastStageCompleted = lastStage
	_ = state.SetValue(lastStage, plan.Analysis{Summary: "summary for " + lastStage})
	return state
}

func TestStore_SaveThenLoadLatest(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			saved := sampleState("proj-1", "analysis")
			meta, err := store.Save(ctx, "proj-1", saved, "analysis")
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if meta.ID == "" || meta.Version != SchemaVersion {
				t.Errorf("meta = %+v", meta)
			}

			loaded, err := store.LoadLatest(ctx, "proj-1")
			if err != nil {
				t.Fatalf("LoadLatest: %v", err)
			}
			if loaded.ProjectID != "proj-1" {
				t.Errorf("ProjectID = %q", loaded.ProjectID)
			}
			if loaded.Metadata.LastStageCompleted != "analysis" {
				t.Errorf("LastStageCompleted = %q", loaded.Metadata.LastStageCompleted)
			}
			a, err := plan.Slot[plan.Analysis](loaded, "analysis")
			if err != nil || a.Summary != "summary for analysis" {
				t.Errorf("slot = %+v, err %v", a, err)
			}
		})
	}
}

func TestStore_SecondSaveWins(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			if _, err := store.Save(ctx, "proj-1", sampleState("proj-1", "analysis"), "analysis"); err != nil {
				t.Fatal(err)
			}
			if _, err := store.Save(ctx, "proj-1", sampleState("proj-1", "breakdown"), "breakdown"); err != nil {
				t.Fatal(err)
			}

			loaded, err := store.LoadLatest(ctx, "proj-1")
			if err != nil {
				t.Fatalf("LoadLatest: %v", err)
			}
			if loaded.Metadata.LastStageCompleted != "breakdown" {
				t.Errorf("latest should be the second save, got %q", loaded.Metadata.LastStageCompleted)
			}
		})
	}
}

func TestStore_LoadLatest_NoCheckpoint(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			_, err := store.LoadLatest(context.Background(), "never-saved")
			if !errors.Is(err, errors.ErrNoCheckpoint) {
				t.Errorf("err = %v, want ErrNoCheckpoint", err)
			}
		})
	}
}

func TestStore_HasResumable(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			ok, err := store.HasResumable(ctx, "proj-1")
			if err != nil || ok {
				t.Errorf("HasResumable before save = %v, %v", ok, err)
			}

			if _, err := store.Save(ctx, "proj-1", sampleState("proj-1", "analysis"), "analysis"); err != nil {
				t.Fatal(err)
			}

			ok, err = store.HasResumable(ctx, "proj-1")
			if err != nil || !ok {
				t.Errorf("HasResumable after save = %v, %v", ok, err)
			}
		})
	}
}

func TestStore_List_NewestFirst(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			for _, stage := range []string{"analysis", "breakdown", "priorities"} {
				if _, err := store.Save(ctx, "proj-1", sampleState("proj-1", stage), stage); err != nil {
					t.Fatal(err)
				}
				time.Sleep(2 * time.Millisecond) // distinct timestamps
			}

			entries, err := store.List(ctx, "proj-1")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(entries) != 3 {
				t.Fatalf("got %d entries, want 3", len(entries))
			}
			if entries[0].StageName != "priorities" || entries[2].StageName != "analysis" {
				t.Errorf("order = [%s %s %s], want newest first",
					entries[0].StageName, entries[1].StageName, entries[2].StageName)
			}
		})
	}
}

func TestStore_HistoryRetained(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				if _, err := store.Save(ctx, "proj-1", sampleState("proj-1", "analysis"), "analysis"); err != nil {
					t.Fatal(err)
				}
			}

			entries, err := store.List(ctx, "proj-1")
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 5 {
				t.Errorf("history length = %d, want 5 (checkpoints are append-only)", len(entries))
			}
		})
	}
}

func TestStore_FailureTaggedCheckpoint(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			state := sampleState("proj-1", "analysis")
			state.Status = plan.StatusFailed
			if _, err := store.Save(ctx, "proj-1", state, "breakdown"+FailedSuffix); err != nil {
				t.Fatal(err)
			}

			entries, err := store.List(ctx, "proj-1")
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 1 || entries[0].StageName != "breakdown_failed" {
				t.Errorf("entries = %+v", entries)
			}

			loaded, err := store.LoadLatest(ctx, "proj-1")
			if err != nil {
				t.Fatalf("failure checkpoint should be loadable: %v", err)
			}
			if loaded.Status != plan.StatusFailed {
				t.Errorf("Status = %v", loaded.Status)
			}
		})
	}
}

func TestFileStore_PointerNeverReferencesMissingSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := store.Save(ctx, "proj-1", sampleState("proj-1", "analysis"), "analysis"); err != nil {
		t.Fatal(err)
	}

	ptr, err := store.readPointer("proj-1")
	if err != nil {
		t.Fatalf("readPointer: %v", err)
	}
	snapPath := filepath.Join(dir, "proj-1", "checkpoints", ptr.CheckpointID+".json")
	if _, err := os.Stat(snapPath); err != nil {
		t.Errorf("pointer references missing snapshot %s: %v", snapPath, err)
	}
}

func TestStore_SaveValidation(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := store.Save(ctx, "", sampleState("p", "s"), "s"); err == nil {
		t.Error("Save with empty project ID should fail")
	}
	if _, err := store.Save(ctx, "proj-1", nil, "s"); err == nil {
		t.Error("Save with nil state should fail")
	}
}
