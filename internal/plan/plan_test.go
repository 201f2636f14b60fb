package plan

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPriorityRank(t *testing.T) {
	tests := []struct {
		p    Priority
		want int
	}{
		{PriorityCritical, 0},
		{PriorityHigh, 1},
		{PriorityMedium, 2},
		{PriorityLow, 3},
		{Priority("bogus"), 4},
	}
	for _, tt := range tests {
		if got := tt.p.Rank(); got != tt.want {
			t.Errorf("Rank(%q) = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestWorkerEffectiveHours(t *testing.T) {
	tests := []struct {
		name   string
		worker Worker
		want   float64
	}{
		{"defaults to full week", Worker{}, 40},
		{"explicit hours", Worker{WeeklyHours: 32}, 32},
		{"allocation applied", Worker{WeeklyHours: 40, Allocation: 0.5}, 20},
		{"time off deducted", Worker{WeeklyHours: 40, TimeOffHours: 8}, 32},
		{"combined", Worker{WeeklyHours: 40, Allocation: 0.5, TimeOffHours: 4}, 16},
		{"never negative", Worker{WeeklyHours: 8, TimeOffHours: 16}, 0},
		{"out of range allocation treated as full", Worker{WeeklyHours: 40, Allocation: 3}, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.worker.EffectiveHours(); got != tt.want {
				t.Errorf("EffectiveHours() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeriveProjectID_Stable(t *testing.T) {
	created := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	p := Project{Name: "Payments Revamp", CreatedAt: created}

	first := DeriveProjectID(p)
	second := DeriveProjectID(p)
	if first != second {
		t.Errorf("DeriveProjectID not stable: %q vs %q", first, second)
	}
	if first == "" {
		t.Fatal("DeriveProjectID returned empty")
	}

	other := DeriveProjectID(Project{Name: "Payments Revamp", CreatedAt: created.Add(time.Hour)})
	if other == first {
		t.Error("different creation times should derive different IDs")
	}

	// A project that never declares a creation time is keyed by name alone.
	bare := DeriveProjectID(Project{Name: "Payments Revamp"})
	if again := DeriveProjectID(Project{Name: "payments revamp "}); again != bare {
		t.Errorf("name-only derivation not stable: %q vs %q", bare, again)
	}
}

func TestDeriveProjectID_ExplicitWins(t *testing.T) {
	p := Project{Name: "X", ProjectID: "proj-pinned"}
	if got := DeriveProjectID(p); got != "proj-pinned" {
		t.Errorf("DeriveProjectID = %q, want pinned ID", got)
	}
}

func TestPipelineState_SlotRoundTrip(t *testing.T) {
	state := NewPipelineState("proj-1", Project{Name: "X"})

	breakdown := Breakdown{
		Tasks: []Task{{ID: "t1", Title: "Build API", EstimatedHours: 8}},
	}
	if err := state.SetValue("breakdown", breakdown); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if !state.HasValue("breakdown") {
		t.Fatal("HasValue should be true after SetValue")
	}

	got, err := Slot[Breakdown](state, "breakdown")
	if err != nil {
		t.Fatalf("Slot: %v", err)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].ID != "t1" {
		t.Errorf("decoded breakdown = %+v", got)
	}

	// Mutating the decoded copy must not affect the stored slot.
	got.Tasks[0].Title = "mutated"
	again, err := Slot[Breakdown](state, "breakdown")
	if err != nil {
		t.Fatalf("Slot (second): %v", err)
	}
	if again.Tasks[0].Title != "Build API" {
		t.Error("slot value was mutated through a decoded copy")
	}
}

func TestPipelineState_SlotMissing(t *testing.T) {
	state := NewPipelineState("proj-1", Project{})
	if _, err := Slot[Analysis](state, "analysis"); err == nil {
		t.Error("Slot on an empty slot should error")
	}
	if state.HasValue("analysis") {
		t.Error("HasValue should be false for an empty slot")
	}
}

func TestPipelineState_CheckpointRoundTrip(t *testing.T) {
	state := NewPipelineState("proj-1", Project{Name: "X"})
	state.Status = StatusProcessing
	state.Metadata.LastStageCompleted = "analysis"
	state.Metadata.ResumeCount = 2
	state.RecordError("analysis", "transient blip", "err-123")
	if err := state.SetValue("analysis", Analysis{Summary: "ok"}); err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored PipelineState
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if restored.Status != StatusProcessing {
		t.Errorf("Status = %v", restored.Status)
	}
	if restored.Metadata.LastStageCompleted != "analysis" {
		t.Errorf("LastStageCompleted = %q", restored.Metadata.LastStageCompleted)
	}
	if restored.Metadata.ResumeCount != 2 {
		t.Errorf("ResumeCount = %d", restored.Metadata.ResumeCount)
	}
	if len(restored.ErrorLog) != 1 || restored.ErrorLog[0].ErrorID != "err-123" {
		t.Errorf("ErrorLog = %+v", restored.ErrorLog)
	}
	if a, err := Slot[Analysis](&restored, "analysis"); err != nil || a.Summary != "ok" {
		t.Errorf("restored slot = %+v, err %v", a, err)
	}
}

func TestStatusIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusNotStarted, StatusProcessing, StatusResuming} {
		if s.IsTerminal() {
			t.Errorf("%v should not be terminal", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusFailed} {
		if !s.IsTerminal() {
			t.Errorf("%v should be terminal", s)
		}
	}
}
