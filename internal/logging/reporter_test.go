package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestReporter_LogError_IssuesUniqueIDs(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter(dir, WithConsole(bytes.NewBuffer(nil)))

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := r.LogError(errors.New("boom"), "test", nil)
		if id == "" {
			t.Fatal("LogError returned empty ID")
		}
		if !strings.HasPrefix(id, "err-") {
			t.Errorf("ID %q missing err- prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate error ID %q", id)
		}
		seen[id] = true
	}
}

func TestReporter_LogError_AppendsDayPartition(t *testing.T) {
	dir := t.TempDir()
	fixed := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := NewReporter(dir,
		WithConsole(bytes.NewBuffer(nil)),
		WithClock(func() time.Time { return fixed }),
	)

	r.LogError(errors.New("first"), "stage analysis", map[string]any{"attempt": 1})
	r.LogError(errors.New("second"), "stage breakdown", nil)

	path := filepath.Join(dir, "errors-2026-03-14.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading partition: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d", len(lines))
	}
}

func TestReporter_LogError_MirrorsToConsole(t *testing.T) {
	var console bytes.Buffer
	r := NewReporter(t.TempDir(), WithConsole(&console))

	id := r.LogError(errors.New("service overloaded"), "stage analysis", nil)

	out := console.String()
	if !strings.Contains(out, id) {
		t.Errorf("console output missing error ID: %q", out)
	}
	if !strings.Contains(out, "service overloaded") {
		t.Errorf("console output missing message: %q", out)
	}
}

func TestReporter_LogError_NeverFails(t *testing.T) {
	// Point the reporter at a path that cannot be a directory.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	var console bytes.Buffer
	r := NewReporter(filepath.Join(blocker, "sub"), WithConsole(&console))

	id := r.LogError(errors.New("boom"), "test", nil)
	if id == "" {
		t.Error("LogError should return an ID even when the write fails")
	}
}

func TestReporter_RecordEvent_FiltersByMinLevel(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter(dir,
		WithConsole(bytes.NewBuffer(nil)),
		WithMinLevel(EventWarn),
	)

	r.RecordEvent(EventDebug, "dropped debug", nil)
	r.RecordEvent(EventInfo, "dropped info", nil)
	r.RecordEvent(EventWarn, "kept warn", nil)
	r.RecordEvent(EventError, "kept error", map[string]any{"stage": "compile"})

	events, err := ReadEvents(dir, EventDebug)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Message != "kept warn" {
		t.Errorf("first event = %q, want %q", events[0].Message, "kept warn")
	}
}

func TestFindError_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter(dir, WithConsole(bytes.NewBuffer(nil)))

	id := r.LogError(errors.New("checkpoint write failed"), "checkpoint", map[string]any{
		"project_id": "proj-1",
	})

	rec, err := FindError(dir, id)
	if err != nil {
		t.Fatalf("FindError: %v", err)
	}
	if rec == nil {
		t.Fatal("FindError returned nil for a just-logged ID")
	}
	if rec.Message != "checkpoint write failed" {
		t.Errorf("Message = %q", rec.Message)
	}
	if rec.Context != "checkpoint" {
		t.Errorf("Context = %q", rec.Context)
	}
	if rec.Severity != "error" {
		t.Errorf("Severity = %q, want classified error", rec.Severity)
	}
}

func TestFilterErrors(t *testing.T) {
	now := time.Now()
	records := []ErrorRecord{
		{ErrorID: "err-1", Context: "stage analysis", Timestamp: now.Add(-2 * time.Hour)},
		{ErrorID: "err-2", Context: "stage breakdown", Timestamp: now.Add(-time.Hour)},
		{ErrorID: "err-3", Context: "checkpoint", Timestamp: now},
	}

	tests := []struct {
		name   string
		filter ErrorFilter
		want   []string
	}{
		{"no filter", ErrorFilter{}, []string{"err-1", "err-2", "err-3"}},
		{"by id", ErrorFilter{ErrorID: "err-2"}, []string{"err-2"}},
		{"by context", ErrorFilter{Context: "stage"}, []string{"err-1", "err-2"}},
		{"by time", ErrorFilter{Since: now.Add(-90 * time.Minute)}, []string{"err-2", "err-3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterErrors(records, tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(got), len(tt.want))
			}
			for i, rec := range got {
				if rec.ErrorID != tt.want[i] {
					t.Errorf("record %d = %q, want %q", i, rec.ErrorID, tt.want[i])
				}
			}
		})
	}
}

func TestLogger_ChildLoggers(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	child := logger.WithProject("proj-1").WithStage("analysis")
	child.Info("stage starting", "attempt", 1)

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "planforge.log"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	out := string(data)
	for _, want := range []string{"proj-1", "analysis", "stage starting"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}
