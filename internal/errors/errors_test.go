package errors

import (
	"fmt"
	"syscall"
	"testing"
)

func TestSeverityString(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tt.severity, got, tt.want)
		}
	}
}

func TestStageError_Format(t *testing.T) {
	err := NewStageError("reply missing tasks", ErrGenEmptyResponse).WithStage("breakdown")

	want := "stage error [stage=breakdown]: reply missing tasks: generation returned empty response"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !Is(err, ErrGenEmptyResponse) {
		t.Error("StageError should match its cause sentinel")
	}
	if err.Stage != "breakdown" {
		t.Errorf("Stage = %q, want %q", err.Stage, "breakdown")
	}
}

func TestStageError_As(t *testing.T) {
	var target *StageError
	err := fmt.Errorf("wrapped: %w", NewStageError("boom", nil).WithStage("analysis"))

	if !As(err, &target) {
		t.Fatal("As should find StageError through wrapping")
	}
	if target.Stage != "analysis" {
		t.Errorf("Stage = %q, want %q", target.Stage, "analysis")
	}
}

func TestPersistenceError_Format(t *testing.T) {
	err := NewPersistenceError("write snapshot", ErrNoCheckpoint).
		WithBackend("file").
		WithPath("/tmp/x/latest.json")

	want := "persistence error [backend=file, path=/tmp/x/latest.json]: write snapshot: no checkpoint found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestRetryError_Unwrap(t *testing.T) {
	cause := NewGenerationError("call failed", ErrGenUnavailable)
	err := NewRetryError(cause, 4, "stage analysis")

	if !Is(err, ErrGenUnavailable) {
		t.Error("RetryError should unwrap to the original sentinel")
	}

	var re *RetryError
	if !As(err, &re) {
		t.Fatal("As should find RetryError")
	}
	if re.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", re.Attempts)
	}
	if re.RetryContext != "stage analysis" {
		t.Errorf("RetryContext = %q, want %q", re.RetryContext, "stage analysis")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", New("something odd"), false},
		{"gen timeout sentinel", ErrGenTimeout, true},
		{"gen unavailable sentinel", ErrGenUnavailable, true},
		{"gen network sentinel", ErrGenNetwork, true},
		{"gen model-not-found sentinel", ErrGenModelNotFound, false},
		{"gen empty-response sentinel", ErrGenEmptyResponse, false},
		{"wrapped unavailable", fmt.Errorf("stage: %w", ErrGenUnavailable), true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"http 500", NewGenerationError("server error", nil).WithStatusCode(500), true},
		{"http 503", NewGenerationError("unavailable", nil).WithStatusCode(503), true},
		{"http 429", NewGenerationError("slow down", nil).WithStatusCode(429), true},
		{"http 400", NewGenerationError("bad request", nil).WithStatusCode(400), false},
		{"overloaded message", New("the model is Overloaded right now"), true},
		{"rate limit message", New("rate limit exceeded"), true},
		{"capacity message", New("out of capacity"), true},
		{"stage error fatal by default", NewStageError("bad input", nil), false},
		{"stage error marked retryable", NewStageError("flaky", nil).WithRetryable(true), true},
		{"retry annotation preserves class", NewRetryError(ErrGenTimeout, 3, ""), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestValidationError_Format(t *testing.T) {
	err := NewValidationError("weekly_hours", "must be non-negative")
	want := "validation error [field=weekly_hours]: must be non-negative"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if SeverityOf(err) != SeverityWarning {
		t.Errorf("SeverityOf = %v, want SeverityWarning", SeverityOf(err))
	}
}

func TestSeverityOf_Default(t *testing.T) {
	if got := SeverityOf(New("plain")); got != SeverityError {
		t.Errorf("SeverityOf(plain) = %v, want SeverityError", got)
	}
}
