package plan

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a pipeline run.
type Status string

const (
	// StatusNotStarted indicates the state has been created but no stage has run.
	StatusNotStarted Status = "not_started"

	// StatusProcessing indicates stages are executing.
	StatusProcessing Status = "processing"

	// StatusResuming indicates a checkpoint has been restored and execution
	// is about to continue.
	StatusResuming Status = "resuming"

	// StatusCompleted indicates every declared stage produced an output.
	StatusCompleted Status = "completed"

	// StatusFailed indicates a stage failed unrecoverably.
	StatusFailed Status = "failed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrorEntry is one record of the pipeline state's ordered error log.
type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Stage     string    `json:"stage,omitempty"`
	ErrorID   string    `json:"error_id,omitempty"`
}

// StageTiming records how a single stage execution went.
type StageTiming struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Failed    bool          `json:"failed"`
}

// RunMetadata carries the bookkeeping for one pipeline run (possibly spanning
// several resumes).
type RunMetadata struct {
	StartTime          time.Time              `json:"start_time"`
	EndTime            time.Time              `json:"end_time,omitzero"`
	LastStageCompleted string                 `json:"last_stage_completed,omitempty"`
	StageTimings       map[string]StageTiming `json:"stage_timings,omitempty"`
	ResumeCount        int                    `json:"resume_count"`
}

// PipelineState is the single mutable aggregate for one project's run.
// Stage outputs are stored as canonical JSON so that a checkpoint round-trip
// reproduces the state exactly and consumers always decode a private copy.
type PipelineState struct {
	ProjectID string                     `json:"project_id"`
	Project   Project                    `json:"project"`
	Values    map[string]json.RawMessage `json:"values"`
	Status    Status                     `json:"status"`
	ErrorLog  []ErrorEntry               `json:"error_log,omitempty"`
	Metadata  RunMetadata                `json:"metadata"`
}

// NewPipelineState creates the state for a fresh run.
func NewPipelineState(projectID string, project Project) *PipelineState {
	return &PipelineState{
		ProjectID: projectID,
		Project:   project,
		Values:    make(map[string]json.RawMessage),
		Status:    StatusNotStarted,
		Metadata: RunMetadata{
			StageTimings: make(map[string]StageTiming),
		},
	}
}

// SetValue marshals v into the named output slot.
func (s *PipelineState) SetValue(slot string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal slot %q: %w", slot, err)
	}
	if s.Values == nil {
		s.Values = make(map[string]json.RawMessage)
	}
	s.Values[slot] = data
	return nil
}

// HasValue returns true if the named slot holds a non-null output.
func (s *PipelineState) HasValue(slot string) bool {
	raw, ok := s.Values[slot]
	return ok && len(raw) > 0 && string(raw) != "null"
}

// RecordError appends an entry to the ordered error log.
func (s *PipelineState) RecordError(stage, message, errorID string) {
	s.ErrorLog = append(s.ErrorLog, ErrorEntry{
		Timestamp: time.Now(),
		Message:   message,
		Stage:     stage,
		ErrorID:   errorID,
	})
}

// Clone returns a deep copy of the state via a JSON round-trip.
func (s *PipelineState) Clone() (*PipelineState, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone state: %w", err)
	}
	var out PipelineState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("clone state: %w", err)
	}
	return &out, nil
}

// Slot decodes the named output slot into a value of type T. The decoded
// value is a private copy: mutating it never affects the pipeline state,
// which keeps earlier stages' outputs immutable to later stages.
func Slot[T any](s *PipelineState, slot string) (T, error) {
	var out T
	raw, ok := s.Values[slot]
	if !ok || len(raw) == 0 {
		return out, fmt.Errorf("slot %q has no value", slot)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode slot %q: %w", slot, err)
	}
	return out, nil
}
