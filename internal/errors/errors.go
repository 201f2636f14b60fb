// Package errors provides centralized error definitions and error handling
// utilities for the Planforge codebase. It defines domain-specific errors,
// semantic error types, error constructors with context wrapping, and the
// retry classification used by the retry executor.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - StageError: a pipeline stage's own logic failed
//   - PersistenceError: checkpoint or log read/write failure
//   - GenerationError: errors from the text-generation collaborator
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or state
//   - RetryError: an operation failed after the retry executor exhausted
//     its attempts, annotated with the attempt count and context
//
// # Usage
//
// Creating errors:
//
//	// Domain-specific error
//	err := errors.NewStageError("breakdown produced no tasks", nil).WithStage("breakdown")
//
//	// With retry annotation
//	err := errors.NewRetryError(cause, 3, "stage breakdown")
//
// Checking errors:
//
//	// Check for specific sentinel errors
//	if errors.Is(err, errors.ErrNoCheckpoint) { ... }
//
//	// Check for error types
//	var stageErr *errors.StageError
//	if errors.As(err, &stageErr) { ... }
//
//	// Use classification helpers
//	if errors.IsRetryable(err) { ... }
//
// # Error Classification
//
// IsRetryable implements the transient-failure policy: network resets,
// timeouts, refused connections, HTTP 5xx and 429 responses, and messages
// mentioning overload, rate limits, timeouts, or capacity are retryable;
// everything else is fatal and fails fast.
package errors

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Pipeline-related sentinel errors
var (
	// ErrRunActive indicates that a run is already active for the project.
	ErrRunActive = New("run already active for project")
	// ErrNoCheckpoint indicates that no checkpoint exists for the project.
	ErrNoCheckpoint = New("no checkpoint found")
	// ErrStageNotFound indicates that a stage name is not in the declared order.
	ErrStageNotFound = New("stage not found in declared order")
	// ErrPipelineAborted indicates that the run was cancelled between stages.
	ErrPipelineAborted = New("pipeline run aborted")
)

// Generation-related sentinel errors. These mirror the failure modes of the
// external text-generation collaborator.
var (
	// ErrGenTimeout indicates the generation call exceeded its deadline.
	ErrGenTimeout = New("generation timed out")
	// ErrGenUnavailable indicates the generation service is unavailable.
	ErrGenUnavailable = New("generation service unavailable")
	// ErrGenEmptyResponse indicates the service returned an empty reply.
	ErrGenEmptyResponse = New("generation returned empty response")
	// ErrGenModelNotFound indicates the requested model does not exist.
	ErrGenModelNotFound = New("generation model not found")
	// ErrGenNetwork indicates a network-level failure reaching the service.
	ErrGenNetwork = New("generation network failure")
)

// Scheduling-related sentinel errors
var (
	// ErrNoCapacity indicates that no worker has remaining capacity for a task.
	ErrNoCapacity = New("no worker with remaining capacity")
	// ErrEmptyRoster indicates that scheduling was attempted with no workers.
	ErrEmptyRoster = New("worker roster is empty")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// Retryable returns whether the error is transient and the operation may
// succeed on retry.
func (e *baseError) Retryable() bool {
	return e.retryable
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// StageError represents an unrecoverable failure inside a pipeline stage's
// own logic, e.g. missing required project fields or an unparseable reply.
//
// Example:
//
//	err := errors.NewStageError("project has no team members", nil).WithStage("assignments")
type StageError struct {
	baseError
	Stage string
}

// NewStageError creates a new StageError. Stage errors are fatal by default;
// transient conditions inside a stage should surface the underlying
// retryable error instead.
func NewStageError(message string, cause error) *StageError {
	return &StageError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithStage adds the failing stage's name to the error context.
func (e *StageError) WithStage(stage string) *StageError {
	e.Stage = stage
	return e
}

// WithRetryable marks the stage error as retryable.
func (e *StageError) WithRetryable(r bool) *StageError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *StageError) Error() string {
	prefix := "stage error"
	if e.Stage != "" {
		prefix = fmt.Sprintf("stage error [stage=%s]", e.Stage)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StageError) Is(target error) bool {
	if _, ok := target.(*StageError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PersistenceError represents a failure to read or write a checkpoint or
// structured log. Persistence errors are reported but must never discard a
// successful stage result.
type PersistenceError struct {
	baseError
	Path    string
	Backend string
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(message string, cause error) *PersistenceError {
	return &PersistenceError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithPath adds the file or key path to the error context.
func (e *PersistenceError) WithPath(path string) *PersistenceError {
	e.Path = path
	return e
}

// WithBackend names the store backend ("file", "sqlite") in the error context.
func (e *PersistenceError) WithBackend(backend string) *PersistenceError {
	e.Backend = backend
	return e
}

// Error returns the formatted error message.
func (e *PersistenceError) Error() string {
	var parts []string
	if e.Backend != "" {
		parts = append(parts, fmt.Sprintf("backend=%s", e.Backend))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}

	prefix := "persistence error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("persistence error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PersistenceError) Is(target error) bool {
	if _, ok := target.(*PersistenceError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// GenerationError represents a failure from the text-generation collaborator.
// It optionally carries the HTTP status code of the underlying response,
// which feeds the retry classification (5xx and 429 are transient).
type GenerationError struct {
	baseError
	StatusCode int
}

// NewGenerationError creates a new GenerationError wrapping one of the
// generation sentinels (or a raw transport error).
func NewGenerationError(message string, cause error) *GenerationError {
	return &GenerationError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithStatusCode attaches the HTTP status code of the failed call.
func (e *GenerationError) WithStatusCode(code int) *GenerationError {
	e.StatusCode = code
	return e
}

// Error returns the formatted error message.
func (e *GenerationError) Error() string {
	prefix := "generation error"
	if e.StatusCode != 0 {
		prefix = fmt.Sprintf("generation error [status=%d]", e.StatusCode)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *GenerationError) Is(target error) bool {
	if _, ok := target.(*GenerationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
type ValidationError struct {
	baseError
	Field string
}

// NewValidationError creates a new ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:  message,
			severity: SeverityWarning,
		},
		Field: field,
	}
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error [field=%s]: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Retry Annotation
// -----------------------------------------------------------------------------

// RetryError annotates an error that survived the retry executor: the
// original failure plus how many attempts were made and in what context.
// Unwrap returns the original error so sentinel and type checks pass through.
type RetryError struct {
	Err          error
	Attempts     int
	RetryContext string
}

// NewRetryError wraps err with retry bookkeeping.
func NewRetryError(err error, attempts int, retryContext string) *RetryError {
	return &RetryError{Err: err, Attempts: attempts, RetryContext: retryContext}
}

// Error returns the formatted error message.
func (e *RetryError) Error() string {
	if e.RetryContext != "" {
		return fmt.Sprintf("%v (after %d attempt(s) in %s)", e.Err, e.Attempts, e.RetryContext)
	}
	return fmt.Sprintf("%v (after %d attempt(s))", e.Err, e.Attempts)
}

// Unwrap returns the original error.
func (e *RetryError) Unwrap() error {
	return e.Err
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// retryableClassifier is implemented by errors that declare their own
// transience. All errors in this package implement it via baseError.
type retryableClassifier interface {
	Retryable() bool
}

// retryableSubstrings are message fragments that mark an otherwise untyped
// error as transient. Matching is case-insensitive.
var retryableSubstrings = []string{
	"overloaded",
	"rate limit",
	"timeout",
	"capacity",
}

// IsRetryable reports whether err is a transient failure that may succeed on
// retry. The classification, in order:
//
//  1. An error (anywhere in the chain) implementing Retryable() bool true wins.
//  2. Generation sentinels: timeout, unavailable, and network failures are
//     retryable; model-not-found and empty-response are fatal.
//  3. Network-level errors: net.Error timeouts, ECONNRESET, ECONNREFUSED,
//     ETIMEDOUT.
//  4. GenerationError status codes: 5xx and 429 are retryable.
//  5. Message heuristics: "overloaded", "rate limit", "timeout", "capacity".
//
// Everything else is fatal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var rc retryableClassifier
	if errors.As(err, &rc) && rc.Retryable() {
		return true
	}

	if Is(err, ErrGenTimeout) || Is(err, ErrGenUnavailable) || Is(err, ErrGenNetwork) {
		return true
	}
	if Is(err, ErrGenModelNotFound) || Is(err, ErrGenEmptyResponse) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if Is(err, syscall.ECONNRESET) || Is(err, syscall.ECONNREFUSED) || Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var genErr *GenerationError
	if errors.As(err, &genErr) && genErr.StatusCode != 0 {
		if genErr.StatusCode >= 500 || genErr.StatusCode == 429 {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}

	return false
}

// SeverityOf returns the severity of err, defaulting to SeverityError for
// errors that don't declare one.
func SeverityOf(err error) Severity {
	type severitied interface {
		Severity() Severity
	}
	var sv severitied
	if errors.As(err, &sv) {
		return sv.Severity()
	}
	return SeverityError
}
