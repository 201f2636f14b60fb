package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // The config field path (e.g., "retry.max_retries")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidCheckpointBackends returns the supported checkpoint backends.
func ValidCheckpointBackends() []string {
	return []string{"file", "sqlite"}
}

// ValidGenerationBackends returns the supported generation backends.
func ValidGenerationBackends() []string {
	return []string{"offline"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateCheckpoint()...)
	errors = append(errors, c.validateRetry()...)
	errors = append(errors, c.validateGeneration()...)
	errors = append(errors, c.validateScheduler()...)

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError
	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if !slices.Contains(ValidLogLevels(), c.Logging.EventMinLevel) {
		errors = append(errors, ValidationError{
			Field:   "logging.event_min_level",
			Value:   c.Logging.EventMinLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	return errors
}

func (c *Config) validateCheckpoint() []ValidationError {
	var errors []ValidationError
	if !slices.Contains(ValidCheckpointBackends(), c.Checkpoint.Backend) {
		errors = append(errors, ValidationError{
			Field:   "checkpoint.backend",
			Value:   c.Checkpoint.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidCheckpointBackends(), ", ")),
		})
	}
	return errors
}

func (c *Config) validateRetry() []ValidationError {
	var errors []ValidationError
	if c.Retry.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.max_retries",
			Value:   c.Retry.MaxRetries,
			Message: "must not be negative",
		})
	}
	if c.Retry.InitialDelayMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.initial_delay_ms",
			Value:   c.Retry.InitialDelayMs,
			Message: "must be positive",
		})
	}
	if c.Retry.BackoffFactor < 1 {
		errors = append(errors, ValidationError{
			Field:   "retry.backoff_factor",
			Value:   c.Retry.BackoffFactor,
			Message: "must be at least 1",
		})
	}
	if c.Retry.MaxDelayMs < c.Retry.InitialDelayMs {
		errors = append(errors, ValidationError{
			Field:   "retry.max_delay_ms",
			Value:   c.Retry.MaxDelayMs,
			Message: "must be at least initial_delay_ms",
		})
	}
	return errors
}

func (c *Config) validateGeneration() []ValidationError {
	var errors []ValidationError
	if !slices.Contains(ValidGenerationBackends(), c.Generation.Backend) {
		errors = append(errors, ValidationError{
			Field:   "generation.backend",
			Value:   c.Generation.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidGenerationBackends(), ", ")),
		})
	}
	if c.Generation.RequestTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "generation.request_timeout_seconds",
			Value:   c.Generation.RequestTimeoutSeconds,
			Message: "must be positive",
		})
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "generation.temperature",
			Value:   c.Generation.Temperature,
			Message: "must be between 0 and 2",
		})
	}
	if c.Generation.MaxOutputTokens < 0 {
		errors = append(errors, ValidationError{
			Field:   "generation.max_output_tokens",
			Value:   c.Generation.MaxOutputTokens,
			Message: "must not be negative",
		})
	}
	return errors
}

func (c *Config) validateScheduler() []ValidationError {
	var errors []ValidationError

	weights := map[string]float64{
		"scheduler.weights.skill":        c.Scheduler.Weights.Skill,
		"scheduler.weights.role":         c.Scheduler.Weights.Role,
		"scheduler.weights.availability": c.Scheduler.Weights.Availability,
		"scheduler.weights.balance":      c.Scheduler.Weights.Balance,
		"scheduler.weights.history":      c.Scheduler.Weights.History,
		"scheduler.weights.specialty":    c.Scheduler.Weights.Specialty,
	}
	for field, w := range weights {
		if w < 0 || w > 1 {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   w,
				Message: "must be between 0 and 1",
			})
		}
	}

	fractions := map[string]float64{
		"scheduler.recovery_fraction": c.Scheduler.RecoveryFraction,
		"scheduler.min_match_score":   c.Scheduler.MinMatchScore,
	}
	for field, f := range fractions {
		if f < 0 || f > 1 {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   f,
				Message: "must be between 0 and 1",
			})
		}
	}

	if c.Scheduler.SpreadThreshold < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.spread_threshold",
			Value:   c.Scheduler.SpreadThreshold,
			Message: "must not be negative",
		})
	}
	if c.Scheduler.OverloadFactor <= 1 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.overload_factor",
			Value:   c.Scheduler.OverloadFactor,
			Message: "must be greater than 1",
		})
	}
	if c.Scheduler.UnderloadFactor <= 0 || c.Scheduler.UnderloadFactor >= 1 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.underload_factor",
			Value:   c.Scheduler.UnderloadFactor,
			Message: "must be between 0 and 1",
		})
	}
	if c.Scheduler.SpecialtyCount <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.specialty_count",
			Value:   c.Scheduler.SpecialtyCount,
			Message: "must be positive",
		})
	}
	return errors
}
