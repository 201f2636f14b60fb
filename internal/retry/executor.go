// Package retry provides the retry executor that wraps fallible operations
// with classified retries and exponential backoff.
//
// The executor decides whether a failure is worth retrying via the central
// error classification (see the errors package), sleeps an exponentially
// growing, capped delay between attempts, and annotates the final error with
// the attempt count and context when retries are exhausted or the failure is
// fatal. Backoff delays are context-aware: cancelling the context wakes the
// executor immediately, and a sleeping executor never blocks unrelated work.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/Iron-Ham/planforge/internal/errors"
	"github.com/Iron-Ham/planforge/internal/logging"
)

// Default policy values.
const (
	DefaultMaxRetries    = 3
	DefaultInitialDelay  = 1000 * time.Millisecond
	DefaultBackoffFactor = 1.5
	DefaultMaxDelay      = 30 * time.Second
)

// Policy defines the retry behavior for an operation.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration

	// BackoffFactor multiplies the delay for each subsequent retry.
	BackoffFactor float64

	// MaxDelay caps the backoff regardless of the attempt number.
	MaxDelay time.Duration
}

// DefaultPolicy returns the standard policy: 3 retries, 1s initial delay,
// 1.5x backoff, 30s ceiling.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    DefaultMaxRetries,
		InitialDelay:  DefaultInitialDelay,
		BackoffFactor: DefaultBackoffFactor,
		MaxDelay:      DefaultMaxDelay,
	}
}

// normalized fills zero fields with defaults so a partially specified policy
// behaves sensibly.
func (p Policy) normalized() Policy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.BackoffFactor <= 1 {
		p.BackoffFactor = DefaultBackoffFactor
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// Delay returns the backoff before retry attempt i (1-based):
// min(InitialDelay * BackoffFactor^(i-1), MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt-1)))
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

// FailureHook runs just before the executor returns a final (non-retried)
// error. The coordinator uses it to persist a failure checkpoint so that
// even failed runs leave a resumable trail. Hook errors are logged, never
// propagated: the original failure wins.
type FailureHook func(ctx context.Context, opName string, attempts int, err error)

// Executor runs operations under a retry policy. It is safe for concurrent
// use; per-call policies may override the executor's default.
type Executor struct {
	policy      Policy
	logger      *logging.Logger
	reporter    *logging.Reporter
	failureHook FailureHook
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the structured logger for per-attempt log lines.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithReporter sets the error reporter receiving retry-exhaustion events.
func WithReporter(r *logging.Reporter) Option {
	return func(e *Executor) { e.reporter = r }
}

// WithFailureHook sets the hook invoked before a final error returns.
func WithFailureHook(h FailureHook) Option {
	return func(e *Executor) { e.failureHook = h }
}

// withSleep overrides the delay function, for tests.
func withSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = f }
}

// NewExecutor creates an Executor with the given default policy.
func NewExecutor(policy Policy, opts ...Option) *Executor {
	e := &Executor{
		policy: policy.normalized(),
		logger: logging.NopLogger(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs op under the executor's default policy.
func (e *Executor) Execute(ctx context.Context, opName string, op func(ctx context.Context) error) error {
	return e.ExecuteWithPolicy(ctx, opName, e.policy, op)
}

// ExecuteWithPolicy runs op, retrying classified-transient failures under
// the given policy. The returned error is nil on success; otherwise it is a
// *errors.RetryError wrapping the original failure, annotated with the
// number of attempts made and the operation name.
func (e *Executor) ExecuteWithPolicy(ctx context.Context, opName string, policy Policy, op func(ctx context.Context) error) error {
	policy = policy.normalized()
	log := e.logger.With("operation", opName)

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= policy.MaxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		attempts = attempt
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info("operation succeeded after retry", "attempts", attempt)
			}
			return nil
		}
		lastErr = err

		if !errors.IsRetryable(err) {
			log.Warn("fatal error, not retrying", "attempt", attempt, "error", err.Error())
			break
		}
		if attempt > policy.MaxRetries {
			log.Warn("retries exhausted", "attempts", attempt, "error", err.Error())
			break
		}

		delay := policy.Delay(attempt)
		log.Info("transient error, backing off",
			"attempt", attempt,
			"max_retries", policy.MaxRetries,
			"delay", delay.String(),
			"error", err.Error())

		if serr := e.sleep(ctx, delay); serr != nil {
			lastErr = err
			break
		}
	}

	final := errors.NewRetryError(lastErr, attempts, opName)
	if e.reporter != nil {
		e.reporter.RecordEvent(logging.EventWarn, "operation failed permanently", map[string]any{
			"operation": opName,
			"attempts":  attempts,
			"error":     lastErr.Error(),
		})
	}
	if e.failureHook != nil {
		e.failureHook(ctx, opName, attempts, lastErr)
	}
	return final
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
