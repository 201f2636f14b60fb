// Package gen defines the text-generation collaborator boundary. The
// pipeline's generation stages depend only on the Generator interface;
// concrete backends (a hosted model API, a local model, the offline
// generator) plug in behind it.
package gen

import (
	"context"
	"strings"

	"github.com/Iron-Ham/planforge/internal/errors"
)

// Options configures a single generation call.
type Options struct {
	// Temperature controls sampling randomness; zero means deterministic.
	Temperature float64

	// MaxOutputTokens caps the reply size. Zero means the backend default.
	MaxOutputTokens int
}

// Generator produces a text reply for a prompt. Implementations must honor
// ctx cancellation and deadlines, and must surface failures using the typed
// generation errors so the retry executor can classify them:
//
//   - errors.ErrGenTimeout: the call exceeded its deadline (retryable)
//   - errors.ErrGenUnavailable: the service is down or overloaded (retryable)
//   - errors.ErrGenNetwork: transport-level failure (retryable)
//   - errors.ErrGenEmptyResponse: the service replied with nothing (fatal)
//   - errors.ErrGenModelNotFound: the requested model is unknown (fatal)
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// Func adapts an ordinary function to the Generator interface.
type Func func(ctx context.Context, prompt string, opts Options) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}

// Validate checks a reply for the empty-response failure mode shared by all
// backends. Backends call it before returning a reply.
func Validate(reply string) (string, error) {
	if strings.TrimSpace(reply) == "" {
		return "", errors.NewGenerationError("blank reply", errors.ErrGenEmptyResponse)
	}
	return reply, nil
}
