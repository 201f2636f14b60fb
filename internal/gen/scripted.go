package gen

import (
	"context"
	"sync"

	"github.com/Iron-Ham/planforge/internal/errors"
)

// Reply is one scripted response: either a text body or an error.
type Reply struct {
	Text string
	Err  error
}

// Scripted is a Generator that plays back a fixed sequence of replies.
// It exists for tests that need to exercise retry and failure paths without
// a real backend. It is safe for concurrent use.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	calls   int
	prompts []string
}

// NewScripted creates a Scripted generator that returns the given replies in
// order. Calls beyond the script return ErrGenEmptyResponse.
func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// Generate returns the next scripted reply.
func (s *Scripted) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, prompt)
	if s.calls >= len(s.replies) {
		s.calls++
		return "", errors.NewGenerationError("script exhausted", errors.ErrGenEmptyResponse)
	}

	r := s.replies[s.calls]
	s.calls++
	if r.Err != nil {
		return "", r.Err
	}
	return Validate(r.Text)
}

// Calls returns how many times Generate has been invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Prompts returns a copy of every prompt received, in order.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}
