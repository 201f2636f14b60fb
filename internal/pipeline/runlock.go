package pipeline

import (
	"fmt"
	"sync"

	"github.com/Iron-Ham/planforge/internal/errors"
)

// runRegistry guards against two concurrent runs of the same project within
// this process. Cross-process coordination is out of scope; the checkpoint
// store's atomic pointer swap keeps on-disk state consistent regardless.
type runRegistry struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newRunRegistry() *runRegistry {
	return &runRegistry{active: make(map[string]struct{})}
}

// acquire claims the project for a run. The returned release function is
// idempotent. A second claim while the first is held fails with
// errors.ErrRunActive.
func (r *runRegistry) acquire(projectID string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.active[projectID]; held {
		return nil, fmt.Errorf("project %s: %w", projectID, errors.ErrRunActive)
	}
	r.active[projectID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.active, projectID)
			r.mu.Unlock()
		})
	}, nil
}
