// Package checkpoint provides durable persistence of pipeline state
// snapshots, keyed by project identifier, with a "latest" pointer per
// project. Snapshots are immutable and append-only: a save never rewrites
// an earlier snapshot, so the full run history is retained.
//
// Two backends implement the Store interface: a filesystem store (one JSON
// snapshot file per save plus an atomically-swapped pointer file) and a
// SQLite store (append-only snapshot table plus a pointer row updated in the
// same transaction). Both give the required atomicity property: the latest
// pointer never references a snapshot that does not exist.
package checkpoint

import (
	"context"
	"time"

	"github.com/Iron-Ham/planforge/internal/plan"
)

// SchemaVersion is written into every checkpoint for forward-compatible
// decoding.
const SchemaVersion = 1

// FailedSuffix tags checkpoints taken when a stage ultimately fails, so even
// failed runs leave a resumable trail.
const FailedSuffix = "_failed"

// Metadata identifies one saved checkpoint.
type Metadata struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	StageName string    `json:"stage_name"`
	Timestamp time.Time `json:"timestamp"`
	Version   int       `json:"version"`
}

// Record is the persisted layout of one checkpoint: metadata plus the full
// serialized pipeline state.
type Record struct {
	Metadata Metadata            `json:"metadata"`
	State    *plan.PipelineState `json:"state"`
}

// Entry is one row of a checkpoint listing.
type Entry struct {
	StageName string    `json:"stage_name"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists pipeline state snapshots.
//
// Implementations must serialize concurrent saves for the same project at
// the pointer-swap level; callers additionally hold the per-project run lock,
// so concurrent writers for one project do not occur in correct usage.
type Store interface {
	// Save durably writes a timestamped snapshot of state tagged with
	// stageName and atomically updates the project's latest pointer.
	Save(ctx context.Context, projectID string, state *plan.PipelineState, stageName string) (*Metadata, error)

	// LoadLatest returns the state referenced by the project's latest
	// pointer, or errors.ErrNoCheckpoint if none exists.
	LoadLatest(ctx context.Context, projectID string) (*plan.PipelineState, error)

	// List returns the project's checkpoints newest first.
	List(ctx context.Context, projectID string) ([]Entry, error)

	// HasResumable reports whether a latest checkpoint exists for the project.
	HasResumable(ctx context.Context, projectID string) (bool, error)

	// Close releases backend resources.
	Close() error
}
