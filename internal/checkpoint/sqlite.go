package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Iron-Ham/planforge/internal/errors"
	"github.com/Iron-Ham/planforge/internal/plan"
)

// SQLiteStore is a SQLite-backed Store. Snapshots live in an append-only
// `checkpoints` table; a `latest` table carries one pointer row per project.
// Each save inserts the snapshot and upserts the pointer inside a single
// transaction, so the pointer never references a missing snapshot.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	stage_name TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	version    INTEGER NOT NULL,
	state      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_project ON checkpoints(project_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS latest (
	project_id    TEXT PRIMARY KEY,
	checkpoint_id TEXT NOT NULL REFERENCES checkpoints(id)
);
`

// NewSQLiteStore opens (or creates) a SQLite checkpoint database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.NewPersistenceError("open checkpoint database", err).
			WithBackend("sqlite").WithPath(path)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.NewPersistenceError("apply checkpoint schema", err).
			WithBackend("sqlite").WithPath(path)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Save inserts a snapshot row and moves the pointer in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, projectID string, state *plan.PipelineState, stageName string) (*Metadata, error) {
	if projectID == "" {
		return nil, errors.NewValidationError("projectID", "is required")
	}
	if state == nil {
		return nil, errors.NewValidationError("state", "is required")
	}

	meta := Metadata{
		ID:        newCheckpointID(),
		ProjectID: projectID,
		StageName: stageName,
		Timestamp: time.Now(),
		Version:   SchemaVersion,
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, errors.NewPersistenceError("encode checkpoint", err).WithBackend("sqlite")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewPersistenceError("begin save transaction", err).WithBackend("sqlite")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (id, project_id, stage_name, timestamp, version, state)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		meta.ID, projectID, stageName, meta.Timestamp.UnixNano(), meta.Version, string(stateJSON),
	); err != nil {
		return nil, errors.NewPersistenceError("insert snapshot", err).WithBackend("sqlite")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO latest (project_id, checkpoint_id) VALUES (?, ?)
		 ON CONFLICT(project_id) DO UPDATE SET checkpoint_id = excluded.checkpoint_id`,
		projectID, meta.ID,
	); err != nil {
		return nil, errors.NewPersistenceError("update latest pointer", err).WithBackend("sqlite")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewPersistenceError("commit save transaction", err).WithBackend("sqlite")
	}
	return &meta, nil
}

// LoadLatest reads the state the pointer row references.
func (s *SQLiteStore) LoadLatest(ctx context.Context, projectID string) (*plan.PipelineState, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT c.state FROM latest l JOIN checkpoints c ON c.id = l.checkpoint_id
		 WHERE l.project_id = ?`, projectID,
	).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNoCheckpoint
	}
	if err != nil {
		return nil, errors.NewPersistenceError("read latest checkpoint", err).WithBackend("sqlite")
	}

	var state plan.PipelineState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, errors.NewPersistenceError("decode checkpoint", err).WithBackend("sqlite")
	}
	return &state, nil
}

// List returns the project's checkpoints newest first.
func (s *SQLiteStore) List(ctx context.Context, projectID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage_name, timestamp FROM checkpoints
		 WHERE project_id = ? ORDER BY timestamp DESC`, projectID)
	if err != nil {
		return nil, errors.NewPersistenceError("list checkpoints", err).WithBackend("sqlite")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var stage string
		var ts int64
		if err := rows.Scan(&stage, &ts); err != nil {
			return nil, errors.NewPersistenceError("scan checkpoint row", err).WithBackend("sqlite")
		}
		entries = append(entries, Entry{StageName: stage, Timestamp: time.Unix(0, ts)})
	}
	return entries, rows.Err()
}

// HasResumable reports whether a pointer row exists for the project.
func (s *SQLiteStore) HasResumable(ctx context.Context, projectID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM latest WHERE project_id = ?`, projectID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewPersistenceError("query latest pointer", err).WithBackend("sqlite")
	}
	return true, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
