package checkpoint

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/planforge/internal/errors"
	"github.com/Iron-Ham/planforge/internal/plan"
)

// FileStore is a filesystem-backed Store. Layout per project:
//
//	{baseDir}/{projectID}/checkpoints/{checkpointID}.json
//	{baseDir}/{projectID}/latest.json
//
// Snapshot files are written once and never modified. The latest pointer is
// replaced with an atomic temp-file-plus-rename after the snapshot is fully
// on disk, so the pointer can never reference a missing or torn snapshot.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// latestPointer is the persisted layout of a project's latest pointer.
type latestPointer struct {
	CheckpointID string    `json:"checkpoint_id"`
	StageName    string    `json:"stage_name"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewFileStore creates a FileStore rooted at baseDir, creating the directory
// if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, errors.NewPersistenceError("create checkpoint directory", err).
			WithBackend("file").WithPath(baseDir)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// BaseDir returns the store's root directory.
func (fs *FileStore) BaseDir() string {
	return fs.baseDir
}

// Save writes a snapshot and swaps the latest pointer.
func (fs *FileStore) Save(ctx context.Context, projectID string, state *plan.PipelineState, stageName string) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if projectID == "" {
		return nil, errors.NewValidationError("projectID", "is required")
	}
	if state == nil {
		return nil, errors.NewValidationError("state", "is required")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	meta := Metadata{
		ID:        newCheckpointID(),
		ProjectID: projectID,
		StageName: stageName,
		Timestamp: time.Now(),
		Version:   SchemaVersion,
	}

	record := Record{Metadata: meta, State: state}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, errors.NewPersistenceError("encode checkpoint", err).WithBackend("file")
	}

	dir := filepath.Join(fs.baseDir, projectID, "checkpoints")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.NewPersistenceError("create project directory", err).
			WithBackend("file").WithPath(dir)
	}

	snapPath := filepath.Join(dir, meta.ID+".json")
	if err := atomicWriteFile(snapPath, data, 0644); err != nil {
		return nil, errors.NewPersistenceError("write snapshot", err).
			WithBackend("file").WithPath(snapPath)
	}

	// Only once the snapshot is durably in place may the pointer move.
	ptr := latestPointer{CheckpointID: meta.ID, StageName: stageName, Timestamp: meta.Timestamp}
	ptrData, err := json.Marshal(ptr)
	if err != nil {
		return nil, errors.NewPersistenceError("encode latest pointer", err).WithBackend("file")
	}
	ptrPath := fs.pointerPath(projectID)
	if err := atomicWriteFile(ptrPath, ptrData, 0644); err != nil {
		return nil, errors.NewPersistenceError("write latest pointer", err).
			WithBackend("file").WithPath(ptrPath)
	}

	return &meta, nil
}

// LoadLatest reads the state referenced by the latest pointer.
func (fs *FileStore) LoadLatest(ctx context.Context, projectID string) (*plan.PipelineState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	ptr, err := fs.readPointer(projectID)
	if err != nil {
		return nil, err
	}

	snapPath := filepath.Join(fs.baseDir, projectID, "checkpoints", ptr.CheckpointID+".json")
	data, err := os.ReadFile(snapPath)
	if err != nil {
		return nil, errors.NewPersistenceError("read snapshot", err).
			WithBackend("file").WithPath(snapPath)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.NewPersistenceError("decode snapshot", err).
			WithBackend("file").WithPath(snapPath)
	}
	if record.State == nil {
		return nil, errors.NewPersistenceError("snapshot has no state", nil).
			WithBackend("file").WithPath(snapPath)
	}
	return record.State, nil
}

// List returns the project's checkpoints newest first, reading only snapshot
// metadata.
func (fs *FileStore) List(ctx context.Context, projectID string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	dir := filepath.Join(fs.baseDir, projectID, "checkpoints")
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewPersistenceError("list checkpoints", err).
			WithBackend("file").WithPath(dir)
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			continue
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		entries = append(entries, Entry{
			StageName: record.Metadata.StageName,
			Timestamp: record.Metadata.Timestamp,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// HasResumable reports whether a latest pointer exists.
func (fs *FileStore) HasResumable(ctx context.Context, projectID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, err := fs.readPointer(projectID)
	if err != nil {
		if errors.Is(err, errors.ErrNoCheckpoint) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Close is a no-op for the file backend.
func (fs *FileStore) Close() error {
	return nil
}

// pointerPath returns the latest pointer path for a project.
func (fs *FileStore) pointerPath(projectID string) string {
	return filepath.Join(fs.baseDir, projectID, "latest.json")
}

// readPointer reads and decodes the latest pointer. The caller must hold at
// least the read lock.
func (fs *FileStore) readPointer(projectID string) (*latestPointer, error) {
	data, err := os.ReadFile(fs.pointerPath(projectID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrNoCheckpoint
		}
		return nil, errors.NewPersistenceError("read latest pointer", err).
			WithBackend("file").WithPath(fs.pointerPath(projectID))
	}

	var ptr latestPointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		return nil, errors.NewPersistenceError("decode latest pointer", err).
			WithBackend("file").WithPath(fs.pointerPath(projectID))
	}
	return &ptr, nil
}

// newCheckpointID returns a sortable unique checkpoint identifier.
func newCheckpointID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("cp-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("cp-%d-%s", time.Now().UnixNano(), hex.EncodeToString(b))
}

// atomicWriteFile writes data to a file atomically by writing to a temporary
// file first, then renaming. This ensures the target file is never in a
// partially-written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
