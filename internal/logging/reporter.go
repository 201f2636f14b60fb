// This file contains the error reporter: an append-only, day-partitioned
// structured log of errors and events, with correlation IDs issued per error.
// The reporter is intentionally infallible from the caller's perspective: a
// failure to write the log is mirrored to the console and then dropped.
package logging

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Iron-Ham/planforge/internal/errors"
)

// EventLevel orders event severities for the reporter's minimum-level filter.
// Lower values are more verbose.
type EventLevel int

const (
	EventDebug EventLevel = iota
	EventInfo
	EventWarn
	EventError
)

// String returns the string representation of the event level.
func (l EventLevel) String() string {
	switch l {
	case EventDebug:
		return "debug"
	case EventInfo:
		return "info"
	case EventWarn:
		return "warn"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseEventLevel converts a string to an EventLevel, defaulting to EventInfo.
func ParseEventLevel(s string) EventLevel {
	switch s {
	case "debug", "DEBUG":
		return EventDebug
	case "info", "INFO":
		return EventInfo
	case "warn", "WARN":
		return EventWarn
	case "error", "ERROR":
		return EventError
	default:
		return EventInfo
	}
}

// ErrorRecord is one line of the error log.
type ErrorRecord struct {
	ErrorID   string         `json:"error_id"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message"`
	Context   string         `json:"context,omitempty"`
	Severity  string         `json:"severity,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EventRecord is one line of the event log.
type EventRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Reporter writes errors and events to append-only JSONL files partitioned
// by day (errors-YYYY-MM-DD.jsonl, events-YYYY-MM-DD.jsonl) and mirrors
// error summaries to a console writer. It is safe for concurrent use.
//
// Reporter methods never return errors and never panic: the reporter is the
// last line of defense and must not take the caller down with it.
type Reporter struct {
	mu       sync.Mutex
	dir      string
	minLevel EventLevel
	console  io.Writer
	now      func() time.Time
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithMinLevel sets the minimum event level recorded by RecordEvent.
// Events below the threshold are dropped. Errors are always recorded.
func WithMinLevel(level EventLevel) ReporterOption {
	return func(r *Reporter) { r.minLevel = level }
}

// WithConsole sets the writer that receives one-line error summaries.
// Defaults to os.Stderr. Use io.Discard to silence console output.
func WithConsole(w io.Writer) ReporterOption {
	return func(r *Reporter) { r.console = w }
}

// WithClock overrides the reporter's time source, for tests.
func WithClock(now func() time.Time) ReporterOption {
	return func(r *Reporter) { r.now = now }
}

// NewReporter creates a Reporter writing under dir. The directory is created
// lazily on first write, so construction cannot fail.
func NewReporter(dir string, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		dir:      dir,
		minLevel: EventInfo,
		console:  os.Stderr,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LogError records err with its context and metadata, returning the issued
// error ID for correlation. The ID format is err-<unix-millis>-<hex suffix>;
// IDs are unique but not monotonic.
//
// LogError never fails: if the log file cannot be written, the summary still
// goes to the console and the ID is still returned.
func (r *Reporter) LogError(err error, context string, metadata map[string]any) string {
	ts := r.now()
	id := fmt.Sprintf("err-%d-%s", ts.UnixMilli(), randomSuffix())

	rec := ErrorRecord{
		ErrorID:   id,
		Timestamp: ts,
		Context:   context,
		Metadata:  metadata,
	}
	if err != nil {
		rec.Message = err.Error()
		rec.Severity = errors.SeverityOf(err).String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.appendLine(r.partitionPath("errors", ts), rec)
	fmt.Fprintf(r.console, "[%s] %s: %s\n", id, context, rec.Message)
	return id
}

// RecordEvent records a lower-severity structured event, filtered by the
// configured minimum level. Like LogError, it never fails.
func (r *Reporter) RecordEvent(level EventLevel, message string, data map[string]any) {
	if level < r.minLevel {
		return
	}

	ts := r.now()
	rec := EventRecord{
		Timestamp: ts,
		Level:     level.String(),
		Message:   message,
		Data:      data,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.appendLine(r.partitionPath("events", ts), rec)
}

// partitionPath returns the day-partitioned file path for the given prefix.
func (r *Reporter) partitionPath(prefix string, ts time.Time) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s-%s.jsonl", prefix, ts.Format("2006-01-02")))
}

// appendLine marshals v and appends it as one line to path. Write failures
// are mirrored to the console and swallowed. The caller must hold the mutex.
func (r *Reporter) appendLine(path string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(r.console, "reporter: marshal failed: %v\n", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		fmt.Fprintf(r.console, "reporter: mkdir failed: %v\n", err)
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(r.console, "reporter: open failed: %v\n", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(r.console, "reporter: write failed: %v\n", err)
	}
}

// randomSuffix returns a short random hex string for error ID uniqueness.
func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// Extremely unlikely; fall back to a constant so the ID is still usable.
		return "00000000"
	}
	return hex.EncodeToString(b)
}
