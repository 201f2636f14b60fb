// This file contains utilities for reading the reporter's day-partitioned
// logs back for post-hoc debugging: correlating an error ID from a failed
// run with the full structured record, and filtering events by level or time.
package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrorFilter defines criteria for filtering error records.
type ErrorFilter struct {
	// ErrorID filters to the record with this exact ID.
	// Empty string means no ID filtering.
	ErrorID string

	// Context filters to records whose context contains this substring.
	// Empty string means no context filtering.
	Context string

	// Since filters to records at or after this time.
	// Zero value means no time filtering.
	Since time.Time
}

// ReadErrors reads every error record under dir, newest first.
// Partitions are discovered by filename; unreadable or malformed lines are
// skipped rather than failing the whole read.
func ReadErrors(dir string) ([]ErrorRecord, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "errors-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("glob error partitions: %w", err)
	}

	var records []ErrorRecord
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var rec ErrorRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		f.Close()
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// FilterErrors returns the records matching every set criterion in filter.
func FilterErrors(records []ErrorRecord, filter ErrorFilter) []ErrorRecord {
	var out []ErrorRecord
	for _, rec := range records {
		if filter.ErrorID != "" && rec.ErrorID != filter.ErrorID {
			continue
		}
		if filter.Context != "" && !strings.Contains(rec.Context, filter.Context) {
			continue
		}
		if !filter.Since.IsZero() && rec.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// FindError locates the record with the given error ID, or nil if absent.
func FindError(dir, errorID string) (*ErrorRecord, error) {
	records, err := ReadErrors(dir)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ErrorID == errorID {
			return &records[i], nil
		}
	}
	return nil, nil
}

// ReadEvents reads every event record under dir at or above minLevel,
// oldest first.
func ReadEvents(dir string, minLevel EventLevel) ([]EventRecord, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "events-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("glob event partitions: %w", err)
	}

	var records []EventRecord
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var rec EventRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				continue
			}
			if ParseEventLevel(rec.Level) < minLevel {
				continue
			}
			records = append(records, rec)
		}
		f.Close()
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, nil
}
