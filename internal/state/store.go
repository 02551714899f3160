// Package state provides the durable task record store. Records live in a
// single JSON document keyed by task id, written via temp-file-then-rename so
// a crash mid-write never corrupts previously durable state: a reader sees
// either the pre- or post-write content, never a partial file.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/orchestra-dev/orchestra/internal/errors"
)

// fileFormat is the on-disk shape of the state file.
type fileFormat struct {
	Tasks     map[string]*AgentRecord `json:"tasks"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// Store is the durable mapping from task id to AgentRecord.
//
// All mutating calls are serialized behind the write lock; readers may run
// concurrently with each other but never interleave with a write. Every
// mutation is persisted before it returns.
type Store struct {
	path    string
	mu      sync.RWMutex
	records map[string]*AgentRecord
}

// NewStore creates a store backed by the JSON file at path. Call Load before
// use; an absent file is an empty record set, not an error.
func NewStore(path string) *Store {
	return &Store{
		path:    path,
		records: make(map[string]*AgentRecord),
	}
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the durable record set from disk, replacing any in-memory state.
// An absent file yields an empty set. Records with status values outside the
// closed enum fail the load.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.records = make(map[string]*AgentRecord)
			return nil
		}
		return errors.NewStateError("failed to read state file", err).WithPath(s.path)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		// Status.UnmarshalJSON surfaces ErrUnknownStatus through here.
		if errors.Is(err, errors.ErrUnknownStatus) {
			return errors.NewStateError("failed to decode state file", err).WithPath(s.path)
		}
		return errors.NewStateError("failed to decode state file",
			fmt.Errorf("%w: %v", errors.ErrStateCorrupted, err)).WithPath(s.path)
	}

	records := make(map[string]*AgentRecord, len(f.Tasks))
	for id, rec := range f.Tasks {
		if rec == nil {
			continue
		}
		if rec.TaskID == "" {
			rec.TaskID = id
		}
		if rec.TaskID != id {
			return errors.NewStateError("task id mismatch",
				fmt.Errorf("%w: key %q vs record %q", errors.ErrStateCorrupted, id, rec.TaskID)).WithPath(s.path)
		}
		records[id] = rec
	}
	s.records = records
	return nil
}

// Upsert inserts or fully replaces the record for rec.TaskID and persists.
// Idempotent: re-upserting an identical record is harmless.
func (s *Store) Upsert(rec AgentRecord) error {
	if rec.TaskID == "" {
		return errors.NewValidationError("record task id must not be empty").WithField("task_id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := rec.Clone()
	s.records[rec.TaskID] = &clone
	return s.persistLocked()
}

// Get returns a copy of the record for the given task id.
func (s *Store) Get(taskID string) (AgentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[taskID]
	if !ok {
		return AgentRecord{}, false
	}
	return rec.Clone(), true
}

// All returns copies of every record, ordered by start time then task id so
// listings are stable across calls.
func (s *Store) All() []AgentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]AgentRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].StartedAt, out[j].StartedAt
		switch {
		case si == nil && sj == nil:
			return out[i].TaskID < out[j].TaskID
		case si == nil:
			return false
		case sj == nil:
			return true
		case si.Equal(*sj):
			return out[i].TaskID < out[j].TaskID
		default:
			return si.Before(*sj)
		}
	})
	return out
}

// Remove deletes the record for the given task id and persists. Removing a
// task that does not exist is a no-op, keeping cleanup idempotent.
func (s *Store) Remove(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[taskID]; !ok {
		return nil
	}
	delete(s.records, taskID)
	return s.persistLocked()
}

// persistLocked writes the current record set to disk. Callers must hold the
// write lock.
func (s *Store) persistLocked() error {
	f := fileFormat{
		Tasks:     s.records,
		UpdatedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return errors.NewStateError("failed to marshal state", err).WithPath(s.path)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.NewStateError("failed to create state directory", err).WithPath(s.path)
	}

	if err := atomicWriteFile(s.path, data, 0644); err != nil {
		return errors.NewStateError("failed to write state file", err).WithPath(s.path)
	}
	return nil
}

// atomicWriteFile writes data to a file atomically by writing to a temporary
// file first, then renaming. This ensures the target file is never in a
// partially-written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	// Create temp file in same directory to ensure atomic rename
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on any error
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

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
