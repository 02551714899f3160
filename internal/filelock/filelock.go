// Package filelock guards the durable state file against concurrent
// orchestrator processes. Two processes writing the same state file would
// silently overwrite each other's transitions; the lock makes the second
// one fail fast with the holder's identity instead.
//
// The lock is a JSON sidecar next to the state file, created with O_EXCL.
// A lock whose owning process is gone is stale and is reclaimed on the
// next acquire.
package filelock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/orchestra-dev/orchestra/internal/logging"
)

// lockSuffix is appended to the state file path to form the lock path.
const lockSuffix = ".lock"

// ErrLocked is returned when the state file is held by another live process.
var ErrLocked = errors.New("state file is locked by another process")

// Lock represents an acquired state file lock
type Lock struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	// Internal fields (not serialized)
	lockPath string
	logger   *logging.Logger
}

// Acquire attempts to take an exclusive lock for the state file at statePath.
// Returns ErrLocked if another live process holds it; a lock left behind by
// a dead process is removed and re-acquired. The logger may be nil.
func Acquire(statePath string, logger *logging.Logger) (*Lock, error) {
	lockPath := statePath + lockSuffix

	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	// Check for existing lock
	if existing, err := Read(lockPath); err == nil {
		if isProcessAlive(existing.PID) {
			return nil, fmt.Errorf("%w: PID %d on %s", ErrLocked, existing.PID, existing.Hostname)
		}
		// Stale lock - remove it
		oldPID := existing.PID
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		if logger != nil {
			logger.Warn("stale state lock cleaned", "old_pid", oldPID)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	lock := &Lock{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		lockPath:  lockPath,
		logger:    logger,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// O_EXCL fails if the file appeared between the check above and here.
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			if existing, readErr := Read(lockPath); readErr == nil {
				return nil, fmt.Errorf("%w: PID %d on %s", ErrLocked, existing.PID, existing.Hostname)
			}
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	if logger != nil {
		logger.Info("state lock acquired", "pid", lock.PID)
	}
	return lock, nil
}

// Release removes the lock file. Safe to call multiple times; a lock taken
// over by another process in the meantime is left alone.
func (l *Lock) Release() error {
	if l == nil || l.lockPath == "" {
		return nil
	}

	existing, err := Read(l.lockPath)
	if err != nil {
		return nil
	}
	if existing.PID != l.PID {
		return nil
	}

	if err := os.Remove(l.lockPath); err != nil {
		return err
	}
	if l.logger != nil {
		l.logger.Info("state lock released", "pid", l.PID)
	}
	return nil
}

// Read reads a lock file and returns the Lock info.
func Read(lockPath string) (*Lock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}

	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.lockPath = lockPath
	return &lock, nil
}

// Holder reports the lock currently protecting statePath, if any. A lock
// whose owning process is dead does not count as held.
func Holder(statePath string) (*Lock, bool) {
	lock, err := Read(statePath + lockSuffix)
	if err != nil {
		return nil, false
	}
	if !isProcessAlive(lock.PID) {
		return lock, false
	}
	return lock, true
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	// On Unix, sending signal 0 checks if process exists without affecting it
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
