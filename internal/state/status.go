package state

import (
	"encoding/json"
	"fmt"

	"github.com/orchestra-dev/orchestra/internal/errors"
)

// Status is the lifecycle status of a task. The set is closed: values outside
// it are rejected when decoding the durable state file.
type Status string

const (
	// StatusPending indicates the task is queued and waiting for a free slot.
	StatusPending Status = "pending"

	// StatusRunning indicates the agent process is launched and alive.
	StatusRunning Status = "running"

	// StatusCompleted indicates the agent process exited with code 0.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the agent process exited non-zero, or the
	// launch itself failed.
	StatusFailed Status = "failed"

	// StatusStale indicates no heartbeat within the configured threshold
	// even though the process handle reports itself alive. Advisory only:
	// the process is flagged, never killed automatically.
	StatusStale Status = "stale"

	// StatusCancelled indicates an operator requested termination.
	StatusCancelled Status = "cancelled"
)

// ParseStatus converts a string into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusStale, StatusCancelled:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrUnknownStatus, s)
	}
}

// Terminal reports whether the status is terminal from the scheduler's point
// of view. Stale counts as terminal for scheduling even though the underlying
// OS process may still be alive.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusStale:
		return true
	default:
		return false
	}
}

// String returns the status as a string.
func (s Status) String() string {
	return string(s)
}

// UnmarshalJSON decodes a status, rejecting values outside the closed enum.
// This is the load-boundary check: a state file written by a newer or foreign
// tool fails loudly here instead of propagating junk statuses.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
