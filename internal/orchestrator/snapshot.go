package orchestrator

import (
	"time"

	"github.com/orchestra-dev/orchestra/internal/state"
)

// TaskView is one task's row in a snapshot. EffectiveStatus folds lazy
// staleness evaluation into the durable status: a Running record whose
// heartbeat is older than the configured threshold reports as Stale here
// while the store keeps it Running, because staleness is advisory and the
// process is never reaped automatically.
type TaskView struct {
	Record          state.AgentRecord
	EffectiveStatus state.Status
	// HeartbeatAge is how long ago the last liveness signal was observed.
	// Negative when no heartbeat exists yet.
	HeartbeatAge time.Duration
	// OutputTail is the most recent captured output for attached processes.
	// Empty for tasks from a previous run, whose output was not observed.
	OutputTail string
}

// Snapshot is a read-only projection of all task records at a point in time.
// Readers never mutate it and two snapshots never share memory.
type Snapshot struct {
	TakenAt time.Time
	Tasks   []TaskView
}

// Counts tallies tasks by effective status.
func (s Snapshot) Counts() map[state.Status]int {
	counts := make(map[state.Status]int, 6)
	for _, t := range s.Tasks {
		counts[t.EffectiveStatus]++
	}
	return counts
}

// ActiveCount returns the number of tasks not yet terminal.
func (s Snapshot) ActiveCount() int {
	n := 0
	for _, t := range s.Tasks {
		if !t.EffectiveStatus.Terminal() {
			n++
		}
	}
	return n
}

// TaskResult is the collection record for one terminal task.
type TaskResult struct {
	TaskID       string `json:"task_id"`
	BranchName   string `json:"branch_name"`
	WorktreePath string `json:"worktree_path,omitempty"`
	Status       string `json:"status"`
	ExitCode     *int   `json:"exit_code,omitempty"`
	Reason       string `json:"reason,omitempty"`
}
