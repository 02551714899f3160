package state

import "time"

// AgentRecord is the durable lifecycle record for one task's execution.
// It is the on-disk shape and the unit the store persists.
//
// Invariants maintained by the orchestrator:
//   - PID is non-zero iff Status is running.
//   - EndedAt is non-nil iff Status is terminal.
//   - BranchName and WorktreePath are set at most once while the task is active.
type AgentRecord struct {
	TaskID          string     `json:"task_id"`
	Description     string     `json:"description"`
	BranchName      string     `json:"branch_name"`
	WorktreePath    string     `json:"worktree_path,omitempty"`
	Status          Status     `json:"status"`
	PID             int        `json:"pid,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	ExitCode        *int       `json:"exit_code,omitempty"`
	// Seq is the admission sequence number, monotonic within one state file.
	// Reconciliation requeues pending tasks in Seq order so FIFO admission
	// survives a restart.
	Seq int64 `json:"seq,omitempty"`
	// Reason carries a human-readable explanation for failed and cancelled
	// tasks (conflict details, launch errors, "process lost" after recovery).
	Reason string `json:"reason,omitempty"`
}

// Clone returns a deep copy of the record. Snapshots hand out clones so
// readers can never mutate store-owned data.
func (r *AgentRecord) Clone() AgentRecord {
	out := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.LastHeartbeatAt != nil {
		t := *r.LastHeartbeatAt
		out.LastHeartbeatAt = &t
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		out.EndedAt = &t
	}
	if r.ExitCode != nil {
		c := *r.ExitCode
		out.ExitCode = &c
	}
	return out
}

// HeartbeatAge returns how long ago the last heartbeat was observed,
// relative to now. Returns a negative duration if no heartbeat exists.
func (r *AgentRecord) HeartbeatAge(now time.Time) time.Duration {
	if r.LastHeartbeatAt == nil {
		return -1
	}
	return now.Sub(*r.LastHeartbeatAt)
}
