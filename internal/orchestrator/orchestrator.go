// Package orchestrator owns the pool of concurrently running agent processes.
// It drives the worktree manager and the state store, enforces the
// parallelism ceiling with FIFO admission, and is the single place where
// lifecycle transitions happen. Presentation layers only ever see plain
// snapshots; process handles never leak upward.
package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/orchestra-dev/orchestra/internal/agent"
	"github.com/orchestra-dev/orchestra/internal/config"
	"github.com/orchestra-dev/orchestra/internal/errors"
	"github.com/orchestra-dev/orchestra/internal/logging"
	"github.com/orchestra-dev/orchestra/internal/state"
	"github.com/orchestra-dev/orchestra/internal/worktree"
)

// WorktreeManager is the slice of worktree operations the orchestrator needs.
type WorktreeManager interface {
	BranchFor(taskID string) string
	Create(branch, baseRef string) (worktree.Descriptor, error)
	Remove(d worktree.Descriptor, force bool) error
	ListActive() ([]worktree.Descriptor, error)
	Prune() error
}

// launchFunc matches agent.Launch; swapped in tests.
type launchFunc func(cmd agent.Command, logger *logging.Logger) (*agent.Process, error)

// queuedTask is a task admitted but waiting for a free concurrency slot.
type queuedTask struct {
	taskID          string
	prompt          string
	resumeSessionID string
	// dir overrides the worktree as working directory (resumed sessions
	// run in their original project directory).
	dir string
}

// Orchestrator coordinates tasks across the worktree manager, the durable
// store, and live agent processes. One instance owns all mutable
// bookkeeping; every transition flows through its methods.
type Orchestrator struct {
	cfg       *config.Config
	worktrees WorktreeManager
	store     *state.Store
	logger    *logging.Logger

	launch launchFunc
	now    func() time.Time

	mu      sync.Mutex
	procs   map[string]*agent.Process
	queue   []queuedTask
	running int
	limit   int
	// seq is the admission counter persisted into each record; Reconcile
	// resumes it from the highest value in the store.
	seq int64
}

// New creates an Orchestrator. The store must already be loaded; call
// Reconcile before spawning to settle records from a previous run.
func New(cfg *config.Config, worktrees WorktreeManager, store *state.Store, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Orchestrator{
		cfg:       cfg,
		worktrees: worktrees,
		store:     store,
		logger:    logger.WithComponent("orchestrator"),
		launch:    agent.Launch,
		now:       time.Now,
		procs:     make(map[string]*agent.Process),
		limit:     cfg.Agent.DefaultParallel,
	}
}

// SetParallelLimit sets the concurrency ceiling, clamped to the configured
// hard cap. Zero or negative keeps the configured default.
func (o *Orchestrator) SetParallelLimit(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n <= 0 {
		n = o.cfg.Agent.DefaultParallel
	}
	if n > o.cfg.Agent.MaxParallel {
		n = o.cfg.Agent.MaxParallel
	}
	o.limit = n
}

// Reconcile settles durable records from a previous run against the live
// process table. Running records whose pid is gone become Failed ("process
// lost"); records whose pid is still alive stay Running as detached
// processes, observable but without output capture. Pending records are
// re-admitted to the queue in their original spawn order, by persisted
// admission sequence.
func (o *Orchestrator) Reconcile() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var pending []state.AgentRecord
	for _, rec := range o.store.All() {
		if rec.Seq > o.seq {
			o.seq = rec.Seq
		}
		switch rec.Status {
		case state.StatusRunning:
			if agent.ProbePID(rec.PID) {
				o.logger.Info("recovered detached agent", "task", rec.TaskID, "pid", rec.PID)
				continue
			}
			now := o.now()
			rec.Status = state.StatusFailed
			rec.Reason = "process lost"
			rec.PID = 0
			rec.EndedAt = &now
			if err := o.store.Upsert(rec); err != nil {
				return err
			}
			o.logger.Warn("agent process lost", "task", rec.TaskID)
		case state.StatusPending:
			pending = append(pending, rec)
		}
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].Seq < pending[j].Seq })
	for _, rec := range pending {
		o.queue = append(o.queue, queuedTask{taskID: rec.TaskID, prompt: rec.Description})
		o.logger.Info("re-admitted pending task", "task", rec.TaskID)
	}
	return nil
}

// Spawn derives a task per description, records it, and admits it to the
// pool. At most the parallel limit run at once; the rest queue in Pending,
// FIFO. Per-task failures (branch conflicts, launch errors) mark that task
// Failed and never abort siblings. The returned records reflect the state
// right after admission: a mix of Running, Pending, and Failed.
func (o *Orchestrator) Spawn(descriptions []string, parallelLimit int) ([]state.AgentRecord, error) {
	o.SetParallelLimit(parallelLimit)

	o.mu.Lock()
	defer o.mu.Unlock()

	ids := make([]string, 0, len(descriptions))
	for _, desc := range descriptions {
		taskID := NewTaskID(desc)
		o.seq++
		rec := state.AgentRecord{
			TaskID:      taskID,
			Description: desc,
			BranchName:  o.worktrees.BranchFor(taskID),
			Status:      state.StatusPending,
			Seq:         o.seq,
		}
		if err := o.store.Upsert(rec); err != nil {
			return nil, err
		}
		o.queue = append(o.queue, queuedTask{taskID: taskID, prompt: desc})
		ids = append(ids, taskID)
	}

	o.scheduleLocked()

	out := make([]state.AgentRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := o.store.Get(id); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Resume admits a task that continues an existing agent session in its
// original project directory. No worktree is created; the process is
// otherwise supervised exactly like a freshly spawned one.
func (o *Orchestrator) Resume(sessionID, prompt, projectDir string) (state.AgentRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	taskID := NewTaskID(prompt)
	o.seq++
	rec := state.AgentRecord{
		TaskID:      taskID,
		Description: prompt,
		Status:      state.StatusPending,
		Seq:         o.seq,
	}
	if err := o.store.Upsert(rec); err != nil {
		return state.AgentRecord{}, err
	}
	o.queue = append(o.queue, queuedTask{
		taskID:          taskID,
		prompt:          prompt,
		resumeSessionID: sessionID,
		dir:             projectDir,
	})
	o.scheduleLocked()

	rec, _ = o.store.Get(taskID)
	return rec, nil
}

// scheduleLocked starts queued tasks while slots are free. Admission is FIFO
// by spawn request order; a slot becomes available strictly when a sibling
// reaches a terminal status.
func (o *Orchestrator) scheduleLocked() {
	for o.running < o.limit && len(o.queue) > 0 {
		next := o.queue[0]
		o.queue = o.queue[1:]
		o.startLocked(next)
	}
}

// startLocked moves one task from Pending to Running, or to Failed when the
// worktree or the launch cannot be had. Failures are recorded per task.
func (o *Orchestrator) startLocked(q queuedTask) {
	rec, ok := o.store.Get(q.taskID)
	if !ok || rec.Status != state.StatusPending {
		// Cancelled while queued, or cleaned up; nothing to start.
		return
	}

	dir := q.dir
	if q.resumeSessionID == "" {
		d, err := o.worktrees.Create(rec.BranchName, "")
		if err != nil {
			o.failLocked(rec, "worktree creation failed: "+err.Error())
			return
		}
		rec.WorktreePath = d.Path
		dir = d.Path
	}

	proc, err := o.launch(agent.Command{
		TaskID:           q.taskID,
		Prompt:           q.prompt,
		Dir:              dir,
		Binary:           o.cfg.Agent.Command,
		AllowedTools:     o.cfg.Agent.BypassPermissions,
		ResumeSessionID:  q.resumeSessionID,
		OutputBufferSize: o.cfg.Agent.OutputBufferSize,
	}, o.logger)
	if err != nil {
		o.failLocked(rec, "launch failed: "+err.Error())
		return
	}

	now := o.now()
	rec.Status = state.StatusRunning
	rec.PID = proc.PID()
	rec.StartedAt = &now
	rec.LastHeartbeatAt = &now
	if err := o.store.Upsert(rec); err != nil {
		o.logger.Error("failed to persist running record", "task", rec.TaskID, "error", err)
	}

	o.procs[q.taskID] = proc
	o.running++
	go o.monitor(proc)
}

// failLocked records a per-task failure without touching siblings.
func (o *Orchestrator) failLocked(rec state.AgentRecord, reason string) {
	now := o.now()
	rec.Status = state.StatusFailed
	rec.Reason = reason
	rec.PID = 0
	rec.EndedAt = &now
	if err := o.store.Upsert(rec); err != nil {
		o.logger.Error("failed to persist failed record", "task", rec.TaskID, "error", err)
	}
	o.logger.Warn("task failed", "task", rec.TaskID, "reason", reason)
}

// monitor follows one attached process to its end, persisting heartbeat
// observations on the way and the terminal transition at the end. Runs in
// its own goroutine per process; a hung agent never blocks status queries.
func (o *Orchestrator) monitor(proc *agent.Process) {
	interval := o.cfg.Agent.HeartbeatInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.persistHeartbeat(proc)
		case <-proc.Done():
			o.finish(proc)
			return
		}
	}
}

func (o *Orchestrator) persistHeartbeat(proc *agent.Process) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.store.Get(proc.TaskID())
	if !ok || rec.Status != state.StatusRunning {
		return
	}
	hb := proc.LastHeartbeat()
	rec.LastHeartbeatAt = &hb
	if err := o.store.Upsert(rec); err != nil {
		o.logger.Error("failed to persist heartbeat", "task", rec.TaskID, "error", err)
	}
}

// finish records a process's terminal transition and frees its slot.
func (o *Orchestrator) finish(proc *agent.Process) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.procs, proc.TaskID())
	o.running--

	rec, ok := o.store.Get(proc.TaskID())
	if ok && !rec.Status.Terminal() {
		now := o.now()
		code, _ := proc.ExitCode()
		switch {
		case proc.Cancelled():
			// Exit code is recorded only on Completed and Failed.
			rec.Status = state.StatusCancelled
		case code == 0:
			rec.Status = state.StatusCompleted
			rec.ExitCode = &code
		default:
			rec.Status = state.StatusFailed
			rec.Reason = "agent exited non-zero"
			rec.ExitCode = &code
		}
		rec.PID = 0
		rec.EndedAt = &now
		hb := proc.LastHeartbeat()
		rec.LastHeartbeatAt = &hb
		if err := o.store.Upsert(rec); err != nil {
			o.logger.Error("failed to persist terminal record", "task", rec.TaskID, "error", err)
		}
		o.logger.Info("task finished", "task", rec.TaskID, "status", rec.Status.String(), "exit_code", code)
	}

	o.scheduleLocked()
}

// Status returns a snapshot merging durable records with live process state.
// Staleness is evaluated here, at read time: a Running task whose heartbeat
// is older than the threshold reports Stale without any background timer
// having fired. The snapshot never mutates stored state.
func (o *Orchestrator) Status() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	threshold := o.cfg.Agent.StaleThreshold()

	// A detached process that has since died cannot report its exit; its
	// record transitions here, the same way startup reconciliation settles it.
	for _, rec := range o.store.All() {
		if rec.Status != state.StatusRunning {
			continue
		}
		if _, attached := o.procs[rec.TaskID]; attached {
			continue
		}
		if !agent.ProbePID(rec.PID) {
			rec.Status = state.StatusFailed
			rec.Reason = "process lost"
			rec.PID = 0
			rec.EndedAt = &now
			if err := o.store.Upsert(rec); err != nil {
				o.logger.Error("failed to settle lost process", "task", rec.TaskID, "error", err)
			}
		}
	}

	records := o.store.All()
	tasks := make([]TaskView, 0, len(records))
	for _, rec := range records {
		view := TaskView{Record: rec, EffectiveStatus: rec.Status, HeartbeatAge: -1}

		if proc, ok := o.procs[rec.TaskID]; ok {
			// Attached: the in-memory heartbeat is fresher than the
			// persisted one.
			hb := proc.LastHeartbeat()
			view.Record.LastHeartbeatAt = &hb
			view.OutputTail = string(proc.Output())
		}
		if view.Record.LastHeartbeatAt != nil {
			view.HeartbeatAge = now.Sub(*view.Record.LastHeartbeatAt)
		}
		if rec.Status == state.StatusRunning && view.HeartbeatAge > threshold {
			view.EffectiveStatus = state.StatusStale
		}
		tasks = append(tasks, view)
	}

	return Snapshot{TakenAt: now, Tasks: tasks}
}

// Collect returns results for every terminal task. It is read-only and
// repeatable: no worktree is touched, and two calls with no intervening
// transition return identical results.
func (o *Orchestrator) Collect() []TaskResult {
	snap := o.Status()

	var results []TaskResult
	for _, t := range snap.Tasks {
		if !t.Record.Status.Terminal() {
			continue
		}
		results = append(results, TaskResult{
			TaskID:       t.Record.TaskID,
			BranchName:   t.Record.BranchName,
			WorktreePath: t.Record.WorktreePath,
			Status:       t.Record.Status.String(),
			ExitCode:     t.Record.ExitCode,
			Reason:       t.Record.Reason,
		})
	}
	return results
}

// Cancel terminates a task. Running tasks get SIGTERM, then SIGKILL after
// the grace period; queued tasks are removed from the queue. The task is
// recorded Cancelled regardless of the process's own exit code. Terminal
// tasks report ErrAlreadyTerminal.
func (o *Orchestrator) Cancel(taskID string) error {
	o.mu.Lock()
	rec, ok := o.store.Get(taskID)
	if !ok {
		o.mu.Unlock()
		return errors.NewNotFoundError("task", taskID)
	}
	if rec.Status.Terminal() {
		o.mu.Unlock()
		return errors.NewAgentError("cannot cancel", errors.ErrAlreadyTerminal).WithTaskID(taskID)
	}

	if rec.Status == state.StatusPending {
		for i, q := range o.queue {
			if q.taskID == taskID {
				o.queue = append(o.queue[:i], o.queue[i+1:]...)
				break
			}
		}
		now := o.now()
		rec.Status = state.StatusCancelled
		rec.EndedAt = &now
		err := o.store.Upsert(rec)
		o.mu.Unlock()
		return err
	}

	proc, attached := o.procs[taskID]
	o.mu.Unlock()

	grace := o.cfg.Agent.CancelGrace()
	if attached {
		if err := proc.Cancel(grace); err != nil {
			return err
		}
		// Cancel returns once the process is gone. Persist the Cancelled
		// transition here instead of racing the monitor goroutine, so the
		// durable record is terminal before the caller sees success; finish
		// skips records that are already terminal.
		return o.recordCancelled(taskID)
	}

	// Detached process from a previous run: signal by pid and record the
	// transition ourselves.
	if err := agent.TerminateGroup(rec.PID); err != nil {
		o.logger.Warn("SIGTERM failed for detached agent", "task", taskID, "error", err)
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) && agent.ProbePID(rec.PID) {
		time.Sleep(100 * time.Millisecond)
	}
	if agent.ProbePID(rec.PID) {
		if err := agent.KillGroup(rec.PID); err != nil {
			o.logger.Warn("SIGKILL failed for detached agent", "task", taskID, "error", err)
		}
	}

	return o.recordCancelled(taskID)
}

// recordCancelled persists the Cancelled transition for a task whose process
// has already been terminated. A record that went terminal in the meantime is
// left alone.
func (o *Orchestrator) recordCancelled(taskID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.store.Get(taskID)
	if !ok || rec.Status.Terminal() {
		return nil
	}
	now := o.now()
	rec.Status = state.StatusCancelled
	rec.PID = 0
	rec.EndedAt = &now
	return o.store.Upsert(rec)
}

// Cleanup removes worktrees, branches, and store entries for terminal tasks
// whose id matches pattern ("*" for all). Dirty worktrees are skipped and
// reported unless force is set; other tasks proceed regardless. Re-running
// on an already-cleaned task is a no-op. Returns the ids actually cleaned.
func (o *Orchestrator) Cleanup(pattern string, force bool) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.NewValidationError("invalid cleanup pattern").WithField("pattern").WithValue(pattern)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	var cleaned []string
	var skipped error
	for _, rec := range o.store.All() {
		if !rec.Status.Terminal() || !matcher.Match(rec.TaskID) {
			continue
		}

		if rec.WorktreePath != "" {
			d := worktree.Descriptor{Path: rec.WorktreePath, Branch: rec.BranchName}
			if err := o.worktrees.Remove(d, force); err != nil {
				if errors.Is(err, errors.ErrDirtyWorktree) {
					o.logger.Warn("skipping dirty worktree", "task", rec.TaskID, "path", rec.WorktreePath)
					skipped = errors.Join(skipped, err)
					continue
				}
				o.logger.Warn("worktree removal failed", "task", rec.TaskID, "error", err)
				skipped = errors.Join(skipped, err)
				continue
			}
		}

		if err := o.store.Remove(rec.TaskID); err != nil {
			return cleaned, err
		}
		cleaned = append(cleaned, rec.TaskID)
		o.logger.Info("task cleaned", "task", rec.TaskID)
	}

	return cleaned, skipped
}

// WaitAll blocks until every task is terminal or the context is done.
// Polling keeps it independent of which processes are attached.
func (o *Orchestrator) WaitAll(ctx context.Context) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if o.Status().ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
