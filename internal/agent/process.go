// Package agent supervises one spawned coding-agent process bound to one
// worktree. The supervisor observes the process rather than steering it: it
// captures output, tracks heartbeats, and records the exit outcome, while the
// agent itself does the actual work.
package agent

import (
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/orchestra-dev/orchestra/internal/errors"
	"github.com/orchestra-dev/orchestra/internal/logging"
)

// Command describes an agent process to launch.
type Command struct {
	// TaskID identifies the task the process works on.
	TaskID string
	// Prompt is the free-text instruction handed to the agent.
	Prompt string
	// Dir is the working directory, normally the task's worktree.
	Dir string
	// Binary is the agent executable (default "claude").
	Binary string
	// AllowedTools are tool allowlist patterns passed through to the agent.
	AllowedTools []string
	// ResumeSessionID, when set, resumes an existing agent session instead
	// of starting a fresh one.
	ResumeSessionID string
	// OutputBufferSize is the ring buffer capacity in bytes.
	OutputBufferSize int
}

// Args builds the agent command line.
func (c Command) Args() []string {
	var args []string
	if c.ResumeSessionID != "" {
		args = append(args, "--resume", c.ResumeSessionID)
	}
	args = append(args, "--print", c.Prompt, "--dangerously-skip-permissions")
	for _, pattern := range c.AllowedTools {
		args = append(args, "--allowedTools", pattern)
	}
	return args
}

func (c Command) binary() string {
	if c.Binary == "" {
		return "claude"
	}
	return c.Binary
}

// Process supervises a launched agent process. All methods are safe for
// concurrent use; Wait-side bookkeeping happens exactly once in a dedicated
// goroutine and everything else reads through the mutex.
type Process struct {
	taskID    string
	cmd       *exec.Cmd
	output    *RingBuffer
	logger    *logging.Logger
	startedAt time.Time
	done      chan struct{}

	mu         sync.Mutex
	lastOutput time.Time
	exitCode   int
	exited     bool
	cancelled  bool
}

// heartbeatWriter tees process output into the ring buffer while refreshing
// the heartbeat timestamp. Any output chunk counts as a liveness signal.
type heartbeatWriter struct {
	p *Process
}

func (w heartbeatWriter) Write(b []byte) (int, error) {
	w.p.mu.Lock()
	w.p.lastOutput = time.Now()
	w.p.mu.Unlock()
	return w.p.output.Write(b)
}

// Launch starts the agent process described by cmd. The returned Process is
// already running; launch failures are reported as an error and nothing is
// left behind.
func Launch(cmd Command, logger *logging.Logger) (*Process, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	bufSize := cmd.OutputBufferSize
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}

	p := &Process{
		taskID: cmd.TaskID,
		output: NewRingBuffer(bufSize),
		logger: logger.WithTask(cmd.TaskID),
		done:   make(chan struct{}),
	}

	c := exec.Command(cmd.binary(), cmd.Args()...)
	c.Dir = cmd.Dir
	w := heartbeatWriter{p: p}
	c.Stdout = w
	c.Stderr = w
	setProcessGroup(c)

	if err := c.Start(); err != nil {
		return nil, errors.NewAgentError("could not start agent process", errors.Join(errors.ErrLaunchFailed, err)).
			WithTaskID(cmd.TaskID)
	}

	now := time.Now()
	p.cmd = c
	p.startedAt = now
	p.lastOutput = now

	p.logger.Info("agent launched",
		"pid", c.Process.Pid,
		"dir", cmd.Dir,
		"prompt", truncatePrompt(cmd.Prompt))

	go p.wait()

	return p, nil
}

// wait reaps the process exactly once and records its outcome.
func (p *Process) wait() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.exited = true
	p.exitCode = p.cmd.ProcessState.ExitCode()
	cancelled := p.cancelled
	p.mu.Unlock()
	close(p.done)

	switch {
	case cancelled:
		p.logger.Info("agent terminated by cancel", "exit_code", p.exitCode)
	case err != nil:
		p.logger.Warn("agent exited with error", "exit_code", p.exitCode, "error", err)
	default:
		p.logger.Info("agent completed", "exit_code", p.exitCode)
	}
}

// TaskID returns the task this process works on.
func (p *Process) TaskID() string {
	return p.taskID
}

// PID returns the OS process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// StartedAt returns the launch time.
func (p *Process) StartedAt() time.Time {
	return p.startedAt
}

// Done returns a channel closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Alive reports whether the process is still running.
func (p *Process) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.exited
}

// ExitCode returns the process exit code. The second return is false while
// the process is still running.
func (p *Process) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.exited {
		return 0, false
	}
	return p.exitCode, true
}

// Cancelled reports whether Cancel was requested for this process.
func (p *Process) Cancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

// LastHeartbeat returns the time of the most recent liveness signal: the last
// output chunk, or the launch time if the agent has not produced output yet.
func (p *Process) LastHeartbeat() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOutput
}

// Output returns a copy of the captured output tail.
func (p *Process) Output() []byte {
	return p.output.Bytes()
}

// Cancel requests termination: SIGTERM to the process group, then SIGKILL if
// the process is still alive after the grace period. Cancel blocks until the
// process has exited and is safe to call on an already-exited process.
func (p *Process) Cancel(grace time.Duration) error {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return errors.NewAgentError("cannot cancel", errors.ErrNotRunning).
			WithTaskID(p.taskID).WithPID(p.PID())
	}
	p.cancelled = true
	p.mu.Unlock()

	p.logger.Info("cancelling agent", "pid", p.PID(), "grace", grace.String())

	if err := TerminateGroup(p.PID()); err != nil {
		p.logger.Warn("SIGTERM failed", "error", err)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}

	p.logger.Warn("grace period expired, killing agent", "pid", p.PID())
	if err := KillGroup(p.PID()); err != nil {
		p.logger.Warn("SIGKILL failed", "error", err)
	}
	<-p.done
	return nil
}

func truncatePrompt(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 80 {
		return s[:77] + "..."
	}
	return s
}
