// Package errors provides centralized error definitions for the Orchestra
// codebase. It defines domain-specific errors for the git, agent, and state
// subsystems, semantic error types, and classification helpers.
//
// Creating errors:
//
//	// Domain-specific error
//	err := errors.NewGitError("failed to create worktree", errors.ErrBranchExists)
//	err = err.WithBranch("orchestra/fix-auth-3f2a")
//
//	// Semantic error
//	err := errors.NewNotFoundError("task", "fix-auth-3f2a")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrBranchExists) { ... }
//
//	var gitErr *errors.GitError
//	if errors.As(err, &gitErr) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Git-related sentinel errors
var (
	// ErrNotGitRepository indicates that the directory is not a git repository.
	// This is fatal for a whole spawn batch: no task can proceed without one.
	ErrNotGitRepository = New("not a git repository")
	// ErrWorktreeExists indicates that a worktree directory already exists.
	ErrWorktreeExists = New("worktree already exists")
	// ErrWorktreeNotFound indicates that a worktree could not be found.
	ErrWorktreeNotFound = New("worktree not found")
	// ErrBranchExists indicates that a branch already exists.
	ErrBranchExists = New("branch already exists")
	// ErrDirtyWorktree indicates that a worktree has uncommitted changes.
	// Cleanup reports this and skips the worktree unless forced.
	ErrDirtyWorktree = New("worktree has uncommitted changes")
)

// Agent-related sentinel errors
var (
	// ErrLaunchFailed indicates that the agent subprocess could not be started.
	ErrLaunchFailed = New("agent failed to launch")
	// ErrNotRunning indicates that an operation requires a running agent.
	ErrNotRunning = New("agent not running")
	// ErrAlreadyTerminal indicates a transition was attempted on a task that
	// has already reached a terminal status.
	ErrAlreadyTerminal = New("task already in terminal status")
)

// State-related sentinel errors
var (
	// ErrTaskNotFound indicates that no record exists for a task id.
	ErrTaskNotFound = New("task not found")
	// ErrStateCorrupted indicates that the durable state file could not be decoded.
	ErrStateCorrupted = New("state file corrupted")
	// ErrUnknownStatus indicates a status value outside the closed enum was
	// encountered at the load boundary.
	ErrUnknownStatus = New("unknown status value")
)

// General sentinel errors
var (
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all domain error types.
type baseError struct {
	message string
	cause   error
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// GitError represents errors from git operations (worktrees, branches).
//
// Example:
//
//	err := errors.NewGitError("failed to create worktree", errors.ErrWorktreeExists)
//	err = err.WithBranch("orchestra/fix-x").WithWorktree("/path/to/worktree")
type GitError struct {
	baseError
	Branch    string
	Worktree  string
	GitOutput string // Captured git command output
}

// NewGitError creates a new GitError.
func NewGitError(message string, cause error) *GitError {
	return &GitError{baseError: baseError{message: message, cause: cause}}
}

// WithBranch adds a branch name to the error context.
func (e *GitError) WithBranch(branch string) *GitError {
	e.Branch = branch
	return e
}

// WithWorktree adds a worktree path to the error context.
func (e *GitError) WithWorktree(path string) *GitError {
	e.Worktree = path
	return e
}

// WithGitOutput adds captured git command output to the error context.
func (e *GitError) WithGitOutput(output string) *GitError {
	e.GitOutput = strings.TrimSpace(output)
	return e
}

// Error returns the formatted error message.
func (e *GitError) Error() string {
	var parts []string
	if e.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch=%s", e.Branch))
	}
	if e.Worktree != "" {
		parts = append(parts, fmt.Sprintf("worktree=%s", e.Worktree))
	}

	prefix := "git error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("git error [%s]", strings.Join(parts, ", "))
	}

	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.GitOutput != "" {
		msg = fmt.Sprintf("%s\ngit output: %s", msg, e.GitOutput)
	}

	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Is checks if this error matches the target.
func (e *GitError) Is(target error) bool {
	if _, ok := target.(*GitError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AgentError represents errors related to agent process supervision.
//
// Example:
//
//	err := errors.NewAgentError("launch failed", errors.ErrLaunchFailed)
//	err = err.WithTaskID("fix-auth-3f2a").WithPID(4321)
type AgentError struct {
	baseError
	TaskID string
	PID    int
}

// NewAgentError creates a new AgentError.
func NewAgentError(message string, cause error) *AgentError {
	return &AgentError{baseError: baseError{message: message, cause: cause}}
}

// WithTaskID adds a task id to the error context.
func (e *AgentError) WithTaskID(id string) *AgentError {
	e.TaskID = id
	return e
}

// WithPID adds a process id to the error context.
func (e *AgentError) WithPID(pid int) *AgentError {
	e.PID = pid
	return e
}

// Error returns the formatted error message.
func (e *AgentError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.PID != 0 {
		parts = append(parts, fmt.Sprintf("pid=%d", e.PID))
	}

	prefix := "agent error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("agent error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *AgentError) Is(target error) bool {
	if _, ok := target.(*AgentError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// StateError represents errors from the durable state store. Store-level I/O
// failures are escalated to the caller of the mutating operation: silently
// losing durability would violate the crash-recovery contract.
type StateError struct {
	baseError
	TaskID string
	Path   string
}

// NewStateError creates a new StateError.
func NewStateError(message string, cause error) *StateError {
	return &StateError{baseError: baseError{message: message, cause: cause}}
}

// WithTaskID adds a task id to the error context.
func (e *StateError) WithTaskID(id string) *StateError {
	e.TaskID = id
	return e
}

// WithPath adds the state file path to the error context.
func (e *StateError) WithPath(path string) *StateError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *StateError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}

	prefix := "state error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("state error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StateError) Is(target error) bool {
	if _, ok := target.(*StateError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message: fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{baseError: baseError{message: message}}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsConflict returns true if the error indicates a branch or worktree that
// already exists. Conflicts fail the individual task, never the batch.
func IsConflict(err error) bool {
	return Is(err, ErrBranchExists) || Is(err, ErrWorktreeExists)
}

// IsFatal returns true if the error invalidates a whole spawn batch rather
// than a single task. Only the missing-repository condition qualifies: every
// sibling task needs the same repository.
func IsFatal(err error) bool {
	return Is(err, ErrNotGitRepository)
}

// IsDomainError returns true if the error is a domain-specific error
// (GitError, AgentError, or StateError).
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}

	var gitErr *GitError
	var agentErr *AgentError
	var stateErr *StateError

	return As(err, &gitErr) || As(err, &agentErr) || As(err, &stateErr)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with an additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
