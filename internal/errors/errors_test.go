package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestGitErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *GitError
		contains []string
	}{
		{
			name:     "plain message",
			err:      NewGitError("failed to create worktree", nil),
			contains: []string{"git error", "failed to create worktree"},
		},
		{
			name:     "with branch",
			err:      NewGitError("failed to create worktree", ErrBranchExists).WithBranch("orchestra/fix-x"),
			contains: []string{"branch=orchestra/fix-x", "branch already exists"},
		},
		{
			name: "with worktree and output",
			err: NewGitError("remove failed", nil).
				WithWorktree("/tmp/wt").
				WithGitOutput("fatal: working tree dirty\n"),
			contains: []string{"worktree=/tmp/wt", "git output: fatal: working tree dirty"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, want substring %q", msg, want)
				}
			}
		})
	}
}

func TestSentinelUnwrapping(t *testing.T) {
	err := NewGitError("create failed", ErrWorktreeExists).WithBranch("orchestra/a")

	if !Is(err, ErrWorktreeExists) {
		t.Error("expected Is(err, ErrWorktreeExists) to be true")
	}
	if Is(err, ErrDirtyWorktree) {
		t.Error("expected Is(err, ErrDirtyWorktree) to be false")
	}

	var gitErr *GitError
	if !As(err, &gitErr) {
		t.Fatal("expected As to extract *GitError")
	}
	if gitErr.Branch != "orchestra/a" {
		t.Errorf("Branch = %q, want %q", gitErr.Branch, "orchestra/a")
	}
}

func TestSentinelSurvivesWrapping(t *testing.T) {
	inner := NewAgentError("spawn", ErrLaunchFailed).WithTaskID("t1")
	wrapped := Wrapf(inner, "task %s", "t1")

	if !Is(wrapped, ErrLaunchFailed) {
		t.Error("wrapping should preserve the sentinel")
	}

	var agentErr *AgentError
	if !As(wrapped, &agentErr) {
		t.Fatal("expected As to extract *AgentError through the wrap")
	}
	if agentErr.TaskID != "t1" {
		t.Errorf("TaskID = %q, want %q", agentErr.TaskID, "t1")
	}
}

func TestIsConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"branch exists", NewGitError("x", ErrBranchExists), true},
		{"worktree exists", NewGitError("x", ErrWorktreeExists), true},
		{"wrapped conflict", fmt.Errorf("outer: %w", ErrBranchExists), true},
		{"dirty worktree", NewGitError("x", ErrDirtyWorktree), false},
		{"nil cause", NewGitError("x", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConflict(tt.err); got != tt.want {
				t.Errorf("IsConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(NewGitError("open repo", ErrNotGitRepository)) {
		t.Error("missing repository must be fatal")
	}
	if IsFatal(NewGitError("create", ErrBranchExists)) {
		t.Error("a per-task conflict must not be fatal")
	}
}

func TestIsDomainError(t *testing.T) {
	if !IsDomainError(NewStateError("write", nil)) {
		t.Error("StateError should classify as domain error")
	}
	if IsDomainError(New("plain")) {
		t.Error("plain error should not classify as domain error")
	}
	if IsDomainError(nil) {
		t.Error("nil should not classify as domain error")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("task", "abc123")
	want := "task 'abc123' not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	var nf *NotFoundError
	if !As(err, &nf) {
		t.Fatal("expected As to extract *NotFoundError")
	}
}
