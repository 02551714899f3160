// Package worktree manages isolated git worktrees, one per task. Each task
// gets its own branch and checkout directory so concurrently running agents
// never share files. Nothing is cached in memory: every listing re-reads the
// repository so the view never diverges from what git believes.
package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/orchestra-dev/orchestra/internal/errors"
	"github.com/orchestra-dev/orchestra/internal/logging"
)

// Descriptor identifies one worktree the manager created.
type Descriptor struct {
	// Path is the checkout directory on disk.
	Path string
	// Branch is the branch checked out in the worktree, without refs/heads/.
	Branch string
	// Head is the commit the worktree currently points at.
	Head string
}

// Manager handles git worktree operations for a single repository.
// Worktrees live under rootDir and their branches share branchPrefix, which
// is how the manager recognizes its own worktrees and leaves foreign ones
// alone.
type Manager struct {
	repoDir      string
	rootDir      string
	branchPrefix string
	logger       *logging.Logger
}

// FindGitRoot finds the root of the git repository by traversing up from
// startDir. It returns the directory containing .git (either a directory or
// a file for worktrees).
func FindGitRoot(startDir string) (string, error) {
	dir := startDir
	for {
		gitPath := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitPath); err == nil {
			// .git can be a directory (normal repo) or a file (worktree)
			if info.IsDir() || info.Mode().IsRegular() {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.NewGitError(
				fmt.Sprintf("no repository found from %s up to filesystem root", startDir),
				errors.ErrNotGitRepository)
		}
		dir = parent
	}
}

// NewManager creates a Manager rooted at the repository enclosing startDir.
// A nil logger falls back to a no-op logger.
func NewManager(startDir, rootDir, branchPrefix string, logger *logging.Logger) (*Manager, error) {
	gitRoot, err := FindGitRoot(startDir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Manager{
		repoDir:      gitRoot,
		rootDir:      rootDir,
		branchPrefix: branchPrefix,
		logger:       logger.WithComponent("worktree"),
	}, nil
}

// RepoDir returns the repository root the manager operates on.
func (m *Manager) RepoDir() string {
	return m.repoDir
}

// PathFor returns the checkout directory a branch would be created in.
// The directory leaf is the branch name with the prefix stripped, so
// "orchestra/fix-auth-3f2a" lands in <rootDir>/fix-auth-3f2a.
func (m *Manager) PathFor(branch string) string {
	leaf := strings.TrimPrefix(branch, m.branchPrefix+"/")
	leaf = strings.ReplaceAll(leaf, "/", "-")
	return filepath.Join(m.rootDir, leaf)
}

// BranchFor returns the full branch name for a task id.
func (m *Manager) BranchFor(taskID string) string {
	return m.branchPrefix + "/" + taskID
}

// Create makes a new branch from baseRef (current HEAD when empty) and checks
// it out into a fresh directory under the manager's root. The branch and the
// directory must both be new; an existing one yields a conflict error and
// leaves the repository untouched.
func (m *Manager) Create(branch, baseRef string) (Descriptor, error) {
	path := m.PathFor(branch)

	// Pre-check both conflict conditions so the caller gets a precise error
	// instead of parsing git's message.
	if m.branchExists(branch) {
		return Descriptor{}, errors.NewGitError("cannot create worktree", errors.ErrBranchExists).
			WithBranch(branch)
	}
	if _, err := os.Stat(path); err == nil {
		return Descriptor{}, errors.NewGitError("cannot create worktree", errors.ErrWorktreeExists).
			WithBranch(branch).WithWorktree(path)
	}

	if err := os.MkdirAll(m.rootDir, 0755); err != nil {
		return Descriptor{}, errors.NewGitError("failed to create worktree root", err).WithWorktree(path)
	}

	args := []string{"worktree", "add", "-b", branch, path}
	if baseRef != "" {
		args = append(args, baseRef)
	}
	if output, err := m.git(m.repoDir, args...); err != nil {
		return Descriptor{}, errors.NewGitError("failed to create worktree", err).
			WithBranch(branch).WithWorktree(path).WithGitOutput(output)
	}

	head, err := m.git(path, "rev-parse", "HEAD")
	if err != nil {
		// The worktree exists; a missing HEAD is surprising but not fatal.
		m.logger.Warn("could not resolve worktree HEAD", "branch", branch, "error", err)
	}

	m.logger.Info("worktree created", "branch", branch, "path", path)
	return Descriptor{Path: path, Branch: branch, Head: strings.TrimSpace(head)}, nil
}

// ListActive enumerates the worktrees this manager created, recognized by the
// branch prefix. The main checkout and foreign worktrees are never included.
func (m *Manager) ListActive() ([]Descriptor, error) {
	output, err := m.git(m.repoDir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, errors.NewGitError("failed to list worktrees", err).WithGitOutput(output)
	}

	var (
		active  []Descriptor
		current Descriptor
	)
	flush := func() {
		if current.Path != "" && strings.HasPrefix(current.Branch, m.branchPrefix+"/") {
			active = append(active, current)
		}
		current = Descriptor{}
	}
	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	flush()

	return active, nil
}

// HasUncommittedChanges checks if a worktree has uncommitted changes.
func (m *Manager) HasUncommittedChanges(path string) (bool, error) {
	output, err := m.git(path, "status", "--porcelain")
	if err != nil {
		return false, errors.NewGitError("failed to check status", err).
			WithWorktree(path).WithGitOutput(output)
	}
	return strings.TrimSpace(output) != "", nil
}

// Remove deletes a worktree and its branch. Uncommitted changes block the
// removal unless force is set; the dirty worktree is reported and left alone.
func (m *Manager) Remove(d Descriptor, force bool) error {
	if !force {
		dirty, err := m.HasUncommittedChanges(d.Path)
		if err != nil {
			// The checkout may already be gone; fall through and let
			// git worktree remove sort it out.
			if _, statErr := os.Stat(d.Path); statErr == nil {
				return err
			}
		} else if dirty {
			return errors.NewGitError("refusing to remove worktree", errors.ErrDirtyWorktree).
				WithBranch(d.Branch).WithWorktree(d.Path)
		}
	}

	if output, err := m.git(m.repoDir, "worktree", "remove", "--force", d.Path); err != nil {
		// If worktree remove fails, clean up manually and prune the
		// now-dangling reference.
		_ = os.RemoveAll(d.Path)
		if pruneErr := m.Prune(); pruneErr != nil {
			m.logger.Warn("worktree prune failed", "error", pruneErr)
		}
		if _, statErr := os.Stat(d.Path); statErr == nil {
			return errors.NewGitError("failed to remove worktree", err).
				WithWorktree(d.Path).WithGitOutput(output)
		}
	}

	if d.Branch != "" {
		if err := m.DeleteBranch(d.Branch); err != nil {
			return err
		}
	}

	m.logger.Info("worktree removed", "branch", d.Branch, "path", d.Path)
	return nil
}

// DeleteBranch force-deletes a local branch.
func (m *Manager) DeleteBranch(branch string) error {
	if output, err := m.git(m.repoDir, "branch", "-D", branch); err != nil {
		return errors.NewGitError("failed to delete branch", err).
			WithBranch(branch).WithGitOutput(output)
	}
	return nil
}

// Prune removes stale worktree administrative data for checkouts that no
// longer exist on disk.
func (m *Manager) Prune() error {
	if output, err := m.git(m.repoDir, "worktree", "prune"); err != nil {
		return errors.NewGitError("failed to prune worktrees", err).WithGitOutput(output)
	}
	return nil
}

// CurrentBranch returns the branch checked out in a worktree.
func (m *Manager) CurrentBranch(path string) (string, error) {
	output, err := m.git(path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", errors.NewGitError("failed to get branch", err).
			WithWorktree(path).WithGitOutput(output)
	}
	return strings.TrimSpace(output), nil
}

// branchExists reports whether a local branch exists.
func (m *Manager) branchExists(branch string) bool {
	cmd := exec.Command("git", "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	cmd.Dir = m.repoDir
	return cmd.Run() == nil
}

// git runs a git command in dir and returns its combined output.
func (m *Manager) git(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	return string(output), err
}
