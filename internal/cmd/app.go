package cmd

import (
	"fmt"
	"os"

	"github.com/orchestra-dev/orchestra/internal/config"
	"github.com/orchestra-dev/orchestra/internal/filelock"
	"github.com/orchestra-dev/orchestra/internal/logging"
	"github.com/orchestra-dev/orchestra/internal/orchestrator"
	"github.com/orchestra-dev/orchestra/internal/state"
	"github.com/orchestra-dev/orchestra/internal/worktree"
)

// app bundles the wired-up subsystems every task command needs. The
// sessions command builds its session.Manager directly instead; listing
// transcripts needs neither git nor the state file.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	lock      *filelock.Lock
	store     *state.Store
	worktrees *worktree.Manager
	orch      *orchestrator.Orchestrator
}

// newApp wires configuration, logging, the worktree manager, the durable
// store, and the orchestrator together, then reconciles records left over
// from a previous run. Must be called from inside a git repository.
func newApp() (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	cfg := config.Get()

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	repoRoot, err := worktree.FindGitRoot(cwd)
	if err != nil {
		return nil, err
	}

	worktrees, err := worktree.NewManager(cwd, cfg.Worktree.ResolveWorktreeDir(repoRoot), cfg.Worktree.BranchPrefix, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create worktree manager: %w", err)
	}

	stateFile := cfg.State.ResolveStateFile()
	lock, err := filelock.Acquire(stateFile, logger)
	if err != nil {
		return nil, fmt.Errorf("another orchestra process owns the state file: %w", err)
	}

	store := state.NewStore(stateFile)
	if err := store.Load(); err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	orch := orchestrator.New(cfg, worktrees, store, logger)
	if err := orch.Reconcile(); err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("failed to reconcile state: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		lock:      lock,
		store:     store,
		worktrees: worktrees,
		orch:      orch,
	}, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// Close releases the state lock and other resources held by the app.
func (a *app) Close() error {
	if err := a.lock.Release(); err != nil {
		a.logger.Warn("failed to release state lock", "error", err)
	}
	return a.logger.Close()
}
