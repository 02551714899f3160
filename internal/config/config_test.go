package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Fatalf("default config should validate, got: %v", ValidationErrors(errs))
	}
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.Agent.DefaultParallel != 3 {
		t.Errorf("DefaultParallel = %d, want 3", cfg.Agent.DefaultParallel)
	}
	if cfg.Agent.MaxParallel != 8 {
		t.Errorf("MaxParallel = %d, want 8", cfg.Agent.MaxParallel)
	}
	if cfg.Agent.StaleThreshold() != 5*time.Minute {
		t.Errorf("StaleThreshold = %v, want 5m", cfg.Agent.StaleThreshold())
	}
	if cfg.Worktree.BranchPrefix != "orchestra" {
		t.Errorf("BranchPrefix = %q, want orchestra", cfg.Worktree.BranchPrefix)
	}
}

func TestValidateCatchesBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "zero parallel",
			mutate: func(c *Config) { c.Agent.DefaultParallel = 0 },
			field:  "agent.default_parallel",
		},
		{
			name:   "default exceeds max",
			mutate: func(c *Config) { c.Agent.DefaultParallel = 10; c.Agent.MaxParallel = 8 },
			field:  "agent.default_parallel",
		},
		{
			name:   "empty branch prefix",
			mutate: func(c *Config) { c.Worktree.BranchPrefix = "" },
			field:  "worktree.branch_prefix",
		},
		{
			name:   "branch prefix with slash",
			mutate: func(c *Config) { c.Worktree.BranchPrefix = "feat/x" },
			field:  "worktree.branch_prefix",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Logging.Level = "verbose" },
			field:  "logging.level",
		},
		{
			name:   "zero stale threshold",
			mutate: func(c *Config) { c.Agent.StaleThresholdSeconds = 0 },
			field:  "agent.stale_threshold_seconds",
		},
		{
			name:   "negative cancel grace",
			mutate: func(c *Config) { c.Agent.CancelGraceSeconds = -1 },
			field:  "agent.cancel_grace_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatal("expected validation errors, got none")
			}

			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an error for field %q, got: %v", tt.field, ValidationErrors(errs))
			}
		})
	}
}

func TestResolveWorktreeDir(t *testing.T) {
	tests := []struct {
		name    string
		dir     string
		baseDir string
		want    string
	}{
		{
			name:    "empty uses default",
			dir:     "",
			baseDir: "/repo",
			want:    filepath.Join("/repo", ".orchestra", "worktrees"),
		},
		{
			name:    "relative resolves against base",
			dir:     "trees",
			baseDir: "/repo",
			want:    filepath.Join("/repo", "trees"),
		},
		{
			name:    "absolute is kept",
			dir:     "/fast-disk/trees",
			baseDir: "/repo",
			want:    "/fast-disk/trees",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := WorktreeConfig{Dir: tt.dir}
			if got := w.ResolveWorktreeDir(tt.baseDir); got != tt.want {
				t.Errorf("ResolveWorktreeDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationErrorsFormatting(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a.b", Value: 0, Message: "must be at least 1"},
		{Field: "c.d", Value: "", Message: "must not be empty"},
	}

	msg := errs.Error()
	if !strings.Contains(msg, "2 validation errors") {
		t.Errorf("expected count header, got %q", msg)
	}
	if !strings.Contains(msg, "a.b") || !strings.Contains(msg, "c.d") {
		t.Errorf("expected both fields in message, got %q", msg)
	}

	single := ValidationErrors{errs[0]}
	if strings.Contains(single.Error(), "validation errors") {
		t.Errorf("single error should not have a count header, got %q", single.Error())
	}
}
