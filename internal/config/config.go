package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Orchestra configuration
type Config struct {
	Worktree  WorktreeConfig  `mapstructure:"worktree"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	State     StateConfig     `mapstructure:"state"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// WorktreeConfig controls worktree placement and branch naming
type WorktreeConfig struct {
	// Dir is the directory where git worktrees are created.
	// If empty, defaults to ".orchestra/worktrees" relative to the repository
	// root. Can be an absolute path to store worktrees outside the repository.
	// Supports ~ for home directory expansion.
	Dir string `mapstructure:"dir"`
	// BranchPrefix is the prefix for task branches: <prefix>/<task-id>
	BranchPrefix string `mapstructure:"branch_prefix"`
}

// AgentConfig controls agent process behavior
type AgentConfig struct {
	// Command is the coding-agent executable to launch (default: "claude")
	Command string `mapstructure:"command"`
	// DefaultParallel is the concurrency ceiling used when spawn is called
	// without an explicit limit (default: 3)
	DefaultParallel int `mapstructure:"default_parallel"`
	// MaxParallel is the hard cap on the concurrency ceiling (default: 8).
	// Explicit spawn limits are clamped to this value.
	MaxParallel int `mapstructure:"max_parallel"`
	// HeartbeatIntervalSeconds is how often the monitor loop persists
	// heartbeat observations (default: 60)
	HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_seconds"`
	// StaleThresholdSeconds is the heartbeat age beyond which a running task
	// reports as stale (default: 300)
	StaleThresholdSeconds int `mapstructure:"stale_threshold_seconds"`
	// CancelGraceSeconds is how long to wait after SIGTERM before SIGKILL
	// when cancelling a task (default: 10)
	CancelGraceSeconds int `mapstructure:"cancel_grace_seconds"`
	// OutputBufferSize is the size of the per-agent output ring buffer in bytes
	OutputBufferSize int `mapstructure:"output_buffer_size"`
	// BypassPermissions are tool allowlist patterns passed to the agent
	BypassPermissions []string `mapstructure:"bypass_permissions"`
}

// SessionsConfig controls session discovery
type SessionsConfig struct {
	// ProjectsDir is the directory holding per-project session logs.
	// If empty, defaults to ~/.claude/projects.
	ProjectsDir string `mapstructure:"projects_dir"`
	// RecentHours is the default lookback window for listing sessions
	RecentHours float64 `mapstructure:"recent_hours"`
}

// StateConfig controls durable state persistence
type StateConfig struct {
	// File is the path of the JSON state file.
	// If empty, defaults to ~/.config/orchestra/state.json (XDG aware).
	File string `mapstructure:"file"`
}

// DashboardConfig controls the status dashboard
type DashboardConfig struct {
	// RefreshIntervalMs is how often the dashboard polls for snapshots
	RefreshIntervalMs int `mapstructure:"refresh_interval_ms"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "DEBUG", "INFO", "WARN", "ERROR" (default: "INFO")
	Level string `mapstructure:"level"`
	// Dir is the log directory. If empty, logs go to stderr.
	Dir string `mapstructure:"dir"`
}

// ResolveWorktreeDir returns the resolved worktree directory path.
// If Dir is empty, it returns the default path relative to baseDir.
// If Dir starts with ~, it expands to the user's home directory.
// If Dir is a relative path, it's resolved relative to baseDir.
func (w *WorktreeConfig) ResolveWorktreeDir(baseDir string) string {
	if w.Dir == "" {
		return filepath.Join(baseDir, ".orchestra", "worktrees")
	}

	path := w.Dir

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	return path
}

// ResolveStateFile returns the resolved state file path, falling back to
// the default under the user config directory.
func (s *StateConfig) ResolveStateFile() string {
	if s.File != "" {
		return s.File
	}
	return filepath.Join(ConfigDir(), "state.json")
}

// ResolveProjectsDir returns the session log directory, falling back to
// ~/.claude/projects.
func (s *SessionsConfig) ResolveProjectsDir() string {
	if s.ProjectsDir != "" {
		return s.ProjectsDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude/projects"
	}
	return filepath.Join(home, ".claude", "projects")
}

// HeartbeatInterval returns the heartbeat persistence interval as a time.Duration
func (a *AgentConfig) HeartbeatInterval() time.Duration {
	return time.Duration(a.HeartbeatIntervalSeconds) * time.Second
}

// StaleThreshold returns the staleness threshold as a time.Duration
func (a *AgentConfig) StaleThreshold() time.Duration {
	return time.Duration(a.StaleThresholdSeconds) * time.Second
}

// CancelGrace returns the cancellation grace period as a time.Duration
func (a *AgentConfig) CancelGrace() time.Duration {
	return time.Duration(a.CancelGraceSeconds) * time.Second
}

// RefreshInterval returns the dashboard refresh interval as a time.Duration
func (d *DashboardConfig) RefreshInterval() time.Duration {
	return time.Duration(d.RefreshIntervalMs) * time.Millisecond
}

// RecentWindow returns the session lookback window as a time.Duration
func (s *SessionsConfig) RecentWindow() time.Duration {
	return time.Duration(s.RecentHours * float64(time.Hour))
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Worktree: WorktreeConfig{
			Dir:          "", // Empty means use default: .orchestra/worktrees
			BranchPrefix: "orchestra",
		},
		Agent: AgentConfig{
			Command:                  "claude",
			DefaultParallel:          3,
			MaxParallel:              8,
			HeartbeatIntervalSeconds: 60,
			StaleThresholdSeconds:    300, // 5 minutes without output
			CancelGraceSeconds:       10,
			OutputBufferSize:         100000, // 100KB
			BypassPermissions: []string{
				"Bash(git *)",
				"Bash(npm *)",
				"Bash(npx *)",
				"Read(*)",
				"Glob(*)",
				"Grep(*)",
				"Write(*)",
				"Edit(*)",
			},
		},
		Sessions: SessionsConfig{
			ProjectsDir: "",
			RecentHours: 2,
		},
		State: StateConfig{
			File: "", // Empty means use default: <config dir>/state.json
		},
		Dashboard: DashboardConfig{
			RefreshIntervalMs: 1000,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "INFO",
			Dir:     "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Worktree defaults
	viper.SetDefault("worktree.dir", defaults.Worktree.Dir)
	viper.SetDefault("worktree.branch_prefix", defaults.Worktree.BranchPrefix)

	// Agent defaults
	viper.SetDefault("agent.command", defaults.Agent.Command)
	viper.SetDefault("agent.default_parallel", defaults.Agent.DefaultParallel)
	viper.SetDefault("agent.max_parallel", defaults.Agent.MaxParallel)
	viper.SetDefault("agent.heartbeat_interval_seconds", defaults.Agent.HeartbeatIntervalSeconds)
	viper.SetDefault("agent.stale_threshold_seconds", defaults.Agent.StaleThresholdSeconds)
	viper.SetDefault("agent.cancel_grace_seconds", defaults.Agent.CancelGraceSeconds)
	viper.SetDefault("agent.output_buffer_size", defaults.Agent.OutputBufferSize)
	viper.SetDefault("agent.bypass_permissions", defaults.Agent.BypassPermissions)

	// Sessions defaults
	viper.SetDefault("sessions.projects_dir", defaults.Sessions.ProjectsDir)
	viper.SetDefault("sessions.recent_hours", defaults.Sessions.RecentHours)

	// State defaults
	viper.SetDefault("state.file", defaults.State.File)

	// Dashboard defaults
	viper.SetDefault("dashboard.refresh_interval_ms", defaults.Dashboard.RefreshIntervalMs)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "orchestra")
	}
	// Fall back to ~/.config/orchestra
	home, err := os.UserHomeDir()
	if err != nil {
		return ".orchestra"
	}
	return filepath.Join(home, ".config", "orchestra")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
