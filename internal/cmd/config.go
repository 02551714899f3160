package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/orchestra-dev/orchestra/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View Orchestra configuration",
	Long: `View Orchestra configuration.

Without arguments, displays the current configuration.
Use subcommands to create a config file or locate it.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/orchestra/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	fmt.Println("Current configuration:")
	fmt.Println()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Config file: (none - using defaults)\n")
	}
	fmt.Println()

	fmt.Println("worktree:")
	fmt.Printf("  dir: %s\n", cfg.Worktree.Dir)
	fmt.Printf("  branch_prefix: %s\n", cfg.Worktree.BranchPrefix)

	fmt.Println("agent:")
	fmt.Printf("  command: %s\n", cfg.Agent.Command)
	fmt.Printf("  default_parallel: %d\n", cfg.Agent.DefaultParallel)
	fmt.Printf("  max_parallel: %d\n", cfg.Agent.MaxParallel)
	fmt.Printf("  heartbeat_interval_seconds: %d\n", cfg.Agent.HeartbeatIntervalSeconds)
	fmt.Printf("  stale_threshold_seconds: %d\n", cfg.Agent.StaleThresholdSeconds)
	fmt.Printf("  cancel_grace_seconds: %d\n", cfg.Agent.CancelGraceSeconds)
	fmt.Printf("  output_buffer_size: %d\n", cfg.Agent.OutputBufferSize)
	fmt.Printf("  bypass_permissions: %v\n", cfg.Agent.BypassPermissions)

	fmt.Println("sessions:")
	fmt.Printf("  projects_dir: %s\n", cfg.Sessions.ResolveProjectsDir())
	fmt.Printf("  recent_hours: %g\n", cfg.Sessions.RecentHours)

	fmt.Println("state:")
	fmt.Printf("  file: %s\n", cfg.State.ResolveStateFile())

	fmt.Println("dashboard:")
	fmt.Printf("  refresh_interval_ms: %d\n", cfg.Dashboard.RefreshIntervalMs)

	fmt.Println("logging:")
	fmt.Printf("  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Printf("  level: %s\n", cfg.Logging.Level)
	fmt.Printf("  dir: %s\n", cfg.Logging.Dir)

	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Generate a commented config file
	configContent := `# Orchestra Configuration

# Worktree placement and branch naming
worktree:
  # Directory where git worktrees are created.
  # Empty means .orchestra/worktrees under the repository root.
  # Supports ~ for home directory expansion.
  dir: ""
  # Task branches are named <branch_prefix>/<task-id>
  branch_prefix: orchestra

# Agent process settings
agent:
  # Coding-agent executable to launch
  command: claude
  # Concurrency ceiling when spawn has no explicit --parallel
  default_parallel: 3
  # Hard cap on the concurrency ceiling
  max_parallel: 8
  # How often heartbeat observations are persisted
  heartbeat_interval_seconds: 60
  # Heartbeat age beyond which a running task reports as stale
  stale_threshold_seconds: 300
  # SIGTERM-to-SIGKILL wait when cancelling
  cancel_grace_seconds: 10
  # Per-agent output ring buffer in bytes
  output_buffer_size: 100000

# Session discovery
sessions:
  # Directory holding per-project session logs.
  # Empty means ~/.claude/projects.
  projects_dir: ""
  # Default lookback window for listing sessions
  recent_hours: 2

# Durable state
state:
  # Path of the JSON state file.
  # Empty means <config dir>/state.json.
  file: ""

# Status dashboard
dashboard:
  refresh_interval_ms: 1000

# Debug logging
logging:
  enabled: true
  level: INFO
  # Log directory. Empty means stderr.
  dir: ""
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created config file at %s\n", configFile)
	fmt.Println("Edit this file to customize Orchestra's behavior.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Println("\nSearch paths:")
	fmt.Printf("  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Printf("  2. $HOME/.config/orchestra/config.yaml\n")
	fmt.Printf("  3. ./config.yaml (current directory)\n")
	fmt.Println("\nEnvironment variables: ORCHESTRA_* (e.g., ORCHESTRA_AGENT_MAX_PARALLEL)")

	return nil
}
