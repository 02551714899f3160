package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "agent.max_parallel")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// branchPrefixRegex validates branch prefix characters.
// Prefixes start with an alphanumeric and may contain alphanumerics,
// hyphens, and underscores; a trailing "/" is added by the manager.
var branchPrefixRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// Validate checks the Config for invalid values and returns all validation
// errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateWorktree()...)
	errors = append(errors, c.validateAgent()...)
	errors = append(errors, c.validateSessions()...)
	errors = append(errors, c.validateDashboard()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateWorktree() []ValidationError {
	var errors []ValidationError

	if c.Worktree.BranchPrefix == "" {
		errors = append(errors, ValidationError{
			Field:   "worktree.branch_prefix",
			Value:   c.Worktree.BranchPrefix,
			Message: "branch prefix must not be empty",
		})
	} else if !branchPrefixRegex.MatchString(c.Worktree.BranchPrefix) {
		errors = append(errors, ValidationError{
			Field:   "worktree.branch_prefix",
			Value:   c.Worktree.BranchPrefix,
			Message: "branch prefix must start with a letter and contain only letters, digits, hyphens, and underscores",
		})
	}

	return errors
}

func (c *Config) validateAgent() []ValidationError {
	var errors []ValidationError

	if c.Agent.Command == "" {
		errors = append(errors, ValidationError{
			Field:   "agent.command",
			Value:   c.Agent.Command,
			Message: "agent command must not be empty",
		})
	}

	if c.Agent.DefaultParallel < 1 {
		errors = append(errors, ValidationError{
			Field:   "agent.default_parallel",
			Value:   c.Agent.DefaultParallel,
			Message: "must be at least 1",
		})
	}

	if c.Agent.MaxParallel < 1 {
		errors = append(errors, ValidationError{
			Field:   "agent.max_parallel",
			Value:   c.Agent.MaxParallel,
			Message: "must be at least 1",
		})
	} else if c.Agent.DefaultParallel > c.Agent.MaxParallel {
		errors = append(errors, ValidationError{
			Field:   "agent.default_parallel",
			Value:   c.Agent.DefaultParallel,
			Message: fmt.Sprintf("must not exceed agent.max_parallel (%d)", c.Agent.MaxParallel),
		})
	}

	if c.Agent.HeartbeatIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "agent.heartbeat_interval_seconds",
			Value:   c.Agent.HeartbeatIntervalSeconds,
			Message: "must be at least 1",
		})
	}

	if c.Agent.StaleThresholdSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "agent.stale_threshold_seconds",
			Value:   c.Agent.StaleThresholdSeconds,
			Message: "must be at least 1",
		})
	}

	if c.Agent.CancelGraceSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "agent.cancel_grace_seconds",
			Value:   c.Agent.CancelGraceSeconds,
			Message: "must not be negative",
		})
	}

	if c.Agent.OutputBufferSize < 1024 {
		errors = append(errors, ValidationError{
			Field:   "agent.output_buffer_size",
			Value:   c.Agent.OutputBufferSize,
			Message: "must be at least 1024 bytes",
		})
	}

	return errors
}

func (c *Config) validateSessions() []ValidationError {
	var errors []ValidationError

	if c.Sessions.RecentHours <= 0 {
		errors = append(errors, ValidationError{
			Field:   "sessions.recent_hours",
			Value:   c.Sessions.RecentHours,
			Message: "must be greater than 0",
		})
	}

	return errors
}

func (c *Config) validateDashboard() []ValidationError {
	var errors []ValidationError

	if c.Dashboard.RefreshIntervalMs < 100 {
		errors = append(errors, ValidationError{
			Field:   "dashboard.refresh_interval_ms",
			Value:   c.Dashboard.RefreshIntervalMs,
			Message: "must be at least 100",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	valid := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if !slices.Contains(valid, strings.ToUpper(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(valid, ", ")),
		})
	}

	return errors
}
