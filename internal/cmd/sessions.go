package cmd

import (
	"fmt"
	"time"

	"github.com/orchestra-dev/orchestra/internal/config"
	"github.com/orchestra-dev/orchestra/internal/session"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent agent sessions",
	Long: `Sessions lists recently active agent sessions discovered from the
agent's transcript logs, newest first. Use a session id with
'orchestra resume' to continue one.`,
	RunE: runSessions,
}

var sessionsHours float64

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().Float64Var(&sessionsHours, "hours", 0, "Lookback window in hours (default from config)")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	window := cfg.Sessions.RecentWindow()
	if sessionsHours > 0 {
		window = time.Duration(sessionsHours * float64(time.Hour))
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	mgr := session.NewManager(cfg.Sessions.ResolveProjectsDir(), logger)
	sessions, err := mgr.ListRecent(window)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Printf("No sessions active in the last %s.\n", window)
		return nil
	}

	fmt.Printf("Found %d session(s):\n\n", len(sessions))
	for _, s := range sessions {
		fmt.Printf("  %s\n", s.ID)
		fmt.Printf("    Project:  %s\n", s.ProjectPath)
		fmt.Printf("    Modified: %s\n", s.ModifiedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("    Messages: %d\n", s.MessageCount)
		if s.LastPrompt != "" {
			fmt.Printf("    Last prompt: %s\n", s.LastPrompt)
		}
		fmt.Println()
	}

	fmt.Println("To continue a session: orchestra resume <session-id> <prompt>")
	return nil
}
