package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/orchestra-dev/orchestra/internal/session"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id> <prompt>",
	Short: "Resume an existing agent session with a new prompt",
	Long: `Resume continues an existing agent session in its original project
directory. No worktree is created; the resumed agent is supervised
exactly like a spawned one and shows up in status and the dashboard.

The session id may be a unique prefix of a full id from
'orchestra sessions'.`,
	Args: cobra.ExactArgs(2),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sessionID, prompt := args[0], args[1]

	mgr := session.NewManager(a.cfg.Sessions.ResolveProjectsDir(), a.logger)
	info, ok := mgr.Get(sessionID)
	if !ok {
		info, ok = findSessionByPrefix(mgr, a.cfg.Sessions.RecentWindow(), sessionID)
	}
	if !ok {
		return fmt.Errorf("session not found: %s (try 'orchestra sessions')", sessionID)
	}
	if info.ProjectPath == "" {
		return fmt.Errorf("session %s has no recorded project directory", info.ID)
	}

	rec, err := a.orch.Resume(info.ID, prompt, info.ProjectPath)
	if err != nil {
		return fmt.Errorf("failed to resume session: %w", err)
	}

	fmt.Printf("Resumed session %s as task %s (%s)\n", info.ID, rec.TaskID, rec.Status)
	fmt.Printf("    Project: %s\n", info.ProjectPath)
	return nil
}

// findSessionByPrefix resolves a session id prefix against recent sessions.
// Ambiguous prefixes resolve to nothing.
func findSessionByPrefix(mgr *session.Manager, window time.Duration, prefix string) (session.Info, bool) {
	sessions, err := mgr.ListRecent(window)
	if err != nil {
		return session.Info{}, false
	}

	var match session.Info
	var found bool
	for _, s := range sessions {
		if strings.HasPrefix(s.ID, prefix) {
			if found {
				return session.Info{}, false
			}
			match = s
			found = true
		}
	}
	return match, found
}
