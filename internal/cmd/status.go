package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/orchestra-dev/orchestra/internal/state"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of all tasks",
	Long: `Display every known task with its current status, branch, and heartbeat
age. Running tasks whose heartbeat is older than the staleness threshold
are shown as stale; they keep running and are never reaped automatically.`,
	RunE: runStatus,
}

var statusJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit the snapshot as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	snap := a.orch.Status()

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	if len(snap.Tasks) == 0 {
		fmt.Println("No tasks")
		fmt.Println("Run 'orchestra spawn <task>' to start one.")
		return nil
	}

	for _, t := range snap.Tasks {
		fmt.Printf("%s (%s)\n", t.Record.TaskID, t.EffectiveStatus)
		fmt.Printf("    Task:   %s\n", t.Record.Description)
		if t.Record.BranchName != "" {
			fmt.Printf("    Branch: %s\n", t.Record.BranchName)
		}
		if t.Record.StartedAt != nil {
			fmt.Printf("    Started: %s\n", t.Record.StartedAt.Format("2006-01-02 15:04:05"))
		}
		if t.EffectiveStatus == state.StatusRunning || t.EffectiveStatus == state.StatusStale {
			if t.HeartbeatAge >= 0 {
				fmt.Printf("    Heartbeat: %s ago\n", t.HeartbeatAge.Round(time.Second))
			}
			if t.Record.PID != 0 {
				fmt.Printf("    PID: %d\n", t.Record.PID)
			}
		}
		if t.Record.ExitCode != nil {
			fmt.Printf("    Exit code: %d\n", *t.Record.ExitCode)
		}
		if t.Record.Reason != "" {
			fmt.Printf("    Reason: %s\n", t.Record.Reason)
		}
		fmt.Println()
	}

	counts := snap.Counts()
	fmt.Printf("%d running, %d pending, %d completed, %d failed, %d stale, %d cancelled\n",
		counts[state.StatusRunning],
		counts[state.StatusPending],
		counts[state.StatusCompleted],
		counts[state.StatusFailed],
		counts[state.StatusStale],
		counts[state.StatusCancelled])

	return nil
}
