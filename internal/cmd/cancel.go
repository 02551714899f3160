package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a pending or running task",
	Long: `Cancel terminates a task. Running agents get SIGTERM, then SIGKILL
after the configured grace period; queued tasks are removed from the
queue. The task is recorded as cancelled either way.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	taskID := args[0]
	if err := a.orch.Cancel(taskID); err != nil {
		return fmt.Errorf("failed to cancel %s: %w", taskID, err)
	}

	fmt.Printf("Cancelled %s\n", taskID)
	return nil
}
