package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/orchestra-dev/orchestra/internal/orchestrator"
	"github.com/spf13/cobra"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect results of finished tasks",
	Long: `Collect lists every task that has reached a terminal status, with its
branch and exit code. It is read-only and repeatable: worktrees are left
in place for review, and nothing changes between two calls unless a task
finishes in between. Use 'orchestra cleanup' to remove worktrees.`,
	RunE: runCollect,
}

var collectJSON bool

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.Flags().BoolVar(&collectJSON, "json", false, "Emit results as JSON")
}

func runCollect(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	results := a.orch.Collect()

	if collectJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	printResults(results)
	return nil
}

func printResults(results []orchestrator.TaskResult) {
	if len(results) == 0 {
		fmt.Println("No finished tasks to collect.")
		return
	}

	fmt.Printf("Collected %d result(s):\n\n", len(results))
	for _, r := range results {
		fmt.Printf("  %s (%s)\n", r.TaskID, r.Status)
		if r.BranchName != "" {
			fmt.Printf("    Branch:   %s\n", r.BranchName)
		}
		if r.WorktreePath != "" {
			fmt.Printf("    Worktree: %s\n", r.WorktreePath)
		}
		if r.ExitCode != nil {
			fmt.Printf("    Exit code: %d\n", *r.ExitCode)
		}
		if r.Reason != "" {
			fmt.Printf("    Reason: %s\n", r.Reason)
		}
		fmt.Println()
	}
	fmt.Println("Worktrees are left in place. Run 'orchestra cleanup' when done reviewing.")
}
