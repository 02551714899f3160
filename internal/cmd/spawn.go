package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/orchestra-dev/orchestra/internal/state"
	"github.com/spf13/cobra"
)

var spawnCmd = &cobra.Command{
	Use:   "spawn <task> [task...]",
	Short: "Spawn agents for one or more tasks",
	Long: `Spawn launches one coding agent per task description. Each agent gets
its own git worktree on its own branch; at most the parallel limit run
at once and the rest queue in FIFO order.

Per-task failures (branch conflicts, launch errors) mark that task as
failed without affecting its siblings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSpawn,
}

var (
	spawnParallel int
	spawnWait     bool
)

func init() {
	rootCmd.AddCommand(spawnCmd)
	spawnCmd.Flags().IntVarP(&spawnParallel, "parallel", "p", 0, "Max agents running at once (default from config)")
	spawnCmd.Flags().BoolVarP(&spawnWait, "wait", "w", false, "Block until every spawned task reaches a terminal status")
}

func runSpawn(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.orch.Spawn(args, spawnParallel)
	if err != nil {
		return fmt.Errorf("failed to spawn tasks: %w", err)
	}

	fmt.Printf("Spawned %d task(s):\n\n", len(records))
	for _, rec := range records {
		fmt.Printf("  %s (%s)\n", rec.TaskID, rec.Status)
		fmt.Printf("    Task:   %s\n", rec.Description)
		fmt.Printf("    Branch: %s\n", rec.BranchName)
		if rec.Status == state.StatusFailed {
			fmt.Printf("    Reason: %s\n", rec.Reason)
		}
		fmt.Println()
	}

	if !spawnWait {
		fmt.Println("Run 'orchestra status' to follow progress, or 'orchestra dashboard' for a live view.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Waiting for all tasks to finish (Ctrl-C to detach)...")
	if err := a.orch.WaitAll(ctx); err != nil {
		fmt.Println("Detached. Agents keep running; 'orchestra status' shows progress.")
		return nil
	}

	printResults(a.orch.Collect())
	return nil
}
