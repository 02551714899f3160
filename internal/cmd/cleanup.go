package cmd

import (
	"fmt"

	"github.com/gobwas/glob"
	"github.com/orchestra-dev/orchestra/internal/errors"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [pattern]",
	Short: "Remove worktrees and state for finished tasks",
	Long: `Cleanup removes the worktree, the branch, and the durable record of
every terminal task whose id matches the glob pattern (default: all).

Worktrees with uncommitted changes are skipped and reported unless
--force is given. Cleaning an already-cleaned task is a no-op.

Use --dry-run to see what would be removed without making changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCleanup,
}

var (
	cleanupForce  bool
	cleanupDryRun bool
)

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "Remove worktrees even with uncommitted changes")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be cleaned up without making changes")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	pattern := "*"
	if len(args) > 0 {
		pattern = args[0]
	}

	if cleanupDryRun {
		return printCleanupPlan(a, pattern)
	}

	cleaned, err := a.orch.Cleanup(pattern, cleanupForce)
	for _, id := range cleaned {
		fmt.Printf("Cleaned %s\n", id)
	}
	if err != nil {
		if errors.Is(err, errors.ErrDirtyWorktree) {
			fmt.Println("\nSome worktrees have uncommitted changes and were skipped.")
			fmt.Println("Re-run with --force to remove them anyway.")
			return nil
		}
		return fmt.Errorf("cleanup incomplete: %w", err)
	}
	if len(cleaned) == 0 {
		fmt.Println("Nothing to clean up.")
	}
	return nil
}

func printCleanupPlan(a *app, pattern string) error {
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	var matched int
	for _, rec := range a.store.All() {
		if !rec.Status.Terminal() || !matcher.Match(rec.TaskID) {
			continue
		}
		matched++
		fmt.Printf("Would clean %s (%s)\n", rec.TaskID, rec.Status)
		if rec.WorktreePath != "" {
			fmt.Printf("    Worktree: %s\n", rec.WorktreePath)
		}
		if rec.BranchName != "" {
			fmt.Printf("    Branch:   %s\n", rec.BranchName)
		}
	}
	if matched == 0 {
		fmt.Println("Nothing to clean up.")
	} else {
		fmt.Println("\nDry run mode - no changes made.")
	}
	return nil
}
