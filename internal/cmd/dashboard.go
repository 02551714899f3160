package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/orchestra-dev/orchestra/internal/config"
	"github.com/orchestra-dev/orchestra/internal/publisher"
	"github.com/orchestra-dev/orchestra/internal/tui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"dash"},
	Short:   "Open the live status dashboard",
	Long: `Dashboard opens a full-screen terminal view of every task, refreshed on
the configured interval. It shows status, branch, heartbeat age, and the
latest output line per agent. Quitting the dashboard never touches the
agents; only the cancel key does.`,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("dashboard requires a terminal; use 'orchestra status' in scripts")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := a.cfg.Dashboard.RefreshInterval()
	pub := publisher.New(a.orch, interval, a.logger)
	go func() { _ = pub.Run(ctx) }()

	// Re-read config edits while the dashboard runs. Subsystems wired at
	// startup keep their values; the reload covers anything resolved through
	// viper after this point.
	watcher := config.NewWatcher(config.ConfigDir(), a.logger)
	if err := watcher.Start(ctx); err != nil {
		a.logger.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			for range watcher.Events() {
				if err := viper.ReadInConfig(); err != nil {
					a.logger.Error("config reload failed", "error", err)
					continue
				}
				a.logger.Info("config reloaded")
			}
		}()
	}

	if err := tui.Run(ctx, pub, a.orch, interval); err != nil && ctx.Err() == nil {
		return fmt.Errorf("dashboard error: %w", err)
	}
	return nil
}
