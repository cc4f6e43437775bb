package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabwarden/tabwarden/internal/browser"
	"github.com/tabwarden/tabwarden/internal/daemon"
	"github.com/tabwarden/tabwarden/internal/logger"
	"github.com/tabwarden/tabwarden/internal/state"
	"github.com/tabwarden/tabwarden/internal/track"
)

var (
	backgroundFlag      bool
	backgroundChildFlag bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the tracking daemon",
	Long: `Run the tabwarden tracking daemon.

The daemon connects to a Chromium browser over the DevTools Protocol,
tracks per-domain active time, escalates interventions, and serves the
block and prompt pages plus the message API on 127.0.0.1.

By default, runs in the foreground. Use --background to detach.

Example:
  tabwarden monitor              # Run in foreground
  tabwarden monitor --background # Run in background`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVarP(&backgroundFlag, "background", "b", false, "Run daemon in background")
	monitorCmd.Flags().BoolVar(&backgroundChildFlag, "background-child", false, "Internal flag for background process")
	_ = monitorCmd.Flags().MarkHidden("background-child")

	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	initLogging(cfg)

	lifecycle := daemon.NewLifecycle(cfg.Settings.Daemon)

	if backgroundFlag && !backgroundChildFlag {
		if lifecycle.IsRunning() {
			fmt.Println("Daemon is already running")
			return nil
		}
		if err := lifecycle.StartInBackground(); err != nil {
			return fmt.Errorf("failed to start daemon in background: %w", err)
		}
		fmt.Printf("Daemon started on http://127.0.0.1:%d\n", lifecycle.Port())
		return nil
	}

	if !backgroundChildFlag && lifecycle.IsRunning() {
		return fmt.Errorf("daemon is already running (PID file: %s)", lifecycle.PIDFile())
	}

	store, err := state.NewSQLiteStore(cfg.Settings.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() { _ = store.Close() }()

	tabs, err := browser.NewRodTabs(cfg.Tracking.BrowserControlURL)
	if err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() { _ = tabs.Disconnect() }()

	var notifier browser.Notifier = browser.LogNotifier{}
	if desktop := browser.NewDesktopNotifier(); desktop != nil {
		notifier = desktop
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := track.New(cfg, store, tabs, notifier, daemon.PagesBase(cfg))
	if err := engine.Resume(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to resume previous session")
	}

	server := daemon.NewServer(cfg, engine, Version)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	if !backgroundChildFlag {
		fmt.Printf("Tracking daemon running at http://127.0.0.1:%d\n", server.Port())
		fmt.Println("Press Ctrl+C to stop")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}
	return nil
}
