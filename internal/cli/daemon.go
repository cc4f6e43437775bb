package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabwarden/tabwarden/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the tracking daemon",
	Long: `Manage the tabwarden tracking daemon.

Commands:
  start  - Start the daemon (same as 'tabwarden monitor')
  stop   - Stop the running daemon
  status - Check if the daemon is running`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tracking daemon",
	RunE:  runMonitor,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	RunE:  runDaemonStatus,
}

func init() {
	daemonStartCmd.Flags().BoolVarP(&backgroundFlag, "background", "b", false, "Run daemon in background")

	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	lifecycle := daemon.NewLifecycle(cfg.Settings.Daemon)

	if !lifecycle.IsRunning() {
		fmt.Println("Daemon is not running")
		return nil
	}

	pid, _ := lifecycle.GetPID()
	if err := lifecycle.Stop(); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	fmt.Printf("Daemon stopped (was PID %d)\n", pid)
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	lifecycle := daemon.NewLifecycle(cfg.Settings.Daemon)

	if !lifecycle.IsRunning() {
		fmt.Println("Daemon is not running")
		return nil
	}

	pid, _ := lifecycle.GetPID()
	fmt.Printf("Daemon is running (PID %d) on http://127.0.0.1:%d\n", pid, lifecycle.Port())
	return nil
}
