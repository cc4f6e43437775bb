package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabwarden/tabwarden/internal/config"
	"github.com/tabwarden/tabwarden/internal/logger"
)

// Version information set via ldflags
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	verbose    bool
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "tabwarden",
	Short: "Browser usage monitor with escalating interventions",
	Long: `Tabwarden tracks per-domain active browsing time through the Chrome
DevTools Protocol, escalates through intervention stages (notifications,
cooldown blocks, break nudges), and records each browsing session as a
weakly-labeled row for later model training.

The split command gates the recorded dataset on quality thresholds and
produces a leakage-checked, time-ordered train/test split.

Configure in ~/.tabwarden/config.yaml.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tabwarden %s\n", Version)
		fmt.Printf("  commit: %s\n", Commit)
		fmt.Printf("  built:  %s\n", Date)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Override config file path")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the merged configuration, falling back to defaults
// when nothing is on disk.
func loadConfig() *config.Config {
	loader, err := config.NewLoader(configFile)
	if err != nil {
		return config.DefaultConfig()
	}
	cfg, err := loader.Load()
	if err != nil {
		return config.DefaultConfig()
	}
	return cfg
}

// initLogging applies the configured log level, --verbose winning.
func initLogging(cfg *config.Config) {
	level := cfg.Settings.LogLevel
	if level == "" {
		level = "info"
	}
	if verbose {
		level = "debug"
	}
	_ = logger.Init(level, cfg.Settings.LogFile)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
