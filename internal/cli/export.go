package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tabwarden/tabwarden/internal/export"
	"github.com/tabwarden/tabwarden/internal/state"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the session log as CSV",
	Long: `Dump the finalized session log as CSV in the fixed column contract the
split command consumes.

Example:
  tabwarden export > sessions.csv
  tabwarden export --out sessions.csv`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	store, err := state.NewSQLiteStore(cfg.Settings.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() { _ = store.Close() }()

	records, err := store.Records()
	if err != nil {
		return fmt.Errorf("failed to read session log: %w", err)
	}

	csv := export.SessionsCSV(records)
	if exportOut == "" {
		fmt.Print(csv)
		return nil
	}

	if err := os.WriteFile(exportOut, []byte(csv), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", exportOut, err)
	}
	fmt.Printf("Wrote %s (%d rows)\n", exportOut, len(records))
	return nil
}
