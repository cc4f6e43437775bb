package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tabwarden/tabwarden/internal/quality"
)

var splitOpts = quality.DefaultSplitOptions()

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Gate the dataset and produce a time-ordered train/test split",
	Long: `Run the data-quality gate over an exported session CSV and, when it
passes, write a leakage-checked, time-ordered train/test split.

Outputs train_split.csv, test_split.csv and split_report.json in the
output directory. With --enforce-quality (the default) a failing gate
writes nothing and exits non-zero.

Example:
  tabwarden split --in sessions.csv --out-dir ./dataset
  tabwarden split --in sessions.csv --label-policy all_weighted --weak-weight 0.35`,
	RunE: runSplit,
}

func init() {
	f := splitCmd.Flags()
	f.StringVar(&splitOpts.Input, "in", "", "Input session CSV (required)")
	f.StringVar(&splitOpts.OutDir, "out-dir", splitOpts.OutDir, "Output directory")
	f.Float64Var(&splitOpts.TrainRatio, "train-ratio", splitOpts.TrainRatio, "Train fraction (0 < ratio < 1)")
	f.StringVar(&splitOpts.Schema, "schema", splitOpts.Schema, "Required sessionSchemaVersion")
	f.StringVar(&splitOpts.RuleVersion, "rule", splitOpts.RuleVersion, "Required ruleVersion")
	f.BoolVar(&splitOpts.ExcludeDebug, "exclude-debug", splitOpts.ExcludeDebug, "Drop debug-contaminated rows")
	f.StringVar(&splitOpts.LabelPolicy, "label-policy", splitOpts.LabelPolicy, "high_confidence or all_weighted")
	f.Float64Var(&splitOpts.WeakWeight, "weak-weight", splitOpts.WeakWeight, "Sample weight for weak-confidence rows")
	f.IntVar(&splitOpts.Thresholds.MinRows, "min-rows", splitOpts.Thresholds.MinRows, "Minimum high-confidence rows")
	f.IntVar(&splitOpts.Thresholds.MinClassRows, "min-class-rows", splitOpts.Thresholds.MinClassRows, "Minimum high-confidence rows per class")
	f.Float64Var(&splitOpts.Thresholds.MinResponseRate, "min-response-rate", splitOpts.Thresholds.MinResponseRate, "Minimum prompt response rate")
	f.Float64Var(&splitOpts.Thresholds.MaxDisagreementRate, "max-disagreement-rate", splitOpts.Thresholds.MaxDisagreementRate, "Maximum prompt disagreement rate")
	f.BoolVar(&splitOpts.EnforceQuality, "enforce-quality", splitOpts.EnforceQuality, "Fail instead of writing when the gate blocks")
	_ = splitCmd.MarkFlagRequired("in")

	rootCmd.AddCommand(splitCmd)
}

func runSplit(cmd *cobra.Command, args []string) error {
	report, err := quality.RunSplit(splitOpts)
	if err != nil {
		if gateErr, ok := err.(*quality.GateError); ok {
			fmt.Fprintln(os.Stderr, "Data-quality gate failed:")
			for _, issue := range gateErr.Issues {
				fmt.Fprintf(os.Stderr, " - %s\n", issue)
			}
			os.Exit(1)
		}
		return err
	}

	fmt.Printf("Wrote %s/train_split.csv (%d rows)\n", splitOpts.OutDir, report.TrainRows)
	fmt.Printf("Wrote %s/test_split.csv (%d rows)\n", splitOpts.OutDir, report.TestRows)
	fmt.Printf("Wrote %s/split_report.json\n", splitOpts.OutDir)
	for _, warning := range report.QualityGate.Warnings {
		fmt.Printf("Warning: %s\n", warning)
	}
	return nil
}
