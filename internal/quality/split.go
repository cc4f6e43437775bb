package quality

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// Label policies for selecting split rows.
const (
	PolicyHighConfidence = "high_confidence"
	PolicyAllWeighted    = "all_weighted"
)

// SplitOptions configure the gate and split run.
type SplitOptions struct {
	Input          string
	OutDir         string
	TrainRatio     float64
	Schema         string
	RuleVersion    string
	ExcludeDebug   bool
	LabelPolicy    string
	WeakWeight     float64
	Thresholds     Thresholds
	EnforceQuality bool
}

// DefaultSplitOptions match the shipped recording pipeline.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{
		OutDir:       ".",
		TrainRatio:   0.8,
		Schema:       "3",
		RuleVersion:  "phase1_mode_v1",
		ExcludeDebug: true,
		LabelPolicy:  PolicyHighConfidence,
		WeakWeight:   0.35,
		Thresholds: Thresholds{
			MinRows:             60,
			MinClassRows:        10,
			MinResponseRate:     0.4,
			MaxDisagreementRate: 0.6,
		},
		EnforceQuality: true,
	}
}

// Validate rejects out-of-range options before any file is touched.
func (o *SplitOptions) Validate() error {
	if o.Input == "" {
		return fmt.Errorf("input CSV path is required")
	}
	if o.TrainRatio <= 0 || o.TrainRatio >= 1 {
		return fmt.Errorf("train ratio must be > 0 and < 1")
	}
	if o.LabelPolicy != PolicyHighConfidence && o.LabelPolicy != PolicyAllWeighted {
		return fmt.Errorf("label policy must be %q or %q", PolicyHighConfidence, PolicyAllWeighted)
	}
	if o.WeakWeight <= 0 || o.WeakWeight > 1 {
		return fmt.Errorf("weak weight must be > 0 and <= 1")
	}
	if o.Thresholds.MinRows < 1 {
		return fmt.Errorf("min rows must be >= 1")
	}
	if o.Thresholds.MinClassRows < 1 {
		return fmt.Errorf("min class rows must be >= 1")
	}
	if o.Thresholds.MinResponseRate < 0 || o.Thresholds.MinResponseRate > 1 {
		return fmt.Errorf("min response rate must be between 0 and 1")
	}
	if o.Thresholds.MaxDisagreementRate < 0 || o.Thresholds.MaxDisagreementRate > 1 {
		return fmt.Errorf("max disagreement rate must be between 0 and 1")
	}
	return nil
}

// TimeRange is an ISO-8601 interval over row start times.
type TimeRange struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

// GateReport is the gate section of the split report, thresholds
// included so the report stands alone.
type GateReport struct {
	ReadyForTraining    bool           `json:"readyForTraining"`
	MinRows             int            `json:"minRows"`
	MinClassRows        int            `json:"minClassRows"`
	MinResponseRate     float64        `json:"minResponseRate"`
	MaxDisagreementRate float64        `json:"maxDisagreementRate"`
	Totals              Totals         `json:"totals"`
	ClassCounts         map[string]int `json:"classCounts"`
	ClassCountsAll      map[string]int `json:"classCountsAll"`
	Rates               Rates          `json:"rates"`
	BlockingIssues      []string       `json:"blockingIssues"`
	Warnings            []string       `json:"warnings"`
}

// Report describes a completed gate and split run.
type Report struct {
	Input            string     `json:"input"`
	Schema           string     `json:"schema"`
	RuleVersion      string     `json:"ruleVersion"`
	ExcludeDebug     bool       `json:"excludeDebug"`
	LabelPolicy      string     `json:"labelPolicy"`
	WeakWeight       float64    `json:"weakWeight"`
	TrainRatio       float64    `json:"trainRatio"`
	EnforceQuality   bool       `json:"enforceQuality"`
	QualityGate      GateReport `json:"qualityGate"`
	TotalInputRows   int        `json:"totalInputRows"`
	TotalFilteredRow int        `json:"totalFilteredRows"`
	TotalSplitRows   int        `json:"totalSplitRows"`
	TrainRows        int        `json:"trainRows"`
	TestRows         int        `json:"testRows"`
	TrainTimeRange   TimeRange  `json:"trainTimeRange"`
	TestTimeRange    TimeRange  `json:"testTimeRange"`
}

// GateError reports a failed enforced quality gate.
type GateError struct {
	Issues []string
}

func (e *GateError) Error() string {
	return fmt.Sprintf("data-quality gate failed: %d blocking issues", len(e.Issues))
}

// filterRows applies the schema/rule/debug/startTime pre-filter.
func filterRows(rows []Row, o SplitOptions) []Row {
	filtered := make([]Row, 0, len(rows))
	for _, row := range rows {
		if row["sessionSchemaVersion"] != o.Schema {
			continue
		}
		if row["ruleVersion"] != o.RuleVersion {
			continue
		}
		if o.ExcludeDebug && hasDebugFlag(row) {
			continue
		}
		if _, ok := parseMillis(row["startTime"]); !ok {
			continue
		}
		filtered = append(filtered, row)
	}
	return filtered
}

func isoStartTime(row Row) *string {
	ms, ok := parseMillis(row["startTime"])
	if !ok {
		return nil
	}
	s := time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
	return &s
}

func timeRangeOf(rows []Row) TimeRange {
	if len(rows) == 0 {
		return TimeRange{}
	}
	return TimeRange{
		Start: isoStartTime(rows[0]),
		End:   isoStartTime(rows[len(rows)-1]),
	}
}

// RunSplit runs the full pipeline: read, filter, gate, time-ordered
// split, leakage check, and writes train_split.csv, test_split.csv and
// split_report.json to OutDir. When the enforced gate fails, nothing is
// written and the error is a *GateError.
func RunSplit(o SplitOptions) (*Report, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	header, rows, err := ReadRows(o.Input)
	if err != nil {
		return nil, err
	}

	filtered := filterRows(rows, o)
	gate := ComputeGate(filtered, o.Thresholds)

	if o.EnforceQuality && !gate.ReadyForTraining {
		return nil, &GateError{Issues: gate.BlockingIssues}
	}

	base := gate.HighConfidenceRows
	if o.LabelPolicy == PolicyAllWeighted {
		base = append(append([]Row{}, gate.HighConfidenceRows...), gate.WeakRows...)
	}

	splitRows := make([]Row, 0, len(base))
	for _, row := range base {
		if parseRiskLabel(row["finalLabel"]) < 0 {
			continue
		}
		if _, ok := parseMillis(row["startTime"]); !ok {
			continue
		}
		out := Row{}
		for k, v := range row {
			out[k] = v
		}
		tier := confidenceTier(row)
		out["labelTier"] = tier
		if tier == "high" {
			out["sampleWeight"] = "1"
		} else {
			out["sampleWeight"] = strconv.FormatFloat(o.WeakWeight, 'f', -1, 64)
		}
		splitRows = append(splitRows, out)
	}

	sort.SliceStable(splitRows, func(i, j int) bool {
		a, _ := parseMillis(splitRows[i]["startTime"])
		b, _ := parseMillis(splitRows[j]["startTime"])
		return a < b
	})
	if len(splitRows) < 2 {
		return nil, fmt.Errorf("not enough filtered rows to split")
	}

	splitIndex := int(float64(len(splitRows)) * o.TrainRatio)
	if splitIndex < 1 {
		splitIndex = 1
	}
	if splitIndex > len(splitRows)-1 {
		splitIndex = len(splitRows) - 1
	}
	trainRows := splitRows[:splitIndex]
	testRows := splitRows[splitIndex:]

	trainIDs := make(map[string]bool, len(trainRows))
	for _, row := range trainRows {
		trainIDs[row["sessionId"]] = true
	}
	for _, row := range testRows {
		if trainIDs[row["sessionId"]] {
			return nil, fmt.Errorf("leakage detected: train/test share sessionId")
		}
	}

	if err := os.MkdirAll(o.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	outHeader := append([]string{}, header...)
	if !containsColumn(outHeader, "labelTier") {
		outHeader = append(outHeader, "labelTier")
	}
	if !containsColumn(outHeader, "sampleWeight") {
		outHeader = append(outHeader, "sampleWeight")
	}

	trainPath := filepath.Join(o.OutDir, "train_split.csv")
	testPath := filepath.Join(o.OutDir, "test_split.csv")
	reportPath := filepath.Join(o.OutDir, "split_report.json")

	if err := WriteRows(trainPath, outHeader, trainRows); err != nil {
		return nil, err
	}
	if err := WriteRows(testPath, outHeader, testRows); err != nil {
		return nil, err
	}

	absInput, err := filepath.Abs(o.Input)
	if err != nil {
		absInput = o.Input
	}
	report := &Report{
		Input:          absInput,
		Schema:         o.Schema,
		RuleVersion:    o.RuleVersion,
		ExcludeDebug:   o.ExcludeDebug,
		LabelPolicy:    o.LabelPolicy,
		WeakWeight:     o.WeakWeight,
		TrainRatio:     o.TrainRatio,
		EnforceQuality: o.EnforceQuality,
		QualityGate: GateReport{
			ReadyForTraining:    gate.ReadyForTraining,
			MinRows:             o.Thresholds.MinRows,
			MinClassRows:        o.Thresholds.MinClassRows,
			MinResponseRate:     o.Thresholds.MinResponseRate,
			MaxDisagreementRate: o.Thresholds.MaxDisagreementRate,
			Totals:              gate.Totals,
			ClassCounts:         gate.ClassCounts,
			ClassCountsAll:      gate.ClassCountsAll,
			Rates:               gate.Rates,
			BlockingIssues:      gate.BlockingIssues,
			Warnings:            gate.Warnings,
		},
		TotalInputRows:   len(rows),
		TotalFilteredRow: len(filtered),
		TotalSplitRows:   len(splitRows),
		TrainRows:        len(trainRows),
		TestRows:         len(testRows),
		TrainTimeRange:   timeRangeOf(trainRows),
		TestTimeRange:    timeRangeOf(testRows),
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(reportPath, append(encoded, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	return report, nil
}

func containsColumn(header []string, name string) bool {
	for _, col := range header {
		if col == name {
			return true
		}
	}
	return false
}
