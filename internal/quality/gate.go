package quality

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Thresholds are the gate's blocking limits.
type Thresholds struct {
	MinRows             int     `json:"minRows"`
	MinClassRows        int     `json:"minClassRows"`
	MinResponseRate     float64 `json:"minResponseRate"`
	MaxDisagreementRate float64 `json:"maxDisagreementRate"`
}

// Totals counts the row populations the gate examined.
type Totals struct {
	AllFilteredRows      int `json:"allFilteredRows"`
	HighConfidenceRows   int `json:"highConfidenceRows"`
	WeakRows             int `json:"weakRows"`
	DebugRows            int `json:"debugRows"`
	PromptEligibleRows   int `json:"promptEligibleRows"`
	PromptAnsweredRows   int `json:"promptAnsweredRows"`
	ComparablePromptRows int `json:"comparablePromptRows"`
}

// Rates are the derived quality ratios.
type Rates struct {
	ResponseRate     float64 `json:"responseRate"`
	DisagreementRate float64 `json:"disagreementRate"`
}

// GateResult is the full quality-gate outcome. HighConfidenceRows and
// WeakRows carry the partitioned rows for the split stage.
type GateResult struct {
	ReadyForTraining bool           `json:"readyForTraining"`
	Totals           Totals         `json:"totals"`
	ClassCounts      map[string]int `json:"classCounts"`
	ClassCountsAll   map[string]int `json:"classCountsAll"`
	Rates            Rates          `json:"rates"`
	BlockingIssues   []string       `json:"blockingIssues"`
	Warnings         []string       `json:"warnings"`

	HighConfidenceRows []Row `json:"-"`
	WeakRows           []Row `json:"-"`
}

// confidenceTier buckets a row by label confidence. Only confirmed and
// adjusted labels count as high confidence.
func confidenceTier(row Row) string {
	switch strings.ToLower(strings.TrimSpace(row["labelConfidence"])) {
	case "confirmed", "adjusted":
		return "high"
	}
	return "weak"
}

// promptEligible mirrors the runtime prompt trigger: the session ended
// naturally and reached at least medium risk.
func promptEligible(row Row) bool {
	switch row["endReason"] {
	case "tab_closed", "idle_timeout", "idle_5min":
	default:
		return false
	}
	risk := parseRiskLabel(row["riskLevel"])
	provisional := parseRiskLabel(row["provisionalLabel"])
	return risk >= 1 || provisional >= 1
}

// promptMeaningfullyAnswered accepts a yes/no or a valid 1-5 rating,
// and rejects skips.
func promptMeaningfullyAnswered(row Row) bool {
	q1 := strings.ToLower(strings.TrimSpace(row["q1LongerThanIntended"]))
	q2, err := strconv.Atoi(strings.TrimSpace(row["q2HardToStop"]))
	q2Valid := err == nil && q2 >= 1 && q2 <= 5
	skipped := parseBool(row["promptSkipped"]) || q1 == "skip"
	hasResponse := q1 == "yes" || q1 == "no" || q2Valid
	return hasResponse && !skipped
}

func roundPct(rate float64) int {
	return int(math.Round(rate * 100))
}

// ComputeGate evaluates the data-quality gate over already-filtered
// rows. Rows without a valid finalLabel are ignored; debug rows are
// set aside and never counted toward any population.
func ComputeGate(rows []Row, t Thresholds) *GateResult {
	res := &GateResult{
		ClassCounts:    map[string]int{"0": 0, "1": 0, "2": 0},
		ClassCountsAll: map[string]int{"0": 0, "1": 0, "2": 0},
	}
	res.Totals.AllFilteredRows = len(rows)

	var comparable, disagreements, forcedEnds int
	for _, row := range rows {
		label := parseRiskLabel(row["finalLabel"])
		if label < 0 {
			continue
		}
		if hasDebugFlag(row) {
			res.Totals.DebugRows++
			continue
		}

		key := strconv.Itoa(label)
		res.ClassCountsAll[key]++
		if confidenceTier(row) == "high" {
			res.HighConfidenceRows = append(res.HighConfidenceRows, row)
			res.ClassCounts[key]++
		} else {
			res.WeakRows = append(res.WeakRows, row)
		}

		if row["endReason"] == "forced_end" {
			forcedEnds++
		}

		if promptEligible(row) {
			res.Totals.PromptEligibleRows++
			if promptMeaningfullyAnswered(row) {
				res.Totals.PromptAnsweredRows++
			}
		}

		if promptMeaningfullyAnswered(row) {
			if provisional := parseRiskLabel(row["provisionalLabel"]); provisional >= 0 {
				comparable++
				if provisional != label {
					disagreements++
				}
			}
		}
	}
	res.Totals.HighConfidenceRows = len(res.HighConfidenceRows)
	res.Totals.WeakRows = len(res.WeakRows)
	res.Totals.ComparablePromptRows = comparable

	res.Rates.ResponseRate = 1
	if res.Totals.PromptEligibleRows > 0 {
		res.Rates.ResponseRate = float64(res.Totals.PromptAnsweredRows) / float64(res.Totals.PromptEligibleRows)
	}
	if comparable > 0 {
		res.Rates.DisagreementRate = float64(disagreements) / float64(comparable)
	}

	minClassCount := res.ClassCounts["0"]
	for _, key := range []string{"1", "2"} {
		if res.ClassCounts[key] < minClassCount {
			minClassCount = res.ClassCounts[key]
		}
	}

	if len(res.HighConfidenceRows) < t.MinRows {
		res.BlockingIssues = append(res.BlockingIssues, fmt.Sprintf(
			"Need at least %d high-confidence rows (current: %d).",
			t.MinRows, len(res.HighConfidenceRows)))
	}
	if minClassCount < t.MinClassRows {
		res.BlockingIssues = append(res.BlockingIssues, fmt.Sprintf(
			"High-confidence class imbalance: need >=%d per class (Low=%d, Medium=%d, High=%d).",
			t.MinClassRows, res.ClassCounts["0"], res.ClassCounts["1"], res.ClassCounts["2"]))
	}
	if res.Totals.PromptEligibleRows > 0 && res.Rates.ResponseRate < t.MinResponseRate {
		res.BlockingIssues = append(res.BlockingIssues, fmt.Sprintf(
			"Prompt response rate %d%% is below minimum %d%%.",
			roundPct(res.Rates.ResponseRate), roundPct(t.MinResponseRate)))
	}
	if comparable >= 10 && res.Rates.DisagreementRate > t.MaxDisagreementRate {
		res.BlockingIssues = append(res.BlockingIssues, fmt.Sprintf(
			"Prompt disagreement rate %d%% is above maximum %d%%.",
			roundPct(res.Rates.DisagreementRate), roundPct(t.MaxDisagreementRate)))
	}

	if res.Totals.DebugRows > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d debug rows detected.", res.Totals.DebugRows))
	}
	labeled := res.Totals.DebugRows + res.Totals.HighConfidenceRows + res.Totals.WeakRows
	if labeled > 0 {
		if debugRatio := float64(res.Totals.DebugRows) / float64(labeled); debugRatio > 0.15 {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"Debug rows are %d%% of the dataset (threshold 15%%).", roundPct(debugRatio)))
		}
	}
	nonDebug := res.Totals.HighConfidenceRows + res.Totals.WeakRows
	if nonDebug > 0 {
		if forcedRatio := float64(forcedEnds) / float64(nonDebug); forcedRatio > 0.85 {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"Forced-end sessions are %d%% of the dataset (threshold 85%%).", roundPct(forcedRatio)))
		}
	}
	if len(res.WeakRows) > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"%d weak-confidence rows available for weighted training.", len(res.WeakRows)))
	}
	if res.Totals.PromptEligibleRows == 0 {
		res.Warnings = append(res.Warnings, "No prompt-eligible sessions found.")
	} else if comparable < 10 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"Only %d comparable prompt rows; disagreement monitoring stabilizes at 10+ rows.", comparable))
	}

	res.ReadyForTraining = len(res.BlockingIssues) == 0
	return res
}
