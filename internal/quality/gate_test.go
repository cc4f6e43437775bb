package quality

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
)

func defaultThresholds() Thresholds {
	return Thresholds{
		MinRows:             60,
		MinClassRows:        10,
		MinResponseRate:     0.4,
		MaxDisagreementRate: 0.6,
	}
}

// confirmedRow is a prompt-eligible, answered, high-confidence row whose
// provisional and final labels agree.
func confirmedRow(id string, label int) Row {
	l := strconv.Itoa(label)
	return Row{
		"sessionId":            id,
		"finalLabel":           l,
		"provisionalLabel":     l,
		"riskLevel":            "1",
		"labelConfidence":      "confirmed",
		"endReason":            "tab_closed",
		"q1LongerThanIntended": "yes",
		"q2HardToStop":         "",
		"promptSkipped":        "false",
		"isDebugRow":           "false",
		"debugSources":         "",
	}
}

// balancedRows yields n high-confidence rows spread evenly over the
// three classes.
func balancedRows(n int) []Row {
	rows := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, confirmedRow(fmt.Sprintf("s%03d", i), i%3))
	}
	return rows
}

func hasIssue(issues []string, want string) bool {
	for _, issue := range issues {
		if issue == want {
			return true
		}
	}
	return false
}

func hasWarning(warnings []string, want string) bool {
	return hasIssue(warnings, want)
}

func TestGateReadyWhenThresholdsMet(t *testing.T) {
	res := ComputeGate(balancedRows(60), defaultThresholds())
	if !res.ReadyForTraining {
		t.Fatalf("gate not ready: %v", res.BlockingIssues)
	}
	if res.Totals.HighConfidenceRows != 60 {
		t.Errorf("high-confidence rows = %d", res.Totals.HighConfidenceRows)
	}
	if res.ClassCounts["0"] != 20 || res.ClassCounts["1"] != 20 || res.ClassCounts["2"] != 20 {
		t.Errorf("class counts = %v", res.ClassCounts)
	}
	if res.Rates.ResponseRate != 1 {
		t.Errorf("response rate = %v", res.Rates.ResponseRate)
	}
	if res.Rates.DisagreementRate != 0 {
		t.Errorf("disagreement rate = %v", res.Rates.DisagreementRate)
	}
}

func TestGateMinRowsBoundary(t *testing.T) {
	res := ComputeGate(balancedRows(59), defaultThresholds())
	if res.ReadyForTraining {
		t.Fatal("59 rows should not pass a 60-row gate")
	}
	if !hasIssue(res.BlockingIssues, "Need at least 60 high-confidence rows (current: 59).") {
		t.Errorf("issues = %v", res.BlockingIssues)
	}
}

func TestGateClassImbalance(t *testing.T) {
	// All sixty rows in one class: the total passes, the per-class
	// minimum does not.
	rows := make([]Row, 0, 60)
	for i := 0; i < 60; i++ {
		rows = append(rows, confirmedRow(fmt.Sprintf("s%03d", i), 1))
	}
	res := ComputeGate(rows, defaultThresholds())
	if res.ReadyForTraining {
		t.Fatal("imbalanced classes should block")
	}
	want := "High-confidence class imbalance: need >=10 per class (Low=0, Medium=60, High=0)."
	if !hasIssue(res.BlockingIssues, want) {
		t.Errorf("issues = %v", res.BlockingIssues)
	}
}

func TestGateResponseRateBelowMinimum(t *testing.T) {
	rows := balancedRows(60)
	for _, row := range rows {
		row["q1LongerThanIntended"] = ""
	}
	res := ComputeGate(rows, defaultThresholds())
	if res.ReadyForTraining {
		t.Fatal("unanswered prompts should block")
	}
	if !hasIssue(res.BlockingIssues, "Prompt response rate 0% is below minimum 40%.") {
		t.Errorf("issues = %v", res.BlockingIssues)
	}
	if res.Totals.PromptEligibleRows != 60 || res.Totals.PromptAnsweredRows != 0 {
		t.Errorf("totals = %+v", res.Totals)
	}
}

func TestGateResponseRateDefaultsToOne(t *testing.T) {
	// forced_end rows are never prompt-eligible, so the rate has no
	// denominator and must not block.
	rows := balancedRows(60)
	for _, row := range rows {
		row["endReason"] = "forced_end"
	}
	res := ComputeGate(rows, defaultThresholds())
	if res.Rates.ResponseRate != 1 {
		t.Errorf("response rate = %v, want 1", res.Rates.ResponseRate)
	}
	found := false
	for _, w := range res.Warnings {
		if w == "No prompt-eligible sessions found." {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestGateDisagreementAdvisoryUnderTenRows(t *testing.T) {
	// Nine comparable rows, all disagreeing: 100% disagreement, but the
	// monitor only blocks at 10+ comparable rows.
	rows := balancedRows(60)
	for i := 0; i < 60; i++ {
		if i < 9 {
			rows[i]["provisionalLabel"] = strconv.Itoa((parseRiskLabel(rows[i]["finalLabel"]) + 1) % 3)
		} else {
			rows[i]["q1LongerThanIntended"] = "yes"
			rows[i]["q2HardToStop"] = ""
			// Keep only nine answered rows comparable.
			rows[i]["promptSkipped"] = "true"
		}
	}
	res := ComputeGate(rows, defaultThresholds())
	if res.Totals.ComparablePromptRows != 9 {
		t.Fatalf("comparable rows = %d, want 9", res.Totals.ComparablePromptRows)
	}
	for _, issue := range res.BlockingIssues {
		if strings.Contains(issue, "disagreement") {
			t.Errorf("disagreement blocked below 10 comparable rows: %q", issue)
		}
	}
	found := false
	for _, w := range res.Warnings {
		if w == "Only 9 comparable prompt rows; disagreement monitoring stabilizes at 10+ rows." {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestGateDisagreementBlocksAtTenPlus(t *testing.T) {
	rows := balancedRows(60)
	for _, row := range rows {
		row["provisionalLabel"] = strconv.Itoa((parseRiskLabel(row["finalLabel"]) + 1) % 3)
	}
	res := ComputeGate(rows, defaultThresholds())
	if res.ReadyForTraining {
		t.Fatal("100% disagreement over 60 rows should block")
	}
	if !hasIssue(res.BlockingIssues, "Prompt disagreement rate 100% is above maximum 60%.") {
		t.Errorf("issues = %v", res.BlockingIssues)
	}
}

func TestGateSetsDebugRowsAside(t *testing.T) {
	rows := balancedRows(60)
	debug := confirmedRow("dbg", 1)
	debug["debugSources"] = "debug_simulate_10_min"
	rows = append(rows, debug)

	res := ComputeGate(rows, defaultThresholds())
	if !res.ReadyForTraining {
		t.Fatalf("gate not ready: %v", res.BlockingIssues)
	}
	if res.Totals.DebugRows != 1 {
		t.Errorf("debug rows = %d", res.Totals.DebugRows)
	}
	if res.Totals.HighConfidenceRows != 60 {
		t.Errorf("debug row leaked into population: %d", res.Totals.HighConfidenceRows)
	}
	found := false
	for _, w := range res.Warnings {
		if w == "1 debug rows detected." {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestGateWarnsOnHighDebugRatio(t *testing.T) {
	rows := balancedRows(60)
	for i := 0; i < 20; i++ {
		debug := confirmedRow(fmt.Sprintf("dbg%02d", i), 1)
		debug["isDebugRow"] = "true"
		rows = append(rows, debug)
	}

	// 20 of 80 labeled rows are debug-touched.
	res := ComputeGate(rows, defaultThresholds())
	if !hasWarning(res.Warnings, "Debug rows are 25% of the dataset (threshold 15%).") {
		t.Errorf("warnings = %v", res.Warnings)
	}

	// 10 of 70 is 14%, under the threshold.
	res = ComputeGate(rows[:70], defaultThresholds())
	for _, w := range res.Warnings {
		if strings.Contains(w, "threshold 15%") {
			t.Errorf("ratio warning below threshold: %q", w)
		}
	}
}

func TestGateWarnsOnHighForcedEndRatio(t *testing.T) {
	rows := balancedRows(60)
	for _, row := range rows {
		row["endReason"] = "forced_end"
	}
	res := ComputeGate(rows, defaultThresholds())
	if !hasWarning(res.Warnings, "Forced-end sessions are 100% of the dataset (threshold 85%).") {
		t.Errorf("warnings = %v", res.Warnings)
	}

	// Exactly 85% forced does not warn; the threshold is exclusive.
	rows = balancedRows(60)
	for i := 0; i < 51; i++ {
		rows[i]["endReason"] = "forced_end"
	}
	res = ComputeGate(rows, defaultThresholds())
	for _, w := range res.Warnings {
		if strings.Contains(w, "Forced-end") {
			t.Errorf("ratio warning at the boundary: %q", w)
		}
	}
}

func TestGatePartitionsWeakRows(t *testing.T) {
	rows := balancedRows(60)
	weak := confirmedRow("weak", 2)
	weak["labelConfidence"] = "rule_only"
	rows = append(rows, weak)

	res := ComputeGate(rows, defaultThresholds())
	if res.Totals.WeakRows != 1 {
		t.Fatalf("weak rows = %d", res.Totals.WeakRows)
	}
	if res.ClassCounts["2"] != 20 {
		t.Errorf("weak row counted as high confidence: %v", res.ClassCounts)
	}
	if res.ClassCountsAll["2"] != 21 {
		t.Errorf("weak row missing from all-row counts: %v", res.ClassCountsAll)
	}
	found := false
	for _, w := range res.Warnings {
		if w == "1 weak-confidence rows available for weighted training." {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestGateIgnoresInvalidLabels(t *testing.T) {
	rows := balancedRows(60)
	bad := confirmedRow("bad", 1)
	bad["finalLabel"] = "7"
	rows = append(rows, bad)

	res := ComputeGate(rows, defaultThresholds())
	if res.Totals.HighConfidenceRows != 60 {
		t.Errorf("invalid label counted: %d", res.Totals.HighConfidenceRows)
	}
	if res.Totals.AllFilteredRows != 61 {
		t.Errorf("input total = %d", res.Totals.AllFilteredRows)
	}
}
