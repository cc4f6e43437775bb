package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var binaryPath string

func TestMain(m *testing.M) {
	projectRoot := getProjectRoot()

	binaryPath = filepath.Join(projectRoot, "tabwarden_test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/tabwarden")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		panic("Failed to build binary: " + err.Error() + "\nOutput: " + string(output))
	}

	code := m.Run()

	_ = os.Remove(binaryPath)
	os.Exit(code)
}

func getProjectRoot() string {
	wd, _ := os.Getwd()
	return filepath.Join(wd, "..", "..")
}

func runTabwarden(args ...string) (string, string, error) {
	cmd := exec.Command(binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// writeSessionsCSV renders a minimal session log the split pipeline
// accepts: n confirmed rows spread over the three classes, one minute
// apart.
func writeSessionsCSV(t *testing.T, dir string, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("sessionSchemaVersion,sessionId,domain,startTime,endReason,riskLevel,ruleVersion,provisionalLabel,finalLabel,labelConfidence,isDebugRow,debugSources,promptSkipped,q1LongerThanIntended,q2HardToStop\n")
	base := int64(1700000000000)
	for i := 0; i < n; i++ {
		label := i % 3
		fmt.Fprintf(&b, "3,s%03d,example.com,%d,tab_closed,1,phase1_mode_v1,%d,%d,confirmed,false,,false,yes,\n",
			i, base+int64(i)*60000, label, label)
	}

	path := filepath.Join(dir, "sessions.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("failed to write sessions CSV: %v", err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := runTabwarden("version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(stdout, "tabwarden") {
		t.Errorf("version output = %q", stdout)
	}
}

func TestSplitCommandWritesDataset(t *testing.T) {
	dir := t.TempDir()
	input := writeSessionsCSV(t, dir, 60)
	outDir := filepath.Join(dir, "dataset")

	stdout, stderr, err := runTabwarden("split", "--in", input, "--out-dir", outDir)
	if err != nil {
		t.Fatalf("split failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "train_split.csv (48 rows)") {
		t.Errorf("stdout = %q", stdout)
	}

	raw, err := os.ReadFile(filepath.Join(outDir, "split_report.json"))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var report map[string]any
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if report["trainRows"] != float64(48) || report["testRows"] != float64(12) {
		t.Errorf("report rows = %v/%v", report["trainRows"], report["testRows"])
	}
	gate, _ := report["qualityGate"].(map[string]any)
	if gate == nil || gate["readyForTraining"] != true {
		t.Errorf("quality gate = %v", gate)
	}

	for _, name := range []string{"train_split.csv", "test_split.csv"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestSplitCommandEnforcesGate(t *testing.T) {
	dir := t.TempDir()
	input := writeSessionsCSV(t, dir, 10)
	outDir := filepath.Join(dir, "dataset")

	_, stderr, err := runTabwarden("split", "--in", input, "--out-dir", outDir)
	if err == nil {
		t.Fatal("failing gate must exit non-zero")
	}
	if !strings.Contains(stderr, "Data-quality gate failed:") {
		t.Errorf("stderr = %q", stderr)
	}
	if !strings.Contains(stderr, "high-confidence rows") {
		t.Errorf("stderr lacks the gate issue: %q", stderr)
	}
	if _, err := os.Stat(filepath.Join(outDir, "train_split.csv")); !os.IsNotExist(err) {
		t.Error("train split written despite failed gate")
	}
}

func TestSplitCommandRequiresInput(t *testing.T) {
	_, _, err := runTabwarden("split")
	if err == nil {
		t.Fatal("split without --in must fail")
	}
}

func TestExportCommandEmptyStore(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	config := fmt.Sprintf("settings:\n  database_path: %s\n", filepath.Join(dir, "state.db"))
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	stdout, stderr, err := runTabwarden("--config", configPath, "export")
	if err != nil {
		t.Fatalf("export failed: %v\nstderr: %s", err, stderr)
	}
	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("empty store exported %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "sessionSchemaVersion,sessionId,") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasSuffix(lines[0], ",q1LongerThanIntended,q2HardToStop") {
		t.Errorf("header tail = %q", lines[0])
	}
}
