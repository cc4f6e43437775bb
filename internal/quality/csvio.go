// Package quality implements the offline data-quality gate and the
// leakage-checked, time-ordered train/test split over exported session
// logs.
package quality

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Row is one CSV data row keyed by header column. Unknown columns pass
// through untouched so the split can re-emit the input contract plus
// its own columns.
type Row map[string]string

// ReadRows parses a session-log CSV into header order and rows.
func ReadRows(path string) ([]string, []Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("CSV has no data rows")
	}

	header := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, cells := range records[1:] {
		row := Row{}
		for i, col := range header {
			if i < len(cells) {
				row[col] = cells[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// WriteRows writes rows under the given header order.
func WriteRows(path string, header []string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			record[i] = row[col]
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func hasDebugFlag(row Row) bool {
	if parseBool(row["isDebugRow"]) {
		return true
	}
	return strings.TrimSpace(row["debugSources"]) != ""
}

// parseRiskLabel returns a 0/1/2 risk class, or -1 when the value is
// not a valid class.
func parseRiskLabel(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 || n > 2 {
		return -1
	}
	return n
}

func parseMillis(value string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
