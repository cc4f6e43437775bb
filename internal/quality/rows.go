package quality

import (
	"github.com/tabwarden/tabwarden/internal/export"
	"github.com/tabwarden/tabwarden/internal/session"
)

// RowsFromRecords converts in-memory records into the row form the CSV
// pipeline reads back, so the gate can run on live data without a
// round trip through a file.
func RowsFromRecords(records []session.Record) []Row {
	rows := make([]Row, 0, len(records))
	for i := range records {
		values := export.RowValues(&records[i])
		row := Row{}
		for j, col := range export.Columns {
			row[col] = values[j]
		}
		rows = append(rows, row)
	}
	return rows
}
