// Package export renders the finalized session log as CSV. The column
// set and order are a fixed contract consumed by the offline split
// pipeline; reorder nothing.
package export

import (
	"strconv"
	"strings"

	"github.com/tabwarden/tabwarden/internal/session"
)

// Columns is the canonical header, in contract order.
var Columns = []string{
	"sessionSchemaVersion",
	"sessionId",
	"domain",
	"url",
	"tabId",
	"startTime",
	"endTime",
	"endReason",
	"activeTimeSec",
	"scrollCount",
	"tabSwitchCount",
	"revisitCount",
	"revisitCountMode",
	"stage",
	"riskLevel",
	"mode",
	"ruleVersion",
	"idleTimeoutMinUsed",
	"provisionalLabel",
	"provisionalScore",
	"finalLabel",
	"labelSource",
	"labelConfidence",
	"isDebugRow",
	"debugSources",
	"stage2Choice",
	"stage2ActionFailed",
	"stage2FailReason",
	"snoozeMinutes",
	"snoozeUntil",
	"breakTriggered",
	"breakType",
	"breakDurationSec",
	"promptShown",
	"promptSkipped",
	"q1LongerThanIntended",
	"q2HardToStop",
}

// Escape quotes a CSV field when it contains a comma, quote, or
// newline. Internal quotes are doubled.
func Escape(value string) string {
	if strings.ContainsAny(value, ",\"\n") {
		return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
	}
	return value
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// RowValues flattens a record into contract order. Values parallel
// Columns index for index.
func RowValues(rec *session.Record) []string {
	q2 := ""
	if rec.Q2HardToStop != nil {
		q2 = strconv.Itoa(*rec.Q2HardToStop)
	}
	return []string{
		strconv.Itoa(rec.SchemaVersion),
		rec.SessionID,
		rec.Domain,
		rec.URL,
		rec.TabID,
		strconv.FormatInt(rec.StartTime, 10),
		strconv.FormatInt(rec.EndTime, 10),
		string(rec.EndReason),
		strconv.Itoa(rec.ActiveTimeSec),
		strconv.Itoa(rec.ScrollCount),
		strconv.Itoa(rec.TabSwitchCount),
		strconv.Itoa(rec.RevisitCount),
		rec.RevisitCountMode,
		strconv.Itoa(rec.Stage),
		strconv.Itoa(rec.RiskLevel),
		rec.Mode,
		rec.RuleVersion,
		strconv.Itoa(rec.IdleTimeoutMinUsed),
		strconv.Itoa(rec.ProvisionalLabel),
		formatScore(rec.ProvisionalScore),
		strconv.Itoa(rec.FinalLabel),
		string(rec.LabelSource),
		string(rec.LabelConfidence),
		formatBool(rec.IsDebugRow),
		strings.Join(rec.DebugSources, ";"),
		string(rec.Stage2Choice),
		formatBool(rec.Stage2ActionFailed),
		rec.Stage2FailReason,
		strconv.Itoa(rec.SnoozeMinutes),
		strconv.FormatInt(rec.SnoozeUntil, 10),
		formatBool(rec.BreakTriggered),
		rec.BreakType,
		strconv.Itoa(rec.BreakDurationSec),
		formatBool(rec.PromptShown),
		formatBool(rec.PromptSkipped),
		rec.Q1LongerThanIntended,
		q2,
	}
}

// SessionsCSV renders records as a complete CSV document, header first.
func SessionsCSV(records []session.Record) string {
	var b strings.Builder
	b.WriteString(strings.Join(Columns, ","))
	for i := range records {
		b.WriteByte('\n')
		values := RowValues(&records[i])
		for j, v := range values {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(Escape(v))
		}
	}
	b.WriteByte('\n')
	return b.String()
}
