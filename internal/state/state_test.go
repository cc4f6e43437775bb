package state

import (
	"testing"
	"time"
)

func TestSanitizeIdleTimeoutMin(t *testing.T) {
	tests := []struct {
		input int
		want  int
	}{
		{3, 3},
		{5, 5},
		{10, 10},
		{0, 5},
		{-1, 5},
		{7, 5},
		{60, 5},
	}

	for _, tt := range tests {
		if got := SanitizeIdleTimeoutMin(tt.input); got != tt.want {
			t.Errorf("SanitizeIdleTimeoutMin(%d) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestEnsureDailyRollover(t *testing.T) {
	day1 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	day2 := time.Date(2025, 6, 2, 0, 5, 0, 0, time.Local)

	st := DefaultState(day1)
	st.DomainTotals["example.com"] = &DomainTotal{DateKey: LocalDateKey(day1), ActiveTimeSecToday: 900}
	st.VisitedToday.Domains["example.com"] = 3
	st.StageNotified[StageNotifyKey(LocalDateKey(day1), "example.com", 1)] = true
	st.Cooldowns["example.com"] = day1.UnixMilli() + 60_000

	if st.EnsureDaily(day1) {
		t.Error("same-day EnsureDaily should not reset")
	}
	if st.DomainTotals["example.com"].ActiveTimeSecToday != 900 {
		t.Error("same-day EnsureDaily dropped totals")
	}

	if !st.EnsureDaily(day2) {
		t.Fatal("next-day EnsureDaily should report a reset")
	}
	if len(st.DomainTotals) != 0 {
		t.Error("rollover should clear domain totals")
	}
	if len(st.VisitedToday.Domains) != 0 || st.VisitedToday.DateKey != LocalDateKey(day2) {
		t.Errorf("rollover should reset visited-today: %+v", st.VisitedToday)
	}
	if len(st.StageNotified) != 0 {
		t.Error("rollover should clear stage notifications")
	}
	if st.LastResetDate != LocalDateKey(day2) {
		t.Errorf("last reset date = %q, want %q", st.LastResetDate, LocalDateKey(day2))
	}
	// Cooldowns expire by timestamp, not by day.
	if _, ok := st.Cooldowns["example.com"]; !ok {
		t.Error("rollover should keep cooldowns")
	}
}

func TestDomainTotalRecordResetsStaleDate(t *testing.T) {
	day1 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	day2 := day1.AddDate(0, 0, 1)

	st := DefaultState(day1)
	st.DomainTotals["example.com"] = &DomainTotal{DateKey: LocalDateKey(day1), ActiveTimeSecToday: 500}

	rec := st.DomainTotalRecord("example.com", day2)
	if rec.ActiveTimeSecToday != 0 || rec.DateKey != LocalDateKey(day2) {
		t.Errorf("stale record not reset: %+v", rec)
	}
	if st.TodayDomainSec("example.com", day2) != 0 {
		t.Error("TodayDomainSec should be zero after reset")
	}
}

func TestSweepExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	nowMs := now.UnixMilli()
	window := time.Hour

	st := DefaultState(now)
	st.Cooldowns["expired.com"] = nowMs - 1
	st.Cooldowns["active.com"] = nowMs + 60_000
	st.Snoozes["lapsed.com"] = nowMs
	st.SnoozeHistory["mixed.com"] = []int64{nowMs - 2*window.Milliseconds(), nowMs - 10_000}
	st.SnoozeHistory["stale.com"] = []int64{nowMs - 2*window.Milliseconds()}

	changed := st.SweepExpired(nowMs, window)

	keys := map[string]bool{}
	for _, k := range changed {
		keys[k] = true
	}
	if !keys[KeyCooldowns] || !keys[KeySnoozes] || !keys[KeySnoozeHistory] {
		t.Errorf("changed keys = %v", changed)
	}

	if _, ok := st.Cooldowns["expired.com"]; ok {
		t.Error("expired cooldown kept")
	}
	if _, ok := st.Cooldowns["active.com"]; !ok {
		t.Error("active cooldown dropped")
	}
	if _, ok := st.Snoozes["lapsed.com"]; ok {
		t.Error("lapsed snooze kept")
	}
	if got := st.SnoozeHistory["mixed.com"]; len(got) != 1 {
		t.Errorf("mixed history = %v, want one recent entry", got)
	}
	if _, ok := st.SnoozeHistory["stale.com"]; ok {
		t.Error("fully stale history should be removed")
	}

	if got := st.SweepExpired(nowMs, window); len(got) != 0 {
		t.Errorf("second sweep should be a no-op, changed %v", got)
	}
}

func TestIsSnoozed(t *testing.T) {
	now := time.Now()
	st := DefaultState(now)
	nowMs := now.UnixMilli()

	st.Snoozes["example.com"] = nowMs + 1000
	if !st.IsSnoozed("example.com", nowMs) {
		t.Error("future snooze should report snoozed")
	}
	if st.IsSnoozed("example.com", nowMs+1000) {
		t.Error("snooze expiring exactly now should not report snoozed")
	}
	if st.IsSnoozed("other.com", nowMs) {
		t.Error("unknown domain should not report snoozed")
	}
}

func TestStageNotifyKey(t *testing.T) {
	got := StageNotifyKey("2025-06-01", "example.com", 2)
	if got != "2025-06-01|example.com|2" {
		t.Errorf("StageNotifyKey = %q", got)
	}
}
