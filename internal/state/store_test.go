package state

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/tabwarden/tabwarden/internal/session"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testRecord(id string, startTime int64) *session.Record {
	return &session.Record{
		SchemaVersion:    session.SchemaVersion,
		SessionID:        id,
		Domain:           "example.com",
		StartTime:        startTime,
		EndTime:          startTime + 60_000,
		EndReason:        session.EndTabClosed,
		ActiveTimeSec:    60,
		Mode:             "default",
		RuleVersion:      "phase1_mode_v1",
		ProvisionalLabel: 1,
		FinalLabel:       1,
		LabelSource:      session.SourceHybridSkipped,
		LabelConfidence:  session.ConfidenceRuleOnly,
	}
}

func TestLoadDefaults(t *testing.T) {
	store := newTestStore(t)

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !st.TrackingEnabled {
		t.Error("tracking should default to enabled")
	}
	if st.Mode != "default" {
		t.Errorf("mode = %q, want default", st.Mode)
	}
	if st.IdleTimeoutMin != DefaultIdleTimeoutMin {
		t.Errorf("idle timeout = %d, want %d", st.IdleTimeoutMin, DefaultIdleTimeoutMin)
	}
}

func TestPatchRoundtrip(t *testing.T) {
	store := newTestStore(t)

	err := store.Patch(map[string]any{
		KeyTrackingEnabled: false,
		KeyMode:            "entertainment",
		KeyIdleTimeoutMin:  10,
		KeyCooldowns:       map[string]int64{"example.com": 12345},
	})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.TrackingEnabled {
		t.Error("tracking should be disabled after patch")
	}
	if st.Mode != "entertainment" {
		t.Errorf("mode = %q", st.Mode)
	}
	if st.IdleTimeoutMin != 10 {
		t.Errorf("idle timeout = %d", st.IdleTimeoutMin)
	}
	if st.Cooldowns["example.com"] != 12345 {
		t.Errorf("cooldowns = %v", st.Cooldowns)
	}
}

func TestPatchNilDeletesKey(t *testing.T) {
	store := newTestStore(t)

	cur := session.New("example.com", "https://example.com", "tab-1", time.Now().UnixMilli(), 0)
	if err := store.Patch(map[string]any{KeyCurrentSession: cur}); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.CurrentSession == nil || st.CurrentSession.SessionID != cur.SessionID {
		t.Fatal("session snapshot not persisted")
	}

	if err := store.Patch(map[string]any{KeyCurrentSession: nil}); err != nil {
		t.Fatalf("Patch nil: %v", err)
	}
	st, err = store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.CurrentSession != nil {
		t.Error("nil patch should clear the session snapshot")
	}
}

func TestAppendRecordFIFOTrim(t *testing.T) {
	store := newTestStore(t)

	total := session.MaxRecords + 5
	for i := 0; i < total; i++ {
		rec := testRecord(fmt.Sprintf("session-%04d", i), int64(1000+i))
		if err := store.AppendRecord(rec); err != nil {
			t.Fatalf("AppendRecord %d: %v", i, err)
		}
	}

	records, err := store.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != session.MaxRecords {
		t.Fatalf("got %d records, want %d", len(records), session.MaxRecords)
	}
	if records[0].SessionID != "session-0005" {
		t.Errorf("oldest surviving record = %s, want session-0005", records[0].SessionID)
	}
	if records[len(records)-1].SessionID != fmt.Sprintf("session-%04d", total-1) {
		t.Errorf("newest record = %s", records[len(records)-1].SessionID)
	}
}

func TestGetRecord(t *testing.T) {
	store := newTestStore(t)

	if err := store.AppendRecord(testRecord("session-1", 1000)); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}

	rec, err := store.GetRecord("session-1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.Domain != "example.com" {
		t.Errorf("domain = %q", rec.Domain)
	}

	if _, err := store.GetRecord("missing"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("missing record error = %v, want ErrRecordNotFound", err)
	}
}

func TestApplyPromptAnswersOnce(t *testing.T) {
	store := newTestStore(t)

	if err := store.AppendRecord(testRecord("session-1", 1000)); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}

	rec, err := store.GetRecord("session-1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	q2 := 4
	rec.Q1LongerThanIntended = "yes"
	rec.Q2HardToStop = &q2
	rec.FinalLabel = 2
	rec.LabelSource = session.SourceHybridAdjusted
	rec.LabelConfidence = session.ConfidenceAdjusted

	if err := store.ApplyPromptAnswers(rec); err != nil {
		t.Fatalf("first ApplyPromptAnswers: %v", err)
	}

	stored, err := store.GetRecord("session-1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if stored.Q1LongerThanIntended != "yes" || stored.Q2HardToStop == nil || *stored.Q2HardToStop != 4 {
		t.Errorf("answers not persisted: %+v", stored)
	}
	if stored.FinalLabel != 2 {
		t.Errorf("final label = %d, want 2", stored.FinalLabel)
	}

	if err := store.ApplyPromptAnswers(rec); !errors.Is(err, ErrAlreadyRated) {
		t.Errorf("second write error = %v, want ErrAlreadyRated", err)
	}

	missing := testRecord("missing", 1000)
	missing.Q1LongerThanIntended = "no"
	if err := store.ApplyPromptAnswers(missing); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("missing record error = %v, want ErrRecordNotFound", err)
	}
}

func TestClearAll(t *testing.T) {
	store := newTestStore(t)

	if err := store.Patch(map[string]any{KeyMode: "entertainment"}); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if err := store.AppendRecord(testRecord("session-1", 1000)); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}

	if err := store.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Mode != "default" {
		t.Errorf("mode after clear = %q, want default", st.Mode)
	}
	records, err := store.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records after clear", len(records))
	}
}
