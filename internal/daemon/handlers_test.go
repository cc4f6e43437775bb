package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tabwarden/tabwarden/internal/browser"
	"github.com/tabwarden/tabwarden/internal/config"
	"github.com/tabwarden/tabwarden/internal/state"
	"github.com/tabwarden/tabwarden/internal/track"
)

// stubTabs satisfies the browser interface with no browser attached.
type stubTabs struct{}

func (stubTabs) ActiveTab(context.Context) (*browser.Tab, error) { return nil, nil }

func (stubTabs) Get(context.Context, string) (*browser.Tab, error) {
	return nil, errors.New("no tab")
}

func (stubTabs) Navigate(context.Context, string, string) error { return errors.New("no tab") }

func (stubTabs) Create(context.Context, string) (*browser.Tab, error) {
	return nil, errors.New("no tab")
}

func (stubTabs) Close(context.Context, string) error { return errors.New("no tab") }

func (stubTabs) List(context.Context) ([]browser.Tab, error) { return nil, nil }

type stubNotifier struct{}

func (stubNotifier) Notify(context.Context, string, string) error { return nil }

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	store, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.DefaultConfig()
	engine := track.New(cfg, store, stubTabs{}, stubNotifier{}, PagesBase(cfg))
	return NewHandlers(engine, cfg, "test")
}

func postMessage(t *testing.T, h *Handlers, payload string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/message", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	h.Message(rec, req)

	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response is not JSON: %v (%q)", err, rec.Body.String())
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}
}

func TestMessageRejectsInvalidEnvelope(t *testing.T) {
	h := newTestHandlers(t)

	rec, resp := postMessage(t, h, "not json")
	if rec.Code != http.StatusBadRequest || resp["ok"] != false {
		t.Errorf("invalid JSON: status=%d resp=%v", rec.Code, resp)
	}

	rec, resp = postMessage(t, h, `{"type":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty type accepted: %v", resp)
	}

	rec, resp = postMessage(t, h, `{"type":"no_such_command"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type accepted: %v", resp)
	}
	if msg, _ := resp["error"].(string); !strings.Contains(msg, "no_such_command") {
		t.Errorf("error does not name the type: %v", resp)
	}
}

func TestMessageSetMode(t *testing.T) {
	h := newTestHandlers(t)
	rec, resp := postMessage(t, h, `{"type":"set_mode","mode":"entertainment"}`)
	if rec.Code != http.StatusOK || resp["ok"] != true {
		t.Fatalf("status=%d resp=%v", rec.Code, resp)
	}
	if resp["mode"] != "entertainment" || resp["modeLabel"] != "Entertainment" {
		t.Errorf("resp = %v", resp)
	}

	// Unknown modes sanitize to the default.
	_, resp = postMessage(t, h, `{"type":"set_mode","mode":"warp_speed"}`)
	if resp["mode"] != "default" {
		t.Errorf("unsanitized mode: %v", resp)
	}
}

func TestMessageSetIdleTimeoutSanitizes(t *testing.T) {
	h := newTestHandlers(t)
	_, resp := postMessage(t, h, `{"type":"set_idle_timeout","minutes":7}`)
	if resp["ok"] != true {
		t.Fatalf("resp = %v", resp)
	}
	if resp["minutes"] != float64(5) {
		t.Errorf("minutes = %v, want sanitized 5", resp["minutes"])
	}
}

func TestMessageCommandErrorKeepsHTTP200(t *testing.T) {
	h := newTestHandlers(t)
	// Debug actions require debug mode; the failure is a command-level
	// error, not a transport one.
	rec, resp := postMessage(t, h, `{"type":"debug_simulate_10_min"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if resp["ok"] != false || resp["error"] == "" {
		t.Errorf("resp = %v", resp)
	}
}

func TestMessageExportCSVEmpty(t *testing.T) {
	h := newTestHandlers(t)
	_, resp := postMessage(t, h, `{"type":"export_csv"}`)
	if resp["ok"] != true {
		t.Fatalf("resp = %v", resp)
	}
	if resp["rows"] != float64(0) {
		t.Errorf("rows = %v", resp["rows"])
	}
	csv, _ := resp["csv"].(string)
	if !strings.HasPrefix(csv, "sessionSchemaVersion,sessionId,") {
		t.Errorf("csv header = %q", csv)
	}
}

func TestMessageGetPopupState(t *testing.T) {
	h := newTestHandlers(t)
	_, resp := postMessage(t, h, `{"type":"get_popup_state"}`)
	if resp["ok"] != true {
		t.Fatalf("resp = %v", resp)
	}
	data, _ := resp["data"].(map[string]any)
	if data == nil {
		t.Fatalf("no data field: %v", resp)
	}
	if data["trackingEnabled"] != true || data["mode"] != "default" {
		t.Errorf("popup state = %v", data)
	}
	if data["countStatusReason"] != "no_session" {
		t.Errorf("count status = %v", data["countStatusReason"])
	}
}

func TestMessageGetDataQualityReport(t *testing.T) {
	h := newTestHandlers(t)
	_, resp := postMessage(t, h, `{"type":"get_data_quality_report"}`)
	if resp["ok"] != true {
		t.Fatalf("resp = %v", resp)
	}
	data, _ := resp["data"].(map[string]any)
	if data == nil {
		t.Fatalf("no data field: %v", resp)
	}
	if data["readyForTraining"] != false {
		t.Errorf("empty store cannot be training-ready: %v", data)
	}
}

func TestMessageSetQualityThresholds(t *testing.T) {
	h := newTestHandlers(t)
	_, resp := postMessage(t, h, `{"type":"set_quality_thresholds","minRows":80}`)
	if resp["ok"] != true {
		t.Fatalf("resp = %v", resp)
	}
	thresholds, _ := resp["thresholds"].(map[string]any)
	if thresholds == nil {
		t.Fatalf("no thresholds field: %v", resp)
	}
	if thresholds["MinRows"] != float64(80) {
		t.Errorf("thresholds = %v", thresholds)
	}
}

func TestPagesBase(t *testing.T) {
	cfg := config.DefaultConfig()
	if got := PagesBase(cfg); got != "http://127.0.0.1:8746" {
		t.Errorf("PagesBase = %q", got)
	}
}
