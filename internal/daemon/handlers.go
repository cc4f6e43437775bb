package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tabwarden/tabwarden/internal/config"
	"github.com/tabwarden/tabwarden/internal/export"
	"github.com/tabwarden/tabwarden/internal/logger"
	"github.com/tabwarden/tabwarden/internal/quality"
	"github.com/tabwarden/tabwarden/internal/track"
)

// commandFunc handles one message kind. The raw body is the full
// envelope so each command decodes only the fields it needs.
type commandFunc func(r *http.Request, body []byte) (any, error)

// Handlers contains the HTTP handlers for the daemon API
type Handlers struct {
	engine    *track.Engine
	cfg       *config.Config
	startedAt time.Time
	version   string

	commands map[string]commandFunc
}

// NewHandlers creates a new handlers instance
func NewHandlers(engine *track.Engine, cfg *config.Config, version string) *Handlers {
	h := &Handlers{
		engine:    engine,
		cfg:       cfg,
		startedAt: time.Now(),
		version:   version,
	}
	h.commands = map[string]commandFunc{
		"get_popup_state":          h.cmdGetPopupState,
		"set_tracking":             h.cmdSetTracking,
		"set_mode":                 h.cmdSetMode,
		"set_idle_timeout":         h.cmdSetIdleTimeout,
		"set_debug":                h.cmdSetDebug,
		"set_quality_thresholds":   h.cmdSetQualityThresholds,
		"debug_simulate_10_min":    h.cmdDebugSimulate10Min,
		"debug_end_session":        h.cmdDebugEndSession,
		"debug_clear_today_domain": h.cmdDebugClearTodayDomain,
		"export_csv":               h.cmdExportCSV,
		"clear_all_data":           h.cmdClearAllData,
		"save_prompt_answers":      h.cmdSavePromptAnswers,
		"stage2_nudge_action":      h.cmdStage2NudgeAction,
		"activity_ping":            h.cmdActivityPing,
		"get_data_quality_report":  h.cmdGetDataQualityReport,
	}
	return h
}

// Health handles the health check endpoint
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   h.version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		StartedAt: h.startedAt,
	}
	writeJSON(w, http.StatusOK, resp)
}

// Message dispatches a typed command envelope.
func (h *Handlers) Message(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request")
		return
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Type == "" {
		writeError(w, http.StatusBadRequest, "invalid message envelope")
		return
	}

	cmd, ok := h.commands[env.Type]
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown message type %q", env.Type))
		return
	}

	result, err := cmd(r, body)
	if err != nil {
		logger.Debug().Err(err).Str("type", env.Type).Msg("Command failed")
		writeError(w, http.StatusOK, err.Error())
		return
	}

	resp := map[string]any{"ok": true}
	if result != nil {
		for k, v := range resultFields(result) {
			resp[k] = v
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// resultFields merges a command result into the {ok:true} envelope.
// Maps merge key by key; anything else lands under "data".
func resultFields(result any) map[string]any {
	if m, ok := result.(map[string]any); ok {
		return m
	}
	return map[string]any{"data": result}
}

func (h *Handlers) cmdGetPopupState(r *http.Request, _ []byte) (any, error) {
	return h.engine.PopupStateNow(r.Context())
}

func (h *Handlers) cmdSetTracking(r *http.Request, body []byte) (any, error) {
	var p setTrackingPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if err := h.engine.SetTracking(r.Context(), p.Enabled); err != nil {
		return nil, err
	}
	return map[string]any{"enabled": p.Enabled}, nil
}

func (h *Handlers) cmdSetMode(_ *http.Request, body []byte) (any, error) {
	var p setModePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	mode, label, err := h.engine.SetMode(p.Mode)
	if err != nil {
		return nil, err
	}
	return map[string]any{"mode": mode, "modeLabel": label}, nil
}

func (h *Handlers) cmdSetIdleTimeout(_ *http.Request, body []byte) (any, error) {
	var p setIdleTimeoutPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	minutes, err := h.engine.SetIdleTimeout(p.Minutes)
	if err != nil {
		return nil, err
	}
	return map[string]any{"minutes": minutes}, nil
}

func (h *Handlers) cmdSetDebug(_ *http.Request, body []byte) (any, error) {
	var p setDebugPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if err := h.engine.SetDebug(p.Enabled); err != nil {
		return nil, err
	}
	return map[string]any{"enabled": p.Enabled}, nil
}

func (h *Handlers) cmdSetQualityThresholds(_ *http.Request, body []byte) (any, error) {
	var p setQualityThresholdsPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	applied := h.engine.SetQualityThresholds(config.Quality{
		MinRows:             p.MinRows,
		MinClassRows:        p.MinClassRows,
		MinResponseRate:     p.MinResponseRate,
		MaxDisagreementRate: p.MaxDisagreementRate,
	})
	return map[string]any{"thresholds": applied}, nil
}

func (h *Handlers) cmdDebugSimulate10Min(r *http.Request, _ []byte) (any, error) {
	if err := h.engine.DebugSimulate10Min(r.Context()); err != nil {
		return nil, err
	}
	return nil, nil
}

func (h *Handlers) cmdDebugEndSession(r *http.Request, _ []byte) (any, error) {
	rec, err := h.engine.DebugEndSession(r.Context())
	if err != nil {
		return nil, err
	}
	return map[string]any{"sessionId": rec.SessionID}, nil
}

func (h *Handlers) cmdDebugClearTodayDomain(r *http.Request, body []byte) (any, error) {
	var p clearTodayDomainPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if err := h.engine.DebugClearTodayDomain(r.Context(), p.Domain); err != nil {
		return nil, err
	}
	return map[string]any{"domain": p.Domain}, nil
}

func (h *Handlers) cmdExportCSV(_ *http.Request, _ []byte) (any, error) {
	records, err := h.engine.Records()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"csv":  export.SessionsCSV(records),
		"rows": len(records),
	}, nil
}

func (h *Handlers) cmdClearAllData(_ *http.Request, _ []byte) (any, error) {
	if err := h.engine.ClearAll(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (h *Handlers) cmdSavePromptAnswers(_ *http.Request, body []byte) (any, error) {
	var p track.PromptAnswers
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	rec, err := h.engine.SavePromptAnswers(p)
	if err != nil {
		return nil, err
	}
	return map[string]any{"domain": rec.Domain}, nil
}

func (h *Handlers) cmdStage2NudgeAction(r *http.Request, body []byte) (any, error) {
	var p track.NudgeRequest
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return h.engine.NudgeAction(r.Context(), p)
}

func (h *Handlers) cmdActivityPing(r *http.Request, body []byte) (any, error) {
	var p activityPingPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if err := h.engine.ActivityPing(r.Context(), p.TabID, p.ActivityType); err != nil {
		return nil, err
	}
	return nil, nil
}

func (h *Handlers) cmdGetDataQualityReport(_ *http.Request, _ []byte) (any, error) {
	records, err := h.engine.Records()
	if err != nil {
		return nil, err
	}
	rows := quality.RowsFromRecords(records)
	q := h.engine.QualityThresholds()
	gate := quality.ComputeGate(rows, quality.Thresholds{
		MinRows:             q.MinRows,
		MinClassRows:        q.MinClassRows,
		MinResponseRate:     q.MinResponseRate,
		MaxDisagreementRate: q.MaxDisagreementRate,
	})
	return gate, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": message})
}
