package track

import (
	"context"

	"github.com/tabwarden/tabwarden/internal/config"
	"github.com/tabwarden/tabwarden/internal/logger"
	"github.com/tabwarden/tabwarden/internal/rules"
	"github.com/tabwarden/tabwarden/internal/session"
	"github.com/tabwarden/tabwarden/internal/state"
)

// SetTracking toggles tracking. Disabling force-ends the current
// session; enabling adopts the active tab when it is trackable.
func (e *Engine) SetTracking(ctx context.Context, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Patch(map[string]any{state.KeyTrackingEnabled: enabled}); err != nil {
		return err
	}

	if !enabled {
		if e.current != nil {
			if _, err := e.endSession(ctx, session.EndForced); err != nil {
				return err
			}
		}
		logger.Info().Msg("Tracking disabled")
		return nil
	}

	logger.Info().Msg("Tracking enabled")
	tab, err := e.tabs.ActiveTab(ctx)
	if err != nil || tab == nil || !e.trackable(tab.URL) {
		return nil
	}
	return e.syncToActiveTab(ctx, tab, SourceTrackingOn)
}

// SetMode switches the tracking mode. Returns the sanitized mode and
// its display label.
func (e *Engine) SetMode(mode string) (string, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	mode = rules.SanitizeMode(mode)
	if err := e.store.Patch(map[string]any{state.KeyMode: mode}); err != nil {
		return "", "", err
	}
	return mode, rules.GetModeConfig(mode).Label, nil
}

// SetIdleTimeout stores a sanitized idle timeout and returns the value
// actually applied.
func (e *Engine) SetIdleTimeout(minutes int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	minutes = state.SanitizeIdleTimeoutMin(minutes)
	if err := e.store.Patch(map[string]any{state.KeyIdleTimeoutMin: minutes}); err != nil {
		return 0, err
	}
	return minutes, nil
}

// SetDebug toggles the debug actions.
func (e *Engine) SetDebug(enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Patch(map[string]any{state.KeyDebugEnabled: enabled})
}

// SetQualityThresholds overrides the dataset gate thresholds at
// runtime. Zero or negative values keep the current setting.
func (e *Engine) SetQualityThresholds(q config.Quality) config.Quality {
	e.mu.Lock()
	defer e.mu.Unlock()

	if q.MinRows > 0 {
		e.cfg.Quality.MinRows = q.MinRows
	}
	if q.MinClassRows > 0 {
		e.cfg.Quality.MinClassRows = q.MinClassRows
	}
	if q.MinResponseRate > 0 {
		e.cfg.Quality.MinResponseRate = q.MinResponseRate
	}
	if q.MaxDisagreementRate > 0 {
		e.cfg.Quality.MaxDisagreementRate = q.MaxDisagreementRate
	}
	return e.cfg.Quality
}

// QualityThresholds returns the current gate thresholds.
func (e *Engine) QualityThresholds() config.Quality {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Quality
}

// Records returns the finalized session log, oldest first.
func (e *Engine) Records() ([]session.Record, error) {
	return e.store.Records()
}

// ClearAll wipes both the snapshot and the finalized session log and
// drops the in-flight session.
func (e *Engine) ClearAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.ClearAll(); err != nil {
		return err
	}
	e.current = nil
	logger.Info().Msg("Cleared all stored data")
	return nil
}
