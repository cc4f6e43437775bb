package track

import (
	"context"
	"fmt"
	"strings"

	"github.com/tabwarden/tabwarden/internal/logger"
	"github.com/tabwarden/tabwarden/internal/rules"
	"github.com/tabwarden/tabwarden/internal/session"
	"github.com/tabwarden/tabwarden/internal/state"
)

// Machine-readable failure reasons for nudge actions. The UI branches
// on these; the human message is separate.
const (
	FailNoValidTargetTab = "no_valid_target_tab"
	FailSnoozeCapReached = "snooze_cap_reached"
)

// NudgeRequest is a user-initiated stage-2 action.
type NudgeRequest struct {
	Action      string `json:"action"`
	Domain      string `json:"domain"`
	SourceTabID string `json:"sourceTabId"`
	SenderTabID string `json:"senderTabId"`
}

// NudgeResult reports the outcome of a stage-2 action. Result is
// "success" or "noop"; a noop always carries FailReason.
type NudgeResult struct {
	Result            string `json:"result"`
	Message           string `json:"message"`
	ActionFailed      bool   `json:"actionFailed"`
	FailReason        string `json:"failReason,omitempty"`
	SnoozeCount       int    `json:"snoozeCount,omitempty"`
	MaxSnoozesPerHour int    `json:"maxSnoozesPerHour,omitempty"`
}

// NudgeAction dispatches a stage-2 nudge choice.
func (e *Engine) NudgeAction(ctx context.Context, req NudgeRequest) (*NudgeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	domain := strings.ToLower(strings.TrimSpace(req.Domain))
	if domain == "" {
		return nil, fmt.Errorf("missing domain")
	}

	switch session.Stage2Choice(req.Action) {
	case session.ChoiceBreak5:
		return e.nudgeBreak(ctx, domain, req.SourceTabID, req.SenderTabID)
	case session.ChoiceSnooze:
		return e.nudgeSnooze(domain)
	case session.ChoiceCloseTab:
		return e.nudgeCloseTab(ctx, domain, req.SourceTabID, req.SenderTabID)
	default:
		return nil, fmt.Errorf("unknown stage-2 action %q", req.Action)
	}
}

// resolveTargetTab picks the tab a break/close action should hit: the
// explicit source tab when it isn't the nudge page itself, otherwise
// the session's own tab. The target must still be on the nudged domain.
func (e *Engine) resolveTargetTab(ctx context.Context, domain, sourceTabID, senderTabID string) string {
	targetID := sourceTabID
	if targetID != "" && senderTabID != "" && targetID == senderTabID {
		targetID = ""
	}
	if targetID == "" && e.current != nil && e.current.Domain == domain && e.current.TabID != senderTabID {
		targetID = e.current.TabID
	}
	if targetID == "" {
		return ""
	}

	tab, err := e.tabs.Get(ctx, targetID)
	if err != nil || tab == nil {
		return ""
	}
	targetDomain := e.domainOf(tab.URL)
	if targetDomain == "" {
		return ""
	}
	if !MatchBlockedDomain(targetDomain, domain) && !MatchBlockedDomain(domain, targetDomain) {
		return ""
	}
	return targetID
}

func (e *Engine) nudgeBreak(ctx context.Context, domain, sourceTabID, senderTabID string) (*NudgeResult, error) {
	st, err := e.loadDaily()
	if err != nil {
		return nil, err
	}

	actionFailed := false
	failReason := ""
	var until int64

	targetID := e.resolveTargetTab(ctx, domain, sourceTabID, senderTabID)
	if targetID == "" {
		actionFailed = true
		failReason = FailNoValidTargetTab
		logger.Debug().
			Str("domain", domain).
			Str("source_tab", sourceTabID).
			Msg("Stage-2 break skipped: no valid target tab")
	} else {
		until = e.blockSite(st, domain, e.breakDuration())
		if err := e.store.Patch(map[string]any{state.KeyCooldowns: st.Cooldowns}); err != nil {
			logger.Error().Err(err).Msg("Failed to persist break cooldown")
		}
		if err := e.tabs.Navigate(ctx, targetID, e.blockPageURL(domain, until)); err != nil {
			// Roll the cooldown back; the user never saw the block.
			e.clearDomainCooldown(st, domain)
			actionFailed = true
			failReason = FailNoValidTargetTab
			until = 0
			logger.Debug().
				Str("domain", domain).
				Str("target_tab", targetID).
				Msg("Stage-2 break skipped: target tab redirect failed")
		}
	}

	if e.current != nil && e.current.Domain == domain {
		cur := e.current
		cur.Stage2Choice = session.ChoiceBreak5
		cur.Stage2ActionFailed = actionFailed
		cur.Stage2FailReason = failReason
		cur.BreakTriggered = !actionFailed
		if actionFailed {
			cur.BreakType = ""
			cur.BreakDurationSec = 0
		} else {
			cur.BreakType = "user_initiated"
			cur.BreakDurationSec = int(e.breakDuration().Seconds())
			cur.Phase = session.PhaseBreakPendingReturn
			cur.BreakCooldownUntil = until
			cur.BreakReturnDeadline = until + e.breakReturnWindow().Milliseconds()
		}
		if err := e.persistSession(); err != nil {
			logger.Error().Err(err).Msg("Failed to persist break state")
		}
	}

	res := &NudgeResult{
		Result:       "success",
		Message:      fmt.Sprintf("Break started for %d minutes.", e.cfg.Interventions.BreakMinutes),
		ActionFailed: actionFailed,
		FailReason:   failReason,
	}
	if actionFailed {
		res.Result = "noop"
		res.Message = "Could not start break because the target tab is unavailable."
	}
	return res, nil
}

func (e *Engine) nudgeSnooze(domain string) (*NudgeResult, error) {
	st, err := e.loadDaily()
	if err != nil {
		return nil, err
	}

	mode := rules.SanitizeMode(st.Mode)
	snoozeMinutes := rules.GetModeConfig(mode).SnoozeMinutes
	decision := e.applySnoozeWithCap(st, domain, snoozeMinutes)
	actionFailed := !decision.Allowed
	failReason := ""
	if actionFailed {
		failReason = FailSnoozeCapReached
	}

	if e.current != nil && e.current.Domain == domain {
		cur := e.current
		cur.Stage2Choice = session.ChoiceSnooze
		cur.Stage2ActionFailed = actionFailed
		cur.Stage2FailReason = failReason
		if actionFailed {
			cur.SnoozeUntil = 0
			cur.SnoozeMinutes = 0
		} else {
			cur.SnoozeUntil = decision.Until
			cur.SnoozeMinutes = snoozeMinutes
		}
		if err := e.persistSession(); err != nil {
			logger.Error().Err(err).Msg("Failed to persist snooze state")
		}
	}

	limit := e.cfg.Interventions.SnoozeLimitPerHour
	if actionFailed {
		return &NudgeResult{
			Result: "noop",
			Message: fmt.Sprintf("Snooze limit reached (%d/hour). Try again in %s, or take a %d-minute break.",
				limit, formatMsToMinSec(decision.WaitMs), e.cfg.Interventions.BreakMinutes),
			ActionFailed:      true,
			FailReason:        failReason,
			SnoozeCount:       decision.Count,
			MaxSnoozesPerHour: limit,
		}, nil
	}

	escalationHint := ""
	if decision.Count >= 2 {
		escalationHint = fmt.Sprintf(" (Snooze %d/%d this hour.)", decision.Count, limit)
	}
	return &NudgeResult{
		Result:            "success",
		Message:           fmt.Sprintf("Snoozed for %d minutes.%s", snoozeMinutes, escalationHint),
		SnoozeCount:       decision.Count,
		MaxSnoozesPerHour: limit,
	}, nil
}

func (e *Engine) nudgeCloseTab(ctx context.Context, domain, sourceTabID, senderTabID string) (*NudgeResult, error) {
	actionFailed := false
	failReason := ""

	targetID := e.resolveTargetTab(ctx, domain, sourceTabID, senderTabID)
	if targetID == "" {
		actionFailed = true
		failReason = FailNoValidTargetTab
		logger.Debug().
			Str("domain", domain).
			Str("source_tab", sourceTabID).
			Msg("Stage-2 close skipped: no valid target tab")
	}

	if e.current != nil && e.current.Domain == domain {
		e.current.Stage2Choice = session.ChoiceCloseTab
		e.current.Stage2ActionFailed = actionFailed
		e.current.Stage2FailReason = failReason
		if err := e.persistSession(); err != nil {
			logger.Error().Err(err).Msg("Failed to persist close-tab state")
		}
	}

	if actionFailed {
		return &NudgeResult{
			Result:       "noop",
			Message:      "The tab is already closed or unavailable.",
			ActionFailed: true,
			FailReason:   failReason,
		}, nil
	}

	if err := e.tabs.Close(ctx, targetID); err != nil {
		// The tab may already be gone; the choice is still recorded.
		logger.Debug().Err(err).Str("tab_id", targetID).Msg("Close-tab removal failed")
	}
	return &NudgeResult{
		Result:  "success",
		Message: "Closing the tab.",
	}, nil
}

func formatMsToMinSec(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	totalSec := (ms + 999) / 1000
	return fmt.Sprintf("%dm %ds", totalSec/60, totalSec%60)
}
