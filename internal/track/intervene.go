package track

import (
	"context"
	"sort"
	"time"

	"github.com/tabwarden/tabwarden/internal/logger"
	"github.com/tabwarden/tabwarden/internal/rules"
	"github.com/tabwarden/tabwarden/internal/state"
)

// triggerStageInterventions reacts to a stage transition on an accrual.
// Stage 1/2 crossings notify once per day+domain+stage; stage 3/4
// establish a cooldown and redirect the blocked tab (stage 4 silently).
// The stage-2 nudge is evaluated on its own so cooldown escalation
// can't suppress it. Lock must be held.
func (e *Engine) triggerStageInterventions(ctx context.Context, st *state.DailyState, domain string, previousStage, nextStage int, mode string) {
	if !st.TrackingEnabled {
		return
	}

	dateKey := state.LocalDateKey(e.now())
	nowMs := e.nowMs()
	changed := false

	for _, stage := range []int{1, 2} {
		if previousStage < stage && nextStage >= stage {
			key := state.StageNotifyKey(dateKey, domain, stage)
			if !st.StageNotified[key] {
				e.sendStageNotification(ctx, domain, stage, mode)
				st.StageNotified[key] = true
				changed = true
			}
		}
	}

	for _, stage := range []int{3, 4} {
		if previousStage < stage && nextStage >= stage {
			if st.Cooldowns[domain] > nowMs {
				continue
			}
			until := e.blockSite(st, domain, e.cooldownDuration())
			e.enforceBlockOnActiveTab(ctx, st)
			if stage == 3 {
				e.sendStageNotification(ctx, domain, stage, mode)
			}
			logger.Info().
				Str("domain", domain).
				Int("stage", stage).
				Int64("until", until).
				Msg("Cooldown started")
			changed = true
		}
	}

	if nextStage == 2 {
		canShow := e.current != nil && !e.current.Stage2PromptShown
		cooldownActive := st.Cooldowns[domain] > nowMs
		if canShow && !cooldownActive && !st.IsSnoozed(domain, nowMs) {
			e.current.Stage2PromptShown = true
			if err := e.persistSession(); err != nil {
				logger.Error().Err(err).Msg("Failed to persist nudge flag")
			}
			e.openStage2Nudge(ctx, domain, e.current.TabID, mode)
		}
	}

	if changed {
		if err := e.store.Patch(map[string]any{
			state.KeyStageNotified: st.StageNotified,
			state.KeyCooldowns:     st.Cooldowns,
		}); err != nil {
			logger.Error().Err(err).Msg("Failed to persist stage interventions")
		}
	}
}

func (e *Engine) cooldownDuration() time.Duration {
	return time.Duration(e.cfg.Interventions.CooldownMinutes) * time.Minute
}

// sendStageNotification fires a one-shot alert. Notifier failures are
// logged and swallowed.
func (e *Engine) sendStageNotification(ctx context.Context, domain string, stage int, mode string) {
	n := rules.NotificationForStage(domain, stage, mode)
	if err := e.notifier.Notify(ctx, n.Title, n.Message); err != nil {
		logger.Warn().
			Err(err).
			Str("domain", domain).
			Int("stage", stage).
			Msg("Notification failed")
	}
}

// blockSite records a cooldown for the domain and returns its expiry.
// The caller persists the cooldowns key.
func (e *Engine) blockSite(st *state.DailyState, domain string, duration time.Duration) int64 {
	until := e.nowMs() + duration.Milliseconds()
	st.Cooldowns[domain] = until
	return until
}

func (e *Engine) clearDomainCooldown(st *state.DailyState, domain string) {
	if _, ok := st.Cooldowns[domain]; !ok {
		return
	}
	delete(st.Cooldowns, domain)
	if err := e.store.Patch(map[string]any{state.KeyCooldowns: st.Cooldowns}); err != nil {
		logger.Error().Err(err).Msg("Failed to persist cooldown rollback")
	}
}

// redirectIfBlocked sends a tab to the block page when its domain is
// under an active cooldown. Returns true when a redirect happened.
func (e *Engine) redirectIfBlocked(ctx context.Context, st *state.DailyState, tabID, rawURL string) bool {
	if !st.TrackingEnabled || !e.trackable(rawURL) {
		return false
	}
	domain := e.domainOf(rawURL)
	if domain == "" {
		return false
	}
	matched := FindActiveBlock(st.Cooldowns, domain, e.nowMs())
	if matched == nil {
		return false
	}
	if e.isBlockPage(rawURL) {
		return false
	}

	redirect := e.blockPageURL(matched.BlockedDomain, matched.BlockedUntil)
	if err := e.tabs.Navigate(ctx, tabID, redirect); err != nil {
		logger.Warn().Err(err).Str("tab_id", tabID).Msg("Block redirect failed")
		return false
	}
	return true
}

func (e *Engine) enforceBlockOnActiveTab(ctx context.Context, st *state.DailyState) bool {
	tab, err := e.tabs.ActiveTab(ctx)
	if err != nil || tab == nil || tab.URL == "" {
		return false
	}
	return e.redirectIfBlocked(ctx, st, tab.ID, tab.URL)
}

// openStage2Nudge opens the interactive Break/Snooze/Close page.
func (e *Engine) openStage2Nudge(ctx context.Context, domain, tabID, mode string) {
	safeMode := rules.SanitizeMode(mode)
	if _, err := e.tabs.Create(ctx, e.nudgePageURL(domain, tabID, safeMode)); err != nil {
		logger.Warn().Err(err).Str("domain", domain).Msg("Failed to open stage-2 nudge")
	}
}

// snoozeDecision is the outcome of a capped snooze request.
type snoozeDecision struct {
	Allowed bool
	Until   int64
	Count   int
	WaitMs  int64
}

// applySnoozeWithCap grants a snooze unless the domain already used its
// per-hour budget. The wait time points at the oldest snooze leaving
// the rolling window. Lock must be held; persists on both outcomes.
func (e *Engine) applySnoozeWithCap(st *state.DailyState, domain string, minutes int) snoozeDecision {
	nowMs := e.nowMs()
	window := e.snoozeWindow().Milliseconds()
	cutoff := nowMs - window
	limit := e.cfg.Interventions.SnoozeLimitPerHour

	var recent []int64
	for _, ts := range st.SnoozeHistory[domain] {
		if ts > cutoff && ts <= nowMs+1000 {
			recent = append(recent, ts)
		}
	}
	sort.Slice(recent, func(i, j int) bool { return recent[i] < recent[j] })

	if len(recent) >= limit {
		st.SnoozeHistory[domain] = recent
		if err := e.store.Patch(map[string]any{state.KeySnoozeHistory: st.SnoozeHistory}); err != nil {
			logger.Error().Err(err).Msg("Failed to persist snooze history")
		}
		waitMs := recent[0] + window - nowMs
		if waitMs < 0 {
			waitMs = 0
		}
		return snoozeDecision{Count: len(recent), WaitMs: waitMs}
	}

	recent = append(recent, nowMs)
	st.SnoozeHistory[domain] = recent
	until := nowMs + int64(minutes)*time.Minute.Milliseconds()
	st.Snoozes[domain] = until
	if err := e.store.Patch(map[string]any{
		state.KeySnoozes:       st.Snoozes,
		state.KeySnoozeHistory: st.SnoozeHistory,
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to persist snooze")
	}

	return snoozeDecision{Allowed: true, Until: until, Count: len(recent)}
}

// breakReturnWindow is how long after a break cooldown the user has to
// come back before the session closes as abandoned.
func (e *Engine) breakReturnWindow() time.Duration {
	return time.Duration(e.cfg.Interventions.BreakReturnWindowMin) * time.Minute
}

func (e *Engine) breakDuration() time.Duration {
	return time.Duration(e.cfg.Interventions.BreakMinutes) * time.Minute
}
