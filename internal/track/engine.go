// Package track owns the single active browsing session: time accrual,
// the count-status state machine, stage escalation, interventions, and
// finalization into the session log.
package track

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/tabwarden/tabwarden/internal/browser"
	"github.com/tabwarden/tabwarden/internal/config"
	"github.com/tabwarden/tabwarden/internal/logger"
	"github.com/tabwarden/tabwarden/internal/rules"
	"github.com/tabwarden/tabwarden/internal/session"
	"github.com/tabwarden/tabwarden/internal/state"
)

// Source identifies what kind of browser event triggered a sync.
type Source string

// Sync sources
const (
	SourceTabSwitch  Source = "tab_switch"
	SourceNavigation Source = "navigation"
	SourceActivity   Source = "activity"
	SourceTrackingOn Source = "tracking_on"
	SourceUnknown    Source = "unknown"
)

// Count-status reason codes, surfaced to the UI verbatim.
const (
	ReasonNoSession          = "no_session"
	ReasonTrackingDisabled   = "tracking_disabled"
	ReasonBreakPause         = "break_pause"
	ReasonBreakWindowExpired = "break_return_window_expired"
	ReasonIdleTimeout        = "idle_timeout"
	ReasonCooldownActive     = "cooldown_active"
	ReasonTabInactive        = "tab_inactive_or_invalid_url"
	ReasonNotLastFocused     = "not_last_focused_tab"
	ReasonDomainMismatch     = "domain_mismatch"
	ReasonTabUnavailable     = "tab_unavailable"
	ReasonCounting           = "counting"
)

// CountStatus is the per-tick decision whether elapsed time counts.
type CountStatus struct {
	Active bool   `json:"active"`
	Reason string `json:"reason"`
}

// Engine owns the active session and serializes every mutation behind
// one mutex. Each mutation is persisted before the lock is released, so
// a restart resumes from the last durable snapshot.
type Engine struct {
	cfg       *config.Config
	store     state.Store
	tabs      browser.Tabs
	notifier  browser.Notifier
	pagesBase string

	mu      sync.Mutex
	current *session.Session
	ending  map[string]bool
	nowFn   func() time.Time
}

// New creates an engine. pagesBase is the daemon's own origin
// (e.g. http://127.0.0.1:8746) used for block/nudge/prompt pages.
func New(cfg *config.Config, store state.Store, tabs browser.Tabs, notifier browser.Notifier, pagesBase string) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     store,
		tabs:      tabs,
		notifier:  notifier,
		pagesBase: pagesBase,
		ending:    map[string]bool{},
		nowFn:     time.Now,
	}
}

// Tabs exposes the browser connection for callers that poll it
// directly.
func (e *Engine) Tabs() browser.Tabs { return e.tabs }

func (e *Engine) now() time.Time { return e.nowFn() }
func (e *Engine) nowMs() int64   { return e.nowFn().UnixMilli() }

func (e *Engine) trackable(rawURL string) bool {
	return IsTrackableURL(rawURL, e.pagesBase)
}

func (e *Engine) domainOf(rawURL string) string {
	return DomainOf(rawURL, e.pagesBase)
}

func (e *Engine) blockPageURL(domain string, untilMs int64) string {
	return fmt.Sprintf("%s/blocked?mode=cooldown&domain=%s&site=%s&until=%d",
		e.pagesBase, url.QueryEscape(domain), url.QueryEscape(domain), untilMs)
}

func (e *Engine) nudgePageURL(domain, tabID, mode string) string {
	tone := rules.GetModeConfig(mode).PromptTone
	return fmt.Sprintf("%s/blocked?mode=stage_nudge&stage=2&domain=%s&site=%s&sourceTabId=%s&riskMode=%s&promptTone=%s",
		e.pagesBase, url.QueryEscape(domain), url.QueryEscape(domain),
		url.QueryEscape(tabID), url.QueryEscape(mode), url.QueryEscape(tone))
}

func (e *Engine) promptPageURL(sessionID string) string {
	return e.pagesBase + "/prompt?sessionId=" + url.QueryEscape(sessionID)
}

func (e *Engine) isBlockPage(rawURL string) bool {
	return e.pagesBase != "" && len(rawURL) >= len(e.pagesBase)+8 &&
		rawURL[:len(e.pagesBase)+8] == e.pagesBase+"/blocked"
}

// loadDaily loads the snapshot and applies the lazy daily rollover,
// persisting the reset keys when one happened.
func (e *Engine) loadDaily() (*state.DailyState, error) {
	st, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	if st.EnsureDaily(e.now()) {
		if err := e.store.Patch(map[string]any{
			state.KeyLastResetDate: st.LastResetDate,
			state.KeyDomainTotals:  st.DomainTotals,
			state.KeyVisitedToday:  st.VisitedToday,
			state.KeyStageNotified: st.StageNotified,
		}); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (e *Engine) persistSession() error {
	var value any
	if e.current != nil {
		value = e.current
	}
	return e.store.Patch(map[string]any{state.KeyCurrentSession: value})
}

// Resume restores the persisted session (crash recovery) and, when none
// exists, adopts the browser's current active tab.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.loadDaily()
	if err != nil {
		return err
	}

	if changed := st.SweepExpired(e.nowMs(), e.snoozeWindow()); len(changed) > 0 {
		e.patchKeys(st, changed)
	}

	if st.CurrentSession != nil && st.CurrentSession.TabID != "" {
		e.current = st.CurrentSession
		logger.Info().
			Str("session_id", e.current.SessionID).
			Str("domain", e.current.Domain).
			Msg("Resumed session from snapshot")
		return nil
	}

	if !st.TrackingEnabled {
		return nil
	}

	tab, err := e.tabs.ActiveTab(ctx)
	if err != nil || tab == nil {
		return nil
	}
	if e.trackable(tab.URL) {
		return e.startSessionFromTab(ctx, tab)
	}
	return nil
}

func (e *Engine) patchKeys(st *state.DailyState, keys []string) {
	patch := map[string]any{}
	for _, key := range keys {
		switch key {
		case state.KeyCooldowns:
			patch[key] = st.Cooldowns
		case state.KeySnoozes:
			patch[key] = st.Snoozes
		case state.KeySnoozeHistory:
			patch[key] = st.SnoozeHistory
		case state.KeyStageNotified:
			patch[key] = st.StageNotified
		case state.KeyDomainTotals:
			patch[key] = st.DomainTotals
		}
	}
	if len(patch) == 0 {
		return
	}
	if err := e.store.Patch(patch); err != nil {
		logger.Error().Err(err).Msg("Failed to persist expired-state sweep")
	}
}

// startSessionFromTab allocates and persists a fresh session for a
// trackable tab. Lock must be held.
func (e *Engine) startSessionFromTab(ctx context.Context, tab *browser.Tab) error {
	if tab == nil || tab.ID == "" || !e.trackable(tab.URL) {
		return nil
	}

	st, err := e.loadDaily()
	if err != nil {
		return err
	}
	if !st.TrackingEnabled {
		return nil
	}

	domain := e.domainOf(tab.URL)
	if domain == "" {
		return nil
	}

	priorVisits := st.VisitedToday.Domains[domain]
	if priorVisits < 0 {
		priorVisits = 0
	}
	st.VisitedToday.Domains[domain] = priorVisits + 1
	st.VisitedToday.DateKey = state.LocalDateKey(e.now())

	origin := TrackableOrigin(tab.URL, e.pagesBase)
	if origin == "" {
		origin = tab.URL
	}
	e.current = session.New(domain, origin, tab.ID, e.nowMs(), priorVisits)

	logger.Debug().
		Str("session_id", e.current.SessionID).
		Str("domain", domain).
		Int("revisit_count", priorVisits).
		Msg("Started session")

	return e.store.Patch(map[string]any{
		state.KeyVisitedToday:   st.VisitedToday,
		state.KeyLastResetDate:  st.LastResetDate,
		state.KeyCurrentSession: e.current,
	})
}

// countStatus recomputes whether the session is countable right now.
// Never persisted; the reason is surfaced to the UI verbatim.
func (e *Engine) countStatus(ctx context.Context, st *state.DailyState, now time.Time) CountStatus {
	if e.current == nil {
		return CountStatus{Reason: ReasonNoSession}
	}
	if !st.TrackingEnabled {
		return CountStatus{Reason: ReasonTrackingDisabled}
	}

	nowMs := now.UnixMilli()

	if e.current.Phase == session.PhaseBreakPendingReturn {
		if e.current.BreakReturnDeadline > nowMs {
			return CountStatus{Reason: ReasonBreakPause}
		}
		return CountStatus{Reason: ReasonBreakWindowExpired}
	}

	if nowMs-e.current.LastActivityAt > st.IdleTimeout().Milliseconds() {
		return CountStatus{Reason: ReasonIdleTimeout}
	}

	if st.Cooldowns[e.current.Domain] > nowMs {
		return CountStatus{Reason: ReasonCooldownActive}
	}

	tab, err := e.tabs.Get(ctx, e.current.TabID)
	if err != nil || tab == nil {
		return CountStatus{Reason: ReasonTabUnavailable}
	}
	if !tab.Active || !e.trackable(tab.URL) {
		return CountStatus{Reason: ReasonTabInactive}
	}

	focused, err := e.tabs.ActiveTab(ctx)
	if err != nil || focused == nil || focused.ID != tab.ID {
		return CountStatus{Reason: ReasonNotLastFocused}
	}

	if e.domainOf(tab.URL) != e.current.Domain {
		return CountStatus{Reason: ReasonDomainMismatch}
	}

	return CountStatus{Active: true, Reason: ReasonCounting}
}

// accrue adds elapsed time since the last checkpoint. The checkpoint
// always advances, even when the elapsed interval is discarded, so a
// later countable tick can never double-count. Lock must be held.
func (e *Engine) accrue(ctx context.Context, now time.Time) error {
	if e.current == nil {
		return nil
	}

	nowMs := now.UnixMilli()
	elapsedSec := int((nowMs - e.current.LastTickAt) / 1000)
	e.current.LastTickAt = nowMs

	if elapsedSec <= 0 {
		return e.persistSession()
	}

	st, err := e.loadDaily()
	if err != nil {
		return err
	}

	status := e.countStatus(ctx, st, now)
	if !status.Active {
		logger.Debug().
			Str("reason", status.Reason).
			Int("discarded_sec", elapsedSec).
			Msg("Tick not countable")
		return e.persistSession()
	}

	domain := e.current.Domain
	mode := rules.SanitizeMode(st.Mode)
	before := st.TodayDomainSec(domain, now)
	after := before + elapsedSec
	st.DomainTotalRecord(domain, now).ActiveTimeSecToday = after
	e.current.ActiveTimeSec += elapsedSec

	e.triggerStageInterventions(ctx, st, domain, rules.Stage(before, mode), rules.Stage(after, mode), mode)

	return e.store.Patch(map[string]any{
		state.KeyDomainTotals:   st.DomainTotals,
		state.KeyCurrentSession: e.current,
		state.KeyStageNotified:  st.StageNotified,
		state.KeyCooldowns:      st.Cooldowns,
		state.KeySnoozes:        st.Snoozes,
	})
}

// EndSession finalizes the active session. Safe to call concurrently
// for the same session; exactly one record is written.
func (e *Engine) EndSession(ctx context.Context, reason session.EndReason) (*session.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endSession(ctx, reason)
}

func (e *Engine) endSession(ctx context.Context, reason session.EndReason) (*session.Record, error) {
	if e.current == nil {
		return nil, nil
	}

	sessionID := e.current.SessionID
	if e.ending[sessionID] {
		return nil, nil
	}
	e.ending[sessionID] = true
	defer delete(e.ending, sessionID)

	if err := e.accrue(ctx, e.now()); err != nil {
		logger.Error().Err(err).Msg("Failed to flush time before finalizing")
	}

	st, err := e.loadDaily()
	if err != nil {
		return nil, err
	}

	now := e.now()
	cur := e.current
	mode := rules.SanitizeMode(st.Mode)
	domainSec := st.TodayDomainSec(cur.Domain, now)
	stage := rules.Stage(domainSec, mode)
	risk := rules.Risk(stage)
	prov := rules.ComputeProvisional(cur.ActiveTimeSec, cur.ScrollCount, cur.TabSwitchCount, cur.RevisitCount, mode)

	rec := &session.Record{
		SchemaVersion:      session.SchemaVersion,
		SessionID:          cur.SessionID,
		Domain:             cur.Domain,
		URL:                cur.URL,
		TabID:              cur.TabID,
		StartTime:          cur.StartTime,
		EndTime:            now.UnixMilli(),
		EndReason:          reason,
		ActiveTimeSec:      cur.ActiveTimeSec,
		ScrollCount:        cur.ScrollCount,
		TabSwitchCount:     cur.TabSwitchCount,
		RevisitCount:       cur.RevisitCount,
		RevisitCountMode:   "daily_prior_visits",
		Stage:              stage,
		RiskLevel:          risk,
		Mode:               mode,
		RuleVersion:        rules.RuleVersion,
		IdleTimeoutMinUsed: state.SanitizeIdleTimeoutMin(st.IdleTimeoutMin),
		ProvisionalLabel:   prov.Label,
		ProvisionalScore:   prov.Score,
		FinalLabel:         prov.Label,
		LabelSource:        session.SourceHybridSkipped,
		LabelConfidence:    session.ConfidenceRuleOnly,
		IsDebugRow:         cur.DebugTouched,
		DebugSources:       cur.DebugSources,
		Stage2Choice:       cur.Stage2Choice,
		Stage2ActionFailed: cur.Stage2ActionFailed,
		Stage2FailReason:   cur.Stage2FailReason,
		SnoozeMinutes:      cur.SnoozeMinutes,
		SnoozeUntil:        cur.SnoozeUntil,
		BreakTriggered:     cur.BreakTriggered,
		BreakType:          cur.BreakType,
		BreakDurationSec:   cur.BreakDurationSec,
	}

	eligible := st.TrackingEnabled && reason.EndedNaturally() &&
		(risk >= rules.Medium || prov.Label >= rules.Medium)
	if eligible {
		rec.PromptShown = true
		rec.LabelConfidence = session.ConfidencePending
	}

	if err := e.store.AppendRecord(rec); err != nil {
		return nil, fmt.Errorf("failed to append session record: %w", err)
	}

	logger.Info().
		Str("session_id", rec.SessionID).
		Str("domain", rec.Domain).
		Str("end_reason", string(reason)).
		Int("active_sec", rec.ActiveTimeSec).
		Int("final_label", rec.FinalLabel).
		Msg("Finalized session")

	if eligible {
		e.openSessionPrompt(ctx, rec.SessionID)
	}

	e.current = nil
	if err := e.persistSession(); err != nil {
		logger.Error().Err(err).Msg("Failed to clear persisted session")
	}
	return rec, nil
}

func (e *Engine) openSessionPrompt(ctx context.Context, sessionID string) {
	if _, err := e.tabs.Create(ctx, e.promptPageURL(sessionID)); err != nil {
		logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to open session prompt")
	}
}

// SyncToActiveTab reconciles the session against a tab event. This is
// the single entry point for focus, navigation and activity events.
func (e *Engine) SyncToActiveTab(ctx context.Context, tab *browser.Tab, source Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncToActiveTab(ctx, tab, source)
}

func (e *Engine) syncToActiveTab(ctx context.Context, tab *browser.Tab, source Source) error {
	if tab == nil || tab.ID == "" {
		return nil
	}

	if e.current != nil && e.current.Phase == session.PhaseBreakPendingReturn {
		nowMs := e.nowMs()
		deadline := e.current.BreakReturnDeadline
		resumedByUser := source == SourceActivity || source == SourceTabSwitch

		switch {
		case deadline > 0 && nowMs > deadline:
			if _, err := e.endSession(ctx, session.EndBreakNoReturn); err != nil {
				return err
			}
		case resumedByUser && e.trackable(tab.URL):
			if _, err := e.endSession(ctx, session.EndBreakResumed); err != nil {
				return err
			}
			return e.startSessionFromTab(ctx, tab)
		default:
			if e.current.TabID == tab.ID {
				if origin := TrackableOrigin(tab.URL, e.pagesBase); origin != "" {
					e.current.URL = origin
				}
				return e.persistSession()
			}
			return nil
		}
	}

	if !e.trackable(tab.URL) {
		if e.current != nil && e.current.TabID == tab.ID {
			if e.isBlockPage(tab.URL) {
				st, err := e.loadDaily()
				if err != nil {
					return err
				}
				if st.Cooldowns[e.current.Domain] > e.nowMs() {
					// Still blocked; the user hasn't left, they're
					// looking at the block screen.
					return e.persistSession()
				}
				// Cooldown lapsed while parked on the block page: the
				// user is no longer on the domain, end the session.
			}
			_, err := e.endSession(ctx, session.EndForced)
			return err
		}
		return nil
	}

	if e.current == nil {
		return e.startSessionFromTab(ctx, tab)
	}

	incomingDomain := e.domainOf(tab.URL)
	if e.current.TabID == tab.ID && e.current.Domain == incomingDomain {
		if origin := TrackableOrigin(tab.URL, e.pagesBase); origin != "" {
			e.current.URL = origin
		}
		e.current.LastActivityAt = e.nowMs()
		return e.persistSession()
	}

	if source == SourceTabSwitch {
		e.current.TabSwitchCount++
		if err := e.persistSession(); err != nil {
			return err
		}
	}

	if _, err := e.endSession(ctx, session.EndForced); err != nil {
		return err
	}
	return e.startSessionFromTab(ctx, tab)
}

// ReapClosedTab finalizes the session when its tab no longer exists in
// the browser. Closing the session tab is the tab_closed natural
// ending, so this must run before any sync that would otherwise
// finalize the session as forced_end.
func (e *Engine) ReapClosedTab(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.reapClosedTab(ctx)
	return err
}

func (e *Engine) reapClosedTab(ctx context.Context) (bool, error) {
	if e.current == nil {
		return false, nil
	}

	open, err := e.tabs.List(ctx)
	if err != nil {
		// Listing failed; treat the tab as still open.
		return false, nil
	}
	for i := range open {
		if open[i].ID == e.current.TabID {
			return false, nil
		}
	}

	logger.Debug().
		Str("session_id", e.current.SessionID).
		Str("tab_id", e.current.TabID).
		Msg("Session tab closed")
	_, err = e.endSession(ctx, session.EndTabClosed)
	return err == nil, err
}

// ActivityPing registers user interaction on a tab. Scroll events bump
// the scroll counter.
func (e *Engine) ActivityPing(ctx context.Context, tabID, activityType string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tab, err := e.tabs.Get(ctx, tabID)
	if err != nil || tab == nil || !e.trackable(tab.URL) {
		return nil
	}

	if err := e.syncToActiveTab(ctx, tab, SourceActivity); err != nil {
		return err
	}
	if e.current == nil {
		return nil
	}
	if e.current.TabID != tab.ID || e.current.Domain != e.domainOf(tab.URL) {
		return nil
	}

	e.current.LastActivityAt = e.nowMs()
	if activityType == "scroll" {
		e.current.ScrollCount++
	}
	return e.persistSession()
}

// Tick runs the periodic maintenance pass: expiry sweep, block
// enforcement, break/idle deadlines, and time accrual.
func (e *Engine) Tick(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.loadDaily()
	if err != nil {
		return err
	}
	if changed := st.SweepExpired(e.nowMs(), e.snoozeWindow()); len(changed) > 0 {
		e.patchKeys(st, changed)
	}

	e.enforceBlockOnActiveTab(ctx, st)

	if e.current == nil {
		return nil
	}

	if ended, err := e.reapClosedTab(ctx); err != nil || ended {
		return err
	}

	nowMs := e.nowMs()

	if e.current.Phase == session.PhaseBreakPendingReturn {
		if e.current.BreakReturnDeadline > 0 && nowMs > e.current.BreakReturnDeadline {
			_, err := e.endSession(ctx, session.EndBreakNoReturn)
			return err
		}
		return nil
	}

	if nowMs-e.current.LastActivityAt >= st.IdleTimeout().Milliseconds() {
		_, err := e.endSession(ctx, session.EndIdleTimeout)
		return err
	}

	return e.accrue(ctx, e.now())
}

func (e *Engine) snoozeWindow() time.Duration {
	return time.Duration(e.cfg.Interventions.SnoozeWindowMin) * time.Minute
}

// CountStatusNow recomputes the count status for UI surfaces.
func (e *Engine) CountStatusNow(ctx context.Context) (CountStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.loadDaily()
	if err != nil {
		return CountStatus{}, err
	}
	return e.countStatus(ctx, st, e.now()), nil
}

// CurrentSessionID returns the active session's ID, or "".
func (e *Engine) CurrentSessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return ""
	}
	return e.current.SessionID
}
