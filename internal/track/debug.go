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

// Debug action tags recorded on touched sessions.
const (
	debugTagSimulate    = "debug_simulate_10_min"
	debugTagEndSession  = "debug_end_session"
	debugTagClearDomain = "debug_clear_today_domain"
)

func (e *Engine) requireDebug(st *state.DailyState) error {
	if !st.DebugEnabled {
		return fmt.Errorf("debug mode is disabled")
	}
	return nil
}

// DebugSimulate10Min adds ten minutes of active time to the active
// tab's domain total, then runs the same stage transition logic a real
// tick would. Interventions fire for real; no session is required, and
// an open session on the domain is only marked as debug-touched.
func (e *Engine) DebugSimulate10Min(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.loadDaily()
	if err != nil {
		return err
	}
	if err := e.requireDebug(st); err != nil {
		return err
	}

	var domain string
	if tab, err := e.tabs.ActiveTab(ctx); err == nil && tab != nil {
		domain = e.domainOf(tab.URL)
	}
	if domain == "" && e.current != nil {
		domain = e.current.Domain
	}
	if domain == "" {
		return fmt.Errorf("no active domain")
	}

	now := e.now()
	mode := rules.SanitizeMode(st.Mode)
	before := st.TodayDomainSec(domain, now)
	after := before + 600
	st.DomainTotalRecord(domain, now).ActiveTimeSecToday = after

	e.triggerStageInterventions(ctx, st, domain, rules.Stage(before, mode), rules.Stage(after, mode), mode)

	if e.current != nil && e.current.Domain == domain {
		e.current.TouchDebug(debugTagSimulate)
		if err := e.persistSession(); err != nil {
			return err
		}
	}

	if err := e.store.Patch(map[string]any{
		state.KeyDomainTotals:  st.DomainTotals,
		state.KeyStageNotified: st.StageNotified,
		state.KeyCooldowns:     st.Cooldowns,
		state.KeySnoozes:       st.Snoozes,
		state.KeyLastResetDate: st.LastResetDate,
	}); err != nil {
		return err
	}
	logger.Info().
		Str("domain", domain).
		Int("active_sec_today", after).
		Msg("Simulated 10 minutes of active time")
	return nil
}

// DebugEndSession force-ends the current session.
func (e *Engine) DebugEndSession(ctx context.Context) (*session.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.loadDaily()
	if err != nil {
		return nil, err
	}
	if err := e.requireDebug(st); err != nil {
		return nil, err
	}
	if e.current == nil {
		return nil, fmt.Errorf("no active session to end")
	}
	e.current.TouchDebug(debugTagEndSession)
	return e.endSession(ctx, session.EndForced)
}

// DebugClearTodayDomain zeroes today's accumulated time for the given
// domain and forgets its stage notifications so escalation can replay.
func (e *Engine) DebugClearTodayDomain(ctx context.Context, domain string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return fmt.Errorf("missing domain")
	}

	st, err := e.loadDaily()
	if err != nil {
		return err
	}
	if err := e.requireDebug(st); err != nil {
		return err
	}

	delete(st.DomainTotals, domain)
	prefix := st.LastResetDate + "|" + domain + "|"
	for key := range st.StageNotified {
		if strings.HasPrefix(key, prefix) {
			delete(st.StageNotified, key)
		}
	}

	if e.current != nil && e.current.Domain == domain {
		e.current.TouchDebug(debugTagClearDomain)
		if err := e.persistSession(); err != nil {
			return err
		}
	}

	if err := e.store.Patch(map[string]any{
		state.KeyDomainTotals:  st.DomainTotals,
		state.KeyStageNotified: st.StageNotified,
	}); err != nil {
		return err
	}
	logger.Info().Str("domain", domain).Msg("Cleared today's totals for domain")
	return nil
}
