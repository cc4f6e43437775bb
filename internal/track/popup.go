package track

import (
	"context"

	"github.com/tabwarden/tabwarden/internal/rules"
	"github.com/tabwarden/tabwarden/internal/state"
)

// PopupState is the aggregate status view for the control UI. Domain
// and the derived fields follow the currently active tab, not
// necessarily the tracked session.
type PopupState struct {
	TrackingEnabled bool   `json:"trackingEnabled"`
	DebugEnabled    bool   `json:"debugEnabled"`
	Mode            string `json:"mode"`
	ModeLabel       string `json:"modeLabel"`
	IdleTimeoutMin  int    `json:"idleTimeoutMin"`

	Domain             string `json:"domain"`
	ActiveTimeSecToday int    `json:"activeTimeSecToday"`
	Stage              int    `json:"stage"`
	RiskLevel          int    `json:"riskLevel"`
	RiskLabel          string `json:"riskLabel"`

	CooldownActive bool  `json:"cooldownActive"`
	CooldownUntil  int64 `json:"cooldownUntil"`

	CountStatusActive bool   `json:"countStatusActive"`
	CountStatusReason string `json:"countStatusReason"`

	SessionActive    bool   `json:"sessionActive"`
	CurrentSessionID string `json:"currentSessionId"`
}

// PopupStateNow assembles the popup view from live state and the active
// tab.
func (e *Engine) PopupStateNow(ctx context.Context) (*PopupState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.loadDaily()
	if err != nil {
		return nil, err
	}
	now := e.now()
	nowMs := now.UnixMilli()

	domain := ""
	if tab, err := e.tabs.ActiveTab(ctx); err == nil && tab != nil {
		domain = e.domainOf(tab.URL)
	}

	activeSecToday := 0
	if domain != "" {
		activeSecToday = st.TodayDomainSec(domain, now)
	}
	mode := rules.SanitizeMode(st.Mode)
	stage := rules.Stage(activeSecToday, mode)
	risk := rules.Risk(stage)

	cooldownUntil := int64(0)
	if domain != "" {
		if block := FindActiveBlock(st.Cooldowns, domain, nowMs); block != nil {
			cooldownUntil = block.BlockedUntil
		}
	}

	status := e.countStatus(ctx, st, now)

	ps := &PopupState{
		TrackingEnabled:    st.TrackingEnabled,
		DebugEnabled:       st.DebugEnabled,
		Mode:               mode,
		ModeLabel:          rules.GetModeConfig(mode).Label,
		IdleTimeoutMin:     state.SanitizeIdleTimeoutMin(st.IdleTimeoutMin),
		Domain:             domain,
		ActiveTimeSecToday: activeSecToday,
		Stage:              stage,
		RiskLevel:          risk,
		RiskLabel:          rules.RiskLabel(risk),
		CooldownActive:     cooldownUntil > nowMs,
		CooldownUntil:      cooldownUntil,
		CountStatusActive:  status.Active,
		CountStatusReason:  status.Reason,
		SessionActive:      e.current != nil,
	}
	if e.current != nil {
		ps.CurrentSessionID = e.current.SessionID
	}
	return ps, nil
}
