package session

import "github.com/google/uuid"

// SchemaVersion identifies the finalized-record layout. Bump whenever a
// column is added, removed, or changes meaning.
const SchemaVersion = 3

// MaxRecords caps the finalized session log. Oldest records are evicted
// first.
const MaxRecords = 200

// Phase is the explicit lifecycle state of the active session. "Idle"
// is represented by the engine holding no session at all.
type Phase string

// Session phases
const (
	PhaseActive             Phase = "active"
	PhaseBreakPendingReturn Phase = "break_pending_return"
)

// EndReason explains why a session was finalized.
type EndReason string

// End reasons
const (
	EndTabClosed     EndReason = "tab_closed"
	EndIdleTimeout   EndReason = "idle_timeout"
	EndForced        EndReason = "forced_end"
	EndBreakNoReturn EndReason = "break_no_return_10m"
	EndBreakResumed  EndReason = "break_resumed_new_session"

	// EndIdleLegacy is an older name for the idle end reason that may
	// still appear in exported logs. The pipeline treats it as natural.
	EndIdleLegacy EndReason = "idle_5min"
)

// EndedNaturally reports whether the reason counts as a natural session
// end (the user stopped on their own rather than being cut off).
func (r EndReason) EndedNaturally() bool {
	return r == EndTabClosed || r == EndIdleTimeout || r == EndIdleLegacy
}

// Stage2Choice is the user's pick from the Stage-2 nudge.
type Stage2Choice string

// Stage-2 nudge choices
const (
	ChoiceNone     Stage2Choice = ""
	ChoiceBreak5   Stage2Choice = "break_5"
	ChoiceSnooze   Stage2Choice = "snooze"
	ChoiceCloseTab Stage2Choice = "close_tab"
)

// LabelSource records how the final label relates to the provisional one.
type LabelSource string

// Label sources
const (
	SourceHybridSkipped   LabelSource = "hybrid_skipped"
	SourceHybridConfirmed LabelSource = "hybrid_confirmed"
	SourceHybridAdjusted  LabelSource = "hybrid_adjusted"
)

// LabelConfidence tiers a record's label quality for training.
type LabelConfidence string

// Label confidence values
const (
	ConfidenceRuleOnly  LabelConfidence = "rule_only"
	ConfidencePending   LabelConfidence = "pending_prompt"
	ConfidenceConfirmed LabelConfidence = "confirmed"
	ConfidenceAdjusted  LabelConfidence = "adjusted"
	ConfidenceSkipped   LabelConfidence = "skipped"
)

// Session is the single in-flight browsing session. All timestamps are
// epoch milliseconds; they flow unchanged into exported records.
type Session struct {
	SessionID string `json:"sessionId"`
	Domain    string `json:"domain"`
	URL       string `json:"url"`
	TabID     string `json:"tabId"`

	StartTime      int64 `json:"startTime"`
	LastTickAt     int64 `json:"lastTickAt"`
	LastActivityAt int64 `json:"lastActivityAt"`

	ActiveTimeSec  int `json:"activeTimeSec"`
	ScrollCount    int `json:"scrollCount"`
	TabSwitchCount int `json:"tabSwitchCount"`
	RevisitCount   int `json:"revisitCount"`

	Phase Phase `json:"phase"`

	Stage2PromptShown  bool         `json:"stage2PromptShown"`
	Stage2Choice       Stage2Choice `json:"stage2Choice"`
	Stage2ActionFailed bool         `json:"stage2ActionFailed"`
	Stage2FailReason   string       `json:"stage2FailReason"`

	SnoozeMinutes int   `json:"snoozeMinutes"`
	SnoozeUntil   int64 `json:"snoozeUntil"`

	BreakTriggered      bool   `json:"breakTriggered"`
	BreakType           string `json:"breakType"`
	BreakDurationSec    int    `json:"breakDurationSec"`
	BreakCooldownUntil  int64  `json:"breakCooldownUntil"`
	BreakReturnDeadline int64  `json:"breakReturnDeadline"`

	DebugTouched bool     `json:"debugTouched"`
	DebugSources []string `json:"debugSources,omitempty"`
}

// New allocates a fresh session for the given tab.
func New(domain, url, tabID string, nowMs int64, revisitCount int) *Session {
	return &Session{
		SessionID:      uuid.NewString(),
		Domain:         domain,
		URL:            url,
		TabID:          tabID,
		StartTime:      nowMs,
		LastTickAt:     nowMs,
		LastActivityAt: nowMs,
		RevisitCount:   revisitCount,
		Phase:          PhaseActive,
	}
}

// TouchDebug flags the session as debug-contaminated and records the
// debug action that touched it. Tags are kept unique and ordered.
func (s *Session) TouchDebug(tag string) {
	s.DebugTouched = true
	for _, existing := range s.DebugSources {
		if existing == tag {
			return
		}
	}
	s.DebugSources = append(s.DebugSources, tag)
}

// Record is a finalized session log entry. Immutable once appended,
// except for the prompt-answer fields which may be set exactly once.
type Record struct {
	SchemaVersion int    `json:"sessionSchemaVersion"`
	SessionID     string `json:"sessionId"`
	Domain        string `json:"domain"`
	URL           string `json:"url"`
	TabID         string `json:"tabId"`

	StartTime int64     `json:"startTime"`
	EndTime   int64     `json:"endTime"`
	EndReason EndReason `json:"endReason"`

	ActiveTimeSec    int    `json:"activeTimeSec"`
	ScrollCount      int    `json:"scrollCount"`
	TabSwitchCount   int    `json:"tabSwitchCount"`
	RevisitCount     int    `json:"revisitCount"`
	RevisitCountMode string `json:"revisitCountMode"`

	Stage              int     `json:"stage"`
	RiskLevel          int     `json:"riskLevel"`
	Mode               string  `json:"mode"`
	RuleVersion        string  `json:"ruleVersion"`
	IdleTimeoutMinUsed int     `json:"idleTimeoutMinUsed"`
	ProvisionalLabel   int     `json:"provisionalLabel"`
	ProvisionalScore   float64 `json:"provisionalScore"`
	FinalLabel         int     `json:"finalLabel"`

	LabelSource     LabelSource     `json:"labelSource"`
	LabelConfidence LabelConfidence `json:"labelConfidence"`

	IsDebugRow   bool     `json:"isDebugRow"`
	DebugSources []string `json:"debugSources,omitempty"`

	Stage2Choice       Stage2Choice `json:"stage2Choice"`
	Stage2ActionFailed bool         `json:"stage2ActionFailed"`
	Stage2FailReason   string       `json:"stage2FailReason"`

	SnoozeMinutes    int    `json:"snoozeMinutes"`
	SnoozeUntil      int64  `json:"snoozeUntil"`
	BreakTriggered   bool   `json:"breakTriggered"`
	BreakType        string `json:"breakType"`
	BreakDurationSec int    `json:"breakDurationSec"`

	PromptShown   bool `json:"promptShown"`
	PromptSkipped bool `json:"promptSkipped"`

	// Prompt answers. Empty/nil until the user responds.
	Q1LongerThanIntended string `json:"q1LongerThanIntended"`
	Q2HardToStop         *int   `json:"q2HardToStop"`
}
