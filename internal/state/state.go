// Package state owns the daily-scoped tracking state and its SQLite
// persistence. The aggregate is loaded as a full snapshot and written
// back as partial patches after each transition, so a restart resumes
// from the last durable snapshot.
package state

import (
	"strconv"
	"time"

	"github.com/tabwarden/tabwarden/internal/session"
)

// Storage keys. Each key maps to one independently patchable value.
const (
	KeyTrackingEnabled = "trackingEnabled"
	KeyDebugEnabled    = "debugEnabled"
	KeyMode            = "mode"
	KeyIdleTimeoutMin  = "idleTimeoutMin"
	KeyDomainTotals    = "domainTotals"
	KeyVisitedToday    = "visitedDomainsToday"
	KeyCooldowns       = "cooldowns"
	KeySnoozes         = "snoozes"
	KeySnoozeHistory   = "snoozeHistory"
	KeyLastResetDate   = "lastResetDate"
	KeyStageNotified   = "stageNotified"
	KeyCurrentSession  = "currentSessionState"
)

// Idle timeout options in minutes. Anything else sanitizes to the
// default.
var IdleTimeoutOptionsMin = []int{3, 5, 10}

// DefaultIdleTimeoutMin is used when no valid idle timeout is stored.
const DefaultIdleTimeoutMin = 5

// DomainTotal is one domain's accumulated active time for a calendar
// day.
type DomainTotal struct {
	DateKey            string `json:"dateKey"`
	ActiveTimeSecToday int    `json:"activeTimeSecToday"`
}

// VisitedToday counts same-day visits per domain, used for the revisit
// counter on new sessions.
type VisitedToday struct {
	DateKey string         `json:"dateKey"`
	Domains map[string]int `json:"domains"`
}

// DailyState is the full tracking state aggregate. Cooldowns, snoozes
// and snooze history expire by timestamp; everything else resets at the
// local-midnight rollover.
type DailyState struct {
	TrackingEnabled bool   `json:"trackingEnabled"`
	DebugEnabled    bool   `json:"debugEnabled"`
	Mode            string `json:"mode"`
	IdleTimeoutMin  int    `json:"idleTimeoutMin"`

	DomainTotals  map[string]*DomainTotal `json:"domainTotals"`
	VisitedToday  VisitedToday            `json:"visitedDomainsToday"`
	Cooldowns     map[string]int64        `json:"cooldowns"`
	Snoozes       map[string]int64        `json:"snoozes"`
	SnoozeHistory map[string][]int64      `json:"snoozeHistory"`
	StageNotified map[string]bool         `json:"stageNotified"`
	LastResetDate string                  `json:"lastResetDate"`

	CurrentSession *session.Session `json:"currentSessionState"`
}

// LocalDateKey formats a timestamp as a local-time YYYY-MM-DD key.
func LocalDateKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// DefaultState returns the state used before anything has been stored.
func DefaultState(now time.Time) *DailyState {
	return &DailyState{
		TrackingEnabled: true,
		Mode:            "default",
		IdleTimeoutMin:  DefaultIdleTimeoutMin,
		DomainTotals:    map[string]*DomainTotal{},
		VisitedToday:    VisitedToday{DateKey: LocalDateKey(now), Domains: map[string]int{}},
		Cooldowns:       map[string]int64{},
		Snoozes:         map[string]int64{},
		SnoozeHistory:   map[string][]int64{},
		StageNotified:   map[string]bool{},
		LastResetDate:   LocalDateKey(now),
	}
}

// SanitizeIdleTimeoutMin clamps an idle timeout to the supported
// options.
func SanitizeIdleTimeoutMin(minutes int) int {
	for _, opt := range IdleTimeoutOptionsMin {
		if minutes == opt {
			return minutes
		}
	}
	return DefaultIdleTimeoutMin
}

// EnsureDaily lazily applies the local-midnight rollover. Returns true
// when a reset happened and the daily keys need persisting.
func (s *DailyState) EnsureDaily(now time.Time) bool {
	today := LocalDateKey(now)
	if s.LastResetDate == today {
		if s.VisitedToday.DateKey != today || s.VisitedToday.Domains == nil {
			s.VisitedToday = VisitedToday{DateKey: today, Domains: map[string]int{}}
		}
		return false
	}

	s.DomainTotals = map[string]*DomainTotal{}
	s.VisitedToday = VisitedToday{DateKey: today, Domains: map[string]int{}}
	s.StageNotified = map[string]bool{}
	s.LastResetDate = today
	return true
}

// DomainTotalRecord returns the domain's total for today, creating or
// resetting it if it belongs to another day.
func (s *DailyState) DomainTotalRecord(domain string, now time.Time) *DomainTotal {
	today := LocalDateKey(now)
	rec, ok := s.DomainTotals[domain]
	if !ok || rec.DateKey != today {
		rec = &DomainTotal{DateKey: today}
		s.DomainTotals[domain] = rec
	}
	return rec
}

// TodayDomainSec returns today's accumulated active seconds for a
// domain.
func (s *DailyState) TodayDomainSec(domain string, now time.Time) int {
	return s.DomainTotalRecord(domain, now).ActiveTimeSecToday
}

// IdleTimeout returns the configured idle timeout as a duration.
func (s *DailyState) IdleTimeout() time.Duration {
	return time.Duration(SanitizeIdleTimeoutMin(s.IdleTimeoutMin)) * time.Minute
}

// IsSnoozed reports whether Stage-2 nudges are suppressed for a domain.
func (s *DailyState) IsSnoozed(domain string, nowMs int64) bool {
	return s.Snoozes[domain] > nowMs
}

// SweepExpired drops lapsed cooldowns and snoozes and trims snooze
// history to the rolling window. Returns the storage keys whose values
// changed so the caller can patch only those.
func (s *DailyState) SweepExpired(nowMs int64, snoozeWindow time.Duration) []string {
	var changed []string

	cooldownsChanged := false
	for domain, until := range s.Cooldowns {
		if until <= nowMs {
			delete(s.Cooldowns, domain)
			cooldownsChanged = true
		}
	}
	if cooldownsChanged {
		changed = append(changed, KeyCooldowns)
	}

	snoozesChanged := false
	for domain, until := range s.Snoozes {
		if until <= nowMs {
			delete(s.Snoozes, domain)
			snoozesChanged = true
		}
	}
	if snoozesChanged {
		changed = append(changed, KeySnoozes)
	}

	historyChanged := false
	cutoff := nowMs - snoozeWindow.Milliseconds()
	for domain, timestamps := range s.SnoozeHistory {
		kept := timestamps[:0]
		for _, ts := range timestamps {
			if ts > cutoff {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(s.SnoozeHistory, domain)
			historyChanged = true
			continue
		}
		if len(kept) != len(timestamps) {
			s.SnoozeHistory[domain] = kept
			historyChanged = true
		}
	}
	if historyChanged {
		changed = append(changed, KeySnoozeHistory)
	}

	return changed
}

// StageNotifyKey builds the dedup key for a one-shot stage
// notification.
func StageNotifyKey(dateKey, domain string, stage int) string {
	return dateKey + "|" + domain + "|" + strconv.Itoa(stage)
}
