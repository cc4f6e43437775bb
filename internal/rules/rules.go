// Package rules holds the stateless risk policy: stage thresholds, risk
// levels, mode configuration, and the label math. Everything here is a
// pure function so the engine and the offline pipeline can share it.
package rules

import "math"

// RuleVersion tags every finalized record with the labeling regime that
// produced it. The split pipeline refuses to mix rule versions.
const RuleVersion = "phase1_mode_v1"

// Risk levels
const (
	Low    = 0
	Medium = 1
	High   = 2
)

// Stage thresholds in minutes of active time on a domain today, before
// mode scaling.
var stageThresholdsMin = [4]int{30, 60, 120, 240}

// ModeConfig describes how a tracking mode scales thresholds and shapes
// interventions.
type ModeConfig struct {
	Label         string
	Multiplier    float64
	PromptTone    string
	SnoozeMinutes int
}

// Mode names
const (
	ModeDefault       = "default"
	ModeStudyResearch = "study_research"
	ModeEntertainment = "entertainment"
)

var modeConfigs = map[string]ModeConfig{
	ModeDefault: {
		Label:         "Default",
		Multiplier:    1.0,
		PromptTone:    "balanced",
		SnoozeMinutes: 10,
	},
	ModeStudyResearch: {
		Label:         "Study-Research",
		Multiplier:    1.2,
		PromptTone:    "break_focused",
		SnoozeMinutes: 15,
	},
	ModeEntertainment: {
		Label:         "Entertainment",
		Multiplier:    0.9,
		PromptTone:    "stop_focused",
		SnoozeMinutes: 5,
	},
}

// SanitizeMode maps unknown or empty mode names to the default mode.
func SanitizeMode(mode string) string {
	if _, ok := modeConfigs[mode]; ok {
		return mode
	}
	return ModeDefault
}

// GetModeConfig returns the config for a mode, sanitizing first.
func GetModeConfig(mode string) ModeConfig {
	return modeConfigs[SanitizeMode(mode)]
}

// Stage buckets today's active seconds on a domain into 0..4, scaling
// the thresholds by the mode multiplier.
func Stage(activeSecToday int, mode string) int {
	multiplier := GetModeConfig(mode).Multiplier
	for i, thresholdMin := range stageThresholdsMin {
		scaled := int(math.Round(float64(thresholdMin*60) * multiplier))
		if activeSecToday < scaled {
			return i
		}
	}
	return 4
}

// Risk maps a stage to a risk level: 0 is Low, 1-2 Medium, 3-4 High.
func Risk(stage int) int {
	switch {
	case stage <= 0:
		return Low
	case stage <= 2:
		return Medium
	default:
		return High
	}
}

// RiskLabel formats a risk level for display.
func RiskLabel(risk int) string {
	switch risk {
	case Low:
		return "Low"
	case Medium:
		return "Medium"
	default:
		return "High"
	}
}
