package rules

import "math"

// Normalization caps for the provisional score, before mode scaling.
const (
	capActiveTimeSec  = 1800
	capScrollCount    = 200
	capTabSwitchCount = 20
	capRevisitCount   = 10
)

// Provisional is the rule-only classification of a finished session.
type Provisional struct {
	Label int
	Score float64
}

func normalize(value, cap int) float64 {
	if value <= 0 {
		return 0
	}
	return math.Min(1, float64(value)/float64(cap))
}

func scaledCap(base int, multiplier float64) int {
	scaled := int(math.Round(float64(base) * multiplier))
	if scaled < 1 {
		return 1
	}
	return scaled
}

// ComputeProvisional scores a session from its behavioral counters.
// Each counter is normalized against a mode-scaled cap and clamped to
// [0,1]; the weighted sum maps to Low/Medium/High at 0.33 and 0.66.
func ComputeProvisional(activeTimeSec, scrollCount, tabSwitchCount, revisitCount int, mode string) Provisional {
	multiplier := GetModeConfig(mode).Multiplier

	timeScore := normalize(activeTimeSec, scaledCap(capActiveTimeSec, multiplier))
	scrollScore := normalize(scrollCount, scaledCap(capScrollCount, multiplier))
	switchScore := normalize(tabSwitchCount, scaledCap(capTabSwitchCount, multiplier))
	revisitScore := normalize(revisitCount, scaledCap(capRevisitCount, multiplier))

	score := 0.4*timeScore + 0.2*scrollScore + 0.2*switchScore + 0.2*revisitScore

	label := High
	if score < 0.33 {
		label = Low
	} else if score < 0.66 {
		label = Medium
	}

	return Provisional{
		Label: label,
		Score: math.Round(score*10000) / 10000,
	}
}

// Hybrid is the outcome of combining the provisional label with the
// post-session prompt answers.
type Hybrid struct {
	FinalLabel int
	Source     string
}

// Hybrid label sources. Mirrored by session.LabelSource; kept as plain
// strings here so the policy stays dependency-free.
const (
	HybridSkipped   = "hybrid_skipped"
	HybridConfirmed = "hybrid_confirmed"
	HybridAdjusted  = "hybrid_adjusted"
)

// ComputeHybridFinal adjusts a provisional label using up to two user
// signals: q1 is "yes"/"no" (anything else means unanswered) and q2 is
// a 1-5 Likert rating (nil means unanswered).
func ComputeHybridFinal(provisionalLabel int, q1 string, q2 *int) Hybrid {
	var signals []float64

	switch q1 {
	case "yes":
		signals = append(signals, 1)
	case "no":
		signals = append(signals, 0)
	}

	if q2 != nil {
		rescaled := math.Max(0, math.Min(1, float64(*q2-1)/4))
		signals = append(signals, rescaled)
	}

	if len(signals) == 0 {
		return Hybrid{FinalLabel: provisionalLabel, Source: HybridSkipped}
	}

	var sum float64
	for _, s := range signals {
		sum += s
	}
	userScore := sum / float64(len(signals))

	finalLabel := provisionalLabel
	switch {
	case provisionalLabel == Medium && userScore >= 0.75:
		finalLabel = High
	case provisionalLabel == High && userScore <= 0.25:
		finalLabel = Medium
	case provisionalLabel == Medium && userScore <= 0.25:
		finalLabel = Low
	}

	source := HybridConfirmed
	if finalLabel != provisionalLabel {
		source = HybridAdjusted
	}
	return Hybrid{FinalLabel: finalLabel, Source: source}
}
