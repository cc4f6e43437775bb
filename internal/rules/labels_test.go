package rules

import "testing"

func TestComputeProvisionalBounds(t *testing.T) {
	zero := ComputeProvisional(0, 0, 0, 0, ModeDefault)
	if zero.Score != 0 || zero.Label != Low {
		t.Errorf("zero session: got label %d score %v", zero.Label, zero.Score)
	}

	maxed := ComputeProvisional(10000, 10000, 10000, 10000, ModeDefault)
	if maxed.Score != 1 || maxed.Label != High {
		t.Errorf("saturated session: got label %d score %v", maxed.Label, maxed.Score)
	}
}

func TestComputeProvisionalWeights(t *testing.T) {
	// Only time at its cap contributes its 0.4 weight.
	got := ComputeProvisional(1800, 0, 0, 0, ModeDefault)
	if got.Score != 0.4 {
		t.Errorf("time-only score = %v, want 0.4", got.Score)
	}
	if got.Label != Medium {
		t.Errorf("time-only label = %d, want Medium", got.Label)
	}

	// Half the time cap: 0.4 * 0.5 = 0.2, Low.
	got = ComputeProvisional(900, 0, 0, 0, ModeDefault)
	if got.Score != 0.2 || got.Label != Low {
		t.Errorf("half-time: got label %d score %v", got.Label, got.Score)
	}
}

func TestComputeProvisionalModeScaledCaps(t *testing.T) {
	// entertainment shrinks the time cap to 1620, so the same session
	// scores higher than in default mode.
	def := ComputeProvisional(900, 0, 0, 0, ModeDefault)
	ent := ComputeProvisional(900, 0, 0, 0, ModeEntertainment)
	if ent.Score <= def.Score {
		t.Errorf("entertainment score %v should exceed default %v", ent.Score, def.Score)
	}
}

func TestComputeProvisionalRounding(t *testing.T) {
	// 0.4*(1000/1800) + 0.2*(37/200) + 0.2*(3/20) + 0.2*(1/10) = 0.30922...
	got := ComputeProvisional(1000, 37, 3, 1, ModeDefault)
	if got.Score != 0.3092 {
		t.Errorf("score = %v, want 0.3092", got.Score)
	}
}

func intPtr(v int) *int { return &v }

func TestComputeHybridFinal(t *testing.T) {
	tests := []struct {
		name        string
		provisional int
		q1          string
		q2          *int
		wantLabel   int
		wantSource  string
	}{
		{"no answers keeps label", Medium, "", nil, Medium, HybridSkipped},
		{"skip keeps label", Medium, "skip", nil, Medium, HybridSkipped},
		{"medium promoted by strong yes", Medium, "yes", intPtr(5), High, HybridAdjusted},
		{"medium promoted by q1 yes alone", Medium, "yes", nil, High, HybridAdjusted},
		{"high demoted by strong no", High, "no", intPtr(1), Medium, HybridAdjusted},
		{"medium demoted by strong no", Medium, "no", intPtr(1), Low, HybridAdjusted},
		{"medium confirmed by mixed signals", Medium, "yes", intPtr(1), Medium, HybridConfirmed},
		{"low never promoted", Low, "yes", intPtr(5), Low, HybridConfirmed},
		{"high confirmed by yes", High, "yes", intPtr(5), High, HybridConfirmed},
		{"q2 alone middling confirms", Medium, "", intPtr(3), Medium, HybridConfirmed},
		{"q2 alone maximal promotes medium", Medium, "", intPtr(5), High, HybridAdjusted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeHybridFinal(tt.provisional, tt.q1, tt.q2)
			if got.FinalLabel != tt.wantLabel {
				t.Errorf("final label = %d, want %d", got.FinalLabel, tt.wantLabel)
			}
			if got.Source != tt.wantSource {
				t.Errorf("source = %q, want %q", got.Source, tt.wantSource)
			}
		})
	}
}
