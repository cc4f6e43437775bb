package track

import (
	"errors"
	"fmt"

	"github.com/tabwarden/tabwarden/internal/rules"
	"github.com/tabwarden/tabwarden/internal/session"
	"github.com/tabwarden/tabwarden/internal/state"
)

// PromptAnswers is the reflection prompt payload. Q2 stays nil when the
// user declined the 1-5 question.
type PromptAnswers struct {
	SessionID            string `json:"sessionId"`
	Q1LongerThanIntended string `json:"q1LongerThanIntended"`
	Q2HardToStop         *int   `json:"q2HardToStop"`
}

func validPromptAnswers(a PromptAnswers) error {
	switch a.Q1LongerThanIntended {
	case "yes", "no", "skip":
	default:
		return fmt.Errorf("invalid session rating payload")
	}
	if a.Q2HardToStop != nil && (*a.Q2HardToStop < 1 || *a.Q2HardToStop > 5) {
		return fmt.Errorf("invalid session rating payload")
	}
	return nil
}

// SavePromptAnswers applies the one-shot prompt answers to a finalized
// record and recomputes its final label. A second write for the same
// session fails with ErrAlreadyRated.
func (e *Engine) SavePromptAnswers(a PromptAnswers) (*session.Record, error) {
	if a.SessionID == "" {
		return nil, fmt.Errorf("missing sessionId")
	}
	if err := validPromptAnswers(a); err != nil {
		return nil, err
	}

	rec, err := e.store.GetRecord(a.SessionID)
	if err != nil {
		return nil, err
	}
	if rec.Q1LongerThanIntended != "" || rec.Q2HardToStop != nil {
		return nil, state.ErrAlreadyRated
	}

	rec.Q1LongerThanIntended = a.Q1LongerThanIntended
	rec.Q2HardToStop = a.Q2HardToStop

	hybrid := rules.ComputeHybridFinal(rec.ProvisionalLabel, a.Q1LongerThanIntended, a.Q2HardToStop)
	rec.FinalLabel = hybrid.FinalLabel
	rec.LabelSource = session.LabelSource(hybrid.Source)

	rec.PromptSkipped = a.Q1LongerThanIntended == "skip" && a.Q2HardToStop == nil
	switch {
	case rec.PromptSkipped:
		rec.LabelConfidence = session.ConfidenceSkipped
	case rec.LabelSource == session.SourceHybridAdjusted:
		rec.LabelConfidence = session.ConfidenceAdjusted
	case rec.LabelSource == session.SourceHybridConfirmed:
		rec.LabelConfidence = session.ConfidenceConfirmed
	default:
		rec.LabelConfidence = session.ConfidenceRuleOnly
	}

	if err := e.store.ApplyPromptAnswers(rec); err != nil {
		if errors.Is(err, state.ErrAlreadyRated) {
			return nil, state.ErrAlreadyRated
		}
		return nil, err
	}
	return rec, nil
}
