// Package instrument computes per-instrument raw scores and severity bands
// from a session's response rows, and folds them into the cross-instrument
// risk summary. All functions are pure.
package instrument

import (
	"github.com/hsinlab/cogscreen/internal/model"
)

// ItemResult is one question's resolved outcome. A nil Correct means the
// response was never graded (no transcript, scoring skipped).
type ItemResult struct {
	QuestionID string
	Correct    *bool
}

// ResolveCorrect folds the three correctness signals for a response using the
// fixed precedence: manual confirmation, then the rule result, then the
// advisory judge verdict. Returns nil when none is present.
func ResolveCorrect(manual *bool, rule *model.MatchResult, judge *model.JudgeVerdict) *bool {
	if manual != nil {
		v := *manual
		return &v
	}
	if rule != nil {
		v := rule.IsCorrect
		return &v
	}
	if judge != nil {
		v := judge.IsCorrect
		return &v
	}
	return nil
}

// BuildItems maps a session's ordered response rows to item results.
func BuildItems(responses []model.Response) []ItemResult {
	items := make([]ItemResult, 0, len(responses))
	for _, r := range responses {
		items = append(items, ItemResult{
			QuestionID: r.QuestionID,
			Correct:    ResolveCorrect(r.ManualConfirmed, r.RuleScore, r.Judge),
		})
	}
	return items
}

// Aggregate computes the raw score and interpretation for one instrument from
// its ordered item results. Unrecognized instruments get the correct-count as
// score with an empty interpretation, never a rejection.
func Aggregate(inst model.Instrument, items []ItemResult, cfg model.SessionConfig) (float64, model.Interpretation) {
	switch inst {
	case model.InstrumentAD8:
		return ScoreAD8(items)
	case model.InstrumentSPMSQ:
		return ScoreSPMSQ(items, cfg.EducationLevel)
	case model.InstrumentMMSE:
		return ScoreMMSE(countCorrect(items), cfg.MMSECutoffs)
	case model.InstrumentMoCA:
		return ScoreMoCA(countCorrect(items), cfg.EducationYears, cfg.MoCACutoff)
	default:
		return float64(countCorrect(items)), model.Interpretation{}
	}
}

func countCorrect(items []ItemResult) int {
	n := 0
	for _, it := range items {
		if it.Correct != nil && *it.Correct {
			n++
		}
	}
	return n
}

func countIncorrect(items []ItemResult) int {
	n := 0
	for _, it := range items {
		if it.Correct != nil && !*it.Correct {
			n++
		}
	}
	return n
}

func boolPtr(v bool) *bool { return &v }

func intPtr(v int) *int { return &v }

func sevPtr(v model.Severity) *model.Severity { return &v }
