package instrument

import "github.com/hsinlab/cogscreen/internal/model"

// AD8Cutoff is the fixed screen-positive cutoff: two or more affirmative
// items suggest follow-up assessment.
const AD8Cutoff = 2

// ScoreAD8 counts affirmative item responses out of 8. AD8 severity is
// binary (screen positive or not), never banded.
func ScoreAD8(items []ItemResult) (float64, model.Interpretation) {
	total := countCorrect(items)
	return float64(total), model.Interpretation{
		ScreenPositive: boolPtr(total >= AD8Cutoff),
		Cutoff:         intPtr(AD8Cutoff),
		Notes:          "AD-8 is a screening tool; scores >=2 suggest follow-up assessment.",
	}
}
