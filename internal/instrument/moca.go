package instrument

import "github.com/hsinlab/cogscreen/internal/model"

// DefaultMoCACutoff is the screen-positive cutoff on the adjusted score.
const DefaultMoCACutoff = 26

// MoCAMaxScore is the instrument ceiling.
const MoCAMaxScore = 30

// ScoreMoCA applies the one-point education correction (education of 12
// years or less, raw score below the ceiling) and screens against the
// cutoff. When screen positive the severity is reported as at least mild so
// the summary reflects the flag even without a graded band.
func ScoreMoCA(raw int, educationYears *int, cutoff *int) (float64, model.Interpretation) {
	c := DefaultMoCACutoff
	if cutoff != nil {
		c = *cutoff
	}

	adjusted := raw
	bonus := false
	if educationYears != nil && *educationYears <= 12 && raw < MoCAMaxScore {
		adjusted++
		bonus = true
	}
	positive := adjusted < c

	interp := model.Interpretation{
		ScreenPositive:        boolPtr(positive),
		AdjustedScore:         intPtr(adjusted),
		EducationYears:        educationYears,
		EducationBonusApplied: boolPtr(bonus),
		Notes:                 "MoCA requires permission/training; cutoffs may vary by population.",
	}
	if positive {
		interp.Severity = sevPtr(model.SeverityMild)
	}
	return float64(raw), interp
}
