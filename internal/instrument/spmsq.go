package instrument

import "github.com/hsinlab/cogscreen/internal/model"

// ScoreSPMSQ counts errors and bands the education-adjusted error count:
// grade school or less forgives one error, high school or more adds one,
// clamped at zero. Bands: <=2 normal, <=4 mild, <=7 moderate, else severe.
func ScoreSPMSQ(items []ItemResult, educationLevel string) (float64, model.Interpretation) {
	errors := countIncorrect(items)

	adjustment := 0
	switch educationLevel {
	case model.EducationGradeSchoolOrLess:
		adjustment = -1
	case model.EducationHighSchoolOrMore:
		adjustment = 1
	}
	adjusted := errors + adjustment
	if adjusted < 0 {
		adjusted = 0
	}

	var severity model.Severity
	switch {
	case adjusted <= 2:
		severity = model.SeverityNone
	case adjusted <= 4:
		severity = model.SeverityMild
	case adjusted <= 7:
		severity = model.SeverityModerate
	default:
		severity = model.SeveritySevere
	}

	return float64(errors), model.Interpretation{
		Severity:        sevPtr(severity),
		EducationLevel:  educationLevel,
		ErrorAdjustment: intPtr(adjustment),
		AdjustedErrors:  intPtr(adjusted),
		Notes:           "SPMSQ error count is adjusted for education level before banding.",
	}
}
