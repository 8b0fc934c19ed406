package instrument

import "github.com/hsinlab/cogscreen/internal/model"

// DefaultMMSECutoffs are research heuristics, not licensed normative data.
var DefaultMMSECutoffs = model.MMSECutoffs{Normal: 24, Mild: 18, Moderate: 10}

// MMSEMaxScore is the instrument ceiling.
const MMSEMaxScore = 30

// ScoreMMSE bands a raw MMSE score against the configured cutoffs; below the
// lowest cutoff is severe.
func ScoreMMSE(raw int, cutoffs *model.MMSECutoffs) (float64, model.Interpretation) {
	c := DefaultMMSECutoffs
	if cutoffs != nil {
		c = *cutoffs
	}

	var severity model.Severity
	cutoffUsed := c.Normal
	switch {
	case raw >= c.Normal:
		severity = model.SeverityNone
	case raw >= c.Mild:
		severity = model.SeverityMild
		cutoffUsed = c.Mild
	case raw >= c.Moderate:
		severity = model.SeverityModerate
		cutoffUsed = c.Moderate
	default:
		severity = model.SeveritySevere
		cutoffUsed = c.Moderate
	}

	return float64(raw), model.Interpretation{
		Severity:   sevPtr(severity),
		CutoffUsed: intPtr(cutoffUsed),
		Notes:      "MMSE scoring must follow licensed materials and local norms.",
	}
}
