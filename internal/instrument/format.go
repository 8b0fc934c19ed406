package instrument

import (
	"encoding/json"

	"github.com/hsinlab/cogscreen/internal/model"
)

// FormatScores shapes stored score rows into the report's instrument_scores
// map, keyed by instrument code. Unrecognized instruments pass their score
// and stored interpretation payload through unchanged.
func FormatScores(rows []model.InstrumentScore) map[string]any {
	out := make(map[string]any, len(rows))
	for _, row := range rows {
		score := row.Score
		interp := row.Interpretation
		switch row.Instrument {
		case model.InstrumentAD8:
			positive := interp.ScreenPositive != nil && *interp.ScreenPositive
			cutoff := AD8Cutoff
			if interp.Cutoff != nil {
				cutoff = *interp.Cutoff
			}
			out[string(row.Instrument)] = model.AD8Report{
				Score:          &score,
				MaxScore:       8,
				ScreenPositive: positive,
				Cutoff:         cutoff,
				Interpretation: interp.Notes,
			}
		case model.InstrumentSPMSQ:
			out[string(row.Instrument)] = model.SPMSQReport{
				Errors: &score,
				Adjustment: model.SPMSQAdjustment{
					EducationLevel:  interp.EducationLevel,
					ErrorAdjustment: interp.ErrorAdjustment,
				},
				AdjustedErrors: interp.AdjustedErrors,
				SeverityBand:   interp.Severity,
				SeverityLevel:  severityLevel(interp.Severity),
				Interpretation: interp.Notes,
			}
		case model.InstrumentMMSE:
			out[string(row.Instrument)] = model.MMSEReport{
				Score:          &score,
				MaxScore:       MMSEMaxScore,
				CutoffUsed:     interp.CutoffUsed,
				SeverityBand:   interp.Severity,
				SeverityLevel:  severityLevel(interp.Severity),
				Interpretation: interp.Notes,
			}
		case model.InstrumentMoCA:
			severity := interp.Severity
			positive := interp.ScreenPositive != nil && *interp.ScreenPositive
			if severity == nil && positive {
				severity = sevPtr(model.SeverityMild)
			}
			out[string(row.Instrument)] = model.MoCAReport{
				Score:                 &score,
				MaxScore:              MoCAMaxScore,
				EducationYears:        interp.EducationYears,
				EducationBonusApplied: interp.EducationBonusApplied,
				ScreenPositive:        positive,
				SeverityBand:          severity,
				SeverityLevel:         severityLevel(severity),
				Interpretation:        interp.Notes,
			}
		default:
			var raw any
			if len(row.RawInterpretation) > 0 {
				_ = json.Unmarshal(row.RawInterpretation, &raw)
			}
			out[string(row.Instrument)] = model.UnknownReport{
				Score:          &score,
				Interpretation: raw,
			}
		}
	}
	return out
}

func severityLevel(s *model.Severity) *int {
	if s == nil {
		return nil
	}
	return intPtr(s.Level())
}
