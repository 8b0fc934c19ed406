package instrument

import (
	"sort"

	"github.com/hsinlab/cogscreen/internal/model"
)

// SummaryData is the cross-instrument projection before message formatting.
type SummaryData struct {
	Band           model.Severity
	Level          int
	ScreenPositive bool
	DerivedFrom    []string
	NeedsFollowup  bool
}

// Summarize folds per-instrument score rows into one risk level: the maximum
// severity ordinal across instruments (none when no instrument produced a
// band), with screen-positive OR-ed across graded bands and the instruments'
// own boolean flags. A binary-cutoff instrument can therefore flag risk even
// though it carries no band.
func Summarize(rows []model.InstrumentScore) SummaryData {
	var (
		maxLevel = -1
		positive bool
		derived  []string
	)
	for _, row := range rows {
		derived = append(derived, string(row.Instrument))
		if sev := row.Interpretation.Severity; sev != nil {
			if sev.Level() > maxLevel {
				maxLevel = sev.Level()
			}
			if sev.Level() > 0 {
				positive = true
			}
		}
		if sp := row.Interpretation.ScreenPositive; sp != nil && *sp {
			positive = true
		}
	}
	sort.Strings(derived)

	level := 0
	if maxLevel >= 0 {
		level = maxLevel
	}
	return SummaryData{
		Band:           model.Severity(level),
		Level:          level,
		ScreenPositive: positive,
		DerivedFrom:    derived,
		NeedsFollowup:  positive,
	}
}
