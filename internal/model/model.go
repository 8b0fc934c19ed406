package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Instrument identifies a cognitive screening questionnaire.
type Instrument string

const (
	InstrumentAD8   Instrument = "AD8"
	InstrumentSPMSQ Instrument = "SPMSQ"
	InstrumentMMSE  Instrument = "MMSE"
	InstrumentMoCA  Instrument = "MoCA"
)

// ParseInstrument maps a free-form instrument key (any case) to its canonical
// form. Unrecognized keys are preserved uppercased so they flow through
// aggregation and reporting unchanged.
func ParseInstrument(s string) Instrument {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ad8":
		return InstrumentAD8
	case "spmsq":
		return InstrumentSPMSQ
	case "mmse":
		return InstrumentMMSE
	case "moca":
		return InstrumentMoCA
	case "":
		return ""
	default:
		return Instrument(strings.ToUpper(strings.TrimSpace(s)))
	}
}

// Known reports whether the instrument is one of the four supported
// questionnaires.
func (i Instrument) Known() bool {
	switch i {
	case InstrumentAD8, InstrumentSPMSQ, InstrumentMMSE, InstrumentMoCA:
		return true
	}
	return false
}

// Severity is an ordered risk band. The ordinal is the value itself and the
// display label comes from String, so the two cannot drift apart.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityMild
	SeverityModerate
	SeveritySevere
)

var severityLabels = [...]string{"none", "mild", "moderate", "severe"}

func (s Severity) String() string {
	if s < SeverityNone || s > SeveritySevere {
		return "none"
	}
	return severityLabels[s]
}

// Level returns the ordinal used for cross-instrument comparison.
func (s Severity) Level() int { return int(s) }

// ParseSeverity maps a band label to its Severity. "normal" is accepted as an
// alias for "none" (SPMSQ and MMSE band their lowest tier as normal).
func ParseSeverity(label string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "none", "normal":
		return SeverityNone, true
	case "mild":
		return SeverityMild, true
	case "moderate":
		return SeverityModerate, true
	case "severe":
		return SeveritySevere, true
	}
	return SeverityNone, false
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	sev, ok := ParseSeverity(label)
	if !ok {
		return fmt.Errorf("unknown severity band %q", label)
	}
	*s = sev
	return nil
}

// RuleType is the matching algorithm a scoring rule declares.
type RuleType string

const (
	RuleExact            RuleType = "exact"
	RuleContainsAny      RuleType = "contains_any"
	RuleContainsAll      RuleType = "contains_all"
	RuleFuzzy            RuleType = "fuzzy"
	RuleNumericRange     RuleType = "numeric_range"
	RuleSequenceSubtract RuleType = "sequence_subtract"
)

// ScoringRule is an immutable scoring template. Only the fields relevant to
// Type are meaningful; the rest are carried harmlessly.
type ScoringRule struct {
	Type       RuleType `json:"type"`
	Expected   []string `json:"expected,omitempty"`
	MinValue   *float64 `json:"min_value,omitempty"`
	MaxValue   *float64 `json:"max_value,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
	Start      *float64 `json:"start,omitempty"`
	Step       *float64 `json:"step,omitempty"`
	Count      int      `json:"count,omitempty"`
	MinCorrect int      `json:"min_correct,omitempty"`
}

// MatchResult is the structured outcome of evaluating a transcript against an
// expanded rule. Type echoes the rule type ("unknown" for unsupported rules);
// IsCorrect is always present, the remaining fields are type-specific
// diagnostics.
type MatchResult struct {
	Type      string   `json:"type"`
	IsCorrect bool     `json:"is_correct"`
	Matched   []string `json:"matched,omitempty"`
	Missing   []string `json:"missing,omitempty"`

	// numeric_range
	Value *float64   `json:"value,omitempty"`
	Range []*float64 `json:"range,omitempty"`

	// fuzzy
	Score     *float64 `json:"score,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`

	// sequence_subtract
	Observed         []float64 `json:"observed,omitempty"`
	ExpectedSequence []float64 `json:"expected_sequence,omitempty"`
	CorrectCount     *int      `json:"correct_count,omitempty"`
	RequiredCorrect  *int      `json:"required_correct,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// JudgeVerdict is the advisory verdict returned by the LLM judge.
type JudgeVerdict struct {
	NormalizedAnswer string   `json:"normalized_answer"`
	IsCorrect        bool     `json:"is_correct"`
	Confidence       float64  `json:"confidence"`
	Reason           string   `json:"reason"`
	MatchedExpected  []string `json:"matched_expected"`
}

// MMSECutoffs are the lower bounds of the normal, mild and moderate bands.
type MMSECutoffs struct {
	Normal   int `json:"normal"`
	Mild     int `json:"mild"`
	Moderate int `json:"moderate"`
}

// Education levels recognized by the SPMSQ adjustment.
const (
	EducationGradeSchoolOrLess = "grade_school_or_less"
	EducationHighSchoolOrMore  = "high_school_or_more"
)

// SessionConfig is the per-session configuration blob supplied at session
// creation: patient attributes used by token expansion plus optional
// instrument-cutoff overrides. All fields are optional.
type SessionConfig struct {
	Age               *int   `json:"age,omitempty"`
	Phone             string `json:"phone,omitempty"`
	Address           string `json:"address,omitempty"`
	Birthday          string `json:"birthday,omitempty"`
	MotherName        string `json:"mother_name,omitempty"`
	PresidentCurrent  string `json:"president_current,omitempty"`
	PresidentPrevious string `json:"president_previous,omitempty"`
	Timezone          string `json:"timezone,omitempty"`

	EducationLevel string `json:"education_level,omitempty"`
	EducationYears *int   `json:"education_years,omitempty"`

	MMSECutoffs *MMSECutoffs `json:"mmse_cutoffs,omitempty"`
	MoCACutoff  *int         `json:"moca_cutoff,omitempty"`
}

// Session is one screening run for one patient.
type Session struct {
	ID         string        `json:"session_id"`
	PatientID  string        `json:"patient_id"`
	Instrument Instrument    `json:"instrument,omitempty"`
	Config     SessionConfig `json:"config"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Response is one persisted answer to one question. Nil pointers mean the
// value was never produced (no transcript, no timing, not judged), which is
// distinct from a zero value.
type Response struct {
	ID              string        `json:"response_id"`
	SessionID       string        `json:"session_id"`
	QuestionID      string        `json:"question_id"`
	Transcript      *string       `json:"transcript"`
	RTWhisperMs     *float64      `json:"reaction_time_whisper_ms"`
	RTVADMs         *float64      `json:"reaction_time_vad_ms"`
	ManualConfirmed *bool         `json:"manual_confirmed,omitempty"`
	RuleScore       *MatchResult  `json:"rule_score,omitempty"`
	Judge           *JudgeVerdict `json:"llm_judge,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Interpretation is the instrument-specific metadata stored next to a raw
// score. Which fields are set depends on the instrument.
type Interpretation struct {
	ScreenPositive        *bool     `json:"screen_positive,omitempty"`
	Severity              *Severity `json:"severity,omitempty"`
	Cutoff                *int      `json:"cutoff,omitempty"`
	CutoffUsed            *int      `json:"cutoff_used,omitempty"`
	EducationLevel        string    `json:"education_level,omitempty"`
	ErrorAdjustment       *int      `json:"error_adjustment,omitempty"`
	AdjustedErrors        *int      `json:"adjusted_errors,omitempty"`
	AdjustedScore         *int      `json:"adjusted_score,omitempty"`
	EducationYears        *int      `json:"education_years,omitempty"`
	EducationBonusApplied *bool     `json:"education_bonus_applied,omitempty"`
	Notes                 string    `json:"notes,omitempty"`
}

// InstrumentScore is one per (session, instrument) pair, re-derivable
// idempotently from the raw response rows. RawInterpretation carries the
// stored JSON verbatim so unrecognized instruments pass through reporting
// untouched; the store fills it on read.
type InstrumentScore struct {
	ID                string          `json:"id"`
	SessionID         string          `json:"session_id"`
	Instrument        Instrument      `json:"instrument"`
	Score             float64         `json:"score"`
	Interpretation    Interpretation  `json:"interpretation"`
	RawInterpretation json.RawMessage `json:"-"`
	CreatedAt         time.Time       `json:"created_at"`
}
