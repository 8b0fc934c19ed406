package model

import "time"

// Report is the versioned document assembled for a finished session and
// submitted outward.
type Report struct {
	Version          string             `json:"version"`
	RulesetVersion   string             `json:"ruleset_version"`
	SessionID        string             `json:"session_id"`
	PatientID        string             `json:"patient_id"`
	CreatedAt        time.Time          `json:"created_at"`
	Summary          Summary            `json:"summary"`
	InstrumentScores map[string]any     `json:"instrument_scores"`
	Responses        []ReportResponse   `json:"responses"`
	Disclaimer       string             `json:"disclaimer"`
}

// Summary is the cross-instrument risk projection. It is derived on every
// report build, never stored.
type Summary struct {
	ScreeningRiskBand  Severity `json:"screening_risk_band"`
	ScreeningRiskLevel int      `json:"screening_risk_level"`
	ScreenPositive     bool     `json:"screen_positive"`
	NeedsFollowup      bool     `json:"needs_followup"`
	Message            string   `json:"message"`
}

// ReactionTimes carries both reaction-time measurements in milliseconds.
// Whisper timing comes from transcription word timestamps, VAD timing from
// the client's voice-activity detector.
type ReactionTimes struct {
	VAD     *float64 `json:"vad"`
	Whisper *float64 `json:"whisper"`
}

// ReportResponse is one answered question in the report.
type ReportResponse struct {
	QuestionID      string        `json:"question_id"`
	Instrument      string        `json:"instrument,omitempty"`
	Transcript      *string       `json:"transcript"`
	ReactionTimeMs  ReactionTimes `json:"reaction_time_ms"`
	PreferredMethod string        `json:"preferred_rt_method"`
	QualityFlags    []string      `json:"quality_flags"`
	IsCorrect       *bool         `json:"is_correct"`
	RuleScore       *MatchResult  `json:"rule_score"`
	Judge           *JudgeVerdict `json:"llm_judge"`
}

// AD8Report is the per-report score block for AD8.
type AD8Report struct {
	Score          *float64 `json:"score"`
	MaxScore       int      `json:"max_score"`
	ScreenPositive bool     `json:"screen_positive"`
	Cutoff         int      `json:"cutoff"`
	Interpretation string   `json:"interpretation,omitempty"`
}

// SPMSQAdjustment records the education adjustment applied to SPMSQ errors.
type SPMSQAdjustment struct {
	EducationLevel  string `json:"education_level,omitempty"`
	ErrorAdjustment *int   `json:"error_adjustment"`
}

// SPMSQReport is the per-report score block for SPMSQ.
type SPMSQReport struct {
	Errors         *float64        `json:"errors"`
	Adjustment     SPMSQAdjustment `json:"adjustment"`
	AdjustedErrors *int            `json:"adjusted_errors"`
	SeverityBand   *Severity       `json:"severity_band"`
	SeverityLevel  *int            `json:"severity_level"`
	Interpretation string          `json:"interpretation,omitempty"`
}

// MMSEReport is the per-report score block for MMSE.
type MMSEReport struct {
	Score          *float64  `json:"score"`
	MaxScore       int       `json:"max_score"`
	CutoffUsed     *int      `json:"cutoff_used"`
	SeverityBand   *Severity `json:"severity_band"`
	SeverityLevel  *int      `json:"severity_level"`
	Interpretation string    `json:"interpretation,omitempty"`
}

// MoCAReport is the per-report score block for MoCA.
type MoCAReport struct {
	Score                 *float64  `json:"score"`
	MaxScore              int       `json:"max_score"`
	EducationYears        *int      `json:"education_years"`
	EducationBonusApplied *bool     `json:"education_bonus_applied"`
	ScreenPositive        bool      `json:"screen_positive"`
	SeverityBand          *Severity `json:"severity_band"`
	SeverityLevel         *int      `json:"severity_level"`
	Interpretation        string    `json:"interpretation,omitempty"`
}

// UnknownReport passes an unrecognized instrument's stored score and
// interpretation payload through unchanged.
type UnknownReport struct {
	Score          *float64 `json:"score"`
	Interpretation any      `json:"interpretation"`
}
