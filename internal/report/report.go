// Package report assembles the versioned screening report for a session and
// submits it to the configured sink.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hsinlab/cogscreen/internal/bank"
	"github.com/hsinlab/cogscreen/internal/i18n"
	"github.com/hsinlab/cogscreen/internal/instrument"
	"github.com/hsinlab/cogscreen/internal/model"
	"github.com/hsinlab/cogscreen/internal/store"
)

// Version identifies the report document format.
const Version = "1.0"

// Quality flags attached to a response's reaction-time block.
const (
	FlagNoTranscript   = "no_transcript"
	FlagNoReactionTime = "no_reaction_time"
	FlagManualOverride = "manual_override"
	FlagUngraded       = "ungraded"
)

// Config carries the assembler's fixed settings. Disclaimer overrides the
// localized default when set.
type Config struct {
	RulesetVersion string
	Disclaimer     string
}

// Assembler builds reports from persisted rows. Building is a pure projection
// of the stored data: the same rows always produce the same document.
type Assembler struct {
	store *store.Store
	bank  *bank.Bank
	cfg   Config
}

func New(st *store.Store, b *bank.Bank, cfg Config) *Assembler {
	return &Assembler{store: st, bank: b, cfg: cfg}
}

// Build assembles the report for a session. Returns store.ErrNotFound when
// the session does not exist.
func (a *Assembler) Build(ctx context.Context, sessionID string) (*model.Report, error) {
	sess, err := a.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	responses, err := a.store.ListResponses(sessionID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	scoreRows, err := a.store.ListInstrumentScores(sessionID)
	if err != nil {
		return nil, fmt.Errorf("list instrument scores: %w", err)
	}

	items := make([]model.ReportResponse, 0, len(responses))
	for _, r := range responses {
		items = append(items, a.buildResponse(sess, r))
	}

	summaryData := instrument.Summarize(scoreRows)
	summary := model.Summary{
		ScreeningRiskBand:  summaryData.Band,
		ScreeningRiskLevel: summaryData.Level,
		ScreenPositive:     summaryData.ScreenPositive,
		NeedsFollowup:      summaryData.NeedsFollowup,
		Message:            i18n.T(ctx, "summary."+summaryData.Band.String()),
	}

	disclaimer := a.cfg.Disclaimer
	if disclaimer == "" {
		disclaimer = i18n.T(ctx, "disclaimer")
	}

	return &model.Report{
		Version:          Version,
		RulesetVersion:   a.cfg.RulesetVersion,
		SessionID:        sess.ID,
		PatientID:        sess.PatientID,
		CreatedAt:        sess.CreatedAt,
		Summary:          summary,
		InstrumentScores: instrument.FormatScores(scoreRows),
		Responses:        items,
		Disclaimer:       disclaimer,
	}, nil
}

func (a *Assembler) buildResponse(sess model.Session, r model.Response) model.ReportResponse {
	inst := sess.Instrument
	if inst == "" {
		if q, ok := a.bank.Get(r.QuestionID); ok {
			inst = q.Instrument
		}
	}

	correct := instrument.ResolveCorrect(r.ManualConfirmed, r.RuleScore, r.Judge)

	preferred := "none"
	switch {
	case r.RTWhisperMs != nil:
		preferred = "whisper"
	case r.RTVADMs != nil:
		preferred = "vad"
	}

	flags := []string{}
	if r.Transcript == nil || *r.Transcript == "" {
		flags = append(flags, FlagNoTranscript)
	}
	if r.RTWhisperMs == nil && r.RTVADMs == nil {
		flags = append(flags, FlagNoReactionTime)
	}
	if r.ManualConfirmed != nil {
		flags = append(flags, FlagManualOverride)
	}
	if correct == nil {
		flags = append(flags, FlagUngraded)
	}

	return model.ReportResponse{
		QuestionID:      r.QuestionID,
		Instrument:      string(inst),
		Transcript:      r.Transcript,
		ReactionTimeMs:  model.ReactionTimes{VAD: r.RTVADMs, Whisper: r.RTWhisperMs},
		PreferredMethod: preferred,
		QualityFlags:    flags,
		IsCorrect:       correct,
		RuleScore:       r.RuleScore,
		Judge:           r.Judge,
	}
}

// Archive writes the report JSON to dir/<session_id>.json and returns the
// path.
func (a *Assembler) Archive(report *model.Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	path := filepath.Join(dir, report.SessionID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
