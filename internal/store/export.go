package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/hsinlab/cogscreen/internal/model"
)

// SessionBundle is everything stored for one session, used by the export
// command.
type SessionBundle struct {
	Session          model.Session           `json:"session"`
	Responses        []model.Response        `json:"responses"`
	InstrumentScores []model.InstrumentScore `json:"instrument_scores"`
}

var csvHeader = []string{
	"id", "session_id", "question_id", "transcript",
	"reaction_time_whisper_ms", "reaction_time_vad_ms",
	"manual_confirmed", "rule_score_json", "llm_judge_json", "created_at",
}

// ExportResponsesCSV writes a session's response rows as CSV.
func (s *Store) ExportResponsesCSV(sessionID string, w io.Writer) error {
	responses, err := s.ListResponses(sessionID)
	if err != nil {
		return fmt.Errorf("list responses: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range responses {
		record := []string{
			r.ID, r.SessionID, r.QuestionID, strPtr(r.Transcript),
			floatPtr(r.RTWhisperMs), floatPtr(r.RTVADMs),
			boolPtr(r.ManualConfirmed), jsonStr(r.RuleScore), jsonStr(r.Judge),
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportAllSessions builds export bundles for every stored session.
func (s *Store) ExportAllSessions() ([]SessionBundle, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var bundles []SessionBundle
	for _, sess := range sessions {
		responses, err := s.ListResponses(sess.ID)
		if err != nil {
			return nil, fmt.Errorf("list responses for %s: %w", sess.ID, err)
		}
		scores, err := s.ListInstrumentScores(sess.ID)
		if err != nil {
			return nil, fmt.Errorf("list scores for %s: %w", sess.ID, err)
		}
		bundles = append(bundles, SessionBundle{
			Session:          sess,
			Responses:        responses,
			InstrumentScores: scores,
		})
	}
	return bundles, nil
}

func strPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func floatPtr(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func boolPtr(p *bool) string {
	if p == nil {
		return ""
	}
	if *p {
		return "1"
	}
	return "0"
}

func jsonStr(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		s := string(data)
		if s == "null" {
			return ""
		}
		return s
	}
}
