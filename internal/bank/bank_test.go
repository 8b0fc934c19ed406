package bank

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hsinlab/cogscreen/internal/model"
)

func writeBankFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writeBankFile: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeBankFile(t, dir, "MMSE_questions.json", `[
		{
			"id": "mmse_q1",
			"text": "現在是哪一年？",
			"scoring_rule": {"type": "exact", "expected": ["__CURRENT_YEAR__"]}
		},
		{
			"question_id": "mmse_q2",
			"text": "這是什麼季節？",
			"audio_url": "/static/custom/mmse_q2.mp3",
			"scoring_rule": {"type": "contains_any", "expected": ["__SEASON__"]}
		}
	]`)
	writeBankFile(t, dir, "AD8_questions.json", `[
		{"id": "ad8_q1", "text": "判斷力出現問題", "recording_disabled": true}
	]`)

	b, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}

	// MMSE file is listed before AD8, order within a file is positional.
	all := b.All()
	if all[0].ID != "mmse_q1" || all[1].ID != "mmse_q2" || all[2].ID != "ad8_q1" {
		t.Errorf("order = [%s %s %s]", all[0].ID, all[1].ID, all[2].ID)
	}

	q1, ok := b.Get("mmse_q1")
	if !ok {
		t.Fatal("mmse_q1 not found")
	}
	if q1.Instrument != model.InstrumentMMSE {
		t.Errorf("Instrument = %q, want MMSE", q1.Instrument)
	}
	if q1.AudioURL != "/static/questions/mmse_q1.mp3" {
		t.Errorf("default AudioURL = %q", q1.AudioURL)
	}
	if q1.ScoringRule.Type != model.RuleExact || len(q1.ScoringRule.Expected) != 1 {
		t.Errorf("ScoringRule = %+v", q1.ScoringRule)
	}

	q2, _ := b.Get("mmse_q2")
	if q2.AudioURL != "/static/custom/mmse_q2.mp3" {
		t.Errorf("explicit AudioURL = %q", q2.AudioURL)
	}

	ad8, _ := b.Get("ad8_q1")
	if !ad8.RecordingDisabled {
		t.Error("recording_disabled not carried")
	}
	// Items without a rule default to exact.
	if ad8.ScoringRule.Type != model.RuleExact {
		t.Errorf("default rule = %q, want exact", ad8.ScoringRule.Type)
	}

	if got := b.Filter(model.InstrumentAD8); len(got) != 1 || got[0].ID != "ad8_q1" {
		t.Errorf("Filter(AD8) = %v", got)
	}
	if got := b.Filter(""); len(got) != 3 {
		t.Errorf("Filter(empty) = %d questions, want all 3", len(got))
	}
}

func TestLoadMissingFilesSkipped(t *testing.T) {
	b, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load of empty dir: %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d, want 0", b.Len())
	}
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not an array", `{"id": "q1", "text": "hi"}`},
		{"missing text", `[{"id": "q1"}]`},
		{"bad rule type", `[{"id": "q1", "text": "hi", "scoring_rule": {"type": "telepathy"}}]`},
		{"threshold out of range", `[{"id": "q1", "text": "hi", "scoring_rule": {"type": "fuzzy", "threshold": 1.5}}]`},
		{"malformed json", `[{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeBankFile(t, dir, "SPMSQ_questions.json", tt.content)
			if _, err := Load(dir); err == nil {
				t.Error("Load accepted an invalid file")
			}
		})
	}
}
