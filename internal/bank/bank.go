// Package bank loads the per-instrument question files and serves them to
// the session flow in a fixed order.
package bank

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hsinlab/cogscreen/internal/model"
)

// Question is one item of a questionnaire.
type Question struct {
	ID                 string            `json:"question_id"`
	Text               string            `json:"text"`
	AudioURL           string            `json:"audio_url"`
	ScoringRule        model.ScoringRule `json:"scoring_rule"`
	Instrument         model.Instrument  `json:"instrument"`
	ExcludeFromScoring bool              `json:"exclude_from_scoring,omitempty"`
	RecordingDisabled  bool              `json:"recording_disabled,omitempty"`
}

// questionImport is the on-disk item shape. Either "id" or "question_id"
// names the question.
type questionImport struct {
	ID                 string             `json:"id"`
	QuestionID         string             `json:"question_id"`
	Text               string             `json:"text"`
	AudioURL           string             `json:"audio_url"`
	ScoringRule        *model.ScoringRule `json:"scoring_rule"`
	ExcludeFromScoring bool               `json:"exclude_from_scoring"`
	RecordingDisabled  bool               `json:"recording_disabled"`
}

// instrumentFiles maps the expected question files to their instruments.
var instrumentFiles = []struct {
	name       string
	instrument model.Instrument
}{
	{"MMSE_questions.json", model.InstrumentMMSE},
	{"AD8_questions.json", model.InstrumentAD8},
	{"SPMSQ_questions.json", model.InstrumentSPMSQ},
	{"MoCA_questions.json", model.InstrumentMoCA},
}

// Bank is the loaded question set, ordered by file then by position.
type Bank struct {
	questions []Question
	byID      map[string]Question
}

// Load reads every instrument file present in dir, validating each against
// the question-file schema. Missing files are skipped; a malformed file is an
// error.
func Load(dir string) (*Bank, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(questionSchema))
	if err != nil {
		return nil, fmt.Errorf("compile question schema: %w", err)
	}

	b := &Bank{byID: make(map[string]Question)}
	for _, f := range instrumentFiles {
		path := filepath.Join(dir, f.name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("validate %s: %w", path, err)
		}
		if !result.Valid() {
			return nil, fmt.Errorf("invalid question file %s: %s", path, schemaErrors(result))
		}

		var items []questionImport
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		count := 0
		for _, item := range items {
			q, ok := item.toQuestion(f.instrument)
			if !ok {
				continue
			}
			b.questions = append(b.questions, q)
			b.byID[q.ID] = q
			count++
		}
		slog.Info("loaded questions", "path", path, "instrument", f.instrument, "count", count)
	}
	return b, nil
}

func (qi questionImport) toQuestion(inst model.Instrument) (Question, bool) {
	id := qi.ID
	if id == "" {
		id = qi.QuestionID
	}
	if id == "" || qi.Text == "" {
		return Question{}, false
	}

	rule := model.ScoringRule{Type: model.RuleExact}
	if qi.ScoringRule != nil {
		rule = *qi.ScoringRule
	}
	audioURL := qi.AudioURL
	if audioURL == "" {
		audioURL = "/static/questions/" + id + ".mp3"
	}
	return Question{
		ID:                 id,
		Text:               qi.Text,
		AudioURL:           audioURL,
		ScoringRule:        rule,
		Instrument:         inst,
		ExcludeFromScoring: qi.ExcludeFromScoring,
		RecordingDisabled:  qi.RecordingDisabled,
	}, true
}

// All returns every question in load order.
func (b *Bank) All() []Question {
	return b.questions
}

// Filter returns the questions for one instrument, or all questions when the
// instrument is empty.
func (b *Bank) Filter(inst model.Instrument) []Question {
	if inst == "" {
		return b.questions
	}
	var out []Question
	for _, q := range b.questions {
		if q.Instrument == inst {
			out = append(out, q)
		}
	}
	return out
}

// Get returns a question by ID.
func (b *Bank) Get(id string) (Question, bool) {
	q, ok := b.byID[id]
	return q, ok
}

// Len returns the total question count.
func (b *Bank) Len() int {
	return len(b.questions)
}

func schemaErrors(result *gojsonschema.Result) string {
	msg := ""
	for i, e := range result.Errors() {
		if i > 0 {
			msg += "; "
		}
		msg += e.String()
	}
	return msg
}
