package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hsinlab/cogscreen/internal/bank"
	"github.com/hsinlab/cogscreen/internal/i18n"
	"github.com/hsinlab/cogscreen/internal/model"
	"github.com/hsinlab/cogscreen/internal/report"
	"github.com/hsinlab/cogscreen/internal/scoring"
	"github.com/hsinlab/cogscreen/internal/store"
	"github.com/hsinlab/cogscreen/internal/transcribe"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("zh-TW"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fakeTranscriber returns a canned transcription for every upload.
type fakeTranscriber struct {
	text  string
	start float64
	err   error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string) (*transcribe.Transcription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &transcribe.Transcription{
		Text:  f.text,
		Words: []transcribe.Word{{Word: f.text, Start: f.start, End: f.start + 0.5}},
	}, nil
}

// fakeJudge marks everything correct with fixed confidence.
type fakeJudge struct{ calls int }

func (f *fakeJudge) Judge(_ context.Context, transcript string, _ []string, _ model.RuleType) (*model.JudgeVerdict, error) {
	f.calls++
	return &model.JudgeVerdict{
		NormalizedAnswer: transcript,
		IsCorrect:        true,
		Confidence:       0.9,
		Reason:           "test verdict",
	}, nil
}

func writeQuestions(t *testing.T, dir string) {
	t.Helper()
	content := `[
		{
			"id": "spmsq_q1",
			"text": "今天是幾月幾號？",
			"scoring_rule": {"type": "contains_any", "expected": ["台北"]}
		},
		{
			"id": "spmsq_q2",
			"text": "您的母親叫什麼名字？",
			"scoring_rule": {"type": "contains_any", "expected": ["__MOTHER_NAME__"]}
		}
	]`
	if err := os.WriteFile(filepath.Join(dir, "SPMSQ_questions.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

type fixture struct {
	router  chi.Router
	store   *store.Store
	judge   *fakeJudge
	handler *Handler
}

func newFixture(t *testing.T, tr Transcriber, submitURL string) *fixture {
	t.Helper()

	s, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	bankDir := t.TempDir()
	writeQuestions(t, bankDir)
	b, err := bank.Load(bankDir)
	if err != nil {
		t.Fatal(err)
	}

	assembler := report.New(s, b, report.Config{RulesetVersion: "ruleset-test", Disclaimer: "d"})
	j := &fakeJudge{}
	h := New(s, b, tr, j, assembler, Config{
		UploadDir: t.TempDir(),
		SubmitURL: submitURL,
		Defaults:  scoring.Defaults{Timezone: "Asia/Taipei"},
	})

	r := chi.NewRouter()
	h.Routes(r)
	return &fixture{router: r, store: s, judge: j, handler: h}
}

func (f *fixture) do(t *testing.T, req *http.Request, wantStatus int) map[string]any {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != wantStatus {
		t.Fatalf("%s %s = %d, want %d: %s", req.Method, req.URL.Path, rec.Code, wantStatus, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v: %s", err, rec.Body.String())
	}
	return body
}

func (f *fixture) createSession(t *testing.T, payload string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	body := f.do(t, req, http.StatusOK)
	id, _ := body["session_id"].(string)
	if id == "" {
		t.Fatalf("no session_id in %v", body)
	}
	return id
}

func (f *fixture) postResponse(t *testing.T, sessionID, questionID string, extra map[string]string) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("question_id", questionID); err != nil {
		t.Fatal(err)
	}
	for k, v := range extra {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("audio", "answer.webm")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("fake audio bytes")); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/sessions/%s/responses", sessionID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return f.do(t, req, http.StatusOK)
}

func TestSessionFlow(t *testing.T) {
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	tr := &fakeTranscriber{text: "我住在台北", start: 1.2}
	f := newFixture(t, tr, sink.URL)

	sessionID := f.createSession(t, `{
		"patient_id": "patient-1",
		"instrument": "spmsq",
		"config": {"mother_name": "陳美麗", "education_level": "grade_school_or_less"}
	}`)

	// First question comes back in bank order.
	next := f.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+sessionID+"/next", nil), http.StatusOK)
	if next["question_id"] != "spmsq_q1" {
		t.Errorf("next = %v, want spmsq_q1", next["question_id"])
	}

	// Answer it: the transcript contains the expected literal.
	resp := f.postResponse(t, sessionID, "spmsq_q1", nil)
	if resp["transcript"] != "我住在台北" {
		t.Errorf("transcript = %v", resp["transcript"])
	}
	if rt, ok := resp["reaction_time_whisper_ms"].(float64); !ok || rt != 1200 {
		t.Errorf("reaction_time_whisper_ms = %v, want 1200", resp["reaction_time_whisper_ms"])
	}
	rule, _ := resp["rule_score"].(map[string]any)
	if rule == nil || rule["is_correct"] != true {
		t.Errorf("rule_score = %v", resp["rule_score"])
	}
	if resp["llm_judge"] == nil {
		t.Error("expected advisory judge verdict")
	}

	progress := f.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+sessionID+"/progress", nil), http.StatusOK)
	if progress["answered"] != float64(1) || progress["total_questions"] != float64(2) || progress["is_complete"] != false {
		t.Errorf("progress = %v", progress)
	}

	next = f.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+sessionID+"/next", nil), http.StatusOK)
	if next["question_id"] != "spmsq_q2" {
		t.Errorf("next = %v, want spmsq_q2", next["question_id"])
	}

	f.postResponse(t, sessionID, "spmsq_q2", map[string]string{"reaction_time_vad_ms": "850"})

	// The instrument is complete: the score row must exist and survive
	// re-aggregation.
	scores, err := f.store.ListInstrumentScores(sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 1 || scores[0].Instrument != model.InstrumentSPMSQ {
		t.Fatalf("scores = %+v", scores)
	}

	// Exhausted banks report no more questions.
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+sessionID+"/next", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("next after completion = %d, want 404", rec.Code)
	}

	doc := f.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+sessionID+"/report", nil), http.StatusOK)
	if doc["session_id"] != sessionID || doc["ruleset_version"] != "ruleset-test" {
		t.Errorf("report = %v", doc)
	}

	submitted := f.do(t, httptest.NewRequest(http.MethodPost, "/api/sessions/"+sessionID+"/submit", nil), http.StatusOK)
	if submitted["session_id"] != sessionID {
		t.Errorf("submit = %v", submitted)
	}

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+sessionID+"/export.csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "spmsq_q1") {
		t.Error("export missing response rows")
	}
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t, nil, "")

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/", strings.NewReader(`{"patient_id": ""}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty patient_id = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/sessions/", strings.NewReader(`not json`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON = %d, want 400", rec.Code)
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	f := newFixture(t, nil, "")
	for _, path := range []string{
		"/api/sessions/missing/next",
		"/api/sessions/missing/progress",
		"/api/sessions/missing/report",
	} {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s = %d, want 404", path, rec.Code)
		}
	}
}

func TestResponseWithoutTranscriberStaysUngraded(t *testing.T) {
	f := newFixture(t, nil, "")
	sessionID := f.createSession(t, `{"patient_id": "patient-1", "instrument": "SPMSQ"}`)

	resp := f.postResponse(t, sessionID, "spmsq_q1", nil)
	if resp["transcript"] != nil || resp["rule_score"] != nil || resp["llm_judge"] != nil {
		t.Errorf("ungraded response = %v", resp)
	}
	if f.judge.calls != 0 {
		t.Errorf("judge called %d times without a transcript", f.judge.calls)
	}
}

func TestUnexpandableRuleSkipsScoring(t *testing.T) {
	tr := &fakeTranscriber{text: "王小姐", start: 0.4}
	f := newFixture(t, tr, "")

	// No mother_name in the session config: spmsq_q2's only expected entry
	// cannot expand, so the rule must not run at all.
	sessionID := f.createSession(t, `{"patient_id": "patient-1", "instrument": "SPMSQ"}`)
	f.postResponse(t, sessionID, "spmsq_q1", nil)

	resp := f.postResponse(t, sessionID, "spmsq_q2", nil)
	if resp["transcript"] != "王小姐" {
		t.Errorf("transcript = %v", resp["transcript"])
	}
	if resp["rule_score"] != nil {
		t.Errorf("rule_score = %v, want skipped", resp["rule_score"])
	}
}

func TestTranscriptionFailureDegrades(t *testing.T) {
	tr := &fakeTranscriber{err: io.ErrUnexpectedEOF}
	f := newFixture(t, tr, "")
	sessionID := f.createSession(t, `{"patient_id": "patient-1", "instrument": "SPMSQ"}`)

	resp := f.postResponse(t, sessionID, "spmsq_q1", nil)
	if resp["transcript"] != nil || resp["rule_score"] != nil {
		t.Errorf("failed transcription must leave the response ungraded: %v", resp)
	}
}

func TestSubmitFailureIsBadGateway(t *testing.T) {
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer sink.Close()

	f := newFixture(t, nil, sink.URL)
	sessionID := f.createSession(t, `{"patient_id": "patient-1", "instrument": "SPMSQ"}`)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/"+sessionID+"/submit", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("submit with failing sink = %d, want 502", rec.Code)
	}
}

func TestManualConfirmationOverridesRule(t *testing.T) {
	tr := &fakeTranscriber{text: "完全不對", start: 0.3}
	f := newFixture(t, tr, "")
	sessionID := f.createSession(t, `{"patient_id": "patient-1", "instrument": "SPMSQ"}`)

	f.postResponse(t, sessionID, "spmsq_q1", map[string]string{"manual_confirmed": "true"})

	responses, err := f.store.ListResponses(sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 1 {
		t.Fatalf("responses = %d", len(responses))
	}
	r := responses[0]
	if r.ManualConfirmed == nil || !*r.ManualConfirmed {
		t.Errorf("ManualConfirmed = %v", r.ManualConfirmed)
	}
	if r.RuleScore == nil || r.RuleScore.IsCorrect {
		t.Errorf("rule should have judged the transcript wrong: %+v", r.RuleScore)
	}
}
