package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hsinlab/cogscreen/internal/bank"
	"github.com/hsinlab/cogscreen/internal/instrument"
	"github.com/hsinlab/cogscreen/internal/model"
	"github.com/hsinlab/cogscreen/internal/report"
	"github.com/hsinlab/cogscreen/internal/scoring"
	"github.com/hsinlab/cogscreen/internal/store"
	"github.com/hsinlab/cogscreen/internal/transcribe"
)

const maxUploadBytes = 32 << 20

// Transcriber converts an uploaded audio file to a transcript with timing.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*transcribe.Transcription, error)
}

// Judge returns an advisory verdict for a transcript.
type Judge interface {
	Judge(ctx context.Context, transcript string, expected []string, ruleType model.RuleType) (*model.JudgeVerdict, error)
}

// Config holds the handler's runtime parameters.
type Config struct {
	UploadDir   string
	StaticDir   string
	FrontendDir string
	ReportDir   string
	SubmitURL   string
	Defaults    scoring.Defaults
}

// Handler holds shared dependencies for HTTP handlers. Transcriber and judge
// may be nil: rule scoring still runs on whatever transcript is available,
// and a missing transcript leaves the response ungraded.
type Handler struct {
	store       *store.Store
	bank        *bank.Bank
	expander    *scoring.Expander
	transcriber Transcriber
	judge       Judge
	assembler   *report.Assembler
	config      Config
}

// New creates a new Handler.
func New(s *store.Store, b *bank.Bank, t Transcriber, j Judge, a *report.Assembler, cfg Config) *Handler {
	return &Handler{
		store:       s,
		bank:        b,
		expander:    scoring.NewExpander(cfg.Defaults),
		transcriber: t,
		judge:       j,
		assembler:   a,
		config:      cfg,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/next", h.handleNextQuestion)
			r.Post("/responses", h.handleSubmitResponse)
			r.Get("/progress", h.handleProgress)
			r.Get("/report", h.handleReport)
			r.Post("/submit", h.handleSubmitReport)
			r.Get("/export.csv", h.handleExportCSV)
		})
	})

	if h.config.StaticDir != "" {
		if _, err := os.Stat(h.config.StaticDir); err == nil {
			fs := http.StripPrefix("/static/", http.FileServer(http.Dir(h.config.StaticDir)))
			r.Handle("/static/*", fs)
		}
	}
	if h.config.FrontendDir != "" {
		if _, err := os.Stat(h.config.FrontendDir); err == nil {
			r.Handle("/*", http.FileServer(http.Dir(h.config.FrontendDir)))
		}
	}
}

type createSessionRequest struct {
	PatientID  string              `json:"patient_id"`
	Instrument string              `json:"instrument"`
	Config     model.SessionConfig `json:"config"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PatientID == "" {
		respondError(w, http.StatusBadRequest, "patient_id is required")
		return
	}

	sess := model.Session{
		ID:         uuid.NewString(),
		PatientID:  req.PatientID,
		Instrument: model.ParseInstrument(req.Instrument),
		Config:     req.Config,
	}
	if err := h.store.CreateSession(sess); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"session_id": sess.ID})
}

func (h *Handler) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	questions := h.bank.Filter(sess.Instrument)
	answered, err := h.store.CountResponses(sess.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if answered >= len(questions) {
		respondError(w, http.StatusNotFound, "no more questions")
		return
	}

	q := questions[answered]
	respondJSON(w, http.StatusOK, map[string]any{
		"question_id":  q.ID,
		"text":         q.Text,
		"audio_url":    q.AudioURL,
		"scoring_rule": q.ScoringRule,
	})
}

func (h *Handler) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	questionID := r.FormValue("question_id")
	question, found := h.bank.Get(questionID)
	if !found {
		respondError(w, http.StatusNotFound, "question not found")
		return
	}

	var rtVAD *float64
	if v := r.FormValue("reaction_time_vad_ms"); v != "" {
		if ms, err := strconv.ParseFloat(v, 64); err == nil {
			rtVAD = &ms
		}
	}
	var manual *bool
	if v := r.FormValue("manual_confirmed"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			manual = &b
		}
	}

	responseID := uuid.NewString()
	audioPath, err := h.saveUpload(r, responseID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := model.Response{
		ID:              responseID,
		SessionID:       sess.ID,
		QuestionID:      question.ID,
		RTVADMs:         rtVAD,
		ManualConfirmed: manual,
	}
	h.scoreResponse(r.Context(), sess, question, audioPath, &resp)

	if err := h.store.SaveResponse(resp); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.aggregateCompleted(sess); err != nil {
		slog.Error("instrument aggregation failed", "session_id", sess.ID, "error", err)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"response_id":              resp.ID,
		"transcript":               resp.Transcript,
		"reaction_time_whisper_ms": resp.RTWhisperMs,
		"reaction_time_vad_ms":     resp.RTVADMs,
		"rule_score":               resp.RuleScore,
		"llm_judge":                resp.Judge,
	})
}

// scoreResponse runs the transcription/rule/judge pipeline and fills the
// response in place. Every step degrades rather than failing the request:
// no transcriber or a disabled question means no transcript, no transcript
// means the response stays ungraded, and judge errors are logged and dropped.
func (h *Handler) scoreResponse(ctx context.Context, sess model.Session, question bank.Question, audioPath string, resp *model.Response) {
	if h.transcriber == nil || question.RecordingDisabled || question.ExcludeFromScoring {
		return
	}

	transcription, err := h.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		slog.Error("transcription failed", "response_id", resp.ID, "error", err)
		return
	}
	if transcription.Text != "" {
		text := transcription.Text
		resp.Transcript = &text
	}
	resp.RTWhisperMs = transcribe.ReactionTimeMs(transcription)

	if resp.Transcript == nil {
		return
	}

	sctx := scoring.ContextFromSession(sess.Config)
	rule, skip := h.expander.Prepare(question.ScoringRule, sctx)
	if skip {
		slog.Info("scoring skipped, no usable expected answers",
			"question_id", question.ID, "rule_type", rule.Type)
		return
	}

	result := scoring.Evaluate(*resp.Transcript, rule)
	resp.RuleScore = &result

	if h.judge != nil {
		verdict, err := h.judge.Judge(ctx, *resp.Transcript, rule.Expected, rule.Type)
		if err != nil {
			slog.Error("judge failed", "response_id", resp.ID, "error", err)
		} else {
			resp.Judge = verdict
		}
	}
}

// aggregateCompleted upserts an instrument score for every instrument whose
// question list the session has fully answered. Re-running over the same
// rows produces the same score.
func (h *Handler) aggregateCompleted(sess model.Session) error {
	responses, err := h.store.ListResponses(sess.ID)
	if err != nil {
		return err
	}

	byInstrument := make(map[model.Instrument][]model.Response)
	for _, r := range responses {
		inst := sess.Instrument
		if inst == "" {
			q, ok := h.bank.Get(r.QuestionID)
			if !ok {
				continue
			}
			inst = q.Instrument
		}
		byInstrument[inst] = append(byInstrument[inst], r)
	}

	for inst, rows := range byInstrument {
		total := len(h.bank.Filter(inst))
		if total == 0 || len(rows) < total {
			continue
		}
		score, interp := instrument.Aggregate(inst, instrument.BuildItems(rows), sess.Config)
		err := h.store.UpsertInstrumentScore(model.InstrumentScore{
			ID:             uuid.NewString(),
			SessionID:      sess.ID,
			Instrument:     inst,
			Score:          score,
			Interpretation: interp,
		})
		if err != nil {
			return fmt.Errorf("upsert %s score: %w", inst, err)
		}
	}
	return nil
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	total := len(h.bank.Filter(sess.Instrument))
	answered, err := h.store.CountResponses(sess.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id":      sess.ID,
		"answered":        answered,
		"total_questions": total,
		"is_complete":     answered >= total,
	})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	doc, err := h.assembler.Build(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	doc, err := h.assembler.Build(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := report.Submit(r.Context(), h.config.SubmitURL, doc); err != nil {
		slog.Error("report submission failed", "session_id", sessionID, "error", err)
		respondError(w, http.StatusBadGateway, "submit failed: "+err.Error())
		return
	}

	if h.config.ReportDir != "" {
		if path, err := h.assembler.Archive(doc, h.config.ReportDir); err != nil {
			slog.Error("report archive failed", "session_id", sessionID, "error", err)
		} else {
			slog.Info("report archived", "path", path)
		}
	}

	respondJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+sess.ID+`.csv"`)
	if err := h.store.ExportResponsesCSV(sess.ID, w); err != nil {
		slog.Error("csv export failed", "session_id", sess.ID, "error", err)
	}
}

func (h *Handler) sessionFromRequest(w http.ResponseWriter, r *http.Request) (model.Session, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.store.GetSession(sessionID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return sess, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return sess, false
	}
	return sess, true
}

// saveUpload stores the multipart audio file under the upload dir and returns
// its path.
func (h *Handler) saveUpload(r *http.Request, responseID string) (string, error) {
	file, header, err := r.FormFile("audio")
	if err != nil {
		return "", fmt.Errorf("missing audio file: %w", err)
	}
	defer file.Close()

	if err := os.MkdirAll(h.config.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := responseID + "_" + filepath.Base(header.Filename)
	path := filepath.Join(h.config.UploadDir, name)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return path, nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
