package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hsinlab/cogscreen/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		instrument TEXT NOT NULL DEFAULT '',
		config_json TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		transcript TEXT,
		reaction_time_whisper_ms REAL,
		reaction_time_vad_ms REAL,
		manual_confirmed INTEGER,
		rule_score_json TEXT,
		llm_judge_json TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS instrument_scores (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		instrument TEXT NOT NULL,
		score REAL NOT NULL DEFAULT 0,
		interpretation_json TEXT,
		created_at DATETIME NOT NULL,
		UNIQUE (session_id, instrument),
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS screening_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSession stores a new session. The caller supplies the ID.
func (s *Store) CreateSession(sess model.Session) error {
	config, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("marshal session config: %w", err)
	}
	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, patient_id, instrument, config_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.PatientID, string(sess.Instrument), string(config), createdAt,
	)
	return err
}

// GetSession returns a session by ID, or ErrNotFound.
func (s *Store) GetSession(id string) (model.Session, error) {
	var (
		sess       model.Session
		instrument string
		configJSON string
	)
	err := s.db.QueryRow(
		`SELECT id, patient_id, instrument, config_json, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.PatientID, &instrument, &configJSON, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return sess, ErrNotFound
	}
	if err != nil {
		return sess, err
	}
	sess.Instrument = model.ParseInstrument(instrument)
	if err := json.Unmarshal([]byte(configJSON), &sess.Config); err != nil {
		// A corrupt config blob degrades to defaults rather than failing
		// the whole session read.
		sess.Config = model.SessionConfig{}
	}
	return sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions() ([]model.Session, error) {
	rows, err := s.db.Query(`SELECT id, patient_id, instrument, config_json, created_at FROM sessions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.Session
	for rows.Next() {
		var (
			sess       model.Session
			instrument string
			configJSON string
		)
		if err := rows.Scan(&sess.ID, &sess.PatientID, &instrument, &configJSON, &sess.CreatedAt); err != nil {
			return nil, err
		}
		sess.Instrument = model.ParseInstrument(instrument)
		if err := json.Unmarshal([]byte(configJSON), &sess.Config); err != nil {
			sess.Config = model.SessionConfig{}
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SaveResponse appends a response row.
func (s *Store) SaveResponse(r model.Response) error {
	ruleJSON, err := marshalNullable(r.RuleScore)
	if err != nil {
		return fmt.Errorf("marshal rule score: %w", err)
	}
	judgeJSON, err := marshalNullable(r.Judge)
	if err != nil {
		return fmt.Errorf("marshal judge verdict: %w", err)
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.Exec(
		`INSERT INTO responses (
			id, session_id, question_id, transcript, reaction_time_whisper_ms,
			reaction_time_vad_ms, manual_confirmed, rule_score_json, llm_judge_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.QuestionID, r.Transcript, r.RTWhisperMs,
		r.RTVADMs, boolToNullInt(r.ManualConfirmed), ruleJSON, judgeJSON, createdAt,
	)
	return err
}

// ListResponses returns a session's responses in submission order.
func (s *Store) ListResponses(sessionID string) ([]model.Response, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, question_id, transcript, reaction_time_whisper_ms,
		        reaction_time_vad_ms, manual_confirmed, rule_score_json, llm_judge_json, created_at
		 FROM responses WHERE session_id = ? ORDER BY created_at, id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []model.Response
	for rows.Next() {
		var (
			r         model.Response
			manual    sql.NullInt64
			ruleJSON  sql.NullString
			judgeJSON sql.NullString
		)
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.QuestionID, &r.Transcript, &r.RTWhisperMs,
			&r.RTVADMs, &manual, &ruleJSON, &judgeJSON, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		if manual.Valid {
			v := manual.Int64 != 0
			r.ManualConfirmed = &v
		}
		if ruleJSON.Valid && ruleJSON.String != "" {
			var mr model.MatchResult
			if err := json.Unmarshal([]byte(ruleJSON.String), &mr); err == nil {
				r.RuleScore = &mr
			}
		}
		if judgeJSON.Valid && judgeJSON.String != "" {
			var jv model.JudgeVerdict
			if err := json.Unmarshal([]byte(judgeJSON.String), &jv); err == nil {
				r.Judge = &jv
			}
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// CountResponses returns how many responses a session has.
func (s *Store) CountResponses(sessionID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM responses WHERE session_id = ?`, sessionID).Scan(&count)
	return count, err
}

// UpsertInstrumentScore inserts or replaces the score row for the session's
// instrument, keeping re-aggregation idempotent.
func (s *Store) UpsertInstrumentScore(score model.InstrumentScore) error {
	interp, err := json.Marshal(score.Interpretation)
	if err != nil {
		return fmt.Errorf("marshal interpretation: %w", err)
	}
	createdAt := score.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.Exec(
		`INSERT INTO instrument_scores (id, session_id, instrument, score, interpretation_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, instrument) DO UPDATE SET score = ?, interpretation_json = ?`,
		score.ID, score.SessionID, string(score.Instrument), score.Score, string(interp), createdAt,
		score.Score, string(interp),
	)
	return err
}

// ListInstrumentScores returns a session's instrument scores in creation
// order.
func (s *Store) ListInstrumentScores(sessionID string) ([]model.InstrumentScore, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, instrument, score, interpretation_json, created_at
		 FROM instrument_scores WHERE session_id = ? ORDER BY created_at, id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []model.InstrumentScore
	for rows.Next() {
		var (
			sc         model.InstrumentScore
			instrument string
			interp     sql.NullString
		)
		if err := rows.Scan(&sc.ID, &sc.SessionID, &instrument, &sc.Score, &interp, &sc.CreatedAt); err != nil {
			return nil, err
		}
		sc.Instrument = model.ParseInstrument(instrument)
		if interp.Valid && interp.String != "" {
			sc.RawInterpretation = json.RawMessage(interp.String)
			// Lenient decode: unrecognized payloads keep only the raw form.
			_ = json.Unmarshal(sc.RawInterpretation, &sc.Interpretation)
		}
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

func marshalNullable(v any) (any, error) {
	switch val := v.(type) {
	case *model.MatchResult:
		if val == nil {
			return nil, nil
		}
	case *model.JudgeVerdict:
		if val == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func boolToNullInt(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}
