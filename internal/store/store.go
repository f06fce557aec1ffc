package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/trivia/internal/model"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a session ID is unknown.
	ErrNotFound = errors.New("session not found")
	// ErrConflict is returned when a response is saved for a position the
	// stored session has already moved past.
	ErrConflict = errors.New("session changed concurrently")
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
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
	CREATE TABLE IF NOT EXISTS survey_sessions (
		id TEXT PRIMARY KEY,
		condition TEXT NOT NULL,
		phase TEXT NOT NULL DEFAULT 'instructions',
		position INTEGER NOT NULL DEFAULT 0,
		presented_at DATETIME,
		persisted INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS session_stimuli (
		session_id TEXT NOT NULL,
		ord INTEGER NOT NULL,
		stimulus_id TEXT NOT NULL,
		text TEXT NOT NULL,
		truth INTEGER NOT NULL,
		photo TEXT NOT NULL DEFAULT '',
		show_photo INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, ord),
		FOREIGN KEY (session_id) REFERENCES survey_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS session_responses (
		session_id TEXT NOT NULL,
		ord INTEGER NOT NULL,
		stimulus_id TEXT NOT NULL,
		text TEXT NOT NULL,
		truth INTEGER NOT NULL,
		photo TEXT NOT NULL DEFAULT '',
		show_photo INTEGER NOT NULL DEFAULT 0,
		answer TEXT NOT NULL,
		response_text TEXT NOT NULL,
		response_time REAL NOT NULL,
		PRIMARY KEY (session_id, ord),
		FOREIGN KEY (session_id) REFERENCES survey_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS survey_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSession stores a new session together with its stimulus sequence.
func (s *Store) CreateSession(sess *model.Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO survey_sessions (id, condition, phase, position, presented_at, persisted, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Condition, sess.Phase, sess.Position, sess.PresentedAt, sess.Persisted, sess.CreatedAt, sess.CompletedAt,
	)
	if err != nil {
		return err
	}

	for i, st := range sess.Sequence {
		_, err := tx.Exec(
			`INSERT INTO session_stimuli (session_id, ord, stimulus_id, text, truth, photo, show_photo)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, i, st.ID, st.Text, st.Truth, st.Photo, st.ShowPhoto,
		)
		if err != nil {
			return err
		}
	}

	for i, r := range sess.Responses {
		if err := insertResponse(tx, sess.ID, i, r); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetSession loads a full session: state, sequence and recorded responses.
func (s *Store) GetSession(id string) (*model.Session, error) {
	var sess model.Session
	err := s.db.QueryRow(
		`SELECT id, condition, phase, position, presented_at, persisted, created_at, completed_at
		 FROM survey_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Condition, &sess.Phase, &sess.Position, &sess.PresentedAt, &sess.Persisted, &sess.CreatedAt, &sess.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !sess.Condition.Valid() {
		return nil, fmt.Errorf("session %s: unknown condition %q", id, sess.Condition)
	}

	if sess.Sequence, err = s.getStimuli(id); err != nil {
		return nil, fmt.Errorf("load stimuli: %w", err)
	}
	if sess.Responses, err = s.getResponses(&sess); err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}
	return &sess, nil
}

func (s *Store) getStimuli(sessionID string) ([]model.Stimulus, error) {
	rows, err := s.db.Query(
		`SELECT stimulus_id, text, truth, photo, show_photo FROM session_stimuli WHERE session_id = ? ORDER BY ord`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stimuli []model.Stimulus
	for rows.Next() {
		var st model.Stimulus
		if err := rows.Scan(&st.ID, &st.Text, &st.Truth, &st.Photo, &st.ShowPhoto); err != nil {
			return nil, err
		}
		stimuli = append(stimuli, st)
	}
	return stimuli, rows.Err()
}

func (s *Store) getResponses(sess *model.Session) ([]model.Response, error) {
	rows, err := s.db.Query(
		`SELECT stimulus_id, text, truth, photo, show_photo, answer, response_text, response_time
		 FROM session_responses WHERE session_id = ? ORDER BY ord`, sess.ID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	responses := []model.Response{}
	for rows.Next() {
		r := model.Response{ParticipantID: sess.ID, Condition: sess.Condition}
		if err := rows.Scan(&r.StimulusID, &r.Text, &r.Truth, &r.Photo, &r.ShowPhoto, &r.Answer, &r.ResponseText, &r.ResponseTime); err != nil {
			return nil, err
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// SaveProgress writes the mutable session state and, when appended is set,
// the response that was just recorded at position-1.
func (s *Store) SaveProgress(sess *model.Session, appended *model.Response) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `UPDATE survey_sessions SET phase = ?, position = ?, presented_at = ?, persisted = ?, completed_at = ? WHERE id = ?`
	args := []any{sess.Phase, sess.Position, sess.PresentedAt, sess.Persisted, sess.CompletedAt, sess.ID}
	if appended != nil {
		// The response belongs to position-1; only advance from there.
		query += ` AND position = ?`
		args = append(args, sess.Position-1)
	}
	res, err := tx.Exec(query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if appended != nil && s.exists(tx, sess.ID) {
			return fmt.Errorf("%w: session %s is no longer at position %d", ErrConflict, sess.ID, sess.Position-1)
		}
		return ErrNotFound
	}

	if appended != nil {
		if err := insertResponse(tx, sess.ID, sess.Position-1, *appended); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) exists(tx *sql.Tx, id string) bool {
	var one int
	return tx.QueryRow(`SELECT 1 FROM survey_sessions WHERE id = ?`, id).Scan(&one) == nil
}

func insertResponse(tx *sql.Tx, sessionID string, ord int, r model.Response) error {
	_, err := tx.Exec(
		`INSERT INTO session_responses (session_id, ord, stimulus_id, text, truth, photo, show_photo, answer, response_text, response_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, ord, r.StimulusID, r.Text, r.Truth, r.Photo, r.ShowPhoto, r.Answer, r.ResponseText, r.ResponseTime,
	)
	return err
}

// MarkPersisted flags a session whose batch reached the sink.
func (s *Store) MarkPersisted(id string) error {
	res, err := s.db.Exec(`UPDATE survey_sessions SET persisted = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SessionSummary is a session row without its sequence and responses.
type SessionSummary struct {
	ID          string
	Condition   model.Condition
	Phase       model.Phase
	Position    int
	Persisted   bool
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions() ([]SessionSummary, error) {
	rows, err := s.db.Query(
		`SELECT id, condition, phase, position, persisted, created_at, completed_at
		 FROM survey_sessions ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []SessionSummary
	for rows.Next() {
		var ss SessionSummary
		if err := rows.Scan(&ss.ID, &ss.Condition, &ss.Phase, &ss.Position, &ss.Persisted, &ss.CreatedAt, &ss.CompletedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}

// CountByPhase returns the number of sessions in each phase.
func (s *Store) CountByPhase() (map[model.Phase]int, error) {
	rows, err := s.db.Query(`SELECT phase, COUNT(*) FROM survey_sessions GROUP BY phase`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[model.Phase]int)
	for rows.Next() {
		var p model.Phase
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		counts[p] = n
	}
	return counts, rows.Err()
}
