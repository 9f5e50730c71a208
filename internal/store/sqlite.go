package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/marketlens/marketlens-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures
// WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS transitions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	from_state  TEXT NOT NULL,
	to_state    TEXT NOT NULL,
	event       TEXT NOT NULL,
	success     INTEGER NOT NULL,
	error       TEXT,
	occurred_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS parse_results (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL REFERENCES sessions(id),
	data_type     TEXT NOT NULL,
	ticker        TEXT,
	confidence    TEXT NOT NULL,
	parsed_data   TEXT NOT NULL,
	warnings      TEXT,
	parse_time_ms INTEGER NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(session_id);
CREATE INDEX IF NOT EXISTS idx_parse_results_session ON parse_results(session_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id) VALUES (?) ON CONFLICT(id) DO NOTHING`, sessionID)
	return eris.Wrap(err, "sqlite: create session")
}

func (s *SQLiteStore) AppendTransition(ctx context.Context, sessionID string, rec model.TransitionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (session_id, from_state, to_state, event, success, error, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, string(rec.From), string(rec.To), rec.Event, rec.Success, rec.Error, rec.Timestamp.UTC())
	return eris.Wrap(err, "sqlite: append transition")
}

func (s *SQLiteStore) SaveParseResult(ctx context.Context, sessionID, ticker string, res *model.ParseResult) error {
	data, err := json.Marshal(res.ParsedData)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal parsed data")
	}
	warnings, err := json.Marshal(res.Warnings)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal warnings")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO parse_results (id, session_id, data_type, ticker, confidence, parsed_data, warnings, parse_time_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, string(res.DataType), ticker, string(res.Confidence),
		string(data), string(warnings), res.ParseTimeMS)
	return eris.Wrap(err, "sqlite: save parse result")
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx,
		`SELECT s.id, s.created_at,
			COALESCE((SELECT t.to_state FROM transitions t WHERE t.session_id = s.id ORDER BY t.id DESC LIMIT 1), 'idle'),
			(SELECT COUNT(*) FROM transitions t WHERE t.session_id = s.id),
			(SELECT COUNT(*) FROM parse_results p WHERE p.session_id = s.id)
		 FROM sessions s WHERE s.id = ?`, sessionID).
		Scan(&sess.ID, &sess.CreatedAt, &sess.LastState, &sess.Transitions, &sess.Parses)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get session")
	}
	return &sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.created_at,
			COALESCE((SELECT t.to_state FROM transitions t WHERE t.session_id = s.id ORDER BY t.id DESC LIMIT 1), 'idle'),
			(SELECT COUNT(*) FROM transitions t WHERE t.session_id = s.id),
			(SELECT COUNT(*) FROM parse_results p WHERE p.session_id = s.id)
		 FROM sessions s ORDER BY s.created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.CreatedAt, &sess.LastState, &sess.Transitions, &sess.Parses); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		out = append(out, sess)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sessions")
}

func (s *SQLiteStore) ListTransitions(ctx context.Context, sessionID string) ([]model.TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_state, to_state, event, success, COALESCE(error, ''), occurred_at
		 FROM transitions WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list transitions")
	}
	defer rows.Close()

	var out []model.TransitionRecord
	for rows.Next() {
		var rec model.TransitionRecord
		var from, to string
		if err := rows.Scan(&from, &to, &rec.Event, &rec.Success, &rec.Error, &rec.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transition")
		}
		rec.From = model.AppState(from)
		rec.To = model.AppState(to)
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list transitions")
}

func (s *SQLiteStore) ListParseResults(ctx context.Context, sessionID string) ([]SavedParse, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, data_type, COALESCE(ticker, ''), confidence, parsed_data, COALESCE(warnings, '[]'), parse_time_ms, created_at
		 FROM parse_results WHERE session_id = ? ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list parse results")
	}
	defer rows.Close()

	var out []SavedParse
	for rows.Next() {
		var sp SavedParse
		var dataJSON, warningsJSON string
		var dt, conf string
		if err := rows.Scan(&sp.ID, &sp.SessionID, &dt, &sp.Ticker, &conf, &dataJSON, &warningsJSON, &sp.ParseTimeMS, &sp.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan parse result")
		}
		sp.DataType = model.DataType(dt)
		sp.Confidence = model.Confidence(conf)
		if err := json.Unmarshal([]byte(dataJSON), &sp.ParsedData); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal parsed data")
		}
		if err := json.Unmarshal([]byte(warningsJSON), &sp.Warnings); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal warnings")
		}
		out = append(out, sp)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list parse results")
}

var _ Store = (*SQLiteStore)(nil)
