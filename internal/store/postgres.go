package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/marketlens/marketlens-cli/internal/model"
)

// Pool abstracts the pgx pool surface the store needs; pgxpool.Pool
// and pgxmock both satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 5
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transitions (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	from_state  TEXT NOT NULL,
	to_state    TEXT NOT NULL,
	event       TEXT NOT NULL,
	success     BOOLEAN NOT NULL,
	error       TEXT,
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS parse_results (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL REFERENCES sessions(id),
	data_type     TEXT NOT NULL,
	ticker        TEXT,
	confidence    TEXT NOT NULL,
	parsed_data   JSONB NOT NULL,
	warnings      JSONB,
	parse_time_ms BIGINT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(session_id);
CREATE INDEX IF NOT EXISTS idx_parse_results_session ON parse_results(session_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, sessionID)
	return eris.Wrap(err, "postgres: create session")
}

func (s *PostgresStore) AppendTransition(ctx context.Context, sessionID string, rec model.TransitionRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transitions (session_id, from_state, to_state, event, success, error, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sessionID, string(rec.From), string(rec.To), rec.Event, rec.Success, rec.Error, rec.Timestamp.UTC())
	return eris.Wrap(err, "postgres: append transition")
}

func (s *PostgresStore) SaveParseResult(ctx context.Context, sessionID, ticker string, res *model.ParseResult) error {
	data, err := json.Marshal(res.ParsedData)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal parsed data")
	}
	warnings, err := json.Marshal(res.Warnings)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal warnings")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO parse_results (id, session_id, data_type, ticker, confidence, parsed_data, warnings, parse_time_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), sessionID, string(res.DataType), ticker, string(res.Confidence),
		data, warnings, res.ParseTimeMS)
	return eris.Wrap(err, "postgres: save parse result")
}

const sessionQuery = `
SELECT s.id, s.created_at,
	COALESCE((SELECT t.to_state FROM transitions t WHERE t.session_id = s.id ORDER BY t.id DESC LIMIT 1), 'idle'),
	(SELECT COUNT(*) FROM transitions t WHERE t.session_id = s.id),
	(SELECT COUNT(*) FROM parse_results p WHERE p.session_id = s.id)
FROM sessions s`

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, sessionQuery+` WHERE s.id = $1`, sessionID).
		Scan(&sess.ID, &sess.CreatedAt, &sess.LastState, &sess.Transitions, &sess.Parses)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get session")
	}
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, sessionQuery+` ORDER BY s.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.CreatedAt, &sess.LastState, &sess.Transitions, &sess.Parses); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		out = append(out, sess)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sessions")
}

func (s *PostgresStore) ListTransitions(ctx context.Context, sessionID string) ([]model.TransitionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT from_state, to_state, event, success, COALESCE(error, ''), occurred_at
		 FROM transitions WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list transitions")
	}
	defer rows.Close()

	var out []model.TransitionRecord
	for rows.Next() {
		var rec model.TransitionRecord
		var from, to string
		if err := rows.Scan(&from, &to, &rec.Event, &rec.Success, &rec.Error, &rec.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan transition")
		}
		rec.From = model.AppState(from)
		rec.To = model.AppState(to)
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list transitions")
}

func (s *PostgresStore) ListParseResults(ctx context.Context, sessionID string) ([]SavedParse, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, data_type, COALESCE(ticker, ''), confidence, parsed_data, COALESCE(warnings, '[]'::jsonb), parse_time_ms, created_at
		 FROM parse_results WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list parse results")
	}
	defer rows.Close()

	var out []SavedParse
	for rows.Next() {
		var sp SavedParse
		var dt, conf string
		var dataJSON, warningsJSON []byte
		if err := rows.Scan(&sp.ID, &sp.SessionID, &dt, &sp.Ticker, &conf, &dataJSON, &warningsJSON, &sp.ParseTimeMS, &sp.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan parse result")
		}
		sp.DataType = model.DataType(dt)
		sp.Confidence = model.Confidence(conf)
		if err := json.Unmarshal(dataJSON, &sp.ParsedData); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal parsed data")
		}
		if err := json.Unmarshal(warningsJSON, &sp.Warnings); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal warnings")
		}
		out = append(out, sp)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list parse results")
}

var _ Store = (*PostgresStore)(nil)
