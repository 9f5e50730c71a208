// Package store persists session audit history: workflow transitions
// and parse results, correlated by session ID. Persistence is optional
// plumbing around the core — the FSM and parser never depend on it.
package store

import (
	"context"
	"time"

	"github.com/marketlens/marketlens-cli/internal/model"
)

// Session summarizes one persisted workflow session.
type Session struct {
	ID          string         `json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	LastState   model.AppState `json:"last_state"`
	Transitions int            `json:"transitions"`
	Parses      int            `json:"parses"`
}

// SavedParse is a persisted parse result row.
type SavedParse struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	DataType    model.DataType    `json:"data_type"`
	Ticker      string            `json:"ticker"`
	Confidence  model.Confidence  `json:"confidence"`
	ParsedData  map[string]string `json:"parsed_data"`
	Warnings    []string          `json:"warnings"`
	ParseTimeMS int64             `json:"parse_time_ms"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Store defines the audit persistence interface.
type Store interface {
	CreateSession(ctx context.Context, sessionID string) error
	AppendTransition(ctx context.Context, sessionID string, rec model.TransitionRecord) error
	SaveParseResult(ctx context.Context, sessionID, ticker string, res *model.ParseResult) error

	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]Session, error)
	ListTransitions(ctx context.Context, sessionID string) ([]model.TransitionRecord, error)
	ListParseResults(ctx context.Context, sessionID string) ([]SavedParse, error)

	Migrate(ctx context.Context) error
	Close() error
}
