package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens/marketlens-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, "sess-1"))
	// Idempotent: re-creating the same session is not an error.
	require.NoError(t, s.CreateSession(ctx, "sess-1"))

	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendTransition(ctx, "sess-1", model.TransitionRecord{
		From: model.StateIdle, To: model.StateButtonTriggered,
		Event: "button_click", Timestamp: ts, Success: true,
	}))
	require.NoError(t, s.AppendTransition(ctx, "sess-1", model.TransitionRecord{
		From: model.StateButtonTriggered, To: model.StateAIProcessing,
		Event: "start_ai_processing", Timestamp: ts.Add(time.Second), Success: true,
	}))

	res := model.NewParseResult(model.DataTypeSnapshot, "Current price: $150.25")
	res.RecordMatch("current_price", "$150.25", "labeled_current_price")
	res.AddWarning("volume missing")
	res.Finalize(9, time.Now())
	require.NoError(t, s.SaveParseResult(ctx, "sess-1", "AAPL", res))

	sess, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Equal(t, model.StateAIProcessing, sess.LastState)
	assert.Equal(t, 2, sess.Transitions)
	assert.Equal(t, 1, sess.Parses)

	recs, err := s.ListTransitions(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "button_click", recs[0].Event)
	assert.Equal(t, model.StateAIProcessing, recs[1].To)
	assert.True(t, recs[0].Success)

	parses, err := s.ListParseResults(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, parses, 1)
	assert.Equal(t, "sess-1", parses[0].SessionID)
	assert.Equal(t, model.DataTypeSnapshot, parses[0].DataType)
	assert.Equal(t, "AAPL", parses[0].Ticker)
	assert.Equal(t, "$150.25", parses[0].ParsedData["current_price"])
	assert.Equal(t, []string{"volume missing"}, parses[0].Warnings)
	assert.NotEmpty(t, parses[0].ID)
}

func TestSQLiteStore_GetSessionNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	sess, err := s.GetSession(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSQLiteStore_ListSessionsOrderAndLimit(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateSession(ctx, id))
	}

	all, err := s.ListSessions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, sess := range all {
		assert.Equal(t, model.StateIdle, sess.LastState)
		assert.Zero(t, sess.Transitions)
	}

	limited, err := s.ListSessions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLiteStore_EmptyListings(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, "sess-1"))

	recs, err := s.ListTransitions(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, recs)

	parses, err := s.ListParseResults(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, parses)
}

func TestSQLiteStore_MigrateIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}
