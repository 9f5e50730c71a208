package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketlens/marketlens-cli/internal/model"
	"github.com/marketlens/marketlens-cli/internal/monitoring"
	"github.com/marketlens/marketlens-cli/internal/parser"
	"github.com/marketlens/marketlens-cli/internal/patterns"
	"github.com/marketlens/marketlens-cli/internal/store"
	"github.com/marketlens/marketlens-cli/internal/validate"
	"github.com/marketlens/marketlens-cli/internal/workflow"
	"github.com/marketlens/marketlens-cli/pkg/anthropic"
)

type stubClient struct{ text string }

func (c *stubClient) CreateMessage(context.Context, anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: c.text}},
	}, nil
}

func newTestServer(t *testing.T) (*server, store.Store) {
	t.Helper()
	log := zap.NewNop()
	collector := monitoring.NewCollector()
	p := parser.New(patterns.Default(), validate.New(validate.DefaultLimits()), log,
		parser.WithObserver(collector))

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	client := &stubClient{text: "AAPL is trading at $150.25, up +2.35% (+$3.52). Volume: 45,234,123 shares."}
	runner := workflow.New(client, p, log, workflow.WithStore(st))

	return &server{parser: p, runner: runner, store: st, collector: collector}, st
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.routes(), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServeParse(t *testing.T) {
	srv, _ := newTestServer(t)
	body := `{"type":"snapshot","text":"Current price: $150.25, volume: 2.3K","ticker":"aapl"}`
	rec := doRequest(t, srv.routes(), http.MethodPost, "/parse", body)

	require.Equal(t, http.StatusOK, rec.Code)
	var res model.ParseResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "$150.25", res.ParsedData["current_price"])
	assert.Equal(t, "2,300", res.ParsedData["volume"])
}

func TestServeParseBadRequests(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.routes()

	rec := doRequest(t, h, http.MethodPost, "/parse", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/parse", `{"type":"charts","text":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/parse", `{"type":"snapshot","text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeAnalyze(t *testing.T) {
	srv, st := newTestServer(t)
	body := `{"button":"snapshot","ticker":"AAPL"}`
	rec := doRequest(t, srv.routes(), http.MethodPost, "/analyze", body)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		SessionID  string            `json:"session_id"`
		FinalState model.AppState    `json:"final_state"`
		Ticker     string            `json:"ticker"`
		Parse      model.ParseResult `json:"parse"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.StateIdle, resp.FinalState)
	assert.Equal(t, "AAPL", resp.Ticker)
	assert.Equal(t, "$150.25", resp.Parse.ParsedData["current_price"])

	// The cycle was persisted.
	sess, err := st.GetSession(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, 5, sess.Transitions)
	assert.Equal(t, 1, sess.Parses)
}

func TestServeAnalyzeUnknownButton(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.routes(), http.MethodPost, "/analyze", `{"button":"charts"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeSessions(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.routes()

	rec := doRequest(t, h, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	// Run a cycle, then the session appears.
	doRequest(t, h, http.MethodPost, "/analyze", `{"button":"snapshot","ticker":"AAPL"}`)

	rec = doRequest(t, h, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []store.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)

	rec = doRequest(t, h, http.MethodGet, "/sessions/"+sessions[0].ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Transitions []model.TransitionRecord `json:"transitions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Len(t, detail.Transitions, 5)
}

func TestServeSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.routes(), http.MethodGet, "/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeSessionLifecycle(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.routes()

	rec := doRequest(t, h, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		SessionID       string         `json:"session_id"`
		State           model.AppState `json:"state"`
		AvailableEvents []string       `json:"available_events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, model.StateIdle, created.State)
	assert.Contains(t, created.AvailableEvents, "button_click")

	events := []string{
		`{"event":"button_click","button":"snapshot","ticker":"AAPL"}`,
		`{"event":"start_ai_processing"}`,
		`{"event":"response_received","ai_response":"Current price: $150.25, up +2.35%, volume: 45,234,123 shares, VWAP: $150.10, open: $149.00"}`,
		`{"event":"parse"}`,
		`{"event":"display_complete"}`,
	}
	path := "/sessions/" + created.SessionID + "/events"
	for _, body := range events {
		rec = doRequest(t, h, http.MethodPost, path, body)
		require.Equal(t, http.StatusOK, rec.Code, body)
		var resp struct {
			Accepted bool           `json:"accepted"`
			State    model.AppState `json:"state"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Accepted, body)
	}

	// The whole cycle was persisted transition by transition.
	recs, err := st.ListTransitions(context.Background(), created.SessionID)
	require.NoError(t, err)
	assert.Len(t, recs, 5)
	parses, err := st.ListParseResults(context.Background(), created.SessionID)
	require.NoError(t, err)
	assert.Len(t, parses, 1)
}

func TestServeSessionEventRefused(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.routes()

	rec := doRequest(t, h, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// response_received is not legal from idle.
	rec = doRequest(t, h, http.MethodPost, "/sessions/"+created.SessionID+"/events",
		`{"event":"response_received","ai_response":"text"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Accepted bool           `json:"accepted"`
		State    model.AppState `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Accepted)
	assert.Equal(t, model.StateIdle, resp.State)
}

func TestServeSessionEventUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.routes(), http.MethodPost, "/sessions/nope/events", `{"event":"button_click"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.routes()

	doRequest(t, h, http.MethodPost, "/parse", `{"type":"snapshot","text":"Current price: $150.25"}`)

	rec := doRequest(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.ParseTotal)
	assert.Equal(t, 1, snap.ParseByType["snapshot"])
}
