package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketlens/marketlens-cli/internal/fsm"
	"github.com/marketlens/marketlens-cli/internal/model"
	"github.com/marketlens/marketlens-cli/internal/monitoring"
	"github.com/marketlens/marketlens-cli/internal/parser"
	"github.com/marketlens/marketlens-cli/internal/store"
	"github.com/marketlens/marketlens-cli/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initRunner(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &server{
			parser:    env.parser,
			runner:    env.runner,
			store:     env.store,
			collector: env.collector,
			fsmOpts: []fsm.Option{
				fsm.WithObserver(env.collector),
				fsm.WithMaxRecoveryAttempts(cfg.Workflow.MaxRecoveryAttempts),
				fsm.WithErrorCooldown(cfg.Workflow.ErrorCooldown()),
			},
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           srv.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("server listening", zap.Int("port", cfg.Server.Port))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		zap.L().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type server struct {
	parser    *parser.Parser
	runner    *workflow.Runner
	store     store.Store
	collector *monitoring.Collector

	// Live sessions created over HTTP, driven event by event by an
	// external UI layer.
	mu       sync.Mutex
	sessions map[string]*fsm.Manager
	fsmOpts  []fsm.Option
}

func (s *server) session(id string) *fsm.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Post("/parse", s.handleParse)
	r.Post("/analyze", s.handleAnalyze)
	r.Post("/sessions", s.handleCreateSession)
	r.Post("/sessions/{id}/events", s.handleSessionEvent)
	r.Get("/sessions", s.handleListSessions)
	r.Get("/sessions/{id}", s.handleGetSession)
	return r
}

type sessionState struct {
	SessionID       string         `json:"session_id"`
	State           model.AppState `json:"state"`
	PreviousState   model.AppState `json:"previous_state"`
	AvailableEvents []string       `json:"available_events"`
	ErrorMessage    string         `json:"error_message,omitempty"`
}

func stateOf(m *fsm.Manager) sessionState {
	snap := m.Snapshot()
	return sessionState{
		SessionID:       m.SessionID(),
		State:           snap.CurrentState,
		PreviousState:   snap.PreviousState,
		AvailableEvents: m.AvailableEvents(),
		ErrorMessage:    snap.ErrorMessage,
	}
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	m := fsm.New("", zap.L(), s.fsmOpts...)

	s.mu.Lock()
	if s.sessions == nil {
		s.sessions = make(map[string]*fsm.Manager)
	}
	s.sessions[m.SessionID()] = m
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.CreateSession(r.Context(), m.SessionID()); err != nil {
			zap.L().Warn("persist session failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, stateOf(m))
}

func (s *server) handleSessionEvent(w http.ResponseWriter, r *http.Request) {
	m := s.session(chi.URLParam(r, "id"))
	if m == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var req struct {
		Event      string `json:"event"`
		Button     string `json:"button,omitempty"`
		Ticker     string `json:"ticker,omitempty"`
		Prompt     string `json:"prompt,omitempty"`
		AIResponse string `json:"ai_response,omitempty"`
		Error      string `json:"error,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Event == "" {
		writeError(w, http.StatusBadRequest, "event is required")
		return
	}

	historyBefore := len(m.History())
	accepted := s.applyEvent(m, req.Event, req.Button, req.Ticker, req.Prompt, req.AIResponse, req.Error)

	if s.store != nil {
		recs := m.History()
		for _, rec := range recs[historyBefore:] {
			if err := s.store.AppendTransition(r.Context(), m.SessionID(), rec); err != nil {
				zap.L().Warn("persist transition failed", zap.Error(err))
			}
		}
	}

	resp := struct {
		Accepted bool `json:"accepted"`
		sessionState
	}{accepted, stateOf(m)}
	writeJSON(w, http.StatusOK, resp)
}

// applyEvent maps a wire event onto the state machine. The synthetic
// "parse" event runs the parser over the stored response and emits
// parse_success or parse_failed on the caller's behalf.
func (s *server) applyEvent(m *fsm.Manager, event, button, ticker, prompt, aiResponse, errMsg string) bool {
	if event == "parse" {
		snap := m.Snapshot()
		dt := snap.ButtonType.DataType()
		res, err := s.parser.ParseAny(snap.AIResponse, dt, snap.Ticker)
		if err != nil {
			return m.Transition(fsm.EventDisplayError, fsm.WithError(err.Error()))
		}
		if s.store != nil && res.Confidence != model.ConfidenceFailed {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.store.SaveParseResult(ctx, m.SessionID(), snap.Ticker, res); err != nil {
				zap.L().Warn("persist parse result failed", zap.Error(err))
			}
		}
		if res.Confidence == model.ConfidenceFailed {
			return m.Transition(fsm.EventParseFailed, fsm.WithParseResult(res))
		}
		return m.Transition(fsm.EventParseSuccess, fsm.WithParseResult(res))
	}

	var opts []fsm.EventOption
	if button != "" {
		opts = append(opts, fsm.WithButton(model.ButtonType(button)))
	}
	if ticker != "" {
		opts = append(opts, fsm.WithTicker(ticker))
	}
	if prompt != "" {
		opts = append(opts, fsm.WithPrompt(prompt))
	}
	if aiResponse != "" {
		opts = append(opts, fsm.WithAIResponse(aiResponse))
	}
	if errMsg != "" {
		opts = append(opts, fsm.WithError(errMsg))
	}
	return m.Transition(event, opts...)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Snapshot())
}

func (s *server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type   string `json:"type"`
		Text   string `json:"text"`
		Ticker string `json:"ticker"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	dt, err := model.ParseDataType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	res, err := s.parser.ParseAny(req.Text, dt, model.NormalizeTicker(req.Ticker))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Button string `json:"button"`
		Ticker string `json:"ticker"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	button := model.ButtonType(req.Button)
	if !button.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown button %q", req.Button))
		return
	}

	res, err := s.runner.Execute(r.Context(), button, req.Ticker)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"session_id":  res.SessionID,
			"final_state": res.FinalState,
			"error":       err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":  res.SessionID,
		"final_state": res.FinalState,
		"ticker":      res.Ticker,
		"parse":       res.Parse,
	})
}

func (s *server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "persistence disabled")
		return
	}
	sessions, err := s.store.ListSessions(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "persistence disabled")
		return
	}
	id := chi.URLParam(r, "id")
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	recs, err := s.store.ListTransitions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	parses, err := s.store.ListParseResults(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":     sess,
		"transitions": recs,
		"parses":      parses,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
