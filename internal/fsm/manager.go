// Package fsm implements the table-driven workflow state machine that
// sequences button click → prompt build → AI call → parse → display.
// One Manager owns one session's context; all mutation goes through
// Transition and the explicit recovery methods.
package fsm

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketlens/marketlens-cli/internal/model"
)

// Defaults for error recovery. Both are adjustable per Manager.
const (
	DefaultMaxRecoveryAttempts = 3
	DefaultErrorCooldown       = 30 * time.Second
)

// Observer receives every executed transition record, e.g. a metrics
// collector or audit store writer.
type Observer interface {
	ObserveTransition(sessionID string, rec model.TransitionRecord)
}

// Context is the FSM's single mutable record. It is owned exclusively
// by its Manager and only ever copied out.
type Context struct {
	CurrentState  model.AppState
	PreviousState model.AppState

	ButtonType model.ButtonType
	Ticker     string
	Prompt     string
	AIResponse string

	// ParsedData accumulates parser output plus internal bookkeeping
	// keys (underscore-prefixed). Parser-produced keys are never
	// silently overwritten within a cycle.
	ParsedData map[string]string

	ErrorMessage          string
	ErrorRecoveryAttempts int
	ErrorEnteredAt        time.Time

	History []model.TransitionRecord
}

// Snapshot is a read-only copy of the context handed to guards and
// returned to callers. Maps and slices are copied so holders cannot
// reach back into the live context.
type Snapshot struct {
	SessionID             string
	CurrentState          model.AppState
	PreviousState         model.AppState
	ButtonType            model.ButtonType
	Ticker                string
	Prompt                string
	AIResponse            string
	ParsedData            map[string]string
	ErrorMessage          string
	ErrorRecoveryAttempts int
	ErrorEnteredAt        time.Time
	HistoryLen            int
}

// Manager drives one session's workflow. Instances are mutually
// isolated; a mutex serializes callers of a single instance.
type Manager struct {
	mu  sync.Mutex
	ctx Context

	sessionID   string
	log         *zap.Logger
	now         func() time.Time
	maxAttempts int
	cooldown    time.Duration
	observer    Observer
	prompts     PromptBuilder
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source (tests drive the cooldown).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMaxRecoveryAttempts overrides the retry ceiling.
func WithMaxRecoveryAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithErrorCooldown overrides the auto-recover residency requirement.
func WithErrorCooldown(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.cooldown = d
		}
	}
}

// WithObserver registers a transition observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithPromptBuilder overrides how the start_ai_processing action
// renders prompt text.
func WithPromptBuilder(b PromptBuilder) Option {
	return func(m *Manager) { m.prompts = b }
}

// New creates a Manager in the idle state. The session ID is used only
// for log and audit correlation; an empty ID gets a generated UUID.
func New(sessionID string, log *zap.Logger, opts ...Option) *Manager {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		sessionID:   sessionID,
		log:         log.With(zap.String("session_id", sessionID)),
		now:         time.Now,
		maxAttempts: DefaultMaxRecoveryAttempts,
		cooldown:    DefaultErrorCooldown,
		prompts:     defaultPromptBuilder{},
		ctx: Context{
			CurrentState:  model.StateIdle,
			PreviousState: model.StateIdle,
			ParsedData:    make(map[string]string),
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SessionID returns the correlation identifier.
func (m *Manager) SessionID() string { return m.sessionID }

// CurrentState returns the current workflow state.
func (m *Manager) CurrentState() model.AppState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx.CurrentState
}

// Snapshot returns a read-only copy of the session context.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	data := make(map[string]string, len(m.ctx.ParsedData))
	for k, v := range m.ctx.ParsedData {
		data[k] = v
	}
	return Snapshot{
		SessionID:             m.sessionID,
		CurrentState:          m.ctx.CurrentState,
		PreviousState:         m.ctx.PreviousState,
		ButtonType:            m.ctx.ButtonType,
		Ticker:                m.ctx.Ticker,
		Prompt:                m.ctx.Prompt,
		AIResponse:            m.ctx.AIResponse,
		ParsedData:            data,
		ErrorMessage:          m.ctx.ErrorMessage,
		ErrorRecoveryAttempts: m.ctx.ErrorRecoveryAttempts,
		ErrorEnteredAt:        m.ctx.ErrorEnteredAt,
		HistoryLen:            len(m.ctx.History),
	}
}

// History returns a copy of the append-only transition log.
func (m *Manager) History() []model.TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.TransitionRecord, len(m.ctx.History))
	copy(out, m.ctx.History)
	return out
}

// Transition applies one event. It returns false — with no state
// change — when no table entry exists for (current state, event) or a
// guard refuses; it returns false after an emergency move to the error
// state when the transition's action fails.
func (m *Manager) Transition(event string, opts ...EventOption) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := buildPayload(opts)
	rule, ok := transitionTable[transitionKey{m.ctx.CurrentState, event}]
	if !ok {
		m.log.Debug("fsm: no transition for event",
			zap.String("state", string(m.ctx.CurrentState)),
			zap.String("event", event),
		)
		return false
	}

	// Guards see a read-only snapshot plus the candidate payload; the
	// live context is untouched until the transition is confirmed.
	if rule.guard != nil {
		if err := rule.guard(m, m.snapshotLocked(), p); err != nil {
			m.log.Info("fsm: guard refused transition",
				zap.String("state", string(m.ctx.CurrentState)),
				zap.String("event", event),
				zap.Error(err),
			)
			return false
		}
	}

	from := m.ctx.CurrentState
	m.ctx.PreviousState = from
	m.ctx.CurrentState = rule.next

	if rule.action != nil {
		if err := rule.action(m, p); err != nil {
			m.emergencyToErrorLocked(from, event, err)
			return false
		}
	}

	m.appendRecordLocked(model.TransitionRecord{
		From:      from,
		To:        m.ctx.CurrentState,
		Event:     event,
		Timestamp: m.now(),
		Success:   true,
	})
	m.log.Debug("fsm: transition",
		zap.String("from", string(from)),
		zap.String("to", string(m.ctx.CurrentState)),
		zap.String("event", event),
	)
	return true
}

// CanTransition reports whether the event has a table entry from the
// current state and its guard (if any) would pass right now.
func (m *Manager) CanTransition(event string, opts ...EventOption) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := transitionTable[transitionKey{m.ctx.CurrentState, event}]
	if !ok {
		return false
	}
	if rule.guard != nil {
		return rule.guard(m, m.snapshotLocked(), buildPayload(opts)) == nil
	}
	return true
}

// AvailableEvents lists the events with a table entry from the current
// state, sorted for stable UI presentation. Guards are not evaluated:
// the caller supplies candidate payloads per event via CanTransition.
func (m *Manager) AvailableEvents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events []string
	for key := range transitionTable {
		if key.state == m.ctx.CurrentState {
			events = append(events, key.event)
		}
	}
	sort.Strings(events)
	return events
}

// EmergencyReset forces the session back to idle from any state,
// clearing transient data but preserving history. The move bypasses
// the table yet is logged as an ordinary transition record.
func (m *Manager) EmergencyReset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.ctx.CurrentState
	m.ctx.PreviousState = from
	m.ctx.CurrentState = model.StateIdle
	m.clearTransientLocked()
	m.ctx.ErrorMessage = ""

	m.appendRecordLocked(model.TransitionRecord{
		From:      from,
		To:        model.StateIdle,
		Event:     EventEmergencyReset,
		Timestamp: m.now(),
		Success:   true,
	})
	m.log.Warn("fsm: emergency reset", zap.String("from", string(from)))
}

// ClearData resets transient workflow data between cycles. State,
// history, and the error attempt counter are untouched.
func (m *Manager) ClearData() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearTransientLocked()
}

func (m *Manager) clearTransientLocked() {
	m.ctx.ButtonType = ""
	m.ctx.Ticker = ""
	m.ctx.Prompt = ""
	m.ctx.AIResponse = ""
	m.ctx.ParsedData = make(map[string]string)
}

// emergencyToErrorLocked contains an action failure: the machine lands
// on the error state regardless of the table, and the failed
// transition is recorded.
func (m *Manager) emergencyToErrorLocked(from model.AppState, event string, err error) {
	m.ctx.CurrentState = model.StateError
	m.ctx.ErrorMessage = err.Error()
	m.ctx.ErrorRecoveryAttempts++
	m.ctx.ErrorEnteredAt = m.now()

	m.appendRecordLocked(model.TransitionRecord{
		From:      from,
		To:        model.StateError,
		Event:     event,
		Timestamp: m.now(),
		Success:   false,
		Error:     err.Error(),
	})
	m.log.Error("fsm: action failed, emergency transition to error",
		zap.String("from", string(from)),
		zap.String("event", event),
		zap.Error(err),
	)
}

func (m *Manager) appendRecordLocked(rec model.TransitionRecord) {
	m.ctx.History = append(m.ctx.History, rec)
	if m.observer != nil {
		m.observer.ObserveTransition(m.sessionID, rec)
	}
}

// enterErrorLocked is shared by the actions that record a failure while
// moving to the error state through the table.
func (m *Manager) enterErrorLocked(msg string) {
	m.ctx.ErrorMessage = msg
	m.ctx.ErrorRecoveryAttempts++
	m.ctx.ErrorEnteredAt = m.now()
}
