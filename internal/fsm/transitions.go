package fsm

import "github.com/marketlens/marketlens-cli/internal/model"

type transitionKey struct {
	state model.AppState
	event string
}

// guardFunc is a pure predicate over a context snapshot augmented with
// the candidate payload. Guards never mutate the live context.
type guardFunc func(m *Manager, s Snapshot, p Payload) error

// actionFunc runs after a confirmed state move, with the manager lock
// held. A returned error forces an emergency transition to the error
// state.
type actionFunc func(m *Manager, p Payload) error

type transitionRule struct {
	next   model.AppState
	guard  guardFunc
	action actionFunc
}

// transitionTable is the authoritative 5-state workflow table. Idle is
// both the initial state and the state every cycle returns to; the
// error state always keeps at least one outgoing recovery edge.
var transitionTable = map[transitionKey]transitionRule{
	// Normal cycle.
	{model.StateIdle, EventButtonClick}: {
		next:   model.StateButtonTriggered,
		guard:  guardValidButton,
		action: actionButtonClick,
	},
	// Non-button chat passes through without touching the workflow.
	{model.StateIdle, EventUserChat}: {
		next: model.StateIdle,
	},
	{model.StateButtonTriggered, EventStartAIProcessing}: {
		next:   model.StateAIProcessing,
		action: actionBuildPrompt,
	},
	{model.StateAIProcessing, EventResponseReceived}: {
		next:   model.StateResponseReceived,
		guard:  guardHasAIResponse,
		action: actionStoreResponse,
	},
	{model.StateAIProcessing, EventAITimeout}: {
		next:   model.StateError,
		action: actionAITimeout,
	},
	{model.StateAIProcessing, EventAIError}: {
		next:   model.StateError,
		action: actionAIError,
	},

	// Parsing is an explicit collaborator step; the machine stays in
	// response_received and records the outcome.
	{model.StateResponseReceived, EventParseSuccess}: {
		next:   model.StateResponseReceived,
		action: actionMergeParsed,
	},
	{model.StateResponseReceived, EventParseFailed}: {
		next:   model.StateResponseReceived,
		action: actionParseFailed,
	},

	{model.StateResponseReceived, EventDisplayComplete}: {
		next:   model.StateIdle,
		action: actionCompleteCycle,
	},
	{model.StateResponseReceived, EventDisplayError}: {
		next:   model.StateError,
		action: actionDisplayError,
	},

	// Error recovery. Abort and reset are always permitted; retry is
	// bounded by the attempt ceiling; auto_recover by the cooldown.
	{model.StateError, EventRetry}: {
		next:   model.StateIdle,
		guard:  guardUnderMaxAttempts,
		action: actionClearError,
	},
	{model.StateError, EventAbort}: {
		next:   model.StateIdle,
		action: actionAbort,
	},
	{model.StateError, EventReset}: {
		next:   model.StateIdle,
		action: actionReset,
	},
	{model.StateError, EventAutoRecover}: {
		next:   model.StateIdle,
		guard:  guardErrorCooldownElapsed,
		action: actionClearError,
	},
	// Direct recovery: a fresh button press skips explicit clearing.
	{model.StateError, EventButtonClick}: {
		next:   model.StateButtonTriggered,
		guard:  guardValidButton,
		action: actionButtonClick,
	},

	// Emergency reset is accepted from any in-flight state.
	{model.StateButtonTriggered, EventEmergencyReset}: {
		next:   model.StateIdle,
		action: actionEmergencyClear,
	},
	{model.StateAIProcessing, EventEmergencyReset}: {
		next:   model.StateIdle,
		action: actionEmergencyClear,
	},
	{model.StateResponseReceived, EventEmergencyReset}: {
		next:   model.StateIdle,
		action: actionEmergencyClear,
	},
}
