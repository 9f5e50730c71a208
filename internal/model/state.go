package model

import "time"

// AppState enumerates the workflow states. The machine is deliberately
// small: prompt preparation, parsing, and UI updates happen inside
// transitions rather than as resident states.
type AppState string

const (
	StateIdle             AppState = "idle"
	StateButtonTriggered  AppState = "button_triggered"
	StateAIProcessing     AppState = "ai_processing"
	StateResponseReceived AppState = "response_received"
	StateError            AppState = "error"
)

// AllAppStates returns all defined workflow states.
func AllAppStates() []AppState {
	return []AppState{
		StateIdle,
		StateButtonTriggered,
		StateAIProcessing,
		StateResponseReceived,
		StateError,
	}
}

// TransitionRecord is one entry in the append-only transition history.
type TransitionRecord struct {
	From      AppState  `json:"from"`
	To        AppState  `json:"to"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}
