package fsm

import (
	"time"

	"github.com/marketlens/marketlens-cli/internal/model"
)

// Workflow event names. Events are the only way callers move the
// machine; see transitions.go for the table.
const (
	EventButtonClick       = "button_click"
	EventUserChat          = "user_chat"
	EventStartAIProcessing = "start_ai_processing"
	EventResponseReceived  = "response_received"
	EventAITimeout         = "ai_timeout"
	EventAIError           = "ai_error"
	EventParseSuccess      = "parse_success"
	EventParseFailed       = "parse_failed"
	EventDisplayComplete   = "display_complete"
	EventDisplayError      = "display_error"
	EventRetry             = "retry"
	EventAbort             = "abort"
	EventReset             = "reset"
	EventAutoRecover       = "auto_recover"
	EventEmergencyReset    = "emergency_reset"
)

// Payload carries the event-specific values consumed by guards and
// actions. Zero fields mean "not supplied".
type Payload struct {
	Button      model.ButtonType
	Ticker      string
	Prompt      string
	AIResponse  string
	Error       string
	Timeout     time.Duration
	ParseResult *model.ParseResult
}

// EventOption populates one payload field.
type EventOption func(*Payload)

// WithButton supplies the analysis button for button_click.
func WithButton(b model.ButtonType) EventOption {
	return func(p *Payload) { p.Button = b }
}

// WithTicker supplies the ticker symbol for button_click.
func WithTicker(t string) EventOption {
	return func(p *Payload) { p.Ticker = t }
}

// WithPrompt supplies pre-rendered prompt text for
// start_ai_processing, bypassing the built-in prompt builder.
func WithPrompt(prompt string) EventOption {
	return func(p *Payload) { p.Prompt = prompt }
}

// WithAIResponse supplies the model output for response_received.
func WithAIResponse(text string) EventOption {
	return func(p *Payload) { p.AIResponse = text }
}

// WithError supplies the failure message for ai_error / display_error.
func WithError(msg string) EventOption {
	return func(p *Payload) { p.Error = msg }
}

// WithTimeout supplies the elapsed deadline for ai_timeout.
func WithTimeout(d time.Duration) EventOption {
	return func(p *Payload) { p.Timeout = d }
}

// WithParseResult supplies parser output for parse_success /
// parse_failed.
func WithParseResult(res *model.ParseResult) EventOption {
	return func(p *Payload) { p.ParseResult = res }
}

func buildPayload(opts []EventOption) Payload {
	var p Payload
	for _, opt := range opts {
		opt(&p)
	}
	return p
}
