package fsm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marketlens/marketlens-cli/internal/model"
)

// Internal bookkeeping keys stored alongside parser output in the
// context's parsed data. Underscore-prefixed keys may be overwritten;
// parser-produced field keys may not.
const (
	keyPromptBuiltAt      = "_prompt_built_at"
	keyResponseReceivedAt = "_response_received_at"
	keyJSONBlock          = "_json_block"
	keyParseStatus        = "_parse_status"
	keyParseConfidence    = "_parse_confidence"
	keyParseTimeMS        = "_parse_time_ms"
)

// PromptBuilder renders the analysis prompt for a button press. The
// full template layer lives with the workflow collaborator; this
// interface is what the start_ai_processing action calls when the
// caller did not pass pre-rendered text.
type PromptBuilder interface {
	Build(button model.ButtonType, ticker string) (string, error)
}

type defaultPromptBuilder struct{}

func (defaultPromptBuilder) Build(button model.ButtonType, ticker string) (string, error) {
	if !button.Valid() {
		return "", eris.Errorf("fsm: cannot build prompt for button %q", button)
	}
	subject := ticker
	if subject == "" || subject == model.TickerLastMentioned {
		subject = "the last mentioned ticker"
	}
	switch button {
	case model.ButtonSnapshot:
		return fmt.Sprintf("Provide a current stock snapshot for %s: current price, percentage change, dollar change, volume, VWAP, open, high, low, and previous close. Label each value.", subject), nil
	case model.ButtonSupportResistance:
		return fmt.Sprintf("List three support levels (S1, S2, S3) and three resistance levels (R1, R2, R3) for %s with dollar values, labeled.", subject), nil
	case model.ButtonTechnical:
		return fmt.Sprintf("Report technical indicators for %s: RSI (14), MACD, and the 5/10/20/50/200-day EMA and SMA values, labeled.", subject), nil
	}
	return "", eris.Errorf("fsm: cannot build prompt for button %q", button)
}

// actionButtonClick starts a new workflow cycle: transient data from
// the previous cycle is cleared, the button and ticker are recorded,
// and the error counter resets.
func actionButtonClick(m *Manager, p Payload) error {
	m.clearTransientLocked()
	m.ctx.ButtonType = p.Button
	ticker := model.NormalizeTicker(p.Ticker)
	if ticker == "" {
		ticker = model.TickerLastMentioned
	}
	m.ctx.Ticker = ticker
	m.ctx.ErrorMessage = ""
	m.ctx.ErrorRecoveryAttempts = 0
	return nil
}

// actionBuildPrompt renders (or accepts) the prompt text for the
// chosen button type.
func actionBuildPrompt(m *Manager, p Payload) error {
	prompt := p.Prompt
	if prompt == "" {
		built, err := m.prompts.Build(m.ctx.ButtonType, m.ctx.Ticker)
		if err != nil {
			return err
		}
		prompt = built
	}
	m.ctx.Prompt = prompt
	m.ctx.ParsedData[keyPromptBuiltAt] = m.now().Format(time.RFC3339Nano)
	return nil
}

// actionStoreResponse stashes the model output and records a
// best-effort JSON block for display. Parsing proper is an explicit
// collaborator call, not part of this action.
func actionStoreResponse(m *Manager, p Payload) error {
	m.ctx.AIResponse = p.AIResponse
	m.ctx.ParsedData[keyResponseReceivedAt] = m.now().Format(time.RFC3339Nano)
	if block, ok := extractJSONBlock(p.AIResponse); ok {
		m.ctx.ParsedData[keyJSONBlock] = block
	}
	return nil
}

// actionMergeParsed merges parser output into the context. Accumulation
// is additive across one cycle: an existing parser-produced key keeps
// its first value and the collision is logged.
func actionMergeParsed(m *Manager, p Payload) error {
	res := p.ParseResult
	if res == nil {
		return eris.New("fsm: parse_success without a parse result")
	}
	for k, v := range res.ParsedData {
		if prev, exists := m.ctx.ParsedData[k]; exists && prev != v {
			m.log.Warn("fsm: refusing to overwrite parsed field",
				zap.String("field", k),
				zap.String("kept", prev),
				zap.String("dropped", v),
			)
			continue
		}
		m.ctx.ParsedData[k] = v
	}
	m.ctx.ParsedData[keyParseStatus] = "success"
	m.ctx.ParsedData[keyParseConfidence] = string(res.Confidence)
	m.ctx.ParsedData[keyParseTimeMS] = strconv.FormatInt(res.ParseTimeMS, 10)
	return nil
}

// actionParseFailed records a failed parse without leaving the
// response state; the UI renders a "no data extracted" placeholder.
func actionParseFailed(m *Manager, p Payload) error {
	m.ctx.ParsedData[keyParseStatus] = "failed"
	if p.ParseResult != nil {
		m.ctx.ParsedData[keyParseConfidence] = string(p.ParseResult.Confidence)
	}
	return nil
}

// actionCompleteCycle closes a successful cycle: prompt and response
// are cleared, last results stay for display, the error bookkeeping
// resets.
func actionCompleteCycle(m *Manager, _ Payload) error {
	m.ctx.Prompt = ""
	m.ctx.AIResponse = ""
	m.ctx.ErrorMessage = ""
	m.ctx.ErrorRecoveryAttempts = 0
	return nil
}

func actionAIError(m *Manager, p Payload) error {
	msg := p.Error
	if msg == "" {
		msg = "ai call failed"
	}
	m.enterErrorLocked(msg)
	return nil
}

func actionAITimeout(m *Manager, p Payload) error {
	msg := "ai call timed out"
	if p.Timeout > 0 {
		msg = fmt.Sprintf("ai call timed out after %s", p.Timeout)
	}
	m.enterErrorLocked(msg)
	return nil
}

func actionDisplayError(m *Manager, p Payload) error {
	msg := p.Error
	if msg == "" {
		msg = "display failed"
	}
	m.enterErrorLocked(msg)
	return nil
}

// actionClearError backs retry and auto_recover: the message clears,
// the attempt counter survives until the next successful cycle.
func actionClearError(m *Manager, _ Payload) error {
	m.ctx.ErrorMessage = ""
	return nil
}

// actionAbort abandons the failed cycle and its transient data.
func actionAbort(m *Manager, _ Payload) error {
	m.clearTransientLocked()
	m.ctx.ErrorMessage = ""
	return nil
}

// actionReset is the full reset: abort plus a cleared attempt counter.
func actionReset(m *Manager, _ Payload) error {
	m.clearTransientLocked()
	m.ctx.ErrorMessage = ""
	m.ctx.ErrorRecoveryAttempts = 0
	return nil
}

func actionEmergencyClear(m *Manager, _ Payload) error {
	m.clearTransientLocked()
	m.ctx.ErrorMessage = ""
	return nil
}

// extractJSONBlock pulls the first JSON object out of model output for
// display purposes: a fenced ```json block if present, otherwise the
// first balanced top-level object that parses.
func extractJSONBlock(text string) (string, bool) {
	if i := strings.Index(text, "```json"); i >= 0 {
		rest := text[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			block := strings.TrimSpace(rest[:j])
			if json.Valid([]byte(block)) {
				return block, true
			}
		}
	}

	start := strings.IndexByte(text, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					block := text[start : i+1]
					if json.Valid([]byte(block)) {
						return block, true
					}
					i = len(text) // malformed; try a later opener
				}
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start = start + 1 + next
	}
	return "", false
}
