package model

import "strings"

// TickerLastMentioned is the sentinel ticker meaning "use the
// conversation's last mentioned symbol"; the prompt layer resolves it.
const TickerLastMentioned = "LAST_MENTIONED"

// TickerContext describes the instrument under discussion for one
// extraction attempt. Immutable once built.
type TickerContext struct {
	Symbol     string  `json:"symbol"`
	Company    string  `json:"company,omitempty"`
	Sector     string  `json:"sector,omitempty"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// NewTickerContext builds a context for an explicit user-supplied
// symbol. Symbols are normalized upper-case.
func NewTickerContext(symbol, source string, confidence float64) TickerContext {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return TickerContext{
		Symbol:     NormalizeTicker(symbol),
		Source:     source,
		Confidence: confidence,
	}
}

// NormalizeTicker upper-cases and trims a raw ticker string.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
