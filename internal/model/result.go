package model

import "time"

// Confidence is a coarse quality tag derived from the fraction of
// expected fields successfully extracted and validated.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceFailed Confidence = "failed"
)

// confidenceRank orders confidence levels for comparison. Higher rank
// means better extraction quality.
var confidenceRank = map[Confidence]int{
	ConfidenceFailed: 0,
	ConfidenceLow:    1,
	ConfidenceMedium: 2,
	ConfidenceHigh:   3,
}

// AtLeast reports whether c is the same or a better level than other.
func (c Confidence) AtLeast(other Confidence) bool {
	return confidenceRank[c] >= confidenceRank[other]
}

// ConfidenceFromRatio maps a matched/total field ratio onto a
// confidence level using the fixed 0.8 / 0.5 thresholds.
func ConfidenceFromRatio(ratio float64) Confidence {
	switch {
	case ratio >= 0.8:
		return ConfidenceHigh
	case ratio >= 0.5:
		return ConfidenceMedium
	case ratio > 0:
		return ConfidenceLow
	}
	return ConfidenceFailed
}

// ParseResult is the parser's output contract. It is constructed empty
// at parse start, filled field by field, and frozen once returned;
// consumers derive display structures from it without mutating it.
type ParseResult struct {
	DataType    DataType          `json:"data_type"`
	RawResponse string            `json:"raw_response"`
	ParsedData  map[string]string `json:"parsed_data"`

	Confidence Confidence `json:"confidence"`

	// MatchedPatterns and FailedPatterns are append-only audit trails
	// of "field:rule_name" and "field:reason" entries.
	MatchedPatterns []string `json:"matched_patterns"`
	FailedPatterns  []string `json:"failed_patterns"`

	// Warnings records validation and consistency issues that did not
	// prevent extraction.
	Warnings []string `json:"warnings"`

	ParseTimeMS int64 `json:"parse_time_ms"`
}

// NewParseResult returns an empty result for the given data type with
// the raw response retained verbatim for audit.
func NewParseResult(dt DataType, raw string) *ParseResult {
	return &ParseResult{
		DataType:    dt,
		RawResponse: raw,
		ParsedData:  make(map[string]string),
	}
}

// RecordMatch stores a normalized field value and the rule that won.
func (r *ParseResult) RecordMatch(field, value, rule string) {
	r.ParsedData[field] = value
	r.MatchedPatterns = append(r.MatchedPatterns, field+":"+rule)
}

// RecordFailure appends a "field:reason" audit entry without storing a
// value.
func (r *ParseResult) RecordFailure(field, reason string) {
	r.FailedPatterns = append(r.FailedPatterns, field+":"+reason)
}

// AddWarning appends a human-readable advisory.
func (r *ParseResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Finalize computes the confidence level from the matched/total ratio
// and stamps the parse duration.
func (r *ParseResult) Finalize(totalFields int, start time.Time) {
	ratio := 0.0
	if totalFields > 0 {
		ratio = float64(len(r.ParsedData)) / float64(totalFields)
	}
	r.Confidence = ConfidenceFromRatio(ratio)
	r.ParseTimeMS = time.Since(start).Milliseconds()
}
