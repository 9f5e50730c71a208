package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfidenceFromRatio(t *testing.T) {
	tests := []struct {
		ratio float64
		want  Confidence
	}{
		{1.0, ConfidenceHigh},
		{0.8, ConfidenceHigh},
		{0.79, ConfidenceMedium},
		{0.5, ConfidenceMedium},
		{0.49, ConfidenceLow},
		{0.01, ConfidenceLow},
		{0.0, ConfidenceFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConfidenceFromRatio(tt.ratio), "ratio %v", tt.ratio)
	}
}

func TestConfidenceAtLeast(t *testing.T) {
	assert.True(t, ConfidenceHigh.AtLeast(ConfidenceMedium))
	assert.True(t, ConfidenceMedium.AtLeast(ConfidenceMedium))
	assert.False(t, ConfidenceLow.AtLeast(ConfidenceMedium))
	assert.True(t, ConfidenceLow.AtLeast(ConfidenceFailed))
}

func TestParseResultRecordAndFinalize(t *testing.T) {
	r := NewParseResult(DataTypeSnapshot, "Current price: $150.25")
	r.RecordMatch("current_price", "$150.25", "labeled_current_price")
	r.RecordFailure("volume", "no_match")
	r.AddWarning("vwap: value rejected")

	start := time.Now()
	r.Finalize(len(SnapshotFields), start)

	assert.Equal(t, "$150.25", r.ParsedData["current_price"])
	assert.Equal(t, []string{"current_price:labeled_current_price"}, r.MatchedPatterns)
	assert.Equal(t, []string{"volume:no_match"}, r.FailedPatterns)
	assert.Equal(t, ConfidenceLow, r.Confidence) // 1/9 matched
	assert.GreaterOrEqual(t, r.ParseTimeMS, int64(0))
}

func TestParseResultFinalizeEmpty(t *testing.T) {
	r := NewParseResult(DataTypeTechnical, "")
	r.Finalize(len(TechnicalFields), time.Now())
	assert.Equal(t, ConfidenceFailed, r.Confidence)
	assert.Empty(t, r.ParsedData)
}
