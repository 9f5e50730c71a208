package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketlens/marketlens-cli/internal/model"
)

func TestBuiltinCascadesCoverAllFields(t *testing.T) {
	lib := Default()
	for _, dt := range model.AllDataTypes() {
		cascades := lib.ForType(dt)
		require.Len(t, cascades, len(model.FieldsFor(dt)), "data type %s", dt)
		for i, field := range model.FieldsFor(dt) {
			assert.Equal(t, field, cascades[i].Field, "field order for %s", dt)
			assert.NotEmpty(t, cascades[i].Rules, "field %s has no rules", field)
		}
	}
}

func TestBuiltinRulesCompile(t *testing.T) {
	lib := Default()
	log := zap.NewNop()
	for _, dt := range model.AllDataTypes() {
		for _, c := range lib.ForType(dt) {
			compiled := c.Compile(log)
			require.Len(t, compiled, len(c.Rules), "field %s: rule failed to compile", c.Field)
			for _, cr := range compiled {
				// Every rule must expose exactly one capture group.
				assert.Equal(t, 1, cr.Re.NumSubexp(), "field %s rule %s", c.Field, cr.Name)
			}
		}
	}
}

func TestMovingAverageBoundaries(t *testing.T) {
	lib := Default()
	log := zap.NewNop()
	var ema5 []CompiledRule
	for _, c := range lib.ForType(model.DataTypeTechnical) {
		if c.Field == "EMA_5" {
			ema5 = c.Compile(log)
		}
	}
	require.NotEmpty(t, ema5)

	// EMA_5 rules must not fire on an EMA 50 mention.
	for _, cr := range ema5 {
		assert.Nil(t, cr.Re.FindStringSubmatch("EMA 50: $148.00"), "rule %s matched EMA 50", cr.Name)
	}
	assert.NotNil(t, ema5[0].Re.FindStringSubmatch("EMA 5: $151.20"))
}

func TestSnapshotKeywordBoundaries(t *testing.T) {
	lib := Default()
	log := zap.NewNop()
	compiled := map[string][]CompiledRule{}
	for _, c := range lib.ForType(model.DataTypeSnapshot) {
		compiled[c.Field] = c.Compile(log)
	}

	// Keywords embedded inside longer words must not produce matches:
	// "below" is not a day low, "higher" not a day high.
	misses := map[string]string{
		"low":   "The stock may drop below $140.00 if support fails.",
		"high":  "Momentum could push it higher: $160.00 is in reach.",
		"open":  "The position was reopened at $150.00.",
		"close": "Before disclosing: $5.00 in fees apply.",
	}
	for field, text := range misses {
		for _, cr := range compiled[field] {
			assert.Nil(t, cr.Re.FindStringSubmatch(text), "field %s rule %s matched %q", field, cr.Name, text)
		}
	}

	// The anchored forms still fire on real labels.
	hits := map[string]string{
		"low":   "Day's low: $147.50",
		"high":  "Intraday high at $152.30",
		"open":  "Open: $148.00",
		"close": "Previous close: $146.50",
	}
	for field, text := range hits {
		var matched bool
		for _, cr := range compiled[field] {
			if cr.Re.FindStringSubmatch(text) != nil {
				matched = true
			}
		}
		assert.True(t, matched, "field %s missed %q", field, text)
	}
}

func TestVolumeSpelledSuffixCapture(t *testing.T) {
	lib := Default()
	log := zap.NewNop()
	var rules []CompiledRule
	for _, c := range lib.ForType(model.DataTypeSnapshot) {
		if c.Field == "volume" {
			rules = c.Compile(log)
		}
	}
	require.NotEmpty(t, rules)

	m := rules[0].Re.FindStringSubmatch("Volume was 45.2 million shares")
	require.NotNil(t, m)
	assert.Equal(t, "45.2 million", m[1])

	m = rules[0].Re.FindStringSubmatch("Trading volume: 45,234,123 shares")
	require.NotNil(t, m)
	assert.Equal(t, "45,234,123", m[1])
}

func TestUnknownTypeReturnsNil(t *testing.T) {
	assert.Nil(t, Default().ForType(model.DataType("bogus")))
}

func TestCompileSkipsBadRule(t *testing.T) {
	c := FieldCascade{
		Field: "current_price",
		Rules: []Rule{
			{Name: "broken", Expr: `(unclosed`},
			{Name: "ok", Expr: `price:\s*(\d+)`},
		},
	}
	compiled := c.Compile(zap.NewNop())
	require.Len(t, compiled, 1)
	assert.Equal(t, "ok", compiled[0].Name)
}
