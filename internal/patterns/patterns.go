// Package patterns holds the per-field extraction rule cascades. Each
// field maps to an ordered list of rules; order encodes priority, with
// the most explicit phrasing first and looser fallbacks after it.
// Cascades are kept as slices, never maps, so priority is preserved.
package patterns

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/marketlens/marketlens-cli/internal/model"
)

// Rule is a single extraction pattern for one field. Expr must contain
// exactly one capture group holding the candidate value.
type Rule struct {
	Name            string `yaml:"name"`
	Expr            string `yaml:"pattern"`
	CaseInsensitive bool   `yaml:"case_insensitive"`
}

// FieldCascade pairs a field name with its ordered rule list.
type FieldCascade struct {
	Field string
	Rules []Rule
}

// CompiledRule is a rule whose expression has been compiled.
type CompiledRule struct {
	Name string
	Re   *regexp.Regexp
}

// Compile compiles every rule in the cascade, skipping rules whose
// expression does not compile. Built-in rules are covered by tests;
// the skip path exists for user overlay rules.
func (c FieldCascade) Compile(log *zap.Logger) []CompiledRule {
	out := make([]CompiledRule, 0, len(c.Rules))
	for _, r := range c.Rules {
		expr := r.Expr
		if r.CaseInsensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			log.Warn("patterns: rule does not compile, skipping",
				zap.String("field", c.Field),
				zap.String("rule", r.Name),
				zap.Error(err),
			)
			continue
		}
		out = append(out, CompiledRule{Name: r.Name, Re: re})
	}
	return out
}

// num matches a money-style number with optional thousands separators.
const num = `[\d,]+(?:\.\d+)?`

// volSuffix matches an optional share-count magnitude suffix, single
// letter or spelled out.
const volSuffix = `(?:\s*(?:[KMB]|thousand|million|billion))?`

// snapshotCascades covers the 9 stock snapshot fields.
var snapshotCascades = []FieldCascade{
	{
		Field: "current_price",
		Rules: []Rule{
			{Name: "labeled_current_price", Expr: `current\s+price\s*(?:is|:|of)?\s*\$?(` + num + `)`, CaseInsensitive: true},
			{Name: "trading_at", Expr: `(?:trading|trades|priced|closed)\s+at\s+\$?(` + num + `)`, CaseInsensitive: true},
			{Name: "price_of", Expr: `(?:stock|share)\s+price\s*(?:is|:|of)?\s*\$?(` + num + `)`, CaseInsensitive: true},
			{Name: "per_share", Expr: `\$(` + num + `)\s+per\s+share`, CaseInsensitive: true},
		},
	},
	{
		Field: "percentage_change",
		Rules: []Rule{
			{Name: "labeled_percentage_change", Expr: `percentage\s+change\s*(?:is|:|of)?\s*([+-]?\d+(?:\.\d+)?)\s*%`, CaseInsensitive: true},
			{Name: "change_percent", Expr: `change\s*(?:is|:|of)?\s*([+-]?\d+(?:\.\d+)?)\s*%`, CaseInsensitive: true},
			{Name: "signed_percent", Expr: `([+-]\d+(?:\.\d+)?)\s*%`},
			{Name: "direction_percent", Expr: `(?:up|down|gained|lost|rose|fell)\s+(?:by\s+)?(\d+(?:\.\d+)?)\s*%`, CaseInsensitive: true},
		},
	},
	{
		Field: "dollar_change",
		Rules: []Rule{
			{Name: "labeled_dollar_change", Expr: `dollar\s+change\s*(?:is|:|of)?\s*([+-]?\$?` + num + `)`, CaseInsensitive: true},
			{Name: "change_of_dollars", Expr: `change\s+of\s+([+-]?\$` + num + `)`, CaseInsensitive: true},
			{Name: "signed_dollar", Expr: `([+-]\$` + num + `)`},
		},
	},
	{
		Field: "volume",
		Rules: []Rule{
			{Name: "labeled_volume", Expr: `(?:trading\s+)?volume\s*(?:is|:|of|was)?\s*(` + num + volSuffix + `)\b`, CaseInsensitive: true},
			{Name: "shares_traded", Expr: `(` + num + volSuffix + `)\s+shares(?:\s+traded)?`, CaseInsensitive: true},
		},
	},
	{
		Field: "vwap",
		Rules: []Rule{
			{Name: "labeled_vwap", Expr: `vwap\s*(?:is|:|of|at)?\s*\$?(` + num + `)`, CaseInsensitive: true},
			{Name: "volume_weighted", Expr: `volume[\s-]weighted\s+average\s+price\s*(?:is|:|of|at)?\s*\$?(` + num + `)`, CaseInsensitive: true},
		},
	},
	{
		Field: "open",
		Rules: []Rule{
			{Name: "labeled_open", Expr: `\bopen(?:ing)?\b(?:\s+price)?\s*(?:is|:|of|at)?\s*\$?(` + num + `)`, CaseInsensitive: true},
			{Name: "opened_at", Expr: `\bopened\s+at\s+\$?(` + num + `)`, CaseInsensitive: true},
		},
	},
	{
		Field: "high",
		Rules: []Rule{
			{Name: "labeled_high", Expr: `(?:day'?s?\s+|intraday\s+)?\bhigh\b\s*(?:price)?\s*(?:is|:|of|at)?\s*\$?(` + num + `)`, CaseInsensitive: true},
		},
	},
	{
		Field: "low",
		Rules: []Rule{
			{Name: "labeled_low", Expr: `(?:day'?s?\s+|intraday\s+)?\blow\b\s*(?:price)?\s*(?:is|:|of|at)?\s*\$?(` + num + `)`, CaseInsensitive: true},
		},
	},
	{
		Field: "close",
		Rules: []Rule{
			{Name: "labeled_close", Expr: `(?:previous\s+|prior\s+)?\bclos(?:e|ing)\b(?:\s+price)?\s*(?:is|:|of|at)?\s*\$?(` + num + `)`, CaseInsensitive: true},
		},
	},
}

// srLevelRules builds the cascade for one support or resistance level.
// kind is "support" or "resistance", label is e.g. "S1", ordinal is
// the spelled-out position ("first", "second", "third").
func srLevelRules(label, kind, ordinal string) []Rule {
	return []Rule{
		{Name: "labeled_" + label, Expr: label + `\s*(?:level)?\s*(?:is|:|=|at|near)?\s*\$?(` + num + `)`, CaseInsensitive: true},
		{Name: kind + "_numbered", Expr: kind + `\s*(?:level\s*)?` + label[1:] + `\s*(?:is|:|=|at|near)?\s*\$?(` + num + `)`, CaseInsensitive: true},
		{Name: ordinal + "_" + kind, Expr: ordinal + `\s+` + kind + `\s*(?:level)?\s*(?:is|:|=|at|near)?\s*\$?(` + num + `)`, CaseInsensitive: true},
	}
}

var supportResistanceCascades = []FieldCascade{
	{Field: "S1", Rules: srLevelRules("S1", "support", "first")},
	{Field: "S2", Rules: srLevelRules("S2", "support", "second")},
	{Field: "S3", Rules: srLevelRules("S3", "support", "third")},
	{Field: "R1", Rules: srLevelRules("R1", "resistance", "first")},
	{Field: "R2", Rules: srLevelRules("R2", "resistance", "second")},
	{Field: "R3", Rules: srLevelRules("R3", "resistance", "third")},
}

// maRules builds the cascade for a moving average field. kind is "EMA"
// or "SMA", period the window length. The trailing \b keeps EMA_5 from
// matching the prefix of EMA_50.
func maRules(kind, period string) []Rule {
	spelled := map[string]string{"EMA": "exponential\\s+moving\\s+average", "SMA": "simple\\s+moving\\s+average"}[kind]
	return []Rule{
		{Name: "labeled_" + kind + "_" + period, Expr: kind + `[\s_-]?` + period + `\b\s*(?:is|:|=|at)?\s*\$?(` + num + `)`, CaseInsensitive: true},
		{Name: "period_" + kind + "_" + period, Expr: period + `[\s-]?(?:day|period)\s+` + kind + `\s*(?:is|:|=|at)?\s*\$?(` + num + `)`, CaseInsensitive: true},
		{Name: "spelled_" + kind + "_" + period, Expr: period + `[\s-]?(?:day|period)\s+` + spelled + `\s*(?:is|:|=|at)?\s*\$?(` + num + `)`, CaseInsensitive: true},
	}
}

var technicalCascades = []FieldCascade{
	{
		Field: "RSI",
		Rules: []Rule{
			{Name: "labeled_rsi", Expr: `RSI\s*(?:\(\s*14\s*\))?\s*(?:is|:|=|at|of)?\s*(\d+(?:\.\d+)?)`, CaseInsensitive: true},
			{Name: "spelled_rsi", Expr: `relative\s+strength\s+index\s*(?:\(\s*14\s*\))?\s*(?:is|:|=|at|of)?\s*(\d+(?:\.\d+)?)`, CaseInsensitive: true},
		},
	},
	{
		Field: "MACD",
		Rules: []Rule{
			{Name: "labeled_macd", Expr: `MACD(?:\s+line)?\s*(?:is|:|=|at|of)?\s*([+-]?\d+(?:\.\d+)?)`, CaseInsensitive: true},
			{Name: "spelled_macd", Expr: `moving\s+average\s+convergence[\s/-]*divergence\s*(?:is|:|=|at|of)?\s*([+-]?\d+(?:\.\d+)?)`, CaseInsensitive: true},
		},
	},
	{Field: "EMA_5", Rules: maRules("EMA", "5")},
	{Field: "EMA_10", Rules: maRules("EMA", "10")},
	{Field: "EMA_20", Rules: maRules("EMA", "20")},
	{Field: "EMA_50", Rules: maRules("EMA", "50")},
	{Field: "EMA_200", Rules: maRules("EMA", "200")},
	{Field: "SMA_5", Rules: maRules("SMA", "5")},
	{Field: "SMA_10", Rules: maRules("SMA", "10")},
	{Field: "SMA_20", Rules: maRules("SMA", "20")},
	{Field: "SMA_50", Rules: maRules("SMA", "50")},
	{Field: "SMA_200", Rules: maRules("SMA", "200")},
}

// Library is a full set of cascades for all data types. The zero value
// is not usable; construct with Default or Default().WithOverlay.
type Library struct {
	byType map[model.DataType][]FieldCascade
}

// Default returns the built-in pattern library.
func Default() *Library {
	return &Library{
		byType: map[model.DataType][]FieldCascade{
			model.DataTypeSnapshot:          snapshotCascades,
			model.DataTypeSupportResistance: supportResistanceCascades,
			model.DataTypeTechnical:         technicalCascades,
		},
	}
}

// ForType returns the ordered field cascades for one data type, or nil
// for an unknown type.
func (l *Library) ForType(dt model.DataType) []FieldCascade {
	return l.byType[dt]
}
