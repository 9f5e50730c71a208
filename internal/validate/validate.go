// Package validate normalizes raw matched strings into canonical
// display values. Validators are pure: they return (normalized, error)
// and never panic, so downstream consumers never re-parse values.
package validate

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Error describes a rejected candidate value. The value was found by
// the pattern cascade but failed range or format rules — distinct from
// "not found".
type Error struct {
	Field  string
	Raw    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: value %q rejected: %s", e.Field, e.Raw, e.Reason)
}

// Limits holds the sanity ceilings applied to extracted values. They
// guard against both malformed tokens and hallucinated magnitudes.
type Limits struct {
	// MaxPrice is the ceiling for any price-like field, in dollars.
	MaxPrice float64
	// MaxPercent is the ceiling for the absolute value of a
	// percentage change.
	MaxPercent float64
}

// DefaultLimits returns the standard ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxPrice:   1_000_000,
		MaxPercent: 50,
	}
}

// Func validates and normalizes one raw value for one field.
type Func func(field, raw string) (string, error)

// Validator holds configured limits and a shared number printer.
type Validator struct {
	limits  Limits
	printer *message.Printer
}

// New returns a Validator with the given limits. Zero limits fall back
// to the defaults.
func New(limits Limits) *Validator {
	def := DefaultLimits()
	if limits.MaxPrice <= 0 {
		limits.MaxPrice = def.MaxPrice
	}
	if limits.MaxPercent <= 0 {
		limits.MaxPercent = def.MaxPercent
	}
	return &Validator{
		limits:  limits,
		printer: message.NewPrinter(language.English),
	}
}

// parseDecimal strips money punctuation and parses the remainder.
func parseDecimal(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "+")
	return decimal.NewFromString(s)
}

// Price normalizes a price-like value to "$X.XX". Rejects non-numeric,
// negative, and implausibly large values.
func (v *Validator) Price(field, raw string) (string, error) {
	d, err := parseDecimal(raw)
	if err != nil {
		return "", &Error{Field: field, Raw: raw, Reason: "not a number"}
	}
	if d.IsNegative() {
		return "", &Error{Field: field, Raw: raw, Reason: "negative price"}
	}
	if d.GreaterThan(decimal.NewFromFloat(v.limits.MaxPrice)) {
		return "", &Error{Field: field, Raw: raw, Reason: fmt.Sprintf("above ceiling $%.0f", v.limits.MaxPrice)}
	}
	return "$" + d.StringFixed(2), nil
}

// Percentage normalizes a percentage change to an explicit-sign
// "+X.XX%" / "-X.XX%". Rejects values whose magnitude exceeds the
// sanity ceiling.
func (v *Validator) Percentage(field, raw string) (string, error) {
	s := strings.TrimSuffix(strings.TrimSpace(raw), "%")
	d, err := parseDecimal(s)
	if err != nil {
		return "", &Error{Field: field, Raw: raw, Reason: "not a number"}
	}
	if d.Abs().GreaterThan(decimal.NewFromFloat(v.limits.MaxPercent)) {
		return "", &Error{Field: field, Raw: raw, Reason: fmt.Sprintf("magnitude above %.0f%%", v.limits.MaxPercent)}
	}
	return signedFixed(d, 2) + "%", nil
}

// DollarChange normalizes a dollar change to explicit-sign "+$X.XX" /
// "-$X.XX".
func (v *Validator) DollarChange(field, raw string) (string, error) {
	s := strings.TrimSpace(raw)
	negative := strings.HasPrefix(s, "-")
	d, err := parseDecimal(strings.TrimPrefix(s, "-"))
	if err != nil {
		return "", &Error{Field: field, Raw: raw, Reason: "not a number"}
	}
	if negative {
		d = d.Neg()
	}
	if d.Abs().GreaterThan(decimal.NewFromFloat(v.limits.MaxPrice)) {
		return "", &Error{Field: field, Raw: raw, Reason: fmt.Sprintf("magnitude above $%.0f", v.limits.MaxPrice)}
	}
	sign := "+"
	if d.IsNegative() {
		sign = "-"
	}
	return sign + "$" + d.Abs().StringFixed(2), nil
}

// volumeMultipliers expands share-count magnitude suffixes, spelled-out
// forms before their single-letter abbreviations.
var volumeMultipliers = []struct {
	suffix string
	mult   int64
}{
	{"THOUSAND", 1_000},
	{"MILLION", 1_000_000},
	{"BILLION", 1_000_000_000},
	{"K", 1_000},
	{"M", 1_000_000},
	{"B", 1_000_000_000},
}

// Volume normalizes a share volume to a thousands-separated integer,
// expanding K/M/B and spelled-out suffixes. Rejects negative values and
// fractional counts that carry no suffix: "45.2 million" is 45,200,000
// shares, but a bare "45.2" is not a share count.
func (v *Validator) Volume(field, raw string) (string, error) {
	s := strings.TrimSpace(raw)
	upper := strings.ToUpper(s)
	mult := int64(1)
	for _, vm := range volumeMultipliers {
		if strings.HasSuffix(upper, vm.suffix) {
			mult = vm.mult
			s = strings.TrimSpace(s[:len(s)-len(vm.suffix)])
			break
		}
	}
	d, err := parseDecimal(s)
	if err != nil {
		return "", &Error{Field: field, Raw: raw, Reason: "not a number"}
	}
	if d.IsNegative() {
		return "", &Error{Field: field, Raw: raw, Reason: "negative volume"}
	}
	if mult == 1 && !d.IsInteger() {
		return "", &Error{Field: field, Raw: raw, Reason: "fractional share count"}
	}
	shares := d.Mul(decimal.NewFromInt(mult)).Round(0)
	return v.printer.Sprintf("%d", shares.IntPart()), nil
}

// RSI validates a relative strength index reading, which must lie in
// [0, 100].
func (v *Validator) RSI(field, raw string) (string, error) {
	d, err := parseDecimal(raw)
	if err != nil {
		return "", &Error{Field: field, Raw: raw, Reason: "not a number"}
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return "", &Error{Field: field, Raw: raw, Reason: "outside [0, 100]"}
	}
	return d.StringFixed(2), nil
}

// MACD accepts any finite number and formats it to fixed precision
// with an explicit sign.
func (v *Validator) MACD(field, raw string) (string, error) {
	s := strings.TrimSpace(raw)
	negative := strings.HasPrefix(s, "-")
	d, err := parseDecimal(strings.TrimPrefix(s, "-"))
	if err != nil {
		return "", &Error{Field: field, Raw: raw, Reason: "not a number"}
	}
	if negative {
		d = d.Neg()
	}
	return signedFixed(d, 4), nil
}

// ForField returns the validator for a field name, or nil for an
// unknown field. Moving averages, OHLC, VWAP, and S/R levels all share
// the price rules.
func (v *Validator) ForField(field string) Func {
	switch field {
	case "percentage_change":
		return v.Percentage
	case "dollar_change":
		return v.DollarChange
	case "volume":
		return v.Volume
	case "RSI":
		return v.RSI
	case "MACD":
		return v.MACD
	}
	switch {
	case field == "current_price" || field == "vwap" ||
		field == "open" || field == "high" || field == "low" || field == "close":
		return v.Price
	case len(field) == 2 && (field[0] == 'S' || field[0] == 'R'):
		return v.Price
	case strings.HasPrefix(field, "EMA_") || strings.HasPrefix(field, "SMA_"):
		return v.Price
	}
	return nil
}

// signedFixed renders d with an explicit leading sign at the given
// precision.
func signedFixed(d decimal.Decimal, places int32) string {
	if d.IsNegative() {
		return d.StringFixed(places)
	}
	return "+" + d.StringFixed(places)
}
