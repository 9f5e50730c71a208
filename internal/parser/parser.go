// Package parser turns free-form LLM response text into confidence-
// scored structured financial data. It layers a priority pattern
// cascade, per-field validation, and cross-field consistency checks,
// and always returns a result — worst case is a failed confidence with
// an empty data map, never an error or a panic.
package parser

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketlens/marketlens-cli/internal/model"
	"github.com/marketlens/marketlens-cli/internal/patterns"
	"github.com/marketlens/marketlens-cli/internal/validate"
)

// Observer receives completed parse results, e.g. a metrics collector.
type Observer interface {
	ObserveParse(res *model.ParseResult)
}

// Parser extracts structured fields for all three data types. Safe for
// concurrent use: compiled cascades and validators are read-only after
// construction.
type Parser struct {
	log      *zap.Logger
	fields   map[model.DataType][]compiledField
	observer Observer
}

type compiledField struct {
	name     string
	rules    []patterns.CompiledRule
	validate validate.Func
}

// Option configures a Parser.
type Option func(*Parser)

// WithObserver registers a parse observer.
func WithObserver(o Observer) Option {
	return func(p *Parser) { p.observer = o }
}

// New compiles the pattern library against the validator set. The
// logger is injected rather than taken from a package global so tests
// and embedders control output.
func New(lib *patterns.Library, v *validate.Validator, log *zap.Logger, opts ...Option) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Parser{
		log:    log,
		fields: make(map[model.DataType][]compiledField, 3),
	}
	for _, dt := range model.AllDataTypes() {
		cascades := lib.ForType(dt)
		compiled := make([]compiledField, 0, len(cascades))
		for _, c := range cascades {
			compiled = append(compiled, compiledField{
				name:     c.Field,
				rules:    c.Compile(log),
				validate: v.ForField(c.Field),
			})
		}
		p.fields[dt] = compiled
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseSnapshot extracts the 9 stock snapshot fields.
func (p *Parser) ParseSnapshot(text, ticker string) *model.ParseResult {
	return p.parse(model.DataTypeSnapshot, text, ticker)
}

// ParseSupportResistance extracts the 6 S/R levels and checks their
// ordering relationships.
func (p *Parser) ParseSupportResistance(text, ticker string) *model.ParseResult {
	return p.parse(model.DataTypeSupportResistance, text, ticker)
}

// ParseTechnical extracts the 12 technical indicator fields.
func (p *Parser) ParseTechnical(text, ticker string) *model.ParseResult {
	return p.parse(model.DataTypeTechnical, text, ticker)
}

// ParseAny dispatches on the data type tag. An unknown tag is a
// programming error and returns an error rather than a failed result.
func (p *Parser) ParseAny(text string, dt model.DataType, ticker string) (*model.ParseResult, error) {
	switch dt {
	case model.DataTypeSnapshot:
		return p.ParseSnapshot(text, ticker), nil
	case model.DataTypeSupportResistance:
		return p.ParseSupportResistance(text, ticker), nil
	case model.DataTypeTechnical:
		return p.ParseTechnical(text, ticker), nil
	}
	return nil, eris.Errorf("parser: unknown data type %q", dt)
}

func (p *Parser) parse(dt model.DataType, text, ticker string) *model.ParseResult {
	start := time.Now()
	res := model.NewParseResult(dt, text)
	fields := p.fields[dt]

	for _, f := range fields {
		p.parseField(res, f, text)
	}

	if dt == model.DataTypeSupportResistance {
		checkLevelOrdering(res)
	}

	res.Finalize(len(fields), start)

	p.log.Debug("parse complete",
		zap.String("data_type", string(dt)),
		zap.String("ticker", ticker),
		zap.String("confidence", string(res.Confidence)),
		zap.Int("matched", len(res.ParsedData)),
		zap.Int("fields", len(fields)),
		zap.Int64("parse_time_ms", res.ParseTimeMS),
	)
	if p.observer != nil {
		p.observer.ObserveParse(res)
	}
	return res
}

// parseField extracts and validates one field. A failure in a single
// field is contained here: it becomes an audit entry or warning and the
// remaining fields still parse — partial data beats total failure.
func (p *Parser) parseField(res *model.ParseResult, f compiledField, text string) {
	defer func() {
		if r := recover(); r != nil {
			res.RecordFailure(f.name, "internal_error")
			res.AddWarning(fmt.Sprintf("%s: internal error during extraction: %v", f.name, r))
			p.log.Warn("parse: field recovered from panic",
				zap.String("field", f.name),
				zap.Any("panic", r),
			)
		}
	}()

	raw, rule, ok := ExtractFirst(text, f.rules)
	if !ok {
		res.RecordFailure(f.name, "no_match")
		return
	}
	if f.validate == nil {
		res.RecordFailure(f.name, "internal_error")
		res.AddWarning(fmt.Sprintf("%s: no validator registered", f.name))
		return
	}
	norm, err := f.validate(f.name, raw)
	if err != nil {
		// Found but rejected — distinct from "not found".
		res.RecordFailure(f.name, "validation_failed")
		res.AddWarning(err.Error())
		return
	}
	res.RecordMatch(f.name, norm, rule)
}

// checkLevelOrdering verifies S1 > S2 > S3, R1 < R2 < R3, and
// max(support) < min(resistance) over whichever levels were extracted.
// Violations are advisory: LLM-reported levels may be locally
// inconsistent yet still useful, so warnings never change confidence
// or remove data.
func checkLevelOrdering(res *model.ParseResult) {
	level := func(name string) (decimal.Decimal, bool) {
		s, ok := res.ParsedData[name]
		if !ok {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(s[1:]) // strip leading $
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	}

	checkOrder := func(names []string, descending bool) {
		var prev decimal.Decimal
		prevName := ""
		for _, name := range names {
			d, ok := level(name)
			if !ok {
				continue
			}
			if prevName != "" {
				violated := d.GreaterThanOrEqual(prev)
				if !descending {
					violated = d.LessThanOrEqual(prev)
				}
				if violated {
					dir := "descending"
					if !descending {
						dir = "ascending"
					}
					res.AddWarning(fmt.Sprintf("%s (%s) and %s (%s) are out of the expected %s order",
						prevName, res.ParsedData[prevName], name, res.ParsedData[name], dir))
				}
			}
			prev, prevName = d, name
		}
	}

	checkOrder([]string{"S1", "S2", "S3"}, true)
	checkOrder([]string{"R1", "R2", "R3"}, false)

	// Every support should sit below every resistance.
	var maxSupport, minResistance decimal.Decimal
	var maxSupportName, minResistanceName string
	for _, name := range []string{"S1", "S2", "S3"} {
		if d, ok := level(name); ok && (maxSupportName == "" || d.GreaterThan(maxSupport)) {
			maxSupport, maxSupportName = d, name
		}
	}
	for _, name := range []string{"R1", "R2", "R3"} {
		if d, ok := level(name); ok && (minResistanceName == "" || d.LessThan(minResistance)) {
			minResistance, minResistanceName = d, name
		}
	}
	if maxSupportName != "" && minResistanceName != "" && maxSupport.GreaterThanOrEqual(minResistance) {
		res.AddWarning(fmt.Sprintf("support %s (%s) is not below resistance %s (%s)",
			maxSupportName, res.ParsedData[maxSupportName],
			minResistanceName, res.ParsedData[minResistanceName]))
	}
}
