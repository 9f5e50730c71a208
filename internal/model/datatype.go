package model

import "github.com/rotisserie/eris"

// DataType identifies the shape of financial data being extracted.
type DataType string

const (
	DataTypeSnapshot          DataType = "snapshot"
	DataTypeSupportResistance DataType = "support_resistance"
	DataTypeTechnical         DataType = "technical"
)

// AllDataTypes returns all defined data types.
func AllDataTypes() []DataType {
	return []DataType{
		DataTypeSnapshot,
		DataTypeSupportResistance,
		DataTypeTechnical,
	}
}

// ParseDataType converts a raw tag into a DataType, rejecting unknown tags.
func ParseDataType(s string) (DataType, error) {
	switch DataType(s) {
	case DataTypeSnapshot, DataTypeSupportResistance, DataTypeTechnical:
		return DataType(s), nil
	}
	return "", eris.Errorf("model: unknown data type %q", s)
}

// ButtonType identifies which analysis button triggered a workflow cycle.
// Button types map 1:1 onto data types.
type ButtonType string

const (
	ButtonSnapshot          ButtonType = "snapshot"
	ButtonSupportResistance ButtonType = "support_resistance"
	ButtonTechnical         ButtonType = "technical"
)

// Valid reports whether b is one of the defined button types.
func (b ButtonType) Valid() bool {
	switch b {
	case ButtonSnapshot, ButtonSupportResistance, ButtonTechnical:
		return true
	}
	return false
}

// DataType returns the data type produced by this button.
func (b ButtonType) DataType() DataType {
	return DataType(b)
}

// SnapshotFields lists the 9 fields extracted for a stock snapshot, in
// display order.
var SnapshotFields = []string{
	"current_price",
	"percentage_change",
	"dollar_change",
	"volume",
	"vwap",
	"open",
	"high",
	"low",
	"close",
}

// SupportResistanceFields lists the 6 support/resistance levels, in
// display order. S levels descend below price, R levels ascend above.
var SupportResistanceFields = []string{
	"S1", "S2", "S3",
	"R1", "R2", "R3",
}

// TechnicalFields lists the 12 technical indicator fields, in display
// order.
var TechnicalFields = []string{
	"RSI",
	"MACD",
	"EMA_5", "EMA_10", "EMA_20", "EMA_50", "EMA_200",
	"SMA_5", "SMA_10", "SMA_20", "SMA_50", "SMA_200",
}

// FieldsFor returns the expected field set for a data type, in display
// order. Returns nil for an unknown type.
func FieldsFor(dt DataType) []string {
	switch dt {
	case DataTypeSnapshot:
		return SnapshotFields
	case DataTypeSupportResistance:
		return SupportResistanceFields
	case DataTypeTechnical:
		return TechnicalFields
	}
	return nil
}
