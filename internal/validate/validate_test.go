package validate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens/marketlens-cli/internal/model"
)

func TestPrice(t *testing.T) {
	v := New(DefaultLimits())

	tests := []struct {
		raw  string
		want string
	}{
		{"150.25", "$150.25"},
		{"$150.25", "$150.25"},
		{"1,234.5", "$1234.50"},
		{"150", "$150.00"},
		{"0", "$0.00"},
	}
	for _, tt := range tests {
		got, err := v.Price("current_price", tt.raw)
		require.NoError(t, err, "raw %q", tt.raw)
		assert.Equal(t, tt.want, got)
	}

	for _, raw := range []string{"", "abc", "-5.00", "2000000"} {
		_, err := v.Price("current_price", raw)
		assert.Error(t, err, "raw %q", raw)
	}
}

func TestPriceRoundTrip(t *testing.T) {
	// Valid two-decimal numeric strings normalize to $<same value>.
	for _, s := range []string{"0.01", "19.99", "150.25", "999.00"} {
		got, err := v2().Price("close", s)
		require.NoError(t, err)
		assert.Equal(t, "$"+s, got)
	}
}

func v2() *Validator { return New(DefaultLimits()) }

func TestPercentage(t *testing.T) {
	v := New(DefaultLimits())

	tests := []struct {
		raw  string
		want string
	}{
		{"2.5", "+2.50%"},
		{"+2.5%", "+2.50%"},
		{"-3.25", "-3.25%"},
		{"0", "+0.00%"},
		{"50", "+50.00%"},
	}
	for _, tt := range tests {
		got, err := v.Percentage("percentage_change", tt.raw)
		require.NoError(t, err, "raw %q", tt.raw)
		assert.Equal(t, tt.want, got)
	}

	_, err := v.Percentage("percentage_change", "51")
	assert.Error(t, err)
	_, err = v.Percentage("percentage_change", "-80.5")
	assert.Error(t, err)
	_, err = v.Percentage("percentage_change", "n/a")
	assert.Error(t, err)
}

func TestDollarChange(t *testing.T) {
	v := New(DefaultLimits())

	tests := []struct {
		raw  string
		want string
	}{
		{"2.50", "+$2.50"},
		{"+$2.50", "+$2.50"},
		{"-$1.75", "-$1.75"},
		{"-1.75", "-$1.75"},
	}
	for _, tt := range tests {
		got, err := v.DollarChange("dollar_change", tt.raw)
		require.NoError(t, err, "raw %q", tt.raw)
		assert.Equal(t, tt.want, got)
	}

	_, err := v.DollarChange("dollar_change", "--")
	assert.Error(t, err)
}

func TestVolumeSuffixExpansion(t *testing.T) {
	v := New(DefaultLimits())

	tests := []struct {
		raw  string
		want string
	}{
		{"2.3K", "2,300"},
		{"1.5B", "1,500,000,000"},
		{"12M", "12,000,000"},
		{"1,000,000", "1,000,000"},
		{"4500", "4,500"},
		{"2.3 k", "2,300"},
		{"45.2 million", "45,200,000"},
		{"1.5 Billion", "1,500,000,000"},
		{"120 thousand", "120,000"},
	}
	for _, tt := range tests {
		got, err := v.Volume("volume", tt.raw)
		require.NoError(t, err, "raw %q", tt.raw)
		assert.Equal(t, tt.want, got)
	}

	_, err := v.Volume("volume", "-100")
	assert.Error(t, err)
	_, err = v.Volume("volume", "lots")
	assert.Error(t, err)
	// A fractional count with no magnitude suffix is not a share count.
	_, err = v.Volume("volume", "45.2")
	assert.Error(t, err)
}

func TestRSIBounds(t *testing.T) {
	v := New(DefaultLimits())

	got, err := v.RSI("RSI", "0")
	require.NoError(t, err)
	assert.Equal(t, "0.00", got)

	got, err = v.RSI("RSI", "100")
	require.NoError(t, err)
	assert.Equal(t, "100.00", got)

	got, err = v.RSI("RSI", "65.4")
	require.NoError(t, err)
	assert.Equal(t, "65.40", got)

	_, err = v.RSI("RSI", "101")
	assert.Error(t, err)
	_, err = v.RSI("RSI", "-1")
	assert.Error(t, err)
}

func TestMACD(t *testing.T) {
	v := New(DefaultLimits())

	got, err := v.MACD("MACD", "1.25")
	require.NoError(t, err)
	assert.Equal(t, "+1.2500", got)

	got, err = v.MACD("MACD", "-0.5")
	require.NoError(t, err)
	assert.Equal(t, "-0.5000", got)

	_, err = v.MACD("MACD", "flat")
	assert.Error(t, err)
}

func TestErrorMessageNamesField(t *testing.T) {
	v := New(DefaultLimits())
	_, err := v.RSI("RSI", "250")
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "RSI", verr.Field)
	assert.Contains(t, verr.Error(), "250")
}

func TestForFieldCoversAllKnownFields(t *testing.T) {
	v := New(DefaultLimits())
	for _, dt := range model.AllDataTypes() {
		for _, field := range model.FieldsFor(dt) {
			assert.NotNil(t, v.ForField(field), "field %s", field)
		}
	}
	assert.Nil(t, v.ForField("pe_ratio"))
}

func TestConfiguredCeilings(t *testing.T) {
	v := New(Limits{MaxPrice: 100, MaxPercent: 10})

	_, err := v.Price("current_price", "150.00")
	assert.Error(t, err)
	_, err = v.Percentage("percentage_change", "12")
	assert.Error(t, err)

	got, err := v.Price("current_price", "99.99")
	require.NoError(t, err)
	assert.Equal(t, "$99.99", got)
}

func ExampleValidator_Volume() {
	v := New(DefaultLimits())
	out, _ := v.Volume("volume", "2.3K")
	fmt.Println(out)
	// Output: 2,300
}
