package wallet

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"-2.5", "-2.500000"},
		{"0", "0.000000"},
		{"5", "5.000000"},
		{"1234567.1234567", "1234567.123457"},
		{"0.0000001", "0.000000"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d := decimal.RequireFromString(tt.in)
			got := FormatAmount(d)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, got, FormatAmount(d))

			parts := strings.Split(got, ".")
			require.Len(t, parts, 2)
			assert.Len(t, parts[1], AmountPlaces)
		})
	}
}

func TestFormatSignedAmount(t *testing.T) {
	assert.Equal(t, "+5.000000", FormatSignedAmount(decimal.NewFromInt(5)))
	assert.Equal(t, "-2.500000", FormatSignedAmount(decimal.RequireFromString("-2.5")))
	assert.Equal(t, "0.000000", FormatSignedAmount(decimal.Zero))
}

func TestFormatter_Balance(t *testing.T) {
	us := NewFormatter("en-US", nil, nil)
	assert.Equal(t, "1,234.50", us.Balance(decimal.RequireFromString("1234.5")))
	assert.Equal(t, "0.00", us.Balance(decimal.Zero))
	assert.Equal(t, "-3.13", us.Balance(decimal.RequireFromString("-3.125")))

	de := NewFormatter("de-DE", nil, nil)
	assert.Equal(t, "1.234,50", de.Balance(decimal.RequireFromString("1234.5")))
}

func TestFormatter_BalanceBeyondFloatPrecision(t *testing.T) {
	us := NewFormatter("en-US", nil, nil)
	assert.Equal(t, "90,071,992,547,409.93", us.Balance(decimal.RequireFromString("90071992547409.93")))
	assert.Equal(t, "1,234,567,890,123,456.78", us.Balance(decimal.RequireFromString("1234567890123456.78")))
	assert.Equal(t, "-98,765,432,109,876,543,210.01", us.Balance(decimal.RequireFromString("-98765432109876543210.005")))
	assert.Equal(t, "100.00", us.Balance(decimal.RequireFromString("99.999")))
	assert.Equal(t, "0.00", us.Balance(decimal.RequireFromString("-0.001")))

	de := NewFormatter("de-DE", nil, nil)
	assert.Equal(t, "1.234.567.890.123.456,78", de.Balance(decimal.RequireFromString("1234567890123456.78")))
}

func TestFormatter_BalanceIdempotent(t *testing.T) {
	f := NewFormatter("en-US", nil, nil)
	for _, s := range []string{"0", "1", "999.999", "1000000", "-42.4242"} {
		d := decimal.RequireFromString(s)
		first := f.Balance(d)
		assert.Equal(t, first, f.Balance(d))
		idx := strings.LastIndex(first, ".")
		require.NotEqual(t, -1, idx, "balance %q has no fraction", first)
		assert.Len(t, first[idx+1:], BalancePlaces)
	}
}

func TestFormatter_Dates(t *testing.T) {
	iso := "2024-01-01T15:30:00Z"

	us := NewFormatter("en-US", nil, nil)
	assert.Equal(t, "January 1, 2024 at 3:30 PM", us.LongDate(iso))
	assert.Equal(t, "Jan 1, 2024", us.ShortDate(iso))

	gb := NewFormatter("en-GB", nil, nil)
	assert.Equal(t, "1 January 2024 at 15:30", gb.LongDate(iso))
	assert.Equal(t, "1 Jan 2024", gb.ShortDate(iso))

	fr := NewFormatter("fr-FR", nil, nil)
	assert.Equal(t, "2024-01-01 15:30", fr.LongDate(iso))
	assert.Equal(t, "2024-01-01", fr.ShortDate(iso))
}

func TestFormatter_DatesInLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	f := NewFormatter("en-US", loc, nil)
	assert.Equal(t, "Dec 31, 2023", f.ShortDate("2024-01-01T02:00:00Z"))
}

func TestFormatter_MalformedDate(t *testing.T) {
	f := NewFormatter("en-US", nil, nil)
	assert.Equal(t, UnknownDate, f.LongDate("not a date"))
	assert.Equal(t, UnknownDate, f.ShortDate(""))
	assert.Equal(t, UnknownDate, f.LongTime(time.Time{}))
	assert.Equal(t, UnknownDate, f.ShortTime(time.Time{}))
}

func TestFormatter_InvalidLocaleFallsBack(t *testing.T) {
	f := NewFormatter("!!", nil, nil)
	assert.Equal(t, "en-US", f.Locale())
	assert.Equal(t, "Jan 1, 2024", f.ShortDate("2024-01-01T00:00:00Z"))
}
