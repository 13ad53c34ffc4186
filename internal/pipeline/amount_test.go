package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberFormat_Parse(t *testing.T) {
	tests := []struct {
		name     string
		format   numberFormat
		in       string
		expected string
	}{
		{name: "plain", format: numberFormat{decimalSep: "."}, in: "1234.5", expected: "1234.5"},
		{name: "grouped dot decimal", format: numberFormat{decimalSep: ".", thousandsSep: ","}, in: "1,234.50", expected: "1234.5"},
		{name: "grouped comma decimal", format: numberFormat{decimalSep: ",", thousandsSep: "."}, in: "1.234.567,89", expected: "1234567.89"},
		{name: "space grouping", format: numberFormat{decimalSep: ",", thousandsSep: " "}, in: "12 345,00", expected: "12345"},
		{name: "apostrophe grouping", format: numberFormat{decimalSep: ".", thousandsSep: "'"}, in: "1'000.25", expected: "1000.25"},
		{name: "currency symbol", format: numberFormat{decimalSep: ".", thousandsSep: ","}, in: "$ 1,000.00", expected: "1000"},
		{name: "leading sign kept", format: numberFormat{decimalSep: "."}, in: "-3.10", expected: "-3.1"},
		{name: "fraction only", format: numberFormat{decimalSep: "."}, in: ".75", expected: "0.75"},
		{name: "ungrouped with grouping configured", format: numberFormat{decimalSep: ".", thousandsSep: ","}, in: "1234.50", expected: "1234.5"},
		{name: "local prefix", format: numberFormat{decimalSep: ".", thousandsSep: ","}, in: "RM10.00", expected: "10"},
		{name: "negative local prefix", format: numberFormat{decimalSep: ".", thousandsSep: ","}, in: "-RM1,250.00", expected: "-1250"},
		{name: "sign after prefix", format: numberFormat{decimalSep: "."}, in: "RM-5.50", expected: "-5.5"},
		{name: "trailing iso code", format: numberFormat{decimalSep: ",", thousandsSep: " "}, in: "1 234,50 EUR", expected: "1234.5"},
		{name: "leading iso code", format: numberFormat{decimalSep: ".", thousandsSep: ","}, in: "MYR 99.90", expected: "99.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.format.parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v.String())
		})
	}
}

func TestNumberFormat_ParseRejects(t *testing.T) {
	tests := []struct {
		name   string
		format numberFormat
		in     string
	}{
		{name: "letters", format: numberFormat{decimalSep: "."}, in: "abc"},
		{name: "empty after symbols", format: numberFormat{decimalSep: "."}, in: "€"},
		{name: "other locale", format: numberFormat{decimalSep: ".", thousandsSep: ","}, in: "1.234,50"},
		{name: "bad grouping", format: numberFormat{decimalSep: ".", thousandsSep: ","}, in: "12,34.00"},
		{name: "leading group too long", format: numberFormat{decimalSep: ".", thousandsSep: ","}, in: "1234,567"},
		{name: "grouping disabled", format: numberFormat{decimalSep: "."}, in: "1,234"},
		{name: "trailing decimal", format: numberFormat{decimalSep: "."}, in: "12."},
		{name: "two decimals", format: numberFormat{decimalSep: "."}, in: "1.2.3"},
		{name: "long word prefix", format: numberFormat{decimalSep: "."}, in: "Total10.00"},
		{name: "letters inside number", format: numberFormat{decimalSep: "."}, in: "1O.00"},
		{name: "code only", format: numberFormat{decimalSep: "."}, in: "USD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.format.parse(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestIsBlankAmount(t *testing.T) {
	for _, s := range []string{"", "0", "0.00", "0,00", "-", " - "} {
		assert.True(t, isBlankAmount(s), s)
	}
	for _, s := range []string{"1", "0.01", "abc"} {
		assert.False(t, isBlankAmount(s), s)
	}
}
