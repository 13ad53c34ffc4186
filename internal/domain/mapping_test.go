package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestColumnLocator_JSON(t *testing.T) {
	var m ColumnMapping
	require.NoError(t, json.Unmarshal([]byte(`{"date":0,"amount":"Amount","notes":null}`), &m))

	assert.Equal(t, ColumnIndex(0), m[FieldDate])
	assert.Equal(t, ColumnHeader("Amount"), m[FieldAmount])
	assert.True(t, m[FieldNotes].IsZero())

	out, err := json.Marshal(ColumnMapping{FieldDate: ColumnIndex(3), FieldAmount: ColumnHeader("Amt")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":3,"amount":"Amt"}`, string(out))

	var bad ColumnLocator
	assert.Error(t, json.Unmarshal([]byte(`{"index":1}`), &bad))
}

func TestColumnLocator_YAML(t *testing.T) {
	var m ColumnMapping
	src := "date: 0\namount: Amount\nnotes: ~\ncategory: \"7\"\n"
	require.NoError(t, yaml.Unmarshal([]byte(src), &m))

	assert.Equal(t, ColumnIndex(0), m[FieldDate])
	assert.Equal(t, ColumnHeader("Amount"), m[FieldAmount])
	assert.True(t, m[FieldNotes].IsZero())
	assert.Equal(t, ColumnHeader("7"), m[FieldCategory], "quoted numbers are header names")

	out, err := yaml.Marshal(ColumnMapping{FieldDate: ColumnIndex(1)})
	require.NoError(t, err)
	assert.Equal(t, "date: 1\n", string(out))
}

func TestColumnMapping_Merge(t *testing.T) {
	base := ColumnMapping{FieldDate: ColumnIndex(0), FieldNotes: ColumnIndex(5)}
	merged := base.Merge(ColumnMapping{FieldDate: ColumnHeader("Posted"), FieldNotes: {}, FieldTags: ColumnIndex(6)})

	assert.Equal(t, ColumnMapping{FieldDate: ColumnHeader("Posted"), FieldTags: ColumnIndex(6)}, merged)
	assert.Equal(t, ColumnIndex(0), base[FieldDate], "merge leaves the base untouched")
	assert.Contains(t, base, FieldNotes)
}

func TestColumnMapping_Validate(t *testing.T) {
	full := ColumnMapping{
		FieldDate:        ColumnIndex(0),
		FieldDescription: ColumnIndex(1),
		FieldCategory:    ColumnIndex(2),
		FieldAccount:     ColumnIndex(3),
		FieldAmount:      ColumnIndex(4),
	}
	assert.NoError(t, full.Validate(DirectionSignedAmount))

	err := full.Validate(DirectionDebitCredit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debit, credit")

	withType := full.Merge(ColumnMapping{FieldType: ColumnHeader("Type")})
	assert.NoError(t, withType.Validate(DirectionAmountPlusType))

	assert.Error(t, full.Merge(ColumnMapping{"balance": ColumnIndex(9)}).Validate(DirectionSignedAmount))
	assert.Error(t, full.Merge(ColumnMapping{FieldDate: ColumnIndex(-2)}).Validate(DirectionSignedAmount))
}

func TestParsingOptions_Validate(t *testing.T) {
	valid := DefaultParsingOptions()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(*ParsingOptions)
		ok     bool
	}{
		{name: "no grouping", modify: func(o *ParsingOptions) { o.ThousandsSeparator = NoThousandsSeparator }, ok: true},
		{name: "comma decimal with none", modify: func(o *ParsingOptions) {
			o.DecimalSeparator = ","
			o.ThousandsSeparator = NoThousandsSeparator
		}, ok: true},
		{name: "thousands only", modify: func(o *ParsingOptions) { o.ThousandsSeparator = "." }, ok: true},
		{name: "bad thousands", modify: func(o *ParsingOptions) { o.ThousandsSeparator = "_" }},
		{name: "bad decimal", modify: func(o *ParsingOptions) { o.DecimalSeparator = ";" }},
		{name: "colliding", modify: func(o *ParsingOptions) {
			o.DecimalSeparator = "."
			o.ThousandsSeparator = "."
		}},
		{name: "bad direction", modify: func(o *ParsingOptions) { o.Direction = "" }},
		{name: "bad date order", modify: func(o *ParsingOptions) { o.DateOrder = "DDMMYYYY" }},
		{name: "bad rate code", modify: func(o *ParsingOptions) {
			o.ExchangeRates = map[string]decimal.Decimal{"dollars": decimal.NewFromInt(1)}
		}},
		{name: "non-positive rate", modify: func(o *ParsingOptions) {
			o.ExchangeRates = map[string]decimal.Decimal{"usd": decimal.Zero}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultParsingOptions()
			tt.modify(&o)
			if tt.ok {
				assert.NoError(t, o.Validate())
			} else {
				assert.Error(t, o.Validate())
			}
		})
	}
}

func TestParsingOptions_ApplyAndResolve(t *testing.T) {
	stored := DefaultParsingOptions()
	stored.ExchangeRates = map[string]decimal.Decimal{"USD": decimal.RequireFromString("4.7")}

	semicolon, none := ";", NoThousandsSeparator
	applied := stored.Apply(&ParsingOptionsOverride{
		Delimiter:          &semicolon,
		ThousandsSeparator: &none,
		ExchangeRates:      map[string]decimal.Decimal{"SGD": decimal.RequireFromString("3.5")},
	})

	assert.Equal(t, ";", applied.Delimiter)
	assert.Len(t, applied.ExchangeRates, 2)
	assert.Len(t, stored.ExchangeRates, 1, "apply copies the rates")
	assert.Equal(t, ",", stored.Delimiter)

	settings := AccountingSettings{BaseCurrency: "MYR", DateOrder: DateOrderDMY, DecimalSeparator: ".", ThousandsSeparator: ","}
	effective, err := applied.Resolve(settings)
	require.NoError(t, err)
	assert.Equal(t, "", effective.ThousandsSeparator)
	assert.Equal(t, ".", effective.DecimalSeparator)
	assert.Equal(t, DateOrderDMY, effective.DateOrder)

	comma := ","
	_, err = stored.Apply(&ParsingOptionsOverride{DecimalSeparator: &comma}).Resolve(settings)
	assert.Error(t, err, "a decimal comma collides with the organization's thousands comma")

	assert.Equal(t, stored.Delimiter, stored.Apply(nil).Delimiter)
}
