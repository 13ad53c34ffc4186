package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Field is a canonical transaction field a source column can be mapped to.
type Field string

const (
	FieldDate         Field = "date"
	FieldAmount       Field = "amount"
	FieldType         Field = "type"
	FieldDebit        Field = "debit"
	FieldCredit       Field = "credit"
	FieldCurrency     Field = "currency"
	FieldExchangeRate Field = "exchange_rate"
	FieldDescription  Field = "description"
	FieldCategory     Field = "category"
	FieldAccount      Field = "account"
	FieldVendor       Field = "vendor"
	FieldNotes        Field = "notes"
	FieldTags         Field = "tags"
	FieldDocument     Field = "document"
)

// Fields lists every canonical field in a stable order.
var Fields = []Field{
	FieldDate, FieldAmount, FieldType, FieldDebit, FieldCredit,
	FieldCurrency, FieldExchangeRate, FieldDescription, FieldCategory,
	FieldAccount, FieldVendor, FieldNotes, FieldTags, FieldDocument,
}

// Known reports whether f is a canonical field.
func (f Field) Known() bool {
	for _, k := range Fields {
		if k == f {
			return true
		}
	}
	return false
}

// DirectionMode describes how a source file encodes income versus expense.
type DirectionMode string

const (
	// DirectionSignedAmount: one amount column, positive is income and negative is expense.
	DirectionSignedAmount DirectionMode = "signed_amount"
	// DirectionAmountPlusType: one unsigned amount column plus a type column.
	DirectionAmountPlusType DirectionMode = "amount_type"
	// DirectionDebitCredit: separate debit (expense) and credit (income) columns.
	DirectionDebitCredit DirectionMode = "debit_credit"
)

// Valid reports whether m is a known direction mode.
func (m DirectionMode) Valid() bool {
	switch m {
	case DirectionSignedAmount, DirectionAmountPlusType, DirectionDebitCredit:
		return true
	}
	return false
}

// RequiredFields returns the fields a mapping must resolve under this mode.
func (m DirectionMode) RequiredFields() []Field {
	required := []Field{FieldDate, FieldDescription, FieldCategory, FieldAccount}
	switch m {
	case DirectionAmountPlusType:
		return append(required, FieldAmount, FieldType)
	case DirectionDebitCredit:
		return append(required, FieldDebit, FieldCredit)
	default:
		return append(required, FieldAmount)
	}
}

// ColumnLocator points at a source column either by 0-based index or by header name.
// The zero value locates nothing and removes a field when used as an override.
type ColumnLocator struct {
	Index  *int
	Header string
}

// ColumnIndex returns a locator for the given 0-based column.
func ColumnIndex(i int) ColumnLocator {
	return ColumnLocator{Index: &i}
}

// ColumnHeader returns a locator for the column with the given header name.
func ColumnHeader(name string) ColumnLocator {
	return ColumnLocator{Header: name}
}

// IsZero reports whether the locator points at nothing.
func (l ColumnLocator) IsZero() bool {
	return l.Index == nil && strings.TrimSpace(l.Header) == ""
}

func (l ColumnLocator) String() string {
	if l.Index != nil {
		return "#" + strconv.Itoa(*l.Index)
	}
	return strconv.Quote(l.Header)
}

// MarshalJSON encodes an index as a number and a header as a string.
func (l ColumnLocator) MarshalJSON() ([]byte, error) {
	switch {
	case l.Index != nil:
		return json.Marshal(*l.Index)
	case l.Header != "":
		return json.Marshal(l.Header)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a number (index), a string (header) or null.
func (l *ColumnLocator) UnmarshalJSON(data []byte) error {
	*l = ColumnLocator{}
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &l.Header)
	}
	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("column locator must be an index or a header name: %w", err)
	}
	l.Index = &i
	return nil
}

// MarshalYAML mirrors MarshalJSON.
func (l ColumnLocator) MarshalYAML() (interface{}, error) {
	switch {
	case l.Index != nil:
		return *l.Index, nil
	case l.Header != "":
		return l.Header, nil
	default:
		return nil, nil
	}
}

// UnmarshalYAML accepts an integer (index), any other scalar (header) or null.
func (l *ColumnLocator) UnmarshalYAML(node *yaml.Node) error {
	*l = ColumnLocator{}
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: column locator must be a scalar", node.Line)
	}
	switch node.Tag {
	case "!!null":
		return nil
	case "!!int":
		i, err := strconv.Atoi(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: column index: %w", node.Line, err)
		}
		l.Index = &i
		return nil
	default:
		l.Header = node.Value
		return nil
	}
}

// ColumnMapping maps canonical fields to source columns.
type ColumnMapping map[Field]ColumnLocator

// Merge returns a copy of m with the override applied. A zero locator in the
// override removes the field. Neither input is modified.
func (m ColumnMapping) Merge(override ColumnMapping) ColumnMapping {
	out := make(ColumnMapping, len(m)+len(override))
	for f, l := range m {
		out[f] = l
	}
	for f, l := range override {
		if l.IsZero() {
			delete(out, f)
			continue
		}
		out[f] = l
	}
	return out
}

// Validate checks that every field is known, no index is negative and every
// field required by mode is mapped.
func (m ColumnMapping) Validate(mode DirectionMode) error {
	for f, l := range m {
		if !f.Known() {
			return fmt.Errorf("unknown field %q", f)
		}
		if l.Index != nil && *l.Index < 0 {
			return fmt.Errorf("field %s: column index %d is negative", f, *l.Index)
		}
	}

	var missing []string
	for _, f := range mode.RequiredFields() {
		if l, ok := m[f]; !ok || l.IsZero() {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required fields not mapped: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ParsingOptions describe how to read raw cells of a delimited file.
// Empty DateOrder and separators fall back to the organization's accounting settings.
type ParsingOptions struct {
	Delimiter          string                     `json:"delimiter" yaml:"delimiter"`
	HasHeader          bool                       `json:"hasHeader" yaml:"has_header"`
	DateOrder          DateOrder                  `json:"dateFormat,omitempty" yaml:"date_format,omitempty"`
	DecimalSeparator   string                     `json:"decimalSeparator,omitempty" yaml:"decimal_separator,omitempty"`
	ThousandsSeparator string                     `json:"thousandsSeparator,omitempty" yaml:"thousands_separator,omitempty"`
	Direction          DirectionMode              `json:"directionMode" yaml:"direction_mode"`
	ExchangeRates      map[string]decimal.Decimal `json:"exchangeRates,omitempty" yaml:"exchange_rates,omitempty"`
}

// DefaultParsingOptions is a comma-delimited file with a header and a signed amount column.
func DefaultParsingOptions() ParsingOptions {
	return ParsingOptions{
		Delimiter: ",",
		HasHeader: true,
		Direction: DirectionSignedAmount,
	}
}

// Validate checks the options on their own; separators are checked again once
// merged with the organization's settings.
func (o ParsingOptions) Validate() error {
	if !o.Direction.Valid() {
		return fmt.Errorf("unknown direction mode %q", o.Direction)
	}
	if o.DateOrder != "" && !o.DateOrder.Valid() {
		return fmt.Errorf("unknown date format %q", o.DateOrder)
	}
	switch {
	case o.DecimalSeparator != "" && o.ThousandsSeparator != "":
		thousands := o.ThousandsSeparator
		if thousands == NoThousandsSeparator {
			thousands = ""
		}
		if err := ValidateSeparators(o.DecimalSeparator, thousands); err != nil {
			return err
		}
	case o.DecimalSeparator != "":
		if o.DecimalSeparator != "." && o.DecimalSeparator != "," {
			return fmt.Errorf("unsupported decimal separator %q", o.DecimalSeparator)
		}
	case o.ThousandsSeparator != "" && o.ThousandsSeparator != NoThousandsSeparator:
		switch o.ThousandsSeparator {
		case ".", ",", " ", "'":
		default:
			return fmt.Errorf("unsupported thousands separator %q", o.ThousandsSeparator)
		}
	}
	for code, rate := range o.ExchangeRates {
		if !IsCurrencyCode(strings.ToUpper(strings.TrimSpace(code))) {
			return fmt.Errorf("exchange rate for %q: not a currency code", code)
		}
		if !rate.IsPositive() {
			return fmt.Errorf("exchange rate for %s must be positive", code)
		}
	}
	return nil
}

// ParsingOptionsOverride holds per-run changes to stored ParsingOptions.
// Nil fields keep the stored value.
type ParsingOptionsOverride struct {
	Delimiter          *string                    `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	HasHeader          *bool                      `json:"hasHeader,omitempty" yaml:"has_header,omitempty"`
	DateOrder          *DateOrder                 `json:"dateFormat,omitempty" yaml:"date_format,omitempty"`
	DecimalSeparator   *string                    `json:"decimalSeparator,omitempty" yaml:"decimal_separator,omitempty"`
	ThousandsSeparator *string                    `json:"thousandsSeparator,omitempty" yaml:"thousands_separator,omitempty"`
	Direction          *DirectionMode             `json:"directionMode,omitempty" yaml:"direction_mode,omitempty"`
	ExchangeRates      map[string]decimal.Decimal `json:"exchangeRates,omitempty" yaml:"exchange_rates,omitempty"`
}

// Apply returns o with the non-nil override fields replacing stored values.
// Exchange rates are merged per currency.
func (o ParsingOptions) Apply(ov *ParsingOptionsOverride) ParsingOptions {
	out := o
	out.ExchangeRates = make(map[string]decimal.Decimal, len(o.ExchangeRates))
	for k, v := range o.ExchangeRates {
		out.ExchangeRates[k] = v
	}
	if ov == nil {
		return out
	}
	if ov.Delimiter != nil {
		out.Delimiter = *ov.Delimiter
	}
	if ov.HasHeader != nil {
		out.HasHeader = *ov.HasHeader
	}
	if ov.DateOrder != nil {
		out.DateOrder = *ov.DateOrder
	}
	if ov.DecimalSeparator != nil {
		out.DecimalSeparator = *ov.DecimalSeparator
	}
	if ov.ThousandsSeparator != nil {
		out.ThousandsSeparator = *ov.ThousandsSeparator
	}
	if ov.Direction != nil {
		out.Direction = *ov.Direction
	}
	for k, v := range ov.ExchangeRates {
		out.ExchangeRates[k] = v
	}
	return out
}

// Resolve overlays the options on the organization's settings and returns the
// settings a run actually uses.
func (o ParsingOptions) Resolve(s AccountingSettings) (AccountingSettings, error) {
	out := s
	if o.DateOrder != "" {
		out.DateOrder = o.DateOrder
	}
	if o.DecimalSeparator != "" {
		out.DecimalSeparator = o.DecimalSeparator
	}
	switch o.ThousandsSeparator {
	case "":
	case NoThousandsSeparator:
		out.ThousandsSeparator = ""
	default:
		out.ThousandsSeparator = o.ThousandsSeparator
	}
	if err := ValidateSeparators(out.DecimalSeparator, out.ThousandsSeparator); err != nil {
		return AccountingSettings{}, err
	}
	return out, nil
}
