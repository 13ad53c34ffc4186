package domain

import (
	"fmt"
	"regexp"
)

// DateOrder is the day/month/year ordering used to read dates.
type DateOrder string

const (
	DateOrderDMY DateOrder = "DMY"
	DateOrderMDY DateOrder = "MDY"
	DateOrderYMD DateOrder = "YMD"
)

// Valid reports whether o is a known ordering.
func (o DateOrder) Valid() bool {
	switch o {
	case DateOrderDMY, DateOrderMDY, DateOrderYMD:
		return true
	}
	return false
}

// NoThousandsSeparator disables digit grouping in ParsingOptions overrides.
const NoThousandsSeparator = "none"

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// IsCurrencyCode reports whether s looks like an ISO 4217 alphabetic code.
func IsCurrencyCode(s string) bool {
	return currencyCode.MatchString(s)
}

// AccountingSettings are the financial settings of an organization.
type AccountingSettings struct {
	OrganizationID     string    `json:"organizationId"`
	BaseCurrency       string    `json:"baseCurrency"`
	DateOrder          DateOrder `json:"dateFormat"`
	DecimalSeparator   string    `json:"decimalSeparator"`
	ThousandsSeparator string    `json:"thousandsSeparator"`
}

// Validate checks the settings, including that the two separators differ.
func (s AccountingSettings) Validate() error {
	if !IsCurrencyCode(s.BaseCurrency) {
		return fmt.Errorf("base currency %q is not a currency code", s.BaseCurrency)
	}
	if !s.DateOrder.Valid() {
		return fmt.Errorf("unknown date format %q", s.DateOrder)
	}
	return ValidateSeparators(s.DecimalSeparator, s.ThousandsSeparator)
}

// ValidateSeparators checks a decimal/thousands separator pair.
// An empty thousands separator means digits are not grouped.
func ValidateSeparators(decimalSep, thousandsSep string) error {
	switch decimalSep {
	case ".", ",":
	default:
		return fmt.Errorf("unsupported decimal separator %q", decimalSep)
	}
	switch thousandsSep {
	case "", ".", ",", " ", "'":
	default:
		return fmt.Errorf("unsupported thousands separator %q", thousandsSep)
	}
	if decimalSep == thousandsSep {
		return fmt.Errorf("decimal and thousands separators must differ, both are %q", decimalSep)
	}
	return nil
}
