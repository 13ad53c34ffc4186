package pipeline

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var errNotNumeric = errors.New("not a number")

// numberFormat reads amounts written with locale-specific separators.
type numberFormat struct {
	decimalSep   string
	thousandsSep string
}

// maxCurrencyAffix is the longest run of letters read as a currency marker,
// enough for ISO codes and local prefixes such as RM or Rp.
const maxCurrencyAffix = 3

// parse reads s into a decimal. Currency symbols, short currency codes before
// or after the number and whitespace are ignored; an optional leading sign is
// kept. Digit groups must be well formed so a value written in a different
// locale is rejected rather than misread.
func (f numberFormat) parse(s string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Sc, r) {
			continue
		}
		if unicode.IsSpace(r) {
			if f.thousandsSep == " " {
				b.WriteString(" ")
			}
			continue
		}
		b.WriteRune(r)
	}
	clean := strings.TrimSpace(b.String())

	sign := ""
	if strings.HasPrefix(clean, "-") || strings.HasPrefix(clean, "+") {
		sign, clean = clean[:1], clean[1:]
	}
	clean = strings.TrimSpace(trimCurrencyCode(clean))
	if sign == "" && (strings.HasPrefix(clean, "-") || strings.HasPrefix(clean, "+")) {
		sign, clean = clean[:1], clean[1:]
	}
	if clean == "" {
		return decimal.Zero, errNotNumeric
	}

	intPart, fracPart := clean, ""
	if i := strings.Index(clean, f.decimalSep); i >= 0 {
		intPart, fracPart = clean[:i], clean[i+len(f.decimalSep):]
		if fracPart == "" || !allDigits(fracPart) {
			return decimal.Zero, errNotNumeric
		}
	}

	digits, ok := f.ungroup(intPart)
	if !ok {
		return decimal.Zero, errNotNumeric
	}
	if digits == "" {
		digits = "0"
	}

	text := sign + digits
	if fracPart != "" {
		text += "." + fracPart
	}
	return decimal.NewFromString(text)
}

// ungroup removes thousands separators, checking that groups after the first
// have exactly three digits.
func (f numberFormat) ungroup(s string) (string, bool) {
	if f.thousandsSep == "" || !strings.Contains(s, f.thousandsSep) {
		return s, allDigits(s)
	}
	groups := strings.Split(s, f.thousandsSep)
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return "", false
	}
	for i, g := range groups {
		if !allDigits(g) || (i > 0 && len(g) != 3) {
			return "", false
		}
	}
	return strings.Join(groups, ""), true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// trimCurrencyCode drops a leading and a trailing run of up to
// maxCurrencyAffix letters, as in "RM10.00" or "10.00 USD".
func trimCurrencyCode(s string) string {
	if n := letterRun(s, false); n > 0 && n <= maxCurrencyAffix {
		s = strings.TrimLeftFunc(s, unicode.IsLetter)
	}
	if n := letterRun(s, true); n > 0 && n <= maxCurrencyAffix {
		s = strings.TrimRightFunc(s, unicode.IsLetter)
	}
	return s
}

// letterRun counts the letters at the start, or the end, of s.
func letterRun(s string, fromEnd bool) int {
	runes := []rune(s)
	n := 0
	for i := range runes {
		r := runes[i]
		if fromEnd {
			r = runes[len(runes)-1-i]
		}
		if !unicode.IsLetter(r) {
			break
		}
		n++
	}
	return n
}
