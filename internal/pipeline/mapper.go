package pipeline

import (
	"fmt"
	"strings"

	"github.com/dvloznov/bookkeeper/internal/domain"
)

// ResolvedMapping is a ColumnMapping with every locator turned into a column index.
type ResolvedMapping map[domain.Field]int

// MappedRow is a RawRow reshaped onto canonical fields. Values holds trimmed,
// non-empty cells only. Amount is the unsigned amount text after direction
// handling and Type the direction it implies; DirectionErr is set instead when
// the direction cannot be determined.
type MappedRow struct {
	Index         int
	Values        map[domain.Field]string
	Amount        string
	Type          domain.TransactionType
	DirectionErr  string
	StructuralErr string
}

// ResolveMapping checks a mapping against the mode and the header row and
// resolves header-name locators to indexes.
func ResolveMapping(m domain.ColumnMapping, header []string, mode domain.DirectionMode) (ResolvedMapping, error) {
	if err := m.Validate(mode); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingMapping, err)
	}

	byName := make(map[string]int, len(header))
	for i, h := range header {
		key := domain.NormalizeName(h)
		if _, dup := byName[key]; !dup && key != "" {
			byName[key] = i
		}
	}

	resolved := make(ResolvedMapping, len(m))
	for _, field := range domain.Fields {
		loc, ok := m[field]
		if !ok || loc.IsZero() {
			continue
		}
		if loc.Index != nil {
			resolved[field] = *loc.Index
			continue
		}
		if header == nil {
			return nil, fmt.Errorf("%w: field %s refers to column %q but the file has no header row",
				ErrMissingMapping, field, loc.Header)
		}
		idx, found := byName[domain.NormalizeName(loc.Header)]
		if !found {
			return nil, fmt.Errorf("%w: field %s refers to column %q which is not in the header (%s)",
				ErrMissingMapping, field, loc.Header, strings.Join(header, ", "))
		}
		resolved[field] = idx
	}
	return resolved, nil
}

// MapRows picks each mapped field out of its cell and applies the direction mode.
// It never parses numbers or dates and never rejects a row.
func MapRows(rows []RawRow, resolved ResolvedMapping, mode domain.DirectionMode) []MappedRow {
	out := make([]MappedRow, 0, len(rows))
	for _, raw := range rows {
		mr := MappedRow{
			Index:         raw.Index,
			Values:        make(map[domain.Field]string, len(resolved)),
			StructuralErr: raw.Err,
		}
		for field, idx := range resolved {
			if idx < 0 || idx >= len(raw.Cells) {
				continue
			}
			if v := strings.TrimSpace(raw.Cells[idx]); v != "" {
				mr.Values[field] = v
			}
		}
		applyDirection(&mr, mode)
		out = append(out, mr)
	}
	return out
}

var typeVocabulary = map[string]domain.TransactionType{
	"INCOME":     domain.TransactionIncome,
	"IN":         domain.TransactionIncome,
	"CREDIT":     domain.TransactionIncome,
	"CR":         domain.TransactionIncome,
	"DEPOSIT":    domain.TransactionIncome,
	"RECEIPT":    domain.TransactionIncome,
	"REVENUE":    domain.TransactionIncome,
	"EXPENSE":    domain.TransactionExpense,
	"OUT":        domain.TransactionExpense,
	"DEBIT":      domain.TransactionExpense,
	"DR":         domain.TransactionExpense,
	"WITHDRAWAL": domain.TransactionExpense,
	"PAYMENT":    domain.TransactionExpense,
	"PURCHASE":   domain.TransactionExpense,
}

func applyDirection(mr *MappedRow, mode domain.DirectionMode) {
	switch mode {
	case domain.DirectionAmountPlusType:
		mr.Amount = mr.Values[domain.FieldAmount]
		raw := mr.Values[domain.FieldType]
		if raw == "" {
			mr.DirectionErr = "missing transaction type"
			return
		}
		t, ok := typeVocabulary[domain.NormalizeName(raw)]
		if !ok {
			mr.DirectionErr = fmt.Sprintf("unrecognized transaction type %q", raw)
			return
		}
		mr.Type = t

	case domain.DirectionDebitCredit:
		debit, credit := mr.Values[domain.FieldDebit], mr.Values[domain.FieldCredit]
		hasDebit, hasCredit := !isBlankAmount(debit), !isBlankAmount(credit)
		switch {
		case hasDebit && hasCredit:
			mr.DirectionErr = "both debit and credit have a value"
		case !hasDebit && !hasCredit:
			mr.DirectionErr = "neither debit nor credit has a value"
		case hasDebit:
			_, mr.Amount = splitSign(debit)
			mr.Type = domain.TransactionExpense
		default:
			_, mr.Amount = splitSign(credit)
			mr.Type = domain.TransactionIncome
		}

	default:
		raw := mr.Values[domain.FieldAmount]
		if raw == "" {
			return
		}
		negative, unsigned := splitSign(raw)
		mr.Amount = unsigned
		if negative {
			mr.Type = domain.TransactionExpense
		} else {
			mr.Type = domain.TransactionIncome
		}
	}
}

// splitSign separates a textual sign from an amount: leading or trailing
// minus, a unicode minus, a leading plus, or accounting parentheses. A sign
// written after a currency code, as in "RM-5.00", counts too.
func splitSign(s string) (negative bool, unsigned string) {
	s = strings.TrimSpace(s)
	if n := letterRun(s, false); n > 0 && n <= maxCurrencyAffix {
		code := string([]rune(s)[:n])
		rest := strings.TrimSpace(strings.TrimPrefix(s, code))
		if strings.HasPrefix(rest, "-") || strings.HasPrefix(rest, "−") || strings.HasPrefix(rest, "+") {
			negative, unsigned = splitSign(rest)
			return negative, code + unsigned
		}
	}
	switch {
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		return true, strings.TrimSpace(s[1 : len(s)-1])
	case strings.HasPrefix(s, "-"):
		return true, strings.TrimSpace(s[1:])
	case strings.HasPrefix(s, "−"):
		return true, strings.TrimSpace(strings.TrimPrefix(s, "−"))
	case strings.HasSuffix(s, "-"):
		return true, strings.TrimSpace(s[:len(s)-1])
	case strings.HasPrefix(s, "+"):
		return false, strings.TrimSpace(s[1:])
	}
	return false, s
}

// isBlankAmount treats cells made only of zeros, separators and signs as empty,
// which is how many bank exports fill the unused debit or credit column.
func isBlankAmount(s string) bool {
	for _, r := range s {
		switch r {
		case '0', '.', ',', '-', '+', ' ', '\'':
		default:
			return false
		}
	}
	return true
}
