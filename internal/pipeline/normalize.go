package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/shopspring/decimal"
)

// RowStatus is the validation outcome of one row.
type RowStatus string

const (
	StatusValid   RowStatus = "valid"
	StatusInvalid RowStatus = "invalid"
)

// NormalizedImportRow is the per-row result of a preview or commit run.
// Normalized is present only when Status is valid.
type NormalizedImportRow struct {
	RowIndex              int                    `json:"rowIndex"`
	Status                RowStatus              `json:"status"`
	Errors                []string               `json:"errors"`
	Warnings              []string               `json:"warnings"`
	IsDuplicateCandidate  bool                   `json:"isDuplicateCandidate"`
	DuplicateCandidateIDs []string               `json:"duplicateCandidateIds"`
	DocumentPath          string                 `json:"documentPath,omitempty"`
	Normalized            *NormalizedTransaction `json:"normalized,omitempty"`
}

// NormalizedTransaction is a validated candidate transaction.
type NormalizedTransaction struct {
	AccountID          string                 `json:"accountId"`
	CategoryID         string                 `json:"categoryId"`
	Type               domain.TransactionType `json:"type"`
	AmountOriginal     decimal.Decimal        `json:"amountOriginal"`
	CurrencyOriginal   string                 `json:"currencyOriginal"`
	AmountBase         decimal.Decimal        `json:"amountBase"`
	CurrencyBase       string                 `json:"currencyBase"`
	AmountSecondary    *decimal.Decimal       `json:"amountSecondary,omitempty"`
	CurrencySecondary  string                 `json:"currencySecondary,omitempty"`
	ExchangeRateToBase decimal.Decimal        `json:"exchangeRateToBase"`
	Date               civil.Date             `json:"date"`
	Description        string                 `json:"description"`
	VendorName         string                 `json:"vendorName,omitempty"`
	Notes              string                 `json:"notes,omitempty"`
	Tags               []string               `json:"tags,omitempty"`
}

func newRow(index int) NormalizedImportRow {
	return NormalizedImportRow{
		RowIndex:              index,
		Status:                StatusInvalid,
		Errors:                []string{},
		Warnings:              []string{},
		DuplicateCandidateIDs: []string{},
	}
}

// invalidate marks the row invalid with the given reasons and drops its payload.
func (r *NormalizedImportRow) invalidate(reasons ...string) {
	r.Errors = append(r.Errors, reasons...)
	r.Status = StatusInvalid
	r.Normalized = nil
}

// earliestDate bounds accepted dates from below; the upper bound is a year past now.
var earliestDate = civil.Date{Year: 1900, Month: time.January, Day: 1}

// Normalizer validates mapped rows against one organization's settings and
// reference data. A Normalizer serves a single run.
type Normalizer struct {
	settings       domain.AccountingSettings
	rates          map[string]decimal.Decimal
	format         numberFormat
	accounts       map[string]string
	categories     map[string]string
	counterparties CounterpartyStore
	known          map[string]bool
	latest         civil.Date
}

// NewNormalizer builds a normalizer. settings must already have the run's
// parsing options applied.
func NewNormalizer(
	settings domain.AccountingSettings,
	rates map[string]decimal.Decimal,
	accounts []domain.Account,
	categories []domain.Category,
	counterparties CounterpartyStore,
	now time.Time,
) *Normalizer {
	n := &Normalizer{
		settings:       settings,
		rates:          make(map[string]decimal.Decimal, len(rates)),
		format:         numberFormat{decimalSep: settings.DecimalSeparator, thousandsSep: settings.ThousandsSeparator},
		accounts:       make(map[string]string, len(accounts)),
		categories:     make(map[string]string, len(categories)),
		counterparties: counterparties,
		known:          make(map[string]bool),
		latest:         civil.DateOf(now).AddDays(366),
	}
	for code, rate := range rates {
		n.rates[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	for _, a := range accounts {
		if key := domain.NormalizeName(a.Name); key != "" {
			if _, dup := n.accounts[key]; !dup {
				n.accounts[key] = a.ID
			}
		}
	}
	for _, c := range categories {
		if key := domain.NormalizeName(c.Name); key != "" {
			if _, dup := n.categories[key]; !dup {
				n.categories[key] = c.ID
			}
		}
	}
	return n
}

// Normalize validates one row, collecting every problem before deciding its status.
// The only error returned is a failed counterparty lookup.
func (n *Normalizer) Normalize(ctx context.Context, row MappedRow) (NormalizedImportRow, error) {
	out := newRow(row.Index)
	out.DocumentPath = row.Values[domain.FieldDocument]

	var errs []string
	if row.StructuralErr != "" {
		errs = append(errs, row.StructuralErr)
	}
	tx := &NormalizedTransaction{}

	if raw := row.Values[domain.FieldDate]; raw == "" {
		errs = append(errs, "missing date")
	} else if d, err := parseDate(raw, n.settings.DateOrder); err != nil || d.Before(earliestDate) || d.After(n.latest) {
		errs = append(errs, fmt.Sprintf("unparseable date %q", raw))
	} else {
		tx.Date = d
	}

	amount, amountErr := n.amount(row)
	if amountErr != "" {
		errs = append(errs, amountErr)
	}

	var problem string
	if tx.CategoryID, problem = resolveName(n.categories, "category", row.Values[domain.FieldCategory]); problem != "" {
		errs = append(errs, problem)
	}
	if tx.AccountID, problem = resolveName(n.accounts, "account", row.Values[domain.FieldAccount]); problem != "" {
		errs = append(errs, problem)
	}

	if row.DirectionErr != "" {
		errs = append(errs, row.DirectionErr)
	} else {
		tx.Type = row.Type
	}

	if currencyErrs := n.applyCurrency(tx, row, amount, amountErr == ""); len(currencyErrs) > 0 {
		errs = append(errs, currencyErrs...)
	}

	tx.Description = row.Values[domain.FieldDescription]
	if tx.Description == "" {
		errs = append(errs, "missing description")
	}
	tx.VendorName = row.Values[domain.FieldVendor]
	tx.Notes = row.Values[domain.FieldNotes]
	tx.Tags = splitTags(row.Values[domain.FieldTags])

	if (tx.AmountSecondary == nil) != (tx.CurrencySecondary == "") {
		errs = append(errs, "secondary amount and secondary currency must be set together")
	}

	if len(errs) > 0 {
		out.invalidate(errs...)
		return out, nil
	}

	if tx.VendorName != "" && n.counterparties != nil {
		warning, err := n.counterpartyWarning(ctx, domain.CounterpartyKindFor(tx.Type), tx.VendorName)
		if err != nil {
			return out, err
		}
		if warning != "" {
			out.Warnings = append(out.Warnings, warning)
		}
	}

	out.Status = StatusValid
	out.Normalized = tx
	return out, nil
}

// amount parses the direction-resolved amount text. It returns a row error
// message, or "" when the amount is usable.
func (n *Normalizer) amount(row MappedRow) (decimal.Decimal, string) {
	raw := row.Amount
	if raw == "" {
		if row.DirectionErr != "" {
			return decimal.Zero, ""
		}
		return decimal.Zero, "missing amount"
	}
	v, err := n.format.parse(raw)
	if err != nil {
		return decimal.Zero, fmt.Sprintf("invalid amount %q", raw)
	}
	switch {
	case v.IsZero():
		return decimal.Zero, "amount must not be zero"
	case v.IsNegative():
		return decimal.Zero, fmt.Sprintf("amount %q is negative after sign resolution", raw)
	}
	return v, ""
}

// applyCurrency fills the original, base and secondary amounts.
func (n *Normalizer) applyCurrency(tx *NormalizedTransaction, row MappedRow, amount decimal.Decimal, amountOK bool) []string {
	base := n.settings.BaseCurrency
	code := strings.ToUpper(row.Values[domain.FieldCurrency])

	if code == "" || code == base {
		tx.AmountOriginal, tx.CurrencyOriginal = amount, base
		tx.AmountBase, tx.CurrencyBase = amount, base
		tx.ExchangeRateToBase = decimal.NewFromInt(1)
		return nil
	}

	var errs []string
	if !domain.IsCurrencyCode(code) {
		return append(errs, fmt.Sprintf("invalid currency %q", row.Values[domain.FieldCurrency]))
	}

	rate, ok := n.rates[code]
	if raw := row.Values[domain.FieldExchangeRate]; raw != "" {
		v, err := n.format.parse(raw)
		if err != nil {
			return append(errs, fmt.Sprintf("invalid exchange rate %q", raw))
		}
		rate, ok = v, true
	}
	switch {
	case !ok:
		return append(errs, fmt.Sprintf("no exchange rate supplied for %s to %s", code, base))
	case !rate.IsPositive():
		return append(errs, fmt.Sprintf("exchange rate for %s must be positive", code))
	}
	if !amountOK {
		return nil
	}

	original := amount
	tx.AmountOriginal, tx.CurrencyOriginal = original, code
	tx.AmountBase, tx.CurrencyBase = original.Mul(rate).Round(2), base
	tx.AmountSecondary, tx.CurrencySecondary = &original, code
	tx.ExchangeRateToBase = rate
	return nil
}

// counterpartyWarning reports a vendor or client that commit will create.
func (n *Normalizer) counterpartyWarning(ctx context.Context, kind domain.CounterpartyKind, name string) (string, error) {
	key := string(kind) + "|" + domain.NormalizeName(name)
	exists, seen := n.known[key]
	if !seen {
		found, err := n.counterparties.FindCounterparty(ctx, n.settings.OrganizationID, kind, name)
		if err != nil {
			return "", fmt.Errorf("Normalize: looking up %s %q: %w", kind, name, err)
		}
		exists = found != nil
		n.known[key] = exists
	}
	if exists {
		return "", nil
	}
	return fmt.Sprintf("%s name %q will be auto-created", kind, name), nil
}

func resolveName(index map[string]string, what, raw string) (string, string) {
	if raw == "" {
		return "", fmt.Sprintf("unresolved %s: no value", what)
	}
	id, ok := index[domain.NormalizeName(raw)]
	if !ok {
		return "", fmt.Sprintf("unresolved %s %q", what, raw)
	}
	return id, ""
}

// splitTags splits a tag cell on commas, semicolons or pipes and drops
// empty and repeated names, keeping first spelling and order.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
	var tags []string
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		name := strings.TrimSpace(p)
		key := domain.NormalizeName(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, name)
	}
	return tags
}
