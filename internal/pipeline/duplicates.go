package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// DuplicateDetector flags valid rows that resemble persisted transactions.
// It never removes rows; importing a flagged row is the caller's decision.
type DuplicateDetector struct {
	store     TransactionStore
	tolerance decimal.Decimal
	// threshold is the minimum description similarity in (0, 1]. Zero means
	// descriptions must match exactly after normalization.
	threshold float64
}

// NewDuplicateDetector returns a detector matching base amounts within tolerance.
func NewDuplicateDetector(store TransactionStore, tolerance decimal.Decimal, threshold float64) *DuplicateDetector {
	if tolerance.IsNegative() {
		tolerance = decimal.Zero
	}
	return &DuplicateDetector{store: store, tolerance: tolerance, threshold: threshold}
}

// Fingerprint is the duplicate key of a transaction.
func Fingerprint(date civil.Date, amountBase decimal.Decimal, description string) string {
	return fmt.Sprintf("%s|%s|%s", date, amountBase.Abs().StringFixed(2), normalizeDescription(description))
}

// Detect marks duplicate candidates among the valid rows in place.
// Rows sharing a fingerprint share one store query.
func (d *DuplicateDetector) Detect(ctx context.Context, orgID string, rows []NormalizedImportRow) error {
	matches := make(map[string][]string)
	for i := range rows {
		row := &rows[i]
		if row.Status != StatusValid || row.Normalized == nil {
			continue
		}
		tx := row.Normalized

		key := Fingerprint(tx.Date, tx.AmountBase, tx.Description)
		ids, done := matches[key]
		if !done {
			var err error
			ids, err = d.find(ctx, orgID, tx)
			if err != nil {
				return fmt.Errorf("Detect: row %d: %w", row.RowIndex, err)
			}
			matches[key] = ids
		}
		if len(ids) > 0 {
			row.IsDuplicateCandidate = true
			row.DuplicateCandidateIDs = append([]string(nil), ids...)
		}
	}
	return nil
}

func (d *DuplicateDetector) find(ctx context.Context, orgID string, tx *NormalizedTransaction) ([]string, error) {
	amount := tx.AmountBase.Abs()
	candidates, err := d.store.FindDuplicates(ctx, domain.DuplicateQuery{
		OrganizationID: orgID,
		DateFrom:       tx.Date,
		DateTo:         tx.Date,
		AmountMin:      amount.Sub(d.tolerance),
		AmountMax:      amount.Add(d.tolerance),
		Description:    tx.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("searching transactions: %w", err)
	}

	want := normalizeDescription(tx.Description)
	seen := make(map[string]bool, len(candidates))
	var ids []string
	for _, c := range candidates {
		if seen[c.ID] || c.Date != tx.Date {
			continue
		}
		if c.AmountBase.Abs().Sub(amount).Abs().GreaterThan(d.tolerance) {
			continue
		}
		if !d.descriptionsMatch(want, normalizeDescription(c.Description)) {
			continue
		}
		seen[c.ID] = true
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *DuplicateDetector) descriptionsMatch(a, b string) bool {
	if a == b {
		return true
	}
	if d.threshold <= 0 {
		return false
	}
	return descriptionSimilarity(a, b) >= d.threshold
}

// descriptionSimilarity is the Levenshtein ratio of two strings, 1 for identical.
func descriptionSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	dist := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions)
	return float64(total-dist) / float64(total)
}

// normalizeDescription lowercases and collapses whitespace.
func normalizeDescription(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
