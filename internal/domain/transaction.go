package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a transaction from the organization's point of view.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// NewTransaction is a transaction ready to be written to the record store.
// The ID is assigned by the caller so documents can be linked after the insert.
type NewTransaction struct {
	ID             string
	OrganizationID string
	AccountID      string
	CategoryID     string
	CounterpartyID string
	Type           TransactionType
	Date           civil.Date

	AmountOriginal   decimal.Decimal
	CurrencyOriginal string
	AmountBase       decimal.Decimal
	CurrencyBase     string

	// AmountSecondary and CurrencySecondary are both set or both empty.
	AmountSecondary    *decimal.Decimal
	CurrencySecondary  string
	ExchangeRateToBase decimal.Decimal

	Description string
	Notes       string
	TagIDs      []string
	Source      string
	CreatedBy   string
	CreatedAt   time.Time
}

// ExistingTransaction is the projection of a persisted transaction used for duplicate search.
type ExistingTransaction struct {
	ID          string
	Date        civil.Date
	AmountBase  decimal.Decimal
	Description string
}

// DuplicateQuery narrows the persisted, non-deleted transactions of one organization
// to a date and base-amount window. Description is a hint; matching happens in the caller.
type DuplicateQuery struct {
	OrganizationID string
	DateFrom       civil.Date
	DateTo         civil.Date
	AmountMin      decimal.Decimal
	AmountMax      decimal.Decimal
	Description    string
}

// BatchInsertError reports the rows of a batch insert that were rejected.
// Failed is keyed by the position of the row in the submitted batch.
type BatchInsertError struct {
	Failed map[int]error
}

func (e *BatchInsertError) Error() string {
	idx := make([]int, 0, len(e.Failed))
	for i := range e.Failed {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	parts := make([]string, 0, len(idx))
	for _, i := range idx {
		parts = append(parts, fmt.Sprintf("row %d: %v", i, e.Failed[i]))
	}
	return fmt.Sprintf("%d of the batch rows failed: %s", len(idx), strings.Join(parts, "; "))
}
