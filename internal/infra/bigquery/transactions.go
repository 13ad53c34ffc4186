package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/bookkeeper/internal/domain"
)

type TransactionRow struct {
	TransactionID  string              `bigquery:"transaction_id"`  // REQUIRED
	OrganizationID string              `bigquery:"organization_id"` // REQUIRED
	AccountID      string              `bigquery:"account_id"`      // REQUIRED
	CategoryID     string              `bigquery:"category_id"`     // REQUIRED
	CounterpartyID bigquery.NullString `bigquery:"counterparty_id"` // NULLABLE

	Type            string     `bigquery:"type"`             // income | expense
	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED

	AmountOriginal   *big.Rat `bigquery:"amount_original"`   // REQUIRED NUMERIC
	CurrencyOriginal string   `bigquery:"currency_original"` // REQUIRED
	AmountBase       *big.Rat `bigquery:"amount_base"`       // REQUIRED NUMERIC
	CurrencyBase     string   `bigquery:"currency_base"`     // REQUIRED

	AmountSecondary    *big.Rat            `bigquery:"amount_secondary"`      // NULLABLE NUMERIC, set with currency_secondary
	CurrencySecondary  bigquery.NullString `bigquery:"currency_secondary"`    // NULLABLE
	ExchangeRateToBase *big.Rat            `bigquery:"exchange_rate_to_base"` // REQUIRED NUMERIC

	Description string              `bigquery:"description"` // REQUIRED
	Notes       bigquery.NullString `bigquery:"notes"`       // NULLABLE
	TagIDs      []string            `bigquery:"tag_ids"`     // REPEATED

	Source    string                 `bigquery:"source"`
	CreatedBy string                 `bigquery:"created_by"`
	CreatedTS time.Time              `bigquery:"created_ts"`
	DeletedTS bigquery.NullTimestamp `bigquery:"deleted_ts"` // NULLABLE, set on soft delete
}

// newTransactionRow maps a domain transaction onto the table schema.
func newTransactionRow(tx domain.NewTransaction) *TransactionRow {
	row := &TransactionRow{
		TransactionID:      tx.ID,
		OrganizationID:     tx.OrganizationID,
		AccountID:          tx.AccountID,
		CategoryID:         tx.CategoryID,
		CounterpartyID:     nullString(tx.CounterpartyID),
		Type:               string(tx.Type),
		TransactionDate:    tx.Date,
		AmountOriginal:     ratFromDecimal(tx.AmountOriginal),
		CurrencyOriginal:   tx.CurrencyOriginal,
		AmountBase:         ratFromDecimal(tx.AmountBase),
		CurrencyBase:       tx.CurrencyBase,
		CurrencySecondary:  nullString(tx.CurrencySecondary),
		ExchangeRateToBase: ratFromDecimal(tx.ExchangeRateToBase),
		Description:        tx.Description,
		Notes:              nullString(tx.Notes),
		TagIDs:             tx.TagIDs,
		Source:             tx.Source,
		CreatedBy:          tx.CreatedBy,
		CreatedTS:          tx.CreatedAt,
	}
	if tx.AmountSecondary != nil {
		row.AmountSecondary = ratFromDecimal(*tx.AmountSecondary)
	}
	if row.TagIDs == nil {
		row.TagIDs = []string{}
	}
	return row
}

// duplicateRow is the projection read by FindDuplicates.
type duplicateRow struct {
	TransactionID   string     `bigquery:"transaction_id"`
	TransactionDate civil.Date `bigquery:"transaction_date"`
	AmountBase      *big.Rat   `bigquery:"amount_base"`
	Description     string     `bigquery:"description"`
}
