package bigquery

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransactionRow(t *testing.T) {
	secondary := decimal.RequireFromString("100.00")
	created := time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)
	tx := domain.NewTransaction{
		ID:                 "tx-1",
		OrganizationID:     "org-1",
		AccountID:          "acc-1",
		CategoryID:         "cat-1",
		Type:               domain.TransactionExpense,
		Date:               civil.Date{Year: 2024, Month: time.May, Day: 31},
		AmountOriginal:     decimal.RequireFromString("100.00"),
		CurrencyOriginal:   "USD",
		AmountBase:         decimal.RequireFromString("470.00"),
		CurrencyBase:       "MYR",
		AmountSecondary:    &secondary,
		CurrencySecondary:  "USD",
		ExchangeRateToBase: decimal.RequireFromString("4.7"),
		Description:        "AWS",
		Source:             "import:statement.csv",
		CreatedBy:          "user-1",
		CreatedAt:          created,
	}

	row := newTransactionRow(tx)

	assert.Equal(t, "tx-1", row.TransactionID)
	assert.Equal(t, "expense", row.Type)
	assert.False(t, row.CounterpartyID.Valid)
	assert.False(t, row.Notes.Valid)
	assert.Equal(t, bigquery.NullString{StringVal: "USD", Valid: true}, row.CurrencySecondary)
	assert.Equal(t, 0, row.AmountBase.Cmp(big.NewRat(470, 1)))
	assert.Equal(t, 0, row.ExchangeRateToBase.Cmp(big.NewRat(47, 10)))
	require.NotNil(t, row.AmountSecondary)
	assert.Equal(t, 0, row.AmountSecondary.Cmp(big.NewRat(100, 1)))
	assert.Equal(t, []string{}, row.TagIDs, "repeated columns are never NULL")
	assert.Equal(t, created, row.CreatedTS)
	assert.False(t, row.DeletedTS.Valid)
}

func TestNewTransactionRow_BaseCurrencyOnly(t *testing.T) {
	row := newTransactionRow(domain.NewTransaction{
		ID:             "tx-2",
		CounterpartyID: "cp-1",
		Notes:          "monthly",
		TagIDs:         []string{"tag-1"},
		AmountBase:     decimal.RequireFromString("12.5"),
	})

	assert.Nil(t, row.AmountSecondary)
	assert.False(t, row.CurrencySecondary.Valid)
	assert.Equal(t, bigquery.NullString{StringVal: "cp-1", Valid: true}, row.CounterpartyID)
	assert.Equal(t, bigquery.NullString{StringVal: "monthly", Valid: true}, row.Notes)
	assert.Equal(t, []string{"tag-1"}, row.TagIDs)
}

func TestDecimalRatRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1234.5", "-0.01", "4.123456789"} {
		d := decimal.RequireFromString(s)
		back, err := decimalFromRat(ratFromDecimal(d))
		require.NoError(t, err)
		assert.True(t, d.Equal(back), "%s became %s", s, back)
	}

	zero, err := decimalFromRat(nil)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}

func TestBatchInsertError(t *testing.T) {
	multi := bigquery.PutMultiError{
		{InsertID: "tx-3", RowIndex: 2, Errors: bigquery.MultiError{errors.New("no such field: foo")}},
		{InsertID: "tx-1", RowIndex: 0, Errors: bigquery.MultiError{errors.New("invalid date")}},
	}

	be := batchInsertError(multi)
	require.Len(t, be.Failed, 2)
	assert.Contains(t, be.Failed[0].Error(), "invalid date")
	assert.Contains(t, be.Failed[2].Error(), "no such field")
	assert.Contains(t, be.Error(), "2 of the batch rows failed")
}

func TestTemplateRow_ToDomain(t *testing.T) {
	row := &TemplateRow{
		TemplateID:     "tmpl-1",
		OrganizationID: "org-1",
		Name:           "Bank",
		Mapping:        bigquery.NullJSON{JSONVal: `{"date":0,"description":"Details","notes":null}`, Valid: true},
		Options:        bigquery.NullJSON{JSONVal: `{"delimiter":";","hasHeader":false,"directionMode":"debit_credit"}`, Valid: true},
		CreatedBy:      "user-1",
	}

	tmpl, err := row.toDomain()
	require.NoError(t, err)

	assert.Equal(t, domain.ColumnIndex(0), tmpl.Mapping[domain.FieldDate])
	assert.Equal(t, domain.ColumnHeader("Details"), tmpl.Mapping[domain.FieldDescription])
	assert.True(t, tmpl.Mapping[domain.FieldNotes].IsZero())
	assert.Equal(t, ";", tmpl.Options.Delimiter)
	assert.False(t, tmpl.Options.HasHeader)
	assert.Equal(t, domain.DirectionDebitCredit, tmpl.Options.Direction)
}

func TestTemplateRow_ToDomainDefaults(t *testing.T) {
	tmpl, err := (&TemplateRow{TemplateID: "tmpl-2"}).toDomain()
	require.NoError(t, err)
	assert.Empty(t, tmpl.Mapping)
	assert.Equal(t, domain.DefaultParsingOptions(), tmpl.Options)

	_, err = (&TemplateRow{TemplateID: "tmpl-3", Mapping: bigquery.NullJSON{JSONVal: `[1,2]`, Valid: true}}).toDomain()
	assert.Error(t, err)
}

func TestTemplateJSON_RoundTrip(t *testing.T) {
	in := domain.ImportTemplate{
		ID: "tmpl-1",
		Mapping: domain.ColumnMapping{
			domain.FieldDate:   domain.ColumnIndex(2),
			domain.FieldAmount: domain.ColumnHeader("Amount"),
		},
		Options: domain.ParsingOptions{
			Delimiter:     ",",
			HasHeader:     true,
			Direction:     domain.DirectionSignedAmount,
			ExchangeRates: map[string]decimal.Decimal{"USD": decimal.RequireFromString("4.7")},
		},
	}

	mapping, options, err := templateJSON(in)
	require.NoError(t, err)

	out, err := (&TemplateRow{
		TemplateID: in.ID,
		Mapping:    bigquery.NullJSON{JSONVal: mapping, Valid: true},
		Options:    bigquery.NullJSON{JSONVal: options, Valid: true},
	}).toDomain()
	require.NoError(t, err)

	assert.Equal(t, in.Mapping, out.Mapping)
	assert.Equal(t, in.Options.Delimiter, out.Options.Delimiter)
	assert.True(t, out.Options.ExchangeRates["USD"].Equal(decimal.RequireFromString("4.7")))
}
