package bigquery

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"google.golang.org/api/iterator"
)

const transactionsTable = "transactions"

// CreateTransactions streams a batch of transactions. Rows rejected by
// BigQuery are reported through *domain.BatchInsertError keyed by their
// position in txs; the insert id makes a retried batch idempotent.
func (s *Store) CreateTransactions(ctx context.Context, txs []domain.NewTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	savers := make([]*bigquery.StructSaver, len(txs))
	for i, tx := range txs {
		savers[i] = &bigquery.StructSaver{Struct: newTransactionRow(tx), InsertID: tx.ID}
	}

	err := s.table(transactionsTable).Inserter().Put(ctx, savers)
	if err == nil {
		return nil
	}

	var multi bigquery.PutMultiError
	if errors.As(err, &multi) {
		return fmt.Errorf("CreateTransactions: %w", batchInsertError(multi))
	}
	return fmt.Errorf("CreateTransactions: inserting rows: %w", err)
}

func batchInsertError(multi bigquery.PutMultiError) *domain.BatchInsertError {
	failed := make(map[int]error, len(multi))
	for _, rowErr := range multi {
		failed[rowErr.RowIndex] = rowErr.Errors
	}
	return &domain.BatchInsertError{Failed: failed}
}

// FindDuplicates returns the non-deleted transactions of an organization in
// the query's date and base-amount window.
func (s *Store) FindDuplicates(ctx context.Context, dq domain.DuplicateQuery) ([]domain.ExistingTransaction, error) {
	query := fmt.Sprintf(`
		SELECT
			transaction_id,
			transaction_date,
			amount_base,
			description
		FROM %s
		WHERE organization_id = @org
		  AND deleted_ts IS NULL
		  AND transaction_date BETWEEN @from AND @to
		  AND ABS(amount_base) BETWEEN @min AND @max
		ORDER BY transaction_id
	`, s.tableRef(transactionsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "org", Value: dq.OrganizationID},
		{Name: "from", Value: dq.DateFrom},
		{Name: "to", Value: dq.DateTo},
		{Name: "min", Value: ratFromDecimal(dq.AmountMin)},
		{Name: "max", Value: ratFromDecimal(dq.AmountMax)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindDuplicates: reading query: %w", err)
	}

	var out []domain.ExistingTransaction
	for {
		var row duplicateRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("FindDuplicates: iterating: %w", err)
		}
		amount, err := decimalFromRat(row.AmountBase)
		if err != nil {
			return nil, fmt.Errorf("FindDuplicates: amount of %s: %w", row.TransactionID, err)
		}
		out = append(out, domain.ExistingTransaction{
			ID:          row.TransactionID,
			Date:        row.TransactionDate,
			AmountBase:  amount,
			Description: row.Description,
		})
	}

	return out, nil
}
