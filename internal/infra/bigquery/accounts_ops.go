package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"google.golang.org/api/iterator"
)

const accountsTable = "accounts"

// ListActiveAccounts retrieves the active accounts of an organization ordered by name.
func (s *Store) ListActiveAccounts(ctx context.Context, orgID string) ([]domain.Account, error) {
	query := fmt.Sprintf(`
		SELECT
			account_id,
			organization_id,
			name,
			currency,
			is_active
		FROM %s
		WHERE organization_id = @org
		  AND is_active = TRUE
		ORDER BY name, account_id
	`, s.tableRef(accountsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{{Name: "org", Value: orgID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListActiveAccounts: reading query: %w", err)
	}

	var accounts []domain.Account
	for {
		var row AccountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListActiveAccounts: iterating: %w", err)
		}
		accounts = append(accounts, domain.Account{ID: row.AccountID, Name: row.Name, Currency: row.Currency})
	}

	return accounts, nil
}
