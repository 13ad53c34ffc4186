package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"google.golang.org/api/iterator"
)

const settingsTable = "organization_settings"

// GetAccountingSettings reads an organization's accounting settings.
// Returns nil if the organization has none.
func (s *Store) GetAccountingSettings(ctx context.Context, orgID string) (*domain.AccountingSettings, error) {
	query := fmt.Sprintf(`
		SELECT
			organization_id,
			base_currency,
			date_format,
			decimal_separator,
			IFNULL(thousands_separator, "") AS thousands_separator
		FROM %s
		WHERE organization_id = @org
		LIMIT 1
	`, s.tableRef(settingsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{{Name: "org", Value: orgID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetAccountingSettings: reading query: %w", err)
	}

	var row SettingsRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccountingSettings: iterating: %w", err)
	}

	return &domain.AccountingSettings{
		OrganizationID:     row.OrganizationID,
		BaseCurrency:       row.BaseCurrency,
		DateOrder:          domain.DateOrder(row.DateFormat),
		DecimalSeparator:   row.DecimalSeparator,
		ThousandsSeparator: row.ThousandsSeparator,
	}, nil
}
