package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"google.golang.org/api/iterator"
)

const counterpartiesTable = "counterparties"

// FindCounterparty finds a vendor or client by normalized name.
// Returns nil if no match is found.
func (s *Store) FindCounterparty(ctx context.Context, orgID string, kind domain.CounterpartyKind, name string) (*domain.Counterparty, error) {
	norm := domain.NormalizeName(name)
	if norm == "" {
		return nil, fmt.Errorf("FindCounterparty: name cannot be empty")
	}

	query := fmt.Sprintf(`
		SELECT
			counterparty_id,
			organization_id,
			kind,
			name,
			normalized_name,
			created_ts
		FROM %s
		WHERE organization_id = @org
		  AND kind = @kind
		  AND normalized_name = @name
		ORDER BY created_ts ASC
		LIMIT 1
	`, s.tableRef(counterpartiesTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "org", Value: orgID},
		{Name: "kind", Value: string(kind)},
		{Name: "name", Value: norm},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindCounterparty: reading query: %w", err)
	}

	var row CounterpartyRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindCounterparty: iterating: %w", err)
	}

	return &domain.Counterparty{
		ID:             row.CounterpartyID,
		OrganizationID: row.OrganizationID,
		Kind:           domain.CounterpartyKind(row.Kind),
		Name:           row.Name,
	}, nil
}

// CreateCounterparty inserts a vendor or client unless one with the same
// normalized name exists, in which case domain.ErrConflict is returned.
func (s *Store) CreateCounterparty(ctx context.Context, c domain.Counterparty) error {
	table := s.tableRef(counterpartiesTable)
	query := fmt.Sprintf(`
		INSERT INTO %s (counterparty_id, organization_id, kind, name, normalized_name, created_ts)
		SELECT @id, @org, @kind, @name, @normalized, CURRENT_TIMESTAMP()
		FROM UNNEST([1])
		WHERE NOT EXISTS (
			SELECT 1 FROM %s
			WHERE organization_id = @org AND kind = @kind AND normalized_name = @normalized
		)
	`, table, table)

	affected, err := s.runDML(ctx, query, []bigquery.QueryParameter{
		{Name: "id", Value: c.ID},
		{Name: "org", Value: c.OrganizationID},
		{Name: "kind", Value: string(c.Kind)},
		{Name: "name", Value: c.Name},
		{Name: "normalized", Value: domain.NormalizeName(c.Name)},
	})
	if err != nil {
		return fmt.Errorf("CreateCounterparty: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("CreateCounterparty: %s %q: %w", c.Kind, c.Name, domain.ErrConflict)
	}
	return nil
}
