package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"google.golang.org/api/iterator"
)

const categoriesTable = "categories"

// ListActiveCategories retrieves the active categories of an organization ordered by name.
func (s *Store) ListActiveCategories(ctx context.Context, orgID string) ([]domain.Category, error) {
	query := fmt.Sprintf(`
		SELECT
			category_id,
			organization_id,
			name,
			type,
			is_active
		FROM %s
		WHERE organization_id = @org
		  AND is_active = TRUE
		ORDER BY name, category_id
	`, s.tableRef(categoriesTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{{Name: "org", Value: orgID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListActiveCategories: reading query: %w", err)
	}

	var categories []domain.Category
	for {
		var row CategoryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListActiveCategories: iterating: %w", err)
		}
		categories = append(categories, domain.Category{
			ID:   row.CategoryID,
			Name: row.Name,
			Type: domain.TransactionType(row.Type),
		})
	}

	return categories, nil
}
