package bigquery

// CategoryRow is one row of the categories table.
type CategoryRow struct {
	CategoryID     string `bigquery:"category_id"`
	OrganizationID string `bigquery:"organization_id"`
	Name           string `bigquery:"name"`
	Type           string `bigquery:"type"` // income or expense
	IsActive       bool   `bigquery:"is_active"`
}
