package bigquery

// AccountRow is one row of the accounts table.
type AccountRow struct {
	AccountID      string `bigquery:"account_id"`
	OrganizationID string `bigquery:"organization_id"`
	Name           string `bigquery:"name"`
	Currency       string `bigquery:"currency"`
	IsActive       bool   `bigquery:"is_active"`
}
