package bigquery

import "time"

// CounterpartyRow is one row of the counterparties table, holding vendors and clients.
type CounterpartyRow struct {
	CounterpartyID string    `bigquery:"counterparty_id"`
	OrganizationID string    `bigquery:"organization_id"`
	Kind           string    `bigquery:"kind"`
	Name           string    `bigquery:"name"`
	NormalizedName string    `bigquery:"normalized_name"`
	CreatedTS      time.Time `bigquery:"created_ts"`
}
