package bigquery

import "time"

// TagRow is one row of the tags table.
type TagRow struct {
	TagID          string    `bigquery:"tag_id"`
	OrganizationID string    `bigquery:"organization_id"`
	Name           string    `bigquery:"name"`
	NormalizedName string    `bigquery:"normalized_name"`
	CreatedTS      time.Time `bigquery:"created_ts"`
}
