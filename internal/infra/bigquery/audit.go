package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// AuditRow is one row of the append-only audit_log table.
type AuditRow struct {
	AuditID        string            `bigquery:"audit_id"`
	OrganizationID string            `bigquery:"organization_id"`
	Action         string            `bigquery:"action"`
	Actor          string            `bigquery:"actor"`
	Metadata       bigquery.NullJSON `bigquery:"metadata"`
	CreatedTS      time.Time         `bigquery:"created_ts"`
}
