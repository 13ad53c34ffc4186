package bigquery

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bookkeeper/internal/domain"
)

const auditTable = "audit_log"

// AppendAudit writes one audit entry.
func (s *Store) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	row := &AuditRow{
		AuditID:        entry.ID,
		OrganizationID: entry.OrganizationID,
		Action:         entry.Action,
		Actor:          entry.Actor,
		CreatedTS:      entry.CreatedAt,
	}
	if len(entry.Metadata) > 0 {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("AppendAudit: marshaling metadata: %w", err)
		}
		row.Metadata = bigquery.NullJSON{JSONVal: string(b), Valid: true}
	}

	if err := s.table(auditTable).Inserter().Put(ctx, row); err != nil {
		return fmt.Errorf("AppendAudit: inserting row: %w", err)
	}
	return nil
}
