package domain

import "time"

// AuditEntry is one append-only audit log record.
type AuditEntry struct {
	ID             string
	Action         string
	Actor          string
	OrganizationID string
	Metadata       map[string]interface{}
	CreatedAt      time.Time
}
