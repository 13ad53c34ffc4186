package domain

import "time"

// ImportTemplate is a named mapping and parsing configuration reused across imports.
type ImportTemplate struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organizationId"`
	Name           string         `json:"name"`
	Mapping        ColumnMapping  `json:"mapping"`
	Options        ParsingOptions `json:"options"`
	CreatedBy      string         `json:"createdBy"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}
