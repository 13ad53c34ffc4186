package bigquery

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bookkeeper/internal/domain"
)

// TemplateRow is one row of the import_templates table. Mapping and options
// are stored as JSON.
type TemplateRow struct {
	TemplateID     string            `bigquery:"template_id"`
	OrganizationID string            `bigquery:"organization_id"`
	Name           string            `bigquery:"name"`
	NormalizedName string            `bigquery:"normalized_name"`
	Mapping        bigquery.NullJSON `bigquery:"mapping"`
	Options        bigquery.NullJSON `bigquery:"options"`
	CreatedBy      string            `bigquery:"created_by"`
	CreatedTS      time.Time         `bigquery:"created_ts"`
	UpdatedTS      time.Time         `bigquery:"updated_ts"`
}

func (r *TemplateRow) toDomain() (*domain.ImportTemplate, error) {
	t := &domain.ImportTemplate{
		ID:             r.TemplateID,
		OrganizationID: r.OrganizationID,
		Name:           r.Name,
		Mapping:        domain.ColumnMapping{},
		Options:        domain.DefaultParsingOptions(),
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedTS,
		UpdatedAt:      r.UpdatedTS,
	}
	if r.Mapping.Valid {
		if err := json.Unmarshal([]byte(r.Mapping.JSONVal), &t.Mapping); err != nil {
			return nil, fmt.Errorf("template %s: decoding mapping: %w", r.TemplateID, err)
		}
	}
	if r.Options.Valid {
		if err := json.Unmarshal([]byte(r.Options.JSONVal), &t.Options); err != nil {
			return nil, fmt.Errorf("template %s: decoding options: %w", r.TemplateID, err)
		}
	}
	return t, nil
}

// templateJSON encodes the mapping and options columns.
func templateJSON(t domain.ImportTemplate) (mapping, options string, err error) {
	m, err := json.Marshal(t.Mapping)
	if err != nil {
		return "", "", fmt.Errorf("encoding mapping: %w", err)
	}
	o, err := json.Marshal(t.Options)
	if err != nil {
		return "", "", fmt.Errorf("encoding options: %w", err)
	}
	return string(m), string(o), nil
}
