package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"google.golang.org/api/iterator"
)

const templatesTable = "import_templates"

const templateColumns = `
			template_id,
			organization_id,
			name,
			normalized_name,
			mapping,
			options,
			created_by,
			created_ts,
			updated_ts`

// GetTemplate retrieves one template. Returns nil if it does not exist.
func (s *Store) GetTemplate(ctx context.Context, orgID, id string) (*domain.ImportTemplate, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE organization_id = @org AND template_id = @id LIMIT 1`,
		templateColumns, s.tableRef(templatesTable))

	list, err := s.readTemplates(ctx, query, []bigquery.QueryParameter{
		{Name: "org", Value: orgID},
		{Name: "id", Value: id},
	})
	if err != nil {
		return nil, fmt.Errorf("GetTemplate: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// FindTemplateByName finds a template by case-insensitive name. Returns nil if none matches.
func (s *Store) FindTemplateByName(ctx context.Context, orgID, name string) (*domain.ImportTemplate, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE organization_id = @org AND normalized_name = @name LIMIT 1`,
		templateColumns, s.tableRef(templatesTable))

	list, err := s.readTemplates(ctx, query, []bigquery.QueryParameter{
		{Name: "org", Value: orgID},
		{Name: "name", Value: domain.NormalizeName(name)},
	})
	if err != nil {
		return nil, fmt.Errorf("FindTemplateByName: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// ListTemplates retrieves all templates of an organization ordered by name.
func (s *Store) ListTemplates(ctx context.Context, orgID string) ([]domain.ImportTemplate, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE organization_id = @org ORDER BY normalized_name`,
		templateColumns, s.tableRef(templatesTable))

	list, err := s.readTemplates(ctx, query, []bigquery.QueryParameter{{Name: "org", Value: orgID}})
	if err != nil {
		return nil, fmt.Errorf("ListTemplates: %w", err)
	}
	return list, nil
}

func (s *Store) readTemplates(ctx context.Context, query string, params []bigquery.QueryParameter) ([]domain.ImportTemplate, error) {
	q := s.client.Query(query)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading query: %w", err)
	}

	var out []domain.ImportTemplate
	for {
		var row TemplateRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating: %w", err)
		}
		t, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

// CreateTemplate inserts a template unless its name is taken in the
// organization, in which case domain.ErrConflict is returned.
func (s *Store) CreateTemplate(ctx context.Context, t domain.ImportTemplate) error {
	mapping, options, err := templateJSON(t)
	if err != nil {
		return fmt.Errorf("CreateTemplate: %w", err)
	}

	table := s.tableRef(templatesTable)
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT @id, @org, @name, @normalized, PARSE_JSON(@mapping), PARSE_JSON(@options), @created_by, @created_ts, @updated_ts
		FROM UNNEST([1])
		WHERE NOT EXISTS (
			SELECT 1 FROM %s WHERE organization_id = @org AND normalized_name = @normalized
		)
	`, table, templateColumns, table)

	affected, err := s.runDML(ctx, query, []bigquery.QueryParameter{
		{Name: "id", Value: t.ID},
		{Name: "org", Value: t.OrganizationID},
		{Name: "name", Value: t.Name},
		{Name: "normalized", Value: domain.NormalizeName(t.Name)},
		{Name: "mapping", Value: mapping},
		{Name: "options", Value: options},
		{Name: "created_by", Value: t.CreatedBy},
		{Name: "created_ts", Value: t.CreatedAt},
		{Name: "updated_ts", Value: t.UpdatedAt},
	})
	if err != nil {
		return fmt.Errorf("CreateTemplate: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("CreateTemplate: %q: %w", t.Name, domain.ErrConflict)
	}
	return nil
}

// UpdateTemplate replaces the name, mapping and options of a template.
func (s *Store) UpdateTemplate(ctx context.Context, t domain.ImportTemplate) error {
	mapping, options, err := templateJSON(t)
	if err != nil {
		return fmt.Errorf("UpdateTemplate: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET name = @name,
			normalized_name = @normalized,
			mapping = PARSE_JSON(@mapping),
			options = PARSE_JSON(@options),
			updated_ts = @updated_ts
		WHERE organization_id = @org AND template_id = @id
	`, s.tableRef(templatesTable))

	affected, err := s.runDML(ctx, query, []bigquery.QueryParameter{
		{Name: "id", Value: t.ID},
		{Name: "org", Value: t.OrganizationID},
		{Name: "name", Value: t.Name},
		{Name: "normalized", Value: domain.NormalizeName(t.Name)},
		{Name: "mapping", Value: mapping},
		{Name: "options", Value: options},
		{Name: "updated_ts", Value: t.UpdatedAt},
	})
	if err != nil {
		return fmt.Errorf("UpdateTemplate: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("UpdateTemplate: template %s: %w", t.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteTemplate removes a template.
func (s *Store) DeleteTemplate(ctx context.Context, orgID, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE organization_id = @org AND template_id = @id`,
		s.tableRef(templatesTable))

	affected, err := s.runDML(ctx, query, []bigquery.QueryParameter{
		{Name: "org", Value: orgID},
		{Name: "id", Value: id},
	})
	if err != nil {
		return fmt.Errorf("DeleteTemplate: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("DeleteTemplate: template %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
