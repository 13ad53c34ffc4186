package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

const tagsTable = "tags"

// FindOrCreateTags resolves tag names to ids, creating the missing ones with
// the given spelling. Ids are returned in the order of names. If a tag is
// still missing after the inserts, domain.ErrConflict is returned so the
// caller can retry.
func (s *Store) FindOrCreateTags(ctx context.Context, orgID string, names []string) ([]string, error) {
	display := make(map[string]string, len(names))
	var normalized []string
	for _, n := range names {
		key := domain.NormalizeName(n)
		if key == "" {
			continue
		}
		if _, ok := display[key]; !ok {
			display[key] = n
			normalized = append(normalized, key)
		}
	}
	if len(normalized) == 0 {
		return nil, nil
	}

	ids, err := s.findTags(ctx, orgID, normalized)
	if err != nil {
		return nil, fmt.Errorf("FindOrCreateTags: %w", err)
	}

	created := false
	for _, key := range normalized {
		if _, ok := ids[key]; ok {
			continue
		}
		if err := s.insertTag(ctx, orgID, display[key], key); err != nil {
			return nil, fmt.Errorf("FindOrCreateTags: %w", err)
		}
		created = true
	}
	if created {
		if ids, err = s.findTags(ctx, orgID, normalized); err != nil {
			return nil, fmt.Errorf("FindOrCreateTags: %w", err)
		}
	}

	out := make([]string, 0, len(normalized))
	for _, key := range normalized {
		id, ok := ids[key]
		if !ok {
			return nil, fmt.Errorf("FindOrCreateTags: tag %q: %w", display[key], domain.ErrConflict)
		}
		out = append(out, id)
	}
	return out, nil
}

// findTags maps normalized names to the oldest tag id carrying them.
func (s *Store) findTags(ctx context.Context, orgID string, normalized []string) (map[string]string, error) {
	query := fmt.Sprintf(`
		SELECT
			tag_id,
			organization_id,
			name,
			normalized_name,
			created_ts
		FROM %s
		WHERE organization_id = @org
		  AND normalized_name IN UNNEST(@names)
		ORDER BY created_ts ASC
	`, s.tableRef(tagsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "org", Value: orgID},
		{Name: "names", Value: normalized},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading tags: %w", err)
	}

	ids := make(map[string]string, len(normalized))
	for {
		var row TagRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating tags: %w", err)
		}
		if _, ok := ids[row.NormalizedName]; !ok {
			ids[row.NormalizedName] = row.TagID
		}
	}
	return ids, nil
}

// insertTag creates a tag unless its normalized name already exists. A lost
// race inserts nothing; the following lookup picks up the winner.
func (s *Store) insertTag(ctx context.Context, orgID, name, normalized string) error {
	table := s.tableRef(tagsTable)
	query := fmt.Sprintf(`
		INSERT INTO %s (tag_id, organization_id, name, normalized_name, created_ts)
		SELECT @id, @org, @name, @normalized, CURRENT_TIMESTAMP()
		FROM UNNEST([1])
		WHERE NOT EXISTS (
			SELECT 1 FROM %s WHERE organization_id = @org AND normalized_name = @normalized
		)
	`, table, table)

	if _, err := s.runDML(ctx, query, []bigquery.QueryParameter{
		{Name: "id", Value: uuid.NewString()},
		{Name: "org", Value: orgID},
		{Name: "name", Value: name},
		{Name: "normalized", Value: normalized},
	}); err != nil {
		return fmt.Errorf("inserting tag %q: %w", name, err)
	}
	return nil
}
