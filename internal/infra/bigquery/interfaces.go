package bigquery

import (
	"context"
	"fmt"
	"math/big"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/dvloznov/bookkeeper/internal/templates"
	"github.com/shopspring/decimal"
)

// Store is the BigQuery record store behind the import pipeline and the
// template service. It holds one shared client for all operations.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewStore creates a Store with its own BigQuery client.
func NewStore(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return NewStoreWithClient(client, projectID, datasetID), nil
}

// NewStoreWithClient creates a Store around an existing client.
func NewStoreWithClient(client *bigquery.Client, projectID, datasetID string) *Store {
	return &Store{client: client, projectID: projectID, datasetID: datasetID}
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// tableRef returns the quoted, fully qualified name of a table for SQL.
func (s *Store) tableRef(table string) string {
	return tableRef(s.projectID, s.datasetID, table)
}

func tableRef(projectID, datasetID, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", projectID, datasetID, table)
}

// table returns a handle for streaming inserts.
func (s *Store) table(name string) *bigquery.Table {
	return s.client.DatasetInProject(s.projectID, s.datasetID).Table(name)
}

// runDML runs a DML statement and returns the number of rows it affected.
func (s *Store) runDML(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error) {
	q := s.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return qs.NumDMLAffectedRows, nil
		}
	}
	return 0, nil
}

// ratFromDecimal converts a decimal to the NUMERIC representation.
func ratFromDecimal(d decimal.Decimal) *big.Rat {
	return d.Rat()
}

// decimalFromRat converts a NUMERIC value back; nil reads as zero.
func decimalFromRat(r *big.Rat) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, nil
	}
	// NUMERIC has a scale of 9
	return decimal.NewFromString(r.FloatString(9))
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

var (
	_ pipeline.SettingsStore     = (*Store)(nil)
	_ pipeline.ReferenceData     = (*Store)(nil)
	_ pipeline.CounterpartyStore = (*Store)(nil)
	_ pipeline.TagStore          = (*Store)(nil)
	_ pipeline.TransactionStore  = (*Store)(nil)
	_ pipeline.DocumentStore     = (*Store)(nil)
	_ pipeline.AuditLog          = (*Store)(nil)
	_ pipeline.TemplateSource    = (*Store)(nil)
	_ templates.Store            = (*Store)(nil)
)
