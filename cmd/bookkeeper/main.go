package main

import (
	"context"
	"errors"
	"os"

	"github.com/dvloznov/bookkeeper/internal/commands"
	"github.com/dvloznov/bookkeeper/internal/config"
	"github.com/dvloznov/bookkeeper/internal/gcs"
	infraBQ "github.com/dvloznov/bookkeeper/internal/infra/bigquery"
	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/dvloznov/bookkeeper/internal/templates"
	"github.com/rs/zerolog"
)

func main() {
	if err := commands.NewRootCommand(newBackend).Execute(); err != nil {
		os.Exit(1)
	}
}

// newBackend wires the BigQuery store and, when a bucket is configured, GCS
// document storage.
func newBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*commands.Backend, error) {
	if cfg.GCP.ProjectID == "" {
		return nil, errors.New("GCP project is not configured (set gcp.project_id or GCP_PROJECT_ID)")
	}

	store, err := infraBQ.NewStore(ctx, cfg.GCP.ProjectID, cfg.GCP.DatasetID)
	if err != nil {
		return nil, err
	}
	closers := []func() error{store.Close}

	deps := pipeline.Deps{
		Settings:       store,
		Reference:      store,
		Counterparties: store,
		Tags:           store,
		Transactions:   store,
		Documents:      store,
		Audit:          store,
		Templates:      store,
	}
	if cfg.GCP.Bucket != "" {
		docStorage, err := gcs.NewStorage(ctx, cfg.GCP.Bucket)
		if err != nil {
			store.Close()
			return nil, err
		}
		deps.Storage = docStorage
		closers = append(closers, docStorage.Close)
	}

	return &commands.Backend{
		Imports:   pipeline.NewService(deps, cfg.PipelineOptions(), log),
		Templates: templates.NewService(store, log),
		Close: func() error {
			var errs []error
			for _, c := range closers {
				errs = append(errs, c())
			}
			return errors.Join(errs...)
		},
	}, nil
}
