// Package commands implements the bookkeeper command line.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dvloznov/bookkeeper/internal/config"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/dvloznov/bookkeeper/internal/templates"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// ImportService previews and commits imports.
type ImportService interface {
	Preview(ctx context.Context, req pipeline.PreviewRequest) (*pipeline.PreviewResult, error)
	Commit(ctx context.Context, req pipeline.CommitRequest) (*pipeline.CommitResult, error)
}

// TemplateService reads and creates import templates.
type TemplateService interface {
	List(ctx context.Context, orgID string) ([]domain.ImportTemplate, error)
	Get(ctx context.Context, orgID, id string) (*domain.ImportTemplate, error)
	Create(ctx context.Context, orgID, actor string, in templates.Input) (*domain.ImportTemplate, error)
}

// Backend is what the commands run against.
type Backend struct {
	Imports   ImportService
	Templates TemplateService
	Close     func() error
}

// BackendFactory builds the backend once flags and configuration are known.
type BackendFactory func(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Backend, error)

// globals are the persistent flags shared by every command.
type globals struct {
	configPath string
	orgID      string
	actor      string
	factory    BackendFactory
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(factory BackendFactory) *cobra.Command {
	g := &globals{factory: factory}

	rootCmd := &cobra.Command{
		Use:   "bookkeeper",
		Short: "Import bank and card transactions into the books",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.configPath, "config", os.Getenv("BOOKKEEPER_CONFIG"), "path to bookkeeper.yaml")
	flags.StringVar(&g.orgID, "org", os.Getenv("BOOKKEEPER_ORG"), "organization id")
	flags.StringVar(&g.actor, "user", os.Getenv("BOOKKEEPER_USER"), "acting user id recorded in the audit log")

	rootCmd.AddCommand(
		newPreviewCommand(g),
		newCommitCommand(g),
		newTemplatesCommand(g),
	)

	return rootCmd
}

// backend loads configuration and builds the backend. The caller closes it.
func (g *globals) backend(cmd *cobra.Command) (*Backend, zerolog.Logger, error) {
	if g.orgID == "" {
		return nil, zerolog.Nop(), fmt.Errorf("--org is required (or set BOOKKEEPER_ORG)")
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log, err := logger.NewWithOptions(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	b, err := g.factory(cmd.Context(), cfg, log)
	if err != nil {
		return nil, log, fmt.Errorf("connecting: %w", err)
	}
	return b, log, nil
}

func closeBackend(b *Backend, log zerolog.Logger) {
	if b.Close == nil {
		return
	}
	if err := b.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close backend")
	}
}
