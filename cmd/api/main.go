package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/bookkeeper/internal/api"
	"github.com/dvloznov/bookkeeper/internal/config"
	"github.com/dvloznov/bookkeeper/internal/gcs"
	infraBQ "github.com/dvloznov/bookkeeper/internal/infra/bigquery"
	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/dvloznov/bookkeeper/internal/templates"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", os.Getenv("BOOKKEEPER_CONFIG"), "Path to bookkeeper.yaml (or set BOOKKEEPER_CONFIG env)")
		port       = flag.Int("port", 0, "HTTP server port, overrides the config")
	)
	flag.Parse()

	bootLog := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log, err := logger.NewWithOptions(os.Stdout, cfg.Log)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to create logger")
	}

	if cfg.GCP.ProjectID == "" {
		log.Fatal().Msg("GCP project is not configured (set gcp.project_id or GCP_PROJECT_ID)")
	}

	ctx := context.Background()

	store, err := infraBQ.NewStore(ctx, cfg.GCP.ProjectID, cfg.GCP.DatasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery store")
	}
	defer store.Close()

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

	if cfg.GCP.Bucket == "" {
		log.Warn().Msg("No GCS bucket configured - archive imports cannot store documents")
	} else {
		docStorage, err := gcs.NewStorage(ctx, cfg.GCP.Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create document storage")
		}
		defer docStorage.Close()
		deps.Storage = docStorage
	}

	opts := cfg.PipelineOptions()
	importService := pipeline.NewService(deps, opts, log.With().Str("component", "import").Logger())
	templateService := templates.NewService(store, log.With().Str("component", "templates").Logger())

	maxUpload := opts.MaxFileBytes
	if opts.MaxArchiveBytes > maxUpload {
		maxUpload = opts.MaxArchiveBytes
	}

	handler := api.NewRouter(api.RouterConfig{
		Imports:        importService,
		Templates:      templateService,
		MaxUploadBytes: maxUpload,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log)

	// Create HTTP server
	addr := ":" + strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Str("dataset", cfg.GCP.DatasetID).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
