// Package config loads bookkeeper settings from a YAML file overlaid by
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the top-level bookkeeper.yaml configuration.
type Config struct {
	Server ServerConfig   `yaml:"server"`
	GCP    GCPConfig      `yaml:"gcp"`
	Import ImportConfig   `yaml:"import"`
	Log    logger.Options `yaml:"log"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimit is requests per second per organization; zero disables limiting.
	RateLimit      float64  `yaml:"rate_limit"`
	RateBurst      int      `yaml:"rate_burst"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GCPConfig names the BigQuery dataset and the document bucket.
type GCPConfig struct {
	ProjectID string `yaml:"project_id"`
	DatasetID string `yaml:"dataset_id"`
	Bucket    string `yaml:"bucket"`
}

// ImportConfig holds pipeline limits.
type ImportConfig struct {
	MaxFileBytes         int64    `yaml:"max_file_bytes"`
	MaxArchiveBytes      int64    `yaml:"max_archive_bytes"`
	MaxDocumentBytes     int64    `yaml:"max_document_bytes"`
	AllowedDocumentTypes []string `yaml:"allowed_document_types"`
	BatchSize            int      `yaml:"batch_size"`
	AmountTolerance      string   `yaml:"amount_tolerance"`
	FuzzyThreshold       float64  `yaml:"fuzzy_threshold"`
}

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			RateLimit:       5,
			RateBurst:       10,
			AllowedOrigins:  []string{"*"},
		},
		GCP: GCPConfig{
			DatasetID: "bookkeeper",
		},
		Import: ImportConfig{
			MaxFileBytes:         pipeline.DefaultMaxFileBytes,
			MaxArchiveBytes:      pipeline.DefaultMaxArchiveBytes,
			MaxDocumentBytes:     pipeline.DefaultMaxDocumentBytes,
			AllowedDocumentTypes: append([]string(nil), pipeline.DefaultDocumentTypes...),
			BatchSize:            pipeline.DefaultBatchSize,
			AmountTolerance:      "0.01",
		},
		Log: logger.Options{Level: "info", Format: logger.FormatConsole},
	}
}

// Load reads the YAML file at path over the defaults, then applies a .env
// file and environment variables. An empty path or a missing file leaves
// the defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	c.GCP.ProjectID = getEnv("GCP_PROJECT_ID", c.GCP.ProjectID)
	c.GCP.DatasetID = getEnv("BQ_DATASET_ID", c.GCP.DatasetID)
	c.GCP.Bucket = getEnv("GCS_BUCKET", c.GCP.Bucket)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = logger.Format(getEnv("LOG_FORMAT", string(c.Log.Format)))

	if c.Server.Port, err = getEnvInt("PORT", c.Server.Port); err != nil {
		return err
	}
	if c.Server.RateLimit, err = getEnvFloat("RATE_LIMIT", c.Server.RateLimit); err != nil {
		return err
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	if c.Import.BatchSize, err = getEnvInt("IMPORT_BATCH_SIZE", c.Import.BatchSize); err != nil {
		return err
	}
	if c.Import.FuzzyThreshold, err = getEnvFloat("IMPORT_FUZZY_THRESHOLD", c.Import.FuzzyThreshold); err != nil {
		return err
	}
	c.Import.AmountTolerance = getEnv("IMPORT_AMOUNT_TOLERANCE", c.Import.AmountTolerance)
	return nil
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("config: rate limit must not be negative")
	}
	if c.Import.BatchSize < 0 {
		return fmt.Errorf("config: batch size must not be negative")
	}
	if c.Import.FuzzyThreshold < 0 || c.Import.FuzzyThreshold > 1 {
		return fmt.Errorf("config: fuzzy threshold must be between 0 and 1")
	}
	if _, err := c.tolerance(); err != nil {
		return err
	}
	return nil
}

func (c *Config) tolerance() (decimal.Decimal, error) {
	if strings.TrimSpace(c.Import.AmountTolerance) == "" {
		return decimal.New(1, -2), nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(c.Import.AmountTolerance))
	if err != nil || d.IsNegative() {
		return decimal.Zero, fmt.Errorf("config: invalid amount tolerance %q", c.Import.AmountTolerance)
	}
	return d, nil
}

// PipelineOptions converts the import section into pipeline options.
func (c *Config) PipelineOptions() pipeline.Options {
	tol, err := c.tolerance()
	if err != nil {
		tol = decimal.New(1, -2)
	}
	return pipeline.Options{
		MaxFileBytes:         c.Import.MaxFileBytes,
		MaxArchiveBytes:      c.Import.MaxArchiveBytes,
		MaxDocumentBytes:     c.Import.MaxDocumentBytes,
		AllowedDocumentTypes: c.Import.AllowedDocumentTypes,
		BatchSize:            c.Import.BatchSize,
		AmountTolerance:      tol,
		FuzzyThreshold:       c.Import.FuzzyThreshold,
		Now:                  time.Now,
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
