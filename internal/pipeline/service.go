package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultMaxFileBytes     = 5 << 20
	DefaultMaxArchiveBytes  = 25 << 20
	DefaultMaxDocumentBytes = 10 << 20
	DefaultBatchSize        = 100
)

// Options tune an import Service.
type Options struct {
	MaxFileBytes         int64
	MaxArchiveBytes      int64
	MaxDocumentBytes     int64
	AllowedDocumentTypes []string
	BatchSize            int
	AmountTolerance      decimal.Decimal
	FuzzyThreshold       float64
	// Now is the clock used for date plausibility and record timestamps.
	Now func() time.Time
}

// DefaultOptions returns the limits used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxFileBytes:         DefaultMaxFileBytes,
		MaxArchiveBytes:      DefaultMaxArchiveBytes,
		MaxDocumentBytes:     DefaultMaxDocumentBytes,
		AllowedDocumentTypes: DefaultDocumentTypes,
		BatchSize:            DefaultBatchSize,
		AmountTolerance:      decimal.New(1, -2),
		Now:                  time.Now,
	}
}

// Deps are the collaborators an import Service reads from and writes to.
type Deps struct {
	Settings       SettingsStore
	Reference      ReferenceData
	Counterparties CounterpartyStore
	Tags           TagStore
	Transactions   TransactionStore
	Documents      DocumentStore
	Storage        DocumentStorage
	Audit          AuditLog
	Templates      TemplateSource
}

// Service runs import previews and commits. It keeps no state between calls.
type Service struct {
	deps Deps
	opts Options
	log  zerolog.Logger
}

// NewService creates an import service. Zero option fields take defaults.
func NewService(deps Deps, opts Options, log zerolog.Logger) *Service {
	def := DefaultOptions()
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = def.MaxFileBytes
	}
	if opts.MaxArchiveBytes <= 0 {
		opts.MaxArchiveBytes = def.MaxArchiveBytes
	}
	if opts.MaxDocumentBytes <= 0 {
		opts.MaxDocumentBytes = def.MaxDocumentBytes
	}
	if len(opts.AllowedDocumentTypes) == 0 {
		opts.AllowedDocumentTypes = def.AllowedDocumentTypes
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	return &Service{deps: deps, opts: opts, log: log}
}

// ImportConfig selects the mapping and parsing options of a run: an optional
// stored template plus one-off overrides that never change the template.
type ImportConfig struct {
	TemplateID string                         `json:"templateId,omitempty" yaml:"template_id,omitempty"`
	Mapping    domain.ColumnMapping           `json:"mapping,omitempty" yaml:"mapping,omitempty"`
	Options    *domain.ParsingOptionsOverride `json:"options,omitempty" yaml:"options,omitempty"`
}

// Upload is a user-supplied file.
type Upload struct {
	Filename string
	Data     []byte
}

// PreviewRequest is the input of a preview; commits repeat it verbatim.
type PreviewRequest struct {
	OrganizationID string
	Actor          string
	File           Upload
	// Archive selects the zip variant carrying attachments.
	Archive bool
	Config  ImportConfig
}

// Summary counts rows by classification.
type Summary struct {
	TotalRows           int `json:"totalRows"`
	ValidRows           int `json:"validRows"`
	InvalidRows         int `json:"invalidRows"`
	DuplicateCandidates int `json:"duplicateCandidates"`
}

// PreviewResult is every row's classification plus the configuration applied,
// so a client can send the same configuration to commit.
type PreviewResult struct {
	Filename string                `json:"filename"`
	Header   []string              `json:"header,omitempty"`
	Mapping  domain.ColumnMapping  `json:"mapping"`
	Options  domain.ParsingOptions `json:"options"`
	Rows     []NormalizedImportRow `json:"rows"`
	Summary  Summary               `json:"summary"`
}

// Preview classifies every row without writing anything.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	state, err := s.run(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{
		Filename: req.File.Filename,
		Header:   state.Parsed.Header,
		Mapping:  state.Mapping,
		Options:  state.Options,
		Rows:     state.Rows,
	}
	result.Summary.TotalRows = len(state.Rows)
	for _, row := range state.Rows {
		if row.Status == StatusValid {
			result.Summary.ValidRows++
		} else {
			result.Summary.InvalidRows++
		}
		if row.IsDuplicateCandidate {
			result.Summary.DuplicateCandidates++
		}
	}

	s.log.Info().
		Str("organization_id", req.OrganizationID).
		Str("filename", req.File.Filename).
		Int("total_rows", result.Summary.TotalRows).
		Int("invalid_rows", result.Summary.InvalidRows).
		Int("duplicate_candidates", result.Summary.DuplicateCandidates).
		Msg("Import preview completed")

	return result, nil
}

// run is the read-only pipeline shared by Preview and Commit.
func (s *Service) run(ctx context.Context, req PreviewRequest) (*PipelineState, error) {
	state, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	p := NewPipeline(
		&ParseStep{},
		&MapStep{},
		&NormalizeStep{Reference: s.deps.Reference, Counterparties: s.deps.Counterparties, Now: s.opts.Now},
		&AttachDocumentsStep{Policy: DocumentPolicy{MaxBytes: s.opts.MaxDocumentBytes, AllowedTypes: s.opts.AllowedDocumentTypes}},
		&DetectDuplicatesStep{Detector: NewDuplicateDetector(s.deps.Transactions, s.opts.AmountTolerance, s.opts.FuzzyThreshold)},
	)
	if err := p.Execute(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// prepare checks the upload and resolves configuration and settings. Every
// failure here is structural.
func (s *Service) prepare(ctx context.Context, req PreviewRequest) (*PipelineState, error) {
	if req.OrganizationID == "" {
		return nil, errors.New("prepare: organization id is required")
	}

	state := &PipelineState{
		OrganizationID: req.OrganizationID,
		Filename:       req.File.Filename,
		Archive:        req.Archive,
	}

	if err := s.unpack(req, state); err != nil {
		return nil, err
	}

	mapping, options, err := s.resolveConfig(ctx, req.OrganizationID, req.Config)
	if err != nil {
		return nil, err
	}
	state.Mapping, state.Options = mapping, options

	settings, err := s.deps.Settings.GetAccountingSettings(ctx, req.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("prepare: reading accounting settings: %w", err)
	}
	if settings == nil {
		return nil, ErrMissingSettings
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	effective, err := options.Resolve(*settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	effective.OrganizationID = req.OrganizationID
	state.Settings = effective

	return state, nil
}

// unpack enforces extension and size caps and extracts the delimited data.
func (s *Service) unpack(req PreviewRequest, state *PipelineState) error {
	name := req.File.Filename
	size := int64(len(req.File.Data))

	if !req.Archive {
		if !isDelimitedName(name) {
			return fmt.Errorf("%w: %q is not a .csv file", ErrUnsupportedFile, name)
		}
		if size > s.opts.MaxFileBytes {
			return fmt.Errorf("%w: %d bytes, the limit is %d", ErrFileTooLarge, size, s.opts.MaxFileBytes)
		}
		state.Data = req.File.Data
		return nil
	}

	if strings.ToLower(path.Ext(name)) != ".zip" {
		return fmt.Errorf("%w: %q is not a .zip archive", ErrUnsupportedFile, name)
	}
	if size > s.opts.MaxArchiveBytes {
		return fmt.Errorf("%w: %d bytes, the limit is %d", ErrFileTooLarge, size, s.opts.MaxArchiveBytes)
	}
	archive, err := OpenArchive(req.File.Data, s.opts.MaxFileBytes, s.opts.MaxDocumentBytes)
	if err != nil {
		return err
	}
	state.Data = archive.Data
	state.Files = archive.Files
	return nil
}

// resolveConfig merges the referenced template with the request's overrides
// and validates the result once for the whole run.
func (s *Service) resolveConfig(ctx context.Context, orgID string, cfg ImportConfig) (domain.ColumnMapping, domain.ParsingOptions, error) {
	mapping := domain.ColumnMapping{}
	options := domain.DefaultParsingOptions()

	if cfg.TemplateID != "" {
		if s.deps.Templates == nil {
			return nil, domain.ParsingOptions{}, fmt.Errorf("resolveConfig: template %s: %w", cfg.TemplateID, domain.ErrNotFound)
		}
		tmpl, err := s.deps.Templates.GetTemplate(ctx, orgID, cfg.TemplateID)
		if err != nil {
			return nil, domain.ParsingOptions{}, fmt.Errorf("resolveConfig: loading template: %w", err)
		}
		if tmpl == nil {
			return nil, domain.ParsingOptions{}, fmt.Errorf("resolveConfig: template %s: %w", cfg.TemplateID, domain.ErrNotFound)
		}
		mapping, options = tmpl.Mapping, tmpl.Options
	}

	mapping = mapping.Merge(cfg.Mapping)
	options = options.Apply(cfg.Options)

	if err := options.Validate(); err != nil {
		return nil, domain.ParsingOptions{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if _, err := delimiterRune(options.Delimiter); err != nil {
		return nil, domain.ParsingOptions{}, err
	}
	if err := mapping.Validate(options.Direction); err != nil {
		return nil, domain.ParsingOptions{}, fmt.Errorf("%w: %v", ErrMissingMapping, err)
	}
	return mapping, options, nil
}

// isDelimitedName reports whether a file name has a delimited-text extension.
func isDelimitedName(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".tsv":
		return true
	}
	return false
}
