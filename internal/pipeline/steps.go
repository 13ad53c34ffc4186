package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/bookkeeper/internal/domain"
)

// PipelineStep represents a single stage of an import run.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds what one run has produced so far. It lives for a single
// preview or commit call.
type PipelineState struct {
	OrganizationID string
	Filename       string
	Data           []byte
	// Files is set for archive imports only.
	Files    map[string]ArchiveFile
	Archive  bool
	Mapping  domain.ColumnMapping
	Options  domain.ParsingOptions
	Settings domain.AccountingSettings

	Parsed   *ParsedFile
	Resolved ResolvedMapping
	Mapped   []MappedRow
	Rows     []NormalizedImportRow
}

// Step 1: ParseStep reads the delimited file into raw rows.
type ParseStep struct{}

func (s *ParseStep) Execute(ctx context.Context, state *PipelineState) error {
	parsed, err := ParseFile(state.Data, state.Options)
	if err != nil {
		return err
	}
	state.Parsed = parsed
	return nil
}

// Step 2: MapStep resolves the column mapping and reshapes rows onto fields.
type MapStep struct{}

func (s *MapStep) Execute(ctx context.Context, state *PipelineState) error {
	resolved, err := ResolveMapping(state.Mapping, state.Parsed.Header, state.Options.Direction)
	if err != nil {
		return err
	}
	state.Resolved = resolved
	state.Mapped = MapRows(state.Parsed.Rows, resolved, state.Options.Direction)
	return nil
}

// Step 3: NormalizeStep validates every mapped row.
type NormalizeStep struct {
	Reference      ReferenceData
	Counterparties CounterpartyStore
	Now            func() time.Time
}

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	accounts, err := s.Reference.ListActiveAccounts(ctx, state.OrganizationID)
	if err != nil {
		return fmt.Errorf("NormalizeStep: listing accounts: %w", err)
	}
	categories, err := s.Reference.ListActiveCategories(ctx, state.OrganizationID)
	if err != nil {
		return fmt.Errorf("NormalizeStep: listing categories: %w", err)
	}

	n := NewNormalizer(state.Settings, state.Options.ExchangeRates, accounts, categories, s.Counterparties, s.Now())
	state.Rows = make([]NormalizedImportRow, 0, len(state.Mapped))
	for _, mr := range state.Mapped {
		row, err := n.Normalize(ctx, mr)
		if err != nil {
			return fmt.Errorf("NormalizeStep: %w", err)
		}
		state.Rows = append(state.Rows, row)
	}
	return nil
}

// Step 4: AttachDocumentsStep checks document references. Plain files carry
// no attachments, so references there are only noted.
type AttachDocumentsStep struct {
	Policy DocumentPolicy
}

func (s *AttachDocumentsStep) Execute(ctx context.Context, state *PipelineState) error {
	for i := range state.Rows {
		row := &state.Rows[i]
		if row.DocumentPath == "" {
			continue
		}
		if !state.Archive {
			row.Warnings = append(row.Warnings, fmt.Sprintf("document %q ignored: attachments need an archive import", row.DocumentPath))
			continue
		}
		Associate(row, state.Files, s.Policy)
	}
	return nil
}

// Step 5: DetectDuplicatesStep flags rows that resemble persisted transactions.
type DetectDuplicatesStep struct {
	Detector *DuplicateDetector
}

func (s *DetectDuplicatesStep) Execute(ctx context.Context, state *PipelineState) error {
	return s.Detector.Detect(ctx, state.OrganizationID, state.Rows)
}

// Pipeline executes steps in order, stopping at the first error.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs every step against state.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for _, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return err
		}
	}
	return nil
}
