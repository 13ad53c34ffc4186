// Package templates manages the stored column mappings and parsing options
// organizations reuse across imports.
package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxNameLength = 100

var (
	// ErrNameTaken is returned when another template of the organization has the same name.
	ErrNameTaken = errors.New("template name already in use")

	// ErrInvalid is returned for templates whose name, mapping or options are unusable.
	ErrInvalid = errors.New("invalid template")
)

// Store persists templates. Get and FindByName return nil when absent.
type Store interface {
	GetTemplate(ctx context.Context, orgID, id string) (*domain.ImportTemplate, error)
	FindTemplateByName(ctx context.Context, orgID, name string) (*domain.ImportTemplate, error)
	ListTemplates(ctx context.Context, orgID string) ([]domain.ImportTemplate, error)
	CreateTemplate(ctx context.Context, t domain.ImportTemplate) error
	UpdateTemplate(ctx context.Context, t domain.ImportTemplate) error
	DeleteTemplate(ctx context.Context, orgID, id string) error
}

// Input is the editable part of a template.
type Input struct {
	Name    string                `json:"name" yaml:"name"`
	Mapping domain.ColumnMapping  `json:"mapping" yaml:"mapping"`
	Options domain.ParsingOptions `json:"options" yaml:"options"`
}

// Service validates and stores import templates.
type Service struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewService creates a template service.
func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// List returns the organization's templates.
func (s *Service) List(ctx context.Context, orgID string) ([]domain.ImportTemplate, error) {
	list, err := s.store.ListTemplates(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("List: listing templates: %w", err)
	}
	return list, nil
}

// Get returns one template or domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, orgID, id string) (*domain.ImportTemplate, error) {
	t, err := s.store.GetTemplate(ctx, orgID, id)
	if err != nil {
		return nil, fmt.Errorf("Get: reading template: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("Get: template %s: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

// Create validates and stores a new template.
func (s *Service) Create(ctx context.Context, orgID, actor string, in Input) (*domain.ImportTemplate, error) {
	name, err := validate(in)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, orgID, name, ""); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := domain.ImportTemplate{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           name,
		Mapping:        in.Mapping,
		Options:        in.Options,
		CreatedBy:      actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("Create: %q: %w", name, ErrNameTaken)
		}
		return nil, fmt.Errorf("Create: storing template: %w", err)
	}

	s.log.Info().Str("organization_id", orgID).Str("template_id", t.ID).Str("name", name).Msg("Import template created")
	return &t, nil
}

// Update replaces the name, mapping and options of a template.
func (s *Service) Update(ctx context.Context, orgID, id string, in Input) (*domain.ImportTemplate, error) {
	name, err := validate(in)
	if err != nil {
		return nil, err
	}
	t, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, orgID, name, id); err != nil {
		return nil, err
	}

	t.Name, t.Mapping, t.Options = name, in.Mapping, in.Options
	t.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateTemplate(ctx, *t); err != nil {
		return nil, fmt.Errorf("Update: storing template: %w", err)
	}
	return t, nil
}

// Delete removes a template. Imports that referenced it are unaffected.
func (s *Service) Delete(ctx context.Context, orgID, id string) error {
	if _, err := s.Get(ctx, orgID, id); err != nil {
		return err
	}
	if err := s.store.DeleteTemplate(ctx, orgID, id); err != nil {
		return fmt.Errorf("Delete: deleting template: %w", err)
	}
	return nil
}

func (s *Service) ensureNameFree(ctx context.Context, orgID, name, selfID string) error {
	existing, err := s.store.FindTemplateByName(ctx, orgID, name)
	if err != nil {
		return fmt.Errorf("checking template name: %w", err)
	}
	if existing != nil && existing.ID != selfID {
		return fmt.Errorf("%q: %w", name, ErrNameTaken)
	}
	return nil
}

func validate(in Input) (string, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return "", fmt.Errorf("%w: name is required", ErrInvalid)
	case len(name) > maxNameLength:
		return "", fmt.Errorf("%w: name is longer than %d characters", ErrInvalid, maxNameLength)
	}
	if err := in.Options.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := in.Mapping.Validate(in.Options.Direction); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return name, nil
}
