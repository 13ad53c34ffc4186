// Package handlers implements the HTTP endpoints of the import API.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/dvloznov/bookkeeper/internal/api/middleware"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/dvloznov/bookkeeper/internal/templates"
	"github.com/rs/zerolog"
)

// ImportService previews and commits imports.
type ImportService interface {
	Preview(ctx context.Context, req pipeline.PreviewRequest) (*pipeline.PreviewResult, error)
	Commit(ctx context.Context, req pipeline.CommitRequest) (*pipeline.CommitResult, error)
}

// TemplateService manages import templates.
type TemplateService interface {
	List(ctx context.Context, orgID string) ([]domain.ImportTemplate, error)
	Get(ctx context.Context, orgID, id string) (*domain.ImportTemplate, error)
	Create(ctx context.Context, orgID, actor string, in templates.Input) (*domain.ImportTemplate, error)
	Update(ctx context.Context, orgID, id string, in templates.Input) (*domain.ImportTemplate, error)
	Delete(ctx context.Context, orgID, id string) error
}

// writeServiceError maps service errors to status codes. Client errors carry
// their message; anything else is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, log zerolog.Logger, err error, action string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrFileTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, pipeline.ErrUnsupportedFile):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, pipeline.ErrMissingSettings):
		status = http.StatusConflict
	case errors.Is(err, pipeline.ErrStructural), errors.Is(err, templates.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, templates.ErrNameTaken):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Failed to " + action)
		middleware.WriteError(w, status, "Failed to "+action)
		return
	}
	log.Debug().Err(err).Int("status", status).Msg("Rejected request to " + action)
	middleware.WriteError(w, status, err.Error())
}
