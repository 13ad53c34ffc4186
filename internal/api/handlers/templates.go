package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/dvloznov/bookkeeper/internal/api/middleware"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/dvloznov/bookkeeper/internal/templates"
	"github.com/rs/zerolog"
)

const maxTemplateBody = 64 << 10

// TemplatesHandler handles import template endpoints.
type TemplatesHandler struct {
	svc TemplateService
	log zerolog.Logger
}

// NewTemplatesHandler creates a new templates handler.
func NewTemplatesHandler(svc TemplateService, log zerolog.Logger) *TemplatesHandler {
	return &TemplatesHandler{svc: svc, log: log}
}

// List handles GET /api/import-templates
func (h *TemplatesHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), middleware.OrganizationID(r.Context()))
	if err != nil {
		writeServiceError(w, logger.FromContext(r.Context()), err, "list templates")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"templates": list,
		"count":     len(list),
	})
}

// Get handles GET /api/import-templates/{id}
func (h *TemplatesHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), middleware.OrganizationID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, logger.FromContext(r.Context()), err, "get template")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, t)
}

// Create handles POST /api/import-templates
func (h *TemplatesHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeTemplate(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	t, err := h.svc.Create(ctx, middleware.OrganizationID(ctx), middleware.ActorID(ctx), in)
	if err != nil {
		writeServiceError(w, logger.FromContext(ctx), err, "create template")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, t)
}

// Update handles PUT /api/import-templates/{id}
func (h *TemplatesHandler) Update(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeTemplate(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	t, err := h.svc.Update(ctx, middleware.OrganizationID(ctx), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, logger.FromContext(ctx), err, "update template")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/import-templates/{id}
func (h *TemplatesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.svc.Delete(ctx, middleware.OrganizationID(ctx), r.PathValue("id")); err != nil {
		writeServiceError(w, logger.FromContext(ctx), err, "delete template")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeTemplate(w http.ResponseWriter, r *http.Request) (templates.Input, bool) {
	in := templates.Input{Options: domain.DefaultParsingOptions()}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTemplateBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return templates.Input{}, false
	}
	return in, true
}
