package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dvloznov/bookkeeper/internal/api/middleware"
	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/rs/zerolog"
)

// multipartOverhead is allowed on top of the largest upload for form fields.
const multipartOverhead = 1 << 20

// importConfig is the JSON "config" form field of import requests.
type importConfig struct {
	pipeline.ImportConfig
	Decisions map[int]pipeline.Decision `json:"decisions,omitempty"`
}

// ImportsHandler handles preview and commit of transaction imports.
type ImportsHandler struct {
	svc      ImportService
	maxBytes int64
	log      zerolog.Logger
}

// NewImportsHandler creates a new imports handler. maxBytes bounds the upload size.
func NewImportsHandler(svc ImportService, maxBytes int64, log zerolog.Logger) *ImportsHandler {
	return &ImportsHandler{svc: svc, maxBytes: maxBytes, log: log}
}

// Preview handles POST /api/imports/preview
func (h *ImportsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	h.preview(w, r, false)
}

// PreviewArchive handles POST /api/imports/archive/preview
func (h *ImportsHandler) PreviewArchive(w http.ResponseWriter, r *http.Request) {
	h.preview(w, r, true)
}

// Commit handles POST /api/imports/commit
func (h *ImportsHandler) Commit(w http.ResponseWriter, r *http.Request) {
	h.commit(w, r, false)
}

// CommitArchive handles POST /api/imports/archive/commit
func (h *ImportsHandler) CommitArchive(w http.ResponseWriter, r *http.Request) {
	h.commit(w, r, true)
}

func (h *ImportsHandler) preview(w http.ResponseWriter, r *http.Request, archive bool) {
	req, _, ok := h.readRequest(w, r, archive)
	if !ok {
		return
	}

	result, err := h.svc.Preview(r.Context(), req)
	if err != nil {
		writeServiceError(w, logger.FromContext(r.Context()), err, "preview import")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

func (h *ImportsHandler) commit(w http.ResponseWriter, r *http.Request, archive bool) {
	req, decisions, ok := h.readRequest(w, r, archive)
	if !ok {
		return
	}
	for idx, d := range decisions {
		if d != pipeline.DecisionImport && d != pipeline.DecisionSkip {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid decision %q for row %d", d, idx))
			return
		}
	}

	result, err := h.svc.Commit(r.Context(), pipeline.CommitRequest{PreviewRequest: req, Decisions: decisions})
	if err != nil {
		writeServiceError(w, logger.FromContext(r.Context()), err, "commit import")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// readRequest decodes the multipart form: a "file" part and an optional
// "config" JSON field. It writes the error response itself when it fails.
func (h *ImportsHandler) readRequest(w http.ResponseWriter, r *http.Request, archive bool) (pipeline.PreviewRequest, map[int]pipeline.Decision, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return pipeline.PreviewRequest{}, nil, false
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return pipeline.PreviewRequest{}, nil, false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "file is required")
		return pipeline.PreviewRequest{}, nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read upload")
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read upload")
		return pipeline.PreviewRequest{}, nil, false
	}

	var cfg importConfig
	if raw := strings.TrimSpace(r.FormValue("config")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid config: "+err.Error())
			return pipeline.PreviewRequest{}, nil, false
		}
	}

	req := pipeline.PreviewRequest{
		OrganizationID: middleware.OrganizationID(r.Context()),
		Actor:          middleware.ActorID(r.Context()),
		File:           pipeline.Upload{Filename: header.Filename, Data: data},
		Archive:        archive,
		Config:         cfg.ImportConfig,
	}
	return req, cfg.Decisions, true
}
