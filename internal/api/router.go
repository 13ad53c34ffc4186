// Package api assembles the HTTP routes and middleware of the import API.
package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/bookkeeper/internal/api/handlers"
	"github.com/dvloznov/bookkeeper/internal/api/middleware"
	"github.com/rs/zerolog"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Imports        handlers.ImportService
	Templates      handlers.TemplateService
	MaxUploadBytes int64
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string
}

// NewRouter returns the API handler with its middleware applied.
// Every /api route requires an organization.
func NewRouter(cfg RouterConfig, log zerolog.Logger) http.Handler {
	imports := handlers.NewImportsHandler(cfg.Imports, cfg.MaxUploadBytes, log)
	tmpl := handlers.NewTemplatesHandler(cfg.Templates, log)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/imports/preview", imports.Preview)
	api.HandleFunc("POST /api/imports/commit", imports.Commit)
	api.HandleFunc("POST /api/imports/archive/preview", imports.PreviewArchive)
	api.HandleFunc("POST /api/imports/archive/commit", imports.CommitArchive)

	api.HandleFunc("GET /api/import-templates", tmpl.List)
	api.HandleFunc("POST /api/import-templates", tmpl.Create)
	api.HandleFunc("GET /api/import-templates/{id}", tmpl.Get)
	api.HandleFunc("PUT /api/import-templates/{id}", tmpl.Update)
	api.HandleFunc("DELETE /api/import-templates/{id}", tmpl.Delete)

	mux := http.NewServeMux()
	mux.Handle("/api/", middleware.Chain(api,
		middleware.Tenant,
		middleware.RateLimit(cfg.RateLimit, cfg.RateBurst),
	))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS(cfg.AllowedOrigins),
	)
}
