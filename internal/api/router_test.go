package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dvloznov/bookkeeper/internal/api/middleware"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/dvloznov/bookkeeper/internal/templates"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImports struct {
	previewReq pipeline.PreviewRequest
	commitReq  pipeline.CommitRequest
	err        error
}

func (f *fakeImports) Preview(ctx context.Context, req pipeline.PreviewRequest) (*pipeline.PreviewResult, error) {
	f.previewReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.PreviewResult{Filename: req.File.Filename, Summary: pipeline.Summary{TotalRows: 2, ValidRows: 2}}, nil
}

func (f *fakeImports) Commit(ctx context.Context, req pipeline.CommitRequest) (*pipeline.CommitResult, error) {
	f.commitReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.CommitResult{ImportedCount: 1, SkippedDuplicateCount: 1, TotalRows: 2}, nil
}

type fakeTemplates struct {
	items map[string]domain.ImportTemplate
}

func (f *fakeTemplates) List(ctx context.Context, orgID string) ([]domain.ImportTemplate, error) {
	var out []domain.ImportTemplate
	for _, t := range f.items {
		if t.OrganizationID == orgID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTemplates) Get(ctx context.Context, orgID, id string) (*domain.ImportTemplate, error) {
	t, ok := f.items[id]
	if !ok || t.OrganizationID != orgID {
		return nil, fmt.Errorf("template %s: %w", id, domain.ErrNotFound)
	}
	return &t, nil
}

func (f *fakeTemplates) Create(ctx context.Context, orgID, actor string, in templates.Input) (*domain.ImportTemplate, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", templates.ErrInvalid)
	}
	for _, t := range f.items {
		if t.Name == in.Name {
			return nil, fmt.Errorf("%q: %w", in.Name, templates.ErrNameTaken)
		}
	}
	t := domain.ImportTemplate{ID: fmt.Sprintf("t%d", len(f.items)+1), OrganizationID: orgID, Name: in.Name,
		Mapping: in.Mapping, Options: in.Options, CreatedBy: actor}
	f.items[t.ID] = t
	return &t, nil
}

func (f *fakeTemplates) Update(ctx context.Context, orgID, id string, in templates.Input) (*domain.ImportTemplate, error) {
	t, err := f.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	t.Name = in.Name
	f.items[id] = *t
	return t, nil
}

func (f *fakeTemplates) Delete(ctx context.Context, orgID, id string) error {
	if _, err := f.Get(ctx, orgID, id); err != nil {
		return err
	}
	delete(f.items, id)
	return nil
}

func newTestRouter(imports *fakeImports, tmpl *fakeTemplates) http.Handler {
	return NewRouter(RouterConfig{
		Imports:        imports,
		Templates:      tmpl,
		MaxUploadBytes: 1 << 20,
		AllowedOrigins: []string{"*"},
	}, zerolog.Nop())
}

func multipartBody(t *testing.T, filename, content, config string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	if config != "" {
		require.NoError(t, mw.WriteField("config", config))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func doRequest(h http.Handler, req *http.Request, org string) *httptest.ResponseRecorder {
	if org != "" {
		req.Header.Set(middleware.HeaderOrganizationID, org)
		req.Header.Set(middleware.HeaderUserID, "user-1")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPreviewEndpoint(t *testing.T) {
	imports := &fakeImports{}
	h := newTestRouter(imports, &fakeTemplates{items: map[string]domain.ImportTemplate{}})

	body, ct := multipartBody(t, "bank.csv", "Date,Amount\n", `{"templateId":"t1","mapping":{"date":0}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/imports/preview", body)
	req.Header.Set("Content-Type", ct)
	rec := doRequest(h, req, "org-1")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "org-1", imports.previewReq.OrganizationID)
	assert.Equal(t, "user-1", imports.previewReq.Actor)
	assert.Equal(t, "bank.csv", imports.previewReq.File.Filename)
	assert.Equal(t, "Date,Amount\n", string(imports.previewReq.File.Data))
	assert.False(t, imports.previewReq.Archive)
	assert.Equal(t, "t1", imports.previewReq.Config.TemplateID)
	assert.Equal(t, domain.ColumnIndex(0), imports.previewReq.Config.Mapping[domain.FieldDate])

	var result pipeline.PreviewResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Summary.TotalRows)
}

func TestArchiveCommitEndpoint(t *testing.T) {
	imports := &fakeImports{}
	h := newTestRouter(imports, &fakeTemplates{items: map[string]domain.ImportTemplate{}})

	body, ct := multipartBody(t, "bundle.zip", "PK", `{"decisions":{"3":"import","5":"skip"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/imports/archive/commit", body)
	req.Header.Set("Content-Type", ct)
	rec := doRequest(h, req, "org-1")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, imports.commitReq.Archive)
	assert.Equal(t, map[int]pipeline.Decision{3: pipeline.DecisionImport, 5: pipeline.DecisionSkip}, imports.commitReq.Decisions)
	assert.JSONEq(t, `{"importedCount":1,"skippedInvalidCount":0,"skippedDuplicateCount":1,"totalRows":2}`, rec.Body.String())
}

func TestCommitEndpoint_InvalidDecision(t *testing.T) {
	h := newTestRouter(&fakeImports{}, &fakeTemplates{items: map[string]domain.ImportTemplate{}})

	body, ct := multipartBody(t, "bank.csv", "x", `{"decisions":{"1":"maybe"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/imports/commit", body)
	req.Header.Set("Content-Type", ct)

	assert.Equal(t, http.StatusBadRequest, doRequest(h, req, "org-1").Code)
}

func TestImportEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"structural", fmt.Errorf("wrap: %w", pipeline.ErrEmptyFile), http.StatusBadRequest},
		{"too large", pipeline.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{"unsupported", pipeline.ErrUnsupportedFile, http.StatusUnsupportedMediaType},
		{"missing settings", pipeline.ErrMissingSettings, http.StatusConflict},
		{"unknown template", fmt.Errorf("template x: %w", domain.ErrNotFound), http.StatusNotFound},
		{"store failure", fmt.Errorf("bigquery down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(&fakeImports{err: tt.err}, &fakeTemplates{items: map[string]domain.ImportTemplate{}})
			body, ct := multipartBody(t, "bank.csv", "x", "")
			req := httptest.NewRequest(http.MethodPost, "/api/imports/preview", body)
			req.Header.Set("Content-Type", ct)

			rec := doRequest(h, req, "org-1")
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, rec.Body.String(), "bigquery down")
			}
		})
	}
}

func TestImportEndpoint_RequestErrors(t *testing.T) {
	h := newTestRouter(&fakeImports{}, &fakeTemplates{items: map[string]domain.ImportTemplate{}})

	// no organization
	body, ct := multipartBody(t, "bank.csv", "x", "")
	req := httptest.NewRequest(http.MethodPost, "/api/imports/preview", body)
	req.Header.Set("Content-Type", ct)
	assert.Equal(t, http.StatusUnauthorized, doRequest(h, req, "").Code)

	// not multipart
	req = httptest.NewRequest(http.MethodPost, "/api/imports/preview", strings.NewReader("Date\n"))
	req.Header.Set("Content-Type", "text/csv")
	assert.Equal(t, http.StatusBadRequest, doRequest(h, req, "org-1").Code)

	// bad config JSON
	body, ct = multipartBody(t, "bank.csv", "x", "{")
	req = httptest.NewRequest(http.MethodPost, "/api/imports/preview", body)
	req.Header.Set("Content-Type", ct)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, req, "org-1").Code)

	// wrong method
	req = httptest.NewRequest(http.MethodGet, "/api/imports/preview", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, doRequest(h, req, "org-1").Code)
}

func TestTemplateEndpoints(t *testing.T) {
	tmpl := &fakeTemplates{items: map[string]domain.ImportTemplate{}}
	h := newTestRouter(&fakeImports{}, tmpl)

	create := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/import-templates", strings.NewReader(body))
		return doRequest(h, req, "org-1")
	}

	rec := create(`{"name":"Bank A","mapping":{"date":"Date"},"options":{"delimiter":";"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created domain.ImportTemplate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Bank A", created.Name)
	assert.Equal(t, "user-1", created.CreatedBy)
	assert.Equal(t, ";", created.Options.Delimiter)
	assert.True(t, created.Options.HasHeader, "omitted options keep their defaults")

	assert.Equal(t, http.StatusConflict, create(`{"name":"Bank A"}`).Code)
	assert.Equal(t, http.StatusBadRequest, create(`{"name":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, create(`{"name":"x","unknown":1}`).Code)

	rec = doRequest(h, httptest.NewRequest(http.MethodGet, "/api/import-templates/"+created.ID, nil), "org-1")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(h, httptest.NewRequest(http.MethodGet, "/api/import-templates/"+created.ID, nil), "org-2")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(h, httptest.NewRequest(http.MethodPut, "/api/import-templates/"+created.ID, strings.NewReader(`{"name":"Bank B"}`)), "org-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bank B", tmpl.items[created.ID].Name)

	rec = doRequest(h, httptest.NewRequest(http.MethodGet, "/api/import-templates", nil), "org-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = doRequest(h, httptest.NewRequest(http.MethodDelete, "/api/import-templates/"+created.ID, nil), "org-1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, tmpl.items)
}

func TestHealth(t *testing.T) {
	h := newTestRouter(&fakeImports{}, &fakeTemplates{})
	rec := doRequest(h, httptest.NewRequest(http.MethodGet, "/health", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))
}
