package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayato/snippetbase/internal/model"
	"github.com/ayato/snippetbase/internal/repository/sqlite"
	"github.com/ayato/snippetbase/internal/service"
)

// newTestRouter wires the full API stack — in-memory SQLite, real service,
// real handlers — onto a chi router with the production route layout.
// End-to-end through HTTP, no network, no files.
func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := service.NewSnippetService(db, logger)
	h := NewSnippetHandler(svc, logger)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Get("/snippets", h.HandleSearch)
		r.Post("/snippets", h.HandleCreate)
		r.Get("/snippets/{id}", h.HandleGet)
		r.Patch("/snippets/{id}", h.HandleUpdate)
		r.Delete("/snippets/{id}", h.HandleDelete)
		r.Post("/snippets/{id}/use", h.HandleUse)
		r.Post("/snippets/{id}/favorite", h.HandleFavorite)
		r.Get("/categories", h.HandleCategories)
		r.Get("/stats", h.HandleStats)
		r.Get("/export", h.HandleExport)
		r.Post("/import", h.HandleImport)
	})
	return router
}

// doJSON performs a request with an optional JSON body and returns the
// recorded response.
func doJSON(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createSnippet(t *testing.T, router http.Handler, in service.SnippetInput) model.Snippet {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/snippets", in)
	require.Equal(t, http.StatusCreated, rec.Code, "create failed: %s", rec.Body.String())

	var snippet model.Snippet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snippet))
	return snippet
}

func TestAPI_CreateAndGet(t *testing.T) {
	router := newTestRouter(t)

	created := createSnippet(t, router, service.SnippetInput{
		Title:    "List containers",
		Content:  "docker ps -a",
		Category: "Docker",
		Language: "bash",
	})
	assert.NotZero(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	rec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/snippets/%d", created.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var got model.Snippet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "List containers", got.Title)
}

func TestAPI_CreateValidationError(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/snippets", service.SnippetInput{Content: "no title"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "validation_error", errResp.Error)
	assert.Equal(t, "title", errResp.Field)
}

func TestAPI_GetNotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/snippets/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "not_found", errResp.Error)
}

func TestAPI_GetMalformedID(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/snippets/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_PatchPartialUpdate(t *testing.T) {
	router := newTestRouter(t)
	created := createSnippet(t, router, service.SnippetInput{Title: "before", Content: "echo hi"})

	rec := doJSON(t, router, http.MethodPatch,
		fmt.Sprintf("/api/snippets/%d", created.ID),
		map[string]string{"title": "after"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var got model.Snippet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "after", got.Title)
	assert.Equal(t, "echo hi", got.Content, "unpatched field must survive")
}

func TestAPI_DeleteThenGone(t *testing.T) {
	router := newTestRouter(t)
	created := createSnippet(t, router, service.SnippetInput{Title: "doomed", Content: "rm -rf /tmp/x"})

	rec := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/snippets/%d", created.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/snippets/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_UseBumpsCounter(t *testing.T) {
	router := newTestRouter(t)
	created := createSnippet(t, router, service.SnippetInput{Title: "used", Content: "uptime"})

	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/snippets/%d/use", created.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var got model.Snippet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.UsageCount)
}

func TestAPI_FavoriteToggle(t *testing.T) {
	router := newTestRouter(t)
	created := createSnippet(t, router, service.SnippetInput{Title: "fav", Content: "date"})

	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/snippets/%d/favorite", created.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ID         int64 `json:"id"`
		IsFavorite bool  `json:"isFavorite"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, created.ID, resp.ID)
	assert.True(t, resp.IsFavorite)
}

func TestAPI_SearchFilters(t *testing.T) {
	router := newTestRouter(t)
	createSnippet(t, router, service.SnippetInput{Title: "docker restart", Content: "docker restart web", Category: "Docker"})
	createSnippet(t, router, service.SnippetInput{Title: "git undo", Content: "git reset --soft HEAD~1", Category: "Git"})

	rec := doJSON(t, router, http.MethodGet, "/api/snippets?q=docker", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var results []model.Snippet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Len(t, results, 1)
	assert.Equal(t, "docker restart", results[0].Title)

	rec = doJSON(t, router, http.MethodGet, "/api/snippets?category=Git", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Len(t, results, 1)

	// No filters: everything, as a JSON array (never null).
	rec = doJSON(t, router, http.MethodGet, "/api/snippets", nil)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "["), "expected a JSON array, got %s", rec.Body.String())
}

func TestAPI_SortByUsage(t *testing.T) {
	router := newTestRouter(t)
	createSnippet(t, router, service.SnippetInput{Title: "never used", Content: "true"})
	busy := createSnippet(t, router, service.SnippetInput{Title: "heavily used", Content: "htop"})
	doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/snippets/%d/use", busy.ID), nil)

	rec := doJSON(t, router, http.MethodGet, "/api/snippets?sort=usage", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var results []model.Snippet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1, "never-used snippets stay out of the ranking")
	assert.Equal(t, busy.ID, results[0].ID)
}

func TestAPI_Categories(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/categories", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var categories []model.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &categories))
	assert.Len(t, categories, 7, "the fixed category set is seeded on startup")
}

func TestAPI_Stats(t *testing.T) {
	router := newTestRouter(t)
	createSnippet(t, router, service.SnippetInput{Title: "one", Content: "a", Category: "Docker"})
	createSnippet(t, router, service.SnippetInput{Title: "two", Content: "b", Category: "Docker"})

	rec := doJSON(t, router, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var overview service.StatsOverview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overview))
	assert.Equal(t, 2, overview.TotalSnippets)
	assert.Equal(t, "Docker", overview.MostUsedCategory)
	require.Len(t, overview.Distribution, 1)
	assert.Equal(t, float64(100), overview.Distribution[0].Percent)
}

func TestAPI_ExportImportRoundTrip(t *testing.T) {
	source := newTestRouter(t)
	createSnippet(t, source, service.SnippetInput{Title: "exported", Content: "echo out", Category: "Linux"})

	rec := doJSON(t, source, http.MethodGet, "/api/export?format=json", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	// Import the download into a fresh store.
	target := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/import?format=json", bytes.NewReader(rec.Body.Bytes()))
	importRec := httptest.NewRecorder()
	target.ServeHTTP(importRec, req)
	assert.Equal(t, http.StatusOK, importRec.Code)

	var summary service.ImportSummary
	require.NoError(t, json.Unmarshal(importRec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Imported)
	assert.NotEmpty(t, summary.BatchID)

	rec = doJSON(t, target, http.MethodGet, "/api/snippets?q=exported", nil)
	var results []model.Snippet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Len(t, results, 1)
}

func TestAPI_ImportCSV(t *testing.T) {
	router := newTestRouter(t)

	csvBody := "title,content,category\nShort log,git log --oneline,Git\n"
	req := httptest.NewRequest(http.MethodPost, "/api/import?format=csv", strings.NewReader(csvBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var summary service.ImportSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Imported)
}

func TestAPI_ImportBadPayload(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("definitely not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ExportUnknownFormat(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
