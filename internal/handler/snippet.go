// Package handler contains the HTTP request handlers.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (query params, body, path values)
// 2. Call the service layer
// 3. Write the HTTP response (status code, headers, body)
//
// Handlers contain no business logic — they are the glue between HTTP and
// the service. Validation, normalisation and storage decisions all live a
// layer down.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ayato/snippetbase/internal/model"
	"github.com/ayato/snippetbase/internal/service"
)

// maxImportBytes caps import uploads. Generous for a personal knowledge
// base, small enough that a mistaken upload can't exhaust memory.
const maxImportBytes = 10 << 20 // 10 MiB

// SnippetHandler serves the JSON API for snippets.
type SnippetHandler struct {
	svc    *service.SnippetService
	logger *slog.Logger
}

// NewSnippetHandler creates a new SnippetHandler.
func NewSnippetHandler(svc *service.SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{svc: svc, logger: logger}
}

// pathID extracts and parses the {id} path parameter.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid snippet id %q", raw)
	}
	return id, nil
}

// HandleSearch lists snippets, optionally filtered.
//
// HTTP: GET /api/snippets?q=docker&category=Docker&favorites=true&sort=usage
//
// All parameters are optional: no parameters means "browse the latest
// snippets". sort=usage switches to the usage ranking (most used first,
// never-used snippets excluded) — the "most used" view of the UI. The
// result is always capped server-side.
func (h *SnippetHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	favoritesOnly, _ := strconv.ParseBool(query.Get("favorites"))

	var snippets []model.Snippet
	var err error
	if query.Get("sort") == "usage" {
		snippets, err = h.svc.MostUsed(r.Context(), 0)
	} else {
		snippets, err = h.svc.Search(r.Context(), query.Get("q"), query.Get("category"), favoritesOnly)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if snippets == nil {
		snippets = []model.Snippet{} // JSON [] instead of null
	}
	writeJSON(w, http.StatusOK, snippets)
}

// HandleGet returns a single snippet.
//
// HTTP: GET /api/snippets/{id}
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
		return
	}

	snippet, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleCreate saves a new snippet.
//
// HTTP: POST /api/snippets
// BODY: {"title": "...", "content": "...", "category": "...", ...}
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.SnippetInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid JSON body"})
		return
	}

	snippet, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snippet)
}

// HandleUpdate applies a partial update.
//
// HTTP: PATCH /api/snippets/{id}
// BODY: any subset of {"title", "content", "category", "tags", "description", "language"}
//
// Fields absent from the body are left untouched — that's what the pointer
// fields in SnippetPatch encode.
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
		return
	}

	var patch model.SnippetPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid JSON body"})
		return
	}

	snippet, err := h.svc.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleDelete removes a snippet.
//
// HTTP: DELETE /api/snippets/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUse records one use of a snippet and returns it with the bumped
// counter, so the UI can update in place.
//
// HTTP: POST /api/snippets/{id}/use
func (h *SnippetHandler) HandleUse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
		return
	}

	snippet, err := h.svc.Use(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleFavorite toggles the favourite flag.
//
// HTTP: POST /api/snippets/{id}/favorite
// RESPONSE: {"id": 42, "isFavorite": true}
func (h *SnippetHandler) HandleFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
		return
	}

	favorite, err := h.svc.ToggleFavorite(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "isFavorite": favorite})
}

// HandleCategories lists all categories with their snippet counts.
//
// HTTP: GET /api/categories
func (h *SnippetHandler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.Categories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// HandleStats returns the statistics overview.
//
// HTTP: GET /api/stats
func (h *SnippetHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	overview, err := h.svc.Statistics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// HandleExport streams all snippets as a downloadable file.
//
// HTTP: GET /api/export?format=json (default) or format=csv
//
// The Content-Disposition filename carries the date so repeated exports
// don't overwrite each other in the user's download folder.
func (h *SnippetHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	stamp := time.Now().UTC().Format("2006-01-02")

	switch format {
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=snippets-%s.json", stamp))
		if _, err := h.svc.ExportJSON(r.Context(), w); err != nil {
			// Body may be partially written; log is the best we can do.
			h.logger.Error("export failed", slog.String("format", format), slog.String("error", err.Error()))
		}
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=snippets-%s.csv", stamp))
		if _, err := h.svc.ExportCSV(r.Context(), w); err != nil {
			h.logger.Error("export failed", slog.String("format", format), slog.String("error", err.Error()))
		}
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: fmt.Sprintf("unknown export format %q, want json or csv", format),
		})
	}
}

// HandleImport loads snippets from an uploaded export file.
//
// HTTP: POST /api/import?format=json (default) or format=csv
// BODY: the raw file contents
//
// The response is an import summary — how many records were imported,
// skipped as duplicates, or failed validation. A 200 with failures in the
// summary is expected behaviour: one bad record never aborts the batch.
func (h *SnippetHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)

	var summary *service.ImportSummary
	var err error
	switch format {
	case "json":
		summary, err = h.svc.ImportJSON(r.Context(), body)
	case "csv":
		summary, err = h.svc.ImportCSV(r.Context(), body)
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: fmt.Sprintf("unknown import format %q, want json or csv", format),
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
