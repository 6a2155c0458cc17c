package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ayato/snippetbase/internal/apperror"
	"github.com/ayato/snippetbase/internal/model"
	"github.com/ayato/snippetbase/internal/repository"
	"github.com/stretchr/testify/assert"
)

// newTestClient points a Client at an httptest server standing in for
// PostgREST. Constructing the struct directly skips New()'s category
// seeding so each test only has to fake the endpoints it uses.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{
		baseURL: srv.URL,
		key:     "test-anon-key",
		httpc:   srv.Client(),
		logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}
}

func sampleRow() snippetRow {
	tags := "ls,files"
	desc := "long listing"
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	return snippetRow{
		ID: 7, Title: "List files", Content: "ls -la", Category: "Linux",
		Tags: &tags, Description: &desc, Language: "bash",
		CreatedAt: now, UpdatedAt: now,
	}
}

func writeRows(w http.ResponseWriter, rows ...snippetRow) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

func TestCreate_SendsAuthAndReadsRepresentation(t *testing.T) {
	var gotReq *http.Request
	var gotBody map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		writeRows(w, sampleRow())
	})

	snippet := &model.Snippet{Title: "List files", Content: "ls -la", Category: "Linux", Language: "bash"}
	err := c.Create(context.Background(), snippet)
	assert.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotReq.Method)
	assert.Equal(t, "/rest/v1/snippets", gotReq.URL.Path)
	assert.Equal(t, "test-anon-key", gotReq.Header.Get("apikey"))
	assert.Equal(t, "Bearer test-anon-key", gotReq.Header.Get("Authorization"))
	assert.Equal(t, "return=representation", gotReq.Header.Get("Prefer"))
	assert.Equal(t, "List files", gotBody["title"])

	// The caller's struct now holds the stored row: id and timestamps set.
	assert.Equal(t, int64(7), snippet.ID)
	assert.False(t, snippet.CreatedAt.IsZero())
	assert.Equal(t, "ls,files", snippet.Tags)
}

func TestGetByID_TranslatesEmptyResultToNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.42", r.URL.Query().Get("id"))
		writeRows(w) // empty array: no row matched
	})

	_, err := c.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGetByID_Found(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeRows(w, sampleRow())
	})

	got, err := c.GetByID(context.Background(), 7)
	assert.NoError(t, err)
	assert.Equal(t, "List files", got.Title)
	assert.Equal(t, "long listing", got.Description)
}

func TestUpdate_PatchesOnlySetFields(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		row := sampleRow()
		row.Title = "renamed"
		writeRows(w, row)
	})

	title := "renamed"
	got, err := c.Update(context.Background(), 7, model.SnippetPatch{Title: &title})
	assert.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)

	// Only the patched column goes over the wire; updated_at is the
	// server trigger's job.
	assert.Equal(t, map[string]any{"title": "renamed"}, gotBody)
}

func TestUpdate_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeRows(w)
	})

	title := "x"
	_, err := c.Update(context.Background(), 99, model.SnippetPatch{Title: &title})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDelete_RepeatReportsNotFound(t *testing.T) {
	deleted := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if deleted {
			writeRows(w)
			return
		}
		deleted = true
		writeRows(w, sampleRow())
	})

	assert.NoError(t, c.Delete(context.Background(), 7))
	assert.ErrorIs(t, c.Delete(context.Background(), 7), apperror.ErrNotFound)
}

func TestSearch_BuildsPostgRESTQuery(t *testing.T) {
	var gotQuery map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		writeRows(w, sampleRow())
	})

	results, err := c.Search(context.Background(), repository.SearchFilter{
		Keyword:       "ls",
		Category:      "Linux",
		FavoritesOnly: true,
	})
	assert.NoError(t, err)
	assert.Len(t, results, 1)

	assert.Equal(t, "updated_at.desc", gotQuery["order"][0])
	assert.Equal(t, "100", gotQuery["limit"][0])
	assert.Equal(t, "eq.Linux", gotQuery["category"][0])
	assert.Equal(t, "is.true", gotQuery["is_favorite"][0])
	assert.Equal(t,
		`(title.ilike."*ls*",content.ilike."*ls*",tags.ilike."*ls*",description.ilike."*ls*")`,
		gotQuery["or"][0])
}

func TestSearch_RetriesTransientServerErrors(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeRows(w, sampleRow())
	})

	results, err := c.Search(context.Background(), repository.SearchFilter{Keyword: "ls"})
	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 3, attempts)
}

func TestCreate_DoesNotRetry(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := c.Create(context.Background(), &model.Snippet{Title: "t", Content: "c", Category: "Other"})
	assert.ErrorIs(t, err, apperror.ErrUnavailable)
	assert.Equal(t, 1, attempts, "writes must stay fail-fast")
}

func TestUnreachableBackendSurfacesUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := &Client{
		baseURL: srv.URL,
		key:     "k",
		httpc:   srv.Client(),
		logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}
	srv.Close() // nobody listening any more

	err := c.Delete(context.Background(), 1)
	assert.ErrorIs(t, err, apperror.ErrUnavailable)
}

func TestIncrementUsage_ReadThenWrite(t *testing.T) {
	var patched map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			row := sampleRow()
			row.UsageCount = 4
			writeRows(w, row)
		case http.MethodPatch:
			_ = json.NewDecoder(r.Body).Decode(&patched)
			row := sampleRow()
			row.UsageCount = 5
			writeRows(w, row)
		}
	})

	assert.NoError(t, c.IncrementUsage(context.Background(), 7))
	assert.Equal(t, float64(5), patched["usage_count"])
}

func TestToggleFavorite_ReturnsStoredState(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		row := sampleRow()
		if r.Method == http.MethodPatch {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			row.IsFavorite = body["is_favorite"].(bool)
		}
		writeRows(w, row)
	})

	favorite, err := c.ToggleFavorite(context.Background(), 7)
	assert.NoError(t, err)
	assert.True(t, favorite)
}

func TestStatistics_UsesRPC(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/get_statistics", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"total_snippets":3,"total_categories":2,"most_used_category":"Linux","total_usage":5,"favorites_count":1}]`)
	})

	stats, err := c.Statistics(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, &model.Statistics{
		TotalSnippets:    3,
		TotalCategories:  2,
		MostUsedCategory: "Linux",
		TotalUsage:       5,
		FavoritesCount:   1,
	}, stats)
}

func TestStatistics_FallsBackWhenRPCMissing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/v1/rpc/get_statistics" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"category":"Linux","usage_count":2,"is_favorite":true},
			{"category":"Linux","usage_count":0,"is_favorite":false},
			{"category":"Git","usage_count":1,"is_favorite":false}
		]`)
	})

	stats, err := c.Statistics(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 3, stats.TotalSnippets)
	assert.Equal(t, 2, stats.TotalCategories)
	assert.Equal(t, "Linux", stats.MostUsedCategory)
	assert.Equal(t, 3, stats.TotalUsage)
	assert.Equal(t, 1, stats.FavoritesCount)
}

func TestCategories_CountsClientSide(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/rest/v1/categories":
			_, _ = io.WriteString(w, `[
				{"id":1,"name":"Linux","icon":"🐧","display_order":4},
				{"id":2,"name":"Other","icon":"📝","display_order":99}
			]`)
		case "/rest/v1/snippets":
			assert.Equal(t, "category", r.URL.Query().Get("select"))
			_, _ = io.WriteString(w, `[{"category":"Linux"},{"category":"Linux"}]`)
		}
	})

	categories, err := c.Categories(context.Background())
	assert.NoError(t, err)
	assert.Len(t, categories, 2)
	assert.Equal(t, 2, categories[0].SnippetCount)
	assert.Equal(t, 0, categories[1].SnippetCount)
}

func TestNew_SeedsMissingCategories(t *testing.T) {
	var seeded []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `[{"name":"Docker"},{"name":"Git"},{"name":"SQL"},{"name":"Linux"},{"name":"Python"},{"name":"Settings"}]`)
		case http.MethodPost:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			seeded = append(seeded, body["name"].(string))
			w.WriteHeader(http.StatusCreated)
		}
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	_, err := New(context.Background(), srv.URL, "key", logger)
	assert.NoError(t, err)
	assert.Equal(t, []string{"Other"}, seeded, "only the missing category is inserted")
}

func TestRecordSearch(t *testing.T) {
	var gotBody map[string]any
	var gotPrefer string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	})

	err := c.RecordSearch(context.Background(), "docker", 3)
	assert.NoError(t, err)
	assert.Equal(t, "return=minimal", gotPrefer)
	assert.Equal(t, "docker", gotBody["query"])
	assert.Equal(t, float64(3), gotBody["result_count"])
}

func TestDo_ClientErrorIsNotUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"malformed filter"}`)
	})

	err := c.Delete(context.Background(), 1)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, apperror.ErrUnavailable),
		"4xx means the request was wrong, not that the backend is down")
}
