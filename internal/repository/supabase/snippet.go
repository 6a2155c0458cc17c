package supabase

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/ayato/snippetbase/internal/apperror"
	"github.com/ayato/snippetbase/internal/model"
	"github.com/ayato/snippetbase/internal/repository"
)

var _ repository.SnippetRepository = (*Client)(nil)

// Create inserts a snippet. The database assigns id and timestamps (serial
// plus column defaults); `Prefer: return=representation` echoes the stored
// row back so the caller's struct ends up exactly as persisted.
func (c *Client) Create(ctx context.Context, snippet *model.Snippet) error {
	body := map[string]any{
		"title":       snippet.Title,
		"content":     snippet.Content,
		"category":    snippet.Category,
		"tags":        snippet.Tags,
		"description": snippet.Description,
		"language":    snippet.Language,
	}

	var rows []snippetRow
	if err := c.do(ctx, http.MethodPost, "snippets", nil, "return=representation", body, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("supabase: creating snippet: no row returned")
	}

	*snippet = rows[0].toModel()
	return nil
}

// GetByID retrieves one snippet. PostgREST filters rows with query
// parameters (`id=eq.7`), and "no match" is an empty array, not a 404 —
// the translation to NotFound happens here.
func (c *Client) GetByID(ctx context.Context, id int64) (*model.Snippet, error) {
	return withRetry(ctx, func() (*model.Snippet, error) {
		query := url.Values{
			"select": {"*"},
			"id":     {fmt.Sprintf("eq.%d", id)},
		}
		var rows []snippetRow
		if err := c.do(ctx, http.MethodGet, "snippets", query, "", nil, &rows); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, apperror.NotFound("snippet", id)
		}
		s := rows[0].toModel()
		return &s, nil
	})
}

// Update PATCHes only the fields set in the patch. updated_at is not sent:
// the hosted schema's update trigger refreshes it on every row mutation.
func (c *Client) Update(ctx context.Context, id int64, patch model.SnippetPatch) (*model.Snippet, error) {
	if patch.IsEmpty() {
		return c.GetByID(ctx, id)
	}

	body := map[string]any{}
	add := func(column string, value *string) {
		if value != nil {
			body[column] = *value
		}
	}
	add("title", patch.Title)
	add("content", patch.Content)
	add("category", patch.Category)
	add("tags", patch.Tags)
	add("description", patch.Description)
	add("language", patch.Language)

	query := url.Values{"id": {fmt.Sprintf("eq.%d", id)}}
	var rows []snippetRow
	if err := c.do(ctx, http.MethodPatch, "snippets", query, "return=representation", body, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperror.NotFound("snippet", id)
	}

	s := rows[0].toModel()
	return &s, nil
}

// Delete removes a snippet. The representation of the deleted rows tells us
// whether anything matched; an empty array means the id was absent.
func (c *Client) Delete(ctx context.Context, id int64) error {
	query := url.Values{"id": {fmt.Sprintf("eq.%d", id)}}
	var rows []snippetRow
	if err := c.do(ctx, http.MethodDelete, "snippets", query, "return=representation", nil, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return apperror.NotFound("snippet", id)
	}
	return nil
}

// Search builds the same logical query as the local backend: keyword OR'd
// across the four text columns with ilike, optional category and favourite
// narrowing, ordered by updated_at descending, capped at the page size.
func (c *Client) Search(ctx context.Context, filter repository.SearchFilter) ([]model.Snippet, error) {
	return withRetry(ctx, func() ([]model.Snippet, error) {
		query := url.Values{
			"select": {"*"},
			"order":  {"updated_at.desc"},
			"limit":  {fmt.Sprintf("%d", repository.ClampLimit(filter.Limit))},
		}
		if filter.Keyword != "" {
			// PostgREST `or` syntax: or=(col.ilike."*kw*",...). The value is
			// double-quoted so keywords with commas or parens don't break
			// the filter grammar; embedded quotes are dropped.
			kw := strings.ReplaceAll(filter.Keyword, `"`, "")
			pattern := fmt.Sprintf("%q", "*"+kw+"*")
			clauses := make([]string, 0, 4)
			for _, col := range []string{"title", "content", "tags", "description"} {
				clauses = append(clauses, col+".ilike."+pattern)
			}
			query.Set("or", "("+strings.Join(clauses, ",")+")")
		}
		if filter.Category != "" {
			query.Set("category", "eq."+filter.Category)
		}
		if filter.FavoritesOnly {
			query.Set("is_favorite", "is.true")
		}

		var rows []snippetRow
		if err := c.do(ctx, http.MethodGet, "snippets", query, "", nil, &rows); err != nil {
			return nil, err
		}
		return rowsToModels(rows), nil
	})
}

// All returns every snippet, newest-updated first, with no page cap.
// Export-only; interactive queries go through Search.
func (c *Client) All(ctx context.Context) ([]model.Snippet, error) {
	return withRetry(ctx, func() ([]model.Snippet, error) {
		query := url.Values{
			"select": {"*"},
			"order":  {"updated_at.desc"},
		}
		var rows []snippetRow
		if err := c.do(ctx, http.MethodGet, "snippets", query, "", nil, &rows); err != nil {
			return nil, err
		}
		return rowsToModels(rows), nil
	})
}

// MostUsed returns the usage ranking, excluding never-used snippets.
func (c *Client) MostUsed(ctx context.Context, limit int) ([]model.Snippet, error) {
	return withRetry(ctx, func() ([]model.Snippet, error) {
		query := url.Values{
			"select":      {"*"},
			"usage_count": {"gt.0"},
			"order":       {"usage_count.desc,updated_at.desc"},
			"limit":       {fmt.Sprintf("%d", repository.ClampLimit(limit))},
		}
		var rows []snippetRow
		if err := c.do(ctx, http.MethodGet, "snippets", query, "", nil, &rows); err != nil {
			return nil, err
		}
		return rowsToModels(rows), nil
	})
}

// Favorites returns all favourited snippets, newest-updated first.
func (c *Client) Favorites(ctx context.Context) ([]model.Snippet, error) {
	return withRetry(ctx, func() ([]model.Snippet, error) {
		query := url.Values{
			"select":      {"*"},
			"is_favorite": {"is.true"},
			"order":       {"updated_at.desc"},
		}
		var rows []snippetRow
		if err := c.do(ctx, http.MethodGet, "snippets", query, "", nil, &rows); err != nil {
			return nil, err
		}
		return rowsToModels(rows), nil
	})
}

// IncrementUsage reads the current count and writes count+1.
//
// PostgREST has no atomic column increment, so this is a read-then-write —
// the same approach the Supabase client libraries take. The app is
// single-user per session, so the window is acceptable; updated_at is
// refreshed by the server-side trigger.
func (c *Client) IncrementUsage(ctx context.Context, id int64) error {
	current, err := c.GetByID(ctx, id)
	if err != nil {
		return err
	}

	query := url.Values{"id": {fmt.Sprintf("eq.%d", id)}}
	body := map[string]any{"usage_count": current.UsageCount + 1}
	var rows []snippetRow
	if err := c.do(ctx, http.MethodPatch, "snippets", query, "return=representation", body, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return apperror.NotFound("snippet", id)
	}
	return nil
}

// ToggleFavorite flips is_favorite via read-then-write and returns the
// new state as stored.
func (c *Client) ToggleFavorite(ctx context.Context, id int64) (bool, error) {
	current, err := c.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	query := url.Values{"id": {fmt.Sprintf("eq.%d", id)}}
	body := map[string]any{"is_favorite": !current.IsFavorite}
	var rows []snippetRow
	if err := c.do(ctx, http.MethodPatch, "snippets", query, "return=representation", body, &rows); err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, apperror.NotFound("snippet", id)
	}
	return rows[0].IsFavorite, nil
}

// Categories fetches the category table and counts snippets per category
// client-side. PostgREST cannot GROUP BY across tables without a database
// view, and the category list is tiny, so one extra round trip for the
// category column of every snippet is the simpler trade.
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	return withRetry(ctx, func() ([]model.Category, error) {
		query := url.Values{
			"select": {"*"},
			"order":  {"display_order.asc,name.asc"},
		}
		var catRows []struct {
			ID           int64  `json:"id"`
			Name         string `json:"name"`
			Icon         string `json:"icon"`
			DisplayOrder int    `json:"display_order"`
		}
		if err := c.do(ctx, http.MethodGet, "categories", query, "", nil, &catRows); err != nil {
			return nil, err
		}

		var usedRows []struct {
			Category string `json:"category"`
		}
		countQuery := url.Values{"select": {"category"}}
		if err := c.do(ctx, http.MethodGet, "snippets", countQuery, "", nil, &usedRows); err != nil {
			return nil, err
		}
		counts := make(map[string]int, len(catRows))
		for _, row := range usedRows {
			counts[row.Category]++
		}

		categories := make([]model.Category, 0, len(catRows))
		for _, row := range catRows {
			categories = append(categories, model.Category{
				ID:           row.ID,
				Name:         row.Name,
				Icon:         row.Icon,
				DisplayOrder: row.DisplayOrder,
				SnippetCount: counts[row.Name],
			})
		}
		return categories, nil
	})
}

// Statistics calls the get_statistics stored function provisioned with the
// hosted schema. If the function is missing (older project), it falls back
// to computing the aggregates from a full column scan.
func (c *Client) Statistics(ctx context.Context) (*model.Statistics, error) {
	return withRetry(ctx, func() (*model.Statistics, error) {
		var rows []struct {
			TotalSnippets    int    `json:"total_snippets"`
			TotalCategories  int    `json:"total_categories"`
			MostUsedCategory string `json:"most_used_category"`
			TotalUsage       int    `json:"total_usage"`
			FavoritesCount   int    `json:"favorites_count"`
		}
		err := c.do(ctx, http.MethodPost, "rpc/get_statistics", nil, "", map[string]any{}, &rows)
		if err == nil && len(rows) > 0 {
			row := rows[0]
			return &model.Statistics{
				TotalSnippets:    row.TotalSnippets,
				TotalCategories:  row.TotalCategories,
				MostUsedCategory: row.MostUsedCategory,
				TotalUsage:       row.TotalUsage,
				FavoritesCount:   row.FavoritesCount,
			}, nil
		}
		if err != nil {
			c.logger.Warn("get_statistics rpc failed, computing client-side",
				slog.String("error", err.Error()))
		}
		return c.statisticsFallback(ctx)
	})
}

// statisticsFallback derives the aggregates from the raw columns.
// Tie-break rule matches the local backend: highest count wins, name
// ascending on ties.
func (c *Client) statisticsFallback(ctx context.Context) (*model.Statistics, error) {
	query := url.Values{"select": {"category,usage_count,is_favorite"}}
	var rows []struct {
		Category   string `json:"category"`
		UsageCount int    `json:"usage_count"`
		IsFavorite bool   `json:"is_favorite"`
	}
	if err := c.do(ctx, http.MethodGet, "snippets", query, "", nil, &rows); err != nil {
		return nil, err
	}

	stats := &model.Statistics{TotalSnippets: len(rows)}
	counts := map[string]int{}
	for _, row := range rows {
		counts[row.Category]++
		stats.TotalUsage += row.UsageCount
		if row.IsFavorite {
			stats.FavoritesCount++
		}
	}
	stats.TotalCategories = len(counts)

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	best := -1
	for _, name := range names {
		if counts[name] > best {
			best = counts[name]
			stats.MostUsedCategory = name
		}
	}
	return stats, nil
}

// RecordSearch appends one row to the search history log. Best-effort —
// the caller logs failures as warnings.
func (c *Client) RecordSearch(ctx context.Context, query string, resultCount int) error {
	body := map[string]any{
		"query":        query,
		"result_count": resultCount,
	}
	return c.do(ctx, http.MethodPost, "search_history", nil, "return=minimal", body, nil)
}

func rowsToModels(rows []snippetRow) []model.Snippet {
	if len(rows) == 0 {
		return nil
	}
	snippets := make([]model.Snippet, 0, len(rows))
	for _, row := range rows {
		snippets = append(snippets, row.toModel())
	}
	return snippets
}
