// Package repository defines the storage backend contract.
//
// Two implementations satisfy it: internal/repository/sqlite (local embedded
// file database) and internal/repository/supabase (hosted database reached
// over HTTPS). Both must produce identical logical results for identical
// data — only persistence medium and latency differ. The service layer is
// programmed against this interface and never learns which backend it got.
package repository

import (
	"context"

	"github.com/ayato/snippetbase/internal/model"
)

// MaxSearchResults caps every search so a single query can't drag the whole
// table across the wire. Matches the hosted stored function's limit.
const MaxSearchResults = 100

// SearchFilter narrows a search. The zero value means "latest snippets".
type SearchFilter struct {
	Keyword       string // case-insensitive substring across title/content/tags/description
	Category      string // exact category name, empty = all
	FavoritesOnly bool
	Limit         int // clamped to 1..MaxSearchResults, default MaxSearchResults
}

// SnippetRepository is the contract both storage backends implement.
//
// Mutations refresh updated_at. Delete of an absent id reports NotFound
// rather than success, so a repeated delete is a visible failure, not a
// silent no-op.
type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, id int64) (*model.Snippet, error)
	// Update applies only the fields set in the patch and returns the
	// refreshed snippet.
	Update(ctx context.Context, id int64, patch model.SnippetPatch) (*model.Snippet, error)
	Delete(ctx context.Context, id int64) error

	// Search returns snippets ordered by updated_at descending, capped at
	// MaxSearchResults. An empty keyword browses the latest snippets.
	Search(ctx context.Context, filter SearchFilter) ([]model.Snippet, error)
	// All returns every snippet, newest-updated first, with no cap.
	// Exists for export; interactive paths go through Search.
	All(ctx context.Context) ([]model.Snippet, error)
	// MostUsed returns snippets with usage_count > 0, most used first.
	MostUsed(ctx context.Context, limit int) ([]model.Snippet, error)
	Favorites(ctx context.Context) ([]model.Snippet, error)

	IncrementUsage(ctx context.Context, id int64) error
	// ToggleFavorite flips is_favorite and returns the new state.
	ToggleFavorite(ctx context.Context, id int64) (bool, error)

	// Categories returns all categories in display order with the number of
	// snippets currently filed under each.
	Categories(ctx context.Context) ([]model.Category, error)
	Statistics(ctx context.Context) (*model.Statistics, error)

	// RecordSearch appends to the search history log. Best-effort: callers
	// treat a failure here as a warning, never as a failed search.
	RecordSearch(ctx context.Context, query string, resultCount int) error

	Close() error
}

// ClampLimit normalises a requested result count into 1..MaxSearchResults.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxSearchResults {
		return MaxSearchResults
	}
	return limit
}
