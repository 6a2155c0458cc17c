package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ayato/snippetbase/internal/apperror"
	"github.com/ayato/snippetbase/internal/model"
	"github.com/ayato/snippetbase/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// `var _ X = (*Y)(nil)` assigns a nil *Y to a variable of interface type X.
// If *Y stops implementing X, the compiler errors immediately instead of at
// some distant call site. Standard practice for any interface implementation.
var _ repository.SnippetRepository = (*DB)(nil)

// snippetColumns is the SELECT list shared by every read. Keeping it in one
// place means scanSnippet's field order can never drift out of sync with
// the queries.
const snippetColumns = `id, title, content, category, tags, description, language,
	created_at, updated_at, usage_count, is_favorite`

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSnippet(s scanner) (*model.Snippet, error) {
	var snip model.Snippet
	err := s.Scan(
		&snip.ID, &snip.Title, &snip.Content, &snip.Category,
		&snip.Tags, &snip.Description, &snip.Language,
		&snip.CreatedAt, &snip.UpdatedAt, &snip.UsageCount, &snip.IsFavorite,
	)
	if err != nil {
		return nil, err
	}
	return &snip, nil
}

// Create inserts a new snippet and fills in its assigned id and timestamps.
//
// POINTER RECEIVER ON THE ARGUMENT:
// We take *model.Snippet so the caller's struct gets the generated ID and
// timestamps after Create() returns. SQLite assigns the id (AUTOINCREMENT);
// LastInsertId() reads it back from the driver.
func (db *DB) Create(ctx context.Context, snippet *model.Snippet) error {
	now := time.Now().UTC()
	snippet.CreatedAt = now
	snippet.UpdatedAt = now

	// Parameterized queries (the ? placeholders) — never build SQL with
	// string concatenation; the driver escapes every value.
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO snippets
		 (title, content, category, tags, description, language,
		  created_at, updated_at, usage_count, is_favorite)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snippet.Title,
		snippet.Content,
		snippet.Category,
		snippet.Tags,
		snippet.Description,
		snippet.Language,
		snippet.CreatedAt,
		snippet.UpdatedAt,
		snippet.UsageCount,
		snippet.IsFavorite,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating snippet: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new snippet id: %w", err)
	}
	snippet.ID = id

	return nil
}

// GetByID retrieves a single snippet.
//
// sql.ErrNoRows is not really an error — it means "no matching row exists".
// We translate it into the application's NotFound so the handler knows to
// return 404. Translating database errors into domain errors at this
// boundary keeps the upper layers free of database/sql knowledge.
func (db *DB) GetByID(ctx context.Context, id int64) (*model.Snippet, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets WHERE id = ?`, id)

	snippet, err := scanSnippet(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %d: %w", id, err)
	}
	return snippet, nil
}

// Update applies only the fields set in the patch and refreshes updated_at.
//
// DYNAMIC SET CLAUSE:
// The SET clause is assembled from the non-nil patch fields, so an update
// that only changes the title never touches the other columns. The column
// names are fixed strings from this function — only values go through
// placeholders, so there is no injection surface.
func (db *DB) Update(ctx context.Context, id int64, patch model.SnippetPatch) (*model.Snippet, error) {
	if patch.IsEmpty() {
		return db.GetByID(ctx, id)
	}

	set := make([]string, 0, 7)
	args := make([]any, 0, 8)

	add := func(column string, value *string) {
		if value != nil {
			set = append(set, column+" = ?")
			args = append(args, *value)
		}
	}
	add("title", patch.Title)
	add("content", patch.Content)
	add("category", patch.Category)
	add("tags", patch.Tags)
	add("description", patch.Description)
	add("language", patch.Language)

	set = append(set, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, id)

	result, err := db.conn.ExecContext(ctx,
		`UPDATE snippets SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating snippet %d: %w", id, err)
	}

	// RowsAffected distinguishes "updated" from "no such row" without a
	// separate SELECT-then-UPDATE round trip.
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return nil, apperror.NotFound("snippet", id)
	}

	return db.GetByID(ctx, id)
}

// Delete removes a snippet. A repeat delete reports NotFound, not success.
func (db *DB) Delete(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("snippet", id)
	}
	return nil
}

// Search finds snippets matching the filter, newest-updated first.
//
// The keyword matches as a case-insensitive substring against title, content,
// tags, and description (logical OR across the columns — SQLite's LIKE is
// case-insensitive for ASCII by default). Category and favourites narrow the
// result further with AND. An empty keyword browses the latest snippets.
func (db *DB) Search(ctx context.Context, filter repository.SearchFilter) ([]model.Snippet, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 7)

	if filter.Keyword != "" {
		conditions = append(conditions,
			`(title LIKE ? OR content LIKE ? OR tags LIKE ? OR description LIKE ?)`)
		pattern := "%" + filter.Keyword + "%"
		args = append(args, pattern, pattern, pattern, pattern)
	}
	if filter.Category != "" {
		conditions = append(conditions, `category = ?`)
		args = append(args, filter.Category)
	}
	if filter.FavoritesOnly {
		conditions = append(conditions, `is_favorite = 1`)
	}

	where := "1=1"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}
	args = append(args, repository.ClampLimit(filter.Limit))

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+snippetColumns+`
		 FROM snippets
		 WHERE `+where+`
		 ORDER BY updated_at DESC
		 LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching snippets: %w", err)
	}
	defer rows.Close()

	return collectSnippets(rows)
}

// All returns every snippet, newest-updated first. Export-only; interactive
// queries go through Search and its result cap.
func (db *DB) All(ctx context.Context) ([]model.Snippet, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+snippetColumns+`
		 FROM snippets
		 ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing all snippets: %w", err)
	}
	defer rows.Close()

	return collectSnippets(rows)
}

// MostUsed returns the usage ranking: snippets actually used at least once,
// most used first, updated_at breaking ties.
func (db *DB) MostUsed(ctx context.Context, limit int) ([]model.Snippet, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+snippetColumns+`
		 FROM snippets
		 WHERE usage_count > 0
		 ORDER BY usage_count DESC, updated_at DESC
		 LIMIT ?`, repository.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing most used snippets: %w", err)
	}
	defer rows.Close()

	return collectSnippets(rows)
}

// Favorites returns all favourited snippets, newest-updated first.
func (db *DB) Favorites(ctx context.Context) ([]model.Snippet, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+snippetColumns+`
		 FROM snippets
		 WHERE is_favorite = 1
		 ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing favorites: %w", err)
	}
	defer rows.Close()

	return collectSnippets(rows)
}

// IncrementUsage records one use of a snippet: usage_count += 1 and
// updated_at refreshed, in a single atomic UPDATE.
func (db *DB) IncrementUsage(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE snippets
		 SET usage_count = usage_count + 1, updated_at = ?
		 WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing usage for snippet %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("snippet", id)
	}
	return nil
}

// ToggleFavorite flips is_favorite and returns the new state.
// `1 - is_favorite` flips 0↔1 in one statement, so the flip itself can't
// race; the follow-up SELECT just reads the result back.
func (db *DB) ToggleFavorite(ctx context.Context, id int64) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE snippets
		 SET is_favorite = 1 - is_favorite, updated_at = ?
		 WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("sqlite: toggling favorite for snippet %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return false, apperror.NotFound("snippet", id)
	}

	var favorite bool
	err = db.conn.QueryRowContext(ctx,
		`SELECT is_favorite FROM snippets WHERE id = ?`, id).Scan(&favorite)
	if err != nil {
		return false, fmt.Errorf("sqlite: reading favorite state for snippet %d: %w", id, err)
	}
	return favorite, nil
}

// Categories returns all categories in display order with their snippet
// counts. The LEFT JOIN keeps empty categories in the result with count 0.
func (db *DB) Categories(ctx context.Context) ([]model.Category, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT c.id, c.name, c.icon, c.display_order, COUNT(s.id)
		 FROM categories c
		 LEFT JOIN snippets s ON s.category = c.name
		 GROUP BY c.id
		 ORDER BY c.display_order, c.name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.DisplayOrder, &c.SnippetCount); err != nil {
			return nil, fmt.Errorf("sqlite: scanning category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating categories: %w", err)
	}
	return categories, nil
}

// Statistics computes the five aggregates in two queries: one pass over the
// snippets table for the counts and sums, one GROUP BY for the most-used
// category. Ties on the category count are broken by name ascending so the
// answer is deterministic.
func (db *DB) Statistics(ctx context.Context) (*model.Statistics, error) {
	var stats model.Statistics
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(DISTINCT category),
		        COALESCE(SUM(usage_count), 0),
		        COALESCE(SUM(is_favorite), 0)
		 FROM snippets`).Scan(
		&stats.TotalSnippets,
		&stats.TotalCategories,
		&stats.TotalUsage,
		&stats.FavoritesCount,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: computing statistics: %w", err)
	}

	err = db.conn.QueryRowContext(ctx,
		`SELECT category
		 FROM snippets
		 GROUP BY category
		 ORDER BY COUNT(*) DESC, category ASC
		 LIMIT 1`).Scan(&stats.MostUsedCategory)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: computing most used category: %w", err)
	}

	return &stats, nil
}

// RecordSearch appends one row to the search history log.
func (db *DB) RecordSearch(ctx context.Context, query string, resultCount int) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO search_history (query, searched_at, result_count) VALUES (?, ?, ?)`,
		query, time.Now().UTC(), resultCount)
	if err != nil {
		return fmt.Errorf("sqlite: recording search: %w", err)
	}
	return nil
}

// collectSnippets drains a result set into a slice.
// Always check rows.Err() after the loop — it catches errors that happened
// during iteration, which rows.Next() silently swallows.
func collectSnippets(rows *sql.Rows) ([]model.Snippet, error) {
	var snippets []model.Snippet
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		snippets = append(snippets, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}
	return snippets, nil
}
