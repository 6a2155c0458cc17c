// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Snippet is the central entity: a stored unit of reusable code/command text
// with its metadata. The `json:"..."` struct tags tell encoding/json how to
// serialize each field for API responses.
//
// The ID is assigned by the storage backend on creation (AUTOINCREMENT locally,
// serial on the hosted database) and never changes afterwards.
type Snippet struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Category    string    `json:"category"`
	Tags        string    `json:"tags"` // comma-separated, optional
	Description string    `json:"description"`
	Language    string    `json:"language"` // syntax-highlight hint, defaults to "text"
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	UsageCount  int       `json:"usageCount"`
	IsFavorite  bool      `json:"isFavorite"`
}

// SnippetPatch is a partial update: nil means "leave the field alone",
// a non-nil pointer means "set the field to this value".
//
// WHY POINTERS?
// A plain string can't distinguish "set the description to empty" from
// "don't touch the description". With *string, nil is "don't touch" and
// a pointer to "" is "clear it". The backends build their UPDATE statements
// from the non-nil fields only, so unspecified columns are never overwritten.
type SnippetPatch struct {
	Title       *string `json:"title,omitempty"`
	Content     *string `json:"content,omitempty"`
	Category    *string `json:"category,omitempty"`
	Tags        *string `json:"tags,omitempty"`
	Description *string `json:"description,omitempty"`
	Language    *string `json:"language,omitempty"`
}

// IsEmpty reports whether the patch would change nothing.
func (p SnippetPatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.Category == nil &&
		p.Tags == nil && p.Description == nil && p.Language == nil
}

// Category is a named grouping with a display icon and ordering weight.
// Snippets reference categories by name (free text, no foreign key) — an
// intentional relaxation favouring flexibility over normalization.
//
// SnippetCount is computed at query time, not stored.
type Category struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Icon         string `json:"icon"`
	DisplayOrder int    `json:"displayOrder"`
	SnippetCount int    `json:"snippetCount"`
}

// SearchHistory is one row of the append-only search log.
// The application only ever writes these; there is no read path yet.
type SearchHistory struct {
	ID          int64     `json:"id"`
	Query       string    `json:"query"`
	SearchedAt  time.Time `json:"searchedAt"`
	ResultCount int       `json:"resultCount"`
}

// Statistics holds the five aggregate fields the backends compute.
// MostUsedCategory is the category holding the most snippets; ties are
// broken by category name ascending so the result is deterministic.
type Statistics struct {
	TotalSnippets    int    `json:"totalSnippets"`
	TotalCategories  int    `json:"totalCategories"`
	MostUsedCategory string `json:"mostUsedCategory"`
	TotalUsage       int    `json:"totalUsage"`
	FavoritesCount   int    `json:"favoritesCount"`
}
