// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
// In a well-structured Go web app, code is organised into three layers:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes the storage backend
//
// WHY A SEPARATE SERVICE LAYER?
// Without a service layer, handlers do everything: parse HTTP, validate data,
// call the database, format responses. That makes business rules untestable
// without spinning up HTTP, and unusable from anywhere but HTTP.
//
// THE DEPENDENCY CHAIN:
//
//	main.go creates:  backend → Repository → Service → Handler
//	At runtime:       Handler calls Service calls Repository calls backend
//
// DEPENDENCY INJECTION:
// SnippetService takes a repository.SnippetRepository (interface), NOT a
// concrete *sqlite.DB or *supabase.Client. The service never learns which
// backend it got — local file or hosted project — and the tests inject an
// in-memory mock through the same seam.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ayato/snippetbase/internal/apperror"
	"github.com/ayato/snippetbase/internal/model"
	"github.com/ayato/snippetbase/internal/repository"
)

// Validation limits. Defining these as constants (not magic numbers in code)
// keeps them easy to find, self-documenting, and referenceable in error
// messages.
const (
	MaxTitleLength       = 200
	MaxContentLength     = 50000 // ~50KB of snippet text
	MaxTagsLength        = 500
	MaxTagCount          = 20
	MaxDescriptionLength = 1000

	// MinKeywordLength is the shortest keyword that triggers a filtered
	// search. Anything shorter is treated as browsing: one- and two-byte
	// fragments match nearly everything and just produce noise.
	MinKeywordLength = 2

	// DefaultCategory is where uncategorised snippets are filed.
	DefaultCategory = "Other"

	// DefaultLanguage is the syntax-highlight hint used when none is given
	// or the given one isn't recognised.
	DefaultLanguage = "text"

	// MostUsedLimit is how many top snippets the statistics overview carries.
	MostUsedLimit = 5
)

// allowedLanguages is the fixed set of syntax-highlight hints the UI knows
// how to render. Anything else silently becomes DefaultLanguage rather than
// failing the whole save over a cosmetic field.
var allowedLanguages = map[string]bool{
	"text": true, "bash": true, "python": true, "sql": true,
	"javascript": true, "yaml": true, "json": true,
	"dockerfile": true, "conf": true, "xml": true,
}

// SnippetInput carries the caller-supplied fields for creating a snippet.
// Everything the storage backend assigns (id, timestamps, usage count,
// favourite flag) is deliberately absent.
type SnippetInput struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Category    string `json:"category"`
	Tags        string `json:"tags"`
	Description string `json:"description"`
	Language    string `json:"language"`
}

// CategoryShare is one slice of the category distribution: a category's
// snippet count and its share of the total, in percent.
type CategoryShare struct {
	Name    string  `json:"name"`
	Icon    string  `json:"icon"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// StatsOverview is the full statistics payload: the five stored aggregates
// plus the derived category distribution and the usage top list.
type StatsOverview struct {
	model.Statistics
	Distribution []CategoryShare `json:"distribution"`
	MostUsed     []model.Snippet `json:"mostUsed"`
}

// SnippetService handles business logic for snippets: validation,
// normalisation, and orchestration of repository calls.
type SnippetService struct {
	repo   repository.SnippetRepository
	logger *slog.Logger
}

// NewSnippetService creates a new SnippetService. The caller decides which
// repository implementation to inject — local, hosted, or a test mock.
func NewSnippetService(repo repository.SnippetRepository, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:   repo,
		logger: logger,
	}
}

// Create validates, normalises and saves a new snippet.
//
// Validation lives here, not in the handler: every caller — HTTP, import,
// a future CLI — needs the same rules. The service returns domain errors
// (apperror.ValidationFailed), never HTTP status codes.
func (s *SnippetService) Create(ctx context.Context, in SnippetInput) (*model.Snippet, error) {
	normalized, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}

	snippet := &model.Snippet{
		Title:       normalized.Title,
		Content:     normalized.Content,
		Category:    normalized.Category,
		Tags:        normalized.Tags,
		Description: normalized.Description,
		Language:    normalized.Language,
	}

	if err := s.repo.Create(ctx, snippet); err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("title", snippet.Title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.Int64("id", snippet.ID),
		slog.String("title", snippet.Title),
		slog.String("category", snippet.Category),
	)
	return snippet, nil
}

// Get retrieves a snippet by its ID.
// Returns apperror.ErrNotFound if the snippet doesn't exist.
func (s *SnippetService) Get(ctx context.Context, id int64) (*model.Snippet, error) {
	if id <= 0 {
		return nil, apperror.ValidationFailed("id", "snippet id must be positive")
	}
	return s.repo.GetByID(ctx, id)
}

// Update applies a partial update. Only the fields present in the patch are
// validated and normalised; nil fields are left untouched by the backend.
func (s *SnippetService) Update(ctx context.Context, id int64, patch model.SnippetPatch) (*model.Snippet, error) {
	if id <= 0 {
		return nil, apperror.ValidationFailed("id", "snippet id must be positive")
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apperror.ValidationFailed("title", "title cannot be cleared")
		}
		if len(title) > MaxTitleLength {
			return nil, apperror.ValidationFailed("title",
				fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
		}
		patch.Title = &title
	}
	if patch.Content != nil {
		if strings.TrimSpace(*patch.Content) == "" {
			return nil, apperror.ValidationFailed("content", "content cannot be cleared")
		}
		if len(*patch.Content) > MaxContentLength {
			return nil, apperror.ValidationFailed("content",
				fmt.Sprintf("content must be %d characters or less", MaxContentLength))
		}
	}
	if patch.Category != nil {
		category := strings.TrimSpace(*patch.Category)
		if category == "" {
			category = DefaultCategory
		}
		patch.Category = &category
	}
	if patch.Tags != nil {
		tags, err := normalizeTags(*patch.Tags)
		if err != nil {
			return nil, err
		}
		patch.Tags = &tags
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		if len(description) > MaxDescriptionLength {
			return nil, apperror.ValidationFailed("description",
				fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
		}
		patch.Description = &description
	}
	if patch.Language != nil {
		language := normalizeLanguage(*patch.Language)
		patch.Language = &language
	}

	snippet, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	s.logger.Info("snippet updated", slog.Int64("id", id))
	return snippet, nil
}

// Delete removes a snippet by its ID.
// Returns apperror.ErrNotFound if the snippet doesn't exist.
func (s *SnippetService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperror.ValidationFailed("id", "snippet id must be positive")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("snippet deleted", slog.Int64("id", id))
	return nil
}

// Search looks up snippets by keyword, optionally narrowed to a category or
// to favourites only.
//
// A keyword shorter than MinKeywordLength (after trimming) degrades to
// browsing: the repository returns the latest snippets instead. Real keyword
// searches are logged to the search history — best-effort, a history write
// failure never fails the search itself.
func (s *SnippetService) Search(ctx context.Context, keyword, category string, favoritesOnly bool) ([]model.Snippet, error) {
	keyword = strings.TrimSpace(keyword)
	if len(keyword) < MinKeywordLength {
		keyword = ""
	}

	results, err := s.repo.Search(ctx, repository.SearchFilter{
		Keyword:       keyword,
		Category:      strings.TrimSpace(category),
		FavoritesOnly: favoritesOnly,
	})
	if err != nil {
		s.logger.Error("search failed",
			slog.String("keyword", keyword),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("searching snippets: %w", err)
	}

	if keyword != "" {
		if err := s.repo.RecordSearch(ctx, keyword, len(results)); err != nil {
			s.logger.Warn("failed to record search history",
				slog.String("keyword", keyword),
				slog.String("error", err.Error()),
			)
		}
	}
	return results, nil
}

// Use marks a snippet as used — bumps its usage counter — and returns the
// refreshed snippet so the caller sees the new count.
func (s *SnippetService) Use(ctx context.Context, id int64) (*model.Snippet, error) {
	if id <= 0 {
		return nil, apperror.ValidationFailed("id", "snippet id must be positive")
	}
	if err := s.repo.IncrementUsage(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// ToggleFavorite flips a snippet's favourite flag and returns the new state.
func (s *SnippetService) ToggleFavorite(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, apperror.ValidationFailed("id", "snippet id must be positive")
	}
	favorite, err := s.repo.ToggleFavorite(ctx, id)
	if err != nil {
		return false, err
	}
	s.logger.Info("favorite toggled", slog.Int64("id", id), slog.Bool("favorite", favorite))
	return favorite, nil
}

// Favorites returns all favourited snippets, newest-updated first.
func (s *SnippetService) Favorites(ctx context.Context) ([]model.Snippet, error) {
	return s.repo.Favorites(ctx)
}

// MostUsed returns the usage ranking. A non-positive limit means the
// repository's standard cap.
func (s *SnippetService) MostUsed(ctx context.Context, limit int) ([]model.Snippet, error) {
	return s.repo.MostUsed(ctx, limit)
}

// Categories returns all categories in display order with snippet counts.
func (s *SnippetService) Categories(ctx context.Context) ([]model.Category, error) {
	return s.repo.Categories(ctx)
}

// Statistics assembles the statistics overview: the stored aggregates, the
// per-category distribution in percent, and the usage top list.
func (s *SnippetService) Statistics(ctx context.Context) (*StatsOverview, error) {
	stats, err := s.repo.Statistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading statistics: %w", err)
	}

	categories, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading category counts: %w", err)
	}

	mostUsed, err := s.repo.MostUsed(ctx, MostUsedLimit)
	if err != nil {
		return nil, fmt.Errorf("loading usage ranking: %w", err)
	}

	overview := &StatsOverview{
		Statistics:   *stats,
		Distribution: make([]CategoryShare, 0, len(categories)),
		MostUsed:     mostUsed,
	}
	for _, cat := range categories {
		if cat.SnippetCount == 0 {
			continue // empty categories would clutter the chart
		}
		share := CategoryShare{
			Name:  cat.Name,
			Icon:  cat.Icon,
			Count: cat.SnippetCount,
		}
		if stats.TotalSnippets > 0 {
			share.Percent = float64(cat.SnippetCount) / float64(stats.TotalSnippets) * 100
		}
		overview.Distribution = append(overview.Distribution, share)
	}
	// Largest slice first; equal counts fall back to name order so the
	// chart is stable across reloads.
	sort.SliceStable(overview.Distribution, func(i, j int) bool {
		if overview.Distribution[i].Count != overview.Distribution[j].Count {
			return overview.Distribution[i].Count > overview.Distribution[j].Count
		}
		return overview.Distribution[i].Name < overview.Distribution[j].Name
	})

	return overview, nil
}

// normalizeInput validates a SnippetInput and returns the cleaned copy:
// trimmed title/description, normalised tags, defaulted category and
// language.
func normalizeInput(in SnippetInput) (SnippetInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, apperror.ValidationFailed("title", "title is required")
	}
	if len(in.Title) > MaxTitleLength {
		return in, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}

	if strings.TrimSpace(in.Content) == "" {
		return in, apperror.ValidationFailed("content", "content is required")
	}
	if len(in.Content) > MaxContentLength {
		return in, apperror.ValidationFailed("content",
			fmt.Sprintf("content must be %d characters or less", MaxContentLength))
	}

	in.Category = strings.TrimSpace(in.Category)
	if in.Category == "" {
		in.Category = DefaultCategory
	}

	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return in, err
	}
	in.Tags = tags

	in.Description = strings.TrimSpace(in.Description)
	if len(in.Description) > MaxDescriptionLength {
		return in, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}

	in.Language = normalizeLanguage(in.Language)
	return in, nil
}

// normalizeTags cleans a comma-separated tag list: trims each tag, drops
// empties, removes case-insensitive duplicates (first spelling wins), and
// enforces the count and length limits.
func normalizeTags(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}

	seen := make(map[string]bool)
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, tag)
	}

	if len(tags) > MaxTagCount {
		return "", apperror.ValidationFailed("tags",
			fmt.Sprintf("at most %d tags are allowed", MaxTagCount))
	}
	joined := strings.Join(tags, ",")
	if len(joined) > MaxTagsLength {
		return "", apperror.ValidationFailed("tags",
			fmt.Sprintf("tags must be %d characters or less in total", MaxTagsLength))
	}
	return joined, nil
}

// normalizeLanguage lowercases the hint and falls back to DefaultLanguage
// for anything outside the known set.
func normalizeLanguage(raw string) string {
	language := strings.ToLower(strings.TrimSpace(raw))
	if !allowedLanguages[language] {
		return DefaultLanguage
	}
	return language
}
