// Package supabase implements the storage backend contract against a hosted
// Supabase project, talking to its PostgREST API over HTTPS.
//
// WHY HTTP AND NOT A POSTGRES DRIVER?
// A Supabase project is addressed by a service endpoint URL plus an anon key,
// the same pair every Supabase client library uses. Going through PostgREST
// keeps the configuration surface to those two values — no connection
// strings, no database passwords — and matches how the hosted schema is
// provisioned (tables plus the get_statistics stored function, with an
// update trigger refreshing updated_at server-side).
//
// FAILURE MODEL:
// A network-level failure surfaces as apperror.ErrUnavailable. There is no
// fallback to the local backend — backend selection happened at startup and
// is never re-evaluated. Idempotent reads are retried a few times with
// backoff before giving up; writes are fail-fast because retrying a
// non-idempotent POST risks duplicate rows.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ayato/snippetbase/internal/apperror"
	"github.com/ayato/snippetbase/internal/model"
	"github.com/ayato/snippetbase/internal/retry"
)

// seedCategories mirrors the local backend's fixed initial set. Both
// backends must produce identical logical results for identical data.
var seedCategories = []struct {
	name  string
	icon  string
	order int
}{
	{"Docker", "🐳", 1},
	{"Git", "📚", 2},
	{"SQL", "🗄️", 3},
	{"Linux", "🐧", 4},
	{"Python", "🐍", 5},
	{"Settings", "⚙️", 6},
	{"Other", "📝", 99},
}

// Client is the hosted storage backend.
type Client struct {
	baseURL string // project URL, e.g. https://abc.supabase.co
	key     string // anon key, sent as apikey + bearer token
	httpc   *http.Client
	logger  *slog.Logger
}

// New creates a hosted backend client and verifies the project is reachable
// by seeding any missing categories. An unreachable project fails startup —
// deliberately, so a misconfigured deployment is caught immediately instead
// of on the first user action.
func New(ctx context.Context, baseURL, key string, logger *slog.Logger) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}

	if err := c.ensureCategories(ctx); err != nil {
		return nil, fmt.Errorf("supabase: initializing categories: %w", err)
	}
	return c, nil
}

// Close satisfies the repository contract. The HTTP client holds no
// resources that outlive its idle connections.
func (c *Client) Close() error {
	c.httpc.CloseIdleConnections()
	return nil
}

// snippetRow is the PostgREST wire shape of a snippets row: snake_case
// column names, nullable text columns as pointers, timestamptz as RFC 3339.
type snippetRow struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Category    string    `json:"category"`
	Tags        *string   `json:"tags"`
	Description *string   `json:"description"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	UsageCount  int       `json:"usage_count"`
	IsFavorite  bool      `json:"is_favorite"`
}

func (r snippetRow) toModel() model.Snippet {
	s := model.Snippet{
		ID:         r.ID,
		Title:      r.Title,
		Content:    r.Content,
		Category:   r.Category,
		Language:   r.Language,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		UsageCount: r.UsageCount,
		IsFavorite: r.IsFavorite,
	}
	if r.Tags != nil {
		s.Tags = *r.Tags
	}
	if r.Description != nil {
		s.Description = *r.Description
	}
	return s
}

// do performs one REST call against /rest/v1/<path>.
//
// PostgREST authenticates with the anon key in two headers: `apikey` and
// `Authorization: Bearer`. `Prefer: return=representation` makes writes
// echo the affected rows back, which is how we detect "0 rows matched"
// (empty array) and turn it into NotFound.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, prefer string, body, out any) error {
	endpoint := c.baseURL + "/rest/v1/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("supabase: encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("supabase: building %s %s request: %w", method, path, err)
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Connection refused, DNS failure, timeout — the hosted store is
		// unreachable. No silent fallback; the caller sees the failure.
		return apperror.Unavailable(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return apperror.Unavailable(method+" "+path, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("supabase: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("supabase: decoding %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// withRetry wraps an idempotent read with bounded retry. Only transport-level
// failures (ErrUnavailable) are retried; NotFound and friends return at once.
func withRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	return retry.Do(ctx, retry.Options{
		MaxAttempts: 3,
		Strategy:    retry.ExponentialJitterBackoff(200*time.Millisecond, 2*time.Second),
		ShouldRetry: func(err error) bool { return errors.Is(err, apperror.ErrUnavailable) },
	}, fn)
}

// ensureCategories seeds any of the fixed categories missing on the project.
// Doubles as the startup reachability check.
func (c *Client) ensureCategories(ctx context.Context) error {
	query := url.Values{"select": {"name"}}
	var existing []struct {
		Name string `json:"name"`
	}
	if err := c.do(ctx, http.MethodGet, "categories", query, "", nil, &existing); err != nil {
		return err
	}

	have := make(map[string]bool, len(existing))
	for _, row := range existing {
		have[row.Name] = true
	}

	for _, cat := range seedCategories {
		if have[cat.name] {
			continue
		}
		body := map[string]any{
			"name":          cat.name,
			"icon":          cat.icon,
			"display_order": cat.order,
		}
		if err := c.do(ctx, http.MethodPost, "categories", nil, "return=minimal", body, nil); err != nil {
			return err
		}
		c.logger.Info("seeded category", slog.String("name", cat.name))
	}
	return nil
}
