package handler

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ayato/snippetbase/internal/model"
	"github.com/ayato/snippetbase/internal/service"
)

// PageHandler serves the HTML front page: the latest snippets, the category
// sidebar, and the statistics strip. Everything interactive on the page goes
// through the JSON API; this is just the initial render.
//
// Templates are parsed once at startup (expensive) and reused per request
// (cheap). Snippet descriptions are written in Markdown, so the handler
// renders them to HTML server-side before they reach the template.
type PageHandler struct {
	templates *template.Template
	markdown  goldmark.Markdown
	svc       *service.SnippetService
	logger    *slog.Logger
}

// NewPageHandler parses the page templates and sets up the Markdown
// renderer.
//
// TEMPLATE COMPOSITION:
// base.html defines the page skeleton with a {{template "content" .}}
// placeholder; index.html fills it via {{define "content"}}. Parsing them
// together is Go's equivalent of template inheritance.
func NewPageHandler(templateDir string, svc *service.SnippetService, logger *slog.Logger) (*PageHandler, error) {
	tmpl, err := template.ParseFiles(
		filepath.Join(templateDir, "base.html"),
		filepath.Join(templateDir, "index.html"),
	)
	if err != nil {
		return nil, err
	}

	// GFM gets tables and strikethrough in descriptions; WithHardWraps
	// keeps single newlines visible the way users expect from a notes app.
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)

	return &PageHandler{
		templates: tmpl,
		markdown:  md,
		svc:       svc,
		logger:    logger,
	}, nil
}

// snippetView is a Snippet plus its description rendered to HTML.
// template.HTML marks the rendered Markdown as safe so html/template
// doesn't escape it again.
type snippetView struct {
	model.Snippet
	DescriptionHTML template.HTML
}

// HandleIndex serves the front page.
//
// HTTP: GET /
func (h *PageHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// The search box submits back to / with ?q=...; the page works without
	// JavaScript, and the JSON API offers the same filter for the dynamic
	// bits.
	query := r.URL.Query()
	snippets, err := h.svc.Search(ctx, query.Get("q"), query.Get("category"), false)
	if err != nil {
		h.logger.Error("failed to load snippets for page", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	categories, err := h.svc.Categories(ctx)
	if err != nil {
		h.logger.Error("failed to load categories for page", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	stats, err := h.svc.Statistics(ctx)
	if err != nil {
		h.logger.Error("failed to load statistics for page", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	views := make([]snippetView, 0, len(snippets))
	for _, snippet := range snippets {
		views = append(views, snippetView{
			Snippet:         snippet,
			DescriptionHTML: h.renderMarkdown(snippet.Description),
		})
	}

	data := map[string]interface{}{
		"Title":      "Snippet Base — Personal Command Library",
		"Snippets":   views,
		"Categories": categories,
		"Stats":      stats,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// renderMarkdown converts a description to HTML, falling back to the raw
// text (escaped by the template) if conversion fails.
func (h *PageHandler) renderMarkdown(source string) template.HTML {
	if source == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(source), &buf); err != nil {
		h.logger.Warn("markdown conversion failed", slog.String("error", err.Error()))
		return template.HTML(template.HTMLEscapeString(source))
	}
	return template.HTML(buf.String())
}
