// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and
// routes. It is also the composition root: the one place where the storage
// backend is chosen and the whole dependency chain is assembled:
//
//	backend (sqlite.DB or supabase.Client)
//	  → service.SnippetService
//	    → handler.SnippetHandler / handler.PageHandler
//
// WHY SEPARATE FROM main.go?
// Keeping server setup in its own package makes it testable (a test can
// create a server without running main) and keeps main.go minimal.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ayato/snippetbase/internal/config"
	"github.com/ayato/snippetbase/internal/handler"
	"github.com/ayato/snippetbase/internal/middleware"
	"github.com/ayato/snippetbase/internal/repository"
	sqliteRepo "github.com/ayato/snippetbase/internal/repository/sqlite"
	"github.com/ayato/snippetbase/internal/repository/supabase"
	"github.com/ayato/snippetbase/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The server owns the storage backend (repo). On shutdown it must be
// closed — for the local backend that flushes the WAL and releases the
// file lock, for the hosted backend it drops idle connections.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	repo   repository.SnippetRepository
}

// New creates a new Server: picks the storage backend, wires the dependency
// chain, and registers all routes.
//
// BACKEND SELECTION:
// The decision is cfg.Backend()'s — hosted credentials present means the
// hosted store, otherwise the local file database. It is made exactly once,
// here, at startup. There is no mid-session fallback: if the hosted store
// goes away later, requests fail with 502 rather than silently switching to
// a different (empty) local database.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	var repo repository.SnippetRepository
	switch cfg.Backend() {
	case config.BackendSupabase:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		client, err := supabase.New(ctx, cfg.SupabaseURL, cfg.SupabaseKey, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to hosted backend: %w", err)
		}
		logger.Info("using hosted storage backend", slog.String("url", cfg.SupabaseURL))
		repo = client
	default:
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		logger.Info("using local storage backend", slog.String("path", cfg.DBPath))
		repo = db
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		repo:   repo,
	}

	if err := s.setupRoutes(); err != nil {
		repo.Close() // clean up the backend if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /                          → Front page (HTML)
//	GET    /static/*                  → Static files (CSS, JS)
//	GET    /api/snippets              → Search / browse snippets
//	POST   /api/snippets              → Create snippet
//	GET    /api/snippets/{id}         → Get single snippet
//	PATCH  /api/snippets/{id}         → Partial update
//	DELETE /api/snippets/{id}         → Delete snippet
//	POST   /api/snippets/{id}/use     → Record a use (bump counter)
//	POST   /api/snippets/{id}/favorite→ Toggle favourite
//	GET    /api/categories            → Categories with counts
//	GET    /api/stats                 → Statistics overview
//	GET    /api/export                → Download all snippets (json/csv)
//	POST   /api/import                → Upload an export file
//
// MIDDLEWARE ORDER MATTERS:
// RequestID → RealIP → Recoverer → request logging. Middleware executes in
// the order it's added; the logger runs last so it sees the final status.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// Static files: GET /static/css/style.css → {StaticDir}/css/style.css
	fileServer := http.FileServer(http.Dir(s.config.StaticDir))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	snippetService := service.NewSnippetService(s.repo, s.logger)

	pageHandler, err := handler.NewPageHandler(s.config.TemplateDir, snippetService, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}
	s.router.Get("/", pageHandler.HandleIndex)

	snippetHandler := handler.NewSnippetHandler(snippetService, s.logger)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/snippets", snippetHandler.HandleSearch)
		r.Post("/snippets", snippetHandler.HandleCreate)
		r.Get("/snippets/{id}", snippetHandler.HandleGet)
		r.Patch("/snippets/{id}", snippetHandler.HandleUpdate)
		r.Delete("/snippets/{id}", snippetHandler.HandleDelete)
		r.Post("/snippets/{id}/use", snippetHandler.HandleUse)
		r.Post("/snippets/{id}/favorite", snippetHandler.HandleFavorite)

		r.Get("/categories", snippetHandler.HandleCategories)
		r.Get("/stats", snippetHandler.HandleStats)

		r.Get("/export", snippetHandler.HandleExport)
		r.Post("/import", snippetHandler.HandleImport)
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new connections
// 2. Wait up to 30s for in-flight requests to finish
// 3. Close the storage backend
func (s *Server) Start() error {
	defer s.repo.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("backend", string(s.config.Backend())),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
