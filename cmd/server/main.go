// Package main is the entry point for the snippet base server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main"
// package. main's job is kept minimal:
// 1. Set up logging
// 2. Load configuration
// 3. Create and start the application
//
// All actual logic lives in imported packages (internal/server,
// internal/handler, ...). The cmd/server/ layout is a Go convention for
// executable entry points — a project with more binaries would add
// cmd/<name>/main.go siblings.
package main

import (
	"log/slog"
	"os"

	"github.com/ayato/snippetbase/internal/config"
	"github.com/ayato/snippetbase/internal/server"
)

func main() {
	// Structured logging with slog. Text output for the terminal; in a
	// container you'd swap NewTextHandler for NewJSONHandler.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Configuration comes from the environment, with .env support for
	// local development. This is also where the storage backend decision
	// gets its inputs: SUPABASE_URL + SUPABASE_ANON_KEY present means the
	// hosted store, otherwise the local file database under DB_PATH.
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (Ctrl+C or SIGTERM).
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
