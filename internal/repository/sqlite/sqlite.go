// Package sqlite implements the storage backend contract using SQLite.
//
// WHY SQLITE?
// SQLite is an embedded database — it lives inside your Go binary as a single
// file. No separate database server to install, configure, or manage. It is
// the fallback backend: when no hosted-database credentials are configured,
// the knowledge base runs entirely against a local file.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a C
// compiler installed and cross-compilation becomes painful. modernc.org/sqlite
// is a pure Go translation of the SQLite C code — no C compiler needed,
// works everywhere Go works.
package sqlite

import (
	"database/sql"
	"fmt"

	// BLANK IMPORT:
	// `_ "modernc.org/sqlite"` is a side-effect only import. The package's
	// init() registers itself with database/sql as a driver named "sqlite";
	// after this import, sql.Open("sqlite", ...) knows how to talk to SQLite.
	_ "modernc.org/sqlite"
)

// seedCategories is the fixed initial category set. Seeding is idempotent —
// INSERT OR IGNORE keys on the unique name, so user-added categories and
// edited icons survive restarts.
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

// DB wraps a sql.DB connection pool and provides the repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/knowledgebase.db" → file-based database (persistent)
//   - ":memory:"              → in-memory database (great for tests)
//
// sql.Open() does NOT actually open a connection — it creates a pool manager.
// We call Ping() to force an immediate connection so a bad path or permission
// problem surfaces here instead of on the first query.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is in progress.
	// Default SQLite locks the whole database during writes.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
// Always defer Close() next to New() — it flushes the WAL and releases the
// file lock even if something panics later.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the three tables and their indexes.
// CREATE TABLE IF NOT EXISTS is safe to run on every startup.
//
// The indexes mirror the query patterns: filtering by category and
// favourites, and ordering by updated_at / usage_count descending.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snippets (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			title       TEXT NOT NULL,
			content     TEXT NOT NULL,
			category    TEXT NOT NULL,
			tags        TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			language    TEXT NOT NULL DEFAULT 'text',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			usage_count INTEGER NOT NULL DEFAULT 0,
			is_favorite INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_snippets_category ON snippets(category);
		CREATE INDEX IF NOT EXISTS idx_snippets_updated  ON snippets(updated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_snippets_usage    ON snippets(usage_count DESC);
		CREATE INDEX IF NOT EXISTS idx_snippets_favorite ON snippets(is_favorite DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating snippets table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS categories (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			name          TEXT UNIQUE NOT NULL,
			icon          TEXT NOT NULL DEFAULT '📁',
			display_order INTEGER NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return fmt.Errorf("creating categories table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS search_history (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			query        TEXT NOT NULL,
			searched_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			result_count INTEGER NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return fmt.Errorf("creating search_history table: %w", err)
	}

	for _, c := range seedCategories {
		_, err = db.conn.Exec(
			`INSERT OR IGNORE INTO categories (name, icon, display_order) VALUES (?, ?, ?)`,
			c.name, c.icon, c.order,
		)
		if err != nil {
			return fmt.Errorf("seeding category %s: %w", c.name, err)
		}
	}

	return nil
}
