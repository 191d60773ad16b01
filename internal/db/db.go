// Package db opens the scanner's SQLite database and keeps its schema
// current through embedded goose migrations.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// connPragmas travel in the DSN so they apply to every connection the pool
// hands out, not just the first one.
var connPragmas = []string{
	"journal_mode(WAL)",
	"foreign_keys(ON)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"cache_size(-64000)",
}

// Open opens (or creates) the database at path. The pool is capped at one
// connection: the orchestrator and the result lifecycle manager are the
// only writers, and the single-active-scan rule already serializes them.
func Open(path string) (*sql.DB, error) {
	dsn := "file:" + path + "?_pragma=" + strings.Join(connPragmas, "&_pragma=")
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	return conn, nil
}

// Migrate brings the schema up to date from the embedded migrations.
// Safe to run on every start; applied versions are skipped.
func Migrate(conn *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(conn, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
