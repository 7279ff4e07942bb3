// Package db opens the agent's SQLite database and keeps its schema current.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/reelplay/reelplay-agent/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// New opens (creating if needed) the database at dbPath, applies pending
// migrations and renumbers playlist positions.
func New(dbPath string, logger *slog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer keeps playlist replacements serialized.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	ctx := context.Background()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	d := &DB{conn: conn, logger: logging.WithComponent(logging.OrDiscard(logger), "db")}

	if err := d.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := d.compactPositions(ctx); err != nil {
		d.logger.Warn("failed to compact playlist positions", "error", err)
	}

	return d, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Conn() *sql.DB {
	return d.conn
}

// migrate applies every embedded migration not yet recorded, in file name
// order. Each migration and its record commit together.
func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
		name TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := d.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	sort.Strings(names)

	for _, path := range names {
		name := filepath.Base(path)
		if applied[name] {
			continue
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if err := d.apply(ctx, name, string(content)); err != nil {
			return err
		}
		d.logger.Info("applied migration", "name", name)
	}
	return nil
}

func (d *DB) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := d.conn.QueryContext(ctx, "SELECT name FROM _migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func (d *DB) apply(ctx context.Context, name, content string) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, content); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", name, err)
	}
	return tx.Commit()
}

// compactPositions renumbers assets 0..n-1 so an interrupted write never
// leaves gaps in the playlist order. Nothing is written when the order is
// already compact.
func (d *DB) compactPositions(ctx context.Context) error {
	rows, err := d.conn.QueryContext(ctx, "SELECT id, position FROM assets ORDER BY position, id")
	if err != nil {
		return err
	}
	var (
		ids     []string
		compact = true
	)
	for rows.Next() {
		var (
			id       string
			position int
		)
		if err := rows.Scan(&id, &position); err != nil {
			rows.Close()
			return err
		}
		if position != len(ids) {
			compact = false
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if compact {
		return nil
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, "UPDATE assets SET position = ? WHERE id = ?", i, id); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	d.logger.Info("playlist positions compacted", "count", len(ids))
	return nil
}
