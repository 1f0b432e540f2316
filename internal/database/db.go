package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB is the SQLite handle shared by the session stores, metrics, activity
// log and backups
type DB struct {
	*sql.DB
	path string
}

const (
	defaultMaxConnections = 25
	defaultIdleConns      = 5
)

// sqlitePragmas apply to every pooled connection
var sqlitePragmas = []string{
	"foreign_keys(ON)",
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// NewDB opens the database at dbPath, creating its directory
func NewDB(dbPath string) (*DB, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", sqliteDSN(absPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(defaultMaxConnections)
	conn.SetMaxIdleConns(defaultIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: conn, path: absPath}, nil
}

func sqliteDSN(absPath string) string {
	params := make([]string, len(sqlitePragmas))
	for i, pragma := range sqlitePragmas {
		params[i] = "_pragma=" + pragma
	}
	// file URIs use forward slashes on every platform
	return "file:" + filepath.ToSlash(absPath) + "?" + strings.Join(params, "&")
}

// Path returns the absolute database file path
func (db *DB) Path() string {
	return db.path
}

// SetPoolSize caps open connections; zero or less keeps the default
func (db *DB) SetPoolSize(maxConnections int) {
	if maxConnections <= 0 {
		return
	}
	db.SetMaxOpenConns(maxConnections)
	db.SetMaxIdleConns(min(maxConnections, defaultIdleConns))
}

// Migrate applies pending migrations in order, each in its own transaction
func (db *DB) Migrate() error {
	pending, err := db.pendingMigrations()
	if err != nil {
		return err
	}

	for _, migration := range pending {
		if err := db.apply(migration); err != nil {
			return err
		}
		log.Printf("[Database] Applied migration: %s", migration.Version)
	}
	return nil
}

// Pending returns the versions not yet applied
func (db *DB) Pending() ([]string, error) {
	pending, err := db.pendingMigrations()
	if err != nil {
		return nil, err
	}

	versions := make([]string, 0, len(pending))
	for _, migration := range pending {
		versions = append(versions, migration.Version)
	}
	return versions, nil
}

func (db *DB) pendingMigrations() ([]Migration, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.Query("SELECT version FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var pending []Migration
	for _, migration := range migrations {
		if !applied[migration.Version] {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

func (db *DB) apply(migration Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", migration.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.Up); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
	}
	if _, err := tx.Exec("INSERT INTO migrations (version, applied_at) VALUES (?, datetime('now'))", migration.Version); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", migration.Version, err)
	}
	return nil
}
