package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps sql.DB for the scheduling service.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
}

// Open opens the database at path and runs migrations. Write transactions
// start with BEGIN IMMEDIATE so a recheck-then-write sequence is serialised
// against other writers.
func Open(path string, logger zerolog.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}

	db := &DB{
		DB:     sqlDB,
		path:   path,
		logger: logger.With().Str("component", "db").Logger(),
	}
	if err := db.createTables(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	db.logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS studios (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			province TEXT NOT NULL DEFAULT '',
			district TEXT NOT NULL DEFAULT '',
			opening_hours TEXT,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			studio_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (studio_id) REFERENCES studios(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS calendar_settings (
			studio_id TEXT PRIMARY KEY,
			day_cutoff_hour INTEGER NOT NULL DEFAULT 4,
			timezone TEXT NOT NULL DEFAULT 'Europe/Istanbul',
			slot_step_minutes INTEGER NOT NULL DEFAULT 60,
			happy_hour_enabled BOOLEAN NOT NULL DEFAULT 0,
			weekly_hours TEXT,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY (studio_id) REFERENCES studios(id) ON DELETE CASCADE
		)`,

		// Instants are unix milliseconds (UTC).
		`CREATE TABLE IF NOT EXISTS calendar_blocks (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			start_at INTEGER NOT NULL,
			end_at INTEGER NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			note TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			CHECK (end_at > start_at),
			FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS happy_hour_slots (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			start_at INTEGER NOT NULL,
			end_at INTEGER NOT NULL,
			FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_rooms_studio ON rooms(studio_id)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_room_time ON calendar_blocks(room_id, start_at, end_at)`,
		`CREATE INDEX IF NOT EXISTS idx_happy_hours_room ON happy_hour_slots(room_id, start_at)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec %q: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 60 {
		return q[:60] + "..."
	}
	return q
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
