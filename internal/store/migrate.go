package store

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// schemaVersion is the current expected schema version.
const schemaVersion = 2

type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered list of schema migrations.
// Each migration is applied exactly once, tracked in the schema_version table.
var migrations = []migration{
	{
		Version:     1,
		Description: "base schema: requests, progress_notes, modmail_threads",
		SQL: `
		CREATE TABLE IF NOT EXISTS requests (
			id                  TEXT PRIMARY KEY,
			message_id          TEXT NOT NULL,
			channel_id          TEXT NOT NULL,
			author_id           TEXT NOT NULL,
			internal_channel_id TEXT NOT NULL DEFAULT '',
			internal_message_id TEXT NOT NULL DEFAULT '',
			tickets             TEXT NOT NULL DEFAULT '',
			created_at          INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_requests_author ON requests(channel_id, author_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_requests_internal ON requests(internal_message_id);

		CREATE TABLE IF NOT EXISTS progress_notes (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id  TEXT NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
			author_id   TEXT NOT NULL,
			content     TEXT NOT NULL,
			created_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_progress_request ON progress_notes(request_id, created_at);

		CREATE TABLE IF NOT EXISTS modmail_threads (
			user_id     TEXT PRIMARY KEY,
			thread_id   TEXT NOT NULL UNIQUE,
			created_at  INTEGER NOT NULL
		);
		`,
	},
	{
		Version:     2,
		Description: "v2: route_log audit of routing decisions",
		SQL: `
		CREATE TABLE IF NOT EXISTS route_log (
			id          TEXT PRIMARY KEY,
			message_id  TEXT NOT NULL,
			channel_id  TEXT NOT NULL,
			author_id   TEXT NOT NULL DEFAULT '',
			outcome     TEXT NOT NULL,
			category    TEXT NOT NULL DEFAULT '',
			detail      TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_route_log_time ON route_log(created_at);
		`,
	},
}

// RunMigrations applies all pending schema migrations.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		logger.Info("applying migration",
			"version", m.Version,
			"description", m.Description,
		)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.Version, err)
		}
	}

	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}
