package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/marcus/bldr/internal/logging"
)

// Migration represents a single schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: builds, build_tasks, build_failures",
		SQL:         migration001SQL,
	},
	{
		Version:     2,
		Description: "add trigger and report_path columns to builds",
		SQL:         migration002SQL,
	},
}

const migration001SQL = `
CREATE TABLE builds (
    id          TEXT PRIMARY KEY,
    project     TEXT NOT NULL DEFAULT '',
    profile     TEXT NOT NULL DEFAULT '',
    tasks       TEXT NOT NULL,
    start_time  DATETIME NOT NULL,
    end_time    DATETIME,
    status      TEXT NOT NULL,
    error       TEXT
);

CREATE TABLE build_tasks (
    build_id    TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
    position    INTEGER NOT NULL,
    name        TEXT NOT NULL,
    status      TEXT NOT NULL,
    calls       INTEGER NOT NULL DEFAULT 0,
    executed    INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (build_id, position)
);

CREATE TABLE build_failures (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    build_id    TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
    task        TEXT NOT NULL,
    call_index  INTEGER NOT NULL,
    call_type   TEXT NOT NULL,
    reason      TEXT NOT NULL,
    recovered   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_builds_time ON builds(start_time DESC);
CREATE INDEX idx_builds_profile_time ON builds(profile, start_time DESC);
CREATE INDEX idx_build_failures_build ON build_failures(build_id);
`

const migration002SQL = `
ALTER TABLE builds ADD COLUMN trigger TEXT NOT NULL DEFAULT 'manual';
ALTER TABLE builds ADD COLUMN report_path TEXT NOT NULL DEFAULT '';
`

// Migrate runs all pending migrations inside transactions.
func Migrate(db *sql.DB) error {
	if db == nil {
		return errors.New("db is nil")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY, applied_at DATETIME)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	currentVersion, err := CurrentVersion(db)
	if err != nil {
		return err
	}

	log := logging.Component("db")
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, migration.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", migration.Version, err)
		}

		log.InfoCtx("applied migration", map[string]any{"version": migration.Version, "description": migration.Description})
		currentVersion = migration.Version
	}

	return nil
}

// CurrentVersion returns the current schema version (0 if no migrations applied).
func CurrentVersion(db *sql.DB) (int, error) {
	if db == nil {
		return 0, errors.New("db is nil")
	}

	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	var version int
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema_version: %w", err)
	}
	return version, nil
}
