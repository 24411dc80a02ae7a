package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/marcus/hivemind/internal/logging"
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
		Description: "initial schema: task_records, creep_memory, memory_meta",
		SQL:         migration001SQL,
	},
	{
		Version:     2,
		Description: "add tick_history for per-tick reports",
		SQL:         migration002SQL,
	},
	{
		Version:     3,
		Description: "index tick_history in the order status and trimming read it",
		SQL:         migration003SQL,
	},
}

// task_records keeps the serialized task list; position is the list order.
const migration001SQL = `
CREATE TABLE task_records (
    position INTEGER PRIMARY KEY,
    record   TEXT NOT NULL
);

CREATE TABLE creep_memory (
    name    TEXT PRIMARY KEY,
    role    TEXT NOT NULL,
    room    TEXT NOT NULL,
    working INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE memory_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const migration002SQL = `
CREATE TABLE tick_history (
    id          TEXT PRIMARY KEY,
    tick        INTEGER NOT NULL,
    started_at  DATETIME NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    creeps      INTEGER NOT NULL DEFAULT 0,
    tasks       INTEGER NOT NULL DEFAULT 0,
    added       INTEGER NOT NULL DEFAULT 0,
    evicted     INTEGER NOT NULL DEFAULT 0,
    skipped     INTEGER NOT NULL DEFAULT 0,
    spawned     TEXT NOT NULL DEFAULT '',
    removed     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX idx_tick_history_tick ON tick_history(tick DESC);
`

const migration003SQL = `
DROP INDEX IF EXISTS idx_tick_history_tick;
CREATE INDEX idx_tick_history_recent ON tick_history(tick DESC, started_at DESC);
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

		log.Debugf("applied migration %d: %s", migration.Version, migration.Description)
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
