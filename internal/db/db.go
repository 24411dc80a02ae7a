// Package db owns the SQLite file that holds the colony's persisted memory.
// The schema is rewritten wholesale every tick, so the connection favors
// short write transactions over durability of every commit.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/marcus/hivemind/internal/logging"
	_ "modernc.org/sqlite"
)

// ErrNoPath is returned by Open when no database path is given.
var ErrNoPath = errors.New("db: no database path")

// Applied to every pooled connection through the DSN. A daemon tick and a
// CLI reader may hold the file at the same time, hence the busy timeout.
var connPragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// DB is the colony memory database.
type DB struct {
	sql  *sql.DB
	path string
}

// Info describes what the database currently holds.
type Info struct {
	Path          string
	SchemaVersion int
	TaskRecords   int
	Creeps        int
	HistoryRows   int
	LastTick      int64
	SizeBytes     int64 // main file plus write-ahead log
}

// Open opens or creates the memory database at path and brings its schema
// up to date. Callers expand "~" beforehand.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := Migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logging.Component("db").Debugf("opened colony memory at %s", path)
	return &DB{sql: sqlDB, path: path}, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range connPragmas {
		q.Add("_pragma", p)
	}
	return path + "?" + q.Encode()
}

// Close closes the database.
func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// SQL returns the underlying handle. The state package wraps it with sqlx.
func (d *DB) SQL() *sql.DB {
	if d == nil {
		return nil
	}
	return d.sql
}

// Path returns the database file path.
func (d *DB) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

// Info counts the rows of each memory table.
func (d *DB) Info(ctx context.Context) (Info, error) {
	info := Info{Path: d.path}

	version, err := CurrentVersion(d.sql)
	if err != nil {
		return info, err
	}
	info.SchemaVersion = version

	counts := []struct {
		table string
		dst   *int
	}{
		{"task_records", &info.TaskRecords},
		{"creep_memory", &info.Creeps},
		{"tick_history", &info.HistoryRows},
	}
	for _, c := range counts {
		if err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(c.dst); err != nil {
			return info, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}

	var last sql.NullInt64
	if err := d.sql.QueryRowContext(ctx, `SELECT MAX(tick) FROM tick_history`).Scan(&last); err != nil {
		return info, fmt.Errorf("reading last tick: %w", err)
	}
	info.LastTick = last.Int64

	for _, f := range []string{d.path, d.path + "-wal"} {
		if fi, err := os.Stat(f); err == nil {
			info.SizeBytes += fi.Size()
		}
	}
	return info, nil
}
