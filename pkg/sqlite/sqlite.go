// Package sqlite stores the roster and schedules in a single SQLite file, for
// running the tool on one machine without a database server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB provides database operations using SQLite
type DB struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDB opens the database at path and creates the schema. Use ":memory:"
// for a database that lives only as long as the process.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database exists per connection
	conn.SetMaxOpenConns(1)

	d := &DB{db: conn}
	if err := d.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return d, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS staff (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		rank TEXT NOT NULL,
		team TEXT,
		floating INTEGER NOT NULL DEFAULT 0,
		floor_pca TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		buffer_fte REAL
	);

	CREATE TABLE IF NOT EXISTS ward (
		name TEXT PRIMARY KEY,
		total_beds INTEGER NOT NULL,
		team_beds TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS special_program (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		team TEXT NOT NULL,
		schedule TEXT NOT NULL DEFAULT '',
		slots TEXT NOT NULL DEFAULT '',
		therapist_ids TEXT NOT NULL DEFAULT '',
		preferred_pca_ids TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS pca_preference (
		team TEXT PRIMARY KEY,
		preferred_pca_ids TEXT NOT NULL DEFAULT '',
		preferred_slots TEXT NOT NULL DEFAULT '',
		floor TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS spt_allocation (
		staff_id TEXT NOT NULL,
		teams TEXT NOT NULL,
		weekdays TEXT NOT NULL,
		fte REAL NOT NULL,
		slots TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (staff_id, weekdays)
	);

	CREATE TABLE IF NOT EXISTS schedule (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL UNIQUE,
		state TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS allocation (
		schedule_id TEXT NOT NULL REFERENCES schedule (id) ON DELETE CASCADE,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		kind TEXT NOT NULL,
		staff_id TEXT,
		team TEXT NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (schedule_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_allocation_staff ON allocation (staff_id);

	CREATE TABLE IF NOT EXISTS baseline_snapshot (
		schedule_id TEXT PRIMARY KEY REFERENCES schedule (id) ON DELETE CASCADE,
		captured_at TEXT NOT NULL,
		snapshot TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bed_count_override (
		schedule_id TEXT NOT NULL REFERENCES schedule (id) ON DELETE CASCADE,
		team TEXT NOT NULL,
		shs INTEGER NOT NULL DEFAULT 0,
		student_placement INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (schedule_id, team)
	);

	CREATE TABLE IF NOT EXISTS bed_note (
		schedule_id TEXT NOT NULL REFERENCES schedule (id) ON DELETE CASCADE,
		team TEXT NOT NULL,
		note TEXT NOT NULL,
		PRIMARY KEY (schedule_id, team)
	);
	`
	_, err := d.db.Exec(schema)
	return err
}

// withTx runs fn in a transaction, committing only if it succeeds
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isNoSuchColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such column")
}
