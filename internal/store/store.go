package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations[i] upgrades a database at user_version i to i+1. Each must be
// safe to rerun over a schema that already has the change.
var migrations = []func(*sql.Tx) error{
	// v1: unique save order, so "newest snapshot" is well defined.
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_seq ON snapshots(seq)`)
		return err
	},
}

// Store persists scheduler snapshots in SQLite. A run saving state and a
// dump or snapshots command reading it may share one file (WAL mode).
type Store struct {
	db          *sql.DB
	newID       func() string
	busyTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the UUIDv7 snapshot ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithBusyTimeout sets how long a writer waits for a lock held by another
// process. Default: 5s.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) { s.busyTimeout = d }
}

// Open creates or opens the database at path and brings its schema up to
// date.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{newID: newUUIDv7, busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: pragmas are per connection and SQLite has one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := s.init(db); err != nil {
		db.Close()
		return nil, err
	}
	s.db = db
	return s, nil
}

func (s *Store) init(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	pragmas := []string{
		"journal_mode = WAL",
		"synchronous = NORMAL",
		fmt.Sprintf("busy_timeout = %d", s.busyTimeout.Milliseconds()),
		"foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec("PRAGMA " + p); err != nil {
			return fmt.Errorf("pragma %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return migrate(db)
}

// migrate runs every migration past the stored user_version in one
// transaction.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("schema version %d is newer than supported %d", version, len(migrations))
	}
	if version == len(migrations) {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for v := version; v < len(migrations); v++ {
		if err := migrations[v](tx); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// newUUIDv7 returns a time-ordered snapshot ID.
func newUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// pragma reads the current value of a pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
