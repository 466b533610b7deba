// Package store implements the scan system's registry/history persistence
// (A3): a SQLite-backed record of registered scan heads and connect
// attempts, consulted by operators and never read back into the hot path.
// Every write is best-effort from the caller's perspective; Store itself
// returns real errors, and the session (through its session.PersistenceSink
// dependency) logs them as non-fatal warnings.
package store

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a registry/history database. The zero value is not usable;
// construct with Open.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies any pending migrations. path may be ":memory:" for an ephemeral
// in-process store, useful in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply pragmas: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("store: migration instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordScanHead inserts a registration row for serial/userID, implementing
// session.PersistenceSink. A duplicate serial or user id is an error, though
// the session's uniqueness check should already have caught it in memory.
func (s *Store) RecordScanHead(serial, userID uint32) error {
	_, err := s.db.Exec(
		`INSERT INTO scan_heads (serial, user_id, created_at) VALUES (?, ?, ?)`,
		serial, userID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: record scan head %d: %w", serial, err)
	}
	return nil
}

// RecordConnectAttempt inserts one row per connect() call, implementing
// session.PersistenceSink.
func (s *Store) RecordConnectAttempt(sessionID uint8, heads, connected int, succeeded bool) error {
	_, err := s.db.Exec(
		`INSERT INTO connect_attempts (id, session_id, heads_total, heads_connected, succeeded, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, heads, connected, succeeded, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: record connect attempt: %w", err)
	}
	return nil
}

// RecordHeadConfig upserts the last configuration applied to serial, encoded
// as JSON, for operator inspection. Not consulted by the session itself.
func (s *Store) RecordHeadConfig(serial uint32, cfg any) error {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("store: marshal config for head %d: %w", serial, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO scan_head_config (serial, json_blob, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(serial) DO UPDATE SET json_blob = excluded.json_blob, updated_at = excluded.updated_at`,
		serial, string(blob), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: record config for head %d: %w", serial, err)
	}
	return nil
}
