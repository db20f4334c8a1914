package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages spoilshield persistence backed by SQLite.
type Store struct {
	db          *sql.DB
	path        string
	maxSessions int
}

// Options tunes store behavior.
type Options struct {
	// MaxSessions caps retained sessions; creating one past the cap evicts
	// the session with the oldest last message, message log included.
	MaxSessions int
}

// Open initializes or connects to the database at path and applies the schema.
func Open(path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 10
	}

	store := &Store{db: db, path: path, maxSessions: opts.MaxSessions}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the filesystem location of the database.
func (s *Store) Path() string {
	return s.path
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
