// Package catalog persists resolved records, their relationship graph and
// the scrape ledger in SQLite. Uniqueness on work_id and goodreads_id is
// enforced by the schema; a violating insert surfaces as a
// DuplicateWorkError so concurrent ingest runs fail closed instead of
// overwriting each other.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the catalog database handle. Safe for concurrent use; the
// busy timeout keeps parallel batch runs from tripping over each other.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (and if needed creates) the catalog database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
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

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init catalog schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

const (
	sqliteConstraint           = 19
	sqliteConstraintUnique     = 2067
	sqliteConstraintPrimaryKey = 1555
)

// isUniqueViolation reports whether err is a uniqueness or primary key
// constraint failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		switch coder.Code() {
		case sqliteConstraint, sqliteConstraintUnique, sqliteConstraintPrimaryKey:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed")
}

// timeValue formats a timestamp for storage. The driver keeps TEXT
// columns as-is, so both sides of the round trip stay explicit.
func timeValue(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
