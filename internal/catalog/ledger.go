package catalog

import (
	"context"
	"database/sql"
	"time"

	stackerrors "github.com/lepinkainen/stacks/internal/errors"
)

// LedgerEntry records that a resolution attempt completed for an external
// id. A filled WorkID means the attempt resolved; an empty one means the
// attempt finished without finding a work. The entry never implies a book
// row exists.
type LedgerEntry struct {
	GoodreadsID string
	WorkID      string
	AttemptedAt time.Time
}

// Resolved reports whether the attempt found a work.
func (e *LedgerEntry) Resolved() bool {
	return e.WorkID != ""
}

// LedgerGet returns the ledger entry for an external id, or nil without
// error when none exists.
func (s *Store) LedgerGet(ctx context.Context, goodreadsID string) (*LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT goodreads_id, work_id, updated_at FROM book_scraped WHERE goodreads_id = ?`,
		goodreadsID)

	var (
		entry        LedgerEntry
		workID       sql.NullString
		attemptedRaw string
	)
	err := row.Scan(&entry.GoodreadsID, &workID, &attemptedRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, stackerrors.NewPersistenceError("select ledger", err)
	}
	entry.WorkID = workID.String
	if ts, err := parseTimeString(attemptedRaw); err == nil {
		entry.AttemptedAt = ts
	}
	return &entry, nil
}

// LedgerPut records a completed resolution attempt. Re-recording an id
// updates its work id and attempt time; the original created_at stays.
func (s *Store) LedgerPut(ctx context.Context, goodreadsID, workID string) error {
	now := timeValue(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO book_scraped (goodreads_id, work_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(goodreads_id) DO UPDATE SET work_id = excluded.work_id, updated_at = excluded.updated_at`,
		goodreadsID, nullable(workID), now, now)
	if err != nil {
		return stackerrors.NewPersistenceError("put ledger", err)
	}
	return nil
}

// LedgerDelete drops a stale ledger row so the id can be resolved again.
func (s *Store) LedgerDelete(ctx context.Context, goodreadsID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM book_scraped WHERE goodreads_id = ?`, goodreadsID); err != nil {
		return stackerrors.NewPersistenceError("delete ledger", err)
	}
	return nil
}
