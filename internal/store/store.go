package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dukerupert/chorewheel/internal/apperr"
)

// timeLayout matches SQLite's CURRENT_TIMESTAMP so stored values compare
// correctly as text.
const timeLayout = "2006-01-02 15:04:05"

func dbTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullDBTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: dbTime(*t), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

type scanner interface {
	Scan(...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ErrDuplicateAssignment is returned when a pending assignment already exists
// for the same task, member and day.
var ErrDuplicateAssignment = fmt.Errorf("%w: pending assignment already exists for task, member and date", apperr.ErrConflict)

func withTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Conditional-update failures. Each one marks a request that lost a race or
// arrived after the row left the state it expected.
var (
	ErrAssignmentNotPending = fmt.Errorf("%w: assignment is not pending", apperr.ErrConflict)
	ErrAlreadyTaken         = fmt.Errorf("%w: cancellation already taken", apperr.ErrConflict)
	ErrRewardClaimed        = fmt.Errorf("%w: reward already claimed", apperr.ErrConflict)
)
