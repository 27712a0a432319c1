package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorewheel/internal/model"
)

type AssignmentStore struct {
	db *sql.DB
}

func NewAssignmentStore(db *sql.DB) *AssignmentStore {
	return &AssignmentStore{db: db}
}

func scanAssignment(s scanner) (*model.Assignment, error) {
	var a model.Assignment
	var status string
	var completedAt sql.NullTime
	err := s.Scan(&a.ID, &a.TaskID, &a.MemberID, &a.AssignedDate, &a.DueDate, &status, &a.Notes, &a.EvidenceURL, &completedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.AssignedDate = a.AssignedDate.UTC()
	a.DueDate = a.DueDate.UTC()
	a.Status = model.AssignmentStatus(status)
	a.CompletedAt = timePtr(completedAt)
	return &a, nil
}

const assignmentCols = `a.id, a.task_id, a.member_id, a.assigned_date, a.due_date, a.status, a.notes, a.evidence_url, a.completed_at, a.created_at`

func insertAssignment(q querier, taskID, memberID int64, assigned, due time.Time) (int64, error) {
	result, err := q.Exec(
		`INSERT INTO assignments (task_id, member_id, assigned_date, due_date) VALUES (?, ?, ?, ?)`,
		taskID, memberID, dbTime(assigned), dbTime(due),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateAssignment
		}
		return 0, fmt.Errorf("insert assignment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func getAssignment(q querier, id int64) (*model.Assignment, error) {
	return scanAssignment(q.QueryRow(`SELECT `+assignmentCols+` FROM assignments a WHERE a.id = ?`, id))
}

// Create inserts a pending assignment. A second pending row for the same
// task, member and assigned date fails with ErrDuplicateAssignment.
func (s *AssignmentStore) Create(taskID, memberID int64, assigned, due time.Time) (*model.Assignment, error) {
	id, err := insertAssignment(s.db, taskID, memberID, assigned, due)
	if err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

// CreateBatch inserts every assignment in one transaction. Nothing is written
// if any row violates the pending uniqueness constraint.
func (s *AssignmentStore) CreateBatch(batch []model.Assignment) ([]model.Assignment, error) {
	created := make([]model.Assignment, 0, len(batch))
	err := withTx(s.db, func(tx *sql.Tx) error {
		for _, a := range batch {
			id, err := insertAssignment(tx, a.TaskID, a.MemberID, a.AssignedDate, a.DueDate)
			if err != nil {
				return err
			}
			row, err := getAssignment(tx, id)
			if err != nil {
				return fmt.Errorf("get assignment: %w", err)
			}
			created = append(created, *row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *AssignmentStore) GetByID(id int64) (*model.Assignment, error) {
	a, err := getAssignment(s.db, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

// ListByHomeInWindow returns every assignment of the home's tasks whose
// assigned date falls in [start, end), regardless of status.
func (s *AssignmentStore) ListByHomeInWindow(homeID int64, start, end time.Time) ([]model.Assignment, error) {
	return s.list(
		`SELECT `+assignmentCols+` FROM assignments a
		JOIN tasks t ON t.id = a.task_id
		WHERE t.home_id = ? AND a.assigned_date >= ? AND a.assigned_date < ?
		ORDER BY a.assigned_date ASC, a.id ASC`,
		homeID, dbTime(start), dbTime(end),
	)
}

func (s *AssignmentStore) ListPendingByHomeInWindow(homeID int64, start, end time.Time) ([]model.Assignment, error) {
	return s.list(
		`SELECT `+assignmentCols+` FROM assignments a
		JOIN tasks t ON t.id = a.task_id
		WHERE t.home_id = ? AND a.status = 'pending' AND a.assigned_date >= ? AND a.assigned_date < ?
		ORDER BY a.id ASC`,
		homeID, dbTime(start), dbTime(end),
	)
}

// ListByMember returns a member's assignments, newest first.
func (s *AssignmentStore) ListByMember(memberID int64, pendingOnly bool) ([]model.Assignment, error) {
	query := `SELECT ` + assignmentCols + ` FROM assignments a WHERE a.member_id = ?`
	if pendingOnly {
		query += ` AND a.status = 'pending'`
	}
	query += ` ORDER BY a.assigned_date DESC, a.id DESC`
	return s.list(query, memberID)
}

func (s *AssignmentStore) list(query string, args ...any) ([]model.Assignment, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

func (s *AssignmentStore) CountByHomeInWindow(homeID int64, start, end time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM assignments a
		JOIN tasks t ON t.id = a.task_id
		WHERE t.home_id = ? AND a.assigned_date >= ? AND a.assigned_date < ?`,
		homeID, dbTime(start), dbTime(end),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count assignments: %w", err)
	}
	return n, nil
}

// PendingExists reports whether a pending assignment already holds the
// (task, member, assigned date) slot.
func (s *AssignmentStore) PendingExists(taskID, memberID int64, assigned time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM assignments WHERE task_id = ? AND member_id = ? AND assigned_date = ? AND status = 'pending'`,
		taskID, memberID, dbTime(assigned),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check pending assignment: %w", err)
	}
	return n > 0, nil
}

// ExpirePendingBefore moves the home's pending assignments dated on or before
// cutoff to skipped_expired and returns how many rows changed.
func (s *AssignmentStore) ExpirePendingBefore(homeID int64, cutoff time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE assignments SET status = 'skipped_expired'
		WHERE status = 'pending' AND assigned_date <= ?
		AND task_id IN (SELECT id FROM tasks WHERE home_id = ?)`,
		dbTime(cutoff), homeID,
	)
	if err != nil {
		return 0, fmt.Errorf("expire assignments: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Reassign retires a pending assignment as skipped_reassigned and opens a
// fresh pending row for memberID on the same task and due date.
func (s *AssignmentStore) Reassign(id, memberID int64, assigned time.Time) (*model.Assignment, error) {
	var created *model.Assignment
	err := withTx(s.db, func(tx *sql.Tx) error {
		old, err := getAssignment(tx, id)
		if err == sql.ErrNoRows {
			return ErrAssignmentNotPending
		}
		if err != nil {
			return fmt.Errorf("get assignment: %w", err)
		}

		result, err := tx.Exec(`UPDATE assignments SET status = 'skipped_reassigned' WHERE id = ? AND status = 'pending'`, id)
		if err != nil {
			return fmt.Errorf("retire assignment: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrAssignmentNotPending
		}

		newID, err := insertAssignment(tx, old.TaskID, memberID, assigned, old.DueDate)
		if err != nil {
			return err
		}
		created, err = getAssignment(tx, newID)
		if err != nil {
			return fmt.Errorf("get assignment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Complete marks a pending assignment completed and applies update to the
// assignee in the same transaction. Only the request whose conditional
// update wins sees update run.
func (s *AssignmentStore) Complete(id int64, notes, evidenceURL string, at time.Time, update func(m *model.Member)) (*model.Assignment, *model.Member, error) {
	var (
		done   *model.Assignment
		member *model.Member
	)
	err := withTx(s.db, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			`UPDATE assignments SET status = 'completed', notes = ?, evidence_url = ?, completed_at = ?
			WHERE id = ? AND status = 'pending'`,
			notes, evidenceURL, dbTime(at), id,
		)
		if err != nil {
			return fmt.Errorf("complete assignment: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrAssignmentNotPending
		}

		done, err = getAssignment(tx, id)
		if err != nil {
			return fmt.Errorf("get assignment: %w", err)
		}

		member, err = applyGrant(tx, done.MemberID, at, func(m *model.Member) []model.XPTransaction {
			update(m)
			return nil
		})
		if err != nil {
			return err
		}
		if member == nil {
			return fmt.Errorf("assignee %d missing", done.MemberID)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return done, member, nil
}
