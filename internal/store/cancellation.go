package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorewheel/internal/model"
)

type CancellationStore struct {
	db *sql.DB
}

func NewCancellationStore(db *sql.DB) *CancellationStore {
	return &CancellationStore{db: db}
}

func scanCancellation(s scanner) (*model.Cancellation, error) {
	var c model.Cancellation
	var takenBy sql.NullInt64
	var takenAt sql.NullTime
	err := s.Scan(&c.ID, &c.AssignmentID, &c.CancelledBy, &c.Reason, &c.IsAvailable, &takenBy, &takenAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.TakenBy = int64Ptr(takenBy)
	c.TakenAt = timePtr(takenAt)
	return &c, nil
}

const cancellationCols = `id, assignment_id, cancelled_by, reason, is_available, taken_by, taken_at, created_at`

func (s *CancellationStore) GetByID(id int64) (*model.Cancellation, error) {
	c, err := scanCancellation(s.db.QueryRow(`SELECT `+cancellationCols+` FROM cancellations WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cancellation: %w", err)
	}
	return c, nil
}

// Cancel moves a pending assignment to skipped_cancelled and records an
// available cancellation for it. A stale cancellation row for the same
// assignment is overwritten.
func (s *CancellationStore) Cancel(assignmentID, cancelledBy int64, reason string, at time.Time) (*model.Cancellation, error) {
	var c *model.Cancellation
	err := withTx(s.db, func(tx *sql.Tx) error {
		result, err := tx.Exec(`UPDATE assignments SET status = 'skipped_cancelled' WHERE id = ? AND status = 'pending'`, assignmentID)
		if err != nil {
			return fmt.Errorf("cancel assignment: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrAssignmentNotPending
		}

		_, err = tx.Exec(
			`INSERT INTO cancellations (assignment_id, cancelled_by, reason, is_available, created_at)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT(assignment_id) DO UPDATE SET
				cancelled_by = excluded.cancelled_by,
				reason = excluded.reason,
				is_available = 1,
				taken_by = NULL,
				taken_at = NULL,
				created_at = excluded.created_at`,
			assignmentID, cancelledBy, reason, dbTime(at),
		)
		if err != nil {
			return fmt.Errorf("upsert cancellation: %w", err)
		}

		c, err = scanCancellation(tx.QueryRow(`SELECT `+cancellationCols+` FROM cancellations WHERE assignment_id = ?`, assignmentID))
		if err != nil {
			return fmt.Errorf("get cancellation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Claim flips an available cancellation to taken and creates a pending
// assignment for memberID that inherits the original due date. The
// conditional update on is_available decides concurrent claims; losers get
// ErrAlreadyTaken and nothing is written.
func (s *CancellationStore) Claim(cancellationID, memberID int64, assigned, at time.Time) (*model.Assignment, error) {
	var created *model.Assignment
	err := withTx(s.db, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			`UPDATE cancellations SET is_available = 0, taken_by = ?, taken_at = ? WHERE id = ? AND is_available = 1`,
			memberID, dbTime(at), cancellationID,
		)
		if err != nil {
			return fmt.Errorf("claim cancellation: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrAlreadyTaken
		}

		var taskID int64
		var due time.Time
		err = tx.QueryRow(
			`SELECT a.task_id, a.due_date FROM cancellations c
			JOIN assignments a ON a.id = c.assignment_id
			WHERE c.id = ?`, cancellationID,
		).Scan(&taskID, &due)
		if err != nil {
			return fmt.Errorf("get cancelled assignment: %w", err)
		}

		id, err := insertAssignment(tx, taskID, memberID, assigned, due)
		if err != nil {
			return err
		}
		created, err = getAssignment(tx, id)
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

// ListAvailableInWindow returns the home's untaken cancellations whose
// assignment was dated inside [start, end), with display data.
func (s *CancellationStore) ListAvailableInWindow(homeID int64, start, end time.Time) ([]model.AvailableTask, error) {
	rows, err := s.db.Query(
		`SELECT c.id, a.id, t.id, t.name, COALESCE(z.name, ''), t.effort_points, a.due_date, m.name, c.reason, c.created_at
		FROM cancellations c
		JOIN assignments a ON a.id = c.assignment_id
		JOIN tasks t ON t.id = a.task_id
		JOIN members m ON m.id = c.cancelled_by
		LEFT JOIN zones z ON z.id = t.zone_id
		WHERE t.home_id = ? AND c.is_available = 1
		AND a.assigned_date >= ? AND a.assigned_date < ?
		ORDER BY a.due_date ASC, c.id ASC`,
		homeID, dbTime(start), dbTime(end),
	)
	if err != nil {
		return nil, fmt.Errorf("list available cancellations: %w", err)
	}
	defer rows.Close()

	var tasks []model.AvailableTask
	for rows.Next() {
		var at model.AvailableTask
		var cancelledAt time.Time
		err := rows.Scan(&at.CancellationID, &at.AssignmentID, &at.TaskID, &at.TaskName, &at.ZoneName,
			&at.EffortPoints, &at.DueDate, &at.CancelledBy, &at.Reason, &cancelledAt)
		if err != nil {
			return nil, fmt.Errorf("scan available cancellation: %w", err)
		}
		at.DueDate = at.DueDate.UTC()
		cancelledAt = cancelledAt.UTC()
		at.CancelledAt = &cancelledAt
		tasks = append(tasks, at)
	}
	return tasks, rows.Err()
}

// ListUnassignedTasks returns the home's active tasks that have no
// assignment of any status dated inside [start, end). Due date and origin
// are left for the caller to fill.
func (s *CancellationStore) ListUnassignedTasks(homeID int64, start, end time.Time) ([]model.AvailableTask, error) {
	rows, err := s.db.Query(
		`SELECT t.id, t.name, COALESCE(z.name, ''), t.effort_points
		FROM tasks t
		LEFT JOIN zones z ON z.id = t.zone_id
		WHERE t.home_id = ? AND t.is_active = 1
		AND NOT EXISTS (
			SELECT 1 FROM assignments a
			WHERE a.task_id = t.id AND a.assigned_date >= ? AND a.assigned_date < ?
		)
		ORDER BY t.id ASC`,
		homeID, dbTime(start), dbTime(end),
	)
	if err != nil {
		return nil, fmt.Errorf("list unassigned tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.AvailableTask
	for rows.Next() {
		var at model.AvailableTask
		if err := rows.Scan(&at.TaskID, &at.TaskName, &at.ZoneName, &at.EffortPoints); err != nil {
			return nil, fmt.Errorf("scan unassigned task: %w", err)
		}
		at.CancellationID = model.SystemCancellationID
		tasks = append(tasks, at)
	}
	return tasks, rows.Err()
}
