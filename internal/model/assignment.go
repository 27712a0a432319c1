package model

import "time"

type AssignmentStatus string

const (
	AssignmentPending           AssignmentStatus = "pending"
	AssignmentCompleted         AssignmentStatus = "completed"
	AssignmentSkippedCancelled  AssignmentStatus = "skipped_cancelled"
	AssignmentSkippedExpired    AssignmentStatus = "skipped_expired"
	AssignmentSkippedReassigned AssignmentStatus = "skipped_reassigned"
)

// Terminal reports whether no further transition is allowed from s.
func (s AssignmentStatus) Terminal() bool {
	return s != AssignmentPending
}

type Assignment struct {
	ID           int64            `json:"id"`
	TaskID       int64            `json:"task_id"`
	MemberID     int64            `json:"member_id"`
	AssignedDate time.Time        `json:"assigned_date"`
	DueDate      time.Time        `json:"due_date"`
	Status       AssignmentStatus `json:"status"`
	Notes        string           `json:"notes,omitempty"`
	EvidenceURL  string           `json:"evidence_url,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at"`
	CreatedAt    time.Time        `json:"created_at"`
}

type Cancellation struct {
	ID           int64      `json:"id"`
	AssignmentID int64      `json:"assignment_id"`
	CancelledBy  int64      `json:"cancelled_by"`
	Reason       string     `json:"reason"`
	IsAvailable  bool       `json:"is_available"`
	TakenBy      *int64     `json:"taken_by"`
	TakenAt      *time.Time `json:"taken_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SystemCancellationID marks an available task that was never assigned in
// the current cycle. It never refers to a stored cancellation.
const SystemCancellationID int64 = 0

// AvailableTask is one entry of a home's claimable work for the current cycle.
type AvailableTask struct {
	CancellationID int64      `json:"cancellation_id"`
	AssignmentID   int64      `json:"assignment_id,omitempty"`
	TaskID         int64      `json:"task_id"`
	TaskName       string     `json:"task_name"`
	ZoneName       string     `json:"zone_name,omitempty"`
	EffortPoints   int        `json:"effort_points"`
	DueDate        time.Time  `json:"due_date"`
	CancelledBy    string     `json:"cancelled_by"`
	Reason         string     `json:"reason,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

// Synthetic reports whether the entry stands for an unassigned task rather
// than a stored cancellation.
func (a AvailableTask) Synthetic() bool {
	return a.CancellationID == SystemCancellationID
}
