// Package reclaim lets a member release a pending assignment and another
// member claim it, or claim a task nobody was dealt this cycle.
package reclaim

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/chorewheel/internal/apperr"
	"github.com/dukerupert/chorewheel/internal/cycle"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/store"
	"github.com/dukerupert/chorewheel/internal/telemetry"
)

var ErrNotEligible = fmt.Errorf("%w: member cannot take this task", apperr.ErrForbidden)

// SystemCanceller is shown as the origin of unassigned-task entries.
const SystemCanceller = "system"

// unassignedDueDays is how far out a claimed unassigned task falls due.
const unassignedDueDays = 7

type Workflow struct {
	homes         *store.HomeStore
	members       *store.MemberStore
	tasks         *store.TaskStore
	assignments   *store.AssignmentStore
	cancellations *store.CancellationStore
	logger        *slog.Logger

	Clock func() time.Time
}

func NewWorkflow(hs *store.HomeStore, ms *store.MemberStore, ts *store.TaskStore, as *store.AssignmentStore, cs *store.CancellationStore, logger *slog.Logger) *Workflow {
	return &Workflow{homes: hs, members: ms, tasks: ts, assignments: as, cancellations: cs, logger: logger, Clock: time.Now}
}

func (w *Workflow) today() time.Time {
	return cycle.StartOfDay(w.Clock().UTC())
}

// Cancel releases the member's pending assignment for someone else to take.
func (w *Workflow) Cancel(assignmentID, memberID int64, reason string) (*model.Cancellation, error) {
	a, err := w.assignments.GetByID(assignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperr.NotFound("assignment", assignmentID)
	}
	if a.MemberID != memberID {
		return nil, apperr.ErrNotAssignee
	}
	if a.Status != model.AssignmentPending {
		return nil, store.ErrAssignmentNotPending
	}

	c, err := w.cancellations.Cancel(assignmentID, memberID, reason, w.Clock().UTC())
	if err != nil {
		return nil, err
	}
	telemetry.Cancellations.Inc()
	w.logger.Info("assignment cancelled", "assignment_id", assignmentID, "member_id", memberID, "cancellation_id", c.ID)
	return c, nil
}

// ListAvailable returns the home's claimable work for the current cycle:
// untaken cancellations, then active tasks with no assignment of any status
// in the cycle. The latter carry cancellation id 0, fall due the day before
// the cycle ends and name "system" as their origin. A task listed through a
// cancellation is not listed again as unassigned.
func (w *Workflow) ListAvailable(homeID int64) ([]model.AvailableTask, error) {
	home, err := w.homes.GetByID(homeID)
	if err != nil {
		return nil, err
	}
	if home == nil {
		return nil, apperr.NotFound("home", homeID)
	}

	start, end := cycle.Window(home.RotationPolicy, w.Clock().UTC())
	cancelled, err := w.cancellations.ListAvailableInWindow(homeID, start, end)
	if err != nil {
		return nil, err
	}
	unassigned, err := w.cancellations.ListUnassignedTasks(homeID, start, end)
	if err != nil {
		return nil, err
	}

	covered := make(map[int64]bool, len(cancelled))
	for _, c := range cancelled {
		covered[c.TaskID] = true
	}

	out := make([]model.AvailableTask, 0, len(cancelled)+len(unassigned))
	out = append(out, cancelled...)
	due := end.AddDate(0, 0, -1)
	for _, u := range unassigned {
		if covered[u.TaskID] {
			continue
		}
		u.DueDate = due
		u.CancelledBy = SystemCanceller
		out = append(out, u)
	}
	return out, nil
}

// Take claims work for memberID. Cancellation id 0 claims the unassigned
// task taskID with a due date a week out; any other id claims that
// cancellation and inherits its due date. Losing a race to another claimant
// yields store.ErrAlreadyTaken.
func (w *Workflow) Take(cancellationID, memberID int64, taskID *int64) (*model.Assignment, error) {
	member, err := w.members.GetByID(memberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperr.NotFound("member", memberID)
	}
	if !member.Active() {
		return nil, ErrNotEligible
	}

	if cancellationID == model.SystemCancellationID {
		return w.takeUnassigned(member, taskID)
	}
	return w.takeCancelled(cancellationID, member)
}

func (w *Workflow) takeUnassigned(member *model.Member, taskID *int64) (*model.Assignment, error) {
	if taskID == nil {
		return nil, apperr.Validation("task_id is required to take an unassigned task")
	}
	task, err := w.tasks.GetByID(*taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperr.NotFound("task", *taskID)
	}
	if !task.Active || task.HomeID != member.HomeID {
		return nil, ErrNotEligible
	}

	today := w.today()
	exists, err := w.assignments.PendingExists(task.ID, member.ID, today)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, store.ErrDuplicateAssignment
	}

	a, err := w.assignments.Create(task.ID, member.ID, today, today.AddDate(0, 0, unassignedDueDays))
	if err != nil {
		return nil, err
	}
	telemetry.AssignmentsCreated.WithLabelValues("take_unassigned").Inc()
	w.logger.Info("unassigned task taken", "task_id", task.ID, "member_id", member.ID, "assignment_id", a.ID)
	return a, nil
}

func (w *Workflow) takeCancelled(cancellationID int64, member *model.Member) (*model.Assignment, error) {
	c, err := w.cancellations.GetByID(cancellationID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("cancellation", cancellationID)
	}
	if !c.IsAvailable {
		return nil, store.ErrAlreadyTaken
	}

	orig, err := w.assignments.GetByID(c.AssignmentID)
	if err != nil {
		return nil, err
	}
	if orig == nil {
		return nil, apperr.NotFound("assignment", c.AssignmentID)
	}
	task, err := w.tasks.GetByID(orig.TaskID)
	if err != nil {
		return nil, err
	}
	if task == nil || task.HomeID != member.HomeID {
		return nil, ErrNotEligible
	}

	today := w.today()
	exists, err := w.assignments.PendingExists(task.ID, member.ID, today)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, store.ErrDuplicateAssignment
	}

	a, err := w.cancellations.Claim(cancellationID, member.ID, today, w.Clock().UTC())
	if err != nil {
		return nil, err
	}
	telemetry.AssignmentsCreated.WithLabelValues("take").Inc()
	w.logger.Info("cancellation taken", "cancellation_id", cancellationID, "member_id", member.ID, "assignment_id", a.ID)
	return a, nil
}
