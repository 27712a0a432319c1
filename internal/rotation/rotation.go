// Package rotation creates, expires and redistributes assignments across a
// home's members.
package rotation

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dukerupert/chorewheel/internal/apperr"
	"github.com/dukerupert/chorewheel/internal/cycle"
	"github.com/dukerupert/chorewheel/internal/fairness"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/store"
	"github.com/dukerupert/chorewheel/internal/telemetry"
)

// Result reports what a rollover changed.
type Result struct {
	Closed      int                `json:"closed"`
	Assigned    int                `json:"assigned"`
	Assignments []model.Assignment `json:"assignments,omitempty"`
}

type Scheduler struct {
	homes       *store.HomeStore
	members     *store.MemberStore
	tasks       *store.TaskStore
	assignments *store.AssignmentStore
	logger      *slog.Logger

	Clock func() time.Time
}

func NewScheduler(hs *store.HomeStore, ms *store.MemberStore, ts *store.TaskStore, as *store.AssignmentStore, logger *slog.Logger) *Scheduler {
	return &Scheduler{homes: hs, members: ms, tasks: ts, assignments: as, logger: logger, Clock: time.Now}
}

// Plan deals tasks to members in a single round-robin pass: task i goes to
// members[i mod len(members)]. members should already be ordered fewest
// points first. Due dates follow each task's frequency.
func Plan(tasks []model.Task, members []model.Member, assigned time.Time) []model.Assignment {
	if len(tasks) == 0 || len(members) == 0 {
		return nil
	}
	out := make([]model.Assignment, 0, len(tasks))
	for i, t := range tasks {
		out = append(out, model.Assignment{
			TaskID:       t.ID,
			MemberID:     members[i%len(members)].ID,
			AssignedDate: assigned,
			DueDate:      cycle.DueDate(t.Frequency, assigned),
			Status:       model.AssignmentPending,
		})
	}
	return out
}

func (s *Scheduler) home(homeID int64) (*model.Home, error) {
	home, err := s.homes.GetByID(homeID)
	if err != nil {
		return nil, err
	}
	if home == nil {
		return nil, apperr.NotFound("home", homeID)
	}
	return home, nil
}

func (s *Scheduler) today() time.Time {
	return cycle.StartOfDay(s.Clock().UTC())
}

// AutoAssign deals every active task to the active members, poorest in
// points first, dated on date (today when nil). A home with no active tasks
// or members yields no assignments and no error. The batch is written
// atomically; any duplicate pending slot fails the whole call with a
// conflict.
func (s *Scheduler) AutoAssign(homeID int64, date *time.Time) ([]model.Assignment, error) {
	if _, err := s.home(homeID); err != nil {
		return nil, err
	}

	assigned := s.today()
	if date != nil {
		assigned = cycle.StartOfDay(date.UTC())
	}

	tasks, err := s.tasks.ListActive(homeID)
	if err != nil {
		return nil, err
	}
	members, err := s.members.ListActiveByPoints(homeID)
	if err != nil {
		return nil, err
	}

	plan := Plan(tasks, members, assigned)
	if len(plan) == 0 {
		return []model.Assignment{}, nil
	}

	created, err := s.assignments.CreateBatch(plan)
	if err != nil {
		return nil, fmt.Errorf("auto assign home %d: %w", homeID, err)
	}
	telemetry.AssignmentsCreated.WithLabelValues("auto").Add(float64(len(created)))
	s.logger.Info("auto assigned", "home_id", homeID, "date", assigned.Format(time.DateOnly), "count", len(created))
	return created, nil
}

// CloseCycleAndReassign expires every pending assignment dated on or before
// the last day of the previous cycle, then deals the new cycle. It does not
// check whether the current cycle was already dealt.
func (s *Scheduler) CloseCycleAndReassign(homeID int64) (*Result, error) {
	home, err := s.home(homeID)
	if err != nil {
		return nil, err
	}
	res, err := s.rollover(home)
	if err != nil {
		return nil, err
	}
	telemetry.Rollovers.WithLabelValues("forced").Inc()
	return res, nil
}

// StartCycleIfNeeded rolls an auto-rotating home into its current cycle
// unless some assignment is already dated inside that cycle. started is
// false when nothing was done.
func (s *Scheduler) StartCycleIfNeeded(homeID int64) (res *Result, started bool, err error) {
	home, err := s.home(homeID)
	if err != nil {
		return nil, false, err
	}
	if !home.AutoRotation {
		return &Result{}, false, nil
	}

	start, end := cycle.Window(home.RotationPolicy, s.Clock().UTC())
	n, err := s.assignments.CountByHomeInWindow(homeID, start, end)
	if err != nil {
		return nil, false, err
	}
	if n > 0 {
		return &Result{}, false, nil
	}

	res, err = s.rollover(home)
	if err != nil {
		return nil, false, err
	}
	telemetry.Rollovers.WithLabelValues("auto").Inc()
	return res, true, nil
}

func (s *Scheduler) rollover(home *model.Home) (*Result, error) {
	now := s.Clock().UTC()

	closed, err := s.assignments.ExpirePendingBefore(home.ID, cycle.ExpiryCutoff(home.RotationPolicy, now))
	if err != nil {
		return nil, err
	}
	telemetry.AssignmentsExpired.Add(float64(closed))

	start := cycle.Start(home.RotationPolicy, now)
	created, err := s.AutoAssign(home.ID, &start)
	if err != nil {
		return &Result{Closed: closed}, err
	}

	s.logger.Info("cycle rolled over", "home_id", home.ID, "policy", home.RotationPolicy,
		"cycle_start", start.Format(time.DateOnly), "closed", closed, "assigned", len(created))
	return &Result{Closed: closed, Assigned: len(created), Assignments: created}, nil
}

// ReassignPendingTasks rebalances the current cycle's pending work. Each
// pending assignment moves to the least-loaded other active member when its
// holder is inactive or carries at least two more assignments than that
// member. Ties go to the member with fewer points. A moved assignment becomes
// skipped_reassigned and the new holder gets a fresh pending row dated today
// with the original due date.
func (s *Scheduler) ReassignPendingTasks(homeID int64) ([]model.Assignment, error) {
	home, err := s.home(homeID)
	if err != nil {
		return nil, err
	}

	today := s.today()
	start, end := cycle.Window(home.RotationPolicy, today)

	members, err := s.members.ListActiveByPoints(homeID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []model.Assignment{}, nil
	}
	all, err := s.assignments.ListByHomeInWindow(homeID, start, end)
	if err != nil {
		return nil, err
	}

	load := make(map[int64]int, len(members))
	for _, l := range fairness.Loads(members, all) {
		load[l.MemberID] = l.Assigned
	}

	moved := []model.Assignment{}
	for _, a := range all {
		if a.Status != model.AssignmentPending {
			continue
		}

		holderLoad, holderActive := load[a.MemberID]
		if !holderActive {
			holderLoad = math.MaxInt
		}

		var target *model.Member
		for i := range members {
			m := &members[i]
			if m.ID == a.MemberID {
				continue
			}
			if target == nil || load[m.ID] < load[target.ID] {
				target = m
			}
		}
		if target == nil || (holderActive && holderLoad-load[target.ID] < 2) {
			continue
		}

		created, err := s.assignments.Reassign(a.ID, target.ID, today)
		if errors.Is(err, store.ErrDuplicateAssignment) || errors.Is(err, store.ErrAssignmentNotPending) {
			s.logger.Warn("reassign skipped", "assignment_id", a.ID, "member_id", target.ID, "error", err)
			continue
		}
		if err != nil {
			return moved, err
		}

		if holderActive {
			load[a.MemberID]--
		}
		load[target.ID]++
		moved = append(moved, *created)
	}

	if len(moved) > 0 {
		telemetry.AssignmentsCreated.WithLabelValues("reassign").Add(float64(len(moved)))
		s.logger.Info("pending tasks reassigned", "home_id", homeID, "count", len(moved))
	}
	return moved, nil
}

// Cycle is a home's current window and everything dated inside it.
type Cycle struct {
	HomeID      int64              `json:"home_id"`
	Start       time.Time          `json:"start"`
	End         time.Time          `json:"end"`
	Assignments []model.Assignment `json:"assignments"`
}

// CurrentCycle lists the assignments of the cycle containing today.
// memberID, when non-zero, limits the list to that member.
func (s *Scheduler) CurrentCycle(homeID, memberID int64) (*Cycle, error) {
	home, err := s.home(homeID)
	if err != nil {
		return nil, err
	}
	start, end := cycle.Window(home.RotationPolicy, s.today())
	all, err := s.assignments.ListByHomeInWindow(homeID, start, end)
	if err != nil {
		return nil, err
	}

	out := &Cycle{HomeID: homeID, Start: start, End: end, Assignments: []model.Assignment{}}
	for _, a := range all {
		if memberID == 0 || a.MemberID == memberID {
			out.Assignments = append(out.Assignments, a)
		}
	}
	return out, nil
}
