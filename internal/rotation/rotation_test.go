package rotation

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/chorewheel/internal/apperr"
	"github.com/dukerupert/chorewheel/internal/cycle"
	"github.com/dukerupert/chorewheel/internal/database"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/store"
)

var wednesday = time.Date(2026, 2, 11, 15, 0, 0, 0, time.UTC)

type fixture struct {
	db          *sql.DB
	sched       *Scheduler
	homes       *store.HomeStore
	members     *store.MemberStore
	tasks       *store.TaskStore
	assignments *store.AssignmentStore
	home        *model.Home
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:          db,
		homes:       store.NewHomeStore(db),
		members:     store.NewMemberStore(db),
		tasks:       store.NewTaskStore(db),
		assignments: store.NewAssignmentStore(db),
	}
	f.home, err = f.homes.Create("Flat 4", cycle.Weekly, 80, true)
	require.NoError(t, err)

	f.sched = NewScheduler(f.homes, f.members, f.tasks, f.assignments, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.sched.Clock = func() time.Time { return wednesday }
	return f
}

func (f *fixture) member(t *testing.T, name string, points int) *model.Member {
	t.Helper()
	m, err := f.members.Create(f.home.ID, name, wednesday.AddDate(0, -1, 0))
	require.NoError(t, err)
	if points > 0 {
		_, err = f.db.Exec(`UPDATE members SET total_points = ? WHERE id = ?`, points, m.ID)
		require.NoError(t, err)
	}
	return m
}

func (f *fixture) task(t *testing.T, name string, freq cycle.Policy) *model.Task {
	t.Helper()
	task, err := f.tasks.Create(f.home.ID, nil, name, "", 5, freq)
	require.NoError(t, err)
	return task
}

func TestPlanRoundRobin(t *testing.T) {
	const n, m = 11, 4
	tasks := make([]model.Task, n)
	for i := range tasks {
		tasks[i] = model.Task{ID: int64(i + 1), Frequency: cycle.Weekly}
	}
	members := make([]model.Member, m)
	for i := range members {
		members[i] = model.Member{ID: int64(100 + i)}
	}

	plan := Plan(tasks, members, time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC))
	require.Len(t, plan, n)

	seen := map[int64]bool{}
	received := map[int64]int{}
	for _, a := range plan {
		assert.False(t, seen[a.TaskID], "task %d dealt twice", a.TaskID)
		seen[a.TaskID] = true

		// Nobody gets another task while someone else is still behind,
		// up to floor(n/m) each.
		if k := received[a.MemberID]; k >= 1 {
			for _, other := range members {
				if other.ID != a.MemberID {
					assert.GreaterOrEqual(t, received[other.ID], min(k, n/m), "member %d ahead of %d", a.MemberID, other.ID)
				}
			}
		}
		received[a.MemberID]++
		assert.True(t, a.DueDate.Equal(a.AssignedDate.AddDate(0, 0, 7)))
	}
	for _, mm := range members {
		assert.GreaterOrEqual(t, received[mm.ID], n/m)
	}

	assert.Nil(t, Plan(nil, members, time.Now()))
	assert.Nil(t, Plan(tasks, nil, time.Now()))
}

func TestAutoAssignSeedsPoorestFirst(t *testing.T) {
	f := setup(t)
	a := f.member(t, "A", 800)
	b := f.member(t, "B", 0)
	t1 := f.task(t, "Dishes", cycle.Weekly)
	t2 := f.task(t, "Bins", cycle.Daily)

	created, err := f.sched.AutoAssign(f.home.ID, nil)
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.Equal(t, t1.ID, created[0].TaskID)
	assert.Equal(t, b.ID, created[0].MemberID)
	assert.Equal(t, t2.ID, created[1].TaskID)
	assert.Equal(t, a.ID, created[1].MemberID)

	today := cycle.StartOfDay(wednesday)
	assert.True(t, created[0].AssignedDate.Equal(today))
	assert.True(t, created[1].DueDate.Equal(today.AddDate(0, 0, 1)))

	// Same day again collides with the pending rows.
	_, err = f.sched.AutoAssign(f.home.ID, nil)
	assert.ErrorIs(t, err, store.ErrDuplicateAssignment)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestAutoAssignEmpty(t *testing.T) {
	f := setup(t)
	f.task(t, "Dishes", cycle.Weekly)

	created, err := f.sched.AutoAssign(f.home.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, created)

	_, err = f.sched.AutoAssign(999, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCloseCycleAndReassign(t *testing.T) {
	f := setup(t)
	a := f.member(t, "A", 0)
	b := f.member(t, "B", 0)
	t1 := f.task(t, "Dishes", cycle.Weekly)
	t2 := f.task(t, "Bins", cycle.Weekly)

	lastWeek := cycle.Start(cycle.Weekly, wednesday).AddDate(0, 0, -7)
	_, err := f.assignments.Create(t1.ID, a.ID, lastWeek, lastWeek.AddDate(0, 0, 7))
	require.NoError(t, err)
	done, err := f.assignments.Create(t2.ID, b.ID, lastWeek, lastWeek.AddDate(0, 0, 7))
	require.NoError(t, err)
	_, err = f.db.Exec(`UPDATE assignments SET status = 'completed' WHERE id = ?`, done.ID)
	require.NoError(t, err)

	res, err := f.sched.CloseCycleAndReassign(f.home.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Closed)
	assert.Equal(t, 2, res.Assigned)

	start := cycle.Start(cycle.Weekly, wednesday)
	for _, a := range res.Assignments {
		assert.True(t, a.AssignedDate.Equal(start), "assigned %v", a.AssignedDate)
	}

	old, err := f.assignments.ListByHomeInWindow(f.home.ID, lastWeek, start)
	require.NoError(t, err)
	statuses := map[model.AssignmentStatus]int{}
	for _, a := range old {
		statuses[a.Status]++
	}
	assert.Equal(t, map[model.AssignmentStatus]int{model.AssignmentSkippedExpired: 1, model.AssignmentCompleted: 1}, statuses)
}

func TestRolloverReseedsByPoints(t *testing.T) {
	f := setup(t)
	a := f.member(t, "A", 800)
	b := f.member(t, "B", 0)
	f.task(t, "Dishes", cycle.Weekly)
	f.task(t, "Bins", cycle.Weekly)

	res, err := f.sched.CloseCycleAndReassign(f.home.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, res.Assignments[0].MemberID)

	// B overtakes A; next cycle A is seeded first.
	_, err = f.db.Exec(`UPDATE members SET total_points = 900 WHERE id = ?`, b.ID)
	require.NoError(t, err)
	f.sched.Clock = func() time.Time { return wednesday.AddDate(0, 0, 7) }

	res, err = f.sched.CloseCycleAndReassign(f.home.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Closed)
	assert.Equal(t, a.ID, res.Assignments[0].MemberID)
}

func TestStartCycleIfNeeded(t *testing.T) {
	f := setup(t)
	f.member(t, "A", 0)
	f.task(t, "Dishes", cycle.Weekly)

	res, started, err := f.sched.StartCycleIfNeeded(f.home.ID)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, 1, res.Assigned)

	res, started, err = f.sched.StartCycleIfNeeded(f.home.ID)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, 0, res.Assigned)

	_, err = f.homes.UpdateSettings(f.home.ID, cycle.Weekly, 80, false)
	require.NoError(t, err)
	f.sched.Clock = func() time.Time { return wednesday.AddDate(0, 0, 7) }
	_, started, err = f.sched.StartCycleIfNeeded(f.home.ID)
	require.NoError(t, err)
	assert.False(t, started, "manual homes are never rolled automatically")
}

func TestReassignPendingTasks(t *testing.T) {
	f := setup(t)
	a := f.member(t, "A", 0)
	b := f.member(t, "B", 10)
	c := f.member(t, "C", 20)

	start := cycle.Start(cycle.Weekly, wednesday)
	for i := 0; i < 4; i++ {
		task := f.task(t, fmt.Sprintf("Task %d", i), cycle.Weekly)
		_, err := f.assignments.Create(task.ID, a.ID, start, start.AddDate(0, 0, 7))
		require.NoError(t, err)
	}

	moved, err := f.sched.ReassignPendingTasks(f.home.ID)
	require.NoError(t, err)
	require.Len(t, moved, 2)
	assert.Equal(t, b.ID, moved[0].MemberID, "tie broken by fewer points")
	assert.Equal(t, c.ID, moved[1].MemberID)
	assert.True(t, moved[0].DueDate.Equal(start.AddDate(0, 0, 7)))
	assert.True(t, moved[0].AssignedDate.Equal(cycle.StartOfDay(wednesday)))

	// Balanced now: nothing moves.
	moved, err = f.sched.ReassignPendingTasks(f.home.ID)
	require.NoError(t, err)
	assert.Empty(t, moved)
}

func TestReassignFromInactiveMember(t *testing.T) {
	f := setup(t)
	a := f.member(t, "A", 0)
	b := f.member(t, "B", 0)
	task := f.task(t, "Dishes", cycle.Weekly)

	start := cycle.Start(cycle.Weekly, wednesday)
	orig, err := f.assignments.Create(task.ID, a.ID, start, start.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.NoError(t, f.members.Deactivate(a.ID))

	moved, err := f.sched.ReassignPendingTasks(f.home.ID)
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, b.ID, moved[0].MemberID)

	old, err := f.assignments.GetByID(orig.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentSkippedReassigned, old.Status)
}

func TestCurrentCycle(t *testing.T) {
	f := setup(t)
	ana := f.member(t, "Ana", 0)
	ben := f.member(t, "Ben", 10)
	f.task(t, "Dishes", cycle.Weekly)
	f.task(t, "Bins", cycle.Weekly)

	lastWeek := wednesday.AddDate(0, 0, -7)
	_, err := f.sched.AutoAssign(f.home.ID, &lastWeek)
	require.NoError(t, err)
	_, err = f.sched.AutoAssign(f.home.ID, nil)
	require.NoError(t, err)

	all, err := f.sched.CurrentCycle(f.home.ID, 0)
	require.NoError(t, err)
	assert.True(t, all.Start.Equal(time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)))
	assert.Len(t, all.Assignments, 2, "last week's rows are outside the window")

	mine, err := f.sched.CurrentCycle(f.home.ID, ben.ID)
	require.NoError(t, err)
	require.Len(t, mine.Assignments, 1)
	assert.NotEqual(t, ana.ID, mine.Assignments[0].MemberID)

	_, err = f.sched.CurrentCycle(404, 0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
