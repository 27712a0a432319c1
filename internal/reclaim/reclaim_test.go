package reclaim

import (
	"database/sql"
	"io"
	"log/slog"
	"sync"
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

var now = time.Date(2026, 2, 11, 15, 0, 0, 0, time.UTC) // Wednesday

type fixture struct {
	db          *sql.DB
	wf          *Workflow
	assignments *store.AssignmentStore
	tasks       *store.TaskStore
	home        *model.Home
	a, b, c     *model.Member
	dishes      *model.Task
	x           *model.Assignment
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hs := store.NewHomeStore(db)
	ms := store.NewMemberStore(db)
	f := &fixture{db: db, assignments: store.NewAssignmentStore(db), tasks: store.NewTaskStore(db)}

	f.home, err = hs.Create("Flat 4", cycle.Weekly, 80, true)
	require.NoError(t, err)
	for _, p := range []**model.Member{&f.a, &f.b, &f.c} {
		*p, err = ms.Create(f.home.ID, "member", now.AddDate(0, -1, 0))
		require.NoError(t, err)
	}

	zone, err := f.tasks.CreateZone(f.home.ID, "Kitchen")
	require.NoError(t, err)
	f.dishes, err = f.tasks.Create(f.home.ID, &zone.ID, "Dishes", "", 10, cycle.Weekly)
	require.NoError(t, err)

	start := cycle.Start(cycle.Weekly, now)
	f.x, err = f.assignments.Create(f.dishes.ID, f.a.ID, start, start.AddDate(0, 0, 7))
	require.NoError(t, err)

	f.wf = NewWorkflow(hs, ms, f.tasks, f.assignments, store.NewCancellationStore(db), slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.wf.Clock = func() time.Time { return now }
	return f
}

func TestCancelListTake(t *testing.T) {
	f := setup(t)

	c, err := f.wf.Cancel(f.x.ID, f.a.ID, "travelling")
	require.NoError(t, err)
	assert.True(t, c.IsAvailable)

	available, err := f.wf.ListAvailable(f.home.ID)
	require.NoError(t, err)
	require.Len(t, available, 1, "dishes must not also appear as unassigned")
	assert.Equal(t, c.ID, available[0].CancellationID)
	assert.Equal(t, f.x.ID, available[0].AssignmentID)
	assert.Equal(t, "Kitchen", available[0].ZoneName)

	taken, err := f.wf.Take(c.ID, f.c.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, f.c.ID, taken.MemberID)
	assert.Equal(t, model.AssignmentPending, taken.Status)
	assert.True(t, taken.DueDate.Equal(f.x.DueDate))
	assert.True(t, taken.AssignedDate.Equal(cycle.StartOfDay(now)))

	_, err = f.wf.Take(c.ID, f.b.ID, nil)
	assert.ErrorIs(t, err, store.ErrAlreadyTaken)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	available, err = f.wf.ListAvailable(f.home.ID)
	require.NoError(t, err)
	assert.Empty(t, available)

	orig, err := f.assignments.GetByID(f.x.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentSkippedCancelled, orig.Status)
}

func TestCancelRules(t *testing.T) {
	f := setup(t)

	_, err := f.wf.Cancel(f.x.ID, f.b.ID, "")
	assert.ErrorIs(t, err, apperr.ErrNotAssignee)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.wf.Cancel(404, f.a.ID, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.wf.Cancel(f.x.ID, f.a.ID, "")
	require.NoError(t, err)
	_, err = f.wf.Cancel(f.x.ID, f.a.ID, "")
	assert.ErrorIs(t, err, store.ErrAssignmentNotPending)
}

func TestConcurrentTake(t *testing.T) {
	f := setup(t)
	c, err := f.wf.Cancel(f.x.ID, f.a.ID, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, m := range []*model.Member{f.b, f.c} {
		wg.Add(1)
		go func(i int, memberID int64) {
			defer wg.Done()
			_, errs[i] = f.wf.Take(c.ID, memberID, nil)
		}(i, m.ID)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, apperr.ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM assignments WHERE status = 'pending'`).Scan(&n))
	assert.Equal(t, 1, n, "exactly one new assignment")
}

func TestTakeUnassigned(t *testing.T) {
	f := setup(t)
	bins, err := f.tasks.Create(f.home.ID, nil, "Bins", "", 3, cycle.Weekly)
	require.NoError(t, err)

	available, err := f.wf.ListAvailable(f.home.ID)
	require.NoError(t, err)
	require.Len(t, available, 1)
	entry := available[0]
	assert.True(t, entry.Synthetic())
	assert.Equal(t, bins.ID, entry.TaskID)
	assert.Equal(t, SystemCanceller, entry.CancelledBy)
	_, end := cycle.Window(cycle.Weekly, now)
	assert.True(t, entry.DueDate.Equal(end.AddDate(0, 0, -1)))

	_, err = f.wf.Take(0, f.b.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	a, err := f.wf.Take(0, f.b.ID, &bins.ID)
	require.NoError(t, err)
	today := cycle.StartOfDay(now)
	assert.True(t, a.DueDate.Equal(today.AddDate(0, 0, 7)))

	_, err = f.wf.Take(0, f.b.ID, &bins.ID)
	assert.ErrorIs(t, err, store.ErrDuplicateAssignment)
}

func TestTakeEligibility(t *testing.T) {
	f := setup(t)

	other, err := store.NewHomeStore(f.db).Create("Elsewhere", cycle.Weekly, 80, true)
	require.NoError(t, err)
	outsider, err := store.NewMemberStore(f.db).Create(other.ID, "outsider", now)
	require.NoError(t, err)

	_, err = f.wf.Take(0, outsider.ID, &f.dishes.ID)
	assert.ErrorIs(t, err, ErrNotEligible)

	c, err := f.wf.Cancel(f.x.ID, f.a.ID, "")
	require.NoError(t, err)
	_, err = f.wf.Take(c.ID, outsider.ID, nil)
	assert.ErrorIs(t, err, ErrNotEligible)

	require.NoError(t, store.NewMemberStore(f.db).Deactivate(f.b.ID))
	_, err = f.wf.Take(c.ID, f.b.ID, nil)
	assert.ErrorIs(t, err, ErrNotEligible)

	_, err = f.tasks.SetActive(f.dishes.ID, false)
	require.NoError(t, err)
	_, err = f.wf.Take(0, f.c.ID, &f.dishes.ID)
	assert.ErrorIs(t, err, ErrNotEligible)

	_, err = f.wf.Take(999, f.c.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
