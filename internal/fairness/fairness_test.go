package fairness

import (
	"database/sql"
	"fmt"
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

func TestRotationPercentage(t *testing.T) {
	assert.Equal(t, 100.0, RotationPercentage(nil))
	assert.Equal(t, 100.0, RotationPercentage([]int{5}))
	assert.Equal(t, 100.0, RotationPercentage([]int{0, 0, 0}))
	assert.Equal(t, 100.0, RotationPercentage([]int{3, 3, 3}))

	// Fixed total and member count, widening spread.
	prev := RotationPercentage([]int{4, 4, 4})
	for _, counts := range [][]int{{3, 4, 5}, {2, 4, 6}, {1, 4, 7}, {0, 4, 8}, {0, 0, 12}} {
		got := RotationPercentage(counts)
		assert.Less(t, got, prev, "counts %v", counts)
		prev = got
	}

	assert.Equal(t, 33.3, RotationPercentage([]int{0, 2}))
}

func TestCompletionPercentage(t *testing.T) {
	rows := make([]model.Assignment, 0, 12)
	for i := 0; i < 9; i++ {
		rows = append(rows, model.Assignment{Status: model.AssignmentCompleted})
	}
	rows = append(rows,
		model.Assignment{Status: model.AssignmentPending},
		model.Assignment{Status: model.AssignmentSkippedReassigned},
		model.Assignment{Status: model.AssignmentSkippedCancelled},
	)
	tally := Count(rows)
	assert.Equal(t, 10, tally.Total)
	assert.Equal(t, 90.0, tally.CompletionPercentage())
	assert.Equal(t, 0.0, Tally{}.CompletionPercentage())
}

func TestConsecutiveCycles(t *testing.T) {
	assert.Equal(t, 3, ConsecutiveCycles([]float64{90, 80, 85, 40, 100}, 80))
	assert.Equal(t, 0, ConsecutiveCycles([]float64{79.9, 100}, 80))
	assert.Equal(t, 0, ConsecutiveCycles(nil, 80))
}

func TestLoads(t *testing.T) {
	members := []model.Member{{ID: 1, Name: "Ana"}, {ID: 2, Name: "Ben"}}
	rows := []model.Assignment{
		{MemberID: 1, Status: model.AssignmentCompleted},
		{MemberID: 1, Status: model.AssignmentPending},
		{MemberID: 1, Status: model.AssignmentSkippedReassigned},
		{MemberID: 3, Status: model.AssignmentPending},
	}
	loads := Loads(members, rows)
	require.Len(t, loads, 2)
	assert.Equal(t, MemberLoad{MemberID: 1, Name: "Ana", Assigned: 2, Completed: 1}, loads[0])
	assert.Equal(t, MemberLoad{MemberID: 2, Name: "Ben"}, loads[1])
}

type fixture struct {
	db      *sql.DB
	engine  *Engine
	home    *model.Home
	members []*model.Member
	tasks   []*model.Task
}

func setup(t *testing.T, now time.Time) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hs := store.NewHomeStore(db)
	ms := store.NewMemberStore(db)
	ts := store.NewTaskStore(db)
	home, err := hs.Create("Flat 4", cycle.Weekly, 80, true)
	require.NoError(t, err)

	f := &fixture{db: db, home: home}
	for _, name := range []string{"Ana", "Ben"} {
		m, err := ms.Create(home.ID, name, now.AddDate(0, -2, 0))
		require.NoError(t, err)
		f.members = append(f.members, m)
	}
	for i := 0; i < 10; i++ {
		task, err := ts.Create(home.ID, nil, fmt.Sprintf("Task %d", i), "", 5, cycle.Weekly)
		require.NoError(t, err)
		f.tasks = append(f.tasks, task)
	}

	f.engine = NewEngine(hs, ms, store.NewAssignmentStore(db))
	f.engine.Clock = func() time.Time { return now }
	return f
}

// fillCycle assigns all ten tasks on the cycle's first day and completes the
// first n of them.
func (f *fixture) fillCycle(t *testing.T, start time.Time, completed int) {
	t.Helper()
	as := store.NewAssignmentStore(f.db)
	for i, task := range f.tasks {
		a, err := as.Create(task.ID, f.members[i%2].ID, start, start.AddDate(0, 0, 7))
		require.NoError(t, err)
		if i < completed {
			_, err := f.db.Exec(`UPDATE assignments SET status = 'completed' WHERE id = ?`, a.ID)
			require.NoError(t, err)
		}
	}
}

func TestGetHomeMetricsConsecutiveWeeks(t *testing.T) {
	now := time.Date(2026, 2, 11, 15, 0, 0, 0, time.UTC) // Wednesday
	f := setup(t, now)

	current := cycle.Start(cycle.Weekly, now)
	f.fillCycle(t, current.AddDate(0, 0, -21), 5) // below goal, ends the run
	f.fillCycle(t, current.AddDate(0, 0, -14), 8)
	f.fillCycle(t, current.AddDate(0, 0, -7), 10)
	f.fillCycle(t, current, 9)

	m, err := f.engine.GetHomeMetrics(f.home.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, m.Tally.Total)
	assert.Equal(t, 90.0, m.CompletionPercentage)
	assert.True(t, m.GoalMet)
	assert.Equal(t, 3, m.ConsecutiveCycles)
	assert.Equal(t, 100.0, m.RotationPercentage)
	assert.True(t, m.CycleStart.Equal(current))
	require.Len(t, m.Members, 2)
	assert.Equal(t, 5, m.Members[0].Assigned)
}

func TestGetHomeMetricsStreakBroken(t *testing.T) {
	now := time.Date(2026, 2, 11, 15, 0, 0, 0, time.UTC)
	f := setup(t, now)

	current := cycle.Start(cycle.Weekly, now)
	f.fillCycle(t, current.AddDate(0, 0, -7), 10)
	f.fillCycle(t, current, 7)

	m, err := f.engine.GetHomeMetrics(f.home.ID)
	require.NoError(t, err)
	assert.Equal(t, 70.0, m.CompletionPercentage)
	assert.False(t, m.GoalMet)
	assert.Equal(t, 0, m.ConsecutiveCycles)
}

func TestGetHomeMetricsUnknownHome(t *testing.T) {
	f := setup(t, time.Now())
	_, err := f.engine.GetHomeMetrics(404)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
