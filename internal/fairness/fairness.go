// Package fairness computes completion and load-equity metrics over cycle
// windows.
package fairness

import (
	"fmt"
	"math"
	"time"

	"github.com/dukerupert/chorewheel/internal/apperr"
	"github.com/dukerupert/chorewheel/internal/cycle"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/store"
)

// maxLookback bounds how many closed cycles the consecutive-goal count
// inspects.
const maxLookback = 520

// handedOff reports statuses whose work moved to a replacement row. They are
// left out of window totals so a reassignment is not counted twice.
func handedOff(s model.AssignmentStatus) bool {
	return s == model.AssignmentSkippedReassigned || s == model.AssignmentSkippedCancelled
}

// Tally summarizes the assignments of one window.
type Tally struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
	Expired   int `json:"expired"`
}

func Count(assignments []model.Assignment) Tally {
	var t Tally
	for _, a := range assignments {
		if handedOff(a.Status) {
			continue
		}
		t.Total++
		switch a.Status {
		case model.AssignmentCompleted:
			t.Completed++
		case model.AssignmentPending:
			t.Pending++
		case model.AssignmentSkippedExpired:
			t.Expired++
		}
	}
	return t
}

// CompletionPercentage is completed/total as a percentage, 0 for an empty
// window.
func (t Tally) CompletionPercentage() float64 {
	if t.Total == 0 {
		return 0
	}
	return round1(100 * float64(t.Completed) / float64(t.Total))
}

// RotationPercentage measures how evenly load is spread. With mean m and
// spread s = max - min over counts it is 100*m/(m+s): 100 when every count is
// equal and strictly lower as the spread widens. An empty or single-member
// window scores 100.
func RotationPercentage(counts []int) float64 {
	if len(counts) < 2 {
		return 100
	}
	total, lo, hi := 0, counts[0], counts[0]
	for _, c := range counts {
		total += c
		lo = min(lo, c)
		hi = max(hi, c)
	}
	if total == 0 {
		return 100
	}
	mean := float64(total) / float64(len(counts))
	return round1(100 * mean / (mean + float64(hi-lo)))
}

// ConsecutiveCycles counts how many cycles, newest first, met goal before
// the first miss.
func ConsecutiveCycles(percentages []float64, goal int) int {
	n := 0
	for _, p := range percentages {
		if p < float64(goal) {
			break
		}
		n++
	}
	return n
}

type MemberLoad struct {
	MemberID  int64  `json:"member_id"`
	Name      string `json:"name"`
	Assigned  int    `json:"assigned"`
	Completed int    `json:"completed"`
}

// Loads counts each active member's assignments in the window. Members with
// nothing assigned still appear with zero.
func Loads(members []model.Member, assignments []model.Assignment) []MemberLoad {
	index := make(map[int64]int, len(members))
	loads := make([]MemberLoad, 0, len(members))
	for _, m := range members {
		index[m.ID] = len(loads)
		loads = append(loads, MemberLoad{MemberID: m.ID, Name: m.Name})
	}
	for _, a := range assignments {
		i, ok := index[a.MemberID]
		if !ok || handedOff(a.Status) {
			continue
		}
		loads[i].Assigned++
		if a.Status == model.AssignmentCompleted {
			loads[i].Completed++
		}
	}
	return loads
}

type HomeMetrics struct {
	HomeID               int64        `json:"home_id"`
	RotationPolicy       cycle.Policy `json:"rotation_policy"`
	CycleStart           time.Time    `json:"cycle_start"`
	CycleEnd             time.Time    `json:"cycle_end"`
	Tally                Tally        `json:"assignments"`
	CompletionPercentage float64      `json:"completion_percentage"`
	RotationPercentage   float64      `json:"rotation_percentage"`
	GoalPercentage       int          `json:"goal_percentage"`
	GoalMet              bool         `json:"goal_met"`
	ConsecutiveCycles    int          `json:"consecutive_weeks"`
	Members              []MemberLoad `json:"members"`
}

type Engine struct {
	homes       *store.HomeStore
	members     *store.MemberStore
	assignments *store.AssignmentStore

	Clock func() time.Time
}

func NewEngine(hs *store.HomeStore, ms *store.MemberStore, as *store.AssignmentStore) *Engine {
	return &Engine{homes: hs, members: ms, assignments: as, Clock: time.Now}
}

// GetHomeMetrics reports the current cycle's completion and equity figures
// and how many cycles in a row, ending with the current one, met the home's
// goal.
func (e *Engine) GetHomeMetrics(homeID int64) (*HomeMetrics, error) {
	home, err := e.homes.GetByID(homeID)
	if err != nil {
		return nil, err
	}
	if home == nil {
		return nil, apperr.NotFound("home", homeID)
	}

	start, end := cycle.Window(home.RotationPolicy, e.Clock().UTC())
	current, err := e.assignments.ListByHomeInWindow(homeID, start, end)
	if err != nil {
		return nil, err
	}
	members, err := e.members.ListActiveByPoints(homeID)
	if err != nil {
		return nil, err
	}

	loads := Loads(members, current)
	counts := make([]int, len(loads))
	for i, l := range loads {
		counts[i] = l.Assigned
	}

	tally := Count(current)
	m := &HomeMetrics{
		HomeID:               homeID,
		RotationPolicy:       home.RotationPolicy,
		CycleStart:           start,
		CycleEnd:             end,
		Tally:                tally,
		CompletionPercentage: tally.CompletionPercentage(),
		RotationPercentage:   RotationPercentage(counts),
		GoalPercentage:       home.GoalPercentage,
		Members:              loads,
	}
	m.GoalMet = tally.Total > 0 && m.CompletionPercentage >= float64(home.GoalPercentage)

	m.ConsecutiveCycles, err = e.consecutive(home, start, m)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (e *Engine) consecutive(home *model.Home, start time.Time, current *HomeMetrics) (int, error) {
	if !current.GoalMet {
		return 0, nil
	}
	percentages := []float64{current.CompletionPercentage}
	for i := 0; i < maxLookback; i++ {
		var end time.Time
		start, end = cycle.Previous(home.RotationPolicy, start)
		rows, err := e.assignments.ListByHomeInWindow(home.ID, start, end)
		if err != nil {
			return 0, fmt.Errorf("load cycle %s: %w", start.Format(time.DateOnly), err)
		}
		t := Count(rows)
		if t.Total == 0 {
			break
		}
		p := t.CompletionPercentage()
		percentages = append(percentages, p)
		if p < float64(home.GoalPercentage) {
			break
		}
	}
	return ConsecutiveCycles(percentages, home.GoalPercentage), nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
