// Package cycle computes rotation window boundaries. Every component that
// needs a cycle start, end, or length calls into this package.
package cycle

import (
	"fmt"
	"time"
)

// Policy selects the length of a home's rotation cycle. Task frequencies use
// the same values.
type Policy string

const (
	Daily    Policy = "daily"
	Weekly   Policy = "weekly"
	Biweekly Policy = "biweekly"
	Monthly  Policy = "monthly"
)

// Policies lists every supported policy in ascending cycle length.
var Policies = []Policy{Daily, Weekly, Biweekly, Monthly}

func (p Policy) Valid() bool {
	switch p {
	case Daily, Weekly, Biweekly, Monthly:
		return true
	}
	return false
}

// ParsePolicy validates s as a Policy.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown rotation policy %q", s)
	}
	return p, nil
}

// Start returns the beginning of the cycle containing ref, at midnight in
// ref's location. Unknown policies fall back to weekly.
func Start(p Policy, ref time.Time) time.Time {
	day := StartOfDay(ref)
	switch p {
	case Daily:
		return day
	case Biweekly:
		if day.Day() < 15 {
			return firstOfMonth(day)
		}
		return time.Date(day.Year(), day.Month(), 15, 0, 0, 0, 0, day.Location())
	case Monthly:
		return firstOfMonth(day)
	default:
		return day.AddDate(0, 0, -int(day.Weekday()))
	}
}

// End returns the exclusive end of the cycle beginning at start.
//
// The second half of a biweekly cycle runs to the first of the next month so
// that every day of a 29-31 day month belongs to exactly one window.
func End(p Policy, start time.Time) time.Time {
	switch p {
	case Daily:
		return start.AddDate(0, 0, 1)
	case Biweekly:
		if start.Day() >= 15 {
			return firstOfMonth(start).AddDate(0, 1, 0)
		}
		return start.AddDate(0, 0, 14)
	case Monthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 7)
	}
}

// Window returns the [start, end) range of the cycle containing ref.
func Window(p Policy, ref time.Time) (time.Time, time.Time) {
	start := Start(p, ref)
	return start, End(p, start)
}

// Previous returns the [start, end) range of the cycle immediately before the
// one containing ref.
func Previous(p Policy, ref time.Time) (time.Time, time.Time) {
	start := Start(p, ref)
	return Window(p, start.AddDate(0, 0, -1))
}

// ExpiryCutoff is the last assigned date that belongs to a closed cycle when
// the cycle containing ref opens. Pending assignments dated on or before it
// are expired by rollover.
func ExpiryCutoff(p Policy, ref time.Time) time.Time {
	return Start(p, ref).AddDate(0, 0, -1)
}

// InclusiveEnd returns end minus one second, for queries that need a closed
// interval.
func InclusiveEnd(end time.Time) time.Time {
	return end.Add(-time.Second)
}

// Length returns the duration of the cycle containing ref.
func Length(p Policy, ref time.Time) time.Duration {
	start, end := Window(p, ref)
	return end.Sub(start)
}

// DueDate offsets an assigned date by a task frequency: daily +1 day,
// weekly +7, biweekly +14, monthly +1 calendar month.
func DueDate(freq Policy, assigned time.Time) time.Time {
	switch freq {
	case Daily:
		return assigned.AddDate(0, 0, 1)
	case Biweekly:
		return assigned.AddDate(0, 0, 14)
	case Monthly:
		return assigned.AddDate(0, 1, 0)
	default:
		return assigned.AddDate(0, 0, 7)
	}
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
