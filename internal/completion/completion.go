// Package completion records finished assignments and keeps each member's
// points, streak and activity counters current.
package completion

import (
	"log/slog"
	"time"

	"github.com/dukerupert/chorewheel/internal/apperr"
	"github.com/dukerupert/chorewheel/internal/cycle"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/progression"
	"github.com/dukerupert/chorewheel/internal/store"
	"github.com/dukerupert/chorewheel/internal/telemetry"
	"github.com/dukerupert/chorewheel/internal/validation"
)

// ProgressRecorder advances the member's open challenges after a
// completion.
type ProgressRecorder interface {
	RecordCompletion(memberID int64, task *model.Task) error
}

// AchievementChecker unlocks whatever the member's new counters qualify for.
type AchievementChecker interface {
	CheckAchievements(memberID int64) ([]model.Achievement, error)
}

type Result struct {
	Assignment    *model.Assignment   `json:"assignment"`
	Member        *model.Member       `json:"member"`
	PointsAwarded int                 `json:"points_awarded"`
	Unlocked      []model.Achievement `json:"unlocked,omitempty"`
}

type Tracker struct {
	assignments  *store.AssignmentStore
	tasks        *store.TaskStore
	progress     ProgressRecorder
	achievements AchievementChecker
	logger       *slog.Logger

	Clock func() time.Time
}

// NewTracker wires the tracker. progress and achievements may be nil.
func NewTracker(as *store.AssignmentStore, ts *store.TaskStore, progress ProgressRecorder, achievements AchievementChecker, logger *slog.Logger) *Tracker {
	return &Tracker{assignments: as, tasks: ts, progress: progress, achievements: achievements, logger: logger, Clock: time.Now}
}

// NextStreak returns the streak after a completion on today. A second
// completion on the same day keeps it, a completion the day after the last
// one extends it, anything else starts over at 1.
func NextStreak(current int, last *time.Time, today time.Time) int {
	today = cycle.StartOfDay(today)
	if last == nil {
		return 1
	}
	lastDay := cycle.StartOfDay(*last)
	switch {
	case lastDay.Equal(today):
		return max(current, 1)
	case lastDay.AddDate(0, 0, 1).Equal(today):
		return current + 1
	default:
		return 1
	}
}

// WeeksActive counts whole calendar weeks since joined. It measures elapsed
// time, not weeks with any activity.
func WeeksActive(joined, now time.Time) int {
	if now.Before(joined) {
		return 0
	}
	return int(now.Sub(joined) / (7 * 24 * time.Hour))
}

// Apply adds one completion worth points to m.
func Apply(m *model.Member, points int, at time.Time) {
	at = at.UTC()
	today := cycle.StartOfDay(at)

	m.TotalPoints += points
	m.TasksCompleted++
	m.CurrentStreak = NextStreak(m.CurrentStreak, m.LastCompletedOn, today)
	m.LastCompletedOn = &today
	m.WeeksActive = WeeksActive(m.JoinedAt, at)
	m.PointLevel = progression.LevelForPoints(m.TotalPoints)
}

type completeRequest struct {
	Notes       string `json:"notes" validate:"max=2000"`
	EvidenceURL string `json:"evidence_url" validate:"omitempty,url"`
}

// CompleteTask marks the member's pending assignment completed and credits
// the task's effort points. Challenge progress and achievement checks run
// afterwards, outside the completion's transaction; their failures are
// logged and do not fail the call.
func (t *Tracker) CompleteTask(assignmentID, memberID int64, notes, evidenceURL string) (*Result, error) {
	if err := validation.Struct(completeRequest{Notes: notes, EvidenceURL: evidenceURL}); err != nil {
		return nil, err
	}

	a, err := t.assignments.GetByID(assignmentID)
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

	task, err := t.tasks.GetByID(a.TaskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperr.NotFound("task", a.TaskID)
	}

	now := t.Clock().UTC()
	done, member, err := t.assignments.Complete(assignmentID, notes, evidenceURL, now, func(m *model.Member) {
		Apply(m, task.EffortPoints, now)
	})
	if err != nil {
		return nil, err
	}
	telemetry.Completions.Inc()
	t.logger.Info("task completed", "assignment_id", assignmentID, "member_id", memberID,
		"points", task.EffortPoints, "streak", member.CurrentStreak)

	res := &Result{Assignment: done, Member: member, PointsAwarded: task.EffortPoints}

	if t.progress != nil {
		if err := t.progress.RecordCompletion(memberID, task); err != nil {
			telemetry.SideEffectFailures.WithLabelValues("challenge_progress").Inc()
			t.logger.Warn("challenge progress update failed", "assignment_id", assignmentID, "member_id", memberID, "error", err)
		}
	}
	if t.achievements != nil {
		unlocked, err := t.achievements.CheckAchievements(memberID)
		if err != nil {
			telemetry.SideEffectFailures.WithLabelValues("achievements").Inc()
			t.logger.Warn("achievement check failed", "assignment_id", assignmentID, "member_id", memberID, "error", err)
		}
		res.Unlocked = unlocked
	}
	return res, nil
}
