// Package challenge instantiates timed objectives from templates, tracks
// per-member progress against them and pays out rewards exactly once.
package challenge

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dukerupert/chorewheel/internal/apperr"
	"github.com/dukerupert/chorewheel/internal/cycle"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/progression"
	"github.com/dukerupert/chorewheel/internal/store"
	"github.com/dukerupert/chorewheel/internal/telemetry"
)

var (
	ErrChallengeInactive   = fmt.Errorf("%w: challenge is not running", apperr.ErrConflict)
	ErrChallengeIncomplete = fmt.Errorf("%w: challenge not completed yet", apperr.ErrConflict)
	ErrNotParticipant      = fmt.Errorf("%w: member is not taking part in this challenge", apperr.ErrForbidden)
	ErrLevelTooLow         = fmt.Errorf("%w: member does not meet the template's requirements", apperr.ErrForbidden)
)

var typeMultipliers = map[model.ChallengeType]float64{
	model.ChallengeIndividual: 1.0,
	model.ChallengeGroup:      1.5,
}

var durationMultipliers = map[model.DurationType]float64{
	model.DurationDaily:        1.0,
	model.DurationQuarterCycle: 1.25,
	model.DurationHalfCycle:    1.5,
	model.DurationFullCycle:    2.0,
	model.DurationMultiCycle:   3.0,
}

var difficultyMultipliers = map[model.Difficulty]float64{
	model.DifficultyEasy:   1.0,
	model.DifficultyMedium: 1.25,
	model.DifficultyHard:   1.5,
	model.DifficultyExpert: 2.0,
}

func multiplier[K comparable](table map[K]float64, k K) float64 {
	if m, ok := table[k]; ok {
		return m
	}
	return 1.0
}

// RewardXP resolves a template's payout: base XP scaled by challenge type,
// duration and difficulty, rounded, and never below 1 so a paid claim is
// always distinguishable from an unpaid one.
func RewardXP(t *model.ChallengeTemplate) int {
	xp := float64(t.BaseXP) *
		multiplier(typeMultipliers, t.Type) *
		multiplier(durationMultipliers, t.DurationType) *
		multiplier(difficultyMultipliers, t.Difficulty)
	return max(int(math.Round(xp)), 1)
}

// durationDays converts a duration type into whole days for a home whose
// cycle containing now has the given policy. Fractions round up and every
// challenge lasts at least a day. multi_cycle spans multiplier cycles,
// defaulting to two.
func durationDays(policy cycle.Policy, d model.DurationType, multiplier float64, now time.Time) int {
	cycleDays := math.Round(cycle.Length(policy, now).Hours() / 24)

	var fraction float64
	switch d {
	case model.DurationDaily:
		return 1
	case model.DurationQuarterCycle:
		fraction = 0.25
	case model.DurationHalfCycle:
		fraction = 0.5
	case model.DurationMultiCycle:
		fraction = multiplier
		if fraction <= 0 {
			fraction = 2
		}
	default:
		fraction = 1
	}
	return max(int(math.Ceil(cycleDays*fraction)), 1)
}

// Window returns the [start, end) range of a challenge created at now.
// Challenges start at the beginning of the day.
func Window(policy cycle.Policy, d model.DurationType, multiplier float64, now time.Time) (time.Time, time.Time) {
	start := cycle.StartOfDay(now)
	return start, start.AddDate(0, 0, durationDays(policy, d, multiplier, now))
}

// IncrementCounters records a claimed challenge on the member's counters:
// the total always, plus exactly one of perfect (mastery), speed (daily),
// group, or individual, checked in that order.
func IncrementCounters(c *model.ChallengeCounts, ch *model.ActiveChallenge) {
	c.ChallengesCompleted++
	switch {
	case ch.Category == model.CategoryMastery:
		c.PerfectChallengesCompleted++
	case ch.DurationType == model.DurationDaily:
		c.SpeedChallengesCompleted++
	case ch.Type == model.ChallengeGroup:
		c.GroupChallengesCompleted++
	default:
		c.IndividualChallengesCompleted++
	}
}

// AchievementChecker re-evaluates achievements after a reward changes a
// member's counters.
type AchievementChecker interface {
	CheckAchievements(memberID int64) ([]model.Achievement, error)
}

type Engine struct {
	homes        *store.HomeStore
	members      *store.MemberStore
	tasks        *store.TaskStore
	challenges   *store.ChallengeStore
	achievements AchievementChecker
	logger       *slog.Logger

	Clock func() time.Time
}

// NewEngine wires the engine. achievements may be nil.
func NewEngine(hs *store.HomeStore, ms *store.MemberStore, ts *store.TaskStore, cs *store.ChallengeStore, achievements AchievementChecker, logger *slog.Logger) *Engine {
	return &Engine{homes: hs, members: ms, tasks: ts, challenges: cs, achievements: achievements, logger: logger, Clock: time.Now}
}

func (e *Engine) Templates() ([]model.ChallengeTemplate, error) {
	return e.challenges.ListTemplates(true)
}

func eligible(t *model.ChallengeTemplate, m *model.Member) bool {
	return progression.Rank(m.MasteryLevel) >= progression.Rank(t.MinMasteryLevel) &&
		m.TasksCompleted >= t.MinTasksCompleted
}

// Instantiate starts a challenge from a template for a home. Individual
// challenges need memberID and create one progress row for that member.
// Group challenges create a row for every active member; memberID, when
// given, is recorded as the creator. The creator must meet the template's
// mastery and task-count gates.
func (e *Engine) Instantiate(templateID, homeID int64, memberID *int64) (*model.ChallengeWithProgress, error) {
	tmpl, err := e.challenges.GetTemplate(templateID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, apperr.NotFound("challenge template", templateID)
	}
	if !tmpl.Active {
		return nil, apperr.Validation("challenge template %d is retired", templateID)
	}

	home, err := e.homes.GetByID(homeID)
	if err != nil {
		return nil, err
	}
	if home == nil {
		return nil, apperr.NotFound("home", homeID)
	}

	if memberID != nil {
		m, err := e.members.GetByID(*memberID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, apperr.NotFound("member", *memberID)
		}
		if m.HomeID != homeID || !m.Active() {
			return nil, ErrNotParticipant
		}
		if !eligible(tmpl, m) {
			return nil, ErrLevelTooLow
		}
	}

	var participants []int64
	switch tmpl.Type {
	case model.ChallengeGroup:
		active, err := e.members.ListActiveByPoints(homeID)
		if err != nil {
			return nil, err
		}
		for _, m := range active {
			participants = append(participants, m.ID)
		}
		if len(participants) == 0 {
			return nil, apperr.Validation("home %d has no active members", homeID)
		}
	default:
		if memberID == nil {
			return nil, apperr.Validation("member_id is required for an individual challenge")
		}
		participants = []int64{*memberID}
	}

	initial, err := Initial(tmpl.Category, tmpl.Requirements)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	payload, err := Encode(initial)
	if err != nil {
		return nil, err
	}

	start, end := Window(home.RotationPolicy, tmpl.DurationType, tmpl.DurationMultiplier, e.Clock().UTC())
	ch, err := e.challenges.Create(&model.ActiveChallenge{
		TemplateID:   tmpl.ID,
		HomeID:       homeID,
		CreatedBy:    memberID,
		Name:         tmpl.Name,
		Category:     tmpl.Category,
		Type:         tmpl.Type,
		DurationType: tmpl.DurationType,
		Requirements: tmpl.Requirements,
		StartDate:    start,
		EndDate:      end,
		XPReward:     RewardXP(tmpl),
	}, participants, payload)
	if err != nil {
		return nil, err
	}

	telemetry.ChallengeEvents.WithLabelValues("created").Inc()
	e.logger.Info("challenge started", "challenge_id", ch.ID, "home_id", homeID, "template", tmpl.Key,
		"participants", len(participants), "ends", end.Format(time.DateOnly))
	return ch, nil
}

// UpdateProgress applies one completion of taskID by memberID to a running
// challenge.
func (e *Engine) UpdateProgress(challengeID, taskID, memberID int64) (*model.ChallengeWithProgress, error) {
	task, err := e.tasks.GetByID(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperr.NotFound("task", taskID)
	}
	existing, err := e.challenges.GetByID(challengeID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperr.NotFound("challenge", challengeID)
	}
	// Only an active chore of the challenge's own home counts.
	if task.HomeID != existing.HomeID || !task.Active {
		return nil, apperr.NotFound("task", taskID)
	}
	return e.apply(challengeID, task, memberID)
}

// RecordCompletion advances every running challenge in which the member
// still has open progress. Each challenge is updated independently.
func (e *Engine) RecordCompletion(memberID int64, task *model.Task) error {
	open, err := e.challenges.ListOpenForMember(memberID, e.Clock().UTC())
	if err != nil {
		return err
	}
	var errs []error
	for _, c := range open {
		if _, err := e.apply(c.ID, task, memberID); err != nil {
			errs = append(errs, fmt.Errorf("challenge %d: %w", c.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) apply(challengeID int64, task *model.Task, memberID int64) (*model.ChallengeWithProgress, error) {
	now := e.Clock().UTC()
	ev := Event{TaskID: task.ID, ZoneID: task.ZoneID, At: now}

	var finished int
	out, err := e.challenges.UpdateProgress(challengeID, now, func(c *model.ActiveChallenge, rows []model.ChallengeProgress) ([]model.ChallengeProgress, error) {
		if !c.Open(now) {
			return nil, ErrChallengeInactive
		}
		self := -1
		for i := range rows {
			if rows[i].MemberID == memberID {
				self = i
			}
		}
		if self < 0 {
			return nil, ErrNotParticipant
		}
		if rows[self].Completed {
			return nil, nil
		}

		var changed []model.ChallengeProgress
		for i := range rows {
			row := rows[i]
			p, err := Decode(c.Category, row.Progress)
			if err != nil {
				return nil, err
			}

			touched := false
			if i == self {
				p.record(ev)
				touched = true
			}
			if cp, ok := p.(*CollectiveProgress); ok {
				cp.TeamTotal++
				touched = true
			}
			if !touched {
				continue
			}

			if row.Progress, err = Encode(p); err != nil {
				return nil, err
			}
			if !row.Completed && p.Complete() {
				row.Completed = true
				row.CompletedAt = &now
				finished++
			}
			changed = append(changed, row)
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}

	if finished > 0 {
		telemetry.ChallengeEvents.WithLabelValues("completed").Add(float64(finished))
		e.logger.Info("challenge progress completed", "challenge_id", challengeID, "member_id", memberID, "rows", finished)
	}
	return out, nil
}

type ClaimResult struct {
	Award    model.XPAward       `json:"award"`
	Member   *model.Member       `json:"member"`
	Unlocked []model.Achievement `json:"unlocked,omitempty"`
}

// ClaimReward pays the challenge's XP to the member once their progress is
// complete. Only the first claim succeeds; later or concurrent ones get
// store.ErrRewardClaimed and write nothing.
func (e *Engine) ClaimReward(challengeID, memberID int64) (*ClaimResult, error) {
	ch, err := e.challenges.GetByID(challengeID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, apperr.NotFound("challenge", challengeID)
	}
	p, err := e.challenges.GetProgress(challengeID, memberID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotParticipant
	}
	if p.Claimed() {
		return nil, store.ErrRewardClaimed
	}
	if !p.Completed {
		return nil, ErrChallengeIncomplete
	}

	ref := fmt.Sprintf("challenge:%d", challengeID)
	var award model.XPAward
	xp := progression.Grant(ch.XPReward, model.XPSourceChallenge, &ref, &award)
	member, err := e.challenges.ClaimReward(challengeID, memberID, ch.XPReward, e.Clock().UTC(), func(m *model.Member) []model.XPTransaction {
		IncrementCounters(&m.ChallengeCounts, &ch.ActiveChallenge)
		return xp(m)
	})
	if err != nil {
		return nil, err
	}

	telemetry.ChallengeEvents.WithLabelValues("claimed").Inc()
	telemetry.XPAwarded.WithLabelValues(model.XPSourceChallenge).Add(float64(ch.XPReward))
	e.logger.Info("challenge reward claimed", "challenge_id", challengeID, "member_id", memberID,
		"xp", ch.XPReward, "level", award.NewLevel)

	res := &ClaimResult{Award: award, Member: member}
	if e.achievements != nil {
		unlocked, err := e.achievements.CheckAchievements(memberID)
		if err != nil {
			telemetry.SideEffectFailures.WithLabelValues("achievements").Inc()
			e.logger.Warn("achievement check failed", "challenge_id", challengeID, "member_id", memberID, "error", err)
		}
		res.Unlocked = unlocked
	}
	return res, nil
}

// ExpireChallenges marks every running challenge whose end date has passed
// as expired. Completed progress stays claimable.
func (e *Engine) ExpireChallenges() (int, error) {
	n, err := e.challenges.ExpireEnded(e.Clock().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		telemetry.ChallengeEvents.WithLabelValues("expired").Add(float64(n))
		e.logger.Info("challenges expired", "count", n)
	}
	return n, nil
}

// ListForHome returns the home's challenges with every participant's
// progress. Finished and expired challenges are included when all is true.
func (e *Engine) ListForHome(homeID int64, all bool) ([]model.ChallengeWithProgress, error) {
	var statuses []model.ChallengeStatus
	if !all {
		statuses = []model.ChallengeStatus{model.ChallengeActive}
	}
	list, err := e.challenges.ListByHome(homeID, statuses...)
	if err != nil {
		return nil, err
	}

	out := make([]model.ChallengeWithProgress, 0, len(list))
	for _, c := range list {
		full, err := e.challenges.GetByID(c.ID)
		if err != nil {
			return nil, err
		}
		if full != nil {
			out = append(out, *full)
		}
	}
	return out, nil
}

func (e *Engine) Get(challengeID int64) (*model.ChallengeWithProgress, error) {
	ch, err := e.challenges.GetByID(challengeID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, apperr.NotFound("challenge", challengeID)
	}
	return ch, nil
}
