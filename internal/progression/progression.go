package progression

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/chorewheel/internal/apperr"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/store"
	"github.com/dukerupert/chorewheel/internal/telemetry"
)

type Engine struct {
	members  *store.MemberStore
	progress *store.ProgressionStore
	logger   *slog.Logger

	Clock func() time.Time
}

func NewEngine(ms *store.MemberStore, ps *store.ProgressionStore, logger *slog.Logger) *Engine {
	return &Engine{members: ms, progress: ps, logger: logger, Clock: time.Now}
}

// Grant returns a store.MemberGrant that adds amount XP to a member,
// recomputes the mastery level and yields the ledger entries: the award
// itself, plus a zero-amount level_up entry when the level changed. award
// is filled in when the grant runs.
func Grant(amount int, source string, ref *string, award *model.XPAward) store.MemberGrant {
	return func(m *model.Member) []model.XPTransaction {
		oldLevel := m.MasteryLevel
		oldXP := m.TotalXP

		m.TotalXP += amount
		m.MasteryLevel = LevelForXP(m.TotalXP)

		entries := []model.XPTransaction{{MemberID: m.ID, Amount: amount, Source: source, Reference: ref}}
		if m.MasteryLevel != oldLevel {
			level := m.MasteryLevel
			entries = append(entries, model.XPTransaction{MemberID: m.ID, Amount: 0, Source: model.XPSourceLevelUp, Reference: &level})
		}

		if award != nil {
			*award = model.XPAward{
				MemberID:  m.ID,
				Amount:    amount,
				OldXP:     oldXP,
				NewXP:     m.TotalXP,
				OldLevel:  oldLevel,
				NewLevel:  m.MasteryLevel,
				LeveledUp: m.MasteryLevel != oldLevel,
			}
		}
		return entries
	}
}

// AwardXP adds amount XP to the member, recomputing the level from the new
// running total, and appends the ledger entries in the same transaction.
func (e *Engine) AwardXP(memberID int64, amount int, source string, ref *string) (*model.XPAward, error) {
	if amount <= 0 {
		return nil, apperr.Validation("xp amount must be positive, got %d", amount)
	}
	if source == "" {
		return nil, apperr.Validation("xp source is required")
	}

	var award model.XPAward
	m, err := e.progress.AwardXP(memberID, e.Clock(), Grant(amount, source, ref, &award))
	if err != nil {
		return nil, fmt.Errorf("award xp: %w", err)
	}
	if m == nil {
		return nil, apperr.NotFound("member", memberID)
	}

	telemetry.XPAwarded.WithLabelValues(source).Add(float64(amount))
	if award.LeveledUp {
		e.logger.Info("level up", "member_id", memberID, "from", award.OldLevel, "to", award.NewLevel)
	}
	return &award, nil
}

// Qualifies reports whether m meets a's requirement.
func Qualifies(a model.Achievement, m *model.Member) bool {
	v := a.RequirementValue
	switch a.RequirementType {
	case model.RequirementOnboarding:
		return true
	case model.RequirementTasksCompleted:
		return m.TasksCompleted >= v
	case model.RequirementWeeksActive:
		return m.WeeksActive >= v
	case model.RequirementStreakDays:
		return m.CurrentStreak >= v
	case model.RequirementTotalXP:
		return m.TotalXP >= v
	case model.RequirementTotalPoints:
		return m.TotalPoints >= v
	case model.RequirementChallengesCompleted:
		return m.ChallengesCompleted >= v
	case model.RequirementGroupChallenges:
		return m.GroupChallengesCompleted >= v
	case model.RequirementIndividualChallenges:
		return m.IndividualChallengesCompleted >= v
	case model.RequirementSpeedChallenges:
		return m.SpeedChallengesCompleted >= v
	case model.RequirementPerfectChallenges:
		return m.PerfectChallengesCompleted >= v
	case model.RequirementMasteryLevel:
		return Rank(m.MasteryLevel) >= v
	default:
		return false
	}
}

// CheckAchievements unlocks every locked achievement the member now
// qualifies for and returns the newly unlocked ones. Onboarding
// achievements unlock on the first run. Achievement XP rewards are paid as
// they unlock, and the check repeats until a pass unlocks nothing, so an
// XP reward can itself satisfy an XP threshold.
func (e *Engine) CheckAchievements(memberID int64) ([]model.Achievement, error) {
	m, err := e.members.GetByID(memberID)
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	if m == nil {
		return nil, apperr.NotFound("member", memberID)
	}

	var unlocked []model.Achievement
	for {
		locked, err := e.progress.ListLockedForMember(memberID)
		if err != nil {
			return unlocked, err
		}

		var rewarded bool
		for _, a := range locked {
			if !Qualifies(a, m) {
				continue
			}
			inserted, err := e.progress.Unlock(memberID, a.ID, e.Clock())
			if err != nil {
				return unlocked, err
			}
			if !inserted {
				continue
			}
			unlocked = append(unlocked, a)
			telemetry.AchievementsUnlocked.Inc()
			e.logger.Info("achievement unlocked", "member_id", memberID, "achievement", a.Key)

			if a.XPReward > 0 {
				key := a.Key
				if _, err := e.AwardXP(memberID, a.XPReward, model.XPSourceAchievement, &key); err != nil {
					return unlocked, err
				}
				rewarded = true
			}
		}
		if !rewarded {
			return unlocked, nil
		}

		m, err = e.members.GetByID(memberID)
		if err != nil {
			return unlocked, fmt.Errorf("get member: %w", err)
		}
	}
}

// History returns the member's XP ledger, newest first.
func (e *Engine) History(memberID int64, limit int) ([]model.XPTransaction, error) {
	return e.progress.ListXP(memberID, limit)
}

// Unlocked returns the member's unlocked achievements, newest first.
func (e *Engine) Unlocked(memberID int64) ([]model.UnlockedAchievement, error) {
	return e.progress.ListUnlocked(memberID)
}
