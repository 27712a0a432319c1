package model

import "time"

type RequirementType string

const (
	RequirementTasksCompleted       RequirementType = "tasks_completed"
	RequirementWeeksActive          RequirementType = "weeks_active"
	RequirementStreakDays           RequirementType = "streak_days"
	RequirementTotalXP              RequirementType = "total_xp"
	RequirementTotalPoints          RequirementType = "total_points"
	RequirementChallengesCompleted  RequirementType = "challenges_completed"
	RequirementGroupChallenges      RequirementType = "group_challenges"
	RequirementIndividualChallenges RequirementType = "individual_challenges"
	RequirementSpeedChallenges      RequirementType = "speed_challenges"
	RequirementPerfectChallenges    RequirementType = "perfect_challenges"
	RequirementMasteryLevel         RequirementType = "mastery_level"
	RequirementOnboarding           RequirementType = "onboarding"
)

type Achievement struct {
	ID               int64           `json:"id"`
	Key              string          `json:"key"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	RequirementType  RequirementType `json:"requirement_type"`
	RequirementValue int             `json:"requirement_value"`
	XPReward         int             `json:"xp_reward"`
	CreatedAt        time.Time       `json:"created_at"`
}

type MemberAchievement struct {
	ID            int64     `json:"id"`
	MemberID      int64     `json:"member_id"`
	AchievementID int64     `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// XP ledger sources.
const (
	XPSourceChallenge   = "challenge"
	XPSourceAchievement = "achievement"
	XPSourceBonus       = "bonus"
	XPSourceLevelUp     = "level_up"
)

type XPTransaction struct {
	ID        int64     `json:"id"`
	MemberID  int64     `json:"member_id"`
	Amount    int       `json:"amount"`
	Source    string    `json:"source"`
	Reference *string   `json:"reference"`
	CreatedAt time.Time `json:"created_at"`
}

// XPAward describes the effect of one XP grant on a member.
type XPAward struct {
	MemberID  int64  `json:"member_id"`
	Amount    int    `json:"amount"`
	OldXP     int    `json:"old_xp"`
	NewXP     int    `json:"new_xp"`
	OldLevel  string `json:"old_level"`
	NewLevel  string `json:"new_level"`
	LeveledUp bool   `json:"leveled_up"`
}

type UnlockedAchievement struct {
	Achievement
	UnlockedAt time.Time `json:"unlocked_at"`
}
