package model

import "time"

type MemberStatus string

const (
	MemberActive   MemberStatus = "active"
	MemberInactive MemberStatus = "inactive"
)

// Member is a person taking part in a home's rotation. MasteryLevel is derived
// from TotalXP; PointLevel is the legacy derivation from TotalPoints.
type Member struct {
	ID              int64        `json:"id"`
	HomeID          int64        `json:"home_id"`
	Name            string       `json:"name"`
	Status          MemberStatus `json:"status"`
	TotalPoints     int          `json:"total_points"`
	TasksCompleted  int          `json:"tasks_completed"`
	CurrentStreak   int          `json:"current_streak"`
	LastCompletedOn *time.Time   `json:"last_completed_on"`
	WeeksActive     int          `json:"weeks_active"`
	MasteryLevel    string       `json:"mastery_level"`
	PointLevel      string       `json:"point_level"`
	TotalXP         int          `json:"total_xp"`
	ChallengeCounts
	HasPIN    bool      `json:"has_pin"`
	JoinedAt  time.Time `json:"joined_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *Member) Active() bool {
	return m.Status == MemberActive
}

// ChallengeCounts tracks claimed challenge rewards. Total counts every claim;
// exactly one of the other counters is incremented per claim.
type ChallengeCounts struct {
	ChallengesCompleted           int `json:"challenges_completed"`
	GroupChallengesCompleted      int `json:"group_challenges_completed"`
	IndividualChallengesCompleted int `json:"individual_challenges_completed"`
	SpeedChallengesCompleted      int `json:"speed_challenges_completed"`
	PerfectChallengesCompleted    int `json:"perfect_challenges_completed"`
}
