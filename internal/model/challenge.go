package model

import (
	"encoding/json"
	"time"
)

type ChallengeCategory string

const (
	CategoryTaskCompletion ChallengeCategory = "task_completion"
	CategoryStreak         ChallengeCategory = "streak"
	CategoryVariety        ChallengeCategory = "variety"
	CategoryMastery        ChallengeCategory = "mastery"
	CategoryCollective     ChallengeCategory = "collective"
	CategoryTeamGoal       ChallengeCategory = "team_goal"
)

type ChallengeType string

const (
	ChallengeIndividual ChallengeType = "individual"
	ChallengeGroup      ChallengeType = "group"
)

type DurationType string

const (
	DurationDaily        DurationType = "daily"
	DurationQuarterCycle DurationType = "quarter_cycle"
	DurationHalfCycle    DurationType = "half_cycle"
	DurationFullCycle    DurationType = "full_cycle"
	DurationMultiCycle   DurationType = "multi_cycle"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

type ChallengeStatus string

const (
	ChallengeActive    ChallengeStatus = "active"
	ChallengeCompleted ChallengeStatus = "completed"
	ChallengeExpired   ChallengeStatus = "expired"
)

// ChallengeRequirements carries the thresholds a template's category reads.
type ChallengeRequirements struct {
	Target           int  `json:"target,omitempty" yaml:"target"`
	TargetZones      int  `json:"target_zones,omitempty" yaml:"target_zones"`
	TargetTasks      int  `json:"target_tasks,omitempty" yaml:"target_tasks"`
	TargetPerMember  int  `json:"target_per_member,omitempty" yaml:"target_per_member"`
	AllStepsRequired bool `json:"all_steps_required,omitempty" yaml:"all_steps_required"`
}

type ChallengeTemplate struct {
	ID                 int64                 `json:"id"`
	Key                string                `json:"key"`
	Name               string                `json:"name"`
	Description        string                `json:"description"`
	Category           ChallengeCategory     `json:"category"`
	Type               ChallengeType         `json:"challenge_type"`
	DurationType       DurationType          `json:"duration_type"`
	DurationMultiplier float64               `json:"duration_multiplier"`
	Difficulty         Difficulty            `json:"difficulty"`
	BaseXP             int                   `json:"base_xp"`
	Requirements       ChallengeRequirements `json:"requirements"`
	MinMasteryLevel    string                `json:"min_mastery_level"`
	MinTasksCompleted  int                   `json:"min_tasks_completed"`
	Active             bool                  `json:"is_active"`
	CreatedAt          time.Time             `json:"created_at"`
}

type ActiveChallenge struct {
	ID           int64                 `json:"id"`
	TemplateID   int64                 `json:"template_id"`
	HomeID       int64                 `json:"home_id"`
	CreatedBy    *int64                `json:"created_by"`
	Name         string                `json:"name"`
	Category     ChallengeCategory     `json:"category"`
	Type         ChallengeType         `json:"challenge_type"`
	DurationType DurationType          `json:"duration_type"`
	Requirements ChallengeRequirements `json:"requirements"`
	Status       ChallengeStatus       `json:"status"`
	StartDate    time.Time             `json:"start_date"`
	EndDate      time.Time             `json:"end_date"`
	XPReward     int                   `json:"xp_reward"`
	CreatedAt    time.Time             `json:"created_at"`
}

// Open reports whether progress may still be recorded at t.
func (c *ActiveChallenge) Open(t time.Time) bool {
	return c.Status == ChallengeActive && !t.Before(c.StartDate) && t.Before(c.EndDate)
}

// ChallengeProgress is one member's tracking row. Progress holds the
// category-specific payload; XPAwarded stays zero until the reward is claimed.
type ChallengeProgress struct {
	ID          int64             `json:"id"`
	ChallengeID int64             `json:"challenge_id"`
	MemberID    int64             `json:"member_id"`
	Category    ChallengeCategory `json:"category"`
	Progress    json.RawMessage   `json:"progress"`
	Completed   bool              `json:"is_completed"`
	CompletedAt *time.Time        `json:"completed_at"`
	XPAwarded   int               `json:"xp_awarded"`
	ClaimedAt   *time.Time        `json:"claimed_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Claimed reports whether the reward for this row has been paid out.
func (p *ChallengeProgress) Claimed() bool {
	return p.XPAwarded != 0
}

type ChallengeWithProgress struct {
	ActiveChallenge
	Progress []ChallengeProgress `json:"progress"`
}
