package challenge

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/dukerupert/chorewheel/internal/completion"
	"github.com/dukerupert/chorewheel/internal/model"
)

// Event is one task completion as seen by a progress payload.
type Event struct {
	TaskID int64
	ZoneID *int64
	At     time.Time
}

// Progress is the category-specific payload of a progress row. The set of
// implementations is closed; each carries its own completion rule.
type Progress interface {
	Category() model.ChallengeCategory
	Complete() bool
	record(ev Event)
}

type TaskCompletionProgress struct {
	CompletedTaskIDs []int64 `json:"completed_task_ids"`
	Target           int     `json:"target"`
}

func (p *TaskCompletionProgress) Category() model.ChallengeCategory {
	return model.CategoryTaskCompletion
}
func (p *TaskCompletionProgress) Complete() bool { return len(p.CompletedTaskIDs) >= p.Target }
func (p *TaskCompletionProgress) record(ev Event) {
	p.CompletedTaskIDs = append(p.CompletedTaskIDs, ev.TaskID)
}

type StreakProgress struct {
	CurrentStreak  int        `json:"current_streak"`
	Target         int        `json:"target"`
	LastCompletion *time.Time `json:"last_completion"`
}

func (p *StreakProgress) Category() model.ChallengeCategory { return model.CategoryStreak }
func (p *StreakProgress) Complete() bool                    { return p.CurrentStreak >= p.Target }
func (p *StreakProgress) record(ev Event) {
	p.CurrentStreak = completion.NextStreak(p.CurrentStreak, p.LastCompletion, ev.At)
	at := ev.At.UTC()
	p.LastCompletion = &at
}

type VarietyProgress struct {
	CompletedZones []int64 `json:"completed_zones"`
	CompletedTasks []int64 `json:"completed_tasks"`
	TargetZones    int     `json:"target_zones"`
	TargetTasks    int     `json:"target_tasks"`
}

func (p *VarietyProgress) Category() model.ChallengeCategory { return model.CategoryVariety }
func (p *VarietyProgress) Complete() bool {
	return len(p.CompletedZones) >= p.TargetZones && len(p.CompletedTasks) >= p.TargetTasks
}
func (p *VarietyProgress) record(ev Event) {
	if !slices.Contains(p.CompletedTasks, ev.TaskID) {
		p.CompletedTasks = append(p.CompletedTasks, ev.TaskID)
	}
	if ev.ZoneID != nil && !slices.Contains(p.CompletedZones, *ev.ZoneID) {
		p.CompletedZones = append(p.CompletedZones, *ev.ZoneID)
	}
}

// MasteryProgress counts completions toward Target. With AllStepsRequired
// each task counts once, so the target can only be met with distinct tasks.
type MasteryProgress struct {
	CompletedTaskIDs []int64 `json:"completed_task_ids"`
	Target           int     `json:"target"`
	AllStepsRequired bool    `json:"all_steps_required"`
}

func (p *MasteryProgress) Category() model.ChallengeCategory { return model.CategoryMastery }
func (p *MasteryProgress) Complete() bool                    { return len(p.CompletedTaskIDs) >= p.Target }
func (p *MasteryProgress) record(ev Event) {
	if p.AllStepsRequired && slices.Contains(p.CompletedTaskIDs, ev.TaskID) {
		return
	}
	p.CompletedTaskIDs = append(p.CompletedTaskIDs, ev.TaskID)
}

// CollectiveProgress tracks a shared total. The completer's row records the
// contribution; every participant's TeamTotal moves together.
type CollectiveProgress struct {
	MemberContribution int `json:"member_contribution"`
	TeamTotal          int `json:"team_total"`
	Target             int `json:"target"`
}

func (p *CollectiveProgress) Category() model.ChallengeCategory { return model.CategoryCollective }
func (p *CollectiveProgress) Complete() bool                    { return p.TeamTotal >= p.Target }
func (p *CollectiveProgress) record(Event)                      { p.MemberContribution++ }

type TeamGoalProgress struct {
	MemberCompleted int `json:"member_completed"`
	TargetPerMember int `json:"target_per_member"`
}

func (p *TeamGoalProgress) Category() model.ChallengeCategory { return model.CategoryTeamGoal }
func (p *TeamGoalProgress) Complete() bool                    { return p.MemberCompleted >= p.TargetPerMember }
func (p *TeamGoalProgress) record(Event)                      { p.MemberCompleted++ }

func atLeastOne(n int) int {
	return max(n, 1)
}

// Initial returns the empty payload for a category, with thresholds taken
// from the requirements. Missing thresholds default to 1.
func Initial(category model.ChallengeCategory, req model.ChallengeRequirements) (Progress, error) {
	switch category {
	case model.CategoryTaskCompletion:
		return &TaskCompletionProgress{CompletedTaskIDs: []int64{}, Target: atLeastOne(req.Target)}, nil
	case model.CategoryStreak:
		return &StreakProgress{Target: atLeastOne(req.Target)}, nil
	case model.CategoryVariety:
		return &VarietyProgress{
			CompletedZones: []int64{},
			CompletedTasks: []int64{},
			TargetZones:    req.TargetZones,
			TargetTasks:    atLeastOne(req.TargetTasks),
		}, nil
	case model.CategoryMastery:
		return &MasteryProgress{CompletedTaskIDs: []int64{}, Target: atLeastOne(req.Target), AllStepsRequired: req.AllStepsRequired}, nil
	case model.CategoryCollective:
		return &CollectiveProgress{Target: atLeastOne(req.Target)}, nil
	case model.CategoryTeamGoal:
		return &TeamGoalProgress{TargetPerMember: atLeastOne(req.TargetPerMember)}, nil
	default:
		return nil, fmt.Errorf("unknown challenge category %q", category)
	}
}

// Decode reads a stored payload as the variant its category names.
func Decode(category model.ChallengeCategory, raw json.RawMessage) (Progress, error) {
	var p Progress
	switch category {
	case model.CategoryTaskCompletion:
		p = &TaskCompletionProgress{}
	case model.CategoryStreak:
		p = &StreakProgress{}
	case model.CategoryVariety:
		p = &VarietyProgress{}
	case model.CategoryMastery:
		p = &MasteryProgress{}
	case model.CategoryCollective:
		p = &CollectiveProgress{}
	case model.CategoryTeamGoal:
		p = &TeamGoalProgress{}
	default:
		return nil, fmt.Errorf("unknown challenge category %q", category)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("decode %s progress: %w", category, err)
		}
	}
	return p, nil
}

func Encode(p Progress) (json.RawMessage, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s progress: %w", p.Category(), err)
	}
	return b, nil
}
