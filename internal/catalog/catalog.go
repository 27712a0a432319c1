// Package catalog holds the achievement and challenge template definitions
// shipped with the service and syncs them into the store.
package catalog

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/chorewheel/internal/challenge"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/progression"
	"github.com/dukerupert/chorewheel/internal/store"
)

//go:embed catalog.yaml
var embedded []byte

type Achievement struct {
	Key              string                `yaml:"key"`
	Name             string                `yaml:"name"`
	Description      string                `yaml:"description"`
	RequirementType  model.RequirementType `yaml:"requirement_type"`
	RequirementValue int                   `yaml:"requirement_value"`
	XPReward         int                   `yaml:"xp_reward"`
}

type Template struct {
	Key                string                      `yaml:"key"`
	Name               string                      `yaml:"name"`
	Description        string                      `yaml:"description"`
	Category           model.ChallengeCategory     `yaml:"category"`
	Type               model.ChallengeType         `yaml:"challenge_type"`
	DurationType       model.DurationType          `yaml:"duration_type"`
	DurationMultiplier float64                     `yaml:"duration_multiplier"`
	Difficulty         model.Difficulty            `yaml:"difficulty"`
	BaseXP             int                         `yaml:"base_xp"`
	Requirements       model.ChallengeRequirements `yaml:"requirements"`
	MinMasteryLevel    string                      `yaml:"min_mastery_level"`
	MinTasksCompleted  int                         `yaml:"min_tasks_completed"`
	Retired            bool                        `yaml:"retired"`
}

type Catalog struct {
	Achievements []Achievement `yaml:"achievements"`
	Challenges   []Template    `yaml:"challenges"`
}

// Load reads the catalog at path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	data := embedded
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = b
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var requirementTypes = map[model.RequirementType]bool{
	model.RequirementTasksCompleted:       true,
	model.RequirementWeeksActive:          true,
	model.RequirementStreakDays:           true,
	model.RequirementTotalXP:              true,
	model.RequirementTotalPoints:          true,
	model.RequirementChallengesCompleted:  true,
	model.RequirementGroupChallenges:      true,
	model.RequirementIndividualChallenges: true,
	model.RequirementSpeedChallenges:      true,
	model.RequirementPerfectChallenges:    true,
	model.RequirementMasteryLevel:         true,
	model.RequirementOnboarding:           true,
}

func (c *Catalog) validate() error {
	seen := make(map[string]bool)
	for _, a := range c.Achievements {
		if a.Key == "" || a.Name == "" {
			return fmt.Errorf("achievement %q: key and name are required", a.Key)
		}
		if seen["a:"+a.Key] {
			return fmt.Errorf("achievement %q: duplicate key", a.Key)
		}
		seen["a:"+a.Key] = true
		if !requirementTypes[a.RequirementType] {
			return fmt.Errorf("achievement %q: unknown requirement type %q", a.Key, a.RequirementType)
		}
		if a.XPReward < 0 {
			return fmt.Errorf("achievement %q: negative xp_reward", a.Key)
		}
	}
	for _, t := range c.Challenges {
		if t.Key == "" || t.Name == "" {
			return fmt.Errorf("challenge %q: key and name are required", t.Key)
		}
		if seen["c:"+t.Key] {
			return fmt.Errorf("challenge %q: duplicate key", t.Key)
		}
		seen["c:"+t.Key] = true
		if _, err := challenge.Initial(t.Category, t.Requirements); err != nil {
			return fmt.Errorf("challenge %q: %w", t.Key, err)
		}
		if t.Type != model.ChallengeIndividual && t.Type != model.ChallengeGroup {
			return fmt.Errorf("challenge %q: unknown challenge_type %q", t.Key, t.Type)
		}
		if t.MinMasteryLevel != "" && !progression.ValidLevel(t.MinMasteryLevel) {
			return fmt.Errorf("challenge %q: unknown mastery level %q", t.Key, t.MinMasteryLevel)
		}
	}
	return nil
}

// Sync upserts every entry by key. A failing entry is logged and skipped so
// one bad row does not block the rest; the count of synced entries is
// returned.
func Sync(c *Catalog, progress *store.ProgressionStore, challenges *store.ChallengeStore, logger *slog.Logger) (int, error) {
	synced := 0
	for _, a := range c.Achievements {
		_, err := progress.UpsertAchievement(&model.Achievement{
			Key:              a.Key,
			Name:             a.Name,
			Description:      a.Description,
			RequirementType:  a.RequirementType,
			RequirementValue: a.RequirementValue,
			XPReward:         a.XPReward,
		})
		if err != nil {
			logger.Error("failed to sync achievement", "key", a.Key, "error", err)
			continue
		}
		synced++
	}

	for _, t := range c.Challenges {
		level := t.MinMasteryLevel
		if level == "" {
			level = progression.Novice
		}
		_, err := challenges.UpsertTemplate(&model.ChallengeTemplate{
			Key:                t.Key,
			Name:               t.Name,
			Description:        t.Description,
			Category:           t.Category,
			Type:               t.Type,
			DurationType:       t.DurationType,
			DurationMultiplier: t.DurationMultiplier,
			Difficulty:         t.Difficulty,
			BaseXP:             t.BaseXP,
			Requirements:       t.Requirements,
			MinMasteryLevel:    level,
			MinTasksCompleted:  t.MinTasksCompleted,
			Active:             !t.Retired,
		})
		if err != nil {
			logger.Error("failed to sync challenge template", "key", t.Key, "error", err)
			continue
		}
		synced++
	}

	if synced == 0 && len(c.Achievements)+len(c.Challenges) > 0 {
		return 0, fmt.Errorf("sync catalog: no entries written")
	}
	logger.Info("catalog synced", "entries", synced)
	return synced, nil
}
