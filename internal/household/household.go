// Package household manages homes, their members, zones and tasks: the
// records the rotation engine deals from.
package household

import (
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/chorewheel/internal/apperr"
	"github.com/dukerupert/chorewheel/internal/cycle"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/store"
	"github.com/dukerupert/chorewheel/internal/telemetry"
	"github.com/dukerupert/chorewheel/internal/validation"
)

// AchievementChecker lets a new member's onboarding achievements unlock
// as soon as they join.
type AchievementChecker interface {
	CheckAchievements(memberID int64) ([]model.Achievement, error)
}

type Service struct {
	homes        *store.HomeStore
	members      *store.MemberStore
	tasks        *store.TaskStore
	achievements AchievementChecker
	logger       *slog.Logger

	Clock func() time.Time
}

// NewService wires the household operations. achievements may be nil.
func NewService(hs *store.HomeStore, ms *store.MemberStore, ts *store.TaskStore, achievements AchievementChecker, logger *slog.Logger) *Service {
	return &Service{homes: hs, members: ms, tasks: ts, achievements: achievements, logger: logger, Clock: time.Now}
}

type CreateHomeRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	RotationPolicy string `json:"rotation_policy" validate:"required,policy"`
	GoalPercentage int    `json:"goal_percentage" validate:"min=1,max=100"`
	AutoRotation   bool   `json:"auto_rotation"`
	CreatorName    string `json:"creator_name" validate:"required,max=100"`
}

// CreateHome creates a home and its first member, recorded as the creator.
func (s *Service) CreateHome(req CreateHomeRequest) (*model.Home, *model.Member, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.CreatorName = strings.TrimSpace(req.CreatorName)
	if err := validation.Struct(req); err != nil {
		return nil, nil, err
	}

	home, err := s.homes.Create(req.Name, cycle.Policy(req.RotationPolicy), req.GoalPercentage, req.AutoRotation)
	if err != nil {
		return nil, nil, err
	}
	member, err := s.members.Create(home.ID, req.CreatorName, s.Clock().UTC())
	if err != nil {
		return nil, nil, err
	}
	if err := s.homes.SetCreatedBy(home.ID, member.ID); err != nil {
		return nil, nil, err
	}
	home.CreatedBy = &member.ID

	s.logger.Info("home created", "home_id", home.ID, "member_id", member.ID, "policy", home.RotationPolicy)
	s.onboard(member.ID)
	return home, member, nil
}

func (s *Service) GetHome(id int64) (*model.Home, error) {
	h, err := s.homes.GetByID(id)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, apperr.NotFound("home", id)
	}
	return h, nil
}

type SettingsRequest struct {
	RotationPolicy string `json:"rotation_policy" validate:"required,policy"`
	GoalPercentage int    `json:"goal_percentage" validate:"min=1,max=100"`
	AutoRotation   bool   `json:"auto_rotation"`
}

// UpdateSettings validates before touching the home; an out-of-range goal
// leaves the stored settings unchanged.
func (s *Service) UpdateSettings(homeID int64, req SettingsRequest) (*model.Home, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if _, err := s.GetHome(homeID); err != nil {
		return nil, err
	}
	h, err := s.homes.UpdateSettings(homeID, cycle.Policy(req.RotationPolicy), req.GoalPercentage, req.AutoRotation)
	if err != nil {
		return nil, err
	}
	s.logger.Info("home settings updated", "home_id", homeID, "policy", h.RotationPolicy,
		"goal", h.GoalPercentage, "auto_rotation", h.AutoRotation)
	return h, nil
}

type JoinRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (s *Service) AddMember(homeID int64, req JoinRequest) (*model.Member, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if _, err := s.GetHome(homeID); err != nil {
		return nil, err
	}
	m, err := s.members.Create(homeID, req.Name, s.Clock().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Info("member joined", "home_id", homeID, "member_id", m.ID)
	s.onboard(m.ID)
	return m, nil
}

func (s *Service) onboard(memberID int64) {
	if s.achievements == nil {
		return
	}
	if _, err := s.achievements.CheckAchievements(memberID); err != nil {
		telemetry.SideEffectFailures.WithLabelValues("achievements").Inc()
		s.logger.Warn("onboarding achievement check failed", "member_id", memberID, "error", err)
	}
}

// GetMember returns the member if it belongs to homeID.
func (s *Service) GetMember(homeID, memberID int64) (*model.Member, error) {
	m, err := s.members.GetByID(memberID)
	if err != nil {
		return nil, err
	}
	if m == nil || m.HomeID != homeID {
		return nil, apperr.NotFound("member", memberID)
	}
	return m, nil
}

// DeactivateMember removes a member from future rotations. Past
// assignments, points and XP stay attached to the record.
func (s *Service) DeactivateMember(homeID, memberID int64) (*model.Member, error) {
	m, err := s.GetMember(homeID, memberID)
	if err != nil {
		return nil, err
	}
	if !m.Active() {
		return m, nil
	}
	if err := s.members.Deactivate(memberID); err != nil {
		return nil, err
	}
	s.logger.Info("member deactivated", "home_id", homeID, "member_id", memberID)
	return s.members.GetByID(memberID)
}

func (s *Service) ListMembers(homeID int64) ([]model.Member, error) {
	return s.members.ListByHome(homeID)
}

// Leaderboard lists active members by points, then XP.
func (s *Service) Leaderboard(homeID int64) ([]model.Member, error) {
	if _, err := s.GetHome(homeID); err != nil {
		return nil, err
	}
	return s.members.Leaderboard(homeID)
}

type ZoneRequest struct {
	Name string `json:"name" validate:"required,max=60"`
}

func (s *Service) CreateZone(homeID int64, req ZoneRequest) (*model.Zone, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	return s.tasks.CreateZone(homeID, req.Name)
}

func (s *Service) ListZones(homeID int64) ([]model.Zone, error) {
	return s.tasks.ListZones(homeID)
}

type TaskRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Description  string `json:"description" validate:"max=500"`
	ZoneID       *int64 `json:"zone_id"`
	EffortPoints int    `json:"effort_points" validate:"min=1,max=100"`
	Frequency    string `json:"frequency" validate:"required,policy"`
}

func (s *Service) CreateTask(homeID int64, req TaskRequest) (*model.Task, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.ZoneID != nil {
		z, err := s.tasks.GetZone(*req.ZoneID)
		if err != nil {
			return nil, err
		}
		if z == nil || z.HomeID != homeID {
			return nil, apperr.NotFound("zone", *req.ZoneID)
		}
	}
	t, err := s.tasks.Create(homeID, req.ZoneID, req.Name, req.Description, req.EffortPoints, cycle.Policy(req.Frequency))
	if err != nil {
		return nil, err
	}
	s.logger.Info("task created", "home_id", homeID, "task_id", t.ID, "frequency", t.Frequency)
	return t, nil
}

// SetTaskActive toggles whether a task takes part in auto-assignment.
func (s *Service) SetTaskActive(homeID, taskID int64, active bool) (*model.Task, error) {
	t, err := s.tasks.GetByID(taskID)
	if err != nil {
		return nil, err
	}
	if t == nil || t.HomeID != homeID {
		return nil, apperr.NotFound("task", taskID)
	}
	return s.tasks.SetActive(taskID, active)
}

func (s *Service) ListTasks(homeID int64) ([]model.Task, error) {
	return s.tasks.ListByHome(homeID)
}
