package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/chorewheel/internal/cycle"
	"github.com/dukerupert/chorewheel/internal/model"
)

type HomeStore struct {
	db *sql.DB
}

func NewHomeStore(db *sql.DB) *HomeStore {
	return &HomeStore{db: db}
}

func scanHome(s scanner) (*model.Home, error) {
	var h model.Home
	var createdBy sql.NullInt64
	var policy string
	err := s.Scan(&h.ID, &h.Name, &createdBy, &policy, &h.GoalPercentage, &h.AutoRotation, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	h.CreatedBy = int64Ptr(createdBy)
	h.RotationPolicy = cycle.Policy(policy)
	return &h, nil
}

const homeCols = `id, name, created_by, rotation_policy, goal_percentage, auto_rotation, created_at, updated_at`

func (s *HomeStore) Create(name string, policy cycle.Policy, goalPercentage int, autoRotation bool) (*model.Home, error) {
	result, err := s.db.Exec(
		`INSERT INTO homes (name, rotation_policy, goal_percentage, auto_rotation) VALUES (?, ?, ?, ?)`,
		name, string(policy), goalPercentage, autoRotation,
	)
	if err != nil {
		return nil, fmt.Errorf("insert home: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *HomeStore) GetByID(id int64) (*model.Home, error) {
	row := s.db.QueryRow(`SELECT `+homeCols+` FROM homes WHERE id = ?`, id)
	h, err := scanHome(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get home: %w", err)
	}
	return h, nil
}

func (s *HomeStore) SetCreatedBy(id, memberID int64) error {
	_, err := s.db.Exec(`UPDATE homes SET created_by = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, memberID, id)
	if err != nil {
		return fmt.Errorf("set home creator: %w", err)
	}
	return nil
}

func (s *HomeStore) UpdateSettings(id int64, policy cycle.Policy, goalPercentage int, autoRotation bool) (*model.Home, error) {
	_, err := s.db.Exec(
		`UPDATE homes SET rotation_policy = ?, goal_percentage = ?, auto_rotation = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(policy), goalPercentage, autoRotation, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update home settings: %w", err)
	}
	return s.GetByID(id)
}

// ListAutoRotating returns homes whose cycles are rolled over by the sweeper.
func (s *HomeStore) ListAutoRotating() ([]model.Home, error) {
	rows, err := s.db.Query(`SELECT ` + homeCols + ` FROM homes WHERE auto_rotation = 1 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list auto-rotating homes: %w", err)
	}
	defer rows.Close()

	var homes []model.Home
	for rows.Next() {
		h, err := scanHome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan home: %w", err)
		}
		homes = append(homes, *h)
	}
	return homes, rows.Err()
}
