package model

import (
	"time"

	"github.com/dukerupert/chorewheel/internal/cycle"
)

type Home struct {
	ID             int64        `json:"id"`
	Name           string       `json:"name"`
	CreatedBy      *int64       `json:"created_by"`
	RotationPolicy cycle.Policy `json:"rotation_policy"`
	GoalPercentage int          `json:"goal_percentage"`
	AutoRotation   bool         `json:"auto_rotation"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type Zone struct {
	ID        int64     `json:"id"`
	HomeID    int64     `json:"home_id"`
	Name      string    `json:"name"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}
