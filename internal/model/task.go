package model

import (
	"time"

	"github.com/dukerupert/chorewheel/internal/cycle"
)

type Task struct {
	ID           int64        `json:"id"`
	HomeID       int64        `json:"home_id"`
	ZoneID       *int64       `json:"zone_id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	EffortPoints int          `json:"effort_points"`
	Frequency    cycle.Policy `json:"frequency"`
	Active       bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
