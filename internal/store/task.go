package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/chorewheel/internal/cycle"
	"github.com/dukerupert/chorewheel/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// --- Zone methods ---

func scanZone(s scanner) (*model.Zone, error) {
	var z model.Zone
	if err := s.Scan(&z.ID, &z.HomeID, &z.Name, &z.SortOrder, &z.CreatedAt); err != nil {
		return nil, err
	}
	return &z, nil
}

const zoneCols = `id, home_id, name, sort_order, created_at`

func (s *TaskStore) CreateZone(homeID int64, name string) (*model.Zone, error) {
	var maxOrder int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(sort_order), -1) FROM zones WHERE home_id = ?`, homeID).Scan(&maxOrder)
	if err != nil {
		return nil, fmt.Errorf("query max sort_order: %w", err)
	}

	result, err := s.db.Exec(
		`INSERT INTO zones (home_id, name, sort_order) VALUES (?, ?, ?)`,
		homeID, name, maxOrder+1,
	)
	if err != nil {
		return nil, fmt.Errorf("insert zone: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetZone(id)
}

func (s *TaskStore) GetZone(id int64) (*model.Zone, error) {
	z, err := scanZone(s.db.QueryRow(`SELECT `+zoneCols+` FROM zones WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get zone: %w", err)
	}
	return z, nil
}

func (s *TaskStore) ListZones(homeID int64) ([]model.Zone, error) {
	rows, err := s.db.Query(`SELECT `+zoneCols+` FROM zones WHERE home_id = ? ORDER BY sort_order ASC, name ASC`, homeID)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	defer rows.Close()

	var zones []model.Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		zones = append(zones, *z)
	}
	return zones, rows.Err()
}

// --- Task methods ---

func scanTask(s scanner) (*model.Task, error) {
	var t model.Task
	var zoneID sql.NullInt64
	var freq string
	err := s.Scan(&t.ID, &t.HomeID, &zoneID, &t.Name, &t.Description, &t.EffortPoints, &freq, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ZoneID = int64Ptr(zoneID)
	t.Frequency = cycle.Policy(freq)
	return &t, nil
}

const taskCols = `id, home_id, zone_id, name, description, effort_points, frequency, is_active, created_at, updated_at`

func (s *TaskStore) Create(homeID int64, zoneID *int64, name, description string, effortPoints int, frequency cycle.Policy) (*model.Task, error) {
	result, err := s.db.Exec(
		`INSERT INTO tasks (home_id, zone_id, name, description, effort_points, frequency) VALUES (?, ?, ?, ?, ?, ?)`,
		homeID, nullInt64(zoneID), name, description, effortPoints, string(frequency),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) GetByID(id int64) (*model.Task, error) {
	t, err := scanTask(s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListActive returns the tasks that take part in auto-assignment, in creation order.
func (s *TaskStore) ListActive(homeID int64) ([]model.Task, error) {
	return s.list(`SELECT `+taskCols+` FROM tasks WHERE home_id = ? AND is_active = 1 ORDER BY id ASC`, homeID)
}

func (s *TaskStore) ListByHome(homeID int64) ([]model.Task, error) {
	return s.list(`SELECT `+taskCols+` FROM tasks WHERE home_id = ? ORDER BY is_active DESC, name ASC`, homeID)
}

func (s *TaskStore) list(query string, args ...any) ([]model.Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) SetActive(id int64, active bool) (*model.Task, error) {
	_, err := s.db.Exec(`UPDATE tasks SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, active, id)
	if err != nil {
		return nil, fmt.Errorf("set task active: %w", err)
	}
	return s.GetByID(id)
}
