package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorewheel/internal/model"
)

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

func scanMember(s scanner) (*model.Member, error) {
	var m model.Member
	var status string
	var lastCompleted sql.NullTime
	err := s.Scan(
		&m.ID, &m.HomeID, &m.Name, &status,
		&m.TotalPoints, &m.TasksCompleted, &m.CurrentStreak, &lastCompleted, &m.WeeksActive,
		&m.MasteryLevel, &m.PointLevel, &m.TotalXP,
		&m.ChallengesCompleted, &m.GroupChallengesCompleted, &m.IndividualChallengesCompleted,
		&m.SpeedChallengesCompleted, &m.PerfectChallengesCompleted,
		&m.HasPIN, &m.JoinedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Status = model.MemberStatus(status)
	m.LastCompletedOn = timePtr(lastCompleted)
	return &m, nil
}

const memberCols = `id, home_id, name, status,
	total_points, tasks_completed, current_streak, last_completed_on, weeks_active,
	mastery_level, point_level, total_xp,
	challenges_completed, group_challenges_completed, individual_challenges_completed,
	speed_challenges_completed, perfect_challenges_completed,
	pin_hash IS NOT NULL, joined_at, created_at, updated_at`

func (s *MemberStore) Create(homeID int64, name string, joinedAt time.Time) (*model.Member, error) {
	result, err := s.db.Exec(
		`INSERT INTO members (home_id, name, joined_at) VALUES (?, ?, ?)`,
		homeID, name, dbTime(joinedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *MemberStore) GetByID(id int64) (*model.Member, error) {
	m, err := getMember(s.db, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// ListActiveByPoints returns a home's active members, fewest points first.
// Ties fall back to join order so rotation stays deterministic.
func (s *MemberStore) ListActiveByPoints(homeID int64) ([]model.Member, error) {
	return s.list(
		`SELECT `+memberCols+` FROM members WHERE home_id = ? AND status = 'active' ORDER BY total_points ASC, id ASC`,
		homeID,
	)
}

// Leaderboard returns a home's active members, most points first.
func (s *MemberStore) Leaderboard(homeID int64) ([]model.Member, error) {
	return s.list(
		`SELECT `+memberCols+` FROM members WHERE home_id = ? AND status = 'active' ORDER BY total_points DESC, total_xp DESC, id ASC`,
		homeID,
	)
}

func (s *MemberStore) ListByHome(homeID int64) ([]model.Member, error) {
	return s.list(`SELECT `+memberCols+` FROM members WHERE home_id = ? ORDER BY id ASC`, homeID)
}

func (s *MemberStore) list(query string, args ...any) ([]model.Member, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// Deactivate marks the member inactive. History rows keep referencing it.
func (s *MemberStore) Deactivate(id int64) error {
	_, err := s.db.Exec(`UPDATE members SET status = 'inactive', updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate member: %w", err)
	}
	return nil
}

func getMember(q querier, id int64) (*model.Member, error) {
	return scanMember(q.QueryRow(`SELECT `+memberCols+` FROM members WHERE id = ?`, id))
}

// saveMemberStats writes every counter a domain rule may change.
func saveMemberStats(q querier, m *model.Member) error {
	_, err := q.Exec(
		`UPDATE members SET
			total_points = ?, tasks_completed = ?, current_streak = ?, last_completed_on = ?, weeks_active = ?,
			mastery_level = ?, point_level = ?, total_xp = ?,
			challenges_completed = ?, group_challenges_completed = ?, individual_challenges_completed = ?,
			speed_challenges_completed = ?, perfect_challenges_completed = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		m.TotalPoints, m.TasksCompleted, m.CurrentStreak, nullDBTime(m.LastCompletedOn), m.WeeksActive,
		m.MasteryLevel, m.PointLevel, m.TotalXP,
		m.ChallengesCompleted, m.GroupChallengesCompleted, m.IndividualChallengesCompleted,
		m.SpeedChallengesCompleted, m.PerfectChallengesCompleted,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("update member stats: %w", err)
	}
	return nil
}

// MemberGrant mutates a member inside a transaction and returns the XP ledger
// entries that record the change.
type MemberGrant func(m *model.Member) []model.XPTransaction

func applyGrant(tx *sql.Tx, memberID int64, at time.Time, grant MemberGrant) (*model.Member, error) {
	m, err := getMember(tx, memberID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}

	entries := grant(m)
	if err := saveMemberStats(tx, m); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := insertXPTransaction(tx, memberID, e.Amount, e.Source, e.Reference, at); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func insertXPTransaction(q querier, memberID int64, amount int, source string, ref *string, at time.Time) error {
	var r sql.NullString
	if ref != nil {
		r = sql.NullString{String: *ref, Valid: true}
	}
	_, err := q.Exec(
		`INSERT INTO xp_transactions (member_id, amount, source, reference, created_at) VALUES (?, ?, ?, ?, ?)`,
		memberID, amount, source, r, dbTime(at),
	)
	if err != nil {
		return fmt.Errorf("insert xp transaction: %w", err)
	}
	return nil
}

func (s *MemberStore) SetPIN(id int64, hashedPIN string) error {
	_, err := s.db.Exec("UPDATE members SET pin_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", hashedPIN, id)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

func (s *MemberStore) ClearPIN(id int64) error {
	_, err := s.db.Exec("UPDATE members SET pin_hash = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}

// GetPINHash returns "" when the member has no PIN.
func (s *MemberStore) GetPINHash(id int64) (string, error) {
	var hash sql.NullString
	err := s.db.QueryRow("SELECT pin_hash FROM members WHERE id = ?", id).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get pin hash: %w", err)
	}
	return hash.String, nil
}
