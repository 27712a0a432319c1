package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorewheel/internal/model"
)

type ProgressionStore struct {
	db *sql.DB
}

func NewProgressionStore(db *sql.DB) *ProgressionStore {
	return &ProgressionStore{db: db}
}

func scanAchievement(s scanner) (*model.Achievement, error) {
	var a model.Achievement
	var reqType string
	err := s.Scan(&a.ID, &a.Key, &a.Name, &a.Description, &reqType, &a.RequirementValue, &a.XPReward, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.RequirementType = model.RequirementType(reqType)
	return &a, nil
}

const achievementCols = `a.id, a.slug, a.name, a.description, a.requirement_type, a.requirement_value, a.xp_reward, a.created_at`

// UpsertAchievement inserts a catalog entry or refreshes the one with the
// same key.
func (s *ProgressionStore) UpsertAchievement(a *model.Achievement) (*model.Achievement, error) {
	_, err := s.db.Exec(
		`INSERT INTO achievements (slug, name, description, requirement_type, requirement_value, xp_reward)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			requirement_type = excluded.requirement_type,
			requirement_value = excluded.requirement_value,
			xp_reward = excluded.xp_reward`,
		a.Key, a.Name, a.Description, string(a.RequirementType), a.RequirementValue, a.XPReward,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert achievement: %w", err)
	}

	out, err := scanAchievement(s.db.QueryRow(`SELECT `+achievementCols+` FROM achievements a WHERE a.slug = ?`, a.Key))
	if err != nil {
		return nil, fmt.Errorf("get achievement: %w", err)
	}
	return out, nil
}

func (s *ProgressionStore) ListAchievements() ([]model.Achievement, error) {
	return s.listAchievements(`SELECT ` + achievementCols + ` FROM achievements a ORDER BY a.requirement_type ASC, a.requirement_value ASC, a.id ASC`)
}

// ListLockedForMember returns the catalog entries the member has not
// unlocked yet.
func (s *ProgressionStore) ListLockedForMember(memberID int64) ([]model.Achievement, error) {
	return s.listAchievements(
		`SELECT `+achievementCols+` FROM achievements a
		WHERE NOT EXISTS (
			SELECT 1 FROM member_achievements ma WHERE ma.achievement_id = a.id AND ma.member_id = ?
		)
		ORDER BY a.id ASC`,
		memberID,
	)
}

func (s *ProgressionStore) listAchievements(query string, args ...any) ([]model.Achievement, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	var achievements []model.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		achievements = append(achievements, *a)
	}
	return achievements, rows.Err()
}

// Unlock records the achievement for the member. It reports false when the
// pair was already unlocked; the unique constraint makes concurrent unlocks
// insert at most one row.
func (s *ProgressionStore) Unlock(memberID, achievementID int64, at time.Time) (bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO member_achievements (member_id, achievement_id, unlocked_at) VALUES (?, ?, ?)
		ON CONFLICT(member_id, achievement_id) DO NOTHING`,
		memberID, achievementID, dbTime(at),
	)
	if err != nil {
		return false, fmt.Errorf("unlock achievement: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *ProgressionStore) ListUnlocked(memberID int64) ([]model.UnlockedAchievement, error) {
	rows, err := s.db.Query(
		`SELECT `+achievementCols+`, ma.unlocked_at FROM member_achievements ma
		JOIN achievements a ON a.id = ma.achievement_id
		WHERE ma.member_id = ?
		ORDER BY ma.unlocked_at DESC, ma.id DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list unlocked achievements: %w", err)
	}
	defer rows.Close()

	var unlocked []model.UnlockedAchievement
	for rows.Next() {
		var u model.UnlockedAchievement
		var reqType string
		err := rows.Scan(&u.ID, &u.Key, &u.Name, &u.Description, &reqType, &u.RequirementValue,
			&u.XPReward, &u.CreatedAt, &u.UnlockedAt)
		if err != nil {
			return nil, fmt.Errorf("scan unlocked achievement: %w", err)
		}
		u.RequirementType = model.RequirementType(reqType)
		unlocked = append(unlocked, u)
	}
	return unlocked, rows.Err()
}

// AwardXP runs grant against the member and appends the ledger entries it
// returns, in one transaction. It returns nil when the member does not exist.
func (s *ProgressionStore) AwardXP(memberID int64, at time.Time, grant MemberGrant) (*model.Member, error) {
	var member *model.Member
	err := withTx(s.db, func(tx *sql.Tx) error {
		var err error
		member, err = applyGrant(tx, memberID, at, grant)
		return err
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// ListXP returns the member's ledger, newest first. limit <= 0 means all.
func (s *ProgressionStore) ListXP(memberID int64, limit int) ([]model.XPTransaction, error) {
	query := `SELECT id, member_id, amount, source, reference, created_at FROM xp_transactions WHERE member_id = ? ORDER BY id DESC`
	args := []any{memberID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list xp transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.XPTransaction
	for rows.Next() {
		var t model.XPTransaction
		var ref sql.NullString
		if err := rows.Scan(&t.ID, &t.MemberID, &t.Amount, &t.Source, &ref, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan xp transaction: %w", err)
		}
		if ref.Valid {
			r := ref.String
			t.Reference = &r
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
