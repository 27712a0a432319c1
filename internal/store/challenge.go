package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/chorewheel/internal/model"
)

type ChallengeStore struct {
	db *sql.DB
}

func NewChallengeStore(db *sql.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

// --- Template methods ---

func scanTemplate(s scanner) (*model.ChallengeTemplate, error) {
	var t model.ChallengeTemplate
	var category, ctype, duration, difficulty, reqs string
	err := s.Scan(&t.ID, &t.Key, &t.Name, &t.Description, &category, &ctype, &duration,
		&t.DurationMultiplier, &difficulty, &t.BaseXP, &reqs, &t.MinMasteryLevel, &t.MinTasksCompleted,
		&t.Active, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Category = model.ChallengeCategory(category)
	t.Type = model.ChallengeType(ctype)
	t.DurationType = model.DurationType(duration)
	t.Difficulty = model.Difficulty(difficulty)
	if err := json.Unmarshal([]byte(reqs), &t.Requirements); err != nil {
		return nil, fmt.Errorf("decode requirements: %w", err)
	}
	return &t, nil
}

const templateCols = `id, slug, name, description, category, challenge_type, duration_type,
	duration_multiplier, difficulty, base_xp, requirements, min_mastery_level, min_tasks_completed,
	is_active, created_at`

// UpsertTemplate inserts a template or refreshes the one with the same key.
func (s *ChallengeStore) UpsertTemplate(t *model.ChallengeTemplate) (*model.ChallengeTemplate, error) {
	reqs, err := json.Marshal(t.Requirements)
	if err != nil {
		return nil, fmt.Errorf("encode requirements: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO challenge_templates
			(slug, name, description, category, challenge_type, duration_type, duration_multiplier,
			difficulty, base_xp, requirements, min_mastery_level, min_tasks_completed, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			challenge_type = excluded.challenge_type,
			duration_type = excluded.duration_type,
			duration_multiplier = excluded.duration_multiplier,
			difficulty = excluded.difficulty,
			base_xp = excluded.base_xp,
			requirements = excluded.requirements,
			min_mastery_level = excluded.min_mastery_level,
			min_tasks_completed = excluded.min_tasks_completed,
			is_active = excluded.is_active`,
		t.Key, t.Name, t.Description, string(t.Category), string(t.Type), string(t.DurationType), t.DurationMultiplier,
		string(t.Difficulty), t.BaseXP, string(reqs), t.MinMasteryLevel, t.MinTasksCompleted, t.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert challenge template: %w", err)
	}

	out, err := scanTemplate(s.db.QueryRow(`SELECT `+templateCols+` FROM challenge_templates WHERE slug = ?`, t.Key))
	if err != nil {
		return nil, fmt.Errorf("get challenge template: %w", err)
	}
	return out, nil
}

func (s *ChallengeStore) GetTemplate(id int64) (*model.ChallengeTemplate, error) {
	t, err := scanTemplate(s.db.QueryRow(`SELECT `+templateCols+` FROM challenge_templates WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge template: %w", err)
	}
	return t, nil
}

func (s *ChallengeStore) ListTemplates(activeOnly bool) ([]model.ChallengeTemplate, error) {
	query := `SELECT ` + templateCols + ` FROM challenge_templates`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY category ASC, base_xp ASC, id ASC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list challenge templates: %w", err)
	}
	defer rows.Close()

	var templates []model.ChallengeTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// --- Active challenge methods ---

func scanChallenge(s scanner) (*model.ActiveChallenge, error) {
	var c model.ActiveChallenge
	var createdBy sql.NullInt64
	var category, ctype, duration, reqs, status string
	err := s.Scan(&c.ID, &c.TemplateID, &c.HomeID, &createdBy, &c.Name, &category, &ctype, &duration,
		&reqs, &status, &c.StartDate, &c.EndDate, &c.XPReward, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.CreatedBy = int64Ptr(createdBy)
	c.Category = model.ChallengeCategory(category)
	c.Type = model.ChallengeType(ctype)
	c.DurationType = model.DurationType(duration)
	c.Status = model.ChallengeStatus(status)
	c.StartDate = c.StartDate.UTC()
	c.EndDate = c.EndDate.UTC()
	if err := json.Unmarshal([]byte(reqs), &c.Requirements); err != nil {
		return nil, fmt.Errorf("decode requirements: %w", err)
	}
	return &c, nil
}

const challengeCols = `c.id, c.template_id, c.home_id, c.created_by, c.name, c.category, c.challenge_type,
	c.duration_type, c.requirements, c.status, c.start_date, c.end_date, c.xp_reward, c.created_at`

func scanProgress(s scanner) (*model.ChallengeProgress, error) {
	var p model.ChallengeProgress
	var category, payload string
	var completedAt, claimedAt sql.NullTime
	err := s.Scan(&p.ID, &p.ChallengeID, &p.MemberID, &category, &payload, &p.Completed, &completedAt,
		&p.XPAwarded, &claimedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Category = model.ChallengeCategory(category)
	p.Progress = json.RawMessage(payload)
	p.CompletedAt = timePtr(completedAt)
	p.ClaimedAt = timePtr(claimedAt)
	return &p, nil
}

const progressCols = `id, challenge_id, member_id, category, progress, is_completed, completed_at,
	xp_awarded, claimed_at, updated_at`

// Create stores a challenge and one progress row per member, all starting
// from the same initial payload.
func (s *ChallengeStore) Create(c *model.ActiveChallenge, memberIDs []int64, initial json.RawMessage) (*model.ChallengeWithProgress, error) {
	reqs, err := json.Marshal(c.Requirements)
	if err != nil {
		return nil, fmt.Errorf("encode requirements: %w", err)
	}

	var out *model.ChallengeWithProgress
	err = withTx(s.db, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			`INSERT INTO active_challenges
				(template_id, home_id, created_by, name, category, challenge_type, duration_type,
				requirements, status, start_date, end_date, xp_reward)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, ?, ?)`,
			c.TemplateID, c.HomeID, nullInt64(c.CreatedBy), c.Name, string(c.Category), string(c.Type),
			string(c.DurationType), string(reqs), dbTime(c.StartDate), dbTime(c.EndDate), c.XPReward,
		)
		if err != nil {
			return fmt.Errorf("insert challenge: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		for _, memberID := range memberIDs {
			_, err := tx.Exec(
				`INSERT INTO challenge_progress (challenge_id, member_id, category, progress) VALUES (?, ?, ?, ?)`,
				id, memberID, string(c.Category), string(initial),
			)
			if err != nil {
				return fmt.Errorf("insert challenge progress: %w", err)
			}
		}

		out, err = getChallengeWithProgress(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func getChallengeWithProgress(q querier, id int64) (*model.ChallengeWithProgress, error) {
	c, err := scanChallenge(q.QueryRow(`SELECT `+challengeCols+` FROM active_challenges c WHERE c.id = ?`, id))
	if err != nil {
		return nil, err
	}
	progress, err := listProgress(q, id)
	if err != nil {
		return nil, err
	}
	return &model.ChallengeWithProgress{ActiveChallenge: *c, Progress: progress}, nil
}

func listProgress(q querier, challengeID int64) ([]model.ChallengeProgress, error) {
	rows, err := q.Query(`SELECT `+progressCols+` FROM challenge_progress WHERE challenge_id = ? ORDER BY member_id ASC`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("list challenge progress: %w", err)
	}
	defer rows.Close()

	var progress []model.ChallengeProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge progress: %w", err)
		}
		progress = append(progress, *p)
	}
	return progress, rows.Err()
}

func (s *ChallengeStore) GetByID(id int64) (*model.ChallengeWithProgress, error) {
	c, err := getChallengeWithProgress(s.db, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return c, nil
}

// ListByHome returns the home's challenges in the given statuses, newest
// first. No statuses means all.
func (s *ChallengeStore) ListByHome(homeID int64, statuses ...model.ChallengeStatus) ([]model.ActiveChallenge, error) {
	query := `SELECT ` + challengeCols + ` FROM active_challenges c WHERE c.home_id = ?`
	args := []any{homeID}
	if len(statuses) > 0 {
		query += ` AND c.status IN (`
		for i, st := range statuses {
			if i > 0 {
				query += `, `
			}
			query += `?`
			args = append(args, string(st))
		}
		query += `)`
	}
	query += ` ORDER BY c.start_date DESC, c.id DESC`
	return s.list(query, args...)
}

// ListOpenForMember returns active challenges running at t in which the
// member still has an incomplete progress row.
func (s *ChallengeStore) ListOpenForMember(memberID int64, t time.Time) ([]model.ActiveChallenge, error) {
	return s.list(
		`SELECT `+challengeCols+` FROM active_challenges c
		JOIN challenge_progress p ON p.challenge_id = c.id
		WHERE p.member_id = ? AND p.is_completed = 0 AND c.status = 'active'
		AND c.start_date <= ? AND c.end_date > ?
		ORDER BY c.id ASC`,
		memberID, dbTime(t), dbTime(t),
	)
}

func (s *ChallengeStore) list(query string, args ...any) ([]model.ActiveChallenge, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	var challenges []model.ActiveChallenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		challenges = append(challenges, *c)
	}
	return challenges, rows.Err()
}

func (s *ChallengeStore) GetProgress(challengeID, memberID int64) (*model.ChallengeProgress, error) {
	p, err := scanProgress(s.db.QueryRow(
		`SELECT `+progressCols+` FROM challenge_progress WHERE challenge_id = ? AND member_id = ?`,
		challengeID, memberID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge progress: %w", err)
	}
	return p, nil
}

// UpdateProgress loads every progress row of a challenge, lets mutate edit
// them, and writes back the rows it returns. All of it happens in one
// transaction, so shared counters such as a collective team total never
// lose an increment. When every row ends up completed the challenge itself
// is marked completed.
func (s *ChallengeStore) UpdateProgress(challengeID int64, at time.Time, mutate func(c *model.ActiveChallenge, rows []model.ChallengeProgress) ([]model.ChallengeProgress, error)) (*model.ChallengeWithProgress, error) {
	var out *model.ChallengeWithProgress
	err := withTx(s.db, func(tx *sql.Tx) error {
		current, err := getChallengeWithProgress(tx, challengeID)
		if err != nil {
			return fmt.Errorf("get challenge: %w", err)
		}

		changed, err := mutate(&current.ActiveChallenge, current.Progress)
		if err != nil {
			return err
		}
		for _, p := range changed {
			_, err := tx.Exec(
				`UPDATE challenge_progress SET progress = ?, is_completed = ?, completed_at = ?, updated_at = ?
				WHERE id = ?`,
				string(p.Progress), p.Completed, nullDBTime(p.CompletedAt), dbTime(at), p.ID,
			)
			if err != nil {
				return fmt.Errorf("update challenge progress: %w", err)
			}
		}

		_, err = tx.Exec(
			`UPDATE active_challenges SET status = 'completed'
			WHERE id = ? AND status = 'active'
			AND NOT EXISTS (SELECT 1 FROM challenge_progress WHERE challenge_id = ? AND is_completed = 0)`,
			challengeID, challengeID,
		)
		if err != nil {
			return fmt.Errorf("complete challenge: %w", err)
		}

		out, err = getChallengeWithProgress(tx, challengeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireEnded marks active challenges whose end date is at or before t as
// expired. Completed progress rows are left untouched.
func (s *ChallengeStore) ExpireEnded(t time.Time) (int, error) {
	result, err := s.db.Exec(`UPDATE active_challenges SET status = 'expired' WHERE status = 'active' AND end_date <= ?`, dbTime(t))
	if err != nil {
		return 0, fmt.Errorf("expire challenges: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// ClaimReward records amount as paid on a completed progress row and runs
// grant against the member in the same transaction. The conditional update
// on xp_awarded = 0 admits exactly one claim; later ones get
// ErrRewardClaimed and grant never runs.
func (s *ChallengeStore) ClaimReward(challengeID, memberID int64, amount int, at time.Time, grant MemberGrant) (*model.Member, error) {
	var member *model.Member
	err := withTx(s.db, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			`UPDATE challenge_progress SET xp_awarded = ?, claimed_at = ?, updated_at = ?
			WHERE challenge_id = ? AND member_id = ? AND is_completed = 1 AND xp_awarded = 0`,
			amount, dbTime(at), dbTime(at), challengeID, memberID,
		)
		if err != nil {
			return fmt.Errorf("claim reward: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrRewardClaimed
		}

		member, err = applyGrant(tx, memberID, at, grant)
		if err != nil {
			return err
		}
		if member == nil {
			return fmt.Errorf("member %d missing", memberID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}
