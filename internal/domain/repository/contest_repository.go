package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/model"

	"github.com/google/uuid"
)

// MembershipChange is the single row mutation a MembershipFunc asks for.
// At most one of Join and Leave is set; a zero value changes nothing.
type MembershipChange struct {
	Join  *model.Participant
	Leave string
}

// MembershipFunc decides a membership change against the locked contest row.
// Returning an error aborts the transaction.
type MembershipFunc func(c *model.Contest) (MembershipChange, error)

type ContestRepository interface {
	Create(ctx context.Context, c *model.Contest) error
	FindByID(ctx context.Context, id string) (*model.Contest, error)
	// ListUnfinishedIDs returns contests that are not cancelled and end after now.
	ListUnfinishedIDs(ctx context.Context, now time.Time) ([]string, error)
	// Update rewrites configuration if c.Version is still current, then bumps c.Version.
	Update(ctx context.Context, c *model.Contest) error
	// Cancel marks the contest cancelled and returns the new version.
	Cancel(ctx context.Context, id string) (int64, error)
	AddInvitations(ctx context.Context, contestID string, userIDs []string) error
	// MutateMembership runs fn under a row lock on the contest and applies its change
	// in the same transaction. It returns the contest as it stands after the change.
	MutateMembership(ctx context.Context, contestID string, fn MembershipFunc) (*model.Contest, error)
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type pgContestRepository struct {
	db *sql.DB
}

func NewPgContestRepository(db *sql.DB) ContestRepository {
	return &pgContestRepository{db: db}
}

func (r *pgContestRepository) Create(ctx context.Context, c *model.Contest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgContestRepository.Create: begin: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO contests (id, slug, title, description, contest_type, mode, password_hash,
	              start_time, end_time, duration_minutes, created_by, allow_view_others_code, allow_view_ranking,
	              freeze_minutes, max_participants, oi_score_policy, version)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	          RETURNING created_at, updated_at`
	err = tx.QueryRowContext(ctx, query,
		c.ID, c.Slug, c.Title, c.Description, c.Type, c.Mode, nullString(c.PasswordHash),
		c.StartTime.UTC(), c.EndTime.UTC(), c.DurationMinutes, c.CreatedByID, c.AllowViewOthersCode, c.AllowViewRanking,
		c.FreezeMinutes, c.MaxParticipants, c.EffectiveOIScorePolicy(), c.Version,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("contest with this slug already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgContestRepository.Create: %w", err)
	}

	if err := insertProblems(ctx, tx, c.ID, c.Problems); err != nil {
		return fmt.Errorf("pgContestRepository.Create: %w", err)
	}
	if err := insertUserSet(ctx, tx, "contest_admins", c.ID, c.AdminIDs); err != nil {
		return fmt.Errorf("pgContestRepository.Create: %w", err)
	}
	if err := insertUserSet(ctx, tx, "contest_invitations", c.ID, c.InvitedUserIDs); err != nil {
		return fmt.Errorf("pgContestRepository.Create: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgContestRepository.Create: commit: %w", err)
	}
	return nil
}

// contestIDExists rejects ids that cannot name a contest row. Postgres would
// otherwise fail the uuid cast instead of finding nothing.
func contestIDExists(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("contest %q: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *pgContestRepository) FindByID(ctx context.Context, id string) (*model.Contest, error) {
	if err := contestIDExists(id); err != nil {
		return nil, err
	}
	c, err := loadContest(ctx, r.db, id, false)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pgContestRepository.FindByID: %w", err)
	}
	return c, nil
}

func (r *pgContestRepository) ListUnfinishedIDs(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM contests WHERE NOT cancelled AND end_time > $1 ORDER BY start_time`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.ListUnfinishedIDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgContestRepository.ListUnfinishedIDs: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *pgContestRepository) Update(ctx context.Context, c *model.Contest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgContestRepository.Update: begin: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE contests SET
	              title = $1, description = $2, contest_type = $3, mode = $4, password_hash = $5,
	              start_time = $6, end_time = $7, duration_minutes = $8, allow_view_others_code = $9,
	              allow_view_ranking = $10, freeze_minutes = $11, max_participants = $12, oi_score_policy = $13,
	              version = version + 1, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $14 AND version = $15 AND NOT cancelled
	          RETURNING version, updated_at`
	var version int64
	var updatedAt time.Time
	err = tx.QueryRowContext(ctx, query,
		c.Title, c.Description, c.Type, c.Mode, nullString(c.PasswordHash),
		c.StartTime.UTC(), c.EndTime.UTC(), c.DurationMinutes, c.AllowViewOthersCode,
		c.AllowViewRanking, c.FreezeMinutes, c.MaxParticipants, c.EffectiveOIScorePolicy(),
		c.ID, c.Version,
	).Scan(&version, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("contest %s was modified concurrently: %w", c.ID, common.ErrConflict)
		}
		return fmt.Errorf("pgContestRepository.Update: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM contest_problems WHERE contest_id = $1`, c.ID); err != nil {
		return fmt.Errorf("pgContestRepository.Update: clearing problems: %w", err)
	}
	if err := insertProblems(ctx, tx, c.ID, c.Problems); err != nil {
		return fmt.Errorf("pgContestRepository.Update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM contest_admins WHERE contest_id = $1`, c.ID); err != nil {
		return fmt.Errorf("pgContestRepository.Update: clearing admins: %w", err)
	}
	if err := insertUserSet(ctx, tx, "contest_admins", c.ID, c.AdminIDs); err != nil {
		return fmt.Errorf("pgContestRepository.Update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgContestRepository.Update: commit: %w", err)
	}
	c.Version = version
	c.UpdatedAt = updatedAt
	return nil
}

func (r *pgContestRepository) Cancel(ctx context.Context, id string) (int64, error) {
	if err := contestIDExists(id); err != nil {
		return 0, err
	}
	var version int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE contests SET cancelled = TRUE, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1 AND NOT cancelled RETURNING version`, id).Scan(&version)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("pgContestRepository.Cancel: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM contests WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("pgContestRepository.Cancel: %w", err)
	}
	if !exists {
		return 0, common.ErrNotFound
	}
	return 0, fmt.Errorf("contest %s is already cancelled: %w", id, common.ErrConflict)
}

func (r *pgContestRepository) AddInvitations(ctx context.Context, contestID string, userIDs []string) error {
	if err := contestIDExists(contestID); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgContestRepository.AddInvitations: begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertUserSet(ctx, tx, "contest_invitations", contestID, userIDs); err != nil {
		return fmt.Errorf("pgContestRepository.AddInvitations: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgContestRepository.AddInvitations: commit: %w", err)
	}
	return nil
}

func (r *pgContestRepository) MutateMembership(ctx context.Context, contestID string, fn MembershipFunc) (*model.Contest, error) {
	if err := contestIDExists(contestID); err != nil {
		return nil, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.MutateMembership: begin: %w", err)
	}
	defer tx.Rollback()

	c, err := loadContest(ctx, tx, contestID, true)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pgContestRepository.MutateMembership: %w", err)
	}

	change, err := fn(c)
	if err != nil {
		return nil, err
	}

	switch {
	case change.Join != nil:
		p := *change.Join
		_, err := tx.ExecContext(ctx,
			`INSERT INTO contest_participants (contest_id, user_id, join_time, is_official) VALUES ($1, $2, $3, $4)`,
			contestID, p.UserID, p.JoinTime.UTC(), p.IsOfficial)
		if err != nil {
			if common.IsUniqueViolation(err) {
				return nil, common.ErrAlreadyJoined
			}
			return nil, fmt.Errorf("pgContestRepository.MutateMembership: insert participant: %w", err)
		}
		if err := bumpParticipants(ctx, tx, contestID, 1); err != nil {
			return nil, err
		}
		c.Participants = append(c.Participants, p)
		c.TotalParticipants++

	case change.Leave != "":
		res, err := tx.ExecContext(ctx,
			`DELETE FROM contest_participants WHERE contest_id = $1 AND user_id = $2`, contestID, change.Leave)
		if err != nil {
			return nil, fmt.Errorf("pgContestRepository.MutateMembership: delete participant: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, common.ErrNotFound
		}
		if err := bumpParticipants(ctx, tx, contestID, -1); err != nil {
			return nil, err
		}
		kept := c.Participants[:0]
		for _, p := range c.Participants {
			if p.UserID != change.Leave {
				kept = append(kept, p)
			}
		}
		c.Participants = kept
		c.TotalParticipants--

	default:
		return c, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("pgContestRepository.MutateMembership: commit: %w", err)
	}
	return c, nil
}

func bumpParticipants(ctx context.Context, tx *sql.Tx, contestID string, delta int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE contests SET total_participants = total_participants + $1 WHERE id = $2`, delta, contestID)
	if err != nil {
		return fmt.Errorf("pgContestRepository.MutateMembership: participant count: %w", err)
	}
	return nil
}

func loadContest(ctx context.Context, q queryer, id string, forUpdate bool) (*model.Contest, error) {
	query := `SELECT id, slug, title, description, contest_type, mode, password_hash,
	                 start_time, end_time, duration_minutes, created_by, allow_view_others_code,
	                 allow_view_ranking, freeze_minutes, max_participants, oi_score_policy,
	                 cancelled, version, total_participants, created_at, updated_at
	          FROM contests WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	c := &model.Contest{}
	var passwordHash sql.NullString
	err := q.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Slug, &c.Title, &c.Description, &c.Type, &c.Mode, &passwordHash,
		&c.StartTime, &c.EndTime, &c.DurationMinutes, &c.CreatedByID, &c.AllowViewOthersCode,
		&c.AllowViewRanking, &c.FreezeMinutes, &c.MaxParticipants, &c.OIScorePolicy,
		&c.Cancelled, &c.Version, &c.TotalParticipants, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	c.PasswordHash = passwordHash.String
	c.StartTime = c.StartTime.UTC()
	c.EndTime = c.EndTime.UTC()

	if c.Problems, err = loadProblems(ctx, q, id); err != nil {
		return nil, err
	}
	if c.AdminIDs, err = loadUserSet(ctx, q, "contest_admins", id); err != nil {
		return nil, err
	}
	if c.InvitedUserIDs, err = loadUserSet(ctx, q, "contest_invitations", id); err != nil {
		return nil, err
	}
	if c.Participants, err = loadParticipants(ctx, q, id); err != nil {
		return nil, err
	}
	return c, nil
}

func loadProblems(ctx context.Context, q queryer, contestID string) ([]model.ContestProblem, error) {
	rows, err := q.QueryContext(ctx, `
        SELECT cp.problem_id, cp.label, cp.weight, COALESCE(p.title, '')
        FROM contest_problems cp
        LEFT JOIN problems p ON p.id::text = cp.problem_id
        WHERE cp.contest_id = $1
        ORDER BY cp.sort_order`, contestID)
	if err != nil {
		return nil, fmt.Errorf("loading problems: %w", err)
	}
	defer rows.Close()

	var problems []model.ContestProblem
	for rows.Next() {
		var p model.ContestProblem
		var weight sql.NullInt64
		if err := rows.Scan(&p.ProblemID, &p.Label, &weight, &p.Title); err != nil {
			return nil, fmt.Errorf("scanning problem: %w", err)
		}
		if weight.Valid {
			w := int(weight.Int64)
			p.Weight = &w
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

func loadParticipants(ctx context.Context, q queryer, contestID string) ([]model.Participant, error) {
	rows, err := q.QueryContext(ctx, `
        SELECT user_id, join_time, is_official FROM contest_participants
        WHERE contest_id = $1 ORDER BY join_time, user_id`, contestID)
	if err != nil {
		return nil, fmt.Errorf("loading participants: %w", err)
	}
	defer rows.Close()

	var participants []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.UserID, &p.JoinTime, &p.IsOfficial); err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		p.JoinTime = p.JoinTime.UTC()
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// table is one of the fixed (contest_id, user_id) set tables, never user input.
func loadUserSet(ctx context.Context, q queryer, table, contestID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT user_id FROM `+table+` WHERE contest_id = $1 ORDER BY user_id`, contestID)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func insertProblems(ctx context.Context, tx *sql.Tx, contestID string, problems []model.ContestProblem) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO contest_problems (contest_id, label, problem_id, weight, sort_order) VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("preparing problem insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range problems {
		var weight sql.NullInt64
		if p.Weight != nil {
			weight = sql.NullInt64{Int64: int64(*p.Weight), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, contestID, p.Label, p.ProblemID, weight, i); err != nil {
			if common.IsUniqueViolation(err) {
				return fmt.Errorf("duplicate label or problem %s: %w", p.Label, common.ErrConflict)
			}
			return fmt.Errorf("inserting problem %s: %w", p.Label, err)
		}
	}
	return nil
}

func insertUserSet(ctx context.Context, tx *sql.Tx, table, contestID string, userIDs []string) error {
	for _, id := range userIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO `+table+` (contest_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, contestID, id)
		if err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
