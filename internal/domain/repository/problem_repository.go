package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/model"
)

// ProblemRepository is a read-only view of the problem catalog.
type ProblemRepository interface {
	FindProblemByID(ctx context.Context, id string) (*model.Problem, error)
}

type pgProblemRepository struct {
	db *sql.DB
}

func NewPgProblemRepository(db *sql.DB) ProblemRepository {
	return &pgProblemRepository{db: db}
}

func (r *pgProblemRepository) FindProblemByID(ctx context.Context, id string) (*model.Problem, error) {
	query := `SELECT p.id, p.title, p.slug, p.difficulty, p.status, p.default_score
	          FROM problems p
	          WHERE p.id::text = $1`

	problem := &model.Problem{}
	var defaultScore sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&problem.ID, &problem.Title, &problem.Slug, &problem.Difficulty, &problem.Status, &defaultScore,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProblemRepository.FindProblemByID: %w", err)
	}
	if defaultScore.Valid {
		score := int(defaultScore.Int64)
		problem.DefaultScore = &score
	}
	return problem, nil
}
