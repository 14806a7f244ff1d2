package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"tle_zone_contest/internal/domain/model"
)

// SubmissionEventRepository is the append-only log of graded submissions.
type SubmissionEventRepository interface {
	// Append stores ev and reports false if its sequence id was already recorded.
	Append(ctx context.Context, ev *model.SubmissionEvent) (bool, error)
	// ListByContest returns events submitted at or before until, in (submittedAt, sequenceId) order.
	ListByContest(ctx context.Context, contestID string, until time.Time) ([]model.SubmissionEvent, error)
	// CountByContest returns how many events ListByContest would return.
	CountByContest(ctx context.Context, contestID string, until time.Time) (int, error)
}

type pgSubmissionEventRepository struct {
	db *sql.DB
}

func NewPgSubmissionEventRepository(db *sql.DB) SubmissionEventRepository {
	return &pgSubmissionEventRepository{db: db}
}

func (r *pgSubmissionEventRepository) Append(ctx context.Context, ev *model.SubmissionEvent) (bool, error) {
	query := `INSERT INTO contest_submission_events
	              (sequence_id, submission_id, contest_id, user_id, problem_label, verdict, score, submitted_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          ON CONFLICT (sequence_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query,
		ev.SequenceID, ev.SubmissionID, ev.ContestID, ev.UserID, ev.ProblemLabel, ev.Verdict, ev.Score, ev.SubmittedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("pgSubmissionEventRepository.Append: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgSubmissionEventRepository.Append: %w", err)
	}
	return n == 1, nil
}

func (r *pgSubmissionEventRepository) ListByContest(ctx context.Context, contestID string, until time.Time) ([]model.SubmissionEvent, error) {
	query := `SELECT sequence_id, submission_id, contest_id, user_id, problem_label, verdict, score, submitted_at
	          FROM contest_submission_events
	          WHERE contest_id = $1 AND submitted_at <= $2
	          ORDER BY submitted_at, sequence_id`
	rows, err := r.db.QueryContext(ctx, query, contestID, until.UTC())
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionEventRepository.ListByContest: %w", err)
	}
	defer rows.Close()

	var events []model.SubmissionEvent
	for rows.Next() {
		var ev model.SubmissionEvent
		if err := rows.Scan(&ev.SequenceID, &ev.SubmissionID, &ev.ContestID, &ev.UserID,
			&ev.ProblemLabel, &ev.Verdict, &ev.Score, &ev.SubmittedAt); err != nil {
			return nil, fmt.Errorf("pgSubmissionEventRepository.ListByContest: scan: %w", err)
		}
		ev.SubmittedAt = ev.SubmittedAt.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionEventRepository.ListByContest: %w", err)
	}
	return events, nil
}

func (r *pgSubmissionEventRepository) CountByContest(ctx context.Context, contestID string, until time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM contest_submission_events WHERE contest_id = $1 AND submitted_at <= $2`
	var n int
	if err := r.db.QueryRowContext(ctx, query, contestID, until.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgSubmissionEventRepository.CountByContest: %w", err)
	}
	return n, nil
}
