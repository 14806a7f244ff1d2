package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/model"
	"tle_zone_contest/internal/domain/repository"
	"tle_zone_contest/internal/platform/messaging"
	"tle_zone_contest/internal/platform/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	SourceWebhook = "webhook"
	SourceKafka   = "kafka"
)

var gradingValidate = validator.New(validator.WithRequiredStructEnabled())

// GradingResult is one terminal or pending verdict from the grading service.
type GradingResult struct {
	SequenceID   int64                  `json:"sequence_id" validate:"gt=0"`
	SubmissionID string                 `json:"submission_id" validate:"required"`
	ContestID    string                 `json:"contest_id" validate:"required"`
	UserID       string                 `json:"user_id" validate:"required"`
	ProblemLabel string                 `json:"problem_label" validate:"required,len=1"`
	Status       model.SubmissionStatus `json:"status" validate:"required"`
	Score        float64                `json:"score" validate:"gte=0"`
	SubmittedAt  time.Time              `json:"submitted_at" validate:"required"`
}

// IngestionService records graded submissions into the contest event log.
type IngestionService struct {
	contestRepo repository.ContestRepository
	eventRepo   repository.SubmissionEventRepository
	notifier    RankingNotifier
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

func NewIngestionService(
	contestRepo repository.ContestRepository,
	eventRepo repository.SubmissionEventRepository,
	notifier RankingNotifier,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *IngestionService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &IngestionService{
		contestRepo: contestRepo,
		eventRepo:   eventRepo,
		notifier:    notifier,
		metrics:     m,
		logger:      logger.With().Str("component", "ingestion").Logger(),
	}
}

// Ingest stores one grading result. Pending verdicts and redelivered sequence ids are
// accepted and dropped, so the grader may retry freely.
func (s *IngestionService) Ingest(ctx context.Context, source string, r GradingResult) error {
	if err := gradingValidate.Struct(r); err != nil {
		s.count(source, "invalid")
		return common.Errorf("invalid grading result: %v: %w", err, common.ErrValidation)
	}

	status, ok := model.ParseSubmissionStatus(string(r.Status))
	if !ok {
		s.count(source, "invalid")
		return common.Errorf("unknown grading status %q: %w", r.Status, common.ErrValidation)
	}
	verdict := model.VerdictFromStatus(status)
	if verdict == model.VerdictPending {
		s.count(source, "pending")
		s.logger.Debug().Str("submissionId", r.SubmissionID).Str("status", string(r.Status)).Msg("Ignoring non-terminal verdict")
		return nil
	}

	c, err := s.contestRepo.FindByID(ctx, r.ContestID)
	if err != nil {
		s.count(source, "unknown_contest")
		return common.Errorf("grading result for contest %s: %w", r.ContestID, err)
	}
	if _, ok := c.FindProblem(r.ProblemLabel); !ok {
		s.count(source, "unknown_label")
		return common.Errorf("contest %s has no problem %s: %w", c.ID, r.ProblemLabel, common.ErrValidation)
	}

	ev := &model.SubmissionEvent{
		SequenceID:   r.SequenceID,
		SubmissionID: r.SubmissionID,
		ContestID:    r.ContestID,
		UserID:       r.UserID,
		ProblemLabel: r.ProblemLabel,
		Verdict:      verdict,
		Score:        r.Score,
		SubmittedAt:  r.SubmittedAt.UTC(),
	}
	inserted, err := s.eventRepo.Append(ctx, ev)
	if err != nil {
		s.count(source, "error")
		return common.Errorf("failed to store event %d: %v: %w", r.SequenceID, err, common.ErrServiceUnavailable)
	}
	if !inserted {
		s.count(source, "duplicate")
		s.logger.Debug().Int64("sequenceId", r.SequenceID).Msg("Duplicate grading result")
		return nil
	}

	s.count(source, "stored")
	s.logger.Info().
		Str("contestId", ev.ContestID).
		Str("userId", ev.UserID).
		Str("problem", ev.ProblemLabel).
		Str("verdict", string(ev.Verdict)).
		Int64("sequenceId", ev.SequenceID).
		Msg("Grading result recorded")
	s.notifier.NotifyEvent(ev.ContestID)
	return nil
}

// HandleSubmissionJudged is the consumer handler for the judged topic. Events outside
// any contest are skipped.
func (s *IngestionService) HandleSubmissionJudged(ctx context.Context, msg kafka.Message) error {
	var event messaging.SubmissionJudgedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		s.count(SourceKafka, "invalid")
		return fmt.Errorf("decoding submission.judged: %w", err)
	}
	if event.ContestID == nil || *event.ContestID == "" {
		return nil
	}

	result, err := resultFromJudged(event)
	if err != nil {
		s.count(SourceKafka, "invalid")
		return err
	}
	err = s.Ingest(ctx, SourceKafka, result)
	if errors.Is(err, common.ErrNotFound) {
		// Practice submissions may carry ids of contests this service does not own.
		s.logger.Warn().Str("contestId", result.ContestID).Msg("Judged event for unknown contest")
		return nil
	}
	return err
}

func resultFromJudged(event messaging.SubmissionJudgedEvent) (GradingResult, error) {
	raw := event.SubmittedAt
	if raw == "" {
		raw = event.Timestamp
	}
	submittedAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return GradingResult{}, fmt.Errorf("submission %s has bad submittedAt %q: %w", event.SubmissionID, raw, common.ErrValidation)
	}
	return GradingResult{
		SequenceID:   event.SequenceID,
		SubmissionID: event.SubmissionID,
		ContestID:    *event.ContestID,
		UserID:       event.UserID,
		ProblemLabel: event.ProblemLabel,
		Status:       model.SubmissionStatus(event.Verdict),
		Score:        event.Score,
		SubmittedAt:  submittedAt,
	}, nil
}

func (s *IngestionService) count(source, outcome string) {
	if s.metrics != nil {
		s.metrics.IncEvent(source, outcome)
	}
}
