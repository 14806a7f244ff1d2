package service

import (
	"context"
	"errors"
	"time"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/contest"
	"tle_zone_contest/internal/domain/model"
	"tle_zone_contest/internal/domain/repository"
	"tle_zone_contest/internal/platform/metrics"

	"github.com/rs/zerolog"
)

var membershipOutcomes = map[error]string{
	common.ErrClosed:        "closed",
	common.ErrUnauthorized:  "unauthorized",
	common.ErrAlreadyJoined: "already_joined",
	common.ErrFull:          "full",
	common.ErrNotFound:      "not_found",
	common.ErrConsistency:   "consistency",
}

type ParticipationService struct {
	contestRepo repository.ContestRepository
	notifier    RankingNotifier
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

func NewParticipationService(
	contestRepo repository.ContestRepository,
	notifier RankingNotifier,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *ParticipationService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &ParticipationService{
		contestRepo: contestRepo,
		notifier:    notifier,
		metrics:     m,
		logger:      logger.With().Str("component", "participation").Logger(),
		now:         time.Now,
	}
}

type JoinContestRequest struct {
	Password string `json:"password,omitempty"`
}

// JoinContest adds userID to the contest. Eligibility and capacity are decided under
// the contest's row lock, so concurrent joins never exceed MaxParticipants.
func (s *ParticipationService) JoinContest(ctx context.Context, contestID, userID, password string) (*model.Participant, error) {
	var joined model.Participant
	_, err := s.contestRepo.MutateMembership(ctx, contestID, func(c *model.Contest) (repository.MembershipChange, error) {
		if err := contest.CheckMembershipIntegrity(c); err != nil {
			return repository.MembershipChange{}, err
		}
		p, err := contest.CheckJoin(c, userID, password, s.now())
		if err != nil {
			return repository.MembershipChange{}, err
		}
		joined = p
		return repository.MembershipChange{Join: &p}, nil
	})
	s.record("join", contestID, userID, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("contestId", contestID).
		Str("userId", userID).
		Bool("official", joined.IsOfficial).
		Msg("User joined contest")
	s.notifier.NotifyEvent(contestID)
	return &joined, nil
}

// LeaveContest removes userID while the contest is still upcoming.
func (s *ParticipationService) LeaveContest(ctx context.Context, contestID, userID string) error {
	_, err := s.contestRepo.MutateMembership(ctx, contestID, func(c *model.Contest) (repository.MembershipChange, error) {
		if err := contest.CheckMembershipIntegrity(c); err != nil {
			return repository.MembershipChange{}, err
		}
		if err := contest.CheckLeave(c, userID, s.now()); err != nil {
			return repository.MembershipChange{}, err
		}
		return repository.MembershipChange{Leave: userID}, nil
	})
	s.record("leave", contestID, userID, err)
	if err != nil {
		return err
	}

	s.logger.Info().Str("contestId", contestID).Str("userId", userID).Msg("User left contest")
	s.notifier.NotifyEvent(contestID)
	return nil
}

func (s *ParticipationService) record(operation, contestID, userID string, err error) {
	if s.metrics != nil {
		s.metrics.IncMembership(operation, outcomeOf(err, membershipOutcomes))
	}
	if errors.Is(err, common.ErrConsistency) {
		s.logger.Error().Err(err).Str("contestId", contestID).Str("userId", userID).Msg("Membership data is inconsistent")
	}
}
