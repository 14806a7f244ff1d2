package service

import (
	"context"
	"time"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/contest"
	"tle_zone_contest/internal/domain/model"
	"tle_zone_contest/internal/domain/ranking"
	"tle_zone_contest/internal/domain/repository"
	"tle_zone_contest/internal/platform/cache"
	"tle_zone_contest/internal/platform/metrics"

	"github.com/rs/zerolog"
)

type RankingService struct {
	contestRepo repository.ContestRepository
	eventRepo   repository.SubmissionEventRepository
	snapshots   SnapshotSource
	cache       cache.RankingCache
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

func NewRankingService(
	contestRepo repository.ContestRepository,
	eventRepo repository.SubmissionEventRepository,
	snapshots SnapshotSource,
	rankingCache cache.RankingCache,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *RankingService {
	return &RankingService{
		contestRepo: contestRepo,
		eventRepo:   eventRepo,
		snapshots:   snapshots,
		cache:       rankingCache,
		metrics:     m,
		logger:      logger.With().Str("component", "ranking-service").Logger(),
		now:         time.Now,
	}
}

type RankingQuery struct {
	// AsOf asks for the table as it stood at an earlier moment.
	AsOf *time.Time
	// IncludeUnofficial adds late joiners to the table. Privileged viewers only.
	IncludeUnofficial bool
}

// GetRanking returns the table viewer is allowed to see right now.
func (s *RankingService) GetRanking(ctx context.Context, viewer Actor, contestID string, q RankingQuery) (*model.RankingView, error) {
	c, err := s.contestRepo.FindByID(ctx, contestID)
	if err != nil {
		return nil, common.Errorf("failed to load contest %s: %w", contestID, err)
	}
	if err := contest.CheckMembershipIntegrity(c); err != nil {
		s.logger.Error().Err(err).Str("contestId", c.ID).Msg("Contest data is inconsistent")
		return nil, err
	}

	now := s.now()
	role := s.resolveRole(viewer, c)

	switch contest.Status(c, now) {
	case model.ContestUpcoming:
		return nil, common.Errorf("ranking of contest %s: %w", c.ID, common.ErrNotStarted)
	case model.ContestCancelled:
		if !role.IsPrivileged() {
			return nil, common.Errorf("ranking of contest %s: %w", c.ID, common.ErrClosed)
		}
	}
	if !role.IsPrivileged() {
		if !c.AllowViewRanking {
			return nil, common.Errorf("ranking of contest %s is hidden: %w", c.ID, common.ErrForbidden)
		}
		if q.IncludeUnofficial {
			return nil, common.Errorf("unofficial ranking requires contest admin: %w", common.ErrForbidden)
		}
	}
	if q.AsOf != nil && q.AsOf.Before(c.StartTime) {
		return nil, common.Errorf("as_of precedes the contest start: %w", common.ErrBadRequest)
	}

	vis := ranking.DecideCutoff(c, role, now, q.AsOf)
	opts := ranking.Options{
		Cutoff:            vis.Cutoff,
		IncludeUnofficial: q.IncludeUnofficial,
		Frozen:            vis.Frozen,
		Final:             vis.Final,
		ComputedAt:        now,
	}

	var snapshot *model.RankingSnapshot
	switch {
	case q.AsOf != nil || q.IncludeUnofficial || c.Cancelled:
		snapshot, err = s.compute(ctx, c, opts)
	case vis.Final:
		snapshot, err = s.final(ctx, c, opts)
	default:
		snapshot = s.published(c, vis.Frozen)
		if snapshot == nil {
			snapshot, err = s.compute(ctx, c, opts)
		}
	}
	if err != nil {
		return nil, err
	}

	view := &model.RankingView{Snapshot: snapshot}
	if p, ok := c.FindParticipant(viewer.UserID); ok && !p.IsOfficial && !q.IncludeUnofficial {
		self, err := s.selfRow(ctx, c, opts, snapshot, viewer.UserID)
		if err != nil {
			return nil, err
		}
		view.Self = self
	}
	return view, nil
}

func (s *RankingService) resolveRole(viewer Actor, c *model.Contest) model.ViewerRole {
	if viewer.UserID == "" {
		return model.ViewerPublic
	}
	if viewer.canAdminister(c) {
		return model.ViewerAdmin
	}
	if _, ok := c.FindParticipant(viewer.UserID); ok {
		return model.ViewerParticipant
	}
	return model.ViewerPublic
}

// published returns the worker's snapshot when it reflects the contest's current version.
func (s *RankingService) published(c *model.Contest, frozen bool) *model.RankingSnapshot {
	if s.snapshots == nil {
		return nil
	}
	snapshot := s.snapshots.Latest(c.ID, frozen)
	if snapshot == nil || snapshot.ContestVersion != c.Version {
		return nil
	}
	return snapshot
}

// final serves the cached final table while no event has been added since it was
// built. Verdicts graded after the end raise the count and force a rebuild.
func (s *RankingService) final(ctx context.Context, c *model.Contest, opts ranking.Options) (*model.RankingSnapshot, error) {
	if s.cache != nil {
		cached, err := s.cachedFinal(ctx, c)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Str("contestId", c.ID).Msg("Final ranking cache unavailable")
			s.countCache("error")
		case cached != nil:
			s.countCache("hit")
			return cached, nil
		default:
			s.countCache("miss")
		}
	}

	snapshot, err := s.compute(ctx, c, opts)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.PutFinal(ctx, snapshot); err != nil {
			s.logger.Warn().Err(err).Str("contestId", c.ID).Msg("Failed to cache final ranking")
		}
	}
	return snapshot, nil
}

func (s *RankingService) cachedFinal(ctx context.Context, c *model.Contest) (*model.RankingSnapshot, error) {
	count, err := s.eventRepo.CountByContest(ctx, c.ID, c.EndTime)
	if err != nil {
		return nil, err
	}
	return s.cache.GetFinal(ctx, c.ID, c.Version, count)
}

func (s *RankingService) compute(ctx context.Context, c *model.Contest, opts ranking.Options) (*model.RankingSnapshot, error) {
	events, err := s.eventRepo.ListByContest(ctx, c.ID, c.EndTime)
	if err != nil {
		return nil, common.Errorf("loading events for contest %s: %v: %w", c.ID, err, common.ErrServiceUnavailable)
	}
	return ranking.Compute(c, events, opts), nil
}

// selfRow ranks an unofficial participant's own row against the official table.
func (s *RankingService) selfRow(ctx context.Context, c *model.Contest, opts ranking.Options, official *model.RankingSnapshot, userID string) (*model.RankingRow, error) {
	solo := *c
	solo.Participants = nil
	if p, ok := c.FindParticipant(userID); ok {
		solo.Participants = []model.Participant{p}
	}
	opts.IncludeUnofficial = true

	own, err := s.compute(ctx, &solo, opts)
	if err != nil {
		return nil, err
	}
	row, ok := ranking.FindRow(own, userID)
	if !ok {
		return nil, nil
	}
	row.Rank = ranking.RankAgainst(c.Mode, row, official.Rows)
	return &row, nil
}

func (s *RankingService) countCache(result string) {
	if s.metrics != nil {
		s.metrics.IncCacheLookup(result)
	}
}
