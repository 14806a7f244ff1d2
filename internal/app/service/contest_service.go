package service

import (
	"context"
	"errors"
	"time"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/contest"
	"tle_zone_contest/internal/domain/model"
	"tle_zone_contest/internal/domain/ranking"
	"tle_zone_contest/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
)

type ContestService struct {
	contestRepo repository.ContestRepository
	problemRepo repository.ProblemRepository
	userRepo    repository.UserRepository
	notifier    RankingNotifier
	logger      zerolog.Logger
	now         func() time.Time
}

func NewContestService(
	contestRepo repository.ContestRepository,
	problemRepo repository.ProblemRepository,
	userRepo repository.UserRepository,
	notifier RankingNotifier,
	logger zerolog.Logger,
) *ContestService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &ContestService{
		contestRepo: contestRepo,
		problemRepo: problemRepo,
		userRepo:    userRepo,
		notifier:    notifier,
		logger:      logger.With().Str("component", "contest-service").Logger(),
		now:         time.Now,
	}
}

type CreateContestRequest struct {
	Title               string                 `json:"title"`
	Description         string                 `json:"description"`
	Type                model.ContestType      `json:"type"`
	Mode                model.ContestMode      `json:"mode"`
	Password            string                 `json:"password,omitempty"`
	StartTime           time.Time              `json:"start_time"`
	EndTime             *time.Time             `json:"end_time,omitempty"` // Derived from duration when omitted
	DurationMinutes     int                    `json:"duration_minutes"`
	AdminIDs            []string               `json:"admin_ids"`
	InvitedUserIDs      []string               `json:"invited_user_ids"`
	Problems            []model.ContestProblem `json:"problems"`
	AllowViewOthersCode bool                   `json:"allow_view_others_code"`
	AllowViewRanking    *bool                  `json:"allow_view_ranking,omitempty"` // Defaults to true
	FreezeMinutes       int                    `json:"freeze_minutes"`
	MaxParticipants     int                    `json:"max_participants"`
	OIScorePolicy       model.OIScorePolicy    `json:"oi_score_policy,omitempty"`
}

type UpdateContestRequest struct {
	Title               *string                 `json:"title,omitempty"`
	Description         *string                 `json:"description,omitempty"`
	Type                *model.ContestType      `json:"type,omitempty"`
	Mode                *model.ContestMode      `json:"mode,omitempty"`
	Password            *string                 `json:"password,omitempty"`
	StartTime           *time.Time              `json:"start_time,omitempty"`
	DurationMinutes     *int                    `json:"duration_minutes,omitempty"`
	AdminIDs            *[]string               `json:"admin_ids,omitempty"`
	Problems            *[]model.ContestProblem `json:"problems,omitempty"`
	AllowViewOthersCode *bool                   `json:"allow_view_others_code,omitempty"`
	AllowViewRanking    *bool                   `json:"allow_view_ranking,omitempty"`
	FreezeMinutes       *int                    `json:"freeze_minutes,omitempty"`
	MaxParticipants     *int                    `json:"max_participants,omitempty"`
	OIScorePolicy       *model.OIScorePolicy    `json:"oi_score_policy,omitempty"`
}

type ContestStatusResponse struct {
	ContestID         string              `json:"contest_id"`
	Status            model.ContestStatus `json:"status"`
	StartTime         time.Time           `json:"start_time"`
	EndTime           time.Time           `json:"end_time"`
	ServerTime        time.Time           `json:"server_time"`
	Frozen            bool                `json:"frozen"`
	TotalParticipants int                 `json:"total_participants"`
}

func (s *ContestService) CreateContest(ctx context.Context, actor Actor, req CreateContestRequest) (*model.Contest, error) {
	if actor.UserID == "" {
		return nil, common.Errorf("creating a contest requires a user: %w", common.ErrUnauthorized)
	}

	c := &model.Contest{
		ID:                  uuid.NewString(),
		Title:               req.Title,
		Description:         req.Description,
		Type:                req.Type,
		Mode:                req.Mode,
		StartTime:           req.StartTime.UTC(),
		DurationMinutes:     req.DurationMinutes,
		CreatedByID:         actor.UserID,
		AdminIDs:            dedupe(req.AdminIDs),
		InvitedUserIDs:      dedupe(req.InvitedUserIDs),
		AllowViewOthersCode: req.AllowViewOthersCode,
		AllowViewRanking:    true,
		FreezeMinutes:       req.FreezeMinutes,
		MaxParticipants:     req.MaxParticipants,
		OIScorePolicy:       req.OIScorePolicy,
		Version:             1,
	}
	if req.AllowViewRanking != nil {
		c.AllowViewRanking = *req.AllowViewRanking
	}
	if req.EndTime != nil {
		c.EndTime = req.EndTime.UTC()
		if c.DurationMinutes == 0 {
			c.DurationMinutes = int(c.EndTime.Sub(c.StartTime) / time.Minute)
		}
	} else {
		c.EndTime = c.StartTime.Add(time.Duration(c.DurationMinutes) * time.Minute)
	}
	if c.Mode == model.ModeOI && c.OIScorePolicy == "" {
		c.OIScorePolicy = model.OIFirstAccepted
	}
	c.Slug = slug.Make(c.Title) + "-" + c.ID[:8]

	if req.Password != "" {
		hash, err := contest.HashPassword(req.Password)
		if err != nil {
			return nil, common.Errorf("failed to hash contest password: %w", err)
		}
		c.PasswordHash = hash
	}

	if err := s.prepare(ctx, c, req.Problems); err != nil {
		return nil, err
	}
	if err := s.checkUsersExist(ctx, "admin_ids", c.AdminIDs); err != nil {
		return nil, err
	}
	if err := s.checkUsersExist(ctx, "invited_user_ids", c.InvitedUserIDs); err != nil {
		return nil, err
	}

	if err := s.contestRepo.Create(ctx, c); err != nil {
		return nil, common.Errorf("failed to create contest: %w", err)
	}

	s.logger.Info().
		Str("contestId", c.ID).
		Str("userId", actor.UserID).
		Str("mode", string(c.Mode)).
		Time("start", c.StartTime).
		Msg("Contest created")
	s.notifier.NotifyContestChanged(c.ID, c.Version)
	return c, nil
}

func (s *ContestService) GetContest(ctx context.Context, id string) (*model.Contest, error) {
	c, err := s.contestRepo.FindByID(ctx, id)
	if err != nil {
		return nil, common.Errorf("failed to load contest %s: %w", id, err)
	}
	return c, nil
}

func (s *ContestService) GetContestStatus(ctx context.Context, id string) (*ContestStatusResponse, error) {
	c, err := s.contestRepo.FindByID(ctx, id)
	if err != nil {
		return nil, common.Errorf("failed to load contest %s: %w", id, err)
	}
	now := s.now()
	status := contest.Status(c, now)
	return &ContestStatusResponse{
		ContestID:         c.ID,
		Status:            status,
		StartTime:         c.StartTime,
		EndTime:           c.EndTime,
		ServerTime:        now.UTC(),
		Frozen:            status == model.ContestRunning && ranking.InFreezeWindow(c, now),
		TotalParticipants: c.TotalParticipants,
	}, nil
}

// UpdateContest edits an upcoming contest. The stored version must still match the
// loaded one, so two admins cannot silently overwrite each other.
func (s *ContestService) UpdateContest(ctx context.Context, actor Actor, id string, req UpdateContestRequest) (*model.Contest, error) {
	c, err := s.contestRepo.FindByID(ctx, id)
	if err != nil {
		return nil, common.Errorf("failed to load contest %s: %w", id, err)
	}
	if !actor.canAdminister(c) {
		return nil, common.Errorf("user %s cannot edit contest %s: %w", actor.UserID, id, common.ErrForbidden)
	}
	if err := contest.CheckEditable(c, s.now()); err != nil {
		return nil, err
	}

	if req.Title != nil {
		c.Title = *req.Title
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.Type != nil {
		c.Type = *req.Type
		if c.Type != model.ContestTypeProtected && req.Password == nil {
			c.PasswordHash = ""
		}
	}
	if req.Mode != nil {
		c.Mode = *req.Mode
	}
	if req.Password != nil {
		if *req.Password == "" {
			c.PasswordHash = ""
		} else {
			hash, err := contest.HashPassword(*req.Password)
			if err != nil {
				return nil, common.Errorf("failed to hash contest password: %w", err)
			}
			c.PasswordHash = hash
		}
	}
	if req.StartTime != nil {
		c.StartTime = req.StartTime.UTC()
	}
	if req.DurationMinutes != nil {
		c.DurationMinutes = *req.DurationMinutes
	}
	c.EndTime = c.StartTime.Add(time.Duration(c.DurationMinutes) * time.Minute)
	if req.AdminIDs != nil {
		c.AdminIDs = dedupe(*req.AdminIDs)
		if err := s.checkUsersExist(ctx, "admin_ids", c.AdminIDs); err != nil {
			return nil, err
		}
	}
	if req.AllowViewOthersCode != nil {
		c.AllowViewOthersCode = *req.AllowViewOthersCode
	}
	if req.AllowViewRanking != nil {
		c.AllowViewRanking = *req.AllowViewRanking
	}
	if req.FreezeMinutes != nil {
		c.FreezeMinutes = *req.FreezeMinutes
	}
	if req.MaxParticipants != nil {
		c.MaxParticipants = *req.MaxParticipants
	}
	if req.OIScorePolicy != nil {
		c.OIScorePolicy = *req.OIScorePolicy
	}

	problems := c.Problems
	if req.Problems != nil {
		problems = *req.Problems
	}
	if err := s.prepare(ctx, c, problems); err != nil {
		return nil, err
	}
	if c.MaxParticipants > 0 && c.TotalParticipants > c.MaxParticipants {
		return nil, common.Errorf("contest already has %d participants: %w", c.TotalParticipants,
			fieldError("max_participants", "is below the current participant count"))
	}

	if err := s.contestRepo.Update(ctx, c); err != nil {
		return nil, common.Errorf("failed to update contest %s: %w", id, err)
	}

	s.logger.Info().Str("contestId", c.ID).Str("userId", actor.UserID).Int64("version", c.Version).Msg("Contest updated")
	s.notifier.NotifyContestChanged(c.ID, c.Version)
	return c, nil
}

// CancelContest is terminal and allowed from any phase except CANCELLED.
func (s *ContestService) CancelContest(ctx context.Context, actor Actor, id string) (*model.Contest, error) {
	c, err := s.contestRepo.FindByID(ctx, id)
	if err != nil {
		return nil, common.Errorf("failed to load contest %s: %w", id, err)
	}
	if !actor.canAdminister(c) {
		return nil, common.Errorf("user %s cannot cancel contest %s: %w", actor.UserID, id, common.ErrForbidden)
	}
	if err := contest.CheckCancellable(c); err != nil {
		return nil, err
	}

	version, err := s.contestRepo.Cancel(ctx, id)
	if err != nil {
		return nil, common.Errorf("failed to cancel contest %s: %w", id, err)
	}
	c.Cancelled = true
	c.Version = version

	s.logger.Warn().Str("contestId", id).Str("userId", actor.UserID).Int64("version", version).Msg("Contest cancelled")
	s.notifier.NotifyContestChanged(id, version)
	return c, nil
}

// InviteUsers adds users to a private contest's invitation list.
func (s *ContestService) InviteUsers(ctx context.Context, actor Actor, id string, userIDs []string) error {
	c, err := s.contestRepo.FindByID(ctx, id)
	if err != nil {
		return common.Errorf("failed to load contest %s: %w", id, err)
	}
	if !actor.canAdminister(c) {
		return common.Errorf("user %s cannot invite to contest %s: %w", actor.UserID, id, common.ErrForbidden)
	}
	if c.Type != model.ContestTypePrivate {
		return common.Errorf("only private contests take invitations: %w", common.ErrBadRequest)
	}
	switch contest.Status(c, s.now()) {
	case model.ContestEnded, model.ContestCancelled:
		return common.Errorf("cannot invite to contest %s: %w", id, common.ErrClosed)
	}

	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return fieldError("user_ids", "must list at least one user")
	}
	if err := s.checkUsersExist(ctx, "user_ids", userIDs); err != nil {
		return err
	}
	if err := s.contestRepo.AddInvitations(ctx, id, userIDs); err != nil {
		return common.Errorf("failed to store invitations: %w", err)
	}

	s.logger.Info().Str("contestId", id).Int("invited", len(userIDs)).Msg("Users invited")
	return nil
}

// prepare binds problems, applies defaults and validates c. The start must still be
// in the future for any write.
func (s *ContestService) prepare(ctx context.Context, c *model.Contest, problems []model.ContestProblem) error {
	bound, err := contest.BindProblems(ctx, s.problemRepo, contest.AssignLabels(problems))
	verrs := common.NewValidationErrors()
	if err != nil {
		var bindErrs *common.ValidationErrors
		if !common.AsValidationErrors(err, &bindErrs) {
			return err
		}
		for field, msg := range bindErrs.Fields {
			verrs.Add(field, msg)
		}
		c.Problems = contest.AssignLabels(problems)
	} else {
		c.Problems = bound
	}

	if err := contest.Validate(c); err != nil {
		var shapeErrs *common.ValidationErrors
		if !common.AsValidationErrors(err, &shapeErrs) {
			return err
		}
		for field, msg := range shapeErrs.Fields {
			verrs.Add(field, msg)
		}
	}
	if !c.StartTime.After(s.now()) {
		verrs.Add("start_time", "must be in the future")
	}
	return verrs.Err()
}

func (s *ContestService) checkUsersExist(ctx context.Context, field string, userIDs []string) error {
	for _, id := range userIDs {
		if _, err := s.userRepo.FindByID(ctx, id); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return fieldError(field, "unknown user "+id)
			}
			return common.Errorf("looking up user %s: %w", id, err)
		}
	}
	return nil
}

func fieldError(field, message string) error {
	verrs := common.NewValidationErrors()
	verrs.Add(field, message)
	return verrs
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
