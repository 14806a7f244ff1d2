package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
	"tle_zone_contest/internal/api/middleware"
	"tle_zone_contest/internal/app/service"
	"tle_zone_contest/internal/common"
	"tle_zone_contest/internal/domain/model"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type ContestManager interface {
	CreateContest(ctx context.Context, actor service.Actor, req service.CreateContestRequest) (*model.Contest, error)
	GetContest(ctx context.Context, id string) (*model.Contest, error)
	GetContestStatus(ctx context.Context, id string) (*service.ContestStatusResponse, error)
	UpdateContest(ctx context.Context, actor service.Actor, id string, req service.UpdateContestRequest) (*model.Contest, error)
	CancelContest(ctx context.Context, actor service.Actor, id string) (*model.Contest, error)
	InviteUsers(ctx context.Context, actor service.Actor, id string, userIDs []string) error
}

type Participation interface {
	JoinContest(ctx context.Context, contestID, userID, password string) (*model.Participant, error)
	LeaveContest(ctx context.Context, contestID, userID string) error
}

type RankingReader interface {
	GetRanking(ctx context.Context, viewer service.Actor, contestID string, q service.RankingQuery) (*model.RankingView, error)
}

type ContestHandler struct {
	contests      ContestManager
	participation Participation
	rankings      RankingReader
	joinLimiter   *middleware.RateLimiter
	logger        zerolog.Logger
}

// NewContestHandler wires the contest routes. joinLimiter may be nil.
func NewContestHandler(contests ContestManager, participation Participation, rankings RankingReader, joinLimiter *middleware.RateLimiter, logger zerolog.Logger) *ContestHandler {
	return &ContestHandler{
		contests:      contests,
		participation: participation,
		rankings:      rankings,
		joinLimiter:   joinLimiter,
		logger:        logger.With().Str("component", "contest-handler").Logger(),
	}
}

type inviteUsersRequest struct {
	UserIDs []string `json:"user_ids"`
}

func (h *ContestHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(public chi.Router) {
		public.Use(middleware.Identify)
		public.Get("/{contestID}", h.getContest)
		public.Get("/{contestID}/status", h.getContestStatus)
		// ?as_of=<RFC3339>&include_unofficial=<bool>
		public.Get("/{contestID}/ranking", h.getRanking)
	})

	r.Group(func(authed chi.Router) {
		authed.Use(middleware.Authenticator)
		authed.Post("/", h.createContest)
		authed.Patch("/{contestID}", h.updateContest)
		authed.Post("/{contestID}/cancel", h.cancelContest)
		authed.Post("/{contestID}/invitations", h.inviteUsers)
		authed.Post("/{contestID}/leave", h.leaveContest)
		authed.Group(func(join chi.Router) {
			if h.joinLimiter != nil {
				join.Use(h.joinLimiter.Middleware)
			}
			join.Post("/{contestID}/join", h.joinContest)
		})
	})
}

func (h *ContestHandler) createContest(w http.ResponseWriter, r *http.Request) {
	var req service.CreateContestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	c, err := h.contests.CreateContest(r.Context(), actorFrom(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, c)
}

func (h *ContestHandler) getContest(w http.ResponseWriter, r *http.Request) {
	c, err := h.contests.GetContest(r.Context(), chi.URLParam(r, "contestID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, c)
}

func (h *ContestHandler) getContestStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.contests.GetContestStatus(r.Context(), chi.URLParam(r, "contestID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, status)
}

func (h *ContestHandler) updateContest(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateContestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	c, err := h.contests.UpdateContest(r.Context(), actorFrom(r), chi.URLParam(r, "contestID"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, c)
}

func (h *ContestHandler) cancelContest(w http.ResponseWriter, r *http.Request) {
	c, err := h.contests.CancelContest(r.Context(), actorFrom(r), chi.URLParam(r, "contestID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, c)
}

func (h *ContestHandler) inviteUsers(w http.ResponseWriter, r *http.Request) {
	var req inviteUsersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	if err := h.contests.InviteUsers(r.Context(), actorFrom(r), chi.URLParam(r, "contestID"), req.UserIDs); err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]int{"invited": len(req.UserIDs)})
}

func (h *ContestHandler) joinContest(w http.ResponseWriter, r *http.Request) {
	var req service.JoinContestRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			common.RespondWithError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
			return
		}
	}

	actor := actorFrom(r)
	p, err := h.participation.JoinContest(r.Context(), chi.URLParam(r, "contestID"), actor.UserID, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, p)
}

func (h *ContestHandler) leaveContest(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if err := h.participation.LeaveContest(r.Context(), chi.URLParam(r, "contestID"), actor.UserID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContestHandler) getRanking(w http.ResponseWriter, r *http.Request) {
	var q service.RankingQuery
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			common.RespondWithError(w, http.StatusBadRequest, "as_of must be an RFC3339 timestamp")
			return
		}
		q.AsOf = &asOf
	}
	if raw := r.URL.Query().Get("include_unofficial"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			common.RespondWithError(w, http.StatusBadRequest, "include_unofficial must be a boolean")
			return
		}
		q.IncludeUnofficial = include
	}

	view, err := h.rankings.GetRanking(r.Context(), actorFrom(r), chi.URLParam(r, "contestID"), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, view)
}

func (h *ContestHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if common.HTTPStatusFromError(err) >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	common.RespondWithDomainError(w, err)
}

// actorFrom reads the identity set by Authenticator or Identify. Anonymous callers
// get a zero Actor.
func actorFrom(r *http.Request) service.Actor {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	role, _ := middleware.GetUserRoleFromContext(r.Context())
	return service.Actor{UserID: userID, Role: role}
}
