package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"tle_zone_contest/internal/api/middleware"
	"tle_zone_contest/internal/app/service"
	"tle_zone_contest/internal/common"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type ResultIngester interface {
	Ingest(ctx context.Context, source string, r service.GradingResult) error
}

type WebhookHandler struct {
	ingester ResultIngester
	secret   string
	logger   zerolog.Logger
}

func NewWebhookHandler(ingester ResultIngester, secret string, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingester: ingester,
		secret:   secret,
		logger:   logger.With().Str("component", "webhook-handler").Logger(),
	}
}

func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.With(middleware.WebhookSecret(h.secret)).Post("/grading", h.handleGradingResult)
}

func (h *WebhookHandler) handleGradingResult(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload service.GradingResult
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn().Err(err).Msg("Invalid grading payload")
		common.RespondWithError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	if err := h.ingester.Ingest(r.Context(), service.SourceWebhook, payload); err != nil {
		h.logger.Warn().Err(err).Int64("sequenceId", payload.SequenceID).Msg("Failed to ingest grading result")
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Grading result accepted for submission " + payload.SubmissionID})
}
