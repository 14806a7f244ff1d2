package api

import (
	"net/http"
	"time"
	"tle_zone_contest/internal/api/handler"
	"tle_zone_contest/internal/api/middleware"
	"tle_zone_contest/internal/common/security"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Services struct {
	Contests      handler.ContestManager
	Participation handler.Participation
	Rankings      handler.RankingReader
	Ingester      handler.ResultIngester
}

type RouterConfig struct {
	WebhookSecret string
	// JoinsPerMinute caps join attempts per caller. Zero disables the limit.
	JoinsPerMinute int
	// Gatherer backs /metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(svc Services, cfg RouterConfig, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	var joinLimiter *middleware.RateLimiter
	if cfg.JoinsPerMinute > 0 {
		joinLimiter = middleware.NewRateLimiter(cfg.JoinsPerMinute, cfg.JoinsPerMinute, logger)
	}

	r.Route("/api/v1", func(v1 chi.Router) {
		// Grader callbacks carry a shared secret, not a user token.
		webhookHandler := handler.NewWebhookHandler(svc.Ingester, cfg.WebhookSecret, logger)
		v1.Route("/webhook", webhookHandler.RegisterRoutes)

		v1.Group(func(users chi.Router) {
			users.Use(jwtauth.Verifier(security.TokenAuth))
			contestHandler := handler.NewContestHandler(svc.Contests, svc.Participation, svc.Rankings, joinLimiter, logger)
			users.Route("/contests", contestHandler.RegisterRoutes)
		})
	})

	return r
}
