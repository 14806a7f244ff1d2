package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"tle_zone_contest/internal/api"
	"tle_zone_contest/internal/app/service"
	"tle_zone_contest/internal/app/worker"
	"tle_zone_contest/internal/common/security"
	"tle_zone_contest/internal/domain/repository"
	"tle_zone_contest/internal/platform/cache"
	"tle_zone_contest/internal/platform/config"
	"tle_zone_contest/internal/platform/database"
	"tle_zone_contest/internal/platform/logger"
	"tle_zone_contest/internal/platform/messaging"
	"tle_zone_contest/internal/platform/metrics"

	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Configuration and logging
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	if !cfg.EnvFileLoaded {
		log.Info().Msg("No .env file found, using environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. JWT verification
	security.InitJWT(cfg.JWTKey)

	// 3. Database
	db, err := database.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer database.Close(log)
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Schema migration failed")
	}

	// 4. Redis
	rdb, err := cache.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer rdb.Close()
	rankingCache := cache.NewRedisRankingCache(rdb, cfg.RankingFinalCachePrefix, cfg.RankingFinalCacheTTL)

	// 5. Metrics and Kafka
	m := metrics.New(nil)
	producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.KafkaLeaderboardTopic, log)
	defer producer.Close()

	// 6. Repositories
	contestRepo := repository.NewPgContestRepository(db)
	eventRepo := repository.NewPgSubmissionEventRepository(db)
	problemRepo := repository.NewPgProblemRepository(db)
	userRepo := repository.NewPgUserRepository(db)

	// 7. Ranking workers and services
	rankings := worker.NewRankingManager(contestRepo, eventRepo, rankingCache, cache.NewRedisLocker(rdb), producer, m, log, worker.Config{
		Interval: cfg.RankingRecomputeInterval,
		MinGap:   cfg.RankingMinRecomputeGap,
		LockTTL:  cfg.RankingLockTTL,
	})
	contestService := service.NewContestService(contestRepo, problemRepo, userRepo, rankings, log)
	participationService := service.NewParticipationService(contestRepo, rankings, m, log)
	rankingService := service.NewRankingService(contestRepo, eventRepo, rankings, rankingCache, m, log)
	ingestionService := service.NewIngestionService(contestRepo, eventRepo, rankings, m, log)

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, []string{cfg.KafkaJudgedTopic}, log)
	consumer.RegisterHandler(cfg.KafkaJudgedTopic, ingestionService.HandleSubmissionJudged)
	consumer.OnResult(m.IncKafkaMessage)

	// 8. HTTP server
	router := api.NewRouter(api.Services{
		Contests:      contestService,
		Participation: participationService,
		Rankings:      rankingService,
		Ingester:      ingestionService,
	}, api.RouterConfig{
		WebhookSecret:  cfg.WebhookSecret,
		JoinsPerMinute: cfg.JoinsPerMinute,
	}, log)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 9. Run until a signal arrives or a component fails
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.APIPort).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return rankings.Run(gctx) })
	g.Go(func() error { return consumer.Run(gctx) })

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return
	}
	log.Info().Msg("Server and workers stopped gracefully")
}
