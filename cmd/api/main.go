package main

import (
	"context"
	"os/signal"
	"syscall"

	"datacleaner/internal/cache"
	"datacleaner/internal/config"
	"datacleaner/internal/database"
	"datacleaner/internal/detect"
	"datacleaner/internal/handlers"
	"datacleaner/internal/jobs"
	"datacleaner/internal/log"
	"datacleaner/internal/quota"
	"datacleaner/internal/server"
	"datacleaner/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	if cfg.Security.JWTAccessSecret == "" {
		logger.Fatal().Msg("security.jwtaccesssecret is required")
	}

	ctx := context.Background()

	if cfg.Postgres.Migrate {
		if err := database.Migrate(ctx, cfg.Postgres.DSN); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply migrations")
		}
	}

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to init artifact store")
	}

	detector := detect.New(cfg.Detector, logger)

	var locker quota.Locker
	switch cfg.Quota.Lock {
	case config.QuotaLockRedis:
		locker = quota.NewRedisLocker(redisClient, cfg.Quota.LockTTL)
	default:
		locker = quota.NewLocalLocker()
	}

	handlerSet := handlers.NewHandlerSet(logger, cfg, dbPool, redisClient, store, detector, locker)
	httpServer := server.New(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(redisClient, cfg.Worker.Stream, cfg.Jobs.SweepSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := httpServer.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("http server stopped")
	}

	scheduler.Stop()
	dbPool.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
