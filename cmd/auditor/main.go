package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"plantops/portal/internal/audit"
	"plantops/portal/internal/cache"
	"plantops/portal/internal/config"
	"plantops/portal/internal/database"
	"plantops/portal/internal/log"
	"plantops/portal/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment).With().Str("component", "auditor").Logger()

	if cfg.Postgres.DSN == "" {
		logger.Fatal().Msg("auditor needs postgres.dsn")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pool.Close()

	entries := repository.NewAuditRepository(pool)
	if err := entries.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("audit schema failed")
	}

	consumer := audit.NewConsumer(
		client,
		cfg.Audit.Stream,
		cfg.Audit.Group,
		cfg.Audit.Consumer,
		cfg.Audit.ClaimInterval,
		logger,
		audit.NewRecorder(entries, logger),
	)

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	logger.Info().Str("stream", cfg.Audit.Stream).Str("group", cfg.Audit.Group).Msg("auditor started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	time.Sleep(500 * time.Millisecond)
}
