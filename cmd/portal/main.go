package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"plantops/portal/internal/authz"
	"plantops/portal/internal/bootstrap"
	"plantops/portal/internal/config"
	"plantops/portal/internal/guard"
	"plantops/portal/internal/handlers"
	"plantops/portal/internal/jobs"
	"plantops/portal/internal/log"
	"plantops/portal/internal/route"
	"plantops/portal/internal/server"
	"plantops/portal/internal/service"
	"plantops/portal/internal/session"
	"plantops/portal/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	stores, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		stores.Close()
		logger.Fatal().Err(err).Msg("failed to open stores")
	}

	events := stores.Publisher(cfg.Audit)
	sessions := session.NewManager(stores.Credentials, stores.KV, events, session.Config{
		LoginPath:     cfg.Guard.LoginPath,
		TTL:           cfg.Session.TTL,
		UpgradeHashes: cfg.Session.UpgradeHashes,
	}, logger)
	enforcer, err := authz.New(route.Capabilities)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build capability enforcer")
	}
	users := service.NewUserService(stores.Credentials, sessions, enforcer, events, logger)

	if _, err := users.EnsureAdmin(ctx, service.BootstrapAdmin{
		Username: cfg.Bootstrap.AdminUsername,
		NIK:      cfg.Bootstrap.AdminNIK,
		Password: cfg.Bootstrap.AdminPassword,
	}); err != nil {
		logger.Fatal().Err(err).Msg("bootstrap admin failed")
	}

	navGuard := guard.New(sessions, enforcer, guard.Config{
		LoginPath:             cfg.Guard.LoginPath,
		RedirectAuthenticated: cfg.Guard.RedirectAuthenticated,
		RetryAfter:            cfg.Guard.RetryAfter,
		PublicPaths:           []string{"/logout"},
	}, logger)

	handlerSet := handlers.NewHandlerSet(logger, cfg.Environment, sessions, users, enforcer, navGuard, stores.Pingers()...)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := newScheduler(ctx, cfg, stores, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, stores)
}

func newScheduler(ctx context.Context, cfg *config.AppConfig, stores *bootstrap.Stores, logger zerolog.Logger) *jobs.Scheduler {
	opts := jobs.Options{BackupBucket: cfg.Backup.Bucket}

	var snapshots jobs.SnapshotStore
	if cfg.Backup.Enabled {
		objectStore, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			logger.Error().Err(err).Msg("init object store failed; backups disabled")
		} else if err := objectStore.EnsureBucket(ctx, cfg.Backup.Bucket); err != nil {
			logger.Warn().Err(err).Msg("ensure backup bucket failed; backups disabled")
		} else {
			snapshots = objectStore
			opts.BackupSchedule = cfg.Backup.Schedule
		}
	}

	var trimmer jobs.StreamTrimmer
	if publisher, ok := stores.Publisher(cfg.Audit).(jobs.StreamTrimmer); ok {
		trimmer = publisher
		opts.TrimSchedule = "0 30 * * * *"
	}

	return jobs.NewScheduler(stores.Credentials, snapshots, trimmer, opts, logger)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, stores *bootstrap.Stores) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduled jobs still running at exit")
	}

	stores.Close()

	logger.Info().Msg("server exited cleanly")
}
