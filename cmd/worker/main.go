package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/parishdesk/parishdesk/internal/app"
	"github.com/parishdesk/parishdesk/internal/platform/cache"
	"github.com/parishdesk/parishdesk/internal/platform/db"
	"github.com/parishdesk/parishdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	access, err := app.NewAccessControl(ctx, app.AccessParams{
		Config: cfg,
		Pool:   pool,
		Redis:  redisClient,
		Logger: logger,
	})
	if err != nil {
		logger.Error("load role catalog", slog.Any("error", err))
		os.Exit(1)
	}

	access.ListenCatalog(ctx, logger)
	go app.RefreshCatalog(ctx, access.Service, cfg.CatalogRefreshInterval, logger)

	bootstrapJob := &jobs.BootstrapRepairJob{Core: access.Service, Account: cfg.BootstrapAccount(), Logger: logger}
	warmupJob := &jobs.CapabilitiesWarmupJob{Users: access.Repository, Core: access.Service, Logger: logger}

	warmupTask, err := jobs.NewCapabilitiesWarmupTask(jobs.CapabilitiesWarmupPayload{Reason: "scheduled"})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBootstrapRepair, Handler: bootstrapJob.Handle},
			{Type: jobs.TaskCapabilitiesWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.BootstrapRepairCron, Task: jobs.NewBootstrapRepairTask()},
			{Spec: cfg.CapabilityWarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	// Repair once at start instead of waiting for the first cron tick.
	if cfg.BootstrapAdminEmail != "" {
		client, err := jobs.NewClient(redisOpts)
		if err == nil {
			if err := client.EnqueueBootstrapRepair(ctx); err != nil {
				logger.Warn("enqueue bootstrap repair", slog.Any("error", err))
			}
			_ = client.Close()
		}
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
