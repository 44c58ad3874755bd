package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/parishdesk/parishdesk/internal/app"
	"github.com/parishdesk/parishdesk/internal/auth"
	"github.com/parishdesk/parishdesk/internal/observability"
	"github.com/parishdesk/parishdesk/internal/platform/cache"
	"github.com/parishdesk/parishdesk/internal/platform/db"
	"github.com/parishdesk/parishdesk/internal/rbac"
	"github.com/parishdesk/parishdesk/internal/roles"
	"github.com/parishdesk/parishdesk/internal/shared"
	"github.com/parishdesk/parishdesk/internal/users"
	"github.com/parishdesk/parishdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	access, err := app.NewAccessControl(ctx, app.AccessParams{
		Config:     cfg,
		Pool:       pool,
		Redis:      redisClient,
		Registerer: metrics.Registerer(),
		Logger:     logger,
		OnCatalogChange: func(ctx context.Context) {
			payload := jobs.CapabilitiesWarmupPayload{Reason: "catalog change"}
			if err := jobClient.EnqueueCapabilitiesWarmup(ctx, payload); err != nil {
				logger.Warn("enqueue capabilities warmup", slog.Any("error", err))
			}
		},
	})
	if err != nil {
		logger.Error("load role catalog", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.BootstrapAdminEmail != "" {
		res, err := access.Service.Bootstrap(ctx, cfg.BootstrapAccount())
		if err != nil {
			logger.Error("bootstrap administrator", slog.Any("error", err))
			os.Exit(1)
		}
		if res.Outcome != rbac.BootstrapNoop {
			logger.Warn("bootstrap administrator granted",
				slog.String("outcome", string(res.Outcome)),
				slog.Int64("user_id", res.UserID))
		}
	} else {
		logger.Warn("BOOTSTRAP_ADMIN_EMAIL not set, skipping administrator bootstrap")
	}

	// Pub/sub delivers changes promptly; the periodic reload covers missed
	// messages and the memory backend.
	access.ListenCatalog(ctx, logger)
	go app.RefreshCatalog(ctx, access.Service, cfg.CatalogRefreshInterval, logger)

	sessionManager := shared.NewSessionManager(redisClient, "parishdesk_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	mw := rbac.Middleware{Resolver: access.Resolver, Logger: logger}
	authHandler := auth.NewHandler(logger, auth.NewService(auth.NewRepository(pool)), sessionManager, csrfManager)
	usersHandler := users.NewHandler(logger, users.NewService(access.Service), access.Service, mw)
	rolesHandler := roles.NewHandler(logger, roles.NewService(access.Service), mw)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		RolesHandler:   rolesHandler,
		UsersHandler:   usersHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
