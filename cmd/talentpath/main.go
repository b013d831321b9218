package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/talentpath-hq/talentpath/internal/aging"
	"github.com/talentpath-hq/talentpath/internal/app"
	"github.com/talentpath-hq/talentpath/internal/audit"
	"github.com/talentpath-hq/talentpath/internal/auth"
	"github.com/talentpath-hq/talentpath/internal/observability"
	"github.com/talentpath-hq/talentpath/internal/platform/cache"
	"github.com/talentpath-hq/talentpath/internal/platform/db"
	"github.com/talentpath-hq/talentpath/internal/rbac"
	"github.com/talentpath-hq/talentpath/internal/shared"
	"github.com/talentpath-hq/talentpath/internal/training"
	"github.com/talentpath-hq/talentpath/internal/workflow"
	"github.com/talentpath-hq/talentpath/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "talentpath_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)

	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo, auditLogger)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, rbacService, sessionManager, csrfManager)

	trainingRepo := training.NewRepository(dbpool)
	trainingService := training.NewService(trainingRepo, rbacService, auditLogger)

	workflowRepo := workflow.NewRepository(dbpool)
	workflowService := workflow.NewService(workflowRepo, rbacService, trainingService, auditLogger, workflow.ServiceConfig{
		AllowDropFromAnyStage: cfg.AllowDropFromAnyStage,
	})

	agingRepo := aging.NewRepository(dbpool)
	agingService := aging.NewService(agingRepo, workflowService, rbacService, auditLogger, redisClient)

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo, rbacService)

	metrics := observability.NewMetrics()

	workflowHandler := workflow.NewHandler(logger, workflowService, rbacMiddleware, metrics)
	trainingHandler := training.NewHandler(logger, trainingService, rbacMiddleware)
	agingHandler := aging.NewHandler(logger, agingService, rbacMiddleware)
	auditHandler := audit.NewHandler(logger, auditService, rbacMiddleware)
	rbacHandler := rbac.NewHandler(logger, rbacService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobsClient, logger, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		AuthHandler:     authHandler,
		WorkflowHandler: workflowHandler,
		TrainingHandler: trainingHandler,
		AgingHandler:    agingHandler,
		AuditHandler:    auditHandler,
		RBACHandler:     rbacHandler,
		JobsHandler:     jobsHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
