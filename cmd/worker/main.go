package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/talentpath-hq/talentpath/internal/aging"
	"github.com/talentpath-hq/talentpath/internal/app"
	jobmetrics "github.com/talentpath-hq/talentpath/internal/jobs"
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

	auditLogger := shared.NewAuditLogger(pool)

	rbacRepo := rbac.NewRepository(pool)
	rbacService := rbac.NewService(rbacRepo, auditLogger)

	trainingRepo := training.NewRepository(pool)
	trainingService := training.NewService(trainingRepo, rbacService, auditLogger)

	workflowRepo := workflow.NewRepository(pool)
	workflowService := workflow.NewService(workflowRepo, rbacService, trainingService, auditLogger, workflow.ServiceConfig{
		AllowDropFromAnyStage: cfg.AllowDropFromAnyStage,
	})

	agingRepo := aging.NewRepository(pool)
	agingService := aging.NewService(agingRepo, workflowService, rbacService, auditLogger, redisClient)

	metrics := jobmetrics.NewMetrics(nil)
	recomputeJob := jobs.NewAgingRecomputeJob(agingService, logger, metrics)

	recomputeTask, err := jobs.NewAgingRecomputeTask(time.Now().UTC())
	if err != nil {
		logger.Error("build recompute task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAgingRecompute, Handler: recomputeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.AgingCronSpec, Task: recomputeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
