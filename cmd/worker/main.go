package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/app"
	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/ledger/coa"
	"github.com/meridian-erp/meridian-erp/internal/ledger/reconcile"
	"github.com/meridian-erp/meridian-erp/internal/ledger/validation"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/jobs"
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

	metrics := jobmetrics.NewMetrics(nil)
	auditLogger := shared.NewAuditLogger(pool)

	coaRepo := coa.NewRepository(pool)

	reconcileRepo := reconcile.NewRepository(pool)
	reconcileService := reconcile.NewService(reconcileRepo, auditLogger, logger)
	reconcileJob := jobs.NewLedgerReconcileJob(coaRepo, reconcileService, logger, metrics)

	validationRepo := validation.NewRepository(pool)
	validationStore := validation.NewRedisStore(redisClient, cfg.ValidationReportTTL)
	validationService := validation.NewService(validationRepo, validationStore, logger, validation.Config{
		LinkWarnRate:    cfg.ValidationLinkWarnRate,
		LinkFailRate:    cfg.ValidationLinkFailRate,
		StalenessWindow: cfg.ValidationStaleness,
		HistorySize:     cfg.ValidationHistorySize,
	})
	validationJob := jobs.NewLedgerValidationJob(validationService, logger, metrics)

	validationTask, err := jobs.NewLedgerValidationTask(jobs.LedgerValidationPayload{
		TriggeredBy:        "cron",
		IncludePerformance: true,
	})
	if err != nil {
		logger.Error("build validation task", slog.Any("error", err))
		os.Exit(1)
	}
	reconcileTask, err := jobs.NewLedgerReconcileTask(jobs.LedgerReconcilePayload{})
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerValidation, Handler: validationJob.Handle},
			{Type: jobs.TaskLedgerReconcile, Handler: reconcileJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 1 * * *", Task: validationTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
