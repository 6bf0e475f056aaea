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

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/ledger/coa"
	"github.com/meridian-erp/meridian-erp/internal/ledger/mappings"
	"github.com/meridian-erp/meridian-erp/internal/ledger/posting"
	"github.com/meridian-erp/meridian-erp/internal/ledger/reconcile"
	"github.com/meridian-erp/meridian-erp/internal/ledger/settlement"
	"github.com/meridian-erp/meridian-erp/internal/ledger/validation"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/party"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
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
	metrics := observability.NewMetrics()

	coaRepo := coa.NewRepository(pool)
	coaService := coa.NewService(coaRepo, logger)
	coaHandler := coa.NewHandler(logger, coaService)

	postingRepo := posting.NewRepository(pool)
	postingService := posting.NewService(postingRepo, auditLogger, logger)
	postingHandler := posting.NewHandler(logger, postingService)
	postingHandler.WithMetrics(metrics)

	settlementRepo := settlement.NewRepository(pool)
	settlementService := settlement.NewService(settlementRepo, postingService, auditLogger, logger)
	settlementService.WithMappings(mappings.NewProvider(mappings.NewRepository(pool)))
	settlementHandler := settlement.NewHandler(logger, settlementService)
	settlementHandler.WithMetrics(metrics)

	reconcileRepo := reconcile.NewRepository(pool)
	reconcileService := reconcile.NewService(reconcileRepo, auditLogger, logger)
	reconcileHandler := reconcile.NewHandler(logger, reconcileService)

	validationRepo := validation.NewRepository(pool)
	validationStore := validation.NewRedisStore(redisClient, cfg.ValidationReportTTL)
	validationService := validation.NewService(validationRepo, validationStore, logger, validation.Config{
		LinkWarnRate:    cfg.ValidationLinkWarnRate,
		LinkFailRate:    cfg.ValidationLinkFailRate,
		StalenessWindow: cfg.ValidationStaleness,
		HistorySize:     cfg.ValidationHistorySize,
	})
	validationHandler := validation.NewHandler(logger, validationService)

	partyRepo := party.NewRepository(pool)
	partyService := party.NewService(partyRepo, coaService, party.ControlAccounts{
		Customer: cfg.CustomerControlCode,
		Supplier: cfg.SupplierControlCode,
		Employee: cfg.EmployeeControlCode,
	}, logger)
	partyHandler := party.NewHandler(logger, partyService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AccountsHandler:   coaHandler,
		JournalsHandler:   postingHandler,
		SettlementHandler: settlementHandler,
		ReconcileHandler:  reconcileHandler,
		ValidationHandler: validationHandler,
		PartyHandler:      partyHandler,
		JobsHandler:       jobsHandler,
		Metrics:           metrics,
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
