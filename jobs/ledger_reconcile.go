package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/ledger/coa"
	"github.com/meridian-erp/meridian-erp/internal/ledger/reconcile"
)

// LedgerReconcileJob sweeps every postable account, recomputes its balance
// from GL rows and reports drift. Repair is opt-in through the payload.
type LedgerReconcileJob struct {
	Accounts  coa.Repository
	Reconcile *reconcile.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLedgerReconcileJob initialises the reconciliation job handler.
func NewLedgerReconcileJob(accounts coa.Repository, svc *reconcile.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerReconcileJob {
	return &LedgerReconcileJob{Accounts: accounts, Reconcile: svc, Logger: logger, Metrics: metrics}
}

// Handle executes one reconciliation sweep.
func (j *LedgerReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Accounts == nil || j.Reconcile == nil {
		return errors.New("ledger reconcile: handler not configured")
	}
	var payload LedgerReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Bool("repair", payload.Repair))
	logger.Info("starting reconciliation sweep")
	start := time.Now()

	accounts, err := j.Accounts.List(ctx)
	if err != nil {
		resultErr = err
		logger.Error("list accounts", slog.Any("error", err))
		return resultErr
	}

	var checked, drifted, repaired int
	for _, account := range accounts {
		if account.IsGroup {
			continue
		}
		if err := ctx.Err(); err != nil {
			resultErr = err
			return resultErr
		}
		result, err := j.Reconcile.Recalculate(ctx, account.ID, payload.Repair)
		if err != nil {
			resultErr = err
			logger.Error("recalculate account", slog.Any("error", err), slog.String("code", account.Code))
			return resultErr
		}
		checked++
		if result.Repaired {
			repaired++
			drifted++
			continue
		}
		if !result.InSync {
			drifted++
		}
	}
	j.metrics().AddBalanceDrift(drifted)

	tb, err := j.Reconcile.CheckTrialBalance(ctx)
	if err != nil {
		resultErr = err
		logger.Error("trial balance", slog.Any("error", err))
		return resultErr
	}
	if !tb.Balanced {
		logger.Warn("trial balance off",
			slog.Float64("debit_total", tb.DebitTotal),
			slog.Float64("credit_total", tb.CreditTotal),
			slog.Float64("difference", tb.Difference))
	}

	logger.Info("completed reconciliation sweep",
		slog.Int("checked", checked),
		slog.Int("drifted", drifted),
		slog.Int("repaired", repaired),
		slog.Bool("trial_balanced", tb.Balanced),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *LedgerReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerReconcile))
	}
	return slog.Default().With(slog.String("job", TaskLedgerReconcile))
}

func (j *LedgerReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
