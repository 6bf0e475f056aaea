package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/ledger/validation"
)

// LedgerValidationJob runs the validation orchestrator on a schedule and
// publishes the issue counts as metrics.
type LedgerValidationJob struct {
	Service *validation.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerValidationJob initialises the validation job handler.
func NewLedgerValidationJob(service *validation.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerValidationJob {
	return &LedgerValidationJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes one validation run.
func (j *LedgerValidationJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("ledger validation: handler not configured")
	}
	var payload LedgerValidationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerValidation)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if payload.TriggeredBy != "" {
		logger = logger.With(slog.String("triggered_by", payload.TriggeredBy))
	}
	logger.Info("starting validation run")

	start := time.Now()
	report, err := j.Service.RunWith(ctx, validation.RunOptions{
		IncludePerformance: payload.IncludePerformance,
		ValidateHistorical: payload.ValidateHistorical,
	})
	if err != nil {
		resultErr = err
		logger.Error("validation run failed", slog.Any("error", err))
		return resultErr
	}

	var critical, warning int
	for _, issue := range report.Issues {
		switch issue.Severity {
		case validation.SeverityCritical:
			critical++
		case validation.SeverityWarning:
			warning++
		}
	}
	j.metrics().SetValidationIssues("critical", critical)
	j.metrics().SetValidationIssues("warning", warning)

	logger.Info("completed validation run",
		slog.String("run_id", report.RunID.String()),
		slog.Float64("percent", report.Percent),
		slog.String("band", string(report.Band)),
		slog.Int("critical", critical),
		slog.Int("warning", warning),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *LedgerValidationJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerValidation))
	}
	return slog.Default().With(slog.String("job", TaskLedgerValidation))
}

func (j *LedgerValidationJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
