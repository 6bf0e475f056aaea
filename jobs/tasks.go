package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerValidation runs the full validation orchestrator.
	TaskLedgerValidation = "ledger:validation"
	// TaskLedgerReconcile recomputes account balances from postings.
	TaskLedgerReconcile = "ledger:reconcile"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// LedgerValidationPayload tunes a scheduled validation run.
type LedgerValidationPayload struct {
	// TriggeredBy records what enqueued the run, for the job log.
	TriggeredBy string `json:"triggered_by,omitempty"`
	// IncludePerformance adds the scan-timing module to the run.
	IncludePerformance bool `json:"include_performance,omitempty"`
	// ValidateHistorical scans full journal history instead of the
	// configured window.
	ValidateHistorical bool `json:"validate_historical,omitempty"`
}

// NewLedgerValidationTask constructs the validation task.
func NewLedgerValidationTask(payload LedgerValidationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerValidation, data), nil
}

// LedgerReconcilePayload tunes a scheduled reconciliation sweep.
type LedgerReconcilePayload struct {
	// Repair overwrites drifted balances instead of only reporting them.
	Repair bool `json:"repair"`
}

// NewLedgerReconcileTask constructs the reconciliation task.
func NewLedgerReconcileTask(payload LedgerReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, data), nil
}
