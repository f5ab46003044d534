package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity scans posted journals for unbalanced entries and number gaps.
	TaskLedgerIntegrity = "ledger:integrity"

	// TriggerSchedule marks runs enqueued by the worker's scheduler.
	TriggerSchedule = "schedule"
	// TriggerManual marks runs requested by an operator.
	TriggerManual = "manual"
)

// LedgerIntegrityPayload selects the fiscal years to scan. An empty list scans
// every year that has left setup.
type LedgerIntegrityPayload struct {
	FiscalYearIDs []int64   `json:"fiscal_year_ids,omitempty"`
	Trigger       string    `json:"trigger,omitempty"`
	RequestedAt   time.Time `json:"requested_at"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the ledger scan.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
