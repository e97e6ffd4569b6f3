package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "padma:idempotency_cleanup"
	// TaskLotCostAudit re-checks landed costs on received orders.
	TaskLotCostAudit = "padma:lot_cost_audit"
)

// IdempotencyCleanupPayload carries scheduling metadata.
type IdempotencyCleanupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key pruning.
func NewIdempotencyCleanupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// LotCostAuditPayload scopes the audit. OrderID zero means a full sweep.
type LotCostAuditPayload struct {
	OrderID int64  `json:"order_id,omitempty"`
	Number  string `json:"number,omitempty"`
}

// NewLotCostAuditTask constructs an Asynq task for the landed cost audit.
func NewLotCostAuditTask(payload LotCostAuditPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLotCostAudit, body, asynq.Queue(QueueDefault)), nil
}
