package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/padma-erp/padma-erp/internal/jobs"
	"github.com/padma-erp/padma-erp/internal/shared"
)

// NewIdempotencyCleanupHandler prunes keys older than the retention window.
func NewIdempotencyCleanupHandler(store *shared.IdempotencyStore, retention time.Duration, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("idempotency_cleanup")
		err := store.Cleanup(ctx, retention)
		if err != nil {
			logger.Error("idempotency cleanup", slog.Any("error", err))
		} else {
			logger.Info("idempotency cleanup", slog.Duration("retention", retention))
		}
		return tracker.End(err)
	}
}
