package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hydroventas/pricing-api/internal/obs"
)

// Recorder enqueues audit entries onto asynq for the worker to persist.
type Recorder struct {
	Client  *asynq.Client
	Enabled bool
	// MaxRetry bounds redelivery attempts; zero uses a conservative default.
	MaxRetry int
}

// Record enqueues one entry. A disabled or unconfigured recorder is a no-op
// so the quote path degrades instead of failing.
func (r Recorder) Record(ctx context.Context, entry Entry) error {
	if !r.Enabled || r.Client == nil {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	maxRetry := r.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 5
	}
	task := asynq.NewTask(TaskTypeQuotePriced, payload)
	_, err = r.Client.EnqueueContext(ctx, task,
		asynq.Queue(Queue),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(30*time.Second),
	)
	if obs.AuditEnqueuedTotal != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		obs.AuditEnqueuedTotal.WithLabelValues(result).Inc()
	}
	if err != nil {
		return fmt.Errorf("enqueue audit entry: %w", err)
	}
	return nil
}
