package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Inserter is the persistence the worker needs; satisfied by *Store.
type Inserter interface {
	Insert(ctx context.Context, entry Entry) error
}

// Worker consumes audit tasks and persists them.
type Worker struct {
	Store  Inserter
	Logger zerolog.Logger
}

// HandleQuotePriced processes one TaskTypeQuotePriced task. A payload that
// cannot be decoded is dropped rather than retried forever.
func (w Worker) HandleQuotePriced(ctx context.Context, task *asynq.Task) error {
	var entry Entry
	if err := json.Unmarshal(task.Payload(), &entry); err != nil {
		w.Logger.Error().Err(err).Msg("drop undecodable audit task")
		return fmt.Errorf("decode audit entry: %w: %w", err, asynq.SkipRetry)
	}
	if err := w.Store.Insert(ctx, entry); err != nil {
		w.Logger.Error().Err(err).
			Str("org_id", entry.OrgID.String()).
			Str("product_id", entry.ProductID.String()).
			Msg("persist audit entry")
		return err
	}
	w.Logger.Debug().
		Str("org_id", entry.OrgID.String()).
		Int("applied_rules", len(entry.AppliedRuleIDs)).
		Msg("audit entry persisted")
	return nil
}

// Mux returns the asynq handler mux for the audit queues.
func (w Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeQuotePriced, w.HandleQuotePriced)
	return mux
}
