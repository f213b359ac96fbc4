package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type memInserter struct {
	entries []Entry
	err     error
}

func (m *memInserter) Insert(_ context.Context, entry Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func TestWorkerPersistsEntry(t *testing.T) {
	store := &memInserter{}
	worker := Worker{Store: store, Logger: zerolog.Nop()}

	total := int64(45000)
	entry := Entry{
		OrgID:          uuid.New(),
		ProductID:      uuid.New(),
		Quantity:       10,
		PricingMode:    "venta",
		Total:          &total,
		AppliedRuleIDs: []uuid.UUID{uuid.New()},
		OrderTotal:     140000,
	}
	payload, err := json.Marshal(entry)
	require.NoError(t, err)

	err = worker.HandleQuotePriced(context.Background(), asynq.NewTask(TaskTypeQuotePriced, payload))
	require.NoError(t, err)
	require.Len(t, store.entries, 1)
	require.Equal(t, entry.OrgID, store.entries[0].OrgID)
	require.Equal(t, &total, store.entries[0].Total)
}

func TestWorkerDropsUndecodablePayload(t *testing.T) {
	worker := Worker{Store: &memInserter{}, Logger: zerolog.Nop()}

	err := worker.HandleQuotePriced(context.Background(), asynq.NewTask(TaskTypeQuotePriced, []byte("not json")))
	require.Error(t, err)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestWorkerRetriesOnInsertFailure(t *testing.T) {
	store := &memInserter{err: errors.New("connection refused")}
	worker := Worker{Store: store, Logger: zerolog.Nop()}

	payload, err := json.Marshal(Entry{OrgID: uuid.New(), ProductID: uuid.New(), Quantity: 1, PricingMode: "venta"})
	require.NoError(t, err)

	err = worker.HandleQuotePriced(context.Background(), asynq.NewTask(TaskTypeQuotePriced, payload))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}
