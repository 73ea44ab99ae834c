package recovery

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodopay/ledger/internal/delivery"
	"github.com/dodopay/ledger/internal/outbox"
)

func TestRun_EnqueuesPendingDueEvents(t *testing.T) {
	store := outbox.NewMemoryStore(func(tenantID string) (string, bool) { return "whe_1", true })
	first, err := store.InsertTx(context.Background(), nil, "tenant_1", "transaction.credit", []byte(`{}`))
	require.NoError(t, err)
	second, err := store.InsertTx(context.Background(), nil, "tenant_1", "transaction.credit", []byte(`{}`))
	require.NoError(t, err)

	ch := make(chan delivery.Message, 2)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, Run(context.Background(), store, ch, logger))
	close(ch)

	var got []string
	for msg := range ch {
		got = append(got, msg.EventID)
	}
	assert.ElementsMatch(t, []string{first, second}, got)
}

func TestRun_SkipsFutureRetries(t *testing.T) {
	store := outbox.NewMemoryStore(func(tenantID string) (string, bool) { return "whe_1", true })
	due, err := store.InsertTx(context.Background(), nil, "tenant_1", "transaction.credit", []byte(`{}`))
	require.NoError(t, err)
	future, err := store.InsertTx(context.Background(), nil, "tenant_1", "transaction.credit", []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, store.ScheduleRetry(context.Background(), future, time.Now().Add(time.Hour)))

	ch := make(chan delivery.Message, 2)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, Run(context.Background(), store, ch, logger))
	close(ch)

	var got []string
	for msg := range ch {
		got = append(got, msg.EventID)
	}
	assert.Equal(t, []string{due}, got)
}
