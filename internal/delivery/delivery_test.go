package delivery

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodopay/ledger/internal/outbox"
	"github.com/dodopay/ledger/internal/webhookendpoint"
)

type fakeScheduler struct {
	armed []string
}

func (f *fakeScheduler) Arm(ctx context.Context, eventID string, retryAt time.Time) error {
	f.armed = append(f.armed, eventID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*Worker, *outbox.MemoryStore, *webhookendpoint.MemoryStore) {
	t.Helper()
	endpoints := webhookendpoint.NewMemoryStore()
	ob := outbox.NewMemoryStore(func(tenantID string) (string, bool) {
		e, err := endpoints.GetActiveForTenant(context.Background(), tenantID)
		if err != nil {
			return "", false
		}
		return e.ID, true
	})
	w := NewWorker(ob, endpoints, &fakeScheduler{}, testLogger())
	return w, ob, endpoints
}

func TestProcess_SuccessMarksDelivered(t *testing.T) {
	w, ob, endpoints := setup(t)

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.NotEmpty(t, r.Header.Get("X-Webhook-Signature"))
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	endpoint, err := webhookendpoint.Register(context.Background(), endpoints, "tenant_1", server.URL)
	require.NoError(t, err)

	eventID, err := ob.InsertTx(context.Background(), nil, "tenant_1", "transaction.credit", []byte(`{"ok":true}`))
	require.NoError(t, err)

	w.process(context.Background(), eventID)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	event, err := ob.Load(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, outbox.StatusDelivered, event.Status)
	_ = endpoint
}

func TestProcess_FailureSchedulesRetry(t *testing.T) {
	w, ob, endpoints := setup(t)

	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := webhookendpoint.Register(context.Background(), endpoints, "tenant_1", server.URL)
	require.NoError(t, err)

	eventID, err := ob.InsertTx(context.Background(), nil, "tenant_1", "transaction.credit", []byte(`{}`))
	require.NoError(t, err)

	w.process(context.Background(), eventID)

	event, err := ob.Load(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, outbox.StatusPending, event.Status)
	assert.Equal(t, 1, event.AttemptCount)
	require.NotNil(t, event.NextRetryAt)
}

func TestProcess_ExhaustedAttemptsMarksFailed(t *testing.T) {
	w, ob, endpoints := setup(t)

	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := webhookendpoint.Register(context.Background(), endpoints, "tenant_1", server.URL)
	require.NoError(t, err)

	eventID, err := ob.InsertTx(context.Background(), nil, "tenant_1", "transaction.credit", []byte(`{}`))
	require.NoError(t, err)

	// 4 attempts get scheduled (30s, 2m, 10m, 1h); the 5th call sees
	// attempt_count=4 and exhausts the retry budget.
	for i := 0; i < 5; i++ {
		w.process(context.Background(), eventID)
	}

	event, err := ob.Load(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, outbox.StatusFailed, event.Status)
	assert.Equal(t, 4, event.AttemptCount)
}

func TestProcess_DisabledEndpointLeavesEventPending(t *testing.T) {
	w, ob, endpoints := setup(t)

	endpoint, err := webhookendpoint.Register(context.Background(), endpoints, "tenant_1", "https://example.invalid/hook")
	require.NoError(t, err)

	eventID, err := ob.InsertTx(context.Background(), nil, "tenant_1", "transaction.credit", []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, endpoints.Disable(context.Background(), endpoint.ID))

	w.process(context.Background(), eventID)

	event, err := ob.Load(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, outbox.StatusPending, event.Status)
	assert.Equal(t, 0, event.AttemptCount)
}
