// Package delivery implements the single-consumer webhook delivery loop
// (spec component C5): it drains event ids from a channel fed by the ledger,
// the delay scheduler, and recovery, and POSTs each event's payload to its
// tenant's endpoint with a fixed retry schedule. Adapted from the teacher's
// deleted internal/webhooks Dispatcher.send, restructured around a shared
// outbox row (durable attempt_count) instead of an in-memory retry loop, so
// at-least-once delivery survives process restarts.
package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dodopay/ledger/internal/circuitbreaker"
	"github.com/dodopay/ledger/internal/outbox"
	"github.com/dodopay/ledger/internal/webhookendpoint"
)

// Message is the unit of work on the delivery channel — a pointer into the
// outbox, never a payload (spec.md §3's ownership rule).
type Message struct {
	EventID string
}

// Scheduler arms a future retry wake-up; satisfied by *delayscheduler.Scheduler.
type Scheduler interface {
	Arm(ctx context.Context, eventID string, retryAt time.Time) error
}

// Worker is the single consumer of the delivery channel.
type Worker struct {
	outbox    outbox.Store
	endpoints webhookendpoint.Store
	scheduler Scheduler
	client    *http.Client
	breaker   *circuitbreaker.Breaker
	logger    *slog.Logger
}

const httpTimeout = 10 * time.Second

func NewWorker(outboxStore outbox.Store, endpoints webhookendpoint.Store, scheduler Scheduler, logger *slog.Logger) *Worker {
	return &Worker{
		outbox:    outboxStore,
		endpoints: endpoints,
		scheduler: scheduler,
		client:    &http.Client{Timeout: httpTimeout},
		breaker:   circuitbreaker.New(5, 30*time.Second),
		logger:    logger,
	}
}

// Run consumes messages from ch until it is closed or ctx is cancelled.
func (w *Worker) Run(ctx context.Context, ch <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.process(ctx, msg.EventID)
		}
	}
}

func (w *Worker) process(ctx context.Context, eventID string) {
	event, err := w.outbox.Load(ctx, eventID)
	if errors.Is(err, outbox.ErrNotFound) {
		w.logger.Warn("delivery: event not found, skipping", "event_id", eventID)
		return
	}
	if err != nil {
		w.logger.Error("delivery: load event failed, recovery will retry", "event_id", eventID, "error", err)
		return
	}
	if event.Status != outbox.StatusPending {
		return // terminal; nothing to do
	}

	endpoint, err := w.endpoints.Get(ctx, event.EndpointID)
	if errors.Is(err, webhookendpoint.ErrNotFound) || (err == nil && endpoint.Status != webhookendpoint.StatusActive) {
		w.logger.Warn("delivery: endpoint missing or disabled, leaving event pending", "event_id", eventID)
		return
	}
	if err != nil {
		w.logger.Error("delivery: load endpoint failed", "event_id", eventID, "error", err)
		return
	}

	if !w.breaker.Allow(endpoint.ID) {
		w.logger.Warn("delivery: circuit open for endpoint, deferring", "endpoint_id", endpoint.ID)
		w.retryOrFail(ctx, event.ID, event.AttemptCount)
		return
	}

	if w.post(ctx, endpoint.URL, endpoint.Secret, event.Payload) {
		w.breaker.RecordSuccess(endpoint.ID)
		if err := w.outbox.MarkDelivered(ctx, event.ID); err != nil && !errors.Is(err, outbox.ErrNotFound) {
			w.logger.Error("delivery: mark delivered failed", "event_id", event.ID, "error", err)
		}
		return
	}

	w.breaker.RecordFailure(endpoint.ID)
	w.retryOrFail(ctx, event.ID, event.AttemptCount)
}

func (w *Worker) retryOrFail(ctx context.Context, eventID string, attemptsSoFar int) {
	delay, ok := outbox.RetryDelay(attemptsSoFar)
	if !ok {
		if err := w.outbox.MarkFailed(ctx, eventID); err != nil && !errors.Is(err, outbox.ErrNotFound) {
			w.logger.Error("delivery: mark failed failed", "event_id", eventID, "error", err)
		}
		return
	}

	nextRetryAt := time.Now().Add(delay)
	if err := w.outbox.ScheduleRetry(ctx, eventID, nextRetryAt); err != nil {
		if !errors.Is(err, outbox.ErrNotFound) {
			w.logger.Error("delivery: schedule retry failed", "event_id", eventID, "error", err)
		}
		return
	}
	if err := w.scheduler.Arm(ctx, eventID, nextRetryAt); err != nil {
		w.logger.Error("delivery: arm retry timer failed, recovery will catch it", "event_id", eventID, "error", err)
	}
}

// post sends the payload and reports whether the response was 2xx. Any
// transport error, timeout, or non-2xx status is a delivery_transient
// failure per spec.md §7. The signature header is an addition beyond the
// observed contract (spec.md §9's open question): receivers may verify
// authenticity against the endpoint's stored secret.
func (w *Worker) post(ctx context.Context, url, secret string, payload []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", sign(secret, payload))

	resp, err := w.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// sign computes HMAC-SHA256(secret, payload) hex-encoded.
func sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
