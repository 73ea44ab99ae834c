// Package recovery implements the startup drain (spec component C6): it
// pushes every pending-due outbox event onto the delivery channel before the
// HTTP server starts accepting traffic, closing the gap left by lost timer
// notifications or a crash between commit and channel send.
package recovery

import (
	"context"
	"log/slog"

	"github.com/dodopay/ledger/internal/delivery"
	"github.com/dodopay/ledger/internal/outbox"
)

// Run lists every pending-due event and pushes it onto ch. It does not
// block waiting for the worker to drain ch — ch must be large enough, or
// consumed concurrently, to avoid stalling startup.
func Run(ctx context.Context, store outbox.Store, ch chan<- delivery.Message, logger *slog.Logger) error {
	ids, err := store.ListPendingDue(ctx)
	if err != nil {
		return err
	}

	logger.Info("recovery: enqueueing pending events", "count", len(ids))
	for _, id := range ids {
		select {
		case ch <- delivery.Message{EventID: id}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
