// Package outbox implements the durable per-event delivery record (spec
// component C3): the transactional-outbox row a ledger commit writes
// alongside its money movement, and the state machine the delivery worker
// drives it through. Grounded on the table shape of the teacher's deleted
// internal/webhooks/postgres_store.go, restructured around the exact
// operation set and the schedule_retry guard the teacher's plain Update
// lacked.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dodopay/ledger/internal/idgen"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

var (
	ErrNotFound = errors.New("outbox: event not found")

	// MaxAttempts is the retry budget from spec.md §4.5: attempts 0-3 are
	// retried, attempt 4 is never scheduled — the row is marked failed
	// instead.
	MaxAttempts = 4
)

// RetryDelay returns the fixed (non-exponential, non-jittered) delay before
// the next delivery attempt after attemptsSoFar prior attempts, and whether
// a retry should be scheduled at all.
func RetryDelay(attemptsSoFar int) (time.Duration, bool) {
	switch attemptsSoFar {
	case 0:
		return 30 * time.Second, true
	case 1:
		return 2 * time.Minute, true
	case 2:
		return 10 * time.Minute, true
	case 3:
		return 1 * time.Hour, true
	default:
		return 0, false
	}
}

// Event is a single durable record of an outbound webhook delivery.
type Event struct {
	ID           string
	TenantID     string
	EndpointID   string
	EventType    string
	Payload      []byte
	Status       Status
	AttemptCount int
	NextRetryAt  *time.Time
	CreatedAt    time.Time
}

// Store persists outbox events and implements ledger.OutboxInserter.
type Store interface {
	// InsertTx co-commits a new pending event inside the caller's ledger
	// transaction.
	InsertTx(ctx context.Context, tx *sql.Tx, tenantID, eventType string, payload []byte) (eventID string, err error)

	Load(ctx context.Context, id string) (*Event, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error

	// ScheduleRetry conditionally bumps attempt_count and next_retry_at,
	// guarded to status='pending' so it can never resurrect a terminal row.
	ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time) error

	// ListPendingDue returns ids where status='pending' and next_retry_at is
	// null or has passed, ordered by created_at — the set Recovery drains at
	// boot.
	ListPendingDue(ctx context.Context) ([]string, error)
}

func newEventID() string {
	return idgen.WithPrefix("evt_")
}
