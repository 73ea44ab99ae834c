package outbox

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// InsertTx resolves tenantID's active webhook endpoint and inserts a pending
// event row in the caller's transaction. The caller (ledger.Engine.commit)
// has already confirmed an active endpoint exists via HasActiveEndpointTx,
// but re-resolves it here rather than threading the id through the ledger
// interface, keeping ledger.OutboxInserter's signature endpoint-agnostic.
func (s *PostgresStore) InsertTx(ctx context.Context, tx *sql.Tx, tenantID, eventType string, payload []byte) (string, error) {
	var endpointID string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM webhooks WHERE tenant_id = $1 AND status = 'active' ORDER BY id LIMIT 1
	`, tenantID).Scan(&endpointID)
	if err != nil {
		return "", err
	}

	id := newEventID()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO webhook_events
			(id, tenant_id, endpoint_id, event_type, payload, status, attempt_count)
		VALUES ($1,$2,$3,$4,$5,$6,0)
	`, id, tenantID, endpointID, eventType, []byte(payload), string(StatusPending))
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*Event, error) {
	return scanEvent(s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, endpoint_id, event_type, payload, status, attempt_count, next_retry_at, created_at
		FROM webhook_events WHERE id = $1
	`, id))
}

func (s *PostgresStore) MarkDelivered(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_events SET status = $1 WHERE id = $2 AND status = $3
	`, string(StatusDelivered), id, string(StatusPending))
	return checkRowAffected(res, err)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_events SET status = $1 WHERE id = $2 AND status = $3
	`, string(StatusFailed), id, string(StatusPending))
	return checkRowAffected(res, err)
}

// ScheduleRetry bumps attempt_count and sets next_retry_at, guarded to
// status='pending' so a race with MarkDelivered/MarkFailed can never
// resurrect a terminal row (spec.md §4.3's invariant guard).
func (s *PostgresStore) ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET attempt_count = attempt_count + 1, next_retry_at = $1
		WHERE id = $2 AND status = $3
	`, nextRetryAt, id, string(StatusPending))
	return checkRowAffected(res, err)
}

func (s *PostgresStore) ListPendingDue(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM webhook_events
		WHERE status = $1 AND (next_retry_at IS NULL OR next_retry_at <= now())
		ORDER BY created_at
	`, string(StatusPending))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func checkRowAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEvent(row *sql.Row) (*Event, error) {
	e := &Event{}
	var (
		status      string
		payload     []byte
		nextRetryAt sql.NullTime
	)
	err := row.Scan(&e.ID, &e.TenantID, &e.EndpointID, &e.EventType, &payload, &status, &e.AttemptCount, &nextRetryAt, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Status = Status(status)
	e.Payload = payload
	if nextRetryAt.Valid {
		t := nextRetryAt.Time
		e.NextRetryAt = &t
	}
	return e, nil
}
