package webhookendpoint

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, e *Endpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, tenant_id, url, secret, status)
		VALUES ($1,$2,$3,$4,$5)
	`, e.ID, e.TenantID, e.URL, e.Secret, string(e.Status))
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Endpoint, error) {
	return scanEndpoint(s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, url, secret, status FROM webhooks WHERE id = $1
	`, id))
}

func (s *PostgresStore) GetActiveForTenant(ctx context.Context, tenantID string) (*Endpoint, error) {
	return scanEndpoint(s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, url, secret, status FROM webhooks
		WHERE tenant_id = $1 AND status = 'active'
		ORDER BY id LIMIT 1
	`, tenantID))
}

func (s *PostgresStore) Disable(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE webhooks SET status = 'disabled' WHERE id = $1`, id)
	return err
}

// UpdateForTenant applies whichever of url/status are non-nil, scoped to
// tenantID. A 0-row result (wrong tenant or missing id) reports ErrNotFound,
// matching the original's update_webhook/delete_webhook 404-on-zero-rows
// behavior.
func (s *PostgresStore) UpdateForTenant(ctx context.Context, tenantID, id string, url *string, status *Status) error {
	if url == nil && status == nil {
		return nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhooks
		SET url = COALESCE($1, url), status = COALESCE($2, status)
		WHERE id = $3 AND tenant_id = $4
	`, nullableStringPtr(url), nullableStatusPtr(status), id, tenantID)
	if err != nil {
		return err
	}
	return checkRowAffected(res)
}

func (s *PostgresStore) DisableForTenant(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhooks SET status = 'disabled' WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		return err
	}
	return checkRowAffected(res)
}

func checkRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableStringPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableStatusPtr(s *Status) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

func (s *PostgresStore) HasActiveEndpointTx(ctx context.Context, tx *sql.Tx, tenantID string) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT count(*) FROM webhooks WHERE tenant_id = $1 AND status = 'active'
	`, tenantID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanEndpoint(row *sql.Row) (*Endpoint, error) {
	e := &Endpoint{}
	var status string
	err := row.Scan(&e.ID, &e.TenantID, &e.URL, &e.Secret, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Status = Status(status)
	return e, nil
}
