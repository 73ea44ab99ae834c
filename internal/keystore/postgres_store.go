package keystore

import (
	"context"
	"database/sql"
)

// PostgresStore persists API keys in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed keystore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, key *APIKey) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, tenant_id, hash, name, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, key.ID, key.TenantID, key.Hash, key.Name, key.Status, key.CreatedAt, key.ExpiresAt)
	return err
}

func (p *PostgresStore) GetByHash(ctx context.Context, hash string) (*APIKey, error) {
	return p.scanOne(ctx, `
		SELECT id, tenant_id, hash, name, status, created_at, last_used, expires_at
		FROM api_keys WHERE hash = $1
	`, hash)
}

func (p *PostgresStore) GetByID(ctx context.Context, id string) (*APIKey, error) {
	return p.scanOne(ctx, `
		SELECT id, tenant_id, hash, name, status, created_at, last_used, expires_at
		FROM api_keys WHERE id = $1
	`, id)
}

func (p *PostgresStore) scanOne(ctx context.Context, query string, arg any) (*APIKey, error) {
	key := &APIKey{}
	var lastUsed, expiresAt sql.NullTime

	err := p.db.QueryRowContext(ctx, query, arg).Scan(
		&key.ID, &key.TenantID, &key.Hash, &key.Name, &key.Status,
		&key.CreatedAt, &lastUsed, &expiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		key.LastUsed = lastUsed.Time
	}
	if expiresAt.Valid {
		key.ExpiresAt = &expiresAt.Time
	}
	return key, nil
}

func (p *PostgresStore) GetByTenant(ctx context.Context, tenantID string) ([]*APIKey, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, hash, name, status, created_at, last_used, expires_at
		FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []*APIKey
	for rows.Next() {
		key := &APIKey{}
		var lastUsed, expiresAt sql.NullTime
		if err := rows.Scan(
			&key.ID, &key.TenantID, &key.Hash, &key.Name, &key.Status,
			&key.CreatedAt, &lastUsed, &expiresAt,
		); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			key.LastUsed = lastUsed.Time
		}
		if expiresAt.Valid {
			key.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, key *APIKey) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE api_keys SET status = $1, last_used = $2, expires_at = $3 WHERE id = $4
	`, key.Status, key.LastUsed, key.ExpiresAt, key.ID)
	return err
}

// RotateTx expires old and inserts newKey in one transaction, mirroring the
// original's expire_api_key_txn followed by store_api_key_txn inside a
// single begin/commit.
func (p *PostgresStore) RotateTx(ctx context.Context, old, newKey *APIKey) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE api_keys SET status = $1, expires_at = $2 WHERE id = $3
	`, string(old.Status), old.ExpiresAt, old.ID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO api_keys (id, tenant_id, hash, name, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, newKey.ID, newKey.TenantID, newKey.Hash, newKey.Name, string(newKey.Status), newKey.CreatedAt, newKey.ExpiresAt); err != nil {
		return err
	}

	return tx.Commit()
}
