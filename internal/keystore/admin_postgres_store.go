package keystore

import (
	"context"
	"database/sql"
)

// AdminPostgresStore persists admin API keys in the disjoint admin_api_keys
// table.
type AdminPostgresStore struct {
	db *sql.DB
}

func NewAdminPostgresStore(db *sql.DB) *AdminPostgresStore {
	return &AdminPostgresStore{db: db}
}

func (p *AdminPostgresStore) Create(ctx context.Context, key *AdminAPIKey) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO admin_api_keys (id, admin_id, hash, name, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, key.ID, key.AdminID, key.Hash, key.Name, string(key.Status), key.CreatedAt)
	return err
}

func (p *AdminPostgresStore) GetByHash(ctx context.Context, hash string) (*AdminAPIKey, error) {
	return p.scanOne(ctx, `
		SELECT id, admin_id, hash, name, status, created_at, last_used
		FROM admin_api_keys WHERE hash = $1
	`, hash)
}

func (p *AdminPostgresStore) GetByID(ctx context.Context, id string) (*AdminAPIKey, error) {
	return p.scanOne(ctx, `
		SELECT id, admin_id, hash, name, status, created_at, last_used
		FROM admin_api_keys WHERE id = $1
	`, id)
}

func (p *AdminPostgresStore) scanOne(ctx context.Context, query string, arg any) (*AdminAPIKey, error) {
	key := &AdminAPIKey{}
	var status string
	var lastUsed sql.NullTime

	err := p.db.QueryRowContext(ctx, query, arg).Scan(
		&key.ID, &key.AdminID, &key.Hash, &key.Name, &status, &key.CreatedAt, &lastUsed,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAdminKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	key.Status = AdminStatus(status)
	if lastUsed.Valid {
		key.LastUsed = lastUsed.Time
	}
	return key, nil
}

func (p *AdminPostgresStore) GetByAdminID(ctx context.Context, adminID string) ([]*AdminAPIKey, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, admin_id, hash, name, status, created_at, last_used
		FROM admin_api_keys WHERE admin_id = $1 ORDER BY created_at DESC
	`, adminID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []*AdminAPIKey
	for rows.Next() {
		key := &AdminAPIKey{}
		var status string
		var lastUsed sql.NullTime
		if err := rows.Scan(&key.ID, &key.AdminID, &key.Hash, &key.Name, &status, &key.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		key.Status = AdminStatus(status)
		if lastUsed.Valid {
			key.LastUsed = lastUsed.Time
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (p *AdminPostgresStore) Update(ctx context.Context, key *AdminAPIKey) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE admin_api_keys SET status = $1, last_used = $2 WHERE id = $3
	`, string(key.Status), key.LastUsed, key.ID)
	return err
}
