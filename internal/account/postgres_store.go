package account

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

// PostgresStore persists accounts in PostgreSQL. Balance is a NUMERIC(20,4)
// column, read into shopspring/decimal rather than float64.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, a *Account) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO accounts (id, tenant_id, name, currency, balance, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.TenantID, a.Name, a.Currency, a.Balance.String(), a.Status, a.CreatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Account, error) {
	return p.scanOne(ctx, `
		SELECT id, tenant_id, name, currency, balance, status, created_at
		FROM accounts WHERE id = $1
	`, id)
}

func (p *PostgresStore) GetForTenant(ctx context.Context, tenantID, id string) (*Account, error) {
	return p.scanOne(ctx, `
		SELECT id, tenant_id, name, currency, balance, status, created_at
		FROM accounts WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
}

func (p *PostgresStore) scanOne(ctx context.Context, query string, args ...any) (*Account, error) {
	a := &Account{}
	var status string
	var balance string
	err := p.db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &a.TenantID, &a.Name, &a.Currency, &balance, &status, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, err
	}
	return a, nil
}

var _ Store = (*PostgresStore)(nil)
