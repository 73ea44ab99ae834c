// Package account implements tenant-scoped accounts: currency-denominated
// balance holders that the ledger engine credits, debits, and transfers
// between.
package account

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound  = errors.New("account: not found")
	ErrCurrencyMismatch = errors.New("account: currency is immutable")
)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive Status = "active"
	StatusFrozen Status = "frozen"
)

// Account is a tenant-scoped balance holder. Currency is fixed at creation;
// spec.md §3 disallows conversion, so it is never mutated afterward. Balance
// uses shopspring/decimal throughout — floating point is disallowed for any
// monetary value (spec.md §9).
type Account struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Name      string          `json:"name"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store persists accounts. Balance mutation happens only inside the ledger
// engine's locked transactions — this interface exposes just provisioning
// and read paths.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	GetForTenant(ctx context.Context, tenantID, id string) (*Account, error)
}
