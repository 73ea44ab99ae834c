// Package webhookendpoint manages the single active webhook target each
// tenant registers to receive ledger events. Adapted from the teacher's
// internal/webhooks Subscription/Store, trimmed to one active endpoint per
// tenant and a random secret that internal/delivery uses to sign payloads.
package webhookendpoint

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"

	"github.com/dodopay/ledger/internal/idgen"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

var ErrNotFound = errors.New("webhookendpoint: not found")

// Endpoint is a tenant's registered webhook target.
type Endpoint struct {
	ID       string
	TenantID string
	URL      string
	Secret   string
	Status   Status
}

// Store persists webhook endpoints.
type Store interface {
	Create(ctx context.Context, e *Endpoint) error
	Get(ctx context.Context, id string) (*Endpoint, error)
	GetActiveForTenant(ctx context.Context, tenantID string) (*Endpoint, error)
	Disable(ctx context.Context, id string) error

	// UpdateForTenant changes url and/or status on the endpoint identified
	// by id, scoped to tenantID so one tenant can never touch another's
	// registration. ErrNotFound covers both a missing id and one owned by
	// a different tenant — callers can't distinguish the two.
	UpdateForTenant(ctx context.Context, tenantID, id string, url *string, status *Status) error

	// DisableForTenant is Disable scoped to the owning tenant, backing the
	// webhook-delete endpoint.
	DisableForTenant(ctx context.Context, tenantID, id string) error

	// HasActiveEndpointTx satisfies ledger.EndpointChecker, checked inside
	// the caller's ledger transaction so the decision to commit a money
	// movement is atomic with the webhook-endpoint check.
	HasActiveEndpointTx(ctx context.Context, tx *sql.Tx, tenantID string) (bool, error)
}

// Register creates a new active endpoint for tenantID with a random secret.
// It does not disable any endpoint the tenant already has — spec.md §9's
// open question is resolved by preserving single-active-endpoint behavior at
// the ledger read path (HasActiveEndpointTx/GetActiveForTenant pick
// whichever row is active), not by enforcing uniqueness at registration.
func Register(ctx context.Context, store Store, tenantID, url string) (*Endpoint, error) {
	secret, err := randomSecret()
	if err != nil {
		return nil, err
	}
	e := &Endpoint{
		ID:       idgen.WithPrefix("whe_"),
		TenantID: tenantID,
		URL:      url,
		Secret:   secret,
		Status:   StatusActive,
	}
	if err := store.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
