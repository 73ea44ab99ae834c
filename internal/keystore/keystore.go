// Package keystore implements tenant API-key issuance, verification, rotation
// and revocation (spec component C1).
package keystore

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/dodopay/ledger/internal/tenant"
)

// KeyPrefix is the visible prefix on every issued raw key, per spec.md §4.1.
const KeyPrefix = "dodo_live_"

// RotationGrace is how long a rotated-out key remains valid after rotation.
const RotationGrace = 7 * 24 * time.Hour

// Status is the lifecycle state of an API key.
type Status string

const (
	StatusActive   Status = "active"
	StatusExpiring Status = "expiring"
	StatusRevoked  Status = "revoked"
)

// Single sentinel error returned for every verification failure. Spec.md
// §4.1 requires no leakage between "unknown" and "expired" outcomes.
var ErrUnauthenticated = errors.New("keystore: unauthenticated")

var ErrKeyNotFound = errors.New("keystore: key not found")

// APIKey is a tenant-scoped credential.
type APIKey struct {
	ID        string
	TenantID  string
	Hash      string // HMAC-SHA256(secret, raw), hex-encoded
	Name      string
	Status    Status
	CreatedAt time.Time
	LastUsed  time.Time
	// ExpiresAt is set when a key enters StatusExpiring: the moment after
	// which Verify rejects it. Nothing moves the key to StatusRevoked when
	// ExpiresAt passes; its status stays StatusExpiring.
	ExpiresAt *time.Time
}

// Store persists API keys.
type Store interface {
	Create(ctx context.Context, key *APIKey) error
	GetByHash(ctx context.Context, hash string) (*APIKey, error)
	GetByID(ctx context.Context, id string) (*APIKey, error)
	GetByTenant(ctx context.Context, tenantID string) ([]*APIKey, error)
	Update(ctx context.Context, key *APIKey) error

	// RotateTx transitions old into its new (StatusExpiring) state and
	// creates newKey as a single unit of work: either both happen or
	// neither does, so a failure never leaves a tenant with a freshly
	// issued key and no corresponding expiring predecessor.
	RotateTx(ctx context.Context, old, newKey *APIKey) error
}

// TenantChecker reports whether a tenant is currently allowed to
// authenticate. Satisfied by tenant.Store — spec.md §3's "only active
// tenants authenticate" invariant is enforced here, not at the tenant
// package boundary, since it's a keystore.Verify-time concern.
type TenantChecker interface {
	Get(ctx context.Context, id string) (*tenant.Tenant, error)
}

// Manager issues and verifies API keys for tenants.
type Manager struct {
	store   Store
	tenants TenantChecker
	secret  []byte
}

// NewManager creates a Manager that hashes keys with HMAC-SHA256 under secret.
// secret must come from the process-wide API_KEY_SECRET configuration value.
// tenants gates Verify on the owning tenant's status.
func NewManager(store Store, secret string, tenants TenantChecker) *Manager {
	return &Manager{store: store, tenants: tenants, secret: []byte(secret)}
}

// Issue creates a new active key for tenantID. The raw key is returned once
// and never stored in recoverable form.
func (m *Manager) Issue(ctx context.Context, tenantID, name string) (rawKey string, key *APIKey, err error) {
	rawKey, err = generateToken()
	if err != nil {
		return "", nil, err
	}

	key = &APIKey{
		ID:        idFromToken(rawKey),
		TenantID:  tenantID,
		Hash:      m.hash(rawKey),
		Name:      name,
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}

	if err := m.store.Create(ctx, key); err != nil {
		return "", nil, err
	}

	return rawKey, key, nil
}

// Verify resolves a bearer token to its owning tenant id. It returns
// ErrUnauthenticated uniformly for missing, malformed, unknown, expired, and
// revoked keys — spec.md §4.1 requires this single outcome.
func (m *Manager) Verify(ctx context.Context, bearer string) (tenantID string, err error) {
	raw := strings.TrimSpace(strings.TrimPrefix(bearer, "Bearer "))
	if raw == "" || !strings.HasPrefix(raw, KeyPrefix) {
		return "", ErrUnauthenticated
	}

	key, err := m.store.GetByHash(ctx, m.hash(raw))
	if err != nil {
		return "", ErrUnauthenticated
	}

	switch key.Status {
	case StatusRevoked:
		return "", ErrUnauthenticated
	case StatusExpiring:
		if key.ExpiresAt == nil || time.Now().After(*key.ExpiresAt) {
			return "", ErrUnauthenticated
		}
	case StatusActive:
		// always valid
	default:
		return "", ErrUnauthenticated
	}

	t, err := m.tenants.Get(ctx, key.TenantID)
	if err != nil || t.Status != tenant.StatusActive {
		return "", ErrUnauthenticated
	}

	go func() {
		key.LastUsed = time.Now()
		_ = m.store.Update(context.Background(), key)
	}()

	return key.TenantID, nil
}

// Rotate issues a replacement key and moves the old key into a grace window
// (StatusExpiring, ExpiresAt = now + RotationGrace) instead of revoking it
// immediately, so in-flight callers using the old key keep working until the
// grace period lapses. Both writes happen inside one RotateTx call, so a
// failure partway through never leaves a freshly issued key active with its
// predecessor still active too (or vice versa).
func (m *Manager) Rotate(ctx context.Context, oldKeyID string) (rawKey string, newKey *APIKey, err error) {
	old, err := m.store.GetByID(ctx, oldKeyID)
	if err != nil {
		return "", nil, err
	}

	rawKey, err = generateToken()
	if err != nil {
		return "", nil, err
	}
	newKey = &APIKey{
		ID:        idFromToken(rawKey),
		TenantID:  old.TenantID,
		Hash:      m.hash(rawKey),
		Name:      old.Name + " (rotated)",
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}

	expires := time.Now().Add(RotationGrace)
	expiring := *old
	expiring.Status = StatusExpiring
	expiring.ExpiresAt = &expires

	if err := m.store.RotateTx(ctx, &expiring, newKey); err != nil {
		return "", nil, err
	}

	return rawKey, newKey, nil
}

// Revoke immediately invalidates a key, with no grace window.
func (m *Manager) Revoke(ctx context.Context, keyID string) error {
	key, err := m.store.GetByID(ctx, keyID)
	if err != nil {
		return err
	}
	key.Status = StatusRevoked
	return m.store.Update(ctx, key)
}

// ListKeys returns all keys for a tenant as stored, hashes included; the
// order is whatever the store returns. Handler.List drops the hashes.
func (m *Manager) ListKeys(ctx context.Context, tenantID string) ([]*APIKey, error) {
	return m.store.GetByTenant(ctx, tenantID)
}

func (m *Manager) hash(raw string) string {
	return hashWithSecret(m.secret, raw)
}

// hashWithSecret computes HMAC-SHA256(secret, raw) hex-encoded — the
// keyed-hash scheme spec.md §4.1 requires, shared by the tenant Manager and
// the disjoint AdminManager.
func hashWithSecret(secret []byte, raw string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}

// generateToken produces "dodo_live_" followed by 48 base32-alphanumeric
// characters drawn from crypto/rand.
func generateToken() (string, error) {
	b := make([]byte, 30) // 30 bytes -> 48 base32 chars
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)
	return KeyPrefix + strings.ToLower(enc), nil
}

// idFromToken derives a stable, non-secret id from the first 8 bytes of the
// raw token's SHA-256 digest, so lookups by id never require reversing the hash.
func idFromToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return "key_" + hex.EncodeToString(h[:8])
}
