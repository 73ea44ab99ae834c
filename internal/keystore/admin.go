package keystore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// AdminStatus is the lifecycle state of an admin API key. Per spec.md §4.1,
// admin keys are "a disjoint namespace with the same state machine, minus
// expiry" — there is no StatusExpiring and no Rotate, only Issue and Revoke.
type AdminStatus string

const (
	AdminStatusActive  AdminStatus = "active"
	AdminStatusRevoked AdminStatus = "revoked"
)

var ErrAdminKeyNotFound = errors.New("keystore: admin key not found")

// AdminAPIKey is an admin-scoped credential, persisted in its own
// admin_api_keys table — never the tenant api_keys table.
type AdminAPIKey struct {
	ID        string
	AdminID   string
	Hash      string // HMAC-SHA256(secret, raw), hex-encoded
	Name      string
	Status    AdminStatus
	CreatedAt time.Time
	LastUsed  time.Time
}

// AdminStore persists admin API keys.
type AdminStore interface {
	Create(ctx context.Context, key *AdminAPIKey) error
	GetByHash(ctx context.Context, hash string) (*AdminAPIKey, error)
	GetByID(ctx context.Context, id string) (*AdminAPIKey, error)
	GetByAdminID(ctx context.Context, adminID string) ([]*AdminAPIKey, error)
	Update(ctx context.Context, key *AdminAPIKey) error
}

// AdminManager issues, verifies, and revokes admin API keys. It is the
// disjoint counterpart to Manager: same hashing scheme and token shape, no
// rotation, no expiry.
type AdminManager struct {
	store  AdminStore
	secret []byte
}

// NewAdminManager creates an AdminManager under the same process-wide
// API_KEY_SECRET as the tenant Manager.
func NewAdminManager(store AdminStore, secret string) *AdminManager {
	return &AdminManager{store: store, secret: []byte(secret)}
}

// Issue creates a new active admin key for adminID.
func (m *AdminManager) Issue(ctx context.Context, adminID, name string) (rawKey string, key *AdminAPIKey, err error) {
	rawKey, err = generateToken()
	if err != nil {
		return "", nil, err
	}

	key = &AdminAPIKey{
		ID:        idFromToken(rawKey),
		AdminID:   adminID,
		Hash:      m.hash(rawKey),
		Name:      name,
		Status:    AdminStatusActive,
		CreatedAt: time.Now(),
	}

	if err := m.store.Create(ctx, key); err != nil {
		return "", nil, err
	}

	return rawKey, key, nil
}

// Verify resolves a bearer token to its owning admin id. Like Manager.Verify,
// it returns ErrUnauthenticated uniformly — no distinction between unknown
// and revoked. There is no expiry branch: admin keys are revoke-only.
func (m *AdminManager) Verify(ctx context.Context, bearer string) (adminID string, err error) {
	raw := strings.TrimSpace(strings.TrimPrefix(bearer, "Bearer "))
	if raw == "" || !strings.HasPrefix(raw, KeyPrefix) {
		return "", ErrUnauthenticated
	}

	key, err := m.store.GetByHash(ctx, m.hash(raw))
	if err != nil {
		return "", ErrUnauthenticated
	}
	if key.Status != AdminStatusActive {
		return "", ErrUnauthenticated
	}

	go func() {
		key.LastUsed = time.Now()
		_ = m.store.Update(context.Background(), key)
	}()

	return key.AdminID, nil
}

// Revoke immediately invalidates an admin key. There is no grace window and
// no rotation — a revoked admin key must be replaced with a fresh Issue.
func (m *AdminManager) Revoke(ctx context.Context, keyID string) error {
	key, err := m.store.GetByID(ctx, keyID)
	if err != nil {
		return err
	}
	key.Status = AdminStatusRevoked
	return m.store.Update(ctx, key)
}

// ListKeys returns all keys for an admin id as stored, hashes included.
func (m *AdminManager) ListKeys(ctx context.Context, adminID string) ([]*AdminAPIKey, error) {
	return m.store.GetByAdminID(ctx, adminID)
}

func (m *AdminManager) hash(raw string) string {
	return hashWithSecret(m.secret, raw)
}
