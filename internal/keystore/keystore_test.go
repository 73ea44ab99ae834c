package keystore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodopay/ledger/internal/tenant"
)

// alwaysActiveTenants is a TenantChecker stub for tests that don't exercise
// spec.md §3's "only active tenants authenticate" gate directly.
type alwaysActiveTenants struct{}

func (alwaysActiveTenants) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	return &tenant.Tenant{ID: id, Status: tenant.StatusActive}, nil
}

func newTestManager() *Manager {
	return NewManager(NewMemoryStore(), "test-secret", alwaysActiveTenants{})
}

func TestIssue_ProducesPrefixedToken(t *testing.T) {
	m := newTestManager()
	raw, key, err := m.Issue(context.Background(), "tenant_1", "default")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, KeyPrefix))
	assert.Equal(t, StatusActive, key.Status)
}

func TestVerify_ValidKey(t *testing.T) {
	m := newTestManager()
	raw, _, err := m.Issue(context.Background(), "tenant_1", "default")
	require.NoError(t, err)

	tenantID, err := m.Verify(context.Background(), "Bearer "+raw)
	require.NoError(t, err)
	assert.Equal(t, "tenant_1", tenantID)
}

func TestVerify_UnknownKeyReturnsUnauthenticated(t *testing.T) {
	m := newTestManager()
	_, err := m.Verify(context.Background(), "Bearer dodo_live_bogus")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerify_RevokedKeyReturnsUnauthenticated(t *testing.T) {
	m := newTestManager()
	raw, key, err := m.Issue(context.Background(), "tenant_1", "default")
	require.NoError(t, err)
	require.NoError(t, m.Revoke(context.Background(), key.ID))

	_, err = m.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerify_SuspendedTenantReturnsUnauthenticated(t *testing.T) {
	tenants := tenant.NewMemoryStore()
	require.NoError(t, tenants.Create(context.Background(), &tenant.Tenant{
		ID: "tenant_1", Status: tenant.StatusActive, CreatedAt: time.Now(),
	}))
	m := NewManager(NewMemoryStore(), "test-secret", tenants)

	raw, _, err := m.Issue(context.Background(), "tenant_1", "default")
	require.NoError(t, err)

	tn, err := tenants.Get(context.Background(), "tenant_1")
	require.NoError(t, err)
	tn.Status = tenant.StatusSuspended
	require.NoError(t, tenants.Update(context.Background(), tn))

	_, err = m.Verify(context.Background(), "Bearer "+raw)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerify_UnknownTenantReturnsUnauthenticated(t *testing.T) {
	tenants := tenant.NewMemoryStore()
	m := NewManager(NewMemoryStore(), "test-secret", tenants)

	raw, _, err := m.Issue(context.Background(), "tenant_ghost", "default")
	require.NoError(t, err)

	_, err = m.Verify(context.Background(), "Bearer "+raw)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRotate_OldKeyRemainsValidDuringGrace(t *testing.T) {
	m := newTestManager()
	oldRaw, oldKey, err := m.Issue(context.Background(), "tenant_1", "default")
	require.NoError(t, err)

	newRaw, newKey, err := m.Rotate(context.Background(), oldKey.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldRaw, newRaw)
	assert.Equal(t, "tenant_1", newKey.TenantID)

	// The old key still verifies during the grace window.
	tenantID, err := m.Verify(context.Background(), oldRaw)
	require.NoError(t, err)
	assert.Equal(t, "tenant_1", tenantID)

	tenantID, err = m.Verify(context.Background(), newRaw)
	require.NoError(t, err)
	assert.Equal(t, "tenant_1", tenantID)
}

func TestRotate_OldKeyExpiresAfterGrace(t *testing.T) {
	m := newTestManager()
	oldRaw, oldKey, err := m.Issue(context.Background(), "tenant_1", "default")
	require.NoError(t, err)

	_, _, err = m.Rotate(context.Background(), oldKey.ID)
	require.NoError(t, err)

	store := m.store.(*MemoryStore)
	stored, err := store.GetByID(context.Background(), oldKey.ID)
	require.NoError(t, err)
	past := time.Now().Add(-time.Second)
	stored.ExpiresAt = &past
	require.NoError(t, store.Update(context.Background(), stored))

	_, err = m.Verify(context.Background(), oldRaw)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRotate_IsAtomicAcrossBothWrites(t *testing.T) {
	m := newTestManager()
	_, oldKey, err := m.Issue(context.Background(), "tenant_1", "default")
	require.NoError(t, err)

	_, newKey, err := m.Rotate(context.Background(), oldKey.ID)
	require.NoError(t, err)

	store := m.store.(*MemoryStore)
	got, err := store.GetByID(context.Background(), oldKey.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpiring, got.Status)
	assert.NotNil(t, got.ExpiresAt)

	gotNew, err := store.GetByID(context.Background(), newKey.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, gotNew.Status)
}

func TestVerify_EmptyBearer(t *testing.T) {
	m := newTestManager()
	_, err := m.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerify_MalformedPrefix(t *testing.T) {
	m := newTestManager()
	_, err := m.Verify(context.Background(), "Bearer sk_not_a_ledger_key")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func newTestAdminManager() *AdminManager {
	return NewAdminManager(NewAdminMemoryStore(), "test-secret")
}

func TestAdminIssue_ProducesPrefixedToken(t *testing.T) {
	m := newTestAdminManager()
	raw, key, err := m.Issue(context.Background(), "admin_1", "default")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, KeyPrefix))
	assert.Equal(t, AdminStatusActive, key.Status)
}

func TestAdminVerify_ValidKey(t *testing.T) {
	m := newTestAdminManager()
	raw, _, err := m.Issue(context.Background(), "admin_1", "default")
	require.NoError(t, err)

	adminID, err := m.Verify(context.Background(), "Bearer "+raw)
	require.NoError(t, err)
	assert.Equal(t, "admin_1", adminID)
}

func TestAdminVerify_RevokedKeyReturnsUnauthenticated(t *testing.T) {
	m := newTestAdminManager()
	raw, key, err := m.Issue(context.Background(), "admin_1", "default")
	require.NoError(t, err)
	require.NoError(t, m.Revoke(context.Background(), key.ID))

	_, err = m.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAdminVerify_UnknownKeyReturnsUnauthenticated(t *testing.T) {
	m := newTestAdminManager()
	_, err := m.Verify(context.Background(), "Bearer dodo_live_bogus")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAdminKeys_DisjointFromTenantKeys(t *testing.T) {
	tenantStore := NewMemoryStore()
	adminStore := NewAdminMemoryStore()
	tenantManager := NewManager(tenantStore, "test-secret", alwaysActiveTenants{})
	adminManager := NewAdminManager(adminStore, "test-secret")

	tenantRaw, _, err := tenantManager.Issue(context.Background(), "tenant_1", "default")
	require.NoError(t, err)

	// A tenant key must never verify as an admin key, even under the same
	// secret and hashing scheme — they live in disjoint stores.
	_, err = adminManager.Verify(context.Background(), "Bearer "+tenantRaw)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
