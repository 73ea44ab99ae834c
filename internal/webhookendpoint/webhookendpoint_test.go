package webhookendpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_CreatesActiveEndpointWithSecret(t *testing.T) {
	store := NewMemoryStore()
	e, err := Register(context.Background(), store, "tenant_1", "https://example.com/hook")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, e.Status)
	assert.NotEmpty(t, e.Secret)
	assert.Equal(t, "https://example.com/hook", e.URL)
}

func TestHasActiveEndpointTx_TrueAfterRegister(t *testing.T) {
	store := NewMemoryStore()
	_, err := Register(context.Background(), store, "tenant_1", "https://example.com/hook")
	require.NoError(t, err)

	has, err := store.HasActiveEndpointTx(context.Background(), nil, "tenant_1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestHasActiveEndpointTx_FalseForUnknownTenant(t *testing.T) {
	store := NewMemoryStore()
	has, err := store.HasActiveEndpointTx(context.Background(), nil, "tenant_missing")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestDisable_RemovesFromActiveLookup(t *testing.T) {
	store := NewMemoryStore()
	e, err := Register(context.Background(), store, "tenant_1", "https://example.com/hook")
	require.NoError(t, err)

	require.NoError(t, store.Disable(context.Background(), e.ID))

	_, err = store.GetActiveForTenant(context.Background(), "tenant_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateForTenant_ChangesURL(t *testing.T) {
	store := NewMemoryStore()
	e, err := Register(context.Background(), store, "tenant_1", "https://example.com/hook")
	require.NoError(t, err)

	newURL := "https://example.com/new-hook"
	require.NoError(t, store.UpdateForTenant(context.Background(), "tenant_1", e.ID, &newURL, nil))

	got, err := store.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, newURL, got.URL)
}

func TestUpdateForTenant_RejectsOtherTenant(t *testing.T) {
	store := NewMemoryStore()
	e, err := Register(context.Background(), store, "tenant_1", "https://example.com/hook")
	require.NoError(t, err)

	newURL := "https://example.com/new-hook"
	err = store.UpdateForTenant(context.Background(), "tenant_2", e.ID, &newURL, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDisableForTenant_RejectsOtherTenant(t *testing.T) {
	store := NewMemoryStore()
	e, err := Register(context.Background(), store, "tenant_1", "https://example.com/hook")
	require.NoError(t, err)

	err = store.DisableForTenant(context.Background(), "tenant_2", e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDisableForTenant_Succeeds(t *testing.T) {
	store := NewMemoryStore()
	e, err := Register(context.Background(), store, "tenant_1", "https://example.com/hook")
	require.NoError(t, err)

	require.NoError(t, store.DisableForTenant(context.Background(), "tenant_1", e.ID))

	_, err = store.GetActiveForTenant(context.Background(), "tenant_1")
	assert.ErrorIs(t, err, ErrNotFound)
}
