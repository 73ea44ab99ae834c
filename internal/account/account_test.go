package account

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	a := &Account{
		ID:        "acct_1",
		TenantID:  "tenant_1",
		Currency:  "USD",
		Balance:   decimal.NewFromInt(100),
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.Create(context.Background(), a))

	got, err := store.Get(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "USD", got.Currency)
}

func TestMemoryStore_GetForTenant_WrongTenant(t *testing.T) {
	store := NewMemoryStore()
	a := &Account{ID: "acct_1", TenantID: "tenant_1", Currency: "USD", Balance: decimal.Zero, Status: StatusActive}
	require.NoError(t, store.Create(context.Background(), a))

	_, err := store.GetForTenant(context.Background(), "tenant_2", "acct_1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
