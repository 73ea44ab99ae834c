package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/dodopay/ledger/internal/account"
	"github.com/dodopay/ledger/internal/keystore"
	"github.com/dodopay/ledger/internal/tenant"
	"github.com/dodopay/ledger/internal/webhookendpoint"
)

func init() { gin.SetMode(gin.TestMode) }

// setup wires an in-memory Server, mints a usable tenant API key for
// "tenant_1", and a usable admin API key for "admin_1". It does not
// construct a *ledger.Engine against Postgres — the engine behind the
// mutating money-movement routes is exercised directly by internal/ledger's
// own Postgres-backed tests; here we cover request binding, auth wiring, and the routes that
// don't require the ledger engine.
func setup(t *testing.T) (s *Server, rawKey, adminRawKey string) {
	t.Helper()

	tenants := tenant.NewMemoryStore()
	require.NoError(t, tenants.Create(t.Context(), &tenant.Tenant{
		ID: "tenant_1", Name: "test tenant", Status: tenant.StatusActive, CreatedAt: time.Now(),
	}))

	manager := keystore.NewManager(keystore.NewMemoryStore(), "test-secret", tenants)
	rawKey, _, err := manager.Issue(t.Context(), "tenant_1", "test key")
	require.NoError(t, err)

	adminManager := keystore.NewAdminManager(keystore.NewAdminMemoryStore(), "test-secret")
	adminRawKey, _, err = adminManager.Issue(t.Context(), "admin_1", "test admin key")
	require.NoError(t, err)

	s = &Server{
		Accounts:  account.NewMemoryStore(),
		Tenants:   tenants,
		Keys:      manager,
		AdminKeys: adminManager,
		Endpoints: webhookendpoint.NewMemoryStore(),
	}
	return s, rawKey, adminRawKey
}

func doRequest(r *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRouter_RejectsUnauthenticatedRequest(t *testing.T) {
	s, _, _ := setup(t)
	r := s.Router()

	rec := doRequest(r, http.MethodPost, "/accounts", map[string]string{"name": "wallet", "currency": "USD"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_CreateAccountSucceeds(t *testing.T) {
	s, rawKey, _ := setup(t)
	r := s.Router()

	rec := doRequest(r, http.MethodPost, "/accounts",
		map[string]string{"name": "wallet", "currency": "USD"},
		map[string]string{"Authorization": "Bearer " + rawKey})
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "tenant_1", body["tenant_id"])
	require.Equal(t, "USD", body["currency"])
}

func TestRouter_CreateAccountRejectsBadCurrency(t *testing.T) {
	s, rawKey, _ := setup(t)
	r := s.Router()

	rec := doRequest(r, http.MethodPost, "/accounts",
		map[string]string{"name": "wallet", "currency": "US"},
		map[string]string{"Authorization": "Bearer " + rawKey})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_SuspendedTenantIsRejected(t *testing.T) {
	s, rawKey, _ := setup(t)
	r := s.Router()

	tn, err := s.Tenants.Get(t.Context(), "tenant_1")
	require.NoError(t, err)
	tn.Status = tenant.StatusSuspended
	require.NoError(t, s.Tenants.Update(t.Context(), tn))

	rec := doRequest(r, http.MethodPost, "/accounts",
		map[string]string{"name": "wallet", "currency": "USD"},
		map[string]string{"Authorization": "Bearer " + rawKey})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_RegisterWebhookSucceeds(t *testing.T) {
	s, rawKey, _ := setup(t)
	r := s.Router()

	rec := doRequest(r, http.MethodPost, "/webhooks",
		map[string]string{"url": "https://example.com/hook"},
		map[string]string{"Authorization": "Bearer " + rawKey})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestRouter_UpdateWebhookSucceeds(t *testing.T) {
	s, rawKey, _ := setup(t)
	r := s.Router()

	rec := doRequest(r, http.MethodPost, "/webhooks",
		map[string]string{"url": "https://example.com/hook"},
		map[string]string{"Authorization": "Bearer " + rawKey})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	webhookID, _ := created["webhook_id"].(string)

	rec = doRequest(r, http.MethodPatch, "/webhooks/"+webhookID,
		map[string]string{"url": "https://example.com/new-hook"},
		map[string]string{"Authorization": "Bearer " + rawKey})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_UpdateWebhookRejectsOtherTenant(t *testing.T) {
	s, rawKey, _ := setup(t)
	r := s.Router()

	rec := doRequest(r, http.MethodPost, "/webhooks",
		map[string]string{"url": "https://example.com/hook"},
		map[string]string{"Authorization": "Bearer " + rawKey})
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	webhookID, _ := created["webhook_id"].(string)

	require.NoError(t, s.Tenants.Create(t.Context(), &tenant.Tenant{
		ID: "tenant_2", Name: "other tenant", Status: tenant.StatusActive, CreatedAt: time.Now(),
	}))
	otherRaw, _, err := s.Keys.Issue(t.Context(), "tenant_2", "other key")
	require.NoError(t, err)

	rec = doRequest(r, http.MethodPatch, "/webhooks/"+webhookID,
		map[string]string{"url": "https://example.com/new-hook"},
		map[string]string{"Authorization": "Bearer " + otherRaw})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_DeleteWebhookSucceeds(t *testing.T) {
	s, rawKey, _ := setup(t)
	r := s.Router()

	rec := doRequest(r, http.MethodPost, "/webhooks",
		map[string]string{"url": "https://example.com/hook"},
		map[string]string{"Authorization": "Bearer " + rawKey})
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	webhookID, _ := created["webhook_id"].(string)

	rec = doRequest(r, http.MethodDelete, "/webhooks/"+webhookID, nil,
		map[string]string{"Authorization": "Bearer " + rawKey})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_AdminRouteRejectsMissingKey(t *testing.T) {
	s, _, _ := setup(t)
	r := s.Router()

	rec := doRequest(r, http.MethodPost, "/admin/tenants", map[string]string{"name": "acme"}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_AdminRouteRejectsTenantKey(t *testing.T) {
	s, rawKey, _ := setup(t)
	r := s.Router()

	rec := doRequest(r, http.MethodPost, "/admin/tenants",
		map[string]string{"name": "acme"},
		map[string]string{"Authorization": "Bearer " + rawKey})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_AdminCreateTenantSucceeds(t *testing.T) {
	s, _, adminRawKey := setup(t)
	r := s.Router()

	rec := doRequest(r, http.MethodPost, "/admin/tenants",
		map[string]string{"name": "acme"},
		map[string]string{"Authorization": "Bearer " + adminRawKey})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestRouter_AdminRouteRejectsRevokedKey(t *testing.T) {
	s, _, _ := setup(t)
	r := s.Router()

	raw, key, err := s.AdminKeys.Issue(t.Context(), "admin_2", "throwaway")
	require.NoError(t, err)
	require.NoError(t, s.AdminKeys.Revoke(t.Context(), key.ID))

	rec := doRequest(r, http.MethodPost, "/admin/tenants",
		map[string]string{"name": "acme"},
		map[string]string{"Authorization": "Bearer " + raw})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_HealthzIsPublic(t *testing.T) {
	s, _, _ := setup(t)
	r := s.Router()

	rec := doRequest(r, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
