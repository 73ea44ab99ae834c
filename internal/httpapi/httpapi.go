// Package httpapi wires gin routing over the ledger, keystore, account,
// tenant, and webhookendpoint packages, satisfying the endpoint list of
// spec.md §6. Deliberately thin: binding, auth context resolution, and
// error translation through internal/apierr — no business logic lives here.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dodopay/ledger/internal/account"
	"github.com/dodopay/ledger/internal/apierr"
	"github.com/dodopay/ledger/internal/idgen"
	"github.com/dodopay/ledger/internal/keystore"
	"github.com/dodopay/ledger/internal/ledger"
	"github.com/dodopay/ledger/internal/ratelimit"
	"github.com/dodopay/ledger/internal/tenant"
	"github.com/dodopay/ledger/internal/validation"
	"github.com/dodopay/ledger/internal/webhookendpoint"
)

// Server holds the dependencies every handler needs.
type Server struct {
	Ledger      *ledger.Engine
	Accounts    account.Store
	Tenants     tenant.Store
	Keys        *keystore.Manager
	AdminKeys   *keystore.AdminManager
	Endpoints   webhookendpoint.Store
	RateLimiter *ratelimit.Limiter // nil disables per-IP throttling
}

// Router builds the gin engine: public health check, key-management routes
// gated by AuthGate, money-movement and webhook routes gated by AuthGate,
// and admin routes gated by AdminGate.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	if s.RateLimiter != nil {
		r.Use(s.RateLimiter.Middleware())
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	keyHandler := keystore.NewHandler(s.Keys)

	authed := r.Group("/")
	authed.Use(keystore.AuthGate(s.Keys))
	{
		authed.POST("/keys", keyHandler.Issue)
		authed.POST("/keys/:keyId/rotate", keyHandler.Rotate)
		authed.DELETE("/keys/:keyId", keyHandler.Revoke)
		authed.GET("/keys", keyHandler.List)

		authed.POST("/accounts", s.createAccount)
		authed.GET("/accounts/:id", s.getAccount)

		authed.POST("/transaction/credit", s.credit)
		authed.POST("/transaction/debit", s.debit)
		authed.POST("/transaction/transfer", s.transfer)

		authed.POST("/webhooks", s.registerWebhook)
		authed.PATCH("/webhooks/:id", s.updateWebhook)
		authed.DELETE("/webhooks/:id", s.deleteWebhook)
	}

	admin := r.Group("/admin")
	admin.Use(keystore.AdminGate(s.AdminKeys))
	{
		admin.POST("/tenants", s.createTenant)
	}

	return r
}

func respondAPIError(c *gin.Context, err *apierr.APIError) {
	if err.Kind == apierr.KindConflictReplay {
		c.JSON(http.StatusOK, gin.H{"txn_id": err.Reason, "replay": true})
		return
	}
	c.JSON(err.Status, gin.H{"error": string(err.Kind), "message": err.Reason})
}

type createAccountRequest struct {
	Name     string `json:"name" binding:"required"`
	Currency string `json:"currency" binding:"required"`
}

func (s *Server) createAccount(c *gin.Context) {
	tenantID := keystore.TenantID(c)

	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondAPIError(c, &apierr.APIError{Status: http.StatusBadRequest, Kind: apierr.KindBadRequest, Reason: "invalid request body"})
		return
	}
	if !validation.IsValidCurrency(req.Currency) {
		respondAPIError(c, &apierr.APIError{Status: http.StatusBadRequest, Kind: apierr.KindBadRequest, Reason: "currency must be a 3-letter uppercase ISO-4217 code"})
		return
	}

	a := &account.Account{
		ID:       idgen.WithPrefix("acct_"),
		TenantID: tenantID,
		Name:     req.Name,
		Currency: req.Currency,
		Balance:  decimal.Zero,
		Status:   account.StatusActive,
	}
	if err := s.Accounts.Create(c.Request.Context(), a); err != nil {
		respondAPIError(c, apierr.Storage())
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) getAccount(c *gin.Context) {
	tenantID := keystore.TenantID(c)
	a, err := s.Accounts.GetForTenant(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		respondAPIError(c, &apierr.APIError{Status: http.StatusNotFound, Kind: apierr.KindNotFound, Reason: "account not found"})
		return
	}
	c.JSON(http.StatusOK, a)
}

type creditRequest struct {
	ToAccountID    string          `json:"to_account_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	ReferenceID    string          `json:"reference_id"`
	IdempotencyKey string          `json:"idempotency_key" binding:"required"`
}

func (s *Server) credit(c *gin.Context) {
	tenantID := keystore.TenantID(c)
	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondAPIError(c, &apierr.APIError{Status: http.StatusBadRequest, Kind: apierr.KindBadRequest, Reason: "invalid request body"})
		return
	}

	txn, err := s.Ledger.Credit(c.Request.Context(), tenantID, req.ToAccountID, req.Amount, req.ReferenceID, req.IdempotencyKey)
	s.respondTransaction(c, txn, err, http.StatusCreated)
}

type debitRequest struct {
	FromAccountID  string          `json:"from_account_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	ReferenceID    string          `json:"reference_id"`
	IdempotencyKey string          `json:"idempotency_key" binding:"required"`
}

func (s *Server) debit(c *gin.Context) {
	tenantID := keystore.TenantID(c)
	var req debitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondAPIError(c, &apierr.APIError{Status: http.StatusBadRequest, Kind: apierr.KindBadRequest, Reason: "invalid request body"})
		return
	}

	txn, err := s.Ledger.Debit(c.Request.Context(), tenantID, req.FromAccountID, req.Amount, req.ReferenceID, req.IdempotencyKey)
	s.respondTransaction(c, txn, err, http.StatusCreated)
}

type transferRequest struct {
	FromAccountID  string          `json:"from_account_id" binding:"required"`
	ToAccountID    string          `json:"to_account_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	ReferenceID    string          `json:"reference_id"`
	IdempotencyKey string          `json:"idempotency_key" binding:"required"`
}

func (s *Server) transfer(c *gin.Context) {
	tenantID := keystore.TenantID(c)
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondAPIError(c, &apierr.APIError{Status: http.StatusBadRequest, Kind: apierr.KindBadRequest, Reason: "invalid request body"})
		return
	}

	txn, err := s.Ledger.Transfer(c.Request.Context(), tenantID, req.FromAccountID, req.ToAccountID, req.Amount, req.ReferenceID, req.IdempotencyKey)
	s.respondTransaction(c, txn, err, http.StatusCreated)
}

// respondTransaction maps a ledger outcome to the status codes spec.md §6
// calls for: 201 on a freshly created transaction, 200 on an idempotent
// replay, and the apierr-translated status on failure.
func (s *Server) respondTransaction(c *gin.Context, txn *ledger.Transaction, err error, createdStatus int) {
	if err != nil {
		respondAPIError(c, apierr.FromLedgerError(err))
		return
	}
	if txn.Replayed {
		c.JSON(http.StatusOK, gin.H{"txn_id": txn.ID})
		return
	}
	c.JSON(createdStatus, gin.H{"txn_id": txn.ID})
}

type registerWebhookRequest struct {
	URL string `json:"url" binding:"required"`
}

func (s *Server) registerWebhook(c *gin.Context) {
	tenantID := keystore.TenantID(c)
	var req registerWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondAPIError(c, &apierr.APIError{Status: http.StatusBadRequest, Kind: apierr.KindBadRequest, Reason: "invalid request body"})
		return
	}

	endpoint, err := webhookendpoint.Register(c.Request.Context(), s.Endpoints, tenantID, req.URL)
	if err != nil {
		respondAPIError(c, apierr.Storage())
		return
	}
	c.JSON(http.StatusCreated, gin.H{"webhook_id": endpoint.ID})
}

type updateWebhookRequest struct {
	URL    *string                `json:"url"`
	Status *webhookendpoint.Status `json:"status"`
}

func (s *Server) updateWebhook(c *gin.Context) {
	tenantID := keystore.TenantID(c)
	var req updateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondAPIError(c, &apierr.APIError{Status: http.StatusBadRequest, Kind: apierr.KindBadRequest, Reason: "invalid request body"})
		return
	}

	if err := s.Endpoints.UpdateForTenant(c.Request.Context(), tenantID, c.Param("id"), req.URL, req.Status); err != nil {
		respondAPIError(c, &apierr.APIError{Status: http.StatusNotFound, Kind: apierr.KindNotFound, Reason: "webhook not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "webhook updated"})
}

func (s *Server) deleteWebhook(c *gin.Context) {
	tenantID := keystore.TenantID(c)

	if err := s.Endpoints.DisableForTenant(c.Request.Context(), tenantID, c.Param("id")); err != nil {
		respondAPIError(c, &apierr.APIError{Status: http.StatusNotFound, Kind: apierr.KindNotFound, Reason: "webhook not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "webhook disabled"})
}

type createTenantRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) createTenant(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondAPIError(c, &apierr.APIError{Status: http.StatusBadRequest, Kind: apierr.KindBadRequest, Reason: "invalid request body"})
		return
	}

	t := &tenant.Tenant{
		ID:     idgen.WithPrefix("tenant_"),
		Name:   req.Name,
		Status: tenant.StatusActive,
	}
	if err := s.Tenants.Create(c.Request.Context(), t); err != nil {
		respondAPIError(c, apierr.Storage())
		return
	}
	c.JSON(http.StatusCreated, t)
}
