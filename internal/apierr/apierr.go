// Package apierr translates the sentinel errors returned by internal/ledger,
// internal/keystore, and internal/webhookendpoint into the HTTP status +
// machine-readable reason taxonomy of spec.md §7.
package apierr

import (
	"errors"
	"net/http"

	"github.com/dodopay/ledger/internal/keystore"
	"github.com/dodopay/ledger/internal/ledger"
	"github.com/dodopay/ledger/internal/tenant"
	"github.com/dodopay/ledger/internal/webhookendpoint"
)

// Kind is a machine-readable error reason, surfaced in JSON responses.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindBadRequest      Kind = "bad_request"
	KindNotFound        Kind = "not_found"
	KindConflictReplay  Kind = "conflict_replay"
	KindStorage         Kind = "storage"
)

// APIError pairs an HTTP status with a Kind and human-readable reason.
type APIError struct {
	Status int
	Kind   Kind
	Reason string
}

func (e *APIError) Error() string { return e.Reason }

func new(status int, kind Kind, reason string) *APIError {
	return &APIError{Status: status, Kind: kind, Reason: reason}
}

// Unauthenticated is a 401 with no further detail — spec.md §4.1 forbids
// leaking "unknown vs expired".
func Unauthenticated() *APIError {
	return new(http.StatusUnauthorized, KindUnauthenticated, "unauthenticated")
}

// Storage is a generic 500 for any unclassified storage failure.
func Storage() *APIError {
	return new(http.StatusInternalServerError, KindStorage, "storage error")
}

// Replay is the 200-with-original-id "error" conflict_replay represents to
// the caller — not actually an error surface, but modeled here so handlers
// share one translation path.
func Replay(txnID string) *APIError {
	return &APIError{Status: http.StatusOK, Kind: KindConflictReplay, Reason: txnID}
}

// FromLedgerError maps a ledger package sentinel error to an APIError.
func FromLedgerError(err error) *APIError {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrAccountNotActive),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrSameAccount),
		errors.Is(err, ledger.ErrCurrencyMismatch),
		errors.Is(err, ledger.ErrIdempotencyKeyClash):
		return new(http.StatusBadRequest, KindBadRequest, humanizeLedgerError(err))
	case errors.Is(err, ledger.ErrAccountNotFound):
		return new(http.StatusNotFound, KindNotFound, "account not found")
	case errors.Is(err, ledger.ErrNoWebhookEndpoint):
		return new(http.StatusNotFound, KindNotFound, "register a webhook first")
	default:
		return Storage()
	}
}

func humanizeLedgerError(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient balance or frozen account"
	case errors.Is(err, ledger.ErrAccountNotActive):
		return "account is frozen"
	case errors.Is(err, ledger.ErrSameAccount):
		return "source and destination accounts must differ"
	case errors.Is(err, ledger.ErrCurrencyMismatch):
		return "accounts do not share a currency"
	case errors.Is(err, ledger.ErrIdempotencyKeyClash):
		return "idempotency key reused with a different operation"
	default:
		return "invalid amount"
	}
}

// FromKeystoreError maps a keystore package sentinel error to an APIError.
func FromKeystoreError(err error) *APIError {
	switch {
	case errors.Is(err, keystore.ErrUnauthenticated):
		return Unauthenticated()
	case errors.Is(err, keystore.ErrKeyNotFound):
		return new(http.StatusNotFound, KindNotFound, "api key not found")
	default:
		return Storage()
	}
}

// FromTenantError maps a tenant package sentinel error to an APIError.
func FromTenantError(err error) *APIError {
	if errors.Is(err, tenant.ErrTenantNotFound) {
		return new(http.StatusNotFound, KindNotFound, "tenant not found")
	}
	return Storage()
}

// FromWebhookEndpointError maps a webhookendpoint package sentinel error.
func FromWebhookEndpointError(err error) *APIError {
	if errors.Is(err, webhookendpoint.ErrNotFound) {
		return new(http.StatusNotFound, KindNotFound, "webhook endpoint not found")
	}
	return Storage()
}
