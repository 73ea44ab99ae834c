// Package ledger implements the transactional money-movement engine
// (spec component C2): credit, debit, and transfer operations over
// tenant-scoped accounts, each co-committed with the webhook outbox row
// that will notify the tenant of the outcome.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/dodopay/ledger/internal/tracing"
)

var (
	ErrInvalidAmount        = errors.New("ledger: amount must be positive")
	ErrAccountNotFound      = errors.New("ledger: account not found")
	ErrAccountNotActive     = errors.New("ledger: account is not active")
	ErrInsufficientBalance  = errors.New("ledger: insufficient balance")
	ErrSameAccount          = errors.New("ledger: source and destination accounts must differ")
	ErrCurrencyMismatch     = errors.New("ledger: accounts do not share a currency")
	ErrNoWebhookEndpoint    = errors.New("ledger: tenant has no active webhook endpoint")
	ErrIdempotencyKeyClash  = errors.New("ledger: idempotency key reused with a different operation")
)

// TxType identifies the kind of money movement a Transaction records.
type TxType string

const (
	TxCredit   TxType = "credit"
	TxDebit    TxType = "debit"
	TxTransfer TxType = "transfer"
)

// TxStatus is the terminal outcome of a Transaction. Ledger transactions are
// only ever recorded once they have succeeded — spec.md §4.2 has no
// "pending" ledger state, unlike the webhook outbox.
type TxStatus string

const (
	TxSucceeded TxStatus = "succeeded"
)

// Transaction is an immutable record of a completed money movement.
type Transaction struct {
	ID             string
	TenantID       string
	Type           TxType
	FromAccountID  string // empty for credit
	ToAccountID    string // empty for debit
	Amount         decimal.Decimal
	Currency       string
	ReferenceID    string
	IdempotencyKey string
	Status         TxStatus
	CreatedAt      time.Time

	// Replayed is true when this Transaction was returned by the
	// idempotency probe rather than freshly committed — callers use it to
	// pick 200 vs 201 at the HTTP layer (spec.md §6).
	Replayed bool

	// outboxEventID is the id of the co-committed webhook_events row,
	// passed to Notifier after commit. Empty when replayed.
	outboxEventID string
}

// EndpointChecker reports whether a tenant currently has an active webhook
// endpoint — checked inside the ledger's own transaction so the decision to
// commit a money movement and its outbox row is atomic with the check.
type EndpointChecker interface {
	HasActiveEndpointTx(ctx context.Context, tx *sql.Tx, tenantID string) (bool, error)
}

// OutboxInserter co-commits a pending delivery-attempt row with the ledger
// transaction that produced it.
type OutboxInserter interface {
	InsertTx(ctx context.Context, tx *sql.Tx, tenantID, eventType string, payload []byte) (eventID string, err error)
}

// Notifier is called after a transaction commits, to wake the delivery
// worker. Implementations must not block; if a notification is dropped, the
// event stays pending in the outbox and Recovery enqueues it at the next
// startup.
type Notifier func(eventID string)

// Engine implements the ledger operations directly against Postgres. It
// owns its own transactions rather than delegating to a generic Store
// interface — the teacher's per-operation standalone-transaction Store
// abstraction can't express the row-locking and cross-table outbox commit
// this domain requires.
type Engine struct {
	db        *sql.DB
	endpoints EndpointChecker
	outbox    OutboxInserter
	notify    Notifier
}

func New(db *sql.DB, endpoints EndpointChecker, outbox OutboxInserter, notify Notifier) *Engine {
	if notify == nil {
		notify = func(string) {}
	}
	return &Engine{db: db, endpoints: endpoints, outbox: outbox, notify: notify}
}

// Credit increases accountID's balance by amount.
func (e *Engine) Credit(ctx context.Context, tenantID, accountID string, amount decimal.Decimal, referenceID, idempotencyKey string) (*Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Credit",
		tracing.TenantID(tenantID), tracing.AccountID(accountID), tracing.Amount(amount.String()))
	defer span.End()

	done := observeOp("credit")
	var outcome string
	defer func() { done(outcome) }()

	if amount.Sign() <= 0 {
		outcome = "invalid_amount"
		return nil, ErrInvalidAmount
	}

	tx, replayed, err := e.beginTxOrReplay(ctx, tenantID, idempotencyKey)
	if err != nil {
		outcome = "error"
		return nil, err
	}
	if replayed != nil {
		outcome = "replayed"
		replayed.Replayed = true
		return replayed, nil
	}
	defer func() { _ = tx.Rollback() }()

	acct, err := e.lockAccount(ctx, tx, accountID)
	if err != nil {
		outcome = "error"
		return nil, err
	}
	if acct.TenantID != tenantID {
		outcome = "not_found"
		return nil, ErrAccountNotFound
	}
	if acct.Status != "active" {
		outcome = "not_active"
		return nil, ErrAccountNotActive
	}

	newBalance := acct.Balance.Add(amount)
	if err := e.setBalance(ctx, tx, accountID, newBalance); err != nil {
		outcome = "error"
		return nil, err
	}

	txn := &Transaction{
		TenantID:       tenantID,
		Type:           TxCredit,
		ToAccountID:    accountID,
		Amount:         amount,
		Currency:       acct.Currency,
		ReferenceID:    referenceID,
		IdempotencyKey: idempotencyKey,
		Status:         TxSucceeded,
	}
	if err := e.commit(ctx, tx, txn); err != nil {
		outcome = errOutcome(err)
		return nil, err
	}

	e.notify(txn.outboxEventID)
	outcome = "succeeded"
	return txn, nil
}

// Debit decreases accountID's balance by amount, failing if the balance
// would go negative.
func (e *Engine) Debit(ctx context.Context, tenantID, accountID string, amount decimal.Decimal, referenceID, idempotencyKey string) (*Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Debit",
		tracing.TenantID(tenantID), tracing.AccountID(accountID), tracing.Amount(amount.String()))
	defer span.End()

	done := observeOp("debit")
	var outcome string
	defer func() { done(outcome) }()

	if amount.Sign() <= 0 {
		outcome = "invalid_amount"
		return nil, ErrInvalidAmount
	}

	tx, replayed, err := e.beginTxOrReplay(ctx, tenantID, idempotencyKey)
	if err != nil {
		outcome = "error"
		return nil, err
	}
	if replayed != nil {
		outcome = "replayed"
		replayed.Replayed = true
		return replayed, nil
	}
	defer func() { _ = tx.Rollback() }()

	acct, err := e.lockAccount(ctx, tx, accountID)
	if err != nil {
		outcome = "error"
		return nil, err
	}
	if acct.TenantID != tenantID {
		outcome = "not_found"
		return nil, ErrAccountNotFound
	}
	if acct.Status != "active" {
		outcome = "not_active"
		return nil, ErrAccountNotActive
	}
	if acct.Balance.LessThan(amount) {
		outcome = "insufficient_balance"
		return nil, ErrInsufficientBalance
	}

	newBalance := acct.Balance.Sub(amount)
	if err := e.setBalance(ctx, tx, accountID, newBalance); err != nil {
		outcome = "error"
		return nil, err
	}

	txn := &Transaction{
		TenantID:       tenantID,
		Type:           TxDebit,
		FromAccountID:  accountID,
		Amount:         amount,
		Currency:       acct.Currency,
		ReferenceID:    referenceID,
		IdempotencyKey: idempotencyKey,
		Status:         TxSucceeded,
	}
	if err := e.commit(ctx, tx, txn); err != nil {
		outcome = errOutcome(err)
		return nil, err
	}

	e.notify(txn.outboxEventID)
	outcome = "succeeded"
	return txn, nil
}

// Transfer atomically moves amount from fromAccountID to toAccountID. Both
// rows are locked in ascending account-id order regardless of transfer
// direction, so two concurrent transfers between the same pair of accounts
// can never deadlock (spec.md §5).
func (e *Engine) Transfer(ctx context.Context, tenantID, fromAccountID, toAccountID string, amount decimal.Decimal, referenceID, idempotencyKey string) (*Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Transfer",
		tracing.TenantID(tenantID), tracing.Amount(amount.String()))
	defer span.End()

	done := observeOp("transfer")
	var outcome string
	defer func() { done(outcome) }()

	if amount.Sign() <= 0 {
		outcome = "invalid_amount"
		return nil, ErrInvalidAmount
	}
	if fromAccountID == toAccountID {
		outcome = "same_account"
		return nil, ErrSameAccount
	}

	tx, replayed, err := e.beginTxOrReplay(ctx, tenantID, idempotencyKey)
	if err != nil {
		outcome = "error"
		return nil, err
	}
	if replayed != nil {
		outcome = "replayed"
		replayed.Replayed = true
		return replayed, nil
	}
	defer func() { _ = tx.Rollback() }()

	first, second := fromAccountID, toAccountID
	if second < first {
		first, second = second, first
	}
	lockOrder := map[string]*accountRow{}
	for _, id := range []string{first, second} {
		acct, err := e.lockAccount(ctx, tx, id)
		if err != nil {
			outcome = "error"
			return nil, err
		}
		if acct.TenantID != tenantID {
			outcome = "not_found"
			return nil, ErrAccountNotFound
		}
		if acct.Status != "active" {
			outcome = "not_active"
			return nil, ErrAccountNotActive
		}
		lockOrder[id] = acct
	}

	from, to := lockOrder[fromAccountID], lockOrder[toAccountID]
	if from.Currency != to.Currency {
		outcome = "currency_mismatch"
		return nil, ErrCurrencyMismatch
	}
	if from.Balance.LessThan(amount) {
		outcome = "insufficient_balance"
		return nil, ErrInsufficientBalance
	}

	if err := e.setBalance(ctx, tx, fromAccountID, from.Balance.Sub(amount)); err != nil {
		outcome = "error"
		return nil, err
	}
	if err := e.setBalance(ctx, tx, toAccountID, to.Balance.Add(amount)); err != nil {
		outcome = "error"
		return nil, err
	}

	txn := &Transaction{
		TenantID:       tenantID,
		Type:           TxTransfer,
		FromAccountID:  fromAccountID,
		ToAccountID:    toAccountID,
		Amount:         amount,
		Currency:       from.Currency,
		ReferenceID:    referenceID,
		IdempotencyKey: idempotencyKey,
		Status:         TxSucceeded,
	}
	if err := e.commit(ctx, tx, txn); err != nil {
		outcome = errOutcome(err)
		return nil, err
	}

	e.notify(txn.outboxEventID)
	outcome = "succeeded"
	return txn, nil
}

type accountRow struct {
	TenantID string
	Currency string
	Balance  decimal.Decimal
	Status   string
}

func (e *Engine) lockAccount(ctx context.Context, tx *sql.Tx, id string) (*accountRow, error) {
	row := &accountRow{}
	var balance string
	err := tx.QueryRowContext(ctx, `
		SELECT tenant_id, currency, balance, status
		FROM accounts WHERE id = $1 FOR UPDATE
	`, id).Scan(&row.TenantID, &row.Currency, &balance, &row.Status)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	row.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (e *Engine) setBalance(ctx context.Context, tx *sql.Tx, id string, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = $1 WHERE id = $2`, balance.String(), id)
	return err
}

// beginTxOrReplay starts a transaction and, inside it, checks for an
// existing transaction row under (tenant_id, idempotency_key). If one
// exists, it is returned as replayed and tx is nil (already rolled back) so
// the caller short-circuits without touching any account row — this keeps
// the dedupe check and the row locks that follow inside one unit of work
// without requiring any shared mutable state on Engine.
func (e *Engine) beginTxOrReplay(ctx context.Context, tenantID, idempotencyKey string) (tx *sql.Tx, replayed *Transaction, err error) {
	tx, err = e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	if idempotencyKey == "" {
		return tx, nil, nil
	}

	existing, err := scanTransaction(tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, type, from_account_id, to_account_id, amount, currency,
		       reference_id, idempotency_key, status, created_at
		FROM transactions WHERE tenant_id = $1 AND idempotency_key = $2
	`, tenantID, idempotencyKey))
	if err == nil {
		_ = tx.Rollback()
		return nil, existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return nil, nil, err
	}
	return tx, nil, nil
}

// commit inserts the transaction row, checks for an active webhook
// endpoint, inserts the co-committed outbox row, and commits — all in the
// caller's transaction.
func (e *Engine) commit(ctx context.Context, tx *sql.Tx, txn *Transaction) error {
	txn.ID = newTransactionID()
	txn.CreatedAt = time.Now()

	var fromID, toID any
	if txn.FromAccountID != "" {
		fromID = txn.FromAccountID
	}
	if txn.ToAccountID != "" {
		toID = txn.ToAccountID
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions
			(id, tenant_id, type, from_account_id, to_account_id, amount, currency,
			 reference_id, idempotency_key, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, txn.ID, txn.TenantID, string(txn.Type), fromID, toID, txn.Amount.String(), txn.Currency,
		nullableString(txn.ReferenceID), nullableString(txn.IdempotencyKey), string(txn.Status), txn.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrIdempotencyKeyClash
		}
		return fmt.Errorf("insert transaction: %w", err)
	}

	if e.endpoints != nil {
		hasEndpoint, err := e.endpoints.HasActiveEndpointTx(ctx, tx, txn.TenantID)
		if err != nil {
			return fmt.Errorf("check webhook endpoint: %w", err)
		}
		if !hasEndpoint {
			return ErrNoWebhookEndpoint
		}
	}

	if e.outbox != nil {
		payload := encodeTransactionEvent(txn)
		eventID, err := e.outbox.InsertTx(ctx, tx, txn.TenantID, "transaction."+string(txn.Type), payload)
		if err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		txn.outboxEventID = eventID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func errOutcome(err error) string {
	switch {
	case errors.Is(err, ErrNoWebhookEndpoint):
		return "no_webhook_endpoint"
	case errors.Is(err, ErrIdempotencyKeyClash):
		return "idempotency_clash"
	default:
		return "error"
	}
}
