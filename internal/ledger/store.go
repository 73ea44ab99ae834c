package ledger

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/dodopay/ledger/internal/idgen"
)

func newTransactionID() string {
	return idgen.WithPrefix("txn_")
}

// scanTransaction scans a single transactions row, tolerating NULL
// from/to account ids (credit has no from, debit has no to) and NULL
// idempotency_key.
func scanTransaction(row *sql.Row) (*Transaction, error) {
	t := &Transaction{}
	var (
		txType                                string
		status                                 string
		amount                                 string
		fromID, toID, reference, idempotency   sql.NullString
	)
	err := row.Scan(&t.ID, &t.TenantID, &txType, &fromID, &toID, &amount, &t.Currency,
		&reference, &idempotency, &status, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Type = TxType(txType)
	t.Status = TxStatus(status)
	if fromID.Valid {
		t.FromAccountID = fromID.String
	}
	if toID.Valid {
		t.ToAccountID = toID.String
	}
	if reference.Valid {
		t.ReferenceID = reference.String
	}
	if idempotency.Valid {
		t.IdempotencyKey = idempotency.String
	}
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTransaction loads a single transaction by id, scoped to tenantID.
func GetTransaction(db *sql.DB, tenantID, id string) (*Transaction, error) {
	return scanTransaction(db.QueryRow(`
		SELECT id, tenant_id, type, from_account_id, to_account_id, amount, currency,
		       reference_id, idempotency_key, status, created_at
		FROM transactions WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
}

// transactionEvent is the JSON payload recorded in the webhook outbox for a
// completed transaction.
type transactionEvent struct {
	Event string               `json:"event"`
	Data  transactionEventData `json:"data"`
}

type transactionEventData struct {
	TransactionID string `json:"transaction_id"`
	TenantID      string `json:"tenant_id"`
	Type          TxType `json:"type"`
	FromAccountID string `json:"from_account_id,omitempty"`
	ToAccountID   string `json:"to_account_id,omitempty"`
	Amount        string `json:"amount"`
	ReferenceID   string `json:"reference_id,omitempty"`
}

// encodeTransactionEvent builds the outbox payload per spec: {event:
// "transaction.succeeded", data: {...}}.
func encodeTransactionEvent(txn *Transaction) []byte {
	payload, _ := json.Marshal(transactionEvent{
		Event: "transaction.succeeded",
		Data: transactionEventData{
			TransactionID: txn.ID,
			TenantID:      txn.TenantID,
			Type:          txn.Type,
			FromAccountID: txn.FromAccountID,
			ToAccountID:   txn.ToAccountID,
			Amount:        txn.Amount.String(),
			ReferenceID:   txn.ReferenceID,
		},
	})
	return payload
}

// eventFingerprint is used by tests to assert payload stability without
// depending on field order.
func eventFingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}
