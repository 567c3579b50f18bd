package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusPaid       TransactionStatus = "paid"
	StatusFailed     TransactionStatus = "failed"
	StatusCancelled  TransactionStatus = "cancelled"
	StatusRefunded   TransactionStatus = "refunded"
	StatusUnknown    TransactionStatus = "unknown"
)

// DefaultGateway is recorded on every transaction created through the BAS integration.
const DefaultGateway = "BAS"

// AllStatuses lists every status a transaction can hold.
var AllStatuses = []TransactionStatus{
	StatusPending,
	StatusProcessing,
	StatusPaid,
	StatusFailed,
	StatusCancelled,
	StatusRefunded,
	StatusUnknown,
}

// Valid reports whether s is one of the known statuses.
func (s TransactionStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no gateway or caller action can move s further,
// apart from the paid → refunded edge.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Transaction is the persisted record of a single gateway payment.
type Transaction struct {
	OrderID       string            `json:"order_id"`
	TrxID         string            `json:"trx_id"`
	TrxToken      string            `json:"trx_token"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	CustomerID    string            `json:"customer_id"`
	CustomerName  string            `json:"customer_name,omitempty"`
	CustomerPhone string            `json:"customer_phone,omitempty"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Description   string            `json:"description,omitempty"`
	Status        TransactionStatus `json:"status"`
	Gateway       string            `json:"payment_gateway"`

	GatewayResponseRaw json.RawMessage `json:"gateway_response_raw,omitempty"`

	CancellationReason string           `json:"cancellation_reason,omitempty"`
	RefundAmount       *decimal.Decimal `json:"refund_amount,omitempty"`
	RefundReason       string           `json:"refund_reason,omitempty"`

	InitiatedAt *time.Time `json:"initiated_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	if t.GatewayResponseRaw != nil {
		c.GatewayResponseRaw = append(json.RawMessage(nil), t.GatewayResponseRaw...)
	}
	if t.RefundAmount != nil {
		amt := *t.RefundAmount
		c.RefundAmount = &amt
	}
	c.InitiatedAt = cloneTime(t.InitiatedAt)
	c.ProcessedAt = cloneTime(t.ProcessedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.FailedAt = cloneTime(t.FailedAt)
	c.CancelledAt = cloneTime(t.CancelledAt)
	c.RefundedAt = cloneTime(t.RefundedAt)
	return &c
}

// Duration is the time from initiation to completion, failure or cancellation,
// or to now while the transaction is still open. Zero if never initiated.
func (t *Transaction) Duration(now time.Time) time.Duration {
	if t.InitiatedAt == nil {
		return 0
	}
	end := now
	switch {
	case t.CompletedAt != nil:
		end = *t.CompletedAt
	case t.FailedAt != nil:
		end = *t.FailedAt
	case t.CancelledAt != nil:
		end = *t.CancelledAt
	}
	return end.Sub(*t.InitiatedAt)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
