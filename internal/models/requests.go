package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// InitiateRequest carries everything needed to open a gateway transaction.
type InitiateRequest struct {
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	CustomerID    string
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	Description   string
}

// RefundRequest refunds a paid transaction. A nil Amount refunds the full amount.
type RefundRequest struct {
	OrderID string
	TrxID   string
	Amount  *decimal.Decimal
	Reason  string
}

// StatusCheck is the outcome of reconciling a transaction against the gateway.
type StatusCheck struct {
	Transaction   *Transaction
	GatewayStatus string
}

// Period bounds created_at, both ends inclusive. A nil bound is open.
type Period struct {
	From *time.Time
	To   *time.Time
}

func (p Period) Contains(t time.Time) bool {
	if p.From != nil && t.Before(*p.From) {
		return false
	}
	if p.To != nil && t.After(*p.To) {
		return false
	}
	return true
}

// ListFilter narrows transaction history queries.
type ListFilter struct {
	CustomerID string
	Status     TransactionStatus
	Period
	Limit  int
	Offset int
}

// StatsFilter narrows the transactions aggregated by Stats.
type StatsFilter struct {
	CustomerID string
	Period
}

// Stats aggregates transaction counts and paid totals.
type Stats struct {
	TotalTransactions   int64           `json:"total_transactions"`
	PaidTransactions    int64           `json:"paid_transactions"`
	FailedTransactions  int64           `json:"failed_transactions"`
	PendingTransactions int64           `json:"pending_transactions"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	AverageAmount       decimal.Decimal `json:"average_amount"`
	SuccessRate         decimal.Decimal `json:"success_rate"`
}

// StatusChangedEvent is published after each persisted status transition.
type StatusChangedEvent struct {
	OrderID        string            `json:"order_id"`
	TrxID          string            `json:"trx_id"`
	Status         TransactionStatus `json:"status"`
	PreviousStatus TransactionStatus `json:"previous_status,omitempty"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	Timestamp      time.Time         `json:"timestamp"`
}

// GatewayEnvelope is the response shape returned by the BAS gateway.
type GatewayEnvelope struct {
	Status  int             `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Body    json.RawMessage `json:"body"`
}
