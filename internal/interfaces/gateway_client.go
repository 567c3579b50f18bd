package interfaces

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// GatewayClient issues calls against the remote payment gateway. Implementations
// classify failures as gateway_unavailable, gateway_rejected or gateway_protocol_error
// and never retry.
type GatewayClient interface {
	Initiate(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (trxToken string, raw json.RawMessage, err error)
	CheckStatus(ctx context.Context, orderID string) (gatewayStatus string, raw json.RawMessage, err error)
}
