package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"

	apperrors "github.com/akylbek/payment-system/gateway-orchestrator/internal/errors"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/interfaces"
)

// Requester is the request/reply surface of *nats.Conn.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// NATSClient reaches the gateway through a NATS request/reply bridge on
// <subject>.initiate and <subject>.status.
type NATSClient struct {
	conn    Requester
	subject string
	timeout time.Duration
}

var _ interfaces.GatewayClient = (*NATSClient)(nil)

func NewNATSClient(conn Requester, subject string, timeout time.Duration) *NATSClient {
	if subject == "" {
		subject = "bas.transactions"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &NATSClient{conn: conn, subject: subject, timeout: timeout}
}

func (c *NATSClient) Initiate(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (string, json.RawMessage, error) {
	payload, err := c.request(ctx, "initiate", initiatePayload{
		OrderID:  orderID,
		Amount:   amount.StringFixed(2),
		Currency: currency,
	})
	if err != nil {
		return "", nil, err
	}
	return decodeInitiate(payload)
}

func (c *NATSClient) CheckStatus(ctx context.Context, orderID string) (string, json.RawMessage, error) {
	payload, err := c.request(ctx, "status", statusPayload{OrderID: orderID})
	if err != nil {
		return "", nil, err
	}
	return decodeStatus(payload)
}

func (c *NATSClient) request(ctx context.Context, op string, body any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.conn.RequestWithContext(ctx, c.subject+"."+op, encoded)
	if err != nil {
		return nil, apperrors.ErrGatewayUnavailable.Wrap(err)
	}
	return msg.Data, nil
}
