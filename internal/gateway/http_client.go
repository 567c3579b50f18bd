package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/akylbek/payment-system/gateway-orchestrator/internal/errors"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/interfaces"
)

const (
	initiatePath = "/api/v1/transactions/initiate"
	statusPath   = "/api/v1/transactions/status"

	maxResponseBytes = 1 << 20
)

// DefaultTimeout bounds every gateway call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Client  *http.Client
}

// HTTPClient talks to the gateway's JSON-over-HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

var _ interfaces.GatewayClient = (*HTTPClient)(nil)

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		client:  client,
	}
}

func (c *HTTPClient) Initiate(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (string, json.RawMessage, error) {
	payload, err := c.post(ctx, initiatePath, initiatePayload{
		OrderID:  orderID,
		Amount:   amount.StringFixed(2),
		Currency: currency,
	})
	if err != nil {
		return "", nil, err
	}
	return decodeInitiate(payload)
}

func (c *HTTPClient) CheckStatus(ctx context.Context, orderID string) (string, json.RawMessage, error) {
	payload, err := c.post(ctx, statusPath, statusPayload{OrderID: orderID})
	if err != nil {
		return "", nil, err
	}
	return decodeStatus(payload)
}

// post returns the response body for any status the gateway answers with a
// structured envelope. Transport failures, 5xx and 429 are unavailability.
func (c *HTTPClient) post(ctx context.Context, path string, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.ErrGatewayUnavailable.Wrap(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.ErrGatewayUnavailable.Wrap(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.ErrGatewayUnavailable.WithDetails(fmt.Sprintf("gateway returned HTTP %d", resp.StatusCode))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if _, _, err := decodeEnvelope(payload); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrGatewayRejected.WithDetails(fmt.Sprintf("gateway returned HTTP %d", resp.StatusCode))
	}
	return payload, nil
}
