package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/akylbek/payment-system/gateway-orchestrator/internal/errors"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/telemetry"
)

// GuardedClient wraps a GatewayClient with rate limiting, a circuit breaker and
// call metrics. It does not retry.
type GuardedClient struct {
	base    interfaces.GatewayClient
	limiter *RateLimiter
	breaker *CircuitBreaker
}

var _ interfaces.GatewayClient = (*GuardedClient)(nil)

func NewGuardedClient(base interfaces.GatewayClient, limiter *RateLimiter, breaker *CircuitBreaker) *GuardedClient {
	return &GuardedClient{base: base, limiter: limiter, breaker: breaker}
}

// IsUnavailable reports whether err means the gateway could not be reached.
// Business rejections do not count against the breaker.
func IsUnavailable(err error) bool {
	return apperrors.CodeOf(err) == apperrors.GatewayUnavailable
}

func (g *GuardedClient) Initiate(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (string, json.RawMessage, error) {
	var (
		token string
		raw   json.RawMessage
	)
	err := g.do(ctx, "initiate", orderID, func() error {
		var err error
		token, raw, err = g.base.Initiate(ctx, orderID, amount, currency)
		return err
	})
	return token, raw, err
}

func (g *GuardedClient) CheckStatus(ctx context.Context, orderID string) (string, json.RawMessage, error) {
	var (
		status string
		raw    json.RawMessage
	)
	err := g.do(ctx, "check_status", orderID, func() error {
		var err error
		status, raw, err = g.base.CheckStatus(ctx, orderID)
		return err
	})
	return status, raw, err
}

func (g *GuardedClient) do(ctx context.Context, operation, orderID string, fn func() error) error {
	start := time.Now()

	err := func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return apperrors.ErrGatewayUnavailable.Wrap(err)
			}
		}
		err := g.breaker.Execute(fn)
		if stderrors.Is(err, ErrCircuitOpen) {
			return apperrors.ErrGatewayUnavailable.Wrap(err)
		}
		return err
	}()

	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.As(err).Code)
		telemetry.Logger.Warn("Gateway call failed",
			zap.String("operation", operation),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
	telemetry.ObserveGatewayCall(operation, outcome, time.Since(start))
	return err
}
