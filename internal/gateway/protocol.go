// Package gateway implements clients for the BAS payment gateway.
package gateway

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/akylbek/payment-system/gateway-orchestrator/internal/errors"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/models"
)

// successCode together with status 1 marks a successful gateway envelope.
const successCode = "1111"

type initiatePayload struct {
	OrderID  string `json:"orderId"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type statusPayload struct {
	OrderID string `json:"orderId"`
}

type initiateBody struct {
	TrxToken string `json:"trxToken"`
}

type statusBody struct {
	TrxStatus string `json:"trxStatus"`
}

// decodeEnvelope parses a gateway reply. The raw payload is returned whenever it
// is valid JSON so callers can keep it for audit, including on rejection.
func decodeEnvelope(payload []byte) (*models.GatewayEnvelope, json.RawMessage, error) {
	var env models.GatewayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, nil, apperrors.ErrGatewayProtocol.Wrap(fmt.Errorf("decode envelope: %w", err))
	}
	raw := json.RawMessage(append([]byte(nil), payload...))
	if env.Status != 1 || env.Code != successCode {
		return &env, raw, apperrors.ErrGatewayRejected.WithDetails(
			fmt.Sprintf("status=%d code=%s message=%s", env.Status, env.Code, env.Message))
	}
	return &env, raw, nil
}

func decodeInitiate(payload []byte) (string, json.RawMessage, error) {
	env, raw, err := decodeEnvelope(payload)
	if err != nil {
		return "", raw, err
	}
	var body initiateBody
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return "", raw, apperrors.ErrGatewayProtocol.Wrap(fmt.Errorf("decode initiate body: %w", err))
	}
	if body.TrxToken == "" {
		return "", raw, apperrors.ErrGatewayProtocol.WithDetails("initiate response has no trxToken")
	}
	return body.TrxToken, raw, nil
}

func decodeStatus(payload []byte) (string, json.RawMessage, error) {
	env, raw, err := decodeEnvelope(payload)
	if err != nil {
		return "", raw, err
	}
	var body statusBody
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return "", raw, apperrors.ErrGatewayProtocol.Wrap(fmt.Errorf("decode status body: %w", err))
	}
	if body.TrxStatus == "" {
		return "", raw, apperrors.ErrGatewayProtocol.WithDetails("status response has no trxStatus")
	}
	return body.TrxStatus, raw, nil
}
