package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/gateway-orchestrator/internal/repository"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/service"
)

type okGateway struct{}

func (okGateway) Initiate(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (string, json.RawMessage, error) {
	return "T123", json.RawMessage(`{"status":1,"code":"1111","body":{"trxToken":"T123"}}`), nil
}

func (okGateway) CheckStatus(ctx context.Context, orderID string) (string, json.RawMessage, error) {
	return "processed", json.RawMessage(`{"status":1,"code":"1111","body":{"trxStatus":"processed"}}`), nil
}

func newTestRouter() http.Handler {
	return NewRouter(service.NewOrchestrator(repository.NewMemoryTransactionStore(), okGateway{}))
}

func TestHealth(t *testing.T) {
	r := newTestRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"gateway-orchestrator"}`, w.Body.String())
}

func TestMetrics(t *testing.T) {
	r := newTestRouter()

	body, _ := json.Marshal(map[string]any{
		"order_id": "O1", "amount": 1000, "customer_id": "C1",
		"customer_name": "Ali", "customer_phone": "777000111",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/payment/initiate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "payment_transitions_total")
}

func TestRoutesRegistered(t *testing.T) {
	r := NewRouter(service.NewOrchestrator(repository.NewMemoryTransactionStore(), okGateway{}))

	want := map[string]bool{
		"POST /api/payment/initiate":              false,
		"POST /api/payment/check-status":          false,
		"POST /api/payment/confirm":               false,
		"POST /api/payment/cancel":                false,
		"POST /api/payment/refund":                false,
		"GET /api/payment/history":                false,
		"GET /api/payment/transactions/:order_id": false,
		"GET /api/admin/payment-stats":            false,
		"GET /health":                             false,
		"GET /metrics":                            false,
	}
	for _, route := range r.Routes() {
		key := route.Method + " " + route.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, seen := range want {
		assert.True(t, seen, "missing route %s", route)
	}
}

func TestUnknownRoute(t *testing.T) {
	r := newTestRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/payment/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
