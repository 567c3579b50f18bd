package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/akylbek/payment-system/gateway-orchestrator/internal/errors"
)

func TestHTTPClient_InitiateSendsPayload(t *testing.T) {
	var got initiatePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, initiatePath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":1,"code":"1111","message":"ok","body":{"trxToken":"T123"}}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL + "/", APIKey: "secret"})
	token, raw, err := client.Initiate(context.Background(), "O1", decimal.NewFromInt(1000), "YER")
	require.NoError(t, err)

	assert.Equal(t, "T123", token)
	assert.NotEmpty(t, raw)
	assert.Equal(t, initiatePayload{OrderID: "O1", Amount: "1000.00", Currency: "YER"}, got)
}

func TestHTTPClient_CheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, statusPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"status":1,"code":"1111","body":{"trxStatus":"completed"}}`))
	}))
	defer srv.Close()

	status, _, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL}).CheckStatus(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, "completed", status)
}

func TestHTTPClient_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, _, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL}).CheckStatus(context.Background(), "O1")
	assert.True(t, errors.Is(err, apperrors.ErrGatewayUnavailable), "got %v", err)
}

func TestHTTPClient_ClientErrorWithEnvelopeIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":0,"code":"2002","message":"invalid amount"}`))
	}))
	defer srv.Close()

	_, _, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL}).Initiate(context.Background(), "O1", decimal.NewFromInt(1), "YER")
	assert.True(t, errors.Is(err, apperrors.ErrGatewayRejected), "got %v", err)
}

func TestHTTPClient_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, _, err := client.CheckStatus(context.Background(), "O1")
	assert.True(t, errors.Is(err, apperrors.ErrGatewayUnavailable), "got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHTTPClient_CallerCancellationIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL}).Initiate(ctx, "O1", decimal.NewFromInt(1), "YER")
	assert.True(t, errors.Is(err, apperrors.ErrGatewayUnavailable))
	assert.True(t, errors.Is(err, context.Canceled))
}
