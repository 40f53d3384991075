package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitnovo/pay-mcp/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		DeviceID:   "device-12345678",
		BaseURL:    server.URL,
		APITimeout: 2 * time.Second,
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(cfg, logger), server
}

func TestCreatePayment(t *testing.T) {
	var gotDeviceID string
	var gotBody CreatePaymentRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/orders/", r.URL.Path)
		gotDeviceID = r.Header.Get("X-Device-Id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(Payment{
			Identifier:          "pay-abc",
			Address:             "bc1qexample",
			PaymentURI:          "bitcoin:bc1qexample?amount=0.001",
			InputCurrency:       "BTC",
			ExpectedInputAmount: 0.001,
		})
	}))

	payment, err := client.CreatePayment(context.Background(), CreatePaymentRequest{
		ExpectedOutputAmount: 50,
		InputCurrency:        "BTC",
		Fiat:                 "EUR",
		Notes:                "order #42",
	})
	require.NoError(t, err)

	assert.Equal(t, "device-12345678", gotDeviceID)
	assert.Equal(t, 50.0, gotBody.ExpectedOutputAmount)
	assert.Equal(t, "BTC", gotBody.InputCurrency)
	assert.Equal(t, "pay-abc", payment.Identifier)
	assert.Equal(t, "bc1qexample", payment.Address)
}

func TestCreatePaymentRejectsNonPositiveAmount(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should never reach the gateway")
	}))

	_, err := client.CreatePayment(context.Background(), CreatePaymentRequest{ExpectedOutputAmount: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive")
}

func TestCreatePaymentRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(Payment{Identifier: "pay-retry"})
	}))

	payment, err := client.CreatePayment(context.Background(), CreatePaymentRequest{ExpectedOutputAmount: 10})
	require.NoError(t, err)
	assert.Equal(t, "pay-retry", payment.Identifier)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCreatePaymentSurfacesAPIError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid device"}`, http.StatusForbidden)
	}))

	_, err := client.CreatePayment(context.Background(), CreatePaymentRequest{ExpectedOutputAmount: 10})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid device")
}

func TestGetPaymentInfoUnwrapsArray(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/orders/info/pay-abc", r.URL.Path)
		json.NewEncoder(w).Encode([]PaymentInfo{{
			Identifier: "pay-abc",
			Status:     StatusCompleted,
			FiatAmount: 50,
			Fiat:       "EUR",
		}})
	}))

	info, err := client.GetPaymentInfo(context.Background(), "pay-abc")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, info.Status)
	assert.True(t, info.Status.IsPaid())
}

func TestGetPaymentInfoEmptyResult(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))

	_, err := client.GetPaymentInfo(context.Background(), "pay-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGetPaymentInfoRequiresIdentifier(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	_, err := client.GetPaymentInfo(context.Background(), "")
	require.Error(t, err)
}

func TestListCurrenciesCaches(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[
			{"symbol":"BTC","name":"Bitcoin","min_amount":"0.00001","max_amount":"10","blockchain":"bitcoin"},
			{"symbol":"ETH","name":"Ethereum","min_amount":"0.001","max_amount":"100","blockchain":"ethereum"}
		]`))
	}))

	first, err := client.ListCurrencies(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "BTC", first[0].Symbol)
	assert.Equal(t, 0.00001, first[0].MinAmount)

	second, err := client.ListCurrencies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load(), "second call should hit the cache")
}

func TestListCurrenciesCacheExpires(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[{"symbol":"BTC","name":"Bitcoin","min_amount":"0.1","max_amount":"10"}]`))
	}))

	base := time.Now()
	client.now = func() time.Time { return base }

	_, err := client.ListCurrencies(context.Background())
	require.NoError(t, err)

	client.now = func() time.Time { return base.Add(currencyCacheTTL + time.Second) }

	_, err = client.ListCurrencies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusCompleted.IsFinal())
	assert.True(t, StatusExpired.IsFinal())
	assert.False(t, StatusPending.IsFinal())
	assert.True(t, StatusCompleted.IsPaid())
	assert.False(t, StatusAwaitingConfirm.IsPaid())
	assert.True(t, Status("PE").Valid())
	assert.False(t, Status("XX").Valid())
	assert.Equal(t, "Pending payment", StatusPending.Description())
	assert.Equal(t, "Unknown status", Status("XX").Description())
}
