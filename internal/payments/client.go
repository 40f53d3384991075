// Package payments is the HTTP client for the Bitnovo Pay orders API. All
// calls carry the device ID header and run behind retry with exponential
// backoff and a per-call timeout.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"

	"github.com/bitnovo/pay-mcp/internal/config"
)

const currencyCacheTTL = 5 * time.Minute

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitnovo api: status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the Bitnovo Pay gateway.
type Client struct {
	baseURL    string
	deviceID   string
	httpClient *http.Client
	logger     *slog.Logger

	apiTimeout time.Duration
	maxRetries int
	retryDelay time.Duration

	// Currency catalog cache. The catalog changes rarely; a short TTL keeps
	// tool calls from hammering the gateway.
	mu         sync.Mutex
	currencies []Currency
	fetchedAt  time.Time
	now        func() time.Time
}

// NewClient builds a gateway client from the loaded configuration.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		deviceID:   cfg.DeviceID,
		httpClient: &http.Client{},
		logger:     logger.With("component", "payments"),
		apiTimeout: cfg.APITimeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		now:        time.Now,
	}
}

// CreatePayment creates an order. The gateway assigns the identifier the
// webhook deliveries will reference.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	if req.ExpectedOutputAmount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive, got %v", req.ExpectedOutputAmount)
	}
	payment, err := doResilient(ctx, c, func(ctx context.Context) (*Payment, error) {
		return postJSON[*Payment](ctx, c, "/api/v1/orders/", req)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("payment created",
		"identifier", payment.Identifier,
		"input_currency", req.InputCurrency,
		"fiat", req.Fiat,
	)
	return payment, nil
}

// GetPaymentInfo fetches the current state of an order.
func (c *Client) GetPaymentInfo(ctx context.Context, identifier string) (*PaymentInfo, error) {
	if identifier == "" {
		return nil, fmt.Errorf("payment identifier is required")
	}
	return doResilient(ctx, c, func(ctx context.Context) (*PaymentInfo, error) {
		// The gateway wraps single orders in a one-element array.
		infos, err := getJSON[[]PaymentInfo](ctx, c, "/api/v1/orders/info/"+identifier)
		if err != nil {
			return nil, err
		}
		if len(infos) == 0 {
			return nil, fmt.Errorf("payment %s not found", identifier)
		}
		return &infos[0], nil
	})
}

// ListCurrencies returns the payable currency catalog, cached for a few
// minutes.
func (c *Client) ListCurrencies(ctx context.Context) ([]Currency, error) {
	c.mu.Lock()
	if c.currencies != nil && c.now().Sub(c.fetchedAt) < currencyCacheTTL {
		cached := c.currencies
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	currencies, err := doResilient(ctx, c, func(ctx context.Context) ([]Currency, error) {
		return getJSON[[]Currency](ctx, c, "/api/v1/currencies/")
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.currencies = currencies
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return currencies, nil
}

// doResilient wraps a gateway call with retry and a per-call timeout.
func doResilient[T any](ctx context.Context, c *Client, fn func(context.Context) (T, error)) (T, error) {
	r := retry.New[T](retry.Config{
		MaxAttempts:   c.maxRetries + 1,
		InitialDelay:  c.retryDelay,
		BackoffPolicy: retry.BackoffExponential,
	})
	t := timeout.New[T](timeout.Config{
		DefaultTimeout: c.apiTimeout,
	})

	return r.Do(ctx, func(ctx context.Context) (T, error) {
		return t.Execute(ctx, c.apiTimeout, fn)
	})
}

func postJSON[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	var zero T
	encoded, err := json.Marshal(body)
	if err != nil {
		return zero, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return zero, err
	}
	req.Header.Set("Content-Type", "application/json")
	return roundTrip[T](c, req)
}

func getJSON[T any](ctx context.Context, c *Client, path string) (T, error) {
	var zero T
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return zero, err
	}
	return roundTrip[T](c, req)
}

func roundTrip[T any](c *Client, req *http.Request) (T, error) {
	var zero T
	req.Header.Set("X-Device-Id", c.deviceID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return zero, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return zero, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
