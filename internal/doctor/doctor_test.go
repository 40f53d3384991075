package doctor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitnovo/pay-mcp/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		DeviceID:     "device-12345678",
		BaseURL:      "https://pos.bitnovo.com",
		DeviceSecret: "secret",
		APITimeout:   10 * time.Second,
		MaxRetries:   3,
		Webhook: config.WebhookConfig{
			Enabled:   true,
			Host:      "0.0.0.0",
			Port:      3000,
			Path:      "/webhook/bitnovo",
			MaxEvents: 1000,
		},
		Tunnel: config.TunnelConfig{
			Enabled:        true,
			Provider:       "ngrok",
			NgrokAuthToken: "token",
		},
	}
}

func fieldsOf(issues []Issue) []string {
	fields := make([]string, 0, len(issues))
	for _, i := range issues {
		fields = append(fields, i.Field)
	}
	return fields
}

func TestValidateCleanConfig(t *testing.T) {
	d := New(validConfig())
	r := d.Validate(context.Background())

	assert.True(t, r.Valid)
	assert.Empty(t, r.Errors)
}

func TestValidateMissingCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.DeviceID = ""
	cfg.BaseURL = ""

	r := New(cfg).Validate(context.Background())
	assert.False(t, r.Valid)
	assert.Contains(t, fieldsOf(r.Errors), "BITNOVO_DEVICE_ID")
	assert.Contains(t, fieldsOf(r.Errors), "BITNOVO_BASE_URL")
}

func TestValidateShortDeviceID(t *testing.T) {
	cfg := validConfig()
	cfg.DeviceID = "short"

	r := New(cfg).Validate(context.Background())
	assert.False(t, r.Valid)
	// The raw device ID never appears in the report.
	for _, e := range r.Errors {
		assert.NotContains(t, e.Message, `"short"`)
	}
}

func TestValidateMissingSecretIsWarning(t *testing.T) {
	cfg := validConfig()
	cfg.DeviceSecret = ""

	r := New(cfg).Validate(context.Background())
	assert.True(t, r.Valid)
	assert.Contains(t, fieldsOf(r.Warnings), "BITNOVO_DEVICE_SECRET")
}

func TestValidateTunnelWithoutWebhook(t *testing.T) {
	cfg := validConfig()
	cfg.Webhook.Enabled = false

	r := New(cfg).Validate(context.Background())
	assert.False(t, r.Valid)
	assert.Contains(t, fieldsOf(r.Errors), "TUNNEL_ENABLED")
}

func TestValidateWebhookWithoutTunnelWarns(t *testing.T) {
	cfg := validConfig()
	cfg.Tunnel.Enabled = false

	r := New(cfg).Validate(context.Background())
	assert.True(t, r.Valid)
	assert.Contains(t, fieldsOf(r.Warnings), "TUNNEL_ENABLED")
}

func TestValidateNgrokNeedsToken(t *testing.T) {
	cfg := validConfig()
	cfg.Tunnel.NgrokAuthToken = ""

	r := New(cfg).Validate(context.Background())
	assert.False(t, r.Valid)
	assert.Contains(t, fieldsOf(r.Errors), "NGROK_AUTHTOKEN")
}

func TestValidateZrokNeedsBinary(t *testing.T) {
	cfg := validConfig()
	cfg.Tunnel.Provider = "zrok"
	cfg.Tunnel.ZrokUniqueName = "my-share"

	d := New(cfg)
	d.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	r := d.Validate(context.Background())
	assert.False(t, r.Valid)
	assert.Contains(t, fieldsOf(r.Errors), "zrok")

	d.lookPath = func(string) (string, error) { return "/usr/local/bin/zrok", nil }
	r = d.Validate(context.Background())
	assert.True(t, r.Valid)
}

func TestValidateManualNeedsHTTPS(t *testing.T) {
	cfg := validConfig()
	cfg.Tunnel.Provider = "manual"
	cfg.Tunnel.PublicURL = "http://example.com"

	r := New(cfg).Validate(context.Background())
	assert.True(t, r.Valid)
	assert.Contains(t, fieldsOf(r.Warnings), "WEBHOOK_PUBLIC_URL")

	cfg.Tunnel.PublicURL = ""
	r = New(cfg).Validate(context.Background())
	assert.False(t, r.Valid)
}

func TestValidateUnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Tunnel.Provider = "teleport"

	r := New(cfg).Validate(context.Background())
	assert.False(t, r.Valid)
	assert.Contains(t, fieldsOf(r.Errors), "TUNNEL_PROVIDER")
}

func TestCheckGatewayRejectedDevice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/currencies/", r.URL.Path)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	cfg := validConfig()
	cfg.BaseURL = server.URL
	d := New(cfg)
	d.CheckNetwork = true

	r := d.Validate(context.Background())
	assert.False(t, r.Valid)
	assert.Contains(t, fieldsOf(r.Errors), "BITNOVO_DEVICE_ID")
}

func TestCheckGatewayUnreachable(t *testing.T) {
	cfg := validConfig()
	cfg.BaseURL = "http://127.0.0.1:1"
	d := New(cfg)
	d.CheckNetwork = true

	r := d.Validate(context.Background())
	assert.False(t, r.Valid)
}

func TestFormatHuman(t *testing.T) {
	r := &Result{Valid: true}
	assert.Equal(t, "Configuration valid.\n", FormatHuman(r))

	r = &Result{
		Errors:   []Issue{{Category: "tunnel", Field: "NGROK_AUTHTOKEN", Message: "missing"}},
		Warnings: []Issue{{Category: "credentials", Message: "no secret"}},
	}
	out := FormatHuman(r)
	assert.True(t, strings.Contains(out, "Configuration invalid (1 error(s), 1 warning(s))"))
	assert.True(t, strings.Contains(out, "ERROR [tunnel] NGROK_AUTHTOKEN: missing"))
	assert.True(t, strings.Contains(out, "WARN  [credentials] no secret"))
}

func TestFormatJSON(t *testing.T) {
	r := &Result{Valid: false, Errors: []Issue{{Category: "webhook", Message: "bad port"}}}
	out, err := FormatJSON(r)
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": false`)
	assert.Contains(t, out, `"bad port"`)
}
