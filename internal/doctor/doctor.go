// Package doctor validates bitnovo-mcp configuration and environment before
// the server starts: credentials, gateway reachability, webhook settings,
// and tunnel prerequisites.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/bitnovo/pay-mcp/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration against the environment.
type Doctor struct {
	cfg *config.Config

	// Injection points for tests.
	lookPath   func(string) (string, error)
	httpClient *http.Client

	// CheckNetwork controls the gateway reachability probe. Off by default
	// so doctor runs are deterministic without connectivity.
	CheckNetwork bool
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{
		cfg:        cfg,
		lookPath:   exec.LookPath,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	d.validateCredentials(r)
	d.validateWebhook(r)
	d.validateTunnel(r)
	d.warnTimeouts(r)
	if d.CheckNetwork {
		d.checkGateway(ctx, r)
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateCredentials(r *Result) {
	if d.cfg.DeviceID == "" {
		d.addError(r, "credentials", "BITNOVO_DEVICE_ID",
			"device ID is required; create a device in the Bitnovo Pay dashboard")
	} else if len(d.cfg.DeviceID) < 8 {
		d.addError(r, "credentials", "BITNOVO_DEVICE_ID",
			fmt.Sprintf("device ID %q looks truncated (expected at least 8 characters)", config.MaskDeviceID(d.cfg.DeviceID)))
	}

	if d.cfg.BaseURL == "" {
		d.addError(r, "credentials", "BITNOVO_BASE_URL", "gateway base URL is required")
	} else if !strings.HasPrefix(d.cfg.BaseURL, "https://") && !strings.HasPrefix(d.cfg.BaseURL, "http://") {
		d.addError(r, "credentials", "BITNOVO_BASE_URL",
			fmt.Sprintf("base URL %q must start with http:// or https://", d.cfg.BaseURL))
	}

	if d.cfg.DeviceSecret == "" {
		d.addWarning(r, "credentials", "BITNOVO_DEVICE_SECRET",
			"no device secret configured; webhook signatures will not be verified")
	}
}

func (d *Doctor) validateWebhook(r *Result) {
	w := d.cfg.Webhook
	if !w.Enabled {
		if d.cfg.Tunnel.Enabled {
			d.addError(r, "webhook", "TUNNEL_ENABLED",
				"tunnel is enabled but the webhook server is not; set WEBHOOK_ENABLED=true")
		}
		return
	}

	if w.Port < 1024 || w.Port > 65535 {
		d.addError(r, "webhook", "WEBHOOK_PORT",
			fmt.Sprintf("port %d is outside the unprivileged range 1024-65535", w.Port))
	}
	if !strings.HasPrefix(w.Path, "/") {
		d.addError(r, "webhook", "WEBHOOK_PATH",
			fmt.Sprintf("path %q must start with /", w.Path))
	}
	if w.MaxEvents <= 0 {
		d.addWarning(r, "webhook", "WEBHOOK_MAX_EVENTS",
			"max events is unset; the default bound will be used")
	}
	if w.Enabled && !d.cfg.Tunnel.Enabled {
		d.addWarning(r, "webhook", "TUNNEL_ENABLED",
			"webhook server is enabled without a tunnel; Bitnovo can only deliver events if this host is publicly reachable")
	}
}

func (d *Doctor) validateTunnel(r *Result) {
	t := d.cfg.Tunnel
	if !t.Enabled {
		return
	}

	switch t.Provider {
	case "ngrok":
		if t.NgrokAuthToken == "" {
			d.addError(r, "tunnel", "NGROK_AUTHTOKEN",
				"ngrok provider selected but no auth token configured; get one at https://dashboard.ngrok.com")
		}
	case "zrok":
		if t.ZrokUniqueName == "" {
			d.addError(r, "tunnel", "ZROK_UNIQUE_NAME",
				"zrok provider selected but no reserved share name configured; run `zrok reserve public`")
		}
		if _, err := d.lookPath("zrok"); err != nil {
			d.addError(r, "tunnel", "zrok",
				"zrok binary not found on PATH; install it from https://zrok.io")
		}
	case "manual":
		if t.PublicURL == "" {
			d.addError(r, "tunnel", "WEBHOOK_PUBLIC_URL",
				"manual provider selected but no public URL configured")
		} else if !strings.HasPrefix(t.PublicURL, "https://") {
			d.addWarning(r, "tunnel", "WEBHOOK_PUBLIC_URL",
				"public URL is not https; Bitnovo requires https for webhook delivery")
		}
	case "":
		d.addError(r, "tunnel", "TUNNEL_PROVIDER",
			"tunnel is enabled but no provider selected; choose ngrok, zrok, or manual")
	default:
		d.addError(r, "tunnel", "TUNNEL_PROVIDER",
			fmt.Sprintf("unknown tunnel provider %q (expected ngrok, zrok, or manual)", t.Provider))
	}

	if t.HealthCheckInterval > 0 && t.HealthCheckInterval < 5*time.Second {
		d.addWarning(r, "tunnel", "TUNNEL_HEALTH_CHECK_INTERVAL",
			fmt.Sprintf("health check interval %s is very short; this can flap the tunnel", t.HealthCheckInterval))
	}
}

func (d *Doctor) warnTimeouts(r *Result) {
	if d.cfg.APITimeout > 0 && d.cfg.APITimeout < time.Second {
		d.addWarning(r, "timeouts", "API_TIMEOUT",
			fmt.Sprintf("API timeout %s is very aggressive for a payment gateway", d.cfg.APITimeout))
	}
	if d.cfg.MaxRetries > 3 {
		d.addWarning(r, "timeouts", "MAX_RETRIES",
			fmt.Sprintf("%d retries with exponential backoff can stall tool calls for a long time", d.cfg.MaxRetries))
	}
}

// checkGateway probes the gateway's currency catalog, the cheapest
// authenticated endpoint.
func (d *Doctor) checkGateway(ctx context.Context, r *Result) {
	url := strings.TrimRight(d.cfg.BaseURL, "/") + "/api/v1/currencies/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		d.addError(r, "gateway", "BITNOVO_BASE_URL", fmt.Sprintf("invalid gateway URL: %v", err))
		return
	}
	req.Header.Set("X-Device-Id", d.cfg.DeviceID)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.addError(r, "gateway", "BITNOVO_BASE_URL",
			fmt.Sprintf("gateway unreachable: %v", err))
		return
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		d.addError(r, "gateway", "BITNOVO_DEVICE_ID",
			fmt.Sprintf("gateway rejected device %s (status %d); check the device ID", config.MaskDeviceID(d.cfg.DeviceID), resp.StatusCode))
	case resp.StatusCode >= 500:
		d.addWarning(r, "gateway", "",
			fmt.Sprintf("gateway responded with status %d; it may be degraded", resp.StatusCode))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
