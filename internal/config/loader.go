package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Load resolves configuration. yamlPath may be empty; a missing YAML file is
// not an error (env-only deployments are the common case). A .env file in the
// working directory is merged into the environment without overriding
// variables that are already set.
func Load(yamlPath string) (*Config, error) {
	cfg, err := LoadUnvalidated(yamlPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated resolves configuration without enforcing validation rules.
// Preflight tooling uses it to report problems instead of failing on the
// first one.
func LoadUnvalidated(yamlPath string) (*Config, error) {
	// godotenv.Load never overrides existing env vars.
	_ = godotenv.Load()

	cfg := defaults()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file %s: %w", yamlPath, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", yamlPath, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		LogLevel:   "INFO",
		APITimeout: DefaultAPITimeout,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
		Webhook: WebhookConfig{
			Host:        DefaultWebhookHost,
			Port:        DefaultWebhookPort,
			Path:        DefaultWebhookPath,
			MaxEvents:   DefaultMaxEvents,
			EventTTL:    DefaultEventTTL,
			MaxBodySize: DefaultMaxBodySize,
		},
		Tunnel: TunnelConfig{
			Enabled:             true,
			Provider:            DefaultTunnelProvider,
			HealthCheckInterval: DefaultHealthCheckInterval,
			ReconnectMaxRetries: DefaultReconnectMaxRetries,
			ReconnectBackoff:    DefaultReconnectBackoff,
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.DeviceID, "BITNOVO_DEVICE_ID")
	setString(&cfg.BaseURL, "BITNOVO_BASE_URL")
	setString(&cfg.DeviceSecret, "BITNOVO_DEVICE_SECRET")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	setDurationMs(&cfg.APITimeout, "API_TIMEOUT")
	setInt(&cfg.MaxRetries, "MAX_RETRIES")
	setDurationMs(&cfg.RetryDelay, "RETRY_DELAY")

	setBool(&cfg.Webhook.Enabled, "WEBHOOK_ENABLED")
	setString(&cfg.Webhook.Host, "WEBHOOK_HOST")
	setInt(&cfg.Webhook.Port, "WEBHOOK_PORT")
	setString(&cfg.Webhook.Path, "WEBHOOK_PATH")
	setInt(&cfg.Webhook.MaxEvents, "WEBHOOK_MAX_EVENTS")
	setDurationMs(&cfg.Webhook.EventTTL, "WEBHOOK_EVENT_TTL_MS")

	setBool(&cfg.Tunnel.Enabled, "TUNNEL_ENABLED")
	setString(&cfg.Tunnel.Provider, "TUNNEL_PROVIDER")
	setString(&cfg.Tunnel.PublicURL, "WEBHOOK_PUBLIC_URL")
	setString(&cfg.Tunnel.NgrokAuthToken, "NGROK_AUTHTOKEN")
	setString(&cfg.Tunnel.NgrokDomain, "NGROK_DOMAIN")
	setString(&cfg.Tunnel.ZrokToken, "ZROK_TOKEN")
	setString(&cfg.Tunnel.ZrokUniqueName, "ZROK_UNIQUE_NAME")
	setDurationMs(&cfg.Tunnel.HealthCheckInterval, "TUNNEL_HEALTH_CHECK_INTERVAL")
	setInt(&cfg.Tunnel.ReconnectMaxRetries, "TUNNEL_RECONNECT_MAX_RETRIES")
	setDurationMs(&cfg.Tunnel.ReconnectBackoff, "TUNNEL_RECONNECT_BACKOFF_MS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

// setDurationMs reads a bare-integer millisecond value, matching the wire
// format the original env vars used.
func setDurationMs(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = time.Duration(n) * time.Millisecond
		}
	}
}

// Validate checks structural constraints plus the numeric ranges the API
// client depends on.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("config validation failed on %s (%s)", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("config validation failed: %w", err)
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("base_url must be a valid http/https URL, got %q", c.BaseURL)
	}

	if c.APITimeout < time.Second || c.APITimeout > 30*time.Second {
		return fmt.Errorf("api_timeout must be between 1s and 30s, got %s", c.APITimeout)
	}
	if c.RetryDelay < 100*time.Millisecond || c.RetryDelay > 10*time.Second {
		return fmt.Errorf("retry_delay must be between 100ms and 10s, got %s", c.RetryDelay)
	}
	if !strings.HasPrefix(c.Webhook.Path, "/") {
		return fmt.Errorf("webhook path must start with /, got %q", c.Webhook.Path)
	}
	if c.Tunnel.Enabled && c.Tunnel.Provider == "manual" && c.Tunnel.PublicURL == "" {
		return fmt.Errorf("manual tunnel provider requires WEBHOOK_PUBLIC_URL")
	}
	return nil
}

// Masked returns a snapshot safe for logging.
func (c *Config) Masked() map[string]any {
	return map[string]any{
		"device_id":         MaskDeviceID(c.DeviceID),
		"base_url":          c.BaseURL,
		"has_device_secret": c.DeviceSecret != "",
		"log_level":         c.LogLevel,
		"api_timeout":       c.APITimeout.String(),
		"max_retries":       c.MaxRetries,
		"webhook_enabled":   c.Webhook.Enabled,
		"webhook_path":      c.Webhook.Path,
		"tunnel_enabled":    c.Tunnel.Enabled,
		"tunnel_provider":   c.Tunnel.Provider,
	}
}

// MaskDeviceID hides the middle of a device identifier for log output.
func MaskDeviceID(deviceID string) string {
	if len(deviceID) <= 8 {
		return "****"
	}
	return deviceID[:4] + "****" + deviceID[len(deviceID)-4:]
}
