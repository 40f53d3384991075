package config

import "time"

// Config is the full server configuration, resolved from (highest precedence
// first) process environment, an optional .env file, an optional YAML file,
// and built-in defaults.
type Config struct {
	// DeviceID identifies this merchant device against the Bitnovo Pay API.
	DeviceID string `yaml:"device_id" validate:"required,min=8"`

	// BaseURL is the Bitnovo Pay API base URL.
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// DeviceSecret signs webhook deliveries. Empty means signature
	// verification is skipped (explicit operator opt-out).
	DeviceSecret string `yaml:"device_secret"`

	LogLevel string `yaml:"log_level"`

	// Outbound API client tuning.
	APITimeout time.Duration `yaml:"api_timeout"`
	MaxRetries int           `yaml:"max_retries" validate:"min=0,max=5"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	Webhook WebhookConfig `yaml:"webhook"`
	Tunnel  TunnelConfig  `yaml:"tunnel"`
}

// WebhookConfig configures the local webhook HTTP listener and event store.
type WebhookConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port" validate:"omitempty,min=1024,max=65535"`
	Path        string        `yaml:"path"`
	MaxEvents   int           `yaml:"max_events" validate:"min=1"`
	EventTTL    time.Duration `yaml:"event_ttl"`
	MaxBodySize int64         `yaml:"max_body_size"`
}

// TunnelConfig configures public exposure of the webhook listener.
type TunnelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider" validate:"omitempty,oneof=ngrok zrok manual"`

	// PublicURL is required for the manual provider.
	PublicURL string `yaml:"public_url"`

	NgrokAuthToken string `yaml:"ngrok_auth_token"`
	NgrokDomain    string `yaml:"ngrok_domain"`
	ZrokToken      string `yaml:"zrok_token"`
	ZrokUniqueName string `yaml:"zrok_unique_name"`

	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	ReconnectMaxRetries int           `yaml:"reconnect_max_retries"`
	ReconnectBackoff    time.Duration `yaml:"reconnect_backoff"`
}

// Defaults mirrors the documented environment defaults.
const (
	DefaultAPITimeout  = 10 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1500 * time.Millisecond
	DefaultWebhookHost = "0.0.0.0"
	DefaultWebhookPort = 3000
	DefaultWebhookPath = "/webhook/bitnovo"
	DefaultMaxEvents   = 1000
	DefaultEventTTL    = time.Hour
	DefaultMaxBodySize = 1 << 20 // 1 MB

	DefaultTunnelProvider      = "ngrok"
	DefaultHealthCheckInterval = time.Minute
	DefaultReconnectMaxRetries = 10
	DefaultReconnectBackoff    = 5 * time.Second
)
