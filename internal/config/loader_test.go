package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("BITNOVO_DEVICE_ID", "device-1234567890")
	t.Setenv("BITNOVO_BASE_URL", "https://pos.bitnovo.com")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "device-1234567890", cfg.DeviceID)
	assert.Equal(t, DefaultAPITimeout, cfg.APITimeout)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultWebhookPath, cfg.Webhook.Path)
	assert.Equal(t, DefaultWebhookPort, cfg.Webhook.Port)
	assert.False(t, cfg.Webhook.Enabled)
	assert.True(t, cfg.Tunnel.Enabled)
	assert.Equal(t, "ngrok", cfg.Tunnel.Provider)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("BITNOVO_DEVICE_ID", "")
	t.Setenv("BITNOVO_BASE_URL", "")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadShortDeviceID(t *testing.T) {
	t.Setenv("BITNOVO_DEVICE_ID", "short")
	t.Setenv("BITNOVO_BASE_URL", "https://pos.bitnovo.com")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadInvalidBaseURL(t *testing.T) {
	t.Setenv("BITNOVO_DEVICE_ID", "device-1234567890")
	t.Setenv("BITNOVO_BASE_URL", "ftp://pos.bitnovo.com")

	_, err := Load("")
	assert.Error(t, err)
}

func TestEnvOverridesYAML(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WEBHOOK_PORT", "4001")
	t.Setenv("WEBHOOK_ENABLED", "true")

	dir := t.TempDir()
	path := filepath.Join(dir, "bitnovo.yaml")
	yamlContent := `
webhook:
  port: 3999
  path: /webhook/custom
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Env wins over YAML; YAML wins over defaults.
	assert.Equal(t, 4001, cfg.Webhook.Port)
	assert.Equal(t, "/webhook/custom", cfg.Webhook.Path)
	assert.True(t, cfg.Webhook.Enabled)
}

func TestLoadMissingYAMLIsTolerated(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultWebhookPath, cfg.Webhook.Path)
}

func TestDurationEnvParsing(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_TIMEOUT", "15000")
	t.Setenv("WEBHOOK_EVENT_TTL_MS", "120000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.APITimeout)
	assert.Equal(t, 2*time.Minute, cfg.Webhook.EventTTL)
}

func TestAPITimeoutRange(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_TIMEOUT", "50")

	_, err := Load("")
	assert.Error(t, err)
}

func TestManualProviderRequiresPublicURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TUNNEL_PROVIDER", "manual")
	t.Setenv("WEBHOOK_PUBLIC_URL", "")

	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("WEBHOOK_PUBLIC_URL", "https://pay.example.com")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com", cfg.Tunnel.PublicURL)
}

func TestMaskDeviceID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "****"},
		{"short", "****"},
		{"12345678", "****"},
		{"device-1234567890", "devi****7890"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskDeviceID(tt.in))
	}
}

func TestMaskedSnapshot(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BITNOVO_DEVICE_SECRET", "super-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	m := cfg.Masked()
	assert.Equal(t, true, m["has_device_secret"])
	assert.NotContains(t, m, "device_secret")
	assert.Equal(t, "devi****7890", m["device_id"])
}
