package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bitnovo/pay-mcp/internal/config"
)

const maxReconnectBackoff = 60 * time.Second

// Manager supervises a tunnel provider: it connects with retry, watches
// health on an interval, and reconnects with capped exponential backoff when
// the session drops. Health ticks arriving while a reconnect is in flight
// are absorbed, so reconnect attempts never overlap.
type Manager struct {
	provider       Provider
	logger         *slog.Logger
	healthInterval time.Duration
	maxRetries     int
	baseBackoff    time.Duration

	mu         sync.Mutex
	status     Status
	publicURL  string
	startedAt  time.Time
	reconnects int
	lastError  string

	stopCh  chan struct{}
	wg      sync.WaitGroup
	runOnce sync.Once
}

// NewManager builds a manager for the configured provider. backendAddr is
// the local webhook listener address the tunnel forwards to.
func NewManager(cfg config.TunnelConfig, backendAddr string, logger *slog.Logger) (*Manager, error) {
	var (
		provider Provider
		err      error
	)
	switch cfg.Provider {
	case "ngrok":
		provider, err = NewNgrokProvider(cfg.NgrokAuthToken, cfg.NgrokDomain, backendAddr)
	case "zrok":
		provider, err = NewZrokProvider(cfg.ZrokUniqueName, backendAddr)
	case "manual":
		provider, err = NewManualProvider(cfg.PublicURL)
	default:
		return nil, fmt.Errorf("unknown tunnel provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	healthInterval := cfg.HealthCheckInterval
	if healthInterval <= 0 {
		healthInterval = config.DefaultHealthCheckInterval
	}
	backoff := cfg.ReconnectBackoff
	if backoff <= 0 {
		backoff = config.DefaultReconnectBackoff
	}
	maxRetries := cfg.ReconnectMaxRetries
	if maxRetries <= 0 {
		maxRetries = config.DefaultReconnectMaxRetries
	}

	return newManager(provider, healthInterval, maxRetries, backoff, logger), nil
}

func newManager(provider Provider, healthInterval time.Duration, maxRetries int, baseBackoff time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		provider:       provider,
		logger:         logger.With("component", "tunnel", "provider", provider.Name()),
		healthInterval: healthInterval,
		maxRetries:     maxRetries,
		baseBackoff:    baseBackoff,
		status:         StatusDisconnected,
		stopCh:         make(chan struct{}),
	}
}

// Start connects the tunnel and launches the health supervisor. It returns
// the public URL on success. The initial connect retries with the same
// backoff schedule as reconnects.
func (m *Manager) Start(ctx context.Context) (string, error) {
	m.setStatus(StatusConnecting, "")

	url, err := m.connectWithRetry(ctx)
	if err != nil {
		m.setStatus(StatusError, err.Error())
		return "", err
	}

	m.mu.Lock()
	m.status = StatusConnected
	m.publicURL = url
	m.startedAt = time.Now()
	m.reconnects = 0
	m.lastError = ""
	m.mu.Unlock()

	m.runOnce.Do(func() {
		m.wg.Add(1)
		go m.superviseLoop()
	})

	m.logger.Info("tunnel connected", "public_url", url)
	return url, nil
}

// Stop tears down the supervisor and the tunnel session. Safe to call more
// than once.
func (m *Manager) Stop(ctx context.Context) error {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	m.wg.Wait()

	err := m.provider.Disconnect(ctx)
	m.mu.Lock()
	m.status = StatusDisconnected
	m.publicURL = ""
	m.mu.Unlock()

	if err != nil {
		return fmt.Errorf("disconnect %s tunnel: %w", m.provider.Name(), err)
	}
	m.logger.Info("tunnel stopped")
	return nil
}

// Info returns a snapshot of the tunnel state.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Info{
		Provider:   m.provider.Name(),
		Status:     m.status,
		PublicURL:  m.publicURL,
		StartedAt:  m.startedAt,
		Reconnects: m.reconnects,
		LastError:  m.lastError,
	}
}

// PublicURL returns the current public base URL, or "" when not connected.
func (m *Manager) PublicURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusConnected {
		return ""
	}
	return m.publicURL
}

// IsConnected reports whether the tunnel is currently up.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusConnected
}

func (m *Manager) superviseLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if !m.IsConnected() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), m.healthInterval)
			healthy := m.provider.CheckHealth(ctx)
			cancel()
			if healthy {
				continue
			}

			m.logger.Warn("tunnel health check failed, reconnecting")
			m.reconnect()
		}
	}
}

// reconnect runs inside the supervisor goroutine, so concurrent health
// failures cannot trigger overlapping attempts. A successful reconnect
// clears the attempt counter and last error. On exhaustion the manager
// lands in the error state and stops trying; a later Stop/Start cycle is
// required to recover.
func (m *Manager) reconnect() {
	m.mu.Lock()
	m.status = StatusReconnecting
	m.reconnects++
	m.mu.Unlock()

	ctx := context.Background()
	m.provider.Disconnect(ctx)

	url, err := m.connectWithRetry(ctx)
	if err != nil {
		m.logger.Error("tunnel reconnect exhausted", "error", err)
		m.setStatus(StatusError, err.Error())
		return
	}

	m.mu.Lock()
	m.status = StatusConnected
	m.publicURL = url
	m.startedAt = time.Now()
	m.reconnects = 0
	m.lastError = ""
	m.mu.Unlock()
	m.logger.Info("tunnel reconnected", "public_url", url)
}

// connectWithRetry attempts Connect up to maxRetries times with exponential
// backoff (base << attempt, capped at 60s).
func (m *Manager) connectWithRetry(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		if attempt > 0 {
			delay := m.backoffDelay(attempt)
			m.logger.Info("tunnel connect retry",
				"attempt", attempt+1,
				"max_attempts", m.maxRetries,
				"delay", delay.String(),
			)
			select {
			case <-time.After(delay):
			case <-m.stopCh:
				return "", fmt.Errorf("tunnel manager stopped")
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		url, err := m.provider.Connect(ctx)
		if err == nil {
			return url, nil
		}
		lastErr = err
		m.setLastError(err.Error())
		m.logger.Warn("tunnel connect failed", "attempt", attempt+1, "error", err)
	}
	return "", fmt.Errorf("tunnel connect failed after %d attempts: %w", m.maxRetries, lastErr)
}

func (m *Manager) backoffDelay(attempt int) time.Duration {
	delay := m.baseBackoff << (attempt - 1)
	if delay > maxReconnectBackoff || delay <= 0 {
		delay = maxReconnectBackoff
	}
	return delay
}

func (m *Manager) setStatus(status Status, lastError string) {
	m.mu.Lock()
	m.status = status
	m.lastError = lastError
	m.mu.Unlock()
}

func (m *Manager) setLastError(msg string) {
	m.mu.Lock()
	m.lastError = msg
	m.mu.Unlock()
}
