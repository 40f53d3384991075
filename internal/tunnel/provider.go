// Package tunnel exposes the local webhook listener through a public URL.
// Three providers are supported: the ngrok SDK, a zrok subprocess, and a
// manual mode for operator-managed tunnels. A supervisor watches the active
// tunnel and reconnects with capped exponential backoff.
package tunnel

import (
	"context"
	"time"
)

// Status is the lifecycle state of a managed tunnel.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

// Info is a snapshot of the tunnel state for status reporting.
type Info struct {
	Provider   string    `json:"provider"`
	Status     Status    `json:"status"`
	PublicURL  string    `json:"publicUrl,omitempty"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	Reconnects int       `json:"reconnects"`
	LastError  string    `json:"lastError,omitempty"`
}

// Provider establishes and tears down a single tunnel session. Providers are
// not safe for concurrent use; the Manager serializes all calls.
type Provider interface {
	// Name identifies the provider ("ngrok", "zrok", "manual").
	Name() string

	// Connect establishes the tunnel and returns its public base URL.
	Connect(ctx context.Context) (string, error)

	// Disconnect tears the tunnel down. Safe to call when not connected.
	Disconnect(ctx context.Context) error

	// CheckHealth reports whether the tunnel session is still alive.
	CheckHealth(ctx context.Context) bool
}
