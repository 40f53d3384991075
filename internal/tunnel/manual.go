package tunnel

import (
	"context"
	"fmt"
	"strings"
)

// ManualProvider represents a tunnel the operator runs out of band (a
// reverse proxy, a self-hosted frp, an existing ngrok session). The manager
// only advertises the configured URL.
type ManualProvider struct {
	publicURL string
}

// NewManualProvider returns a provider for an externally managed public URL.
func NewManualProvider(publicURL string) (*ManualProvider, error) {
	url := strings.TrimRight(strings.TrimSpace(publicURL), "/")
	if url == "" {
		return nil, fmt.Errorf("manual tunnel provider requires a public URL")
	}
	return &ManualProvider{publicURL: url}, nil
}

func (p *ManualProvider) Name() string { return "manual" }

func (p *ManualProvider) Connect(ctx context.Context) (string, error) {
	return p.publicURL, nil
}

func (p *ManualProvider) Disconnect(ctx context.Context) error { return nil }

// CheckHealth always reports healthy. The operator owns the URL's
// availability, and there is no session the manager could restart.
func (p *ManualProvider) CheckHealth(ctx context.Context) bool { return true }
