package tunnel

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"
)

// NgrokProvider runs an in-process ngrok session via the official SDK. The
// session forwards the public endpoint to the local webhook listener.
type NgrokProvider struct {
	authToken   string
	domain      string
	backendAddr string

	mu   sync.Mutex
	fwd  ngrok.Forwarder
	done chan struct{}
}

// NewNgrokProvider configures an ngrok provider. backendAddr is the local
// listener address (host:port). domain is optional; without it ngrok assigns
// an ephemeral hostname.
func NewNgrokProvider(authToken, domain, backendAddr string) (*NgrokProvider, error) {
	if authToken == "" {
		return nil, fmt.Errorf("ngrok tunnel provider requires NGROK_AUTHTOKEN")
	}
	return &NgrokProvider{
		authToken:   authToken,
		domain:      domain,
		backendAddr: backendAddr,
	}, nil
}

func (p *NgrokProvider) Name() string { return "ngrok" }

func (p *NgrokProvider) Connect(ctx context.Context) (string, error) {
	backend, err := url.Parse("http://" + p.backendAddr)
	if err != nil {
		return "", fmt.Errorf("invalid backend address %q: %w", p.backendAddr, err)
	}

	opts := []ngrokconfig.HTTPEndpointOption{}
	if p.domain != "" {
		opts = append(opts, ngrokconfig.WithDomain(p.domain))
	}

	fwd, err := ngrok.ListenAndForward(ctx, backend,
		ngrokconfig.HTTPEndpoint(opts...),
		ngrok.WithAuthtoken(p.authToken),
	)
	if err != nil {
		return "", fmt.Errorf("ngrok session: %w", err)
	}

	done := make(chan struct{})
	go func() {
		// Wait returns when the session ends, cleanly or not.
		fwd.Wait()
		close(done)
	}()

	p.mu.Lock()
	p.fwd = fwd
	p.done = done
	p.mu.Unlock()
	return fwd.URL(), nil
}

func (p *NgrokProvider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	fwd := p.fwd
	p.fwd = nil
	p.done = nil
	p.mu.Unlock()

	if fwd == nil {
		return nil
	}
	return fwd.Close()
}

// CheckHealth reports whether the forwarder session is still open.
func (p *NgrokProvider) CheckHealth(ctx context.Context) bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}

	select {
	case <-done:
		return false
	default:
		return true
	}
}
