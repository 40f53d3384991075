package tunnel

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"regexp"
	"sync"
	"time"
)

// zrokURLPattern matches the public share URL zrok prints on startup.
var zrokURLPattern = regexp.MustCompile(`https://[^\s"]+`)

const zrokStartupTimeout = 30 * time.Second

// ZrokProvider drives a zrok subprocess sharing a reserved name. The public
// URL is parsed from the subprocess output; health is probed over HTTP
// because a zrok process can outlive its backend session.
type ZrokProvider struct {
	uniqueName  string
	backendAddr string
	binary      string
	client      *http.Client

	mu        sync.Mutex
	cmd       *exec.Cmd
	publicURL string
}

// NewZrokProvider configures a zrok provider around a reserved share name.
func NewZrokProvider(uniqueName, backendAddr string) (*ZrokProvider, error) {
	if uniqueName == "" {
		return nil, fmt.Errorf("zrok tunnel provider requires ZROK_UNIQUE_NAME")
	}
	return &ZrokProvider{
		uniqueName:  uniqueName,
		backendAddr: backendAddr,
		binary:      "zrok",
		client:      &http.Client{Timeout: 5 * time.Second},
	}, nil
}

func (p *ZrokProvider) Name() string { return "zrok" }

// Connect spawns `zrok share reserved <name>` and waits for the public URL
// to appear in its output. The subprocess keeps running after Connect
// returns; Disconnect kills it.
func (p *ZrokProvider) Connect(ctx context.Context) (string, error) {
	cmd := exec.Command(p.binary, "share", "reserved", p.uniqueName, "--headless", "--override-endpoint", "http://"+p.backendAddr)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("zrok stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start zrok: %w", err)
	}

	// The scanner keeps draining output after the URL is found so the
	// subprocess never blocks on a full pipe.
	urlCh := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if url := zrokURLPattern.FindString(scanner.Text()); url != "" {
				select {
				case urlCh <- url:
				default:
				}
			}
		}
	}()

	select {
	case url := <-urlCh:
		p.mu.Lock()
		p.cmd = cmd
		p.publicURL = url
		p.mu.Unlock()
		return url, nil
	case <-time.After(zrokStartupTimeout):
		cmd.Process.Kill()
		cmd.Wait()
		return "", fmt.Errorf("zrok did not report a public URL within %s", zrokStartupTimeout)
	case <-ctx.Done():
		cmd.Process.Kill()
		cmd.Wait()
		return "", ctx.Err()
	}
}

func (p *ZrokProvider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	cmd := p.cmd
	p.cmd = nil
	p.publicURL = ""
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill zrok: %w", err)
	}
	cmd.Wait()
	return nil
}

// CheckHealth verifies the subprocess is alive and the public URL answers.
func (p *ZrokProvider) CheckHealth(ctx context.Context) bool {
	p.mu.Lock()
	cmd := p.cmd
	url := p.publicURL
	p.mu.Unlock()

	if cmd == nil || url == "" {
		return false
	}
	if cmd.ProcessState != nil {
		// Already reaped: the subprocess exited.
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
