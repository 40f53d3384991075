package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitnovo/pay-mcp/internal/config"
	"github.com/bitnovo/pay-mcp/internal/doctor"
	"github.com/bitnovo/pay-mcp/internal/log"
	"github.com/bitnovo/pay-mcp/internal/mcp"
	"github.com/bitnovo/pay-mcp/internal/payments"
	"github.com/bitnovo/pay-mcp/internal/qr"
	"github.com/bitnovo/pay-mcp/internal/qrcache"
	"github.com/bitnovo/pay-mcp/internal/store"
	"github.com/bitnovo/pay-mcp/internal/tunnel"
	"github.com/bitnovo/pay-mcp/internal/webhook"
)

const version = "0.1.0"

const eventSweepInterval = 5 * time.Minute

func main() {
	if len(os.Args) < 2 {
		// MCP hosts launch the binary with no arguments.
		os.Exit(runServe(nil))
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		os.Exit(runServe(args))
	case "doctor":
		os.Exit(runDoctor(args))
	case "version":
		fmt.Printf("bitnovo-mcp version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`bitnovo-mcp - Bitnovo Pay MCP server with webhook payment tracking

Usage:
  bitnovo-mcp [command] [flags]

Commands:
  serve     Run the MCP server on stdio (default when no command is given)
  doctor    Validate configuration and environment
  version   Show version information
  help      Show this help message

Serve flags:
  --config PATH   Optional YAML configuration file

Doctor flags:
  --config PATH   Optional YAML configuration file
  --network       Probe the Bitnovo gateway for reachability
  --json          Output the report as JSON
  --strict        Treat warnings as errors (exit code 2)

Configuration comes from the environment (BITNOVO_DEVICE_ID,
BITNOVO_BASE_URL, BITNOVO_DEVICE_SECRET, WEBHOOK_*, TUNNEL_*), an optional
.env file, and the optional YAML file, in that precedence order.
`)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Run `bitnovo-mcp doctor` for a full report.\n")
		return 1
	}

	rootLogger := log.New(cfg.LogLevel)
	logger := rootLogger.With("component", "main")
	logger.Info("bitnovo-mcp starting", "version", version)
	logger.Info("configuration resolved", "config", cfg.Masked())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	client := payments.NewClient(cfg, rootLogger)

	qrCache := qrcache.New(qrcache.Options{TTL: cfg.Webhook.EventTTL}, rootLogger)
	qrCache.Start()
	defer qrCache.Shutdown()
	qrGen := qr.NewGenerator(qrCache, rootLogger)

	opts := mcp.Options{
		Payments: client,
		QR:       qrGen,
	}

	errCh := make(chan error, 2)

	if cfg.Webhook.Enabled {
		events := store.New(store.Config{
			MaxEntries:    cfg.Webhook.MaxEvents,
			TTL:           cfg.Webhook.EventTTL,
			SweepInterval: eventSweepInterval,
		}, rootLogger)
		events.Start()
		defer events.Stop()

		handler := webhook.NewHandler(
			cfg.DeviceSecret,
			webhook.NewNonceCache(webhook.DefaultNonceMaxAge),
			events,
			rootLogger,
		)

		var tunnelMgr *tunnel.Manager
		if cfg.Tunnel.Enabled {
			backendAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Webhook.Port)
			tunnelMgr, err = tunnel.NewManager(cfg.Tunnel, backendAddr, rootLogger)
			if err != nil {
				logger.Error("tunnel configuration invalid", "error", err)
				return 1
			}
			opts.Tunnel = tunnelMgr
		}

		// The interface value must stay nil when no tunnel is configured.
		var serverTunnel webhook.Tunnel
		if tunnelMgr != nil {
			serverTunnel = tunnelMgr
		}

		server := webhook.NewServer(webhook.Config{
			Host:        cfg.Webhook.Host,
			Port:        cfg.Webhook.Port,
			Path:        cfg.Webhook.Path,
			MaxBodySize: cfg.Webhook.MaxBodySize,
			MaxEvents:   cfg.Webhook.MaxEvents,
			EventTTL:    cfg.Webhook.EventTTL,
		}, handler, events, serverTunnel, rootLogger)

		go func() {
			if err := server.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("webhook server: %w", err)
			}
		}()

		opts.Events = events
		opts.Webhook = server
		logger.Info("webhook server enabled",
			"host", cfg.Webhook.Host,
			"port", cfg.Webhook.Port,
			"path", cfg.Webhook.Path,
		)
	} else {
		logger.Info("webhook server disabled; payment events will not be received")
	}

	mcpServer := mcp.NewServer(opts)

	mcpDone := make(chan error, 1)
	go func() {
		mcpDone <- mcpServer.Serve(ctx)
	}()

	logger.Info("bitnovo-mcp serving on stdio")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
		<-mcpDone
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		<-mcpDone
		return 1
	case err := <-mcpDone:
		// The MCP host closed stdin; normal end of session.
		cancel()
		if err != nil && err != context.Canceled {
			logger.Error("mcp transport failed", "error", err)
			return 1
		}
	}

	logger.Info("bitnovo-mcp stopped")
	return 0
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML configuration file")
	network := fs.Bool("network", false, "Probe the Bitnovo gateway")
	jsonOut := fs.Bool("json", false, "Output report as JSON")
	strict := fs.Bool("strict", false, "Treat warnings as errors")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.LoadUnvalidated(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
		return 1
	}

	d := doctor.New(cfg)
	d.CheckNetwork = *network
	result := d.Validate(context.Background())

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if *strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}
