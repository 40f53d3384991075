// Package mcp exposes Bitnovo Pay operations as MCP tools over stdio.
package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/bitnovo/pay-mcp/internal/payments"
	"github.com/bitnovo/pay-mcp/internal/qr"
	"github.com/bitnovo/pay-mcp/internal/store"
	"github.com/bitnovo/pay-mcp/internal/tunnel"
)

var (
	Version     = "dev"
	BuildCommit = "unknown"
	BuildDate   = "unknown"
)

// PaymentsAPI is the slice of the gateway client the tools use.
type PaymentsAPI interface {
	CreatePayment(ctx context.Context, req payments.CreatePaymentRequest) (*payments.Payment, error)
	GetPaymentInfo(ctx context.Context, identifier string) (*payments.PaymentInfo, error)
	ListCurrencies(ctx context.Context) ([]payments.Currency, error)
}

// WebhookEndpoint reports the public webhook address when a tunnel is up.
type WebhookEndpoint interface {
	PublicURL() string
	WebhookURL() string
}

// TunnelStatus reports tunnel supervisor state.
type TunnelStatus interface {
	Info() tunnel.Info
}

// Options wires the server's collaborators. Webhook, Tunnel, and Events may
// be nil when the webhook subsystem is disabled; the corresponding tools then
// return a friendly error instead of being registered differently per
// configuration.
type Options struct {
	Payments PaymentsAPI
	QR       *qr.Generator
	Events   *store.EventStore
	Webhook  WebhookEndpoint
	Tunnel   TunnelStatus
}

// mcpErr returns a user-friendly error for MCP clients. Internal details are
// logged elsewhere, never surfaced to the model.
func mcpErr(friendly string) error {
	return fmt.Errorf("%s", friendly)
}

// Server registers and serves the Bitnovo Pay tool set.
type Server struct {
	mcpServer *mcp.Server
	payments  PaymentsAPI
	qr        *qr.Generator
	events    *store.EventStore
	webhook   WebhookEndpoint
	tunnel    TunnelStatus

	// Payments created in this session, for QR rendering without another
	// gateway round trip.
	mu      sync.Mutex
	created map[string]*payments.Payment
}

// NewServer builds the MCP server and registers all tools.
func NewServer(opts Options) *Server {
	info := mcp.ServerInfo{
		Name:    "bitnovo-pay",
		Version: Version,
	}

	s := &Server{
		mcpServer: mcp.NewServer(info,
			mcp.WithTitle("Bitnovo Pay MCP Server"),
			mcp.WithDescription("Create and track crypto payments through the Bitnovo Pay gateway, with webhook-driven status updates."),
			mcp.WithBuildInfo(BuildCommit, BuildDate),
			mcp.WithInstructions("Use create_payment_onchain or create_payment_link to start a payment, generate_payment_qr to render it, and get_payment_status or get_webhook_events to track it."),
		),
		payments: opts.Payments,
		qr:       opts.QR,
		events:   opts.Events,
		webhook:  opts.Webhook,
		tunnel:   opts.Tunnel,
		created:  make(map[string]*payments.Payment),
	}

	s.registerTools()
	return s
}

// Serve runs the stdio transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

type CreateOnchainArgs struct {
	Amount   float64 `json:"amount" jsonschema:"description=Payment amount in the fiat currency"`
	Currency string  `json:"currency" jsonschema:"description=Crypto currency symbol to receive (e.g. BTC, ETH_USDC)"`
	Fiat     string  `json:"fiat,omitempty" jsonschema:"description=Fiat currency code, defaults to EUR"`
	Notes    string  `json:"notes,omitempty" jsonschema:"description=Free-form note attached to the order"`
}

type CreateLinkArgs struct {
	Amount   float64 `json:"amount" jsonschema:"description=Payment amount in the fiat currency"`
	Fiat     string  `json:"fiat,omitempty" jsonschema:"description=Fiat currency code, defaults to EUR"`
	Notes    string  `json:"notes,omitempty" jsonschema:"description=Free-form note attached to the order"`
	Language string  `json:"language,omitempty" jsonschema:"description=Checkout page language code (e.g. ES, EN)"`
}

type PaymentStatusArgs struct {
	Identifier string `json:"identifier" jsonschema:"description=Payment identifier returned at creation"`
}

type CurrenciesArgs struct {
	Amount float64 `json:"amount,omitempty" jsonschema:"description=Optional fiat amount; filters out currencies whose limits exclude it"`
}

type GenerateQRArgs struct {
	Identifier string `json:"identifier" jsonschema:"description=Payment identifier returned at creation"`
	QRType     string `json:"qr_type,omitempty" jsonschema:"description=What to encode: address, payment_uri, or web_url. Defaults to payment_uri"`
	Size       int    `json:"size,omitempty" jsonschema:"description=Image size in pixels (128-1024, default 300)"`
	Style      string `json:"style,omitempty" jsonschema:"description=Rendering style: basic or high_res"`
}

type WebhookEventsArgs struct {
	Identifier    string `json:"identifier,omitempty" jsonschema:"description=Filter events for one payment identifier"`
	Limit         int    `json:"limit,omitempty" jsonschema:"description=Maximum events to return, default 20"`
	OnlyValidated bool   `json:"only_validated,omitempty" jsonschema:"description=Return only events with a verified signature"`
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("create_payment_onchain").
		Description("Create a crypto payment to a specific on-chain currency. Returns the receiving address and payment URI.").
		Handler(s.handleCreateOnchain)

	s.mcpServer.Tool("create_payment_link").
		Description("Create a hosted checkout payment link where the customer picks the currency.").
		Handler(s.handleCreateLink)

	s.mcpServer.Tool("get_payment_status").
		Description("Get the current status of a payment from the gateway.").
		Handler(s.handlePaymentStatus)

	s.mcpServer.Tool("list_currencies_catalog").
		Description("List payable crypto currencies, optionally filtered by fiat amount limits.").
		Handler(s.handleListCurrencies)

	s.mcpServer.Tool("generate_payment_qr").
		Description("Render a QR code (PNG data URI) for a payment created in this session.").
		Handler(s.handleGenerateQR)

	s.mcpServer.Tool("get_webhook_events").
		Description("List webhook payment events received by the local webhook server.").
		Handler(s.handleWebhookEvents)

	s.mcpServer.Tool("get_webhook_url").
		Description("Get the public webhook URL Bitnovo should deliver events to.").
		Handler(s.handleWebhookURL)

	s.mcpServer.Tool("get_tunnel_status").
		Description("Get the tunnel connection status, provider, and reconnect history.").
		Handler(s.handleTunnelStatus)
}

func (s *Server) handleCreateOnchain(ctx context.Context, args CreateOnchainArgs) (any, error) {
	if args.Amount <= 0 {
		return nil, mcpErr("Payment amount must be greater than zero.")
	}
	if args.Currency == "" {
		return nil, mcpErr("An on-chain payment needs a currency symbol. Use list_currencies_catalog to see the options.")
	}

	payment, err := s.payments.CreatePayment(ctx, payments.CreatePaymentRequest{
		ExpectedOutputAmount: args.Amount,
		InputCurrency:        args.Currency,
		Fiat:                 defaultFiat(args.Fiat),
		Notes:                args.Notes,
	})
	if err != nil {
		return nil, mcpErr("Payment creation failed. Check the amount against the currency limits and try again.")
	}
	s.remember(payment)

	return map[string]any{
		"identifier":            payment.Identifier,
		"address":               payment.Address,
		"tag_memo":              payment.TagMemo,
		"payment_uri":           payment.PaymentURI,
		"input_currency":        payment.InputCurrency,
		"expected_input_amount": payment.ExpectedInputAmount,
		"rate":                  payment.Rate,
	}, nil
}

func (s *Server) handleCreateLink(ctx context.Context, args CreateLinkArgs) (any, error) {
	if args.Amount <= 0 {
		return nil, mcpErr("Payment amount must be greater than zero.")
	}

	payment, err := s.payments.CreatePayment(ctx, payments.CreatePaymentRequest{
		ExpectedOutputAmount: args.Amount,
		Fiat:                 defaultFiat(args.Fiat),
		Notes:                args.Notes,
		Language:             args.Language,
	})
	if err != nil {
		return nil, mcpErr("Payment link creation failed. Check the amount and try again.")
	}
	s.remember(payment)

	return map[string]any{
		"identifier": payment.Identifier,
		"web_url":    payment.WebURL,
	}, nil
}

func (s *Server) handlePaymentStatus(ctx context.Context, args PaymentStatusArgs) (any, error) {
	if args.Identifier == "" {
		return nil, mcpErr("A payment identifier is required.")
	}

	info, err := s.payments.GetPaymentInfo(ctx, args.Identifier)
	if err != nil {
		return nil, mcpErr("Could not fetch the payment. Verify the identifier is correct.")
	}

	return map[string]any{
		"identifier":         info.Identifier,
		"status":             info.Status,
		"status_description": info.Status.Description(),
		"is_final":           info.Status.IsFinal(),
		"is_paid":            info.Status.IsPaid(),
		"fiat_amount":        info.FiatAmount,
		"fiat":               info.Fiat,
		"crypto_amount":      info.CryptoAmount,
		"confirmed_amount":   info.ConfirmedAmount,
		"unconfirmed_amount": info.UnconfirmedAmount,
	}, nil
}

func (s *Server) handleListCurrencies(ctx context.Context, args CurrenciesArgs) (any, error) {
	currencies, err := s.payments.ListCurrencies(ctx)
	if err != nil {
		return nil, mcpErr("Could not fetch the currency catalog from the gateway.")
	}

	if args.Amount > 0 {
		filtered := currencies[:0:0]
		for _, c := range currencies {
			if args.Amount < c.MinAmount {
				continue
			}
			if c.MaxAmount > 0 && args.Amount > c.MaxAmount {
				continue
			}
			filtered = append(filtered, c)
		}
		currencies = filtered
	}

	return map[string]any{
		"count":      len(currencies),
		"currencies": currencies,
	}, nil
}

func (s *Server) handleGenerateQR(ctx context.Context, args GenerateQRArgs) (any, error) {
	if args.Identifier == "" {
		return nil, mcpErr("A payment identifier is required.")
	}

	payment := s.recall(args.Identifier)
	if payment == nil {
		return nil, mcpErr("Unknown payment identifier. QR codes can only be rendered for payments created in this session.")
	}

	qrType := args.QRType
	if qrType == "" {
		qrType = qr.TypePaymentURI
	}
	content, err := qrContent(payment, qrType)
	if err != nil {
		return nil, err
	}

	img, err := s.qr.Generate(args.Identifier, content, qr.Options{
		QRType: qrType,
		Size:   args.Size,
		Style:  args.Style,
	})
	if err != nil {
		return nil, mcpErr("QR rendering failed.")
	}

	return map[string]any{
		"identifier": args.Identifier,
		"qr_type":    qrType,
		"image":      img,
	}, nil
}

func (s *Server) handleWebhookEvents(ctx context.Context, args WebhookEventsArgs) (any, error) {
	if s.events == nil {
		return nil, mcpErr("The webhook server is disabled. Set WEBHOOK_ENABLED=true to receive payment events.")
	}

	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}

	var events []*store.Event
	switch {
	case args.Identifier != "":
		events = s.events.GetByIdentifier(args.Identifier)
		if args.OnlyValidated {
			filtered := events[:0:0]
			for _, e := range events {
				if e.Validated {
					filtered = append(filtered, e)
				}
			}
			events = filtered
		}
		if len(events) > limit {
			events = events[:limit]
		}
	case args.OnlyValidated:
		events = s.events.GetValidated(limit)
	default:
		events = s.events.GetRecent(limit)
	}

	return map[string]any{
		"count":  len(events),
		"events": events,
		"stats":  s.events.GetStats(),
	}, nil
}

func (s *Server) handleWebhookURL(ctx context.Context, args struct{}) (any, error) {
	if s.webhook == nil {
		return nil, mcpErr("The webhook server is disabled. Set WEBHOOK_ENABLED=true to receive payment events.")
	}

	url := s.webhook.WebhookURL()
	if url == "" {
		return map[string]any{
			"available": false,
			"message":   "No public URL yet. The tunnel is disabled or still connecting; check get_tunnel_status.",
		}, nil
	}
	return map[string]any{
		"available":   true,
		"webhook_url": url,
		"public_url":  s.webhook.PublicURL(),
	}, nil
}

func (s *Server) handleTunnelStatus(ctx context.Context, args struct{}) (any, error) {
	if s.tunnel == nil {
		return nil, mcpErr("No tunnel is configured. Set TUNNEL_ENABLED=true and pick a provider.")
	}
	return s.tunnel.Info(), nil
}

func (s *Server) remember(p *payments.Payment) {
	s.mu.Lock()
	s.created[p.Identifier] = p
	s.mu.Unlock()
}

func (s *Server) recall(identifier string) *payments.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created[identifier]
}

func defaultFiat(fiat string) string {
	if fiat == "" {
		return "EUR"
	}
	return fiat
}

func qrContent(p *payments.Payment, qrType string) (string, error) {
	switch qrType {
	case qr.TypeAddress:
		if p.Address == "" {
			return "", mcpErr("This payment has no on-chain address. Use web_url for link payments.")
		}
		return p.Address, nil
	case qr.TypePaymentURI:
		if p.PaymentURI == "" {
			return "", mcpErr("This payment has no payment URI. Use web_url for link payments.")
		}
		return p.PaymentURI, nil
	case qr.TypeWebURL:
		if p.WebURL == "" {
			return "", mcpErr("This payment has no checkout link. Use address or payment_uri for on-chain payments.")
		}
		return p.WebURL, nil
	default:
		return "", mcpErr("Unknown qr_type. Use address, payment_uri, or web_url.")
	}
}
