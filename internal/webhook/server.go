package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/bitnovo/pay-mcp/internal/store"
)

// DefaultAllowedOrigins are the Bitnovo gateway origins permitted by CORS.
var DefaultAllowedOrigins = []string{
	"https://pos.bitnovo.com",
	"https://dev-payments.pre-bnvo.com",
	"https://pay.bitnovo.com",
	"https://paytest.bitnovo.com",
}

// Tunnel is the slice of the tunnel manager the server drives. The server
// owns ordering: listener up before tunnel start, tunnel down before listener
// close.
type Tunnel interface {
	Start(ctx context.Context) (string, error)
	Stop(ctx context.Context) error
}

// Config holds webhook server configuration.
type Config struct {
	Host           string
	Port           int
	Path           string
	MaxBodySize    int64
	AllowedOrigins []string

	// Echoed on /health and /stats.
	MaxEvents int
	EventTTL  time.Duration
}

// Server is the local HTTP listener for webhook deliveries.
type Server struct {
	config  Config
	handler *Handler
	events  *store.EventStore
	tunnel  Tunnel
	logger  *slog.Logger
	server  *http.Server

	mu        sync.Mutex
	publicURL string
}

// NewServer creates a webhook server. tunnel may be nil when public exposure
// is not configured.
func NewServer(config Config, handler *Handler, events *store.EventStore, tunnel Tunnel, logger *slog.Logger) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 1 << 20
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = DefaultAllowedOrigins
	}
	return &Server{
		config:  config,
		handler: handler,
		events:  events,
		tunnel:  tunnel,
		logger:  logger.With("component", "webhook_server"),
		server:  nil,
	}
}

// Start binds the listener, then starts the tunnel, and blocks until ctx is
// cancelled or the server fails. Tunnel start failure is non-fatal: the
// listener stays reachable locally.
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("webhook server listen on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server started",
		"listen", ln.Addr().String(),
		"path", s.config.Path,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// The listener is accepting before the tunnel advertises it.
	if s.tunnel != nil {
		if url, err := s.tunnel.Start(ctx); err != nil {
			s.logger.Error("tunnel start failed, continuing with local listener only", "error", err)
		} else {
			s.mu.Lock()
			s.publicURL = url
			s.mu.Unlock()
			s.logger.Info("tunnel started", "public_url", url, "webhook_url", url+s.config.Path)
		}
	}

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		s.shutdown()
		return ctx.Err()
	case err := <-errCh:
		s.shutdown()
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// shutdown reverses startup order: tunnel first, then the listener.
func (s *Server) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.tunnel != nil {
		if err := s.tunnel.Stop(shutdownCtx); err != nil {
			s.logger.Error("tunnel stop failed", "error", err)
		}
		s.mu.Lock()
		s.publicURL = ""
		s.mu.Unlock()
	}
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("webhook server shutdown failed", "error", err)
	}
}

// PublicURL returns the tunnel's public base URL, or "" when no tunnel is up.
func (s *Server) PublicURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publicURL
}

// WebhookURL returns the full public webhook URL, or "" when no tunnel is up.
func (s *Server) WebhookURL() string {
	base := s.PublicURL()
	if base == "" {
		return ""
	}
	return base + s.config.Path
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.securityHeaders)
	r.Use(s.corsMiddleware())
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post(s.config.Path, s.handleWebhook)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.NotFound(s.handleNotFound)

	return r
}

// corsMiddleware restricts browser callers to the gateway's known origins.
// Requests without an Origin header (server-to-server deliveries) pass
// through untouched.
func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	allowed := s.config.AllowedOrigins
	c := cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			for _, a := range allowed {
				if strings.HasPrefix(origin, a) {
					return true
				}
			}
			return false
		},
		AllowedMethods: []string{http.MethodPost},
		AllowedHeaders: []string{"Content-Type", HeaderNonce, HeaderSignature},
		MaxAge:         600,
	})
	return c.Handler
}

func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests (excludes payload content).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	limitedReader := io.LimitReader(r.Body, s.config.MaxBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, CodeInternalError, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, CodeValidationError, "payload too large")
		return
	}

	result := s.handler.Handle(Request{
		Nonce:     r.Header.Get(HeaderNonce),
		Signature: r.Header.Get(HeaderSignature),
		Body:      body,
	})

	if !result.Success {
		s.respondError(w, result.StatusCode, result.ErrorCode, result.Error)
		return
	}
	s.respondJSON(w, result.StatusCode, SuccessResponse{
		Success:   true,
		EventID:   result.EventID,
		Validated: result.Validated,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.events.GetStats()
	handlerStats := s.handler.Stats()

	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"webhook": map[string]any{
			"enabled": true,
			"path":    s.config.Path,
		},
		"eventStore": map[string]any{
			"totalEvents":       stats.TotalEvents,
			"uniqueIdentifiers": stats.UniqueIdentifiers,
			"validatedCount":    stats.ValidatedCount,
			"invalidatedCount":  stats.InvalidatedCount,
		},
		"handler": map[string]any{
			"noncesCached":    handlerStats.NoncesCached,
			"hasDeviceSecret": handlerStats.HasDeviceSecret,
		},
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"eventStore": s.events.GetStats(),
		"handler":    s.handler.Stats(),
		"config": map[string]any{
			"maxEvents":  s.config.MaxEvents,
			"eventTtlMs": s.config.EventTTL.Milliseconds(),
			"path":       s.config.Path,
		},
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("webhook route not found", "method", r.Method, "path", r.URL.Path)
	s.respondJSON(w, http.StatusNotFound, map[string]any{
		"error":   "Not Found",
		"message": fmt.Sprintf("Route %s %s not found", r.Method, r.URL.Path),
		"availableEndpoints": []string{
			"POST " + s.config.Path,
			"GET /health",
			"GET /stats",
		},
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, ErrorResponse{
		Success:   false,
		Error:     message,
		ErrorCode: code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
