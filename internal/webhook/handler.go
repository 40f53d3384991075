package webhook

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/zeebo/blake3"

	"github.com/bitnovo/pay-mcp/internal/store"
)

// EventSink receives accepted events. Satisfied by *store.EventStore.
type EventSink interface {
	Store(event *store.Event) bool
}

// Request is one inbound webhook delivery, reduced to what the handler needs.
// Body must be the raw bytes as received; see VerifySignature.
type Request struct {
	Nonce     string
	Signature string
	Body      []byte
}

// Result is the structured outcome of processing one delivery.
type Result struct {
	Success    bool
	EventID    string
	Validated  bool
	Error      string
	ErrorCode  string
	StatusCode int
}

// HandlerStats is a snapshot for the health endpoint.
type HandlerStats struct {
	NoncesCached    int  `json:"nonces_cached"`
	HasDeviceSecret bool `json:"has_device_secret"`
}

// Handler validates inbound webhook deliveries and persists them as events.
//
// Per-request pipeline: parse, headers, replay check, signature verification,
// persist. Parse/header/replay failures are fatal to the request and persist
// nothing. A signature mismatch is not fatal: the event is recorded with
// Validated=false so the tool surface can show unverified deliveries.
type Handler struct {
	secret   string
	nonces   *NonceCache
	sink     EventSink
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler creates a handler. An empty secret disables signature
// verification entirely; every event is then recorded with Validated=false.
func NewHandler(secret string, nonces *NonceCache, sink EventSink, logger *slog.Logger) *Handler {
	return &Handler{
		secret:   secret,
		nonces:   nonces,
		sink:     sink,
		validate: validator.New(),
		logger:   logger.With("component", "webhook_handler"),
		now:      time.Now,
	}
}

// Handle processes one delivery.
func (h *Handler) Handle(req Request) Result {
	// Step 1: parse and validate the payload schema.
	var payload Payload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return h.reject(http.StatusBadRequest, CodeValidationError, "invalid JSON payload")
	}
	if err := h.validate.Struct(&payload); err != nil {
		return h.reject(http.StatusBadRequest, CodeValidationError, "payload failed schema validation")
	}

	// Step 2: authentication material. Only enforced when a secret is
	// configured; running without one is an explicit operator opt-out.
	if h.secret != "" && (req.Nonce == "" || req.Signature == "") {
		h.logger.Warn("webhook missing signature headers", "identifier", payload.Identifier)
		return h.reject(http.StatusUnauthorized, CodeAuthError, "missing nonce or signature header")
	}

	// Step 3: replay protection. Replayed nonces are dropped, not stored,
	// to keep the event log clean.
	if req.Nonce != "" && !h.nonces.Add(req.Nonce) {
		h.logger.Warn("webhook nonce replayed",
			"identifier", payload.Identifier,
			"nonce", req.Nonce,
		)
		return h.reject(http.StatusConflict, CodeReplayError, "nonce already used")
	}

	// Step 4: signature verification against the raw body.
	validated := false
	if h.secret != "" {
		res := VerifySignature(h.secret, req.Nonce, req.Body, req.Signature)
		validated = res.Valid
		if !res.Valid {
			h.logger.Warn("webhook signature verification failed",
				"identifier", payload.Identifier,
				"reason", string(res.Reason),
			)
		}
	}

	// Step 5: persist. Duplicate event IDs are an idempotent no-op.
	var opaque map[string]any
	if err := json.Unmarshal(req.Body, &opaque); err != nil {
		// Unreachable after step 1, but never persist half-parsed state.
		return h.reject(http.StatusInternalServerError, CodeInternalError, "failed to decode payload")
	}

	eventID := EventID(payload.Identifier, req.Nonce)
	event := &store.Event{
		EventID:    eventID,
		Identifier: payload.Identifier,
		Status:     payload.Status,
		ReceivedAt: h.now(),
		Payload:    opaque,
		Signature:  req.Signature,
		Nonce:      req.Nonce,
		Validated:  validated,
	}
	if !h.sink.Store(event) {
		h.logger.Debug("duplicate webhook delivery", "event_id", eventID)
	}

	return Result{
		Success:    true,
		EventID:    eventID,
		Validated:  validated,
		StatusCode: http.StatusOK,
	}
}

// Stats reports handler state for the health endpoint.
func (h *Handler) Stats() HandlerStats {
	return HandlerStats{
		NoncesCached:    h.nonces.Size(),
		HasDeviceSecret: h.secret != "",
	}
}

func (h *Handler) reject(status int, code, msg string) Result {
	return Result{
		Success:    false,
		Error:      msg,
		ErrorCode:  code,
		StatusCode: status,
	}
}

// EventID derives the deterministic dedup key for a delivery from the payment
// identifier and nonce.
func EventID(identifier, nonce string) string {
	sum := blake3.Sum256([]byte(identifier + ":" + nonce))
	return hex.EncodeToString(sum[:16])
}
