// Package webhook implements the Bitnovo Pay webhook receiver: an HTTP
// listener with HMAC-SHA256 signature verification and replay protection.
//
// # Security Model
//
// - Signatures computed as hex(HMAC-SHA256(device_secret, nonce + raw_body))
// - Constant-time comparison via crypto/subtle
// - Raw body bytes are signed, never re-serialized JSON
// - Nonces are single-use within a freshness window (default 5 minutes)
// - Body size limits enforced to prevent DoS
// - CORS restricted to known Bitnovo origins; POST only
// - No device secret configured means verification is skipped and every event
//   is recorded unvalidated — an explicit operator opt-out, never silent
//
// # Request Flow
//
//  1. HTTP POST arrives at the configured path
//  2. Body size checked (413 if too large)
//  3. Payload parsed and validated against the payment notification schema
//     (400 on failure, nothing persisted)
//  4. X-NONCE / X-SIGNATURE headers extracted (401 if missing and a secret is
//     configured)
//  5. Nonce checked against the replay cache (409 on reuse, nothing persisted)
//  6. Signature verified against the raw body; a mismatch is recorded as an
//     unvalidated event, not rejected
//  7. Event persisted under a deterministic ID derived from identifier+nonce;
//     duplicates are an idempotent no-op
//  8. 200 returned with the event ID
package webhook
