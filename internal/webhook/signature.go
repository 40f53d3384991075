package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// Reason classifies why signature verification failed.
type Reason string

const (
	ReasonMissingSecret  Reason = "missing-secret"
	ReasonLengthMismatch Reason = "length-mismatch"
	ReasonMismatch       Reason = "mismatch"
)

// VerificationResult is the outcome of a signature check.
type VerificationResult struct {
	Valid  bool
	Reason Reason
}

// VerifySignature checks a Bitnovo webhook signature:
//
//	signature = hex(HMAC-SHA256(secret, nonce + rawBody))
//
// The comparison is constant-time (crypto/subtle) to prevent timing attacks.
// rawBody must be the request body exactly as received on the wire;
// re-serialized JSON can differ byte-for-byte (key order, whitespace) and
// invalidate a correct signature.
func VerifySignature(secret, nonce string, rawBody []byte, received string) VerificationResult {
	if secret == "" {
		return VerificationResult{Valid: false, Reason: ReasonMissingSecret}
	}

	expected := ComputeSignature(secret, nonce, rawBody)
	got := strings.ToLower(strings.TrimSpace(received))

	if len(got) != len(expected) {
		return VerificationResult{Valid: false, Reason: ReasonLengthMismatch}
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return VerificationResult{Valid: false, Reason: ReasonMismatch}
	}
	return VerificationResult{Valid: true}
}

// ComputeSignature computes the hex HMAC-SHA256 over nonce + rawBody.
// Exported for the signing side of tests and tooling.
func ComputeSignature(secret, nonce string, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateNonce returns a fresh random nonce suitable for test deliveries.
func GenerateNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
