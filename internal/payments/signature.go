package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrSignatureInvalid marks a webhook rejected before any state mutation.
var ErrSignatureInvalid = errors.New("webhook signature mismatch")

// VerifySignature recomputes the HMAC-SHA256 of the raw body under the shared
// secret and compares it to the provided hex signature in constant time.
func VerifySignature(secret string, body []byte, signature string) error {
	if signature == "" {
		return ErrSignatureInvalid
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}

// Sign produces the hex HMAC-SHA256 signature for a body. Used by tests and
// by support tooling replaying events.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
