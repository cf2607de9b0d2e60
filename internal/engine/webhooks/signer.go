package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the HMAC-SHA256 signature of a delivery payload. The
// "sha256=" prefix identifies the scheme to receivers.
func Sign(secret string, payload []byte) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks a signature in constant time. Receivers do the real
// verification on their side; this is used by the test harness echo-back.
func Verify(secret string, payload []byte, signature string) bool {
	want, err := Sign(secret, payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(signature))
}
