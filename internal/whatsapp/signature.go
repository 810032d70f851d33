package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the HTTP header Meta signs webhook deliveries with.
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// VerifySignature checks an X-Hub-Signature-256 header value against the
// HMAC-SHA256 of the raw request body. The body must be the exact bytes
// received; re-serializing parsed JSON changes the byte sequence and
// breaks verification. Any missing or malformed signature fails closed.
func VerifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}

	got, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign computes the X-Hub-Signature-256 header value for a body. Used by
// tests and by tooling that replays webhooks.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// SubscribeMode is the hub.mode value of a verification handshake.
const SubscribeMode = "subscribe"

// VerifyHandshake validates the webhook subscription handshake parameters.
// Every parameter must be present and match; missing values fail closed.
func VerifyHandshake(mode, token, challenge, expectedToken string) bool {
	if mode != SubscribeMode || challenge == "" {
		return false
	}
	if token == "" || expectedToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) == 1
}
