// Package middleware provides HTTP middleware for relaydesk.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/relaydesk/relaydesk/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID tags every request with the caller-supplied X-Request-ID, or a
// generated one, so a webhook delivery can be traced across log lines. The
// ID rides the context and is echoed on the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = generateID()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// generateID returns a 16-byte random hex string (32 chars).
func generateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
