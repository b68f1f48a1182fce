package middleware

import (
	"bytes"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/crypto"
)

// maxOperatorBody bounds the request body read for signature verification.
const maxOperatorBody = 1 << 16

// maxSignatureSkew is how far an operator request's timestamp may drift from
// server time before the request is rejected as a replay.
const maxSignatureSkew = 30 * time.Second

// APIKey returns middleware that validates read requests using a Bearer
// token in the Authorization header or a static key in the X-API-Key header.
// If apiKey is empty, the middleware passes all requests through (disabled).
func APIKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing authentication token")
				return
			}

			// Constant-time comparison to prevent timing attacks.
			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				writeUnauthorized(w, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OperatorAuth returns middleware for the breaker reset and halt endpoints.
// Requests must carry an HMAC signature over timestamp, method, path, and
// body, so a captured request can neither be replayed later nor re-aimed at
// a different endpoint. An empty secret disables the endpoints entirely
// rather than leaving them open.
func OperatorAuth(secret string) func(http.Handler) http.Handler {
	auth := &crypto.RequestAuth{Secret: secret}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeUnauthorized(w, "operator endpoints disabled")
				return
			}

			ts := r.Header.Get(crypto.HeaderTimestamp)
			sig := r.Header.Get(crypto.HeaderSignature)
			if ts == "" || sig == "" {
				writeUnauthorized(w, "missing request signature")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxOperatorBody))
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			if err := auth.Verify(r.Method, r.URL.Path, string(body), ts, sig, maxSignatureSkew); err != nil {
				writeUnauthorized(w, "invalid request signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return ""
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
