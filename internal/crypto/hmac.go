package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names carried by HMAC-signed operator requests.
const (
	HeaderAPIKey    = "X-Ainex-Key"
	HeaderTimestamp = "X-Ainex-Timestamp"
	HeaderSignature = "X-Ainex-Signature"
)

// RequestAuth holds the credentials for HMAC-authenticated operator requests
// (circuit breaker reset, manual halt). The signature covers the timestamp,
// HTTP method, request path, and body so a captured request cannot be replayed
// against a different endpoint.
type RequestAuth struct {
	Key    string // operator key identifier
	Secret string // shared secret
}

// Headers returns the HTTP headers for a signed operator request. The
// signature is HMAC-SHA256(secret, timestamp+method+path+body) encoded as
// base64.
func (a *RequestAuth) Headers(method, path, body string) map[string]string {
	return a.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (a *RequestAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	message := ts + method + path + body
	sig := hmacSHA256Base64([]byte(a.Secret), message)

	return map[string]string{
		HeaderAPIKey:    a.Key,
		HeaderTimestamp: ts,
		HeaderSignature: sig,
	}
}

// Verify checks a received signature against the expected value for the given
// request. Requests whose timestamp differs from now by more than maxSkew are
// rejected. The comparison is constant-time.
func (a *RequestAuth) Verify(method, path, body, timestamp, signature string, maxSkew time.Duration) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("crypto: invalid timestamp %q", timestamp)
	}

	skew := time.Since(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return fmt.Errorf("crypto: timestamp outside allowed skew (%s)", maxSkew)
	}

	message := timestamp + method + path + body
	expected := hmacSHA256Base64([]byte(a.Secret), message)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("crypto: signature mismatch")
	}
	return nil
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (a *RequestAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("RequestAuth{key=%s, secret=%s}", redact(a.Key), redact(a.Secret))
}
