package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// RateLimit budgets each client IP to limit requests per window, sharing the
// count across pipeline instances through the domain limiter. A failing
// limiter admits the request; an unreachable Redis must not take the
// dashboard down with it.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:api:" + extractClientIP(r)

			allowed, err := limiter.Allow(r.Context(), key, limit, window)
			switch {
			case err != nil:
				next.ServeHTTP(w, r)
			case !allowed:
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// extractClientIP resolves the caller's address: first X-Forwarded-For hop,
// then X-Real-IP, then the socket's remote address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
