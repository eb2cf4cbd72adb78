// File: internal/middleware/ratelimit.go
package middleware

import (
	"fmt"
	"math"
	"net/http"

	"github.com/iyunix/go-designdesk/internal/logger"
	"github.com/iyunix/go-designdesk/internal/ratelimit"
)

// RateLimitMiddleware throttles per account, falling back to client IP for
// anonymous requests.
func RateLimitMiddleware(limiter *ratelimit.MemoryRateLimiter, name string, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier, ok := AccountID(r.Context())
			if !ok {
				identifier = "ip:" + ratelimit.GetClientIP(r)
			}

			allowed, info := limiter.Allow(identifier)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
			if !allowed {
				log.Warn("rate limited", "limiter", name, "identifier", identifier)
				if info.RetryAfter > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(info.RetryAfter.Seconds())))
				}
				WriteError(w, http.StatusTooManyRequests, CodeRateLimited, "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
