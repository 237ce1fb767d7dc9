package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tellus/tellus/internal/auth"
	"github.com/tellus/tellus/internal/cache"
)

// Limiter draws from a token bucket.
type Limiter interface {
	Check(ctx context.Context, scope cache.Scope, key string, perMinute, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for one rate limiting middleware.
type RateLimitConfig struct {
	Logger    *slog.Logger
	Limiter   Limiter
	Enabled   bool
	Scope     cache.Scope
	PerMinute int
	Burst     int
}

// RateLimitIP returns middleware that rate limits requests per client IP.
// Used on public submission endpoints.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return rateLimit(cfg, func(r *http.Request) string { return ClientIP(r) })
}

// RateLimitUser returns middleware that rate limits requests per signed-in
// admin. Must be applied after RequireSession.
func RateLimitUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return rateLimit(cfg, func(r *http.Request) string { return auth.UserIDFromContext(r.Context()) })
}

func rateLimit(cfg RateLimitConfig, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || cfg.Limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := keyFn(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := cfg.Limiter.Check(r.Context(), cfg.Scope, key, cfg.PerMinute, cfg.Burst)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("scope", string(cfg.Scope)),
					slog.String("error", err.Error()),
				)
				// Fail open - allow request
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, cfg.PerMinute, result.Remaining, result.ResetAt)

			if !result.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("scope", string(cfg.Scope)),
					slog.String("endpoint", r.Method+" "+routePattern(r)),
					slog.Int64("retry_after_seconds", int64(result.RetryAfter.Seconds())),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				WriteRateLimited(w, result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setRateLimitHeaders sets standard rate limit response headers.
func setRateLimitHeaders(w http.ResponseWriter, limit int, remaining int64, resetAt time.Time) {
	if limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
	}
}

// WriteRateLimited writes a 429 with a Retry-After header.
func WriteRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := max(int(retryAfter.Round(time.Second).Seconds()), 1)
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
		"Too many requests. Retry after "+strconv.Itoa(seconds)+" seconds.")
}

// ClientIP extracts the client IP from the request.
// Checks X-Forwarded-For and X-Real-IP headers for proxied requests.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
