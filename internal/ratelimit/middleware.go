package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"staffhub/internal/models"
)

// RejectMessage is the human-readable body of a 429 from the rate limiter.
const RejectMessage = "Too many requests. Please try again later."

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	onReject func(r *http.Request, address string)
}

// WithRejectHook registers a callback invoked for every rejected request,
// typically to increment a metric.
func WithRejectHook(fn func(r *http.Request, address string)) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.onReject = fn
	}
}

// Middleware returns HTTP middleware that enforces the per-address limit
// before any handler logic runs. Rejected requests get a 429 whose
// retry_after_seconds equals the configured window.
func Middleware(limiter *RateLimiter, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			address := GetClientIP(r)
			allowed, info := limiter.IsAllowed(r.Context(), address)
			setQuotaHeaders(w.Header(), info)

			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			reject(w, info)
			slog.Warn("Rate limit exceeded",
				"key", address,
				"limit", info.Limit,
				"retry_after", int(info.Window.Seconds()),
			)
			if cfg.onReject != nil {
				cfg.onReject(r, address)
			}
		})
	}
}

// setQuotaHeaders advertises the window state on every response.
func setQuotaHeaders(h http.Header, info Info) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
}

// reject writes the 429. Retry-After is the whole window, not the time left
// in the block.
func reject(w http.ResponseWriter, info Info) {
	resp := models.NewErrorResponse(RejectMessage, models.ErrorCodeRateLimited).WithRetryAfter(info.Window)

	w.Header().Set("Retry-After", strconv.Itoa(*resp.RetryAfterSeconds))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode rate limit response", "error", err)
	}
}

// GetClientIP extracts the client address, checking proxy headers first.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if first := strings.TrimSpace(ips[0]); first != "" {
			return first
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
