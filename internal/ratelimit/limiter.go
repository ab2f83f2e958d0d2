// Package ratelimit provides sliding-window event counting with
// block-on-exceed semantics, the per-address RateLimiter built on it, and
// HTTP middleware that sets standard rate limit response headers.
//
// The same Counter primitive backs login lockout (see internal/guard) with a
// different threshold and window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"staffhub/internal/models"
)

// Counter is a per-key sliding window of event timestamps plus an optional
// block expiry. Implementations must be safe for concurrent use and must
// serialize the check-and-record sequence for a single key.
type Counter interface {
	// Record is the check-then-append primitive. A blocked key is rejected
	// without recording. A key whose pruned count already reached the limit
	// becomes blocked for one window and is rejected. Otherwise the event is
	// appended and allowed.
	Record(ctx context.Context, key string) (allowed bool, info Info)

	// Hit appends an event unless the key is blocked, and blocks the key for
	// one window once the count reaches the limit.
	Hit(ctx context.Context, key string) Info

	// Status reports the current window without recording anything.
	Status(ctx context.Context, key string) Info

	// Reset drops all history and any block for key.
	Reset(ctx context.Context, key string)

	// Close releases resources held by the counter.
	Close()
}

// Info contains window state for populating response headers.
type Info struct {
	Limit        int           // Threshold per window
	Count        int           // Events currently inside the window
	Remaining    int           // Limit - Count, never negative
	Window       time.Duration // Configured window length
	ResetAt      time.Time     // When the oldest event leaves the window, or the block ends
	BlockedUntil time.Time     // Zero when not blocked
	RetryAfter   time.Duration // Time left on the block (meaningful only when blocked)
}

// Blocked reports whether the key was blocked at the time Info was produced.
func (i Info) Blocked() bool {
	return i.RetryAfter > 0
}

// RateLimiter throttles requests per originating address.
type RateLimiter struct {
	counter Counter
}

func NewRateLimiter(counter Counter) *RateLimiter {
	return &RateLimiter{counter: counter}
}

// IsAllowed records one request for address. Rejected requests are not
// counted and do not extend an active block.
func (l *RateLimiter) IsAllowed(ctx context.Context, address string) (bool, Info) {
	return l.counter.Record(ctx, "ip:"+address)
}

func (l *RateLimiter) Close() {
	l.counter.Close()
}

// NewCounter builds a Counter for the configured backend. client is only
// required for the redis backend; prefix namespaces its keys.
func NewCounter(backend string, limit int, window time.Duration, client redis.Cmdable, prefix string) (Counter, error) {
	switch backend {
	case "", models.CounterBackendMemory:
		return NewMemoryCounter(limit, window), nil
	case models.CounterBackendRedis:
		if client == nil {
			return nil, fmt.Errorf("redis counter requires a redis client")
		}
		return NewRedisCounter(client, limit, window, prefix), nil
	default:
		return nil, fmt.Errorf("unsupported counter backend: %s", backend)
	}
}
