// Package guard tracks failed logins per identity and locks an identity out
// after too many failures inside the lockout window.
//
// The guard is consulted before credentials are checked, so a locked
// identity is rejected even when the password is correct. Only a successful
// login clears the history; an expired lockout merely stops blocking.
package guard

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"staffhub/internal/ratelimit"
)

// State is the lockout state of one identity.
type State int

const (
	Clear State = iota
	Accumulating
	Locked
)

func (s State) String() string {
	switch s {
	case Clear:
		return "clear"
	case Accumulating:
		return "accumulating"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// LoginGuard is safe for concurrent use.
type LoginGuard struct {
	counter ratelimit.Counter
}

// New wraps a counter configured with max attempts and the lockout window.
func New(counter ratelimit.Counter) *LoginGuard {
	return &LoginGuard{counter: counter}
}

// NewMemory is a convenience for a process-local guard.
func NewMemory(maxAttempts int, lockout time.Duration, opts ...ratelimit.Option) *LoginGuard {
	return New(ratelimit.NewMemoryCounter(maxAttempts, lockout, opts...))
}

// IsBlocked reports whether identity is currently locked out.
func (g *LoginGuard) IsBlocked(ctx context.Context, identity string) bool {
	return g.counter.Status(ctx, key(identity)).Blocked()
}

// RetryAfter returns the time left on an active lockout, or zero.
func (g *LoginGuard) RetryAfter(ctx context.Context, identity string) time.Duration {
	return g.counter.Status(ctx, key(identity)).RetryAfter
}

// RecordFailure appends a failure and returns the resulting state.
func (g *LoginGuard) RecordFailure(ctx context.Context, identity string) State {
	info := g.counter.Hit(ctx, key(identity))
	state := stateOf(info)
	if state == Locked {
		slog.Warn("Login lockout active",
			"identity", normalize(identity),
			"attempts", info.Count,
			"locked_until", info.BlockedUntil,
		)
	}
	return state
}

// RecordSuccess clears failure history and any lockout unconditionally.
func (g *LoginGuard) RecordSuccess(ctx context.Context, identity string) {
	g.counter.Reset(ctx, key(identity))
}

func (g *LoginGuard) State(ctx context.Context, identity string) State {
	return stateOf(g.counter.Status(ctx, key(identity)))
}

// Failures returns the number of failures inside the current window.
func (g *LoginGuard) Failures(ctx context.Context, identity string) int {
	return g.counter.Status(ctx, key(identity)).Count
}

func (g *LoginGuard) Close() {
	g.counter.Close()
}

func stateOf(info ratelimit.Info) State {
	switch {
	case info.Blocked():
		return Locked
	case info.Count > 0:
		return Accumulating
	default:
		return Clear
	}
}

func normalize(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

func key(identity string) string {
	return "login:" + normalize(identity)
}
