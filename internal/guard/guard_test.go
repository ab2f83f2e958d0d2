package guard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffhub/internal/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGuard() (*LoginGuard, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewMemory(5, 300*time.Second, ratelimit.WithClock(clock.Now)), clock
}

func TestLoginGuard_FiveFailuresLock(t *testing.T) {
	g, clock := newTestGuard()
	ctx := context.Background()

	assert.Equal(t, Clear, g.State(ctx, "user@example.com"))

	for i := 1; i <= 4; i++ {
		state := g.RecordFailure(ctx, "user@example.com")
		assert.Equal(t, Accumulating, state, "failure %d", i)
		assert.False(t, g.IsBlocked(ctx, "user@example.com"))
		clock.Advance(10 * time.Second)
	}

	state := g.RecordFailure(ctx, "user@example.com")
	assert.Equal(t, Locked, state)
	assert.True(t, g.IsBlocked(ctx, "user@example.com"))
	assert.Equal(t, 300*time.Second, g.RetryAfter(ctx, "user@example.com"))
	assert.Equal(t, 5, g.Failures(ctx, "user@example.com"))
}

func TestLoginGuard_SuccessResets(t *testing.T) {
	g, _ := newTestGuard()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		g.RecordFailure(ctx, "user@example.com")
	}
	require.True(t, g.IsBlocked(ctx, "user@example.com"))

	g.RecordSuccess(ctx, "user@example.com")

	assert.False(t, g.IsBlocked(ctx, "user@example.com"))
	assert.Equal(t, 0, g.Failures(ctx, "user@example.com"))
	assert.Equal(t, Clear, g.State(ctx, "user@example.com"))
}

func TestLoginGuard_SuccessClearsPartialHistory(t *testing.T) {
	g, _ := newTestGuard()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		g.RecordFailure(ctx, "user@example.com")
	}
	g.RecordSuccess(ctx, "user@example.com")

	// A full new run of failures is needed to lock again.
	for i := 0; i < 4; i++ {
		assert.Equal(t, Accumulating, g.RecordFailure(ctx, "user@example.com"))
	}
	assert.False(t, g.IsBlocked(ctx, "user@example.com"))
}

func TestLoginGuard_ExpiryUnblocks(t *testing.T) {
	g, clock := newTestGuard()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		g.RecordFailure(ctx, "user@example.com")
	}
	require.True(t, g.IsBlocked(ctx, "user@example.com"))

	clock.Advance(299 * time.Second)
	assert.True(t, g.IsBlocked(ctx, "user@example.com"))

	clock.Advance(time.Second)
	assert.False(t, g.IsBlocked(ctx, "user@example.com"))
}

func TestLoginGuard_FailuresWhileLockedDoNotExtend(t *testing.T) {
	g, clock := newTestGuard()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		g.RecordFailure(ctx, "user@example.com")
	}
	clock.Advance(200 * time.Second)
	assert.Equal(t, Locked, g.RecordFailure(ctx, "user@example.com"))
	assert.Equal(t, 100*time.Second, g.RetryAfter(ctx, "user@example.com"))
}

func TestLoginGuard_OldFailuresPruned(t *testing.T) {
	g, clock := newTestGuard()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		g.RecordFailure(ctx, "user@example.com")
	}
	clock.Advance(301 * time.Second)

	assert.Equal(t, Accumulating, g.RecordFailure(ctx, "user@example.com"))
	assert.Equal(t, 1, g.Failures(ctx, "user@example.com"))
}

func TestLoginGuard_IdentityNormalized(t *testing.T) {
	g, _ := newTestGuard()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		g.RecordFailure(ctx, "  User@Example.COM ")
	}
	assert.True(t, g.IsBlocked(ctx, "user@example.com"))
	assert.False(t, g.IsBlocked(ctx, "other@example.com"))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "clear", Clear.String())
	assert.Equal(t, "accumulating", Accumulating.String())
	assert.Equal(t, "locked", Locked.String())
	assert.Equal(t, "unknown", State(42).String())
}
