package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock shared by tests in this package.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
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

func TestMemoryCounter_FirstEventAllowed(t *testing.T) {
	counter := NewMemoryCounter(3, time.Minute)
	defer counter.Close()

	allowed, info := counter.Record(context.Background(), "192.168.1.1")
	assert.True(t, allowed)
	assert.Equal(t, 3, info.Limit)
	assert.Equal(t, 1, info.Count)
	assert.Equal(t, 2, info.Remaining)
	assert.False(t, info.Blocked())
}

func TestMemoryCounter_ThresholdThenReject(t *testing.T) {
	clock := newFakeClock()
	counter := NewMemoryCounter(5, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, _ := counter.Record(ctx, "key")
		assert.True(t, allowed, "event %d should be allowed", i+1)
		clock.Advance(time.Second)
	}

	allowed, info := counter.Record(ctx, "key")
	assert.False(t, allowed)
	assert.True(t, info.Blocked())
	assert.Equal(t, time.Minute, info.RetryAfter)
	assert.Equal(t, clock.Now().Add(time.Minute), info.BlockedUntil)
	assert.Equal(t, 0, info.Remaining)
}

func TestMemoryCounter_RejectedEventsNotRecorded(t *testing.T) {
	clock := newFakeClock()
	counter := NewMemoryCounter(2, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	counter.Record(ctx, "key")
	counter.Record(ctx, "key")
	allowed, first := counter.Record(ctx, "key")
	require.False(t, allowed)

	clock.Advance(30 * time.Second)
	allowed, second := counter.Record(ctx, "key")
	assert.False(t, allowed)
	assert.Equal(t, 2, second.Count, "rejected events must not be appended")
	assert.Equal(t, first.BlockedUntil, second.BlockedUntil, "rejections must not extend the block")
}

func TestMemoryCounter_BlockExpiryStartsFreshWindow(t *testing.T) {
	clock := newFakeClock()
	counter := NewMemoryCounter(2, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	counter.Record(ctx, "key")
	counter.Record(ctx, "key")
	allowed, _ := counter.Record(ctx, "key")
	require.False(t, allowed)

	clock.Advance(time.Minute)

	allowed, info := counter.Record(ctx, "key")
	assert.True(t, allowed)
	assert.Equal(t, 1, info.Count)
	assert.False(t, info.Blocked())
}

func TestMemoryCounter_SlidingWindowPrunes(t *testing.T) {
	clock := newFakeClock()
	counter := NewMemoryCounter(3, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	counter.Record(ctx, "key")
	clock.Advance(40 * time.Second)
	counter.Record(ctx, "key")
	counter.Record(ctx, "key")

	// The first event leaves the window; a slot opens without any block.
	clock.Advance(21 * time.Second)
	allowed, info := counter.Record(ctx, "key")
	assert.True(t, allowed)
	assert.Equal(t, 3, info.Count)
}

func TestMemoryCounter_DifferentKeys(t *testing.T) {
	counter := NewMemoryCounter(1, time.Minute)
	ctx := context.Background()

	counter.Record(ctx, "key1")
	allowed1, _ := counter.Record(ctx, "key1")
	assert.False(t, allowed1, "key1 should be denied")

	allowed2, _ := counter.Record(ctx, "key2")
	assert.True(t, allowed2, "key2 should be allowed")
}

func TestMemoryCounter_Hit(t *testing.T) {
	clock := newFakeClock()
	counter := NewMemoryCounter(3, 5*time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	info := counter.Hit(ctx, "user@example.com")
	assert.Equal(t, 1, info.Count)
	assert.False(t, info.Blocked())

	counter.Hit(ctx, "user@example.com")
	info = counter.Hit(ctx, "user@example.com")
	assert.Equal(t, 3, info.Count)
	assert.True(t, info.Blocked(), "reaching the limit blocks immediately")
	assert.Equal(t, 5*time.Minute, info.RetryAfter)

	// Hits while blocked are not recorded.
	clock.Advance(time.Minute)
	info = counter.Hit(ctx, "user@example.com")
	assert.Equal(t, 3, info.Count)
	assert.Equal(t, 4*time.Minute, info.RetryAfter)
}

func TestMemoryCounter_StatusDoesNotRecord(t *testing.T) {
	counter := NewMemoryCounter(3, time.Minute)
	ctx := context.Background()

	info := counter.Status(ctx, "key")
	assert.Equal(t, 0, info.Count)
	assert.Equal(t, 3, info.Remaining)
	assert.Equal(t, 0, counter.Len(), "status on an unknown key must not allocate")

	counter.Record(ctx, "key")
	info = counter.Status(ctx, "key")
	assert.Equal(t, 1, info.Count)
	info = counter.Status(ctx, "key")
	assert.Equal(t, 1, info.Count)
}

func TestMemoryCounter_StatusEvictsIdleKeys(t *testing.T) {
	clock := newFakeClock()
	counter := NewMemoryCounter(3, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	counter.Record(ctx, "key")
	require.Equal(t, 1, counter.Len())

	clock.Advance(2 * time.Minute)
	info := counter.Status(ctx, "key")
	assert.Equal(t, 0, info.Count)
	assert.Equal(t, 0, counter.Len())

	allowed, info := counter.Record(ctx, "key")
	assert.True(t, allowed)
	assert.Equal(t, 1, info.Count)
}

func TestMemoryCounter_WritesReclaimExpiredKeys(t *testing.T) {
	clock := newFakeClock()
	counter := NewMemoryCounter(100, 15*time.Minute, WithClock(clock.Now), WithSweepEvery(64))
	ctx := context.Background()

	for i := 0; i < 10000; i++ {
		counter.Record(ctx, fmt.Sprintf("ip:10.0.%d.%d", i/256, i%256))
	}
	require.Equal(t, 10000, counter.Len())

	clock.Advance(24 * time.Hour)
	for i := 0; i < 64; i++ {
		counter.Record(ctx, "ip:192.0.2.1")
	}

	assert.Equal(t, 1, counter.Len(), "only the active address should still be tracked")
	assert.Equal(t, 64, counter.Status(ctx, "ip:192.0.2.1").Count)
}

func TestMemoryCounter_SweepKeepsActiveBlocks(t *testing.T) {
	clock := newFakeClock()
	counter := NewMemoryCounter(1, time.Minute, WithClock(clock.Now), WithSweepEvery(1))
	ctx := context.Background()

	counter.Record(ctx, "blocked")
	clock.Advance(50 * time.Second)
	allowed, _ := counter.Record(ctx, "blocked")
	require.False(t, allowed)

	// The first event has left the window but the block has not expired.
	clock.Advance(30 * time.Second)
	counter.Hit(ctx, "other")
	assert.Equal(t, 2, counter.Len())
	allowed, info := counter.Record(ctx, "blocked")
	assert.False(t, allowed)
	assert.True(t, info.Blocked())

	clock.Advance(5 * time.Minute)
	counter.Hit(ctx, "other")
	assert.Equal(t, 1, counter.Len())
}

func TestMemoryCounter_Reset(t *testing.T) {
	counter := NewMemoryCounter(1, time.Minute)
	ctx := context.Background()

	counter.Record(ctx, "key")
	allowed, _ := counter.Record(ctx, "key")
	require.False(t, allowed)

	counter.Reset(ctx, "key")
	assert.Equal(t, 0, counter.Len())

	allowed, _ = counter.Record(ctx, "key")
	assert.True(t, allowed)

	// Unknown key is a no-op.
	counter.Reset(ctx, "missing")
}

func TestMemoryCounter_ConcurrentSameKeyAdmitsExactlyLimit(t *testing.T) {
	counter := NewMemoryCounter(100, time.Hour)
	ctx := context.Background()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if ok, _ := counter.Record(ctx, "shared"); ok {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), admitted.Load())
}

func TestMemoryCounter_ConcurrentResetAndRecord(t *testing.T) {
	counter := NewMemoryCounter(1000, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("client-%d", id%3)
			for j := 0; j < 50; j++ {
				counter.Record(ctx, key)
				if j%10 == 0 {
					counter.Reset(ctx, key)
				}
				counter.Status(ctx, key)
			}
		}(i)
	}
	wg.Wait()
	// No panics or data races -- run with -race flag
}

func TestRateLimiter_IsAllowed(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(NewMemoryCounter(100, 900*time.Second, WithClock(clock.Now)))
	defer limiter.Close()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		allowed, _ := limiter.IsAllowed(ctx, "203.0.113.50")
		require.True(t, allowed, "request %d should be allowed", i+1)
	}
	allowed, info := limiter.IsAllowed(ctx, "203.0.113.50")
	assert.False(t, allowed)
	assert.Equal(t, 900*time.Second, info.Window)

	allowed, _ = limiter.IsAllowed(ctx, "203.0.113.51")
	assert.True(t, allowed)

	clock.Advance(900 * time.Second)
	allowed, _ = limiter.IsAllowed(ctx, "203.0.113.50")
	assert.True(t, allowed)
}

func TestNewCounter(t *testing.T) {
	c, err := NewCounter("memory", 5, time.Minute, nil, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryCounter{}, c)

	c, err = NewCounter("", 5, time.Minute, nil, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryCounter{}, c)

	_, err = NewCounter("redis", 5, time.Minute, nil, "")
	assert.Error(t, err)

	_, err = NewCounter("etcd", 5, time.Minute, nil, "")
	assert.Error(t, err)
}
