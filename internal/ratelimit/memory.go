package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// defaultSweepEvery is how many Record/Hit calls pass between sweeps of
// idle keys.
const defaultSweepEvery = 1024

// entry holds the window for a single key. dead marks an entry that has been
// evicted from the map; callers that raced with the eviction retry the load.
type entry struct {
	mu           sync.Mutex
	events       []time.Time
	blockedUntil time.Time
	dead         bool
}

// MemoryCounter is a process-local Counter. Each key has its own lock, so
// different keys never contend. Old events are pruned on access, and every
// sweepEvery writes the caller also reclaims keys whose window and block have
// both run out. There is no background goroutine.
type MemoryCounter struct {
	limit      int
	window     time.Duration
	now        func() time.Time
	sweepEvery uint64

	entries sync.Map // string -> *entry
	writes  atomic.Uint64
}

// Option configures a MemoryCounter.
type Option func(*MemoryCounter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *MemoryCounter) {
		m.now = now
	}
}

// WithSweepEvery sets how many writes pass between idle-key sweeps.
// Values below 1 are ignored.
func WithSweepEvery(n int) Option {
	return func(m *MemoryCounter) {
		if n > 0 {
			m.sweepEvery = uint64(n)
		}
	}
}

// NewMemoryCounter creates a counter allowing limit events per window.
func NewMemoryCounter(limit int, window time.Duration, opts ...Option) *MemoryCounter {
	m := &MemoryCounter{
		limit:      limit,
		window:     window,
		now:        time.Now,
		sweepEvery: defaultSweepEvery,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record checks and appends under a single clock read.
func (m *MemoryCounter) Record(_ context.Context, key string) (bool, Info) {
	now := m.now()
	m.maybeSweep(now)
	e := m.acquire(key)
	defer e.mu.Unlock()

	if e.blockedUntil.After(now) {
		return false, m.info(e, now)
	}
	m.prune(e, now)

	if len(e.events) >= m.limit {
		e.blockedUntil = now.Add(m.window)
		return false, m.info(e, now)
	}
	e.events = append(e.events, now)
	return true, m.info(e, now)
}

// Hit appends a failure-style event and blocks once the limit is reached.
func (m *MemoryCounter) Hit(_ context.Context, key string) Info {
	now := m.now()
	m.maybeSweep(now)
	e := m.acquire(key)
	defer e.mu.Unlock()

	if e.blockedUntil.After(now) {
		return m.info(e, now)
	}
	m.prune(e, now)

	e.events = append(e.events, now)
	if len(e.events) >= m.limit {
		e.blockedUntil = now.Add(m.window)
	}
	return m.info(e, now)
}

func (m *MemoryCounter) Status(_ context.Context, key string) Info {
	now := m.now()
	v, ok := m.entries.Load(key)
	if !ok {
		return m.emptyInfo(now)
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return m.emptyInfo(now)
	}

	if !e.blockedUntil.After(now) {
		m.prune(e, now)
	}
	info := m.info(e, now)
	m.evictIfIdle(key, e)
	return info
}

func (m *MemoryCounter) Reset(_ context.Context, key string) {
	v, ok := m.entries.Load(key)
	if !ok {
		return
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = nil
	e.blockedUntil = time.Time{}
	e.dead = true
	m.entries.CompareAndDelete(key, e)
}

// Close is a no-op; the memory counter owns no goroutines.
func (m *MemoryCounter) Close() {}

// Len returns the number of tracked keys.
func (m *MemoryCounter) Len() int {
	n := 0
	m.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// acquire returns the live entry for key with its lock held.
func (m *MemoryCounter) acquire(key string) *entry {
	for {
		v, _ := m.entries.LoadOrStore(key, &entry{})
		e := v.(*entry)
		e.mu.Lock()
		if !e.dead {
			return e
		}
		e.mu.Unlock()
	}
}

// prune drops events older than the window. An elapsed block starts a fresh
// window. Caller holds e.mu.
func (m *MemoryCounter) prune(e *entry, now time.Time) {
	if !e.blockedUntil.IsZero() && !e.blockedUntil.After(now) {
		e.blockedUntil = time.Time{}
		e.events = e.events[:0]
		return
	}

	cutoff := now.Add(-m.window)
	i := 0
	for i < len(e.events) && e.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		e.events = append(e.events[:0], e.events[i:]...)
	}
}

// maybeSweep runs sweep on every sweepEvery-th write. It must be called
// without any entry lock held.
func (m *MemoryCounter) maybeSweep(now time.Time) {
	if m.writes.Add(1)%m.sweepEvery == 0 {
		m.sweep(now)
	}
}

// sweep prunes every entry and evicts the ones left idle. Entries locked by
// another caller are skipped; the next sweep sees them.
func (m *MemoryCounter) sweep(now time.Time) {
	m.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		if !e.mu.TryLock() {
			return true
		}
		if !e.dead {
			if !e.blockedUntil.After(now) {
				m.prune(e, now)
			}
			m.evictIfIdle(k.(string), e)
		}
		e.mu.Unlock()
		return true
	})
}

func (m *MemoryCounter) evictIfIdle(key string, e *entry) {
	if len(e.events) == 0 && e.blockedUntil.IsZero() {
		e.dead = true
		m.entries.CompareAndDelete(key, e)
	}
}

func (m *MemoryCounter) info(e *entry, now time.Time) Info {
	info := Info{
		Limit:     m.limit,
		Count:     len(e.events),
		Remaining: max(0, m.limit-len(e.events)),
		Window:    m.window,
		ResetAt:   now,
	}
	if len(e.events) > 0 {
		info.ResetAt = e.events[0].Add(m.window)
	}
	if e.blockedUntil.After(now) {
		info.BlockedUntil = e.blockedUntil
		info.RetryAfter = e.blockedUntil.Sub(now)
		info.ResetAt = e.blockedUntil
		info.Remaining = 0
	}
	return info
}

func (m *MemoryCounter) emptyInfo(now time.Time) Info {
	return Info{
		Limit:     m.limit,
		Remaining: m.limit,
		Window:    m.window,
		ResetAt:   now,
	}
}
