package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// windowScript runs one counter operation atomically.
//
// KEYS[1] sorted set of event timestamps (ms), KEYS[2] block expiry (ms).
// ARGV: now_ms, window_ms, limit, mode (record|hit|status), member.
// Returns {allowed, count, blocked_until_ms, oldest_ms}.
var windowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local mode = ARGV[4]

local blocked = tonumber(redis.call('GET', KEYS[2]) or '0')
if blocked > now then
	return {0, redis.call('ZCARD', KEYS[1]), blocked, 0}
end
if blocked > 0 then
	redis.call('DEL', KEYS[1], KEYS[2])
end

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. (now - window))
local count = redis.call('ZCARD', KEYS[1])

local function oldest()
	local first = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	if first[2] then
		return tonumber(first[2])
	end
	return 0
end

if mode == 'status' then
	return {1, count, 0, oldest()}
end

if mode == 'record' and count >= limit then
	redis.call('SET', KEYS[2], now + window, 'PX', window)
	return {0, count, now + window, oldest()}
end

redis.call('ZADD', KEYS[1], now, ARGV[5])
redis.call('PEXPIRE', KEYS[1], window)
count = count + 1

if mode == 'hit' and count >= limit then
	redis.call('SET', KEYS[2], now + window, 'PX', window)
	return {1, count, now + window, oldest()}
end
return {1, count, 0, oldest()}
`)

const (
	modeRecord = "record"
	modeHit    = "hit"
	modeStatus = "status"
)

// RedisCounter is a Counter shared by every process pointing at the same
// Redis. Each operation is a single Lua script, so the check-and-record
// sequence is atomic per key. On Redis errors it logs and fails open.
//
// The caller owns the client and closes it.
type RedisCounter struct {
	client   redis.Cmdable
	limit    int
	window   time.Duration
	prefix   string
	instance string
	now      func() time.Time
	seq      atomic.Uint64
}

// RedisOption configures a RedisCounter.
type RedisOption func(*RedisCounter)

// WithRedisClock replaces time.Now, mainly for tests.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(c *RedisCounter) {
		c.now = now
	}
}

// WithInstanceID fixes the member prefix that keeps events from different
// processes distinct inside one sorted set.
func WithInstanceID(id string) RedisOption {
	return func(c *RedisCounter) {
		c.instance = id
	}
}

func NewRedisCounter(client redis.Cmdable, limit int, window time.Duration, prefix string, opts ...RedisOption) *RedisCounter {
	c := &RedisCounter{
		client:   client,
		limit:    limit,
		window:   window,
		prefix:   prefix,
		instance: uuid.NewString(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCounter) Record(ctx context.Context, key string) (bool, Info) {
	return c.run(ctx, key, modeRecord)
}

func (c *RedisCounter) Hit(ctx context.Context, key string) Info {
	_, info := c.run(ctx, key, modeHit)
	return info
}

func (c *RedisCounter) Status(ctx context.Context, key string) Info {
	_, info := c.run(ctx, key, modeStatus)
	return info
}

func (c *RedisCounter) Reset(ctx context.Context, key string) {
	zkey, bkey := c.keys(key)
	if err := c.client.Del(ctx, zkey, bkey).Err(); err != nil {
		slog.Error("Failed to reset redis window", "key", key, "error", err)
	}
}

func (c *RedisCounter) Close() {}

func (c *RedisCounter) keys(key string) (string, string) {
	zkey := c.prefix + key
	return zkey, zkey + ":blocked"
}

func (c *RedisCounter) run(ctx context.Context, key, mode string) (bool, Info) {
	now := c.now()
	nowMs := now.UnixMilli()
	zkey, bkey := c.keys(key)
	member := fmt.Sprintf("%s-%d", c.instance, c.seq.Add(1))

	vals, err := windowScript.Run(ctx, c.client, []string{zkey, bkey},
		nowMs, c.window.Milliseconds(), int64(c.limit), mode, member).Int64Slice()
	if err != nil || len(vals) < 4 {
		slog.Error("Redis window counter unavailable, allowing request",
			"key", key,
			"mode", mode,
			"error", err,
		)
		return true, Info{Limit: c.limit, Remaining: c.limit, Window: c.window, ResetAt: now}
	}

	count := int(vals[1])
	info := Info{
		Limit:     c.limit,
		Count:     count,
		Remaining: max(0, c.limit-count),
		Window:    c.window,
		ResetAt:   now,
	}
	if vals[3] > 0 {
		info.ResetAt = time.UnixMilli(vals[3]).Add(c.window)
	}
	if vals[2] > nowMs {
		info.BlockedUntil = time.UnixMilli(vals[2])
		info.RetryAfter = info.BlockedUntil.Sub(now)
		info.ResetAt = info.BlockedUntil
		info.Remaining = 0
	}
	return vals[0] == 1, info
}
