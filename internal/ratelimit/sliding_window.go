package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript implements the sorted-set sliding window described in
// SPEC_FULL.md §4.D: expire stale members, count, and admit-or-deny in one
// atomic round trip. Returns {allowed (0/1), retryAfterMs}.
var slidingWindowScript = redis.NewScript(`
	local key    = KEYS[1]
	local now    = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local limit  = tonumber(ARGV[3])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
	local count = redis.call('ZCARD', key)

	if count < limit then
		redis.call('ZADD', key, now, now)
		redis.call('PEXPIRE', key, math.ceil(window))
		return {1, 0}
	end

	local earliest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retryAfter = window
	if #earliest >= 2 then
		retryAfter = tonumber(earliest[2]) + window - now
	end
	return {0, retryAfter}
`)

// SlidingWindow rate-limits by identifier over a fixed window. Key =
// "{prefix}:{identifier}".
type SlidingWindow struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewSlidingWindow builds a SlidingWindow limiter keyed under prefix,
// allowing up to limit calls per window.
func NewSlidingWindow(rdb *redis.Client, prefix string, limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

// Check runs the sliding-window admission test for identifier.
func (s *SlidingWindow) Check(ctx context.Context, identifier string) (Result, error) {
	return s.checkWithLimit(ctx, identifier, s.limit, s.window)
}

// checkWithLimit allows FreeModelQuota to reuse the same script with a
// limit/window pair chosen per-call instead of fixed at construction time.
func (s *SlidingWindow) checkWithLimit(ctx context.Context, identifier string, limit int, window time.Duration) (Result, error) {
	key := fmt.Sprintf("%s:%s", s.prefix, identifier)
	nowMs := float64(time.Now().UnixMilli())
	windowMs := float64(window.Milliseconds())

	out, err := slidingWindowScript.Run(ctx, s.rdb, []string{key}, nowMs, windowMs, limit).Slice()
	if err != nil {
		return allowOnError(err)
	}
	if len(out) != 2 {
		return Result{Allowed: true}, nil
	}

	allowed, _ := out[0].(int64)
	retryAfterMs, _ := out[1].(int64)

	if allowed == 1 {
		return Result{Allowed: true}, nil
	}
	return Result{Allowed: false, RetryAfter: time.Duration(retryAfterMs) * time.Millisecond}, nil
}
