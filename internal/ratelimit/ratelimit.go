// Package ratelimit implements the gateway's three rate-limiter shapes
// (sliding window, exponential backoff, free-model quota) on Redis sorted
// sets and atomic Lua scripts, generalized from the single global
// requests-per-minute limiter this package started as.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result is the outcome of a rate-limit check.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration // meaningful only when Allowed is false
}

// Limiter is the common shape both SlidingWindow and ExponentialBackoff
// implement: a single "may this identifier proceed right now" check.
type Limiter interface {
	Check(ctx context.Context, identifier string) (Result, error)
}

// allowOnError implements the fail-open contract shared by every limiter in
// this package: a store error never blocks a request, it only forfeits
// rate-limiting for that one check.
func allowOnError(err error) (Result, error) {
	slog.Warn("ratelimit_store_error", slog.String("error", err.Error()))
	return Result{Allowed: true}, nil
}

// resetScript deletes every key associated with an exponential-backoff
// identifier, used by ExponentialBackoff.Reset on a successful operation.
var resetScript = redis.NewScript(`
	redis.call('DEL', KEYS[1])
	redis.call('DEL', KEYS[2])
	return 1
`)
