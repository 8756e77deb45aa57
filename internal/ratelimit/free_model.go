package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	freeModelPrefix = "ratelimit:free"

	elevatedLimit  = 20
	elevatedWindow = 60 * time.Second

	baseLimit  = 5
	baseWindow = 600 * time.Second
)

// FreeModelQuota enforces the free-model quota named in SPEC_FULL.md §4.D:
// elevated limits for organizations with a positive credit balance, a much
// tighter base quota otherwise, both implemented as sliding windows. Quota
// state is keyed by organization only ("ratelimit:free:{orgID}"), so every
// free model an organization calls draws on one shared quota.
type FreeModelQuota struct {
	window *SlidingWindow
}

// NewFreeModelQuota builds a FreeModelQuota limiter.
func NewFreeModelQuota(rdb *redis.Client) *FreeModelQuota {
	return &FreeModelQuota{window: NewSlidingWindow(rdb, freeModelPrefix, 0, 0)}
}

// Check runs the quota check for orgID, selecting the elevated or base
// limit according to hasCredits.
func (q *FreeModelQuota) Check(ctx context.Context, orgID string, hasCredits bool) (Result, error) {
	limit, window := baseLimit, baseWindow
	if hasCredits {
		limit, window = elevatedLimit, elevatedWindow
	}
	return q.window.checkWithLimit(ctx, orgID, limit, window)
}
