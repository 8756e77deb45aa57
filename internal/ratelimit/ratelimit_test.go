package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vectorplane/llmgateway/internal/ratelimit"
)

func newTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, func() {
		client.Close()
		mr.Close()
	}
}

func TestSlidingWindow_AllowsUnderLimit(t *testing.T) {
	rdb, cleanup := newTestRedis(t)
	defer cleanup()

	const limit = 3
	sw := ratelimit.NewSlidingWindow(rdb, "test:sw", limit, time.Minute)
	ctx := context.Background()

	for i := 0; i < limit; i++ {
		res, err := sw.Check(ctx, "alice")
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("iteration %d: expected allowed", i)
		}
	}
}

func TestSlidingWindow_DeniesOverLimitWithRetryAfter(t *testing.T) {
	rdb, cleanup := newTestRedis(t)
	defer cleanup()

	const limit = 2
	sw := ratelimit.NewSlidingWindow(rdb, "test:sw", limit, time.Minute)
	ctx := context.Background()

	for i := 0; i < limit; i++ {
		if res, err := sw.Check(ctx, "bob"); err != nil || !res.Allowed {
			t.Fatalf("expected allowed at %d, got %+v err=%v", i, res, err)
		}
	}

	res, err := sw.Check(ctx, "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected denial once over limit")
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("expected a positive retry-after, got %v", res.RetryAfter)
	}
}

func TestSlidingWindow_IdentifiersAreIndependent(t *testing.T) {
	rdb, cleanup := newTestRedis(t)
	defer cleanup()

	sw := ratelimit.NewSlidingWindow(rdb, "test:sw", 1, time.Minute)
	ctx := context.Background()

	if res, _ := sw.Check(ctx, "alice"); !res.Allowed {
		t.Fatalf("expected alice's first request allowed")
	}
	if res, _ := sw.Check(ctx, "alice"); res.Allowed {
		t.Fatalf("expected alice's second request denied")
	}
	if res, _ := sw.Check(ctx, "carol"); !res.Allowed {
		t.Fatalf("expected carol unaffected by alice's limit")
	}
}

func TestExponentialBackoff_DeniesThenAllowsAfterDelay(t *testing.T) {
	rdb, cleanup := newTestRedis(t)
	defer cleanup()

	eb := ratelimit.NewExponentialBackoff(rdb, "test:backoff", 50*time.Millisecond, time.Second)
	ctx := context.Background()

	res, err := eb.Check(ctx, "signup-ip")
	if err != nil || !res.Allowed {
		t.Fatalf("expected first attempt allowed, got %+v err=%v", res, err)
	}

	res, err = eb.Check(ctx, "signup-ip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected immediate retry to be denied")
	}

	time.Sleep(60 * time.Millisecond)
	res, err = eb.Check(ctx, "signup-ip")
	if err != nil || !res.Allowed {
		t.Fatalf("expected retry after the 50ms delay allowed, got %+v err=%v", res, err)
	}
}

func TestExponentialBackoff_ResetClearsState(t *testing.T) {
	rdb, cleanup := newTestRedis(t)
	defer cleanup()

	eb := ratelimit.NewExponentialBackoff(rdb, "test:backoff", 50*time.Millisecond, time.Second)
	ctx := context.Background()

	if _, err := eb.Check(ctx, "id"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := eb.Reset(ctx, "id"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	res, err := eb.Check(ctx, "id")
	if err != nil || !res.Allowed {
		t.Fatalf("expected a fresh attempt to be allowed after reset, got %+v err=%v", res, err)
	}
}

func TestFreeModelQuota_ElevatedLimitWithCredits(t *testing.T) {
	rdb, cleanup := newTestRedis(t)
	defer cleanup()

	q := ratelimit.NewFreeModelQuota(rdb)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		res, err := q.Check(ctx, "org-with-credits", true)
		if err != nil || !res.Allowed {
			t.Fatalf("iteration %d: expected allowed under elevated limit, got %+v err=%v", i, res, err)
		}
	}
}

func TestFreeModelQuota_BaseLimitWithoutCredits(t *testing.T) {
	rdb, cleanup := newTestRedis(t)
	defer cleanup()

	q := ratelimit.NewFreeModelQuota(rdb)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if res, err := q.Check(ctx, "org-no-credits", false); err != nil || !res.Allowed {
			t.Fatalf("iteration %d: expected allowed, got %+v err=%v", i, res, err)
		}
	}

	res, err := q.Check(ctx, "org-no-credits", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected the 6th request to exceed the base free-model quota")
	}
}
