// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra    — Redis, Postgres, migrations
//  2. initDomain   — catalog, translator, router, rate limiters
//  3. initPipeline — usage worker, stats calculator
//  4. initGateway  — GatewayHandler HTTP surface
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/vectorplane/llmgateway/internal/catalog"
	"github.com/vectorplane/llmgateway/internal/config"
	"github.com/vectorplane/llmgateway/internal/gateway"
	"github.com/vectorplane/llmgateway/internal/metrics"
	"github.com/vectorplane/llmgateway/internal/ratelimit"
	"github.com/vectorplane/llmgateway/internal/router"
	"github.com/vectorplane/llmgateway/internal/stats"
	"github.com/vectorplane/llmgateway/internal/store"
	"github.com/vectorplane/llmgateway/internal/translate"
	"github.com/vectorplane/llmgateway/internal/usageworker"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	rdb  *redis.Client
	db   *store.Store
	prom *metrics.Registry

	catalog    *catalog.Catalog
	translator *translate.Translator
	cb         *router.CircuitBreaker
	creds      *router.CredentialStore
	rt         *router.Router
	freeQuota  *ratelimit.FreeModelQuota

	sink *stats.ClickHouseSink // optional, nil when CLICKHOUSE_DSN is unset

	gw        *gateway.Handler
	worker    *usageworker.Worker
	statsCalc *stats.Calculator
}

// New initialises all subsystems and returns a ready-to-run App. All
// resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"domain", a.initDomain},
		{"pipeline", a.initPipeline},
		{"gateway", a.initGateway},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server, the usage worker, and the stats calculator,
// blocking until ctx is cancelled or any of them returns an error.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting gateway",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.Bool("production", a.cfg.IsProduction()),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.gw.StartWithMetrics(addr, a.prom.Handler())
	})
	g.Go(func() error {
		return a.worker.Run(gctx)
	})
	g.Go(func() error {
		return a.statsCalc.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times in sequence; concurrent calls are not synchronized with each other.
func (a *App) Close() {
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.log.Error("clickhouse sink close error", slog.String("error", err.Error()))
		}
		a.sink = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error("postgres close error", slog.String("error", err.Error()))
		}
		a.db = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
}

// ── Private helpers ──────────────────────────────────────────────────────

// connectRedis dials the configured Redis instance and verifies
// connectivity with a PING.
func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// redisHealth adapts *redis.Client to gateway.HealthProbe.
type redisHealth struct{ rdb *redis.Client }

func (h redisHealth) Ping(ctx context.Context) error {
	return h.rdb.Ping(ctx).Err()
}

// timeoutFromMS converts the TIMEOUT_MS config value to a Duration,
// defaulting to 30s when unset.
func timeoutFromMS(ms int) time.Duration {
	if ms <= 0 {
		return 30 * time.Second
	}
	return time.Duration(ms) * time.Millisecond
}
