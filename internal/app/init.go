package app

import (
	"context"
	"fmt"
	"log/slog"

	npCache "github.com/vectorplane/llmgateway/internal/cache"
	"github.com/vectorplane/llmgateway/internal/catalog"
	"github.com/vectorplane/llmgateway/internal/gateway"
	"github.com/vectorplane/llmgateway/internal/metrics"
	"github.com/vectorplane/llmgateway/internal/ratelimit"
	"github.com/vectorplane/llmgateway/internal/router"
	"github.com/vectorplane/llmgateway/internal/stats"
	"github.com/vectorplane/llmgateway/internal/store"
	"github.com/vectorplane/llmgateway/internal/translate"
	"github.com/vectorplane/llmgateway/internal/usageworker"
)

// initInfra establishes the Redis and Postgres connections and, when
// requested, runs schema migrations.
func (a *App) initInfra(ctx context.Context) error {
	a.log.Info("connecting to redis", slog.String("addr", a.cfg.Redis.Addr()))
	rdb, err := connectRedis(ctx, a.cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	a.rdb = rdb
	a.log.Info("redis connected")

	db, err := store.Open(a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: open: %w", err)
	}
	a.db = db

	if a.cfg.RunMigrations {
		a.log.Info("running migrations")
		if err := a.db.Migrate(ctx); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	return nil
}

// initDomain builds the model catalog, wire translator, router, and rate
// limiters — the A/B/C/D chain requests are resolved and dispatched
// through.
func (a *App) initDomain(_ context.Context) error {
	a.catalog = catalog.New()
	a.translator = translate.New()
	a.cb = router.NewCircuitBreaker()

	credCache := npCache.NewExactCacheFromClient(a.rdb)
	a.creds = router.NewCredentialStore(credCache, a.db, a.cfg.FallbackCredentials)

	a.rt = router.New(a.catalog, a.cb, a.creds)
	a.freeQuota = ratelimit.NewFreeModelQuota(a.rdb)

	return nil
}

// initPipeline builds the usage worker and stats calculator that drain and
// aggregate what the gateway enqueues (§4.F, §4.G).
func (a *App) initPipeline(ctx context.Context) error {
	a.worker = usageworker.New(a.db, a.rdb, nil, usageworker.Options{
		Logger:              a.log,
		Metrics:             a.prom,
		CreditBatchSize:     a.cfg.CreditBatchSize,
		CreditBatchInterval: a.cfg.CreditBatchInterval,
		Production:          a.cfg.IsProduction(),
	})

	var sink stats.AnalyticsSink
	if a.cfg.ClickHouseDSN != "" {
		s, err := stats.NewClickHouseSink(ctx, a.cfg.ClickHouseDSN)
		if err != nil {
			a.log.Warn("clickhouse sink unavailable, continuing without it", slog.String("error", err.Error()))
		} else {
			a.sink = s
			sink = s
		}
	}

	a.statsCalc = stats.New(a.db, a.catalog, stats.Options{
		Logger:                  a.log,
		Metrics:                 a.prom,
		BackfillDurationSeconds: a.cfg.BackfillDurationSeconds,
		Sink:                    sink,
	})

	return nil
}

// initGateway builds the GatewayHandler HTTP surface tying A-D together
// (§4.E).
func (a *App) initGateway(_ context.Context) error {
	var corsOrigins []string
	if a.cfg.OriginURL != "" {
		corsOrigins = []string{a.cfg.OriginURL}
	}

	a.gw = gateway.New(a.catalog, a.translator, a.rt, a.cb, a.freeQuota, a.db, a.rdb,
		a.db, redisHealth{a.rdb}, gateway.Options{
			Logger:         a.log,
			Metrics:        a.prom,
			RequestTimeout: timeoutFromMS(a.cfg.TimeoutMS),
			CORSOrigins:    corsOrigins,
			Version:        a.version,
		})

	return nil
}
