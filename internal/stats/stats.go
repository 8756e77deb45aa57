// Package stats is the StatsCalculator of SPEC_FULL.md §4.G: minute-aligned
// per-mapping and per-model history rollups, a 5-minute aggregated-stats
// pass, and a bounded startup backfill. Grounded on the same
// errgroup-coordinated background-loop shape usageworker uses
// (internal/app/app.go in the reference codebase), generalized to the
// minute/5-minute scheduling §4.G describes.
package stats

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vectorplane/llmgateway/internal/catalog"
	"github.com/vectorplane/llmgateway/internal/metrics"
	"github.com/vectorplane/llmgateway/internal/store"
)

// minuteBuffer is how long the minute-history tick waits past the minute
// boundary before querying, giving in-flight log inserts time to land.
const minuteBuffer = 50 * time.Millisecond

// rollupInterval is the 5-minute aggregated-stats cadence.
const rollupInterval = 5 * time.Minute

// maxBackfillMinutes bounds the startup backfill loop per §4.G: "min(ceil
// (duration/60), 1440)".
const maxBackfillMinutes = 1440

// Store is the subset of internal/store.Store the calculator needs.
type Store interface {
	MappingAggregatesForMinute(ctx context.Context, minute time.Time) ([]store.MinuteAgg, error)
	UpsertMappingMinute(ctx context.Context, minute time.Time, a store.MinuteAgg) error
	UpsertModelMinute(ctx context.Context, minute time.Time, a store.MinuteAgg) error
	LatestMinuteTimestamp(ctx context.Context) (time.Time, bool, error)
	RollupAggregatedStats(ctx context.Context, since time.Time) error
}

// AnalyticsSink is the optional ClickHouse dual-write path of §10.5: a
// best-effort secondary write, additive to and never a substitute for the
// Postgres history tables this package's Store writes to.
type AnalyticsSink interface {
	WriteMappingMinute(ctx context.Context, minute time.Time, a store.MinuteAgg) error
	Close() error
}

// Options configures the calculator's tunables.
type Options struct {
	Logger                  *slog.Logger
	Metrics                 *metrics.Registry
	BackfillDurationSeconds int
	Sink                    AnalyticsSink // nil disables the ClickHouse dual-write
}

// Calculator implements StatsCalculator.
type Calculator struct {
	store   Store
	catalog *catalog.Catalog
	sink    AnalyticsSink
	log     *slog.Logger
	metrics *metrics.Registry

	backfillDuration time.Duration
}

// New builds a Calculator.
func New(st Store, cat *catalog.Catalog, opts Options) *Calculator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	backfillSeconds := opts.BackfillDurationSeconds
	if backfillSeconds <= 0 {
		backfillSeconds = 300
	}

	return &Calculator{
		store:            st,
		catalog:          cat,
		sink:             opts.Sink,
		log:              log,
		metrics:          opts.Metrics,
		backfillDuration: time.Duration(backfillSeconds) * time.Second,
	}
}

// Run backfills history since the last known minute, then blocks running
// the minute-history loop and the 5-minute rollup loop concurrently until
// ctx is cancelled.
func (c *Calculator) Run(ctx context.Context) error {
	c.Backfill(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c.minuteLoop(gctx)
		return nil
	})
	g.Go(func() error {
		c.rollupLoop(gctx)
		return nil
	})

	return g.Wait()
}

// minuteLoop implements §4.G's minute-history schedule: wake shortly after
// each minute boundary and roll up the minute that just closed.
func (c *Calculator) minuteLoop(ctx context.Context) {
	for {
		next := nextMinuteBoundary(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			prevMinute := next.Add(-time.Minute).Truncate(time.Minute)
			c.rollupMinute(ctx, prevMinute)
		}
	}
}

// rollupLoop implements §4.G's 5-minute aggregated-stats schedule.
func (c *Calculator) rollupLoop(ctx context.Context) {
	for {
		next := nextRollupBoundary(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := c.store.RollupAggregatedStats(ctx, next.Add(-rollupInterval)); err != nil {
				c.log.Error("stats: aggregated rollup failed", slog.String("error", err.Error()))
				if c.metrics != nil {
					c.metrics.RecordWorkerError("stats_rollup")
				}
			}
		}
	}
}

// rollupMinute computes and upserts both the per-mapping and per-model
// history rows for minute, including zero-activity rows for every active
// catalog entry, per §4.G.
func (c *Calculator) rollupMinute(ctx context.Context, minute time.Time) {
	start := time.Now()

	aggs, err := c.store.MappingAggregatesForMinute(ctx, minute)
	if err != nil {
		c.log.Error("stats: mapping aggregates failed", slog.String("error", err.Error()))
		if c.metrics != nil {
			c.metrics.RecordWorkerError("stats_minute")
		}
		return
	}

	type mappingKey struct{ modelID, providerID string }
	byMapping := make(map[mappingKey]store.MinuteAgg, len(aggs))
	byModel := make(map[string]store.MinuteAgg, len(aggs))

	for _, a := range aggs {
		byMapping[mappingKey{a.ModelID, a.ProviderID}] = a

		m := byModel[a.ModelID]
		m.ModelID = a.ModelID
		m.LogsCount += a.LogsCount
		m.ErrorsCount += a.ErrorsCount
		m.ClientErrorsCount += a.ClientErrorsCount
		m.GatewayErrorsCount += a.GatewayErrorsCount
		m.UpstreamErrorsCount += a.UpstreamErrorsCount
		m.CachedCount += a.CachedCount
		m.PromptTokensSum += a.PromptTokensSum
		m.CompletionTokensSum += a.CompletionTokensSum
		m.TotalTokensSum += a.TotalTokensSum
		m.DurationSumMs += a.DurationSumMs
		m.TTFTSumMs += a.TTFTSumMs
		byModel[a.ModelID] = m
	}

	mappingKeys := make(map[mappingKey]struct{}, len(byMapping))
	for k := range byMapping {
		mappingKeys[k] = struct{}{}
	}
	for _, ref := range c.catalog.ActiveMappingRefs() {
		mappingKeys[mappingKey{ref.ModelID, ref.ProviderID}] = struct{}{}
	}

	for k := range mappingKeys {
		a := byMapping[k]
		a.ModelID, a.ProviderID = k.modelID, k.providerID
		if err := c.store.UpsertMappingMinute(ctx, minute, a); err != nil {
			c.log.Error("stats: upsert mapping minute failed", slog.String("model_id", k.modelID), slog.String("provider_id", k.providerID), slog.String("error", err.Error()))
			if c.metrics != nil {
				c.metrics.RecordWorkerError("stats_minute_upsert")
			}
			continue
		}
		if c.sink != nil {
			if err := c.sink.WriteMappingMinute(ctx, minute, a); err != nil {
				c.log.Warn("stats: clickhouse dual-write failed", slog.String("error", err.Error()))
			}
		}
	}

	modelIDs := make(map[string]struct{}, len(byModel))
	for id := range byModel {
		modelIDs[id] = struct{}{}
	}
	for _, id := range c.catalog.ActiveModelIDs() {
		modelIDs[id] = struct{}{}
	}

	for id := range modelIDs {
		a := byModel[id]
		a.ModelID = id
		if err := c.store.UpsertModelMinute(ctx, minute, a); err != nil {
			c.log.Error("stats: upsert model minute failed", slog.String("model_id", id), slog.String("error", err.Error()))
			if c.metrics != nil {
				c.metrics.RecordWorkerError("stats_minute_upsert")
			}
		}
	}

	if c.metrics != nil {
		c.metrics.ObserveWorkerBatch(len(mappingKeys)+len(modelIDs), time.Since(start))
	}
}

// Backfill implements §4.G's startup catch-up: compare the latest known
// minute to the previous wall-clock minute and roll up every minute in
// between, bounded by maxBackfillMinutes.
func (c *Calculator) Backfill(ctx context.Context) {
	previousMinute := time.Now().Truncate(time.Minute).Add(-time.Minute)

	latest, ok, err := c.store.LatestMinuteTimestamp(ctx)
	if err != nil {
		c.log.Error("stats: backfill latest minute lookup failed", slog.String("error", err.Error()))
		return
	}

	var from time.Time
	switch {
	case !ok:
		from = previousMinute.Add(-c.backfillDuration).Add(time.Minute).Truncate(time.Minute)
	case previousMinute.Sub(latest) > 2*time.Minute:
		from = latest.Add(time.Minute)
	default:
		return
	}

	if from.After(previousMinute) {
		return
	}

	n := 0
	for m := from; !m.After(previousMinute) && n < maxBackfillMinutes; m = m.Add(time.Minute) {
		next := m.Add(time.Minute)
		if !next.After(m) {
			break // a stalled clock must not spin the loop forever
		}
		c.rollupMinute(ctx, m)
		n++
	}

	c.log.Info("stats: backfill complete", slog.Int("minutes", n))
	if c.metrics != nil {
		c.metrics.SetBackfillMinutes(n)
	}
}

// nextMinuteBoundary returns the next :00-aligned instant plus minuteBuffer
// after now.
func nextMinuteBoundary(now time.Time) time.Time {
	return now.Truncate(time.Minute).Add(time.Minute).Add(minuteBuffer)
}

// nextRollupBoundary returns the next 5-minute-aligned instant (0,5,10,…)
// plus minuteBuffer after now.
func nextRollupBoundary(now time.Time) time.Time {
	return now.Truncate(rollupInterval).Add(rollupInterval).Add(minuteBuffer)
}
