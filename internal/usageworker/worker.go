// Package usageworker is the UsageWorker of SPEC_FULL.md §4.F: the single
// consumer of the LOG_QUEUE that persists LogRecords and periodically
// batches their cost into organization credits and API-key usage. Grounded
// on the reference app's errgroup-coordinated background-loop shape
// (internal/app/app.go) and the sibling gateway example's append-only log
// writer, generalized into the three §4.F steps, run as two interleaved
// loops.
package usageworker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vectorplane/llmgateway/internal/domain"
	"github.com/vectorplane/llmgateway/internal/gateway"
	"github.com/vectorplane/llmgateway/internal/metrics"
)

// drainBatchSize caps how many queued LogRecords one drain tick claims (the
// "queue pull count" of §6); it is the same whether or not NODE_ENV is
// production.
const drainBatchSize = 100

// autoTopupEvery is how many credit-batch ticks elapse between auto top-up
// probes (§4.F step 3: "every count loop iterations, 120 in production").
const autoTopupEvery = 120

// recentTransactionWindow is how far back HasRecentTransaction looks before
// the auto-topup probe is willing to create another pending Transaction.
const recentTransactionWindow = time.Hour

// Store is the subset of internal/store.Store the worker needs.
type Store interface {
	InsertLogs(ctx context.Context, logs []domain.LogRecord) error
	OrganizationRetention(ctx context.Context, organizationID string) (domain.RetentionLevel, error)
	AcquireLock(ctx context.Context, key string) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
	ProcessCreditBatch(ctx context.Context, batchSize int) (int, error)
	AutoTopupCandidates(ctx context.Context) ([]domain.Organization, error)
	HasRecentTransaction(ctx context.Context, organizationID string, window time.Duration) (bool, error)
	CreateTransaction(ctx context.Context, t domain.Transaction) error
	UpdateTransactionStatus(ctx context.Context, transactionID string, status domain.TransactionStatus, providerRef string) error
}

// PaymentProvider shields the worker from any concrete billing vendor, per
// §4.F step 3 and §6. Charge attempts to add amount credits to org and
// reports the provider's own reference id alongside the outcome.
type PaymentProvider interface {
	Charge(ctx context.Context, org domain.Organization, amount decimal.Decimal) (providerRef string, status domain.TransactionStatus, err error)
}

// Options configures the worker's tunables. Zero values fall back to the
// defaults named in §4.F/§6.
type Options struct {
	Logger              *slog.Logger
	Metrics             *metrics.Registry
	CreditBatchSize     int
	CreditBatchInterval time.Duration
	DrainInterval       time.Duration
	Production          bool // selects the 120-tick auto-topup cadence
}

// Worker implements UsageWorker: it owns no HTTP surface, only the two
// interleaved background loops described in §4.F.
type Worker struct {
	store   Store
	rdb     *redis.Client
	payment PaymentProvider
	log     *slog.Logger
	metrics *metrics.Registry

	creditBatchSize     int
	creditBatchInterval time.Duration
	drainInterval       time.Duration
	production          bool
}

// New builds a Worker. payment may be nil, in which case the auto-topup
// probe is skipped entirely (no external billing vendor configured).
func New(store Store, rdb *redis.Client, payment PaymentProvider, opts Options) *Worker {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	batchSize := opts.CreditBatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	batchInterval := opts.CreditBatchInterval
	if batchInterval <= 0 {
		batchInterval = 5 * time.Second
	}
	drainInterval := opts.DrainInterval
	if drainInterval <= 0 {
		drainInterval = time.Second
	}

	return &Worker{
		store:               store,
		rdb:                 rdb,
		payment:             payment,
		log:                 log,
		metrics:             opts.Metrics,
		creditBatchSize:     batchSize,
		creditBatchInterval: batchInterval,
		drainInterval:       drainInterval,
		production:          opts.Production,
	}
}

// Run blocks until ctx is cancelled, running the queue-drain loop and the
// credit-batch loop (which itself drives the periodic auto-topup probe)
// concurrently via errgroup, matching the reference app's server+worker
// coordination pattern.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.drainLoop(gctx)
		return nil
	})
	g.Go(func() error {
		w.creditBatchLoop(gctx)
		return nil
	})

	return g.Wait()
}

// drainLoop implements §4.F step 1: pop up to drainBatchSize queued
// LogRecords every tick, strip bodies for RetentionNone organizations, and
// insert them in one transaction.
func (w *Worker) drainLoop(ctx context.Context) {
	ticker := time.NewTicker(w.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) {
	start := time.Now()

	raw, err := w.rdb.LPopCount(ctx, gateway.LogQueueKey, drainBatchSize).Result()
	if err != nil && err != redis.Nil {
		w.log.Error("usageworker: queue drain failed", slog.String("error", err.Error()))
		w.recordWorkerError("drain")
		return
	}
	if len(raw) == 0 {
		return
	}

	retentionCache := map[string]domain.RetentionLevel{}
	logs := make([]domain.LogRecord, 0, len(raw))

	for _, item := range raw {
		var rec domain.LogRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			w.log.Error("usageworker: malformed log record, dropping", slog.String("error", err.Error()))
			w.recordWorkerError("drain_decode")
			continue
		}

		level, ok := retentionCache[rec.OrganizationID]
		if !ok {
			level, err = w.store.OrganizationRetention(ctx, rec.OrganizationID)
			if err != nil {
				w.log.Error("usageworker: retention lookup failed", slog.String("org_id", rec.OrganizationID), slog.String("error", err.Error()))
				level = domain.RetentionRetain
			}
			retentionCache[rec.OrganizationID] = level
		}
		if level == domain.RetentionNone {
			rec.StripRetention()
		}

		logs = append(logs, rec)
	}

	if err := w.store.InsertLogs(ctx, logs); err != nil {
		w.log.Error("usageworker: insert logs failed", slog.String("error", err.Error()))
		w.recordWorkerError("drain_insert")
		return
	}

	if w.metrics != nil {
		w.metrics.ObserveWorkerBatch(len(logs), time.Since(start))
	}
}

// creditBatchLoop implements §4.F step 2, and drives step 3's auto-topup
// probe every autoTopupEvery ticks in production and on every tick
// otherwise.
func (w *Worker) creditBatchLoop(ctx context.Context) {
	ticker := time.NewTicker(w.creditBatchInterval)
	defer ticker.Stop()

	every := autoTopupEvery
	if !w.production {
		every = 1
	}

	var tick int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			w.processCreditBatch(ctx)
			if w.payment != nil && tick%every == 0 {
				w.autoTopupProbe(ctx)
			}
		}
	}
}

func (w *Worker) processCreditBatch(ctx context.Context) {
	ok, err := w.store.AcquireLock(ctx, "credit_processing")
	if err != nil {
		w.log.Error("usageworker: acquire credit_processing lock failed", slog.String("error", err.Error()))
		w.recordWorkerError("credit_batch_lock")
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := w.store.ReleaseLock(ctx, "credit_processing"); err != nil {
			w.log.Error("usageworker: release credit_processing lock failed", slog.String("error", err.Error()))
		}
	}()

	start := time.Now()
	n, err := w.store.ProcessCreditBatch(ctx, w.creditBatchSize)
	if err != nil {
		w.log.Error("usageworker: credit batch failed", slog.String("error", err.Error()))
		w.recordWorkerError("credit_batch")
		return
	}
	if n > 0 && w.metrics != nil {
		w.metrics.ObserveWorkerBatch(n, time.Since(start))
	}
}

// autoTopupProbe implements §4.F step 3: charge organizations below their
// auto-topup threshold through the configured PaymentProvider, guarding
// against double-charges via HasRecentTransaction.
func (w *Worker) autoTopupProbe(ctx context.Context) {
	ok, err := w.store.AcquireLock(ctx, "auto_topup_check")
	if err != nil {
		w.log.Error("usageworker: acquire auto_topup_check lock failed", slog.String("error", err.Error()))
		w.recordWorkerError("auto_topup_lock")
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := w.store.ReleaseLock(ctx, "auto_topup_check"); err != nil {
			w.log.Error("usageworker: release auto_topup_check lock failed", slog.String("error", err.Error()))
		}
	}()

	orgs, err := w.store.AutoTopupCandidates(ctx)
	if err != nil {
		w.log.Error("usageworker: auto topup candidates failed", slog.String("error", err.Error()))
		w.recordWorkerError("auto_topup_candidates")
		return
	}

	for _, org := range orgs {
		recent, err := w.store.HasRecentTransaction(ctx, org.ID, recentTransactionWindow)
		if err != nil {
			w.log.Error("usageworker: recent transaction check failed", slog.String("org_id", org.ID), slog.String("error", err.Error()))
			continue
		}
		if recent {
			continue
		}

		txn := domain.Transaction{
			ID:             uuid.New().String(),
			OrganizationID: org.ID,
			Amount:         org.AutoTopupAmount,
			Status:         domain.TransactionPending,
			CreatedAt:      time.Now(),
		}
		if err := w.store.CreateTransaction(ctx, txn); err != nil {
			w.log.Error("usageworker: create transaction failed", slog.String("org_id", org.ID), slog.String("error", err.Error()))
			continue
		}

		providerRef, status, err := w.payment.Charge(ctx, org, org.AutoTopupAmount)
		if err != nil {
			w.log.Error("usageworker: payment provider charge failed", slog.String("org_id", org.ID), slog.String("error", err.Error()))
			status = domain.TransactionFailed
		}
		if err := w.store.UpdateTransactionStatus(ctx, txn.ID, status, providerRef); err != nil {
			w.log.Error("usageworker: update transaction status failed", slog.String("transaction_id", txn.ID), slog.String("error", err.Error()))
		}
	}
}

func (w *Worker) recordWorkerError(stage string) {
	if w.metrics != nil {
		w.metrics.RecordWorkerError(stage)
	}
}
