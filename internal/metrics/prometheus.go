// Package metrics provides a Prometheus metrics registry for the gateway.
//
// All metrics are scoped to a private registry (not the global default) so
// they don't interfere with host-level metrics when embedded in other
// applications. The /metrics HTTP handler is exposed via Handler().
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// gateway_inflight_requests
	inFlight prometheus.Gauge

	// gateway_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// gateway_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// gateway_upstream_attempt_duration_seconds{provider,model,outcome}
	upstreamDuration *prometheus.HistogramVec

	// gateway_upstream_attempts_total{provider,model,outcome}
	upstreamAttempts *prometheus.CounterVec

	// gateway_time_to_first_token_seconds{provider,model}
	timeToFirstToken *prometheus.HistogramVec

	// gateway_ratelimit_total{limiter,result}
	rateLimitTotal *prometheus.CounterVec

	// gateway_tokens_total{provider,model,direction,cache}
	tokensTotal *prometheus.CounterVec

	// circuit_breaker_state{provider} — 0=closed, 1=open, 2=half-open
	circuitBreakerState *prometheus.GaugeVec

	// gateway_queue_depth — approximate LOG_QUEUE length observed by the worker
	queueDepth prometheus.Gauge

	// gateway_queue_drop_total — logs dropped because the queue push itself failed
	queueDropTotal prometheus.Counter

	// gateway_worker_batch_size — logs processed in the last credit-processing batch
	workerBatchSize prometheus.Gauge

	// gateway_worker_batch_duration_seconds — duration of the last credit-processing batch
	workerBatchDuration prometheus.Histogram

	// gateway_worker_errors_total{stage}
	workerErrors *prometheus.CounterVec

	// gateway_stats_backfill_minutes — minutes backfilled on the last startup backfill run
	statsBackfillMinutes prometheus.Gauge

	// gateway_build_info{version}
	buildInfo *prometheus.GaugeVec

	metricsHandler fasthttp.RequestHandler
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg: reg,

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_inflight_requests",
			Help: "Current number of in-flight HTTP requests handled by the gateway",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests handled by the gateway",
			},
			[]string{"route", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds (end-to-end, includes upstream)",
				Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"route"},
		),

		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_upstream_attempt_duration_seconds",
				Help:    "Upstream provider attempt duration in seconds",
				Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"provider", "model", "outcome"},
		),

		upstreamAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_attempts_total",
				Help: "Total upstream provider attempts (includes failovers)",
			},
			[]string{"provider", "model", "outcome"},
		),

		timeToFirstToken: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_time_to_first_token_seconds",
				Help:    "Time to first streamed token",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"provider", "model"},
		),

		rateLimitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_ratelimit_total",
				Help: "Rate limit decisions by limiter kind and result",
			},
			[]string{"limiter", "result"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_tokens_total",
				Help: "Token usage totals derived from upstream usage fields",
			},
			[]string{"provider", "model", "direction", "cache"},
		),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed,1=open,2=half-open)",
			},
			[]string{"provider"},
		),

		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_queue_depth",
			Help: "Approximate LOG_QUEUE length as last observed by the usage worker",
		}),

		queueDropTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_queue_drop_total",
			Help: "Log records dropped because the queue push itself failed",
		}),

		workerBatchSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_worker_batch_size",
			Help: "Number of log rows processed in the last credit-processing batch",
		}),

		workerBatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_worker_batch_duration_seconds",
			Help:    "Duration of the last credit-processing batch transaction",
			Buckets: prometheus.DefBuckets,
		}),

		workerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_worker_errors_total",
				Help: "Usage worker errors by stage (drain, batch, topup, stats)",
			},
			[]string{"stage"},
		),

		statsBackfillMinutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_stats_backfill_minutes",
			Help: "Minutes backfilled on the last StatsCalculator startup backfill run",
		}),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_build_info",
				Help: "Build information",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.upstreamDuration,
		r.upstreamAttempts,
		r.timeToFirstToken,
		r.rateLimitTotal,
		r.tokensTotal,
		r.circuitBreakerState,
		r.queueDepth,
		r.queueDropTotal,
		r.workerBatchSize,
		r.workerBatchDuration,
		r.workerErrors,
		r.statsBackfillMinutes,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

func (r *Registry) ObserveHTTP(route string, statusCode int, dur time.Duration) {
	status := strconv.Itoa(statusCode)
	r.httpRequestsTotal.WithLabelValues(route, status).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
}

func (r *Registry) ObserveUpstreamAttempt(provider, model, outcome string, dur time.Duration) {
	r.upstreamAttempts.WithLabelValues(provider, model, outcome).Inc()
	r.upstreamDuration.WithLabelValues(provider, model, outcome).Observe(dur.Seconds())
}

func (r *Registry) ObserveTimeToFirstToken(provider, model string, dur time.Duration) {
	r.timeToFirstToken.WithLabelValues(provider, model).Observe(dur.Seconds())
}

func (r *Registry) RecordRateLimit(limiter, result string) {
	r.rateLimitTotal.WithLabelValues(limiter, result).Inc()
}

func (r *Registry) AddTokens(provider, model string, inputTokens, outputTokens int, cached bool) {
	cache := "miss"
	if cached {
		cache = "hit"
	}
	if inputTokens > 0 {
		r.tokensTotal.WithLabelValues(provider, model, "input", cache).Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		r.tokensTotal.WithLabelValues(provider, model, "output", cache).Add(float64(outputTokens))
	}
}

func (r *Registry) SetCircuitBreaker(provider string, state int64) {
	r.circuitBreakerState.WithLabelValues(provider).Set(float64(state))
}

func (r *Registry) SetQueueDepth(n int64) { r.queueDepth.Set(float64(n)) }
func (r *Registry) IncQueueDrop()         { r.queueDropTotal.Inc() }

func (r *Registry) ObserveWorkerBatch(size int, dur time.Duration) {
	r.workerBatchSize.Set(float64(size))
	r.workerBatchDuration.Observe(dur.Seconds())
}

func (r *Registry) RecordWorkerError(stage string) {
	r.workerErrors.WithLabelValues(stage).Inc()
}

func (r *Registry) SetBackfillMinutes(n int) { r.statsBackfillMinutes.Set(float64(n)) }

func (r *Registry) SetBuildInfo(version string) {
	r.buildInfo.WithLabelValues(version).Set(1)
}

func (r *Registry) Handler() fasthttp.RequestHandler { return r.metricsHandler }
func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }
