// Package gateway is the GatewayHandler of SPEC_FULL.md §4.E: the
// POST /v1/chat/completions HTTP surface tying together the router (C),
// rate limiter (D), and translator (B), then queuing a LogRecord for the
// usage worker (F). Grounded on the reference gateway's
// internal/proxy/gateway.go, router.go and middleware.go, generalized from
// a fixed provider map to the catalog/router/translate split this gateway
// uses instead.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"

	"github.com/vectorplane/llmgateway/internal/catalog"
	"github.com/vectorplane/llmgateway/internal/domain"
	"github.com/vectorplane/llmgateway/internal/metrics"
	"github.com/vectorplane/llmgateway/internal/ratelimit"
	"github.com/vectorplane/llmgateway/internal/router"
	"github.com/vectorplane/llmgateway/internal/translate"
)

// LogQueueKey is the Redis list GatewayHandler pushes LogRecords onto and
// UsageWorker pops them from (§4.F's LOG_QUEUE).
const LogQueueKey = "LOG_QUEUE"

// AuthStore is the subset of internal/store.Store GatewayHandler needs to
// resolve a caller's bearer token (§4.E step 1).
type AuthStore interface {
	ApiKeyByToken(ctx context.Context, token string) (domain.ApiKey, domain.Project, domain.Organization, []domain.IamRule, error)
}

// HealthProbe reports whether a dependency is reachable, used by GET /.
type HealthProbe interface {
	Ping(ctx context.Context) error
}

// Options configures an Handler's tunables. Zero values fall back to
// sensible defaults.
type Options struct {
	Logger         *slog.Logger
	Metrics        *metrics.Registry
	RequestTimeout time.Duration // total deadline, streaming included
	CORSOrigins    []string
	Version        string
}

// Handler implements GatewayHandler: it is the fasthttp-facing surface the
// rest of the gateway's components are wired behind.
type Handler struct {
	catalog     *catalog.Catalog
	translator  *translate.Translator
	router      *router.Router
	cb          *router.CircuitBreaker
	freeQuota   *ratelimit.FreeModelQuota
	auth        AuthStore
	rdb         *redis.Client
	httpClient  *fasthttp.Client
	log         *slog.Logger
	metrics     *metrics.Registry
	version     string

	requestTimeout time.Duration
	corsOrigins    []string

	dbHealth    HealthProbe
	redisHealth HealthProbe
}

// New builds a Handler. rdb is used both for the LOG_QUEUE push and for the
// free-model quota's sliding window (via freeQuota).
func New(cat *catalog.Catalog, tr *translate.Translator, rt *router.Router, cb *router.CircuitBreaker, freeQuota *ratelimit.FreeModelQuota, auth AuthStore, rdb *redis.Client, dbHealth, redisHealth HealthProbe, opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	reqTimeout := opts.RequestTimeout
	if reqTimeout <= 0 {
		reqTimeout = 60 * time.Second
	}

	return &Handler{
		catalog:        cat,
		translator:     tr,
		router:         rt,
		cb:             cb,
		freeQuota:      freeQuota,
		auth:           auth,
		rdb:            rdb,
		httpClient:     &fasthttp.Client{MaxConnsPerHost: 512, StreamResponseBody: true},
		log:            log,
		metrics:        opts.Metrics,
		version:        opts.Version,
		requestTimeout: reqTimeout,
		corsOrigins:    opts.CORSOrigins,
		dbHealth:       dbHealth,
		redisHealth:    redisHealth,
	}
}

// newRequestID generates the id used both as the LogRecord id and, prefixed,
// as the response's chat-completion id.
func newRequestID() string {
	return uuid.New().String()
}
