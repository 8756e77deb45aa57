package gateway

import (
	"encoding/json"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

// Start runs the HTTP server on addr (e.g. ":8080") with no metrics route
// mounted.
func (h *Handler) Start(addr string) error {
	return h.StartWithMetrics(addr, nil)
}

// StartWithMetrics runs the HTTP server on addr, mounting metricsHandler at
// GET /metrics when non-nil (typically h.metrics.Handler()).
func (h *Handler) StartWithMetrics(addr string, metricsHandler fasthttp.RequestHandler) error {
	r := router.New()

	r.POST("/v1/chat/completions", h.handleChatCompletions)
	r.GET("/", h.handleHealth)

	if metricsHandler != nil {
		r.GET("/metrics", metricsHandler)
	}

	handler := applyMiddleware(r.Handler,
		h.recovery,
		requestID,
		timing,
		corsHandler(h.corsOrigins),
		securityHeaders,
		h.inFlight,
	)

	srv := &fasthttp.Server{
		Handler:      handler,
		ReadTimeout:  h.requestTimeout,
		WriteTimeout: h.requestTimeout,
	}

	h.log.Info("gateway listening", "addr", addr)
	return srv.ListenAndServe(addr)
}

func (h *Handler) handleChatCompletions(ctx *fasthttp.RequestCtx) {
	h.dispatchChat(ctx)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
