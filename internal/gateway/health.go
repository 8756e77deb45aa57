package gateway

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"
)

// healthSnapshot is GET /'s response body: an overall status plus per
// dependency detail, so an operator can tell which backing service is down
// without needing a second endpoint.
type healthSnapshot struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

func (h *Handler) handleHealth(ctx *fasthttp.RequestCtx) {
	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	ok := true

	if h.dbHealth != nil {
		if err := h.dbHealth.Ping(reqCtx); err != nil {
			checks["store"] = "down: " + err.Error()
			ok = false
		} else {
			checks["store"] = "ok"
		}
	}
	if h.redisHealth != nil {
		if err := h.redisHealth.Ping(reqCtx); err != nil {
			checks["redis"] = "down: " + err.Error()
			ok = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := "ok"
	code := fasthttp.StatusOK
	if !ok {
		status = "degraded"
		code = fasthttp.StatusServiceUnavailable
	}

	writeJSON(ctx, code, healthSnapshot{Status: status, Version: h.version, Checks: checks})
}
