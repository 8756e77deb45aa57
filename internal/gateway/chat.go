package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"

	"github.com/vectorplane/llmgateway/internal/catalog"
	"github.com/vectorplane/llmgateway/internal/domain"
	"github.com/vectorplane/llmgateway/internal/router"
	"github.com/vectorplane/llmgateway/internal/translate"
	"github.com/vectorplane/llmgateway/pkg/apierr"
)

// parseBearerToken extracts the token from an "Authorization: Bearer ..."
// header value, mirroring the reference gateway's header parsing.
func parseBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// splitPinnedModel implements §4.C step 4's "provider/model" pin syntax.
func splitPinnedModel(model string) (modelID, pinnedProvider string) {
	if i := strings.Index(model, "/"); i > 0 {
		return model[i+1:], model[:i]
	}
	return model, ""
}

func lastMessageIsToolResult(req *translate.Request) bool {
	if len(req.Messages) == 0 {
		return false
	}
	return req.Messages[len(req.Messages)-1].ToolCallID != ""
}

// hasToolTurns reports whether any message in req is an assistant tool-call
// turn or a tool-result turn.
func hasToolTurns(req *translate.Request) bool {
	for _, m := range req.Messages {
		if len(m.ToolCalls) > 0 || m.ToolCallID != "" || m.Role == "tool" {
			return true
		}
	}
	return false
}

// useResponsesAPI decides whether this request, once routed to candidate,
// should be encoded against OpenAI's Responses API rather than its chat
// completions endpoint, matching the condition catalog.EndpointFor applies
// when it picks the URL (§4.A/§4.B).
func useResponsesAPI(candidate catalog.ProviderMapping, wantsReasoning, hasExistingToolCalls bool) bool {
	return candidate.ProviderID == "openai" && candidate.SupportsResponsesAPI && wantsReasoning && !hasExistingToolCalls
}

// dispatchChat implements §4.E's full request pipeline: authenticate, parse
// and validate, route, rate-limit free models, translate and dispatch
// upstream, translate the reply back, compute cost, and enqueue a LogRecord.
func (h *Handler) dispatchChat(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	requestID, _ := ctx.UserValue("request_id").(string)
	if requestID == "" {
		requestID = newRequestID()
	}

	token := parseBearerToken(string(ctx.Request.Header.Peek("Authorization")))
	if token == "" {
		apierr.Write(ctx, apierr.New(apierr.Unauthorized, "missing bearer token"))
		return
	}

	key, project, org, rules, err := h.auth.ApiKeyByToken(ctx, token)
	if err != nil {
		h.log.WarnContext(ctx, "auth_failed", slog.String("request_id", requestID), slog.String("error", err.Error()))
		apierr.Write(ctx, apierr.New(apierr.Unauthorized, "invalid api key"))
		return
	}
	if !key.Active() {
		apierr.Write(ctx, apierr.New(apierr.Unauthorized, "api key is not active"))
		return
	}

	var wreq wireRequest
	if err := json.Unmarshal(ctx.PostBody(), &wreq); err != nil {
		apierr.Write(ctx, apierr.Wrap(apierr.BadRequest, err, "invalid JSON body"))
		return
	}

	canonical, err := wreq.toCanonical()
	if err != nil {
		apierr.Write(ctx, apierr.From(err))
		return
	}

	modelID, pinnedProvider := splitPinnedModel(canonical.Model)
	wantsReasoning := canonical.ReasoningEffort != ""
	hasExistingToolCalls := hasToolTurns(canonical)

	if entry, ok := h.catalog.FindModel(modelID); ok && entry.Free && h.freeQuota != nil {
		res, err := h.freeQuota.Check(ctx, org.ID, org.Credits.IsPositive())
		if err == nil && !res.Allowed {
			if h.metrics != nil {
				h.metrics.RecordRateLimit("free_model", "blocked")
			}
			apierr.Write(ctx, apierr.New(apierr.TooManyRequests, "free model rate limit exceeded").WithRetryAfter(int(res.RetryAfter.Seconds())))
			return
		}
		if h.metrics != nil {
			h.metrics.RecordRateLimit("free_model", "allowed")
		}
	}

	resolved, err := h.router.Resolve(ctx, key, project, rules, router.Request{
		RequestedModel:       modelID,
		PinnedProvider:       pinnedProvider,
		Stream:               canonical.Stream,
		SupportsReasoning:    wantsReasoning,
		HasExistingToolCalls: hasExistingToolCalls,
	})
	if err != nil {
		apierr.Write(ctx, apierr.From(err))
		return
	}

	responsesAPI := useResponsesAPI(resolved.Candidate, wantsReasoning, hasExistingToolCalls)
	wireModel := resolved.Candidate.ModelName

	upstreamBody, err := h.translator.Encode(resolved.Candidate.ProviderID, canonical, resolved.Model, wireModel, responsesAPI)
	if err != nil {
		apierr.Write(ctx, apierr.Wrap(apierr.GatewayError, err, "failed to encode upstream request"))
		return
	}

	rec := &domain.LogRecord{
		ID:                requestID,
		RequestID:         requestID,
		OrganizationID:    org.ID,
		ProjectID:         project.ID,
		ApiKeyID:          key.ID,
		CreatedAt:         start,
		RequestedModel:    modelID,
		RequestedProvider: pinnedProvider,
		UsedModel:         resolved.Model.ID,
		UsedProvider:      resolved.Candidate.ProviderID,
		Mode:              project.Mode,
		UsedMode:          resolved.UsedMode,
	}

	if canonical.Stream {
		h.dispatchStream(ctx, resolved, upstreamBody, canonical, rec, start)
		return
	}
	h.dispatchBuffered(ctx, resolved, upstreamBody, canonical, rec, start)
}

// newUpstreamRequest builds the outbound fasthttp request against resolved's
// endpoint and auth headers.
func (h *Handler) newUpstreamRequest(resolved *router.Resolved, body []byte) (*fasthttp.Request, *fasthttp.Response) {
	req := fasthttp.AcquireRequest()
	req.SetRequestURI(resolved.Endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	for k, v := range h.catalog.HeadersFor(resolved.Candidate.ProviderID, resolved.Token) {
		req.Header.Set(k, v)
	}
	req.SetBody(body)
	return req, fasthttp.AcquireResponse()
}

// dispatchBuffered handles the non-streaming path: one upstream round trip,
// decode, cost, respond, enqueue.
func (h *Handler) dispatchBuffered(ctx *fasthttp.RequestCtx, resolved *router.Resolved, upstreamBody []byte, canonical *translate.Request, rec *domain.LogRecord, start time.Time) {
	req, resp := h.newUpstreamRequest(resolved, upstreamBody)
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	upstreamStart := time.Now()
	err := h.httpClient.DoTimeout(req, resp, h.requestTimeout)
	dur := time.Since(upstreamStart)

	if err != nil {
		h.recordUpstreamOutcome(resolved.Candidate.ProviderID, resolved.Model.ID, false, dur)
		h.finishError(ctx, rec, start, apierr.Wrap(apierr.UpstreamError, err, "upstream request failed"))
		return
	}
	if resp.StatusCode() >= 400 {
		h.recordUpstreamOutcome(resolved.Candidate.ProviderID, resolved.Model.ID, false, dur)
		h.finishError(ctx, rec, start, apierr.Newf(apierr.UpstreamError, "upstream returned status %d", resp.StatusCode()))
		return
	}
	h.recordUpstreamOutcome(resolved.Candidate.ProviderID, resolved.Model.ID, true, dur)

	decoded, err := h.translator.Decode(resolved.Candidate.ProviderID, resp.Body(), resolved.Candidate.ModelName,
		canonical, useResponsesAPI(resolved.Candidate, canonical.ReasoningEffort != "", hasToolTurns(canonical)))
	if err != nil {
		h.finishError(ctx, rec, start, apierr.Wrap(apierr.GatewayError, err, "failed to decode upstream response"))
		return
	}

	cost := computeCost(resolved.Candidate, decoded.Usage, countImageParts(canonical), decoded.Cached)

	out := fromCanonical(decoded, time.Now().Unix())
	body, err := json.Marshal(out)
	if err != nil {
		h.finishError(ctx, rec, start, apierr.Wrap(apierr.GatewayError, err, "failed to serialize response"))
		return
	}

	h.finishSuccess(ctx, rec, start, decoded.Usage, decoded.Cached, cost, domain.FinishCompleted, len(body))
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(body)
}

// dispatchStream handles the SSE path: one upstream connection, streamed
// decode-and-reencode per frame, response finishes once the client write
// completes since usage/cost are only known from the terminal frame.
func (h *Handler) dispatchStream(ctx *fasthttp.RequestCtx, resolved *router.Resolved, upstreamBody []byte, canonical *translate.Request, rec *domain.LogRecord, start time.Time) {
	req, resp := h.newUpstreamRequest(resolved, upstreamBody)

	upstreamStart := time.Now()
	err := h.httpClient.DoTimeout(req, resp, h.requestTimeout)
	if err != nil {
		fasthttp.ReleaseRequest(req)
		h.recordUpstreamOutcome(resolved.Candidate.ProviderID, resolved.Model.ID, false, time.Since(upstreamStart))
		fasthttp.ReleaseResponse(resp)
		h.finishError(ctx, rec, start, apierr.Wrap(apierr.UpstreamError, err, "upstream request failed"))
		return
	}
	if resp.StatusCode() >= 400 {
		fasthttp.ReleaseRequest(req)
		h.recordUpstreamOutcome(resolved.Candidate.ProviderID, resolved.Model.ID, false, time.Since(upstreamStart))
		fasthttp.ReleaseResponse(resp)
		h.finishError(ctx, rec, start, apierr.Newf(apierr.UpstreamError, "upstream returned status %d", resp.StatusCode()))
		return
	}
	h.recordUpstreamOutcome(resolved.Candidate.ProviderID, resolved.Model.ID, true, time.Since(upstreamStart))

	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.SetStatusCode(fasthttp.StatusOK)

	providerID := resolved.Candidate.ProviderID
	wireModel := resolved.Candidate.ModelName
	requestID := rec.RequestID
	respSize := 0

	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)
		defer func() { recover() }()

		toolIndex := map[int]toolBlock{}
		var firstByteAt time.Time
		var finalUsage translate.Usage
		finish := domain.FinishUnknown
		cached := false

		scanner := bufio.NewScanner(resp.BodyStream())
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				if strings.Contains(line, `"content_block_start"`) {
					trackToolBlockStart(toolIndex, []byte(line))
				}
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}
			if payload == "[DONE]" {
				break
			}
			trackToolBlockStart(toolIndex, []byte(payload))

			delta, err := h.translator.DecodeStreamChunk(providerID, []byte(payload), wireModel, canonical, func(idx int) (string, string) {
				b := toolIndex[idx]
				return b.id, b.name
			})
			if err != nil {
				h.log.WarnContext(ctx, "stream_decode_error", slog.String("request_id", requestID), slog.String("error", err.Error()))
				continue
			}

			if firstByteAt.IsZero() && (delta.Content != "" || delta.Reasoning != "" || len(delta.ToolCallDeltas) > 0) {
				firstByteAt = time.Now()
			}
			if delta.Usage != nil {
				finalUsage = *delta.Usage
			}
			if delta.FinishReason != "" {
				finish = mapFinishReason(delta.FinishReason)
			}

			chunk := fromStreamDelta(requestID, resolved.Model.ID, delta)
			data, _ := json.Marshal(chunk)
			respSize += len(data)
			fmt.Fprintf(w, "data: %s\n\n", data)
			w.Flush()

			if delta.Done {
				break
			}
		}

		fmt.Fprint(w, "data: [DONE]\n\n")
		w.Flush()

		if finish == domain.FinishUnknown {
			finish = domain.FinishCompleted
		}
		cost := computeCost(resolved.Candidate, finalUsage, countImageParts(canonical), cached)
		if !firstByteAt.IsZero() {
			ttft := firstByteAt.Sub(start)
			rec.TimeToFirstToken = &ttft
			if h.metrics != nil {
				h.metrics.ObserveTimeToFirstToken(resolved.Candidate.ProviderID, resolved.Model.ID, ttft)
			}
		}
		h.finishSuccess(ctx, rec, start, finalUsage, cached, cost, finish, respSize)
	})
}

type toolBlock struct{ id, name string }

// trackToolBlockStart scans a raw Anthropic SSE data line for a
// content_block_start event announcing a tool_use block, recording its
// (index -> id,name) so later input_json_delta events can be attributed.
func trackToolBlockStart(index map[int]toolBlock, payload []byte) {
	if !bytes.Contains(payload, []byte(`"content_block_start"`)) || !bytes.Contains(payload, []byte(`"tool_use"`)) {
		return
	}
	var ev struct {
		Index        int `json:"index"`
		ContentBlock struct {
			Type string `json:"type"`
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"content_block"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	if ev.ContentBlock.Type == "tool_use" {
		index[ev.Index] = toolBlock{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
	}
}

func mapFinishReason(s string) domain.FinishReason {
	switch s {
	case "stop", "completed", "end_turn", "STOP":
		return domain.FinishCompleted
	case "length", "max_tokens", "MAX_TOKENS":
		return domain.FinishLengthLimit
	case "content_filter", "SAFETY":
		return domain.FinishContentFilter
	case "tool_calls", "tool_use":
		return domain.FinishToolCalls
	default:
		return domain.FinishUnknown
	}
}

func (h *Handler) recordUpstreamOutcome(providerID, modelID string, ok bool, dur time.Duration) {
	if h.cb != nil {
		if ok {
			h.cb.RecordSuccess(providerID)
		} else {
			h.cb.RecordFailure(providerID)
		}
	}
	if h.metrics == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	h.metrics.ObserveUpstreamAttempt(providerID, modelID, outcome, dur)
}

// finishError completes a failed request: classify, write the error
// envelope, and still enqueue a LogRecord so failed requests are visible in
// stats.
func (h *Handler) finishError(ctx *fasthttp.RequestCtx, rec *domain.LogRecord, start time.Time, err error) {
	e := apierr.From(err)
	apierr.Write(ctx, e)

	rec.Duration = time.Since(start)
	rec.HasError = true
	switch e.Kind {
	case apierr.BadRequest, apierr.Unauthorized, apierr.Forbidden, apierr.NotFound, apierr.PaymentRequired:
		rec.UnifiedFinishReason = domain.FinishClientError
	case apierr.UpstreamError:
		rec.UnifiedFinishReason = domain.FinishUpstreamError
	case apierr.Canceled:
		rec.UnifiedFinishReason = domain.FinishCanceled
	default:
		rec.UnifiedFinishReason = domain.FinishGatewayError
	}
	h.enqueueLog(ctx, rec)

	if h.metrics != nil {
		h.metrics.ObserveHTTP("chat_completions", e.Status(), rec.Duration)
	}
}

// finishSuccess completes a successful request's LogRecord and pushes it to
// LOG_QUEUE for the usage worker to drain (§4.E step 7).
func (h *Handler) finishSuccess(ctx *fasthttp.RequestCtx, rec *domain.LogRecord, start time.Time, usage translate.Usage, cached bool, cost decimal.Decimal, finish domain.FinishReason, respSize int) {
	rec.Duration = time.Since(start)
	rec.Cached = cached
	rec.Cost = &cost
	rec.PromptTokens = intPtr(usage.PromptTokens)
	rec.CompletionTokens = intPtr(usage.CompletionTokens)
	rec.ReasoningTokens = intPtr(usage.ReasoningTokens)
	rec.CachedTokens = intPtr(usage.CachedTokens)
	rec.TotalTokens = intPtr(usage.TotalTokens)
	rec.UnifiedFinishReason = finish
	rec.ResponseSize = respSize

	h.enqueueLog(ctx, rec)

	if h.metrics != nil {
		h.metrics.ObserveHTTP("chat_completions", fasthttp.StatusOK, rec.Duration)
		h.metrics.AddTokens(rec.UsedProvider, rec.UsedModel, usage.PromptTokens, usage.CompletionTokens, cached)
	}
}

func intPtr(n int) *int { return &n }

// enqueueLog serializes rec and pushes it onto LOG_QUEUE for the usage
// worker (§4.F) to drain. Fire-and-forget: a push failure is logged but
// never fails the HTTP response, since the caller already has their answer.
func (h *Handler) enqueueLog(ctx context.Context, rec *domain.LogRecord) {
	if h.rdb == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		h.log.Error("log_marshal_failed", slog.String("request_id", rec.RequestID), slog.String("error", err.Error()))
		return
	}
	pushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.rdb.RPush(pushCtx, LogQueueKey, data).Err(); err != nil {
		if h.metrics != nil {
			h.metrics.IncQueueDrop()
		}
		h.log.Error("log_enqueue_failed", slog.String("request_id", rec.RequestID), slog.String("error", err.Error()))
	}
}
