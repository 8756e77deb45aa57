// Package apierr provides the gateway's typed error-kind taxonomy and its
// HTTP status/JSON envelope mapping.
//
// Every operation that can fail at the request boundary returns either a
// value or an error that can be unwrapped into a *Error via errors.As. The
// HTTP layer (internal/gateway) is the single place that turns a Kind into a
// status code and a JSON body; nothing else should hard-code status codes.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/valyala/fasthttp"
)

// Kind is the user-visible error category.
type Kind string

const (
	BadRequest       Kind = "bad_request"
	Unauthorized     Kind = "unauthorized"
	PaymentRequired  Kind = "payment_required"
	Forbidden        Kind = "forbidden"
	NotFound         Kind = "not_found"
	TooManyRequests  Kind = "too_many_requests"
	UpstreamError    Kind = "upstream_error"
	GatewayError     Kind = "gateway_error"
	Canceled         Kind = "canceled"
)

// statusOf maps each Kind to its HTTP status code. Canceled uses the
// non-standard 499 (nginx convention for client-closed-request) per §7.
var statusOf = map[Kind]int{
	BadRequest:      fasthttp.StatusBadRequest,
	Unauthorized:    fasthttp.StatusUnauthorized,
	PaymentRequired: fasthttp.StatusPaymentRequired,
	Forbidden:       fasthttp.StatusForbidden,
	NotFound:        fasthttp.StatusNotFound,
	TooManyRequests: fasthttp.StatusTooManyRequests,
	UpstreamError:   fasthttp.StatusBadGateway,
	GatewayError:    fasthttp.StatusInternalServerError,
	Canceled:        499,
}

// Error is the gateway's typed request error. It carries enough context to
// both answer the caller and populate a LogRecord.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int // seconds; only meaningful for TooManyRequests
	RuleIDs    []string
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status code for this error's Kind.
func (e *Error) Status() int {
	if s, ok := statusOf[e.Kind]; ok {
		return s
	}
	return fasthttp.StatusInternalServerError
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an underlying cause to a new *Error of the given kind. The
// cause is preserved for logging/errors.Is/As but never exposed to clients.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithRetryAfter returns a copy of e carrying a Retry-After hint in seconds.
func (e *Error) WithRetryAfter(seconds int) *Error {
	c := *e
	c.RetryAfter = seconds
	return &c
}

// WithRules returns a copy of e carrying the IAM rule ids responsible for a
// forbidden verdict.
func (e *Error) WithRules(ruleIDs []string) *Error {
	c := *e
	c.RuleIDs = ruleIDs
	return &c
}

// From classifies an arbitrary error into an *Error, defaulting to
// GatewayError for anything that isn't already typed. Handlers use this at
// the HTTP boundary so an unrecognized internal error never panics into a
// blank response.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(GatewayError, err, "internal error")
}

// envelope is the wire shape of §6's error contract:
// {"error":true,"status":N,"message":"…","details"?:...}
type envelope struct {
	Error   bool   `json:"error"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Write serializes e onto ctx following the non-streaming error envelope,
// setting Retry-After when e.Kind is TooManyRequests.
func Write(ctx *fasthttp.RequestCtx, e *Error) {
	status := e.Status()
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")

	if e.Kind == TooManyRequests && e.RetryAfter > 0 {
		ctx.Response.Header.Set("Retry-After", fmt.Sprintf("%d", e.RetryAfter))
	}

	details := ""
	if len(e.RuleIDs) > 0 {
		if b, err := json.Marshal(e.RuleIDs); err == nil {
			details = string(b)
		}
	}

	body, _ := json.Marshal(envelope{
		Error:   true,
		Status:  status,
		Message: e.Message,
		Details: details,
	})
	ctx.SetBody(body)
}
