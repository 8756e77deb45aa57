// Package cache provides a small byte-oriented cache interface used to
// avoid a database round trip on every request when resolving provider
// credentials (internal/router's CredentialStore). It is not a response
// cache: the gateway does not cache LLM completions beyond recording the
// upstream "cached" flag on a LogRecord (SPEC_FULL.md §1 Non-goals).
package cache

import (
	"context"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
