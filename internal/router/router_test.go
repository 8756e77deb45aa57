package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/vectorplane/llmgateway/internal/catalog"
	"github.com/vectorplane/llmgateway/internal/domain"
	"github.com/vectorplane/llmgateway/internal/router"
)

// memCache is a minimal in-memory cache.Cache for tests that never need to
// exercise Redis degradation.
type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := c.data[key]
	return v, ok
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	delete(c.data, key)
	return nil
}

// stubSource hands back canned credentials keyed by "orgID:providerID".
type stubSource struct {
	creds map[string]string
}

func (s *stubSource) ProviderCredential(_ context.Context, organizationID, providerID string) (string, bool, error) {
	tok, ok := s.creds[organizationID+":"+providerID]
	return tok, ok, nil
}

func testProject(mode domain.ProjectMode) (domain.ApiKey, domain.Project) {
	key := domain.ApiKey{ID: "key-1", ProjectID: "proj-1", Status: domain.ApiKeyActive}
	project := domain.Project{ID: "proj-1", OrganizationID: "org-1", Mode: mode}
	return key, project
}

func TestResolve_PicksCheapestCandidateByDefault(t *testing.T) {
	cat := catalog.New()
	source := &stubSource{creds: map[string]string{
		"org-1:groq":     "groq-token",
		"org-1:deepseek": "deepseek-token",
	}}
	store := router.NewCredentialStore(newMemCache(), source, nil)
	rt := router.New(cat, router.NewCircuitBreaker(), store)

	key, project := testProject(domain.ModeAPIKeys)
	resolved, err := rt.Resolve(context.Background(), key, project, nil, router.Request{
		RequestedModel: "llama-3.1-8b-instant",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Candidate.ProviderID != "groq" {
		t.Fatalf("expected groq (cheaper candidate), got %s", resolved.Candidate.ProviderID)
	}
}

func TestResolve_InactiveKeyRejected(t *testing.T) {
	cat := catalog.New()
	store := router.NewCredentialStore(newMemCache(), &stubSource{creds: map[string]string{}}, nil)
	rt := router.New(cat, router.NewCircuitBreaker(), store)

	key, project := testProject(domain.ModeAPIKeys)
	key.Status = domain.ApiKeyInactive

	_, err := rt.Resolve(context.Background(), key, project, nil, router.Request{RequestedModel: "gpt-4o"})
	if err == nil {
		t.Fatalf("expected an error for an inactive key")
	}
}

func TestResolve_UnknownModel(t *testing.T) {
	cat := catalog.New()
	store := router.NewCredentialStore(newMemCache(), &stubSource{creds: map[string]string{}}, nil)
	rt := router.New(cat, router.NewCircuitBreaker(), store)

	key, project := testProject(domain.ModeAPIKeys)
	_, err := rt.Resolve(context.Background(), key, project, nil, router.Request{RequestedModel: "not-a-real-model"})
	if err == nil {
		t.Fatalf("expected an error for an unknown model")
	}
}

func TestResolve_IAMDenyModelsBlocksEverything(t *testing.T) {
	cat := catalog.New()
	source := &stubSource{creds: map[string]string{"org-1:openai": "tok"}}
	store := router.NewCredentialStore(newMemCache(), source, nil)
	rt := router.New(cat, router.NewCircuitBreaker(), store)

	key, project := testProject(domain.ModeAPIKeys)
	rules := []domain.IamRule{{
		ID:       "rule-1",
		ApiKeyID: key.ID,
		RuleType: domain.RuleDenyModels,
		Value:    domain.RuleValue{Models: []string{"gpt-4o"}},
		Status:   domain.RuleActive,
	}}

	_, err := rt.Resolve(context.Background(), key, project, rules, router.Request{RequestedModel: "gpt-4o"})
	if err == nil {
		t.Fatalf("expected forbidden error")
	}
}

func TestResolve_IAMDenyProviderSkipsOnlyThatCandidate(t *testing.T) {
	cat := catalog.New()
	source := &stubSource{creds: map[string]string{
		"org-1:groq":     "groq-token",
		"org-1:deepseek": "deepseek-token",
	}}
	store := router.NewCredentialStore(newMemCache(), source, nil)
	rt := router.New(cat, router.NewCircuitBreaker(), store)

	key, project := testProject(domain.ModeAPIKeys)
	rules := []domain.IamRule{{
		ID:       "rule-1",
		ApiKeyID: key.ID,
		RuleType: domain.RuleDenyProviders,
		Value:    domain.RuleValue{Providers: []string{"groq"}},
		Status:   domain.RuleActive,
	}}

	resolved, err := rt.Resolve(context.Background(), key, project, rules, router.Request{RequestedModel: "llama-3.1-8b-instant"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Candidate.ProviderID != "deepseek" {
		t.Fatalf("expected fallback to deepseek, got %s", resolved.Candidate.ProviderID)
	}
}

func TestResolve_PinnedProviderBypassesCheapestPick(t *testing.T) {
	cat := catalog.New()
	source := &stubSource{creds: map[string]string{
		"org-1:groq":     "groq-token",
		"org-1:deepseek": "deepseek-token",
	}}
	store := router.NewCredentialStore(newMemCache(), source, nil)
	rt := router.New(cat, router.NewCircuitBreaker(), store)

	key, project := testProject(domain.ModeAPIKeys)
	resolved, err := rt.Resolve(context.Background(), key, project, nil, router.Request{
		RequestedModel: "llama-3.1-8b-instant",
		PinnedProvider: "deepseek",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Candidate.ProviderID != "deepseek" {
		t.Fatalf("expected pinned deepseek, got %s", resolved.Candidate.ProviderID)
	}
}

func TestResolve_CircuitOpenFailsOverToNextCandidate(t *testing.T) {
	cat := catalog.New()
	source := &stubSource{creds: map[string]string{
		"org-1:groq":     "groq-token",
		"org-1:deepseek": "deepseek-token",
	}}
	store := router.NewCredentialStore(newMemCache(), source, nil)
	cb := router.NewCircuitBreaker()

	// Trip groq's breaker (the cheaper candidate) before routing.
	for i := 0; i < 10; i++ {
		cb.RecordFailure("groq")
	}

	rt := router.New(cat, cb, store)
	key, project := testProject(domain.ModeAPIKeys)

	resolved, err := rt.Resolve(context.Background(), key, project, nil, router.Request{RequestedModel: "llama-3.1-8b-instant"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Candidate.ProviderID != "deepseek" {
		t.Fatalf("expected failover to deepseek once groq's breaker tripped, got %s", resolved.Candidate.ProviderID)
	}
}

func TestResolve_CreditsModeFallsBackToGatewayCredential(t *testing.T) {
	cat := catalog.New()
	store := router.NewCredentialStore(newMemCache(), &stubSource{creds: map[string]string{}}, map[string]string{
		"openai": "gateway-owned-key",
	})
	rt := router.New(cat, router.NewCircuitBreaker(), store)

	key, project := testProject(domain.ModeCredits)
	resolved, err := rt.Resolve(context.Background(), key, project, nil, router.Request{RequestedModel: "gpt-4o"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Token != "gateway-owned-key" {
		t.Fatalf("expected gateway fallback credential, got %q", resolved.Token)
	}
	if resolved.UsedMode != domain.ModeCredits {
		t.Fatalf("expected usedMode credits, got %s", resolved.UsedMode)
	}
}

func TestResolve_APIKeysModeWithNoCredentialFails(t *testing.T) {
	cat := catalog.New()
	store := router.NewCredentialStore(newMemCache(), &stubSource{creds: map[string]string{}}, map[string]string{
		"openai": "gateway-owned-key",
	})
	rt := router.New(cat, router.NewCircuitBreaker(), store)

	key, project := testProject(domain.ModeAPIKeys)
	_, err := rt.Resolve(context.Background(), key, project, nil, router.Request{RequestedModel: "gpt-4o"})
	if err == nil {
		t.Fatalf("expected an error: api-keys mode must not use the gateway's own fallback credential")
	}
}
