package catalog_test

import (
	"testing"

	"github.com/vectorplane/llmgateway/internal/catalog"
)

func TestNew_NoDuplicateModelIDs(t *testing.T) {
	// New() panics on a duplicate id; constructing it at all is the assertion.
	_ = catalog.New()
}

func TestFindModel(t *testing.T) {
	c := catalog.New()

	m, ok := c.FindModel("gpt-4o")
	if !ok {
		t.Fatalf("expected gpt-4o to be found")
	}
	if !m.Vision {
		t.Fatalf("expected gpt-4o to be vision-capable")
	}

	if _, ok := c.FindModel("does-not-exist"); ok {
		t.Fatalf("expected does-not-exist to be absent")
	}
}

func TestFindProvider(t *testing.T) {
	c := catalog.New()

	p, ok := c.FindProvider("anthropic")
	if !ok {
		t.Fatalf("expected anthropic provider to be found")
	}
	if p.DisplayName != "Anthropic" {
		t.Fatalf("unexpected display name: %q", p.DisplayName)
	}
	if !p.Capabilities.Streaming {
		t.Fatalf("expected anthropic to support streaming")
	}
}

func TestCheapestModelFor(t *testing.T) {
	c := catalog.New()

	name, ok := c.CheapestModelFor("openai")
	if !ok {
		t.Fatalf("expected a cheapest openai model")
	}
	if name != "gpt-4o-mini" {
		t.Fatalf("expected gpt-4o-mini to be cheapest openai model, got %q", name)
	}
}

func TestCheapestModelFor_UnknownProvider(t *testing.T) {
	c := catalog.New()

	if _, ok := c.CheapestModelFor("nobody"); ok {
		t.Fatalf("expected no cheapest model for an unknown provider")
	}
}

func TestCheapestFromAvailable(t *testing.T) {
	c := catalog.New()

	candidates := c.ProvidersOf("llama-3.1-8b-instant")
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidate providers, got %d", len(candidates))
	}

	best, ok := c.CheapestFromAvailable(candidates)
	if !ok {
		t.Fatalf("expected a cheapest candidate")
	}
	if best.ProviderID != "groq" {
		t.Fatalf("expected groq to be cheapest, got %q", best.ProviderID)
	}
}

func TestCheapestFromAvailable_SkipsUnpriced(t *testing.T) {
	c := catalog.New()

	unpriced := catalog.ProviderMapping{ProviderID: "mystery", ModelName: "m"}
	priced := c.ProvidersOf("grok-3")[0]

	best, ok := c.CheapestFromAvailable([]catalog.ProviderMapping{unpriced, priced})
	if !ok {
		t.Fatalf("expected a cheapest candidate despite one unpriced entry")
	}
	if best.ProviderID != "xai" {
		t.Fatalf("expected xai to win over the unpriced mystery entry, got %q", best.ProviderID)
	}
}

func TestEndpointFor(t *testing.T) {
	c := catalog.New()

	cases := []struct {
		name     string
		provider string
		opts     catalog.EndpointOptions
		want     string
	}{
		{
			name:     "anthropic",
			provider: "anthropic",
			opts:     catalog.EndpointOptions{},
			want:     "https://api.anthropic.com/v1/messages",
		},
		{
			name:     "gemini non-streaming",
			provider: "gemini",
			opts:     catalog.EndpointOptions{ModelName: "gemini-2.5-pro", Token: "tok"},
			want:     "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-pro:generateContent?key=tok",
		},
		{
			name:     "gemini streaming",
			provider: "gemini",
			opts:     catalog.EndpointOptions{ModelName: "gemini-2.5-pro", Token: "tok", Stream: true},
			want:     "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-pro:streamGenerateContent?key=tok&alt=sse",
		},
		{
			name:     "openai chat completions without reasoning",
			provider: "openai",
			opts:     catalog.EndpointOptions{ModelName: "gpt-4o"},
			want:     "https://api.openai.com/v1/chat/completions",
		},
		{
			name:     "openai responses api with reasoning and no prior tool calls",
			provider: "openai",
			opts:     catalog.EndpointOptions{ModelName: "o3-mini", SupportsReasoning: true},
			want:     "https://api.openai.com/v1/responses",
		},
		{
			name:     "openai falls back to chat completions once tool calls exist",
			provider: "openai",
			opts:     catalog.EndpointOptions{ModelName: "o3-mini", SupportsReasoning: true, HasExistingToolCalls: true},
			want:     "https://api.openai.com/v1/chat/completions",
		},
		{
			name:     "zai",
			provider: "zai",
			opts:     catalog.EndpointOptions{},
			want:     "https://api.z.ai/api/paas/v4/chat/completions",
		},
		{
			name:     "generic openai-compatible",
			provider: "groq",
			opts:     catalog.EndpointOptions{},
			want:     "https://api.groq.com/openai/v1/chat/completions",
		},
		{
			name:     "unknown provider",
			provider: "nobody",
			opts:     catalog.EndpointOptions{},
			want:     "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.EndpointFor(tc.provider, tc.opts)
			if got != tc.want {
				t.Fatalf("EndpointFor(%q) = %q, want %q", tc.provider, got, tc.want)
			}
		})
	}
}

func TestHeadersFor(t *testing.T) {
	c := catalog.New()

	anthropicHeaders := c.HeadersFor("anthropic", "tok")
	if anthropicHeaders["x-api-key"] != "tok" {
		t.Fatalf("expected anthropic x-api-key header to carry the token")
	}
	if anthropicHeaders["anthropic-version"] == "" {
		t.Fatalf("expected anthropic-version header to be set")
	}

	geminiHeaders := c.HeadersFor("gemini", "tok")
	if len(geminiHeaders) != 0 {
		t.Fatalf("expected gemini to carry no auth headers, got %v", geminiHeaders)
	}

	defaultHeaders := c.HeadersFor("groq", "tok")
	if defaultHeaders["Authorization"] != "Bearer tok" {
		t.Fatalf("expected bearer auth header, got %v", defaultHeaders)
	}
}

func TestStripProviderPrefix(t *testing.T) {
	cases := []struct {
		provider string
		model    string
		want     string
	}{
		{"inference", "inference/llama-3.1-70b", "llama-3.1-70b"},
		{"together", "meta-llama/Llama-3.1-70b", "meta-llama/Llama-3.1-70b"},
		{"inference", "llama-3.1-70b", "llama-3.1-70b"},
	}

	for _, tc := range cases {
		got := catalog.StripProviderPrefix(tc.provider, tc.model)
		if got != tc.want {
			t.Fatalf("StripProviderPrefix(%q, %q) = %q, want %q", tc.provider, tc.model, got, tc.want)
		}
	}
}
