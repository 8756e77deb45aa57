package catalog

import "github.com/shopspring/decimal"

// price is a small helper for writing static per-million-token prices as
// decimal literals without repeating decimal.NewFromFloat at every call site.
func price(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func discount(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func ctx(n int) *int { return &n }

// openAICompatBaseURLs lists the base URL for each OpenAI-compatible
// provider in this catalog beyond the ones with bespoke endpoint handling
// (anthropic, gemini, openai, zai); the other §4.B providers have no entry.
var openAICompatBaseURLs = map[string]string{
	"xai":        "https://api.x.ai/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"perplexity": "https://api.perplexity.ai",
	"mistral":    "https://api.mistral.ai/v1",
}

var staticProviders = []ProviderEntry{
	{ID: "openai", DisplayName: "OpenAI", Color: "#10a37f", Website: "https://openai.com", Status: ProviderActive,
		Capabilities: Capabilities{Streaming: true, Cancellation: true, JSONOutput: true}},
	{ID: "anthropic", DisplayName: "Anthropic", Color: "#d97757", Website: "https://anthropic.com", Status: ProviderActive,
		Capabilities: Capabilities{Streaming: true, Cancellation: true, JSONOutput: false}},
	{ID: "gemini", DisplayName: "Google AI Studio", Color: "#4285f4", Website: "https://ai.google.dev", Status: ProviderActive,
		Capabilities: Capabilities{Streaming: true, Cancellation: true, JSONOutput: true}},
	{ID: "mistral", DisplayName: "Mistral AI", Color: "#ff7000", Website: "https://mistral.ai", Status: ProviderActive,
		Capabilities: Capabilities{Streaming: true, Cancellation: true, JSONOutput: true}},
	{ID: "xai", DisplayName: "xAI", Color: "#000000", Website: "https://x.ai", Status: ProviderActive,
		Capabilities: Capabilities{Streaming: true, Cancellation: true, JSONOutput: true}},
	{ID: "groq", DisplayName: "Groq", Color: "#f55036", Website: "https://groq.com", Status: ProviderActive,
		Capabilities: Capabilities{Streaming: true, Cancellation: true, JSONOutput: true}},
	{ID: "deepseek", DisplayName: "DeepSeek", Color: "#536af5", Website: "https://deepseek.com", Status: ProviderActive,
		Capabilities: Capabilities{Streaming: true, Cancellation: true, JSONOutput: true}},
	{ID: "perplexity", DisplayName: "Perplexity", Color: "#20808d", Website: "https://perplexity.ai", Status: ProviderActive,
		Capabilities: Capabilities{Streaming: true, Cancellation: false, JSONOutput: false}},
	{ID: "zai", DisplayName: "Z AI", Color: "#6e56cf", Website: "https://z.ai", Status: ProviderActive,
		Capabilities: Capabilities{Streaming: true, Cancellation: true, JSONOutput: true}},
}

// staticModels is a representative slice of the catalog, not an exhaustive
// mirror of every SKU a production gateway would carry — enough breadth to
// exercise every codepath named in SPEC_FULL.md §4 (free-tier quota,
// vision, reasoning/Responses-API selection, system-role stripping,
// cross-provider cheapest-pick). No entry here sets DeprecatedAt.
var staticModels = []ModelEntry{
	{
		ID: "gpt-4o", Family: "gpt-4o", SupportsSystemRole: true, JSONOutput: true, Vision: true, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "openai", ModelName: "gpt-4o", InputPrice: price(2.50), OutputPrice: price(10.00),
				ImageInputPrice: price(3.613), ContextSize: ctx(128_000), SupportsResponsesAPI: true, Stability: Stable},
		},
	},
	{
		ID: "gpt-4o-mini", Family: "gpt-4o", SupportsSystemRole: true, JSONOutput: true, Vision: true, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "openai", ModelName: "gpt-4o-mini", InputPrice: price(0.15), OutputPrice: price(0.60),
				ContextSize: ctx(128_000), SupportsResponsesAPI: true, Stability: Stable},
		},
	},
	{
		ID: "o3-mini", Family: "o3", SupportsSystemRole: false, JSONOutput: true, Vision: false, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "openai", ModelName: "o3-mini", InputPrice: price(1.10), OutputPrice: price(4.40),
				ContextSize: ctx(200_000), SupportsResponsesAPI: true, Stability: Stable},
		},
	},
	{
		ID: "gpt-5", Family: "gpt-5", SupportsSystemRole: true, JSONOutput: true, Vision: true, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "openai", ModelName: "gpt-5", InputPrice: price(1.25), OutputPrice: price(10.00),
				ContextSize: ctx(272_000), SupportsResponsesAPI: true, Stability: Stable},
		},
	},
	{
		ID: "claude-sonnet-4-5", Family: "claude-4", SupportsSystemRole: true, JSONOutput: false, Vision: true, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "anthropic", ModelName: "claude-sonnet-4-5-20250929", InputPrice: price(3.00), OutputPrice: price(15.00),
				ImageInputPrice: price(4.80), ContextSize: ctx(200_000), Stability: Stable},
		},
	},
	{
		ID: "claude-haiku-4-5", Family: "claude-4", SupportsSystemRole: true, JSONOutput: false, Vision: true, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "anthropic", ModelName: "claude-haiku-4-5-20251001", InputPrice: price(1.00), OutputPrice: price(5.00),
				ContextSize: ctx(200_000), Stability: Stable},
		},
	},
	{
		ID: "claude-opus-4-1", Family: "claude-4", SupportsSystemRole: true, JSONOutput: false, Vision: true, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "anthropic", ModelName: "claude-opus-4-1-20250805", InputPrice: price(15.00), OutputPrice: price(75.00),
				ContextSize: ctx(200_000), Stability: Stable},
		},
	},
	{
		ID: "gemini-2.5-pro", Family: "gemini-2.5", SupportsSystemRole: true, JSONOutput: true, Vision: true, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "gemini", ModelName: "gemini-2.5-pro", InputPrice: price(1.25), OutputPrice: price(10.00),
				ImageInputPrice: price(0.6245), ContextSize: ctx(1_048_576), Stability: Stable},
		},
	},
	{
		ID: "gemini-2.5-flash", Family: "gemini-2.5", SupportsSystemRole: true, JSONOutput: true, Vision: true, Free: true, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "gemini", ModelName: "gemini-2.5-flash", InputPrice: price(0.30), OutputPrice: price(2.50),
				ContextSize: ctx(1_048_576), Stability: Stable},
		},
	},
	{
		ID: "mistral-large-latest", Family: "mistral-large", SupportsSystemRole: true, JSONOutput: true, Vision: false, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "mistral", ModelName: "mistral-large-latest", InputPrice: price(2.00), OutputPrice: price(6.00),
				ContextSize: ctx(131_000), Stability: Stable},
		},
	},
	{
		ID: "grok-3", Family: "grok-3", SupportsSystemRole: true, JSONOutput: true, Vision: false, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "xai", ModelName: "grok-3", InputPrice: price(3.00), OutputPrice: price(15.00),
				ContextSize: ctx(131_000), Stability: Stable},
		},
	},
	{
		ID: "grok-3-mini", Family: "grok-3", SupportsSystemRole: true, JSONOutput: true, Vision: false, Free: true, Stability: Beta,
		Providers: []ProviderMapping{
			{ProviderID: "xai", ModelName: "grok-3-mini", InputPrice: price(0.30), OutputPrice: price(0.50),
				ContextSize: ctx(131_000), Stability: Beta},
		},
	},
	{
		ID: "llama-3.3-70b-versatile", Family: "llama-3.3", SupportsSystemRole: true, JSONOutput: true, Vision: false, Free: true, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "groq", ModelName: "llama-3.3-70b-versatile", InputPrice: price(0.59), OutputPrice: price(0.79),
				ContextSize: ctx(128_000), Stability: Stable},
		},
	},
	{
		ID: "deepseek-chat", Family: "deepseek", SupportsSystemRole: true, JSONOutput: true, Vision: false, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "deepseek", ModelName: "deepseek-chat", InputPrice: price(0.27), OutputPrice: price(1.10),
				ContextSize: ctx(64_000), Stability: Stable, Discount: discount(0.5)},
		},
	},
	{
		ID: "deepseek-reasoner", Family: "deepseek", SupportsSystemRole: true, JSONOutput: true, Vision: false, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "deepseek", ModelName: "deepseek-reasoner", InputPrice: price(0.55), OutputPrice: price(2.19),
				ContextSize: ctx(64_000), Stability: Stable},
		},
	},
	{
		ID: "sonar", Family: "sonar", SupportsSystemRole: true, JSONOutput: false, Vision: false, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "perplexity", ModelName: "sonar", InputPrice: price(1.00), OutputPrice: price(1.00),
				RequestPrice: price(0.005), ContextSize: ctx(127_000), Stability: Stable},
		},
	},
	{
		// Both Groq and DeepSeek could host the same open model in a real
		// catalog; this entry exists purely to exercise
		// Catalog.CheapestFromAvailable across two candidate providers.
		ID: "llama-3.1-8b-instant", Family: "llama-3.1", SupportsSystemRole: true, JSONOutput: true, Vision: false, Stability: Stable,
		Providers: []ProviderMapping{
			{ProviderID: "groq", ModelName: "llama-3.1-8b-instant", InputPrice: price(0.05), OutputPrice: price(0.08),
				ContextSize: ctx(128_000), Stability: Stable},
			{ProviderID: "deepseek", ModelName: "llama-3.1-8b-instant", InputPrice: price(0.08), OutputPrice: price(0.10),
				ContextSize: ctx(128_000), Stability: Stable},
		},
	},
	{
		// glm-4.5-airx / glm-4.5-flash exist only for the ZAI tool_calls
		// rewrite quirk described in §4.B decoding rules.
		ID: "glm-4.5-flash", Family: "glm-4.5", SupportsSystemRole: true, JSONOutput: true, Vision: false, Free: true, Stability: Beta,
		Providers: []ProviderMapping{
			{ProviderID: "zai", ModelName: "glm-4.5-flash", InputPrice: price(0.0), OutputPrice: price(0.0),
				ContextSize: ctx(128_000), Stability: Beta},
		},
	},
	{
		ID: "glm-4.5-airx", Family: "glm-4.5", SupportsSystemRole: true, JSONOutput: true, Vision: false, Stability: Beta,
		Providers: []ProviderMapping{
			{ProviderID: "zai", ModelName: "glm-4.5-airx", InputPrice: price(0.20), OutputPrice: price(1.10),
				ContextSize: ctx(128_000), Stability: Beta},
		},
	},
}
