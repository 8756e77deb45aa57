// Package catalog is the gateway's ProviderRegistry: a static, read-only
// lookup surface over providers and models with pricing, capabilities,
// deprecation, and stability. Nothing in this package talks to the network
// or a database — it is loaded once at boot from the in-process tables in
// data.go, mirroring the teacher gateway's table-driven endpoint/header
// dispatch generalized into a pure catalog per SPEC_FULL.md §4.A.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Stability mirrors §3's ModelCatalogEntry.stability enum.
type Stability string

const (
	Stable       Stability = "stable"
	Beta         Stability = "beta"
	Unstable     Stability = "unstable"
	Experimental Stability = "experimental"
)

// ProviderStatus mirrors §3's ProviderCatalogEntry.status enum.
type ProviderStatus string

const (
	ProviderActive   ProviderStatus = "active"
	ProviderInactive ProviderStatus = "inactive"
)

// Capabilities is a provider-level capability flag set.
type Capabilities struct {
	Streaming    bool
	Cancellation bool
	JSONOutput   bool
}

// ProviderEntry is a static ProviderCatalogEntry (§3). Immutable after load.
type ProviderEntry struct {
	ID           string
	DisplayName  string
	Capabilities Capabilities
	Color        string
	Website      string
	Status       ProviderStatus
}

// ProviderMapping is a (model, provider) pairing with pricing and capability
// metadata (§3's ProviderMapping).
type ProviderMapping struct {
	ProviderID    string
	ModelName     string // upstream wire name
	InputPrice    *decimal.Decimal
	OutputPrice   *decimal.Decimal
	ImageInputPrice *decimal.Decimal
	RequestPrice  *decimal.Decimal
	ContextSize   *int
	SupportedParameters []string
	SupportsResponsesAPI bool
	Discount      *decimal.Decimal // (0,1]
	Stability     Stability
}

// ModelEntry is a static ModelCatalogEntry (§3). id is unique across the catalog.
type ModelEntry struct {
	ID                 string
	Family             string
	SupportsSystemRole bool
	JSONOutput         bool
	Vision             bool
	Free               bool
	Stability          Stability
	DeprecatedAt       *time.Time
	Providers          []ProviderMapping
}

// Catalog is the loaded, immutable provider/model registry.
type Catalog struct {
	providers map[string]ProviderEntry
	models    map[string]ModelEntry
}

// New builds a Catalog from the static tables in data.go. Panics on a
// duplicate model id — that is a programming error in the catalog data, not
// a runtime condition callers need to handle.
func New() *Catalog {
	c := &Catalog{
		providers: make(map[string]ProviderEntry, len(staticProviders)),
		models:    make(map[string]ModelEntry, len(staticModels)),
	}
	for _, p := range staticProviders {
		c.providers[p.ID] = p
	}
	for _, m := range staticModels {
		if _, dup := c.models[m.ID]; dup {
			panic(fmt.Sprintf("catalog: duplicate model id %q", m.ID))
		}
		c.models[m.ID] = m
	}
	return c
}

// FindModel looks up a model by id.
func (c *Catalog) FindModel(id string) (ModelEntry, bool) {
	m, ok := c.models[id]
	return m, ok
}

// FindProvider looks up a provider by id.
func (c *Catalog) FindProvider(id string) (ProviderEntry, bool) {
	p, ok := c.providers[id]
	return p, ok
}

// ProvidersOf returns the provider mappings for a model id, or nil if the
// model is unknown.
func (c *Catalog) ProvidersOf(modelID string) []ProviderMapping {
	m, ok := c.models[modelID]
	if !ok {
		return nil
	}
	return m.Providers
}

// score computes the discount-adjusted average price used to rank mappings;
// a mapping missing either price is excluded by the caller before scoring.
func score(m ProviderMapping) decimal.Decimal {
	avg := m.InputPrice.Add(*m.OutputPrice).Div(decimal.NewFromInt(2))
	if m.Discount != nil {
		avg = avg.Mul(*m.Discount)
	}
	return avg
}

// CheapestModelFor returns the upstream wire model name with the lowest
// discount-adjusted average price among providerID's non-deprecated,
// fully-priced mappings.
func (c *Catalog) CheapestModelFor(providerID string) (string, bool) {
	var best *ProviderMapping
	var bestScore decimal.Decimal

	for _, m := range c.models {
		if m.DeprecatedAt != nil {
			continue
		}
		for i := range m.Providers {
			pm := m.Providers[i]
			if pm.ProviderID != providerID {
				continue
			}
			if pm.InputPrice == nil || pm.OutputPrice == nil {
				continue
			}
			s := score(pm)
			if best == nil || s.LessThan(bestScore) {
				cp := pm
				best = &cp
				bestScore = s
			}
		}
	}

	if best == nil {
		return "", false
	}
	return best.ModelName, true
}

// CheapestFromAvailable picks the lowest discount-adjusted-average-price
// mapping among candidates. Candidates missing a price are skipped; if none
// qualify, ok is false.
func (c *Catalog) CheapestFromAvailable(candidates []ProviderMapping) (ProviderMapping, bool) {
	var best *ProviderMapping
	var bestScore decimal.Decimal

	for i := range candidates {
		pm := candidates[i]
		if pm.InputPrice == nil || pm.OutputPrice == nil {
			continue
		}
		s := score(pm)
		if best == nil || s.LessThan(bestScore) {
			cp := pm
			best = &cp
			bestScore = s
		}
	}

	if best == nil {
		return ProviderMapping{}, false
	}
	return *best, true
}

// EndpointOptions carries the inputs EndpointFor needs beyond providerID.
type EndpointOptions struct {
	ModelName            string
	Token                string
	Stream               bool
	SupportsReasoning    bool
	HasExistingToolCalls bool
}

// EndpointFor returns the upstream URL for a request, table-driven per
// §4.A. The Responses API is selected only for OpenAI when the model
// supports it, reasoning is requested, and no tool-call turn precedes it —
// this mirrors §4.B's Responses-API-vs-chat-completions selection rule,
// which RequestTranslator also consults independently when shaping the body.
func (c *Catalog) EndpointFor(providerID string, opts EndpointOptions) string {
	switch providerID {
	case "anthropic":
		return "https://api.anthropic.com/v1/messages"
	case "gemini":
		verb := "generateContent"
		if opts.Stream {
			verb = "streamGenerateContent"
		}
		url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:%s?key=%s",
			opts.ModelName, verb, opts.Token)
		if opts.Stream {
			url += "&alt=sse"
		}
		return url
	case "openai":
		if opts.SupportsReasoning && !opts.HasExistingToolCalls {
			if m, ok := c.FindModel(opts.ModelName); ok {
				for _, pm := range m.Providers {
					if pm.ProviderID == "openai" && pm.SupportsResponsesAPI {
						return "https://api.openai.com/v1/responses"
					}
				}
			}
		}
		return "https://api.openai.com/v1/chat/completions"
	case "zai":
		return "https://api.z.ai/api/paas/v4/chat/completions"
	default:
		if base, ok := openAICompatBaseURLs[providerID]; ok {
			return base + "/chat/completions"
		}
		return ""
	}
}

// HeadersFor returns the auth headers for providerID, table-driven per
// §4.A. Google AI Studio passes its key in the URL (see EndpointFor), so it
// returns an empty set here.
func (c *Catalog) HeadersFor(providerID, token string) map[string]string {
	switch providerID {
	case "anthropic":
		return map[string]string{
			"x-api-key":         token,
			"anthropic-version": "2023-06-01",
			"anthropic-beta":    "tools-2024-04-04",
		}
	case "gemini":
		return map[string]string{}
	default:
		return map[string]string{
			"Authorization": "Bearer " + token,
		}
	}
}

// MappingRef identifies one (model, provider) pairing by id, the unit
// StatsCalculator (G) zero-fills a minute-history row for even when a
// mapping saw no traffic in that minute.
type MappingRef struct {
	ModelID    string
	ProviderID string
}

// ActiveMappingRefs lists every (model, provider) pairing for non-deprecated
// models, used by the minute-history rollup to upsert a zero-counter row
// for mappings with no log activity in the minute.
func (c *Catalog) ActiveMappingRefs() []MappingRef {
	var out []MappingRef
	for _, m := range c.models {
		if m.DeprecatedAt != nil {
			continue
		}
		for _, pm := range m.Providers {
			out = append(out, MappingRef{ModelID: m.ID, ProviderID: pm.ProviderID})
		}
	}
	return out
}

// ActiveModelIDs lists every non-deprecated model id, the per-model analog
// of ActiveMappingRefs.
func (c *Catalog) ActiveModelIDs() []string {
	var out []string
	for _, m := range c.models {
		if m.DeprecatedAt != nil {
			continue
		}
		out = append(out, m.ID)
	}
	return out
}

// StripProviderPrefix removes an "{provider}/" prefix from a wire model
// name, as required for inference.net/together.ai encoding (§4.B).
func StripProviderPrefix(providerID, modelName string) string {
	prefix := providerID + "/"
	return strings.TrimPrefix(modelName, prefix)
}
