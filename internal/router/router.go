// Package router implements SPEC_FULL.md §4.C's Router: resolving a
// canonical chat-completion request to a concrete (provider, model,
// endpoint, credentials) tuple, applying IAM policy and circuit-breaker-
// aware failover along the way.
package router

import (
	"context"

	"github.com/vectorplane/llmgateway/internal/catalog"
	"github.com/vectorplane/llmgateway/internal/domain"
	"github.com/vectorplane/llmgateway/pkg/apierr"
)

// defaultModelID is used when the caller requests the synthetic "auto" or
// "custom" model, or names no model at all.
const defaultModelID = "gpt-4o-mini"

// Resolved is the outcome of routing one request: enough to dispatch it
// upstream and, later, to compute cost and build a LogRecord.
type Resolved struct {
	Model     catalog.ModelEntry
	Candidate catalog.ProviderMapping
	Endpoint  string
	Token     string
	UsedMode  domain.ProjectMode
}

// Request carries Router.Resolve's inputs beyond the ApiKey/Project/rules
// triple: the bits of the canonical chat-completion request routing needs.
type Request struct {
	RequestedModel       string // may be catalog.ModelEntry.ID, or "auto"/"custom"
	PinnedProvider       string // set when the caller pinned "provider/model"
	Stream               bool
	SupportsReasoning    bool
	HasExistingToolCalls bool
}

// Router resolves canonical requests to upstream dispatch targets.
type Router struct {
	catalog *catalog.Catalog
	cb      *CircuitBreaker
	creds   *CredentialStore
}

// New builds a Router over cat, consulting cb for failover and creds for
// provider credentials.
func New(cat *catalog.Catalog, cb *CircuitBreaker, creds *CredentialStore) *Router {
	return &Router{catalog: cat, cb: cb, creds: creds}
}

// Resolve implements §4.C's five steps. key and project must already be
// loaded (step 1's ApiKey-by-token lookup is the caller's responsibility,
// since it requires a database round trip Router deliberately does not
// make); Resolve re-validates key.Active() defensively.
func (r *Router) Resolve(ctx context.Context, key domain.ApiKey, project domain.Project, rules []domain.IamRule, req Request) (*Resolved, error) {
	if !key.Active() {
		return nil, apierr.New(apierr.Unauthorized, "api key is not active")
	}

	modelID := req.RequestedModel
	if modelID == "auto" || modelID == "custom" || modelID == "" {
		modelID = defaultModelID
	}

	model, ok := r.catalog.FindModel(modelID)
	if !ok {
		return nil, apierr.Newf(apierr.NotFound, "unknown model %q", modelID)
	}

	candidates := r.stableCandidates(model)
	if len(candidates) == 0 {
		return nil, apierr.Newf(apierr.NotFound, "model %q has no eligible provider mapping", modelID)
	}

	iam := evaluateIAM(rules, model.ID, model.Free, candidates)
	if iam.ModelDenied || len(iam.Candidates) == 0 {
		return nil, apierr.New(apierr.Forbidden, "no iam-passing candidate for this model").WithRules(iam.DeniedRuleIDs)
	}

	ordered, err := r.order(iam.Candidates, req.PinnedProvider)
	if err != nil {
		return nil, err
	}

	return r.dispatch(ctx, project, ordered, model, req)
}

// stableCandidates returns model's provider mappings minus any in
// catalog.Experimental stability, which require an explicit pin.
func (r *Router) stableCandidates(model catalog.ModelEntry) []catalog.ProviderMapping {
	out := make([]catalog.ProviderMapping, 0, len(model.Providers))
	for _, pm := range model.Providers {
		if pm.Stability == catalog.Experimental {
			continue
		}
		out = append(out, pm)
	}
	return out
}

// order picks the dispatch order for the candidate set: a single pinned
// candidate when the caller named "provider/model", else every candidate
// ranked cheapest-first so failover (§10.6) walks toward the next-cheapest
// option when the leader's circuit breaker is open.
func (r *Router) order(candidates []catalog.ProviderMapping, pinnedProvider string) ([]catalog.ProviderMapping, error) {
	if pinnedProvider == "" {
		return rankByPrice(candidates), nil
	}

	for _, c := range candidates {
		if c.ProviderID == pinnedProvider {
			return []catalog.ProviderMapping{c}, nil
		}
	}
	return nil, apierr.Newf(apierr.NotFound, "provider %q does not serve this model (or was denied by iam policy)", pinnedProvider)
}

// rankByPrice sorts candidates cheapest discount-adjusted-average-price
// first; unpriced candidates sort last in their original relative order.
func rankByPrice(candidates []catalog.ProviderMapping) []catalog.ProviderMapping {
	priced := make([]catalog.ProviderMapping, 0, len(candidates))
	unpriced := make([]catalog.ProviderMapping, 0)
	remaining := append([]catalog.ProviderMapping(nil), candidates...)

	cat := &catalog.Catalog{} // scoring only; CheapestFromAvailable needs no model lookups
	for len(remaining) > 0 {
		best, ok := cat.CheapestFromAvailable(remaining)
		if !ok {
			unpriced = append(unpriced, remaining...)
			break
		}
		priced = append(priced, best)
		remaining = removeMapping(remaining, best)
	}
	return append(priced, unpriced...)
}

func removeMapping(candidates []catalog.ProviderMapping, target catalog.ProviderMapping) []catalog.ProviderMapping {
	out := make([]catalog.ProviderMapping, 0, len(candidates)-1)
	removed := false
	for _, c := range candidates {
		if !removed && c.ProviderID == target.ProviderID && c.ModelName == target.ModelName {
			removed = true
			continue
		}
		out = append(out, c)
	}
	return out
}

// dispatch walks ordered candidates, skipping any whose circuit breaker is
// open, and resolves credentials for the first that has them. It returns
// payment_required/bad_request when every IAM-passing, breaker-closed
// candidate lacks a usable credential, and upstream_error when every
// candidate's breaker is open.
func (r *Router) dispatch(ctx context.Context, project domain.Project, ordered []catalog.ProviderMapping, model catalog.ModelEntry, req Request) (*Resolved, error) {
	anyBreakerClosed := false

	for _, candidate := range ordered {
		if r.cb != nil && !r.cb.Allow(candidate.ProviderID) {
			continue
		}
		anyBreakerClosed = true

		token, usedMode, ok := r.resolveCredential(ctx, project, candidate.ProviderID)
		if !ok {
			continue
		}

		endpoint := r.catalog.EndpointFor(candidate.ProviderID, catalog.EndpointOptions{
			ModelName:            candidate.ModelName,
			Token:                token,
			Stream:               req.Stream,
			SupportsReasoning:    req.SupportsReasoning,
			HasExistingToolCalls: req.HasExistingToolCalls,
		})

		return &Resolved{
			Model:     model,
			Candidate: candidate,
			Endpoint:  endpoint,
			Token:     token,
			UsedMode:  usedMode,
		}, nil
	}

	if !anyBreakerClosed {
		return nil, apierr.New(apierr.UpstreamError, "every candidate provider is circuit-open")
	}

	if project.Mode == domain.ModeAPIKeys {
		return nil, apierr.New(apierr.BadRequest, "no provider is configured with credentials for this model")
	}
	return nil, apierr.New(apierr.PaymentRequired, "no provider credentials available for this model")
}

// resolveCredential looks up the project's own credential for providerID,
// falling back to the gateway's own credential when the project's billing
// mode allows it.
func (r *Router) resolveCredential(ctx context.Context, project domain.Project, providerID string) (string, domain.ProjectMode, bool) {
	if token, ok := r.creds.Lookup(ctx, project.OrganizationID, providerID); ok {
		return token, domain.ModeAPIKeys, true
	}

	if project.Mode == domain.ModeCredits || project.Mode == domain.ModeHybrid {
		if token, ok := r.creds.Fallback(providerID); ok {
			return token, domain.ModeCredits, true
		}
	}

	return "", "", false
}
