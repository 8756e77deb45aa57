package router

import (
	"github.com/vectorplane/llmgateway/internal/catalog"
	"github.com/vectorplane/llmgateway/internal/domain"
)

// iamResult is the outcome of evaluating an ApiKey's IAM rules against a
// model and its candidate provider mappings.
type iamResult struct {
	// Candidates still allowed after per-provider denials.
	Candidates []catalog.ProviderMapping
	// DeniedRuleIDs lists the rules behind a denial: when ModelDenied is
	// set, only the first model-wide rule that denied; otherwise every rule
	// that removed a candidate, deduplicated.
	DeniedRuleIDs []string
	// ModelDenied is true when a model-wide rule removed every candidate.
	ModelDenied bool
}

// evaluateIAM implements SPEC_FULL.md §4.C's IAM evaluation: every active
// rule attached to the key is evaluated in order. allow_models/deny_models
// and pricingType-only pricing rules are model-wide: a denial there empties
// the candidate set entirely. allow_providers/deny_providers and
// max{Input,Output}Price pricing checks are per-provider: a denial there
// removes only the offending candidate, leaving the router free to pick
// another. Absence of any active rule allows everything.
func evaluateIAM(rules []domain.IamRule, modelID string, modelFree bool, candidates []catalog.ProviderMapping) iamResult {
	blockedProvider := make(map[string]string) // providerID -> rule id
	var deniedRuleIDs []string
	modelDenied := false
	var modelDenyRuleID string

	denyModel := func(ruleID string) {
		if !modelDenied {
			modelDenied = true
			modelDenyRuleID = ruleID
		}
	}

	for _, rule := range rules {
		if !rule.Active() {
			continue
		}

		switch rule.RuleType {
		case domain.RuleAllowModels:
			if !containsString(rule.Value.Models, modelID) {
				denyModel(rule.ID)
				deniedRuleIDs = append(deniedRuleIDs, rule.ID)
			}

		case domain.RuleDenyModels:
			if containsString(rule.Value.Models, modelID) {
				denyModel(rule.ID)
				deniedRuleIDs = append(deniedRuleIDs, rule.ID)
			}

		case domain.RuleAllowProviders:
			for _, c := range candidates {
				if !containsString(rule.Value.Providers, c.ProviderID) {
					if _, already := blockedProvider[c.ProviderID]; !already {
						blockedProvider[c.ProviderID] = rule.ID
						deniedRuleIDs = append(deniedRuleIDs, rule.ID)
					}
				}
			}

		case domain.RuleDenyProviders:
			for _, c := range candidates {
				if containsString(rule.Value.Providers, c.ProviderID) {
					if _, already := blockedProvider[c.ProviderID]; !already {
						blockedProvider[c.ProviderID] = rule.ID
						deniedRuleIDs = append(deniedRuleIDs, rule.ID)
					}
				}
			}

		case domain.RuleAllowPricing:
			if rule.Value.PricingType != "" {
				wantFree := rule.Value.PricingType == domain.PricingFree
				if wantFree != modelFree {
					denyModel(rule.ID)
					deniedRuleIDs = append(deniedRuleIDs, rule.ID)
				}
				continue
			}
			denyOverPriceCap(rule, candidates, blockedProvider, &deniedRuleIDs)

		case domain.RuleDenyPricing:
			if rule.Value.PricingType != "" {
				denyIsFree := rule.Value.PricingType == domain.PricingFree
				if denyIsFree == modelFree {
					denyModel(rule.ID)
					deniedRuleIDs = append(deniedRuleIDs, rule.ID)
				}
				continue
			}
			denyOverPriceCap(rule, candidates, blockedProvider, &deniedRuleIDs)
		}
	}

	if modelDenied {
		return iamResult{ModelDenied: true, DeniedRuleIDs: []string{modelDenyRuleID}}
	}

	var allowed []catalog.ProviderMapping
	for _, c := range candidates {
		if _, blocked := blockedProvider[c.ProviderID]; !blocked {
			allowed = append(allowed, c)
		}
	}

	return iamResult{Candidates: allowed, DeniedRuleIDs: dedupeStrings(deniedRuleIDs)}
}

// denyOverPriceCap blocks any candidate whose input or output price exceeds
// the rule's configured cap. A candidate missing a price is never denied by
// a price cap (there is nothing to compare).
func denyOverPriceCap(rule domain.IamRule, candidates []catalog.ProviderMapping, blocked map[string]string, deniedRuleIDs *[]string) {
	if rule.Value.MaxInputPrice == nil && rule.Value.MaxOutputPrice == nil {
		return
	}
	for _, c := range candidates {
		exceeds := false
		if rule.Value.MaxInputPrice != nil && c.InputPrice != nil && c.InputPrice.GreaterThan(*rule.Value.MaxInputPrice) {
			exceeds = true
		}
		if rule.Value.MaxOutputPrice != nil && c.OutputPrice != nil && c.OutputPrice.GreaterThan(*rule.Value.MaxOutputPrice) {
			exceeds = true
		}
		if exceeds {
			if _, already := blocked[c.ProviderID]; !already {
				blocked[c.ProviderID] = rule.ID
				*deniedRuleIDs = append(*deniedRuleIDs, rule.ID)
			}
		}
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
