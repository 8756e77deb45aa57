// Package domain holds the relational data model shared across the router,
// the relational store, the usage worker, and the gateway handler: the
// organizations, projects, API keys, IAM rules, and log records that SPEC
// describes in its data model section. Keeping these types in one place
// (rather than re-declaring them per-package) avoids import cycles between
// the components that all read and write them.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is an organization's billing plan.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// RetentionLevel controls whether request/response bodies are persisted on
// a LogRecord.
type RetentionLevel string

const (
	RetentionNone   RetentionLevel = "none"
	RetentionRetain RetentionLevel = "retain"
)

// Organization is the billing unit: it owns credits and a plan.
type Organization struct {
	ID             string
	Credits        decimal.Decimal
	Plan           Plan
	RetentionLevel RetentionLevel
	Status         string

	AutoTopupEnabled  bool
	AutoTopupThreshold decimal.Decimal
	AutoTopupAmount    decimal.Decimal
}

// TransactionStatus is a top-up Transaction's lifecycle state.
type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionSucceeded TransactionStatus = "succeeded"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction records one attempt to add credits to an organization through
// the external payment provider (§4.F's auto top-up probe).
type Transaction struct {
	ID             string
	OrganizationID string
	Amount         decimal.Decimal
	Status         TransactionStatus
	ProviderRef    string
	CreatedAt      time.Time
}

// ProjectMode selects how a project's requests are billed.
type ProjectMode string

const (
	ModeAPIKeys ProjectMode = "api-keys"
	ModeCredits ProjectMode = "credits"
	ModeHybrid  ProjectMode = "hybrid"
)

// Project groups API keys under an organization with a billing mode.
type Project struct {
	ID             string
	OrganizationID string
	Mode           ProjectMode
}

// ApiKeyStatus is an API key's lifecycle state.
type ApiKeyStatus string

const (
	ApiKeyActive   ApiKeyStatus = "active"
	ApiKeyInactive ApiKeyStatus = "inactive"
	ApiKeyDeleted  ApiKeyStatus = "deleted"
)

// ApiKey authenticates a caller and tracks cumulative usage.
type ApiKey struct {
	ID          string
	ProjectID   string
	Token       string
	MaskedToken string
	Status      ApiKeyStatus
	Usage       decimal.Decimal
	UsageLimit  *decimal.Decimal
}

// Active reports whether the key may authenticate a request.
func (k ApiKey) Active() bool {
	return k.Status == ApiKeyActive
}

// RuleType names one of the six IAM rule shapes an ApiKey can carry.
type RuleType string

const (
	RuleAllowModels    RuleType = "allow_models"
	RuleDenyModels     RuleType = "deny_models"
	RuleAllowProviders RuleType = "allow_providers"
	RuleDenyProviders  RuleType = "deny_providers"
	RuleAllowPricing   RuleType = "allow_pricing"
	RuleDenyPricing    RuleType = "deny_pricing"
)

// PricingType names the free/paid split used by pricing IAM rules.
type PricingType string

const (
	PricingFree PricingType = "free"
	PricingPaid PricingType = "paid"
)

// RuleValue is the rule-type-specific payload of an IamRule; only the
// fields relevant to RuleType are populated.
type RuleValue struct {
	Models        []string
	Providers     []string
	PricingType   PricingType
	MaxInputPrice *decimal.Decimal
	MaxOutputPrice *decimal.Decimal
}

// RuleStatus is an IamRule's lifecycle state.
type RuleStatus string

const (
	RuleActive   RuleStatus = "active"
	RuleInactive RuleStatus = "inactive"
)

// IamRule restricts which models/providers/prices an ApiKey may route to.
// With no active rules attached to a key, every candidate is allowed.
type IamRule struct {
	ID       string
	ApiKeyID string
	RuleType RuleType
	Value    RuleValue
	Status   RuleStatus
}

// Active reports whether the rule currently participates in evaluation.
func (r IamRule) Active() bool {
	return r.Status == RuleActive
}

// FinishReason is the unified terminal state of a chat-completion request,
// independent of the upstream provider's own vocabulary.
type FinishReason string

const (
	FinishCompleted    FinishReason = "completed"
	FinishLengthLimit  FinishReason = "length_limit"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls    FinishReason = "tool_calls"
	FinishClientError  FinishReason = "client_error"
	FinishGatewayError FinishReason = "gateway_error"
	FinishUpstreamError FinishReason = "upstream_error"
	FinishCanceled     FinishReason = "canceled"
	FinishUnknown      FinishReason = "unknown"
)

// LogRecord is one gateway request, spanning from routing through to
// billing. The usage worker mutates only CreatedAt, ProcessedAt, Cost and
// the rest is written once by the gateway handler.
type LogRecord struct {
	ID                        string
	RequestID                 string
	OrganizationID            string
	ProjectID                 string
	ApiKeyID                  string
	CreatedAt                 time.Time
	Duration                  time.Duration
	RequestedModel            string
	RequestedProvider         string
	UsedModel                 string
	UsedProvider              string
	Mode                      ProjectMode
	UsedMode                  ProjectMode
	Cached                    bool
	Cost                      *decimal.Decimal
	InputCost                 *decimal.Decimal
	OutputCost                *decimal.Decimal
	RequestCost               *decimal.Decimal
	PromptTokens              *int
	CompletionTokens          *int
	TotalTokens               *int
	ReasoningTokens           *int
	CachedTokens              *int
	HasError                  bool
	UnifiedFinishReason       FinishReason
	ResponseSize              int
	TimeToFirstToken          *time.Duration
	TimeToFirstReasoningToken *time.Duration
	Messages                  string // redacted to "" when RetentionNone
	Content                   string // redacted to "" when RetentionNone
	CustomHeaders             map[string]string
	ProcessedAt               *time.Time
}

// StripRetention clears the fields a RetentionNone organization must not
// persist, per SPEC_FULL.md §4.F's queue-drain step.
func (l *LogRecord) StripRetention() {
	l.Messages = ""
	l.Content = ""
}
