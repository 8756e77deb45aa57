// Package translate is the gateway's RequestTranslator: conversion between
// the canonical OpenAI-shaped request/response the gateway speaks to callers
// and each upstream family's wire format. Nothing here performs network I/O —
// internal/gateway owns the HTTP round trip and calls into this package to
// encode the outbound body and decode the inbound one.
package translate

// Request is the canonical chat-completion request the gateway accepts at
// POST /v1/chat/completions, independent of upstream family.
type Request struct {
	Model            string
	Messages         []Message
	Stream           bool
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	ResponseFormat   *ResponseFormat
	Tools            []Tool
	ToolChoice       *ToolChoice
	ReasoningEffort  string // "minimal" | "low" | "medium" | "high"
}

// Message is one canonical conversation turn.
type Message struct {
	Role       string // system | user | assistant | tool
	Content    []ContentPart
	ToolCalls  []ToolCall // populated on assistant messages that called tools
	ToolCallID string     // populated on tool-role messages, addresses a ToolCall.ID
}

// ContentPart is one element of a message's content list. Exactly one of the
// typed fields is populated, selected by Type.
type ContentPart struct {
	Type       string // "text" | "image_url" | "tool_use" | "tool_result"
	Text       string
	ImageURL   *ImageURL
	ToolUse    *ToolCall
	ToolResult *ToolResult
}

// ImageURL is an image content part; URL may be an https:// link or a
// data: URL.
type ImageURL struct {
	URL    string
	Detail string // "auto" | "low" | "high", optional
}

// ToolResult is a tool-role message's content when it references a prior
// ToolCall by id.
type ToolResult struct {
	ToolCallID string
	Content    string
}

// Tool is an OpenAI-shaped function tool declaration.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

// ToolChoice selects how the model should use tools.
type ToolChoice struct {
	Mode     string // "auto" | "none" | "required" | "function"
	FuncName string // populated when Mode == "function"
}

// ToolCall is a single function-call request emitted by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// ResponseFormat mirrors OpenAI's response_format knob.
type ResponseFormat struct {
	Type string // "text" | "json_object" | "json_schema"
}

// Usage is token accounting for one request, always non-negative.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	ReasoningTokens  int
	CachedTokens     int
	TotalTokens      int
}

// Response is the canonical, fully-materialized (non-streaming) reply.
type Response struct {
	ID           string
	Model        string
	Content      string
	Reasoning    string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
	Cached       bool
}

// StreamDelta is one canonical SSE frame's worth of incremental content,
// shaped after OpenAI's choices[0].delta.
type StreamDelta struct {
	Content          string
	Reasoning        string
	ToolCallDeltas   []ToolCallDelta
	FinishReason     string // empty until the final content-bearing frame
	Usage            *Usage // set only on the frame that carries final usage
	Done             bool   // true once the upstream stream is exhausted
}

// ToolCallDelta is an incremental fragment of one tool call, addressed by
// Index the way OpenAI's streaming protocol coalesces argument fragments.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string // fragment to append, not the full value
}
