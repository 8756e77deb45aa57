package translate

import (
	"strings"

	"github.com/vectorplane/llmgateway/internal/catalog"
)

// openAIChatRequest mirrors OpenAI's public chat-completions wire schema.
type openAIChatRequest struct {
	Model               string               `json:"model"`
	Messages            []openAIChatMessage  `json:"messages"`
	Stream              bool                 `json:"stream,omitempty"`
	StreamOptions       *openAIStreamOptions `json:"stream_options,omitempty"`
	Temperature         *float64             `json:"temperature,omitempty"`
	MaxTokens           *int                 `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int                 `json:"max_completion_tokens,omitempty"`
	TopP                *float64             `json:"top_p,omitempty"`
	FrequencyPenalty    *float64             `json:"frequency_penalty,omitempty"`
	PresencePenalty     *float64             `json:"presence_penalty,omitempty"`
	ResponseFormat      *openAIRespFormat    `json:"response_format,omitempty"`
	Tools               []openAITool         `json:"tools,omitempty"`
	ToolChoice          any                  `json:"tool_choice,omitempty"`
	ReasoningEffort     string               `json:"reasoning_effort,omitempty"`
}

type openAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIRespFormat struct {
	Type string `json:"type"`
}

type openAIChatMessage struct {
	Role       string             `json:"role"`
	Content    any                `json:"content,omitempty"` // string or []openAIContentPart
	ToolCalls  []openAIToolCall   `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
}

type openAIContentPart struct {
	Type     string           `json:"type"`
	Text     string           `json:"text,omitempty"`
	ImageURL *openAIImageURL  `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIToolCallFunc `json:"function"`
}

type openAIToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

func encodeOpenAIMessages(msgs []Message, supportsSystemRole bool) []openAIChatMessage {
	out := make([]openAIChatMessage, 0, len(msgs))
	for _, m := range msgs {
		role := m.Role
		if role == "system" && !supportsSystemRole {
			role = "user"
		}

		om := openAIChatMessage{Role: role, ToolCallID: m.ToolCallID}

		if len(m.ToolCalls) > 0 {
			for _, tc := range m.ToolCalls {
				om.ToolCalls = append(om.ToolCalls, openAIToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openAIToolCallFunc{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		}

		om.Content = encodeOpenAIContent(m.Content)
		out = append(out, om)
	}
	return out
}

// encodeOpenAIContent collapses a pure-text content list into a plain string
// (matches how most clients send single-turn text) and otherwise emits the
// typed content-part array.
func encodeOpenAIContent(parts []ContentPart) any {
	if len(parts) == 0 {
		return ""
	}

	onlyText := true
	for _, p := range parts {
		if p.Type != "text" {
			onlyText = false
			break
		}
	}
	if onlyText {
		var sb strings.Builder
		for _, p := range parts {
			sb.WriteString(p.Text)
		}
		return sb.String()
	}

	out := make([]openAIContentPart, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case "text":
			out = append(out, openAIContentPart{Type: "text", Text: p.Text})
		case "image_url":
			if p.ImageURL != nil {
				out = append(out, openAIContentPart{
					Type:     "image_url",
					ImageURL: &openAIImageURL{URL: p.ImageURL.URL, Detail: p.ImageURL.Detail},
				})
			}
		case "tool_result":
			if p.ToolResult != nil {
				out = append(out, openAIContentPart{Type: "text", Text: p.ToolResult.Content})
			}
		}
	}
	return out
}

func encodeOpenAITools(tools []Tool) []openAITool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openAITool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openAITool{
			Type: "function",
			Function: openAIToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func encodeOpenAIToolChoice(tc *ToolChoice) any {
	if tc == nil {
		return nil
	}
	switch tc.Mode {
	case "function":
		return map[string]any{
			"type":     "function",
			"function": map[string]string{"name": tc.FuncName},
		}
	case "":
		return nil
	default:
		return tc.Mode
	}
}

// hasToolTurn reports whether the conversation already contains a tool call
// or tool result, which disqualifies the OpenAI Responses API per §4.B.
func hasToolTurn(msgs []Message) bool {
	for _, m := range msgs {
		if len(m.ToolCalls) > 0 || m.ToolCallID != "" {
			return true
		}
		for _, p := range m.Content {
			if p.Type == "tool_use" || p.Type == "tool_result" {
				return true
			}
		}
	}
	return false
}

// EncodeOpenAIChat builds the OpenAI chat-completions request body for req
// against the resolved catalog model entry.
func EncodeOpenAIChat(req *Request, model catalog.ModelEntry, wireModel string) ([]byte, error) {
	body := openAIChatRequest{
		Model:            wireModel,
		Messages:         encodeOpenAIMessages(req.Messages, model.SupportsSystemRole),
		Stream:           req.Stream,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Tools:            encodeOpenAITools(req.Tools),
		ToolChoice:       encodeOpenAIToolChoice(req.ToolChoice),
		ReasoningEffort:  req.ReasoningEffort,
	}

	if req.ResponseFormat != nil {
		body.ResponseFormat = &openAIRespFormat{Type: req.ResponseFormat.Type}
	}
	if req.Stream {
		body.StreamOptions = &openAIStreamOptions{IncludeUsage: true}
	}
	if strings.HasPrefix(wireModel, "gpt-5") {
		one := 1.0
		body.Temperature = &one
		body.MaxCompletionTokens = body.MaxTokens
		body.MaxTokens = nil
	}

	return marshalJSON(body)
}

// SupportsOpenAIResponsesAPI reports whether req should use the Responses
// API against wireModel, per §4.B: the mapping opts in, reasoning was
// requested, and no tool-call turn precedes this request.
func SupportsOpenAIResponsesAPI(req *Request, model catalog.ModelEntry, wireModel string) bool {
	if req.ReasoningEffort == "" || hasToolTurn(req.Messages) {
		return false
	}
	for _, pm := range model.Providers {
		if pm.ProviderID == "openai" && pm.ModelName == wireModel {
			return pm.SupportsResponsesAPI
		}
	}
	return false
}

type openAIResponsesRequest struct {
	Model          string                  `json:"model"`
	Input          []openAIChatMessage     `json:"input"`
	Reasoning      *openAIReasoningOptions `json:"reasoning,omitempty"`
	Tools          []openAITool            `json:"tools,omitempty"`
	ToolChoice     any                     `json:"tool_choice,omitempty"`
	Temperature    *float64                `json:"temperature,omitempty"`
	MaxOutputTokens *int                   `json:"max_output_tokens,omitempty"`
	Stream         bool                    `json:"stream,omitempty"`
}

type openAIReasoningOptions struct {
	Effort  string `json:"effort"`
	Summary string `json:"summary"`
}

// EncodeOpenAIResponses builds the OpenAI Responses API request body.
func EncodeOpenAIResponses(req *Request, model catalog.ModelEntry, wireModel string) ([]byte, error) {
	body := openAIResponsesRequest{
		Model: wireModel,
		Input: encodeOpenAIMessages(req.Messages, model.SupportsSystemRole),
		Reasoning: &openAIReasoningOptions{
			Effort:  req.ReasoningEffort,
			Summary: "detailed",
		},
		Tools:           encodeOpenAITools(req.Tools),
		ToolChoice:      encodeOpenAIToolChoice(req.ToolChoice),
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxTokens,
		Stream:          req.Stream,
	}
	return marshalJSON(body)
}
