package translate

import "encoding/json"

type openAIChatResponse struct {
	ID      string              `json:"id"`
	Model   string              `json:"model"`
	Choices []openAIChatChoice  `json:"choices"`
	Usage   *openAIChatUsage    `json:"usage,omitempty"`
}

type openAIChatChoice struct {
	Index        int               `json:"index"`
	Message      openAIChatMessage `json:"message"`
	Delta        openAIChatMessage `json:"delta"`
	FinishReason string            `json:"finish_reason"`
}

type openAIChatUsage struct {
	PromptTokens            int                        `json:"prompt_tokens"`
	CompletionTokens        int                        `json:"completion_tokens"`
	TotalTokens              int                       `json:"total_tokens"`
	CompletionTokensDetails *openAICompletionTokenInfo `json:"completion_tokens_details,omitempty"`
	PromptTokensDetails     *openAIPromptTokenInfo     `json:"prompt_tokens_details,omitempty"`
}

type openAICompletionTokenInfo struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

type openAIPromptTokenInfo struct {
	CachedTokens int `json:"cached_tokens"`
}

// DecodeOpenAIChat decodes a non-streaming OpenAI chat-completions response
// into the canonical Response shape.
func DecodeOpenAIChat(raw []byte) (*Response, error) {
	var wire openAIChatResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}

	resp := &Response{ID: wire.ID, Model: wire.Model}
	if len(wire.Choices) > 0 {
		c := wire.Choices[0]
		resp.FinishReason = c.FinishReason
		if s, ok := c.Message.Content.(string); ok {
			resp.Content = s
		} else if parts, ok := c.Message.Content.([]any); ok {
			resp.Content = joinOpenAIContentParts(parts)
		}
		for _, tc := range c.Message.ToolCalls {
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}

	if wire.Usage != nil {
		resp.Usage.PromptTokens = wire.Usage.PromptTokens
		resp.Usage.CompletionTokens = wire.Usage.CompletionTokens
		resp.Usage.TotalTokens = wire.Usage.TotalTokens
		if wire.Usage.CompletionTokensDetails != nil {
			resp.Usage.ReasoningTokens = wire.Usage.CompletionTokensDetails.ReasoningTokens
		}
		if wire.Usage.PromptTokensDetails != nil {
			resp.Usage.CachedTokens = wire.Usage.PromptTokensDetails.CachedTokens
		}
	}

	return resp, nil
}

func joinOpenAIContentParts(parts []any) string {
	var out string
	for _, raw := range parts {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := m["type"].(string); t == "text" {
			if text, _ := m["text"].(string); text != "" {
				out += text
			}
		}
	}
	return out
}

type openAIResponsesWire struct {
	ID     string                  `json:"id"`
	Model  string                  `json:"model"`
	Status string                  `json:"status"`
	Output []openAIResponsesOutput `json:"output"`
	Usage  *openAIResponsesUsage   `json:"usage,omitempty"`
}

type openAIResponsesOutput struct {
	Type    string                 `json:"type"` // message | reasoning | function_call
	Content []openAIContentPart    `json:"content,omitempty"`
	Summary []openAIResponsesPiece `json:"summary,omitempty"`
	Name    string                 `json:"name,omitempty"`
	Arguments string               `json:"arguments,omitempty"`
	CallID  string                 `json:"call_id,omitempty"`
}

type openAIResponsesPiece struct {
	Text string `json:"text"`
}

type openAIResponsesUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	OutputTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
	TotalTokens int `json:"total_tokens"`
}

// DecodeOpenAIResponses decodes a non-streaming OpenAI Responses API reply.
func DecodeOpenAIResponses(raw []byte) (*Response, error) {
	var wire openAIResponsesWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}

	resp := &Response{ID: wire.ID, Model: wire.Model}
	var hasToolCalls bool

	for _, o := range wire.Output {
		switch o.Type {
		case "message":
			for _, c := range o.Content {
				resp.Content += c.Text
			}
		case "reasoning":
			if len(o.Summary) > 0 {
				resp.Reasoning += o.Summary[0].Text
			}
		case "function_call":
			hasToolCalls = true
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        o.CallID,
				Name:      o.Name,
				Arguments: o.Arguments,
			})
		}
	}

	switch {
	case wire.Status == "completed" && hasToolCalls:
		resp.FinishReason = "tool_calls"
	case wire.Status == "completed":
		resp.FinishReason = "stop"
	default:
		resp.FinishReason = wire.Status
	}

	if wire.Usage != nil {
		resp.Usage.PromptTokens = wire.Usage.InputTokens
		resp.Usage.CompletionTokens = wire.Usage.OutputTokens
		resp.Usage.ReasoningTokens = wire.Usage.OutputTokensDetails.ReasoningTokens
		resp.Usage.TotalTokens = wire.Usage.TotalTokens
	}

	return resp, nil
}
