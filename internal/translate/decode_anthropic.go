package translate

import "encoding/json"

type anthropicResponse struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// anthropicContentOut extends anthropicContent with the "thinking" block the
// response side carries but a request never sends.
type anthropicContentOut struct {
	anthropicContent
	Thinking string `json:"thinking,omitempty"`
}

// DecodeAnthropic decodes a non-streaming Anthropic Messages API response.
func DecodeAnthropic(raw []byte) (*Response, error) {
	var wire struct {
		ID         string                `json:"id"`
		Model      string                `json:"model"`
		Content    []anthropicContentOut `json:"content"`
		StopReason string                `json:"stop_reason"`
		Usage      anthropicUsage        `json:"usage"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}

	resp := &Response{ID: wire.ID, Model: wire.Model, FinishReason: mapAnthropicStopReason(wire.StopReason)}

	for _, b := range wire.Content {
		switch b.Type {
		case "text":
			resp.Content += b.Text
		case "thinking":
			resp.Reasoning += b.Thinking
		case "tool_use":
			args, _ := json.Marshal(b.Input)
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: b.ID, Name: b.Name, Arguments: string(args)})
		}
	}

	resp.Usage = Usage{
		PromptTokens:     wire.Usage.InputTokens,
		CompletionTokens: wire.Usage.OutputTokens,
		CachedTokens:     wire.Usage.CacheReadInputTokens,
		TotalTokens:      wire.Usage.InputTokens + wire.Usage.OutputTokens,
	}

	return resp, nil
}

func mapAnthropicStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return reason
	}
}
