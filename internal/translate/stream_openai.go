package translate

import "encoding/json"

type openAIStreamChunk struct {
	Choices []openAIStreamChoice `json:"choices"`
	Usage   *openAIChatUsage     `json:"usage,omitempty"`
}

type openAIStreamChoice struct {
	Delta        openAIStreamDelta `json:"delta"`
	FinishReason string            `json:"finish_reason"`
}

type openAIStreamDelta struct {
	Content          string                 `json:"content"`
	ReasoningContent string                 `json:"reasoning_content"`
	ToolCalls        []openAIStreamToolCall `json:"tool_calls"`
}

type openAIStreamToolCall struct {
	Index    int                `json:"index"`
	ID       string             `json:"id"`
	Function openAIToolCallFunc `json:"function"`
}

// DecodeOpenAIStreamChunk parses one `data: {...}` payload (without the
// "data: " prefix) from an OpenAI chat-completions stream into a
// StreamDelta. A malformed chunk returns an error; the caller (gateway)
// logs it and skips the frame rather than closing the stream.
func DecodeOpenAIStreamChunk(payload []byte) (StreamDelta, error) {
	var wire openAIStreamChunk
	if err := json.Unmarshal(payload, &wire); err != nil {
		return StreamDelta{}, err
	}

	var d StreamDelta
	if len(wire.Choices) > 0 {
		c := wire.Choices[0]
		d.Content = c.Delta.Content
		d.Reasoning = c.Delta.ReasoningContent
		d.FinishReason = c.FinishReason
		for _, tc := range c.Delta.ToolCalls {
			d.ToolCallDeltas = append(d.ToolCallDeltas, ToolCallDelta{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}

	if wire.Usage != nil {
		d.Usage = &Usage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		}
		if wire.Usage.CompletionTokensDetails != nil {
			d.Usage.ReasoningTokens = wire.Usage.CompletionTokensDetails.ReasoningTokens
		}
	}

	return d, nil
}
