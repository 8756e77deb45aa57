package translate

import (
	"encoding/json"
	"fmt"
)

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	ThoughtsTokenCount   int `json:"thoughtsTokenCount"`
}

// DecodeGemini decodes a non-streaming Google AI Studio generateContent
// response. Per §4.B, totals are recomputed locally since Google's own
// usageMetadata total excludes reasoning tokens, and a missing
// candidatesTokenCount falls back to content-length estimation.
func DecodeGemini(raw []byte, candidateIndex int) (*Response, error) {
	var wire geminiResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	if len(wire.Candidates) == 0 {
		return nil, fmt.Errorf("translate: gemini response has no candidates")
	}

	c := wire.Candidates[0]
	resp := &Response{FinishReason: mapGeminiFinishReason(c.FinishReason)}

	for i, p := range c.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			args, _ := json.Marshal(p.FunctionCall.Args)
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        fmt.Sprintf("%s_%d_%d", p.FunctionCall.Name, candidateIndex, i),
				Name:      p.FunctionCall.Name,
				Arguments: string(args),
			})
		case p.Thought:
			resp.Reasoning += p.Text
		case p.InlineData != nil:
			resp.Content += fmt.Sprintf("data:%s;base64,%s", p.InlineData.MimeType, p.InlineData.Data)
		default:
			resp.Content += p.Text
		}
	}

	if wire.UsageMetadata != nil {
		completion := wire.UsageMetadata.CandidatesTokenCount
		if completion == 0 && resp.Content != "" {
			completion = EstimateTokens(resp.Content)
		}
		resp.Usage = Usage{
			PromptTokens:     wire.UsageMetadata.PromptTokenCount,
			CompletionTokens: completion,
			ReasoningTokens:  wire.UsageMetadata.ThoughtsTokenCount,
			TotalTokens:      wire.UsageMetadata.PromptTokenCount + completion + wire.UsageMetadata.ThoughtsTokenCount,
		}
	}

	return resp, nil
}

func mapGeminiFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	default:
		return reason
	}
}
