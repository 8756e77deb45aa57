package translate

import (
	"encoding/json"
	"fmt"
)

// DecodeGeminiStreamChunk parses one SSE `data: {...}` payload from a
// Google AI Studio streamGenerateContent response — each chunk has the same
// shape as the non-streaming response, just with partial content.
func DecodeGeminiStreamChunk(payload []byte, candidateIndex int) (StreamDelta, error) {
	var wire geminiResponse
	if err := json.Unmarshal(payload, &wire); err != nil {
		return StreamDelta{}, err
	}
	if len(wire.Candidates) == 0 {
		return StreamDelta{}, nil
	}

	c := wire.Candidates[0]
	var d StreamDelta
	if c.FinishReason != "" {
		d.FinishReason = mapGeminiFinishReason(c.FinishReason)
	}

	for i, p := range c.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			args, _ := json.Marshal(p.FunctionCall.Args)
			d.ToolCallDeltas = append(d.ToolCallDeltas, ToolCallDelta{
				Index:     i,
				ID:        fmt.Sprintf("%s_%d_%d", p.FunctionCall.Name, candidateIndex, i),
				Name:      p.FunctionCall.Name,
				Arguments: string(args),
			})
		case p.Thought:
			d.Reasoning += p.Text
		default:
			d.Content += p.Text
		}
	}

	if wire.UsageMetadata != nil {
		completion := wire.UsageMetadata.CandidatesTokenCount
		d.Usage = &Usage{
			PromptTokens:     wire.UsageMetadata.PromptTokenCount,
			CompletionTokens: completion,
			ReasoningTokens:  wire.UsageMetadata.ThoughtsTokenCount,
			TotalTokens:      wire.UsageMetadata.PromptTokenCount + completion + wire.UsageMetadata.ThoughtsTokenCount,
		}
	}

	return d, nil
}
