package translate

import "strings"

// EncodeGenericChat builds an OpenAI-compatible chat-completions body for
// the "other OpenAI-compatible providers" family (xAI, Groq, DeepSeek,
// Perplexity, Mistral, ZAI, inference.net/together.ai, etc.), per §4.B.
// inference.net and together.ai route a "{provider}/" prefix through
// catalog.StripProviderPrefix before wireModel reaches here.
func EncodeGenericChat(req *Request, supportsSystemRole bool, wireModel string) ([]byte, error) {
	body := openAIChatRequest{
		Model:            wireModel,
		Messages:         encodeOpenAIMessages(req.Messages, supportsSystemRole),
		Stream:           req.Stream,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Tools:            encodeOpenAITools(req.Tools),
		ToolChoice:       encodeOpenAIToolChoice(req.ToolChoice),
	}
	return marshalJSON(body)
}

// DecodeGenericChat decodes a non-streaming OpenAI-compatible chat response.
// lastMessageWasToolResult and the ZAI quirk model names together trigger
// the glm-4.5-airx/glm-4.5-flash rewrite described in §4.B: a tool_calls
// finish immediately following a tool result is treated as a (buggy)
// re-ask and collapsed to a plain stop with the tool calls dropped.
func DecodeGenericChat(raw []byte, wireModel string, lastMessageWasToolResult bool) (*Response, error) {
	resp, err := DecodeOpenAIChat(raw)
	if err != nil {
		return nil, err
	}
	if isZAIQuirkModel(wireModel) && lastMessageWasToolResult && resp.FinishReason == "tool_calls" && len(resp.ToolCalls) > 0 {
		resp.FinishReason = "stop"
		resp.ToolCalls = nil
	}
	return resp, nil
}

func isZAIQuirkModel(wireModel string) bool {
	switch wireModel {
	case "glm-4.5-airx", "glm-4.5-flash":
		return true
	default:
		return false
	}
}

// DecodeGenericStreamChunk decodes one `data: {...}` frame from a generic
// OpenAI-compatible stream. The ZAI quirk only manifests on the final,
// finish_reason-bearing frame, so it is applied the same way there.
func DecodeGenericStreamChunk(payload []byte, wireModel string, lastMessageWasToolResult bool) (StreamDelta, error) {
	d, err := DecodeOpenAIStreamChunk(payload)
	if err != nil {
		return StreamDelta{}, err
	}
	if isZAIQuirkModel(wireModel) && lastMessageWasToolResult && d.FinishReason == "tool_calls" && len(d.ToolCallDeltas) > 0 {
		d.FinishReason = "stop"
		d.ToolCallDeltas = nil
	}
	return d, nil
}

// StripProviderModelPrefix applies the inference.net/together.ai prefix
// rule: if wireModel is literally "{providerID}/{rest}", return rest.
func StripProviderModelPrefix(providerID, wireModel string) string {
	prefix := providerID + "/"
	return strings.TrimPrefix(wireModel, prefix)
}
