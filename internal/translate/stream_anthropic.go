package translate

import "encoding/json"

// anthropicStreamEvent covers the event shapes that matter to streaming
// translation: content_block_delta (text/thinking/tool-args fragments) and
// message_delta (final usage + stop_reason).
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Usage *anthropicUsage `json:"usage"`
}

// DecodeAnthropicStreamEvent parses one Anthropic SSE "event: ...\ndata:
// {...}" payload's data line into a StreamDelta. toolName maps a
// content-block index to the id and name of the tool_use block the caller
// recorded from its content_block_start event; it may be nil.
func DecodeAnthropicStreamEvent(payload []byte, toolName func(index int) (id, name string)) (StreamDelta, error) {
	var ev anthropicStreamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return StreamDelta{}, err
	}

	var d StreamDelta
	switch ev.Type {
	case "content_block_delta":
		switch ev.Delta.Type {
		case "text_delta":
			d.Content = ev.Delta.Text
		case "thinking_delta":
			d.Reasoning = ev.Delta.Thinking
		case "input_json_delta":
			id, name := "", ""
			if toolName != nil {
				id, name = toolName(ev.Index)
			}
			d.ToolCallDeltas = []ToolCallDelta{{Index: ev.Index, ID: id, Name: name, Arguments: ev.Delta.PartialJSON}}
		}
	case "message_delta":
		d.FinishReason = mapAnthropicStopReason(ev.Delta.StopReason)
		if ev.Usage != nil {
			d.Usage = &Usage{
				PromptTokens:     ev.Usage.InputTokens,
				CompletionTokens: ev.Usage.OutputTokens,
				CachedTokens:     ev.Usage.CacheReadInputTokens,
				TotalTokens:      ev.Usage.InputTokens + ev.Usage.OutputTokens,
			}
		}
	case "message_stop":
		d.Done = true
	}

	return d, nil
}
