package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/vectorplane/llmgateway/internal/translate"
	"github.com/vectorplane/llmgateway/pkg/apierr"
)

// wireRequest is the JSON shape POST /v1/chat/completions accepts, the
// canonical OpenAI chat-completion request named in SPEC_FULL.md §4.B.
type wireRequest struct {
	Model            string          `json:"model"`
	Messages         []wireMessage   `json:"messages"`
	Stream           bool            `json:"stream"`
	Temperature      *float64        `json:"temperature"`
	MaxTokens        *int            `json:"max_tokens"`
	TopP             *float64        `json:"top_p"`
	FrequencyPenalty *float64        `json:"frequency_penalty"`
	PresencePenalty  *float64        `json:"presence_penalty"`
	ResponseFormat   *wireRespFormat `json:"response_format"`
	Tools            []wireTool      `json:"tools"`
	ToolChoice       json.RawMessage `json:"tool_choice"`
	ReasoningEffort  string          `json:"reasoning_effort"`
}

type wireMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL    string `json:"url"`
		Detail string `json:"detail,omitempty"`
	} `json:"image_url,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type wireRespFormat struct {
	Type string `json:"type"`
}

// toCanonical converts the wire request into translate's canonical Request,
// validating the pieces §4.E step 2 names: unknown roles, missing model,
// negative token limits.
func (w *wireRequest) toCanonical() (*translate.Request, error) {
	if w.Model == "" {
		return nil, apierr.New(apierr.BadRequest, "model is required")
	}
	if w.MaxTokens != nil && *w.MaxTokens < 0 {
		return nil, apierr.New(apierr.BadRequest, "max_tokens must not be negative")
	}

	req := &translate.Request{
		Model:            w.Model,
		Stream:           w.Stream,
		Temperature:      w.Temperature,
		MaxTokens:        w.MaxTokens,
		TopP:             w.TopP,
		FrequencyPenalty: w.FrequencyPenalty,
		PresencePenalty:  w.PresencePenalty,
		ReasoningEffort:  w.ReasoningEffort,
	}
	if w.ResponseFormat != nil {
		req.ResponseFormat = &translate.ResponseFormat{Type: w.ResponseFormat.Type}
	}

	for _, t := range w.Tools {
		req.Tools = append(req.Tools, translate.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	if tc, err := parseToolChoice(w.ToolChoice); err != nil {
		return nil, err
	} else {
		req.ToolChoice = tc
	}

	for _, m := range w.Messages {
		switch m.Role {
		case "system", "user", "assistant", "tool":
		default:
			return nil, apierr.Newf(apierr.BadRequest, "unknown message role %q", m.Role)
		}

		parts, err := parseContent(m.Content)
		if err != nil {
			return nil, err
		}

		msg := translate.Message{Role: m.Role, Content: parts, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, translate.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		req.Messages = append(req.Messages, msg)
	}

	return req, nil
}

// parseContent accepts either a bare JSON string or an array of
// {type,text|image_url} parts, the two shapes OpenAI's content field takes.
func parseContent(raw json.RawMessage) ([]translate.ContentPart, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []translate.ContentPart{{Type: "text", Text: s}}, nil
	}

	var parts []wireContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "unsupported message content shape")
	}

	out := make([]translate.ContentPart, 0, len(parts))
	for _, p := range parts {
		cp := translate.ContentPart{Type: p.Type, Text: p.Text}
		if p.ImageURL != nil {
			cp.ImageURL = &translate.ImageURL{URL: p.ImageURL.URL, Detail: p.ImageURL.Detail}
		}
		out = append(out, cp)
	}
	return out, nil
}

// parseToolChoice accepts either the bare strings "auto"/"none"/"required"
// or the {"type":"function","function":{"name":...}} object shape.
func parseToolChoice(raw json.RawMessage) (*translate.ToolChoice, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &translate.ToolChoice{Mode: s}, nil
	}

	var obj struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "unsupported tool_choice shape")
	}
	return &translate.ToolChoice{Mode: "function", FuncName: obj.Function.Name}, nil
}

// wireResponse is the non-streaming OpenAI-shaped chat completion reply.
type wireResponse struct {
	ID      string            `json:"id"`
	Object  string            `json:"object"`
	Created int64             `json:"created"`
	Model   string            `json:"model"`
	Choices []wireChoice      `json:"choices"`
	Usage   wireUsage         `json:"usage"`
}

type wireChoice struct {
	Index        int                 `json:"index"`
	Message      wireOutboundMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type wireOutboundMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Reasoning string         `json:"reasoning_content,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func fromCanonical(resp *translate.Response, createdUnix int64) wireResponse {
	msg := wireOutboundMessage{Role: "assistant", Content: resp.Content, Reasoning: resp.Reasoning}
	for _, tc := range resp.ToolCalls {
		wtc := wireToolCall{ID: tc.ID, Type: "function"}
		wtc.Function.Name = tc.Name
		wtc.Function.Arguments = tc.Arguments
		msg.ToolCalls = append(msg.ToolCalls, wtc)
	}

	return wireResponse{
		ID:      fmt.Sprintf("chatcmpl-%s", resp.ID),
		Object:  "chat.completion",
		Created: createdUnix,
		Model:   resp.Model,
		Choices: []wireChoice{{Message: msg, FinishReason: resp.FinishReason}},
		Usage: wireUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}

// streamChunk is one SSE frame's JSON payload, OpenAI's
// choices[0].delta shape.
type streamChunk struct {
	ID      string            `json:"id"`
	Object  string            `json:"object"`
	Created int64             `json:"created"`
	Model   string            `json:"model"`
	Choices []streamChoice    `json:"choices"`
	Usage   *wireUsage        `json:"usage,omitempty"`
}

type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type streamDelta struct {
	Content   string `json:"content,omitempty"`
	Reasoning string `json:"reasoning_content,omitempty"`
}

func fromStreamDelta(requestID, model string, d translate.StreamDelta) streamChunk {
	var finish *string
	if d.FinishReason != "" {
		fr := d.FinishReason
		finish = &fr
	}

	chunk := streamChunk{
		ID:      fmt.Sprintf("chatcmpl-%s", requestID),
		Object:  "chat.completion.chunk",
		Model:   model,
		Choices: []streamChoice{{Delta: streamDelta{Content: d.Content, Reasoning: d.Reasoning}, FinishReason: finish}},
	}
	if d.Usage != nil {
		chunk.Usage = &wireUsage{
			PromptTokens:     d.Usage.PromptTokens,
			CompletionTokens: d.Usage.CompletionTokens,
			TotalTokens:      d.Usage.TotalTokens,
		}
	}
	return chunk
}
