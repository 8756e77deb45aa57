package translate

import "encoding/json"

const (
	anthropicMinMaxTokens = 1024
)

var anthropicThinkingBudget = map[string]int{
	"minimal": 1024,
	"low":     1024,
	"medium":  2000,
	"high":    4000,
}

type anthropicRequest struct {
	Model       string              `json:"model"`
	System      []anthropicTextPart `json:"system,omitempty"`
	Messages    []anthropicMessage  `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature *float64            `json:"temperature,omitempty"`
	TopP        *float64            `json:"top_p,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
	Tools       []anthropicTool     `json:"tools,omitempty"`
	ToolChoice  any                 `json:"tool_choice,omitempty"`
	Thinking    *anthropicThinking  `json:"thinking,omitempty"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicTextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessage struct {
	Role    string              `json:"role"`
	Content []anthropicContent  `json:"content"`
}

// anthropicContent is a tagged union over Anthropic's content block types:
// text, image, tool_use, tool_result.
type anthropicContent struct {
	Type      string              `json:"type"`
	Text      string              `json:"text,omitempty"`
	Source    *anthropicImgSource `json:"source,omitempty"`
	ID        string              `json:"id,omitempty"`         // tool_use
	Name      string              `json:"name,omitempty"`       // tool_use
	Input     any                 `json:"input,omitempty"`      // tool_use
	ToolUseID string              `json:"tool_use_id,omitempty"` // tool_result
	Content   string              `json:"content,omitempty"`    // tool_result
}

type anthropicImgSource struct {
	Type      string `json:"type"` // base64 | url
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// EncodeAnthropic builds an Anthropic Messages API request body per §4.B:
// system messages merge into a leading system block (not a user turn — the
// Messages API has a dedicated system field), max_tokens is floored, and
// reasoning requests become an extended-thinking block.
func EncodeAnthropic(req *Request, wireModel string, modelSupportsReasoning bool) ([]byte, error) {
	var system []anthropicTextPart
	messages := make([]anthropicMessage, 0, len(req.Messages))

	for _, m := range req.Messages {
		if m.Role == "system" {
			for _, p := range m.Content {
				if p.Type == "text" {
					system = append(system, anthropicTextPart{Type: "text", Text: p.Text})
				}
			}
			continue
		}
		messages = append(messages, encodeAnthropicMessage(m))
	}

	maxTokens := anthropicMinMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > maxTokens {
		maxTokens = *req.MaxTokens
	}

	body := anthropicRequest{
		Model:       wireModel,
		System:      system,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
		Tools:       encodeAnthropicTools(req.Tools),
		ToolChoice:  encodeAnthropicToolChoice(req.ToolChoice),
	}

	if modelSupportsReasoning && req.ReasoningEffort != "" {
		budget := anthropicThinkingBudget[req.ReasoningEffort]
		if budget == 0 {
			budget = anthropicThinkingBudget["medium"]
		}
		body.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: budget}
		if need := budget + 1000; body.MaxTokens < need {
			body.MaxTokens = need
		}
	}

	return marshalJSON(body)
}

func encodeAnthropicMessage(m Message) anthropicMessage {
	role := m.Role
	if role != "assistant" {
		role = "user"
	}

	content := make([]anthropicContent, 0, len(m.Content)+len(m.ToolCalls))

	if m.ToolCallID != "" {
		for _, p := range m.Content {
			if p.Type == "tool_result" && p.ToolResult != nil {
				content = append(content, anthropicContent{
					Type:      "tool_result",
					ToolUseID: p.ToolResult.ToolCallID,
					Content:   p.ToolResult.Content,
				})
			}
		}
		if len(content) == 0 {
			content = append(content, anthropicContent{Type: "tool_result", ToolUseID: m.ToolCallID, Content: joinTextParts(m.Content)})
		}
		return anthropicMessage{Role: "user", Content: content}
	}

	for _, p := range m.Content {
		switch p.Type {
		case "text":
			content = append(content, anthropicContent{Type: "text", Text: p.Text})
		case "image_url":
			if p.ImageURL != nil {
				content = append(content, encodeAnthropicImage(*p.ImageURL))
			}
		}
	}
	for _, tc := range m.ToolCalls {
		content = append(content, anthropicContent{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Name,
			Input: rawJSONOrString(tc.Arguments),
		})
	}

	return anthropicMessage{Role: role, Content: content}
}

func joinTextParts(parts []ContentPart) string {
	var out string
	for _, p := range parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

func rawJSONOrString(s string) any {
	if s == "" {
		return map[string]any{}
	}
	return json.RawMessage(s)
}

func encodeAnthropicImage(img ImageURL) anthropicContent {
	// Data URLs carry their mime type and base64 payload inline; any other
	// URL is passed through as a url-type source. Nothing in the gateway
	// fetches or inlines the image before translation.
	if mt, data, ok := parseDataURL(img.URL); ok {
		return anthropicContent{Type: "image", Source: &anthropicImgSource{Type: "base64", MediaType: mt, Data: data}}
	}
	return anthropicContent{Type: "image", Source: &anthropicImgSource{Type: "url", URL: img.URL}}
}

func encodeAnthropicTools(tools []Tool) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropicTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	return out
}

func encodeAnthropicToolChoice(tc *ToolChoice) any {
	if tc == nil {
		return nil
	}
	switch tc.Mode {
	case "auto":
		return nil
	case "none":
		return map[string]string{"type": "none"}
	case "function":
		return map[string]string{"type": "tool", "name": tc.FuncName}
	case "required":
		return map[string]string{"type": "any"}
	default:
		return nil
	}
}
