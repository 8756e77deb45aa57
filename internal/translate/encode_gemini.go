package translate

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	Tools             []geminiTool      `json:"tools,omitempty"`
	GenerationConfig  *geminiGenConfig  `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// geminiPart is a tagged union: exactly one of Text/InlineData/FunctionCall/
// FunctionResponse is set.
type geminiPart struct {
	Text             string                `json:"text,omitempty"`
	InlineData       *geminiInlineData     `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall   `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResult `json:"functionResponse,omitempty"`
	Thought          bool                  `json:"thought,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResult struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiGenConfig struct {
	Temperature     *float64             `json:"temperature,omitempty"`
	MaxOutputTokens *int                 `json:"maxOutputTokens,omitempty"`
	TopP            *float64             `json:"topP,omitempty"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiThinkingConfig struct {
	ThinkingBudget  int  `json:"thinkingBudget"`
	IncludeThoughts bool `json:"includeThoughts"`
}

// EncodeGemini builds a Google AI Studio generateContent request body per
// §4.B: assistant becomes model, system role is dropped in favor of
// systemInstruction, and tool schemas are stripped of $schema/
// additionalProperties (Gemini's function-declaration schema is a strict
// subset of JSON Schema).
func EncodeGemini(req *Request) ([]byte, error) {
	var system *geminiContent
	contents := make([]geminiContent, 0, len(req.Messages))

	for _, m := range req.Messages {
		if m.Role == "system" {
			system = &geminiContent{Parts: []geminiPart{{Text: joinTextParts(m.Content)}}}
			continue
		}
		contents = append(contents, encodeGeminiContent(m))
	}

	cfg := &geminiGenConfig{Temperature: req.Temperature, MaxOutputTokens: req.MaxTokens, TopP: req.TopP}
	if req.ReasoningEffort != "" {
		cfg.ThinkingConfig = &geminiThinkingConfig{
			ThinkingBudget:  anthropicThinkingBudget[req.ReasoningEffort],
			IncludeThoughts: true,
		}
	}

	body := geminiRequest{
		Contents:          contents,
		SystemInstruction: system,
		Tools:             encodeGeminiTools(req.Tools),
		GenerationConfig:  cfg,
	}

	return marshalJSON(body)
}

func encodeGeminiContent(m Message) geminiContent {
	role := "user"
	if m.Role == "assistant" {
		role = "model"
	}

	parts := make([]geminiPart, 0, len(m.Content)+len(m.ToolCalls))

	if m.ToolCallID != "" {
		for _, p := range m.Content {
			if p.Type == "tool_result" && p.ToolResult != nil {
				parts = append(parts, geminiPart{FunctionResponse: &geminiFunctionResult{
					Name:     m.ToolCallID,
					Response: map[string]any{"result": p.ToolResult.Content},
				}})
			}
		}
		return geminiContent{Role: "user", Parts: parts}
	}

	for _, p := range m.Content {
		switch p.Type {
		case "text":
			parts = append(parts, geminiPart{Text: p.Text})
		case "image_url":
			if p.ImageURL != nil {
				if mt, data, ok := parseDataURL(p.ImageURL.URL); ok {
					parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: mt, Data: data}})
				}
			}
		}
	}
	for _, tc := range m.ToolCalls {
		parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: decodeArgsToMap(tc.Arguments)}})
	}

	return geminiContent{Role: role, Parts: parts}
}

func encodeGeminiTools(tools []Tool) []geminiTool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]geminiFunctionDecl, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, geminiFunctionDecl{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  stripJSONSchemaExtras(t.Parameters),
		})
	}
	return []geminiTool{{FunctionDeclarations: decls}}
}

// stripJSONSchemaExtras removes keys Gemini's function-declaration schema
// doesn't accept.
func stripJSONSchemaExtras(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		if k == "$schema" || k == "additionalProperties" {
			continue
		}
		out[k] = v
	}
	return out
}

func decodeArgsToMap(raw string) map[string]any {
	m := map[string]any{}
	_ = jsonUnmarshal(raw, &m)
	return m
}
