package translate_test

import (
	"encoding/json"
	"testing"

	"github.com/vectorplane/llmgateway/internal/catalog"
	"github.com/vectorplane/llmgateway/internal/translate"
)

func textMsg(role, text string) translate.Message {
	return translate.Message{Role: role, Content: []translate.ContentPart{{Type: "text", Text: text}}}
}

func TestEncodeOpenAIChat_SystemRoleStripping(t *testing.T) {
	req := &translate.Request{Messages: []translate.Message{textMsg("system", "be nice"), textMsg("user", "hi")}}
	model := catalog.ModelEntry{SupportsSystemRole: false}

	raw, err := translate.EncodeOpenAIChat(req, model, "o3-mini")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	msgs := decoded["messages"].([]any)
	first := msgs[0].(map[string]any)
	if first["role"] != "user" {
		t.Fatalf("expected system message rewritten to user, got %v", first["role"])
	}
}

func TestEncodeOpenAIChat_GPT5ForcesTemperatureAndMaxCompletionTokens(t *testing.T) {
	maxTokens := 256
	req := &translate.Request{Messages: []translate.Message{textMsg("user", "hi")}, MaxTokens: &maxTokens}
	model := catalog.ModelEntry{SupportsSystemRole: true}

	raw, err := translate.EncodeOpenAIChat(req, model, "gpt-5")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	if decoded["temperature"] != 1.0 {
		t.Fatalf("expected forced temperature=1, got %v", decoded["temperature"])
	}
	if decoded["max_tokens"] != nil {
		t.Fatalf("expected max_tokens to be omitted for gpt-5, got %v", decoded["max_tokens"])
	}
	if decoded["max_completion_tokens"] != 256.0 {
		t.Fatalf("expected max_completion_tokens=256, got %v", decoded["max_completion_tokens"])
	}
}

func TestSupportsOpenAIResponsesAPI(t *testing.T) {
	model := catalog.ModelEntry{
		Providers: []catalog.ProviderMapping{
			{ProviderID: "openai", ModelName: "o3-mini", SupportsResponsesAPI: true},
		},
	}

	reasoning := &translate.Request{ReasoningEffort: "medium", Messages: []translate.Message{textMsg("user", "hi")}}
	if !translate.SupportsOpenAIResponsesAPI(reasoning, model, "o3-mini") {
		t.Fatalf("expected responses API to be selected")
	}

	noReasoning := &translate.Request{Messages: []translate.Message{textMsg("user", "hi")}}
	if translate.SupportsOpenAIResponsesAPI(noReasoning, model, "o3-mini") {
		t.Fatalf("expected chat completions without a reasoning effort")
	}

	withToolTurn := &translate.Request{
		ReasoningEffort: "medium",
		Messages: []translate.Message{
			{Role: "assistant", ToolCalls: []translate.ToolCall{{ID: "t1", Name: "f"}}},
			{Role: "tool", ToolCallID: "t1", Content: []translate.ContentPart{{Type: "tool_result", ToolResult: &translate.ToolResult{ToolCallID: "t1", Content: "ok"}}}},
		},
	}
	if translate.SupportsOpenAIResponsesAPI(withToolTurn, model, "o3-mini") {
		t.Fatalf("expected chat completions once a tool-call turn exists")
	}
}

func TestEncodeAnthropic_MaxTokensFloorAndThinkingBudget(t *testing.T) {
	req := &translate.Request{
		Messages:        []translate.Message{textMsg("system", "be nice"), textMsg("user", "hi")},
		ReasoningEffort: "high",
	}

	raw, err := translate.EncodeAnthropic(req, "claude-sonnet-4-5-20250929", true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)

	if decoded["max_tokens"].(float64) < 5000 {
		t.Fatalf("expected max_tokens floored above the thinking budget, got %v", decoded["max_tokens"])
	}
	thinking := decoded["thinking"].(map[string]any)
	if thinking["budget_tokens"] != 4000.0 {
		t.Fatalf("expected high=4000 thinking budget, got %v", thinking["budget_tokens"])
	}
	system := decoded["system"].([]any)
	if len(system) != 1 {
		t.Fatalf("expected system message merged into the system field, got %v", decoded["system"])
	}
}

func TestEncodeGemini_DropsSystemRoleAndStripsSchemaExtras(t *testing.T) {
	req := &translate.Request{
		Messages: []translate.Message{textMsg("system", "be nice"), textMsg("assistant", "ok"), textMsg("user", "hi")},
		Tools: []translate.Tool{
			{Name: "lookup", Parameters: map[string]any{"type": "object", "$schema": "http://json-schema.org/draft-07/schema#", "additionalProperties": false}},
		},
	}

	raw, err := translate.EncodeGemini(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)

	if decoded["systemInstruction"] == nil {
		t.Fatalf("expected systemInstruction to be set")
	}
	contents := decoded["contents"].([]any)
	for _, c := range contents {
		role := c.(map[string]any)["role"]
		if role == "system" {
			t.Fatalf("system role must not appear in contents")
		}
	}

	tools := decoded["tools"].([]any)
	decl := tools[0].(map[string]any)["functionDeclarations"].([]any)[0].(map[string]any)
	params := decl["parameters"].(map[string]any)
	if _, ok := params["$schema"]; ok {
		t.Fatalf("expected $schema to be stripped")
	}
	if _, ok := params["additionalProperties"]; ok {
		t.Fatalf("expected additionalProperties to be stripped")
	}
}

func TestDecodeGemini_RecomputesTotalIncludingReasoning(t *testing.T) {
	body := `{
		"candidates": [{"content": {"parts": [{"text": "hi"}]}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 5, "thoughtsTokenCount": 20}
	}`

	resp, err := translate.DecodeGemini([]byte(body), 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Usage.TotalTokens != 35 {
		t.Fatalf("expected total=35 (10+5+20), got %d", resp.Usage.TotalTokens)
	}
}

func TestDecodeGenericChat_ZAIQuirkRewritesToolCallsToStop(t *testing.T) {
	body := `{
		"id": "x", "model": "glm-4.5-flash",
		"choices": [{"message": {"role": "assistant", "tool_calls": [{"id": "t1", "type": "function", "function": {"name": "f", "arguments": "{}"}}]}, "finish_reason": "tool_calls"}]
	}`

	resp, err := translate.DecodeGenericChat([]byte(body), "glm-4.5-flash", true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.FinishReason != "stop" {
		t.Fatalf("expected finish_reason rewritten to stop, got %q", resp.FinishReason)
	}
	if len(resp.ToolCalls) != 0 {
		t.Fatalf("expected tool calls dropped, got %v", resp.ToolCalls)
	}
}

func TestDecodeGenericChat_NonQuirkModelUnaffected(t *testing.T) {
	body := `{
		"id": "x", "model": "llama-3.3-70b-versatile",
		"choices": [{"message": {"role": "assistant", "tool_calls": [{"id": "t1", "type": "function", "function": {"name": "f", "arguments": "{}"}}]}, "finish_reason": "tool_calls"}]
	}`

	resp, err := translate.DecodeGenericChat([]byte(body), "llama-3.3-70b-versatile", true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.FinishReason != "tool_calls" {
		t.Fatalf("expected finish_reason left untouched, got %q", resp.FinishReason)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected tool call preserved, got %v", resp.ToolCalls)
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"12345678", 2},
	}
	for _, tc := range cases {
		if got := translate.EstimateTokens(tc.text); got != tc.want {
			t.Fatalf("EstimateTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}
