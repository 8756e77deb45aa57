package translate

import (
	"fmt"

	"github.com/vectorplane/llmgateway/internal/catalog"
)

// Translator dispatches canonical<->wire translation by provider family.
// It holds no state of its own; every method is pure given its inputs.
type Translator struct{}

// New returns a ready-to-use Translator.
func New() *Translator { return &Translator{} }

// lastMessageIsToolResult reports whether req's final message is a tool
// result, the precondition for the ZAI quirk and a useful signal elsewhere.
func lastMessageIsToolResult(req *Request) bool {
	if len(req.Messages) == 0 {
		return false
	}
	last := req.Messages[len(req.Messages)-1]
	return last.ToolCallID != ""
}

// Encode builds the upstream request body for providerID. wireModel is the
// upstream-native model name (already resolved via the catalog and, for
// inference.net/together.ai, already stripped of its provider prefix).
// useResponsesAPI is only consulted for providerID=="openai".
func (t *Translator) Encode(providerID string, req *Request, model catalog.ModelEntry, wireModel string, useResponsesAPI bool) ([]byte, error) {
	switch providerID {
	case "anthropic":
		return EncodeAnthropic(req, wireModel, modelSupportsReasoning(model))
	case "gemini":
		return EncodeGemini(req)
	case "openai":
		if useResponsesAPI {
			return EncodeOpenAIResponses(req, model, wireModel)
		}
		return EncodeOpenAIChat(req, model, wireModel)
	default:
		return EncodeGenericChat(req, model.SupportsSystemRole, wireModel)
	}
}

// Decode parses a non-streaming upstream response body into the canonical
// Response.
func (t *Translator) Decode(providerID string, raw []byte, wireModel string, req *Request, useResponsesAPI bool) (*Response, error) {
	switch providerID {
	case "anthropic":
		return DecodeAnthropic(raw)
	case "gemini":
		return DecodeGemini(raw, 0)
	case "openai":
		if useResponsesAPI {
			return DecodeOpenAIResponses(raw)
		}
		return DecodeOpenAIChat(raw)
	default:
		return DecodeGenericChat(raw, wireModel, lastMessageIsToolResult(req))
	}
}

// DecodeStreamChunk parses one SSE data payload from providerID's native
// stream format into a canonical StreamDelta. toolName resolves a tool-call
// content-block index to (id, name) for Anthropic's incremental
// input_json_delta events; it is unused by every other family.
func (t *Translator) DecodeStreamChunk(providerID string, payload []byte, wireModel string, req *Request, toolName func(int) (string, string)) (StreamDelta, error) {
	switch providerID {
	case "anthropic":
		return DecodeAnthropicStreamEvent(payload, toolName)
	case "gemini":
		return DecodeGeminiStreamChunk(payload, 0)
	case "openai":
		return DecodeOpenAIStreamChunk(payload)
	default:
		return DecodeGenericStreamChunk(payload, wireModel, lastMessageIsToolResult(req))
	}
}

func modelSupportsReasoning(model catalog.ModelEntry) bool {
	return model.Family != "" && model.ID != "" && hasReasoningFamily(model)
}

func hasReasoningFamily(model catalog.ModelEntry) bool {
	switch model.Family {
	case "claude-4", "gemini-2.5", "o3", "gpt-5":
		return true
	default:
		return false
	}
}

// ErrNoContent describes a well-formed but empty upstream response body;
// none of this package's decode functions returns it.
var ErrNoContent = fmt.Errorf("translate: upstream response carried no content")
