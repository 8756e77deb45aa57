package translate

import (
	"encoding/json"
	"math"
	"strings"
)

// parseDataURL splits a "data:{mime};base64,{data}" URL into its parts. ok
// is false for any other scheme (https://, etc).
func parseDataURL(url string) (mimeType, data string, ok bool) {
	const prefix = "data:"
	if !strings.HasPrefix(url, prefix) {
		return "", "", false
	}
	rest := url[len(prefix):]
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mt, _, _ := strings.Cut(meta, ";")
	return mt, payload, true
}

func marshalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func jsonUnmarshal(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

// EstimateTokens approximates token count for text the upstream provider
// didn't report usage for, per §4.B: roughly 4 characters per token, at
// least 1 when any text is present.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := int(math.Ceil(float64(len(text)) / 4.0))
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateMessageTokens sums EstimateTokens over every text part of msgs,
// used as the prompt-token fallback when an upstream omits usage.
func EstimateMessageTokens(msgs []Message) int {
	var sb strings.Builder
	for _, m := range msgs {
		for _, p := range m.Content {
			if p.Type == "text" {
				sb.WriteString(p.Text)
			}
		}
	}
	return EstimateTokens(sb.String())
}
