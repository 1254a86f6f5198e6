package tools

import (
	"encoding/json"
	"strings"
)

// ParseEnvelope unwraps a raw tool response.
//
// MCP-style responses {"content":[{"text":"<json>"}]} yield the JSON-decoded text,
// or the text itself when it is not JSON. Byte and string responses are decoded
// when they hold JSON. Anything else is returned unchanged.
func ParseEnvelope(raw any) any {
	switch v := raw.(type) {
	case nil:
		return nil
	case json.RawMessage:
		return ParseEnvelope([]byte(v))
	case []byte:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return string(v)
		}
		return unwrap(decoded)
	case string:
		return decodeText(v)
	default:
		return unwrap(raw)
	}
}

func unwrap(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	content, ok := m["content"].([]any)
	if !ok || len(content) == 0 {
		return v
	}
	first, ok := content[0].(map[string]any)
	if !ok {
		return v
	}
	text, ok := first["text"].(string)
	if !ok {
		return v
	}
	return decodeText(text)
}

func decodeText(text string) any {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return text
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return text
	}
	return decoded
}
