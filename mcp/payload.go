package mcp

import (
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// decodeToolResult turns a tool call result into a plain JSON value.
// Structured content wins. Otherwise each content item is decoded: text that
// parses as JSON becomes that value ("4" becomes 4), other text stays a
// string, and non-text items become their JSON object form. One item is
// returned as-is; several become a list.
func decodeToolResult(result *mcp.CallToolResult) interface{} {
	if result == nil {
		return nil
	}
	if result.StructuredContent != nil {
		return normalizeJSON(result.StructuredContent)
	}

	values := make([]interface{}, 0, len(result.Content))
	for _, content := range result.Content {
		values = append(values, decodeContent(content))
	}

	switch len(values) {
	case 0:
		return nil
	case 1:
		return values[0]
	default:
		return values
	}
}

func decodeContent(content mcp.Content) interface{} {
	if text, ok := mcp.AsTextContent(content); ok {
		return decodeText(text.Text)
	}
	return normalizeJSON(content)
}

func decodeText(text string) interface{} {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return text
	}
	var v interface{}
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return text
	}
	return v
}

// normalizeJSON round-trips v through encoding/json so callers only ever see
// maps, slices, strings, float64, bool and nil.
func normalizeJSON(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// errorText joins the text contents of a failed tool result.
func errorText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok && text.Text != "" {
			parts = append(parts, text.Text)
		}
	}
	if len(parts) == 0 {
		return "tool reported an error"
	}
	return strings.Join(parts, "\n")
}
